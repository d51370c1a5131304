package rendertest

import (
	"fmt"
	"sync"
	"time"

	"github.com/spaghettifunk/deferred/engine/core"
	"github.com/spaghettifunk/deferred/engine/renderer"
	"github.com/spaghettifunk/deferred/engine/renderer/metadata"
)

// Surface is a scripted renderer.Surface. Acquire and present statuses are
// consumed from the scripted queues first and default to OK.
type Surface struct {
	mu      sync.Mutex
	backend *Backend

	extent     metadata.Extent2D
	format     metadata.Format
	imageCount uint32
	images     []metadata.Handle
	next       uint32

	acquireScript []metadata.SurfaceStatus
	presentScript []metadata.SurfaceStatus

	// AcquireErr, when set, is returned by the next acquire.
	AcquireErr error
	// HangAcquire makes every acquire time out.
	HangAcquire bool

	acquireTimeouts []time.Duration

	resizes   []metadata.Extent2D
	presented []uint32
	acquired  []metadata.Handle
}

var _ renderer.Surface = (*Surface)(nil)

func NewSurface(backend *Backend, width, height, imageCount uint32) *Surface {
	s := &Surface{
		backend:    backend,
		extent:     metadata.Extent2D{Width: width, Height: height},
		format:     metadata.FORMAT_B8G8R8A8_UNORM,
		imageCount: imageCount,
	}
	s.createImages()
	return s
}

func (s *Surface) createImages() {
	s.images = make([]metadata.Handle, s.imageCount)
	for i := range s.images {
		s.images[i] = s.backend.registerExternal(KindSwapchainImage, fmt.Sprintf("swapchain_%d", i), metadata.ImageConfig{
			Name:   fmt.Sprintf("swapchain_%d", i),
			Width:  s.extent.Width,
			Height: s.extent.Height,
			Format: s.format,
		})
	}
}

// ScriptAcquire queues statuses returned by the next acquires.
func (s *Surface) ScriptAcquire(statuses ...metadata.SurfaceStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.acquireScript = append(s.acquireScript, statuses...)
}

// ScriptPresent queues statuses returned by the next presents.
func (s *Surface) ScriptPresent(statuses ...metadata.SurfaceStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.presentScript = append(s.presentScript, statuses...)
}

func (s *Surface) AcquireNextImage(signal metadata.Handle, timeout time.Duration) (uint32, metadata.SurfaceStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.acquireTimeouts = append(s.acquireTimeouts, timeout)
	if timeout <= 0 {
		return 0, metadata.SURFACE_STATUS_OK, fmt.Errorf("acquire without a timeout")
	}
	if s.HangAcquire {
		return 0, metadata.SURFACE_STATUS_OK, fmt.Errorf("acquire after %s: %w", timeout, core.ErrAcquireTimeout)
	}
	if s.AcquireErr != nil {
		err := s.AcquireErr
		s.AcquireErr = nil
		return 0, metadata.SURFACE_STATUS_OK, err
	}
	if !s.backend.IsLive(signal) {
		return 0, metadata.SURFACE_STATUS_OK, fmt.Errorf("acquire with invalid semaphore %d", signal)
	}
	status := metadata.SURFACE_STATUS_OK
	if len(s.acquireScript) > 0 {
		status = s.acquireScript[0]
		s.acquireScript = s.acquireScript[1:]
	}
	if status == metadata.SURFACE_STATUS_OUT_OF_DATE {
		return 0, status, core.ErrSurfaceStale
	}
	idx := s.next
	s.next = (s.next + 1) % s.imageCount
	s.acquired = append(s.acquired, signal)
	return idx, status, nil
}

func (s *Surface) Present(imageIndex uint32, wait metadata.Handle) (metadata.SurfaceStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if imageIndex >= s.imageCount {
		return metadata.SURFACE_STATUS_OK, fmt.Errorf("present of invalid image %d", imageIndex)
	}
	if !s.backend.IsLive(wait) {
		return metadata.SURFACE_STATUS_OK, fmt.Errorf("present with invalid semaphore %d", wait)
	}
	s.presented = append(s.presented, imageIndex)
	status := metadata.SURFACE_STATUS_OK
	if len(s.presentScript) > 0 {
		status = s.presentScript[0]
		s.presentScript = s.presentScript[1:]
	}
	return status, nil
}

func (s *Surface) Resize(width, height uint32) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, img := range s.images {
		s.backend.releaseExternal(img)
	}
	s.extent = metadata.Extent2D{Width: width, Height: height}
	s.next = 0
	s.createImages()
	s.resizes = append(s.resizes, s.extent)
	return nil
}

func (s *Surface) Extent() metadata.Extent2D {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.extent
}

func (s *Surface) ImageCount() uint32      { return s.imageCount }
func (s *Surface) Format() metadata.Format { return s.format }

func (s *Surface) Images() []metadata.Handle {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]metadata.Handle(nil), s.images...)
}

// Resizes returns every extent the surface was rebuilt at.
func (s *Surface) Resizes() []metadata.Extent2D {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]metadata.Extent2D(nil), s.resizes...)
}

// Presented returns the presented image indices in order.
func (s *Surface) Presented() []uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]uint32(nil), s.presented...)
}

// AcquireTimeouts returns the timeout passed to every acquire so far.
func (s *Surface) AcquireTimeouts() []time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]time.Duration(nil), s.acquireTimeouts...)
}

// Window is a renderer.Window that closes after a number of polls.
type Window struct {
	mu         sync.Mutex
	width      uint32
	height     uint32
	closeAfter int
	polls      int
	closed     bool
	sizes      []metadata.Extent2D
	waits      int
}

var _ renderer.Window = (*Window)(nil)

// NewWindow creates a window that reports close once it was polled
// closeAfter times. Zero never closes.
func NewWindow(width, height uint32, closeAfter int) *Window {
	return &Window{width: width, height: height, closeAfter: closeAfter}
}

func (w *Window) PollEvents() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.polls++
	if w.closeAfter > 0 && w.polls >= w.closeAfter {
		w.closed = true
	}
}

func (w *Window) WaitEvents() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.waits++
}

func (w *Window) ShouldClose() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.closed
}

func (w *Window) RequestClose() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.closed = true
}

func (w *Window) FramebufferSize() (uint32, uint32) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.width, w.height
}

func (w *Window) SetSize(width, height uint32) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.width = width
	w.height = height
	w.sizes = append(w.sizes, metadata.Extent2D{Width: width, Height: height})
}

// Polls returns how many times PollEvents was called.
func (w *Window) Polls() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.polls
}

// Shaders is a renderer.ShaderProvider creating one module per path.
type Shaders struct {
	backend *Backend
	modules map[string]metadata.Handle
	// Missing paths fail with core.ErrShaderNotFound.
	Missing map[string]bool
	loads   int
}

var _ renderer.ShaderProvider = (*Shaders)(nil)

func NewShaders(backend *Backend) *Shaders {
	return &Shaders{backend: backend, modules: make(map[string]metadata.Handle), Missing: make(map[string]bool)}
}

func (s *Shaders) LoadShader(path string, stage metadata.ShaderStage) (metadata.Handle, error) {
	if s.Missing[path] {
		return metadata.NullHandle, fmt.Errorf("%s: %w", path, core.ErrShaderNotFound)
	}
	if h, ok := s.modules[path]; ok {
		return h, nil
	}
	h, err := s.backend.CreateShaderModule(path, []uint32{0x07230203})
	if err != nil {
		return metadata.NullHandle, err
	}
	s.modules[path] = h
	s.loads++
	return h, nil
}

// Release destroys every loaded module.
func (s *Shaders) Release() {
	for p, h := range s.modules {
		s.backend.DestroyShaderModule(h)
		delete(s.modules, p)
	}
}

func (s *Shaders) Loads() int { return s.loads }
