package engine

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/spaghettifunk/deferred/engine/assets/loaders"
	"github.com/spaghettifunk/deferred/engine/core"
	"github.com/spaghettifunk/deferred/engine/renderer"
	"github.com/spaghettifunk/deferred/engine/renderer/metadata"
	"github.com/spaghettifunk/deferred/engine/renderer/passes"
	"github.com/spaghettifunk/deferred/engine/scene"
	"github.com/spaghettifunk/deferred/engine/systems"
)

type Stage uint8

const (
	// Engine is in an uninitialized state
	EngineStageUninitialized Stage = iota
	// Global resources exist, frames can be drawn once a scene is loaded
	EngineStageReady
	// Engine is inside Run
	EngineStageRunning
	// Size dependent resources are being rebuilt
	EngineStageResizing
	// Engine is in the process of shutting down
	EngineStageShuttingDown
	// Everything was released
	EngineStageTerminated
)

func (s Stage) String() string {
	switch s {
	case EngineStageUninitialized:
		return "uninitialized"
	case EngineStageReady:
		return "ready"
	case EngineStageRunning:
		return "running"
	case EngineStageResizing:
		return "resizing"
	case EngineStageShuttingDown:
		return "shutting down"
	case EngineStageTerminated:
		return "terminated"
	}
	return "unknown"
}

// Platform groups the collaborators the engine drives but does not own.
type Platform struct {
	Window  renderer.Window
	Surface renderer.Surface
	Backend renderer.RendererBackend
	Bus     *core.EventBus
	Input   *core.Input
}

/**
 * @brief The frame orchestrator. It owns the frame slots, the shared render
 * targets and the pass chain, and drives acquire, submit and present.
 */
type Engine struct {
	config *Config
	stage  Stage

	window  renderer.Window
	surface renderer.Surface
	backend renderer.RendererBackend
	bus     *core.EventBus
	input   *core.Input

	clock   *core.Clock
	metrics *core.Metrics

	builder *renderer.ResourceBuilder
	systems *systems.SystemManager
	runtime *renderer.Runtime

	frames []frameSync
	// the fence of the slot that last rendered each swapchain image
	imagesInFlight []metadata.Handle
	currentFrame   uint32
	frameNumber    uint64

	scene       *scene.Scene
	deferred    *passes.DeferredPass
	ssao        *passes.SSAOPass
	blur        *passes.BlurPass
	composition *passes.CompositionPass
	shadow      *passes.ShadowPass
	// chain is recorded and submitted every frame, in order
	chain []passes.RenderPass
	all   []passes.RenderPass

	running          atomic.Bool
	resizeRequested  bool
	captureRequested bool
	pendingMu        sync.Mutex
	pendingAssets    []string
}

func New(config *Config, p Platform) (*Engine, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if p.Window == nil || p.Surface == nil || p.Backend == nil {
		return nil, fmt.Errorf("engine requires a window, a surface and a backend")
	}
	if p.Bus == nil {
		p.Bus = core.NewEventBus()
	}
	if p.Input == nil {
		p.Input = core.NewInput(p.Bus)
	}
	core.SetLogLevel(config.Log.Level)

	return &Engine{
		config:  config,
		stage:   EngineStageUninitialized,
		window:  p.Window,
		surface: p.Surface,
		backend: p.Backend,
		bus:     p.Bus,
		input:   p.Input,
		clock:   core.NewClock(),
		metrics: core.NewMetrics(),
		builder: renderer.NewResourceBuilder(p.Backend),
	}, nil
}

func (e *Engine) Stage() Stage { return e.stage }

func (e *Engine) Scene() *scene.Scene { return e.scene }

func (e *Engine) Runtime() *renderer.Runtime { return e.runtime }

func (e *Engine) Systems() *systems.SystemManager { return e.systems }

// CurrentFrame is the frame slot the next frame renders with.
func (e *Engine) CurrentFrame() uint32 { return e.currentFrame }

// Passes returns every pass, the ones outside the frame chain included.
func (e *Engine) Passes() []passes.RenderPass { return e.all }

func (e *Engine) Deferred() *passes.DeferredPass { return e.deferred }
func (e *Engine) Shadow() *passes.ShadowPass     { return e.shadow }

func (e *Engine) requireStage(op string, stages ...Stage) error {
	for _, s := range stages {
		if e.stage == s {
			return nil
		}
	}
	return fmt.Errorf("%s in stage `%s`: %w", op, e.stage, core.ErrEngineStage)
}

// Initialize creates the systems, the frame slots, the global buffers,
// the global sampler and the attachments.
func (e *Engine) Initialize() error {
	if err := e.requireStage("initialize", EngineStageUninitialized); err != nil {
		return err
	}

	sm, err := systems.NewSystemManager(&systems.SystemManagerConfig{
		ShaderDir:   e.config.Assets.ShaderDir,
		WatchAssets: e.config.Assets.Watch,
		WorkerCount: e.config.Assets.Workers,
	}, e.builder, e.bus)
	if err != nil {
		return err
	}
	e.systems = sm

	rt, err := renderer.NewRuntime(e.builder, sm.Shaders(), e.config.Renderer.FramesInFlight, e.config.Renderer.SSAOSeed)
	if err != nil {
		e.releaseAll()
		return err
	}
	e.runtime = rt
	if err := rt.CreateGlobalBuffers(); err != nil {
		e.releaseAll()
		return err
	}
	if err := e.createSizeDependent(); err != nil {
		e.releaseAll()
		return err
	}

	e.bus.Register(core.EVENT_CODE_APPLICATION_QUIT, e, e.onQuit)
	e.bus.Register(core.EVENT_CODE_KEY_PRESSED, e, e.onKey)
	e.bus.Register(core.EVENT_CODE_RESIZED, e, e.onResized)
	e.bus.Register(core.EVENT_CODE_ASSET_CHANGED, e, e.onAssetChanged)

	e.stage = EngineStageReady
	core.LogInfo("engine initialized with %d frames in flight", e.config.Renderer.FramesInFlight)
	return nil
}

// createSizeDependent creates, in order, the sync objects, the global
// sampler and the attachments at the current surface extent.
func (e *Engine) createSizeDependent() error {
	frames, err := createSyncObjects(e.backend, e.runtime.FramesInFlight())
	if err != nil {
		return err
	}
	e.frames = frames
	e.imagesInFlight = make([]metadata.Handle, e.surface.ImageCount())

	sampler, err := e.backend.CreateSampler(metadata.SamplerConfig{
		Name:        "gbuffer",
		MagFilter:   metadata.FILTER_NEAREST,
		MinFilter:   metadata.FILTER_NEAREST,
		AddressMode: metadata.ADDRESS_MODE_CLAMP_TO_EDGE,
		BorderColor: metadata.BORDER_COLOR_FLOAT_OPAQUE_WHITE,
		MaxLod:      1,
	})
	if err != nil {
		return core.NewGPUError("", "global sampler", err)
	}
	e.runtime.SetSampler(sampler)

	extent := e.surface.Extent()
	images := e.surface.Images()
	blocks := make([]*renderer.ImageBlock, len(images))
	for i, h := range images {
		blocks[i] = renderer.WrapExternalImage(fmt.Sprintf("swapchain_%d", i), h, e.surface.Format(), extent)
	}
	e.runtime.SetSwapchain(blocks, e.surface.Format())

	att, err := renderer.CreateAttachments(e.builder, extent, e.backend.DepthFormat())
	if err != nil {
		return err
	}
	e.runtime.SetAttachments(att)
	core.LogDebug("created attachments at %dx%d", extent.Width, extent.Height)
	return nil
}

// destroySizeDependent releases what createSizeDependent created, passes
// first. The device must be idle.
func (e *Engine) destroySizeDependent() {
	e.destroyRenderPasses()
	if e.runtime != nil {
		if att := e.runtime.Attachments(); att != nil {
			att.Release()
			e.runtime.SetAttachments(nil)
		}
		if s := e.runtime.Sampler(); !s.IsNull() {
			e.backend.DestroySampler(s)
			e.runtime.SetSampler(metadata.NullHandle)
		}
		e.runtime.SetSwapchain(nil, e.surface.Format())
	}
	destroySyncObjects(e.backend, e.frames)
	e.frames = nil
	e.imagesInFlight = nil
}

// createRenderPasses builds every pass and registers the scene entities
// with each of them.
func (e *Engine) createRenderPasses() error {
	e.deferred = passes.NewDeferredPass(e.runtime)
	e.ssao = passes.NewSSAOPass(e.runtime)
	e.blur = passes.NewBlurPass(e.runtime)
	e.composition = passes.NewCompositionPass(e.runtime)
	e.shadow = passes.NewShadowPass(e.runtime)
	e.chain = []passes.RenderPass{e.deferred, e.ssao, e.blur, e.composition}
	// the shadow map is rendered by nobody yet; composition does not sample it
	e.all = []passes.RenderPass{e.deferred, e.ssao, e.blur, e.composition, e.shadow}

	for _, p := range e.Passes() {
		if err := p.Initialize(); err != nil {
			e.destroyRenderPasses()
			return err
		}
	}
	e.registerEntities()
	return nil
}

func (e *Engine) registerEntities() {
	if e.scene == nil {
		return
	}
	for _, entity := range e.scene.Entities {
		if int(entity.Offset) >= renderer.MaxObjects {
			continue
		}
		for _, p := range e.Passes() {
			p.AddEntityToDraw(entity)
		}
	}
}

func (e *Engine) destroyRenderPasses() {
	ps := e.Passes()
	for i := len(ps) - 1; i >= 0; i-- {
		ps[i].Shutdown()
	}
	e.deferred, e.ssao, e.blur, e.composition, e.shadow = nil, nil, nil, nil, nil
	e.chain = nil
	e.all = nil
}

// LoadScene parses the scene file and makes it the rendered scene.
func (e *Engine) LoadScene(path string) error {
	s, err := scene.Load(path)
	if err != nil {
		return err
	}
	return e.UseScene(s)
}

/**
 * @brief Replaces the rendered scene. Meshes are parsed in parallel and
 * uploaded, the window is resized to the camera and every size dependent
 * resource is rebuilt with the new entities registered.
 */
func (e *Engine) UseScene(s *scene.Scene) error {
	if err := e.requireStage("load scene", EngineStageReady); err != nil {
		return err
	}
	if s == nil || s.Camera == nil {
		return fmt.Errorf("scene without camera: %w", core.ErrSceneInvalid)
	}
	if err := e.systems.PreloadMeshes(s.MeshPaths()); err != nil {
		return err
	}
	if err := s.ResolveMeshes(e.systems.Meshes()); err != nil {
		return err
	}
	warnDroppedObjects(s)
	e.scene = s

	width, height := s.Camera.Width(), s.Camera.Height()
	if width > 0 && height > 0 {
		e.window.SetSize(width, height)
	}
	if err := e.rebuild(true); err != nil {
		return err
	}
	core.LogInfo("scene %s loaded: %d entities, %d lights", s.Path, len(s.Entities), len(s.Lights))
	return nil
}

/**
 * @brief Tears down and recreates every size dependent resource. With
 * resizeSurface the surface is rebuilt at the window's framebuffer size
 * first.
 */
func (e *Engine) rebuild(resizeSurface bool) error {
	previous := e.stage
	e.stage = EngineStageResizing
	defer func() {
		if e.stage == EngineStageResizing {
			e.stage = previous
		}
	}()

	if err := e.backend.WaitIdle(); err != nil {
		return err
	}
	e.destroySizeDependent()

	if resizeSurface {
		width, height := e.window.FramebufferSize()
		// a minimized window has no surface to render to
		for width == 0 || height == 0 {
			if e.window.ShouldClose() {
				return nil
			}
			e.window.WaitEvents()
			width, height = e.window.FramebufferSize()
		}
		if err := e.surface.Resize(width, height); err != nil {
			return err
		}
		if e.scene != nil {
			e.scene.Camera.SetSize(width, height)
		}
		core.LogDebug("surface resized to %dx%d", width, height)
	}

	if err := e.createSizeDependent(); err != nil {
		return err
	}
	if e.scene != nil {
		if err := e.createRenderPasses(); err != nil {
			return err
		}
	}
	e.currentFrame = 0
	e.resizeRequested = false
	return nil
}

// Run draws frames until the window closes or Stop is called.
func (e *Engine) Run() error {
	if err := e.requireStage("run", EngineStageReady); err != nil {
		return err
	}
	if e.scene == nil {
		return fmt.Errorf("run without a scene: %w", core.ErrEngineStage)
	}
	e.stage = EngineStageRunning
	defer func() {
		if e.stage == EngineStageRunning {
			e.stage = EngineStageReady
		}
	}()

	e.running.Store(true)
	e.clock.Start()
	for e.running.Load() && !e.window.ShouldClose() {
		frameStart := time.Now()
		if err := e.applyAssetChanges(); err != nil {
			return err
		}
		if err := e.DrawFrame(); err != nil {
			core.LogError("frame %d failed: %s", e.frameNumber, err.Error())
			return err
		}
		e.input.Update()
		e.window.PollEvents()

		if e.metrics.Update(time.Since(frameStart).Seconds()) {
			fps, ms := e.metrics.Frame()
			core.LogDebug("%.0f fps, %.3f ms/frame", fps, ms)
		}
	}
	e.running.Store(false)
	e.clock.Update()
	e.clock.Stop()
	return nil
}

// Stop makes Run return after the current frame. It is safe to call from
// any goroutine.
func (e *Engine) Stop() {
	e.running.Store(false)
	e.window.RequestClose()
}

/**
 * @brief Draws one frame: acquire, fence wait, uniform update, record,
 * submit and present. A stale surface triggers a full rebuild and the frame
 * is dropped.
 */
func (e *Engine) DrawFrame() error {
	if e.scene == nil || len(e.chain) == 0 || len(e.frames) == 0 {
		return fmt.Errorf("draw without render passes: %w", core.ErrEngineStage)
	}
	slot := e.currentFrame
	fs := e.frames[slot]

	timeout := e.config.FenceTimeoutDuration()
	imageIndex, status, err := e.surface.AcquireNextImage(fs.imageAvailable, timeout)
	if status == metadata.SURFACE_STATUS_OUT_OF_DATE || errors.Is(err, core.ErrSurfaceStale) {
		core.LogDebug("surface out of date on acquire, rebuilding")
		return e.rebuild(true)
	}
	if err != nil {
		return fmt.Errorf("failed to acquire swapchain image: %w", err)
	}

	if err := e.backend.WaitForFence(fs.inFlight, timeout); err != nil {
		return fmt.Errorf("frame slot %d: %w", slot, err)
	}
	// the image may still be rendered by another slot
	if int(imageIndex) >= len(e.imagesInFlight) {
		return fmt.Errorf("acquired image %d of %d", imageIndex, len(e.imagesInFlight))
	}
	if other := e.imagesInFlight[imageIndex]; !other.IsNull() && other != fs.inFlight {
		if err := e.backend.WaitForFence(other, timeout); err != nil {
			return fmt.Errorf("image %d: %w", imageIndex, err)
		}
	}
	e.imagesInFlight[imageIndex] = fs.inFlight

	if err := e.updateGlobalBuffers(slot); err != nil {
		return err
	}

	ctx := renderer.FrameContext{Slot: slot, ImageIndex: imageIndex, Number: e.frameNumber}
	cmds := make([]metadata.Handle, 0, len(e.chain))
	for _, p := range e.chain {
		cmd, err := p.Draw(ctx)
		if err != nil {
			return err
		}
		cmds = append(cmds, cmd)
	}

	if err := e.backend.ResetFence(fs.inFlight); err != nil {
		return err
	}
	err = e.backend.Submit(metadata.SubmitInfo{
		CommandBuffers:   cmds,
		WaitSemaphores:   []metadata.Handle{fs.imageAvailable},
		WaitStages:       []metadata.PipelineStage{metadata.PIPELINE_STAGE_COLOR_ATTACHMENT_OUTPUT},
		SignalSemaphores: []metadata.Handle{fs.renderFinished},
		Fence:            fs.inFlight,
	})
	if err != nil {
		return fmt.Errorf("failed to submit frame: %w", err)
	}

	if e.captureRequested {
		e.captureRequested = false
		if err := e.capture(fs.inFlight, imageIndex); err != nil {
			core.LogError("frame capture failed: %s", err.Error())
		}
	}

	presentStatus, err := e.surface.Present(imageIndex, fs.renderFinished)
	if err != nil && !errors.Is(err, core.ErrSurfaceStale) {
		return fmt.Errorf("failed to present image %d: %w", imageIndex, err)
	}
	e.frameNumber++
	e.currentFrame = (e.currentFrame + 1) % uint32(len(e.frames))

	if err != nil || status.NeedsRebuild() || presentStatus.NeedsRebuild() || e.resizeRequested {
		core.LogDebug("surface stale after present, rebuilding")
		return e.rebuild(true)
	}
	return nil
}

// capture waits for the frame and writes the composited image to the
// capture directory.
func (e *Engine) capture(fence metadata.Handle, imageIndex uint32) error {
	if err := e.backend.WaitForFence(fence, e.config.FenceTimeoutDuration()); err != nil {
		return err
	}
	image := e.runtime.SwapchainImages()[imageIndex]
	pixels, err := e.builder.ReadbackImage(image, metadata.IMAGE_LAYOUT_PRESENT_SRC)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(e.config.Capture.Dir, 0o755); err != nil {
		return err
	}
	enc := e.config.CaptureEncoding()
	path := filepath.Join(e.config.Capture.Dir, fmt.Sprintf("frame_%06d.%s", e.frameNumber, enc))
	bgra := image.Format == metadata.FORMAT_B8G8R8A8_UNORM || image.Format == metadata.FORMAT_B8G8R8A8_SRGB
	err = loaders.WriteImageFile(path, enc, &metadata.ImageResourceData{
		Width:  image.Width,
		Height: image.Height,
		Pixels: pixels,
	}, bgra)
	if err != nil {
		return err
	}
	core.LogInfo("captured frame to %s", path)
	return nil
}

// RequestCapture saves the next presented frame.
func (e *Engine) RequestCapture() { e.captureRequested = true }

// applyAssetChanges evicts changed shaders and rebuilds the passes so the
// pipelines pick them up.
func (e *Engine) applyAssetChanges() error {
	e.pendingMu.Lock()
	paths := e.pendingAssets
	e.pendingAssets = nil
	e.pendingMu.Unlock()

	var shaders []string
	for _, p := range paths {
		if strings.HasSuffix(p, ".spv") {
			shaders = append(shaders, p)
		}
	}
	if len(shaders) == 0 {
		return nil
	}
	if err := e.backend.WaitIdle(); err != nil {
		return err
	}
	// passes go first so no pipeline outlives the evicted modules' users
	e.destroyRenderPasses()
	for _, p := range shaders {
		if e.systems.Shaders().Evict(p) {
			core.LogInfo("shader %s changed, reloading", p)
		}
	}
	return e.rebuild(false)
}

// Shutdown waits for the GPU unless the device is lost and releases
// everything the engine created. Calling it again is a no-op.
func (e *Engine) Shutdown() error {
	if e.stage == EngineStageTerminated {
		return nil
	}
	e.stage = EngineStageShuttingDown
	e.running.Store(false)

	var errs []error
	if e.backend.IsDeviceLost() {
		core.LogWarn("device lost, skipping idle wait on shutdown")
	} else if err := e.backend.WaitIdle(); err != nil {
		errs = append(errs, err)
	}
	for _, code := range []core.SystemEventCode{core.EVENT_CODE_APPLICATION_QUIT, core.EVENT_CODE_KEY_PRESSED, core.EVENT_CODE_RESIZED, core.EVENT_CODE_ASSET_CHANGED} {
		e.bus.Unregister(code, e)
	}
	if err := e.releaseAll(); err != nil {
		errs = append(errs, err)
	}
	e.stage = EngineStageTerminated
	core.LogInfo("engine shut down after %d frames in %.1fs", e.frameNumber, e.clock.Elapsed())
	return errors.Join(errs...)
}

func (e *Engine) releaseAll() error {
	e.destroySizeDependent()
	if e.runtime != nil {
		e.runtime.FreeGlobalBuffers()
		e.runtime = nil
	}
	var err error
	if e.systems != nil {
		err = e.systems.Shutdown()
		e.systems = nil
	}
	return err
}

func (e *Engine) onQuit(context core.EventContext) bool {
	core.LogInfo("EVENT_CODE_APPLICATION_QUIT received, shutting down")
	e.Stop()
	return true
}

func (e *Engine) onKey(context core.EventContext) bool {
	ke, ok := context.Data.(*core.KeyEvent)
	if !ok {
		core.LogError("wrong event associated with the event type `%d`", context.Type)
		return false
	}
	switch ke.KeyCode {
	case core.KEY_ESCAPE:
		// other listeners of the quit event get a chance to react
		e.bus.Fire(core.EVENT_CODE_APPLICATION_QUIT, nil)
		return true
	case core.KEY_F12:
		e.RequestCapture()
		return true
	}
	return false
}

func (e *Engine) onResized(context core.EventContext) bool {
	re, ok := context.Data.(*core.ResizeEvent)
	if !ok {
		core.LogError("wrong event associated with the event type `%d`", context.Type)
		return false
	}
	core.LogDebug("window resized to %dx%d", re.Width, re.Height)
	e.resizeRequested = true
	return false
}

func (e *Engine) onAssetChanged(context core.EventContext) bool {
	ae, ok := context.Data.(*core.AssetEvent)
	if !ok {
		core.LogError("wrong event associated with the event type `%d`", context.Type)
		return false
	}
	e.pendingMu.Lock()
	e.pendingAssets = append(e.pendingAssets, ae.Path)
	e.pendingMu.Unlock()
	return false
}
