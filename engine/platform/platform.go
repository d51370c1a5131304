package platform

import (
	"fmt"
	"runtime"

	"github.com/go-gl/glfw/v3.3/glfw"
	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/deferred/engine/core"
	"github.com/spaghettifunk/deferred/engine/renderer"
)

func init() {
	// GLFW event handling must run on the main OS thread
	runtime.LockOSThread()
}

type WindowConfig struct {
	Title  string
	X      int
	Y      int
	Width  uint32
	Height uint32
}

// Window is a GLFW window without a client API, presenting through Vulkan.
type Window struct {
	handle *glfw.Window
	bus    *core.EventBus
	input  *core.Input
}

var _ renderer.Window = (*Window)(nil)

func NewWindow(config WindowConfig, bus *core.EventBus, input *core.Input) (*Window, error) {
	if err := glfw.Init(); err != nil {
		core.LogError("failed to initialize glfw: %s", err)
		return nil, err
	}
	if !glfw.VulkanSupported() {
		glfw.Terminate()
		return nil, fmt.Errorf("glfw reports no Vulkan loader")
	}

	glfw.WindowHint(glfw.Visible, glfw.False)
	glfw.WindowHint(glfw.Resizable, glfw.True)
	glfw.WindowHint(glfw.ClientAPI, glfw.NoAPI) // Required for Vulkan.

	handle, err := glfw.CreateWindow(int(config.Width), int(config.Height), config.Title, nil, nil)
	if err != nil {
		core.LogError("failed to create window: %s", err)
		glfw.Terminate()
		return nil, err
	}

	w := &Window{
		handle: handle,
		bus:    bus,
		input:  input,
	}
	handle.SetKeyCallback(w.keyCallback)
	handle.SetFramebufferSizeCallback(w.framebufferSizeCallback)
	handle.SetCloseCallback(w.closeCallback)
	if config.X != 0 || config.Y != 0 {
		handle.SetPos(config.X, config.Y)
	}
	handle.Show()

	return w, nil
}

func (w *Window) Destroy() {
	if w.handle != nil {
		w.handle.Destroy()
		w.handle = nil
	}
	glfw.Terminate()
}

func (w *Window) PollEvents() { glfw.PollEvents() }

// WaitEvents blocks until an event arrives, used while minimized.
func (w *Window) WaitEvents() { glfw.WaitEvents() }

func (w *Window) ShouldClose() bool { return w.handle.ShouldClose() }

func (w *Window) RequestClose() { w.handle.SetShouldClose(true) }

func (w *Window) FramebufferSize() (uint32, uint32) {
	width, height := w.handle.GetFramebufferSize()
	return uint32(width), uint32(height)
}

func (w *Window) SetSize(width, height uint32) {
	w.handle.SetSize(int(width), int(height))
}

func (w *Window) RequiredExtensions() []string {
	return w.handle.GetRequiredInstanceExtensions()
}

func (w *Window) CreateSurface(instance vk.Instance) (vk.Surface, error) {
	surface, err := w.handle.CreateWindowSurface(instance, nil)
	if err != nil {
		return vk.NullSurface, fmt.Errorf("vulkan surface creation failed: %w", err)
	}
	return vk.SurfaceFromPointer(surface), nil
}

func (w *Window) keyCallback(_ *glfw.Window, key glfw.Key, _ int, action glfw.Action, _ glfw.ModifierKey) {
	if action == glfw.Repeat || w.input == nil {
		return
	}
	code := TranslateKey(key)
	if code == core.KEY_UNKNOWN {
		return
	}
	w.input.ProcessKey(code, action == glfw.Press)
}

func (w *Window) framebufferSizeCallback(_ *glfw.Window, width, height int) {
	if w.bus == nil {
		return
	}
	w.bus.Fire(core.EVENT_CODE_RESIZED, &core.ResizeEvent{Width: uint32(width), Height: uint32(height)})
}

func (w *Window) closeCallback(_ *glfw.Window) {
	if w.bus != nil {
		w.bus.Fire(core.EVENT_CODE_APPLICATION_QUIT, nil)
	}
}

var keyMap = map[glfw.Key]core.KeyCode{
	glfw.KeyEnter:  core.KEY_ENTER,
	glfw.KeyEscape: core.KEY_ESCAPE,
	glfw.KeySpace:  core.KEY_SPACE,
	glfw.KeyLeft:   core.KEY_LEFT,
	glfw.KeyUp:     core.KEY_UP,
	glfw.KeyRight:  core.KEY_RIGHT,
	glfw.KeyDown:   core.KEY_DOWN,
	glfw.KeyA:      core.KEY_A,
	glfw.KeyD:      core.KEY_D,
	glfw.KeyR:      core.KEY_R,
	glfw.KeyS:      core.KEY_S,
	glfw.KeyW:      core.KEY_W,
	glfw.KeyF1:     core.KEY_F1,
	glfw.KeyF5:     core.KEY_F5,
	glfw.KeyF12:    core.KEY_F12,
}

// TranslateKey maps a GLFW key onto the engine's key codes.
func TranslateKey(key glfw.Key) core.KeyCode {
	if code, ok := keyMap[key]; ok {
		return code
	}
	return core.KEY_UNKNOWN
}
