package platform

import (
	"testing"

	"github.com/go-gl/glfw/v3.3/glfw"
	"github.com/spaghettifunk/deferred/engine/core"
)

func TestTranslateKey(t *testing.T) {
	cases := map[glfw.Key]core.KeyCode{
		glfw.KeyEscape: core.KEY_ESCAPE,
		glfw.KeyF12:    core.KEY_F12,
		glfw.KeyW:      core.KEY_W,
		glfw.KeyZ:      core.KEY_UNKNOWN,
	}
	for key, want := range cases {
		if got := TranslateKey(key); got != want {
			t.Errorf("Expected key %d to map to %d, got %d", key, want, got)
		}
	}
}

func TestKeyCallbackFeedsInput(t *testing.T) {
	bus := core.NewEventBus()
	input := core.NewInput(bus)
	w := &Window{bus: bus, input: input}

	var pressed []core.KeyCode
	bus.Register(core.EVENT_CODE_KEY_PRESSED, t, func(ctx core.EventContext) bool {
		pressed = append(pressed, ctx.Data.(*core.KeyEvent).KeyCode)
		return false
	})

	w.keyCallback(nil, glfw.KeyEscape, 0, glfw.Press, 0)
	w.keyCallback(nil, glfw.KeyEscape, 0, glfw.Repeat, 0)
	w.keyCallback(nil, glfw.KeyZ, 0, glfw.Press, 0)
	if !input.IsKeyDown(core.KEY_ESCAPE) {
		t.Errorf("Expected escape to be down")
	}
	if len(pressed) != 1 || pressed[0] != core.KEY_ESCAPE {
		t.Errorf("Expected a single escape press, got %v", pressed)
	}

	w.keyCallback(nil, glfw.KeyEscape, 0, glfw.Release, 0)
	if input.IsKeyDown(core.KEY_ESCAPE) {
		t.Errorf("Expected escape to be released")
	}
}

func TestFramebufferSizeCallbackFiresResize(t *testing.T) {
	bus := core.NewEventBus()
	w := &Window{bus: bus}

	var got *core.ResizeEvent
	bus.Register(core.EVENT_CODE_RESIZED, t, func(ctx core.EventContext) bool {
		got = ctx.Data.(*core.ResizeEvent)
		return true
	})
	w.framebufferSizeCallback(nil, 640, 480)
	if got == nil || got.Width != 640 || got.Height != 480 {
		t.Errorf("Expected a 640x480 resize event, got %+v", got)
	}
}
