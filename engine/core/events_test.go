package core

import "testing"

func TestEventBusStopsAtFirstHandler(t *testing.T) {
	bus := NewEventBus()
	var calls []string

	first, second := "first", "second"
	bus.Register(EVENT_CODE_APPLICATION_QUIT, &first, func(EventContext) bool {
		calls = append(calls, first)
		return true
	})
	bus.Register(EVENT_CODE_APPLICATION_QUIT, &second, func(EventContext) bool {
		calls = append(calls, second)
		return true
	})

	if !bus.Fire(EVENT_CODE_APPLICATION_QUIT, nil) {
		t.Errorf("Expected event to be handled")
	}
	if len(calls) != 1 || calls[0] != "first" {
		t.Errorf("Expected only the first listener to run, got %v", calls)
	}
}

func TestEventBusRejectsDuplicateListener(t *testing.T) {
	bus := NewEventBus()
	listener := new(int)
	fn := func(EventContext) bool { return false }

	if !bus.Register(EVENT_CODE_RESIZED, listener, fn) {
		t.Fatalf("Expected first registration to succeed")
	}
	if bus.Register(EVENT_CODE_RESIZED, listener, fn) {
		t.Errorf("Expected duplicate registration to fail")
	}
	if !bus.Unregister(EVENT_CODE_RESIZED, listener) {
		t.Errorf("Expected unregister to succeed")
	}
	if bus.Fire(EVENT_CODE_RESIZED, &ResizeEvent{Width: 1, Height: 1}) {
		t.Errorf("Expected no listener to handle the event")
	}
}

func TestInputFiresOnTransitionOnly(t *testing.T) {
	bus := NewEventBus()
	in := NewInput(bus)
	pressed := 0
	bus.Register(EVENT_CODE_KEY_PRESSED, in, func(ctx EventContext) bool {
		if ke, ok := ctx.Data.(*KeyEvent); ok && ke.KeyCode == KEY_ESCAPE {
			pressed++
		}
		return true
	})

	in.ProcessKey(KEY_ESCAPE, true)
	in.ProcessKey(KEY_ESCAPE, true)
	if pressed != 1 {
		t.Errorf("Expected 1 press event, got %d", pressed)
	}
	if !in.IsKeyDown(KEY_ESCAPE) {
		t.Errorf("Expected escape to be down")
	}
	in.Update()
	in.ProcessKey(KEY_ESCAPE, false)
	if !in.WasKeyDown(KEY_ESCAPE) || in.IsKeyDown(KEY_ESCAPE) {
		t.Errorf("Expected escape to be released after having been down")
	}
}
