package core

import "sync"

// Key code definitions
type KeyCode uint16

const (
	KEY_UNKNOWN KeyCode = 0x00
	KEY_ENTER   KeyCode = 0x0D
	KEY_ESCAPE  KeyCode = 0x1B
	KEY_SPACE   KeyCode = 0x20
	KEY_LEFT    KeyCode = 0x25
	KEY_UP      KeyCode = 0x26
	KEY_RIGHT   KeyCode = 0x27
	KEY_DOWN    KeyCode = 0x28
	KEY_A       KeyCode = 0x41
	KEY_D       KeyCode = 0x44
	KEY_R       KeyCode = 0x52
	KEY_S       KeyCode = 0x53
	KEY_W       KeyCode = 0x57
	KEY_F1      KeyCode = 0x70
	KEY_F5      KeyCode = 0x74
	KEY_F12     KeyCode = 0x7B

	KEYS_MAX_KEYS KeyCode = 0xFF
)

type keyboardState struct {
	keys [KEYS_MAX_KEYS]bool
}

// Input keeps the current and previous keyboard state and translates
// state changes into key events on the bus.
type Input struct {
	mu       sync.Mutex
	bus      *EventBus
	current  keyboardState
	previous keyboardState
}

func NewInput(bus *EventBus) *Input {
	return &Input{bus: bus}
}

// Update copies the current state into the previous one. Call once per frame.
func (in *Input) Update() {
	in.mu.Lock()
	defer in.mu.Unlock()
	in.previous = in.current
}

func (in *Input) IsKeyDown(key KeyCode) bool {
	in.mu.Lock()
	defer in.mu.Unlock()
	return key < KEYS_MAX_KEYS && in.current.keys[key]
}

func (in *Input) WasKeyDown(key KeyCode) bool {
	in.mu.Lock()
	defer in.mu.Unlock()
	return key < KEYS_MAX_KEYS && in.previous.keys[key]
}

// ProcessKey records a key transition and fires the matching event.
func (in *Input) ProcessKey(key KeyCode, pressed bool) {
	if key >= KEYS_MAX_KEYS {
		return
	}
	in.mu.Lock()
	changed := in.current.keys[key] != pressed
	in.current.keys[key] = pressed
	in.mu.Unlock()

	if !changed || in.bus == nil {
		return
	}
	code := EVENT_CODE_KEY_RELEASED
	if pressed {
		code = EVENT_CODE_KEY_PRESSED
	}
	in.bus.Fire(code, &KeyEvent{KeyCode: key})
}
