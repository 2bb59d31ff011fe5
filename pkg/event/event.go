package event

// Type discriminates the modality that produced an event.
type Type string

// Modality tags used in the session event log.
const (
	TypeKeyboard Type = "keyboard"
	TypeMouse    Type = "mouse"
	TypeScreen   Type = "screen"
	TypeAudio    Type = "audio"
)

// Event is one modality-tagged record destined for a session's event log.
// The log writer stamps the timestamp at append time; Fields carry the
// modality-specific payload and are flattened into the serialized record.
type Event struct {
	Type   Type
	Fields map[string]any
}

// Sink receives events emitted by recorders. Implementations must be safe
// for concurrent use; every active recorder calls the sink from its own
// capture goroutine.
type Sink func(Event)

// KeyPress builds a keyboard press event for the given normalized key name.
func KeyPress(key string) Event {
	return Event{Type: TypeKeyboard, Fields: map[string]any{"key": key, "action": "press"}}
}

// KeyRelease builds a keyboard release event for the given normalized key name.
func KeyRelease(key string) Event {
	return Event{Type: TypeKeyboard, Fields: map[string]any{"key": key, "action": "release"}}
}

// PointerMove builds a pointer movement event.
func PointerMove(x, y int) Event {
	return Event{Type: TypeMouse, Fields: map[string]any{"x": x, "y": y, "action": "move"}}
}

// PointerButton builds a pointer press or release event for a named button.
func PointerButton(x, y int, button string, pressed bool) Event {
	action := "release"
	if pressed {
		action = "press"
	}
	return Event{Type: TypeMouse, Fields: map[string]any{"x": x, "y": y, "button": button, "action": action}}
}

// PointerScroll builds a pointer scroll event with the wheel deltas.
func PointerScroll(x, y, dx, dy int) Event {
	return Event{Type: TypeMouse, Fields: map[string]any{"x": x, "y": y, "dx": dx, "dy": dy, "action": "scroll"}}
}

// ScreenComplete summarises a finished screen capture run.
func ScreenComplete(frames int, durationSeconds, achievedFPS float64) Event {
	return Event{Type: TypeScreen, Fields: map[string]any{
		"action":   "recording_complete",
		"frames":   frames,
		"duration": durationSeconds,
		"fps":      achievedFPS,
	}}
}

// AudioComplete summarises a finished audio capture run.
func AudioComplete(durationSeconds float64, sizeBytes int64, sampleRate, channels int) Event {
	return Event{Type: TypeAudio, Fields: map[string]any{
		"action":           "recording_stopped",
		"duration_seconds": durationSeconds,
		"file_size_bytes":  sizeBytes,
		"sample_rate":      sampleRate,
		"channels":         channels,
	}}
}
