package glitch

// EventKind is an event tag that should be used to differentiate between different event types.
// See Event docs for more info.
type EventKind int

const (
	// EventUnknown is a sentinel value.
	// You should never receive an event of this kind.
	EventUnknown EventKind = iota

	// EventTick is emitted every time the modulation clock fires.
	// All random character decisions (tape bends, direction, tape stops,
	// source mode rolls) are made right before this event is delivered.
	//
	// This event is channel-independent, its Channel is -1.
	//
	// Use Event.TickEventData to get the event data.
	EventTick

	// EventModeChange is emitted when a channel switches its source mode.
	//
	// Use Event.ModeEventData to get the event data.
	EventModeChange
)

// Event holds a single Engine event data.
// This object is an argument to the Engine.SetEventHandler function.
//
// Events are delivered synchronously from Engine.Process,
// on the audio thread. A handler must not block.
type Event struct {
	Kind EventKind

	// Channel is an audio channel index.
	// It's -1 for channel-independent events.
	Channel int

	// Time is the event offset in seconds since the last reset.
	// The offset is sample-accurate.
	Time float64

	value uint64
}

// TickEventData returns the event data if e.Kind=EventTick.
// The return value is a zero-based tick counter since the last reset.
func (e Event) TickEventData() (index int) {
	return int(e.value)
}

// ModeEventData returns the event data if e.Kind=EventModeChange.
// The return values are: the previous and the new source modes.
func (e Event) ModeEventData() (prev, mode SourceMode) {
	return SourceMode(e.value >> 8), SourceMode(e.value & 0xff)
}
