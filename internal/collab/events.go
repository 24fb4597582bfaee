package collab

import "github.com/TURahim/collab-canvas-sub001/internal/model"

// Event is delivered on Session.Events. Only remote-originated changes are
// reported; local edits are already known to the caller.
type Event interface {
	EventName() string
}

// ObjectsChanged carries objects that were added or replaced and ids that
// were removed.
type ObjectsChanged struct {
	Upserted []model.Object
	Removed  []string
}

// CursorsChanged reports one participant's cursor. Cursor is nil when the
// cursor went away.
type CursorsChanged struct {
	ParticipantID string
	Cursor        *model.Cursor
}

// PresenceChanged carries the full participant list after a change.
type PresenceChanged struct {
	Participants []model.Participant
	Joined       []string
	Left         []string
}

// DragMoved is a new display position for an object a peer is dragging.
type DragMoved struct {
	ObjectID      string
	ParticipantID string
	Position      Point
}

type DragEnded struct {
	ObjectID      string
	ParticipantID string
	// Abandoned is set when the drag timed out instead of being ended.
	Abandoned bool
}

// Warning reports a write that was dropped after exhausting its retries.
// Local state is kept; the store may diverge until the next write.
type Warning struct {
	Op   string
	Path string
	Err  error
}

// Disconnected is sent once when the store stops delivering changes. The
// session keeps its last state; open a new session to resume.
type Disconnected struct {
	Err error
}

func (ObjectsChanged) EventName() string  { return "objects_changed" }
func (CursorsChanged) EventName() string  { return "cursors_changed" }
func (PresenceChanged) EventName() string { return "presence_changed" }
func (DragMoved) EventName() string       { return "drag_moved" }
func (DragEnded) EventName() string       { return "drag_ended" }
func (Warning) EventName() string         { return "warning" }
func (Disconnected) EventName() string    { return "disconnected" }
