package model

// Kind names a child collection under /rooms/{roomId}.
type Kind string

const (
	KindPresence Kind = "presence"
	KindCursors  Kind = "cursors"
	KindObjects  Kind = "objects"
	KindDragging Kind = "dragging"
)

func (k Kind) String() string {
	return string(k)
}

// Valid reports whether k is one of the known collections.
func (k Kind) Valid() bool {
	switch k {
	case KindPresence, KindCursors, KindObjects, KindDragging:
		return true
	}
	return false
}

// Server timestamp fields written by the store.
const (
	FieldLastModified  = "lastModified"
	FieldLastHeartbeat = "lastHeartbeat"
	FieldLastUpdate    = "lastUpdate"
)
