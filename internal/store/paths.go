package store

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/TURahim/collab-canvas-sub001/internal/model"
)

const roomsRoot = "/rooms/"

var segmentPattern = regexp.MustCompile(`^[A-Za-z0-9_.:-]{1,128}$`)

// Path is a parsed record path /rooms/{room}/{kind}/{id}.
type Path struct {
	Room string
	Kind model.Kind
	ID   string
}

func (p Path) String() string {
	return roomsRoot + p.Room + "/" + p.Kind.String() + "/" + p.ID
}

func RoomPrefix(roomID string) string {
	return roomsRoot + roomID + "/"
}

func CollectionPrefix(roomID string, kind model.Kind) string {
	return roomsRoot + roomID + "/" + kind.String() + "/"
}

func PresencePath(roomID, participantID string) string {
	return Path{Room: roomID, Kind: model.KindPresence, ID: participantID}.String()
}

func CursorPath(roomID, participantID string) string {
	return Path{Room: roomID, Kind: model.KindCursors, ID: participantID}.String()
}

func ObjectPath(roomID, objectID string) string {
	return Path{Room: roomID, Kind: model.KindObjects, ID: objectID}.String()
}

func DraggingPath(roomID, objectID string) string {
	return Path{Room: roomID, Kind: model.KindDragging, ID: objectID}.String()
}

// ValidID reports whether s can be used as a room, participant or object id.
func ValidID(s string) bool {
	return segmentPattern.MatchString(s)
}

// ParsePath validates a full record path.
func ParsePath(p string) (Path, error) {
	if !strings.HasPrefix(p, roomsRoot) {
		return Path{}, fmt.Errorf("%w: %q", ErrInvalidPath, p)
	}
	parts := strings.Split(strings.TrimPrefix(p, roomsRoot), "/")
	if len(parts) != 3 {
		return Path{}, fmt.Errorf("%w: %q", ErrInvalidPath, p)
	}
	kind := model.Kind(parts[1])
	if !ValidID(parts[0]) || !kind.Valid() || !ValidID(parts[2]) {
		return Path{}, fmt.Errorf("%w: %q", ErrInvalidPath, p)
	}
	return Path{Room: parts[0], Kind: kind, ID: parts[2]}, nil
}

// ValidatePrefix accepts "/rooms/", a room prefix or a collection prefix.
func ValidatePrefix(prefix string) error {
	if prefix == roomsRoot {
		return nil
	}
	if !strings.HasPrefix(prefix, roomsRoot) || !strings.HasSuffix(prefix, "/") {
		return fmt.Errorf("%w: prefix %q", ErrInvalidPath, prefix)
	}
	parts := strings.Split(strings.TrimSuffix(strings.TrimPrefix(prefix, roomsRoot), "/"), "/")
	switch len(parts) {
	case 1:
		if ValidID(parts[0]) {
			return nil
		}
	case 2:
		if ValidID(parts[0]) && model.Kind(parts[1]).Valid() {
			return nil
		}
	}
	return fmt.Errorf("%w: prefix %q", ErrInvalidPath, prefix)
}
