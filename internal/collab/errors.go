package collab

import (
	"errors"

	"github.com/TURahim/collab-canvas-sub001/internal/model"
)

var (
	ErrClosed          = errors.New("collab: session closed")
	ErrObjectNotFound  = errors.New("collab: object not found")
	ErrObjectDeleted   = errors.New("collab: object was deleted")
	ErrInvalidID       = errors.New("collab: invalid id")
	ErrDragNotActive   = errors.New("collab: no active drag for object")
	ErrMalformedRecord = model.ErrMalformedRecord
)
