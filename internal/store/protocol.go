package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// ErrRoomNotFound is returned by Dial when the server has no such room.
var ErrRoomNotFound = errors.New("store: room does not exist")

// Op names a wire frame.
type Op string

const (
	OpPut                Op = "put"
	OpGet                Op = "get"
	OpDelete             Op = "delete"
	OpSubscribe          Op = "subscribe"
	OpUnsubscribe        Op = "unsubscribe"
	OpOnDisconnect       Op = "onDisconnect"
	OpCancelOnDisconnect Op = "cancelOnDisconnect"
	OpBye                Op = "bye"
	OpHello              Op = "hello"
	OpReply              Op = "reply"
	OpChange             Op = "change"
)

// Hello is the first frame the server sends on a new socket. It tells the
// client which participant the socket writes as.
type Hello struct {
	ConnID        string `json:"connId"`
	RoomID        string `json:"roomId"`
	ParticipantID string `json:"participantId"`
	DisplayName   string `json:"displayName"`
	Color         string `json:"color"`
}

// Frame is the JSON message exchanged on /ws/rooms/:roomId. Requests carry
// an ID the reply echoes; subscriptions are keyed by the subscribe request ID.
type Frame struct {
	ID             uint64            `json:"id,omitempty"`
	Op             Op                `json:"op"`
	Path           string            `json:"path,omitempty"`
	Value          json.RawMessage   `json:"value,omitempty"`
	TimestampField string            `json:"timestampField,omitempty"`
	TTLMs          int64             `json:"ttlMs,omitempty"`
	TombstoneMs    int64             `json:"tombstoneMs,omitempty"`
	Action         *DisconnectAction `json:"action,omitempty"`
	Sub            uint64            `json:"sub,omitempty"`
	Change         *Change           `json:"change,omitempty"`
	OK             bool              `json:"ok,omitempty"`
	Error          string            `json:"error,omitempty"`
	Code           string            `json:"code,omitempty"`
	Timestamp      int64             `json:"timestamp,omitempty"`
}

// PutOptions extracts the options carried by a put frame.
func (f Frame) PutOptions() []PutOption {
	return PutOptions{
		TimestampField: f.TimestampField,
		TTL:            time.Duration(f.TTLMs) * time.Millisecond,
	}.Options()
}

func (f Frame) DeleteOptions() []DeleteOption {
	return DeleteOptions{Tombstone: time.Duration(f.TombstoneMs) * time.Millisecond}.Options()
}

const (
	codePermissionDenied = "permission_denied"
	codeTombstoned       = "tombstoned"
	codeInvalidPath      = "invalid_path"
	codeInvalidValue     = "invalid_value"
	codeNotFound         = "not_found"
	codeClosed           = "closed"
	codeInternal         = "internal"
)

var codeErrors = map[string]error{
	codePermissionDenied: ErrPermissionDenied,
	codeTombstoned:       ErrTombstoned,
	codeInvalidPath:      ErrInvalidPath,
	codeInvalidValue:     ErrInvalidValue,
	codeNotFound:         ErrNotFound,
	codeClosed:           ErrClosed,
}

// ReplyTo builds the reply frame for request id.
func ReplyTo(id uint64, err error) Frame {
	f := Frame{ID: id, Op: OpReply, OK: err == nil}
	if err != nil {
		f.Error = err.Error()
		f.Code = errorCode(err)
	}
	return f
}

func errorCode(err error) string {
	for code, sentinel := range codeErrors {
		if errors.Is(err, sentinel) {
			return code
		}
	}
	return codeInternal
}

// Err converts a failed reply back into an error matching the sentinels.
func (f Frame) Err() error {
	if f.OK {
		return nil
	}
	if sentinel, ok := codeErrors[f.Code]; ok {
		return fmt.Errorf("%w (%s)", sentinel, f.Error)
	}
	return fmt.Errorf("store: remote error: %s", f.Error)
}
