package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/TURahim/collab-canvas-sub001/internal/mailbox"
)

// ErrConnectionLost is returned for requests in flight when the socket dies.
var ErrConnectionLost = errors.New("store: connection lost")

const (
	writeWait        = 5 * time.Second
	handshakeTimeout = 10 * time.Second
)

// Client is a Store that talks to the sync server over a websocket. The
// server binds the socket to one room and one participant; a socket that ends
// without Close triggers the registered on-disconnect actions.
type Client struct {
	conn   *websocket.Conn
	logger *zap.Logger
	hello  Hello

	writeMu sync.Mutex

	mu      sync.Mutex
	nextID  uint64
	pending map[uint64]chan Frame
	subs    map[uint64]*mailbox.Mailbox[Change]
	closed  bool
	err     error

	done chan struct{}
}

// Dial connects to a room endpoint such as ws://host/ws/rooms/r1?token=...
func Dial(ctx context.Context, url string, header http.Header, logger *zap.Logger) (*Client, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	dialer := websocket.Dialer{HandshakeTimeout: handshakeTimeout}
	conn, resp, err := dialer.DialContext(ctx, url, header)
	if err != nil {
		if resp != nil {
			switch resp.StatusCode {
			case http.StatusNotFound:
				return nil, ErrRoomNotFound
			case http.StatusUnauthorized, http.StatusForbidden:
				return nil, ErrPermissionDenied
			}
		}
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}

	hello, err := readHello(conn)
	if err != nil {
		conn.Close()
		return nil, err
	}

	c := &Client{
		conn:    conn,
		hello:   hello,
		logger:  logger.Named("ws-store"),
		pending: make(map[uint64]chan Frame),
		subs:    make(map[uint64]*mailbox.Mailbox[Change]),
		done:    make(chan struct{}),
	}
	go c.readLoop()
	return c, nil
}

func readHello(conn *websocket.Conn) (Hello, error) {
	_ = conn.SetReadDeadline(time.Now().Add(handshakeTimeout))
	defer conn.SetReadDeadline(time.Time{})

	var f Frame
	if err := conn.ReadJSON(&f); err != nil {
		return Hello{}, fmt.Errorf("%w: waiting for hello: %v", ErrConnectionLost, err)
	}
	if f.Op == OpReply {
		if err := f.Err(); err != nil {
			return Hello{}, err
		}
	}
	if f.Op != OpHello {
		return Hello{}, fmt.Errorf("store: expected hello, got %q", f.Op)
	}
	var h Hello
	if err := json.Unmarshal(f.Value, &h); err != nil {
		return Hello{}, fmt.Errorf("store: bad hello: %w", err)
	}
	return h, nil
}

// Hello returns the identity the server bound this socket to.
func (c *Client) Hello() Hello {
	return c.hello
}

// Done is closed when the connection ends for any reason.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// Err returns why the connection ended, nil after a clean Close.
func (c *Client) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

func (c *Client) Put(ctx context.Context, path string, value json.RawMessage, opts ...PutOption) (int64, error) {
	o := ResolvePut(opts...)
	reply, err := c.request(ctx, Frame{
		Op:             OpPut,
		Path:           path,
		Value:          value,
		TimestampField: o.TimestampField,
		TTLMs:          o.TTL.Milliseconds(),
	})
	if err != nil {
		return 0, err
	}
	return reply.Timestamp, nil
}

func (c *Client) Get(ctx context.Context, path string) (json.RawMessage, error) {
	reply, err := c.request(ctx, Frame{Op: OpGet, Path: path})
	if err != nil {
		return nil, err
	}
	return reply.Value, nil
}

func (c *Client) Delete(ctx context.Context, path string, opts ...DeleteOption) error {
	o := ResolveDelete(opts...)
	_, err := c.request(ctx, Frame{Op: OpDelete, Path: path, TombstoneMs: o.Tombstone.Milliseconds()})
	return err
}

func (c *Client) Subscribe(ctx context.Context, prefix string) (*Subscription, error) {
	id := c.allocID()
	box := mailbox.New[Change]()

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		box.Close()
		return nil, ErrClosed
	}
	// registered before the request so no change can race ahead of it
	c.subs[id] = box
	c.mu.Unlock()

	if _, err := c.requestWithID(ctx, id, Frame{Op: OpSubscribe, Path: prefix}); err != nil {
		c.dropSub(id)
		return nil, err
	}

	return NewSubscription(box.C(), func() {
		if c.dropSub(id) {
			c.send(Frame{Op: OpUnsubscribe, Sub: id})
		}
	}), nil
}

func (c *Client) OnDisconnect(ctx context.Context, path string, action DisconnectAction) error {
	_, err := c.request(ctx, Frame{Op: OpOnDisconnect, Path: path, Action: &action})
	return err
}

func (c *Client) CancelOnDisconnect(ctx context.Context, path string) error {
	_, err := c.request(ctx, Frame{Op: OpCancelOnDisconnect, Path: path})
	return err
}

// Close says goodbye so the server discards on-disconnect actions, then
// closes the socket.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()

	c.send(Frame{Op: OpBye})

	c.writeMu.Lock()
	_ = c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"),
		time.Now().Add(writeWait))
	c.writeMu.Unlock()

	c.shutdown(nil)
	return c.conn.Close()
}

func (c *Client) allocID() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nextID++
	return c.nextID
}

func (c *Client) request(ctx context.Context, f Frame) (Frame, error) {
	return c.requestWithID(ctx, c.allocID(), f)
}

func (c *Client) requestWithID(ctx context.Context, id uint64, f Frame) (Frame, error) {
	f.ID = id
	ch := make(chan Frame, 1)

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return Frame{}, ErrClosed
	}
	c.pending[id] = ch
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
	}()

	if err := c.send(f); err != nil {
		return Frame{}, err
	}

	select {
	case reply := <-ch:
		if err := reply.Err(); err != nil {
			return Frame{}, err
		}
		return reply, nil
	case <-ctx.Done():
		return Frame{}, ctx.Err()
	case <-c.done:
		if c.Err() == nil {
			return Frame{}, ErrClosed
		}
		return Frame{}, ErrConnectionLost
	}
}

func (c *Client) send(f Frame) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := c.conn.WriteJSON(f); err != nil {
		return fmt.Errorf("%w: %v", ErrConnectionLost, err)
	}
	return nil
}

func (c *Client) readLoop() {
	for {
		var f Frame
		if err := c.conn.ReadJSON(&f); err != nil {
			c.shutdown(err)
			return
		}

		switch f.Op {
		case OpReply:
			c.mu.Lock()
			ch := c.pending[f.ID]
			c.mu.Unlock()
			if ch != nil {
				ch <- f
			}
		case OpChange:
			if f.Change == nil {
				continue
			}
			c.mu.Lock()
			box := c.subs[f.Sub]
			c.mu.Unlock()
			if box != nil {
				box.Push(*f.Change)
			}
		default:
			c.logger.Debug("unexpected frame", zap.String("op", string(f.Op)))
		}
	}
}

func (c *Client) dropSub(id uint64) bool {
	c.mu.Lock()
	box, ok := c.subs[id]
	delete(c.subs, id)
	c.mu.Unlock()
	if ok {
		box.Close()
	}
	return ok
}

func (c *Client) shutdown(err error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	if err != nil && !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
		c.err = err
	}
	subs := c.subs
	c.subs = make(map[uint64]*mailbox.Mailbox[Change])
	c.mu.Unlock()

	for _, box := range subs {
		box.Close()
	}
	close(c.done)

	if err != nil {
		c.logger.Debug("connection ended", zap.Error(err))
	}
}
