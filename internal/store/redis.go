package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/TURahim/collab-canvas-sub001/internal/mailbox"
)

const (
	dataNamespace   = "collab:data:"
	tombNamespace   = "collab:tomb:"
	changeNamespace = "collab:chg:"
	clockKey        = "collab:clock"
	tombstonedReply = "TOMBSTONED"
)

// clockScript returns the Redis server time in milliseconds, forced to be
// strictly greater than any value it returned before.
var clockScript = redis.NewScript(`
local t = redis.call('TIME')
local now = tonumber(t[1]) * 1000 + math.floor(tonumber(t[2]) / 1000)
local last = tonumber(redis.call('GET', KEYS[1]) or '0')
if now <= last then now = last + 1 end
redis.call('SET', KEYS[1], now)
return now
`)

// putScript writes the value and publishes the change atomically, so the
// order subscribers see matches the order writes were applied. A stamped
// write older than the stored one is ignored.
var putScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[2]) == 1 then
  return redis.error_reply('TOMBSTONED')
end
local ts = tonumber(ARGV[2])
local existed = redis.call('EXISTS', KEYS[1])
if ts > 0 and existed == 1 then
  local cur = tonumber(redis.call('HGET', KEYS[1], 'ts') or '0')
  if cur >= ts then return 0 end
end
redis.call('HSET', KEYS[1], 'v', ARGV[1], 'ts', ARGV[2])
local ttl = tonumber(ARGV[3])
if ttl > 0 then
  redis.call('PEXPIRE', KEYS[1], ttl)
else
  redis.call('PERSIST', KEYS[1])
end
local kind = 'modified'
if existed == 0 then kind = 'added' end
redis.call('PUBLISH', ARGV[4], cjson.encode({path = ARGV[5], type = kind, value = ARGV[1]}))
return 1
`)

var deleteScript = redis.NewScript(`
local existed = redis.call('DEL', KEYS[1])
local ttl = tonumber(ARGV[1])
if ttl > 0 then
  redis.call('SET', KEYS[2], '1', 'PX', ttl)
end
if existed == 1 then
  redis.call('PUBLISH', ARGV[2], cjson.encode({path = ARGV[3], type = 'removed'}))
end
return existed
`)

// redisChange is the payload published by the scripts. Value travels as a
// JSON string holding the record.
type redisChange struct {
	Path  string     `json:"path"`
	Type  ChangeType `json:"type"`
	Value string     `json:"value,omitempty"`
}

// RedisBackend stores records as hashes and fans changes out over pub/sub.
// Key expiry does not publish a removal; the presence janitor and client
// sweeps cover expired records.
type RedisBackend struct {
	client *redis.Client
	logger *zap.Logger

	mu     sync.Mutex
	subs   map[*redis.PubSub]*mailbox.Mailbox[Change]
	closed bool
}

func NewRedisBackend(client *redis.Client, logger *zap.Logger) *RedisBackend {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisBackend{
		client: client,
		logger: logger.Named("redis-store"),
		subs:   make(map[*redis.PubSub]*mailbox.Mailbox[Change]),
	}
}

func dataKey(path string) string   { return dataNamespace + path }
func tombKey(path string) string   { return tombNamespace + path }
func channelOf(path string) string { return changeNamespace + path }

func (b *RedisBackend) Now(ctx context.Context) (int64, error) {
	ts, err := clockScript.Run(ctx, b.client, []string{clockKey}).Int64()
	if err != nil {
		return 0, fmt.Errorf("redis clock: %w", err)
	}
	return ts, nil
}

func (b *RedisBackend) Put(ctx context.Context, path string, value json.RawMessage, opts ...PutOption) (int64, error) {
	if _, err := ParsePath(path); err != nil {
		return 0, err
	}
	if err := checkValue(value); err != nil {
		return 0, err
	}
	o := ResolvePut(opts...)

	var ts int64
	if o.TimestampField != "" {
		var err error
		if ts, err = b.Now(ctx); err != nil {
			return 0, err
		}
		if value, err = Stamp(value, o.TimestampField, ts); err != nil {
			return 0, err
		}
	}

	applied, err := putScript.Run(ctx, b.client,
		[]string{dataKey(path), tombKey(path)},
		string(value), ts, o.TTL.Milliseconds(), channelOf(path), path,
	).Int()
	if err != nil {
		if strings.Contains(err.Error(), tombstonedReply) {
			return 0, ErrTombstoned
		}
		return 0, fmt.Errorf("redis put %s: %w", path, err)
	}
	if applied == 0 {
		b.logger.Debug("stale write ignored", zap.String("path", path), zap.Int64("ts", ts))
	}
	return ts, nil
}

func (b *RedisBackend) Get(ctx context.Context, path string) (json.RawMessage, error) {
	if _, err := ParsePath(path); err != nil {
		return nil, err
	}
	val, err := b.client.HGet(ctx, dataKey(path), "v").Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis get %s: %w", path, err)
	}
	return json.RawMessage(val), nil
}

func (b *RedisBackend) List(ctx context.Context, prefix string) ([]Entry, error) {
	if err := ValidatePrefix(prefix); err != nil {
		return nil, err
	}

	out := make([]Entry, 0)
	iter := b.client.Scan(ctx, 0, dataKey(prefix)+"*", 200).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()
		val, err := b.client.HGet(ctx, key, "v").Result()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("redis list %s: %w", prefix, err)
		}
		out = append(out, Entry{Path: strings.TrimPrefix(key, dataNamespace), Value: json.RawMessage(val)})
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("redis scan %s: %w", prefix, err)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out, nil
}

func (b *RedisBackend) Delete(ctx context.Context, path string, opts ...DeleteOption) error {
	if _, err := ParsePath(path); err != nil {
		return err
	}
	o := ResolveDelete(opts...)

	err := deleteScript.Run(ctx, b.client,
		[]string{dataKey(path), tombKey(path)},
		o.Tombstone.Milliseconds(), channelOf(path), path,
	).Err()
	if err != nil {
		return fmt.Errorf("redis delete %s: %w", path, err)
	}
	return nil
}

// Subscribe listens before it snapshots, so no write between the two is
// lost. A write landing in that gap may be seen twice; consumers are
// idempotent.
func (b *RedisBackend) Subscribe(ctx context.Context, prefix string) (*Subscription, error) {
	if err := ValidatePrefix(prefix); err != nil {
		return nil, err
	}

	pubsub := b.client.PSubscribe(ctx, channelOf(prefix)+"*")
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, fmt.Errorf("redis psubscribe %s: %w", prefix, err)
	}

	existing, err := b.List(ctx, prefix)
	if err != nil {
		pubsub.Close()
		return nil, err
	}

	box := mailbox.New[Change]()
	for _, e := range existing {
		box.Push(Change{Path: e.Path, Type: ChangeAdded, Value: e.Value})
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		pubsub.Close()
		box.Close()
		return nil, ErrClosed
	}
	b.subs[pubsub] = box
	b.mu.Unlock()

	go b.forward(pubsub, box)

	return NewSubscription(box.C(), func() {
		b.mu.Lock()
		delete(b.subs, pubsub)
		b.mu.Unlock()
		pubsub.Close()
		box.Close()
	}), nil
}

func (b *RedisBackend) forward(pubsub *redis.PubSub, box *mailbox.Mailbox[Change]) {
	for msg := range pubsub.Channel() {
		var rc redisChange
		if err := json.Unmarshal([]byte(msg.Payload), &rc); err != nil {
			b.logger.Warn("undecodable change", zap.String("channel", msg.Channel), zap.Error(err))
			continue
		}
		c := Change{Path: rc.Path, Type: rc.Type}
		if rc.Value != "" {
			c.Value = json.RawMessage(rc.Value)
		}
		if !box.Push(c) {
			return
		}
	}
}

// Close closes subscriptions. The client is owned by the caller.
func (b *RedisBackend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	for pubsub, box := range b.subs {
		pubsub.Close()
		box.Close()
	}
	b.subs = nil
	return nil
}
