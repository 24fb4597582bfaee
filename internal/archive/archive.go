// Package archive persists room objects to SQL behind the live store and
// restores them when a room is reopened on an empty backend.
package archive

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/bep/debounce"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/TURahim/collab-canvas-sub001/internal/model"
	"github.com/TURahim/collab-canvas-sub001/internal/store"
)

// Archive mirrors the objects collection of every open room into the
// room_objects table. Writes are debounced per room.
type Archive struct {
	db      *gorm.DB
	backend store.Backend
	delay   time.Duration
	logger  *zap.Logger

	mu    sync.Mutex
	rooms map[string]*roomArchive
}

type roomArchive struct {
	id        string
	refs      int
	sub       *store.Subscription
	debounced func(func())
	done      chan struct{}

	// flushMu keeps batches committing in the order they were taken.
	flushMu sync.Mutex

	mu sync.Mutex
	// dirty maps object id to its latest value; nil marks a removal.
	dirty map[string]*model.Object
}

func New(db *gorm.DB, backend store.Backend, delay time.Duration, logger *zap.Logger) *Archive {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Archive{
		db:      db,
		backend: backend,
		delay:   delay,
		logger:  logger.Named("archive"),
		rooms:   make(map[string]*roomArchive),
	}
}

// RoomExists reports whether the rooms directory has roomID.
func (a *Archive) RoomExists(ctx context.Context, roomID string) (bool, error) {
	var n int64
	err := a.db.WithContext(ctx).Model(&model.Room{}).Where("id = ?", roomID).Count(&n).Error
	if err != nil {
		return false, fmt.Errorf("lookup room %s: %w", roomID, err)
	}
	return n > 0, nil
}

// Open starts archiving roomID, restoring its objects first if the backend
// holds none. Calls are reference counted against Close.
func (a *Archive) Open(ctx context.Context, roomID string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if r, ok := a.rooms[roomID]; ok {
		r.refs++
		return nil
	}

	if n, err := a.Rehydrate(ctx, roomID); err != nil {
		return err
	} else if n > 0 {
		a.logger.Info("room restored", zap.String("room", roomID), zap.Int("objects", n))
	}

	sub, err := a.backend.Subscribe(ctx, store.CollectionPrefix(roomID, model.KindObjects))
	if err != nil {
		return fmt.Errorf("watch room %s: %w", roomID, err)
	}

	r := &roomArchive{
		id:        roomID,
		refs:      1,
		sub:       sub,
		debounced: debounce.New(a.delay),
		done:      make(chan struct{}),
		dirty:     make(map[string]*model.Object),
	}
	a.rooms[roomID] = r
	go a.watch(r)
	return nil
}

// Close releases one Open. The last release stops watching and flushes.
func (a *Archive) Close(ctx context.Context, roomID string) error {
	a.mu.Lock()
	r, ok := a.rooms[roomID]
	if !ok {
		a.mu.Unlock()
		return nil
	}
	r.refs--
	if r.refs > 0 {
		a.mu.Unlock()
		return nil
	}
	delete(a.rooms, roomID)
	a.mu.Unlock()

	r.sub.Close()
	<-r.done
	return a.flush(ctx, r)
}

// Shutdown flushes and stops every open room.
func (a *Archive) Shutdown(ctx context.Context) error {
	a.mu.Lock()
	rooms := make([]*roomArchive, 0, len(a.rooms))
	for _, r := range a.rooms {
		rooms = append(rooms, r)
	}
	a.rooms = make(map[string]*roomArchive)
	a.mu.Unlock()

	var errs []error
	for _, r := range rooms {
		r.sub.Close()
		<-r.done
		if err := a.flush(ctx, r); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Flush writes roomID's pending changes now.
func (a *Archive) Flush(ctx context.Context, roomID string) error {
	a.mu.Lock()
	r, ok := a.rooms[roomID]
	a.mu.Unlock()
	if !ok {
		return nil
	}
	return a.flush(ctx, r)
}

func (a *Archive) watch(r *roomArchive) {
	defer close(r.done)

	for change := range r.sub.C {
		parsed, err := store.ParsePath(change.Path)
		if err != nil {
			continue
		}

		var obj *model.Object
		if change.Type != store.ChangeRemoved {
			o, err := model.DecodeObject(change.Value)
			if err != nil {
				a.logger.Debug("skipping malformed object",
					zap.String("room", r.id), zap.String("path", change.Path), zap.Error(err))
				continue
			}
			obj = &o
		}

		r.mu.Lock()
		r.dirty[parsed.ID] = obj
		r.mu.Unlock()

		r.debounced(func() {
			if err := a.flush(context.Background(), r); err != nil {
				a.logger.Warn("archive flush failed", zap.String("room", r.id), zap.Error(err))
			}
		})
	}
}

func (a *Archive) flush(ctx context.Context, r *roomArchive) error {
	r.flushMu.Lock()
	defer r.flushMu.Unlock()

	r.mu.Lock()
	dirty := r.dirty
	r.dirty = make(map[string]*model.Object)
	r.mu.Unlock()

	if len(dirty) == 0 {
		return nil
	}

	ids := make([]string, 0, len(dirty))
	for id := range dirty {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	err := a.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, id := range ids {
			obj := dirty[id]
			if obj == nil {
				if err := tx.Where("room_id = ? AND object_id = ?", r.id, id).
					Delete(&model.ObjectRecord{}).Error; err != nil {
					return err
				}
				continue
			}
			rec := model.RecordFromObject(r.id, *obj)
			if err := tx.Clauses(clause.OnConflict{
				Columns: []clause.Column{{Name: "room_id"}, {Name: "object_id"}},
				DoUpdates: clause.AssignmentColumns([]string{
					"type", "props", "created_by", "last_modified_by", "last_modified", "archived_at",
				}),
				// an older value never overwrites a newer row
				Where: clause.Where{Exprs: []clause.Expression{
					clause.Expr{SQL: "room_objects.last_modified <= excluded.last_modified"},
				}},
			}).Create(&rec).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		// keep the batch for the next flush unless newer values arrived
		r.mu.Lock()
		for id, obj := range dirty {
			if _, newer := r.dirty[id]; !newer {
				r.dirty[id] = obj
			}
		}
		r.mu.Unlock()
		return fmt.Errorf("archive room %s: %w", r.id, err)
	}

	a.logger.Debug("archived", zap.String("room", r.id), zap.Int("objects", len(ids)))
	return nil
}

// Rehydrate copies archived objects into the backend when it has none for
// roomID. Objects keep their archived lastModified.
func (a *Archive) Rehydrate(ctx context.Context, roomID string) (int, error) {
	live, err := a.backend.List(ctx, store.CollectionPrefix(roomID, model.KindObjects))
	if err != nil {
		return 0, fmt.Errorf("list room %s: %w", roomID, err)
	}
	if len(live) > 0 {
		return 0, nil
	}

	var recs []model.ObjectRecord
	if err := a.db.WithContext(ctx).
		Where("room_id = ?", roomID).
		Order("last_modified").
		Find(&recs).Error; err != nil {
		return 0, fmt.Errorf("load room %s: %w", roomID, err)
	}

	restored := 0
	for _, rec := range recs {
		obj := rec.Object()
		if err := obj.Validate(); err != nil {
			a.logger.Warn("skipping archived object", zap.String("room", roomID), zap.Error(err))
			continue
		}
		body, err := json.Marshal(obj)
		if err != nil {
			return restored, err
		}
		if _, err := a.backend.Put(ctx, store.ObjectPath(roomID, obj.ObjectID), body); err != nil {
			if errors.Is(err, store.ErrTombstoned) {
				continue
			}
			return restored, fmt.Errorf("restore %s/%s: %w", roomID, obj.ObjectID, err)
		}
		restored++
	}
	return restored, nil
}
