package database

import (
	"path/filepath"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/go-playground/assert/v2"

	"github.com/TURahim/collab-canvas-sub001/internal/model"
)

func TestMigrateCreatesTables(t *testing.T) {
	db, err := Open(sqlite.Open(filepath.Join(t.TempDir(), "collab.db")))
	assert.Equal(t, nil, err)
	assert.Equal(t, nil, Migrate(db))
	assert.Equal(t, nil, Ping(db))

	assert.Equal(t, true, db.Migrator().HasTable(&model.Room{}))
	assert.Equal(t, true, db.Migrator().HasTable("room_objects"))

	room := model.Room{ID: "r1", Name: "Sketch"}
	assert.Equal(t, nil, db.Create(&room).Error)

	var got model.Room
	assert.Equal(t, nil, db.First(&got, "id = ?", "r1").Error)
	assert.Equal(t, "Sketch", got.Name)
}
