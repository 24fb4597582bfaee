package model

import (
	"time"
)

// Room is the directory row for a shared document. Rooms are created and
// deleted by an external lifecycle service; the sync service only reads them.
type Room struct {
	ID        string    `gorm:"primaryKey;type:varchar(64)" json:"id"`
	Name      string    `gorm:"type:varchar(100);not null" json:"name"`
	OwnerID   string    `gorm:"type:varchar(64)" json:"owner_id"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`

	// Relations
	Objects []ObjectRecord `gorm:"foreignKey:RoomID;constraint:OnDelete:CASCADE" json:"objects,omitempty"`
}

func (Room) TableName() string {
	return "rooms"
}

// ObjectRecord is the archived copy of an Object.
type ObjectRecord struct {
	RoomID         string    `gorm:"primaryKey;type:varchar(64)" json:"room_id"`
	ObjectID       string    `gorm:"primaryKey;type:varchar(64)" json:"object_id"`
	Type           string    `gorm:"type:varchar(50);not null" json:"type"`
	Props          string    `gorm:"type:text;not null" json:"props"`
	CreatedBy      string    `gorm:"type:varchar(64)" json:"created_by"`
	LastModifiedBy string    `gorm:"type:varchar(64)" json:"last_modified_by"`
	LastModified   int64     `gorm:"not null;index" json:"last_modified"`
	ArchivedAt     time.Time `gorm:"autoUpdateTime" json:"archived_at"`
}

func (ObjectRecord) TableName() string {
	return "room_objects"
}

// RecordFromObject converts an Object into its archive row.
func RecordFromObject(roomID string, o Object) ObjectRecord {
	return ObjectRecord{
		RoomID:         roomID,
		ObjectID:       o.ObjectID,
		Type:           o.Type,
		Props:          string(o.Props),
		CreatedBy:      o.CreatedBy,
		LastModifiedBy: o.LastModifiedBy,
		LastModified:   o.LastModified,
	}
}

// Object converts the archive row back into an Object.
func (r ObjectRecord) Object() Object {
	return Object{
		ObjectID:       r.ObjectID,
		Type:           r.Type,
		Props:          []byte(r.Props),
		CreatedBy:      r.CreatedBy,
		LastModifiedBy: r.LastModifiedBy,
		LastModified:   r.LastModified,
	}
}
