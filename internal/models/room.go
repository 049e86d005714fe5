package models

import "time"

type Room struct {
	ID        uint         `gorm:"primaryKey" json:"id"`
	HostID    uint         `gorm:"not null;index" json:"host_id"`
	Host      User         `gorm:"foreignKey:HostID;constraint:OnDelete:CASCADE" json:"-"`
	Name      string       `gorm:"size:100;not null" json:"name"`
	Code      string       `gorm:"size:6;index" json:"code"`
	Status    string       `gorm:"size:20;not null;default:'active'" json:"status"`
	Members   []RoomMember `gorm:"foreignKey:RoomID" json:"members,omitempty"`
	CreatedAt time.Time    `json:"created_at"`
}

const (
	RoomStatusActive = "active"
	RoomStatusClosed = "closed"
)

// RoomMember is a soft membership record: LeftAt nil means present.
// Rows are never deleted, so rejoins and past votes stay traceable.
type RoomMember struct {
	ID           uint       `gorm:"primaryKey" json:"id"`
	RoomID       uint       `gorm:"not null;index;uniqueIndex:idx_room_user" json:"room_id"`
	UserID       uint       `gorm:"not null;uniqueIndex:idx_room_user" json:"user_id"`
	Nickname     string     `gorm:"size:100;not null" json:"nickname"`
	JoinedAt     time.Time  `json:"joined_at"`
	LeftAt       *time.Time `json:"left_at,omitempty"`
	LastActiveAt time.Time  `json:"last_active_at"`
}

func (m *RoomMember) Present() bool {
	return m.LeftAt == nil
}
