package models

import "time"

// FocusSession is one user's study session inside a room. The focus score
// is an opaque 0-100 signal produced upstream; this service only stores
// and aggregates it.
type FocusSession struct {
	ID              uint       `gorm:"primaryKey" json:"id"`
	SessionKey      string     `gorm:"size:64;uniqueIndex;not null" json:"session_key"`
	RoomID          uint       `gorm:"not null;index" json:"room_id"`
	UserID          uint       `gorm:"not null;index" json:"user_id"`
	DurationMinutes int        `gorm:"not null;default:0" json:"duration_minutes"`
	FocusScore      float64    `gorm:"not null;default:0" json:"focus_score"`
	Completed       bool       `gorm:"not null;default:false" json:"completed"`
	StartedAt       time.Time  `json:"started_at"`
	EndedAt         *time.Time `json:"ended_at,omitempty"`
}
