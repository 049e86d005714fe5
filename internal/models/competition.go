package models

import "time"

type Competition struct {
	ID              uint                     `gorm:"primaryKey" json:"id"`
	RoomID          uint                     `gorm:"not null;index" json:"room_id"`
	HostID          uint                     `gorm:"not null" json:"host_id"`
	Name            string                   `gorm:"size:100;not null" json:"name"`
	Mode            string                   `gorm:"size:20;not null" json:"mode"`
	DurationMinutes int                      `gorm:"not null" json:"duration_minutes"`
	Status          string                   `gorm:"size:20;not null;default:'pending'" json:"status"`
	IsActive        bool                     `gorm:"not null;default:false;index" json:"is_active"`
	StartedAt       time.Time                `json:"started_at"`
	EndedAt         *time.Time               `json:"ended_at,omitempty"`
	Participants    []CompetitionParticipant `gorm:"foreignKey:CompetitionID" json:"participants,omitempty"`
	CreatedAt       time.Time                `json:"created_at"`
}

const (
	CompetitionStatusPending = "pending"
	CompetitionStatusActive  = "active"
	CompetitionStatusEnded   = "ended"
)

// ScheduledEnd is the natural end of the competition. An EndedAt earlier
// than this means the host ended it on purpose.
func (c *Competition) ScheduledEnd() time.Time {
	return c.StartedAt.Add(time.Duration(c.DurationMinutes) * time.Minute)
}

func (c *Competition) EndedEarly() bool {
	return c.EndedAt != nil && c.EndedAt.Before(c.ScheduledEnd())
}

type CompetitionParticipant struct {
	ID             uint      `gorm:"primaryKey" json:"id"`
	CompetitionID  uint      `gorm:"not null;uniqueIndex:idx_comp_user" json:"competition_id"`
	UserID         uint      `gorm:"not null;uniqueIndex:idx_comp_user" json:"user_id"`
	Nickname       string    `gorm:"size:100" json:"nickname"`
	TotalScore     float64   `gorm:"not null;default:0" json:"total_score"`
	AverageScore   float64   `gorm:"not null;default:0" json:"average_score"`
	FocusedMinutes int       `gorm:"not null;default:0" json:"focused_minutes"`
	TickCount      int       `gorm:"not null;default:0" json:"tick_count"`
	Rank           int       `gorm:"not null;default:0" json:"rank"`
	JoinedAt       time.Time `json:"joined_at"`
}

// CompetitionTick is an append-only snapshot of every participant's score
// and rank at one instant. Never mutated after insert.
type CompetitionTick struct {
	ID            uint      `gorm:"primaryKey" json:"id"`
	CompetitionID uint      `gorm:"not null;index:idx_tick_order" json:"competition_id"`
	Scores        string    `gorm:"type:text;not null" json:"scores"`
	CreatedAt     time.Time `gorm:"index:idx_tick_order" json:"created_at"`
}
