package models

import "time"

type GroupChallenge struct {
	ID                uint       `gorm:"primaryKey" json:"id"`
	RoomID            uint       `gorm:"not null;index" json:"room_id"`
	CreatedBy         uint       `gorm:"not null" json:"created_by"`
	Title             string     `gorm:"size:100;not null" json:"title"`
	Type              string     `gorm:"size:20;not null" json:"type"`
	TargetValue       float64    `gorm:"not null" json:"target_value"`
	Unit              string     `gorm:"size:20" json:"unit"`
	MinSessionMinutes int        `gorm:"not null;default:0" json:"min_session_minutes"`
	CurrentValue      float64    `gorm:"not null;default:0" json:"current_value"`
	CompletionPercent float64    `gorm:"not null;default:0" json:"completion_percent"`
	IsCompleted       bool       `gorm:"not null;default:false" json:"is_completed"`
	IsActive          bool       `gorm:"not null;default:true;index" json:"is_active"`
	CompletedAt       *time.Time `json:"completed_at,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
}

const (
	ChallengeTypeFocusTime     = "focus_time"
	ChallengeTypeStudySessions = "study_sessions"
	ChallengeTypeFocusScore    = "focus_score"
	ChallengeTypeStreakDays    = "streak_days"
)

func ValidChallengeType(t string) bool {
	switch t {
	case ChallengeTypeFocusTime, ChallengeTypeStudySessions,
		ChallengeTypeFocusScore, ChallengeTypeStreakDays:
		return true
	}
	return false
}

// ChallengeContribution is one user's running input toward a challenge.
// The challenge aggregate is always recomputed from all rows, never
// incremented in place.
type ChallengeContribution struct {
	ID                 uint      `gorm:"primaryKey" json:"id"`
	ChallengeID        uint      `gorm:"not null;uniqueIndex:idx_challenge_user" json:"challenge_id"`
	UserID             uint      `gorm:"not null;uniqueIndex:idx_challenge_user" json:"user_id"`
	Value              float64   `gorm:"not null;default:0" json:"value"`
	LastContributionAt time.Time `json:"last_contribution_at"`
}

// ContributionEvent records which session ids a challenge has already
// absorbed per user. Duplicate deliveries of the same session hit the
// unique index and are dropped instead of double-counted.
type ContributionEvent struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	ChallengeID uint      `gorm:"not null;uniqueIndex:idx_contrib_event" json:"challenge_id"`
	UserID      uint      `gorm:"not null;uniqueIndex:idx_contrib_event" json:"user_id"`
	SessionKey  string    `gorm:"size:64;not null;uniqueIndex:idx_contrib_event" json:"session_key"`
	CreatedAt   time.Time `json:"created_at"`
}
