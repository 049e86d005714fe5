package models

import "time"

// ChallengeInvitation proposes a competition to every present room member.
// Responses holds a derived cache rebuilt from InvitationResponse rows;
// the rows are the single source of truth.
type ChallengeInvitation struct {
	ID              uint      `gorm:"primaryKey" json:"id"`
	RoomID          uint      `gorm:"not null;index" json:"room_id"`
	ProposerID      uint      `gorm:"not null" json:"proposer_id"`
	Mode            string    `gorm:"size:20;not null" json:"mode"`
	Name            string    `gorm:"size:100" json:"name"`
	DurationMinutes int       `gorm:"not null" json:"duration_minutes"`
	Status          string    `gorm:"size:20;not null;default:'pending';index" json:"status"`
	Responses       string    `gorm:"type:text" json:"responses"`
	CompetitionID   uint      `gorm:"default:0" json:"competition_id,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
	ExpiresAt       time.Time `json:"expires_at"`
}

const (
	InvitationStatusPending  = "pending"
	InvitationStatusAccepted = "accepted"
	InvitationStatusRejected = "rejected"
	InvitationStatusExpired  = "expired"

	CompetitionModeFocus  = "focus"
	CompetitionModePomo   = "pomodoro"
	CompetitionModeCustom = "custom"
)

// InvitationVoter snapshots the room roster at proposal time. Members who
// join after the proposal are not part of the vote.
type InvitationVoter struct {
	ID           uint `gorm:"primaryKey" json:"id"`
	InvitationID uint `gorm:"not null;uniqueIndex:idx_inv_voter" json:"invitation_id"`
	UserID       uint `gorm:"not null;uniqueIndex:idx_inv_voter" json:"user_id"`
}

type InvitationResponse struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	InvitationID uint      `gorm:"not null;uniqueIndex:idx_inv_response" json:"invitation_id"`
	UserID       uint      `gorm:"not null;uniqueIndex:idx_inv_response" json:"user_id"`
	Decision     string    `gorm:"size:20;not null" json:"decision"`
	RespondedAt  time.Time `json:"responded_at"`
}

const (
	DecisionAccepted = "accepted"
	DecisionRejected = "rejected"
)
