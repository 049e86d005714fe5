package services

import (
	"fmt"
	"math"
	"time"

	"focusroom-backend/internal/apperr"
	"focusroom-backend/internal/keylock"
	"focusroom-backend/internal/models"
	"focusroom-backend/internal/ws"

	"gorm.io/gorm"
)

// ContributionInput is one completed study session as seen by a
// challenge. SessionKey deduplicates redundant deliveries.
type ContributionInput struct {
	SessionKey      string  `json:"session_key"`
	DurationMinutes int     `json:"duration_minutes"`
	FocusScore      float64 `json:"focus_score"`
	Completed       bool    `json:"completed"`
}

// ChallengeService merges per-user contributions into one shared group
// challenge aggregate. The aggregate is always recomputed from the full
// contribution set, never incremented in place, so a duplicated or lost
// per-user write only ever affects that user's own row.
type ChallengeService struct {
	db    *gorm.DB
	hub   *ws.Hub
	locks *keylock.KeyLock
	now   func() time.Time
}

func NewChallengeService(db *gorm.DB, hub *ws.Hub) *ChallengeService {
	return &ChallengeService{db: db, hub: hub, locks: keylock.New(), now: time.Now}
}

func (s *ChallengeService) CreateChallenge(roomID, userID uint, title, challengeType string, target float64, unit string, minSessionMinutes int) (*models.GroupChallenge, error) {
	if title == "" {
		return nil, apperr.New(apperr.Validation, "title is required")
	}
	if !models.ValidChallengeType(challengeType) {
		return nil, apperr.New(apperr.Validation, "unknown challenge type %q", challengeType)
	}
	if target <= 0 {
		return nil, apperr.New(apperr.Validation, "target must be positive")
	}

	var room models.Room
	if err := s.db.First(&room, roomID).Error; err != nil {
		return nil, apperr.New(apperr.NotFound, "room not found")
	}
	var member models.RoomMember
	if err := s.db.Where("room_id = ? AND user_id = ? AND left_at IS NULL", roomID, userID).
		First(&member).Error; err != nil {
		return nil, apperr.New(apperr.Forbidden, "not a present member of this room")
	}

	challenge := models.GroupChallenge{
		RoomID:            roomID,
		CreatedBy:         userID,
		Title:             title,
		Type:              challengeType,
		TargetValue:       target,
		Unit:              unit,
		MinSessionMinutes: minSessionMinutes,
		IsActive:          true,
	}
	if err := s.db.Create(&challenge).Error; err != nil {
		return nil, err
	}

	s.hub.Publish(ws.RoomChannel(roomID), "challenge_created", challenge)
	return &challenge, nil
}

func (s *ChallengeService) GetChallenge(challengeID uint) (*models.GroupChallenge, error) {
	var challenge models.GroupChallenge
	if err := s.db.First(&challenge, challengeID).Error; err != nil {
		return nil, apperr.New(apperr.NotFound, "challenge not found")
	}
	return &challenge, nil
}

func (s *ChallengeService) ListChallenges(roomID uint) ([]models.GroupChallenge, error) {
	var challenges []models.GroupChallenge
	if err := s.db.Where("room_id = ? AND is_active = ?", roomID, true).
		Order("created_at DESC").
		Find(&challenges).Error; err != nil {
		return nil, err
	}
	return challenges, nil
}

// Apply merges one session event into the caller's contribution and
// refreshes the challenge aggregate. Duplicate deliveries of the same
// session are no-ops. Safe under concurrent callers: the whole
// read-upsert-recompute sequence runs under the challenge lock.
func (s *ChallengeService) Apply(challengeID, userID uint, event ContributionInput) (*models.GroupChallenge, error) {
	if event.SessionKey == "" {
		return nil, apperr.New(apperr.Validation, "session key is required")
	}
	if event.DurationMinutes < 0 {
		return nil, apperr.New(apperr.Validation, "duration must not be negative")
	}
	if event.FocusScore < 0 || event.FocusScore > 100 {
		return nil, apperr.New(apperr.Validation, "focus score must be between 0 and 100")
	}

	key := fmt.Sprintf("challenge:%d", challengeID)
	s.locks.Lock(key)
	defer s.locks.Unlock(key)

	var challenge models.GroupChallenge
	if err := s.db.First(&challenge, challengeID).Error; err != nil {
		return nil, apperr.New(apperr.NotFound, "challenge not found")
	}
	if !challenge.IsActive {
		return nil, apperr.New(apperr.NotActive, "challenge is not active")
	}

	var member models.RoomMember
	if err := s.db.Where("room_id = ? AND user_id = ?", challenge.RoomID, userID).
		First(&member).Error; err != nil {
		return nil, apperr.New(apperr.Forbidden, "not a member of this room")
	}

	var seen models.ContributionEvent
	if err := s.db.Where("challenge_id = ? AND user_id = ? AND session_key = ?",
		challengeID, userID, event.SessionKey).First(&seen).Error; err == nil {
		return &challenge, nil
	}

	// The dedup marker, the contribution upsert and the aggregate commit
	// or roll back together: a marker surviving a failed write would turn
	// the caller's retry into a silent no-op.
	justCompleted := false
	txErr := s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&models.ContributionEvent{
			ChallengeID: challengeID,
			UserID:      userID,
			SessionKey:  event.SessionKey,
			CreatedAt:   s.now(),
		}).Error; err != nil {
			return err
		}

		contribution := models.ChallengeContribution{
			ChallengeID: challengeID,
			UserID:      userID,
		}
		tx.Where("challenge_id = ? AND user_id = ?", challengeID, userID).First(&contribution)

		contribution.Value = nextContribution(&challenge, &contribution, event, s.now())
		contribution.LastContributionAt = s.now()
		if err := tx.Save(&contribution).Error; err != nil {
			return err
		}

		var err error
		justCompleted, err = s.refreshAggregate(tx, &challenge)
		return err
	})
	if txErr != nil {
		// Lost a race against the unique index: treat as duplicate.
		if err := s.db.Where("challenge_id = ? AND user_id = ? AND session_key = ?",
			challengeID, userID, event.SessionKey).First(&seen).Error; err == nil {
			return &challenge, nil
		}
		return nil, txErr
	}

	s.hub.Publish(ws.RoomChannel(challenge.RoomID), "progress_updated", challenge)
	if justCompleted {
		s.hub.Publish(ws.RoomChannel(challenge.RoomID), "challenge_completed", challenge)
	}
	return &challenge, nil
}

// DeleteChallenge removes the challenge and all contribution rows.
// Host only. Contributions go first so a failure mid-way never leaves
// orphaned rows behind a deleted challenge.
func (s *ChallengeService) DeleteChallenge(challengeID, userID uint) error {
	var challenge models.GroupChallenge
	if err := s.db.First(&challenge, challengeID).Error; err != nil {
		return apperr.New(apperr.NotFound, "challenge not found")
	}

	var room models.Room
	if err := s.db.First(&room, challenge.RoomID).Error; err != nil {
		return apperr.New(apperr.NotFound, "room not found")
	}
	if room.HostID != userID {
		return apperr.New(apperr.Forbidden, "only the host can delete a challenge")
	}

	key := fmt.Sprintf("challenge:%d", challengeID)
	s.locks.Lock(key)
	defer s.locks.Unlock(key)

	if err := s.db.Where("challenge_id = ?", challengeID).
		Delete(&models.ChallengeContribution{}).Error; err != nil {
		return err
	}
	if err := s.db.Where("challenge_id = ?", challengeID).
		Delete(&models.ContributionEvent{}).Error; err != nil {
		return err
	}
	if err := s.db.Delete(&challenge).Error; err != nil {
		return err
	}

	s.hub.Publish(ws.RoomChannel(challenge.RoomID), "challenge_deleted", map[string]uint{"challenge_id": challengeID})
	return nil
}

// nextContribution applies the per-type rule to one user's running value.
func nextContribution(challenge *models.GroupChallenge, current *models.ChallengeContribution, event ContributionInput, now time.Time) float64 {
	switch challenge.Type {
	case models.ChallengeTypeFocusTime:
		return current.Value + float64(event.DurationMinutes)
	case models.ChallengeTypeStudySessions:
		if event.Completed && event.DurationMinutes >= challenge.MinSessionMinutes {
			return current.Value + 1
		}
		return current.Value
	case models.ChallengeTypeFocusScore:
		// Ratchet: keep the best score ever seen.
		return math.Max(current.Value, event.FocusScore)
	case models.ChallengeTypeStreakDays:
		if current.ID != 0 && sameDay(current.LastContributionAt, now) {
			return current.Value
		}
		return current.Value + 1
	}
	return current.Value
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

// refreshAggregate recomputes the challenge total from every
// contribution row, caps the percentage at 100 and flips the completed
// flag at most once. Reports whether this call flipped it. Caller holds
// the challenge lock and broadcasts after the surrounding transaction
// commits.
func (s *ChallengeService) refreshAggregate(tx *gorm.DB, challenge *models.GroupChallenge) (bool, error) {
	var contributions []models.ChallengeContribution
	if err := tx.Where("challenge_id = ?", challenge.ID).
		Find(&contributions).Error; err != nil {
		return false, err
	}

	challenge.CurrentValue = reduceContributions(challenge.Type, contributions)

	percent := 0.0
	if challenge.TargetValue > 0 {
		percent = math.Min(challenge.CurrentValue/challenge.TargetValue, 1.0) * 100
	}
	challenge.CompletionPercent = percent

	justCompleted := false
	if !challenge.IsCompleted && challenge.CurrentValue >= challenge.TargetValue {
		challenge.IsCompleted = true
		now := s.now()
		challenge.CompletedAt = &now
		justCompleted = true
	}

	if err := tx.Save(challenge).Error; err != nil {
		return false, err
	}
	return justCompleted, nil
}

// reduceContributions folds all per-user values into the group total:
// additive types sum, the focus-score ratchet averages across users.
func reduceContributions(challengeType string, contributions []models.ChallengeContribution) float64 {
	if len(contributions) == 0 {
		return 0
	}

	total := 0.0
	for _, c := range contributions {
		total += c.Value
	}
	if challengeType == models.ChallengeTypeFocusScore {
		return total / float64(len(contributions))
	}
	return total
}
