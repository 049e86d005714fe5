package services

import (
	"log"
	"time"

	"focusroom-backend/internal/apperr"
	"focusroom-backend/internal/models"
	"focusroom-backend/internal/ws"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// SessionService records focus sessions and fans their completion out to
// the room's group challenges and any active competition. The upstream
// ML pipeline supplies the focus score; it is stored opaquely.
type SessionService struct {
	db           *gorm.DB
	challenges   *ChallengeService
	competitions *CompetitionService
	hub          *ws.Hub
}

func NewSessionService(db *gorm.DB, challenges *ChallengeService, competitions *CompetitionService, hub *ws.Hub) *SessionService {
	return &SessionService{db: db, challenges: challenges, competitions: competitions, hub: hub}
}

func (s *SessionService) StartSession(roomID, userID uint) (*models.FocusSession, error) {
	var member models.RoomMember
	if err := s.db.Where("room_id = ? AND user_id = ? AND left_at IS NULL", roomID, userID).
		First(&member).Error; err != nil {
		return nil, apperr.New(apperr.Forbidden, "not a present member of this room")
	}

	session := models.FocusSession{
		SessionKey: uuid.NewString(),
		RoomID:     roomID,
		UserID:     userID,
		StartedAt:  time.Now(),
	}
	if err := s.db.Create(&session).Error; err != nil {
		return nil, err
	}

	s.hub.Publish(ws.RoomChannel(roomID), "session_started", session)
	return &session, nil
}

// CompleteSession seals the session and applies it to every active
// challenge of the room, plus a competition tick when the user is
// enrolled in an active one. Fan-out failures are logged, never
// returned: the session record itself must survive regardless.
func (s *SessionService) CompleteSession(sessionID, userID uint, durationMinutes int, focusScore float64) (*models.FocusSession, error) {
	if focusScore < 0 || focusScore > 100 {
		return nil, apperr.New(apperr.Validation, "focus score must be between 0 and 100")
	}

	var session models.FocusSession
	if err := s.db.First(&session, sessionID).Error; err != nil {
		return nil, apperr.New(apperr.NotFound, "session not found")
	}
	if session.UserID != userID {
		return nil, apperr.New(apperr.Forbidden, "not your session")
	}
	if session.Completed {
		return &session, nil
	}

	now := time.Now()
	if durationMinutes <= 0 {
		durationMinutes = int(now.Sub(session.StartedAt).Minutes())
	}
	session.DurationMinutes = durationMinutes
	session.FocusScore = focusScore
	session.Completed = true
	session.EndedAt = &now
	if err := s.db.Save(&session).Error; err != nil {
		return nil, err
	}

	s.hub.Publish(ws.RoomChannel(session.RoomID), "session_completed", session)

	event := ContributionInput{
		SessionKey:      session.SessionKey,
		DurationMinutes: durationMinutes,
		FocusScore:      focusScore,
		Completed:       true,
	}
	challenges, err := s.challenges.ListChallenges(session.RoomID)
	if err != nil {
		log.Printf("session: listing challenges for room %d failed: %v", session.RoomID, err)
		challenges = nil
	}
	for _, ch := range challenges {
		if _, err := s.challenges.Apply(ch.ID, userID, event); err != nil {
			log.Printf("session: applying session %s to challenge %d failed: %v", session.SessionKey, ch.ID, err)
		}
	}

	var comp models.Competition
	if err := s.db.Where("room_id = ? AND is_active = ?", session.RoomID, true).
		First(&comp).Error; err == nil {
		if _, err := s.competitions.Tick(comp.ID, userID, focusScore, durationMinutes); err != nil {
			log.Printf("session: tick for competition %d failed: %v", comp.ID, err)
		}
	}

	return &session, nil
}

func (s *SessionService) ListRoomSessions(roomID uint) ([]models.FocusSession, error) {
	var sessions []models.FocusSession
	if err := s.db.Where("room_id = ?", roomID).
		Order("started_at DESC").
		Find(&sessions).Error; err != nil {
		return nil, err
	}
	return sessions, nil
}
