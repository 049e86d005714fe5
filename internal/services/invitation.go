package services

import (
	"encoding/json"
	"fmt"
	"log"
	"time"

	"focusroom-backend/internal/apperr"
	"focusroom-backend/internal/keylock"
	"focusroom-backend/internal/models"
	"focusroom-backend/internal/ws"

	"gorm.io/gorm"
)

// invitationTTL is the fixed window an invitation stays open.
const invitationTTL = 5 * time.Minute

// InvitationService runs the propose → collect responses → resolve
// protocol for starting a competition. The vote requires every present
// member of the proposal-time roster to accept; a single rejection
// resolves the invitation immediately.
type InvitationService struct {
	db           *gorm.DB
	rooms        *RoomService
	competitions *CompetitionService
	hub          *ws.Hub
	locks        *keylock.KeyLock
	now          func() time.Time
}

func NewInvitationService(db *gorm.DB, rooms *RoomService, competitions *CompetitionService, hub *ws.Hub) *InvitationService {
	return &InvitationService{
		db:           db,
		rooms:        rooms,
		competitions: competitions,
		hub:          hub,
		locks:        keylock.New(),
		now:          time.Now,
	}
}

func (s *InvitationService) Propose(roomID, proposerID uint, mode, name string, durationMinutes int) (*models.ChallengeInvitation, error) {
	switch mode {
	case models.CompetitionModeFocus, models.CompetitionModePomo, models.CompetitionModeCustom:
	default:
		return nil, apperr.New(apperr.Validation, "unknown competition mode %q", mode)
	}
	if durationMinutes <= 0 {
		return nil, apperr.New(apperr.Validation, "duration must be positive")
	}
	if name == "" {
		name = fmt.Sprintf("%s competition", mode)
	}

	room, err := s.rooms.GetRoom(roomID)
	if err != nil {
		return nil, err
	}
	if room.Status != models.RoomStatusActive {
		return nil, apperr.New(apperr.Conflict, "room is closed")
	}
	if room.HostID != proposerID {
		return nil, apperr.New(apperr.Forbidden, "only the host can propose a competition")
	}

	key := fmt.Sprintf("invitation:room:%d", roomID)
	s.locks.Lock(key)
	defer s.locks.Unlock(key)

	s.expireStale(roomID)

	var pendingCount int64
	s.db.Model(&models.ChallengeInvitation{}).
		Where("room_id = ? AND status = ?", roomID, models.InvitationStatusPending).
		Count(&pendingCount)
	if pendingCount > 0 {
		return nil, apperr.New(apperr.Conflict, "room already has a pending invitation")
	}

	// Checked here so a unanimous accept cannot fail at start time.
	var activeCount int64
	s.db.Model(&models.Competition{}).
		Where("room_id = ? AND is_active = ?", roomID, true).
		Count(&activeCount)
	if activeCount > 0 {
		return nil, apperr.New(apperr.Conflict, "room already has an active competition")
	}

	voters, err := s.rooms.PresentMembers(roomID)
	if err != nil {
		return nil, err
	}
	if len(voters) == 0 {
		return nil, apperr.New(apperr.Conflict, "room has no present members")
	}

	now := s.now()
	inv := models.ChallengeInvitation{
		RoomID:          roomID,
		ProposerID:      proposerID,
		Mode:            mode,
		Name:            name,
		DurationMinutes: durationMinutes,
		Status:          models.InvitationStatusPending,
		CreatedAt:       now,
		ExpiresAt:       now.Add(invitationTTL),
	}
	if err := s.db.Create(&inv).Error; err != nil {
		return nil, err
	}

	for _, v := range voters {
		s.db.Create(&models.InvitationVoter{InvitationID: inv.ID, UserID: v.UserID})
	}

	// The proposer's vote is an implicit accept.
	s.db.Create(&models.InvitationResponse{
		InvitationID: inv.ID,
		UserID:       proposerID,
		Decision:     models.DecisionAccepted,
		RespondedAt:  now,
	})

	if err := s.resolveLocked(&inv); err != nil {
		return nil, err
	}

	s.hub.Publish(ws.RoomChannel(roomID), "invitation_created", inv)
	if inv.Status == models.InvitationStatusAccepted {
		s.hub.Publish(ws.RoomChannel(roomID), "invitation_accepted", inv)
	}
	return &inv, nil
}

func (s *InvitationService) Respond(invitationID, userID uint, decision string) (*models.ChallengeInvitation, error) {
	if decision != models.DecisionAccepted && decision != models.DecisionRejected {
		return nil, apperr.New(apperr.Validation, "decision must be accepted or rejected")
	}

	key := fmt.Sprintf("invitation:%d", invitationID)
	s.locks.Lock(key)
	defer s.locks.Unlock(key)

	var inv models.ChallengeInvitation
	if err := s.db.First(&inv, invitationID).Error; err != nil {
		return nil, apperr.New(apperr.NotFound, "invitation not found")
	}

	if s.expireLocked(&inv) {
		return nil, apperr.New(apperr.Expired, "invitation expired")
	}
	switch inv.Status {
	case models.InvitationStatusPending:
	case models.InvitationStatusExpired:
		return nil, apperr.New(apperr.Expired, "invitation expired")
	default:
		return nil, apperr.New(apperr.Conflict, "invitation already resolved")
	}

	var voter models.InvitationVoter
	if err := s.db.Where("invitation_id = ? AND user_id = ?", invitationID, userID).
		First(&voter).Error; err != nil {
		return nil, apperr.New(apperr.Forbidden, "not part of this invitation's vote")
	}

	var existing models.InvitationResponse
	if err := s.db.Where("invitation_id = ? AND user_id = ?", invitationID, userID).
		First(&existing).Error; err == nil {
		return nil, apperr.New(apperr.Conflict, "already responded")
	}

	resp := models.InvitationResponse{
		InvitationID: invitationID,
		UserID:       userID,
		Decision:     decision,
		RespondedAt:  s.now(),
	}
	if err := s.db.Create(&resp).Error; err != nil {
		// The unique index catches a concurrent duplicate.
		return nil, apperr.New(apperr.Conflict, "already responded")
	}

	if err := s.resolveLocked(&inv); err != nil {
		return nil, err
	}

	s.hub.Publish(ws.RoomChannel(inv.RoomID), "invitation_response", resp)
	switch inv.Status {
	case models.InvitationStatusAccepted:
		s.hub.Publish(ws.RoomChannel(inv.RoomID), "invitation_accepted", inv)
	case models.InvitationStatusRejected:
		s.hub.Publish(ws.RoomChannel(inv.RoomID), "invitation_rejected", inv)
	}
	return &inv, nil
}

// Expire marks a pending invitation expired once its window has passed.
// Safe to call redundantly; expiry is checked lazily on every read and
// response rather than trusting a background timer.
func (s *InvitationService) Expire(invitationID uint) (*models.ChallengeInvitation, error) {
	key := fmt.Sprintf("invitation:%d", invitationID)
	s.locks.Lock(key)
	defer s.locks.Unlock(key)

	var inv models.ChallengeInvitation
	if err := s.db.First(&inv, invitationID).Error; err != nil {
		return nil, apperr.New(apperr.NotFound, "invitation not found")
	}
	s.expireLocked(&inv)
	return &inv, nil
}

func (s *InvitationService) GetInvitation(invitationID uint) (*models.ChallengeInvitation, error) {
	key := fmt.Sprintf("invitation:%d", invitationID)
	s.locks.Lock(key)
	defer s.locks.Unlock(key)

	var inv models.ChallengeInvitation
	if err := s.db.First(&inv, invitationID).Error; err != nil {
		return nil, apperr.New(apperr.NotFound, "invitation not found")
	}
	s.expireLocked(&inv)
	return &inv, nil
}

// CurrentInvitation returns the room's pending invitation, if any.
func (s *InvitationService) CurrentInvitation(roomID uint) (*models.ChallengeInvitation, error) {
	s.expireStale(roomID)

	var inv models.ChallengeInvitation
	if err := s.db.Where("room_id = ? AND status = ?", roomID, models.InvitationStatusPending).
		Order("created_at DESC").
		First(&inv).Error; err != nil {
		return nil, apperr.New(apperr.NotFound, "no pending invitation")
	}
	return &inv, nil
}

// Responses returns the decision map derived from the response rows,
// with pending entries for voters who have not answered.
func (s *InvitationService) Responses(invitationID uint) (map[uint]string, error) {
	var voters []models.InvitationVoter
	if err := s.db.Where("invitation_id = ?", invitationID).Find(&voters).Error; err != nil {
		return nil, err
	}
	var responses []models.InvitationResponse
	if err := s.db.Where("invitation_id = ?", invitationID).Find(&responses).Error; err != nil {
		return nil, err
	}

	result := make(map[uint]string, len(voters))
	for _, v := range voters {
		result[v.UserID] = "pending"
	}
	for _, r := range responses {
		result[r.UserID] = r.Decision
	}
	return result, nil
}

// resolveLocked re-evaluates a pending invitation after a response.
// Required set: proposal-time voters still present in the room. A
// response already on file from a voter who since left still counts.
// Caller holds the invitation lock.
func (s *InvitationService) resolveLocked(inv *models.ChallengeInvitation) error {
	var voters []models.InvitationVoter
	if err := s.db.Where("invitation_id = ?", inv.ID).Find(&voters).Error; err != nil {
		return err
	}
	var responses []models.InvitationResponse
	if err := s.db.Where("invitation_id = ?", inv.ID).Find(&responses).Error; err != nil {
		return err
	}

	decisions := make(map[uint]string, len(responses))
	for _, r := range responses {
		decisions[r.UserID] = r.Decision
	}

	rejected := false
	for _, d := range decisions {
		if d == models.DecisionRejected {
			rejected = true
			break
		}
	}

	resolved := rejected
	if !resolved {
		present, err := s.rooms.PresentMembers(inv.RoomID)
		if err != nil {
			return err
		}
		presentSet := make(map[uint]bool, len(present))
		for _, m := range present {
			presentSet[m.UserID] = true
		}

		resolved = true
		for _, v := range voters {
			if !presentSet[v.UserID] {
				continue
			}
			if _, ok := decisions[v.UserID]; !ok {
				resolved = false
				break
			}
		}
	}

	if err := s.cacheResponses(inv, voters, responses); err != nil {
		return err
	}
	if !resolved {
		return s.db.Save(inv).Error
	}

	if rejected {
		inv.Status = models.InvitationStatusRejected
		return s.db.Save(inv).Error
	}

	inv.Status = models.InvitationStatusAccepted
	if err := s.db.Save(inv).Error; err != nil {
		return err
	}

	accepting := make([]uint, 0, len(decisions))
	for userID, d := range decisions {
		if d == models.DecisionAccepted {
			accepting = append(accepting, userID)
		}
	}
	comp, err := s.competitions.Start(inv.RoomID, inv.ProposerID, inv.Mode, inv.Name, inv.DurationMinutes, accepting)
	if err != nil {
		return err
	}
	inv.CompetitionID = comp.ID
	return s.db.Save(inv).Error
}

// cacheResponses rebuilds the denormalized responses JSON from the rows.
func (s *InvitationService) cacheResponses(inv *models.ChallengeInvitation, voters []models.InvitationVoter, responses []models.InvitationResponse) error {
	cache := make(map[string]string, len(voters))
	for _, v := range voters {
		cache[fmt.Sprint(v.UserID)] = "pending"
	}
	for _, r := range responses {
		cache[fmt.Sprint(r.UserID)] = r.Decision
	}
	data, err := json.Marshal(cache)
	if err != nil {
		return err
	}
	inv.Responses = string(data)
	return nil
}

// expireLocked flips a stale pending invitation to expired. Reports
// whether the invitation is now expired. Caller holds the lock.
func (s *InvitationService) expireLocked(inv *models.ChallengeInvitation) bool {
	if inv.Status == models.InvitationStatusExpired {
		return true
	}
	if inv.Status != models.InvitationStatusPending {
		return false
	}
	if s.now().Before(inv.ExpiresAt) {
		return false
	}

	inv.Status = models.InvitationStatusExpired
	if err := s.db.Save(inv).Error; err != nil {
		log.Printf("invitation: expire save failed for %d: %v", inv.ID, err)
		return false
	}
	s.hub.Publish(ws.RoomChannel(inv.RoomID), "invitation_expired", inv)
	return true
}

// expireStale sweeps any overdue pending invitation for the room. Each
// row is re-read under its own lock: a response in flight may have
// resolved the invitation between the scan and the sweep, and a resolved
// invitation must never flip to expired.
func (s *InvitationService) expireStale(roomID uint) {
	var pending []models.ChallengeInvitation
	s.db.Where("room_id = ? AND status = ? AND expires_at <= ?",
		roomID, models.InvitationStatusPending, s.now()).
		Find(&pending)
	for i := range pending {
		key := fmt.Sprintf("invitation:%d", pending[i].ID)
		s.locks.Lock(key)
		var inv models.ChallengeInvitation
		if err := s.db.First(&inv, pending[i].ID).Error; err == nil {
			s.expireLocked(&inv)
		}
		s.locks.Unlock(key)
	}
}
