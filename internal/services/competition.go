package services

import (
	"encoding/json"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"focusroom-backend/internal/apperr"
	"focusroom-backend/internal/keylock"
	"focusroom-backend/internal/models"
	"focusroom-backend/internal/ws"

	"gorm.io/gorm"
)

// rankingBroadcastInterval bounds how often the full ranking is fanned
// out per competition. Per-user score updates are not rate limited.
const rankingBroadcastInterval = time.Second

// CompetitionService owns the competition state machine: pending →
// active → ended. The natural end is checked lazily on tick, read and
// recovery; no background timer is assumed.
type CompetitionService struct {
	db    *gorm.DB
	hub   *ws.Hub
	locks *keylock.KeyLock
	now   func() time.Time

	rankingMu     sync.Mutex
	lastRankingAt map[uint]time.Time
}

func NewCompetitionService(db *gorm.DB, hub *ws.Hub) *CompetitionService {
	return &CompetitionService{
		db:            db,
		hub:           hub,
		locks:         keylock.New(),
		now:           time.Now,
		lastRankingAt: make(map[uint]time.Time),
	}
}

// Start creates an active competition and enrolls the host plus every
// user in participantIDs with zero scores. Fails with Conflict while the
// room still has an active competition.
func (s *CompetitionService) Start(roomID, hostID uint, mode, name string, durationMinutes int, participantIDs []uint) (*models.Competition, error) {
	if durationMinutes <= 0 {
		return nil, apperr.New(apperr.Validation, "duration must be positive")
	}

	var room models.Room
	if err := s.db.First(&room, roomID).Error; err != nil {
		return nil, apperr.New(apperr.NotFound, "room not found")
	}
	if room.HostID != hostID {
		return nil, apperr.New(apperr.Forbidden, "only the host can start a competition")
	}
	if room.Status != models.RoomStatusActive {
		return nil, apperr.New(apperr.Conflict, "room is closed")
	}

	key := fmt.Sprintf("competition:room:%d", roomID)
	s.locks.Lock(key)
	defer s.locks.Unlock(key)

	var active []models.Competition
	s.db.Where("room_id = ? AND is_active = ?", roomID, true).Find(&active)
	for i := range active {
		// A competition past its natural end just never saw its lazy
		// expiry; sweep it before deciding there is a conflict.
		if !s.now().Before(active[i].ScheduledEnd()) {
			s.endLocked(&active[i], active[i].ScheduledEnd())
			continue
		}
		return nil, apperr.New(apperr.Conflict, "room already has an active competition")
	}

	now := s.now()
	comp := models.Competition{
		RoomID:          roomID,
		HostID:          hostID,
		Name:            name,
		Mode:            mode,
		DurationMinutes: durationMinutes,
		Status:          models.CompetitionStatusActive,
		IsActive:        true,
		StartedAt:       now,
	}
	if err := s.db.Create(&comp).Error; err != nil {
		return nil, err
	}

	enrolled := map[uint]bool{}
	ids := append([]uint{hostID}, participantIDs...)
	for _, userID := range ids {
		if enrolled[userID] {
			continue
		}
		enrolled[userID] = true

		nickname := ""
		var member models.RoomMember
		if err := s.db.Where("room_id = ? AND user_id = ?", roomID, userID).
			First(&member).Error; err == nil {
			nickname = member.Nickname
		}
		s.db.Create(&models.CompetitionParticipant{
			CompetitionID: comp.ID,
			UserID:        userID,
			Nickname:      nickname,
			JoinedAt:      now,
		})
	}

	s.db.Preload("Participants").First(&comp, comp.ID)
	s.hub.Publish(ws.RoomChannel(roomID), "competition_started", comp)
	return &comp, nil
}

func (s *CompetitionService) GetCompetition(competitionID uint) (*models.Competition, error) {
	var comp models.Competition
	if err := s.db.Preload("Participants").First(&comp, competitionID).Error; err != nil {
		return nil, apperr.New(apperr.NotFound, "competition not found")
	}

	if comp.IsActive && !s.now().Before(comp.ScheduledEnd()) {
		key := fmt.Sprintf("competition:%d", comp.ID)
		s.locks.Lock(key)
		s.endLocked(&comp, comp.ScheduledEnd())
		s.locks.Unlock(key)
	}
	return &comp, nil
}

// Tick records one score submission: the participant's score is
// last-value-wins (the signal is already a point-in-time average), the
// running average and focused minutes accumulate, and a full snapshot of
// scores and ranks is appended.
func (s *CompetitionService) Tick(competitionID, userID uint, focusScore float64, focusedMinutes int) (*models.CompetitionParticipant, error) {
	if focusScore < 0 || focusScore > 100 {
		return nil, apperr.New(apperr.Validation, "focus score must be between 0 and 100")
	}
	if focusedMinutes < 0 {
		return nil, apperr.New(apperr.Validation, "focused minutes must not be negative")
	}

	key := fmt.Sprintf("competition:%d", competitionID)
	s.locks.Lock(key)
	defer s.locks.Unlock(key)

	var comp models.Competition
	if err := s.db.First(&comp, competitionID).Error; err != nil {
		return nil, apperr.New(apperr.NotFound, "competition not found")
	}

	if comp.IsActive && !s.now().Before(comp.ScheduledEnd()) {
		s.endLocked(&comp, comp.ScheduledEnd())
	}
	if !comp.IsActive {
		return nil, apperr.New(apperr.NotActive, "competition is not active")
	}

	var participant models.CompetitionParticipant
	if err := s.db.Where("competition_id = ? AND user_id = ?", competitionID, userID).
		First(&participant).Error; err != nil {
		return nil, apperr.New(apperr.Forbidden, "not enrolled in this competition")
	}

	participant.TotalScore = focusScore
	participant.TickCount++
	participant.AverageScore += (focusScore - participant.AverageScore) / float64(participant.TickCount)
	participant.FocusedMinutes += focusedMinutes
	if err := s.db.Save(&participant).Error; err != nil {
		return nil, err
	}

	ranking, err := s.recomputeRanking(competitionID)
	if err != nil {
		return nil, err
	}
	if err := s.appendSnapshot(&comp, ranking); err != nil {
		return nil, err
	}

	channel := ws.CompetitionChannel(competitionID)
	s.hub.Publish(channel, "score_updated", participant)
	if s.shouldBroadcastRanking(competitionID) {
		s.hub.Publish(channel, "ranking_updated", ranking)
	}
	return &participant, nil
}

// End finishes the competition and freezes final scores. Idempotent: a
// second call returns the already-ended record unchanged, so a manual
// end can never be overwritten by a later expiry sweep.
func (s *CompetitionService) End(competitionID, byUserID uint) (*models.Competition, error) {
	key := fmt.Sprintf("competition:%d", competitionID)
	s.locks.Lock(key)
	defer s.locks.Unlock(key)

	var comp models.Competition
	if err := s.db.First(&comp, competitionID).Error; err != nil {
		return nil, apperr.New(apperr.NotFound, "competition not found")
	}
	if comp.EndedAt != nil {
		s.db.Preload("Participants").First(&comp, comp.ID)
		return &comp, nil
	}
	if comp.HostID != byUserID {
		return nil, apperr.New(apperr.Forbidden, "only the host can end the competition")
	}

	endedAt := s.now()
	if endedAt.After(comp.ScheduledEnd()) {
		endedAt = comp.ScheduledEnd()
	}
	if err := s.endLocked(&comp, endedAt); err != nil {
		return nil, err
	}

	s.db.Preload("Participants").First(&comp, comp.ID)
	return &comp, nil
}

// Recover re-asserts the active flag after a process restart or client
// reconnect lost it. A competition the host ended early stays ended.
func (s *CompetitionService) Recover(roomID uint) (*models.Competition, error) {
	var comp models.Competition
	if err := s.db.Where("room_id = ?", roomID).
		Order("started_at DESC").
		First(&comp).Error; err != nil {
		return nil, nil
	}

	key := fmt.Sprintf("competition:%d", comp.ID)
	s.locks.Lock(key)
	defer s.locks.Unlock(key)

	if comp.EndedEarly() {
		s.db.Preload("Participants").First(&comp, comp.ID)
		return &comp, nil
	}

	if !s.now().After(comp.ScheduledEnd()) {
		comp.Status = models.CompetitionStatusActive
		comp.IsActive = true
		comp.EndedAt = nil
		if err := s.db.Save(&comp).Error; err != nil {
			return nil, err
		}
	} else if comp.IsActive || comp.EndedAt == nil {
		if err := s.endLocked(&comp, comp.ScheduledEnd()); err != nil {
			return nil, err
		}
	}

	s.db.Preload("Participants").First(&comp, comp.ID)
	return &comp, nil
}

type LeaderboardEntry struct {
	Position       int     `json:"position"`
	UserID         uint    `json:"user_id"`
	Nickname       string  `json:"nickname"`
	TotalScore     float64 `json:"total_score"`
	AverageScore   float64 `json:"average_score"`
	FocusedMinutes int     `json:"focused_minutes"`
}

func (s *CompetitionService) Leaderboard(competitionID uint) ([]LeaderboardEntry, error) {
	var comp models.Competition
	if err := s.db.First(&comp, competitionID).Error; err != nil {
		return nil, apperr.New(apperr.NotFound, "competition not found")
	}

	participants, err := s.rankedParticipants(competitionID)
	if err != nil {
		return nil, err
	}

	entries := make([]LeaderboardEntry, len(participants))
	for i, p := range participants {
		entries[i] = LeaderboardEntry{
			Position:       i + 1,
			UserID:         p.UserID,
			Nickname:       p.Nickname,
			TotalScore:     p.TotalScore,
			AverageScore:   p.AverageScore,
			FocusedMinutes: p.FocusedMinutes,
		}
	}
	return entries, nil
}

// rankedParticipants orders by score descending; exact ties rank the
// earlier joiner higher.
func (s *CompetitionService) rankedParticipants(competitionID uint) ([]models.CompetitionParticipant, error) {
	var participants []models.CompetitionParticipant
	if err := s.db.Where("competition_id = ?", competitionID).
		Find(&participants).Error; err != nil {
		return nil, err
	}
	sort.SliceStable(participants, func(a, b int) bool {
		if participants[a].TotalScore != participants[b].TotalScore {
			return participants[a].TotalScore > participants[b].TotalScore
		}
		return participants[a].JoinedAt.Before(participants[b].JoinedAt)
	})
	return participants, nil
}

type rankingSnapshot struct {
	UserID uint    `json:"user_id"`
	Score  float64 `json:"score"`
	Rank   int     `json:"rank"`
}

func (s *CompetitionService) recomputeRanking(competitionID uint) ([]rankingSnapshot, error) {
	participants, err := s.rankedParticipants(competitionID)
	if err != nil {
		return nil, err
	}

	ranking := make([]rankingSnapshot, len(participants))
	for i := range participants {
		participants[i].Rank = i + 1
		s.db.Model(&models.CompetitionParticipant{}).
			Where("id = ?", participants[i].ID).
			Update("rank", i+1)
		ranking[i] = rankingSnapshot{
			UserID: participants[i].UserID,
			Score:  participants[i].TotalScore,
			Rank:   i + 1,
		}
	}
	return ranking, nil
}

func (s *CompetitionService) appendSnapshot(comp *models.Competition, ranking []rankingSnapshot) error {
	data, err := json.Marshal(ranking)
	if err != nil {
		return err
	}
	return s.db.Create(&models.CompetitionTick{
		CompetitionID: comp.ID,
		Scores:        string(data),
		CreatedAt:     s.now(),
	}).Error
}

func (s *CompetitionService) shouldBroadcastRanking(competitionID uint) bool {
	s.rankingMu.Lock()
	defer s.rankingMu.Unlock()

	now := s.now()
	if last, ok := s.lastRankingAt[competitionID]; ok && now.Sub(last) < rankingBroadcastInterval {
		return false
	}
	s.lastRankingAt[competitionID] = now
	return true
}

// endLocked finishes the competition at the given time and freezes the
// final ranking. Caller holds the competition lock.
func (s *CompetitionService) endLocked(comp *models.Competition, endedAt time.Time) error {
	if comp.EndedAt != nil {
		return nil
	}

	comp.Status = models.CompetitionStatusEnded
	comp.IsActive = false
	comp.EndedAt = &endedAt
	if err := s.db.Save(comp).Error; err != nil {
		return err
	}

	s.rankingMu.Lock()
	delete(s.lastRankingAt, comp.ID)
	s.rankingMu.Unlock()

	if _, err := s.recomputeRanking(comp.ID); err != nil {
		log.Printf("competition: final ranking for %d failed: %v", comp.ID, err)
	}
	entries, err := s.Leaderboard(comp.ID)
	if err != nil {
		log.Printf("competition: final leaderboard for %d failed: %v", comp.ID, err)
		entries = nil
	}

	s.hub.Publish(ws.CompetitionChannel(comp.ID), "competition_ended", map[string]interface{}{
		"competition": comp,
		"leaderboard": entries,
	})
	s.hub.Publish(ws.RoomChannel(comp.RoomID), "competition_ended", comp)
	return nil
}
