package services

import (
	"testing"
	"time"

	"focusroom-backend/internal/apperr"
	"focusroom-backend/internal/models"
	"focusroom-backend/internal/ws"
)

func newCompetitionFixture(t *testing.T) (*CompetitionService, *RoomService, *fixedClock) {
	t.Helper()
	db := newTestDB(t)
	hub := ws.NewHub()
	clock := newFixedClock(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC))

	rooms := NewRoomService(db, hub)
	competitions := NewCompetitionService(db, hub)
	competitions.now = clock.Now

	return competitions, rooms, clock
}

func TestStartConflictsWithActiveCompetition(t *testing.T) {
	competitions, rooms, _ := newCompetitionFixture(t)
	db := competitions.db

	host := createUser(t, db, "host")
	room := createRoomWithMembers(t, db, rooms, host)

	if _, err := competitions.Start(room.ID, host.ID, models.CompetitionModeFocus, "one", 25, nil); err != nil {
		t.Fatalf("first start: %v", err)
	}
	_, err := competitions.Start(room.ID, host.ID, models.CompetitionModeFocus, "two", 25, nil)
	if !apperr.IsKind(err, apperr.Conflict) {
		t.Fatalf("expected Conflict, got %v", err)
	}
}

func TestStartSweepsExpiredCompetition(t *testing.T) {
	competitions, rooms, clock := newCompetitionFixture(t)
	db := competitions.db

	host := createUser(t, db, "host")
	room := createRoomWithMembers(t, db, rooms, host)

	first, err := competitions.Start(room.ID, host.ID, models.CompetitionModeFocus, "one", 25, nil)
	if err != nil {
		t.Fatalf("first start: %v", err)
	}

	clock.Advance(30 * time.Minute)

	if _, err := competitions.Start(room.ID, host.ID, models.CompetitionModeFocus, "two", 25, nil); err != nil {
		t.Fatalf("expected start after natural end of prior, got %v", err)
	}

	got, err := competitions.GetCompetition(first.ID)
	if err != nil {
		t.Fatalf("get first: %v", err)
	}
	if got.IsActive || got.EndedAt == nil {
		t.Fatal("expected swept competition to be ended")
	}
	if !got.EndedAt.Equal(got.ScheduledEnd()) {
		t.Fatalf("expected ended_at at scheduled end, got %v", got.EndedAt)
	}
}

func TestTickUpdatesScoresAndRanking(t *testing.T) {
	competitions, rooms, _ := newCompetitionFixture(t)
	db := competitions.db

	host := createUser(t, db, "host")
	other := createUser(t, db, "other")
	room := createRoomWithMembers(t, db, rooms, host, other)

	comp, err := competitions.Start(room.ID, host.ID, models.CompetitionModeFocus, "", 25, []uint{other.ID})
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	if _, err := competitions.Tick(comp.ID, host.ID, 60, 5); err != nil {
		t.Fatalf("tick host: %v", err)
	}
	p, err := competitions.Tick(comp.ID, other.ID, 80, 10)
	if err != nil {
		t.Fatalf("tick other: %v", err)
	}
	if p.TotalScore != 80 {
		t.Fatalf("expected last-value-wins score 80, got %v", p.TotalScore)
	}
	if p.FocusedMinutes != 10 {
		t.Fatalf("expected 10 focused minutes, got %d", p.FocusedMinutes)
	}

	// Last value wins: a lower later score replaces, not accumulates.
	p, err = competitions.Tick(comp.ID, other.ID, 40, 0)
	if err != nil {
		t.Fatalf("second tick other: %v", err)
	}
	if p.TotalScore != 40 {
		t.Fatalf("expected score 40, got %v", p.TotalScore)
	}
	if p.AverageScore != 60 {
		t.Fatalf("expected running average 60, got %v", p.AverageScore)
	}

	entries, err := competitions.Leaderboard(comp.ID)
	if err != nil {
		t.Fatalf("leaderboard: %v", err)
	}
	if entries[0].UserID != host.ID || entries[1].UserID != other.ID {
		t.Fatalf("unexpected ranking order: %+v", entries)
	}

	var ticks int64
	db.Model(&models.CompetitionTick{}).Where("competition_id = ?", comp.ID).Count(&ticks)
	if ticks != 3 {
		t.Fatalf("expected 3 appended snapshots, got %d", ticks)
	}
}

func TestRankingTieBreaksOnJoinOrder(t *testing.T) {
	competitions, rooms, _ := newCompetitionFixture(t)
	db := competitions.db

	host := createUser(t, db, "host")
	other := createUser(t, db, "other")
	room := createRoomWithMembers(t, db, rooms, host, other)

	comp, err := competitions.Start(room.ID, host.ID, models.CompetitionModeFocus, "", 25, []uint{other.ID})
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	// Force distinct join times, then identical scores.
	db.Model(&models.CompetitionParticipant{}).
		Where("competition_id = ? AND user_id = ?", comp.ID, other.ID).
		Update("joined_at", time.Date(2026, 3, 1, 9, 1, 0, 0, time.UTC))

	if _, err := competitions.Tick(comp.ID, other.ID, 70, 0); err != nil {
		t.Fatalf("tick other: %v", err)
	}
	if _, err := competitions.Tick(comp.ID, host.ID, 70, 0); err != nil {
		t.Fatalf("tick host: %v", err)
	}

	entries, err := competitions.Leaderboard(comp.ID)
	if err != nil {
		t.Fatalf("leaderboard: %v", err)
	}
	if entries[0].UserID != host.ID {
		t.Fatalf("expected earlier joiner ranked first on tie, got %+v", entries)
	}
}

func TestTickRequiresEnrollment(t *testing.T) {
	competitions, rooms, _ := newCompetitionFixture(t)
	db := competitions.db

	host := createUser(t, db, "host")
	outsider := createUser(t, db, "outsider")
	room := createRoomWithMembers(t, db, rooms, host)

	comp, err := competitions.Start(room.ID, host.ID, models.CompetitionModeFocus, "", 25, nil)
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	_, err = competitions.Tick(comp.ID, outsider.ID, 50, 0)
	if !apperr.IsKind(err, apperr.Forbidden) {
		t.Fatalf("expected Forbidden, got %v", err)
	}
}

func TestTickAfterNaturalEnd(t *testing.T) {
	competitions, rooms, clock := newCompetitionFixture(t)
	db := competitions.db

	host := createUser(t, db, "host")
	room := createRoomWithMembers(t, db, rooms, host)

	comp, err := competitions.Start(room.ID, host.ID, models.CompetitionModeFocus, "", 25, nil)
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	clock.Advance(30 * time.Minute)

	_, err = competitions.Tick(comp.ID, host.ID, 90, 0)
	if !apperr.IsKind(err, apperr.NotActive) {
		t.Fatalf("expected NotActive past scheduled end, got %v", err)
	}

	got, err := competitions.GetCompetition(comp.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.EndedAt == nil || !got.EndedAt.Equal(got.ScheduledEnd()) {
		t.Fatalf("expected lazy end at scheduled time, got %v", got.EndedAt)
	}
}

func TestEndIsIdempotent(t *testing.T) {
	competitions, rooms, clock := newCompetitionFixture(t)
	db := competitions.db

	host := createUser(t, db, "host")
	room := createRoomWithMembers(t, db, rooms, host)

	comp, err := competitions.Start(room.ID, host.ID, models.CompetitionModeFocus, "", 25, nil)
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	clock.Advance(10 * time.Minute)
	first, err := competitions.End(comp.ID, host.ID)
	if err != nil {
		t.Fatalf("first end: %v", err)
	}

	clock.Advance(2 * time.Minute)
	second, err := competitions.End(comp.ID, host.ID)
	if err != nil {
		t.Fatalf("second end: %v", err)
	}
	if !first.EndedAt.Equal(*second.EndedAt) {
		t.Fatalf("expected identical ended_at, got %v then %v", first.EndedAt, second.EndedAt)
	}
}

func TestEndClearsRankingThrottle(t *testing.T) {
	competitions, rooms, clock := newCompetitionFixture(t)
	db := competitions.db

	host := createUser(t, db, "host")
	room := createRoomWithMembers(t, db, rooms, host)

	comp, err := competitions.Start(room.ID, host.ID, models.CompetitionModeFocus, "", 25, nil)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if _, err := competitions.Tick(comp.ID, host.ID, 60, 5); err != nil {
		t.Fatalf("tick: %v", err)
	}

	clock.Advance(10 * time.Minute)
	if _, err := competitions.End(comp.ID, host.ID); err != nil {
		t.Fatalf("end: %v", err)
	}

	competitions.rankingMu.Lock()
	_, ok := competitions.lastRankingAt[comp.ID]
	competitions.rankingMu.Unlock()
	if ok {
		t.Fatal("expected ranking throttle entry dropped on end")
	}
}

func TestEndRequiresHost(t *testing.T) {
	competitions, rooms, _ := newCompetitionFixture(t)
	db := competitions.db

	host := createUser(t, db, "host")
	other := createUser(t, db, "other")
	room := createRoomWithMembers(t, db, rooms, host, other)

	comp, err := competitions.Start(room.ID, host.ID, models.CompetitionModeFocus, "", 25, []uint{other.ID})
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	_, err = competitions.End(comp.ID, other.ID)
	if !apperr.IsKind(err, apperr.Forbidden) {
		t.Fatalf("expected Forbidden, got %v", err)
	}
}

func TestRecoverRespectsManualEarlyEnd(t *testing.T) {
	competitions, rooms, clock := newCompetitionFixture(t)
	db := competitions.db

	host := createUser(t, db, "host")
	room := createRoomWithMembers(t, db, rooms, host)

	comp, err := competitions.Start(room.ID, host.ID, models.CompetitionModeFocus, "", 25, nil)
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	clock.Advance(10 * time.Minute)
	ended, err := competitions.End(comp.ID, host.ID)
	if err != nil {
		t.Fatalf("end: %v", err)
	}

	// Still inside the 25 minute window: recovery must not resurrect a
	// competition the host ended on purpose.
	recovered, err := competitions.Recover(room.ID)
	if err != nil {
		t.Fatalf("recover: %v", err)
	}
	if recovered.IsActive {
		t.Fatal("expected manually ended competition to stay ended")
	}
	if !recovered.EndedAt.Equal(*ended.EndedAt) {
		t.Fatalf("expected ended_at untouched, got %v", recovered.EndedAt)
	}
}

func TestRecoverReassertsActiveWithinWindow(t *testing.T) {
	competitions, rooms, clock := newCompetitionFixture(t)
	db := competitions.db

	host := createUser(t, db, "host")
	room := createRoomWithMembers(t, db, rooms, host)

	comp, err := competitions.Start(room.ID, host.ID, models.CompetitionModeFocus, "", 25, nil)
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	// Simulate a crash that dropped the in-memory active signal.
	db.Model(&models.Competition{}).Where("id = ?", comp.ID).
		Updates(map[string]interface{}{"is_active": false, "status": models.CompetitionStatusEnded})

	clock.Advance(5 * time.Minute)

	recovered, err := competitions.Recover(room.ID)
	if err != nil {
		t.Fatalf("recover: %v", err)
	}
	if !recovered.IsActive || recovered.Status != models.CompetitionStatusActive {
		t.Fatalf("expected recovery to re-assert active, got %+v", recovered)
	}
}

func TestRecoverWithNoCompetition(t *testing.T) {
	competitions, rooms, _ := newCompetitionFixture(t)
	db := competitions.db

	host := createUser(t, db, "host")
	room := createRoomWithMembers(t, db, rooms, host)

	recovered, err := competitions.Recover(room.ID)
	if err != nil {
		t.Fatalf("recover: %v", err)
	}
	if recovered != nil {
		t.Fatalf("expected nil competition, got %+v", recovered)
	}
}
