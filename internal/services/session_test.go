package services

import (
	"testing"

	"focusroom-backend/internal/models"
	"focusroom-backend/internal/ws"
)

func newSessionFixture(t *testing.T) (*SessionService, *ChallengeService, *CompetitionService, *RoomService) {
	t.Helper()
	db := newTestDB(t)
	hub := ws.NewHub()

	rooms := NewRoomService(db, hub)
	challenges := NewChallengeService(db, hub)
	competitions := NewCompetitionService(db, hub)
	sessions := NewSessionService(db, challenges, competitions, hub)

	return sessions, challenges, competitions, rooms
}

func TestCompleteSessionFansOut(t *testing.T) {
	sessions, challenges, competitions, rooms := newSessionFixture(t)
	db := sessions.db

	host := createUser(t, db, "host")
	room := createRoomWithMembers(t, db, rooms, host)

	ch, err := challenges.CreateChallenge(room.ID, host.ID, "focus marathon",
		models.ChallengeTypeFocusTime, 120, "minutes", 0)
	if err != nil {
		t.Fatalf("create challenge: %v", err)
	}
	comp, err := competitions.Start(room.ID, host.ID, models.CompetitionModeFocus, "", 60, nil)
	if err != nil {
		t.Fatalf("start competition: %v", err)
	}

	session, err := sessions.StartSession(room.ID, host.ID)
	if err != nil {
		t.Fatalf("start session: %v", err)
	}
	if session.SessionKey == "" {
		t.Fatal("expected a session key")
	}

	completed, err := sessions.CompleteSession(session.ID, host.ID, 45, 85)
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if !completed.Completed || completed.EndedAt == nil {
		t.Fatal("expected session sealed")
	}

	got, err := challenges.GetChallenge(ch.ID)
	if err != nil {
		t.Fatalf("get challenge: %v", err)
	}
	if got.CurrentValue != 45 {
		t.Fatalf("expected challenge progress 45, got %v", got.CurrentValue)
	}

	var participant models.CompetitionParticipant
	if err := db.Where("competition_id = ? AND user_id = ?", comp.ID, host.ID).
		First(&participant).Error; err != nil {
		t.Fatalf("load participant: %v", err)
	}
	if participant.TotalScore != 85 || participant.FocusedMinutes != 45 {
		t.Fatalf("expected competition tick applied, got %+v", participant)
	}
}

func TestCompleteSessionIsIdempotent(t *testing.T) {
	sessions, challenges, _, rooms := newSessionFixture(t)
	db := sessions.db

	host := createUser(t, db, "host")
	room := createRoomWithMembers(t, db, rooms, host)

	ch, err := challenges.CreateChallenge(room.ID, host.ID, "focus marathon",
		models.ChallengeTypeFocusTime, 120, "minutes", 0)
	if err != nil {
		t.Fatalf("create challenge: %v", err)
	}

	session, err := sessions.StartSession(room.ID, host.ID)
	if err != nil {
		t.Fatalf("start session: %v", err)
	}
	if _, err := sessions.CompleteSession(session.ID, host.ID, 30, 70); err != nil {
		t.Fatalf("complete: %v", err)
	}

	// A retried completion must not double-apply.
	if _, err := sessions.CompleteSession(session.ID, host.ID, 30, 70); err != nil {
		t.Fatalf("retry: %v", err)
	}

	got, err := challenges.GetChallenge(ch.ID)
	if err != nil {
		t.Fatalf("get challenge: %v", err)
	}
	if got.CurrentValue != 30 {
		t.Fatalf("expected progress 30 after retry, got %v", got.CurrentValue)
	}
}
