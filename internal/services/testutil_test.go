package services

import (
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"focusroom-backend/internal/models"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var testDBCounter int64

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	n := atomic.AddInt64(&testDBCounter, 1)
	dsn := fmt.Sprintf("file:focusroom_test_%d?mode=memory&cache=shared", n)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("unwrap test db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	if err := db.AutoMigrate(
		&models.User{},
		&models.Room{},
		&models.RoomMember{},
		&models.ChallengeInvitation{},
		&models.InvitationVoter{},
		&models.InvitationResponse{},
		&models.Competition{},
		&models.CompetitionParticipant{},
		&models.CompetitionTick{},
		&models.GroupChallenge{},
		&models.ChallengeContribution{},
		&models.ContributionEvent{},
		&models.FocusSession{},
	); err != nil {
		t.Fatalf("migrate test db: %v", err)
	}
	return db
}

func createUser(t *testing.T, db *gorm.DB, username string) *models.User {
	t.Helper()
	user := models.User{Username: username, PasswordHash: "x", Nickname: username}
	if err := db.Create(&user).Error; err != nil {
		t.Fatalf("create user %s: %v", username, err)
	}
	return &user
}

// createRoomWithMembers creates a room hosted by the first user with
// every listed user joined and present.
func createRoomWithMembers(t *testing.T, db *gorm.DB, rooms *RoomService, users ...*models.User) *models.Room {
	t.Helper()
	if len(users) == 0 {
		t.Fatal("createRoomWithMembers needs at least a host")
	}

	room, err := rooms.CreateRoom(users[0].ID, "study room")
	if err != nil {
		t.Fatalf("create room: %v", err)
	}
	for _, u := range users[1:] {
		if _, err := rooms.JoinRoom(room.ID, u.ID); err != nil {
			t.Fatalf("join room for %s: %v", u.Username, err)
		}
	}
	return room
}

// fixedClock is a controllable time source for the lazy expiry paths.
type fixedClock struct {
	t time.Time
}

func newFixedClock(t time.Time) *fixedClock {
	return &fixedClock{t: t}
}

func (c *fixedClock) Now() time.Time {
	return c.t
}

func (c *fixedClock) Advance(d time.Duration) {
	c.t = c.t.Add(d)
}
