package services

import (
	"fmt"
	"math/rand"
	"time"

	"focusroom-backend/internal/apperr"
	"focusroom-backend/internal/models"
	"focusroom-backend/internal/ws"

	"gorm.io/gorm"
)

type RoomService struct {
	db  *gorm.DB
	hub *ws.Hub
}

func NewRoomService(db *gorm.DB, hub *ws.Hub) *RoomService {
	return &RoomService{db: db, hub: hub}
}

func (s *RoomService) CreateRoom(hostID uint, name string) (*models.Room, error) {
	if name == "" {
		return nil, apperr.New(apperr.Validation, "room name is required")
	}

	var host models.User
	if err := s.db.First(&host, hostID).Error; err != nil {
		return nil, apperr.New(apperr.NotFound, "user not found")
	}

	room := models.Room{
		HostID: hostID,
		Name:   name,
		Code:   s.generateUniqueCode(),
		Status: models.RoomStatusActive,
	}
	if err := s.db.Create(&room).Error; err != nil {
		return nil, err
	}

	member := models.RoomMember{
		RoomID:       room.ID,
		UserID:       hostID,
		Nickname:     host.Nickname,
		JoinedAt:     time.Now(),
		LastActiveAt: time.Now(),
	}
	if err := s.db.Create(&member).Error; err != nil {
		return nil, err
	}

	s.db.Preload("Members").First(&room, room.ID)
	return &room, nil
}

func (s *RoomService) GetRoom(roomID uint) (*models.Room, error) {
	var room models.Room
	if err := s.db.Preload("Members").First(&room, roomID).Error; err != nil {
		return nil, apperr.New(apperr.NotFound, "room not found")
	}
	return &room, nil
}

func (s *RoomService) GetRoomByCode(code string) (*models.Room, error) {
	var room models.Room
	if err := s.db.Preload("Members").
		Where("code = ? AND status = ?", code, models.RoomStatusActive).
		First(&room).Error; err != nil {
		return nil, apperr.New(apperr.NotFound, "room not found")
	}
	return &room, nil
}

func (s *RoomService) JoinRoom(roomID, userID uint) (*models.RoomMember, error) {
	var room models.Room
	if err := s.db.First(&room, roomID).Error; err != nil {
		return nil, apperr.New(apperr.NotFound, "room not found")
	}
	if room.Status != models.RoomStatusActive {
		return nil, apperr.New(apperr.Conflict, "room is closed")
	}

	var user models.User
	if err := s.db.First(&user, userID).Error; err != nil {
		return nil, apperr.New(apperr.NotFound, "user not found")
	}

	var member models.RoomMember
	if err := s.db.Where("room_id = ? AND user_id = ?", roomID, userID).
		First(&member).Error; err == nil {
		// Rejoin: clear the soft-leave marker.
		member.LeftAt = nil
		member.LastActiveAt = time.Now()
		if err := s.db.Save(&member).Error; err != nil {
			return nil, err
		}
		s.hub.Publish(ws.RoomChannel(roomID), "member_joined", member)
		return &member, nil
	}

	member = models.RoomMember{
		RoomID:       roomID,
		UserID:       userID,
		Nickname:     user.Nickname,
		JoinedAt:     time.Now(),
		LastActiveAt: time.Now(),
	}
	if err := s.db.Create(&member).Error; err != nil {
		return nil, err
	}

	s.hub.Publish(ws.RoomChannel(roomID), "member_joined", member)
	return &member, nil
}

func (s *RoomService) LeaveRoom(roomID, userID uint) error {
	var member models.RoomMember
	if err := s.db.Where("room_id = ? AND user_id = ?", roomID, userID).
		First(&member).Error; err != nil {
		return apperr.New(apperr.NotFound, "not a member of this room")
	}
	if member.LeftAt != nil {
		return nil
	}

	now := time.Now()
	member.LeftAt = &now
	if err := s.db.Save(&member).Error; err != nil {
		return err
	}

	s.hub.Publish(ws.RoomChannel(roomID), "member_left", member)
	return nil
}

func (s *RoomService) Heartbeat(roomID, userID uint) error {
	res := s.db.Model(&models.RoomMember{}).
		Where("room_id = ? AND user_id = ? AND left_at IS NULL", roomID, userID).
		Update("last_active_at", time.Now())
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return apperr.New(apperr.NotFound, "not a present member of this room")
	}
	return nil
}

func (s *RoomService) CloseRoom(roomID, userID uint) error {
	var room models.Room
	if err := s.db.First(&room, roomID).Error; err != nil {
		return apperr.New(apperr.NotFound, "room not found")
	}
	if room.HostID != userID {
		return apperr.New(apperr.Forbidden, "only the host can close the room")
	}
	if room.Status == models.RoomStatusClosed {
		return nil
	}

	room.Status = models.RoomStatusClosed
	if err := s.db.Save(&room).Error; err != nil {
		return err
	}

	s.hub.Publish(ws.RoomChannel(roomID), "room_closed", nil)
	return nil
}

// PresentMembers returns members whose soft-leave marker is unset.
func (s *RoomService) PresentMembers(roomID uint) ([]models.RoomMember, error) {
	var members []models.RoomMember
	if err := s.db.Where("room_id = ? AND left_at IS NULL", roomID).
		Order("joined_at ASC").
		Find(&members).Error; err != nil {
		return nil, err
	}
	return members, nil
}

func (s *RoomService) ListActiveRooms(userID uint) ([]models.Room, error) {
	var rooms []models.Room
	if err := s.db.
		Joins("JOIN room_members ON room_members.room_id = rooms.id").
		Where("room_members.user_id = ? AND rooms.status = ?", userID, models.RoomStatusActive).
		Order("rooms.created_at DESC").
		Find(&rooms).Error; err != nil {
		return nil, err
	}
	return rooms, nil
}

func (s *RoomService) generateUniqueCode() string {
	for {
		code := fmt.Sprintf("%06d", rand.Intn(1000000))
		var count int64
		s.db.Model(&models.Room{}).
			Where("code = ? AND status = ?", code, models.RoomStatusActive).
			Count(&count)
		if count == 0 {
			return code
		}
	}
}
