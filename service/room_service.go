package service

import (
	"errors"
	"time"

	"github.com/workhive/realtime-sdk/models"
	"gorm.io/gorm"
)

// RoomService 房间与成员关系。
// 成员表是所有房间操作的准入依据：left_at IS NULL 才算在席。
type RoomService struct {
	*Service
}

func NewRoomService(s *Service) *RoomService {
	return &RoomService{Service: s}
}

// GetRoomByID 根据 ID 查房间
func (s *RoomService) GetRoomByID(roomID uint64) (*models.Room, error) {
	var room models.Room
	if err := s.DB.First(&room, roomID).Error; err != nil {
		return nil, err
	}
	return &room, nil
}

// IsActiveMember 是否为房间在席成员
func (s *RoomService) IsActiveMember(roomID, userID uint64) (bool, error) {
	var count int64
	err := s.DB.Model(&models.RoomMember{}).
		Where("room_id = ? AND workspace_user_id = ? AND left_at IS NULL", roomID, userID).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// GetActiveMember 查在席成员行（回执要用到 member_id）
func (s *RoomService) GetActiveMember(roomID, userID uint64) (*models.RoomMember, error) {
	var m models.RoomMember
	err := s.DB.Where("room_id = ? AND workspace_user_id = ? AND left_at IS NULL", roomID, userID).
		First(&m).Error
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// GetRoomMemberIDs 获取房间全部在席成员的用户 ID
func (s *RoomService) GetRoomMemberIDs(roomID uint64) ([]uint64, error) {
	var ids []uint64
	err := s.DB.Model(&models.RoomMember{}).
		Where("room_id = ? AND left_at IS NULL", roomID).
		Pluck("workspace_user_id", &ids).Error
	return ids, err
}

// CreateRoom 建房并把创建者写成第一个在席成员
func (s *RoomService) CreateRoom(name string, kind uint8, creatorID uint64, memberIDs []uint64) (*models.Room, error) {
	if kind == 0 {
		kind = models.RoomKindInternal
	}
	room := &models.Room{Name: name, Kind: kind, CreatorID: creatorID}

	err := s.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(room).Error; err != nil {
			return err
		}
		seen := map[uint64]struct{}{}
		ids := append([]uint64{creatorID}, memberIDs...)
		for _, uid := range ids {
			if uid == 0 {
				continue
			}
			if _, ok := seen[uid]; ok {
				continue
			}
			seen[uid] = struct{}{}
			m := models.RoomMember{RoomID: room.ID, WorkspaceUserID: uid, JoinTime: time.Now()}
			if err := tx.Create(&m).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return room, nil
}

// AddMember 加成员。已有历史行（退过房）则清掉 left_at 复位在席，幂等。
func (s *RoomService) AddMember(roomID, userID uint64) error {
	var m models.RoomMember
	err := s.DB.Where("room_id = ? AND workspace_user_id = ?", roomID, userID).First(&m).Error
	if err == nil {
		if m.LeftAt == nil {
			return nil
		}
		return s.DB.Model(&models.RoomMember{}).Where("id = ?", m.ID).
			Updates(map[string]interface{}{"left_at": nil, "join_time": time.Now()}).Error
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}
	return s.DB.Create(&models.RoomMember{
		RoomID:          roomID,
		WorkspaceUserID: userID,
		JoinTime:        time.Now(),
	}).Error
}

// RemoveMember 移除成员：打上 left_at，不删行（回执还挂在成员行上）。幂等。
func (s *RoomService) RemoveMember(roomID, userID uint64) error {
	now := time.Now()
	return s.DB.Model(&models.RoomMember{}).
		Where("room_id = ? AND workspace_user_id = ? AND left_at IS NULL", roomID, userID).
		Update("left_at", &now).Error
}

// ListRoomsByUser 用户在席的全部房间，按活跃时间倒序
func (s *RoomService) ListRoomsByUser(userID uint64) ([]models.Room, error) {
	var rooms []models.Room
	roomTable := models.Room{}.TableName()
	memberTable := models.RoomMember{}.TableName()
	err := s.DB.
		Joins("JOIN "+memberTable+" rm ON rm.room_id = "+roomTable+".id").
		Where("rm.workspace_user_id = ? AND rm.left_at IS NULL", userID).
		Order("last_activity_at DESC").
		Find(&rooms).Error
	return rooms, err
}

// TouchLastActivity 消息落库后刷新房间活跃时间
func (s *RoomService) TouchLastActivity(roomID uint64, at time.Time) error {
	return s.DB.Model(&models.Room{}).Where("id = ?", roomID).
		UpdateColumn("last_activity_at", at).Error
}

// IsNotFound gorm 未找到
func IsNotFound(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound)
}
