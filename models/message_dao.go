package models

import (
	"gorm.io/gorm"
)

// MessageDAO 封装 Message 相关的数据库操作
type MessageDAO struct {
	db *gorm.DB
}

// NewMessageDAO 创建 MessageDAO 实例
func NewMessageDAO(db *gorm.DB) *MessageDAO {
	return &MessageDAO{db: db}
}

// Create 创建消息
func (dao *MessageDAO) Create(msg *Message) error {
	return dao.db.Create(msg).Error
}

// FindByID 根据ID查找消息
func (dao *MessageDAO) FindByID(id uint64) (*Message, error) {
	var msg Message
	err := dao.db.Where("id = ?", id).First(&msg).Error
	if err != nil {
		return nil, err
	}
	return &msg, nil
}

// FindByRoomID 获取房间消息列表（新的在前）
func (dao *MessageDAO) FindByRoomID(roomID uint64, limit, offset int) ([]Message, error) {
	var messages []Message
	err := dao.db.Where("room_id = ?", roomID).
		Order("created_at DESC").
		Limit(limit).
		Offset(offset).
		Find(&messages).Error
	return messages, err
}

// UpdateContent 编辑消息：改正文并置 is_edited
func (dao *MessageDAO) UpdateContent(id uint64, content string) error {
	return dao.db.Model(&Message{}).Where("id = ?", id).
		Updates(map[string]any{"content": content, "is_edited": true}).Error
}

// SoftDelete 软删消息：只置位，正文保留
func (dao *MessageDAO) SoftDelete(id uint64) error {
	return dao.db.Model(&Message{}).Where("id = ?", id).
		Update("is_deleted", true).Error
}

// FindUnreceipted 找出房间内“别人发的、还没有该成员回执”的消息 ID。
// beforeID > 0 时只取 id <= beforeID 的消息（read-receipt 携带游标的场景）。
func (dao *MessageDAO) FindUnreceipted(roomID, memberID, senderID uint64, beforeID uint64) ([]uint64, error) {
	q := dao.db.Model(&Message{}).
		Select("`"+prefix+"message`.`id`").
		Joins("LEFT JOIN `"+prefix+"message_read_receipt` r ON r.message_id = `"+prefix+"message`.`id` AND r.member_id = ?", memberID).
		Where("`"+prefix+"message`.`room_id` = ? AND `"+prefix+"message`.`sender_id` <> ?", roomID, senderID).
		Where("r.id IS NULL")
	if beforeID > 0 {
		q = q.Where("`"+prefix+"message`.`id` <= ?", beforeID)
	}

	var ids []uint64
	err := q.Pluck("id", &ids).Error
	return ids, err
}
