package service

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/workhive/realtime-sdk/models"
	"gorm.io/datatypes"
)

// 校验类错误：发到 WS 之前就拦下，不产生任何副作用
var (
	ErrEmptyBody      = errors.New("消息内容不能为空")
	ErrBodyTooLong    = fmt.Errorf("消息内容超过 %d 字符", models.MessageMaxLen)
	ErrReplyCrossRoom = errors.New("只能回复同房间的消息")
	ErrNotOwner       = errors.New("只能操作自己的消息")
	ErrWrongRoom      = errors.New("消息不属于该房间")
)

// MessageDTO 消息数据传输对象（避免 Swagger 递归）
type MessageDTO struct {
	ID           uint64         `json:"id"`
	RoomID       uint64         `json:"room_id"`
	SenderID     uint64         `json:"sender_id"`
	ReplyToMsgID *uint64        `json:"reply_to_msg_id,omitempty"`
	Type         uint8          `json:"type"`
	Content      string         `json:"content"`
	Extra        datatypes.JSON `json:"extra,omitempty"`
	IsEdited     bool           `json:"is_edited"`
	IsDeleted    bool           `json:"is_deleted"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
}

// ToMessageDTO 将 Message 转换为 MessageDTO。
// 已删除的消息正文在这里统一脱敏：删除是读取时的可见性问题，不是物理擦除。
func ToMessageDTO(msg *models.Message) *MessageDTO {
	if msg == nil {
		return nil
	}
	dto := &MessageDTO{
		ID:           msg.ID,
		RoomID:       msg.RoomID,
		SenderID:     msg.SenderID,
		ReplyToMsgID: msg.ReplyToMsgID,
		Type:         msg.Type,
		Content:      msg.Content,
		Extra:        msg.Extra,
		IsEdited:     msg.IsEdited,
		IsDeleted:    msg.IsDeleted,
		CreatedAt:    msg.CreatedAt,
		UpdatedAt:    msg.UpdatedAt,
	}
	if msg.IsDeleted {
		dto.Content = ""
		dto.Extra = nil
	}
	return dto
}

func toMessageDTOs(msgs []models.Message) []MessageDTO {
	out := make([]MessageDTO, 0, len(msgs))
	for i := range msgs {
		if dto := ToMessageDTO(&msgs[i]); dto != nil {
			out = append(out, *dto)
		}
	}
	return out
}

type MessageService struct {
	*Service
	messageDAO *models.MessageDAO
}

func NewMessageService(s *Service) *MessageService {
	return &MessageService{Service: s, messageDAO: models.NewMessageDAO(s.DB)}
}

// ValidateBody trim 后非空且不超长，返回清洗后的正文
func (s *MessageService) ValidateBody(body string) (string, error) {
	body = strings.TrimSpace(body)
	if body == "" {
		return "", ErrEmptyBody
	}
	if len([]rune(body)) > models.MessageMaxLen {
		return "", ErrBodyTooLong
	}
	return body, nil
}

// SaveMessage 保存消息到数据库。
// replyTo 非空时校验被回复消息必须在同一房间。
// 落库成功后刷新房间活跃时间（失败只记日志，不影响消息本身）。
func (s *MessageService) SaveMessage(roomID, senderID uint64, body string, msgType uint8, replyTo *uint64, extra []byte) (*models.Message, error) {
	body, err := s.ValidateBody(body)
	if err != nil {
		return nil, err
	}
	if msgType == 0 {
		msgType = models.MessageTypeText
	}

	if replyTo != nil && *replyTo > 0 {
		parent, err := s.messageDAO.FindByID(*replyTo)
		if err != nil {
			return nil, err
		}
		if parent.RoomID != roomID {
			return nil, ErrReplyCrossRoom
		}
	}

	msg := &models.Message{
		RoomID:       roomID,
		SenderID:     senderID,
		ReplyToMsgID: replyTo,
		Type:         msgType,
		Content:      body,
		Extra:        datatypes.JSON(extra),
	}
	if err := s.messageDAO.Create(msg); err != nil {
		return nil, err
	}

	_ = s.DB.Model(&models.Room{}).Where("id = ?", roomID).
		UpdateColumn("last_activity_at", msg.CreatedAt).Error

	return msg, nil
}

// checkOwnership 编辑/删除共用：消息存在、属于该房间、且是本人发的
func (s *MessageService) checkOwnership(roomID, messageID, userID uint64) (*models.Message, error) {
	msg, err := s.messageDAO.FindByID(messageID)
	if err != nil {
		return nil, err
	}
	if msg.RoomID != roomID {
		return nil, ErrWrongRoom
	}
	if msg.SenderID != userID {
		return nil, ErrNotOwner
	}
	return msg, nil
}

// EditMessage 编辑消息：重写正文并置 is_edited
func (s *MessageService) EditMessage(roomID, messageID, userID uint64, body string) (*models.Message, error) {
	body, err := s.ValidateBody(body)
	if err != nil {
		return nil, err
	}
	msg, err := s.checkOwnership(roomID, messageID, userID)
	if err != nil {
		return nil, err
	}
	if err := s.messageDAO.UpdateContent(messageID, body); err != nil {
		return nil, err
	}
	msg.Content = body
	msg.IsEdited = true
	return msg, nil
}

// DeleteMessage 软删消息：置位 is_deleted，正文保留
func (s *MessageService) DeleteMessage(roomID, messageID, userID uint64) (*models.Message, error) {
	msg, err := s.checkOwnership(roomID, messageID, userID)
	if err != nil {
		return nil, err
	}
	if err := s.messageDAO.SoftDelete(messageID); err != nil {
		return nil, err
	}
	msg.IsDeleted = true
	return msg, nil
}

// GetRoomMessages 获取房间消息列表（分页，已删除消息正文脱敏）
func (s *MessageService) GetRoomMessages(roomID uint64, limit, offset int) ([]MessageDTO, error) {
	msgs, err := s.messageDAO.FindByRoomID(roomID, limit, offset)
	if err != nil {
		return nil, err
	}
	return toMessageDTOs(msgs), nil
}

// GetRoomMessagesForAudit 审计/导出用：原样返回，包含已删除消息的正文
func (s *MessageService) GetRoomMessagesForAudit(roomID uint64, limit, offset int) ([]models.Message, error) {
	return s.messageDAO.FindByRoomID(roomID, limit, offset)
}

// GetMessageByID 根据ID获取消息
func (s *MessageService) GetMessageByID(messageID uint64) (*models.Message, error) {
	return s.messageDAO.FindByID(messageID)
}
