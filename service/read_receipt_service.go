package service

import (
	"time"

	"github.com/workhive/realtime-sdk/models"
	"gorm.io/gorm/clause"
)

// ReadReceiptService 已读回执落库。
// 回执按 (message_id, member_id) 唯一，批量插入允许重复投递：
// 冲突行直接跳过（INSERT ... ON CONFLICT DO NOTHING 等价）。
type ReadReceiptService struct {
	*Service
	messageDAO *models.MessageDAO
}

func NewReadReceiptService(s *Service) *ReadReceiptService {
	return &ReadReceiptService{Service: s, messageDAO: models.NewMessageDAO(s.DB)}
}

// MarkReadUpTo 为某在席成员补写回执：
// 选出房间内别人发的、id <= lastReadMsgID（为 0 表示全部）、且还没有该成员回执的消息，
// 批量插入回执行。返回补写条数。
func (s *ReadReceiptService) MarkReadUpTo(member *models.RoomMember, lastReadMsgID uint64) (int, error) {
	if member == nil {
		return 0, nil
	}

	ids, err := s.messageDAO.FindUnreceipted(member.RoomID, member.ID, member.WorkspaceUserID, lastReadMsgID)
	if err != nil {
		return 0, err
	}
	if len(ids) == 0 {
		return 0, nil
	}

	now := time.Now()
	rows := make([]models.MessageReadReceipt, 0, len(ids))
	for _, mid := range ids {
		rows = append(rows, models.MessageReadReceipt{
			MessageID: mid,
			MemberID:  member.ID,
			RoomID:    member.RoomID,
			ReadAt:    now,
			CreatedAt: now,
		})
	}

	// OnConflict DoNothing: 容忍并发/重放造成的重复回执
	if err := s.DB.Clauses(clause.OnConflict{DoNothing: true}).Create(&rows).Error; err != nil {
		return 0, err
	}
	return len(rows), nil
}
