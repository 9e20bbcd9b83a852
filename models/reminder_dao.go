package models

import (
	"time"

	"gorm.io/gorm"
)

// ReminderDAO 封装 Reminder 相关的数据库操作
type ReminderDAO struct {
	db *gorm.DB
}

// NewReminderDAO 创建 ReminderDAO 实例
func NewReminderDAO(db *gorm.DB) *ReminderDAO {
	return &ReminderDAO{db: db}
}

// Create 创建提醒
func (dao *ReminderDAO) Create(r *Reminder) error {
	return dao.db.Create(r).Error
}

// CreateBatch 批量创建提醒（群发拆行）
func (dao *ReminderDAO) CreateBatch(rs []Reminder) error {
	if len(rs) == 0 {
		return nil
	}
	return dao.db.Create(&rs).Error
}

// FindDuePage 查一页到期提醒：due_date <= now、未通知、PENDING，最早到期在前。
// FAILED/COMPLETED 永远不会被再次取出（status 条件天然排除）。
//
// 翻页用 (due_date, id) 键集游标而不是 OFFSET：处理成功的行会因为状态
// 变化掉出过滤条件，OFFSET 会隔页跳过还没处理的到期行。afterID 为 0
// 表示第一页（此时 offset 仍生效，作为调用方指定的起始偏移）。
func (dao *ReminderDAO) FindDuePage(now time.Time, limit, offset int, afterDue time.Time, afterID uint64) ([]Reminder, error) {
	q := dao.db.Where("due_date <= ? AND notified = ? AND status = ?", now, false, ReminderStatusPending)
	if afterID > 0 {
		q = q.Where("(due_date > ? OR (due_date = ? AND id > ?))", afterDue, afterDue, afterID)
	} else if offset > 0 {
		q = q.Offset(offset)
	}

	var rs []Reminder
	err := q.Order("due_date ASC, id ASC").
		Limit(limit).
		Find(&rs).Error
	return rs, err
}

// MarkCompleted 通知成功：notified=true、last_notified、status=COMPLETED
func (dao *ReminderDAO) MarkCompleted(id uint64, now time.Time) error {
	return dao.db.Model(&Reminder{}).Where("id = ?", id).
		Updates(map[string]any{
			"notified":      true,
			"last_notified": now,
			"status":        ReminderStatusCompleted,
		}).Error
}

// BumpRetry 通知失败：retry_count+1、last_retry；到达阈值后置 FAILED。
// retryCount 为失败前的当前值。
func (dao *ReminderDAO) BumpRetry(id uint64, retryCount int, now time.Time) error {
	patch := map[string]any{
		"retry_count": retryCount + 1,
		"last_retry":  now,
	}
	if retryCount+1 >= ReminderMaxRetry {
		patch["status"] = ReminderStatusFailed
	}
	return dao.db.Model(&Reminder{}).Where("id = ?", id).Updates(patch).Error
}

// FindByUser 按用户列提醒，status 为空则不过滤
func (dao *ReminderDAO) FindByUser(userID uint64, status string, limit, offset int) ([]Reminder, error) {
	q := dao.db.Where("workspace_user_id = ?", userID)
	if status != "" {
		q = q.Where("status = ?", status)
	}
	var rs []Reminder
	err := q.Order("due_date DESC").Limit(limit).Offset(offset).Find(&rs).Error
	return rs, err
}
