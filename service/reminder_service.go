package service

import (
	"errors"
	"log"
	"strings"
	"sync/atomic"
	"time"

	"github.com/workhive/realtime-sdk/models"
)

// ReminderService 到期提醒的批处理与创建。
//
// 批处理由外部定时器（cron，每分钟）触发，进程内单飞：
// 上一轮还没跑完时新 tick 直接丢弃，不排队、不并行。
type ReminderService struct {
	*Service
	dao *models.ReminderDAO
	cfg ReminderConfig

	// running 单飞标志。普通 bool 在真并行下有竞态，必须 CAS。
	running int32

	// pause 翻页间停顿，测试里可替换
	pause func(d time.Duration)
}

func NewReminderService(s *Service, cfg ReminderConfig) *ReminderService {
	return &ReminderService{
		Service: s,
		dao:     models.NewReminderDAO(s.DB),
		cfg:     cfg.withDefaults(),
		pause:   time.Sleep,
	}
}

// ErrAlreadyRunning 上一轮批处理还在执行，本次 tick 被丢弃
var ErrAlreadyRunning = errors.New("上一轮提醒批处理还在执行")

// CheckDueReminders 处理到期提醒。唯一的对外入口，cron 和 HTTP 都打到这里。
//
// batchSize<=0 用配置默认值（50）；offset 是起始偏移（一般传 0）。
// 返回 processed（本轮成功+失败都算处理过）与 hasMore
// （true 表示因页数上限或翻页出错提前收工，库里可能还有到期行）。
//
// 重入安全：并发调用时后来者立即返回 (0, false, ErrAlreadyRunning)，
// 不会碰任何提醒行。
func (s *ReminderService) CheckDueReminders(batchSize, offset int) (processed int, hasMore bool, err error) {
	if !atomic.CompareAndSwapInt32(&s.running, 0, 1) {
		return 0, false, ErrAlreadyRunning
	}
	defer atomic.StoreInt32(&s.running, 0)

	if batchSize <= 0 {
		batchSize = s.cfg.BatchSize
	}
	if offset < 0 {
		offset = 0
	}

	now := time.Now()
	pages := 0

	// 翻页靠 (due_date, id) 游标：已处理的行掉出过滤条件后，
	// OFFSET 递增会隔页跳过还没处理的到期行
	var afterDue time.Time
	var afterID uint64

	for {
		batch, err := s.dao.FindDuePage(now, batchSize, offset, afterDue, afterID)
		if err != nil {
			// 查询本身挂了：本轮收工，标志已在 defer 里释放，下个 tick 照常
			log.Printf("查询到期提醒失败: %v", err)
			return processed, pages > 0, err
		}
		if len(batch) == 0 {
			return processed, false, nil
		}

		for i := range batch {
			s.processOne(&batch[i])
			processed++
		}

		last := batch[len(batch)-1]
		afterDue, afterID = last.DueDate, last.ID

		if len(batch) < batchSize {
			return processed, false, nil
		}

		pages++
		if s.cfg.MaxPages > 0 && pages >= s.cfg.MaxPages {
			return processed, true, nil
		}

		// 限速：页间停顿，别把通知渠道打满
		s.pause(s.cfg.PagePause)
	}
}

// processOne 单条提醒的处理，完全隔离：
// 任何失败（包括通知校验失败）都转成重试记账，绝不影响同批其他行。
func (s *ReminderService) processOne(r *models.Reminder) {
	now := time.Now()

	err := s.notify(r)
	if err != nil {
		log.Printf("提醒 %d 通知失败 (retry=%d): %v", r.ID, r.RetryCount, err)
		if e := s.dao.BumpRetry(r.ID, r.RetryCount, now); e != nil {
			log.Printf("提醒 %d 重试记账失败: %v", r.ID, e)
		}
		return
	}

	if err := s.dao.MarkCompleted(r.ID, now); err != nil {
		log.Printf("提醒 %d 标记完成失败: %v", r.ID, err)
		return
	}

	// 父行已完成，重复提醒另起一条全新 PENDING。
	// 两步在逻辑上连带，但父行更新已成功，不强求同事务。
	s.spawnRecurrence(r)
}

func (s *ReminderService) notify(r *models.Reminder) error {
	if s.Notify == nil {
		return errors.New("notify service 未初始化")
	}
	var user models.WorkspaceUser
	if err := s.DB.First(&user, r.WorkspaceUserID).Error; err != nil {
		return err
	}
	return s.Notify.SendReminder(r, &user)
}

func (s *ReminderService) spawnRecurrence(r *models.Reminder) {
	next, ok := NextDueDate(r.DueDate, r.RepeatInterval)
	if !ok {
		if r.RepeatInterval != "" && r.RepeatInterval != models.ReminderRepeatNone {
			// 未识别的间隔：按无重复处理，只记一笔，不算错误
			log.Printf("提醒 %d 重复间隔 %q 未识别，跳过重复", r.ID, r.RepeatInterval)
		}
		return
	}

	succ := models.Reminder{
		Title:           r.Title,
		Description:     r.Description,
		DueDate:         next,
		Status:          models.ReminderStatusPending,
		Channels:        r.Channels,
		RepeatInterval:  r.RepeatInterval,
		WorkspaceUserID: r.WorkspaceUserID,
		EntityType:      r.EntityType,
		EntityID:        r.EntityID,
	}
	if err := s.dao.Create(&succ); err != nil {
		log.Printf("提醒 %d 创建下一期失败: %v", r.ID, err)
	}
}

// NextDueDate 计算下一期到期时间。
// monthly 用“夹到月末”的日历加月：1-31 加一个月落到 2-28/29，
// 绝不滚到 3 月初。未识别的间隔返回 ok=false。
func NextDueDate(due time.Time, interval string) (time.Time, bool) {
	switch interval {
	case models.ReminderRepeatDaily:
		return due.AddDate(0, 0, 1), true
	case models.ReminderRepeatWeekly:
		return due.AddDate(0, 0, 7), true
	case models.ReminderRepeatMonthly:
		return addMonthClamped(due), true
	default:
		return time.Time{}, false
	}
}

// addMonthClamped 加一个月，日号超过目标月天数时夹到月末。
// 刻意不用 time.AddDate：它的溢出归一化会把 1-31 变成 3-2/3-3。
func addMonthClamped(t time.Time) time.Time {
	y, m, d := t.Date()
	firstOfNext := time.Date(y, m+1, 1, 0, 0, 0, 0, t.Location())
	// 下个月最后一天：再下个月 1 号减一天
	lastDay := time.Date(y, m+2, 1, 0, 0, 0, 0, t.Location()).AddDate(0, 0, -1).Day()
	if d > lastDay {
		d = lastDay
	}
	hh, mm, ss := t.Clock()
	return time.Date(firstOfNext.Year(), firstOfNext.Month(), d, hh, mm, ss, t.Nanosecond(), t.Location())
}

// CreateReminderInput 创建提醒入参（单发或群发）
type CreateReminderInput struct {
	Title          string
	Description    string
	DueDate        time.Time
	Channels       string
	RepeatInterval string
	EntityType     string
	EntityID       uint64

	// Recipients 显式收件人；Filters 按人群筛选。
	// 两者都空时落到 DefaultUserID 一个人。
	Recipients    []uint64
	Filters       *RecipientFilter
	DefaultUserID uint64
}

// RecipientFilter 群发人群筛选
type RecipientFilter struct {
	Group string // user_group 精确匹配
	Label string // labels 包含
	Query string // username/nickname/email 模糊
}

// CreateReminders 创建提醒。
// 带 recipients 或 filters 时按人拆行：每个收件人一条独立提醒，
// 独立重试、独立重复。返回创建的行。
func (s *ReminderService) CreateReminders(in CreateReminderInput) ([]models.Reminder, error) {
	title := strings.TrimSpace(in.Title)
	if title == "" {
		return nil, errors.New("title 不能为空")
	}
	if in.DueDate.IsZero() {
		return nil, errors.New("due_date 不能为空")
	}
	channels := in.Channels
	if channels == "" {
		channels = models.ReminderChannelAll
	}
	switch channels {
	case models.ReminderChannelSMS, models.ReminderChannelEmail, models.ReminderChannelAll:
	default:
		return nil, errors.New("channels 只支持 SMS/EMAIL/ALL")
	}
	interval := in.RepeatInterval
	if interval == "" {
		interval = models.ReminderRepeatNone
	}

	recipients, err := s.resolveRecipients(in)
	if err != nil {
		return nil, err
	}
	if len(recipients) == 0 {
		return nil, errors.New("没有可投递的收件人")
	}

	rows := make([]models.Reminder, 0, len(recipients))
	for _, uid := range recipients {
		rows = append(rows, models.Reminder{
			Title:           title,
			Description:     in.Description,
			DueDate:         in.DueDate,
			Status:          models.ReminderStatusPending,
			Channels:        channels,
			RepeatInterval:  interval,
			WorkspaceUserID: uid,
			EntityType:      in.EntityType,
			EntityID:        in.EntityID,
		})
	}
	if err := s.dao.CreateBatch(rows); err != nil {
		return nil, err
	}
	return rows, nil
}

func (s *ReminderService) resolveRecipients(in CreateReminderInput) ([]uint64, error) {
	// 显式收件人优先；去重
	if len(in.Recipients) > 0 {
		uniq := make(map[uint64]struct{}, len(in.Recipients))
		out := make([]uint64, 0, len(in.Recipients))
		for _, uid := range in.Recipients {
			if uid == 0 {
				continue
			}
			if _, ok := uniq[uid]; ok {
				continue
			}
			uniq[uid] = struct{}{}
			out = append(out, uid)
		}
		return out, nil
	}

	if f := in.Filters; f != nil {
		q := s.DB.Model(&models.WorkspaceUser{})
		if f.Group != "" {
			q = q.Where("user_group = ?", f.Group)
		}
		if f.Label != "" {
			q = q.Where("labels LIKE ?", "%"+f.Label+"%")
		}
		if f.Query != "" {
			kw := "%" + f.Query + "%"
			q = q.Where("(username LIKE ? OR nickname LIKE ? OR email LIKE ?)", kw, kw, kw)
		}
		var ids []uint64
		if err := q.Pluck("id", &ids).Error; err != nil {
			return nil, err
		}
		return ids, nil
	}

	if in.DefaultUserID > 0 {
		return []uint64{in.DefaultUserID}, nil
	}
	return nil, nil
}

// ListReminders 按用户列提醒；FAILED 的行也要能看到，不能悄悄消失
func (s *ReminderService) ListReminders(userID uint64, status string, limit, offset int) ([]models.Reminder, error) {
	if limit <= 0 {
		limit = 50
	}
	if limit > 200 {
		limit = 200
	}
	return s.dao.FindByUser(userID, status, limit, offset)
}
