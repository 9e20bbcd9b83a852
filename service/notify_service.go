package service

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/workhive/realtime-sdk/models"
	"gopkg.in/gomail.v2"
)

// NotifyService 提醒通知分发：按渠道（SMS/EMAIL/ALL）投递，
// 应用内 WS 推送总是尽力而为、不算入成败。
// 收件人缺少渠道地址（没邮箱/没手机号）按校验失败处理，
// 由上层转成重试记账。
type NotifyService struct {
	*Service
	mail   MailConfig
	dialer *gomail.Dialer
}

func NewNotifyService(s *Service, mail MailConfig) *NotifyService {
	ns := &NotifyService{Service: s, mail: mail}
	if mail.Host != "" {
		ns.dialer = gomail.NewDialer(mail.Host, mail.Port, mail.Username, mail.Password)
	}
	return ns
}

// SendReminder 向收件人投递一条到期提醒。
// 任一所需渠道失败即整体失败（让 dispatcher 重试整条提醒）。
func (s *NotifyService) SendReminder(r *models.Reminder, user *models.WorkspaceUser) error {
	if r == nil || user == nil {
		return errors.New("reminder/user is nil")
	}

	wantSMS := r.Channels == models.ReminderChannelSMS || r.Channels == models.ReminderChannelAll
	wantEmail := r.Channels == models.ReminderChannelEmail || r.Channels == models.ReminderChannelAll

	if wantEmail {
		if err := s.sendEmail(r, user); err != nil {
			return err
		}
	}
	if wantSMS {
		if err := s.sendSMS(r, user); err != nil {
			return err
		}
	}

	// 应用内推送：在线就收到，离线丢弃
	s.pushInApp(r)

	return nil
}

func (s *NotifyService) sendEmail(r *models.Reminder, user *models.WorkspaceUser) error {
	if user.Email == "" {
		return fmt.Errorf("用户 %d 没有邮箱，无法投递 EMAIL 提醒", user.ID)
	}
	if s.dialer == nil {
		return errors.New("SMTP 未配置")
	}

	m := gomail.NewMessage()
	m.SetHeader("From", s.mail.From)
	m.SetHeader("To", user.Email)
	m.SetHeader("Subject", "[提醒] "+r.Title)
	m.SetBody("text/plain", fmt.Sprintf("%s\n\n%s\n到期时间：%s",
		r.Title, r.Description, r.DueDate.Format("2006-01-02 15:04")))

	return s.dialer.DialAndSend(m)
}

func (s *NotifyService) sendSMS(r *models.Reminder, user *models.WorkspaceUser) error {
	if user.Phone == "" {
		return fmt.Errorf("用户 %d 没有手机号，无法投递 SMS 提醒", user.ID)
	}
	if s.SMSSender == nil {
		return errors.New("SMS sender 未配置")
	}
	return s.SMSSender(user.Phone, fmt.Sprintf("[提醒] %s（%s 到期）",
		r.Title, r.DueDate.Format("01-02 15:04")))
}

func (s *NotifyService) pushInApp(r *models.Reminder) {
	if s.WsNotifier == nil {
		return
	}
	payload := struct {
		Type        string    `json:"type"`
		ReminderID  uint64    `json:"reminder_id"`
		Title       string    `json:"title"`
		Description string    `json:"description,omitempty"`
		DueDate     time.Time `json:"due_date"`
		EntityType  string    `json:"entity_type,omitempty"`
		EntityID    uint64    `json:"entity_id,omitempty"`
	}{
		Type:        "reminder",
		ReminderID:  r.ID,
		Title:       r.Title,
		Description: r.Description,
		DueDate:     r.DueDate,
		EntityType:  r.EntityType,
		EntityID:    r.EntityID,
	}
	b, err := json.Marshal(payload)
	if err != nil {
		log.Printf("marshal reminder push failed: %v", err)
		return
	}
	s.WsNotifier(r.WorkspaceUserID, b)
}
