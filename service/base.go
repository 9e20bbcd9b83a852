package service

import (
	"time"

	"github.com/go-redis/redis/v8"
	"gorm.io/gorm"
)

// Service 基础服务，包含数据库和配置
type Service struct {
	DB          *gorm.DB
	RDB         *redis.Client
	TablePrefix string

	// WsNotifier 用于发送 WebSocket 通知的回调函数
	// 避免循环依赖，通过函数注入的方式
	WsNotifier func(userID uint64, message []byte)

	// SMSSender 短信发送回调（由宿主注入；nil 表示未配置）
	SMSSender func(phone, body string) error

	// Notify 提醒通知分发（邮件/短信/应用内）
	Notify *NotifyService
}

// Table 获取带前缀的表名
func (s *Service) Table(name string) *gorm.DB {
	return s.DB.Table(s.TablePrefix + name)
}

// ReminderConfig 提醒批处理配置
type ReminderConfig struct {
	// BatchSize 每页取多少条到期提醒，默认 50
	BatchSize int
	// PagePause 翻页之间的停顿（限速），默认 1s
	PagePause time.Duration
	// MaxPages 单次 tick 最多处理多少页，0 表示不限
	MaxPages int
}

func (c ReminderConfig) withDefaults() ReminderConfig {
	out := c
	if out.BatchSize <= 0 {
		out.BatchSize = 50
	}
	if out.PagePause <= 0 {
		out.PagePause = time.Second
	}
	return out
}

// MailConfig SMTP 配置（EMAIL 渠道）
type MailConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}
