package realtime_sdk

import (
	"github.com/go-redis/redis/v8"
	"github.com/workhive/realtime-sdk/service"
	"gorm.io/gorm"
)

type Config struct {
	DB          *gorm.DB
	RDB         *redis.Client
	TablePrefix string

	// Reminder 提醒批处理配置（批大小/页间停顿/页数上限）
	Reminder service.ReminderConfig

	// Mail SMTP 配置，EMAIL 渠道用；Host 为空表示未配置
	Mail service.MailConfig

	// SMSSender 短信发送回调，由宿主注入；nil 表示 SMS 渠道不可用
	SMSSender func(phone, body string) error

	// AutoMigrate 初始化时是否自动建表，默认 true
	SkipAutoMigrate bool
}

type Option func(*Config)

func WithDB(db *gorm.DB) Option {
	return func(c *Config) {
		c.DB = db
	}
}

func WithRDB(rdb *redis.Client) Option {
	return func(c *Config) {
		c.RDB = rdb
	}
}

func WithTablePrefix(prefix string) Option {
	return func(c *Config) {
		c.TablePrefix = prefix
	}
}

// WithReminderConfig 配置提醒批处理
func WithReminderConfig(cfg service.ReminderConfig) Option {
	return func(c *Config) {
		c.Reminder = cfg
	}
}

// WithMailConfig 配置 SMTP（EMAIL 提醒渠道）
func WithMailConfig(cfg service.MailConfig) Option {
	return func(c *Config) {
		c.Mail = cfg
	}
}

// WithSMSSender 注入短信发送实现
func WithSMSSender(fn func(phone, body string) error) Option {
	return func(c *Config) {
		c.SMSSender = fn
	}
}

// WithSkipAutoMigrate 跳过自动建表（宿主自己管 schema 时用）
func WithSkipAutoMigrate() Option {
	return func(c *Config) {
		c.SkipAutoMigrate = true
	}
}
