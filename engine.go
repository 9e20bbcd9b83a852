package realtime_sdk

import (
	"log"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/robfig/cron/v3"
	"github.com/workhive/realtime-sdk/middleware"
	model "github.com/workhive/realtime-sdk/models"
	"github.com/workhive/realtime-sdk/service"
)

// RealtimeEngine 聚合实时消息网关与提醒引擎的入口。
// 宿主 CRM 用选项模式构建一次，挂路由、起 cron，然后只和各 Service 打交道。
type RealtimeEngine struct {
	config *Config

	RoomService        *service.RoomService
	MsgService         *service.MessageService
	ReadReceiptService *service.ReadReceiptService
	ReminderService    *service.ReminderService
	NotifyService      *service.NotifyService
	AuthService        *service.AuthService // 鉴权服务
	WsServer           *WsServer

	cron *cron.Cron
}

var (
	Instance *RealtimeEngine
	once     sync.Once
)

// NewEngine 创建实例
// 使用选项模式传入配置，Option回调
func NewEngine(opts ...Option) *RealtimeEngine {
	once.Do(func() {
		c := &Config{
			TablePrefix: "wd_", // Default
		}
		for _, opt := range opts {
			opt(c)
		}

		Instance = &RealtimeEngine{config: c}

		// 初始化 WS
		Instance.WsServer = NewWsServer(c.RDB)
		go Instance.WsServer.Run()

		// 初始化基础 Service，注入 WsNotifier 回调
		baseService := &service.Service{
			DB:          c.DB,
			RDB:         c.RDB,
			TablePrefix: c.TablePrefix,
			WsNotifier:  Instance.WsServer.SendToUser, // 注入 WebSocket 通知函数
			SMSSender:   c.SMSSender,
		}
		baseService.Notify = service.NewNotifyService(baseService, c.Mail)

		// 初始化各个 Service
		Instance.RoomService = service.NewRoomService(baseService)
		Instance.MsgService = service.NewMessageService(baseService)
		Instance.ReadReceiptService = service.NewReadReceiptService(baseService)
		Instance.ReminderService = service.NewReminderService(baseService, c.Reminder)
		Instance.NotifyService = baseService.Notify
		Instance.AuthService = service.NewAuthService(c.RDB) // 初始化鉴权服务

		// 迁移表
		if !c.SkipAutoMigrate {
			if err := Instance.AutoMigrate(); err != nil {
				log.Printf("AutoMigrate failed: %v", err)
			}
		}

		// 绑定 WS 事件分发
		Instance.bindWsHandlers()
	})

	return Instance
}

func (e *RealtimeEngine) AutoMigrate() error {
	db := e.config.DB
	log.Println("AutoMigrate...")
	return db.AutoMigrate(
		&model.WorkspaceUser{},
		&model.Room{},
		&model.RoomMember{},
		&model.Message{},
		&model.MessageReadReceipt{},
		&model.Reminder{},
	)
}

// StartReminderCron 启动每分钟一跳的提醒批处理。
// 单飞保护在 CheckDueReminders 里：上一轮没跑完时这一跳直接丢弃。
func (e *RealtimeEngine) StartReminderCron() error {
	if e.cron != nil {
		return nil
	}
	e.cron = cron.New()
	_, err := e.cron.AddFunc("@every 1m", func() {
		processed, hasMore, err := e.ReminderService.CheckDueReminders(0, 0)
		if err != nil && err != service.ErrAlreadyRunning {
			log.Printf("提醒批处理出错: %v", err)
		}
		if processed > 0 {
			log.Printf("提醒批处理完成 processed=%d hasMore=%v", processed, hasMore)
		}
	})
	if err != nil {
		return err
	}
	e.cron.Start()
	return nil
}

// StopReminderCron 停掉提醒定时器（优雅关停用）
func (e *RealtimeEngine) StopReminderCron() {
	if e.cron != nil {
		ctx := e.cron.Stop()
		<-ctx.Done()
		e.cron = nil
	}
}

// ServeWS 处理 WebSocket 升级。带 token 则先解析身份，解析不了按匿名升级，
// 后续由 user-status 声明（匿名连接只能在声明身份后操作房间）。
func (e *RealtimeEngine) ServeWS(w http.ResponseWriter, r *http.Request) {
	var authUserID uint64
	if e.AuthService != nil {
		if uid, _, err := e.AuthService.AuthenticateRequest(r.Context(), r); err == nil {
			authUserID = uid
		}
	}
	e.WsServer.ServeWS(w, r, authUserID)
}

// GinAuthMiddleware 返回配置好的 Gin 鉴权中间件
// 使用 RealtimeEngine 内部的 AuthService 和 Redis 配置
//
// 使用示例:
//
//	engine := realtime_sdk.NewEngine(...)
//	r := gin.Default()
//	r.Use(engine.GinAuthMiddleware(nil)) // 使用默认配置
func (e *RealtimeEngine) GinAuthMiddleware(opt *middleware.AuthOptions) gin.HandlerFunc {
	return middleware.GinAuthMiddleware(e.AuthService, opt)
}
