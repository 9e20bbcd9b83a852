package main

import (
	"log"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	realtime_sdk "github.com/workhive/realtime-sdk"
	"github.com/workhive/realtime-sdk/service"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
)

func main() {
	// 1. 初始化数据库连接
	dsn := "root:password@tcp(127.0.0.1:3306)/workdesk?charset=utf8mb4&parseTime=True&loc=Local"
	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{})
	if err != nil {
		log.Fatal("数据库连接失败:", err)
	}

	// Redis：token 鉴权与在线状态镜像
	rdb := redis.NewClient(&redis.Options{Addr: "127.0.0.1:6379"})

	// 2. 初始化 Realtime Engine（单例模式，全局只需调用一次）
	engine := realtime_sdk.NewEngine(
		realtime_sdk.WithDB(db),
		realtime_sdk.WithRDB(rdb),
		realtime_sdk.WithTablePrefix("wd_"), // 自定义表前缀

		// 提醒批处理：每页 50 条，页间停 1 秒
		realtime_sdk.WithReminderConfig(service.ReminderConfig{
			BatchSize: 50,
			PagePause: time.Second,
		}),

		// EMAIL 渠道（不配则 EMAIL 提醒按失败重试处理）
		realtime_sdk.WithMailConfig(service.MailConfig{
			Host:     "smtp.example.com",
			Port:     587,
			Username: "noreply@example.com",
			Password: "password",
			From:     "noreply@example.com",
		}),

		// SMS 渠道由宿主注入（对接自己的短信网关）
		realtime_sdk.WithSMSSender(func(phone, body string) error {
			log.Printf("[sms] to=%s body=%s", phone, body)
			return nil
		}),
	)

	// 3. 启动提醒 cron（每分钟一跳，进程内单飞）
	if err := engine.StartReminderCron(); err != nil {
		log.Fatal("提醒定时器启动失败:", err)
	}
	defer engine.StopReminderCron()

	// 4. 创建 Gin 路由
	r := gin.Default()

	// 设置 CORS（如果需要）
	r.Use(func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}
		c.Next()
	})

	// 注册 Swagger UI
	realtime_sdk.RegisterSwagger(r, "/swagger/*any")

	// 5. WebSocket 连接路由
	// 客户端连接：ws://localhost:8080/ws?token=xxx
	// 带 token 升级时直接带上身份；匿名升级后由 user-status 事件声明
	r.GET("/ws", func(c *gin.Context) {
		engine.ServeWS(c.Writer, c.Request)
	})

	// 6. API 路由组（统一走 token 鉴权）
	api := r.Group("/api/v1")
	api.Use(engine.GinAuthMiddleware(nil))

	// 房间模块
	roomAPI := api.Group("/room")
	{
		roomAPI.POST("/create", engine.GinHandleCreateRoom)
		roomAPI.POST("/member/add", engine.GinHandleAddRoomMember)
		roomAPI.POST("/member/remove", engine.GinHandleRemoveRoomMember)
		roomAPI.GET("/list", engine.GinHandleListRooms)
		roomAPI.GET("/online", engine.GinHandleRoomOnlineMembers)
	}

	// 消息模块
	messageAPI := api.Group("/message")
	{
		messageAPI.GET("/list", engine.GinHandleGetRoomMessages)
		messageAPI.GET("/detail", engine.GinHandleGetMessageByID)
		messageAPI.GET("/audit", engine.GinHandleGetRoomMessagesAudit)
	}

	// 提醒模块
	reminderAPI := api.Group("/reminder")
	{
		reminderAPI.POST("/create", engine.GinHandleCreateReminder)
		reminderAPI.GET("/list", engine.GinHandleListReminders)
		reminderAPI.POST("/check", engine.GinHandleCheckDueReminders)
	}

	// 7. 启动服务
	log.Println("服务启动: http://localhost:8080")
	if err := r.Run(":8080"); err != nil {
		log.Fatal("服务启动失败:", err)
	}
}
