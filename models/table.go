package models

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	prefix = "wd_"
)

// WorkspaceUser 工作区用户表
// 账号/密码等凭据由宿主系统管理，这里只存通知与筛选需要的字段。
type WorkspaceUser struct {
	ID        uint64 `gorm:"primarykey"`
	UID       string `gorm:"size:36;uniqueIndex;not null"`      // 对外用户 ID
	Username  string `gorm:"size:50;uniqueIndex;not null"`      // 用户名
	Nickname  string `gorm:"size:100;not null"`                 // 昵称
	Avatar    string `gorm:"size:500"`                          // 头像
	Phone     string `gorm:"size:20;default:null"`              // 手机号（SMS 通知用）
	Email     string `gorm:"size:100;uniqueIndex;default:null"` // 邮箱（EMAIL 通知用）
	UserGroup string `gorm:"size:50;index"`                     // 所属分组（销售/客服等，群发筛选用）
	Labels    string `gorm:"size:255"`                          // 标签，逗号分隔（群发筛选用）
	CreatedAt time.Time
	UpdatedAt time.Time
	DeletedAt gorm.DeletedAt `gorm:"index"`

	// 关联关系
	Rooms     []RoomMember `gorm:"foreignKey:WorkspaceUserID"`
	Messages  []Message    `gorm:"foreignKey:SenderID"`
	Reminders []Reminder   `gorm:"foreignKey:WorkspaceUserID"`
}

func (WorkspaceUser) TableName() string {
	return prefix + "workspace_user"
}

// 房间类型
const (
	RoomKindInternal = 1 // 内部聊天室
	RoomKindSupport  = 2 // 工单/客服会话
)

// Room 聊天房间表（内部聊天室或工单会话共用一张表）
type Room struct {
	ID uint64 `gorm:"primarykey"`

	Name           string     `gorm:"size:100"`               // 房间名称
	Kind           uint8      `gorm:"type:tinyint;default:1"` // 类型: 1-内部 2-工单
	CreatorID      uint64     `gorm:"index"`                  // 创建者 ID（由宿主的建房/建单流程写入）
	LastActivityAt *time.Time `gorm:"index"`                  // 最后活跃时间（每条消息落库后更新）

	CreatedAt time.Time
	UpdatedAt time.Time
	DeletedAt gorm.DeletedAt `gorm:"index"`

	// 关联关系
	Members  []RoomMember `gorm:"foreignKey:RoomID;references:ID"`
	Messages []Message    `gorm:"foreignKey:RoomID;references:ID"`
}

func (Room) TableName() string {
	return prefix + "room"
}

// RoomMember 房间成员表
// left_at 为 NULL 表示在席；任何房间操作都要求存在在席成员行。
type RoomMember struct {
	ID              uint64     `gorm:"primarykey"`
	RoomID          uint64     `gorm:"index:idx_room_user,unique;not null"` // 房间 ID
	WorkspaceUserID uint64     `gorm:"index:idx_room_user,unique;not null"` // 用户 ID
	LeftAt          *time.Time `gorm:"index"`                               // 离开时间（NULL=在席）
	JoinTime        time.Time  `gorm:"default:CURRENT_TIMESTAMP"`           // 加入时间
	CreatedAt       time.Time
	UpdatedAt       time.Time

	// 关联关系
	Room Room          `gorm:"foreignKey:RoomID;references:ID"`
	User WorkspaceUser `gorm:"foreignKey:WorkspaceUserID"`
}

func (RoomMember) TableName() string {
	return prefix + "room_member"
}

// 消息类型
const (
	MessageTypeText   = 1 // 文本
	MessageTypeImage  = 2 // 图片
	MessageTypeFile   = 3 // 文件
	MessageTypeSystem = 4 // 系统提示
)

// MessageMaxLen 消息正文最大长度（trim 后）
const MessageMaxLen = 4000

// Message 消息表
// 删除是软删：is_deleted 置位、正文保留（审计/导出还要查），
// 常规读取路径负责隐藏正文，不做物理清除。
type Message struct {
	ID           uint64         `gorm:"primarykey"`
	RoomID       uint64         `gorm:"index;not null"`         // 房间 ID
	SenderID     uint64         `gorm:"index;not null"`         // 发送者 ID
	ReplyToMsgID *uint64        `gorm:"index"`                  // 回复的消息 ID（必须同房间）
	Type         uint8          `gorm:"type:tinyint;default:1"` // 消息类型
	Content      string         `gorm:"type:text;not null"`     // 消息内容
	Extra        datatypes.JSON `gorm:"column:extra;type:json"`
	IsEdited     bool           `gorm:"default:false"` // 是否编辑过
	IsDeleted    bool           `gorm:"default:false"` // 是否已删除（软删标记）
	CreatedAt    time.Time
	UpdatedAt    time.Time

	// 关联关系
	Room    Room          `gorm:"foreignKey:RoomID;references:ID"`
	Sender  WorkspaceUser `gorm:"foreignKey:SenderID"`
	ReplyTo *Message      `gorm:"foreignKey:ReplyToMsgID"`
}

func (Message) TableName() string {
	return prefix + "message"
}

// MessageReadReceipt 已读回执表
// 唯一键 (message_id, member_id) 保证同一成员对同一消息最多一条回执；
// 只对“别人发的消息”产生回执。
type MessageReadReceipt struct {
	ID        uint64    `gorm:"primarykey"`
	MessageID uint64    `gorm:"index:idx_msg_member,unique;not null"` // 消息 ID
	MemberID  uint64    `gorm:"index:idx_msg_member,unique;not null"` // 成员行 ID（RoomMember.ID）
	RoomID    uint64    `gorm:"index;not null"`                       // 房间 ID（冗余，查询方便）
	ReadAt    time.Time // 阅读时间
	CreatedAt time.Time

	// 关联关系
	Message Message    `gorm:"foreignKey:MessageID"`
	Member  RoomMember `gorm:"foreignKey:MemberID"`
}

func (MessageReadReceipt) TableName() string {
	return prefix + "message_read_receipt"
}

// 提醒状态
const (
	ReminderStatusPending   = "PENDING"
	ReminderStatusCompleted = "COMPLETED"
	ReminderStatusFailed    = "FAILED"
)

// 提醒通知渠道
const (
	ReminderChannelSMS   = "SMS"
	ReminderChannelEmail = "EMAIL"
	ReminderChannelAll   = "ALL"
)

// 提醒重复间隔
const (
	ReminderRepeatDaily   = "daily"
	ReminderRepeatWeekly  = "weekly"
	ReminderRepeatMonthly = "monthly"
	ReminderRepeatNone    = "none"
)

// ReminderMaxRetry 连续失败多少次后置为 FAILED
const ReminderMaxRetry = 3

// Reminder 提醒表
// 群发时按收件人拆成多行，每行独立重试/独立重复。
type Reminder struct {
	ID              uint64     `gorm:"primarykey"`
	Title           string     `gorm:"size:200;not null"`             // 标题
	Description     string     `gorm:"size:1000"`                     // 描述
	DueDate         time.Time  `gorm:"index;not null"`                // 到期时间
	Status          string     `gorm:"size:16;index;default:PENDING"` // PENDING/COMPLETED/FAILED
	Notified        bool       `gorm:"default:false;index"`           // 是否已成功通知
	Channels        string     `gorm:"size:16;default:ALL"`           // SMS/EMAIL/ALL
	RepeatInterval  string     `gorm:"size:16;default:none"`          // daily/weekly/monthly/none
	RetryCount      int        `gorm:"default:0"`                     // 已重试次数
	LastRetry       *time.Time // 最近一次重试时间
	LastNotified    *time.Time // 最近一次成功通知时间
	WorkspaceUserID uint64     `gorm:"index;not null"` // 收件人
	EntityType      string     `gorm:"size:50;index"`  // 关联业务对象类型（invoice/ticket/...）
	EntityID        uint64     `gorm:"index"`          // 关联业务对象 ID
	CreatedAt       time.Time
	UpdatedAt       time.Time

	// 关联关系
	User WorkspaceUser `gorm:"foreignKey:WorkspaceUserID"`
}

func (Reminder) TableName() string {
	return prefix + "reminder"
}
