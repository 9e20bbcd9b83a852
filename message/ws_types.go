package message

import "encoding/json"

// WS 上行（client -> server）消息类型
const (
	WsTypeJoin       = "join"           // 加入房间
	WsTypeLeave      = "leave"          // 离开房间
	WsTypeMessage    = "message"        // 发送消息
	WsTypeMsgEdit    = "message-edit"   // 编辑消息
	WsTypeMsgDelete  = "message-delete" // 删除消息（软删）
	WsTypeTyping     = "typing"         // 输入中
	WsTypeReadAck    = "read-receipt"   // 已读回执
	WsTypeUserStatus = "user-status"    // 声明身份（presence）
)

// WS 下行（server -> client）消息类型
const (
	WsTypeJoined      = "joined"          // 加入成功 ack（仅发给本人）
	WsTypeMsgEdited   = "message-edited"  // 编辑广播
	WsTypeMsgDeleted  = "message-deleted" // 删除广播
	WsTypeUserOnline  = "user-online"     // 用户上线
	WsTypeUserOffline = "user-offline"    // 用户下线
	WsTypeError       = "error"           // 定向错误
)

// 错误码：稳定字符串，连接不会因为错误被断开
const (
	ErrInvalidRoomID  = "INVALID_ROOM_ID"
	ErrInvalidPayload = "INVALID_PAYLOAD"
	ErrUnauthorized   = "UNAUTHORIZED"
	ErrForbidden      = "FORBIDDEN"
	ErrMsgValidation  = "MESSAGE_VALIDATION_FAILED"
	ErrJoin           = "JOIN_ERROR"
	ErrMessage        = "MESSAGE_ERROR"
	ErrEdit           = "EDIT_ERROR"
	ErrDelete         = "DELETE_ERROR"
	ErrReadReceipt    = "READ_RECEIPT_ERROR"
)

// Probe 只解 type，用于分发
type Probe struct {
	Type string `json:"type"`
}

// JoinReq 加入/离开房间
type JoinReq struct {
	Type   string `json:"type"`
	RoomID uint64 `json:"room_id"`
}

// SendReq 发送消息
// TempID 由客户端生成，ack 时原样带回用于本地消息匹配。
type SendReq struct {
	Type         string          `json:"type"`
	RoomID       uint64          `json:"room_id"`
	Body         string          `json:"body"`
	TempID       string          `json:"temp_id,omitempty"`
	ReplyToMsgID *uint64         `json:"reply_to_msg_id,omitempty"`
	MsgType      uint8           `json:"msg_type,omitempty"`
	Extra        json.RawMessage `json:"extra,omitempty"`
}

// EditReq 编辑消息
type EditReq struct {
	Type      string `json:"type"`
	RoomID    uint64 `json:"room_id"`
	MessageID uint64 `json:"message_id"`
	Body      string `json:"body"`
}

// DeleteReq 删除消息
type DeleteReq struct {
	Type      string `json:"type"`
	RoomID    uint64 `json:"room_id"`
	MessageID uint64 `json:"message_id"`
}

// TypingReq 输入状态，纯转发不落库
type TypingReq struct {
	Type     string `json:"type"`
	RoomID   uint64 `json:"room_id"`
	IsTyping bool   `json:"is_typing"`
}

// ReadAckReq 已读回执：当前用户在某房间已读到某条消息。
// last_read_msg_id 省略表示“房间内全部已读”。
type ReadAckReq struct {
	Type          string `json:"type"`
	RoomID        uint64 `json:"room_id"`
	LastReadMsgID uint64 `json:"last_read_msg_id,omitempty"`
}

// UserStatusReq 声明身份（presence 注册）
type UserStatusReq struct {
	Type   string `json:"type"`
	UserID uint64 `json:"user_id"`
}

// ErrorResp 定向错误事件
type ErrorResp struct {
	Type    string `json:"type"` // error
	Code    string `json:"code"`
	Message string `json:"message"`
	RoomID  uint64 `json:"room_id,omitempty"`
	TempID  string `json:"temp_id,omitempty"`
}

// JoinedResp 加入成功 ack
type JoinedResp struct {
	Type   string `json:"type"` // joined
	RoomID uint64 `json:"room_id"`
}

// TypingResp 输入状态广播
type TypingResp struct {
	Type     string `json:"type"` // typing
	RoomID   uint64 `json:"room_id"`
	UserID   uint64 `json:"user_id"`
	IsTyping bool   `json:"is_typing"`
}

// ReadAckResp 已读广播。刻意不带读者 ID：多名读者的回执对其他端不可区分，
// 这是沿用下来的已知限制。
type ReadAckResp struct {
	Type          string `json:"type"` // read-receipt
	RoomID        uint64 `json:"room_id"`
	LastReadMsgID uint64 `json:"last_read_msg_id,omitempty"`
}

// PresenceResp 上下线广播
type PresenceResp struct {
	Type   string `json:"type"` // user-online / user-offline
	UserID uint64 `json:"user_id"`
}
