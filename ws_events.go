package realtime_sdk

import (
	"encoding/json"
	"errors"
	"log"

	"github.com/workhive/realtime-sdk/message"
	"github.com/workhive/realtime-sdk/service"
)

// bindWsHandlers 把 WS 事件分发从 engine.go 抽出来，避免 engine.go 臃肿。
// 放在包根目录（和 WsServer/engine.go 同级），可以直接访问 Instance 与
// Client 类型，避免 service 层循环依赖。
//
// 错误处理约定：所有错误都是发给当事连接的定向 error 事件，
// 带稳定 code；连接永远不会因为业务错误被断开。
func (e *RealtimeEngine) bindWsHandlers() {
	e.WsServer.onMessage = func(client *Client, msg []byte) {
		if client == nil {
			return
		}

		var probe message.Probe
		if err := json.Unmarshal(msg, &probe); err != nil {
			sendWsError(client, message.ErrInvalidPayload, "无法解析消息，需要 JSON", 0, "")
			return
		}

		// 声明身份前只放行 user-status
		if probe.Type == message.WsTypeUserStatus {
			e.onUserStatus(client, msg)
			return
		}
		if client.UserID == 0 {
			sendWsError(client, message.ErrUnauthorized, "请先通过 user-status 声明身份", 0, "")
			return
		}

		switch probe.Type {
		case message.WsTypeJoin:
			e.onJoin(client, msg)
		case message.WsTypeLeave:
			e.onLeave(client, msg)
		case message.WsTypeMessage:
			e.onMessage(client, msg)
		case message.WsTypeMsgEdit:
			e.onMessageEdit(client, msg)
		case message.WsTypeMsgDelete:
			e.onMessageDelete(client, msg)
		case message.WsTypeTyping:
			e.onTyping(client, msg)
		case message.WsTypeReadAck:
			e.onReadReceipt(client, msg)
		default:
			sendWsError(client, message.ErrInvalidPayload, "未知的消息类型: "+probe.Type, 0, "")
		}
	}
}

// onUserStatus 声明身份。升级时带了 token 身份的连接只能声明成自己。
func (e *RealtimeEngine) onUserStatus(client *Client, msg []byte) {
	var req message.UserStatusReq
	if err := json.Unmarshal(msg, &req); err != nil || req.UserID == 0 {
		sendWsError(client, message.ErrInvalidPayload, "user_id 不能为空", 0, "")
		return
	}
	if client.AuthUserID != 0 && req.UserID != client.AuthUserID {
		sendWsError(client, message.ErrUnauthorized, "声明的身份与登录身份不一致", 0, "")
		return
	}
	e.WsServer.BindUser(client, req.UserID)
}

// onJoin 加入房间：校验房间存在 + 在席成员，订阅广播组，只给本人回 joined。
// 任何失败只回定向错误，不产生广播。
func (e *RealtimeEngine) onJoin(client *Client, msg []byte) {
	var req message.JoinReq
	if err := json.Unmarshal(msg, &req); err != nil || req.RoomID == 0 {
		sendWsError(client, message.ErrInvalidRoomID, "room_id 不能为空", 0, "")
		return
	}

	if _, err := e.RoomService.GetRoomByID(req.RoomID); err != nil {
		if service.IsNotFound(err) {
			sendWsError(client, message.ErrInvalidRoomID, "房间不存在", req.RoomID, "")
		} else {
			log.Printf("join: 查房间失败 room=%d user=%d: %v", req.RoomID, client.UserID, err)
			sendWsError(client, message.ErrJoin, "加入房间失败", req.RoomID, "")
		}
		return
	}

	ok, err := e.RoomService.IsActiveMember(req.RoomID, client.UserID)
	if err != nil {
		log.Printf("join: 成员校验失败 room=%d user=%d: %v", req.RoomID, client.UserID, err)
		sendWsError(client, message.ErrJoin, "加入房间失败", req.RoomID, "")
		return
	}
	if !ok {
		sendWsError(client, message.ErrForbidden, "你不是该房间成员", req.RoomID, "")
		return
	}

	e.WsServer.JoinRoom(client, req.RoomID)

	b, _ := json.Marshal(message.JoinedResp{Type: message.WsTypeJoined, RoomID: req.RoomID})
	e.WsServer.sendTo(client, b)
}

// onLeave 退订。没加入过也是 no-op，不回错误。
func (e *RealtimeEngine) onLeave(client *Client, msg []byte) {
	var req message.JoinReq
	if err := json.Unmarshal(msg, &req); err != nil || req.RoomID == 0 {
		return
	}
	e.WsServer.LeaveRoom(client, req.RoomID)
}

// wsMessageResp 消息下行：ack（带 temp_id，只给发送者）和广播共用一个结构
type wsMessageResp struct {
	Type    string              `json:"type"`
	TempID  string              `json:"temp_id,omitempty"`
	Message *service.MessageDTO `json:"message"`
}

// onMessage 发送消息。副作用要么全有（落库+广播）要么全无：
// 校验/准入失败时不落库、不广播，只回定向错误。
func (e *RealtimeEngine) onMessage(client *Client, msg []byte) {
	var req message.SendReq
	if err := json.Unmarshal(msg, &req); err != nil {
		sendWsError(client, message.ErrInvalidPayload, "无法解析消息体", 0, "")
		return
	}
	if req.RoomID == 0 {
		sendWsError(client, message.ErrInvalidRoomID, "room_id 必须是正整数", 0, req.TempID)
		return
	}

	ok, err := e.RoomService.IsActiveMember(req.RoomID, client.UserID)
	if err != nil {
		log.Printf("message: 成员校验失败 room=%d user=%d: %v", req.RoomID, client.UserID, err)
		sendWsError(client, message.ErrMessage, "消息发送失败", req.RoomID, req.TempID)
		return
	}
	if !ok {
		sendWsError(client, message.ErrForbidden, "你不是该房间成员", req.RoomID, req.TempID)
		return
	}

	saved, err := e.MsgService.SaveMessage(req.RoomID, client.UserID, req.Body, req.MsgType, req.ReplyToMsgID, req.Extra)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrEmptyBody), errors.Is(err, service.ErrBodyTooLong), errors.Is(err, service.ErrReplyCrossRoom):
			sendWsError(client, message.ErrMsgValidation, err.Error(), req.RoomID, req.TempID)
		default:
			log.Printf("message: 落库失败 room=%d user=%d: %v", req.RoomID, client.UserID, err)
			sendWsError(client, message.ErrMessage, "消息发送失败", req.RoomID, req.TempID)
		}
		return
	}

	dto := service.ToMessageDTO(saved)

	// ack 只给发送者，带 temp_id 供客户端对齐本地消息
	ackBytes, _ := json.Marshal(wsMessageResp{Type: message.WsTypeMessage, TempID: req.TempID, Message: dto})
	e.WsServer.sendTo(client, ackBytes)

	// 广播给房间内其他连接（不含发送者）
	bcastBytes, _ := json.Marshal(wsMessageResp{Type: message.WsTypeMessage, Message: dto})
	e.WsServer.SendToRoom(req.RoomID, client, bcastBytes)
}

// onMessageEdit 编辑消息：必须是本人、同房间的消息。
// 失败对房间静默（零广播），只回定向 EDIT_ERROR。
func (e *RealtimeEngine) onMessageEdit(client *Client, msg []byte) {
	var req message.EditReq
	if err := json.Unmarshal(msg, &req); err != nil || req.RoomID == 0 || req.MessageID == 0 {
		sendWsError(client, message.ErrInvalidPayload, "room_id/message_id 不能为空", req.RoomID, "")
		return
	}

	if _, err := e.MsgService.EditMessage(req.RoomID, req.MessageID, client.UserID, req.Body); err != nil {
		sendWsError(client, message.ErrEdit, editErrText(err), req.RoomID, "")
		return
	}

	b, _ := json.Marshal(message.EditReq{
		Type:      message.WsTypeMsgEdited,
		RoomID:    req.RoomID,
		MessageID: req.MessageID,
		Body:      req.Body,
	})
	e.WsServer.SendToRoom(req.RoomID, client, b)
}

// onMessageDelete 软删消息，正文保留。同编辑：失败只定向报错。
func (e *RealtimeEngine) onMessageDelete(client *Client, msg []byte) {
	var req message.DeleteReq
	if err := json.Unmarshal(msg, &req); err != nil || req.RoomID == 0 || req.MessageID == 0 {
		sendWsError(client, message.ErrInvalidPayload, "room_id/message_id 不能为空", req.RoomID, "")
		return
	}

	if _, err := e.MsgService.DeleteMessage(req.RoomID, req.MessageID, client.UserID); err != nil {
		sendWsError(client, message.ErrDelete, editErrText(err), req.RoomID, "")
		return
	}

	b, _ := json.Marshal(message.DeleteReq{
		Type:      message.WsTypeMsgDeleted,
		RoomID:    req.RoomID,
		MessageID: req.MessageID,
	})
	e.WsServer.SendToRoom(req.RoomID, client, b)
}

func editErrText(err error) string {
	switch {
	case service.IsNotFound(err):
		return "消息不存在"
	case errors.Is(err, service.ErrNotOwner):
		return service.ErrNotOwner.Error()
	case errors.Is(err, service.ErrWrongRoom):
		return service.ErrWrongRoom.Error()
	case errors.Is(err, service.ErrEmptyBody):
		return service.ErrEmptyBody.Error()
	case errors.Is(err, service.ErrBodyTooLong):
		return service.ErrBodyTooLong.Error()
	default:
		return "操作失败"
	}
}

// onTyping 输入状态：纯转发，不落库、不 ack，除 room_id 外不校验
func (e *RealtimeEngine) onTyping(client *Client, msg []byte) {
	var req message.TypingReq
	if err := json.Unmarshal(msg, &req); err != nil || req.RoomID == 0 {
		return
	}
	b, _ := json.Marshal(message.TypingResp{
		Type:     message.WsTypeTyping,
		RoomID:   req.RoomID,
		UserID:   client.UserID,
		IsTyping: req.IsTyping,
	})
	e.WsServer.SendToRoom(req.RoomID, client, b)
}

// onReadReceipt 已读回执：补写回执行并广播已读游标。
// 没有在席成员行时静默返回（不广播也不报错）。
func (e *RealtimeEngine) onReadReceipt(client *Client, msg []byte) {
	var req message.ReadAckReq
	if err := json.Unmarshal(msg, &req); err != nil || req.RoomID == 0 {
		return
	}

	member, err := e.RoomService.GetActiveMember(req.RoomID, client.UserID)
	if err != nil {
		if !service.IsNotFound(err) {
			log.Printf("read-receipt: 查成员失败 room=%d user=%d: %v", req.RoomID, client.UserID, err)
			sendWsError(client, message.ErrReadReceipt, "回执处理失败", req.RoomID, "")
		}
		return
	}

	if _, err := e.ReadReceiptService.MarkReadUpTo(member, req.LastReadMsgID); err != nil {
		log.Printf("read-receipt: 落库失败 room=%d member=%d: %v", req.RoomID, member.ID, err)
		sendWsError(client, message.ErrReadReceipt, "回执处理失败", req.RoomID, "")
		return
	}

	b, _ := json.Marshal(message.ReadAckResp{
		Type:          message.WsTypeReadAck,
		RoomID:        req.RoomID,
		LastReadMsgID: req.LastReadMsgID,
	})
	e.WsServer.SendToRoom(req.RoomID, client, b)
}

// sendWsError 定向错误事件（只发给当事连接）
func sendWsError(client *Client, code, text string, roomID uint64, tempID string) {
	if client == nil || client.hub == nil {
		return
	}
	b, _ := json.Marshal(message.ErrorResp{
		Type:    message.WsTypeError,
		Code:    code,
		Message: text,
		RoomID:  roomID,
		TempID:  tempID,
	})
	client.hub.sendTo(client, b)
}
