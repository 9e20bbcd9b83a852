package realtime_sdk

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/workhive/realtime-sdk/response"
)

// -------------------- 房间（Room）相关接口 --------------------
// 房间的创建/成员变更走 HTTP（宿主的建单/建群流程调用），
// 实时收发走 WebSocket。

// CreateRoomRequest 创建房间请求
type CreateRoomRequest struct {
	Name      string   `json:"name" example:"三号工单"`
	Kind      uint8    `json:"kind" example:"1"` // 1-内部聊天室 2-工单会话
	MemberIDs []uint64 `json:"member_ids"`       // 初始成员（创建者自动加入）
}

// GinHandleCreateRoom 创建房间
// @Summary 创建房间
// @Tags 房间
// @Accept json
// @Produce json
// @Param request body CreateRoomRequest true "房间信息"
// @Success 200 {object} response.Response "房间"
// @Failure 400 {object} response.Response "参数错误"
// @Security BearerAuth
// @Router /room/create [post]
func (e *RealtimeEngine) GinHandleCreateRoom(ctx *gin.Context) {
	var req CreateRoomRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, response.Error(response.CodeParamError, err.Error()))
		return
	}

	uid, exists := ctx.Get("user_id")
	if !exists {
		ctx.JSON(http.StatusUnauthorized, response.Error(response.CodeTokenInvalid, "user_id not found"))
		return
	}

	room, err := e.RoomService.CreateRoom(req.Name, req.Kind, uid.(uint64), req.MemberIDs)
	if err != nil {
		ctx.JSON(http.StatusOK, response.Error(response.CodeInternalError, err.Error()))
		return
	}
	ctx.JSON(http.StatusOK, response.Success(room))
}

// RoomMemberRequest 成员变更请求
type RoomMemberRequest struct {
	RoomID uint64 `json:"room_id" binding:"required"`
	UserID uint64 `json:"user_id" binding:"required"`
}

// GinHandleAddRoomMember 添加房间成员
// @Summary 添加房间成员
// @Description 幂等：已在席直接成功；退过房的成员清掉 left_at 复位在席
// @Tags 房间
// @Accept json
// @Produce json
// @Param request body RoomMemberRequest true "成员信息"
// @Success 200 {object} response.Response
// @Failure 400 {object} response.Response "参数错误"
// @Security BearerAuth
// @Router /room/member/add [post]
func (e *RealtimeEngine) GinHandleAddRoomMember(ctx *gin.Context) {
	var req RoomMemberRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, response.Error(response.CodeParamError, err.Error()))
		return
	}

	if _, err := e.RoomService.GetRoomByID(req.RoomID); err != nil {
		ctx.JSON(http.StatusOK, response.Error(response.CodeNotFound, "房间不存在"))
		return
	}
	if err := e.RoomService.AddMember(req.RoomID, req.UserID); err != nil {
		ctx.JSON(http.StatusOK, response.Error(response.CodeInternalError, err.Error()))
		return
	}
	ctx.JSON(http.StatusOK, response.Success(nil))
}

// GinHandleRemoveRoomMember 移除房间成员
// @Summary 移除房间成员
// @Description 打上 left_at，历史消息与回执保留。幂等。
// @Tags 房间
// @Accept json
// @Produce json
// @Param request body RoomMemberRequest true "成员信息"
// @Success 200 {object} response.Response
// @Failure 400 {object} response.Response "参数错误"
// @Security BearerAuth
// @Router /room/member/remove [post]
func (e *RealtimeEngine) GinHandleRemoveRoomMember(ctx *gin.Context) {
	var req RoomMemberRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, response.Error(response.CodeParamError, err.Error()))
		return
	}

	if err := e.RoomService.RemoveMember(req.RoomID, req.UserID); err != nil {
		ctx.JSON(http.StatusOK, response.Error(response.CodeInternalError, err.Error()))
		return
	}
	ctx.JSON(http.StatusOK, response.Success(nil))
}

// GinHandleListRooms 获取当前用户在席的房间列表
// @Summary 获取房间列表
// @Tags 房间
// @Produce json
// @Success 200 {object} response.Response "房间列表，按活跃时间倒序"
// @Security BearerAuth
// @Router /room/list [get]
func (e *RealtimeEngine) GinHandleListRooms(ctx *gin.Context) {
	uid, exists := ctx.Get("user_id")
	if !exists {
		ctx.JSON(http.StatusUnauthorized, response.Error(response.CodeTokenInvalid, "user_id not found"))
		return
	}

	rooms, err := e.RoomService.ListRoomsByUser(uid.(uint64))
	if err != nil {
		ctx.JSON(http.StatusOK, response.Error(response.CodeInternalError, err.Error()))
		return
	}
	ctx.JSON(http.StatusOK, response.Success(rooms))
}

// GinHandleRoomOnlineMembers 查询房间成员在线状态
// @Summary 查询房间成员在线状态
// @Tags 房间
// @Produce json
// @Param room_id query uint64 true "房间ID"
// @Success 200 {object} response.Response "member_id -> online"
// @Failure 400 {object} response.Response "参数错误"
// @Security BearerAuth
// @Router /room/online [get]
func (e *RealtimeEngine) GinHandleRoomOnlineMembers(ctx *gin.Context) {
	rid, err := strconv.ParseUint(ctx.Query("room_id"), 10, 64)
	if err != nil || rid == 0 {
		ctx.JSON(http.StatusBadRequest, response.Error(response.CodeParamError, "invalid room_id"))
		return
	}

	ids, err := e.RoomService.GetRoomMemberIDs(rid)
	if err != nil {
		ctx.JSON(http.StatusOK, response.Error(response.CodeInternalError, err.Error()))
		return
	}

	online := make(map[uint64]bool, len(ids))
	for _, id := range ids {
		online[id] = e.WsServer.IsOnline(id)
	}
	ctx.JSON(http.StatusOK, response.Success(online))
}
