package realtime_sdk

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/workhive/realtime-sdk/response"
	"github.com/workhive/realtime-sdk/service"
)

// -------------------- 消息（Message）相关接口 --------------------

// GinHandleGetRoomMessages 获取房间消息列表
// @Summary 获取房间消息列表
// @Description 分页获取某房间的消息，已删除消息只保留占位（正文脱敏）
// @Tags 消息
// @Accept json
// @Produce json
// @Param room_id query uint64 true "房间ID"
// @Param limit query int false "每页条数，默认 50"
// @Param offset query int false "偏移量"
// @Success 200 {object} response.Response "消息列表"
// @Failure 400 {object} response.Response "参数错误"
// @Security BearerAuth
// @Router /message/list [get]
func (e *RealtimeEngine) GinHandleGetRoomMessages(ctx *gin.Context) {
	rid, err := strconv.ParseUint(ctx.Query("room_id"), 10, 64)
	if err != nil || rid == 0 {
		ctx.JSON(http.StatusBadRequest, response.Error(response.CodeParamError, "invalid room_id"))
		return
	}

	uid, exists := ctx.Get("user_id")
	if !exists {
		ctx.JSON(http.StatusUnauthorized, response.Error(response.CodeTokenInvalid, "user_id not found"))
		return
	}

	// 只有在席成员能看历史
	ok, err := e.RoomService.IsActiveMember(rid, uid.(uint64))
	if err != nil {
		ctx.JSON(http.StatusOK, response.Error(response.CodeInternalError, err.Error()))
		return
	}
	if !ok {
		ctx.JSON(http.StatusForbidden, response.Error(response.CodePermissionDeny, "你不是该房间成员"))
		return
	}

	limit, _ := strconv.Atoi(ctx.DefaultQuery("limit", "50"))
	offset, _ := strconv.Atoi(ctx.DefaultQuery("offset", "0"))
	if limit <= 0 || limit > 200 {
		limit = 50
	}

	list, err := e.MsgService.GetRoomMessages(rid, limit, offset)
	if err != nil {
		ctx.JSON(http.StatusOK, response.Error(response.CodeInternalError, err.Error()))
		return
	}
	ctx.JSON(http.StatusOK, response.Success(list))
}

// GinHandleGetMessageByID 获取消息详情
// @Summary 获取消息详情
// @Tags 消息
// @Produce json
// @Param message_id query uint64 true "消息ID"
// @Success 200 {object} response.Response "消息"
// @Failure 400 {object} response.Response "参数错误"
// @Security BearerAuth
// @Router /message/detail [get]
func (e *RealtimeEngine) GinHandleGetMessageByID(ctx *gin.Context) {
	mid, err := strconv.ParseUint(ctx.Query("message_id"), 10, 64)
	if err != nil || mid == 0 {
		ctx.JSON(http.StatusBadRequest, response.Error(response.CodeParamError, "invalid message_id"))
		return
	}

	msg, err := e.MsgService.GetMessageByID(mid)
	if err != nil {
		ctx.JSON(http.StatusOK, response.Error(response.CodeNotFound, "消息不存在"))
		return
	}
	ctx.JSON(http.StatusOK, response.Success(service.ToMessageDTO(msg)))
}

// GinHandleGetRoomMessagesAudit 审计用消息导出
// @Summary 审计用消息导出
// @Description 原样返回消息行，包含已删除消息的正文，仅供合规/导出链路使用
// @Tags 消息
// @Produce json
// @Param room_id query uint64 true "房间ID"
// @Param limit query int false "每页条数，默认 50"
// @Param offset query int false "偏移量"
// @Success 200 {object} response.Response "消息列表（未脱敏）"
// @Failure 400 {object} response.Response "参数错误"
// @Security BearerAuth
// @Router /message/audit [get]
func (e *RealtimeEngine) GinHandleGetRoomMessagesAudit(ctx *gin.Context) {
	rid, err := strconv.ParseUint(ctx.Query("room_id"), 10, 64)
	if err != nil || rid == 0 {
		ctx.JSON(http.StatusBadRequest, response.Error(response.CodeParamError, "invalid room_id"))
		return
	}

	limit, _ := strconv.Atoi(ctx.DefaultQuery("limit", "50"))
	offset, _ := strconv.Atoi(ctx.DefaultQuery("offset", "0"))
	if limit <= 0 || limit > 200 {
		limit = 50
	}

	list, err := e.MsgService.GetRoomMessagesForAudit(rid, limit, offset)
	if err != nil {
		ctx.JSON(http.StatusOK, response.Error(response.CodeInternalError, err.Error()))
		return
	}
	ctx.JSON(http.StatusOK, response.Success(list))
}
