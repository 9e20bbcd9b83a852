package realtime_sdk

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/workhive/realtime-sdk/response"
	"github.com/workhive/realtime-sdk/service"
)

// -------------------- 提醒（Reminder）相关接口 --------------------

// CreateReminderRequest 创建提醒请求
type CreateReminderRequest struct {
	Title          string    `json:"title" binding:"required" example:"回访客户"`
	Description    string    `json:"description" example:"合同到期前一周电话回访"`
	DueDate        time.Time `json:"due_date" binding:"required" example:"2026-09-01T09:00:00+08:00"`
	Channels       string    `json:"channels" example:"ALL"`         // SMS/EMAIL/ALL，默认 ALL
	RepeatInterval string    `json:"repeat_interval" example:"none"` // daily/weekly/monthly/none
	EntityType     string    `json:"entity_type" example:"invoice"`  // 关联业务对象类型
	EntityID       uint64    `json:"entity_id" example:"1024"`       // 关联业务对象 ID
	Recipients     []uint64  `json:"recipients"`                     // 显式收件人，空则看 filters
	Group          string    `json:"group" example:"sales"`          // 按分组群发
	Label          string    `json:"label" example:"vip"`            // 按标签群发
	Query          string    `json:"query" example:"zhang"`          // 按用户名/昵称/邮箱模糊群发
}

// GinHandleCreateReminder 创建提醒（单发或群发）
// @Summary 创建提醒
// @Description 不带收件人时默认发给当前用户；带 recipients 或筛选条件时按人拆行群发
// @Tags 提醒
// @Accept json
// @Produce json
// @Param request body CreateReminderRequest true "提醒信息"
// @Success 200 {object} response.Response "创建的提醒行"
// @Failure 400 {object} response.Response "参数错误"
// @Security BearerAuth
// @Router /reminder/create [post]
func (e *RealtimeEngine) GinHandleCreateReminder(ctx *gin.Context) {
	var req CreateReminderRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, response.Error(response.CodeParamError, err.Error()))
		return
	}

	uid, exists := ctx.Get("user_id")
	if !exists {
		ctx.JSON(http.StatusUnauthorized, response.Error(response.CodeTokenInvalid, "user_id not found"))
		return
	}

	in := service.CreateReminderInput{
		Title:          req.Title,
		Description:    req.Description,
		DueDate:        req.DueDate,
		Channels:       req.Channels,
		RepeatInterval: req.RepeatInterval,
		EntityType:     req.EntityType,
		EntityID:       req.EntityID,
		Recipients:     req.Recipients,
		DefaultUserID:  uid.(uint64),
	}
	if req.Group != "" || req.Label != "" || req.Query != "" {
		in.Filters = &service.RecipientFilter{Group: req.Group, Label: req.Label, Query: req.Query}
	}

	rows, err := e.ReminderService.CreateReminders(in)
	if err != nil {
		ctx.JSON(http.StatusOK, response.Error(response.CodeParamError, err.Error()))
		return
	}
	ctx.JSON(http.StatusOK, response.Success(rows))
}

// GinHandleListReminders 获取当前用户的提醒列表
// @Summary 获取提醒列表
// @Description 按状态筛选（PENDING/COMPLETED/FAILED），不传 status 返回全部
// @Tags 提醒
// @Produce json
// @Param status query string false "状态筛选" Enums(PENDING, COMPLETED, FAILED)
// @Param limit query int false "每页条数，默认 50"
// @Param offset query int false "偏移量"
// @Success 200 {object} response.Response "提醒列表"
// @Security BearerAuth
// @Router /reminder/list [get]
func (e *RealtimeEngine) GinHandleListReminders(ctx *gin.Context) {
	uid, exists := ctx.Get("user_id")
	if !exists {
		ctx.JSON(http.StatusUnauthorized, response.Error(response.CodeTokenInvalid, "user_id not found"))
		return
	}

	status := ctx.Query("status")
	limit, _ := strconv.Atoi(ctx.DefaultQuery("limit", "50"))
	offset, _ := strconv.Atoi(ctx.DefaultQuery("offset", "0"))

	list, err := e.ReminderService.ListReminders(uid.(uint64), status, limit, offset)
	if err != nil {
		ctx.JSON(http.StatusOK, response.Error(response.CodeInternalError, err.Error()))
		return
	}
	ctx.JSON(http.StatusOK, response.Success(list))
}

// GinHandleCheckDueReminders 手动触发一轮到期提醒批处理
// @Summary 手动触发提醒批处理
// @Description 与 cron 打同一个入口，带进程内单飞保护：上一轮没跑完时返回 processed=0
// @Tags 提醒
// @Produce json
// @Param batch_size query int false "每页条数，默认用引擎配置"
// @Param offset query int false "起始偏移，默认 0"
// @Success 200 {object} response.Response "{processed, has_more}"
// @Security BearerAuth
// @Router /reminder/check [post]
func (e *RealtimeEngine) GinHandleCheckDueReminders(ctx *gin.Context) {
	batchSize, _ := strconv.Atoi(ctx.DefaultQuery("batch_size", "0"))
	offset, _ := strconv.Atoi(ctx.DefaultQuery("offset", "0"))

	processed, hasMore, err := e.ReminderService.CheckDueReminders(batchSize, offset)
	if err != nil && err != service.ErrAlreadyRunning {
		ctx.JSON(http.StatusOK, response.Error(response.CodeInternalError, err.Error()))
		return
	}

	ctx.JSON(http.StatusOK, response.Success(gin.H{
		"processed": processed,
		"has_more":  hasMore,
		"skipped":   err == service.ErrAlreadyRunning,
	}))
}
