package controller

import (
	"strconv"

	"examhub_backend/internal/model"
	"examhub_backend/internal/service"
	"examhub_backend/internal/util"

	"github.com/gin-gonic/gin"
)

type AttemptController struct {
	Attempts *service.AttemptService
	Proctor  *service.ProctorService
}

func NewAttemptController(attempts *service.AttemptService, proctor *service.ProctorService) *AttemptController {
	return &AttemptController{Attempts: attempts, Proctor: proctor}
}

type StartAttemptRequest struct {
	PackageID uint `json:"packageId" binding:"required"`
}

// @Summary 开始/续答一次考试
// @Tags 作答会话
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param body body StartAttemptRequest true "试卷ID"
// @Success 200 {object} util.Response
// @Router /api/attempts [post]
func (c *AttemptController) Start(ctx *gin.Context) {
	user := util.GetUserFromContext(ctx)
	if user == nil {
		util.Unauthorized(ctx)
		return
	}

	var req StartAttemptRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	view, err := c.Attempts.Start(ctx.Request.Context(), user.UserID, req.PackageID)
	if err != nil {
		respondServiceError(ctx, err)
		return
	}
	util.Success(ctx, view)
}

// @Summary 查询作答会话（续卷用，倒计时以服务器为准）
// @Tags 作答会话
// @Produce json
// @Security BearerAuth
// @Param id path int true "会话ID"
// @Success 200 {object} util.Response
// @Router /api/attempts/{id} [get]
func (c *AttemptController) Get(ctx *gin.Context) {
	user, attemptID, ok := c.userAndAttempt(ctx)
	if !ok {
		return
	}

	view, err := c.Attempts.Get(ctx.Request.Context(), user.UserID, attemptID)
	if err != nil {
		respondServiceError(ctx, err)
		return
	}
	util.Success(ctx, view)
}

// @Summary 同步一题作答（幂等，可乱序重试）
// @Tags 作答会话
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path int true "会话ID"
// @Param body body service.AnswerWriteRequest true "作答内容"
// @Success 200 {object} util.Response
// @Router /api/attempts/{id}/answers [put]
func (c *AttemptController) WriteAnswer(ctx *gin.Context) {
	user, attemptID, ok := c.userAndAttempt(ctx)
	if !ok {
		return
	}

	var req service.AnswerWriteRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	resp, err := c.Attempts.WriteAnswer(ctx.Request.Context(), user.UserID, attemptID, &req)
	if err != nil {
		respondServiceError(ctx, err)
		return
	}
	util.Success(ctx, resp)
}

// @Summary 交卷
// @Tags 作答会话
// @Produce json
// @Security BearerAuth
// @Param id path int true "会话ID"
// @Success 200 {object} util.Response
// @Router /api/attempts/{id}/submit [post]
func (c *AttemptController) Submit(ctx *gin.Context) {
	user, attemptID, ok := c.userAndAttempt(ctx)
	if !ok {
		return
	}

	result, err := c.Attempts.Submit(ctx.Request.Context(), user.UserID, attemptID, model.SubmitByUser)
	if err != nil {
		respondServiceError(ctx, err)
		return
	}
	util.Success(ctx, result)
}

// @Summary 查询成绩单
// @Tags 作答会话
// @Produce json
// @Security BearerAuth
// @Param id path int true "会话ID"
// @Success 200 {object} util.Response
// @Router /api/attempts/{id}/result [get]
func (c *AttemptController) Result(ctx *gin.Context) {
	user, attemptID, ok := c.userAndAttempt(ctx)
	if !ok {
		return
	}

	result, err := c.Attempts.Result(ctx.Request.Context(), user.UserID, attemptID)
	if err != nil {
		respondServiceError(ctx, err)
		return
	}
	util.Success(ctx, result)
}

// @Summary 我的作答记录
// @Tags 作答会话
// @Produce json
// @Security BearerAuth
// @Param page query int false "页码"
// @Param limit query int false "每页数量"
// @Success 200 {object} util.Response
// @Router /api/attempts [get]
func (c *AttemptController) ListMine(ctx *gin.Context) {
	user := util.GetUserFromContext(ctx)
	if user == nil {
		util.Unauthorized(ctx)
		return
	}

	page, limit := pagination(ctx)
	attempts, total, err := c.Attempts.ListMine(user.UserID, page, limit)
	if err != nil {
		respondServiceError(ctx, err)
		return
	}
	util.Success(ctx, util.PageResponse{List: attempts, Total: total, Page: page, Limit: limit})
}

type ViolationRequest struct {
	Type   model.ViolationType `json:"type" binding:"required"`
	Detail string              `json:"detail"`
}

// @Summary 上报反作弊事件
// @Tags 作答会话
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path int true "会话ID"
// @Param body body ViolationRequest true "事件信息"
// @Success 200 {object} util.Response
// @Router /api/attempts/{id}/violations [post]
func (c *AttemptController) RecordViolation(ctx *gin.Context) {
	user, attemptID, ok := c.userAndAttempt(ctx)
	if !ok {
		return
	}

	var req ViolationRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	ack, err := c.Proctor.RecordViolation(ctx.Request.Context(), user.UserID, attemptID, req.Type, req.Detail)
	if err != nil {
		respondServiceError(ctx, err)
		return
	}
	util.Success(ctx, ack)
}

// @Summary 查看本人某次作答的违规事件
// @Tags 作答会话
// @Produce json
// @Security BearerAuth
// @Param id path int true "会话ID"
// @Success 200 {object} util.Response
// @Router /api/attempts/{id}/violations [get]
func (c *AttemptController) ListViolations(ctx *gin.Context) {
	user, attemptID, ok := c.userAndAttempt(ctx)
	if !ok {
		return
	}

	events, err := c.Proctor.ListEvents(ctx.Request.Context(), user.UserID, attemptID)
	if err != nil {
		respondServiceError(ctx, err)
		return
	}
	util.Success(ctx, events)
}

func (c *AttemptController) userAndAttempt(ctx *gin.Context) (*util.Claims, uint, bool) {
	user := util.GetUserFromContext(ctx)
	if user == nil {
		util.Unauthorized(ctx)
		return nil, 0, false
	}
	id, err := strconv.Atoi(ctx.Param("id"))
	if err != nil || id <= 0 {
		util.BadRequest(ctx, "invalid id")
		return nil, 0, false
	}
	return user, uint(id), true
}

func pagination(ctx *gin.Context) (int, int) {
	page, _ := strconv.Atoi(ctx.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(ctx.DefaultQuery("limit", "20"))
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 100 {
		limit = 20
	}
	return page, limit
}
