package controller

import (
	"strconv"

	"examhub_backend/internal/model"
	"examhub_backend/internal/service"
	"examhub_backend/internal/util"

	"github.com/gin-gonic/gin"
)

type PackageController struct {
	Service *service.PackageService
}

func NewPackageController(svc *service.PackageService) *PackageController {
	return &PackageController{Service: svc}
}

// @Summary 已发布试卷列表
// @Tags 试卷
// @Produce json
// @Security BearerAuth
// @Param page query int false "页码"
// @Param limit query int false "每页数量"
// @Success 200 {object} util.Response
// @Router /api/packages [get]
func (c *PackageController) ListPublished(ctx *gin.Context) {
	page, limit := pagination(ctx)
	pkgs, total, err := c.Service.ListPublished(page, limit)
	if err != nil {
		respondServiceError(ctx, err)
		return
	}
	util.Success(ctx, util.PageResponse{List: pkgs, Total: total, Page: page, Limit: limit})
}

// @Summary 学生端试卷详情（不含答案）
// @Tags 试卷
// @Produce json
// @Security BearerAuth
// @Param id path int true "试卷ID"
// @Success 200 {object} util.Response
// @Router /api/packages/{id} [get]
func (c *PackageController) StudentView(ctx *gin.Context) {
	id, ok := pathID(ctx)
	if !ok {
		return
	}
	pkg, err := c.Service.StudentView(id)
	if err != nil {
		respondServiceError(ctx, err)
		return
	}
	util.Success(ctx, pkg)
}

// @Summary 管理端试卷列表
// @Tags 管理端
// @Produce json
// @Security BearerAuth
// @Param page query int false "页码"
// @Param limit query int false "每页数量"
// @Success 200 {object} util.Response
// @Router /api/admin/packages [get]
func (c *PackageController) ListAll(ctx *gin.Context) {
	page, limit := pagination(ctx)
	pkgs, total, err := c.Service.ListAll(page, limit)
	if err != nil {
		respondServiceError(ctx, err)
		return
	}
	util.Success(ctx, util.PageResponse{List: pkgs, Total: total, Page: page, Limit: limit})
}

// @Summary 管理端试卷详情（含答案）
// @Tags 管理端
// @Produce json
// @Security BearerAuth
// @Param id path int true "试卷ID"
// @Success 200 {object} util.Response
// @Router /api/admin/packages/{id} [get]
func (c *PackageController) AdminView(ctx *gin.Context) {
	id, ok := pathID(ctx)
	if !ok {
		return
	}
	pkg, err := c.Service.AdminView(id)
	if err != nil {
		respondServiceError(ctx, err)
		return
	}
	util.Success(ctx, pkg)
}

// @Summary 创建试卷
// @Tags 管理端
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param body body model.AssessmentPackage true "试卷信息"
// @Success 201 {object} util.Response
// @Router /api/admin/packages [post]
func (c *PackageController) Create(ctx *gin.Context) {
	var pkg model.AssessmentPackage
	if err := ctx.ShouldBindJSON(&pkg); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}
	if err := c.Service.Create(&pkg); err != nil {
		respondServiceError(ctx, err)
		return
	}
	util.Created(ctx, pkg)
}

// @Summary 更新试卷
// @Tags 管理端
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path int true "试卷ID"
// @Param body body model.AssessmentPackage true "试卷信息"
// @Success 200 {object} util.Response
// @Router /api/admin/packages/{id} [put]
func (c *PackageController) Update(ctx *gin.Context) {
	id, ok := pathID(ctx)
	if !ok {
		return
	}
	var pkg model.AssessmentPackage
	if err := ctx.ShouldBindJSON(&pkg); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}
	pkg.ID = id
	if err := c.Service.Update(&pkg); err != nil {
		respondServiceError(ctx, err)
		return
	}
	util.Success(ctx, pkg)
}

// @Summary 删除试卷
// @Tags 管理端
// @Produce json
// @Security BearerAuth
// @Param id path int true "试卷ID"
// @Success 200 {object} util.Response
// @Router /api/admin/packages/{id} [delete]
func (c *PackageController) Delete(ctx *gin.Context) {
	id, ok := pathID(ctx)
	if !ok {
		return
	}
	if err := c.Service.Delete(id); err != nil {
		respondServiceError(ctx, err)
		return
	}
	util.Success(ctx, nil)
}

type PublishRequest struct {
	Published bool `json:"published"`
}

// @Summary 发布/撤回试卷
// @Tags 管理端
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path int true "试卷ID"
// @Param body body PublishRequest true "发布状态"
// @Success 200 {object} util.Response
// @Router /api/admin/packages/{id}/publish [put]
func (c *PackageController) SetPublished(ctx *gin.Context) {
	id, ok := pathID(ctx)
	if !ok {
		return
	}
	var req PublishRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}
	if err := c.Service.SetPublished(id, req.Published); err != nil {
		respondServiceError(ctx, err)
		return
	}
	util.Success(ctx, gin.H{"id": id, "published": req.Published})
}

// @Summary 新增章节
// @Tags 管理端
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param body body model.AssessmentSection true "章节信息"
// @Success 201 {object} util.Response
// @Router /api/admin/sections [post]
func (c *PackageController) AddSection(ctx *gin.Context) {
	var sec model.AssessmentSection
	if err := ctx.ShouldBindJSON(&sec); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}
	if err := c.Service.AddSection(&sec); err != nil {
		respondServiceError(ctx, err)
		return
	}
	util.Created(ctx, sec)
}

// @Summary 新增题目
// @Tags 管理端
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param body body model.AssessmentQuestion true "题目信息"
// @Success 201 {object} util.Response
// @Router /api/admin/questions [post]
func (c *PackageController) AddQuestion(ctx *gin.Context) {
	var q model.AssessmentQuestion
	if err := ctx.ShouldBindJSON(&q); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}
	if err := c.Service.AddQuestion(&q); err != nil {
		respondServiceError(ctx, err)
		return
	}
	util.Created(ctx, q)
}

// @Summary 上传题目配图
// @Tags 管理端
// @Accept multipart/form-data
// @Produce json
// @Security BearerAuth
// @Param id path int true "题目ID"
// @Param file formData file true "图片文件"
// @Success 200 {object} util.Response
// @Router /api/admin/questions/{id}/image [post]
func (c *PackageController) UploadQuestionImage(ctx *gin.Context) {
	id, ok := pathID(ctx)
	if !ok {
		return
	}

	file, err := ctx.FormFile("file")
	if err != nil {
		util.BadRequest(ctx, "file is required")
		return
	}

	src, err := file.Open()
	if err != nil {
		util.LogInternalError(ctx, err)
		return
	}
	defer src.Close()

	contentType := file.Header.Get("Content-Type")
	url, err := c.Service.AttachImage(ctx.Request.Context(), id, file.Filename, src, file.Size, contentType)
	if err != nil {
		respondServiceError(ctx, err)
		return
	}
	util.Success(ctx, gin.H{"url": url})
}

func pathID(ctx *gin.Context) (uint, bool) {
	id, err := strconv.Atoi(ctx.Param("id"))
	if err != nil || id <= 0 {
		util.BadRequest(ctx, "invalid id")
		return 0, false
	}
	return uint(id), true
}
