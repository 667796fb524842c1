package controller

import (
	"errors"
	"net/http"

	"examhub_backend/internal/util"

	"github.com/gin-gonic/gin"
)

// respondServiceError 哨兵错误到 HTTP 状态码的统一映射
func respondServiceError(ctx *gin.Context, err error) {
	switch {
	case errors.Is(err, util.ErrValidation),
		errors.Is(err, util.ErrQuestionNotInPackage):
		util.BadRequest(ctx, err.Error())
	case errors.Is(err, util.ErrAttemptNotFound),
		errors.Is(err, util.ErrPackageNotFound):
		util.NotFound(ctx)
	case errors.Is(err, util.ErrPackageNotPublished):
		util.Error(ctx, http.StatusForbidden, err.Error())
	case errors.Is(err, util.ErrNoEntitlement):
		util.PaymentRequired(ctx, err.Error())
	case errors.Is(err, util.ErrAttemptLimitReached),
		errors.Is(err, util.ErrAttemptInProgress),
		errors.Is(err, util.ErrPackageLocked):
		util.Conflict(ctx, err.Error())
	case errors.Is(err, util.ErrEmailRegistered):
		util.Conflict(ctx, err.Error())
	default:
		util.LogInternalError(ctx, err)
	}
}
