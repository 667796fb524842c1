package util

import (
	"errors"
	"fmt"
)

var (
	ErrUserNotFound    = errors.New("用户不存在")
	ErrEmailRegistered = errors.New("该邮箱已被注册")

	// ErrAttemptNotFound 对非本人的 attempt 也返回这个，不泄露存在性
	ErrAttemptNotFound      = errors.New("attempt not found")
	ErrPackageNotFound      = errors.New("assessment package not found")
	ErrPackageNotPublished  = errors.New("assessment package not published")
	ErrPackageLocked        = errors.New("published package with attempts cannot be modified")
	ErrNoEntitlement        = errors.New("no exam credits available")
	ErrAttemptLimitReached  = errors.New("attempt limit reached for this package")
	ErrAttemptInProgress    = errors.New("attempt still in progress")
	ErrValidation           = errors.New("validation failed")
	ErrQuestionNotInPackage = errors.New("question does not belong to this package")
)

// ValidationError 带细节地包 ErrValidation，errors.Is 仍可命中
func ValidationError(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}
