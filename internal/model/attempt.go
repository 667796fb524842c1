package model

import "time"

type AttemptStatus string

const (
	AttemptNotStarted            AttemptStatus = "NOT_STARTED"
	AttemptInProgress            AttemptStatus = "IN_PROGRESS"
	AttemptSubmitted             AttemptStatus = "SUBMITTED"
	AttemptExpired               AttemptStatus = "EXPIRED"
	AttemptTerminatedByViolation AttemptStatus = "TERMINATED_BY_VIOLATION"
)

// IsTerminal 终态后任何写入都拒绝
func (s AttemptStatus) IsTerminal() bool {
	switch s {
	case AttemptSubmitted, AttemptExpired, AttemptTerminatedByViolation:
		return true
	}
	return false
}

type SubmitReason string

const (
	SubmitByUser      SubmitReason = "USER"
	SubmitByTimeout   SubmitReason = "TIMEOUT"
	SubmitByViolation SubmitReason = "VIOLATION"
)

// TerminalStatus 提交原因到终态的映射
func (r SubmitReason) TerminalStatus() AttemptStatus {
	switch r {
	case SubmitByTimeout:
		return AttemptExpired
	case SubmitByViolation:
		return AttemptTerminatedByViolation
	default:
		return AttemptSubmitted
	}
}

// ExamAttempt 一次作答会话，截止时间在创建时固定，服务端为唯一计时权威
// swagger:model ExamAttempt
type ExamAttempt struct {
	BaseModel
	UserID    uint `gorm:"index;uniqueIndex:uniq_user_pkg_attempt;type:bigint unsigned" json:"userId"`
	PackageID uint `gorm:"index;uniqueIndex:uniq_user_pkg_attempt;type:bigint unsigned" json:"packageId"`
	// 同一用户同一试卷内单调递增，唯一索引兜住并发 Start
	AttemptNumber int `gorm:"uniqueIndex:uniq_user_pkg_attempt" json:"attemptNumber"`

	Status         AttemptStatus `gorm:"size:30;index;default:'IN_PROGRESS'" json:"status"`
	SubmitReason   SubmitReason  `gorm:"size:20" json:"submitReason,omitempty"`
	StartedAt      time.Time     `json:"startedAt"`
	ServerDeadline time.Time     `json:"serverDeadline"`
	FinishedAt     *time.Time    `json:"finishedAt,omitempty"`

	ViolationCount int `gorm:"default:0" json:"violationCount"`

	// 判分结果，仅终态后有值。GradedAt 是判分落库完成的标记：
	// 终态迁移和结果回写不在一个语句里，读到终态但 GradedAt 为空说明判分还在路上
	Score           float64    `json:"score"`
	RawScore        float64    `json:"rawScore"`
	CorrectCount    int        `json:"correctCount"`
	IncorrectCount  int        `json:"incorrectCount"`
	UnansweredCount int        `json:"unansweredCount"`
	TotalQuestions  int        `json:"totalQuestions"`
	Percentile      *float64   `json:"percentile,omitempty"`
	Passed          bool       `json:"passed"`
	GradedAt        *time.Time `json:"gradedAt,omitempty"`

	Package *AssessmentPackage `gorm:"foreignKey:PackageID" json:"package,omitempty"`
	Answers []AttemptAnswer    `gorm:"foreignKey:AttemptID" json:"answers,omitempty"`
}

func (ExamAttempt) TableName() string {
	return "exam_attempts"
}

// RemainingSeconds 剩余秒数，过期后为 0
func (a *ExamAttempt) RemainingSeconds(now time.Time) int {
	if !now.Before(a.ServerDeadline) {
		return 0
	}
	return int(a.ServerDeadline.Sub(now).Seconds())
}
