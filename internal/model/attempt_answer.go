package model

import "gorm.io/datatypes"

// AttemptAnswer 按 (attempt_id, question_id) 幂等 upsert，时间增量在 SQL 里累加
// swagger:model AttemptAnswer
type AttemptAnswer struct {
	BaseModel
	AttemptID  uint `gorm:"uniqueIndex:uniq_attempt_question;type:bigint unsigned" json:"attemptId"`
	QuestionID uint `gorm:"uniqueIndex:uniq_attempt_question;index;type:bigint unsigned" json:"questionId"`

	SelectedOptionID  *uint          `gorm:"type:bigint unsigned" json:"selectedOptionId,omitempty"`
	SelectedOptionIDs datatypes.JSON `json:"selectedOptionIds,omitempty"` // multiple_choice 选项 ID 数组
	NumericAnswer     *float64       `json:"numericAnswer,omitempty"`

	IsFlagged        bool `gorm:"default:false" json:"isFlagged"`
	TimeSpentSeconds int  `gorm:"default:0" json:"timeSpentSeconds"`

	// 判分时回写；未判分为 NULL
	IsCorrect *bool `json:"isCorrect,omitempty"`
}

func (AttemptAnswer) TableName() string {
	return "attempt_answers"
}

// Answered 是否给出了实质作答（仅标记不算）
func (a *AttemptAnswer) Answered() bool {
	return a.SelectedOptionID != nil || len(a.SelectedOptionIDs) > 0 || a.NumericAnswer != nil
}
