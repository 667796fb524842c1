package model

type QuestionType string

const (
	SingleChoice   QuestionType = "single_choice"
	MultipleChoice QuestionType = "multiple_choice"
	TrueFalse      QuestionType = "true_false"
	Numeric        QuestionType = "numeric"
)

// swagger:model AssessmentQuestion
type AssessmentQuestion struct {
	BaseModel
	SectionID uint `gorm:"index;type:bigint unsigned" json:"sectionId"`
	// 冗余存 PackageID，判分时一次性取整卷题目
	PackageID uint `gorm:"index;type:bigint unsigned" json:"packageId"`

	QuestionType QuestionType `gorm:"size:30;not null" json:"questionType"`
	Content      string       `gorm:"type:text;not null" json:"content"`
	Explanation  string       `gorm:"type:text" json:"explanation"`
	ImageURL     string       `gorm:"size:500" json:"imageUrl"`
	Order        int          `gorm:"column:sort_order" json:"order"`

	// numeric 题型：标准答案与容差
	NumericAnswer    *float64 `json:"numericAnswer,omitempty"`
	NumericTolerance float64  `json:"numericTolerance"`

	Options []QuestionOption `gorm:"foreignKey:QuestionID" json:"options,omitempty"`
}

func (AssessmentQuestion) TableName() string {
	return "assessment_questions"
}

// CorrectOptionIDs 正确选项集合（multiple_choice 需完全一致才判对）
func (q *AssessmentQuestion) CorrectOptionIDs() map[uint]bool {
	ids := make(map[uint]bool)
	for _, o := range q.Options {
		if o.IsCorrect {
			ids[o.ID] = true
		}
	}
	return ids
}

// swagger:model QuestionOption
type QuestionOption struct {
	BaseModel
	QuestionID uint   `gorm:"index;type:bigint unsigned" json:"questionId"`
	Content    string `gorm:"type:text;not null" json:"content"`
	IsCorrect  bool   `json:"-"` // 学生端序列化永不携带
	Order      int    `gorm:"column:sort_order" json:"order"`
}

func (QuestionOption) TableName() string {
	return "question_options"
}
