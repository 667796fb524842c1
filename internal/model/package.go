package model

// AssessmentPackage 一套试卷：有序章节 + 计时/反作弊/次数限制配置
// 发布且存在作答记录后不可再编辑
// swagger:model AssessmentPackage
type AssessmentPackage struct {
	BaseModel
	Title       string `gorm:"size:200;not null" json:"title"`
	Description string `gorm:"type:text" json:"description"`

	// DurationMinutes == 0 时取各章节时长之和
	DurationMinutes    int     `json:"durationMinutes"`
	PassingScore       float64 `json:"passingScore"`
	MaxAttempts        int     `gorm:"default:1" json:"maxAttempts"` // 0 表示不限次数
	ProctoringEnabled  bool    `gorm:"default:false" json:"proctoringEnabled"`
	ViolationThreshold int     `json:"violationThreshold"` // 0 时回退到配置默认值
	IsPublished        bool    `gorm:"default:false;index" json:"isPublished"`
	TotalQuestions     int     `json:"totalQuestions"`

	Sections []AssessmentSection `gorm:"foreignKey:PackageID" json:"sections,omitempty"`
}

func (AssessmentPackage) TableName() string {
	return "assessment_packages"
}

// EffectiveDurationMinutes 服务端计时唯一依据
func (p *AssessmentPackage) EffectiveDurationMinutes() int {
	if p.DurationMinutes > 0 {
		return p.DurationMinutes
	}
	total := 0
	for _, s := range p.Sections {
		total += s.DurationMinutes
	}
	return total
}

// swagger:model AssessmentSection
type AssessmentSection struct {
	BaseModel
	PackageID       uint   `gorm:"index;type:bigint unsigned" json:"packageId"`
	Title           string `gorm:"size:200;not null" json:"title"`
	Subject         string `gorm:"size:100" json:"subject"`
	DurationMinutes int    `json:"durationMinutes"`
	Order           int    `gorm:"column:sort_order" json:"order"`

	Questions []AssessmentQuestion `gorm:"foreignKey:SectionID" json:"questions,omitempty"`
}

func (AssessmentSection) TableName() string {
	return "assessment_sections"
}
