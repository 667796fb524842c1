package model

import "time"

type ViolationType string

const (
	ViolationTabBlur        ViolationType = "tab_blur"
	ViolationFullscreenExit ViolationType = "fullscreen_exit"
	ViolationCopyPaste      ViolationType = "copy_paste"
	ViolationDevtoolsOpen   ViolationType = "devtools_open"
	ViolationWindowResize   ViolationType = "window_resize"
)

func (t ViolationType) Valid() bool {
	switch t {
	case ViolationTabBlur, ViolationFullscreenExit, ViolationCopyPaste,
		ViolationDevtoolsOpen, ViolationWindowResize:
		return true
	}
	return false
}

// ViolationEvent 反作弊事件审计记录，信号来自客户端、可被伪造，只作威慑
// swagger:model ViolationEvent
type ViolationEvent struct {
	BaseModel
	AttemptID  uint          `gorm:"index;type:bigint unsigned" json:"attemptId"`
	Type       ViolationType `gorm:"size:30;not null" json:"type"`
	OccurredAt time.Time     `json:"occurredAt"`
	Detail     string        `gorm:"size:500" json:"detail,omitempty"`
}

func (ViolationEvent) TableName() string {
	return "violation_events"
}
