package model

import "time"

// LeaderboardEntry 每次完成的作答一条，判分落库时 upsert，重判不重复
// swagger:model LeaderboardEntry
type LeaderboardEntry struct {
	BaseModel
	PackageID  uint      `gorm:"index:idx_pkg_rank;type:bigint unsigned" json:"packageId"`
	AttemptID  uint      `gorm:"uniqueIndex;type:bigint unsigned" json:"attemptId"`
	UserID     uint      `gorm:"index;type:bigint unsigned" json:"userId"`
	UserName   string    `gorm:"size:100" json:"userName"`
	Score      float64   `gorm:"index:idx_pkg_rank" json:"score"`
	FinishedAt time.Time `json:"finishedAt"`
}

func (LeaderboardEntry) TableName() string {
	return "leaderboard_entries"
}
