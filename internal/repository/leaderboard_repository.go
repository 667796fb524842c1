package repository

import (
	"examhub_backend/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type LeaderboardRepository struct {
	DB *gorm.DB
}

func NewLeaderboardRepository(db *gorm.DB) *LeaderboardRepository {
	return &LeaderboardRepository{DB: db}
}

// Upsert attempt_id 唯一，重判只覆盖不重复
func (r *LeaderboardRepository) Upsert(entry *model.LeaderboardEntry) error {
	return r.DB.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "attempt_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"score", "finished_at", "user_name",
		}),
	}).Create(entry).Error
}

// Rank 名次序：分数降序，同分先交卷者靠前
func (r *LeaderboardRepository) Rank(packageID uint, page, limit int) ([]model.LeaderboardEntry, int64, error) {
	var entries []model.LeaderboardEntry
	var total int64

	q := r.DB.Model(&model.LeaderboardEntry{}).Where("package_id = ?", packageID)
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	err := q.Order("score DESC").Order("finished_at ASC").
		Offset((page - 1) * limit).Limit(limit).Find(&entries).Error
	return entries, total, err
}

// Percentile 百分位 = 分数不高于 s 的占比 × 100
func (r *LeaderboardRepository) Percentile(packageID uint, score float64) (float64, error) {
	var total, atOrBelow int64
	if err := r.DB.Model(&model.LeaderboardEntry{}).
		Where("package_id = ?", packageID).Count(&total).Error; err != nil {
		return 0, err
	}
	if total == 0 {
		return 0, nil
	}
	if err := r.DB.Model(&model.LeaderboardEntry{}).
		Where("package_id = ? AND score <= ?", packageID, score).
		Count(&atOrBelow).Error; err != nil {
		return 0, err
	}
	return float64(atOrBelow) / float64(total) * 100, nil
}

type LeaderboardStats struct {
	Count    int64   `json:"count"`
	MaxScore float64 `json:"maxScore"`
	AvgScore float64 `json:"avgScore"`
}

func (r *LeaderboardRepository) Stats(packageID uint) (*LeaderboardStats, error) {
	var s LeaderboardStats
	err := r.DB.Model(&model.LeaderboardEntry{}).
		Where("package_id = ?", packageID).
		Select("COUNT(*) AS count, COALESCE(MAX(score), 0) AS max_score, COALESCE(AVG(score), 0) AS avg_score").
		Scan(&s).Error
	if err != nil {
		return nil, err
	}
	return &s, nil
}
