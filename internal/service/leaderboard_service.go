package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"examhub_backend/internal/model"
	"examhub_backend/internal/repository"
	"examhub_backend/internal/util"
	"examhub_backend/pkg/logger"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

type LeaderboardPage struct {
	Entries []model.LeaderboardEntry     `json:"entries"`
	Total   int64                        `json:"total"`
	Page    int                          `json:"page"`
	Limit   int                          `json:"limit"`
	Stats   *repository.LeaderboardStats `json:"stats"`
}

// LeaderboardService 排行榜只读视图。聚合行走 Redis 短 TTL 缓存，
// 缓存失效或 Redis 不可用时直接回源，正确性不依赖缓存。
type LeaderboardService struct {
	LeaderboardRepo *repository.LeaderboardRepository
	PackageRepo     *repository.PackageRepository
	Redis           *redis.Client

	DefaultPageSize int
	MaxPageSize     int
	CacheTTL        time.Duration
}

func NewLeaderboardService(
	leaderboardRepo *repository.LeaderboardRepository,
	packageRepo *repository.PackageRepository,
	rdb *redis.Client,
	defaultPageSize, maxPageSize, cacheSeconds int,
) *LeaderboardService {
	return &LeaderboardService{
		LeaderboardRepo: leaderboardRepo,
		PackageRepo:     packageRepo,
		Redis:           rdb,
		DefaultPageSize: defaultPageSize,
		MaxPageSize:     maxPageSize,
		CacheTTL:        time.Duration(cacheSeconds) * time.Second,
	}
}

func (s *LeaderboardService) Rank(ctx context.Context, packageID uint, page, limit int) (*LeaderboardPage, error) {
	pkg, err := s.PackageRepo.FindByID(packageID)
	if err != nil {
		return nil, err
	}
	if pkg == nil || !pkg.IsPublished {
		return nil, util.ErrPackageNotFound
	}

	if page < 1 {
		page = 1
	}
	if limit <= 0 {
		limit = s.DefaultPageSize
	}
	if limit > s.MaxPageSize {
		limit = s.MaxPageSize
	}

	entries, total, err := s.LeaderboardRepo.Rank(packageID, page, limit)
	if err != nil {
		return nil, err
	}
	stats, err := s.cachedStats(ctx, packageID)
	if err != nil {
		return nil, err
	}

	return &LeaderboardPage{
		Entries: entries,
		Total:   total,
		Page:    page,
		Limit:   limit,
		Stats:   stats,
	}, nil
}

func (s *LeaderboardService) Percentile(ctx context.Context, packageID uint, score float64) (float64, error) {
	return s.LeaderboardRepo.Percentile(packageID, score)
}

func (s *LeaderboardService) cachedStats(ctx context.Context, packageID uint) (*repository.LeaderboardStats, error) {
	key := fmt.Sprintf("leaderboard:stats:%d", packageID)

	if s.Redis != nil {
		if raw, err := s.Redis.Get(ctx, key).Bytes(); err == nil {
			var cached repository.LeaderboardStats
			if json.Unmarshal(raw, &cached) == nil {
				return &cached, nil
			}
		}
	}

	stats, err := s.LeaderboardRepo.Stats(packageID)
	if err != nil {
		return nil, err
	}

	if s.Redis != nil {
		if raw, err := json.Marshal(stats); err == nil {
			if err := s.Redis.Set(ctx, key, raw, s.CacheTTL).Err(); err != nil {
				logger.Log.Debug("cache leaderboard stats", zap.Error(err))
			}
		}
	}
	return stats, nil
}
