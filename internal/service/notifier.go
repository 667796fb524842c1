package service

import (
	"context"
	"encoding/json"

	"examhub_backend/pkg/logger"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// FinalizedEvent attempt 终结通知载荷
type FinalizedEvent struct {
	AttemptID uint    `json:"attemptId"`
	UserID    uint    `json:"userId"`
	PackageID uint    `json:"packageId"`
	Reason    string  `json:"reason"`
	Score     float64 `json:"score"`
}

// Notifier 终结事件的出口，投递失败不影响判分结果
type Notifier interface {
	AttemptFinalized(ctx context.Context, ev FinalizedEvent)
}

// RedisNotifier 发布到 Redis 频道，下游（邮件、站内信）自行订阅
type RedisNotifier struct {
	Client  *redis.Client
	Channel string
}

func NewRedisNotifier(client *redis.Client, channel string) *RedisNotifier {
	return &RedisNotifier{Client: client, Channel: channel}
}

func (n *RedisNotifier) AttemptFinalized(ctx context.Context, ev FinalizedEvent) {
	payload, err := json.Marshal(ev)
	if err != nil {
		logger.Log.Error("marshal finalized event", zap.Error(err))
		return
	}
	if err := n.Client.Publish(ctx, n.Channel, payload).Err(); err != nil {
		logger.Log.Warn("publish finalized event",
			zap.Uint("attemptId", ev.AttemptID), zap.Error(err))
	}
}

// NoopNotifier 测试与未配置 Redis 时使用
type NoopNotifier struct{}

func (NoopNotifier) AttemptFinalized(ctx context.Context, ev FinalizedEvent) {}
