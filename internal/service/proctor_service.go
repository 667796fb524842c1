package service

import (
	"context"
	"time"

	"examhub_backend/internal/model"
	"examhub_backend/internal/repository"
	"examhub_backend/internal/util"
	"examhub_backend/pkg/monitoring"
)

// ViolationAck 事件回执。Dropped 表示会话已终结、事件被忽略。
type ViolationAck struct {
	AttemptID  uint              `json:"attemptId"`
	Count      int               `json:"count"`
	Threshold  int               `json:"threshold"`
	Dropped    bool              `json:"dropped"`
	Terminated bool              `json:"terminated"`
	Result     *SubmissionResult `json:"result,omitempty"`
}

// ProctorService 反作弊事件接入。信号来自客户端、可伪造，只做威慑与审计；
// 计数在 IN_PROGRESS 内单调递增，达到阈值强制交卷、恰好一次。
type ProctorService struct {
	Attempts    *AttemptService
	AttemptRepo *repository.AttemptRepository
	PackageRepo *repository.PackageRepository

	// 试卷未配置阈值时的默认值
	DefaultThreshold int
}

func NewProctorService(
	attempts *AttemptService,
	attemptRepo *repository.AttemptRepository,
	packageRepo *repository.PackageRepository,
	defaultThreshold int,
) *ProctorService {
	return &ProctorService{
		Attempts:         attempts,
		AttemptRepo:      attemptRepo,
		PackageRepo:      packageRepo,
		DefaultThreshold: defaultThreshold,
	}
}

func (s *ProctorService) RecordViolation(ctx context.Context, userID, attemptID uint, vtype model.ViolationType, detail string) (*ViolationAck, error) {
	if !vtype.Valid() {
		return nil, util.ValidationError("unknown violation type %q", vtype)
	}

	attempt, err := s.Attempts.ownedAttempt(userID, attemptID)
	if err != nil {
		return nil, err
	}
	attempt, err = s.Attempts.lazyExpire(ctx, attempt)
	if err != nil {
		return nil, err
	}

	threshold := s.thresholdFor(attempt.PackageID)

	// 迟到的客户端信号：会话已终结，确认但不记录
	if attempt.Status.IsTerminal() {
		return &ViolationAck{
			AttemptID: attempt.ID,
			Count:     attempt.ViolationCount,
			Threshold: threshold,
			Dropped:   true,
		}, nil
	}

	incremented, err := s.AttemptRepo.IncrementViolation(attempt.ID)
	if err != nil {
		return nil, err
	}
	if !incremented {
		// 和终态迁移撞上了，按迟到信号处理
		fresh, ferr := s.AttemptRepo.FindByID(attempt.ID)
		if ferr != nil {
			return nil, ferr
		}
		return &ViolationAck{
			AttemptID: attempt.ID,
			Count:     fresh.ViolationCount,
			Threshold: threshold,
			Dropped:   true,
		}, nil
	}

	if err := s.AttemptRepo.CreateViolationEvent(&model.ViolationEvent{
		AttemptID:  attempt.ID,
		Type:       vtype,
		OccurredAt: time.Now(),
		Detail:     detail,
	}); err != nil {
		return nil, err
	}
	monitoring.ViolationsRecorded.Inc()

	fresh, err := s.AttemptRepo.FindByID(attempt.ID)
	if err != nil {
		return nil, err
	}

	ack := &ViolationAck{
		AttemptID: attempt.ID,
		Count:     fresh.ViolationCount,
		Threshold: threshold,
	}

	if fresh.ViolationCount >= threshold {
		result, err := s.Attempts.finalize(ctx, fresh, model.SubmitByViolation)
		if err != nil {
			return nil, err
		}
		ack.Terminated = true
		ack.Result = result
	}
	return ack, nil
}

func (s *ProctorService) ListEvents(ctx context.Context, userID, attemptID uint) ([]model.ViolationEvent, error) {
	if _, err := s.Attempts.ownedAttempt(userID, attemptID); err != nil {
		return nil, err
	}
	return s.AttemptRepo.ListViolationEvents(attemptID)
}

func (s *ProctorService) thresholdFor(packageID uint) int {
	pkg, err := s.PackageRepo.FindByID(packageID)
	if err == nil && pkg != nil && pkg.ViolationThreshold > 0 {
		return pkg.ViolationThreshold
	}
	return s.DefaultThreshold
}
