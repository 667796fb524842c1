package service

import (
	"context"
	"encoding/json"
	"time"

	"examhub_backend/internal/model"
	"examhub_backend/internal/repository"
	"examhub_backend/internal/util"
	"examhub_backend/pkg/logger"
	"examhub_backend/pkg/monitoring"

	"go.uber.org/zap"
)

// AnswerWriteRequest 每题一次幂等写入，时间给增量不给总量
type AnswerWriteRequest struct {
	QuestionID            uint     `json:"questionId" binding:"required"`
	SelectedOptionID      *uint    `json:"selectedOptionId"`
	SelectedOptionIDs     []uint   `json:"selectedOptionIds"`
	NumericAnswer         *float64 `json:"numericAnswer"`
	IsFlagged             bool     `json:"isFlagged"`
	TimeSpentSecondsDelta int      `json:"timeSpentSecondsDelta"`
}

type AnswerWriteResponse struct {
	QuestionID       uint                `json:"questionId"`
	Accepted         bool                `json:"accepted"`
	AttemptStatus    model.AttemptStatus `json:"attemptStatus"`
	TimeSpentSeconds int                 `json:"timeSpentSeconds"`
	RemainingSeconds int                 `json:"remainingSeconds"`
	ServerTime       time.Time           `json:"serverTime"`
}

// AttemptView 开卷/续卷/查询的统一视图，倒计时以服务器为准
type AttemptView struct {
	Attempt          *model.ExamAttempt    `json:"attempt"`
	Answers          []model.AttemptAnswer `json:"answers"`
	RemainingSeconds int                   `json:"remainingSeconds"`
	ServerTime       time.Time             `json:"serverTime"`
	Resumed          bool                  `json:"resumed"`
}

// AttemptService 作答会话状态机。截止时间创建时固定，过期靠读写路径惰性结算，
// 所有状态迁移都是守卫式单条 SQL，并发下恰好一个赢家。
type AttemptService struct {
	AttemptRepo  *repository.AttemptRepository
	PackageRepo  *repository.PackageRepository
	Entitlements *EntitlementService
	Grading      *GradingService
}

func NewAttemptService(
	attemptRepo *repository.AttemptRepository,
	packageRepo *repository.PackageRepository,
	entitlements *EntitlementService,
	grading *GradingService,
) *AttemptService {
	return &AttemptService{
		AttemptRepo:  attemptRepo,
		PackageRepo:  packageRepo,
		Entitlements: entitlements,
		Grading:      grading,
	}
}

// Start 开卷。已有进行中的 attempt 直接续卷，不扣额度不占次数。
func (s *AttemptService) Start(ctx context.Context, userID, packageID uint) (*AttemptView, error) {
	pkg, err := s.PackageRepo.FindByID(packageID)
	if err != nil {
		return nil, err
	}
	if pkg == nil {
		return nil, util.ErrPackageNotFound
	}
	if !pkg.IsPublished {
		return nil, util.ErrPackageNotPublished
	}

	now := time.Now()

	if existing, err := s.AttemptRepo.FindInProgress(userID, packageID); err != nil {
		return nil, err
	} else if existing != nil {
		if now.Before(existing.ServerDeadline) {
			return s.view(existing, true)
		}
		// 超时的旧会话先结算掉，再按新开处理
		if _, err := s.finalize(ctx, existing, model.SubmitByTimeout); err != nil {
			return nil, err
		}
	}

	duration := pkg.EffectiveDurationMinutes()
	if duration <= 0 {
		return nil, util.ValidationError("package %d has no duration configured", packageID)
	}

	if pkg.MaxAttempts > 0 {
		count, err := s.AttemptRepo.CountByUserAndPackage(userID, packageID)
		if err != nil {
			return nil, err
		}
		if count >= int64(pkg.MaxAttempts) {
			return nil, util.ErrAttemptLimitReached
		}
	}

	if err := s.Entitlements.Consume(userID); err != nil {
		return nil, err
	}

	maxNum, err := s.AttemptRepo.MaxAttemptNumber(userID, packageID)
	if err != nil {
		s.refund(userID)
		return nil, err
	}

	attempt := &model.ExamAttempt{
		UserID:         userID,
		PackageID:      packageID,
		AttemptNumber:  maxNum + 1,
		Status:         model.AttemptInProgress,
		StartedAt:      now,
		ServerDeadline: now.Add(time.Duration(duration) * time.Minute),
	}
	if err := s.AttemptRepo.Create(attempt); err != nil {
		// 并发 Start 撞唯一索引：对方已建会话，退额度、续对方的卷
		s.refund(userID)
		existing, ferr := s.AttemptRepo.FindInProgress(userID, packageID)
		if ferr == nil && existing != nil {
			return s.view(existing, true)
		}
		return nil, err
	}

	monitoring.AttemptsStarted.Inc()
	return s.view(attempt, false)
}

// Get 续卷视图。终态 attempt 也可查，用于回看。
func (s *AttemptService) Get(ctx context.Context, userID, attemptID uint) (*AttemptView, error) {
	attempt, err := s.ownedAttempt(userID, attemptID)
	if err != nil {
		return nil, err
	}
	attempt, err = s.lazyExpire(ctx, attempt)
	if err != nil {
		return nil, err
	}
	return s.view(attempt, attempt.Status == model.AttemptInProgress)
}

// WriteAnswer 幂等同步一题作答。乱序重试安全，时间增量只增不减。
// 会话已终结时不算错误：回执 accepted=false 并带终态，客户端据此停止重发。
func (s *AttemptService) WriteAnswer(ctx context.Context, userID, attemptID uint, req *AnswerWriteRequest) (*AnswerWriteResponse, error) {
	if req.TimeSpentSecondsDelta < 0 {
		return nil, util.ValidationError("timeSpentSecondsDelta must be >= 0")
	}

	attempt, err := s.ownedAttempt(userID, attemptID)
	if err != nil {
		return nil, err
	}
	attempt, err = s.lazyExpire(ctx, attempt)
	if err != nil {
		return nil, err
	}
	if attempt.Status.IsTerminal() {
		return &AnswerWriteResponse{
			QuestionID:    req.QuestionID,
			Accepted:      false,
			AttemptStatus: attempt.Status,
			ServerTime:    time.Now(),
		}, nil
	}

	question, err := s.PackageRepo.FindQuestionByID(req.QuestionID)
	if err != nil {
		return nil, err
	}
	if question == nil || question.PackageID != attempt.PackageID {
		return nil, util.ErrQuestionNotInPackage
	}
	if err := validateAnswerPayload(question, req); err != nil {
		return nil, err
	}

	ans := &model.AttemptAnswer{
		AttemptID:        attempt.ID,
		QuestionID:       question.ID,
		SelectedOptionID: req.SelectedOptionID,
		NumericAnswer:    req.NumericAnswer,
		IsFlagged:        req.IsFlagged,
	}
	if len(req.SelectedOptionIDs) > 0 {
		raw, err := json.Marshal(req.SelectedOptionIDs)
		if err != nil {
			return nil, err
		}
		ans.SelectedOptionIDs = raw
	}

	if err := s.AttemptRepo.UpsertAnswer(ans, req.TimeSpentSecondsDelta); err != nil {
		return nil, err
	}
	monitoring.AnswersWritten.Inc()

	saved, err := s.AttemptRepo.FindAnswer(attempt.ID, question.ID)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	resp := &AnswerWriteResponse{
		QuestionID:       question.ID,
		Accepted:         true,
		AttemptStatus:    attempt.Status,
		RemainingSeconds: attempt.RemainingSeconds(now),
		ServerTime:       now,
	}
	if saved != nil {
		resp.TimeSpentSeconds = saved.TimeSpentSeconds
	}
	return resp, nil
}

// Submit 交卷。重复提交返回已有结果；过了截止时间按超时计。
func (s *AttemptService) Submit(ctx context.Context, userID, attemptID uint, reason model.SubmitReason) (*SubmissionResult, error) {
	attempt, err := s.ownedAttempt(userID, attemptID)
	if err != nil {
		return nil, err
	}
	if attempt.Status.IsTerminal() {
		return s.resultOrGrade(ctx, attempt)
	}
	if reason == model.SubmitByUser && !time.Now().Before(attempt.ServerDeadline) {
		reason = model.SubmitByTimeout
	}
	return s.finalize(ctx, attempt, reason)
}

// Result 查询已终结 attempt 的成绩单
func (s *AttemptService) Result(ctx context.Context, userID, attemptID uint) (*SubmissionResult, error) {
	attempt, err := s.ownedAttempt(userID, attemptID)
	if err != nil {
		return nil, err
	}
	attempt, err = s.lazyExpire(ctx, attempt)
	if err != nil {
		return nil, err
	}
	if !attempt.Status.IsTerminal() {
		return nil, util.ErrAttemptInProgress
	}
	return s.resultOrGrade(ctx, attempt)
}

func (s *AttemptService) ListMine(userID uint, page, limit int) ([]model.ExamAttempt, int64, error) {
	return s.AttemptRepo.ListByUser(userID, page, limit)
}

// finalize 守卫式终态迁移。赢家同步判分；输家读已有结果。
func (s *AttemptService) finalize(ctx context.Context, attempt *model.ExamAttempt, reason model.SubmitReason) (*SubmissionResult, error) {
	won, err := s.AttemptRepo.FinalizeIfInProgress(attempt.ID, reason, time.Now())
	if err != nil {
		return nil, err
	}

	fresh, err := s.AttemptRepo.FindByID(attempt.ID)
	if err != nil {
		return nil, err
	}
	if fresh == nil {
		return nil, util.ErrAttemptNotFound
	}

	if !won {
		// 输家：赢家可能还没把判分结果写完，不能把空结果当成绩单返回
		return s.resultOrGrade(ctx, fresh)
	}

	monitoring.AttemptsFinalized.WithLabelValues(string(reason)).Inc()
	result, err := s.Grading.Grade(ctx, fresh)
	if err != nil {
		// 判分失败不回滚终态，下一次读取重算
		logger.Log.Error("grade attempt", zap.Uint("attemptId", fresh.ID), zap.Error(err))
		return nil, err
	}
	return result, nil
}

// resultOrGrade 终态 attempt 的成绩单。终态迁移和结果回写不是同一条语句，
// 并发下读到终态但 GradedAt 为空时就地补判，判分整体重算、只覆盖，重复执行安全
func (s *AttemptService) resultOrGrade(ctx context.Context, attempt *model.ExamAttempt) (*SubmissionResult, error) {
	if attempt.GradedAt == nil {
		return s.Grading.Grade(ctx, attempt)
	}
	return s.Grading.ResultFor(attempt)
}

// lazyExpire 读写路径统一入口：过期的进行中会话先按 TIMEOUT 结算
func (s *AttemptService) lazyExpire(ctx context.Context, attempt *model.ExamAttempt) (*model.ExamAttempt, error) {
	if attempt.Status != model.AttemptInProgress || time.Now().Before(attempt.ServerDeadline) {
		return attempt, nil
	}
	if _, err := s.finalize(ctx, attempt, model.SubmitByTimeout); err != nil {
		return nil, err
	}
	fresh, err := s.AttemptRepo.FindByID(attempt.ID)
	if err != nil {
		return nil, err
	}
	if fresh == nil {
		return nil, util.ErrAttemptNotFound
	}
	return fresh, nil
}

// ownedAttempt 非本人一律视作不存在
func (s *AttemptService) ownedAttempt(userID, attemptID uint) (*model.ExamAttempt, error) {
	attempt, err := s.AttemptRepo.FindByID(attemptID)
	if err != nil {
		return nil, err
	}
	if attempt == nil || attempt.UserID != userID {
		return nil, util.ErrAttemptNotFound
	}
	return attempt, nil
}

func (s *AttemptService) view(attempt *model.ExamAttempt, resumed bool) (*AttemptView, error) {
	answers, err := s.AttemptRepo.GetAnswers(attempt.ID)
	if err != nil {
		return nil, err
	}
	now := time.Now()
	return &AttemptView{
		Attempt:          attempt,
		Answers:          answers,
		RemainingSeconds: attempt.RemainingSeconds(now),
		ServerTime:       now,
		Resumed:          resumed,
	}, nil
}

func (s *AttemptService) refund(userID uint) {
	if err := s.Entitlements.Refund(userID); err != nil {
		logger.Log.Error("refund exam credit", zap.Uint("userId", userID), zap.Error(err))
	}
}

// validateAnswerPayload 载荷必须和题型匹配，选项必须属于该题
func validateAnswerPayload(q *model.AssessmentQuestion, req *AnswerWriteRequest) error {
	optionSet := make(map[uint]bool, len(q.Options))
	for _, o := range q.Options {
		optionSet[o.ID] = true
	}

	switch q.QuestionType {
	case model.SingleChoice, model.TrueFalse:
		if len(req.SelectedOptionIDs) > 0 || req.NumericAnswer != nil {
			return util.ValidationError("question %d expects a single option", q.ID)
		}
		if req.SelectedOptionID != nil && !optionSet[*req.SelectedOptionID] {
			return util.ValidationError("option does not belong to question %d", q.ID)
		}
	case model.MultipleChoice:
		if req.SelectedOptionID != nil || req.NumericAnswer != nil {
			return util.ValidationError("question %d expects a list of options", q.ID)
		}
		for _, id := range req.SelectedOptionIDs {
			if !optionSet[id] {
				return util.ValidationError("option %d does not belong to question %d", id, q.ID)
			}
		}
	case model.Numeric:
		if req.SelectedOptionID != nil || len(req.SelectedOptionIDs) > 0 {
			return util.ValidationError("question %d expects a numeric answer", q.ID)
		}
	default:
		return util.ValidationError("unknown question type %q", q.QuestionType)
	}
	return nil
}
