package service

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"time"

	"examhub_backend/internal/model"
	"examhub_backend/internal/repository"
	"examhub_backend/pkg/logger"

	"go.uber.org/zap"
)

// SectionBreakdown 单章节得分明细
type SectionBreakdown struct {
	SectionID      uint    `json:"sectionId"`
	Title          string  `json:"title"`
	Subject        string  `json:"subject"`
	Correct        int     `json:"correct"`
	Incorrect      int     `json:"incorrect"`
	Unanswered     int     `json:"unanswered"`
	TotalQuestions int     `json:"totalQuestions"`
	Score          float64 `json:"score"`
}

// SubmissionResult 终结后的标准结果读模型
type SubmissionResult struct {
	AttemptID           uint                `json:"attemptId"`
	PackageID           uint                `json:"packageId"`
	Status              model.AttemptStatus `json:"status"`
	SubmitReason        model.SubmitReason  `json:"submitReason"`
	Score               float64             `json:"score"`
	CorrectCount        int                 `json:"correctCount"`
	IncorrectCount      int                 `json:"incorrectCount"`
	UnansweredCount     int                 `json:"unansweredCount"`
	TotalQuestions      int                 `json:"totalQuestions"`
	Passed              bool                `json:"passed"`
	Percentile          *float64            `json:"percentile,omitempty"`
	TimeSpentSeconds    int                 `json:"timeSpentSeconds"`
	FinishedAt          *time.Time          `json:"finishedAt,omitempty"`
	PerSectionBreakdown []SectionBreakdown  `json:"perSectionBreakdown"`
}

// GradingService 从落库的答案行确定性重算，重试安全：只覆盖，从不累加
type GradingService struct {
	AttemptRepo     *repository.AttemptRepository
	PackageRepo     *repository.PackageRepository
	LeaderboardRepo *repository.LeaderboardRepository
	UserRepo        *repository.UserRepository
	Strategy        ScoringStrategy
	Notifier        Notifier
}

func NewGradingService(
	attemptRepo *repository.AttemptRepository,
	packageRepo *repository.PackageRepository,
	leaderboardRepo *repository.LeaderboardRepository,
	userRepo *repository.UserRepository,
	strategy ScoringStrategy,
	notifier Notifier,
) *GradingService {
	return &GradingService{
		AttemptRepo:     attemptRepo,
		PackageRepo:     packageRepo,
		LeaderboardRepo: leaderboardRepo,
		UserRepo:        userRepo,
		Strategy:        strategy,
		Notifier:        notifier,
	}
}

// Grade 终态后同步调用，整体重算、只覆盖，重复执行得到相同结果。
// 赢家在终态迁移后立即调用；输家读到终态但结果未落库时也会补判一次。
func (s *GradingService) Grade(ctx context.Context, attempt *model.ExamAttempt) (*SubmissionResult, error) {
	// 终态迁移总是先写 finished_at，这里拿不到说明调用方传了未终结的行
	if attempt.FinishedAt == nil {
		return nil, fmt.Errorf("attempt %d is not finalized", attempt.ID)
	}

	pkg, err := s.PackageRepo.FindByID(attempt.PackageID)
	if err != nil {
		return nil, err
	}
	qs, err := s.PackageRepo.QuestionsByPackage(attempt.PackageID)
	if err != nil {
		return nil, err
	}
	answers, err := s.AttemptRepo.GetAnswers(attempt.ID)
	if err != nil {
		return nil, err
	}

	answerByQuestion := make(map[uint]*model.AttemptAnswer, len(answers))
	totalTime := 0
	for i := range answers {
		answerByQuestion[answers[i].QuestionID] = &answers[i]
		totalTime += answers[i].TimeSpentSeconds
	}

	var correct, incorrect, unanswered int
	perSection := make(map[uint]*SectionBreakdown)
	for i := range qs {
		q := &qs[i]
		sb := perSection[q.SectionID]
		if sb == nil {
			sb = &SectionBreakdown{SectionID: q.SectionID}
			perSection[q.SectionID] = sb
		}
		sb.TotalQuestions++

		ans := answerByQuestion[q.ID]
		if ans == nil || !ans.Answered() {
			unanswered++
			sb.Unanswered++
			continue
		}

		ok := classify(q, ans)
		if err := s.AttemptRepo.UpdateAnswerCorrectness(ans.ID, ok); err != nil {
			return nil, err
		}
		if ok {
			correct++
			sb.Correct++
		} else {
			incorrect++
			sb.Incorrect++
		}
	}

	total := len(qs)
	score := s.Strategy.Score(correct, total)
	passed := pkg != nil && score >= pkg.PassingScore

	if err := s.AttemptRepo.UpdateResult(attempt.ID, map[string]interface{}{
		"score":            score,
		"raw_score":        float64(correct),
		"correct_count":    correct,
		"incorrect_count":  incorrect,
		"unanswered_count": unanswered,
		"total_questions":  total,
		"passed":           passed,
		"graded_at":        time.Now(),
	}); err != nil {
		return nil, err
	}

	// 排行榜同分并列时按交卷时刻排序，必须用终态迁移写下的时间
	finishedAt := *attempt.FinishedAt

	userName := ""
	if u, err := s.UserRepo.FindByID(attempt.UserID); err == nil && u != nil {
		userName = u.Name
	}
	if err := s.LeaderboardRepo.Upsert(&model.LeaderboardEntry{
		PackageID:  attempt.PackageID,
		AttemptID:  attempt.ID,
		UserID:     attempt.UserID,
		UserName:   userName,
		Score:      score,
		FinishedAt: finishedAt,
	}); err != nil {
		return nil, err
	}

	var percentilePtr *float64
	if pct, err := s.LeaderboardRepo.Percentile(attempt.PackageID, score); err == nil {
		percentilePtr = &pct
		if err := s.AttemptRepo.UpdateResult(attempt.ID, map[string]interface{}{
			"percentile": pct,
		}); err != nil {
			logger.Log.Warn("persist percentile", zap.Uint("attemptId", attempt.ID), zap.Error(err))
		}
	}

	breakdown := buildBreakdown(pkg, perSection, s.Strategy)

	result := &SubmissionResult{
		AttemptID:           attempt.ID,
		PackageID:           attempt.PackageID,
		Status:              attempt.Status,
		SubmitReason:        attempt.SubmitReason,
		Score:               score,
		CorrectCount:        correct,
		IncorrectCount:      incorrect,
		UnansweredCount:     unanswered,
		TotalQuestions:      total,
		Passed:              passed,
		Percentile:          percentilePtr,
		TimeSpentSeconds:    totalTime,
		FinishedAt:          attempt.FinishedAt,
		PerSectionBreakdown: breakdown,
	}

	s.Notifier.AttemptFinalized(ctx, FinalizedEvent{
		AttemptID: attempt.ID,
		UserID:    attempt.UserID,
		PackageID: attempt.PackageID,
		Reason:    string(attempt.SubmitReason),
		Score:     score,
	})

	return result, nil
}

// ResultFor 对已终结 attempt 重建结果读模型（幂等读取，不再写库）
func (s *GradingService) ResultFor(attempt *model.ExamAttempt) (*SubmissionResult, error) {
	pkg, err := s.PackageRepo.FindByID(attempt.PackageID)
	if err != nil {
		return nil, err
	}
	qs, err := s.PackageRepo.QuestionsByPackage(attempt.PackageID)
	if err != nil {
		return nil, err
	}
	answers, err := s.AttemptRepo.GetAnswers(attempt.ID)
	if err != nil {
		return nil, err
	}

	answerByQuestion := make(map[uint]*model.AttemptAnswer, len(answers))
	totalTime := 0
	for i := range answers {
		answerByQuestion[answers[i].QuestionID] = &answers[i]
		totalTime += answers[i].TimeSpentSeconds
	}

	perSection := make(map[uint]*SectionBreakdown)
	for i := range qs {
		q := &qs[i]
		sb := perSection[q.SectionID]
		if sb == nil {
			sb = &SectionBreakdown{SectionID: q.SectionID}
			perSection[q.SectionID] = sb
		}
		sb.TotalQuestions++
		ans := answerByQuestion[q.ID]
		switch {
		case ans == nil || !ans.Answered():
			sb.Unanswered++
		case ans.IsCorrect != nil && *ans.IsCorrect:
			sb.Correct++
		default:
			sb.Incorrect++
		}
	}

	return &SubmissionResult{
		AttemptID:           attempt.ID,
		PackageID:           attempt.PackageID,
		Status:              attempt.Status,
		SubmitReason:        attempt.SubmitReason,
		Score:               attempt.Score,
		CorrectCount:        attempt.CorrectCount,
		IncorrectCount:      attempt.IncorrectCount,
		UnansweredCount:     attempt.UnansweredCount,
		TotalQuestions:      attempt.TotalQuestions,
		Passed:              attempt.Passed,
		Percentile:          attempt.Percentile,
		TimeSpentSeconds:    totalTime,
		FinishedAt:          attempt.FinishedAt,
		PerSectionBreakdown: buildBreakdown(pkg, perSection, s.Strategy),
	}, nil
}

// classify 单题判定：多选要求选项集合完全一致，数值题带容差
func classify(q *model.AssessmentQuestion, ans *model.AttemptAnswer) bool {
	switch q.QuestionType {
	case model.SingleChoice, model.TrueFalse:
		if ans.SelectedOptionID == nil {
			return false
		}
		return q.CorrectOptionIDs()[*ans.SelectedOptionID]
	case model.MultipleChoice:
		var picked []uint
		if len(ans.SelectedOptionIDs) > 0 {
			if err := json.Unmarshal(ans.SelectedOptionIDs, &picked); err != nil {
				return false
			}
		}
		correct := q.CorrectOptionIDs()
		if len(picked) != len(correct) || len(picked) == 0 {
			return false
		}
		seen := make(map[uint]bool, len(picked))
		for _, id := range picked {
			if !correct[id] || seen[id] {
				return false
			}
			seen[id] = true
		}
		return true
	case model.Numeric:
		if ans.NumericAnswer == nil || q.NumericAnswer == nil {
			return false
		}
		return math.Abs(*ans.NumericAnswer-*q.NumericAnswer) <= q.NumericTolerance
	}
	return false
}

func buildBreakdown(pkg *model.AssessmentPackage, perSection map[uint]*SectionBreakdown, strategy ScoringStrategy) []SectionBreakdown {
	var breakdown []SectionBreakdown
	if pkg != nil {
		for _, sec := range pkg.Sections {
			if sb, ok := perSection[sec.ID]; ok {
				sb.Title = sec.Title
				sb.Subject = sec.Subject
				sb.Score = strategy.Score(sb.Correct, sb.TotalQuestions)
				breakdown = append(breakdown, *sb)
			}
		}
	}
	if breakdown == nil {
		for _, sb := range perSection {
			sb.Score = strategy.Score(sb.Correct, sb.TotalQuestions)
			breakdown = append(breakdown, *sb)
		}
	}
	return breakdown
}
