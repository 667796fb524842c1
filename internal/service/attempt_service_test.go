package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"examhub_backend/internal/model"
	"examhub_backend/internal/util"
)

func findQuestion(t *testing.T, qs []model.AssessmentQuestion, qt model.QuestionType) *model.AssessmentQuestion {
	t.Helper()
	for i := range qs {
		if qs[i].QuestionType == qt {
			return &qs[i]
		}
	}
	t.Fatalf("no question of type %s", qt)
	return nil
}

func TestStartConsumesCreditAndCreatesAttempt(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user := env.createUser(t, "alice", 2)
	pkg := env.createPackage(t, 3)

	view, err := env.attempts.Start(ctx, user.ID, pkg.ID)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if view.Resumed {
		t.Fatal("fresh start should not be resumed")
	}
	if view.Attempt.Status != model.AttemptInProgress {
		t.Fatalf("status = %s", view.Attempt.Status)
	}
	if view.RemainingSeconds <= 0 {
		t.Fatalf("remainingSeconds = %d", view.RemainingSeconds)
	}
	if view.Attempt.AttemptNumber != 1 {
		t.Fatalf("attemptNumber = %d", view.Attempt.AttemptNumber)
	}

	credits, err := env.entitlement.Available(user.ID)
	if err != nil {
		t.Fatal(err)
	}
	if credits != 1 {
		t.Fatalf("credits after start = %d, want 1", credits)
	}
}

func TestStartWithoutCredits(t *testing.T) {
	env := newTestEnv(t)
	user := env.createUser(t, "bob", 0)
	pkg := env.createPackage(t, 3)

	_, err := env.attempts.Start(context.Background(), user.ID, pkg.ID)
	if !errors.Is(err, util.ErrNoEntitlement) {
		t.Fatalf("err = %v, want ErrNoEntitlement", err)
	}

	// 无副作用：不产生 attempt 行
	count, _ := env.attemptRepo.CountByUserAndPackage(user.ID, pkg.ID)
	if count != 0 {
		t.Fatalf("attempt rows = %d, want 0", count)
	}
}

func TestStartUnpublishedPackage(t *testing.T) {
	env := newTestEnv(t)
	user := env.createUser(t, "carol", 1)
	pkg := env.createPackage(t, 3)
	if err := env.pkgRepo.SetPublished(pkg.ID, false); err != nil {
		t.Fatal(err)
	}

	_, err := env.attempts.Start(context.Background(), user.ID, pkg.ID)
	if !errors.Is(err, util.ErrPackageNotPublished) {
		t.Fatalf("err = %v, want ErrPackageNotPublished", err)
	}
}

func TestStartResumesInProgressAttempt(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user := env.createUser(t, "dave", 5)
	pkg := env.createPackage(t, 3)

	first, err := env.attempts.Start(ctx, user.ID, pkg.ID)
	if err != nil {
		t.Fatal(err)
	}
	second, err := env.attempts.Start(ctx, user.ID, pkg.ID)
	if err != nil {
		t.Fatal(err)
	}

	if !second.Resumed {
		t.Fatal("second start should resume")
	}
	if second.Attempt.ID != first.Attempt.ID {
		t.Fatalf("resumed attempt %d, want %d", second.Attempt.ID, first.Attempt.ID)
	}

	// 续卷不再扣额度
	credits, _ := env.entitlement.Available(user.ID)
	if credits != 4 {
		t.Fatalf("credits = %d, want 4", credits)
	}
}

func TestStartAttemptLimit(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user := env.createUser(t, "erin", 10)
	pkg := env.createPackage(t, 2)

	for i := 0; i < 2; i++ {
		view, err := env.attempts.Start(ctx, user.ID, pkg.ID)
		if err != nil {
			t.Fatalf("start #%d: %v", i+1, err)
		}
		if _, err := env.attempts.Submit(ctx, user.ID, view.Attempt.ID, model.SubmitByUser); err != nil {
			t.Fatalf("submit #%d: %v", i+1, err)
		}
	}

	_, err := env.attempts.Start(ctx, user.ID, pkg.ID)
	if !errors.Is(err, util.ErrAttemptLimitReached) {
		t.Fatalf("err = %v, want ErrAttemptLimitReached", err)
	}
}

func TestWriteAnswerOwnershipIsOpaque(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	owner := env.createUser(t, "frank", 1)
	intruder := env.createUser(t, "grace", 1)
	pkg := env.createPackage(t, 3)

	view, err := env.attempts.Start(ctx, owner.ID, pkg.ID)
	if err != nil {
		t.Fatal(err)
	}

	qs := env.questionsOf(t, pkg.ID)
	single := findQuestion(t, qs, model.SingleChoice)
	opt := correctOptionID(t, single)

	_, err = env.attempts.WriteAnswer(ctx, intruder.ID, view.Attempt.ID, &AnswerWriteRequest{
		QuestionID:       single.ID,
		SelectedOptionID: &opt,
	})
	if !errors.Is(err, util.ErrAttemptNotFound) {
		t.Fatalf("err = %v, want opaque ErrAttemptNotFound", err)
	}
}

func TestWriteAnswerRejectsNegativeDelta(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user := env.createUser(t, "heidi", 1)
	pkg := env.createPackage(t, 3)
	view, _ := env.attempts.Start(ctx, user.ID, pkg.ID)

	qs := env.questionsOf(t, pkg.ID)
	single := findQuestion(t, qs, model.SingleChoice)

	_, err := env.attempts.WriteAnswer(ctx, user.ID, view.Attempt.ID, &AnswerWriteRequest{
		QuestionID:            single.ID,
		TimeSpentSecondsDelta: -5,
	})
	if !errors.Is(err, util.ErrValidation) {
		t.Fatalf("err = %v, want ErrValidation", err)
	}
}

func TestWriteAnswerRejectsForeignQuestion(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user := env.createUser(t, "ivan", 2)
	pkg := env.createPackage(t, 3)
	other := env.createPackage(t, 3)
	view, _ := env.attempts.Start(ctx, user.ID, pkg.ID)

	foreign := findQuestion(t, env.questionsOf(t, other.ID), model.SingleChoice)
	opt := correctOptionID(t, foreign)

	_, err := env.attempts.WriteAnswer(ctx, user.ID, view.Attempt.ID, &AnswerWriteRequest{
		QuestionID:       foreign.ID,
		SelectedOptionID: &opt,
	})
	if !errors.Is(err, util.ErrQuestionNotInPackage) {
		t.Fatalf("err = %v, want ErrQuestionNotInPackage", err)
	}
}

func TestWriteAnswerAccumulatesTimeOutOfOrder(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user := env.createUser(t, "judy", 1)
	pkg := env.createPackage(t, 3)
	view, _ := env.attempts.Start(ctx, user.ID, pkg.ID)

	qs := env.questionsOf(t, pkg.ID)
	single := findQuestion(t, qs, model.SingleChoice)
	right := correctOptionID(t, single)
	var wrong uint
	for _, o := range single.Options {
		if !o.IsCorrect {
			wrong = o.ID
			break
		}
	}

	// 乱序到达：后发的旧载荷覆盖答案，但时间只增不减
	if _, err := env.attempts.WriteAnswer(ctx, user.ID, view.Attempt.ID, &AnswerWriteRequest{
		QuestionID: single.ID, SelectedOptionID: &wrong, TimeSpentSecondsDelta: 10,
	}); err != nil {
		t.Fatal(err)
	}
	resp, err := env.attempts.WriteAnswer(ctx, user.ID, view.Attempt.ID, &AnswerWriteRequest{
		QuestionID: single.ID, SelectedOptionID: &right, TimeSpentSecondsDelta: 7,
	})
	if err != nil {
		t.Fatal(err)
	}
	if !resp.Accepted || resp.AttemptStatus != model.AttemptInProgress {
		t.Fatalf("ack = %+v, want accepted with IN_PROGRESS", resp)
	}
	if resp.TimeSpentSeconds != 17 {
		t.Fatalf("timeSpentSeconds = %d, want 17", resp.TimeSpentSeconds)
	}

	saved, err := env.attemptRepo.FindAnswer(view.Attempt.ID, single.ID)
	if err != nil {
		t.Fatal(err)
	}
	if saved.SelectedOptionID == nil || *saved.SelectedOptionID != right {
		t.Fatal("latest payload should win")
	}

	// 单行约束：同一题不会出现第二行
	answers, _ := env.attemptRepo.GetAnswers(view.Attempt.ID)
	if len(answers) != 1 {
		t.Fatalf("answer rows = %d, want 1", len(answers))
	}
}

func TestLazyExpiryOnWrite(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user := env.createUser(t, "kate", 1)
	pkg := env.createPackage(t, 3)
	view, _ := env.attempts.Start(ctx, user.ID, pkg.ID)

	env.expireAttempt(t, view.Attempt.ID)

	qs := env.questionsOf(t, pkg.ID)
	single := findQuestion(t, qs, model.SingleChoice)
	opt := correctOptionID(t, single)

	// 迟到的写不算错误：回执 accepted=false 并带终态，客户端据此停止重发
	resp, err := env.attempts.WriteAnswer(ctx, user.ID, view.Attempt.ID, &AnswerWriteRequest{
		QuestionID: single.ID, SelectedOptionID: &opt,
	})
	if err != nil {
		t.Fatalf("stale write should ack, got error: %v", err)
	}
	if resp.Accepted {
		t.Fatal("stale write must not be accepted")
	}
	if resp.AttemptStatus != model.AttemptExpired {
		t.Fatalf("ack status = %s, want EXPIRED", resp.AttemptStatus)
	}

	fresh, _ := env.attemptRepo.FindByID(view.Attempt.ID)
	if fresh.Status != model.AttemptExpired {
		t.Fatalf("status = %s, want EXPIRED", fresh.Status)
	}
	if fresh.SubmitReason != model.SubmitByTimeout {
		t.Fatalf("reason = %s, want TIMEOUT", fresh.SubmitReason)
	}

	// 拒收的答案不落库
	answers, _ := env.attemptRepo.GetAnswers(view.Attempt.ID)
	if len(answers) != 0 {
		t.Fatalf("answer rows = %d, want 0", len(answers))
	}

	// 过期路径也产生可读的成绩单
	result, err := env.attempts.Result(ctx, user.ID, view.Attempt.ID)
	if err != nil {
		t.Fatal(err)
	}
	if result.Status != model.AttemptExpired {
		t.Fatalf("result status = %s", result.Status)
	}
}

func TestLazyExpiryOnRead(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user := env.createUser(t, "leo", 1)
	pkg := env.createPackage(t, 3)
	view, _ := env.attempts.Start(ctx, user.ID, pkg.ID)

	env.expireAttempt(t, view.Attempt.ID)

	got, err := env.attempts.Get(ctx, user.ID, view.Attempt.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Attempt.Status != model.AttemptExpired {
		t.Fatalf("status = %s, want EXPIRED", got.Attempt.Status)
	}
	if got.RemainingSeconds != 0 {
		t.Fatalf("remainingSeconds = %d, want 0", got.RemainingSeconds)
	}
}

func TestSubmitIdempotent(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user := env.createUser(t, "mallory", 1)
	pkg := env.createPackage(t, 3)
	view, _ := env.attempts.Start(ctx, user.ID, pkg.ID)

	qs := env.questionsOf(t, pkg.ID)
	single := findQuestion(t, qs, model.SingleChoice)
	opt := correctOptionID(t, single)
	if _, err := env.attempts.WriteAnswer(ctx, user.ID, view.Attempt.ID, &AnswerWriteRequest{
		QuestionID: single.ID, SelectedOptionID: &opt,
	}); err != nil {
		t.Fatal(err)
	}

	first, err := env.attempts.Submit(ctx, user.ID, view.Attempt.ID, model.SubmitByUser)
	if err != nil {
		t.Fatal(err)
	}
	second, err := env.attempts.Submit(ctx, user.ID, view.Attempt.ID, model.SubmitByUser)
	if err != nil {
		t.Fatal(err)
	}

	if first.Score != second.Score {
		t.Fatalf("scores differ: %f vs %f", first.Score, second.Score)
	}
	if second.Status != model.AttemptSubmitted {
		t.Fatalf("status = %s", second.Status)
	}

	// 排行榜恰好一条
	entries, total, err := env.lbRepo.Rank(pkg.ID, 1, 10)
	if err != nil {
		t.Fatal(err)
	}
	if total != 1 || len(entries) != 1 {
		t.Fatalf("leaderboard rows = %d, want 1", total)
	}
}

func TestSubmitAfterDeadlineCountsAsTimeout(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user := env.createUser(t, "nick", 1)
	pkg := env.createPackage(t, 3)
	view, _ := env.attempts.Start(ctx, user.ID, pkg.ID)

	env.expireAttempt(t, view.Attempt.ID)

	result, err := env.attempts.Submit(ctx, user.ID, view.Attempt.ID, model.SubmitByUser)
	if err != nil {
		t.Fatal(err)
	}
	if result.Status != model.AttemptExpired {
		t.Fatalf("status = %s, want EXPIRED", result.Status)
	}
	if result.SubmitReason != model.SubmitByTimeout {
		t.Fatalf("reason = %s, want TIMEOUT", result.SubmitReason)
	}
}

func TestConcurrentSubmitSingleWinner(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user := env.createUser(t, "olivia", 1)
	pkg := env.createPackage(t, 3)
	view, _ := env.attempts.Start(ctx, user.ID, pkg.ID)

	single := findQuestion(t, env.questionsOf(t, pkg.ID), model.SingleChoice)
	opt := correctOptionID(t, single)
	if _, err := env.attempts.WriteAnswer(ctx, user.ID, view.Attempt.ID, &AnswerWriteRequest{
		QuestionID: single.ID, SelectedOptionID: &opt,
	}); err != nil {
		t.Fatal(err)
	}

	var wg sync.WaitGroup
	results := make([]*SubmissionResult, 5)
	errs := make([]error, 5)
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = env.attempts.Submit(ctx, user.ID, view.Attempt.ID, model.SubmitByUser)
		}(i)
	}
	wg.Wait()

	// 输家不能抢在判分落库前把空结果当成绩单：每个返回都必须是判过分的
	for i := 0; i < 5; i++ {
		if errs[i] != nil {
			t.Fatalf("submit #%d: %v", i, errs[i])
		}
		if results[i].TotalQuestions != 4 || results[i].Score != 25 {
			t.Fatalf("submit #%d ungraded: total=%d score=%f, want total=4 score=25",
				i, results[i].TotalQuestions, results[i].Score)
		}
	}

	_, total, err := env.lbRepo.Rank(pkg.ID, 1, 10)
	if err != nil {
		t.Fatal(err)
	}
	if total != 1 {
		t.Fatalf("leaderboard rows = %d, want 1", total)
	}
}

func TestSubmitGradesTerminalAttemptMissingResult(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user := env.createUser(t, "rita", 1)
	pkg := env.createPackage(t, 3)
	view, _ := env.attempts.Start(ctx, user.ID, pkg.ID)

	single := findQuestion(t, env.questionsOf(t, pkg.ID), model.SingleChoice)
	opt := correctOptionID(t, single)
	if _, err := env.attempts.WriteAnswer(ctx, user.ID, view.Attempt.ID, &AnswerWriteRequest{
		QuestionID: single.ID, SelectedOptionID: &opt,
	}); err != nil {
		t.Fatal(err)
	}

	// 直接走仓储做终态迁移，不判分。模拟赢家已迁移但结果还没落库的窗口
	won, err := env.attemptRepo.FinalizeIfInProgress(view.Attempt.ID, model.SubmitByUser, time.Now())
	if err != nil || !won {
		t.Fatalf("finalize: won=%v err=%v", won, err)
	}

	result, err := env.attempts.Submit(ctx, user.ID, view.Attempt.ID, model.SubmitByUser)
	if err != nil {
		t.Fatal(err)
	}
	if result.TotalQuestions != 4 || result.Score != 25 {
		t.Fatalf("ungraded result: total=%d score=%f, want total=4 score=25",
			result.TotalQuestions, result.Score)
	}

	fresh, _ := env.attemptRepo.FindByID(view.Attempt.ID)
	if fresh.GradedAt == nil {
		t.Fatal("gradedAt should be set after the backfill grade")
	}
}

func TestTotalsIdentity(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user := env.createUser(t, "peggy", 1)
	pkg := env.createPackage(t, 3)
	view, _ := env.attempts.Start(ctx, user.ID, pkg.ID)

	qs := env.questionsOf(t, pkg.ID)
	single := findQuestion(t, qs, model.SingleChoice)
	numeric := findQuestion(t, qs, model.Numeric)

	right := correctOptionID(t, single)
	if _, err := env.attempts.WriteAnswer(ctx, user.ID, view.Attempt.ID, &AnswerWriteRequest{
		QuestionID: single.ID, SelectedOptionID: &right,
	}); err != nil {
		t.Fatal(err)
	}
	wrongVal := 2.71
	if _, err := env.attempts.WriteAnswer(ctx, user.ID, view.Attempt.ID, &AnswerWriteRequest{
		QuestionID: numeric.ID, NumericAnswer: &wrongVal,
	}); err != nil {
		t.Fatal(err)
	}

	result, err := env.attempts.Submit(ctx, user.ID, view.Attempt.ID, model.SubmitByUser)
	if err != nil {
		t.Fatal(err)
	}

	if result.CorrectCount != 1 || result.IncorrectCount != 1 || result.UnansweredCount != 2 {
		t.Fatalf("counts = %d/%d/%d, want 1/1/2",
			result.CorrectCount, result.IncorrectCount, result.UnansweredCount)
	}
	if result.CorrectCount+result.IncorrectCount+result.UnansweredCount != result.TotalQuestions {
		t.Fatal("totals identity violated")
	}
	if result.Score != 25 {
		t.Fatalf("score = %f, want 25 (1/4 on 100 scale)", result.Score)
	}
}

func TestResultBeforeSubmit(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user := env.createUser(t, "quinn", 1)
	pkg := env.createPackage(t, 3)
	view, _ := env.attempts.Start(ctx, user.ID, pkg.ID)

	_, err := env.attempts.Result(ctx, user.ID, view.Attempt.ID)
	if !errors.Is(err, util.ErrAttemptInProgress) {
		t.Fatalf("err = %v, want ErrAttemptInProgress", err)
	}
}
