package service

import (
	"context"
	"encoding/json"
	"testing"

	"examhub_backend/internal/model"

	"gorm.io/datatypes"
)

func optIDs(ids ...uint) datatypes.JSON {
	raw, _ := json.Marshal(ids)
	return raw
}

func TestClassify(t *testing.T) {
	uintPtr := func(v uint) *uint { return &v }
	floatPtr := func(v float64) *float64 { return &v }

	single := &model.AssessmentQuestion{
		QuestionType: model.SingleChoice,
		Options: []model.QuestionOption{
			{BaseModel: model.BaseModel{ID: 1}},
			{BaseModel: model.BaseModel{ID: 2}, IsCorrect: true},
		},
	}
	multi := &model.AssessmentQuestion{
		QuestionType: model.MultipleChoice,
		Options: []model.QuestionOption{
			{BaseModel: model.BaseModel{ID: 10}, IsCorrect: true},
			{BaseModel: model.BaseModel{ID: 11}},
			{BaseModel: model.BaseModel{ID: 12}, IsCorrect: true},
		},
	}
	numeric := &model.AssessmentQuestion{
		QuestionType:     model.Numeric,
		NumericAnswer:    floatPtr(3.14),
		NumericTolerance: 0.005,
	}

	cases := []struct {
		name string
		q    *model.AssessmentQuestion
		ans  *model.AttemptAnswer
		want bool
	}{
		{"single correct", single, &model.AttemptAnswer{SelectedOptionID: uintPtr(2)}, true},
		{"single wrong", single, &model.AttemptAnswer{SelectedOptionID: uintPtr(1)}, false},
		{"single empty", single, &model.AttemptAnswer{}, false},
		{"multi exact set", multi, &model.AttemptAnswer{SelectedOptionIDs: optIDs(10, 12)}, true},
		{"multi order irrelevant", multi, &model.AttemptAnswer{SelectedOptionIDs: optIDs(12, 10)}, true},
		{"multi subset", multi, &model.AttemptAnswer{SelectedOptionIDs: optIDs(10)}, false},
		{"multi superset", multi, &model.AttemptAnswer{SelectedOptionIDs: optIDs(10, 11, 12)}, false},
		{"multi duplicate ids", multi, &model.AttemptAnswer{SelectedOptionIDs: optIDs(10, 10)}, false},
		{"numeric exact", numeric, &model.AttemptAnswer{NumericAnswer: floatPtr(3.14)}, true},
		{"numeric within tolerance", numeric, &model.AttemptAnswer{NumericAnswer: floatPtr(3.143)}, true},
		{"numeric at tolerance edge", numeric, &model.AttemptAnswer{NumericAnswer: floatPtr(3.145)}, true},
		{"numeric outside tolerance", numeric, &model.AttemptAnswer{NumericAnswer: floatPtr(3.15)}, false},
		{"numeric missing", numeric, &model.AttemptAnswer{}, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := classify(tc.q, tc.ans); got != tc.want {
				t.Fatalf("classify = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestLinearScale(t *testing.T) {
	s := LinearScale{Scale: 100}
	if got := s.Score(3, 4); got != 75 {
		t.Fatalf("Score(3,4) = %f", got)
	}
	if got := s.Score(0, 4); got != 0 {
		t.Fatalf("Score(0,4) = %f", got)
	}
	if got := s.Score(0, 0); got != 0 {
		t.Fatalf("Score(0,0) = %f", got)
	}

	s20 := LinearScale{Scale: 20}
	if got := s20.Score(2, 4); got != 10 {
		t.Fatalf("Score(2,4) scale 20 = %f", got)
	}
}

func TestGradeWritesResultAndBreakdown(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user := env.createUser(t, "walter", 1)
	pkg := env.createPackage(t, 3)
	view, _ := env.attempts.Start(ctx, user.ID, pkg.ID)

	qs := env.questionsOf(t, pkg.ID)
	single := findQuestion(t, qs, model.SingleChoice)
	multi := findQuestion(t, qs, model.MultipleChoice)
	tf := findQuestion(t, qs, model.TrueFalse)
	numeric := findQuestion(t, qs, model.Numeric)

	rightSingle := correctOptionID(t, single)
	rightTF := correctOptionID(t, tf)
	pi := 3.14

	writes := []*AnswerWriteRequest{
		{QuestionID: single.ID, SelectedOptionID: &rightSingle, TimeSpentSecondsDelta: 30},
		{QuestionID: multi.ID, SelectedOptionIDs: correctOptionIDs(multi), TimeSpentSecondsDelta: 45},
		{QuestionID: tf.ID, SelectedOptionID: &rightTF, TimeSpentSecondsDelta: 15},
		{QuestionID: numeric.ID, NumericAnswer: &pi, TimeSpentSecondsDelta: 60},
	}
	for _, w := range writes {
		if _, err := env.attempts.WriteAnswer(ctx, user.ID, view.Attempt.ID, w); err != nil {
			t.Fatal(err)
		}
	}

	result, err := env.attempts.Submit(ctx, user.ID, view.Attempt.ID, model.SubmitByUser)
	if err != nil {
		t.Fatal(err)
	}

	if result.Score != 100 {
		t.Fatalf("score = %f, want 100", result.Score)
	}
	if !result.Passed {
		t.Fatal("should pass with full score")
	}
	if result.TimeSpentSeconds != 150 {
		t.Fatalf("timeSpent = %d, want 150", result.TimeSpentSeconds)
	}

	if len(result.PerSectionBreakdown) != 2 {
		t.Fatalf("breakdown sections = %d, want 2", len(result.PerSectionBreakdown))
	}
	for _, sb := range result.PerSectionBreakdown {
		if sb.Correct != 2 || sb.TotalQuestions != 2 {
			t.Fatalf("section %s: %+v", sb.Title, sb)
		}
		if sb.Score != 100 {
			t.Fatalf("section score = %f", sb.Score)
		}
	}

	// 逐题正误已回写
	answers, _ := env.attemptRepo.GetAnswers(view.Attempt.ID)
	for _, a := range answers {
		if a.IsCorrect == nil || !*a.IsCorrect {
			t.Fatalf("answer %d not marked correct", a.QuestionID)
		}
	}
}

func TestRegradeIsDeterministic(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user := env.createUser(t, "xena", 1)
	pkg := env.createPackage(t, 3)
	view, _ := env.attempts.Start(ctx, user.ID, pkg.ID)

	qs := env.questionsOf(t, pkg.ID)
	single := findQuestion(t, qs, model.SingleChoice)
	right := correctOptionID(t, single)
	if _, err := env.attempts.WriteAnswer(ctx, user.ID, view.Attempt.ID, &AnswerWriteRequest{
		QuestionID: single.ID, SelectedOptionID: &right,
	}); err != nil {
		t.Fatal(err)
	}

	first, err := env.attempts.Submit(ctx, user.ID, view.Attempt.ID, model.SubmitByUser)
	if err != nil {
		t.Fatal(err)
	}

	// 重判：整体重算覆盖，分数不变、排行榜不重复
	fresh, _ := env.attemptRepo.FindByID(view.Attempt.ID)
	second, err := env.grading.Grade(ctx, fresh)
	if err != nil {
		t.Fatal(err)
	}

	if first.Score != second.Score {
		t.Fatalf("regrade changed score: %f vs %f", first.Score, second.Score)
	}
	if first.CorrectCount != second.CorrectCount {
		t.Fatalf("regrade changed counts")
	}

	_, total, err := env.lbRepo.Rank(pkg.ID, 1, 10)
	if err != nil {
		t.Fatal(err)
	}
	if total != 1 {
		t.Fatalf("leaderboard rows = %d, want 1", total)
	}
}

func TestGradeRejectsInProgressAttempt(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user := env.createUser(t, "zoe", 1)
	pkg := env.createPackage(t, 3)
	view, _ := env.attempts.Start(ctx, user.ID, pkg.ID)

	// 判分只接终态 attempt，交卷时刻必须来自终态迁移
	fresh, _ := env.attemptRepo.FindByID(view.Attempt.ID)
	if _, err := env.grading.Grade(ctx, fresh); err == nil {
		t.Fatal("grading an unfinalized attempt should fail")
	}
}

func TestPassingScoreBoundary(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user := env.createUser(t, "yuri", 1)
	pkg := env.createPackage(t, 3) // passingScore 60
	view, _ := env.attempts.Start(ctx, user.ID, pkg.ID)

	// 4 题对 2 题 = 50 分，不及格
	qs := env.questionsOf(t, pkg.ID)
	single := findQuestion(t, qs, model.SingleChoice)
	tf := findQuestion(t, qs, model.TrueFalse)
	rightSingle := correctOptionID(t, single)
	rightTF := correctOptionID(t, tf)
	for _, w := range []*AnswerWriteRequest{
		{QuestionID: single.ID, SelectedOptionID: &rightSingle},
		{QuestionID: tf.ID, SelectedOptionID: &rightTF},
	} {
		if _, err := env.attempts.WriteAnswer(ctx, user.ID, view.Attempt.ID, w); err != nil {
			t.Fatal(err)
		}
	}

	result, err := env.attempts.Submit(ctx, user.ID, view.Attempt.ID, model.SubmitByUser)
	if err != nil {
		t.Fatal(err)
	}
	if result.Score != 50 {
		t.Fatalf("score = %f, want 50", result.Score)
	}
	if result.Passed {
		t.Fatal("50 < 60 must not pass")
	}
}
