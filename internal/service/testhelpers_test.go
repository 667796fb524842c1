package service

import (
	"testing"
	"time"

	"examhub_backend/internal/model"
	"examhub_backend/internal/repository"
	"examhub_backend/pkg/database"
	"examhub_backend/pkg/logger"

	"github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// newTestDB 内存 SQLite。限制单连接：每个内存库只在一条连接上可见，
// 顺带把并发用例串行化到数据库层
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	logger.Log = zap.NewNop()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)

	if err := database.Migrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

type testEnv struct {
	db          *gorm.DB
	userRepo    *repository.UserRepository
	pkgRepo     *repository.PackageRepository
	attemptRepo *repository.AttemptRepository
	lbRepo      *repository.LeaderboardRepository

	entitlement *EntitlementService
	grading     *GradingService
	attempts    *AttemptService
	proctor     *ProctorService
	leaderboard *LeaderboardService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	db := newTestDB(t)

	env := &testEnv{
		db:          db,
		userRepo:    repository.NewUserRepository(db),
		pkgRepo:     repository.NewPackageRepository(db),
		attemptRepo: repository.NewAttemptRepository(db),
		lbRepo:      repository.NewLeaderboardRepository(db),
	}
	env.entitlement = NewEntitlementService(env.userRepo)
	env.grading = NewGradingService(
		env.attemptRepo, env.pkgRepo, env.lbRepo, env.userRepo,
		LinearScale{Scale: 100}, NoopNotifier{},
	)
	env.attempts = NewAttemptService(env.attemptRepo, env.pkgRepo, env.entitlement, env.grading)
	env.proctor = NewProctorService(env.attempts, env.attemptRepo, env.pkgRepo, 3)
	env.leaderboard = NewLeaderboardService(env.lbRepo, env.pkgRepo, nil, 20, 100, 30)
	return env
}

func (e *testEnv) createUser(t *testing.T, name string, credits int) *model.User {
	t.Helper()
	u := &model.User{
		Name:        name,
		Email:       name + "@test.local",
		Password:    "hash",
		Role:        model.Student,
		ExamCredits: credits,
	}
	if err := e.userRepo.Create(u); err != nil {
		t.Fatalf("create user: %v", err)
	}
	return u
}

// createPackage 一套已发布试卷：两章节，
// 第一章 1 道单选 + 1 道多选，第二章 1 道判断 + 1 道数值
func (e *testEnv) createPackage(t *testing.T, maxAttempts int) *model.AssessmentPackage {
	t.Helper()
	pkg := &model.AssessmentPackage{
		Title:              "Sample Exam",
		DurationMinutes:    30,
		PassingScore:       60,
		MaxAttempts:        maxAttempts,
		ProctoringEnabled:  true,
		ViolationThreshold: 3,
		IsPublished:        true,
		TotalQuestions:     4,
	}
	if err := e.pkgRepo.Create(pkg); err != nil {
		t.Fatalf("create package: %v", err)
	}

	sec1 := &model.AssessmentSection{PackageID: pkg.ID, Title: "Part A", Subject: "math", DurationMinutes: 20, Order: 1}
	sec2 := &model.AssessmentSection{PackageID: pkg.ID, Title: "Part B", Subject: "logic", DurationMinutes: 10, Order: 2}
	for _, s := range []*model.AssessmentSection{sec1, sec2} {
		if err := e.pkgRepo.CreateSection(s); err != nil {
			t.Fatalf("create section: %v", err)
		}
	}

	single := &model.AssessmentQuestion{
		SectionID: sec1.ID, PackageID: pkg.ID,
		QuestionType: model.SingleChoice, Content: "1+1=?", Order: 1,
		Options: []model.QuestionOption{
			{Content: "1", Order: 1},
			{Content: "2", IsCorrect: true, Order: 2},
			{Content: "3", Order: 3},
		},
	}
	multi := &model.AssessmentQuestion{
		SectionID: sec1.ID, PackageID: pkg.ID,
		QuestionType: model.MultipleChoice, Content: "even numbers?", Order: 2,
		Options: []model.QuestionOption{
			{Content: "2", IsCorrect: true, Order: 1},
			{Content: "3", Order: 2},
			{Content: "4", IsCorrect: true, Order: 3},
		},
	}
	tf := &model.AssessmentQuestion{
		SectionID: sec2.ID, PackageID: pkg.ID,
		QuestionType: model.TrueFalse, Content: "0 is even", Order: 1,
		Options: []model.QuestionOption{
			{Content: "true", IsCorrect: true, Order: 1},
			{Content: "false", Order: 2},
		},
	}
	pi := 3.14
	numeric := &model.AssessmentQuestion{
		SectionID: sec2.ID, PackageID: pkg.ID,
		QuestionType: model.Numeric, Content: "pi to 2 places", Order: 2,
		NumericAnswer: &pi, NumericTolerance: 0.005,
	}
	for _, q := range []*model.AssessmentQuestion{single, multi, tf, numeric} {
		if err := e.pkgRepo.CreateQuestion(q); err != nil {
			t.Fatalf("create question: %v", err)
		}
	}
	return pkg
}

// questionsOf 按 sort_order、章节顺序取出整卷题目
func (e *testEnv) questionsOf(t *testing.T, packageID uint) []model.AssessmentQuestion {
	t.Helper()
	qs, err := e.pkgRepo.QuestionsByPackage(packageID)
	if err != nil {
		t.Fatalf("questions: %v", err)
	}
	return qs
}

// expireAttempt 把截止时间拨到过去，模拟超时
func (e *testEnv) expireAttempt(t *testing.T, attemptID uint) {
	t.Helper()
	if err := e.db.Model(&model.ExamAttempt{}).Where("id = ?", attemptID).
		Update("server_deadline", time.Now().Add(-time.Hour)).Error; err != nil {
		t.Fatalf("expire attempt: %v", err)
	}
}

func correctOptionID(t *testing.T, q *model.AssessmentQuestion) uint {
	t.Helper()
	for _, o := range q.Options {
		if o.IsCorrect {
			return o.ID
		}
	}
	t.Fatalf("question %d has no correct option", q.ID)
	return 0
}

func correctOptionIDs(q *model.AssessmentQuestion) []uint {
	var ids []uint
	for _, o := range q.Options {
		if o.IsCorrect {
			ids = append(ids, o.ID)
		}
	}
	return ids
}
