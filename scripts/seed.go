// 演示数据导入脚本
//
// 创建一个管理员账号、一个学生账号（带考试额度）和一套已发布的演示试卷。
//
// 用法: go run scripts/seed.go
package main

import (
	"log"

	"examhub_backend/internal/config"
	"examhub_backend/internal/model"
	"examhub_backend/pkg/database"
	"examhub_backend/pkg/logger"

	"golang.org/x/crypto/bcrypt"
)

func main() {
	cfg, err := config.LoadConfig("configs")
	if err != nil {
		log.Fatalf("无法读取配置文件: %v", err)
	}

	logger.InitLogger(cfg)

	db, err := database.InitDB(&cfg.Database)
	if err != nil {
		log.Fatalf("数据库连接失败: %v", err)
	}

	hash := func(pw string) string {
		h, err := bcrypt.GenerateFromPassword([]byte(pw), bcrypt.DefaultCost)
		if err != nil {
			log.Fatalf("密码加密失败: %v", err)
		}
		return string(h)
	}

	admin := &model.User{
		Name:     "管理员",
		Email:    "admin@examhub.local",
		Password: hash("admin123456"),
		Role:     model.Admin,
	}
	student := &model.User{
		Name:        "演示学生",
		Email:       "student@examhub.local",
		Password:    hash("student123456"),
		Role:        model.Student,
		ExamCredits: 10,
	}
	for _, u := range []*model.User{admin, student} {
		var count int64
		db.Model(&model.User{}).Where("email = ?", u.Email).Count(&count)
		if count == 0 {
			if err := db.Create(u).Error; err != nil {
				log.Fatalf("创建用户失败: %v", err)
			}
		}
	}

	var pkgCount int64
	db.Model(&model.AssessmentPackage{}).Count(&pkgCount)
	if pkgCount > 0 {
		log.Println("已有试卷数据，跳过")
		return
	}

	pkg := &model.AssessmentPackage{
		Title:              "数学入门测评",
		Description:        "演示用限时测评，共两章节",
		DurationMinutes:    30,
		PassingScore:       60,
		MaxAttempts:        3,
		ProctoringEnabled:  true,
		ViolationThreshold: 3,
		IsPublished:        true,
	}
	if err := db.Create(pkg).Error; err != nil {
		log.Fatalf("创建试卷失败: %v", err)
	}

	sec1 := &model.AssessmentSection{PackageID: pkg.ID, Title: "选择题", Subject: "math", DurationMinutes: 20, Order: 1}
	sec2 := &model.AssessmentSection{PackageID: pkg.ID, Title: "计算题", Subject: "math", DurationMinutes: 10, Order: 2}
	for _, s := range []*model.AssessmentSection{sec1, sec2} {
		if err := db.Create(s).Error; err != nil {
			log.Fatalf("创建章节失败: %v", err)
		}
	}

	q1 := &model.AssessmentQuestion{
		SectionID:    sec1.ID,
		PackageID:    pkg.ID,
		QuestionType: model.SingleChoice,
		Content:      "1 + 1 = ?",
		Order:        1,
		Options: []model.QuestionOption{
			{Content: "1", Order: 1},
			{Content: "2", IsCorrect: true, Order: 2},
			{Content: "3", Order: 3},
		},
	}
	q2 := &model.AssessmentQuestion{
		SectionID:    sec1.ID,
		PackageID:    pkg.ID,
		QuestionType: model.MultipleChoice,
		Content:      "下列哪些是偶数？",
		Order:        2,
		Options: []model.QuestionOption{
			{Content: "2", IsCorrect: true, Order: 1},
			{Content: "3", Order: 2},
			{Content: "4", IsCorrect: true, Order: 3},
		},
	}
	answer := 3.14
	q3 := &model.AssessmentQuestion{
		SectionID:        sec2.ID,
		PackageID:        pkg.ID,
		QuestionType:     model.Numeric,
		Content:          "圆周率保留两位小数是多少？",
		Order:            1,
		NumericAnswer:    &answer,
		NumericTolerance: 0.005,
	}
	for _, q := range []*model.AssessmentQuestion{q1, q2, q3} {
		if err := db.Create(q).Error; err != nil {
			log.Fatalf("创建题目失败: %v", err)
		}
	}

	if err := db.Model(pkg).Update("total_questions", 3).Error; err != nil {
		log.Fatalf("更新题目数失败: %v", err)
	}

	log.Println("演示数据导入完成")
}
