package database

import (
	"fmt"
	"log"

	"examhub_backend/internal/config"
	"examhub_backend/internal/model"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// dsn 拼接 MySQL 连接串。clientFoundRows 让 UPDATE 按命中行数而非变更行数计数：
// 答案幂等重放时载荷可能一字不差，0 变更也必须算命中，否则 upsert 会误走 INSERT
func dsn(cfg *config.DatabaseConfig) string {
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=%s&parseTime=%t&loc=Local&clientFoundRows=true",
		cfg.User,
		cfg.Password,
		cfg.Host,
		cfg.Port,
		cfg.DBName,
		cfg.Charset,
		cfg.ParseTime,
	)
}

func InitDB(cfg *config.DatabaseConfig) (*gorm.DB, error) {
	db, err := gorm.Open(mysql.Open(dsn(cfg)), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Info),
	})

	if err != nil {
		return nil, err
	}

	log.Println("Database connection established")

	if err := Migrate(db); err != nil {
		return nil, err
	}

	log.Println("Database migration completed")

	return db, nil
}

// Migrate 测试里对内存 SQLite 也跑同一份迁移
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&model.User{},
		&model.AssessmentPackage{},
		&model.AssessmentSection{},
		&model.AssessmentQuestion{},
		&model.QuestionOption{},
		&model.ExamAttempt{},
		&model.AttemptAnswer{},
		&model.ViolationEvent{},
		&model.LeaderboardEntry{},
	)
}
