package repository

import (
	"errors"
	"strings"
	"time"

	"examhub_backend/internal/model"

	"gorm.io/gorm"
)

type AttemptRepository struct {
	DB *gorm.DB
}

func NewAttemptRepository(db *gorm.DB) *AttemptRepository {
	return &AttemptRepository{DB: db}
}

func (r *AttemptRepository) Create(attempt *model.ExamAttempt) error {
	return r.DB.Create(attempt).Error
}

func (r *AttemptRepository) FindByID(id uint) (*model.ExamAttempt, error) {
	var a model.ExamAttempt
	err := r.DB.First(&a, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// FindInProgress 同一用户同一试卷最多一个进行中的 attempt
func (r *AttemptRepository) FindInProgress(userID, packageID uint) (*model.ExamAttempt, error) {
	var a model.ExamAttempt
	err := r.DB.Where("user_id = ? AND package_id = ? AND status = ?",
		userID, packageID, model.AttemptInProgress).First(&a).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (r *AttemptRepository) CountByUserAndPackage(userID, packageID uint) (int64, error) {
	var count int64
	err := r.DB.Model(&model.ExamAttempt{}).
		Where("user_id = ? AND package_id = ?", userID, packageID).
		Count(&count).Error
	return count, err
}

func (r *AttemptRepository) MaxAttemptNumber(userID, packageID uint) (int, error) {
	var n *int
	err := r.DB.Model(&model.ExamAttempt{}).
		Where("user_id = ? AND package_id = ?", userID, packageID).
		Select("MAX(attempt_number)").Scan(&n).Error
	if err != nil {
		return 0, err
	}
	if n == nil {
		return 0, nil
	}
	return *n, nil
}

func (r *AttemptRepository) ListByUser(userID uint, page, limit int) ([]model.ExamAttempt, int64, error) {
	var attempts []model.ExamAttempt
	var total int64

	q := r.DB.Model(&model.ExamAttempt{}).Where("user_id = ?", userID)
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	err := q.Order("id DESC").Offset((page - 1) * limit).Limit(limit).Find(&attempts).Error
	return attempts, total, err
}

// AttemptedPackage 发布后是否已有作答，有则试卷内容锁定
func (r *AttemptRepository) AttemptedPackage(packageID uint) (bool, error) {
	var count int64
	err := r.DB.Model(&model.ExamAttempt{}).
		Where("package_id = ?", packageID).Count(&count).Error
	return count > 0, err
}

// FinalizeIfInProgress 守卫式终态迁移，唯一赢家返回 true。
// 第二个及以后的调用方影响 0 行，读回已有结果即可。
func (r *AttemptRepository) FinalizeIfInProgress(attemptID uint, reason model.SubmitReason, finishedAt time.Time) (bool, error) {
	res := r.DB.Model(&model.ExamAttempt{}).
		Where("id = ? AND status = ?", attemptID, model.AttemptInProgress).
		Updates(map[string]interface{}{
			"status":        reason.TerminalStatus(),
			"submit_reason": reason,
			"finished_at":   finishedAt,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// IncrementViolation 仅 IN_PROGRESS 时生效，返回是否生效
func (r *AttemptRepository) IncrementViolation(attemptID uint) (bool, error) {
	res := r.DB.Model(&model.ExamAttempt{}).
		Where("id = ? AND status = ?", attemptID, model.AttemptInProgress).
		Update("violation_count", gorm.Expr("violation_count + 1"))
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *AttemptRepository) CreateViolationEvent(ev *model.ViolationEvent) error {
	return r.DB.Create(ev).Error
}

func (r *AttemptRepository) ListViolationEvents(attemptID uint) ([]model.ViolationEvent, error) {
	var evs []model.ViolationEvent
	err := r.DB.Where("attempt_id = ?", attemptID).Order("id ASC").Find(&evs).Error
	return evs, err
}

// UpdateResult 判分结果回写，幂等（整体重算后覆盖）
func (r *AttemptRepository) UpdateResult(attemptID uint, fields map[string]interface{}) error {
	return r.DB.Model(&model.ExamAttempt{}).
		Where("id = ?", attemptID).Updates(fields).Error
}

// UpsertAnswer 幂等答案写入，(attempt_id, question_id) 唯一。
// 时间增量用 SQL 累加，乱序重试不会丢。不用方言特定的 ON CONFLICT 语法，
// 先 UPDATE，0 行再 INSERT，撞唯一索引说明并发已插入，回头重试 UPDATE。
// RowsAffected 必须按命中行而非变更行计数（MySQL 连接串开 clientFoundRows，
// SQLite 本来就按命中算），重放一字不差的载荷才能在 UPDATE 步收敛。
func (r *AttemptRepository) UpsertAnswer(ans *model.AttemptAnswer, timeDelta int) error {
	for i := 0; i < 2; i++ {
		res := r.DB.Model(&model.AttemptAnswer{}).
			Where("attempt_id = ? AND question_id = ?", ans.AttemptID, ans.QuestionID).
			Updates(map[string]interface{}{
				"selected_option_id":  ans.SelectedOptionID,
				"selected_option_ids": ans.SelectedOptionIDs,
				"numeric_answer":      ans.NumericAnswer,
				"is_flagged":          ans.IsFlagged,
				"time_spent_seconds":  gorm.Expr("time_spent_seconds + ?", timeDelta),
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected > 0 {
			return nil
		}

		ans.TimeSpentSeconds = timeDelta
		err := r.DB.Create(ans).Error
		if err == nil {
			return nil
		}
		if !isDuplicateKey(err) {
			return err
		}
		// 并发插入抢先，重走 UPDATE
		ans.ID = 0
	}
	return errors.New("answer upsert did not converge")
}

func (r *AttemptRepository) FindAnswer(attemptID, questionID uint) (*model.AttemptAnswer, error) {
	var a model.AttemptAnswer
	err := r.DB.Where("attempt_id = ? AND question_id = ?", attemptID, questionID).First(&a).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (r *AttemptRepository) GetAnswers(attemptID uint) ([]model.AttemptAnswer, error) {
	var answers []model.AttemptAnswer
	err := r.DB.Where("attempt_id = ?", attemptID).Find(&answers).Error
	return answers, err
}

func (r *AttemptRepository) UpdateAnswerCorrectness(answerID uint, correct bool) error {
	return r.DB.Model(&model.AttemptAnswer{}).
		Where("id = ?", answerID).Update("is_correct", correct).Error
}

func isDuplicateKey(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "Duplicate entry") ||
		strings.Contains(msg, "UNIQUE constraint failed")
}
