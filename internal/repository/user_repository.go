package repository

import (
	"errors"
	"time"

	"examhub_backend/internal/model"

	"gorm.io/gorm"
)

type UserRepository struct {
	DB *gorm.DB
}

func NewUserRepository(db *gorm.DB) *UserRepository {
	return &UserRepository{DB: db}
}

func (r *UserRepository) Create(user *model.User) error {
	return r.DB.Create(user).Error
}

func (r *UserRepository) FindByID(id uint) (*model.User, error) {
	var u model.User
	if err := r.DB.First(&u, id).Error; err != nil {
		return nil, err
	}
	return &u, nil
}

func (r *UserRepository) FindByEmail(email string) (*model.User, error) {
	var u model.User
	err := r.DB.Where("email = ?", email).First(&u).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (r *UserRepository) UpdateLastLogin(id uint) error {
	return r.DB.Model(&model.User{}).Where("id = ?", id).
		Update("last_login", time.Now()).Error
}

func (r *UserRepository) GetCredits(id uint) (int, error) {
	var u model.User
	if err := r.DB.Select("exam_credits").First(&u, id).Error; err != nil {
		return 0, err
	}
	return u.ExamCredits, nil
}

// ConsumeCredit 条件扣减，余额不足时 0 行生效
func (r *UserRepository) ConsumeCredit(id uint) (bool, error) {
	res := r.DB.Model(&model.User{}).
		Where("id = ? AND exam_credits > 0", id).
		Update("exam_credits", gorm.Expr("exam_credits - 1"))
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *UserRepository) AddCredits(id uint, n int) error {
	return r.DB.Model(&model.User{}).Where("id = ?", id).
		Update("exam_credits", gorm.Expr("exam_credits + ?", n)).Error
}
