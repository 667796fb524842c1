package repository

import (
	"errors"

	"examhub_backend/internal/model"

	"gorm.io/gorm"
)

type PackageRepository struct {
	DB *gorm.DB
}

func NewPackageRepository(db *gorm.DB) *PackageRepository {
	return &PackageRepository{DB: db}
}

func (r *PackageRepository) Create(pkg *model.AssessmentPackage) error {
	return r.DB.Create(pkg).Error
}

func (r *PackageRepository) Update(pkg *model.AssessmentPackage) error {
	return r.DB.Save(pkg).Error
}

func (r *PackageRepository) FindByID(id uint) (*model.AssessmentPackage, error) {
	var p model.AssessmentPackage
	err := r.DB.Preload("Sections", func(db *gorm.DB) *gorm.DB {
		return db.Order("sort_order ASC")
	}).First(&p, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// FindByIDWithQuestions 整棵题目树（含答案字段），判分和管理端用
func (r *PackageRepository) FindByIDWithQuestions(id uint) (*model.AssessmentPackage, error) {
	var p model.AssessmentPackage
	err := r.DB.
		Preload("Sections", func(db *gorm.DB) *gorm.DB {
			return db.Order("sort_order ASC")
		}).
		Preload("Sections.Questions", func(db *gorm.DB) *gorm.DB {
			return db.Order("sort_order ASC")
		}).
		Preload("Sections.Questions.Options", func(db *gorm.DB) *gorm.DB {
			return db.Order("sort_order ASC")
		}).
		First(&p, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *PackageRepository) ListPublished(page, limit int) ([]model.AssessmentPackage, int64, error) {
	var pkgs []model.AssessmentPackage
	var total int64

	q := r.DB.Model(&model.AssessmentPackage{}).Where("is_published = ?", true)
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	err := q.Order("id DESC").Offset((page - 1) * limit).Limit(limit).Find(&pkgs).Error
	return pkgs, total, err
}

func (r *PackageRepository) ListAll(page, limit int) ([]model.AssessmentPackage, int64, error) {
	var pkgs []model.AssessmentPackage
	var total int64

	if err := r.DB.Model(&model.AssessmentPackage{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}
	err := r.DB.Order("id DESC").Offset((page - 1) * limit).Limit(limit).Find(&pkgs).Error
	return pkgs, total, err
}

func (r *PackageRepository) Delete(id uint) error {
	return r.DB.Delete(&model.AssessmentPackage{}, id).Error
}

func (r *PackageRepository) SetPublished(id uint, published bool) error {
	return r.DB.Model(&model.AssessmentPackage{}).Where("id = ?", id).
		Update("is_published", published).Error
}

func (r *PackageRepository) UpdateTotalQuestions(id uint) error {
	return r.DB.Model(&model.AssessmentPackage{}).Where("id = ?", id).
		Update("total_questions", r.DB.Model(&model.AssessmentQuestion{}).
			Select("COUNT(*)").Where("package_id = ?", id)).Error
}

func (r *PackageRepository) CreateSection(s *model.AssessmentSection) error {
	return r.DB.Create(s).Error
}

func (r *PackageRepository) FindSectionByID(id uint) (*model.AssessmentSection, error) {
	var s model.AssessmentSection
	err := r.DB.First(&s, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *PackageRepository) CreateQuestion(q *model.AssessmentQuestion) error {
	return r.DB.Create(q).Error
}

func (r *PackageRepository) FindQuestionByID(id uint) (*model.AssessmentQuestion, error) {
	var q model.AssessmentQuestion
	err := r.DB.Preload("Options").First(&q, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &q, nil
}

func (r *PackageRepository) UpdateQuestionImage(id uint, url string) error {
	return r.DB.Model(&model.AssessmentQuestion{}).Where("id = ?", id).
		Update("image_url", url).Error
}

// QuestionsByPackage 判分用，平铺带选项
func (r *PackageRepository) QuestionsByPackage(packageID uint) ([]model.AssessmentQuestion, error) {
	var qs []model.AssessmentQuestion
	err := r.DB.Preload("Options").
		Where("package_id = ?", packageID).
		Order("sort_order ASC").
		Find(&qs).Error
	return qs, err
}
