package service

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"time"

	"examhub_backend/internal/model"
	"examhub_backend/internal/repository"
	"examhub_backend/internal/util"
)

// SanitizedOption 学生端选项视图，不携带正误
type SanitizedOption struct {
	ID      uint   `json:"id"`
	Content string `json:"content"`
	Order   int    `json:"order"`
}

type SanitizedQuestion struct {
	ID           uint               `json:"id"`
	QuestionType model.QuestionType `json:"questionType"`
	Content      string             `json:"content"`
	ImageURL     string             `json:"imageUrl,omitempty"`
	Order        int                `json:"order"`
	Options      []SanitizedOption  `json:"options"`
}

type SanitizedSection struct {
	ID              uint                `json:"id"`
	Title           string              `json:"title"`
	Subject         string              `json:"subject"`
	DurationMinutes int                 `json:"durationMinutes"`
	Order           int                 `json:"order"`
	Questions       []SanitizedQuestion `json:"questions"`
}

// SanitizedPackage 去掉答案后的整卷视图，考中下发
type SanitizedPackage struct {
	ID                uint               `json:"id"`
	Title             string             `json:"title"`
	Description       string             `json:"description"`
	DurationMinutes   int                `json:"durationMinutes"`
	MaxAttempts       int                `json:"maxAttempts"`
	ProctoringEnabled bool               `json:"proctoringEnabled"`
	TotalQuestions    int                `json:"totalQuestions"`
	Sections          []SanitizedSection `json:"sections"`
}

// PackageService 试卷模板。引擎侧只读；管理端可编辑，
// 已发布且有人作答的试卷锁死。
type PackageService struct {
	PackageRepo *repository.PackageRepository
	AttemptRepo *repository.AttemptRepository
	Storage     *StorageService
}

func NewPackageService(
	packageRepo *repository.PackageRepository,
	attemptRepo *repository.AttemptRepository,
	storage *StorageService,
) *PackageService {
	return &PackageService{
		PackageRepo: packageRepo,
		AttemptRepo: attemptRepo,
		Storage:     storage,
	}
}

func (s *PackageService) ListPublished(page, limit int) ([]model.AssessmentPackage, int64, error) {
	return s.PackageRepo.ListPublished(page, limit)
}

func (s *PackageService) ListAll(page, limit int) ([]model.AssessmentPackage, int64, error) {
	return s.PackageRepo.ListAll(page, limit)
}

// StudentView 学生端整卷视图，剥掉 IsCorrect / NumericAnswer / Explanation
func (s *PackageService) StudentView(packageID uint) (*SanitizedPackage, error) {
	pkg, err := s.PackageRepo.FindByIDWithQuestions(packageID)
	if err != nil {
		return nil, err
	}
	if pkg == nil {
		return nil, util.ErrPackageNotFound
	}
	if !pkg.IsPublished {
		return nil, util.ErrPackageNotPublished
	}

	out := &SanitizedPackage{
		ID:                pkg.ID,
		Title:             pkg.Title,
		Description:       pkg.Description,
		DurationMinutes:   pkg.EffectiveDurationMinutes(),
		MaxAttempts:       pkg.MaxAttempts,
		ProctoringEnabled: pkg.ProctoringEnabled,
		TotalQuestions:    pkg.TotalQuestions,
	}
	for _, sec := range pkg.Sections {
		ss := SanitizedSection{
			ID:              sec.ID,
			Title:           sec.Title,
			Subject:         sec.Subject,
			DurationMinutes: sec.DurationMinutes,
			Order:           sec.Order,
		}
		for _, q := range sec.Questions {
			sq := SanitizedQuestion{
				ID:           q.ID,
				QuestionType: q.QuestionType,
				Content:      q.Content,
				ImageURL:     q.ImageURL,
				Order:        q.Order,
			}
			for _, o := range q.Options {
				sq.Options = append(sq.Options, SanitizedOption{
					ID:      o.ID,
					Content: o.Content,
					Order:   o.Order,
				})
			}
			ss.Questions = append(ss.Questions, sq)
		}
		out.Sections = append(out.Sections, ss)
	}
	return out, nil
}

func (s *PackageService) AdminView(packageID uint) (*model.AssessmentPackage, error) {
	pkg, err := s.PackageRepo.FindByIDWithQuestions(packageID)
	if err != nil {
		return nil, err
	}
	if pkg == nil {
		return nil, util.ErrPackageNotFound
	}
	return pkg, nil
}

func (s *PackageService) Create(pkg *model.AssessmentPackage) error {
	if pkg.Title == "" {
		return util.ValidationError("title is required")
	}
	pkg.IsPublished = false
	return s.PackageRepo.Create(pkg)
}

func (s *PackageService) Update(pkg *model.AssessmentPackage) error {
	if err := s.ensureEditable(pkg.ID); err != nil {
		return err
	}
	return s.PackageRepo.Update(pkg)
}

func (s *PackageService) Delete(packageID uint) error {
	if err := s.ensureEditable(packageID); err != nil {
		return err
	}
	return s.PackageRepo.Delete(packageID)
}

func (s *PackageService) SetPublished(packageID uint, published bool) error {
	pkg, err := s.PackageRepo.FindByID(packageID)
	if err != nil {
		return err
	}
	if pkg == nil {
		return util.ErrPackageNotFound
	}
	if !published {
		// 已有作答的试卷不能撤回发布
		attempted, err := s.AttemptRepo.AttemptedPackage(packageID)
		if err != nil {
			return err
		}
		if attempted {
			return util.ErrPackageLocked
		}
	}
	return s.PackageRepo.SetPublished(packageID, published)
}

func (s *PackageService) AddSection(sec *model.AssessmentSection) error {
	if err := s.ensureEditable(sec.PackageID); err != nil {
		return err
	}
	return s.PackageRepo.CreateSection(sec)
}

func (s *PackageService) AddQuestion(q *model.AssessmentQuestion) error {
	sec, err := s.PackageRepo.FindSectionByID(q.SectionID)
	if err != nil {
		return err
	}
	if sec == nil {
		return util.ValidationError("section %d not found", q.SectionID)
	}
	if err := s.ensureEditable(sec.PackageID); err != nil {
		return err
	}
	q.PackageID = sec.PackageID

	if err := validateQuestion(q); err != nil {
		return err
	}

	if err := s.PackageRepo.CreateQuestion(q); err != nil {
		return err
	}
	return s.PackageRepo.UpdateTotalQuestions(sec.PackageID)
}

// AttachImage 题目配图上传，走 StorageService（local 或 MinIO）
func (s *PackageService) AttachImage(ctx context.Context, questionID uint, filename string, reader io.Reader, size int64, contentType string) (string, error) {
	q, err := s.PackageRepo.FindQuestionByID(questionID)
	if err != nil {
		return "", err
	}
	if q == nil {
		return "", util.ValidationError("question %d not found", questionID)
	}
	if err := s.ensureEditable(q.PackageID); err != nil {
		return "", err
	}

	object := fmt.Sprintf("questions/%d/%d%s", questionID, time.Now().UnixNano(), filepath.Ext(filename))
	url, err := s.Storage.Upload(ctx, object, reader, size, contentType)
	if err != nil {
		return "", err
	}
	if err := s.PackageRepo.UpdateQuestionImage(questionID, url); err != nil {
		return "", err
	}
	return url, nil
}

func (s *PackageService) ensureEditable(packageID uint) error {
	pkg, err := s.PackageRepo.FindByID(packageID)
	if err != nil {
		return err
	}
	if pkg == nil {
		return util.ErrPackageNotFound
	}
	if pkg.IsPublished {
		attempted, err := s.AttemptRepo.AttemptedPackage(packageID)
		if err != nil {
			return err
		}
		if attempted {
			return util.ErrPackageLocked
		}
	}
	return nil
}

func validateQuestion(q *model.AssessmentQuestion) error {
	switch q.QuestionType {
	case model.SingleChoice, model.TrueFalse:
		correct := 0
		for _, o := range q.Options {
			if o.IsCorrect {
				correct++
			}
		}
		if correct != 1 {
			return util.ValidationError("question requires exactly one correct option")
		}
	case model.MultipleChoice:
		correct := 0
		for _, o := range q.Options {
			if o.IsCorrect {
				correct++
			}
		}
		if correct == 0 {
			return util.ValidationError("question requires at least one correct option")
		}
	case model.Numeric:
		if q.NumericAnswer == nil {
			return util.ValidationError("numeric question requires an answer value")
		}
		if q.NumericTolerance < 0 {
			return util.ValidationError("numeric tolerance must be >= 0")
		}
	default:
		return util.ValidationError("unknown question type %q", q.QuestionType)
	}
	return nil
}
