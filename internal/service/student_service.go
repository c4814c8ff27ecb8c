package service

import (
	"context"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/cbhlc-api/internal/models"
	appErrors "github.com/noah-isme/cbhlc-api/pkg/errors"
)

type studentRepository interface {
	List(ctx context.Context, filter models.StudentFilter) ([]models.Student, int, error)
	FindByID(ctx context.Context, id string) (*models.Student, error)
	Create(ctx context.Context, student *models.Student) error
	Update(ctx context.Context, student *models.Student) error
	SoftDelete(ctx context.Context, id string) error
}

// StudentRequest holds the payload for creating and updating students.
// GuardianID is only honoured for staff; guardians always register their own.
type StudentRequest struct {
	GuardianID     string    `json:"guardian_id"`
	FirstName      string    `json:"first_name" validate:"required,max=100"`
	MiddleName     string    `json:"middle_name" validate:"max=100"`
	LastName       string    `json:"last_name" validate:"required,max=100"`
	Gender         string    `json:"gender" validate:"required,oneof=male female"`
	BirthDate      time.Time `json:"birth_date" validate:"required"`
	BirthPlace     string    `json:"birth_place" validate:"max=255"`
	Address        string    `json:"address" validate:"max=500"`
	GradeLevel     string    `json:"grade_level" validate:"required"`
	PreviousSchool string    `json:"previous_school" validate:"max=255"`
	MedicalNotes   string    `json:"medical_notes" validate:"max=2000"`
}

func (r StudentRequest) apply(s *models.Student) {
	s.FirstName = strings.TrimSpace(r.FirstName)
	s.MiddleName = strings.TrimSpace(r.MiddleName)
	s.LastName = strings.TrimSpace(r.LastName)
	s.Gender = r.Gender
	s.BirthDate = r.BirthDate
	s.BirthPlace = r.BirthPlace
	s.Address = r.Address
	s.GradeLevel = r.GradeLevel
	s.PreviousSchool = r.PreviousSchool
	s.MedicalNotes = r.MedicalNotes
}

// StudentService handles student records. Guardians only reach their own children.
type StudentService struct {
	repo      studentRepository
	guardians guardianFinder
	validator *validator.Validate
	logger    *zap.Logger
}

// NewStudentService constructs the student service.
func NewStudentService(repo studentRepository, guardians guardianFinder, validate *validator.Validate, logger *zap.Logger) *StudentService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StudentService{repo: repo, guardians: guardians, validator: validate, logger: logger}
}

// List returns students and pagination metadata.
func (s *StudentService) List(ctx context.Context, actor Actor, filter models.StudentFilter) ([]models.Student, *models.Pagination, error) {
	scope, err := guardianScope(ctx, s.guardians, actor)
	if err != nil {
		return nil, nil, err
	}
	if scope != "" {
		filter.GuardianID = scope
	}
	students, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list students")
	}
	return students, models.NewPagination(filter.Page, filter.PageSize, total), nil
}

// Get returns a student by id.
func (s *StudentService) Get(ctx context.Context, actor Actor, id string) (*models.Student, error) {
	scope, err := guardianScope(ctx, s.guardians, actor)
	if err != nil {
		return nil, err
	}
	student, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, notFound(err, "student")
	}
	if scope != "" && student.GuardianID != scope {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
	}
	return student, nil
}

// Create registers a student under a guardian.
func (s *StudentService) Create(ctx context.Context, actor Actor, req StudentRequest) (*models.Student, error) {
	if err := s.validate(req); err != nil {
		return nil, err
	}
	scope, err := guardianScope(ctx, s.guardians, actor)
	if err != nil {
		return nil, err
	}
	guardianID := scope
	if guardianID == "" {
		if req.GuardianID == "" {
			return nil, appErrors.Field("guardian_id", "Guardian is required")
		}
		if _, err := s.guardians.FindByID(ctx, req.GuardianID); err != nil {
			if isNoRows(err) {
				return nil, appErrors.Field("guardian_id", "Guardian not found")
			}
			return nil, notFound(err, "guardian")
		}
		guardianID = req.GuardianID
	}

	student := &models.Student{GuardianID: guardianID}
	req.apply(student)
	if err := s.repo.Create(ctx, student); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create student")
	}
	s.logger.Info("student registered", zap.String("student_id", student.ID), zap.String("guardian_id", guardianID))
	return student, nil
}

// Update modifies a student.
func (s *StudentService) Update(ctx context.Context, actor Actor, id string, req StudentRequest) (*models.Student, error) {
	if err := s.validate(req); err != nil {
		return nil, err
	}
	student, err := s.Get(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	req.apply(student)
	if err := s.repo.Update(ctx, student); err != nil {
		return nil, notFound(err, "student")
	}
	return student, nil
}

// Delete soft deletes a student.
func (s *StudentService) Delete(ctx context.Context, actor Actor, id string) error {
	if _, err := s.Get(ctx, actor, id); err != nil {
		return err
	}
	if err := s.repo.SoftDelete(ctx, id); err != nil {
		return notFound(err, "student")
	}
	return nil
}

func (s *StudentService) validate(req StudentRequest) error {
	if err := s.validator.Struct(req); err != nil {
		return appErrors.FromValidator(err)
	}
	if !models.ValidGradeLevel(req.GradeLevel) {
		return appErrors.Field("grade_level", "Unknown grade level")
	}
	return nil
}
