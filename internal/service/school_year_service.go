package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/cbhlc-api/internal/models"
	"github.com/noah-isme/cbhlc-api/internal/repository"
	appErrors "github.com/noah-isme/cbhlc-api/pkg/errors"
)

type schoolYearRepository interface {
	List(ctx context.Context) ([]models.SchoolYear, error)
	FindByID(ctx context.Context, id string) (*models.SchoolYear, error)
	FindCurrent(ctx context.Context) (*models.SchoolYear, error)
	Create(ctx context.Context, year *models.SchoolYear) error
	SetCurrent(ctx context.Context, id string) error
}

// CreateSchoolYearRequest is the payload for a new school year.
type CreateSchoolYearRequest struct {
	Name      string    `json:"name" validate:"required,max=20"`
	StartDate time.Time `json:"start_date" validate:"required"`
	EndDate   time.Time `json:"end_date" validate:"required"`
	IsCurrent bool      `json:"is_current"`
}

// SchoolYearService manages school years.
type SchoolYearService struct {
	repo      schoolYearRepository
	validator *validator.Validate
	logger    *zap.Logger
}

// NewSchoolYearService constructs the service.
func NewSchoolYearService(repo schoolYearRepository, validate *validator.Validate, logger *zap.Logger) *SchoolYearService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &SchoolYearService{repo: repo, validator: validate, logger: logger}
}

// List returns every school year, newest first.
func (s *SchoolYearService) List(ctx context.Context) ([]models.SchoolYear, error) {
	years, err := s.repo.List(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list school years")
	}
	return years, nil
}

// Current returns the current school year.
func (s *SchoolYearService) Current(ctx context.Context) (*models.SchoolYear, error) {
	year, err := s.repo.FindCurrent(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "no current school year")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load current school year")
	}
	return year, nil
}

// Create validates and stores a school year.
func (s *SchoolYearService) Create(ctx context.Context, req CreateSchoolYearRequest) (*models.SchoolYear, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.FromValidator(err)
	}
	if !req.EndDate.After(req.StartDate) {
		return nil, appErrors.Field("end_date", models.MsgEndAfterStart)
	}
	year := &models.SchoolYear{Name: req.Name, StartDate: req.StartDate, EndDate: req.EndDate, IsCurrent: req.IsCurrent}
	if err := s.repo.Create(ctx, year); err != nil {
		if repository.IsUniqueViolation(err, "") {
			return nil, appErrors.Field("name", "School year already exists")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create school year")
	}
	s.logger.Info("school year created", zap.String("school_year_id", year.ID), zap.String("name", year.Name))
	return year, nil
}

// SetCurrent marks id as the current school year and clears the flag elsewhere.
func (s *SchoolYearService) SetCurrent(ctx context.Context, id string) (*models.SchoolYear, error) {
	if err := s.repo.SetCurrent(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "school year not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to set current school year")
	}
	year, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load school year")
	}
	return year, nil
}
