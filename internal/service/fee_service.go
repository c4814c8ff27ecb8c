package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/cbhlc-api/internal/models"
	"github.com/noah-isme/cbhlc-api/pkg/cache"
	appErrors "github.com/noah-isme/cbhlc-api/pkg/errors"
	"github.com/noah-isme/cbhlc-api/pkg/money"
)

type gradeLevelFeeRepository interface {
	List(ctx context.Context, filter models.GradeLevelFeeFilter) ([]models.GradeLevelFee, error)
	FindByID(ctx context.Context, id string) (*models.GradeLevelFee, error)
	FindActive(ctx context.Context, gradeLevel, periodID string) (*models.GradeLevelFee, error)
	Save(ctx context.Context, fee *models.GradeLevelFee) error
}

type currentSchoolYearFinder interface {
	FindCurrent(ctx context.Context) (*models.SchoolYear, error)
}

type schoolYearPeriodFinder interface {
	FindByID(ctx context.Context, id string) (*models.EnrollmentPeriodDetail, error)
	FindForSchoolYear(ctx context.Context, schoolYearID string) (*models.EnrollmentPeriodDetail, error)
}

// GradeLevelFeeRequest is the create and update payload for a fee schedule.
type GradeLevelFeeRequest struct {
	GradeLevel         string       `json:"grade_level" validate:"required"`
	EnrollmentPeriodID string       `json:"enrollment_period_id" validate:"required"`
	TuitionFee         money.Amount `json:"tuition_fee" validate:"gte=0"`
	MiscellaneousFee   money.Amount `json:"miscellaneous_fee" validate:"gte=0"`
	LaboratoryFee      money.Amount `json:"laboratory_fee" validate:"gte=0"`
	LibraryFee         money.Amount `json:"library_fee" validate:"gte=0"`
	SportsFee          money.Amount `json:"sports_fee" validate:"gte=0"`
	IsActive           *bool        `json:"is_active"`
}

// FeeService looks up and maintains grade level fee schedules.
type FeeService struct {
	repo        gradeLevelFeeRepository
	schoolYears currentSchoolYearFinder
	periods     schoolYearPeriodFinder
	cache       *CacheService
	audit       auditWriter
	validator   *validator.Validate
	logger      *zap.Logger
	cacheTTL    time.Duration
}

// FeeServiceParams groups constructor dependencies.
type FeeServiceParams struct {
	Repo        gradeLevelFeeRepository
	SchoolYears currentSchoolYearFinder
	Periods     schoolYearPeriodFinder
	Cache       *CacheService
	Audit       auditWriter
	Validator   *validator.Validate
	Logger      *zap.Logger
	CacheTTL    time.Duration
}

// NewFeeService constructs the service.
func NewFeeService(params FeeServiceParams) *FeeService {
	logger := params.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	validate := params.Validator
	if validate == nil {
		validate = validator.New()
	}
	return &FeeService{
		repo:        params.Repo,
		schoolYears: params.SchoolYears,
		periods:     params.Periods,
		cache:       params.Cache,
		audit:       params.Audit,
		validator:   validate,
		logger:      logger,
		cacheTTL:    params.CacheTTL,
	}
}

// FeesForGrade returns the active fee schedule for gradeLevel in periodID.
// An empty periodID resolves to the period of the current school year.
// A missing schedule yields nil without an error.
func (s *FeeService) FeesForGrade(ctx context.Context, gradeLevel, periodID string) (*models.GradeLevelFee, error) {
	if periodID == "" {
		resolved, err := s.currentPeriodID(ctx)
		if err != nil || resolved == "" {
			return nil, err
		}
		periodID = resolved
	}

	key := feeCacheKey(periodID, gradeLevel)
	var cached models.GradeLevelFee
	if s.cache.Get(ctx, key, &cached) {
		return &cached, nil
	}

	fee, err := s.repo.FindActive(ctx, gradeLevel, periodID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load grade level fee")
	}
	s.cache.Set(ctx, key, fee, s.cacheTTL)
	return fee, nil
}

func (s *FeeService) currentPeriodID(ctx context.Context) (string, error) {
	year, err := s.schoolYears.FindCurrent(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", nil
		}
		return "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load current school year")
	}
	period, err := s.periods.FindForSchoolYear(ctx, year.ID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", nil
		}
		return "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollment period")
	}
	return period.ID, nil
}

// List returns fee schedules matching filter.
func (s *FeeService) List(ctx context.Context, filter models.GradeLevelFeeFilter) ([]models.GradeLevelFeeView, error) {
	fees, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list grade level fees")
	}
	views := make([]models.GradeLevelFeeView, 0, len(fees))
	for _, fee := range fees {
		views = append(views, fee.View())
	}
	return views, nil
}

// Create stores a new fee schedule. An active schedule replaces the previous
// active one for the same grade and period.
func (s *FeeService) Create(ctx context.Context, actor Actor, req GradeLevelFeeRequest) (*models.GradeLevelFeeView, error) {
	fee := &models.GradeLevelFee{IsActive: true}
	return s.save(ctx, actor, req, fee, nil)
}

// Update changes an existing fee schedule.
func (s *FeeService) Update(ctx context.Context, actor Actor, id string, req GradeLevelFeeRequest) (*models.GradeLevelFeeView, error) {
	fee, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "grade level fee not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load grade level fee")
	}
	before := *fee
	return s.save(ctx, actor, req, fee, &before)
}

func (s *FeeService) save(ctx context.Context, actor Actor, req GradeLevelFeeRequest, fee *models.GradeLevelFee, before *models.GradeLevelFee) (*models.GradeLevelFeeView, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.FromValidator(err)
	}
	if !models.ValidGradeLevel(req.GradeLevel) {
		return nil, appErrors.Field("grade_level", "Unknown grade level")
	}
	if _, err := s.periods.FindByID(ctx, req.EnrollmentPeriodID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Field("enrollment_period_id", "Enrollment period not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollment period")
	}

	fee.GradeLevel = req.GradeLevel
	fee.EnrollmentPeriodID = req.EnrollmentPeriodID
	fee.TuitionFee = req.TuitionFee
	fee.MiscellaneousFee = req.MiscellaneousFee
	fee.LaboratoryFee = req.LaboratoryFee
	fee.LibraryFee = req.LibraryFee
	fee.SportsFee = req.SportsFee
	if req.IsActive != nil {
		fee.IsActive = *req.IsActive
	}

	if err := s.repo.Save(ctx, fee); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "grade level fee not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to save grade level fee")
	}
	s.cache.Invalidate(ctx, cache.Key("fees", fee.EnrollmentPeriodID, "*"))
	if before != nil && before.EnrollmentPeriodID != fee.EnrollmentPeriodID {
		s.cache.Invalidate(ctx, cache.Key("fees", before.EnrollmentPeriodID, "*"))
	}

	var old interface{}
	if before != nil {
		old = before
	}
	recordAudit(ctx, s.audit, s.logger, actor, models.AuditActionFeeUpsert, "grade_level_fee", fee.ID, old, fee)
	view := fee.View()
	return &view, nil
}

func feeCacheKey(periodID, gradeLevel string) string {
	return cache.Key("fees", periodID, gradeLevel)
}
