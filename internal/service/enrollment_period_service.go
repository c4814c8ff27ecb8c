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

type enrollmentPeriodRepository interface {
	List(ctx context.Context, filter models.EnrollmentPeriodFilter) ([]models.EnrollmentPeriodDetail, int, error)
	FindByID(ctx context.Context, id string) (*models.EnrollmentPeriodDetail, error)
	FindActive(ctx context.Context) (*models.EnrollmentPeriodDetail, error)
	Create(ctx context.Context, period *models.EnrollmentPeriod) error
	Update(ctx context.Context, period *models.EnrollmentPeriod) error
	Activate(ctx context.Context, id string) ([]string, error)
	Close(ctx context.Context, id string) error
	Delete(ctx context.Context, id string) error
}

type schoolYearFinder interface {
	FindByID(ctx context.Context, id string) (*models.SchoolYear, error)
}

// EnrollmentPeriodRequest is the create and update payload.
type EnrollmentPeriodRequest struct {
	SchoolYearID                string              `json:"school_year_id" validate:"required"`
	StartDate                   time.Time           `json:"start_date" validate:"required"`
	EndDate                     time.Time           `json:"end_date" validate:"required"`
	EarlyRegistrationDeadline   *time.Time          `json:"early_registration_deadline"`
	RegularRegistrationDeadline time.Time           `json:"regular_registration_deadline" validate:"required"`
	LateRegistrationDeadline    *time.Time          `json:"late_registration_deadline"`
	Status                      models.PeriodStatus `json:"status" validate:"omitempty,oneof=upcoming active closed"`
	AllowNewStudents            *bool               `json:"allow_new_students"`
	AllowReturningStudents      *bool               `json:"allow_returning_students"`
	Description                 string              `json:"description" validate:"max=1000"`
}

func (r EnrollmentPeriodRequest) apply(p *models.EnrollmentPeriod) {
	p.SchoolYearID = r.SchoolYearID
	p.StartDate = r.StartDate
	p.EndDate = r.EndDate
	p.EarlyRegistrationDeadline = r.EarlyRegistrationDeadline
	p.RegularRegistrationDeadline = r.RegularRegistrationDeadline
	p.LateRegistrationDeadline = r.LateRegistrationDeadline
	if r.Status != "" {
		p.Status = r.Status
	}
	if r.AllowNewStudents != nil {
		p.AllowNewStudents = *r.AllowNewStudents
	}
	if r.AllowReturningStudents != nil {
		p.AllowReturningStudents = *r.AllowReturningStudents
	}
	p.Description = r.Description
}

// EnrollmentPeriodService manages enrollment periods and their status.
type EnrollmentPeriodService struct {
	repo        enrollmentPeriodRepository
	schoolYears schoolYearFinder
	audit       auditWriter
	validator   *validator.Validate
	logger      *zap.Logger
	now         func() time.Time
}

// NewEnrollmentPeriodService constructs the service.
func NewEnrollmentPeriodService(repo enrollmentPeriodRepository, schoolYears schoolYearFinder, audit auditWriter, validate *validator.Validate, logger *zap.Logger) *EnrollmentPeriodService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &EnrollmentPeriodService{repo: repo, schoolYears: schoolYears, audit: audit, validator: validate, logger: logger, now: time.Now}
}

// List returns periods with their open state evaluated now.
func (s *EnrollmentPeriodService) List(ctx context.Context, filter models.EnrollmentPeriodFilter) ([]models.EnrollmentPeriodDetail, *models.Pagination, error) {
	if filter.Status != "" && !filter.Status.Valid() {
		return nil, nil, appErrors.Field("status", "Must be one of: upcoming active closed")
	}
	periods, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list enrollment periods")
	}
	now := s.now()
	for i := range periods {
		periods[i].Refresh(now)
	}
	return periods, models.NewPagination(filter.Page, filter.PageSize, total), nil
}

// Get returns one period.
func (s *EnrollmentPeriodService) Get(ctx context.Context, id string) (*models.EnrollmentPeriodDetail, error) {
	period, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	period.Refresh(s.now())
	return period, nil
}

// Active returns the single active period.
func (s *EnrollmentPeriodService) Active(ctx context.Context) (*models.EnrollmentPeriodDetail, error) {
	period, err := s.repo.FindActive(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "no active enrollment period")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load active enrollment period")
	}
	period.Refresh(s.now())
	return period, nil
}

// Create validates and stores a period. Creating it active closes the others.
func (s *EnrollmentPeriodService) Create(ctx context.Context, actor Actor, req EnrollmentPeriodRequest) (*models.EnrollmentPeriodDetail, error) {
	period := &models.EnrollmentPeriod{
		Status:                 models.PeriodStatusUpcoming,
		AllowNewStudents:       true,
		AllowReturningStudents: true,
	}
	if err := s.prepare(ctx, req, period); err != nil {
		return nil, err
	}
	if err := s.repo.Create(ctx, period); err != nil {
		return nil, s.writeError(err, "failed to create enrollment period")
	}
	recordAudit(ctx, s.audit, s.logger, actor, models.AuditActionPeriodCreate, "enrollment_period", period.ID, nil, period)
	return s.Get(ctx, period.ID)
}

// Update replaces the mutable fields of a period.
func (s *EnrollmentPeriodService) Update(ctx context.Context, actor Actor, id string, req EnrollmentPeriodRequest) (*models.EnrollmentPeriodDetail, error) {
	existing, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	before := existing.EnrollmentPeriod
	period := existing.EnrollmentPeriod
	if err := s.prepare(ctx, req, &period); err != nil {
		return nil, err
	}
	if err := s.repo.Update(ctx, &period); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "enrollment period not found")
		}
		return nil, s.writeError(err, "failed to update enrollment period")
	}
	recordAudit(ctx, s.audit, s.logger, actor, models.AuditActionPeriodUpdate, "enrollment_period", id, before, period)
	return s.Get(ctx, id)
}

// Activate makes id the only active period. Activating an active period is a no-op.
func (s *EnrollmentPeriodService) Activate(ctx context.Context, actor Actor, id string) (*models.EnrollmentPeriodDetail, error) {
	period, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if period.Status == models.PeriodStatusActive {
		period.Refresh(s.now())
		return period, nil
	}
	closed, err := s.repo.Activate(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "enrollment period not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to activate enrollment period")
	}
	recordAudit(ctx, s.audit, s.logger, actor, models.AuditActionPeriodActivate, "enrollment_period", id,
		map[string]interface{}{"status": period.Status},
		map[string]interface{}{"status": models.PeriodStatusActive, "closed_periods": closed})
	s.logger.Info("enrollment period activated", zap.String("period_id", id), zap.Strings("closed", closed))
	return s.Get(ctx, id)
}

// Close marks a period closed. Closing a closed period is a no-op.
func (s *EnrollmentPeriodService) Close(ctx context.Context, actor Actor, id string) (*models.EnrollmentPeriodDetail, error) {
	period, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if period.Status == models.PeriodStatusClosed {
		period.Refresh(s.now())
		return period, nil
	}
	if err := s.repo.Close(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "enrollment period not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to close enrollment period")
	}
	recordAudit(ctx, s.audit, s.logger, actor, models.AuditActionPeriodClose, "enrollment_period", id,
		map[string]interface{}{"status": period.Status},
		map[string]interface{}{"status": models.PeriodStatusClosed})
	return s.Get(ctx, id)
}

// Delete removes a period that is not active and not referenced.
func (s *EnrollmentPeriodService) Delete(ctx context.Context, actor Actor, id string) error {
	period, err := s.load(ctx, id)
	if err != nil {
		return err
	}
	if period.Status == models.PeriodStatusActive {
		return appErrors.Clone(appErrors.ErrPreconditionFailed, "an active enrollment period cannot be deleted")
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		switch {
		case errors.Is(err, sql.ErrNoRows):
			return appErrors.Clone(appErrors.ErrNotFound, "enrollment period not found")
		case repository.IsForeignKeyViolation(err):
			return appErrors.Clone(appErrors.ErrConflict, "enrollment period has fees or enrollments")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete enrollment period")
	}
	recordAudit(ctx, s.audit, s.logger, actor, models.AuditActionPeriodDelete, "enrollment_period", id, period.EnrollmentPeriod, nil)
	return nil
}

func (s *EnrollmentPeriodService) prepare(ctx context.Context, req EnrollmentPeriodRequest, period *models.EnrollmentPeriod) error {
	if err := s.validator.Struct(req); err != nil {
		return appErrors.FromValidator(err)
	}
	req.apply(period)
	if err := period.Validate(); err != nil {
		return err
	}
	if _, err := s.schoolYears.FindByID(ctx, period.SchoolYearID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Field("school_year_id", "School year not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load school year")
	}
	return nil
}

func (s *EnrollmentPeriodService) load(ctx context.Context, id string) (*models.EnrollmentPeriodDetail, error) {
	period, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "enrollment period not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollment period")
	}
	return period, nil
}

func (s *EnrollmentPeriodService) writeError(err error, message string) error {
	if repository.IsUniqueViolation(err, repository.UniqueActivePeriod) {
		return appErrors.Clone(appErrors.ErrConflict, "another enrollment period became active concurrently")
	}
	return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, message)
}
