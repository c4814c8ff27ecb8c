package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/cbhlc-api/internal/models"
	"github.com/noah-isme/cbhlc-api/internal/repository"
	appErrors "github.com/noah-isme/cbhlc-api/pkg/errors"
	"github.com/noah-isme/cbhlc-api/pkg/export"
	log "github.com/noah-isme/cbhlc-api/pkg/logger"
	"github.com/noah-isme/cbhlc-api/pkg/money"
)

type enrollmentRepository interface {
	List(ctx context.Context, filter models.EnrollmentFilter) ([]models.EnrollmentDetail, int, error)
	ListAll(ctx context.Context, filter models.EnrollmentFilter) ([]models.EnrollmentDetail, error)
	FindByID(ctx context.Context, id string) (*models.EnrollmentDetail, error)
	ExistsForStudentYear(ctx context.Context, studentID, schoolYearID string) (bool, error)
	HasOpenForStudent(ctx context.Context, studentID string) (bool, error)
	Create(ctx context.Context, enrollment *models.Enrollment) error
	UpdateStatus(ctx context.Context, enrollment *models.Enrollment, from models.EnrollmentStatus) error
	Approve(ctx context.Context, enrollment *models.Enrollment, from models.EnrollmentStatus, invoice *models.Invoice) error
}

type studentFinder interface {
	FindByID(ctx context.Context, id string) (*models.Student, error)
}

type enrollmentSchoolYears interface {
	FindByID(ctx context.Context, id string) (*models.SchoolYear, error)
	FindCurrent(ctx context.Context) (*models.SchoolYear, error)
}

type feeLookup interface {
	FeesForGrade(ctx context.Context, gradeLevel, periodID string) (*models.GradeLevelFee, error)
}

type userNotifier interface {
	NotifyUsers(ctx context.Context, userIDs []string, msg NotificationMessage) error
	NotifyRoles(ctx context.Context, roles []models.UserRole, msg NotificationMessage) error
}

// SubmitEnrollmentRequest is a guardian's enrollment application.
type SubmitEnrollmentRequest struct {
	StudentID          string                `json:"student_id" validate:"required"`
	SchoolYearID       string                `json:"school_year_id"`
	EnrollmentPeriodID string                `json:"enrollment_period_id"`
	GradeLevel         string                `json:"grade_level"`
	Type               models.EnrollmentType `json:"type" validate:"required,oneof=new continuing"`
	Quarter            models.Quarter        `json:"quarter" validate:"omitempty,oneof=Q1 Q2 Q3 Q4"`
	PaymentPlan        models.PaymentPlan    `json:"payment_plan" validate:"required,oneof=annual semestral quarterly monthly"`
	Remarks            string                `json:"remarks" validate:"max=1000"`
}

// ApproveEnrollmentRequest carries the registrar's decision details.
type ApproveEnrollmentRequest struct {
	Discount money.Amount `json:"discount" validate:"gte=0"`
	Remarks  string       `json:"remarks" validate:"max=1000"`
}

// RejectEnrollmentRequest requires a reason shown to the guardian.
type RejectEnrollmentRequest struct {
	Reason string `json:"reason" validate:"required,max=1000"`
}

// UpdateEnrollmentStatusRequest moves an enrollment along its lifecycle.
type UpdateEnrollmentStatusRequest struct {
	Status  models.EnrollmentStatus `json:"status" validate:"required"`
	Remarks string                  `json:"remarks" validate:"max=1000"`
}

// EnrollmentServiceConfig tunes billing details.
type EnrollmentServiceConfig struct {
	InvoiceDueDays int
}

// EnrollmentService handles enrollment applications and decisions.
type EnrollmentService struct {
	repo        enrollmentRepository
	students    studentFinder
	guardians   guardianFinder
	schoolYears enrollmentSchoolYears
	periods     schoolYearPeriodFinder
	fees        feeLookup
	notifier    userNotifier
	audit       auditWriter
	metrics     *MetricsService
	exporter    *export.CSVExporter
	pdf         *export.PDFExporter
	validator   *validator.Validate
	logger      *zap.Logger
	cfg         EnrollmentServiceConfig
	now         func() time.Time
}

// EnrollmentServiceParams groups constructor dependencies.
type EnrollmentServiceParams struct {
	Repo        enrollmentRepository
	Students    studentFinder
	Guardians   guardianFinder
	SchoolYears enrollmentSchoolYears
	Periods     schoolYearPeriodFinder
	Fees        feeLookup
	Notifier    userNotifier
	Audit       auditWriter
	Metrics     *MetricsService
	Validator   *validator.Validate
	Logger      *zap.Logger
	Config      EnrollmentServiceConfig
}

// NewEnrollmentService constructs the service.
func NewEnrollmentService(params EnrollmentServiceParams) *EnrollmentService {
	logger := params.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	validate := params.Validator
	if validate == nil {
		validate = validator.New()
	}
	cfg := params.Config
	if cfg.InvoiceDueDays <= 0 {
		cfg.InvoiceDueDays = 30
	}
	return &EnrollmentService{
		repo:        params.Repo,
		students:    params.Students,
		guardians:   params.Guardians,
		schoolYears: params.SchoolYears,
		periods:     params.Periods,
		fees:        params.Fees,
		notifier:    params.Notifier,
		audit:       params.Audit,
		metrics:     params.Metrics,
		exporter:    export.NewCSVExporter(),
		pdf:         export.NewPDFExporter(),
		validator:   validate,
		logger:      logger,
		cfg:         cfg,
		now:         time.Now,
	}
}

// Submit validates an application against the submission rules and stores it
// as pending with fees copied from the grade level schedule.
func (s *EnrollmentService) Submit(ctx context.Context, actor Actor, req SubmitEnrollmentRequest) (*models.EnrollmentDetail, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.FromValidator(err)
	}

	scope, err := guardianScope(ctx, s.guardians, actor)
	if err != nil {
		return nil, err
	}
	student, err := s.students.FindByID(ctx, req.StudentID)
	if err != nil {
		return nil, notFound(err, "student")
	}
	if scope != "" && student.GuardianID != scope {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "student does not belong to this guardian")
	}

	year, err := s.resolveSchoolYear(ctx, req.SchoolYearID)
	if err != nil {
		return nil, err
	}

	exists, err := s.repo.ExistsForStudentYear(ctx, student.ID, year.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check existing enrollment")
	}
	if exists {
		return nil, conflictField("school_year_id", "Student is already enrolled for this school year")
	}
	open, err := s.repo.HasOpenForStudent(ctx, student.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check open enrollment")
	}
	if open {
		return nil, conflictField("student_id", "Student has an enrollment that is still being processed")
	}

	period, err := s.resolvePeriod(ctx, req.EnrollmentPeriodID, year.ID)
	if err != nil {
		return nil, err
	}
	if !period.EnrollmentPeriod.IsOpen(s.now()) {
		return nil, appErrors.Field("enrollment_period_id", "Enrollment period is not open for registration")
	}
	if !period.AdmitsType(req.Type) {
		return nil, appErrors.Field("type", fmt.Sprintf("Enrollment period does not accept %s students", req.Type))
	}

	gradeLevel := req.GradeLevel
	if gradeLevel == "" {
		gradeLevel = student.GradeLevel
	}
	fee, err := s.fees.FeesForGrade(ctx, gradeLevel, period.ID)
	if err != nil {
		return nil, err
	}
	if fee == nil {
		return nil, appErrors.Field("grade_level", "No fee schedule is set for this grade level")
	}

	quarter := req.Quarter
	if quarter == "" {
		quarter = models.QuarterFirst
	}
	periodID := period.ID
	enrollment := &models.Enrollment{
		StudentID:          student.ID,
		GuardianID:         student.GuardianID,
		SchoolYearID:       year.ID,
		EnrollmentPeriodID: &periodID,
		Quarter:            quarter,
		GradeLevel:         gradeLevel,
		Status:             models.EnrollmentStatusPending,
		Type:               req.Type,
		PaymentPlan:        req.PaymentPlan,
		Remarks:            req.Remarks,
		SubmittedAt:        s.now().UTC(),
	}
	enrollment.ApplyFees(fee)

	if err := s.repo.Create(ctx, enrollment); err != nil {
		if repository.IsUniqueViolation(err, repository.UniqueStudentYear) {
			return nil, conflictField("school_year_id", "Student is already enrolled for this school year")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create enrollment")
	}

	s.metrics.ObserveEnrollment(string(enrollment.Status))
	recordAudit(ctx, s.audit, s.logger, actor, models.AuditActionEnrollmentSubmit, "enrollment", enrollment.ID, nil, enrollment)
	s.notifyRoles(ctx, []models.UserRole{models.RoleRegistrar, models.RoleAdmin}, NotificationMessage{
		Type:    models.NotificationEnrollmentSubmitted,
		Title:   "New enrollment application",
		Message: fmt.Sprintf("%s applied for %s (%s).", student.FullName(), gradeLevel, year.Name),
		Data:    map[string]string{"enrollment_id": enrollment.ID, "student_id": student.ID},
	})

	return &models.EnrollmentDetail{Enrollment: *enrollment, StudentName: student.FullName(), SchoolYearName: year.Name}, nil
}

// List returns enrollments. Guardians only see their own.
func (s *EnrollmentService) List(ctx context.Context, actor Actor, filter models.EnrollmentFilter) ([]models.EnrollmentDetail, *models.Pagination, error) {
	scope, err := guardianScope(ctx, s.guardians, actor)
	if err != nil {
		return nil, nil, err
	}
	if scope != "" {
		filter.GuardianID = scope
	}
	if filter.Status != "" && !filter.Status.Valid() {
		return nil, nil, appErrors.Field("status", "Unknown enrollment status")
	}
	items, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list enrollments")
	}
	return items, models.NewPagination(filter.Page, filter.PageSize, total), nil
}

// Get returns one enrollment visible to actor.
func (s *EnrollmentService) Get(ctx context.Context, actor Actor, id string) (*models.EnrollmentDetail, error) {
	scope, err := guardianScope(ctx, s.guardians, actor)
	if err != nil {
		return nil, err
	}
	enrollment, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, notFound(err, "enrollment")
	}
	if scope != "" && enrollment.GuardianID != scope {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "enrollment not found")
	}
	return enrollment, nil
}

// Approve accepts a pending application, applies the discount and issues the invoice.
func (s *EnrollmentService) Approve(ctx context.Context, actor Actor, id string, req ApproveEnrollmentRequest) (*models.EnrollmentDetail, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.FromValidator(err)
	}
	detail, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, notFound(err, "enrollment")
	}
	enrollment := detail.Enrollment
	before := enrollment
	if !enrollment.Status.CanTransitionTo(models.EnrollmentStatusApproved) {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, fmt.Sprintf("cannot approve an enrollment that is %s", enrollment.Status))
	}
	if req.Discount > enrollment.TotalAmount() {
		return nil, appErrors.Field("discount", "Discount cannot exceed the total amount")
	}

	now := s.now().UTC()
	enrollment.Discount = req.Discount
	enrollment.Status = models.EnrollmentStatusApproved
	enrollment.ApprovedBy = actor.userIDPtr()
	enrollment.ApprovedAt = &now
	if req.Remarks != "" {
		enrollment.Remarks = req.Remarks
	}
	enrollment.Recalculate()

	invoice := &models.Invoice{
		EnrollmentID:  enrollment.ID,
		InvoiceNumber: billingNumber("INV", now),
		Subtotal:      enrollment.Total,
		Discount:      enrollment.Discount,
		Total:         enrollment.Net,
		AmountPaid:    enrollment.AmountPaid,
		Status:        models.InvoiceStatusFor(enrollment.PaymentStatus),
		IssuedAt:      now,
		DueDate:       now.AddDate(0, 0, s.cfg.InvoiceDueDays),
		Items:         models.InvoiceItemsFor(&enrollment),
	}
	if err := s.repo.Approve(ctx, &enrollment, before.Status, invoice); err != nil {
		return nil, transitionFailed(err)
	}

	s.metrics.ObserveEnrollment(string(enrollment.Status))
	recordAudit(ctx, s.audit, s.logger, actor, models.AuditActionEnrollmentApprove, "enrollment", id, before, map[string]interface{}{
		"status":         enrollment.Status,
		"discount":       enrollment.Discount,
		"net_amount":     enrollment.Net,
		"invoice_number": invoice.InvoiceNumber,
	})
	s.notifyGuardian(ctx, enrollment.GuardianID, NotificationMessage{
		Type:    models.NotificationEnrollmentApproved,
		Title:   "Enrollment approved",
		Message: fmt.Sprintf("The enrollment of %s was approved. Invoice %s is ready; amount due %s.", detail.StudentName, invoice.InvoiceNumber, enrollment.BalanceDue),
		Data:    map[string]string{"enrollment_id": id, "invoice_id": invoice.ID},
	})

	detail.Enrollment = enrollment
	return detail, nil
}

// Reject declines an application with a reason.
func (s *EnrollmentService) Reject(ctx context.Context, actor Actor, id string, req RejectEnrollmentRequest) (*models.EnrollmentDetail, error) {
	req.Reason = strings.TrimSpace(req.Reason)
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.FromValidator(err)
	}
	detail, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, notFound(err, "enrollment")
	}
	enrollment := detail.Enrollment
	if !enrollment.Status.CanTransitionTo(models.EnrollmentStatusRejected) {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, fmt.Sprintf("cannot reject an enrollment that is %s", enrollment.Status))
	}
	from := enrollment.Status
	enrollment.Status = models.EnrollmentStatusRejected
	enrollment.RejectionReason = &req.Reason
	if err := s.repo.UpdateStatus(ctx, &enrollment, from); err != nil {
		return nil, transitionFailed(err)
	}

	s.metrics.ObserveEnrollment(string(enrollment.Status))
	recordAudit(ctx, s.audit, s.logger, actor, models.AuditActionEnrollmentReject, "enrollment", id,
		map[string]interface{}{"status": from},
		map[string]interface{}{"status": enrollment.Status, "reason": req.Reason})
	s.notifyGuardian(ctx, enrollment.GuardianID, NotificationMessage{
		Type:    models.NotificationEnrollmentRejected,
		Title:   "Enrollment not approved",
		Message: fmt.Sprintf("The enrollment of %s was not approved: %s", detail.StudentName, req.Reason),
		Data:    map[string]string{"enrollment_id": id},
	})

	detail.Enrollment = enrollment
	return detail, nil
}

// UpdateStatus applies a manual lifecycle transition. Approval and rejection
// go through Approve and Reject so their side effects always happen.
func (s *EnrollmentService) UpdateStatus(ctx context.Context, actor Actor, id string, req UpdateEnrollmentStatusRequest) (*models.EnrollmentDetail, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.FromValidator(err)
	}
	if !req.Status.Valid() {
		return nil, appErrors.Field("status", "Unknown enrollment status")
	}
	switch req.Status {
	case models.EnrollmentStatusApproved:
		return s.Approve(ctx, actor, id, ApproveEnrollmentRequest{Remarks: req.Remarks})
	case models.EnrollmentStatusRejected:
		return s.Reject(ctx, actor, id, RejectEnrollmentRequest{Reason: req.Remarks})
	}

	detail, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, notFound(err, "enrollment")
	}
	enrollment := detail.Enrollment
	from := enrollment.Status
	if !from.CanTransitionTo(req.Status) {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, fmt.Sprintf("cannot move enrollment from %s to %s", from, req.Status))
	}
	if (req.Status == models.EnrollmentStatusPaid || req.Status == models.EnrollmentStatusCompleted) && !enrollment.IsFullyPaid() {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "enrollment still has an outstanding balance")
	}
	enrollment.Status = req.Status
	if req.Remarks != "" {
		enrollment.Remarks = req.Remarks
	}
	if err := s.repo.UpdateStatus(ctx, &enrollment, from); err != nil {
		return nil, transitionFailed(err)
	}

	s.metrics.ObserveEnrollment(string(enrollment.Status))
	recordAudit(ctx, s.audit, s.logger, actor, models.AuditActionEnrollmentStatus, "enrollment", id,
		map[string]interface{}{"status": from},
		map[string]interface{}{"status": enrollment.Status})
	detail.Enrollment = enrollment
	return detail, nil
}

func transitionFailed(err error) error {
	if errors.Is(err, repository.ErrStaleWrite) {
		return appErrors.Clone(appErrors.ErrConflict, "enrollment changed, reload and try again")
	}
	return notFound(err, "enrollment")
}

// ExportCSV renders the enrollments matching filter as CSV.
func (s *EnrollmentService) ExportCSV(ctx context.Context, filter models.EnrollmentFilter) ([]byte, error) {
	data, err := s.exportDataset(ctx, filter)
	if err != nil {
		return nil, err
	}
	out, err := s.exporter.Render(data)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render enrollment export")
	}
	return out, nil
}

// ExportPDF renders the same roster as a printable table.
func (s *EnrollmentService) ExportPDF(ctx context.Context, filter models.EnrollmentFilter) ([]byte, error) {
	data, err := s.exportDataset(ctx, filter)
	if err != nil {
		return nil, err
	}
	out, err := s.pdf.RenderTable(data, "Enrollment Roster")
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render enrollment export")
	}
	return out, nil
}

func (s *EnrollmentService) exportDataset(ctx context.Context, filter models.EnrollmentFilter) (export.Dataset, error) {
	items, err := s.repo.ListAll(ctx, filter)
	if err != nil {
		return export.Dataset{}, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to export enrollments")
	}
	data := export.Dataset{Headers: []string{
		"Enrollment ID", "Student", "Guardian", "School Year", "Grade Level", "Type", "Status",
		"Payment Plan", "Total", "Discount", "Net", "Paid", "Balance", "Payment Status", "Submitted At",
	}}
	for _, e := range items {
		data.Append(
			e.ID, e.StudentName, e.GuardianName, e.SchoolYearName, e.GradeLevel, string(e.Type), string(e.Status),
			string(e.PaymentPlan), e.Total.String(), e.Discount.String(), e.Net.String(), e.AmountPaid.String(),
			e.BalanceDue.String(), string(e.PaymentStatus), e.SubmittedAt.Format(time.RFC3339),
		)
	}
	return data, nil
}

func (s *EnrollmentService) resolveSchoolYear(ctx context.Context, id string) (*models.SchoolYear, error) {
	if id == "" {
		year, err := s.schoolYears.FindCurrent(ctx)
		if err != nil {
			if isNoRows(err) {
				return nil, appErrors.Field("school_year_id", "No current school year is set")
			}
			return nil, notFound(err, "school year")
		}
		return year, nil
	}
	year, err := s.schoolYears.FindByID(ctx, id)
	if err != nil {
		if isNoRows(err) {
			return nil, appErrors.Field("school_year_id", "School year not found")
		}
		return nil, notFound(err, "school year")
	}
	return year, nil
}

func (s *EnrollmentService) resolvePeriod(ctx context.Context, id, schoolYearID string) (*models.EnrollmentPeriodDetail, error) {
	var (
		period *models.EnrollmentPeriodDetail
		err    error
	)
	if id == "" {
		period, err = s.periods.FindForSchoolYear(ctx, schoolYearID)
	} else {
		period, err = s.periods.FindByID(ctx, id)
	}
	if err != nil {
		if isNoRows(err) {
			return nil, appErrors.Field("enrollment_period_id", "No enrollment period found for this school year")
		}
		return nil, notFound(err, "enrollment period")
	}
	if period.SchoolYearID != schoolYearID {
		return nil, appErrors.Field("enrollment_period_id", "Enrollment period belongs to a different school year")
	}
	return period, nil
}

func (s *EnrollmentService) notifyGuardian(ctx context.Context, guardianID string, msg NotificationMessage) {
	if s.notifier == nil {
		return
	}
	userID, err := guardianUserID(ctx, s.guardians, guardianID)
	if err != nil {
		s.logger.Warn("failed to resolve guardian for notification", zap.String("guardian_id", guardianID), zap.Error(err))
		return
	}
	if err := s.notifier.NotifyUsers(ctx, []string{userID}, msg); err != nil {
		log.FromContext(ctx, s.logger).Warn("failed to notify guardian", zap.String("type", string(msg.Type)), zap.Error(err))
	}
}

func (s *EnrollmentService) notifyRoles(ctx context.Context, roles []models.UserRole, msg NotificationMessage) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.NotifyRoles(ctx, roles, msg); err != nil {
		log.FromContext(ctx, s.logger).Warn("failed to notify staff", zap.String("type", string(msg.Type)), zap.Error(err))
	}
}

// billingNumber builds PREFIX-YYYYMMDD-XXXXXX numbers for invoices and receipts.
func billingNumber(prefix string, now time.Time) string {
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:6])
	return fmt.Sprintf("%s-%s-%s", prefix, now.Format("20060102"), suffix)
}
