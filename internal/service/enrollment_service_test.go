package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/cbhlc-api/internal/models"
	"github.com/noah-isme/cbhlc-api/internal/repository"
	appErrors "github.com/noah-isme/cbhlc-api/pkg/errors"
	"github.com/noah-isme/cbhlc-api/pkg/money"
	"github.com/noah-isme/cbhlc-api/pkg/validation"
)

type mockEnrollmentRepo struct {
	enrollments map[string]models.EnrollmentDetail
	exists      bool
	open        bool
	createErr   error
	created     *models.Enrollment
	approved    *models.Invoice
	updated     []models.EnrollmentStatus
	from        []models.EnrollmentStatus
	writeErr    error
	lastFilter  models.EnrollmentFilter
}

func (m *mockEnrollmentRepo) List(ctx context.Context, filter models.EnrollmentFilter) ([]models.EnrollmentDetail, int, error) {
	m.lastFilter = filter
	var out []models.EnrollmentDetail
	for _, e := range m.enrollments {
		if filter.GuardianID != "" && e.GuardianID != filter.GuardianID {
			continue
		}
		out = append(out, e)
	}
	return out, len(out), nil
}

func (m *mockEnrollmentRepo) ListAll(ctx context.Context, filter models.EnrollmentFilter) ([]models.EnrollmentDetail, error) {
	items, _, err := m.List(ctx, filter)
	return items, err
}

func (m *mockEnrollmentRepo) FindByID(ctx context.Context, id string) (*models.EnrollmentDetail, error) {
	if e, ok := m.enrollments[id]; ok {
		return &e, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockEnrollmentRepo) ExistsForStudentYear(ctx context.Context, studentID, schoolYearID string) (bool, error) {
	for _, e := range m.enrollments {
		if e.StudentID == studentID && e.SchoolYearID == schoolYearID {
			return true, nil
		}
	}
	return m.exists, nil
}

func (m *mockEnrollmentRepo) HasOpenForStudent(ctx context.Context, studentID string) (bool, error) {
	for _, e := range m.enrollments {
		if e.StudentID == studentID && !e.Status.IsTerminal() {
			return true, nil
		}
	}
	return m.open, nil
}

func (m *mockEnrollmentRepo) Create(ctx context.Context, enrollment *models.Enrollment) error {
	if m.createErr != nil {
		return m.createErr
	}
	enrollment.ID = "enr-new"
	m.created = enrollment
	return nil
}

func (m *mockEnrollmentRepo) UpdateStatus(ctx context.Context, enrollment *models.Enrollment, from models.EnrollmentStatus) error {
	if m.writeErr != nil {
		return m.writeErr
	}
	m.from = append(m.from, from)
	m.updated = append(m.updated, enrollment.Status)
	return nil
}

func (m *mockEnrollmentRepo) Approve(ctx context.Context, enrollment *models.Enrollment, from models.EnrollmentStatus, invoice *models.Invoice) error {
	if m.writeErr != nil {
		return m.writeErr
	}
	m.from = append(m.from, from)
	invoice.ID = "inv-1"
	m.approved = invoice
	m.updated = append(m.updated, enrollment.Status)
	return nil
}

type stubStudents map[string]*models.Student

func (s stubStudents) FindByID(ctx context.Context, id string) (*models.Student, error) {
	if st, ok := s[id]; ok {
		return st, nil
	}
	return nil, sql.ErrNoRows
}

type stubGuardians map[string]*models.Guardian

func (s stubGuardians) FindByID(ctx context.Context, id string) (*models.Guardian, error) {
	if g, ok := s[id]; ok {
		return g, nil
	}
	return nil, sql.ErrNoRows
}

func (s stubGuardians) FindByUserID(ctx context.Context, userID string) (*models.Guardian, error) {
	for _, g := range s {
		if g.UserID == userID {
			return g, nil
		}
	}
	return nil, sql.ErrNoRows
}

type stubSchoolYears struct {
	current *models.SchoolYear
}

func (s stubSchoolYears) FindByID(ctx context.Context, id string) (*models.SchoolYear, error) {
	if s.current != nil && s.current.ID == id {
		return s.current, nil
	}
	return nil, sql.ErrNoRows
}

func (s stubSchoolYears) FindCurrent(ctx context.Context) (*models.SchoolYear, error) {
	if s.current == nil {
		return nil, sql.ErrNoRows
	}
	return s.current, nil
}

type stubPeriodFinder struct {
	period *models.EnrollmentPeriodDetail
}

func (s stubPeriodFinder) FindByID(ctx context.Context, id string) (*models.EnrollmentPeriodDetail, error) {
	if s.period != nil && s.period.ID == id {
		return s.period, nil
	}
	return nil, sql.ErrNoRows
}

func (s stubPeriodFinder) FindForSchoolYear(ctx context.Context, schoolYearID string) (*models.EnrollmentPeriodDetail, error) {
	if s.period != nil && s.period.SchoolYearID == schoolYearID {
		return s.period, nil
	}
	return nil, sql.ErrNoRows
}

type stubFees struct {
	fee *models.GradeLevelFee
}

func (s stubFees) FeesForGrade(ctx context.Context, gradeLevel, periodID string) (*models.GradeLevelFee, error) {
	if s.fee == nil || s.fee.GradeLevel != gradeLevel {
		return nil, nil
	}
	return s.fee, nil
}

type recordingNotifier struct {
	users []string
	roles []models.UserRole
	msgs  []NotificationMessage
	err   error
}

func (n *recordingNotifier) NotifyUsers(ctx context.Context, userIDs []string, msg NotificationMessage) error {
	n.users = append(n.users, userIDs...)
	n.msgs = append(n.msgs, msg)
	return n.err
}

func (n *recordingNotifier) NotifyRoles(ctx context.Context, roles []models.UserRole, msg NotificationMessage) error {
	n.roles = append(n.roles, roles...)
	n.msgs = append(n.msgs, msg)
	return n.err
}

var enrollmentNow = time.Date(2025, 6, 10, 9, 0, 0, 0, time.UTC)

type enrollmentFixture struct {
	svc      *EnrollmentService
	repo     *mockEnrollmentRepo
	period   *models.EnrollmentPeriodDetail
	fees     *stubFees
	notifier *recordingNotifier
	audit    *stubAudit
}

func newEnrollmentFixture(t *testing.T) *enrollmentFixture {
	t.Helper()
	early := time.Date(2025, 5, 15, 0, 0, 0, 0, time.UTC)
	period := &models.EnrollmentPeriodDetail{EnrollmentPeriod: models.EnrollmentPeriod{
		ID:                          "period-1",
		SchoolYearID:                "sy-2025",
		StartDate:                   time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC),
		EndDate:                     time.Date(2025, 7, 31, 0, 0, 0, 0, time.UTC),
		EarlyRegistrationDeadline:   &early,
		RegularRegistrationDeadline: time.Date(2025, 6, 30, 0, 0, 0, 0, time.UTC),
		Status:                      models.PeriodStatusActive,
		AllowNewStudents:            true,
		AllowReturningStudents:      true,
	}}
	fees := &stubFees{fee: &models.GradeLevelFee{
		ID:               "fee-g1",
		GradeLevel:       "Grade 1",
		TuitionFee:       money.MustParse("15000"),
		MiscellaneousFee: money.MustParse("500"),
		LaboratoryFee:    money.MustParse("250"),
		LibraryFee:       money.MustParse("100"),
		SportsFee:        money.MustParse("150"),
	}}
	repo := &mockEnrollmentRepo{enrollments: map[string]models.EnrollmentDetail{}}
	notifier := &recordingNotifier{}
	audit := &stubAudit{}
	svc := NewEnrollmentService(EnrollmentServiceParams{
		Repo: repo,
		Students: stubStudents{
			"stu-1": {ID: "stu-1", GuardianID: "g-1", FirstName: "Ana", LastName: "Reyes", GradeLevel: "Grade 1"},
			"stu-2": {ID: "stu-2", GuardianID: "g-2", FirstName: "Ben", LastName: "Cruz", GradeLevel: "Grade 1"},
		},
		Guardians: stubGuardians{
			"g-1": {ID: "g-1", UserID: "user-g1"},
			"g-2": {ID: "g-2", UserID: "user-g2"},
		},
		SchoolYears: stubSchoolYears{current: &models.SchoolYear{ID: "sy-2025", Name: "2025-2026", IsCurrent: true}},
		Periods:     stubPeriodFinder{period: period},
		Fees:        fees,
		Notifier:    notifier,
		Audit:       audit,
		Validator:   validation.New(),
	})
	svc.now = func() time.Time { return enrollmentNow }
	return &enrollmentFixture{svc: svc, repo: repo, period: period, fees: fees, notifier: notifier, audit: audit}
}

var guardianOne = Actor{UserID: "user-g1", Role: models.RoleGuardian}
var registrar = Actor{UserID: "user-reg", Role: models.RoleRegistrar}

func validSubmission() SubmitEnrollmentRequest {
	return SubmitEnrollmentRequest{StudentID: "stu-1", Type: models.EnrollmentTypeNew, PaymentPlan: models.PaymentPlanAnnual}
}

func TestSubmitEnrollmentCopiesFees(t *testing.T) {
	f := newEnrollmentFixture(t)

	detail, err := f.svc.Submit(context.Background(), guardianOne, validSubmission())
	require.NoError(t, err)

	require.NotNil(t, f.repo.created)
	e := f.repo.created
	assert.Equal(t, models.EnrollmentStatusPending, e.Status)
	assert.Equal(t, "g-1", e.GuardianID)
	assert.Equal(t, "sy-2025", e.SchoolYearID)
	assert.Equal(t, "period-1", *e.EnrollmentPeriodID)
	assert.Equal(t, models.QuarterFirst, e.Quarter)
	assert.Equal(t, money.MustParse("16000"), e.Total)
	assert.Equal(t, money.MustParse("16000"), e.BalanceDue)
	assert.Equal(t, models.PaymentStatusPending, e.PaymentStatus)
	assert.Equal(t, "Ana Reyes", detail.StudentName)
	assert.Equal(t, []string{models.AuditActionEnrollmentSubmit}, f.audit.actions())
	assert.Equal(t, []models.UserRole{models.RoleRegistrar, models.RoleAdmin}, f.notifier.roles)
}

func TestSubmitEnrollmentRejectsForeignStudent(t *testing.T) {
	f := newEnrollmentFixture(t)
	req := validSubmission()
	req.StudentID = "stu-2"

	_, err := f.svc.Submit(context.Background(), guardianOne, req)
	require.Error(t, err)
	assert.True(t, errors.Is(err, appErrors.ErrForbidden))
	assert.Nil(t, f.repo.created)
}

func TestSubmitEnrollmentRules(t *testing.T) {
	cases := []struct {
		name    string
		mutate  func(f *enrollmentFixture, req *SubmitEnrollmentRequest)
		field   string
		errCode *appErrors.Error
	}{
		{
			name:    "already enrolled for year",
			mutate:  func(f *enrollmentFixture, req *SubmitEnrollmentRequest) { f.repo.exists = true },
			field:   "school_year_id",
			errCode: appErrors.ErrConflict,
		},
		{
			name:    "open application exists",
			mutate:  func(f *enrollmentFixture, req *SubmitEnrollmentRequest) { f.repo.open = true },
			field:   "student_id",
			errCode: appErrors.ErrConflict,
		},
		{
			name: "period closed",
			mutate: func(f *enrollmentFixture, req *SubmitEnrollmentRequest) {
				f.period.Status = models.PeriodStatusClosed
			},
			field:   "enrollment_period_id",
			errCode: appErrors.ErrValidation,
		},
		{
			name: "past regular deadline",
			mutate: func(f *enrollmentFixture, req *SubmitEnrollmentRequest) {
				f.period.RegularRegistrationDeadline = time.Date(2025, 6, 9, 0, 0, 0, 0, time.UTC)
			},
			field:   "enrollment_period_id",
			errCode: appErrors.ErrValidation,
		},
		{
			name: "type not admitted",
			mutate: func(f *enrollmentFixture, req *SubmitEnrollmentRequest) {
				f.period.AllowNewStudents = false
			},
			field:   "type",
			errCode: appErrors.ErrValidation,
		},
		{
			name:    "no fee schedule",
			mutate:  func(f *enrollmentFixture, req *SubmitEnrollmentRequest) { req.GradeLevel = "Grade 6" },
			field:   "grade_level",
			errCode: appErrors.ErrValidation,
		},
		{
			name:    "unknown payment plan",
			mutate:  func(f *enrollmentFixture, req *SubmitEnrollmentRequest) { req.PaymentPlan = "weekly" },
			field:   "payment_plan",
			errCode: appErrors.ErrValidation,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newEnrollmentFixture(t)
			req := validSubmission()
			tc.mutate(f, &req)

			_, err := f.svc.Submit(context.Background(), guardianOne, req)
			require.Error(t, err)
			assert.True(t, errors.Is(err, tc.errCode), "got %v", err)
			assert.True(t, appErrors.FromError(err).HasField(tc.field), "expected field %s in %v", tc.field, err)
			assert.Nil(t, f.repo.created)
		})
	}
}

func TestSubmitEnrollmentOnDeadlineDay(t *testing.T) {
	f := newEnrollmentFixture(t)
	f.svc.now = func() time.Time { return time.Date(2025, 6, 30, 23, 30, 0, 0, time.UTC) }

	_, err := f.svc.Submit(context.Background(), guardianOne, validSubmission())
	require.NoError(t, err)
}

func TestSubmitEnrollmentUniqueViolationIsConflict(t *testing.T) {
	f := newEnrollmentFixture(t)
	f.repo.createErr = &pq.Error{Code: "23505", Constraint: repository.UniqueStudentYear}

	_, err := f.svc.Submit(context.Background(), guardianOne, validSubmission())
	require.Error(t, err)
	assert.True(t, errors.Is(err, appErrors.ErrConflict))
}

func TestSubmitEnrollmentSurvivesNotificationFailure(t *testing.T) {
	f := newEnrollmentFixture(t)
	f.notifier.err = errors.New("smtp down")
	f.audit.err = errors.New("audit down")

	detail, err := f.svc.Submit(context.Background(), guardianOne, validSubmission())
	require.NoError(t, err)
	assert.Equal(t, "enr-new", detail.ID)
	require.NotNil(t, f.repo.created)
}

func seedPending(f *enrollmentFixture) {
	e := models.Enrollment{
		ID:               "enr-1",
		StudentID:        "stu-1",
		GuardianID:       "g-1",
		SchoolYearID:     "sy-2025",
		Status:           models.EnrollmentStatusPending,
		TuitionFee:       money.MustParse("15000"),
		MiscellaneousFee: money.MustParse("1000"),
	}
	e.Recalculate()
	f.repo.enrollments["enr-1"] = models.EnrollmentDetail{Enrollment: e, StudentName: "Ana Reyes"}
}

func TestApproveEnrollmentIssuesInvoice(t *testing.T) {
	f := newEnrollmentFixture(t)
	seedPending(f)

	detail, err := f.svc.Approve(context.Background(), registrar, "enr-1", ApproveEnrollmentRequest{Discount: money.MustParse("1000")})
	require.NoError(t, err)

	assert.Equal(t, models.EnrollmentStatusApproved, detail.Status)
	assert.Equal(t, money.MustParse("15000"), detail.Net)
	assert.Equal(t, "user-reg", *detail.ApprovedBy)
	require.NotNil(t, f.repo.approved)
	inv := f.repo.approved
	assert.True(t, strings.HasPrefix(inv.InvoiceNumber, "INV-20250610-"), inv.InvoiceNumber)
	assert.Len(t, inv.InvoiceNumber, len("INV-20250610-")+6)
	assert.Equal(t, money.MustParse("15000"), inv.Total)
	assert.Equal(t, models.InvoiceStatusUnpaid, inv.Status)
	assert.Len(t, inv.Items, 2)
	assert.Equal(t, enrollmentNow.AddDate(0, 0, 30), inv.DueDate)
	assert.Equal(t, []string{"user-g1"}, f.notifier.users)
	assert.Equal(t, []string{models.AuditActionEnrollmentApprove}, f.audit.actions())
}

func TestApproveEnrollmentRejectsExcessDiscount(t *testing.T) {
	f := newEnrollmentFixture(t)
	seedPending(f)

	_, err := f.svc.Approve(context.Background(), registrar, "enr-1", ApproveEnrollmentRequest{Discount: money.MustParse("16000.01")})
	require.Error(t, err)
	assert.True(t, appErrors.FromError(err).HasField("discount"))
	assert.Nil(t, f.repo.approved)
}

func TestApproveEnrollmentNotPending(t *testing.T) {
	f := newEnrollmentFixture(t)
	seedPending(f)
	e := f.repo.enrollments["enr-1"]
	e.Status = models.EnrollmentStatusRejected
	f.repo.enrollments["enr-1"] = e

	_, err := f.svc.Approve(context.Background(), registrar, "enr-1", ApproveEnrollmentRequest{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, appErrors.ErrPreconditionFailed))
}

func TestRejectEnrollmentRequiresReason(t *testing.T) {
	f := newEnrollmentFixture(t)
	seedPending(f)

	_, err := f.svc.Reject(context.Background(), registrar, "enr-1", RejectEnrollmentRequest{Reason: "   "})
	require.Error(t, err)
	assert.True(t, appErrors.FromError(err).HasField("reason"))

	detail, err := f.svc.Reject(context.Background(), registrar, "enr-1", RejectEnrollmentRequest{Reason: "Incomplete documents"})
	require.NoError(t, err)
	assert.Equal(t, models.EnrollmentStatusRejected, detail.Status)
	assert.Equal(t, "Incomplete documents", *detail.RejectionReason)
	assert.Equal(t, []string{"user-g1"}, f.notifier.users)
}

func TestUpdateStatusEnforcesTransitions(t *testing.T) {
	f := newEnrollmentFixture(t)
	seedPending(f)

	_, err := f.svc.UpdateStatus(context.Background(), registrar, "enr-1", UpdateEnrollmentStatusRequest{Status: models.EnrollmentStatusEnrolled})
	require.Error(t, err)
	assert.True(t, errors.Is(err, appErrors.ErrPreconditionFailed))

	_, err = f.svc.UpdateStatus(context.Background(), registrar, "enr-1", UpdateEnrollmentStatusRequest{Status: "archived"})
	require.Error(t, err)
	assert.True(t, appErrors.FromError(err).HasField("status"))
}

func TestUpdateStatusPaidRequiresSettledBalance(t *testing.T) {
	f := newEnrollmentFixture(t)
	seedPending(f)
	e := f.repo.enrollments["enr-1"]
	e.Status = models.EnrollmentStatusReadyForPayment
	f.repo.enrollments["enr-1"] = e

	_, err := f.svc.UpdateStatus(context.Background(), registrar, "enr-1", UpdateEnrollmentStatusRequest{Status: models.EnrollmentStatusPaid})
	require.Error(t, err)
	assert.True(t, errors.Is(err, appErrors.ErrPreconditionFailed))

	e.AmountPaid = e.Net
	e.Recalculate()
	f.repo.enrollments["enr-1"] = e
	detail, err := f.svc.UpdateStatus(context.Background(), registrar, "enr-1", UpdateEnrollmentStatusRequest{Status: models.EnrollmentStatusPaid})
	require.NoError(t, err)
	assert.Equal(t, models.EnrollmentStatusPaid, detail.Status)
}

func TestSubmitEnrollmentAfterPriorYear(t *testing.T) {
	cases := map[models.EnrollmentStatus]bool{
		models.EnrollmentStatusRejected:  true,
		models.EnrollmentStatusCompleted: true,
		models.EnrollmentStatusPending:   false,
		models.EnrollmentStatusApproved:  false,
		models.EnrollmentStatusEnrolled:  false,
	}
	for prior, allowed := range cases {
		t.Run(string(prior), func(t *testing.T) {
			f := newEnrollmentFixture(t)
			f.repo.enrollments["enr-old"] = models.EnrollmentDetail{Enrollment: models.Enrollment{
				ID: "enr-old", StudentID: "stu-1", GuardianID: "g-1", SchoolYearID: "sy-2024", Status: prior,
			}}

			_, err := f.svc.Submit(context.Background(), guardianOne, validSubmission())
			if allowed {
				require.NoError(t, err)
				require.NotNil(t, f.repo.created)
				return
			}
			require.Error(t, err)
			assert.True(t, errors.Is(err, appErrors.ErrConflict))
			assert.True(t, appErrors.FromError(err).HasField("student_id"))
			assert.Nil(t, f.repo.created)
		})
	}
}

func TestUpdateStatusGuardsPreviousStatus(t *testing.T) {
	f := newEnrollmentFixture(t)
	seedPending(f)
	e := f.repo.enrollments["enr-1"]
	e.Status = models.EnrollmentStatusApproved
	f.repo.enrollments["enr-1"] = e

	_, err := f.svc.UpdateStatus(context.Background(), registrar, "enr-1", UpdateEnrollmentStatusRequest{Status: models.EnrollmentStatusReadyForPayment})
	require.NoError(t, err)
	assert.Equal(t, []models.EnrollmentStatus{models.EnrollmentStatusApproved}, f.repo.from)
}

func TestStatusWritesConflictWhenRowMoved(t *testing.T) {
	f := newEnrollmentFixture(t)
	seedPending(f)
	f.repo.writeErr = repository.ErrStaleWrite

	_, err := f.svc.Approve(context.Background(), registrar, "enr-1", ApproveEnrollmentRequest{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, appErrors.ErrConflict))

	_, err = f.svc.Reject(context.Background(), registrar, "enr-1", RejectEnrollmentRequest{Reason: "Duplicate application"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, appErrors.ErrConflict))

	assert.Empty(t, f.audit.actions())
	assert.Empty(t, f.notifier.msgs)
}

func TestUpdateStatusApprovedDelegates(t *testing.T) {
	f := newEnrollmentFixture(t)
	seedPending(f)

	_, err := f.svc.UpdateStatus(context.Background(), registrar, "enr-1", UpdateEnrollmentStatusRequest{Status: models.EnrollmentStatusApproved})
	require.NoError(t, err)
	require.NotNil(t, f.repo.approved)
}

func TestListEnrollmentsScopesGuardian(t *testing.T) {
	f := newEnrollmentFixture(t)
	seedPending(f)
	f.repo.enrollments["enr-2"] = models.EnrollmentDetail{Enrollment: models.Enrollment{ID: "enr-2", GuardianID: "g-2"}}

	items, page, err := f.svc.List(context.Background(), guardianOne, models.EnrollmentFilter{GuardianID: "g-2", Page: 1, PageSize: 20})
	require.NoError(t, err)
	assert.Equal(t, "g-1", f.repo.lastFilter.GuardianID)
	require.Len(t, items, 1)
	assert.Equal(t, "enr-1", items[0].ID)
	assert.Equal(t, 1, page.TotalCount)

	_, err = f.svc.Get(context.Background(), guardianOne, "enr-2")
	assert.True(t, errors.Is(err, appErrors.ErrNotFound))

	_, _, err = f.svc.List(context.Background(), Actor{UserID: "x", Role: models.RoleStudent}, models.EnrollmentFilter{})
	assert.True(t, errors.Is(err, appErrors.ErrForbidden))
}

func TestExportEnrollmentsCSV(t *testing.T) {
	f := newEnrollmentFixture(t)
	seedPending(f)

	out, err := f.svc.ExportCSV(context.Background(), models.EnrollmentFilter{})
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(out)), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], "Enrollment ID")
	assert.Contains(t, lines[1], "16000.00")
}

func TestExportEnrollmentsPDF(t *testing.T) {
	f := newEnrollmentFixture(t)
	seedPending(f)

	out, err := f.svc.ExportPDF(context.Background(), models.EnrollmentFilter{})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(out), "%PDF-"))
}
