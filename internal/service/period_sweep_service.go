package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/noah-isme/cbhlc-api/internal/models"
	"github.com/noah-isme/cbhlc-api/pkg/cache"
	appErrors "github.com/noah-isme/cbhlc-api/pkg/errors"
)

const sweepLockName = "enrollment-period-sweep"

type sweepPeriodRepository interface {
	ListByStatus(ctx context.Context, status models.PeriodStatus) ([]models.EnrollmentPeriodDetail, error)
	Activate(ctx context.Context, id string) ([]string, error)
	Close(ctx context.Context, id string) error
}

type roleNotifier interface {
	NotifyRoles(ctx context.Context, roles []models.UserRole, msg NotificationMessage) error
}

// SweepOptions control one sweep run.
type SweepOptions struct {
	Notify bool
	DryRun bool
}

// PeriodTransition is one status change made, or planned, by the sweep.
type PeriodTransition struct {
	PeriodID       string              `json:"period_id"`
	SchoolYearName string              `json:"school_year_name,omitempty"`
	From           models.PeriodStatus `json:"from"`
	To             models.PeriodStatus `json:"to"`
	Reason         string              `json:"reason"`
}

func (t PeriodTransition) String() string {
	label := t.SchoolYearName
	if label == "" {
		label = t.PeriodID
	}
	return fmt.Sprintf("%s: %s -> %s (%s)", label, t.From, t.To, t.Reason)
}

// SweepFailure records a period the sweep could not transition.
type SweepFailure struct {
	PeriodID string `json:"period_id"`
	Error    string `json:"error"`
}

// SweepReport summarises a sweep run.
type SweepReport struct {
	RanAt       time.Time          `json:"ran_at"`
	DryRun      bool               `json:"dry_run"`
	Transitions []PeriodTransition `json:"transitions"`
	Failures    []SweepFailure     `json:"failures,omitempty"`

	errs error
}

// Err combines the per-period failures, or returns nil.
func (r *SweepReport) Err() error {
	if r == nil {
		return nil
	}
	return r.errs
}

// PeriodSweepConfig tunes the sweep.
type PeriodSweepConfig struct {
	LockTTL  time.Duration
	Location *time.Location
}

// PeriodSweepService advances enrollment period statuses by calendar date:
// upcoming periods whose dates cover today become active, active periods whose
// end date has passed become closed. It never moves a period backwards.
type PeriodSweepService struct {
	repo     sweepPeriodRepository
	locker   cache.Locker
	notifier roleNotifier
	audit    auditWriter
	metrics  *MetricsService
	logger   *zap.Logger
	cfg      PeriodSweepConfig
	now      func() time.Time
}

// NewPeriodSweepService constructs the sweep. locker and notifier may be nil.
func NewPeriodSweepService(repo sweepPeriodRepository, locker cache.Locker, notifier roleNotifier, audit auditWriter, metrics *MetricsService, logger *zap.Logger, cfg PeriodSweepConfig) *PeriodSweepService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = 10 * time.Minute
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	return &PeriodSweepService{
		repo:     repo,
		locker:   locker,
		notifier: notifier,
		audit:    audit,
		metrics:  metrics,
		logger:   logger.With(zap.String("component", "period_sweep")),
		cfg:      cfg,
		now:      time.Now,
	}
}

// Run performs one sweep. An error means the sweep could not run at all;
// per-period failures are reported in the SweepReport instead.
func (s *PeriodSweepService) Run(ctx context.Context, opts SweepOptions) (*SweepReport, error) {
	started := time.Now()
	if s.locker != nil {
		release, err := s.locker.Acquire(ctx, sweepLockName, s.cfg.LockTTL)
		if err != nil {
			if errors.Is(err, appErrors.ErrLocked) {
				s.metrics.ObserveSweep("locked", time.Since(started))
				return nil, err
			}
			s.metrics.ObserveSweep("failed", time.Since(started))
			return nil, fmt.Errorf("acquire sweep lock: %w", err)
		}
		defer func() {
			if err := release(context.Background()); err != nil {
				s.logger.Warn("failed to release sweep lock", zap.Error(err))
			}
		}()
	}

	now := s.now().In(s.cfg.Location)
	report := &SweepReport{RanAt: now, DryRun: opts.DryRun, Transitions: []PeriodTransition{}}

	active, err := s.repo.ListByStatus(ctx, models.PeriodStatusActive)
	if err != nil {
		s.metrics.ObserveSweep("failed", time.Since(started))
		return nil, fmt.Errorf("list active periods: %w", err)
	}
	upcoming, err := s.repo.ListByStatus(ctx, models.PeriodStatusUpcoming)
	if err != nil {
		s.metrics.ObserveSweep("failed", time.Since(started))
		return nil, fmt.Errorf("list upcoming periods: %w", err)
	}

	names := make(map[string]string, len(active)+len(upcoming))
	stillActive := make(map[string]struct{}, len(active))
	for _, p := range active {
		names[p.ID] = p.SchoolYearName
		if !p.Ended(now) {
			stillActive[p.ID] = struct{}{}
			continue
		}
		t := PeriodTransition{PeriodID: p.ID, SchoolYearName: p.SchoolYearName, From: models.PeriodStatusActive, To: models.PeriodStatusClosed, Reason: "end date passed"}
		if !opts.DryRun {
			if err := s.repo.Close(ctx, p.ID); err != nil {
				s.fail(report, p.ID, fmt.Errorf("close period %s: %w", p.ID, err))
				continue
			}
		}
		s.record(ctx, report, opts, t)
	}

	// upcoming is ordered by start date, so the latest eligible period ends active.
	for _, p := range upcoming {
		names[p.ID] = p.SchoolYearName
		if !p.Covers(now) {
			continue
		}
		var displaced []string
		if opts.DryRun {
			for id := range stillActive {
				displaced = append(displaced, id)
			}
		} else {
			displaced, err = s.repo.Activate(ctx, p.ID)
			if err != nil {
				s.fail(report, p.ID, fmt.Errorf("activate period %s: %w", p.ID, err))
				continue
			}
		}
		sort.Strings(displaced)

		s.record(ctx, report, opts, PeriodTransition{PeriodID: p.ID, SchoolYearName: p.SchoolYearName, From: models.PeriodStatusUpcoming, To: models.PeriodStatusActive, Reason: "start date reached"})
		for _, id := range displaced {
			s.record(ctx, report, opts, PeriodTransition{PeriodID: id, SchoolYearName: names[id], From: models.PeriodStatusActive, To: models.PeriodStatusClosed, Reason: "superseded by " + p.ID})
		}
		stillActive = map[string]struct{}{p.ID: {}}
	}

	if opts.Notify && !opts.DryRun && len(report.Transitions) > 0 {
		s.notifyAdmins(ctx, report)
	}

	outcome := "ok"
	if len(report.Failures) > 0 {
		outcome = "partial"
	}
	s.metrics.ObserveSweep(outcome, time.Since(started))
	s.logger.Info("enrollment period sweep finished",
		zap.Bool("dry_run", opts.DryRun),
		zap.Int("transitions", len(report.Transitions)),
		zap.Int("failures", len(report.Failures)),
		zap.Duration("took", time.Since(started)))
	return report, nil
}

// Start runs the sweep every interval until ctx is cancelled. A run that
// finds the lock held is skipped.
func (s *PeriodSweepService) Start(ctx context.Context, interval time.Duration, opts SweepOptions) {
	if interval <= 0 {
		interval = 24 * time.Hour
	}
	go func() {
		s.logger.Info("period sweep scheduler started", zap.Duration("interval", interval))
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		s.runScheduled(ctx, opts)
		for {
			select {
			case <-ctx.Done():
				s.logger.Info("period sweep scheduler stopped")
				return
			case <-ticker.C:
				s.runScheduled(ctx, opts)
			}
		}
	}()
}

func (s *PeriodSweepService) runScheduled(ctx context.Context, opts SweepOptions) {
	report, err := s.Run(ctx, opts)
	switch {
	case errors.Is(err, appErrors.ErrLocked):
		s.logger.Info("period sweep skipped, another run holds the lock")
	case err != nil:
		s.logger.Error("period sweep failed", zap.Error(err))
	case report.Err() != nil:
		s.logger.Warn("period sweep finished with failures", zap.Error(report.Err()))
	}
}

func (s *PeriodSweepService) record(ctx context.Context, report *SweepReport, opts SweepOptions, t PeriodTransition) {
	report.Transitions = append(report.Transitions, t)
	if opts.DryRun {
		return
	}
	action := models.AuditActionPeriodAutoClosed
	if t.To == models.PeriodStatusActive {
		action = models.AuditActionPeriodAutoActivated
	}
	recordAudit(ctx, s.audit, s.logger, SystemActor, action, "enrollment_period", t.PeriodID,
		map[string]interface{}{"status": t.From},
		map[string]interface{}{"status": t.To, "reason": t.Reason})
	s.metrics.ObservePeriodTransition(string(t.To))
}

func (s *PeriodSweepService) fail(report *SweepReport, periodID string, err error) {
	s.logger.Error("period transition failed", zap.String("period_id", periodID), zap.Error(err))
	report.Failures = append(report.Failures, SweepFailure{PeriodID: periodID, Error: err.Error()})
	report.errs = multierr.Append(report.errs, err)
}

func (s *PeriodSweepService) notifyAdmins(ctx context.Context, report *SweepReport) {
	if s.notifier == nil {
		return
	}
	lines := make([]string, 0, len(report.Transitions))
	for _, t := range report.Transitions {
		lines = append(lines, t.String())
	}
	msg := NotificationMessage{
		Type:    models.NotificationPeriodStatusChanged,
		Title:   "Enrollment period status updated",
		Message: strings.Join(lines, "\n"),
		Data:    map[string]interface{}{"transitions": report.Transitions, "ran_at": report.RanAt},
	}
	if err := s.notifier.NotifyRoles(ctx, []models.UserRole{models.RoleSuperAdmin, models.RoleAdmin}, msg); err != nil {
		s.logger.Warn("failed to notify administrators of period changes", zap.Error(err))
	}
}
