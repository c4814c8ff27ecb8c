package main

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/noah-isme/cbhlc-api/internal/repository"
	"github.com/noah-isme/cbhlc-api/internal/service"
	"github.com/noah-isme/cbhlc-api/pkg/cache"
	"github.com/noah-isme/cbhlc-api/pkg/config"
	"github.com/noah-isme/cbhlc-api/pkg/database"
	"github.com/noah-isme/cbhlc-api/pkg/jobs"
	"github.com/noah-isme/cbhlc-api/pkg/logger"
	"github.com/noah-isme/cbhlc-api/pkg/mail"
	"github.com/noah-isme/cbhlc-api/pkg/storage"
	"github.com/noah-isme/cbhlc-api/pkg/validation"
)

// app holds the shared infrastructure and services every command builds on.
type app struct {
	cfg    *config.Config
	logger *zap.Logger
	db     *sqlx.DB
	redis  *redis.Client

	metrics       *service.MetricsService
	queue         *jobs.Queue
	auth          *service.AuthService
	schoolYears   *service.SchoolYearService
	periods       *service.EnrollmentPeriodService
	sweep         *service.PeriodSweepService
	fees          *service.FeeService
	students      *service.StudentService
	guardians     *service.GuardianService
	enrollments   *service.EnrollmentService
	payments      *service.PaymentService
	invoices      *service.InvoiceService
	documents     *service.DocumentService
	notifications *service.NotificationService
	dashboard     *service.DashboardService
	audit         *service.AuditService

	auditRepo *repository.AuditRepository
}

func bootstrap(ctx context.Context) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	logr, err := logger.New(cfg)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	db, err := database.NewPostgres(ctx, cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}
	if cfg.Database.AutoMigrate {
		if err := database.Migrate(ctx, db.DB); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("migrate: %w", err)
		}
	}

	a := &app{cfg: cfg, logger: logr, db: db, metrics: service.NewMetricsService()}

	var cacheRepo service.CacheRepository
	var locker cache.Locker = database.NewAdvisoryLocker(db)
	if cfg.Redis.Enabled {
		client, err := cache.NewRedis(ctx, cfg.Redis)
		if err != nil {
			logr.Warn("redis unavailable, continuing without cache", zap.Error(err))
		} else {
			a.redis = client
			cacheRepo = cache.NewStore(client)
			locker = cache.NewRedisLocker(client)
		}
	}
	cacheSvc := service.NewCacheService(cacheRepo, a.metrics, cfg.Fees.CacheTTL, logr, cacheRepo != nil)

	documentFiles, err := storage.NewLocalStorage(cfg.Documents.StorageDir)
	if err != nil {
		_ = a.Close()
		return nil, fmt.Errorf("document storage: %w", err)
	}
	receiptFiles, err := storage.NewLocalStorage(cfg.Receipts.StorageDir)
	if err != nil {
		_ = a.Close()
		return nil, fmt.Errorf("receipt storage: %w", err)
	}

	validate := validation.New()
	userRepo := repository.NewUserRepository(db)
	a.auditRepo = repository.NewAuditRepository(db)
	schoolYearRepo := repository.NewSchoolYearRepository(db)
	periodRepo := repository.NewEnrollmentPeriodRepository(db)
	studentRepo := repository.NewStudentRepository(db)
	guardianRepo := repository.NewGuardianRepository(db)
	enrollmentRepo := repository.NewEnrollmentRepository(db)
	invoiceRepo := repository.NewInvoiceRepository(db)
	documentRepo := repository.NewDocumentRepository(db)

	var mailer mail.Mailer = mail.NewLogMailer(logr, cfg.Notifications.SubjectPrefix)
	if cfg.Notifications.EmailEnabled && cfg.Notifications.SendgridAPIKey != "" {
		mailer = mail.NewSendgridMailer(mail.Options{
			APIKey:        cfg.Notifications.SendgridAPIKey,
			FromEmail:     cfg.Notifications.FromEmail,
			FromName:      cfg.Notifications.FromName,
			SubjectPrefix: cfg.Notifications.SubjectPrefix,
		})
	}
	a.queue = jobs.NewQueue("notifications", jobs.QueueConfig{
		Workers:    cfg.Notifications.Workers,
		MaxRetries: cfg.Notifications.MaxRetries,
		Logger:     logr,
	})
	a.notifications = service.NewNotificationService(service.NotificationServiceParams{
		Repo:    repository.NewNotificationRepository(db),
		Users:   userRepo,
		Mailer:  mailer,
		Queue:   a.queue,
		Metrics: a.metrics,
		Logger:  logr,
	})
	a.notifications.RegisterJobs(a.queue)

	billing := service.BillingConfig{SchoolName: cfg.Receipts.SchoolName, Currency: cfg.Receipts.Currency}

	a.auth = service.NewAuthService(userRepo, a.auditRepo, validate, logr, service.AuthConfig{
		AccessTokenSecret: cfg.JWT.Secret,
		AccessTokenExpiry: cfg.JWT.Expiration,
		Issuer:            cfg.JWT.Issuer,
	})
	a.schoolYears = service.NewSchoolYearService(schoolYearRepo, validate, logr)
	a.periods = service.NewEnrollmentPeriodService(periodRepo, schoolYearRepo, a.auditRepo, validate, logr)
	a.sweep = service.NewPeriodSweepService(periodRepo, locker, a.notifications, a.auditRepo, a.metrics, logr, service.PeriodSweepConfig{
		LockTTL:  cfg.Sweep.LockTTL,
		Location: cfg.Sweep.Location(),
	})
	a.fees = service.NewFeeService(service.FeeServiceParams{
		Repo:        repository.NewGradeLevelFeeRepository(db),
		SchoolYears: schoolYearRepo,
		Periods:     periodRepo,
		Cache:       cacheSvc,
		Audit:       a.auditRepo,
		Validator:   validate,
		Logger:      logr,
		CacheTTL:    cfg.Fees.CacheTTL,
	})
	a.students = service.NewStudentService(studentRepo, guardianRepo, validate, logr)
	a.guardians = service.NewGuardianService(guardianRepo, validate, logr)
	a.enrollments = service.NewEnrollmentService(service.EnrollmentServiceParams{
		Repo:        enrollmentRepo,
		Students:    studentRepo,
		Guardians:   guardianRepo,
		SchoolYears: schoolYearRepo,
		Periods:     periodRepo,
		Fees:        a.fees,
		Notifier:    a.notifications,
		Audit:       a.auditRepo,
		Metrics:     a.metrics,
		Validator:   validate,
		Logger:      logr,
		Config:      service.EnrollmentServiceConfig{InvoiceDueDays: cfg.Receipts.InvoiceDays},
	})
	a.invoices = service.NewInvoiceService(invoiceRepo, enrollmentRepo, guardianRepo, logr, billing)
	a.payments = service.NewPaymentService(service.PaymentServiceParams{
		Repo:        repository.NewPaymentRepository(db),
		Enrollments: enrollmentRepo,
		Invoices:    invoiceRepo,
		Guardians:   guardianRepo,
		Files:       receiptFiles,
		Notifier:    a.notifications,
		Audit:       a.auditRepo,
		Metrics:     a.metrics,
		Validator:   validate,
		Logger:      logr,
		Config:      billing,
	})
	a.documents = service.NewDocumentService(service.DocumentServiceParams{
		Repo:      documentRepo,
		Students:  studentRepo,
		Guardians: guardianRepo,
		Files:     documentFiles,
		Signer:    storage.NewSignedURLSigner(cfg.Documents.SignedURLSecret, cfg.Documents.SignedURLTTL),
		Notifier:  a.notifications,
		Audit:     a.auditRepo,
		Validator: validate,
		Logger:    logr,
		Config: service.DocumentServiceConfig{
			MaxFileSizeBytes: cfg.Documents.MaxFileSizeBytes,
			AllowedMIMEs:     cfg.Documents.AllowedMIMEs,
			DownloadPath:     cfg.APIPrefix + "/documents/download",
		},
	})
	a.dashboard = service.NewDashboardService(service.DashboardServiceParams{
		Enrollments: enrollmentRepo,
		Documents:   documentRepo,
		Periods:     periodRepo,
		Cache:       cacheSvc,
		CacheTTL:    cfg.Dashboard.CacheTTL,
		Logger:      logr,
	})
	a.audit = service.NewAuditService(a.auditRepo)

	return a, nil
}

// Close releases connections. The logger is synced last.
func (a *app) Close() error {
	var err error
	if a.redis != nil {
		err = multierr.Append(err, a.redis.Close())
	}
	if a.db != nil {
		err = multierr.Append(err, a.db.Close())
	}
	_ = a.logger.Sync()
	return err
}
