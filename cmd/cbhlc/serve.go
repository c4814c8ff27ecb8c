package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/noah-isme/cbhlc-api/api/swagger"
	"github.com/noah-isme/cbhlc-api/internal/handler"
	"github.com/noah-isme/cbhlc-api/internal/middleware"
	"github.com/noah-isme/cbhlc-api/internal/service"
	"github.com/noah-isme/cbhlc-api/pkg/config"
	"github.com/noah-isme/cbhlc-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/cbhlc-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/cbhlc-api/pkg/middleware/requestid"
)

const shutdownTimeout = 15 * time.Second

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := bootstrap(ctx)
			if err != nil {
				return err
			}
			defer a.Close() //nolint:errcheck
			return a.serve(ctx)
		},
	}
}

func (a *app) serve(ctx context.Context) error {
	cfg := a.cfg
	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	a.queue.Start(ctx)
	defer a.queue.Stop()

	if cfg.Sweep.Enabled {
		a.sweep.Start(ctx, cfg.Sweep.Interval, service.SweepOptions{Notify: cfg.Sweep.NotifyAdmins})
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(a.logger))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(a.metrics))

	ops := handler.NewMetricsHandler(a.metrics, a.db)
	r.GET("/health", ops.Health)
	r.GET("/metrics", ops.Prometheus)
	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	handlers := handler.Handlers{
		Auth:          handler.NewAuthHandler(a.auth),
		SchoolYears:   handler.NewSchoolYearHandler(a.schoolYears),
		Periods:       handler.NewPeriodHandler(a.periods, a.sweep),
		Fees:          handler.NewFeeHandler(a.fees),
		Students:      handler.NewStudentHandler(a.students, a.guardians),
		Enrollments:   handler.NewEnrollmentHandler(a.enrollments),
		Billing:       handler.NewBillingHandler(a.payments, a.invoices),
		Documents:     handler.NewDocumentHandler(a.documents),
		Notifications: handler.NewNotificationHandler(a.notifications),
		Dashboard:     handler.NewDashboardHandler(a.dashboard, a.audit),
		Ops:           ops,
	}
	handlers.Register(r.Group(cfg.APIPrefix), a.auth, a.auditRepo)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		a.logger.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	a.logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("graceful shutdown failed", zap.Error(err))
		return err
	}
	return nil
}
