package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/noah-isme/cbhlc-api/internal/middleware"
	"github.com/noah-isme/cbhlc-api/internal/models"
)

// Handlers bundles every HTTP handler mounted under the API prefix.
type Handlers struct {
	Auth          *AuthHandler
	SchoolYears   *SchoolYearHandler
	Periods       *PeriodHandler
	Fees          *FeeHandler
	Students      *StudentHandler
	Enrollments   *EnrollmentHandler
	Billing       *BillingHandler
	Documents     *DocumentHandler
	Notifications *NotificationHandler
	Dashboard     *DashboardHandler
	Ops           *MetricsHandler
}

// Register mounts the routes on api. Public routes come first; everything else
// requires a bearer token.
func (h Handlers) Register(api *gin.RouterGroup, tokens middleware.TokenValidator, audit middleware.AuditWriter) {
	staff := middleware.RequireStaff()
	admin := middleware.RequireRoles(models.RoleAdmin)
	guardianOrStaff := middleware.RequireRoles(models.RoleGuardian, models.RoleAdmin, models.RoleRegistrar)

	api.POST("/auth/login", h.Auth.Login)
	api.GET("/enrollment-periods/active", h.Periods.Active)
	api.GET("/fees/grade/:grade_level", h.Fees.Lookup)
	api.GET("/documents/download", h.Documents.Download)

	authed := api.Group("", middleware.JWT(tokens))
	authed.GET("/auth/me", h.Auth.Me)
	authed.POST("/users", admin, h.Auth.CreateUser)

	authed.GET("/school-years", h.SchoolYears.List)
	authed.GET("/school-years/current", h.SchoolYears.Current)
	authed.POST("/school-years", admin, h.SchoolYears.Create)
	authed.POST("/school-years/:id/current", admin, h.SchoolYears.SetCurrent)

	periods := authed.Group("/enrollment-periods")
	periods.GET("", h.Periods.List)
	periods.GET("/:id", h.Periods.Get)
	periods.POST("", admin, h.Periods.Create)
	periods.POST("/sweep", admin, h.Periods.Sweep)
	periods.PUT("/:id", admin, h.Periods.Update)
	periods.POST("/:id/activate", admin, h.Periods.Activate)
	periods.POST("/:id/close", admin, h.Periods.Close)
	periods.DELETE("/:id", admin, h.Periods.Delete)

	fees := authed.Group("/fees")
	fees.GET("", h.Fees.List)
	fees.POST("", admin, h.Fees.Create)
	fees.PUT("/:id", admin, h.Fees.Update)

	authed.GET("/guardians/me", middleware.RequireRoles(models.RoleGuardian), h.Students.Profile)
	authed.PUT("/guardians/me", middleware.RequireRoles(models.RoleGuardian), h.Students.SaveProfile)
	authed.GET("/guardians/:id", staff, h.Students.GetGuardian)
	authed.DELETE("/guardians/:id", admin, h.Students.DeleteGuardian)

	students := authed.Group("/students", guardianOrStaff)
	students.GET("", h.Students.List)
	students.GET("/:id", h.Students.Get)
	students.POST("", h.Students.Create)
	students.PUT("/:id", h.Students.Update)
	students.DELETE("/:id", h.Students.Delete)

	enrollments := authed.Group("/enrollments", guardianOrStaff)
	enrollments.POST("", h.Enrollments.Submit)
	enrollments.GET("", h.Enrollments.List)
	enrollments.GET("/export", staff, middleware.Audit(audit, models.AuditActionEnrollmentExport, "enrollments"), h.Enrollments.Export)
	enrollments.GET("/:id", h.Enrollments.Get)
	enrollments.POST("/:id/approve", staff, h.Enrollments.Approve)
	enrollments.POST("/:id/reject", staff, h.Enrollments.Reject)
	enrollments.PATCH("/:id/status", staff, h.Enrollments.UpdateStatus)
	enrollments.GET("/:id/invoice", h.Billing.Invoice)
	enrollments.GET("/:id/invoice/pdf", h.Billing.InvoicePDF)
	enrollments.GET("/:id/payments", h.Billing.ListPayments)
	enrollments.POST("/:id/payments", staff, h.Billing.RecordPayment)
	authed.GET("/payments/:id/receipt", guardianOrStaff, h.Billing.Receipt)

	documents := authed.Group("/documents", guardianOrStaff)
	documents.POST("", h.Documents.Upload)
	documents.GET("", h.Documents.List)
	documents.GET("/:id/download-url", h.Documents.DownloadURL)
	documents.POST("/:id/review", staff, h.Documents.Review)
	documents.DELETE("/:id", h.Documents.Delete)

	authed.GET("/notifications", h.Notifications.List)
	authed.POST("/notifications/read-all", h.Notifications.MarkAllRead)
	authed.POST("/notifications/:id/read", h.Notifications.MarkRead)

	authed.GET("/dashboard", staff, h.Dashboard.Summary)
	authed.GET("/audit-logs", admin, h.Dashboard.AuditLogs)
	authed.GET("/metrics/summary", admin, h.Ops.Summary)
}
