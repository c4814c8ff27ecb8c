package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/noah-isme/cbhlc-api/internal/models"
	appErrors "github.com/noah-isme/cbhlc-api/pkg/errors"
	"github.com/noah-isme/cbhlc-api/pkg/export"
)

type invoiceRepository interface {
	FindByID(ctx context.Context, id string) (*models.InvoiceDetail, error)
	FindByEnrollment(ctx context.Context, enrollmentID string) (*models.InvoiceDetail, error)
}

type enrollmentFinder interface {
	FindByID(ctx context.Context, id string) (*models.EnrollmentDetail, error)
}

// BillingConfig labels generated invoices and receipts.
type BillingConfig struct {
	SchoolName string
	Currency   string
}

func (c BillingConfig) withDefaults() BillingConfig {
	if c.Currency == "" {
		c.Currency = "PHP"
	}
	return c
}

// InvoiceService exposes invoices generated on enrollment approval.
type InvoiceService struct {
	repo        invoiceRepository
	enrollments enrollmentFinder
	guardians   guardianFinder
	pdf         *export.PDFExporter
	logger      *zap.Logger
	cfg         BillingConfig
}

// NewInvoiceService constructs the service.
func NewInvoiceService(repo invoiceRepository, enrollments enrollmentFinder, guardians guardianFinder, logger *zap.Logger, cfg BillingConfig) *InvoiceService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &InvoiceService{
		repo:        repo,
		enrollments: enrollments,
		guardians:   guardians,
		pdf:         export.NewPDFExporter(),
		logger:      logger,
		cfg:         cfg.withDefaults(),
	}
}

// GetByEnrollment returns the invoice of an enrollment visible to actor.
func (s *InvoiceService) GetByEnrollment(ctx context.Context, actor Actor, enrollmentID string) (*models.InvoiceDetail, error) {
	if _, err := authorizeEnrollment(ctx, s.enrollments, s.guardians, actor, enrollmentID); err != nil {
		return nil, err
	}
	invoice, err := s.repo.FindByEnrollment(ctx, enrollmentID)
	if err != nil {
		return nil, notFound(err, "invoice")
	}
	return invoice, nil
}

// PDF renders the invoice of an enrollment.
func (s *InvoiceService) PDF(ctx context.Context, actor Actor, enrollmentID string) ([]byte, string, error) {
	invoice, err := s.GetByEnrollment(ctx, actor, enrollmentID)
	if err != nil {
		return nil, "", err
	}
	data, err := s.pdf.RenderBilling(invoiceDocument(invoice, s.cfg))
	if err != nil {
		return nil, "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render invoice")
	}
	return data, invoice.InvoiceNumber + ".pdf", nil
}

func invoiceDocument(inv *models.InvoiceDetail, cfg BillingConfig) export.BillingDocument {
	doc := export.BillingDocument{
		Title:      "Statement of Account",
		SchoolName: cfg.SchoolName,
		Number:     inv.InvoiceNumber,
		IssuedAt:   inv.IssuedAt,
		BilledTo:   inv.GuardianName,
		Details: [][2]string{
			{"Student", inv.StudentName},
			{"Grade level", inv.GradeLevel},
			{"School year", inv.SchoolYearName},
			{"Due date", inv.DueDate.Format("January 2, 2006")},
		},
		Footer: fmt.Sprintf("Status: %s", inv.Status),
	}
	for _, item := range inv.Items {
		doc.Lines = append(doc.Lines, export.Line{Description: item.Description, Amount: item.Amount.Format(cfg.Currency)})
	}
	doc.Totals = []export.Line{
		{Description: "Subtotal", Amount: inv.Subtotal.Format(cfg.Currency)},
		{Description: "Discount", Amount: inv.Discount.Format(cfg.Currency)},
		{Description: "Total", Amount: inv.Total.Format(cfg.Currency)},
		{Description: "Amount paid", Amount: inv.AmountPaid.Format(cfg.Currency)},
		{Description: "Balance", Amount: inv.Balance().Format(cfg.Currency)},
	}
	return doc
}

// authorizeEnrollment loads an enrollment and hides it from guardians who do not own it.
func authorizeEnrollment(ctx context.Context, enrollments enrollmentFinder, guardians guardianFinder, actor Actor, id string) (*models.EnrollmentDetail, error) {
	scope, err := guardianScope(ctx, guardians, actor)
	if err != nil {
		return nil, err
	}
	enrollment, err := enrollments.FindByID(ctx, id)
	if err != nil {
		return nil, notFound(err, "enrollment")
	}
	if scope != "" && enrollment.GuardianID != scope {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "enrollment not found")
	}
	return enrollment, nil
}
