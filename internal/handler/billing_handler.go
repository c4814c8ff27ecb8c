package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/cbhlc-api/internal/models"
	"github.com/noah-isme/cbhlc-api/internal/service"
	"github.com/noah-isme/cbhlc-api/pkg/response"
)

type paymentService interface {
	Record(ctx context.Context, actor service.Actor, enrollmentID string, req service.RecordPaymentRequest) (*models.PaymentResult, error)
	List(ctx context.Context, actor service.Actor, enrollmentID string) ([]models.Payment, error)
	Receipt(ctx context.Context, actor service.Actor, paymentID string) ([]byte, string, error)
}

type invoiceService interface {
	GetByEnrollment(ctx context.Context, actor service.Actor, enrollmentID string) (*models.InvoiceDetail, error)
	PDF(ctx context.Context, actor service.Actor, enrollmentID string) ([]byte, string, error)
}

// BillingHandler exposes invoices, payments and official receipts.
type BillingHandler struct {
	payments paymentService
	invoices invoiceService
}

// NewBillingHandler constructs BillingHandler.
func NewBillingHandler(payments paymentService, invoices invoiceService) *BillingHandler {
	return &BillingHandler{payments: payments, invoices: invoices}
}

// RecordPayment godoc
// @Summary Record a payment against an approved enrollment
// @Tags Billing
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Enrollment ID"
// @Param payload body service.RecordPaymentRequest true "Payment"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 412 {object} response.Envelope
// @Router /enrollments/{id}/payments [post]
func (h *BillingHandler) RecordPayment(c *gin.Context) {
	var req service.RecordPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, invalidPayload(err))
		return
	}
	result, err := h.payments.Record(c.Request.Context(), actorFromContext(c), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, result)
}

// ListPayments godoc
// @Summary Payments made for an enrollment
// @Tags Billing
// @Produce json
// @Security BearerAuth
// @Param id path string true "Enrollment ID"
// @Success 200 {object} response.Envelope
// @Router /enrollments/{id}/payments [get]
func (h *BillingHandler) ListPayments(c *gin.Context) {
	payments, err := h.payments.List(c.Request.Context(), actorFromContext(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, payments, nil)
}

// Receipt godoc
// @Summary Download the official receipt of a payment
// @Tags Billing
// @Produce application/pdf
// @Security BearerAuth
// @Param id path string true "Payment ID"
// @Success 200 {file} file
// @Router /payments/{id}/receipt [get]
func (h *BillingHandler) Receipt(c *gin.Context) {
	data, filename, err := h.payments.Receipt(c.Request.Context(), actorFromContext(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.File(c, filename, "application/pdf", data)
}

// Invoice godoc
// @Summary Invoice issued for an enrollment
// @Tags Billing
// @Produce json
// @Security BearerAuth
// @Param id path string true "Enrollment ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /enrollments/{id}/invoice [get]
func (h *BillingHandler) Invoice(c *gin.Context) {
	invoice, err := h.invoices.GetByEnrollment(c.Request.Context(), actorFromContext(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, invoice, nil)
}

// InvoicePDF godoc
// @Summary Download the invoice as PDF
// @Tags Billing
// @Produce application/pdf
// @Security BearerAuth
// @Param id path string true "Enrollment ID"
// @Success 200 {file} file
// @Router /enrollments/{id}/invoice/pdf [get]
func (h *BillingHandler) InvoicePDF(c *gin.Context) {
	data, filename, err := h.invoices.PDF(c.Request.Context(), actorFromContext(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.File(c, filename, "application/pdf", data)
}
