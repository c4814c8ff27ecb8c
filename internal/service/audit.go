package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/noah-isme/cbhlc-api/internal/models"
	appErrors "github.com/noah-isme/cbhlc-api/pkg/errors"
	log "github.com/noah-isme/cbhlc-api/pkg/logger"
)

type auditWriter interface {
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

// recordAudit writes an audit entry. Failures are logged and never surface.
func recordAudit(ctx context.Context, repo auditWriter, logger *zap.Logger, actor Actor, action, resource, resourceID string, oldValues, newValues interface{}) {
	if repo == nil {
		return
	}
	entry := &models.AuditLog{
		UserID:     actor.userIDPtr(),
		Action:     action,
		Resource:   resource,
		ResourceID: &resourceID,
		OldValues:  models.NewJSONB(oldValues),
		NewValues:  models.NewJSONB(newValues),
		IPAddress:  actor.IP,
		UserAgent:  actor.UserAgent,
	}
	if err := repo.CreateAuditLog(ctx, entry); err != nil {
		log.FromContext(ctx, logger).Warn("failed to record audit log", zap.String("action", action), zap.String("resource_id", resourceID), zap.Error(err))
	}
}

type auditLister interface {
	List(ctx context.Context, filter models.AuditLogFilter) ([]models.AuditLog, int, error)
}

// AuditService exposes the audit trail to administrators.
type AuditService struct {
	repo auditLister
}

// NewAuditService constructs the service.
func NewAuditService(repo auditLister) *AuditService {
	return &AuditService{repo: repo}
}

// List returns audit entries newest first.
func (s *AuditService) List(ctx context.Context, filter models.AuditLogFilter) ([]models.AuditLog, *models.Pagination, error) {
	if filter.Page <= 0 {
		filter.Page = 1
	}
	if filter.PageSize <= 0 || filter.PageSize > 100 {
		filter.PageSize = 50
	}
	logs, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list audit logs")
	}
	return logs, models.NewPagination(filter.Page, filter.PageSize, total), nil
}
