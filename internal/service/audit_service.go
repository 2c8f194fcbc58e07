package service

import (
	"context"
	"encoding/json"

	"go.uber.org/zap"

	"github.com/noah-isme/campus-events-api/internal/models"
)

type auditLogRepository interface {
	Create(ctx context.Context, log *models.AuditLog) error
}

// auditRecorder is the narrow view other services take of AuditService.
type auditRecorder interface {
	Record(ctx context.Context, entry *models.AuditLog)
}

// AuditService writes the audit trail. Without a repository entries are only logged.
type AuditService struct {
	repo   auditLogRepository
	logger *zap.Logger
}

// NewAuditService constructs the service. repo may be nil.
func NewAuditService(repo auditLogRepository, logger *zap.Logger) *AuditService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuditService{repo: repo, logger: logger}
}

// Record persists the entry. Failures are logged and never surface to callers.
func (s *AuditService) Record(ctx context.Context, entry *models.AuditLog) {
	if s == nil || entry == nil {
		return
	}
	fields := []zap.Field{
		zap.String("action", entry.Action),
		zap.String("resource", entry.Resource),
	}
	if entry.UserID != nil {
		fields = append(fields, zap.String("user_id", *entry.UserID))
	}
	if entry.ResourceID != nil {
		fields = append(fields, zap.String("resource_id", *entry.ResourceID))
	}
	if s.repo == nil {
		s.logger.Info("audit", fields...)
		return
	}
	if err := s.repo.Create(ctx, entry); err != nil {
		s.logger.Warn("failed to record audit log", append(fields, zap.Error(err))...)
	}
}

// auditValues renders a small JSON object for the old/new value columns.
func auditValues(values map[string]interface{}) []byte {
	if len(values) == 0 {
		return nil
	}
	data, err := json.Marshal(values)
	if err != nil {
		return nil
	}
	return data
}

func stringPtr(s string) *string {
	return &s
}
