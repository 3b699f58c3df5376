package lms

import (
	"context"

	"gorm.io/gorm"
)

// logAudit creates an audit log entry using db, which may be a transaction.
func (l *LMS) logAudit(db *gorm.DB, actorID uint, action, targetType string, targetID uint, details string) error {
	if !l.auditEnabled {
		return nil
	}
	audit := &AuditLog{
		ActorID:    actorID,
		Action:     action,
		TargetType: targetType,
		TargetID:   targetID,
		Details:    details,
		CreatedAt:  l.now(),
	}
	return db.Create(audit).Error
}

// GetAuditLog retrieves an audit log by ID.
func (l *LMS) GetAuditLog(ctx context.Context, id uint) (*AuditLog, error) {
	if id == 0 {
		return nil, ErrInvalidInput
	}

	var audit AuditLog
	if err := l.db.WithContext(ctx).First(&audit, id).Error; err != nil {
		return nil, notFound(err, "audit log", id)
	}
	return &audit, nil
}

// AuditFilter narrows ListAuditLogs. Nil fields are ignored.
type AuditFilter struct {
	ActorID    *uint
	TargetType *string
	TargetID   *uint
}

// ListAuditLogs retrieves audit logs newest first.
func (l *LMS) ListAuditLogs(ctx context.Context, filter AuditFilter) ([]AuditLog, error) {
	var audits []AuditLog
	query := l.db.WithContext(ctx).Order("created_at DESC, id DESC")
	if filter.ActorID != nil {
		query = query.Where("actor_id = ?", *filter.ActorID)
	}
	if filter.TargetType != nil {
		query = query.Where("target_type = ?", *filter.TargetType)
	}
	if filter.TargetID != nil {
		query = query.Where("target_id = ?", *filter.TargetID)
	}
	if err := query.Find(&audits).Error; err != nil {
		return nil, err
	}
	return audits, nil
}
