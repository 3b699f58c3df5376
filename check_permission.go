package lms

import (
	"context"
)

// CheckPermission verifies that a user holds a permission in their materialized set.
// It returns nil when allowed and ErrPermissionDenied otherwise.
func (l *LMS) CheckPermission(ctx context.Context, userID uint, permName string) error {
	if userID == 0 || permName == "" {
		return ErrInvalidInput
	}

	allowed, hit, err := l.checkCache(ctx, userID, permName)
	if err != nil {
		l.log.Warnw("permission cache read failed", "user_id", userID, "permission", permName, "error", err)
	}
	if !hit {
		allowed, err = l.hasPermission(ctx, userID, permName)
		if err != nil {
			return err
		}
		if err := l.setCache(ctx, userID, permName, allowed); err != nil {
			l.log.Warnw("permission cache write failed", "user_id", userID, "permission", permName, "error", err)
		}
	}

	metrics().permissionChecks.WithLabelValues(verdictLabel(allowed)).Inc()
	if !allowed {
		return ErrPermissionDenied
	}
	return nil
}

func (l *LMS) hasPermission(ctx context.Context, userID uint, permName string) (bool, error) {
	var count int64
	err := l.db.WithContext(ctx).Model(&UserPermission{}).
		Joins("JOIN permissions ON permissions.id = user_permissions.permission_id AND permissions.deleted_at IS NULL").
		Where("user_permissions.user_id = ? AND permissions.name = ?", userID, permName).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// BulkPermissionCheck is one user/permission pair for CheckBulkPermissions.
type BulkPermissionCheck struct {
	UserID     uint   `json:"user_id"`
	Permission string `json:"permission"`
}

// BulkPermissionResult is the verdict for one BulkPermissionCheck.
type BulkPermissionResult struct {
	UserID     uint   `json:"user_id"`
	Permission string `json:"permission"`
	Allowed    bool   `json:"allowed"`
	Error      error  `json:"-"`
}

// CheckBulkPermissions checks many pairs concurrently. Results keep the input order.
func (l *LMS) CheckBulkPermissions(ctx context.Context, checks []BulkPermissionCheck) []BulkPermissionResult {
	results := make([]BulkPermissionResult, len(checks))
	forEach(len(checks), l.sweepWorkers, func(i int) {
		c := checks[i]
		err := l.CheckPermission(ctx, c.UserID, c.Permission)
		res := BulkPermissionResult{UserID: c.UserID, Permission: c.Permission, Allowed: err == nil}
		if err != nil && err != ErrPermissionDenied {
			res.Error = err
		}
		results[i] = res
	})
	return results
}

func verdictLabel(allowed bool) string {
	if allowed {
		return "allowed"
	}
	return "denied"
}
