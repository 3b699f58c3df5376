package lms

import (
	"context"
	"sort"

	"gorm.io/gorm"
)

// AssignRole grants a role to a user and re-syncs the user's permissions.
func (l *LMS) AssignRole(ctx context.Context, userID, roleID, actorID uint) error {
	if userID == 0 || roleID == 0 {
		return ErrInvalidInput
	}

	err := l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var user User
		if err := tx.First(&user, userID).Error; err != nil {
			return notFound(err, "user", userID)
		}
		var role Role
		if err := tx.First(&role, roleID).Error; err != nil {
			return notFound(err, "role", roleID)
		}
		if !role.IsActive {
			return invalidOp("role %q is inactive", role.Name)
		}

		var count int64
		if err := tx.Model(&UserRole{}).Where("user_id = ? AND role_id = ?", userID, roleID).Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return conflict("user %d already holds role %q", userID, role.Name)
		}
		if err := tx.Create(&UserRole{UserID: userID, RoleID: roleID, CreatedAt: l.now()}).Error; err != nil {
			if isDuplicate(err) {
				return conflict("user %d already holds role %q", userID, role.Name)
			}
			return err
		}

		if _, err := l.syncUserPermissions(tx, userID); err != nil {
			return err
		}
		return l.logAudit(tx, actorID, "assign_role", "user", userID, "Assigned role: "+role.Name)
	})
	if err != nil {
		return err
	}

	l.afterSync(ctx, userID)
	l.log.Infow("role assigned", "user_id", userID, "role_id", roleID, "actor_id", actorID)
	return nil
}

// RemoveRole revokes a role from a user. Removing a role the user does not hold succeeds.
func (l *LMS) RemoveRole(ctx context.Context, userID, roleID, actorID uint) error {
	if userID == 0 || roleID == 0 {
		return ErrInvalidInput
	}

	removed := false
	err := l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var user User
		if err := tx.First(&user, userID).Error; err != nil {
			return notFound(err, "user", userID)
		}

		res := tx.Where("user_id = ? AND role_id = ?", userID, roleID).Delete(&UserRole{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return nil
		}
		removed = true

		if _, err := l.syncUserPermissions(tx, userID); err != nil {
			return err
		}
		return l.logAudit(tx, actorID, "remove_role", "user", userID, "Removed role from user")
	})
	if err != nil {
		return err
	}

	if removed {
		l.afterSync(ctx, userID)
		l.log.Infow("role removed", "user_id", userID, "role_id", roleID, "actor_id", actorID)
	}
	return nil
}

// ListUserRoles returns the roles a user holds.
func (l *LMS) ListUserRoles(ctx context.Context, userID uint) ([]Role, error) {
	if userID == 0 {
		return nil, ErrInvalidInput
	}

	var roles []Role
	err := l.db.WithContext(ctx).
		Joins("JOIN user_roles ON user_roles.role_id = roles.id").
		Where("user_roles.user_id = ?", userID).
		Order("roles.name ASC").
		Find(&roles).Error
	if err != nil {
		return nil, err
	}
	return roles, nil
}

// GetAffectedUsers returns the ids of every user holding a role.
func (l *LMS) GetAffectedUsers(ctx context.Context, roleID uint) ([]uint, error) {
	db := l.db.WithContext(ctx)
	var role Role
	if err := db.First(&role, roleID).Error; err != nil {
		return nil, notFound(err, "role", roleID)
	}

	ids := []uint{}
	if err := db.Model(&UserRole{}).Where("role_id = ?", roleID).Order("user_id ASC").Pluck("user_id", &ids).Error; err != nil {
		return nil, err
	}
	return ids, nil
}

// SyncUserPermissions recomputes a user's materialized permissions as the union of
// the permissions of every role they hold, and returns the resulting names.
func (l *LMS) SyncUserPermissions(ctx context.Context, userID uint) ([]string, error) {
	var names []string
	err := l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var user User
		if err := tx.First(&user, userID).Error; err != nil {
			return notFound(err, "user", userID)
		}
		var err error
		names, err = l.syncUserPermissions(tx, userID)
		return err
	})
	if err != nil {
		return nil, err
	}

	l.afterSync(ctx, userID)
	return names, nil
}

// GetUserPermissions returns the names in a user's materialized permission set.
func (l *LMS) GetUserPermissions(ctx context.Context, userID uint) ([]string, error) {
	if userID == 0 {
		return nil, ErrInvalidInput
	}
	return permissionNames(l.db.WithContext(ctx), userID)
}

// syncUserPermissions replaces the materialized set inside tx.
func (l *LMS) syncUserPermissions(tx *gorm.DB, userID uint) ([]string, error) {
	var granted []uint
	err := tx.Model(&RolePermission{}).
		Distinct().
		Joins("JOIN user_roles ON user_roles.role_id = role_permissions.role_id").
		Where("user_roles.user_id = ?", userID).
		Pluck("role_permissions.permission_id", &granted).Error
	if err != nil {
		return nil, err
	}

	if err := tx.Where("user_id = ?", userID).Delete(&UserPermission{}).Error; err != nil {
		return nil, err
	}
	if len(granted) > 0 {
		now := l.now()
		rows := make([]UserPermission, len(granted))
		for i, pid := range granted {
			rows[i] = UserPermission{UserID: userID, PermissionID: pid, CreatedAt: now}
		}
		if err := tx.Create(&rows).Error; err != nil {
			return nil, err
		}
	}
	return permissionNames(tx, userID)
}

func permissionNames(db *gorm.DB, userID uint) ([]string, error) {
	names := []string{}
	err := db.Model(&Permission{}).
		Joins("JOIN user_permissions ON user_permissions.permission_id = permissions.id").
		Where("user_permissions.user_id = ?", userID).
		Pluck("permissions.name", &names).Error
	if err != nil {
		return nil, err
	}
	sort.Strings(names)
	return names, nil
}

// afterSync runs once a user's permission set has committed.
func (l *LMS) afterSync(ctx context.Context, userID uint) {
	metrics().permissionSyncs.Inc()
	if err := l.invalidateCache(ctx, userID); err != nil {
		l.log.Warnw("failed to invalidate permission cache", "user_id", userID, "error", err)
	}
}
