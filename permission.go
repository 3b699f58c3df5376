package lms

import (
	"context"
	"fmt"

	"gorm.io/gorm"
)

// CreatePermission creates a new permission.
func (l *LMS) CreatePermission(ctx context.Context, in NewPermission, actorID uint) (*Permission, error) {
	if err := Validate(in); err != nil {
		return nil, err
	}

	perm := &Permission{Name: in.Name, Description: in.Description}
	err := l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(perm).Error; err != nil {
			if isDuplicate(err) {
				return conflict("permission %q already exists", in.Name)
			}
			return err
		}
		return l.logAudit(tx, actorID, "create_permission", "permission", perm.ID, "Created permission: "+in.Name)
	})
	if err != nil {
		return nil, err
	}
	return perm, nil
}

// GetPermission retrieves a permission by ID.
func (l *LMS) GetPermission(ctx context.Context, id uint) (*Permission, error) {
	if id == 0 {
		return nil, ErrInvalidInput
	}

	var perm Permission
	if err := l.db.WithContext(ctx).First(&perm, id).Error; err != nil {
		return nil, notFound(err, "permission", id)
	}
	return &perm, nil
}

// ListPermissions retrieves all permissions.
func (l *LMS) ListPermissions(ctx context.Context) ([]Permission, error) {
	var perms []Permission
	if err := l.db.WithContext(ctx).Order("name ASC").Find(&perms).Error; err != nil {
		return nil, err
	}
	return perms, nil
}

// AddPermissionToRole grants a permission to a role and propagates it to every holder.
// The edge commits before any holder is re-synced.
func (l *LMS) AddPermissionToRole(ctx context.Context, roleID, permID, actorID uint) (*PropagationResult, error) {
	err := l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := l.loadRoleAndPermission(tx, roleID, permID); err != nil {
			return err
		}

		var count int64
		if err := tx.Model(&RolePermission{}).Where("role_id = ? AND permission_id = ?", roleID, permID).Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return conflict("role %d already has permission %d", roleID, permID)
		}

		if err := tx.Create(&RolePermission{RoleID: roleID, PermissionID: permID, CreatedAt: l.now()}).Error; err != nil {
			if isDuplicate(err) {
				return conflict("role %d already has permission %d", roleID, permID)
			}
			return err
		}
		return l.recordPermissionEvent(tx, roleID, permID, PermissionAttached, actorID)
	})
	if err != nil {
		return nil, err
	}

	l.log.Infow("permission attached to role", "role_id", roleID, "permission_id", permID, "actor_id", actorID)
	return l.propagate(ctx, roleID)
}

// RemovePermissionFromRole revokes a permission from a role and re-syncs every holder.
// Holders keep the permission when another of their roles grants it.
func (l *LMS) RemovePermissionFromRole(ctx context.Context, roleID, permID, actorID uint) (*PropagationResult, error) {
	err := l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := l.loadRoleAndPermission(tx, roleID, permID); err != nil {
			return err
		}

		res := tx.Where("role_id = ? AND permission_id = ?", roleID, permID).Delete(&RolePermission{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("role %d does not have permission %d: %w", roleID, permID, ErrNotFound)
		}
		return l.recordPermissionEvent(tx, roleID, permID, PermissionDetached, actorID)
	})
	if err != nil {
		return nil, err
	}

	l.log.Infow("permission detached from role", "role_id", roleID, "permission_id", permID, "actor_id", actorID)
	return l.propagate(ctx, roleID)
}

// GetRolePermissions returns the permissions currently granted to a role.
func (l *LMS) GetRolePermissions(ctx context.Context, roleID uint) ([]Permission, error) {
	db := l.db.WithContext(ctx)
	var role Role
	if err := db.First(&role, roleID).Error; err != nil {
		return nil, notFound(err, "role", roleID)
	}

	var perms []Permission
	err := db.Joins("JOIN role_permissions ON role_permissions.permission_id = permissions.id").
		Where("role_permissions.role_id = ?", roleID).
		Order("permissions.name ASC").
		Find(&perms).Error
	if err != nil {
		return nil, err
	}
	return perms, nil
}

// GetRolePermissionHistory returns the attach/detach events of a role, oldest first.
func (l *LMS) GetRolePermissionHistory(ctx context.Context, roleID uint) ([]RolePermissionEvent, error) {
	db := l.db.WithContext(ctx)
	var role Role
	if err := db.Unscoped().First(&role, roleID).Error; err != nil {
		return nil, notFound(err, "role", roleID)
	}

	var events []RolePermissionEvent
	if err := db.Where("role_id = ?", roleID).Order("created_at ASC, id ASC").Find(&events).Error; err != nil {
		return nil, err
	}
	return events, nil
}

func (l *LMS) loadRoleAndPermission(tx *gorm.DB, roleID, permID uint) error {
	var role Role
	if err := tx.First(&role, roleID).Error; err != nil {
		return notFound(err, "role", roleID)
	}
	var perm Permission
	if err := tx.First(&perm, permID).Error; err != nil {
		return notFound(err, "permission", permID)
	}
	return nil
}

func (l *LMS) recordPermissionEvent(tx *gorm.DB, roleID, permID uint, action string, actorID uint) error {
	event := &RolePermissionEvent{
		RoleID:       roleID,
		PermissionID: permID,
		Action:       action,
		ActorID:      actorID,
		CreatedAt:    l.now(),
	}
	if err := tx.Create(event).Error; err != nil {
		return err
	}
	return l.logAudit(tx, actorID, action+"_permission", "role", roleID, fmt.Sprintf("%s permission %d", action, permID))
}
