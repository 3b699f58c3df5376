package lms

import (
	"context"
	"fmt"

	"gorm.io/gorm"
)

// CreateRole creates a new active role.
func (l *LMS) CreateRole(ctx context.Context, in NewRole, actorID uint) (*Role, error) {
	if err := Validate(in); err != nil {
		return nil, err
	}

	role := &Role{Name: in.Name, Description: in.Description, IsActive: true}
	err := l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(role).Error; err != nil {
			if isDuplicate(err) {
				return conflict("role %q already exists", in.Name)
			}
			return err
		}
		return l.logAudit(tx, actorID, "create_role", "role", role.ID, "Created role: "+in.Name)
	})
	if err != nil {
		return nil, err
	}
	return role, nil
}

// GetRole retrieves a role by ID.
func (l *LMS) GetRole(ctx context.Context, id uint) (*Role, error) {
	if id == 0 {
		return nil, ErrInvalidInput
	}

	var role Role
	if err := l.db.WithContext(ctx).First(&role, id).Error; err != nil {
		return nil, notFound(err, "role", id)
	}
	return &role, nil
}

// ListRoles retrieves all roles, optionally only the active ones.
func (l *LMS) ListRoles(ctx context.Context, activeOnly bool) ([]Role, error) {
	var roles []Role
	query := l.db.WithContext(ctx).Order("name ASC")
	if activeOnly {
		query = query.Where("is_active = ?", true)
	}
	if err := query.Find(&roles).Error; err != nil {
		return nil, err
	}
	return roles, nil
}

// SetRoleActive activates or deactivates a role. Deactivation only blocks new
// assignments; current holders keep the role and its permissions.
func (l *LMS) SetRoleActive(ctx context.Context, id uint, active bool, actorID uint) (*Role, error) {
	var role Role
	err := l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&role, id).Error; err != nil {
			return notFound(err, "role", id)
		}
		if err := tx.Model(&role).Update("is_active", active).Error; err != nil {
			return err
		}
		return l.logAudit(tx, actorID, "set_role_active", "role", id, fmt.Sprintf("Set role active=%t", active))
	})
	if err != nil {
		return nil, err
	}
	role.IsActive = active
	return &role, nil
}
