package lms

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"
)

// CreateUser registers a learner, optionally inside a department.
func (l *LMS) CreateUser(ctx context.Context, in NewUser, actorID uint) (*User, error) {
	if err := Validate(in); err != nil {
		return nil, err
	}

	user := &User{Name: in.Name, Email: in.Email, DepartmentID: in.DepartmentID}
	err := l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if in.DepartmentID != nil {
			var dept Department
			if err := tx.First(&dept, *in.DepartmentID).Error; err != nil {
				return notFound(err, "department", *in.DepartmentID)
			}
		}
		if err := tx.Create(user).Error; err != nil {
			if isDuplicate(err) {
				return conflict("email %q is already registered", in.Email)
			}
			return err
		}
		return l.logAudit(tx, actorID, "create_user", "user", user.ID, "Created user: "+in.Email)
	})
	if err != nil {
		return nil, err
	}
	return user, nil
}

// GetUser retrieves a user by ID.
func (l *LMS) GetUser(ctx context.Context, id uint) (*User, error) {
	var user User
	if err := l.db.WithContext(ctx).First(&user, id).Error; err != nil {
		return nil, notFound(err, "user", id)
	}
	return &user, nil
}

// SetUserDepartment moves a user into a department, or out of all departments when deptID is nil.
func (l *LMS) SetUserDepartment(ctx context.Context, userID uint, deptID *uint, actorID uint) (*User, error) {
	var user User
	err := l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&user, userID).Error; err != nil {
			return notFound(err, "user", userID)
		}
		if deptID != nil {
			var dept Department
			if err := tx.First(&dept, *deptID).Error; err != nil {
				return notFound(err, "department", *deptID)
			}
		}
		if err := tx.Model(&user).Update("department_id", deptID).Error; err != nil {
			return err
		}
		details := "Removed user from department"
		if deptID != nil {
			details = fmt.Sprintf("Moved user to department %d", *deptID)
		}
		return l.logAudit(tx, actorID, "set_user_department", "user", userID, details)
	})
	if err != nil {
		return nil, err
	}
	user.DepartmentID = deptID
	return &user, nil
}

// SetDepartmentManager records who manages a department. A nil managerID clears it.
func (l *LMS) SetDepartmentManager(ctx context.Context, deptID uint, managerID *uint, actorID uint) (*Department, error) {
	var dept Department
	err := l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&dept, deptID).Error; err != nil {
			return notFound(err, "department", deptID)
		}
		if managerID != nil {
			var manager User
			if err := tx.First(&manager, *managerID).Error; err != nil {
				return notFound(err, "user", *managerID)
			}
		}
		if err := tx.Model(&dept).Update("manager_id", managerID).Error; err != nil {
			return err
		}
		return l.logAudit(tx, actorID, "set_department_manager", "department", deptID, "Changed department manager")
	})
	if err != nil {
		return nil, err
	}
	dept.ManagerID = managerID
	return &dept, nil
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}
