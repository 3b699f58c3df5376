package lms

import (
	"context"

	"gorm.io/gorm"
)

// CreateModule creates a training module. A prerequisite must already exist.
func (l *LMS) CreateModule(ctx context.Context, in NewModule, actorID uint) (*Module, error) {
	if err := Validate(in); err != nil {
		return nil, err
	}

	m := &Module{
		Title:                in.Title,
		PassingGrade:         in.PassingGrade,
		PrerequisiteModuleID: in.PrerequisiteModuleID,
		ComplianceRequired:   in.ComplianceRequired,
		StartDate:            utcPtr(in.StartDate),
		EndDate:              utcPtr(in.EndDate),
	}
	err := l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if in.PrerequisiteModuleID != nil {
			var prereq Module
			if err := tx.First(&prereq, *in.PrerequisiteModuleID).Error; err != nil {
				return notFound(err, "prerequisite module", *in.PrerequisiteModuleID)
			}
		}
		if err := tx.Create(m).Error; err != nil {
			return err
		}
		return l.logAudit(tx, actorID, "create_module", "module", m.ID, "Created module: "+in.Title)
	})
	if err != nil {
		return nil, err
	}
	return m, nil
}

// GetModule retrieves a module by ID.
func (l *LMS) GetModule(ctx context.Context, id uint) (*Module, error) {
	var m Module
	if err := l.db.WithContext(ctx).First(&m, id).Error; err != nil {
		return nil, notFound(err, "module", id)
	}
	return &m, nil
}

// ListModules retrieves all modules ordered by title.
func (l *LMS) ListModules(ctx context.Context) ([]Module, error) {
	var modules []Module
	if err := l.db.WithContext(ctx).Order("title ASC, id ASC").Find(&modules).Error; err != nil {
		return nil, err
	}
	return modules, nil
}
