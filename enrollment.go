package lms

import (
	"context"
	"fmt"

	"gorm.io/gorm"
)

// PrerequisiteCheck is the outcome of CheckPrerequisites.
type PrerequisiteCheck struct {
	Met     bool   `json:"met"`
	Missing []uint `json:"missing"`
}

// Enroll creates a user's enrollment in a module. It fails with ErrConflict when the
// enrollment exists and with a *PrerequisiteError when a prerequisite is not completed.
func (l *LMS) Enroll(ctx context.Context, userID, moduleID, actorID uint) (*UserTraining, error) {
	var ut UserTraining
	err := l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var user User
		if err := tx.First(&user, userID).Error; err != nil {
			return notFound(err, "user", userID)
		}
		var module Module
		if err := tx.First(&module, moduleID).Error; err != nil {
			return notFound(err, "module", moduleID)
		}

		var count int64
		if err := tx.Model(&UserTraining{}).Where("user_id = ? AND module_id = ?", userID, moduleID).Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return conflict("user %d is already enrolled in module %d", userID, moduleID)
		}

		check, err := checkPrerequisites(tx, userID, module)
		if err != nil {
			return err
		}
		if !check.Met {
			return &PrerequisiteError{ModuleID: moduleID, Missing: check.Missing}
		}

		now := l.now()
		ut = UserTraining{
			UserID:           userID,
			ModuleID:         moduleID,
			Status:           StatusEnrolled,
			PassingGrade:     module.PassingGrade,
			PrerequisitesMet: true,
			ComplianceStatus: ComplianceCompliant,
			Version:          1,
			CreatedAt:        now,
			UpdatedAt:        now,
		}
		if err := tx.Create(&ut).Error; err != nil {
			if isDuplicate(err) {
				return conflict("user %d is already enrolled in module %d", userID, moduleID)
			}
			return err
		}
		return l.appendTransition(tx, ut.ID, "", StatusEnrolled, actorID)
	})
	if err != nil {
		return nil, err
	}

	metrics().transitions.WithLabelValues(string(StatusEnrolled)).Inc()
	l.log.Infow("user enrolled", "enrollment_id", ut.ID, "user_id", userID, "module_id", moduleID, "actor_id", actorID)
	return &ut, nil
}

// CheckPrerequisites reports whether the user completed the module's prerequisite.
func (l *LMS) CheckPrerequisites(ctx context.Context, userID, moduleID uint) (*PrerequisiteCheck, error) {
	db := l.db.WithContext(ctx)
	var module Module
	if err := db.First(&module, moduleID).Error; err != nil {
		return nil, notFound(err, "module", moduleID)
	}
	return checkPrerequisites(db, userID, module)
}

func checkPrerequisites(db *gorm.DB, userID uint, module Module) (*PrerequisiteCheck, error) {
	check := &PrerequisiteCheck{Met: true, Missing: []uint{}}
	if module.PrerequisiteModuleID == nil {
		return check, nil
	}

	var count int64
	err := db.Model(&UserTraining{}).
		Where("user_id = ? AND module_id = ? AND status IN ?", userID, *module.PrerequisiteModuleID,
			[]Status{StatusCompleted, StatusCertified}).
		Count(&count).Error
	if err != nil {
		return nil, err
	}
	if count == 0 {
		check.Met = false
		check.Missing = append(check.Missing, *module.PrerequisiteModuleID)
	}
	return check, nil
}

// TransitionState moves an enrollment to the immediate next status. Anything else,
// including any move out of certified, fails with ErrInvalidOperation and changes nothing.
// Moving to certified also requires an issued certificate.
func (l *LMS) TransitionState(ctx context.Context, enrollmentID uint, next Status, actorID uint) (*UserTraining, error) {
	if !next.Valid() {
		return nil, fmt.Errorf("%w: unknown status %q", ErrInvalidInput, next)
	}

	var ut UserTraining
	var from Status
	err := l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&ut, enrollmentID).Error; err != nil {
			return notFound(err, "enrollment", enrollmentID)
		}
		from = ut.Status
		if from == StatusCertified {
			return invalidOp("enrollment %d is certified, no further transitions are allowed", enrollmentID)
		}
		if next.rank() != from.rank()+1 {
			return invalidOp("cannot transition enrollment %d from %s to %s", enrollmentID, from, next)
		}
		if next == StatusCertified && !ut.IsCertified {
			return invalidOp("enrollment %d has no issued certificate", enrollmentID)
		}

		if err := l.casUpdate(tx, &ut, map[string]interface{}{"status": next}); err != nil {
			return err
		}
		return l.appendTransition(tx, ut.ID, from, next, actorID)
	})
	if err != nil {
		return nil, err
	}

	metrics().transitions.WithLabelValues(string(next)).Inc()
	l.log.Infow("enrollment transitioned", "enrollment_id", ut.ID, "from", from, "to", next, "actor_id", actorID)

	if next == StatusCompleted {
		l.events.Publish(ctx, TrainingCompleted{
			EnrollmentID: ut.ID,
			UserID:       ut.UserID,
			ModuleID:     ut.ModuleID,
			ActorID:      actorID,
			OccurredAt:   l.now(),
		})
	}
	return &ut, nil
}

// IssueCertificate marks a completed, passed enrollment as certified. It does not
// change the status; moving to certified is a separate TransitionState call.
func (l *LMS) IssueCertificate(ctx context.Context, enrollmentID, actorID uint) (*UserTraining, error) {
	var ut UserTraining
	err := l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&ut, enrollmentID).Error; err != nil {
			return notFound(err, "enrollment", enrollmentID)
		}
		if ut.Status != StatusCompleted {
			return invalidOp("enrollment %d is %s, a certificate requires completed", enrollmentID, ut.Status)
		}
		if ut.IsCertified {
			return conflict("certificate for enrollment %d was already issued", enrollmentID)
		}
		if !ut.Passed() {
			return invalidOp("enrollment %d has no passing final score", enrollmentID)
		}
		if !ut.PrerequisitesMet {
			return invalidOp("enrollment %d does not meet its prerequisites", enrollmentID)
		}

		now := l.now()
		if err := l.casUpdate(tx, &ut, map[string]interface{}{"is_certified": true, "certificate_issued_at": now}); err != nil {
			return err
		}
		return l.logAudit(tx, actorID, "issue_certificate", "enrollment", ut.ID, "Issued certificate")
	})
	if err != nil {
		return nil, err
	}

	l.log.Infow("certificate issued", "enrollment_id", ut.ID, "user_id", ut.UserID, "actor_id", actorID)
	return &ut, nil
}

// RecordFinalScore stores the graded final score of an enrollment.
// ExamPassed is published when the score meets the passing grade.
func (l *LMS) RecordFinalScore(ctx context.Context, enrollmentID uint, score float64, actorID uint) (*UserTraining, error) {
	if err := validateVar("score", score, "gte=0,lte=100"); err != nil {
		return nil, err
	}

	var ut UserTraining
	err := l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&ut, enrollmentID).Error; err != nil {
			return notFound(err, "enrollment", enrollmentID)
		}
		if ut.IsCertified || ut.Status == StatusCertified {
			return invalidOp("enrollment %d is certified, its score is final", enrollmentID)
		}
		if err := l.casUpdate(tx, &ut, map[string]interface{}{"final_score": score}); err != nil {
			return err
		}
		return l.logAudit(tx, actorID, "record_final_score", "enrollment", ut.ID, fmt.Sprintf("Recorded final score %.2f", score))
	})
	if err != nil {
		return nil, err
	}

	l.log.Infow("final score recorded", "enrollment_id", ut.ID, "score", score, "passed", ut.Passed())
	if ut.Passed() {
		l.events.Publish(ctx, ExamPassed{
			EnrollmentID: ut.ID,
			UserID:       ut.UserID,
			ModuleID:     ut.ModuleID,
			Score:        score,
			ActorID:      actorID,
			OccurredAt:   l.now(),
		})
	}
	return &ut, nil
}

// GetEnrollment retrieves an enrollment by ID.
func (l *LMS) GetEnrollment(ctx context.Context, id uint) (*UserTraining, error) {
	var ut UserTraining
	if err := l.db.WithContext(ctx).First(&ut, id).Error; err != nil {
		return nil, notFound(err, "enrollment", id)
	}
	return &ut, nil
}

// FindEnrollment retrieves the enrollment of a user in a module.
func (l *LMS) FindEnrollment(ctx context.Context, userID, moduleID uint) (*UserTraining, error) {
	var ut UserTraining
	err := l.db.WithContext(ctx).Where("user_id = ? AND module_id = ?", userID, moduleID).First(&ut).Error
	if err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("enrollment of user %d in module %d: %w", userID, moduleID, ErrNotFound)
		}
		return nil, err
	}
	return &ut, nil
}

// ListUserEnrollments retrieves every enrollment of a user.
func (l *LMS) ListUserEnrollments(ctx context.Context, userID uint) ([]UserTraining, error) {
	var uts []UserTraining
	if err := l.db.WithContext(ctx).Where("user_id = ?", userID).Order("id ASC").Find(&uts).Error; err != nil {
		return nil, err
	}
	return uts, nil
}

// GetStateHistory returns an enrollment's transitions, oldest first.
func (l *LMS) GetStateHistory(ctx context.Context, enrollmentID uint) ([]StateTransition, error) {
	db := l.db.WithContext(ctx)
	var ut UserTraining
	if err := db.First(&ut, enrollmentID).Error; err != nil {
		return nil, notFound(err, "enrollment", enrollmentID)
	}

	var history []StateTransition
	if err := db.Where("user_training_id = ?", enrollmentID).Order("created_at ASC, id ASC").Find(&history).Error; err != nil {
		return nil, err
	}
	return history, nil
}

func (l *LMS) appendTransition(tx *gorm.DB, enrollmentID uint, from, to Status, actorID uint) error {
	return tx.Create(&StateTransition{
		UserTrainingID: enrollmentID,
		FromStatus:     from,
		ToStatus:       to,
		ActorID:        actorID,
		CreatedAt:      l.now(),
	}).Error
}

// casUpdate applies changes only if the row still carries the version ut was read at,
// then reloads ut. A lost race yields ErrConcurrentModification.
func (l *LMS) casUpdate(tx *gorm.DB, ut *UserTraining, changes map[string]interface{}) error {
	changes["version"] = ut.Version + 1
	changes["updated_at"] = l.now()

	res := tx.Model(&UserTraining{}).Where("id = ? AND version = ?", ut.ID, ut.Version).Updates(changes)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrConcurrentModification
	}
	// Scanning into ut would keep stale values for columns that became NULL.
	var fresh UserTraining
	if err := tx.First(&fresh, ut.ID).Error; err != nil {
		return err
	}
	*ut = fresh
	return nil
}
