package lms

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// DefaultEscalationTargets labels each escalation level, index 0 being "not escalated".
var DefaultEscalationTargets = []string{"none", "manager", "department_head", "compliance_officer"}

// EscalationPolicy maps escalation levels to the organizational target they notify.
type EscalationPolicy struct {
	targets []string
}

// NewEscalationPolicy builds a policy from one label per level 0 through MaxEscalationLevel.
// An empty slice selects DefaultEscalationTargets.
func NewEscalationPolicy(targets []string) (EscalationPolicy, error) {
	if len(targets) == 0 {
		targets = DefaultEscalationTargets
	}
	if len(targets) != MaxEscalationLevel+1 {
		return EscalationPolicy{}, fmt.Errorf("%w: escalation policy needs %d targets, got %d",
			ErrInvalidInput, MaxEscalationLevel+1, len(targets))
	}
	for i, t := range targets {
		if t == "" {
			return EscalationPolicy{}, fmt.Errorf("%w: escalation target %d is empty", ErrInvalidInput, i)
		}
	}
	return EscalationPolicy{targets: append([]string(nil), targets...)}, nil
}

// Target returns the label of a level, clamped to the valid range.
func (p EscalationPolicy) Target(level int) string {
	if level < 0 {
		level = 0
	}
	if level > MaxEscalationLevel {
		level = MaxEscalationLevel
	}
	return p.targets[level]
}

// Compliance trigger reasons.
const (
	ReasonOverdue         = "overdue"
	ReasonFailed          = "failed"
	ReasonRequirementsMet = "requirements met"
)

// ComplianceResult describes what CheckAndEscalateCompliance did.
type ComplianceResult struct {
	EnrollmentID uint             `json:"enrollment_id"`
	Applicable   bool             `json:"applicable"` // false when the module is not compliance-required
	Status       ComplianceStatus `json:"status"`
	Level        int              `json:"level"`
	Reason       string           `json:"reason,omitempty"`
	Escalated    bool             `json:"escalated"`
	Resolved     bool             `json:"resolved"`
}

// ComplianceSummary aggregates enrollments by compliance status.
type ComplianceSummary struct {
	Total        int64 `json:"total"`
	Compliant    int64 `json:"compliant"`
	NonCompliant int64 `json:"non_compliant"`
	Escalated    int64 `json:"escalated"`
}

// CheckAndEscalateCompliance evaluates an enrollment of a compliance-required module.
// Compliant enrollments are resolved if they were previously non-compliant. An overdue
// or failed enrollment is marked non-compliant and escalated one more level.
func (l *LMS) CheckAndEscalateCompliance(ctx context.Context, enrollmentID, actorID uint) (*ComplianceResult, error) {
	result := &ComplianceResult{EnrollmentID: enrollmentID}
	var ut UserTraining
	err := l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&ut, enrollmentID).Error; err != nil {
			return notFound(err, "enrollment", enrollmentID)
		}
		var module Module
		if err := tx.First(&module, ut.ModuleID).Error; err != nil {
			return notFound(err, "module", ut.ModuleID)
		}
		if !module.ComplianceRequired {
			return nil
		}
		result.Applicable = true

		if isCompliant(ut) {
			if ut.ComplianceStatus != ComplianceCompliant || ut.EscalationLevel != 0 {
				result.Resolved = true
				result.Reason = ReasonRequirementsMet
				return l.resolve(tx, &ut, ReasonRequirementsMet, actorID)
			}
			return nil
		}

		if reason := complianceTrigger(ut, module, l.now()); reason != "" {
			result.Escalated = true
			result.Reason = reason
			return l.escalate(tx, &ut, reason, actorID)
		}

		// Nothing is wrong yet. Prior non-compliance stays until explicitly resolved.
		if ut.ComplianceStatus == ComplianceCompliant && ut.EscalationLevel != 0 {
			return l.casUpdate(tx, &ut, map[string]interface{}{"escalation_level": 0, "escalated_at": nil})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	result.Status = ut.ComplianceStatus
	result.Level = ut.EscalationLevel
	if result.Escalated {
		l.afterEscalation(ctx, ut, result.Reason, actorID)
	}
	if result.Resolved {
		l.log.Infow("compliance resolved", "enrollment_id", ut.ID, "actor_id", actorID)
	}
	return result, nil
}

// EscalateNonCompliance raises an enrollment one escalation level, clamped at
// MaxEscalationLevel. An audit row is written even when the level is already at the cap.
func (l *LMS) EscalateNonCompliance(ctx context.Context, enrollmentID uint, reason string, actorID uint) (*UserTraining, error) {
	var ut UserTraining
	err := l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&ut, enrollmentID).Error; err != nil {
			return notFound(err, "enrollment", enrollmentID)
		}
		return l.escalate(tx, &ut, reason, actorID)
	})
	if err != nil {
		return nil, err
	}

	l.afterEscalation(ctx, ut, reason, actorID)
	return &ut, nil
}

// ResolveNonCompliance marks an enrollment compliant and resets its escalation.
func (l *LMS) ResolveNonCompliance(ctx context.Context, enrollmentID uint, reason string, actorID uint) (*UserTraining, error) {
	var ut UserTraining
	err := l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&ut, enrollmentID).Error; err != nil {
			return notFound(err, "enrollment", enrollmentID)
		}
		return l.resolve(tx, &ut, reason, actorID)
	})
	if err != nil {
		return nil, err
	}

	l.log.Infow("compliance resolved", "enrollment_id", ut.ID, "reason", reason, "actor_id", actorID)
	return &ut, nil
}

// GetNonCompliantUsers returns the enrollments of a module that are non_compliant
// or escalated.
func (l *LMS) GetNonCompliantUsers(ctx context.Context, moduleID uint) ([]UserTraining, error) {
	db := l.db.WithContext(ctx)
	var module Module
	if err := db.First(&module, moduleID).Error; err != nil {
		return nil, notFound(err, "module", moduleID)
	}

	uts := []UserTraining{}
	err := db.Where("module_id = ? AND compliance_status IN ?", moduleID,
		[]ComplianceStatus{ComplianceNonCompliant, ComplianceStatusEscalated}).
		Order("id ASC").Find(&uts).Error
	if err != nil {
		return nil, err
	}
	return uts, nil
}

// GetAtRiskUsers returns unfinished enrollments of a module whose deadline falls
// within the next days days.
func (l *LMS) GetAtRiskUsers(ctx context.Context, moduleID uint, days int) ([]UserTraining, error) {
	if err := validateVar("days", days, "gte=0"); err != nil {
		return nil, err
	}

	db := l.db.WithContext(ctx)
	var module Module
	if err := db.First(&module, moduleID).Error; err != nil {
		return nil, notFound(err, "module", moduleID)
	}

	uts := []UserTraining{}
	now := l.now()
	if module.EndDate == nil {
		return uts, nil
	}
	end := module.EndDate.UTC()
	if end.Before(now) || end.After(now.Add(time.Duration(days)*24*time.Hour)) {
		return uts, nil
	}

	err := db.Where("module_id = ? AND status IN ?", moduleID, []Status{StatusEnrolled, StatusInProgress}).
		Order("id ASC").Find(&uts).Error
	if err != nil {
		return nil, err
	}
	return uts, nil
}

// GetComplianceSummary counts all enrollments by compliance status.
func (l *LMS) GetComplianceSummary(ctx context.Context) (*ComplianceSummary, error) {
	var rows []struct {
		ComplianceStatus ComplianceStatus
		Count            int64
	}
	err := l.db.WithContext(ctx).Model(&UserTraining{}).
		Select("compliance_status, COUNT(*) AS count").
		Group("compliance_status").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	summary := &ComplianceSummary{}
	for _, r := range rows {
		summary.Total += r.Count
		switch r.ComplianceStatus {
		case ComplianceCompliant:
			summary.Compliant = r.Count
		case ComplianceNonCompliant:
			summary.NonCompliant = r.Count
		case ComplianceStatusEscalated:
			summary.Escalated = r.Count
		}
	}
	return summary, nil
}

// ListComplianceAuditLogs returns the compliance audit trail of an enrollment, oldest first.
func (l *LMS) ListComplianceAuditLogs(ctx context.Context, enrollmentID uint) ([]ComplianceAuditLog, error) {
	logs := []ComplianceAuditLog{}
	err := l.db.WithContext(ctx).Where("user_training_id = ?", enrollmentID).
		Order("created_at ASC, id ASC").Find(&logs).Error
	if err != nil {
		return nil, err
	}
	return logs, nil
}

func isCompliant(ut UserTraining) bool {
	return ut.IsCertified || ut.Status == StatusCertified || (ut.Status == StatusCompleted && ut.Passed())
}

// complianceTrigger returns why an enrollment is non-compliant, or "".
// A completed enrollment without a recorded score counts as failed.
func complianceTrigger(ut UserTraining, module Module, now time.Time) string {
	if module.EndDate != nil && module.EndDate.Before(now) && !ut.Status.AtLeast(StatusCompleted) {
		return ReasonOverdue
	}
	if ut.Status == StatusCompleted && !ut.Passed() {
		return ReasonFailed
	}
	return ""
}

func (l *LMS) escalate(tx *gorm.DB, ut *UserTraining, reason string, actorID uint) error {
	from := ut.EscalationLevel
	to := from + 1
	if to > MaxEscalationLevel {
		to = MaxEscalationLevel
	}
	status := ComplianceNonCompliant
	if to == MaxEscalationLevel {
		status = ComplianceStatusEscalated
	}

	now := l.now()
	if err := l.casUpdate(tx, ut, map[string]interface{}{
		"compliance_status": status,
		"escalation_level":  to,
		"escalated_at":      now,
	}); err != nil {
		return err
	}

	meta, err := json.Marshal(map[string]interface{}{
		"level_before": from,
		"level_after":  to,
		"capped":       from == MaxEscalationLevel,
	})
	if err != nil {
		return err
	}
	return tx.Create(&ComplianceAuditLog{
		UserTrainingID: ut.ID,
		Action:         ComplianceActionEscalation,
		OldValue:       l.escalation.Target(from),
		NewValue:       l.escalation.Target(to),
		Reason:         reason,
		TriggeredBy:    actorID,
		Metadata:       datatypes.JSON(meta),
		CreatedAt:      now,
	}).Error
}

func (l *LMS) resolve(tx *gorm.DB, ut *UserTraining, reason string, actorID uint) error {
	old := ut.ComplianceStatus
	if err := l.casUpdate(tx, ut, map[string]interface{}{
		"compliance_status": ComplianceCompliant,
		"escalation_level":  0,
		"escalated_at":      nil,
	}); err != nil {
		return err
	}
	return tx.Create(&ComplianceAuditLog{
		UserTrainingID: ut.ID,
		Action:         ComplianceActionResolution,
		OldValue:       string(old),
		NewValue:       string(ComplianceCompliant),
		Reason:         reason,
		TriggeredBy:    actorID,
		CreatedAt:      l.now(),
	}).Error
}

func (l *LMS) afterEscalation(ctx context.Context, ut UserTraining, reason string, actorID uint) {
	metrics().escalations.WithLabelValues(strconv.Itoa(ut.EscalationLevel)).Inc()
	l.log.Warnw("compliance escalated",
		"enrollment_id", ut.ID, "user_id", ut.UserID, "level", ut.EscalationLevel,
		"target", l.escalation.Target(ut.EscalationLevel), "reason", reason, "actor_id", actorID)
	l.events.Publish(ctx, ComplianceEscalated{
		EnrollmentID: ut.ID,
		UserID:       ut.UserID,
		ModuleID:     ut.ModuleID,
		Level:        ut.EscalationLevel,
		Target:       l.escalation.Target(ut.EscalationLevel),
		Reason:       reason,
		ActorID:      actorID,
		OccurredAt:   l.now(),
	})
}
