package lms

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Status is the lifecycle position of an enrollment.
type Status string

const (
	StatusEnrolled   Status = "enrolled"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusCertified  Status = "certified"
)

// statusOrder is the only legal progression. certified is terminal.
var statusOrder = []Status{StatusEnrolled, StatusInProgress, StatusCompleted, StatusCertified}

// rank returns the position of s in statusOrder, or -1 for unknown values.
func (s Status) rank() int {
	for i, st := range statusOrder {
		if st == s {
			return i
		}
	}
	return -1
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool { return s.rank() >= 0 }

// AtLeast reports whether s is at or beyond other in the lifecycle.
func (s Status) AtLeast(other Status) bool {
	return s.Valid() && s.rank() >= other.rank()
}

// ComplianceStatus is the compliance verdict of an enrollment.
type ComplianceStatus string

const (
	ComplianceCompliant       ComplianceStatus = "compliant"
	ComplianceNonCompliant    ComplianceStatus = "non_compliant"
	ComplianceStatusEscalated ComplianceStatus = "escalated"
)

// MaxEscalationLevel caps UserTraining.EscalationLevel.
const MaxEscalationLevel = 3

// Department is a node in the organizational forest.
type Department struct {
	ID        uint           `gorm:"primaryKey" json:"id"`
	Name      string         `gorm:"not null" json:"name"`
	ParentID  *uint          `gorm:"index" json:"parent_id"`
	Level     int            `gorm:"not null" json:"level"` // cached depth, root is 0
	ManagerID *uint          `gorm:"index" json:"manager_id"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

// Role groups permissions. Only active roles may be newly assigned.
type Role struct {
	ID          uint           `gorm:"primaryKey" json:"id"`
	Name        string         `gorm:"uniqueIndex;not null" json:"name"`
	Description string         `json:"description"`
	IsActive    bool           `gorm:"not null" json:"is_active"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
	DeletedAt   gorm.DeletedAt `gorm:"index" json:"-"`
}

// Permission represents a named access action.
type Permission struct {
	ID          uint           `gorm:"primaryKey" json:"id"`
	Name        string         `gorm:"uniqueIndex;not null" json:"name"`
	Description string         `json:"description"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
	DeletedAt   gorm.DeletedAt `gorm:"index" json:"-"`
}

// RolePermission maps roles to permissions.
type RolePermission struct {
	RoleID       uint `gorm:"primaryKey;autoIncrement:false"`
	PermissionID uint `gorm:"primaryKey;autoIncrement:false"`
	CreatedAt    time.Time
}

// UserRole maps a user to a role.
type UserRole struct {
	UserID    uint `gorm:"primaryKey;autoIncrement:false"`
	RoleID    uint `gorm:"primaryKey;autoIncrement:false"`
	CreatedAt time.Time
}

// UserPermission is one row of a user's materialized permission set.
// It is rewritten by SyncUserPermissions and never edited directly.
type UserPermission struct {
	UserID       uint `gorm:"primaryKey;autoIncrement:false"`
	PermissionID uint `gorm:"primaryKey;autoIncrement:false"`
	CreatedAt    time.Time
}

// Role permission history actions.
const (
	PermissionAttached = "attach"
	PermissionDetached = "detach"
)

// RolePermissionEvent records one attach or detach of a permission on a role.
type RolePermissionEvent struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	RoleID       uint      `gorm:"index;not null" json:"role_id"`
	PermissionID uint      `gorm:"not null" json:"permission_id"`
	Action       string    `gorm:"not null" json:"action"`
	ActorID      uint      `json:"actor_id"`
	CreatedAt    time.Time `json:"created_at"`
}

// User holds the fields of a learner the core cares about.
type User struct {
	ID           uint           `gorm:"primaryKey" json:"id"`
	Name         string         `gorm:"not null" json:"name"`
	Email        string         `gorm:"uniqueIndex;not null" json:"email"`
	DepartmentID *uint          `gorm:"index" json:"department_id"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
	DeletedAt    gorm.DeletedAt `gorm:"index" json:"-"`
}

// Module is a training program.
type Module struct {
	ID                   uint           `gorm:"primaryKey" json:"id"`
	Title                string         `gorm:"not null" json:"title"`
	PassingGrade         float64        `gorm:"not null" json:"passing_grade"`
	PrerequisiteModuleID *uint          `gorm:"index" json:"prerequisite_module_id"`
	ComplianceRequired   bool           `gorm:"not null" json:"compliance_required"`
	StartDate            *time.Time     `json:"start_date"`
	EndDate              *time.Time     `json:"end_date"`
	CreatedAt            time.Time      `json:"created_at"`
	UpdatedAt            time.Time      `json:"updated_at"`
	DeletedAt            gorm.DeletedAt `gorm:"index" json:"-"`
}

// UserTraining is a user's enrollment in one module.
type UserTraining struct {
	ID                  uint             `gorm:"primaryKey" json:"id"`
	UserID              uint             `gorm:"not null;uniqueIndex:idx_user_module" json:"user_id"`
	ModuleID            uint             `gorm:"not null;uniqueIndex:idx_user_module;index" json:"module_id"`
	Status              Status           `gorm:"type:varchar(20);not null;index" json:"status"`
	FinalScore          *float64         `json:"final_score"`
	PassingGrade        float64          `gorm:"not null" json:"passing_grade"`
	PrerequisitesMet    bool             `gorm:"not null" json:"prerequisites_met"`
	IsCertified         bool             `gorm:"not null" json:"is_certified"`
	CertificateIssuedAt *time.Time       `json:"certificate_issued_at"`
	ComplianceStatus    ComplianceStatus `gorm:"type:varchar(20);not null;index" json:"compliance_status"`
	EscalationLevel     int              `gorm:"not null" json:"escalation_level"`
	EscalatedAt         *time.Time       `json:"escalated_at"`
	Version             int              `gorm:"not null" json:"version"`
	CreatedAt           time.Time        `json:"created_at"`
	UpdatedAt           time.Time        `json:"updated_at"`
}

// Passed reports whether a final score is recorded and meets the passing grade.
func (ut UserTraining) Passed() bool {
	return ut.FinalScore != nil && *ut.FinalScore >= ut.PassingGrade
}

// StateTransition is one entry of an enrollment's state history.
type StateTransition struct {
	ID             uint      `gorm:"primaryKey" json:"id"`
	UserTrainingID uint      `gorm:"index;not null" json:"user_training_id"`
	FromStatus     Status    `gorm:"type:varchar(20)" json:"from_status"`
	ToStatus       Status    `gorm:"type:varchar(20);not null" json:"to_status"`
	ActorID        uint      `json:"actor_id"`
	CreatedAt      time.Time `json:"created_at"`
}

// Compliance audit actions.
const (
	ComplianceActionEscalation = "escalation"
	ComplianceActionResolution = "resolution"
)

// ComplianceAuditLog is an append-only record of a compliance state change.
type ComplianceAuditLog struct {
	ID             uint           `gorm:"primaryKey" json:"id"`
	UserTrainingID uint           `gorm:"index;not null" json:"user_training_id"`
	Action         string         `gorm:"not null" json:"action"`
	OldValue       string         `json:"old_value"`
	NewValue       string         `json:"new_value"`
	Reason         string         `json:"reason"`
	TriggeredBy    uint           `json:"triggered_by"` // 0 is the system
	Metadata       datatypes.JSON `json:"metadata,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
}

// AuditLog tracks administrative actions on departments, roles and permissions.
type AuditLog struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	ActorID    uint      `gorm:"index;not null" json:"actor_id"`
	Action     string    `gorm:"not null" json:"action"`
	TargetType string    `gorm:"not null" json:"target_type"`
	TargetID   uint      `gorm:"index;not null" json:"target_id"`
	Details    string    `json:"details"`
	CreatedAt  time.Time `json:"created_at"`
}

// PointTransaction is one entry in the rewards ledger.
type PointTransaction struct {
	ID             uint      `gorm:"primaryKey" json:"id"`
	UserID         uint      `gorm:"index;not null" json:"user_id"`
	UserTrainingID uint      `gorm:"not null;uniqueIndex:idx_points_reason" json:"user_training_id"`
	Reason         string    `gorm:"not null;uniqueIndex:idx_points_reason" json:"reason"`
	Points         int       `gorm:"not null" json:"points"`
	CreatedAt      time.Time `json:"created_at"`
}

// allModels lists every table the library owns, in creation order.
func allModels() []interface{} {
	return []interface{}{
		&Department{}, &Role{}, &Permission{}, &RolePermission{}, &UserRole{},
		&UserPermission{}, &RolePermissionEvent{}, &User{}, &Module{}, &UserTraining{},
		&StateTransition{}, &ComplianceAuditLog{}, &AuditLog{}, &PointTransaction{},
	}
}
