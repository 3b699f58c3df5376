package lms

import (
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"
)

// Custom errors
var (
	ErrInvalidInput     = errors.New("invalid input")
	ErrNotFound         = errors.New("resource not found")
	ErrConflict         = errors.New("conflict")
	ErrInvalidOperation = errors.New("invalid operation")
	ErrPermissionDenied = errors.New("permission denied")

	// ErrHierarchyCorrupt means the department parent pointers contain a cycle.
	ErrHierarchyCorrupt = errors.New("department hierarchy contains a cycle")

	// ErrConcurrentModification is returned when an enrollment changed between read and write.
	ErrConcurrentModification = fmt.Errorf("%w: enrollment was modified concurrently", ErrConflict)
)

// PrerequisiteError lists the prerequisite modules a user has not completed.
type PrerequisiteError struct {
	ModuleID uint
	Missing  []uint
}

func (e *PrerequisiteError) Error() string {
	ids := make([]string, len(e.Missing))
	for i, id := range e.Missing {
		ids[i] = fmt.Sprint(id)
	}
	return fmt.Sprintf("prerequisites not met for module %d: missing [%s]", e.ModuleID, strings.Join(ids, ", "))
}

func (e *PrerequisiteError) Unwrap() error { return ErrInvalidOperation }

// notFound maps gorm's record-not-found to ErrNotFound and wraps anything else.
func notFound(err error, what string, id uint) error {
	if isNotFound(err) {
		return fmt.Errorf("%s %d: %w", what, id, ErrNotFound)
	}
	return fmt.Errorf("failed to load %s %d: %w", what, id, err)
}

func isNotFound(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound)
}

// invalidOp builds an ErrInvalidOperation with a readable reason.
func invalidOp(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrInvalidOperation, fmt.Sprintf(format, args...))
}

// conflict builds an ErrConflict with a readable reason.
func conflict(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrConflict, fmt.Sprintf(format, args...))
}

// isDuplicate reports whether err is a unique-constraint violation.
func isDuplicate(err error) bool {
	return errors.Is(err, gorm.ErrDuplicatedKey)
}
