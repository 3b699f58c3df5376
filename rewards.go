package lms

import (
	"context"
	"fmt"
)

// Points awarded by the rewards ledger.
const (
	PointsExamPassed        = 50
	PointsTrainingCompleted = 100
)

// Ledger reasons.
const (
	RewardExamPassed        = "exam_passed"
	RewardTrainingCompleted = "training_completed"
)

// RegisterRewardListeners subscribes the points ledger to ExamPassed and TrainingCompleted.
func (l *LMS) RegisterRewardListeners(bus *EventBus) {
	bus.Subscribe(TopicExamPassed, func(ctx context.Context, e Event) error {
		ev, ok := e.(ExamPassed)
		if !ok {
			return fmt.Errorf("unexpected event %T", e)
		}
		return l.AwardPoints(ctx, ev.UserID, ev.EnrollmentID, RewardExamPassed, PointsExamPassed)
	})
	bus.Subscribe(TopicTrainingCompleted, func(ctx context.Context, e Event) error {
		ev, ok := e.(TrainingCompleted)
		if !ok {
			return fmt.Errorf("unexpected event %T", e)
		}
		return l.AwardPoints(ctx, ev.UserID, ev.EnrollmentID, RewardTrainingCompleted, PointsTrainingCompleted)
	})
}

// AwardPoints credits a user once per enrollment and reason. Repeats are ignored.
func (l *LMS) AwardPoints(ctx context.Context, userID, enrollmentID uint, reason string, points int) error {
	tx := &PointTransaction{
		UserID:         userID,
		UserTrainingID: enrollmentID,
		Reason:         reason,
		Points:         points,
		CreatedAt:      l.now(),
	}
	if err := l.db.WithContext(ctx).Create(tx).Error; err != nil {
		if isDuplicate(err) {
			return nil
		}
		return err
	}
	l.log.Infow("points awarded", "user_id", userID, "enrollment_id", enrollmentID, "reason", reason, "points", points)
	return nil
}

// GetUserPoints returns the total points of a user.
func (l *LMS) GetUserPoints(ctx context.Context, userID uint) (int, error) {
	var total int
	err := l.db.WithContext(ctx).Model(&PointTransaction{}).
		Where("user_id = ?", userID).
		Select("COALESCE(SUM(points), 0)").
		Scan(&total).Error
	if err != nil {
		return 0, err
	}
	return total, nil
}

// ListPointTransactions returns a user's ledger entries, oldest first.
func (l *LMS) ListPointTransactions(ctx context.Context, userID uint) ([]PointTransaction, error) {
	entries := []PointTransaction{}
	if err := l.db.WithContext(ctx).Where("user_id = ?", userID).Order("id ASC").Find(&entries).Error; err != nil {
		return nil, err
	}
	return entries, nil
}
