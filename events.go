package lms

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Event topics.
const (
	TopicTrainingCompleted   = "training.completed"
	TopicExamPassed          = "exam.passed"
	TopicComplianceEscalated = "compliance.escalated"
)

// Topics lists every topic the core publishes on.
func Topics() []string {
	return []string{TopicTrainingCompleted, TopicExamPassed, TopicComplianceEscalated}
}

// Event is a domain event published after the change it describes has committed.
type Event interface {
	Topic() string
}

// TrainingCompleted is published when an enrollment moves to completed.
type TrainingCompleted struct {
	EnrollmentID uint      `json:"enrollment_id"`
	UserID       uint      `json:"user_id"`
	ModuleID     uint      `json:"module_id"`
	ActorID      uint      `json:"actor_id"`
	OccurredAt   time.Time `json:"occurred_at"`
}

func (TrainingCompleted) Topic() string { return TopicTrainingCompleted }

// ExamPassed is published when a recorded final score meets the passing grade.
type ExamPassed struct {
	EnrollmentID uint      `json:"enrollment_id"`
	UserID       uint      `json:"user_id"`
	ModuleID     uint      `json:"module_id"`
	Score        float64   `json:"score"`
	ActorID      uint      `json:"actor_id"`
	OccurredAt   time.Time `json:"occurred_at"`
}

func (ExamPassed) Topic() string { return TopicExamPassed }

// ComplianceEscalated is published after every escalation step.
type ComplianceEscalated struct {
	EnrollmentID uint      `json:"enrollment_id"`
	UserID       uint      `json:"user_id"`
	ModuleID     uint      `json:"module_id"`
	Level        int       `json:"level"`
	Target       string    `json:"target"`
	Reason       string    `json:"reason"`
	ActorID      uint      `json:"actor_id"`
	OccurredAt   time.Time `json:"occurred_at"`
}

func (ComplianceEscalated) Topic() string { return TopicComplianceEscalated }

// Handler consumes one event. Returned errors are logged, never propagated to the publisher.
type Handler func(ctx context.Context, e Event) error

// EventBus dispatches events to the handlers subscribed to their topic.
type EventBus struct {
	mu       sync.RWMutex
	handlers map[string][]Handler
	log      *zap.SugaredLogger
}

// NewEventBus returns an empty bus. A nil logger discards handler failures.
func NewEventBus(log *zap.SugaredLogger) *EventBus {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &EventBus{handlers: make(map[string][]Handler), log: log}
}

// Subscribe registers h for topic.
func (b *EventBus) Subscribe(topic string, h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[topic] = append(b.handlers[topic], h)
}

// Publish calls every handler of the event's topic in subscription order.
func (b *EventBus) Publish(ctx context.Context, e Event) {
	b.mu.RLock()
	handlers := append([]Handler(nil), b.handlers[e.Topic()]...)
	b.mu.RUnlock()

	metrics().events.WithLabelValues(e.Topic()).Inc()
	for _, h := range handlers {
		if err := b.dispatch(ctx, h, e); err != nil {
			b.log.Errorw("event handler failed", "topic", e.Topic(), "error", err)
		}
	}
}

func (b *EventBus) dispatch(ctx context.Context, h Handler, e Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panicked: %v", r)
		}
	}()
	return h(ctx, e)
}
