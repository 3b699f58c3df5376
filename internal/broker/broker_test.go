package broker

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
	"go.uber.org/zap/zapcore"

	lms "github.com/bohemiyan/LMS"
)

type message struct {
	subject string
	data    []byte
}

type fakePublisher struct {
	sent []message
	err  error
}

func (p *fakePublisher) Publish(subject string, data []byte) error {
	if p.err != nil {
		return p.err
	}
	p.sent = append(p.sent, message{subject, data})
	return nil
}

func TestForwarderPublishesEnvelope(t *testing.T) {
	pub := &fakePublisher{}
	bus := lms.NewEventBus(nil)
	f := NewForwarder(pub, nil)
	f.now = func() time.Time { return time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC) }
	f.Register(bus)

	bus.Publish(context.Background(), lms.ComplianceEscalated{EnrollmentID: 4, UserID: 2, Level: 3, Target: "compliance_officer"})

	require.Len(t, pub.sent, 1)
	assert.Equal(t, "lms.compliance.escalated", pub.sent[0].subject)

	var got struct {
		Topic       string          `json:"topic"`
		PublishedAt time.Time       `json:"published_at"`
		Data        json.RawMessage `json:"data"`
	}
	require.NoError(t, json.Unmarshal(pub.sent[0].data, &got))
	assert.Equal(t, lms.TopicComplianceEscalated, got.Topic)
	assert.Contains(t, string(got.Data), `"level":3`)
}

func TestForwarderFailuresAreNonFatal(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	bus := lms.NewEventBus(nil)
	NewForwarder(&fakePublisher{err: errors.New("nats down")}, zap.New(core).Sugar()).Register(bus)

	var reached bool
	bus.Subscribe(lms.TopicExamPassed, func(ctx context.Context, e lms.Event) error {
		reached = true
		return nil
	})
	bus.Publish(context.Background(), lms.ExamPassed{EnrollmentID: 1, Score: 90})

	assert.True(t, reached)
	assert.Equal(t, 1, logs.FilterMessage("broker: failed to publish event (non-fatal)").Len())
}

func TestForwarderWithoutConnection(t *testing.T) {
	bus := lms.NewEventBus(nil)
	NewForwarder(nil, nil).Register(bus)
	assert.NotPanics(t, func() {
		bus.Publish(context.Background(), lms.TrainingCompleted{EnrollmentID: 1})
	})
}
