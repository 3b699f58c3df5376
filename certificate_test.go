package lms

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bohemiyan/LMS/internal/queue"
)

type fakeRenderer struct {
	mu       sync.Mutex
	failures int
	calls    []CertificateData
}

func (r *fakeRenderer) Render(ctx context.Context, data CertificateData) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, data)
	if r.failures > 0 {
		r.failures--
		return "", errors.New("renderer unavailable")
	}
	return "certificates/" + data.UserName + ".pdf", nil
}

func (r *fakeRenderer) callCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.calls)
}

func fastRetry() queue.RetryPolicy {
	return queue.RetryPolicy{MaxAttempts: 3, Schedule: []time.Duration{time.Millisecond}}
}

func TestCertificateWorkerIssuesAfterCompletion(t *testing.T) {
	l := newTestLMS(t)
	q := queue.New(1, 8, nil)
	q.Start(context.Background())
	renderer := &fakeRenderer{failures: 1}
	NewCertificateWorker(l, q, renderer, fastRetry()).Register(l.Events())

	m := mustModule(t, l, NewModule{Title: "Fire Safety", PassingGrade: 70})
	ut := enrollIn(t, l, "cert", m)
	completeEnrollment(t, l, ut.ID, 75)
	q.Stop()

	got, err := l.GetEnrollment(context.Background(), ut.ID)
	require.NoError(t, err)
	assert.True(t, got.IsCertified)
	assert.Equal(t, 2, renderer.callCount())
	assert.Equal(t, "Fire Safety", renderer.calls[1].ModuleTitle)
}

func TestCertificateWorkerLeavesFlagUnsetAfterRetries(t *testing.T) {
	l := newTestLMS(t)
	q := queue.New(1, 8, nil)
	q.Start(context.Background())
	renderer := &fakeRenderer{failures: 10}
	NewCertificateWorker(l, q, renderer, fastRetry()).Register(l.Events())

	m := mustModule(t, l, NewModule{PassingGrade: 70})
	ut := enrollIn(t, l, "unlucky", m)
	completeEnrollment(t, l, ut.ID, 90)
	q.Stop()

	got, err := l.GetEnrollment(context.Background(), ut.ID)
	require.NoError(t, err)
	assert.False(t, got.IsCertified)
	assert.Equal(t, 3, renderer.callCount())
}

func TestCertificateWorkerSkipsIneligibleEnrollment(t *testing.T) {
	l := newTestLMS(t)
	q := queue.New(1, 8, nil)
	q.Start(context.Background())
	renderer := &fakeRenderer{}
	NewCertificateWorker(l, q, renderer, fastRetry()).Register(l.Events())

	m := mustModule(t, l, NewModule{PassingGrade: 70})
	ut := enrollIn(t, l, "failed", m)
	completeEnrollment(t, l, ut.ID, 20)
	q.Stop()

	got, err := l.GetEnrollment(context.Background(), ut.ID)
	require.NoError(t, err)
	assert.False(t, got.IsCertified)
	assert.Zero(t, renderer.callCount(), "business-rule failures are not retried")
}

func TestFullCertificateQueueDoesNotStallCompletion(t *testing.T) {
	l := newTestLMS(t)
	q := queue.New(1, 1, nil)
	NewCertificateWorker(l, q, &fakeRenderer{}, fastRetry()).Register(l.Events())
	_, err := q.Enqueue(context.Background(), queue.Job{Run: func(ctx context.Context) error { return nil }})
	require.NoError(t, err)

	m := mustModule(t, l, NewModule{PassingGrade: 70})
	ut := enrollIn(t, l, "backlog", m)
	completeEnrollment(t, l, ut.ID, 90)

	got, err := l.GetEnrollment(context.Background(), ut.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, got.Status)
	assert.False(t, got.IsCertified)

	q.Start(context.Background())
	q.Stop()
}
