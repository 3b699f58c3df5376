package lms

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"
)

// BulkResult summarizes a batch where each item succeeds or fails on its own.
type BulkResult struct {
	Succeeded int            `json:"succeeded"`
	Failed    int            `json:"failed"`
	Failures  map[uint]error `json:"-"` // keyed by user id
}

// PropagationResult reports the per-user re-sync after a role's permissions changed.
type PropagationResult struct {
	RoleID   uint           `json:"role_id"`
	Users    int            `json:"users"`
	Synced   int            `json:"synced"`
	Failures map[uint]error `json:"-"`
}

// SweepResult summarizes one compliance check-all pass.
type SweepResult struct {
	Checked   int            `json:"checked"`
	Escalated int            `json:"escalated"`
	Resolved  int            `json:"resolved"`
	Failed    int            `json:"failed"`
	Failures  map[uint]error `json:"-"` // keyed by enrollment id
}

// forEach runs fn for every index in [0, n) on a bounded pool of workers.
func forEach(n, workers int, fn func(i int)) {
	if n == 0 {
		return
	}
	if workers <= 0 || workers > n {
		workers = n
	}

	jobs := make(chan int, n)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				fn(i)
			}
		}()
	}

	for i := 0; i < n; i++ {
		jobs <- i
	}
	close(jobs)
	wg.Wait()
}

// BulkAssignRole assigns a role to each user independently. Per-user failures
// (duplicate, inactive role, unknown user) are collected rather than aborting the batch.
func (l *LMS) BulkAssignRole(ctx context.Context, userIDs []uint, roleID, actorID uint) *BulkResult {
	result := &BulkResult{Failures: make(map[uint]error)}
	var mu sync.Mutex

	forEach(len(userIDs), l.propagationWorkers, func(i int) {
		userID := userIDs[i]
		err := l.AssignRole(ctx, userID, roleID, actorID)

		mu.Lock()
		defer mu.Unlock()
		if err != nil {
			result.Failed++
			result.Failures[userID] = err
			return
		}
		result.Succeeded++
	})

	l.log.Infow("bulk role assignment finished", "role_id", roleID, "succeeded", result.Succeeded, "failed", result.Failed)
	return result
}

// propagate re-syncs every holder of a role. It must only run after the role's
// permission edge has committed.
func (l *LMS) propagate(ctx context.Context, roleID uint) (*PropagationResult, error) {
	userIDs, err := l.GetAffectedUsers(ctx, roleID)
	if err != nil {
		return nil, err
	}

	result := &PropagationResult{RoleID: roleID, Users: len(userIDs), Failures: make(map[uint]error)}
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(l.propagationWorkers)
	for _, userID := range userIDs {
		userID := userID
		g.Go(func() error {
			_, err := l.SyncUserPermissions(gctx, userID)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				result.Failures[userID] = err
				return nil
			}
			result.Synced++
			return nil
		})
	}
	_ = g.Wait()

	if len(result.Failures) > 0 {
		l.log.Warnw("permission propagation incomplete", "role_id", roleID, "users", result.Users, "failed", len(result.Failures))
	} else {
		l.log.Infow("permissions propagated", "role_id", roleID, "users", result.Users)
	}
	return result, nil
}

// CheckAllCompliance evaluates every enrollment of a compliance-required module.
// A failure on one enrollment is recorded and does not stop the sweep.
func (l *LMS) CheckAllCompliance(ctx context.Context, actorID uint) (*SweepResult, error) {
	var ids []uint
	err := l.db.WithContext(ctx).Model(&UserTraining{}).
		Joins("JOIN modules ON modules.id = user_trainings.module_id AND modules.deleted_at IS NULL").
		Where("modules.compliance_required = ?", true).
		Order("user_trainings.id ASC").
		Pluck("user_trainings.id", &ids).Error
	if err != nil {
		return nil, err
	}

	result := &SweepResult{Failures: make(map[uint]error)}
	var mu sync.Mutex

	forEach(len(ids), l.sweepWorkers, func(i int) {
		res, err := l.CheckAndEscalateCompliance(ctx, ids[i], actorID)

		mu.Lock()
		defer mu.Unlock()
		result.Checked++
		if err != nil {
			result.Failed++
			result.Failures[ids[i]] = err
			return
		}
		if res.Escalated {
			result.Escalated++
		}
		if res.Resolved {
			result.Resolved++
		}
	})

	metrics().sweeps.Inc()
	l.log.Infow("compliance sweep finished",
		"checked", result.Checked, "escalated", result.Escalated, "resolved", result.Resolved, "failed", result.Failed)
	return result, nil
}
