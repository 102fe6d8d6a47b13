package service

import (
	"context"
	collaborationerrors "dashcollab/internal/collaboration/errors"
	"dashcollab/internal/collaboration/validator"
	apperrors "dashcollab/pkg/errors"
	"dashcollab/pkg/model"
	"fmt"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLockManager_AcquireAndStatus(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	result, err := f.locks.Acquire(ctx, acquire("d1", "w1", "alice"))
	require.NoError(t, err)
	require.Equal(t, OutcomeOK, result.Outcome)
	assert.Equal(t, "alice", result.Lock.OwnerUserID)
	assert.Equal(t, 60, result.Lock.TTLSeconds)
	assert.NotEmpty(t, result.Lock.LockID)

	status, err := f.locks.Status(ctx, "d1", "w1", "bob")
	require.NoError(t, err)
	assert.True(t, status.IsLocked)
	assert.Equal(t, "alice", status.OwnerUserID)
	assert.Equal(t, 60*time.Second, status.TimeRemaining)
	assert.False(t, status.CanAcquire)

	f.clock.Advance(61 * time.Second)
	status, err = f.locks.Status(ctx, "d1", "w1", "bob")
	require.NoError(t, err)
	assert.False(t, status.IsLocked)
	assert.True(t, status.CanAcquire)

	_, err = f.lockRepo.Get(ctx, "d1", "w1")
	assert.NoError(t, err, "status must not reap")
}

func TestLockManager_ConflictThenHandOffThroughRelease(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	first, err := f.locks.Acquire(ctx, acquire("d1", "w1", "alice"))
	require.NoError(t, err)
	require.Equal(t, OutcomeOK, first.Outcome)

	f.clock.Advance(15 * time.Second)
	conflict, err := f.locks.Acquire(ctx, acquire("d1", "w1", "bob"))
	require.NoError(t, err)
	require.Equal(t, OutcomeConflict, conflict.Outcome)
	assert.Equal(t, "alice", conflict.Conflict.OwnerUserID)
	assert.Equal(t, 45*time.Second, conflict.Conflict.TimeRemaining)

	released, err := f.locks.Release(ctx, "d1", "w1", "alice")
	require.NoError(t, err)
	assert.Equal(t, OutcomeOK, released.Outcome)

	second, err := f.locks.Acquire(ctx, acquire("d1", "w1", "bob"))
	require.NoError(t, err)
	require.Equal(t, OutcomeOK, second.Outcome)
	assert.NotEqual(t, first.Lock.LockID, second.Lock.LockID)

	assert.Equal(t, []model.EventType{
		model.EventLockAcquired,
		model.EventLockReleased,
		model.EventLockAcquired,
	}, f.publisher.types())
}

func TestLockManager_ReacquireByOwnerExtends(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	first, err := f.locks.Acquire(ctx, acquire("d1", "w1", "alice"))
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		f.clock.Advance(40 * time.Second)
		again, err := f.locks.Acquire(ctx, acquire("d1", "w1", "alice"))
		require.NoError(t, err)
		require.Equal(t, OutcomeOK, again.Outcome)
		assert.Equal(t, first.Lock.LockID, again.Lock.LockID)
		assert.Equal(t, f.clock.Now(), again.Lock.LastHeartbeat)
		assert.Equal(t, testEpoch, again.Lock.AcquiredAt)
	}
	assert.Equal(t, []model.EventType{model.EventLockAcquired}, f.publisher.types())
}

func TestLockManager_ExpiredLockPassesThroughAbsent(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	_, err := f.locks.Acquire(ctx, acquire("d1", "w1", "alice"))
	require.NoError(t, err)

	f.clock.Advance(61 * time.Second)
	result, err := f.locks.Acquire(ctx, acquire("d1", "w1", "bob"))
	require.NoError(t, err)
	require.Equal(t, OutcomeOK, result.Outcome)
	assert.Equal(t, "bob", result.Lock.OwnerUserID)

	assert.Equal(t, []model.EventType{
		model.EventLockAcquired,
		model.EventLockExpired,
		model.EventLockAcquired,
	}, f.publisher.types())

	hb, err := f.locks.Heartbeat(ctx, "d1", "w1", "alice")
	require.NoError(t, err)
	assert.Equal(t, OutcomeNotOwner, hb.Outcome)
	assert.Equal(t, "bob", hb.Owner.OwnerUserID)
}

func TestLockManager_ConcurrentAcquireHasOneWinner(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	const contenders = 50

	var wg sync.WaitGroup
	results := make([]AcquireResult, contenders)
	errs := make([]error, contenders)
	for i := 0; i < contenders; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = f.locks.Acquire(ctx, acquire("d1", "w1", fmt.Sprintf("user-%d", i)))
		}(i)
	}
	wg.Wait()

	var winner string
	wins := 0
	for i, r := range results {
		require.NoError(t, errs[i])
		if r.Outcome == OutcomeOK {
			wins++
			winner = r.Lock.OwnerUserID
		}
	}
	require.Equal(t, 1, wins)

	for _, r := range results {
		if r.Outcome == OutcomeConflict {
			assert.Equal(t, winner, r.Conflict.OwnerUserID)
		}
	}
}

func TestLockManager_Heartbeat(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	hb, err := f.locks.Heartbeat(ctx, "d1", "w1", "alice")
	require.NoError(t, err)
	assert.Equal(t, OutcomeNotFound, hb.Outcome)

	_, err = f.locks.Acquire(ctx, AcquireRequest{DashboardID: "d1", WidgetID: "w1", UserID: "alice", TTL: 120 * time.Second})
	require.NoError(t, err)

	f.clock.Advance(100 * time.Second)
	hb, err = f.locks.Heartbeat(ctx, "d1", "w1", "alice")
	require.NoError(t, err)
	require.Equal(t, OutcomeOK, hb.Outcome)
	assert.Equal(t, f.clock.Now().Add(120*time.Second), hb.Lock.ExpiresAt)

	hb, err = f.locks.Heartbeat(ctx, "d1", "w1", "bob")
	require.NoError(t, err)
	assert.Equal(t, OutcomeNotOwner, hb.Outcome)

	f.clock.Advance(121 * time.Second)
	hb, err = f.locks.Heartbeat(ctx, "d1", "w1", "alice")
	require.NoError(t, err)
	assert.Equal(t, OutcomeNotFound, hb.Outcome)
}

func TestLockManager_ReleaseByNonOwnerKeepsLock(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	_, err := f.locks.Acquire(ctx, acquire("d1", "w1", "alice"))
	require.NoError(t, err)

	result, err := f.locks.Release(ctx, "d1", "w1", "bob")
	require.NoError(t, err)
	assert.Equal(t, OutcomeNotOwner, result.Outcome)

	status, err := f.locks.Status(ctx, "d1", "w1", "alice")
	require.NoError(t, err)
	assert.True(t, status.IsLocked)
	assert.Equal(t, "alice", status.OwnerUserID)
	assert.True(t, status.CanAcquire)
}

func TestLockManager_ReleaseAbsentOrExpiredIsOK(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	result, err := f.locks.Release(ctx, "d1", "w1", "alice")
	require.NoError(t, err)
	assert.Equal(t, OutcomeOK, result.Outcome)

	_, err = f.locks.Acquire(ctx, acquire("d1", "w1", "alice"))
	require.NoError(t, err)
	f.clock.Advance(2 * time.Minute)

	result, err = f.locks.Release(ctx, "d1", "w1", "bob")
	require.NoError(t, err)
	assert.Equal(t, OutcomeOK, result.Outcome)
}

func TestLockManager_ListActive(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	_, err := f.locks.Acquire(ctx, acquire("d1", "w1", "alice"))
	require.NoError(t, err)
	f.clock.Advance(30 * time.Second)
	_, err = f.locks.Acquire(ctx, acquire("d1", "w2", "bob"))
	require.NoError(t, err)
	_, err = f.locks.Acquire(ctx, acquire("d2", "w1", "carol"))
	require.NoError(t, err)

	f.clock.Advance(45 * time.Second)
	locks, err := f.locks.ListActive(ctx, "d1")
	require.NoError(t, err)
	require.Len(t, locks, 1)
	assert.Equal(t, "w2", locks[0].WidgetID)
}

func TestLockManager_Validation(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	tests := []struct {
		name string
		req  AcquireRequest
	}{
		{"missing widget", AcquireRequest{DashboardID: "d1", UserID: "alice"}},
		{"separator in dashboard", AcquireRequest{DashboardID: "d:1", WidgetID: "w1", UserID: "alice"}},
		{"ttl too short", AcquireRequest{DashboardID: "d1", WidgetID: "w1", UserID: "alice", TTL: 10 * time.Second}},
		{"ttl too long", AcquireRequest{DashboardID: "d1", WidgetID: "w1", UserID: "alice", TTL: time.Hour}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.locks.Acquire(ctx, tt.req)
			require.Error(t, err)
			appErr := apperrors.AsAppError(err)
			assert.Equal(t, apperrors.CodeValidation, appErr.Code)
			assert.Equal(t, http.StatusUnprocessableEntity, appErr.StatusCode())
		})
	}
}

func TestLockManager_TransientStoreFailure(t *testing.T) {
	repo := &mockLockRepository{
		getFunc: func(context.Context, string, string) (*model.WidgetLock, error) {
			return nil, fmt.Errorf("find: %w", collaborationerrors.ErrTransient)
		},
	}
	locks := NewLockManager(repo, validator.NewCollaborationValidator(), testConfig())

	_, err := locks.Acquire(context.Background(), acquire("d1", "w1", "alice"))
	require.Error(t, err)
	appErr := apperrors.AsAppError(err)
	assert.Equal(t, apperrors.CodeUnavailable, appErr.Code)
	assert.ErrorIs(t, err, collaborationerrors.ErrTransient)

	_, err = locks.Status(context.Background(), "d1", "w1", "alice")
	assert.ErrorIs(t, err, collaborationerrors.ErrTransient)
}

func TestLockManager_GivesUpUnderContention(t *testing.T) {
	attempts := 0
	repo := &mockLockRepository{
		getFunc: func(context.Context, string, string) (*model.WidgetLock, error) {
			return nil, collaborationerrors.ErrNotFound
		},
		insertFunc: func(context.Context, *model.WidgetLock) error {
			attempts++
			return collaborationerrors.ErrAlreadyExists
		},
	}
	locks := NewLockManager(repo, validator.NewCollaborationValidator(), testConfig())

	_, err := locks.Acquire(context.Background(), acquire("d1", "w1", "alice"))
	require.Error(t, err)
	assert.ErrorIs(t, err, collaborationerrors.ErrContention)
	assert.Equal(t, apperrors.CodeUnavailable, apperrors.AsAppError(err).Code)
	assert.Equal(t, maxCASAttempts, attempts)
}

func TestLockManager_HeartbeatRetriesOnStaleVersion(t *testing.T) {
	clock := newFakeClock()
	stored := &model.WidgetLock{DashboardID: "d1", WidgetID: "w1", OwnerUserID: "alice", Version: 1}
	stored.Touch(clock.Now(), time.Minute)

	replaces := 0
	repo := &mockLockRepository{
		getFunc: func(context.Context, string, string) (*model.WidgetLock, error) {
			copied := *stored
			return &copied, nil
		},
		replaceFunc: func(_ context.Context, lock *model.WidgetLock) error {
			replaces++
			if replaces == 1 {
				return collaborationerrors.ErrStaleVersion
			}
			lock.Version++
			return nil
		},
	}
	locks := NewLockManager(repo, validator.NewCollaborationValidator(), testConfig(), WithClock(clock.Now))

	result, err := locks.Heartbeat(context.Background(), "d1", "w1", "alice")
	require.NoError(t, err)
	assert.Equal(t, OutcomeOK, result.Outcome)
	assert.Equal(t, 2, replaces)
}

func TestLockManager_PublishFailureDoesNotFailAcquire(t *testing.T) {
	f := newFixture()
	f.publisher.err = fmt.Errorf("broker down")

	result, err := f.locks.Acquire(context.Background(), acquire("d1", "w1", "alice"))
	require.NoError(t, err)
	assert.Equal(t, OutcomeOK, result.Outcome)
}
