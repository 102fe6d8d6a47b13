package repository

import (
	"context"
	collaborationerrors "dashcollab/internal/collaboration/errors"
	"dashcollab/pkg/model"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testEpoch = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func newTestLock(dashboardID, widgetID, owner string, at time.Time) *model.WidgetLock {
	lock := &model.WidgetLock{
		LockID:        "lock-" + owner,
		DashboardID:   dashboardID,
		WidgetID:      widgetID,
		OwnerUserID:   owner,
		OwnerUserName: owner,
		AcquiredAt:    at,
	}
	lock.Touch(at, time.Minute)
	return lock
}

func testLockRepository(t *testing.T, newRepo func(t *testing.T) LockRepository) {
	ctx := context.Background()

	t.Run("get missing", func(t *testing.T) {
		repo := newRepo(t)
		_, err := repo.Get(ctx, "d1", "w1")
		assert.ErrorIs(t, err, collaborationerrors.ErrNotFound)
	})

	t.Run("insert then get", func(t *testing.T) {
		repo := newRepo(t)
		lock := newTestLock("d1", "w1", "alice", testEpoch)
		require.NoError(t, repo.Insert(ctx, lock))
		assert.Equal(t, int64(1), lock.Version)

		got, err := repo.Get(ctx, "d1", "w1")
		require.NoError(t, err)
		assert.Equal(t, "alice", got.OwnerUserID)
		assert.Equal(t, "lock-alice", got.LockID)
		assert.True(t, got.ExpiresAt.Equal(testEpoch.Add(time.Minute)))
		assert.Equal(t, int64(1), got.Version)
	})

	t.Run("insert existing key", func(t *testing.T) {
		repo := newRepo(t)
		require.NoError(t, repo.Insert(ctx, newTestLock("d1", "w1", "alice", testEpoch)))
		err := repo.Insert(ctx, newTestLock("d1", "w1", "bob", testEpoch))
		assert.ErrorIs(t, err, collaborationerrors.ErrAlreadyExists)

		got, err := repo.Get(ctx, "d1", "w1")
		require.NoError(t, err)
		assert.Equal(t, "alice", got.OwnerUserID)
	})

	t.Run("replace checks version", func(t *testing.T) {
		repo := newRepo(t)
		lock := newTestLock("d1", "w1", "alice", testEpoch)
		require.NoError(t, repo.Insert(ctx, lock))

		stale := *lock
		lock.Touch(testEpoch.Add(10*time.Second), time.Minute)
		require.NoError(t, repo.Replace(ctx, lock))
		assert.Equal(t, int64(2), lock.Version)

		stale.Touch(testEpoch.Add(20*time.Second), time.Minute)
		assert.ErrorIs(t, repo.Replace(ctx, &stale), collaborationerrors.ErrStaleVersion)

		got, err := repo.Get(ctx, "d1", "w1")
		require.NoError(t, err)
		assert.True(t, got.LastHeartbeat.Equal(testEpoch.Add(10*time.Second)))
	})

	t.Run("delete if checks version", func(t *testing.T) {
		repo := newRepo(t)
		lock := newTestLock("d1", "w1", "alice", testEpoch)
		require.NoError(t, repo.Insert(ctx, lock))

		stale := *lock
		stale.Version = 99
		assert.ErrorIs(t, repo.DeleteIf(ctx, &stale), collaborationerrors.ErrStaleVersion)

		require.NoError(t, repo.DeleteIf(ctx, lock))
		_, err := repo.Get(ctx, "d1", "w1")
		assert.ErrorIs(t, err, collaborationerrors.ErrNotFound)

		err = repo.DeleteIf(ctx, lock)
		assert.Error(t, err)
	})

	t.Run("re-created lock does not pass for the old one", func(t *testing.T) {
		repo := newRepo(t)
		old := newTestLock("d1", "w1", "alice", testEpoch)
		require.NoError(t, repo.Insert(ctx, old))
		require.NoError(t, repo.DeleteIf(ctx, old))

		fresh := newTestLock("d1", "w1", "bob", testEpoch.Add(time.Minute))
		require.NoError(t, repo.Insert(ctx, fresh))
		require.Equal(t, old.Version, fresh.Version)

		old.Touch(testEpoch.Add(2*time.Minute), time.Minute)
		assert.ErrorIs(t, repo.Replace(ctx, old), collaborationerrors.ErrStaleVersion)
		assert.ErrorIs(t, repo.DeleteIf(ctx, old), collaborationerrors.ErrStaleVersion)

		got, err := repo.Get(ctx, "d1", "w1")
		require.NoError(t, err)
		assert.Equal(t, "bob", got.OwnerUserID)
	})

	t.Run("list by dashboard and expired", func(t *testing.T) {
		repo := newRepo(t)
		require.NoError(t, repo.Insert(ctx, newTestLock("d1", "w1", "alice", testEpoch)))
		require.NoError(t, repo.Insert(ctx, newTestLock("d1", "w2", "bob", testEpoch.Add(time.Minute))))
		require.NoError(t, repo.Insert(ctx, newTestLock("d2", "w1", "carol", testEpoch)))

		locks, err := repo.ListByDashboard(ctx, "d1")
		require.NoError(t, err)
		require.Len(t, locks, 2)
		assert.Equal(t, "w1", locks[0].WidgetID)
		assert.Equal(t, "w2", locks[1].WidgetID)

		expired, err := repo.ListExpired(ctx, testEpoch.Add(90*time.Second))
		require.NoError(t, err)
		assert.Len(t, expired, 2)
		for _, l := range expired {
			assert.Equal(t, "w1", l.WidgetID)
		}
	})

	t.Run("delete by dashboard", func(t *testing.T) {
		repo := newRepo(t)
		require.NoError(t, repo.Insert(ctx, newTestLock("d1", "w1", "alice", testEpoch)))
		require.NoError(t, repo.Insert(ctx, newTestLock("d1", "w2", "bob", testEpoch)))
		require.NoError(t, repo.Insert(ctx, newTestLock("d2", "w1", "carol", testEpoch)))

		deleted, err := repo.DeleteByDashboard(ctx, "d1")
		require.NoError(t, err)
		assert.Equal(t, int64(2), deleted)

		locks, err := repo.ListByDashboard(ctx, "d1")
		require.NoError(t, err)
		assert.Empty(t, locks)

		expired, err := repo.ListExpired(ctx, testEpoch.Add(time.Hour))
		require.NoError(t, err)
		assert.Len(t, expired, 1)
	})

	t.Run("concurrent inserts have one winner", func(t *testing.T) {
		repo := newRepo(t)
		const contenders = 32

		var wg sync.WaitGroup
		results := make(chan error, contenders)
		for i := 0; i < contenders; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				results <- repo.Insert(ctx, newTestLock("race", "w1", fmt.Sprintf("user-%d", i), testEpoch))
			}(i)
		}
		wg.Wait()
		close(results)

		wins := 0
		for err := range results {
			if err == nil {
				wins++
				continue
			}
			assert.ErrorIs(t, err, collaborationerrors.ErrAlreadyExists)
		}
		assert.Equal(t, 1, wins)
	})
}

func testSessionRepository(t *testing.T, newRepo func(t *testing.T) SessionRepository) {
	ctx := context.Background()
	start := func(dashboardID, userID string) model.SessionStart {
		return model.SessionStart{DashboardID: dashboardID, UserID: userID, UserName: "User " + userID}
	}

	t.Run("upsert keeps identity and connected_at", func(t *testing.T) {
		repo := newRepo(t)
		first, err := repo.Upsert(ctx, model.SessionStart{
			DashboardID: "d1",
			UserID:      "alice",
			UserName:    "Alice",
			UserEmail:   "alice@example.com",
			ClientInfo:  map[string]string{"agent": "test"},
		}, testEpoch)
		require.NoError(t, err)
		assert.NotEmpty(t, first.SessionID)
		assert.True(t, first.ConnectedAt.Equal(testEpoch))

		second, err := repo.Upsert(ctx, start("d1", "alice"), testEpoch.Add(time.Minute))
		require.NoError(t, err)
		assert.Equal(t, first.SessionID, second.SessionID)
		assert.True(t, second.ConnectedAt.Equal(testEpoch))
		assert.True(t, second.LastActivity.Equal(testEpoch.Add(time.Minute)))
		assert.Equal(t, "alice@example.com", second.UserEmail)
		assert.Equal(t, "test", second.ClientInfo["agent"])
		assert.Greater(t, second.Version, first.Version)
	})

	t.Run("concurrent starts share one session", func(t *testing.T) {
		repo := newRepo(t)
		const contenders = 32

		var wg sync.WaitGroup
		results := make(chan *model.EditingSession, contenders)
		errs := make(chan error, contenders)
		for i := 0; i < contenders; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				session, err := repo.Upsert(ctx, start("race", "alice"), testEpoch.Add(time.Duration(i)*time.Millisecond))
				if err != nil {
					errs <- err
					return
				}
				results <- session
			}(i)
		}
		wg.Wait()
		close(results)
		close(errs)

		for err := range errs {
			assert.NoError(t, err)
		}
		ids := map[string]bool{}
		for session := range results {
			ids[session.SessionID] = true
		}
		assert.Len(t, ids, 1)

		sessions, err := repo.ListByDashboard(ctx, "race")
		require.NoError(t, err)
		require.Len(t, sessions, 1)
		assert.True(t, ids[sessions[0].SessionID])
		assert.Equal(t, int64(contenders), sessions[0].Version)
	})

	t.Run("touch", func(t *testing.T) {
		repo := newRepo(t)
		_, err := repo.Touch(ctx, "d1", "alice", testEpoch)
		assert.ErrorIs(t, err, collaborationerrors.ErrNotFound)

		_, err = repo.Upsert(ctx, start("d1", "alice"), testEpoch)
		require.NoError(t, err)
		touched, err := repo.Touch(ctx, "d1", "alice", testEpoch.Add(30*time.Second))
		require.NoError(t, err)
		assert.True(t, touched.LastActivity.Equal(testEpoch.Add(30*time.Second)))
	})

	t.Run("delete", func(t *testing.T) {
		repo := newRepo(t)
		_, err := repo.Upsert(ctx, start("d1", "alice"), testEpoch)
		require.NoError(t, err)

		deleted, err := repo.Delete(ctx, "d1", "alice")
		require.NoError(t, err)
		assert.True(t, deleted)

		deleted, err = repo.Delete(ctx, "d1", "alice")
		require.NoError(t, err)
		assert.False(t, deleted)
	})

	t.Run("delete if loses to a touch", func(t *testing.T) {
		repo := newRepo(t)
		session, err := repo.Upsert(ctx, start("d1", "alice"), testEpoch)
		require.NoError(t, err)

		_, err = repo.Touch(ctx, "d1", "alice", testEpoch.Add(time.Second))
		require.NoError(t, err)
		assert.ErrorIs(t, repo.DeleteIf(ctx, session), collaborationerrors.ErrStaleVersion)

		sessions, err := repo.ListByDashboard(ctx, "d1")
		require.NoError(t, err)
		assert.Len(t, sessions, 1)
	})

	t.Run("delete if ignores a re-created session", func(t *testing.T) {
		repo := newRepo(t)
		old, err := repo.Upsert(ctx, start("d1", "alice"), testEpoch)
		require.NoError(t, err)
		_, err = repo.Delete(ctx, "d1", "alice")
		require.NoError(t, err)

		fresh, err := repo.Upsert(ctx, start("d1", "alice"), testEpoch.Add(time.Minute))
		require.NoError(t, err)
		require.Equal(t, old.Version, fresh.Version)
		require.NotEqual(t, old.SessionID, fresh.SessionID)

		assert.ErrorIs(t, repo.DeleteIf(ctx, old), collaborationerrors.ErrStaleVersion)
		sessions, err := repo.ListByDashboard(ctx, "d1")
		require.NoError(t, err)
		assert.Len(t, sessions, 1)
	})

	t.Run("list ordered by connected_at", func(t *testing.T) {
		repo := newRepo(t)
		_, err := repo.Upsert(ctx, start("d1", "bob"), testEpoch.Add(time.Second))
		require.NoError(t, err)
		_, err = repo.Upsert(ctx, start("d1", "alice"), testEpoch)
		require.NoError(t, err)
		_, err = repo.Upsert(ctx, start("d2", "carol"), testEpoch)
		require.NoError(t, err)

		sessions, err := repo.ListByDashboard(ctx, "d1")
		require.NoError(t, err)
		require.Len(t, sessions, 2)
		assert.Equal(t, "alice", sessions[0].UserID)
		assert.Equal(t, "bob", sessions[1].UserID)
	})

	t.Run("list stale and delete by dashboard", func(t *testing.T) {
		repo := newRepo(t)
		_, err := repo.Upsert(ctx, start("d1", "alice"), testEpoch)
		require.NoError(t, err)
		_, err = repo.Upsert(ctx, start("d1", "bob"), testEpoch.Add(5*time.Minute))
		require.NoError(t, err)

		stale, err := repo.ListStale(ctx, testEpoch.Add(time.Minute))
		require.NoError(t, err)
		require.Len(t, stale, 1)
		assert.Equal(t, "alice", stale[0].UserID)

		deleted, err := repo.DeleteByDashboard(ctx, "d1")
		require.NoError(t, err)
		assert.Equal(t, int64(2), deleted)

		stale, err = repo.ListStale(ctx, testEpoch.Add(time.Hour))
		require.NoError(t, err)
		assert.Empty(t, stale)
	})
}
