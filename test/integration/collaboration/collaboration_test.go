package collaboration

import (
	"dashcollab/test/integration/testutil"
	"fmt"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Runs against a live service: TEST_SERVER_URL=http://localhost:8080 go test ./test/...

const basePath = "/api/v1/collaboration"

func setup(t *testing.T) (*testutil.Client, string) {
	client := testutil.NewClientFromEnv(t)
	client.WaitForHealthy(t, 30*time.Second)
	return client, "it-" + uuid.NewString()
}

func lockPath(dashboardID, widgetID string) string {
	return fmt.Sprintf("%s/dashboards/%s/widgets/%s/lock", basePath, dashboardID, widgetID)
}

type lockBody struct {
	LockID      string `json:"lock_id"`
	OwnerUserID string `json:"owner_user_id"`
}

type statusBody struct {
	IsLocked   bool   `json:"is_locked"`
	LockedBy   string `json:"locked_by"`
	CanAcquire bool   `json:"can_acquire"`
}

func TestLockLifecycle(t *testing.T) {
	client, dashboardID := setup(t)
	alice := client.As("alice", "Alice")
	bob := client.As("bob", "Bob")

	resp := alice.POST(t, lockPath(dashboardID, "w1"), map[string]any{"lock_duration": 60})
	testutil.AssertStatusCode(t, resp, http.StatusOK)
	var lock lockBody
	require.NoError(t, resp.Data(&lock))
	assert.Equal(t, "alice", lock.OwnerUserID)

	resp = bob.POST(t, lockPath(dashboardID, "w1"), nil)
	testutil.AssertStatusCode(t, resp, http.StatusConflict)

	resp = bob.GET(t, fmt.Sprintf("%s/dashboards/%s/widgets/w1/status", basePath, dashboardID))
	testutil.AssertStatusCode(t, resp, http.StatusOK)
	var status statusBody
	require.NoError(t, resp.Data(&status))
	assert.True(t, status.IsLocked)
	assert.Equal(t, "Alice", status.LockedBy)
	assert.False(t, status.CanAcquire)

	resp = bob.DELETE(t, lockPath(dashboardID, "w1"))
	testutil.AssertStatusCode(t, resp, http.StatusForbidden)

	resp = alice.POST(t, fmt.Sprintf("%s/dashboards/%s/widgets/w1/heartbeat", basePath, dashboardID), nil)
	testutil.AssertStatusCode(t, resp, http.StatusOK)

	resp = alice.DELETE(t, lockPath(dashboardID, "w1"))
	testutil.AssertStatusCode(t, resp, http.StatusOK)

	resp = bob.POST(t, lockPath(dashboardID, "w1"), nil)
	testutil.AssertStatusCode(t, resp, http.StatusOK)
	bob.DELETE(t, lockPath(dashboardID, "w1"))
}

func TestConcurrentAcquireHasOneWinner(t *testing.T) {
	client, dashboardID := setup(t)

	const contenders = 10
	statuses := make([]int, contenders)
	var wg sync.WaitGroup
	for i := range contenders {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			user := client.As(fmt.Sprintf("user-%d", i), fmt.Sprintf("User %d", i))
			statuses[i] = user.POST(t, lockPath(dashboardID, "shared"), nil).StatusCode
		}(i)
	}
	wg.Wait()

	var winners int
	for _, status := range statuses {
		if status == http.StatusOK {
			winners++
		} else {
			assert.Equal(t, http.StatusConflict, status)
		}
	}
	assert.Equal(t, 1, winners)
}

func TestSessionsAndPresence(t *testing.T) {
	client, dashboardID := setup(t)
	alice := client.As("alice", "Alice")

	resp := alice.POST(t, fmt.Sprintf("%s/dashboards/%s/edit/start", basePath, dashboardID), map[string]any{
		"user_email": "alice@example.com",
	})
	testutil.AssertStatusCode(t, resp, http.StatusOK)

	resp = alice.POST(t, lockPath(dashboardID, "chart"), nil)
	testutil.AssertStatusCode(t, resp, http.StatusOK)

	resp = alice.GET(t, fmt.Sprintf("%s/dashboards/%s/active-sessions", basePath, dashboardID))
	testutil.AssertStatusCode(t, resp, http.StatusOK)
	var presence struct {
		TotalSessions  int `json:"total_sessions"`
		ActiveSessions []struct {
			UserID        string   `json:"user_id"`
			LockedWidgets []string `json:"locked_widgets"`
		} `json:"active_sessions"`
		WidgetLocks []lockBody `json:"widget_locks"`
	}
	require.NoError(t, resp.Data(&presence))
	assert.Equal(t, 1, presence.TotalSessions)
	require.Len(t, presence.ActiveSessions, 1)
	assert.Equal(t, []string{"chart"}, presence.ActiveSessions[0].LockedWidgets)
	assert.Len(t, presence.WidgetLocks, 1)

	resp = alice.POST(t, fmt.Sprintf("%s/dashboards/%s/edit/stop", basePath, dashboardID), nil)
	testutil.AssertStatusCode(t, resp, http.StatusOK)
	resp = alice.POST(t, fmt.Sprintf("%s/dashboards/%s/edit/heartbeat", basePath, dashboardID), nil)
	testutil.AssertStatusCode(t, resp, http.StatusNotFound)
	alice.DELETE(t, lockPath(dashboardID, "chart"))
}

func TestMissingIdentity(t *testing.T) {
	client, dashboardID := setup(t)

	resp := client.POST(t, lockPath(dashboardID, "w1"), nil)
	testutil.AssertStatusCode(t, resp, http.StatusUnauthorized)
}
