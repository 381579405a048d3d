package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func healthy(context.Context) Result { return Result{Status: StatusHealthy} }

func TestStatusRollup(t *testing.T) {
	c := NewChecker()
	c.Register("journal", true, 0, healthy)
	assert.Equal(t, StatusUnknown, c.Status(), "critical check not run yet")

	c.Run(context.Background())
	assert.Equal(t, StatusHealthy, c.Status())

	c.Register("dbus", false, 0, PingCheck(func(context.Context) error { return errors.New("no bus") }))
	c.Run(context.Background())
	assert.Equal(t, StatusDegraded, c.Status())

	c.Register("keyboards", true, 0, CountCheck("keyboards", func() int { return 0 }))
	results := c.Run(context.Background())
	assert.Equal(t, StatusUnhealthy, c.Status())
	assert.Equal(t, "no keyboards", results["keyboards"].Message)
}

func TestCheckTimeoutAndPanic(t *testing.T) {
	c := NewChecker()
	c.Register("slow", false, 10*time.Millisecond, func(ctx context.Context) Result {
		<-ctx.Done()
		time.Sleep(5 * time.Millisecond)
		return Result{Status: StatusHealthy}
	})
	c.Register("broken", false, 0, func(context.Context) Result { panic("boom") })

	results := c.Run(context.Background())
	assert.Equal(t, StatusUnhealthy, results["slow"].Status)
	assert.Equal(t, "check timed out", results["slow"].Message)
	assert.Equal(t, StatusUnhealthy, results["broken"].Status)
	assert.Equal(t, "boom", results["broken"].Error)
}

func TestDropCheck(t *testing.T) {
	var dropped uint64
	check := DropCheck(func() uint64 { return dropped })

	assert.Equal(t, StatusHealthy, check(context.Background()).Status)
	dropped = 3
	r := check(context.Background())
	assert.Equal(t, StatusDegraded, r.Status)
	assert.Equal(t, uint64(3), r.Details["since_last_check"])
	assert.Equal(t, StatusHealthy, check(context.Background()).Status)
}

func TestHandler(t *testing.T) {
	c := NewChecker()
	open := 1
	c.Register("keyboards", true, 0, CountCheck("keyboards", func() int { return open }))

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz?full=true", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	var resp Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, StatusHealthy, resp.Status)
	assert.Equal(t, []string{"keyboards"}, resp.Checks)
	assert.Contains(t, resp.Components, "keyboards")

	open = 0
	rec = httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	var short Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &short))
	assert.Equal(t, StatusUnhealthy, short.Status)
	assert.Empty(t, short.Components)
}
