package healthcheck

import (
	"context"
	"database/sql/driver"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"gotest.tools/v3/assert"
	"gotest.tools/v3/assert/cmp"

	"github.com/pgscope/pgscope/db"
	"github.com/pgscope/pgscope/internal/fakedb"
	"github.com/pgscope/pgscope/system"
	"github.com/pgscope/pgscope/testing/testcontext"
)

type checks struct {
	name        string
	ready, live func(ctx context.Context) error
}

func (c checks) HealthChecks() (name string, ready, live func(ctx context.Context) error) {
	return c.name, c.ready, c.live
}

func ok(context.Context) error { return nil }

func failing(msg string) func(context.Context) error {
	return func(context.Context) error { return errors.New(msg) }
}

func TestAPI_Checks(t *testing.T) {
	tests := []struct {
		name      string
		checked   []system.HealthChecker
		wantLive  int
		wantReady int
	}{
		{
			name:      "no checks",
			wantLive:  http.StatusOK,
			wantReady: http.StatusOK,
		},
		{
			name:      "healthy",
			checked:   []system.HealthChecker{checks{name: "svc", ready: ok, live: ok}},
			wantLive:  http.StatusOK,
			wantReady: http.StatusOK,
		},
		{
			name:      "not ready",
			checked:   []system.HealthChecker{checks{name: "svc", ready: failing("warming up"), live: ok}},
			wantLive:  http.StatusOK,
			wantReady: http.StatusServiceUnavailable,
		},
		{
			name:      "dead",
			checked:   []system.HealthChecker{checks{name: "svc", ready: ok, live: failing("wedged")}},
			wantLive:  http.StatusServiceUnavailable,
			wantReady: http.StatusOK,
		},
		{
			name: "nil checks are skipped",
			checked: []system.HealthChecker{
				checks{name: "ready-only", ready: ok},
				checks{name: "live-only", live: ok},
			},
			wantLive:  http.StatusOK,
			wantReady: http.StatusOK,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := startAPI(t, tt.checked...)

			body, status := get(t, srv, "/live")
			assert.Check(t, cmp.Equal(status, tt.wantLive), body)

			body, status = get(t, srv, "/ready")
			assert.Check(t, cmp.Equal(status, tt.wantReady), body)
		})
	}
}

func TestAPI_DatabaseReadiness(t *testing.T) {
	fdb, sqlxDB := fakedb.New()
	t.Cleanup(func() { _ = sqlxDB.Close() })
	srv := startAPI(t, &db.HealthCheck{Name: "notes-db", DB: sqlxDB})

	t.Run("unready until the database answers", func(t *testing.T) {
		body, status := get(t, srv, "/ready")
		assert.Check(t, cmp.Equal(status, http.StatusServiceUnavailable))
		assert.Check(t, cmp.Contains(body, "notes-db"))
	})

	t.Run("ready", func(t *testing.T) {
		fdb.SetRows([]string{"version"}, []driver.Value{"PostgreSQL 16.2"})
		body, status := get(t, srv, "/ready")
		assert.Check(t, cmp.Equal(status, http.StatusOK))
		assert.Check(t, cmp.Contains(body, `"status":"OK"`))
	})

	t.Run("liveness ignores the database", func(t *testing.T) {
		_, status := get(t, srv, "/live")
		assert.Check(t, cmp.Equal(status, http.StatusOK))
	})
}

func TestAPI_Debug(t *testing.T) {
	srv := startAPI(t)

	body, status := get(t, srv, "/debug/pprof/")
	assert.Check(t, cmp.Equal(status, http.StatusOK))
	assert.Check(t, cmp.Contains(body, "Types of profiles available"))

	for _, p := range []string{"heap", "goroutine", "cmdline", "symbol"} {
		t.Run(p, func(t *testing.T) {
			_, status := get(t, srv, "/debug/pprof/"+p)
			assert.Check(t, cmp.Equal(status, http.StatusOK))
		})
	}

	t.Run("unknown profile", func(t *testing.T) {
		_, status := get(t, srv, "/debug/pprof/nowt")
		assert.Check(t, cmp.Equal(status, http.StatusNotFound))
	})
}

func startAPI(t *testing.T, checked ...system.HealthChecker) *httptest.Server {
	t.Helper()

	api, err := New(testcontext.Background(), checked)
	assert.Assert(t, err)

	srv := httptest.NewServer(api.Handler())
	t.Cleanup(srv.Close)
	return srv
}

func get(t *testing.T, srv *httptest.Server, path string) (string, int) {
	t.Helper()

	res, err := srv.Client().Get(srv.URL + path)
	assert.Assert(t, err)
	defer func() {
		assert.Check(t, res.Body.Close())
	}()

	b, err := io.ReadAll(res.Body)
	assert.Assert(t, err)
	return string(b), res.StatusCode
}
