package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"gotest.tools/v3/assert"

	"github.com/pgscope/pgscope/db"
	"github.com/pgscope/pgscope/example/notes"
	"github.com/pgscope/pgscope/internal/fakedb"
)

type fixture struct {
	api *API
	fdb *fakedb.DB
}

func startAPI(ctx context.Context, t testing.TB) *fixture {
	t.Helper()

	fdb, sqlxDB := fakedb.New()
	t.Cleanup(func() {
		assert.Check(t, sqlxDB.Close())
	})
	return &fixture{
		api: New(ctx, Options{
			Sessions: db.NewSessionMaker(sqlxDB),
			Store:    notes.NewStore(),
		}),
		fdb: fdb,
	}
}

func (f *fixture) Do(t testing.TB, method, path string, body, v interface{}) (statusCode int) {
	t.Helper()

	var r bytes.Buffer
	if body != nil {
		assert.Assert(t, json.NewEncoder(&r).Encode(body))
	}
	req := httptest.NewRequest(method, path, &r)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	f.api.Handler().ServeHTTP(w, req)

	if v != nil {
		assert.Assert(t, json.Unmarshal(w.Body.Bytes(), v))
	}
	return w.Code
}

func (f *fixture) Get(t testing.TB, path string, v interface{}) int {
	t.Helper()
	return f.Do(t, http.MethodGet, path, nil, v)
}

func (f *fixture) Post(t testing.TB, path string, body, v interface{}) int {
	t.Helper()
	return f.Do(t, http.MethodPost, path, body, v)
}

var errBoom = errors.New("boom")
