package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/realtime-site-auditor/internal/audit"
	"github.com/JakeFAU/realtime-site-auditor/internal/browser/fake"
	"github.com/JakeFAU/realtime-site-auditor/internal/clock/system"
	"github.com/JakeFAU/realtime-site-auditor/internal/config"
	"github.com/JakeFAU/realtime-site-auditor/internal/hash/sha256"
	"github.com/JakeFAU/realtime-site-auditor/internal/id/uuid"
	"github.com/JakeFAU/realtime-site-auditor/internal/orchestrator"
	"github.com/JakeFAU/realtime-site-auditor/internal/postprocess"
	pubmem "github.com/JakeFAU/realtime-site-auditor/internal/publisher/memory"
	"github.com/JakeFAU/realtime-site-auditor/internal/runner"
	"github.com/JakeFAU/realtime-site-auditor/internal/storage/memory"
)

const unknownID = "0190a5d4-1c2b-7c3d-8e4f-000000000000"

// failingService fails every call with err.
type failingService struct {
	err error
}

func (f failingService) Submit(context.Context, audit.JobSpec) (*orchestrator.Task, error) {
	return nil, f.err
}

func (f failingService) Progress(context.Context, string) (audit.Progress, error) {
	return audit.NotFoundProgress(), f.err
}

func (f failingService) Stop(context.Context, string) error { return f.err }

func (f failingService) Results(context.Context, string) ([]audit.Result, error) {
	return nil, f.err
}

func (f failingService) Session(context.Context, string) (audit.Session, error) {
	return audit.Session{}, f.err
}

func (f failingService) List(context.Context, audit.SessionFilter) ([]audit.Session, error) {
	return nil, f.err
}

func (f failingService) Delete(context.Context, string) error { return f.err }

// newOrchestrator returns an orchestrator whose workers are never started,
// so submitted sessions stay queued and running.
func newOrchestrator(t *testing.T) *orchestrator.Orchestrator {
	t.Helper()
	pool := postprocess.New(1)
	t.Cleanup(func() { _ = pool.Close() })
	env := &runner.Env{
		Engine:  fake.New(),
		Results: memory.NewResultStore(),
		Blobs:   memory.NewBlobStore(),
		Pool:    pool,
		Clock:   system.New(),
		IDs:     uuid.NewUUIDGenerator(),
		Hasher:  sha256.New(),
		Timings: runner.InstantTimings,
	}
	orch, err := orchestrator.New(orchestrator.Config{MaxConcurrentAudits: 1, QueueDepth: 8}, runner.DefaultSet(), env, memory.NewSessionStore(), pubmem.New(), zap.NewNop())
	require.NoError(t, err)
	return orch
}

func newTestServer(t *testing.T, svc Service) *Server {
	t.Helper()
	return NewServer(svc, config.Config{}, nil, zap.NewNop())
}

func do(t *testing.T, s *Server, method, path string, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != "" {
		reader = bytes.NewReader([]byte(body))
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func submit(t *testing.T, s *Server, body string) string {
	t.Helper()
	rec := do(t, s, http.MethodPost, "/v1/sessions", body)
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	resp := decode[map[string]any](t, rec)
	id, ok := resp["session_id"].(string)
	require.True(t, ok)
	return id
}

func TestHealthAndReadiness(t *testing.T) {
	t.Parallel()

	s := newTestServer(t, newOrchestrator(t))
	rec := do(t, s, http.MethodGet, "/healthz", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	rec = do(t, s, http.MethodGet, "/readyz", "")
	require.Equal(t, http.StatusOK, rec.Code)

	notReady := NewServer(newOrchestrator(t), config.Config{}, func(context.Context) error {
		return errors.New("database unreachable")
	}, zap.NewNop())
	rec = do(t, notReady, http.MethodGet, "/readyz", "")
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	require.Contains(t, rec.Body.String(), "database unreachable")
}

func TestMetricsEndpoint(t *testing.T) {
	t.Parallel()

	s := newTestServer(t, newOrchestrator(t))
	do(t, s, http.MethodGet, "/healthz", "")
	rec := do(t, s, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "http_requests_total")
}

func TestSubmitSession(t *testing.T) {
	t.Parallel()

	s := newTestServer(t, newOrchestrator(t))
	rec := do(t, s, http.MethodPost, "/v1/sessions", `{
		"kind": "static",
		"urls": ["example.com", "example.org"],
		"browsers": ["chrome", "edge"],
		"viewports": ["1280x720"]
	}`)
	require.Equal(t, http.StatusAccepted, rec.Code)
	resp := decode[map[string]any](t, rec)
	assert.EqualValues(t, 4, resp["total_expected"])
	id := resp["session_id"].(string)

	rec = do(t, s, http.MethodGet, "/v1/sessions/"+id, "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode[map[string]audit.Session](t, rec)
	session := body["session"]
	assert.Equal(t, audit.KindStatic, session.Kind)
	assert.Equal(t, audit.StatusRunning, session.Status)
	assert.Equal(t, []string{"https://example.com", "https://example.org"}, session.Spec.URLs)
	assert.Equal(t, []audit.Browser{audit.BrowserChrome, audit.BrowserEdge}, session.Spec.Browsers)
}

func TestSubmitSessionRejectsBadInput(t *testing.T) {
	t.Parallel()

	s := newTestServer(t, newOrchestrator(t))
	cases := []struct {
		name string
		body string
		want string
	}{
		{"invalid json", `{invalid`, "invalid JSON"},
		{"unknown kind", `{"kind":"crawl","urls":["a.test"]}`, "unknown kind"},
		{"unknown browser", `{"kind":"static","urls":["a.test"],"browsers":["lynx"]}`, "unknown browser"},
		{"bad viewport", `{"kind":"static","urls":["a.test"],"viewports":["wide"]}`, "WIDTHxHEIGHT"},
		{"no urls", `{"kind":"heading","urls":[]}`, "at least one URL"},
		{"diff needs two urls", `{"kind":"visual_diff","urls":["a.test"]}`, "base and a compare"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			rec := do(t, s, http.MethodPost, "/v1/sessions", tc.body)
			require.Equal(t, http.StatusBadRequest, rec.Code)
			require.Contains(t, rec.Body.String(), tc.want)
		})
	}
}

func TestProgressAlwaysAnswers(t *testing.T) {
	t.Parallel()

	s := newTestServer(t, newOrchestrator(t))
	id := submit(t, s, `{"kind":"heading","urls":["a.test","b.test"]}`)

	rec := do(t, s, http.MethodGet, "/v1/sessions/"+id+"/progress", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, audit.Progress{Completed: 0, Total: 2, Status: audit.StatusRunning}, decode[audit.Progress](t, rec))

	for _, path := range []string{"/v1/sessions/" + unknownID + "/progress", "/v1/sessions/not-a-uuid/progress"} {
		rec = do(t, s, http.MethodGet, path, "")
		require.Equal(t, http.StatusOK, rec.Code)
		require.JSONEq(t, `{"completed":0,"total":0,"status":"not_found"}`, rec.Body.String())
	}
}

func TestStopSession(t *testing.T) {
	t.Parallel()

	s := newTestServer(t, newOrchestrator(t))
	id := submit(t, s, `{"kind":"phone","urls":["a.test"]}`)

	rec := do(t, s, http.MethodPost, "/v1/sessions/"+id+"/stop", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"session_id":"`+id+`","status":"stopped"}`, rec.Body.String())

	rec = do(t, s, http.MethodPost, "/v1/sessions/"+unknownID+"/stop", "")
	require.Equal(t, http.StatusNotFound, rec.Code)
	rec = do(t, s, http.MethodPost, "/v1/sessions/bogus/stop", "")
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestResultsAndList(t *testing.T) {
	t.Parallel()

	s := newTestServer(t, newOrchestrator(t))
	first := submit(t, s, `{"kind":"heading","urls":["a.test"],"owner":"ops"}`)
	second := submit(t, s, `{"kind":"accessibility","urls":["a.test"]}`)

	rec := do(t, s, http.MethodGet, "/v1/sessions/"+first+"/results", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"session_id":"`+first+`","results":[]}`, rec.Body.String())

	rec = do(t, s, http.MethodGet, "/v1/sessions/"+unknownID+"/results", "")
	require.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, s, http.MethodGet, "/v1/sessions?status=running&limit=10", "")
	require.Equal(t, http.StatusOK, rec.Code)
	listed := decode[map[string][]audit.Session](t, rec)["sessions"]
	require.Len(t, listed, 2)
	require.Equal(t, second, listed[0].ID)

	rec = do(t, s, http.MethodGet, "/v1/sessions?owner=ops", "")
	require.Equal(t, http.StatusOK, rec.Code)
	listed = decode[map[string][]audit.Session](t, rec)["sessions"]
	require.Len(t, listed, 1)
	require.Equal(t, first, listed[0].ID)

	rec = do(t, s, http.MethodGet, "/v1/sessions?status=completed", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"sessions":[]}`, rec.Body.String())

	for _, query := range []string{"?status=done", "?limit=0", "?offset=-1"} {
		rec = do(t, s, http.MethodGet, "/v1/sessions"+query, "")
		require.Equal(t, http.StatusBadRequest, rec.Code, query)
	}
}

func TestDeleteSession(t *testing.T) {
	t.Parallel()

	orch := newOrchestrator(t)
	s := newTestServer(t, orch)
	id := submit(t, s, `{"kind":"heading","urls":["a.test"]}`)

	// The session is queued behind unstarted workers; a shutdown resolves it.
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, orch.Shutdown(ctx))

	rec := do(t, s, http.MethodDelete, "/v1/sessions/"+id, "")
	require.Equal(t, http.StatusNoContent, rec.Code)
	rec = do(t, s, http.MethodGet, "/v1/sessions/"+id, "")
	require.Equal(t, http.StatusNotFound, rec.Code)
	rec = do(t, s, http.MethodDelete, "/v1/sessions/"+id, "")
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSubmitWhileShuttingDown(t *testing.T) {
	t.Parallel()

	orch := newOrchestrator(t)
	require.NoError(t, orch.Shutdown(context.Background()))
	s := newTestServer(t, orch)

	rec := do(t, s, http.MethodPost, "/v1/sessions", `{"kind":"heading","urls":["a.test"]}`)
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestServiceFailuresMapToServerErrors(t *testing.T) {
	t.Parallel()

	s := newTestServer(t, failingService{err: errors.New("database down")})
	cases := []struct {
		method string
		path   string
		body   string
		code   int
	}{
		{http.MethodPost, "/v1/sessions", `{"kind":"heading","urls":["a.test"]}`, http.StatusInternalServerError},
		{http.MethodGet, "/v1/sessions", "", http.StatusInternalServerError},
		{http.MethodGet, "/v1/sessions/" + unknownID, "", http.StatusInternalServerError},
		{http.MethodGet, "/v1/sessions/" + unknownID + "/results", "", http.StatusInternalServerError},
		{http.MethodPost, "/v1/sessions/" + unknownID + "/stop", "", http.StatusInternalServerError},
		{http.MethodDelete, "/v1/sessions/" + unknownID, "", http.StatusInternalServerError},
		{http.MethodGet, "/v1/sessions/" + unknownID + "/progress", "", http.StatusOK},
	}
	for _, tc := range cases {
		rec := do(t, s, tc.method, tc.path, tc.body)
		require.Equal(t, tc.code, rec.Code, "%s %s", tc.method, tc.path)
	}
}

func TestAPIKeyMiddleware(t *testing.T) {
	t.Parallel()

	cfg := config.Config{Auth: config.AuthConfig{Enabled: true, APIKey: "secret"}}
	s := NewServer(newOrchestrator(t), cfg, nil, zap.NewNop())

	rec := do(t, s, http.MethodGet, "/v1/sessions", "")
	require.Equal(t, http.StatusForbidden, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/v1/sessions", nil)
	req.Header.Set("X-API-Key", "secret")
	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, s, http.MethodGet, "/v1/sessions?api_key=secret", "")
	require.Equal(t, http.StatusOK, rec.Code)

	// Probes stay open.
	rec = do(t, s, http.MethodGet, "/healthz", "")
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestRecoverMiddleware(t *testing.T) {
	t.Parallel()

	handler := recoverMiddleware(zap.NewNop())(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	require.Contains(t, rec.Body.String(), "internal server error")
}

func TestRequestIDPropagates(t *testing.T) {
	t.Parallel()

	var seen string
	handler := requestIDMiddleware(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		seen = RequestID(r.Context())
	}))
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-ID", "req-123")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	require.Equal(t, "req-123", seen)
	require.Equal(t, "req-123", rec.Header().Get("X-Request-ID"))
}
