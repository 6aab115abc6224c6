package server

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/realtime-site-auditor/internal/audit"
	"github.com/JakeFAU/realtime-site-auditor/internal/config"
)

func memoryConfig(t *testing.T) config.Config {
	t.Helper()
	cfg, err := config.Load("")
	require.NoError(t, err)
	cfg.Logging.Level = "error"
	cfg.Progress.PrometheusEnabled = false
	cfg.Artifacts.TempFramesDir = t.TempDir()
	cfg.Browser.UserAgents = map[string]string{"safari": "custom-safari"}
	return cfg
}

func TestBuildInMemoryServesAPI(t *testing.T) {
	ctx := context.Background()
	app, err := Build(ctx, memoryConfig(t))
	require.NoError(t, err)
	require.NotNil(t, app.Orchestrator())
	require.NotNil(t, app.Logger())
	assert.Nil(t, app.db)
	assert.Nil(t, app.pubsubClient)

	rec := httptest.NewRecorder()
	app.apiServer.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	body := []byte(`{"kind":"heading","urls":["https://example.com"]}`)
	rec = httptest.NewRecorder()
	app.apiServer.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/sessions", bytes.NewReader(body)))
	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Len(t, app.Orchestrator().Active(), 1)

	require.NoError(t, app.Close(ctx))
	assert.Empty(t, app.Orchestrator().Active())
}

func TestSetupRunnerEnvRejectsUnknownBrowser(t *testing.T) {
	t.Parallel()

	cfg := memoryConfig(t)
	cfg.Browser.UserAgents = map[string]string{"netscape": "ua"}
	app := &App{cfg: cfg, logger: zap.NewNop()}
	_, err := app.setupRunnerEnv(nil, nil, nil)
	require.ErrorContains(t, err, "browser.user_agents")
}

func TestSetupStorageBackends(t *testing.T) {
	t.Parallel()

	cfg := memoryConfig(t)
	app := &App{cfg: cfg, logger: zap.NewNop()}
	blobs, err := app.setupStorage(context.Background())
	require.NoError(t, err)
	uri, err := blobs.PutObject(context.Background(), "s/a.txt", "text/plain", bytes.NewReader([]byte("x")))
	require.NoError(t, err)
	assert.NotEmpty(t, uri)

	cfg.Storage.Backend = "local"
	cfg.Storage.Local.BaseDir = t.TempDir()
	app = &App{cfg: cfg, logger: zap.NewNop()}
	blobs, err = app.setupStorage(context.Background())
	require.NoError(t, err)
	_, err = blobs.PutObject(context.Background(), "s/a.txt", "text/plain", bytes.NewReader([]byte("x")))
	require.NoError(t, err)
	require.NoError(t, blobs.DeletePrefix(context.Background(), "s/"))
}

func TestSetupPublisherFallsBackToMemory(t *testing.T) {
	t.Parallel()

	app := &App{cfg: memoryConfig(t), logger: zap.NewNop()}
	pub, err := app.setupPublisher(context.Background())
	require.NoError(t, err)
	_, err = pub.Publish(context.Background(), "audits", map[string]string{"k": "v"})
	require.NoError(t, err)
	assert.Nil(t, app.publisher)
}

func TestSetupDatabaseWithoutDSNUsesMemory(t *testing.T) {
	t.Parallel()

	app := &App{cfg: memoryConfig(t), logger: zap.NewNop()}
	sessions, results, err := app.setupDatabase(context.Background())
	require.NoError(t, err)
	require.NoError(t, sessions.CreateSession(context.Background(), audit.Session{ID: "s1", Kind: audit.KindHeading}))
	got, err := results.ListResults(context.Background(), "s1")
	require.NoError(t, err)
	assert.Empty(t, got)
	require.NoError(t, app.ready(context.Background()))
}
