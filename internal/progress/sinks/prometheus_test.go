package sinks

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/JakeFAU/realtime-site-auditor/internal/audit"
	"github.com/JakeFAU/realtime-site-auditor/internal/progress"
)

func sessionBatch(id string, terminal progress.Stage) []progress.Event {
	now := time.Now()
	return []progress.Event{
		{SessionID: id, TS: now, Stage: progress.StageSessionStart, Kind: audit.KindStatic},
		{
			SessionID: id, TS: now, Stage: progress.StageUnitDone, Kind: audit.KindStatic,
			URL: "https://example.com", Browser: audit.BrowserChrome, Outcome: progress.OutcomeOK,
			Completed: 1, Total: 2, Dur: 2 * time.Second,
		},
		{
			SessionID: id, TS: now, Stage: progress.StageUnitDone, Kind: audit.KindStatic,
			URL: "https://example.com/b", Browser: audit.BrowserChrome, Outcome: progress.OutcomeError,
			Completed: 2, Total: 2,
		},
		{SessionID: id, TS: now, Stage: terminal, Kind: audit.KindStatic, Completed: 2, Total: 2, Dur: 10 * time.Second},
	}
}

func TestPrometheusSinkRecordsMetrics(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	sink, err := NewPrometheusSink(reg)
	require.NoError(t, err)

	require.NoError(t, sink.Consume(context.Background(), sessionBatch("s1", progress.StageSessionDone)))

	require.Equal(t, 1.0, testutil.ToFloat64(sink.sessionsStarted.WithLabelValues("static")))
	require.Equal(t, 1.0, testutil.ToFloat64(sink.sessionsFinished.WithLabelValues("static", "completed")))
	require.Equal(t, 0.0, testutil.ToFloat64(sink.sessionsRunning))
	require.Equal(t, 1.0, testutil.ToFloat64(sink.units.WithLabelValues("static", "ok")))
	require.Equal(t, 1.0, testutil.ToFloat64(sink.units.WithLabelValues("static", "error")))
	require.Equal(t, 1, testutil.CollectAndCount(sink.unitDuration, "auditor_progress_unit_duration_seconds"))
	require.Equal(t, 1, testutil.CollectAndCount(sink.sessionRuntime, "auditor_progress_session_runtime_seconds"))
}

func TestPrometheusSinkRunningGauge(t *testing.T) {
	t.Parallel()

	sink, err := NewPrometheusSink(prometheus.NewRegistry())
	require.NoError(t, err)

	start := progress.Event{SessionID: "s2", TS: time.Now(), Stage: progress.StageSessionStart, Kind: audit.KindVideo}
	require.NoError(t, sink.Consume(context.Background(), []progress.Event{start, start}))
	require.Equal(t, 1.0, testutil.ToFloat64(sink.sessionsRunning))

	stop := progress.Event{SessionID: "s2", TS: time.Now(), Stage: progress.StageSessionStopped, Kind: audit.KindVideo}
	require.NoError(t, sink.Consume(context.Background(), []progress.Event{stop, stop}))
	require.Equal(t, 0.0, testutil.ToFloat64(sink.sessionsRunning))
	require.Equal(t, 2.0, testutil.ToFloat64(sink.sessionsFinished.WithLabelValues("video", "stopped")))
}

func TestPrometheusSinkDuplicateRegistration(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	_, err := NewPrometheusSink(reg)
	require.NoError(t, err)
	_, err = NewPrometheusSink(reg)
	require.Error(t, err)
}

func TestLogSinkLevels(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zap.DebugLevel)
	sink := NewLogSink(zap.New(core))
	require.NoError(t, sink.Consume(context.Background(), sessionBatch("s3", progress.StageSessionError)))

	entries := logs.All()
	require.Len(t, entries, 4)
	require.Equal(t, zap.InfoLevel, entries[0].Level)
	require.Equal(t, zap.DebugLevel, entries[1].Level)
	require.Equal(t, "error", entries[2].ContextMap()["outcome"])
	require.Equal(t, "SESSION_ERROR", entries[3].ContextMap()["stage"])
	require.NoError(t, sink.Close(context.Background()))
}
