package telemetry

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"":      slog.LevelInfo,
		"DEBUG": slog.LevelDebug,
		"debug": slog.LevelDebug,
		"WARN":  slog.LevelWarn,
		"ERROR": slog.LevelError,
		"bogus": slog.LevelInfo,
	}
	for value, want := range tests {
		t.Setenv("LOG_LEVEL", value)
		assert.Equal(t, want, LogLevel(), "LOG_LEVEL=%q", value)
	}
}

func TestSetupLogger_JSON(t *testing.T) {
	t.Setenv("LOG_LEVEL", "INFO")
	t.Setenv("LOG_FORMAT", "")

	var buf bytes.Buffer
	logger := WithStep(WithRunID(setupLogger(&buf), "run-1"), "download", 2)
	logger.Info("step started")

	var record map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &record))
	assert.Equal(t, "step started", record["msg"])
	assert.Equal(t, "run-1", record["run_id"])
	assert.Equal(t, "download", record["step"])
	assert.EqualValues(t, 2, record["step_number"])
}

func TestSetupLogger_Text(t *testing.T) {
	t.Setenv("LOG_FORMAT", "text")

	var buf bytes.Buffer
	setupLogger(&buf).Info("hello", "key", "value")
	assert.Contains(t, buf.String(), "key=value")
}

func TestContextLogger(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
	ctx := WithLogger(context.Background(), logger)
	assert.Same(t, logger, FromContext(ctx))
	assert.NotNil(t, FromContext(context.Background()))
}

func TestMetrics_ObserveRun(t *testing.T) {
	m := NewMetrics()
	finished := time.Unix(1_700_000_000, 0)

	m.ObserveStep("download", "SUCCEEDED", 2*time.Second)
	m.ObserveRun("CLEANED_UP", 90*time.Second, finished, true)
	m.ObserveRun("FAILED", 10*time.Second, finished.Add(time.Hour), false)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.runsTotal.WithLabelValues("CLEANED_UP")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.runsTotal.WithLabelValues("FAILED")))
	assert.Equal(t, 10.0, testutil.ToFloat64(m.runDuration))
	assert.Equal(t, float64(finished.Unix()), testutil.ToFloat64(m.lastSuccess))
	assert.Equal(t, float64(finished.Add(time.Hour).Unix()), testutil.ToFloat64(m.lastCompletion))
	assert.Equal(t, 1, testutil.CollectAndCount(m.stepDuration))
}

func TestMetrics_Push(t *testing.T) {
	var gotMethod, gotPath string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotPath = r.URL.Path
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	m := NewMetrics()
	m.ObserveRun("CLEANED_UP", time.Second, time.Now(), true)

	require.NoError(t, m.Push(context.Background(), server.URL, "engagement_workflow"))
	assert.Equal(t, http.MethodPut, gotMethod)
	assert.Equal(t, "/metrics/job/engagement_workflow", gotPath)
}

func TestMetrics_PushError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	err := NewMetrics().Push(context.Background(), server.URL, "job")
	assert.ErrorContains(t, err, "push metrics")
}
