package logging

import (
	"bytes"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]interface{} {
	t.Helper()
	var out []map[string]interface{}
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var entry map[string]interface{}
		require.NoError(t, json.Unmarshal([]byte(line), &entry), line)
		out = append(out, entry)
	}
	return out
}

func TestLoggerLevels(t *testing.T) {
	tests := []struct {
		level LogLevel
		want  []string
	}{
		{DebugLevel, []string{"debug", "info", "warn", "error"}},
		{InfoLevel, []string{"info", "warn", "error"}},
		{WarnLevel, []string{"warn", "error"}},
		{ErrorLevel, []string{"error"}},
	}
	for _, tt := range tests {
		t.Run(string(tt.level), func(t *testing.T) {
			var buf bytes.Buffer
			l := New(tt.level, &buf)
			l.Debug("debug")
			l.Info("info")
			l.Warn("warn")
			l.Error("error")

			var got []string
			for _, e := range decodeLines(t, &buf) {
				got = append(got, e["message"].(string))
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestLoggerFields(t *testing.T) {
	var buf bytes.Buffer
	base := New(InfoLevel, &buf).WithField("component", "abc")
	base.WithError(errors.New("boom")).Info("run failed", map[string]interface{}{"iteration": 3})
	base.Info("plain")

	entries := decodeLines(t, &buf)
	require.Len(t, entries, 2)
	assert.Equal(t, "abc", entries[0]["component"])
	assert.Equal(t, "boom", entries[0]["error"])
	assert.Equal(t, float64(3), entries[0]["iteration"])
	assert.Equal(t, "INFO", entries[0]["level"])
	assert.Contains(t, entries[0]["caller"], "logging/logger_test.go")

	_, leaked := entries[1]["error"]
	assert.False(t, leaked, "WithError must not modify the parent logger")
}

func TestTextFormat(t *testing.T) {
	var buf bytes.Buffer
	l, err := NewLogger(&Config{Level: "debug", Format: "text", Output: "stdout"})
	require.NoError(t, err)
	l = New(l.Level(), &buf).WithFormat(TextFormat)

	l.WithFields(map[string]interface{}{"b": 2, "a": 1}).Warn("hello")
	line := buf.String()
	assert.Contains(t, line, "WARN  hello")
	assert.Less(t, strings.Index(line, " a=1"), strings.Index(line, " b=2"))
	assert.True(t, strings.HasSuffix(line, "\n"))
}

func TestNewLogger(t *testing.T) {
	l, err := NewLogger(nil)
	require.NoError(t, err)
	assert.Equal(t, InfoLevel, l.Level())

	l, err = NewLogger(&Config{Level: "warning", Output: "stderr"})
	require.NoError(t, err)
	assert.Equal(t, WarnLevel, l.Level())

	_, err = NewLogger(&Config{Level: "info", Output: t.TempDir()})
	assert.Error(t, err, "a directory is not a writable log file")
}

func TestConcurrentWrites(t *testing.T) {
	var buf bytes.Buffer
	l := New(InfoLevel, &buf)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			child := l.WithField("worker", i)
			for j := 0; j < 50; j++ {
				child.Info("tick")
			}
		}(i)
	}
	wg.Wait()

	assert.Len(t, decodeLines(t, &buf), 400)
}

func TestZapLogger(t *testing.T) {
	var buf bytes.Buffer
	zl := NewZapLogger(New(InfoLevel, &buf)).With(zap.String("run", "r1"))

	zl.Debug("hidden")
	zl.Info("iteration",
		zap.Int("iteration", 4),
		zap.Float64("best_cost", 0.125),
		zap.Float64("worst_cost", math.Inf(1)),
		zap.Bool("converged", true),
		zap.Error(errors.New("bad objective")),
		zap.Float64s("position", []float64{0.5, 0.25}),
	)

	entries := decodeLines(t, &buf)
	require.Len(t, entries, 1)
	e := entries[0]
	assert.Equal(t, "r1", e["run"])
	assert.Equal(t, float64(4), e["iteration"])
	assert.Equal(t, 0.125, e["best_cost"])
	assert.Equal(t, "+Inf", e["worst_cost"])
	assert.Equal(t, true, e["converged"])
	assert.Equal(t, "bad objective", e["error"])
	assert.Equal(t, []interface{}{0.5, 0.25}, e["position"])
}

func TestMiddleware(t *testing.T) {
	var buf bytes.Buffer
	logger := New(InfoLevel, &buf)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(Middleware(logger))
	r.Get("/ok", func(w http.ResponseWriter, r *http.Request) {
		FromContext(r.Context()).Info("inside handler")
		w.WriteHeader(http.StatusOK)
	})
	r.Get("/missing", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})

	for _, path := range []string{"/ok", "/missing"} {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	}

	entries := decodeLines(t, &buf)
	require.Len(t, entries, 3)
	assert.Equal(t, "inside handler", entries[0]["message"])
	assert.Equal(t, "/ok", entries[0]["path"])
	assert.NotEmpty(t, entries[0]["request_id"])
	assert.Equal(t, "Request completed", entries[1]["message"])
	assert.Equal(t, float64(200), entries[1]["status"])
	assert.Equal(t, "Request rejected", entries[2]["message"])
	assert.Equal(t, "WARN", entries[2]["level"])
}
