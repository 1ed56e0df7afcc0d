package middleware

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/payouts-backend/pkg/logger"
)

func bufferedLogger(buf *bytes.Buffer) *logger.Logger {
	return logger.New(logger.Options{ServiceName: "middleware-test", Level: zerolog.DebugLevel, Output: buf})
}

func logLines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var lines []map[string]any
	for _, raw := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if raw == "" {
			continue
		}
		var line map[string]any
		require.NoError(t, json.Unmarshal([]byte(raw), &line))
		lines = append(lines, line)
	}
	return lines
}

func TestRequestIDPropagatesValidHeader(t *testing.T) {
	var seen string
	handler := RequestID(logger.New(logger.Options{ServiceName: "test", Output: &bytes.Buffer{}}))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = logger.RequestIDFromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeader, "edge-123:abc")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.Equal(t, "edge-123:abc", seen)
	require.Equal(t, "edge-123:abc", rec.Header().Get(RequestIDHeader))
}

func TestRequestIDReplacesUnsafeHeader(t *testing.T) {
	handler := RequestID(nil)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeader, "bad id\nwith newline")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	got := rec.Header().Get(RequestIDHeader)
	require.NotEqual(t, "bad id\nwith newline", got)
	require.Len(t, got, 36)
}

func TestLoggingRecordsRouteAndStatus(t *testing.T) {
	var buf bytes.Buffer
	logg := bufferedLogger(&buf)

	r := chi.NewRouter()
	r.Use(Logging(logg))
	r.Get("/api/v1/vouchers/{voucherId}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte("missing"))
	})

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/v1/vouchers/v-1", nil))

	lines := logLines(t, &buf)
	require.Len(t, lines, 1)
	line := lines[0]
	require.Equal(t, "request.complete", line["message"])
	require.Equal(t, "info", line["level"])
	require.Equal(t, float64(http.StatusNotFound), line["status"])
	require.Equal(t, float64(len("missing")), line["bytes"])
	require.Equal(t, "/api/v1/vouchers/{voucherId}", line["route"])
}

func TestLoggingQuietsHealthProbes(t *testing.T) {
	var buf bytes.Buffer
	handler := Logging(bufferedLogger(&buf))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/health/live", nil))

	lines := logLines(t, &buf)
	require.Len(t, lines, 1)
	require.Equal(t, "debug", lines[0]["level"])
}

func TestRecovererWritesInternalError(t *testing.T) {
	var buf bytes.Buffer
	handler := Recoverer(bufferedLogger(&buf))(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("ledger exploded")
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/vouchers/redeem", nil))

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	require.NotContains(t, rec.Body.String(), "ledger exploded")

	lines := logLines(t, &buf)
	require.NotEmpty(t, lines)
	require.Equal(t, "panic.recovered", lines[0]["message"])
	require.Contains(t, lines[0]["stack"], "runtime/debug")
}

func TestRecovererRepanicsAbortHandler(t *testing.T) {
	handler := Recoverer(nil)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic(http.ErrAbortHandler)
	}))

	require.PanicsWithValue(t, http.ErrAbortHandler, func() {
		handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	})
}
