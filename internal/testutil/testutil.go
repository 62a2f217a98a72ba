// Package testutil holds helpers shared by package tests: a fixed mock
// timebase and HTTP round trips against handlers.
package testutil

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/banshee-data/vrcore/internal/timeutil"
)

// Epoch is the start time of clocks made by Timebase.
var Epoch = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

// Timebase returns a mock clock at Epoch and a monotonic timebase on it.
func Timebase() (*timeutil.MockClock, *timeutil.Monotonic) {
	mc := timeutil.NewMockClock(Epoch)
	return mc, timeutil.NewMonotonic(mc)
}

// Serve sends a request with an optional string body to h and returns the
// recorded response.
func Serve(t testing.TB, h http.Handler, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(method, target, r))
	return rec
}

// DecodeJSON decodes the recorded body into a T, failing the test on error.
func DecodeJSON[T any](t testing.TB, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&v), "body: %s", rec.Body.String())
	return v
}
