package cli

import (
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func useServer(t *testing.T, h http.HandlerFunc) {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	previous := client
	client = NewClient(srv.URL)
	t.Cleanup(func() { client = previous })
}

func TestWaitHealthy_RetriesUntilUp(t *testing.T) {
	var calls atomic.Int32
	useServer(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{"status":"ok","active_lobbies":2}`))
	})

	result, err := waitHealthy(time.Second, 10*time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, HealthResult{Status: "ok", ActiveLobbies: 2}, result)
	assert.Equal(t, int32(3), calls.Load())
}

func TestWaitHealthy_NoWaitFailsOnce(t *testing.T) {
	var calls atomic.Int32
	useServer(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	})

	_, err := waitHealthy(0, 10*time.Millisecond)
	assert.Error(t, err)
	assert.Equal(t, int32(1), calls.Load())
}

func TestWaitHealthy_GivesUp(t *testing.T) {
	useServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})

	_, err := waitHealthy(50*time.Millisecond, 10*time.Millisecond)
	assert.ErrorContains(t, err, "not healthy after 50ms")
}
