package httpapi

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/hamed0406/uptimepinger/internal/reconcile"
)

type fakeRegistry struct {
	ready bool
	snap  reconcile.Snapshot
}

func (f *fakeRegistry) Snapshot() reconcile.Snapshot { return f.snap }
func (f *fakeRegistry) Ready() bool                   { return f.ready }

func setupRouter(t *testing.T, reg *fakeRegistry, opts Options) http.Handler {
	t.Helper()
	return NewServer(zap.NewNop(), reg, opts).Router()
}

func do(h http.Handler, method, path string, hdr map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	req.RemoteAddr = "192.0.2.10:5555"
	for k, v := range hdr {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHealthAndReadiness(t *testing.T) {
	reg := &fakeRegistry{}
	h := setupRouter(t, reg, Options{})

	require.Equal(t, http.StatusOK, do(h, http.MethodGet, "/healthz", nil).Code)
	require.Equal(t, http.StatusServiceUnavailable, do(h, http.MethodGet, "/readyz", nil).Code)

	reg.ready = true
	require.Equal(t, http.StatusOK, do(h, http.MethodGet, "/readyz", nil).Code)
}

func TestMetricsEndpoint(t *testing.T) {
	rec := do(setupRouter(t, &fakeRegistry{}, Options{}), http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "pinger_reconcile_duration_seconds")
}

func TestWorkersEndpoint(t *testing.T) {
	reg := &fakeRegistry{snap: reconcile.Snapshot{
		Generation: 7,
		Workers: []reconcile.WorkerInfo{
			{TargetID: "a", Name: "api", Generation: 7, Alive: true},
			{TargetID: "b", Name: "dns", Generation: 7, Poisoned: true, Error: "invalid metadata"},
		},
	}}
	h := setupRouter(t, reg, Options{APIKeys: []string{"k1"}})

	require.Equal(t, http.StatusUnauthorized, do(h, http.MethodGet, "/api/workers", nil).Code)

	rec := do(h, http.MethodGet, "/api/workers", map[string]string{"X-API-Key": "k1"})
	require.Equal(t, http.StatusOK, rec.Code)
	var snap reconcile.Snapshot
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&snap))
	require.Equal(t, uint64(7), snap.Generation)
	require.Len(t, snap.Workers, 2)

	rec = do(h, http.MethodGet, "/api/workers/b", map[string]string{"Authorization": "Bearer k1"})
	require.Equal(t, http.StatusOK, rec.Code)
	var wi reconcile.WorkerInfo
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&wi))
	require.True(t, wi.Poisoned)

	rec = do(h, http.MethodGet, "/api/workers/zzz", map[string]string{"X-API-Key": "k1"})
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestWorkersEndpoint_RateLimited(t *testing.T) {
	h := setupRouter(t, &fakeRegistry{}, Options{RPM: 60, Burst: 1})
	require.Equal(t, http.StatusOK, do(h, http.MethodGet, "/api/workers", nil).Code)
	require.Equal(t, http.StatusTooManyRequests, do(h, http.MethodGet, "/api/workers", nil).Code)
	// health checks are not limited
	require.Equal(t, http.StatusOK, do(h, http.MethodGet, "/healthz", nil).Code)
}

func TestListenAndServe_StopsOnCancel(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := l.Addr().String()
	require.NoError(t, l.Close())

	s := NewServer(zap.NewNop(), &fakeRegistry{ready: true}, Options{})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.ListenAndServe(ctx, addr) }()

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + addr + "/healthz")
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("server did not stop")
	}
}
