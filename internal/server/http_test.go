package server

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"TaskSync/internal/biz"
	"TaskSync/internal/conf"
	"TaskSync/internal/data"
	"TaskSync/internal/service"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/types/known/durationpb"
)

// fakeTaskmaster is a stand-in for the TaskMaster dashboard API.
type fakeTaskmaster struct {
	srv       *httptest.Server
	syncCalls atomic.Int32
}

func newFakeTaskmaster(t *testing.T) *fakeTaskmaster {
	t.Helper()
	f := &fakeTaskmaster{}
	f.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/api/health":
			w.WriteHeader(http.StatusOK)
		case strings.HasPrefix(r.URL.Path, "/api/sync/"):
			f.syncCalls.Add(1)
			w.WriteHeader(http.StatusOK)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(f.srv.Close)
	return f
}

// newTestServer wires a full daemon stack against the fake API and exposes
// it through httptest. apiKey configures the auth middleware.
func newTestServer(t *testing.T, apiKey string) (*httptest.Server, *fakeTaskmaster) {
	t.Helper()

	logger := log.NewStdLogger(os.Stdout)
	tm := newFakeTaskmaster(t)

	watchPath := filepath.Join(t.TempDir(), "tasks.json")
	require.NoError(t, os.WriteFile(watchPath, []byte(`{"tasks":[]}`), 0o644))

	bc := &conf.Bootstrap{
		Server: &conf.Server{
			Http: &conf.Server_HTTP{
				Addr:    "127.0.0.1:0",
				Timeout: durationpb.New(5 * time.Second),
				ApiKey:  apiKey,
			},
		},
		Watch: &conf.Watch{
			File:     watchPath,
			Debounce: durationpb.New(20 * time.Millisecond),
		},
		Sync: &conf.Sync{
			ApiBase:              tm.srv.URL,
			Dependency:           "taskmaster",
			HealthPath:           "/api/health",
			Timeout:              durationpb.New(time.Second),
			HealthTimeout:        durationpb.New(200 * time.Millisecond),
			MaxConsecutiveErrors: 5,
			FallbackCommand:      []string{"true"},
			FallbackTimeout:      durationpb.New(time.Second),
		},
		Breaker: &conf.Breaker{
			FailureThreshold: 5,
			ResetTimeout:     durationpb.New(30 * time.Second),
		},
		AIProxy: &conf.AIProxy{
			Base:       tm.srv.URL,
			HealthPath: "/api/health",
		},
		Data: &conf.Data{Redis: &conf.Data_Redis{}},
	}

	registry := biz.NewBreakerRegistry(logger)
	probe := biz.NewHealthProbe(logger)
	watcher := biz.NewWatcherFromConf(bc, logger)
	gateway := data.NewTaskmasterRepo(bc, logger)
	fallback := data.NewCommandRunner(bc, logger)

	d, dCleanup, err := data.NewData(bc.Data, logger, nil)
	require.NoError(t, err)
	t.Cleanup(dCleanup)
	publisher := data.NewStatusRepo(d, logger)

	uc := biz.NewSyncUsecase(biz.NewSyncConfig(bc), gateway, fallback, publisher,
		registry, probe, watcher, logger)
	svc := service.NewSyncService(uc, registry, probe, bc, logger)

	httpSrv := NewHTTPServer(bc.Server, svc, logger)
	ts := httptest.NewServer(httpSrv)
	t.Cleanup(ts.Close)

	return ts, tm
}

func getJSON(t *testing.T, url string) (int, map[string]interface{}) {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	var decoded map[string]interface{}
	if len(body) > 0 {
		_ = json.Unmarshal(body, &decoded)
	}
	return resp.StatusCode, decoded
}

func postJSON(t *testing.T, url, apiKey, body string) (int, map[string]interface{}) {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, url, strings.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+apiKey)
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	var decoded map[string]interface{}
	if len(raw) > 0 {
		_ = json.Unmarshal(raw, &decoded)
	}
	return resp.StatusCode, decoded
}

func TestHTTP_Health(t *testing.T) {
	ts, _ := newTestServer(t, "")

	status, body := getJSON(t, ts.URL+"/health")
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, false, body["halted"])
}

func TestHTTP_SyncStatus(t *testing.T) {
	ts, _ := newTestServer(t, "")

	status, body := getJSON(t, ts.URL+"/api/sync/status")
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, false, body["is_watching"])
	assert.Equal(t, float64(0), body["sync_count"])
	assert.Equal(t, float64(20), body["debounce_ms"])
}

func TestHTTP_TriggerSync(t *testing.T) {
	ts, tm := newTestServer(t, "")

	status, body := postJSON(t, ts.URL+"/api/sync/trigger", "", "")
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, int32(1), tm.syncCalls.Load())

	status, body = getJSON(t, ts.URL+"/api/sync/status")
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, float64(1), body["sync_count"])
}

func TestHTTP_Breakers(t *testing.T) {
	ts, _ := newTestServer(t, "")

	// A trigger registers the primary breaker.
	postStatus, _ := postJSON(t, ts.URL+"/api/sync/trigger", "", "")
	require.Equal(t, http.StatusOK, postStatus)

	status, body := getJSON(t, ts.URL+"/api/breakers")
	assert.Equal(t, http.StatusOK, status)

	breakers, ok := body["breakers"].([]interface{})
	require.True(t, ok)
	require.NotEmpty(t, breakers)

	first := breakers[0].(map[string]interface{})
	assert.Equal(t, "taskmaster-sync", first["name"])
	assert.Equal(t, "closed", first["state"])
}

func TestHTTP_BreakersResetUnknownName(t *testing.T) {
	ts, _ := newTestServer(t, "")

	status, _ := postJSON(t, ts.URL+"/api/breakers/reset", "", `{"name":"no-such-breaker"}`)
	assert.Equal(t, http.StatusNotFound, status)
}

func TestHTTP_BreakersResetAll(t *testing.T) {
	ts, _ := newTestServer(t, "")

	status, body := postJSON(t, ts.URL+"/api/breakers/reset", "", "")
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "ok", body["status"])
}

func TestHTTP_Dependencies(t *testing.T) {
	ts, _ := newTestServer(t, "")

	status, body := getJSON(t, ts.URL+"/api/dependencies")
	assert.Equal(t, http.StatusOK, status)

	deps, ok := body["dependencies"].([]interface{})
	require.True(t, ok)
	require.Len(t, deps, 2)

	first := deps[0].(map[string]interface{})
	assert.Equal(t, "taskmaster", first["name"])
	assert.Equal(t, true, first["healthy"])
}

func TestHTTP_AuthRequiredOnMutations(t *testing.T) {
	ts, tm := newTestServer(t, "secret-key")

	// Reads stay open for dashboard polling.
	status, _ := getJSON(t, ts.URL+"/api/sync/status")
	assert.Equal(t, http.StatusOK, status)

	// Mutations without the key are rejected before reaching the usecase.
	status, _ = postJSON(t, ts.URL+"/api/sync/trigger", "", "")
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, int32(0), tm.syncCalls.Load())

	status, _ = postJSON(t, ts.URL+"/api/sync/trigger", "wrong-key", "")
	assert.Equal(t, http.StatusUnauthorized, status)

	status, _ = postJSON(t, ts.URL+"/api/sync/trigger", "secret-key", "")
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, int32(1), tm.syncCalls.Load())
}
