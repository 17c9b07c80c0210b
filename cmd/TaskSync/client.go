package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/exec"
	"strings"
	"time"

	"TaskSync/internal/biz"
	"TaskSync/internal/conf"
	"TaskSync/internal/data"
	"TaskSync/internal/model"
	zapLogger "TaskSync/pkg/log"

	"github.com/go-kratos/kratos/v2/log"
)

// clientTimeout bounds every one-shot CLI request.
const clientTimeout = 10 * time.Second

// daemonBaseURL derives the local daemon URL from the configured listen
// address. Wildcard binds are dialed via loopback.
func daemonBaseURL(bc *conf.Bootstrap) string {
	addr := bc.Server.Http.Addr
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return "http://127.0.0.1:8600"
	}
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "127.0.0.1"
	}
	return fmt.Sprintf("http://%s", net.JoinHostPort(host, port))
}

// daemonRequest performs one request against the running daemon and returns
// the response body.
func daemonRequest(bc *conf.Bootstrap, method, path string) ([]byte, int, error) {
	ctx, cancel := context.WithTimeout(context.Background(), clientTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, method, daemonBaseURL(bc)+path, nil)
	if err != nil {
		return nil, 0, err
	}
	if key := bc.Server.Http.ApiKey; key != "" {
		req.Header.Set("Authorization", "Bearer "+key)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, err
	}
	return body, resp.StatusCode, nil
}

// runSync performs one manual sync in-process, independent of any running
// daemon: same pre-flight, breaker and fallback path, same status mirror.
func runSync(bc *conf.Bootstrap) int {
	zapLog, err := zapLogger.NewZapLogger(bc.Log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "sync failed: %v\n", err)
		return 1
	}
	defer zapLog.Sync()
	logger := zapLogger.NewKratosAdapter(zapLog)

	rdb, rdbCleanup, err := data.NewRedisClient(bc.Data, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "sync failed: %v\n", err)
		return 1
	}
	defer rdbCleanup()

	d, dCleanup, err := data.NewData(bc.Data, logger, rdb)
	if err != nil {
		fmt.Fprintf(os.Stderr, "sync failed: %v\n", err)
		return 1
	}
	defer dCleanup()

	registry := biz.NewBreakerRegistry(logger)
	uc := biz.NewSyncUsecase(
		biz.NewSyncConfig(bc),
		data.NewTaskmasterRepo(bc, logger),
		data.NewCommandRunner(bc, logger),
		data.NewStatusRepo(d, logger),
		registry,
		biz.NewHealthProbe(logger),
		biz.NewWatcherFromConf(bc, logger),
		logger,
	)

	ctx, cancel := context.WithTimeout(context.Background(),
		bc.Sync.Timeout.AsDuration()+bc.Sync.FallbackTimeout.AsDuration()+clientTimeout)
	defer cancel()

	if err := uc.ManualSync(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "sync failed: %v\n", err)
		return 1
	}

	fmt.Println("sync completed")
	return 0
}

// runStatus prints the daemon's sync and breaker status. When the daemon is
// unreachable it falls back to the Redis status mirror, which survives the
// daemon for a few minutes.
func runStatus(bc *conf.Bootstrap) int {
	syncBody, status, err := daemonRequest(bc, http.MethodGet, "/api/sync/status")
	if err == nil && status == http.StatusOK {
		breakerBody, _, berr := daemonRequest(bc, http.MethodGet, "/api/breakers")
		printStatusJSON(syncBody)
		if berr == nil {
			printStatusJSON(breakerBody)
		}
		return 0
	}

	fmt.Fprintf(os.Stderr, "daemon unreachable at %s, reading status mirror\n", daemonBaseURL(bc))
	return runStatusFromMirror(bc)
}

// runStatusFromMirror reads the last mirrored snapshots from Redis.
func runStatusFromMirror(bc *conf.Bootstrap) int {
	logger := log.NewStdLogger(io.Discard)

	rdb, cleanup, err := data.NewRedisClient(bc.Data, logger)
	if err != nil || rdb == nil {
		fmt.Fprintln(os.Stderr, "status unavailable: daemon not running and no status mirror configured")
		return 1
	}
	defer cleanup()

	d, dCleanup, err := data.NewData(bc.Data, logger, rdb)
	if err != nil {
		fmt.Fprintf(os.Stderr, "status unavailable: %v\n", err)
		return 1
	}
	defer dCleanup()

	repo := data.NewStatusRepo(d, logger)
	ctx, cancel := context.WithTimeout(context.Background(), clientTimeout)
	defer cancel()

	syncStatus, err := repo.LoadSyncStatus(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "status unavailable: %v\n", err)
		return 1
	}
	if syncStatus == nil {
		fmt.Fprintln(os.Stderr, "status unavailable: no mirrored snapshot (daemon never ran or mirror expired)")
		return 1
	}

	printStatusValue(syncStatus)

	breakers, err := repo.LoadBreakerStatuses(ctx)
	if err == nil && len(breakers) > 0 {
		printStatusValue(map[string][]model.BreakerStatus{"breakers": breakers})
	}

	return 0
}

// runTest probes every monitored dependency and checks the fallback command
// is executable. Exit code 0 means everything is reachable.
func runTest(bc *conf.Bootstrap) int {
	logger := log.NewStdLogger(io.Discard)
	probe := biz.NewHealthProbe(logger)

	ctx, cancel := context.WithTimeout(context.Background(), clientTimeout)
	defer cancel()

	timeout := bc.Sync.HealthTimeout.AsDuration()
	failed := 0

	if _, err := os.Stat(bc.Watch.File); err != nil {
		fmt.Printf("FAIL  %-12s %s (%v)\n", "watch file", bc.Watch.File, err)
		failed++
	} else {
		fmt.Printf("ok    %-12s %s\n", "watch file", bc.Watch.File)
	}

	checks := []struct {
		name     string
		endpoint string
	}{
		{bc.Sync.Dependency, strings.TrimRight(bc.Sync.ApiBase, "/") + bc.Sync.HealthPath},
		{"ai-proxy", strings.TrimRight(bc.AIProxy.Base, "/") + bc.AIProxy.HealthPath},
	}

	for _, check := range checks {
		if probe.Probe(ctx, check.endpoint, timeout) {
			fmt.Printf("ok    %-12s %s\n", check.name, check.endpoint)
		} else {
			fmt.Printf("FAIL  %-12s %s\n", check.name, check.endpoint)
			failed++
		}
	}

	if len(bc.Sync.FallbackCommand) > 0 {
		if _, err := exec.LookPath(bc.Sync.FallbackCommand[0]); err != nil {
			fmt.Printf("FAIL  %-12s %s (not found in PATH)\n", "fallback", bc.Sync.FallbackCommand[0])
			failed++
		} else {
			fmt.Printf("ok    %-12s %s\n", "fallback", strings.Join(bc.Sync.FallbackCommand, " "))
		}
	}

	if failed > 0 {
		fmt.Printf("%d check(s) failed\n", failed)
		return 1
	}
	fmt.Println("all checks passed")
	return 0
}

// printStatusJSON pretty-prints a JSON payload from the daemon.
func printStatusJSON(body []byte) {
	var buf map[string]interface{}
	if err := json.Unmarshal(body, &buf); err != nil {
		fmt.Println(strings.TrimSpace(string(body)))
		return
	}
	printStatusValue(buf)
}

// printStatusValue pretty-prints any JSON-marshalable value.
func printStatusValue(v interface{}) {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		fmt.Printf("%+v\n", v)
		return
	}
	fmt.Println(string(out))
}
