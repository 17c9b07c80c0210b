// Package main is the entry point of the TaskSync daemon.
// It initializes the Kratos application with the HTTP control surface, the
// file-watching sync coordinator, and the scheduled jobs.
//
// Usage:
//
//	TaskSync [-conf path] [start]   run the daemon (default)
//	TaskSync [-conf path] sync      trigger one sync on a running daemon
//	TaskSync [-conf path] status    print daemon and breaker status
//	TaskSync [-conf path] test      probe dependency connectivity
package main

import (
	"flag"
	"fmt"
	"os"

	"TaskSync/internal/biz"
	"TaskSync/internal/conf"
	zapLogger "TaskSync/pkg/log"

	"github.com/go-kratos/kratos/v2"
	"github.com/go-kratos/kratos/v2/log"
	"github.com/go-kratos/kratos/v2/transport/http"

	_ "go.uber.org/automaxprocs"
)

// go build -ldflags "-X main.Version=x.y.z"
var (
	// Name is the name of the compiled software.
	Name = "TaskSync"
	// Version is the version of the compiled software.
	Version string
	// flagconf is the config flag.
	flagconf string

	id, _ = os.Hostname()
)

func init() {
	flag.StringVar(&flagconf, "conf", "../../configs/config.yaml", "config path, eg: -conf config.yaml")
}

func newApp(logger log.Logger, hs *http.Server, uc *biz.SyncUsecase, cs *cronServer) *kratos.App {
	return kratos.New(
		kratos.ID(id),
		kratos.Name(Name),
		kratos.Version(Version),
		kratos.Metadata(map[string]string{}),
		kratos.Logger(logger),
		kratos.Server(
			hs,
			uc,
			cs,
		),
	)
}

func main() {
	flag.Parse()

	command := "start"
	if args := flag.Args(); len(args) > 0 {
		command = args[0]
	}

	// Load configuration using Viper with environment variable support
	bc, err := conf.NewBootstrap(flagconf)
	if err != nil {
		// Use fallback logger before Zap is initialized
		log.Fatalf("failed to load configuration: %v", err)
	}

	switch command {
	case "start":
		runStart(bc)
	case "sync":
		os.Exit(runSync(bc))
	case "status":
		os.Exit(runStatus(bc))
	case "test":
		os.Exit(runTest(bc))
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q (expected start, sync, status, or test)\n", command)
		os.Exit(2)
	}
}

// runStart runs the daemon until a stop signal.
func runStart(bc *conf.Bootstrap) {
	// Initialize Zap logger from configuration
	zapLog, err := zapLogger.NewZapLogger(bc.Log)
	if err != nil {
		log.Fatalf("failed to initialize zap logger: %v", err)
	}
	defer zapLog.Sync()

	// Create Kratos adapter for Zap logger
	logger := zapLogger.NewKratosAdapter(zapLog)

	logger = log.With(logger,
		"service.id", id,
		"service.name", Name,
		"service.version", Version,
	)

	zapLogger.NewLogHelper(logger).Startup(
		"TaskSync daemon starting",
		"watch.file", bc.Watch.File,
		"sync.api_base", bc.Sync.ApiBase,
		"log.level", bc.Log.Level,
		"log.format", bc.Log.Format,
	)

	app, cleanup, err := wireApp(bc, logger)
	if err != nil {
		panic(err)
	}
	defer cleanup()

	// start and wait for stop signal
	if err := app.Run(); err != nil {
		panic(err)
	}
}
