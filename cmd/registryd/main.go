// Command registryd runs the distributed service registry and job
// dispatcher core. Wiring order follows the teacher's cmd/main.go
// construction pattern: logger -> config -> db -> repos -> registry ->
// load -> health -> jobs -> recovery -> dispatcher -> heartbeat, then
// blocks until signaled.
package main

import (
	"context"
	"fmt"
	"os"
	"runtime"

	"github.com/opencast/servicereg/internal/config"
	"github.com/opencast/servicereg/internal/db"
	"github.com/opencast/servicereg/internal/dispatcher"
	"github.com/opencast/servicereg/internal/dispatcher/wireclient"
	"github.com/opencast/servicereg/internal/health"
	"github.com/opencast/servicereg/internal/heartbeat"
	"github.com/opencast/servicereg/internal/jobs"
	"github.com/opencast/servicereg/internal/load"
	"github.com/opencast/servicereg/internal/pkg/dbctx"
	"github.com/opencast/servicereg/internal/pkg/envutil"
	"github.com/opencast/servicereg/internal/pkg/logger"
	"github.com/opencast/servicereg/internal/pkg/shutdown"
	"github.com/opencast/servicereg/internal/recovery"
	"github.com/opencast/servicereg/internal/registry"
	"github.com/opencast/servicereg/internal/registryevents"
	"github.com/opencast/servicereg/internal/repos"
)

func main() {
	bootLog, err := logger.New(envutil.String("LOG_MODE", "development", nil))
	if err != nil {
		fmt.Printf("failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer bootLog.Sync()

	cfg := config.Load(bootLog)

	localHost := envutil.String("REGISTRY_LOCAL_HOST", "http://localhost:8085", bootLog)
	localIP := envutil.String("REGISTRY_LOCAL_IP", "127.0.0.1", bootLog)
	localCores := envutil.Int("REGISTRY_LOCAL_CORES", runtime.NumCPU(), bootLog)
	localMaxLoad := cfg.DefaultMaxLoad
	if localMaxLoad <= 0 {
		localMaxLoad = float64(localCores)
	}

	conn, err := db.Open(cfg.PostgresDSN, bootLog)
	if err != nil {
		bootLog.Fatal("failed to open database", "error", err)
	}
	if err := db.AutoMigrate(conn); err != nil {
		bootLog.Fatal("failed to migrate database", "error", err)
	}

	events, err := registryevents.New(cfg.RedisAddr, cfg.RedisChannel, bootLog)
	if err != nil {
		bootLog.Warn("registry event bus unavailable, continuing without it", "error", err)
		events = nil
	}

	hostRepo := repos.NewHostRepo(conn, bootLog)
	serviceRepo := repos.NewServiceRepo(conn, bootLog)
	jobRepo := repos.NewJobRepo(conn, bootLog)
	jobEventRepo := repos.NewJobEventRepo(conn, bootLog)

	manager := registry.NewManager(conn, hostRepo, serviceRepo, jobRepo, events, bootLog)
	accountant := load.NewAccountant(conn, hostRepo, serviceRepo, jobRepo, bootLog)

	var observer health.StatsObserver
	if events != nil {
		observer = health.NewRedisObserver(events)
	} else {
		observer = health.NewLoggingObserver(bootLog)
	}
	stateMachine := health.NewStateMachine(serviceRepo, cfg.MaxAttemptsBeforeError, observer, bootLog)

	wire := wireclient.New(bootLog, wireclient.Config{})

	// lifecycle is this core's public Go API surface for creating/updating
	// jobs (spec §4.E); no HTTP/CLI façade sits in front of it here (that's
	// an explicit Non-goal), but it's still constructed and wired to the
	// health state machine so callers embedding this core get the full
	// createJob -> dispatch -> worker-callback -> health-transition chain.
	lifecycle := jobs.NewLifecycle(conn, jobRepo, serviceRepo, hostRepo, jobEventRepo, stateMachine, bootLog)
	_ = lifecycle

	ctx, stop := shutdown.NotifyContext(context.Background())
	defer stop()
	dbc := dbctx.New(ctx)

	rec := recovery.New(jobRepo, manager, bootLog)
	if _, err := rec.CleanUndispatchableJobs(dbc, localHost); err != nil {
		bootLog.Error("startup recovery failed", "error", err)
	}

	if _, err := manager.RegisterHost(dbc, localHost, localIP, 0, localCores, localMaxLoad); err != nil {
		bootLog.Fatal("failed to register local host", "error", err)
	}

	disp := dispatcher.New(conn, jobRepo, serviceRepo, hostRepo, accountant, wire, dispatcher.NewDefaultPrincipalResolver(), cfg.DispatchInterval, bootLog)
	mon := heartbeat.New(serviceRepo, manager, wire, cfg.HeartbeatInterval, bootLog)

	go disp.Start(ctx)
	go mon.Start(ctx)

	bootLog.Info("registry started", "local_host", localHost, "dispatch_interval", cfg.DispatchInterval, "heartbeat_interval", cfg.HeartbeatInterval)

	<-ctx.Done()
	bootLog.Info("shutdown signal received")

	disp.Stop()
	mon.Stop()

	shutdownCtx := context.Background()
	if err := rec.Shutdown(dbctx.New(shutdownCtx), localHost); err != nil {
		bootLog.Error("failed to unregister local host on shutdown", "error", err)
	}
	if events != nil {
		_ = events.Close()
	}
	bootLog.Info("shutdown complete")
}
