// Command poolserver loads a pool configuration, starts one managed pool
// per configured entry, and serves metrics and health HTTP endpoints
// until signaled to shut down.
package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/corepool/dbpool/internal/config"
	"github.com/corepool/dbpool/internal/connpool"
	"github.com/corepool/dbpool/internal/health"
	"github.com/corepool/dbpool/internal/scheduler"
	"github.com/corepool/dbpool/internal/statsmirror"
)

func main() {
	processConfigPath := flag.String("config", "config/process.yaml", "path to the process config file")
	poolsConfigPath := flag.String("pools", "", "path to the pools config file (defaults to the same file as -config)")
	flag.Parse()

	cfg, err := config.Load(*processConfigPath, *poolsConfigPath)
	if err != nil {
		log.Fatalf("[poolserver] config load failed: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pools := make(map[string]*connpool.Pool, len(cfg.Pools))
	for i := range cfg.Pools {
		pcfg := &cfg.Pools[i]
		ds := connpool.NewSQLDataSource(pcfg)
		pool := connpool.New(pcfg, ds)
		if err := pool.Init(ctx); err != nil {
			log.Fatalf("[poolserver] pool %s init failed: %v", pcfg.Name, err)
		}
		pools[pcfg.Name] = pool
	}

	sched := scheduler.New(cfg.Process.MaintenanceInterval, cfg.Process.MaintenanceKeepaliveSample)
	for _, pool := range pools {
		sched.Register(pool)
	}
	go sched.Start(ctx)

	mirror := statsmirror.New(cfg, pools)
	if mirror != nil {
		for _, pool := range pools {
			pool.SetNotifier(mirror)
		}
		go mirror.Start(ctx)
		log.Printf("[poolserver] stats mirror enabled at %s", cfg.Process.StatsMirror.Addr)
	}

	checker := health.NewChecker(cfg, pools, mirror)
	healthServer := checker.ServeHTTP(ctx)

	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", promhttp.Handler())
	metricsAddr := ":" + strconv.Itoa(cfg.Process.MetricsPort)
	metricsServer := &http.Server{Addr: metricsAddr, Handler: metricsMux}
	go func() {
		log.Printf("[poolserver] metrics HTTP server listening on %s", metricsAddr)
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("[poolserver] metrics HTTP server error: %v", err)
		}
	}()

	log.Printf("[poolserver] instance %s started with %d pool(s)", cfg.Process.InstanceID, len(pools))

	<-ctx.Done()
	log.Printf("[poolserver] shutdown signal received, draining")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	sched.Stop()
	if mirror != nil {
		mirror.Stop()
	}
	_ = healthServer.Shutdown(shutdownCtx)
	_ = metricsServer.Shutdown(shutdownCtx)

	for name, pool := range pools {
		if err := pool.Shutdown(); err != nil {
			log.Printf("[poolserver] pool %s shutdown error: %v", name, err)
		}
	}

	log.Printf("[poolserver] shutdown complete")
}
