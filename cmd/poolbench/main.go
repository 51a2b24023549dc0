// Command poolbench is a concurrency-driven demo client: it spins up N
// goroutines acquiring and releasing connections from a configured pool
// in a loop, logging throughput and queue-wait percentiles, and separately
// demonstrates the global-transaction enlistment path against an
// in-memory fake resource so the txn/stmt wiring can be exercised without
// a live database.
package main

import (
	"context"
	"flag"
	"log"
	"math"
	"os/signal"
	"sort"
	"sync"
	"syscall"
	"time"

	"github.com/corepool/dbpool/internal/config"
	"github.com/corepool/dbpool/internal/connpool"
	"github.com/corepool/dbpool/internal/stmt"
	"github.com/corepool/dbpool/internal/txn"
	"github.com/corepool/dbpool/pkg/xaresource"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)

	configPath := flag.String("config", "config/process.yaml", "path to the process/pools config file")
	poolName := flag.String("pool", "", "name of the pool to hammer (defaults to the first configured pool)")
	workers := flag.Int("workers", 20, "number of concurrent acquire/release workers")
	duration := flag.Duration("duration", 10*time.Second, "how long to run the load loop")
	txnDemo := flag.Bool("txn-demo", true, "also run the in-memory transaction enlistment demo")
	flag.Parse()

	runTxnDemo := *txnDemo
	if runTxnDemo {
		demoTransaction()
	}

	cfg, err := config.Load(*configPath, "")
	if err != nil {
		log.Fatalf("[poolbench] config load failed: %v", err)
	}

	name := *poolName
	if name == "" {
		if len(cfg.Pools) == 0 {
			log.Fatalf("[poolbench] no pools configured")
		}
		name = cfg.Pools[0].Name
	}
	pcfg, ok := cfg.PoolByName(name)
	if !ok {
		log.Fatalf("[poolbench] pool %q not found in config", name)
	}

	ds := connpool.NewSQLDataSource(pcfg)
	pool := connpool.New(pcfg, ds)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := pool.Init(ctx); err != nil {
		log.Fatalf("[poolbench] pool init failed: %v", err)
	}
	defer pool.Shutdown()

	log.Printf("[poolbench] hammering pool %q with %d workers for %s", name, *workers, *duration)
	runLoad(ctx, pool, *workers, *duration)
}

func runLoad(ctx context.Context, pool *connpool.Pool, workers int, duration time.Duration) {
	deadline := time.Now().Add(duration)

	var (
		mu      sync.Mutex
		waits   []time.Duration
		ops     int
		failed  int
		wg      sync.WaitGroup
	)

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for time.Now().Before(deadline) {
				start := time.Now()
				proxy, err := pool.Acquire(ctx)
				wait := time.Since(start)

				mu.Lock()
				waits = append(waits, wait)
				ops++
				if err != nil {
					failed++
				}
				mu.Unlock()

				if err != nil {
					time.Sleep(10 * time.Millisecond)
					continue
				}
				facade := stmt.New(proxy)
				_, _ = facade.Execute(ctx, pool.Config().TestQuerySQL)
				_ = pool.Release(proxy)
			}
		}()
	}
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	log.Printf("[poolbench] completed %d operations, %d failed", ops, failed)
	log.Printf("[poolbench] queue-wait p50=%s p95=%s p99=%s", percentile(waits, 0.50), percentile(waits, 0.95), percentile(waits, 0.99))
}

func percentile(samples []time.Duration, p float64) time.Duration {
	if len(samples) == 0 {
		return 0
	}
	sorted := make([]time.Duration, len(samples))
	copy(sorted, samples)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	idx := int(math.Ceil(p*float64(len(sorted)))) - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

// demoTransaction exercises the txn/stmt enlistment path against an
// in-memory fake resource, so the global-transaction wiring can be
// demonstrated without a live database.
func demoTransaction() {
	ctx := context.Background()
	scope := txn.Begin()
	factory := xaresource.NewFakeFactory("poolbench-demo")

	resource, err := factory.NewResource(nil)
	if err != nil {
		log.Printf("[poolbench] txn demo: building resource failed: %v", err)
		return
	}
	if err := scope.Enlist(ctx, nil, resource); err != nil {
		log.Printf("[poolbench] txn demo: enlist failed: %v", err)
		return
	}
	if err := scope.Commit(ctx); err != nil {
		log.Printf("[poolbench] txn demo: commit failed: %v", err)
		return
	}
	log.Printf("[poolbench] txn demo committed, resource calls: %v", factory.Produced[0].Snapshot())
}
