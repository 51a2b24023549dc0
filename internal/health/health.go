// Package health provides health-check HTTP endpoints for the pool
// manager and the stats mirror.
package health

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/corepool/dbpool/internal/config"
	"github.com/corepool/dbpool/internal/connpool"
	"github.com/corepool/dbpool/internal/statsmirror"
)

// Status is a component's health verdict.
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusUnhealthy Status = "unhealthy"
)

// ComponentHealth is the health of a single component.
type ComponentHealth struct {
	Name    string `json:"name"`
	Status  Status `json:"status"`
	Message string `json:"message,omitempty"`
	Latency string `json:"latency"`
}

// HealthReport is the overall health report.
type HealthReport struct {
	Status     Status            `json:"status"`
	Timestamp  string            `json:"timestamp"`
	InstanceID string            `json:"instance_id"`
	Components []ComponentHealth `json:"components"`
}

// Checker runs health checks against every registered pool (via its own
// configured validation query, not a raw second connection) and the stats
// mirror.
type Checker struct {
	cfg     *config.Config
	pools   map[string]*connpool.Pool
	mirror  *statsmirror.Mirror // nil if disabled
}

// NewChecker creates a health checker for the given pools and optional
// stats mirror.
func NewChecker(cfg *config.Config, pools map[string]*connpool.Pool, mirror *statsmirror.Mirror) *Checker {
	return &Checker{cfg: cfg, pools: pools, mirror: mirror}
}

// Check runs health checks on every component and returns a report.
func (c *Checker) Check(ctx context.Context) *HealthReport {
	report := &HealthReport{
		Status:     StatusHealthy,
		Timestamp:  time.Now().UTC().Format(time.RFC3339),
		InstanceID: c.cfg.Process.InstanceID,
	}

	var (
		mu         sync.Mutex
		wg         sync.WaitGroup
		components []ComponentHealth
	)

	if c.mirror != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ch := c.checkMirror(ctx)
			mu.Lock()
			components = append(components, ch)
			mu.Unlock()
		}()
	}

	for name, pool := range c.pools {
		wg.Add(1)
		go func(name string, pool *connpool.Pool) {
			defer wg.Done()
			ch := c.checkPool(ctx, name, pool)
			mu.Lock()
			components = append(components, ch)
			mu.Unlock()
		}(name, pool)
	}

	wg.Wait()

	report.Components = components
	for _, comp := range components {
		if comp.Status == StatusUnhealthy {
			report.Status = StatusUnhealthy
			break
		}
	}
	return report
}

func (c *Checker) checkMirror(ctx context.Context) ComponentHealth {
	start := time.Now()
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	err := c.mirror.Ping(ctx)
	latency := time.Since(start)
	if err != nil {
		return ComponentHealth{
			Name:    "stats_mirror",
			Status:  StatusUnhealthy,
			Message: fmt.Sprintf("ping failed: %v", err),
			Latency: latency.String(),
		}
	}
	return ComponentHealth{
		Name:    "stats_mirror",
		Status:  StatusHealthy,
		Message: "PONG",
		Latency: latency.String(),
	}
}

func (c *Checker) checkPool(ctx context.Context, name string, pool *connpool.Pool) ComponentHealth {
	start := time.Now()

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	proxy, err := pool.Acquire(ctx)
	if err != nil {
		return ComponentHealth{
			Name:    name,
			Status:  StatusUnhealthy,
			Message: fmt.Sprintf("acquire failed: %v", err),
			Latency: time.Since(start).String(),
		}
	}
	defer pool.Release(proxy)

	if err := pool.Validate(ctx, proxy); err != nil {
		latency := time.Since(start)
		return ComponentHealth{
			Name:    name,
			Status:  StatusUnhealthy,
			Message: fmt.Sprintf("validation failed: %v", err),
			Latency: latency.String(),
		}
	}

	stats := pool.Stats()
	return ComponentHealth{
		Name:    name,
		Status:  StatusHealthy,
		Message: fmt.Sprintf("size=%d idle=%d max=%d", stats.Size, stats.Idle, stats.Max),
		Latency: time.Since(start).String(),
	}
}

// ServeHTTP starts the health-check HTTP server.
func (c *Checker) ServeHTTP(ctx context.Context) *http.Server {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		report := c.Check(r.Context())
		w.Header().Set("Content-Type", "application/json")
		if report.Status == StatusUnhealthy {
			w.WriteHeader(http.StatusServiceUnavailable)
		} else {
			w.WriteHeader(http.StatusOK)
		}
		json.NewEncoder(w).Encode(report)
	})

	mux.HandleFunc("/health/ready", func(w http.ResponseWriter, r *http.Request) {
		report := c.Check(r.Context())
		w.Header().Set("Content-Type", "application/json")
		if report.Status == StatusUnhealthy {
			w.WriteHeader(http.StatusServiceUnavailable)
		} else {
			w.WriteHeader(http.StatusOK)
		}
		json.NewEncoder(w).Encode(report)
	})

	mux.HandleFunc("/health/live", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(map[string]string{
			"status": "alive",
			"time":   time.Now().UTC().Format(time.RFC3339),
		})
	})

	addr := fmt.Sprintf(":%d", c.cfg.Process.HealthCheckPort)
	server := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	go func() {
		log.Printf("[health] HTTP server listening on %s", addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("[health] HTTP server error: %v", err)
		}
	}()

	return server
}
