// Package loadtest drives a running server with synthetic embeddings
// through POST /api/recognitions and reports throughput and backpressure.
package loadtest

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/okian/facesense/pkg/logger"
)

type result int

const (
	accepted result = iota
	backpressure
	rejected
	failed
)

// Run executes the complete load test.
func Run(ctx context.Context, cfg *Config) (*Stats, error) {
	if cfg.Probes <= 0 || cfg.Dim <= 0 || cfg.Workers <= 0 {
		return nil, errors.New("probes, dim and workers must be positive")
	}
	stats := &Stats{StartTime: time.Now()}
	log := logger.Get().Named("loadtest")
	c := newClient(cfg.BaseURL, cfg.Token, cfg.Timeout)

	log.Info(ctx, "starting load test",
		logger.String("baseURL", cfg.BaseURL),
		logger.Int("probes", cfg.Probes),
		logger.Int("workers", cfg.Workers),
		logger.Duration("timeout", cfg.Timeout))

	if err := c.getJSON(ctx, "/health", nil); err != nil {
		return nil, fmt.Errorf("service health check failed: %w", err)
	}
	var before systemStatus
	if err := c.getJSON(ctx, "/api/system/status", &before); err != nil {
		return nil, fmt.Errorf("read system status: %w", err)
	}

	probes, err := generate(ctx, cfg, stats)
	if err != nil {
		return nil, err
	}
	submit(ctx, c, cfg, probes, stats)

	stats.Processed = drain(ctx, c, cfg, before.Processed, uint64(stats.Accepted))
	stats.EndTime = time.Now()
	stats.Duration = stats.EndTime.Sub(stats.StartTime)

	log.Info(ctx, "final statistics",
		logger.Int("generated", stats.Generated),
		logger.Int("submitted", stats.Submitted),
		logger.Int("accepted", stats.Accepted),
		logger.Int("backpressure", stats.Backpressure),
		logger.Int("rejected", stats.Rejected),
		logger.Int("failed", stats.Failed),
		logger.Any("processed", stats.Processed),
		logger.Duration("duration", stats.Duration),
		logger.Float64("successRate", stats.SuccessRate()),
		logger.Float64("probesPerSecond", stats.Throughput()))
	return stats, nil
}

// submit posts probes from a pool of cfg.Workers goroutines.
func submit(ctx context.Context, c *client, cfg *Config, probes []probe, stats *Stats) {
	var counts [4]atomic.Int64
	jobs := make(chan probe, cfg.Workers*2)

	var wg sync.WaitGroup
	for range cfg.Workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for p := range jobs {
				counts[submitOne(ctx, c, p)].Add(1)
			}
		}()
	}

	go func() {
		defer close(jobs)
		for _, p := range probes {
			select {
			case <-ctx.Done():
				return
			case jobs <- p:
			}
		}
	}()
	wg.Wait()

	stats.Accepted = int(counts[accepted].Load())
	stats.Backpressure = int(counts[backpressure].Load())
	stats.Rejected = int(counts[rejected].Load())
	stats.Failed = int(counts[failed].Load())
	stats.Submitted = stats.Accepted + stats.Backpressure + stats.Rejected + stats.Failed
}

func submitOne(ctx context.Context, c *client, p probe) result {
	resp, err := c.do(ctx, http.MethodPost, "/api/recognitions", p)
	if err != nil {
		return failed
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusAccepted:
		return accepted
	case resp.StatusCode == http.StatusTooManyRequests:
		return backpressure
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return rejected
	default:
		return failed
	}
}

// drain polls the status endpoint until the processed counter has grown by
// want or cfg.Drain elapses, and returns the observed growth.
func drain(ctx context.Context, c *client, cfg *Config, base, want uint64) uint64 {
	deadline := time.Now().Add(cfg.Drain)
	var seen uint64
	for {
		var st systemStatus
		if err := c.getJSON(ctx, "/api/system/status", &st); err == nil && st.Processed >= base {
			seen = st.Processed - base
		}
		if seen >= want || time.Now().After(deadline) {
			return seen
		}
		select {
		case <-ctx.Done():
			return seen
		case <-time.After(pollInterval):
		}
	}
}
