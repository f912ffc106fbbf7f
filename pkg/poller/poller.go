// Package poller drives the catalog ingestion loop: one sequential cursor
// that fetches a page, persists it as one batch, and waits before the next.
package poller

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/oidbt/bangumi-ani-getter/pkg/catalog"
	"github.com/oidbt/bangumi-ani-getter/pkg/client"
	"github.com/oidbt/bangumi-ani-getter/pkg/logging"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

// Prometheus metrics for the polling loop.
var (
	pollerOffset = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "bangumi_poller_offset",
		Help: "Offset of the next catalog page to request",
	})

	pollerCycle = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "bangumi_poller_cycle",
		Help: "Current sweep number, starting at 1",
	})

	catalogTotal = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "bangumi_catalog_total",
		Help: "Last observed total number of catalog subjects",
	})

	pollerIterationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bangumi_poller_iterations_total",
		Help: "Total loop iterations by outcome",
	}, []string{"outcome"}) // "page", "miss", "fatal"
)

// PageFetcher fetches the catalog page starting at offset.
type PageFetcher interface {
	Fetch(ctx context.Context, offset int) (*catalog.Page, error)
}

// BatchStore persists one page worth of records atomically.
type BatchStore interface {
	UpsertBatch(ctx context.Context, records []catalog.Record) error
}

// Config holds the loop configuration.
type Config struct {
	// PageSize is how far the cursor advances after a successful page.
	PageSize int

	// FastInterval is the wait between pages during the first sweep.
	FastInterval time.Duration

	// SlowInterval is the wait between pages once the cursor has wrapped.
	SlowInterval time.Duration

	// MissBackoff is an opt-in wait after transient misses. Disabled by default.
	MissBackoff MissBackoff
}

// DefaultConfig returns the standard two-speed configuration.
func DefaultConfig() Config {
	return Config{
		PageSize:     client.PageSize,
		FastInterval: 1 * time.Second,
		SlowInterval: 10 * time.Second,
	}
}

// State is a snapshot of the cursor.
type State struct {
	Offset     int           `json:"offset"`
	Cycle      int           `json:"cycle"`
	Interval   time.Duration `json:"interval"`
	Total      int           `json:"total"`
	TotalKnown bool          `json:"total_known"`
	Misses     int           `json:"consecutive_misses"`
}

// Poller owns the pagination cursor. Step and Run must be driven from a
// single goroutine; State may be read concurrently.
type Poller struct {
	fetcher PageFetcher
	store   BatchStore
	config  Config
	logger  zerolog.Logger

	mu    sync.RWMutex
	state State
}

// New creates a Poller positioned at offset 0 of cycle 1.
func New(fetcher PageFetcher, store BatchStore, cfg Config) (*Poller, error) {
	if fetcher == nil {
		return nil, fmt.Errorf("fetcher is required")
	}

	if store == nil {
		return nil, fmt.Errorf("store is required")
	}

	if cfg.PageSize <= 0 {
		return nil, fmt.Errorf("page_size must be > 0 (got %d)", cfg.PageSize)
	}

	if cfg.FastInterval < 0 || cfg.SlowInterval < 0 {
		return nil, fmt.Errorf("intervals must be >= 0 (got fast=%s slow=%s)", cfg.FastInterval, cfg.SlowInterval)
	}

	p := &Poller{
		fetcher: fetcher,
		store:   store,
		config:  cfg,
		logger:  logging.NewLogger(logging.ComponentPoller),
		state: State{
			Offset:   0,
			Cycle:    1,
			Interval: cfg.FastInterval,
		},
	}
	p.publish(p.state)

	return p, nil
}

// State returns a snapshot of the cursor.
func (p *Poller) State() State {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.state
}

// Run loops until a fatal error occurs or ctx is cancelled. Cancellation is
// only observed between iterations, so a batch is never cut short.
//
// The returned error wraps a *client.ContractError or *store.StorageError
// on fatal failures, or is ctx.Err() on cancellation.
func (p *Poller) Run(ctx context.Context) error {
	state := p.State()
	p.logger.Info().
		Int("offset", state.Offset).
		Int("cycle", state.Cycle).
		Int("page_size", p.config.PageSize).
		Dur("fast_interval", p.config.FastInterval).
		Dur("slow_interval", p.config.SlowInterval).
		Bool("miss_backoff", p.config.MissBackoff.Enabled()).
		Msg("Starting catalog poller")

	for {
		wait, err := p.Step(ctx)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(err, ctxErr) {
				p.logger.Info().Msg("Catalog poller stopped")
				return ctxErr
			}
			p.logger.Error().Err(err).Msg("Catalog poller terminated")
			return err
		}

		if err := sleep(ctx, wait); err != nil {
			p.logger.Info().Msg("Catalog poller stopped")
			return err
		}
	}
}

// Step runs one iteration and returns how long to wait before the next.
//
//   - page fetched and persisted: the cursor advances, wait is the current interval
//   - transient miss: the cursor stays, wait is zero unless MissBackoff is enabled
//   - contract violation or storage failure: the cursor stays and the error is returned
func (p *Poller) Step(ctx context.Context) (time.Duration, error) {
	current := p.State()

	page, err := p.fetcher.Fetch(ctx, current.Offset)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return 0, ctxErr
		}

		if client.IsTransient(err) {
			return p.miss(current), nil
		}

		pollerIterationsTotal.WithLabelValues("fatal").Inc()
		return 0, fmt.Errorf("fetch page at offset %d: %w", current.Offset, err)
	}

	p.logger.Debug().
		Int("total", page.Total).
		Int("limit", page.Limit).
		Int("offset", page.Offset).
		Int("entries", len(page.Entries)).
		Msg("Catalog page received")

	next := advance(current, page.Total, p.config.PageSize, p.config.SlowInterval)

	// The batch is written even if ctx is cancelled meanwhile.
	records := page.Records()
	if err := p.store.UpsertBatch(context.WithoutCancel(ctx), records); err != nil {
		pollerIterationsTotal.WithLabelValues("fatal").Inc()
		return 0, fmt.Errorf("persist page at offset %d: %w", current.Offset, err)
	}

	p.commit(next)
	pollerIterationsTotal.WithLabelValues("page").Inc()

	if next.Cycle != current.Cycle {
		p.logger.Info().
			Int("cycle", next.Cycle).
			Int("total", next.Total).
			Dur("interval", next.Interval).
			Msg("Catalog sweep complete, entering next cycle")
	}

	p.logger.Debug().
		Int("records", len(records)).
		Int("next_offset", next.Offset).
		Dur("wait", next.Interval).
		Msg("Catalog page stored")

	return next.Interval, nil
}

// miss records a transient miss and returns the wait before retrying.
func (p *Poller) miss(current State) time.Duration {
	current.Misses++
	p.commit(current)
	pollerIterationsTotal.WithLabelValues("miss").Inc()

	wait := p.config.MissBackoff.delay(current.Misses)
	p.logger.Debug().
		Int("offset", current.Offset).
		Int("consecutive_misses", current.Misses).
		Dur("wait", wait).
		Msg("No page this round, retrying same offset")

	return wait
}

func (p *Poller) commit(s State) {
	p.mu.Lock()
	p.state = s
	p.mu.Unlock()
	p.publish(s)
}

func (p *Poller) publish(s State) {
	pollerOffset.Set(float64(s.Offset))
	pollerCycle.Set(float64(s.Cycle))
	if s.TotalKnown {
		catalogTotal.Set(float64(s.Total))
	}
}

// advance computes the cursor after a successful page. When the next offset
// passes the observed total the sweep is complete: the cursor wraps to 0,
// the loop slows down and the cycle counter increments.
func advance(s State, total, pageSize int, slow time.Duration) State {
	s.Total = total
	s.TotalKnown = true
	s.Misses = 0

	s.Offset += pageSize
	if s.Offset > total {
		s.Offset = 0
		s.Interval = slow
		s.Cycle++
	}
	return s
}

// sleep waits for d or until ctx is done.
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
