package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/oidbt/bangumi-ani-getter/internal/config"
	"github.com/oidbt/bangumi-ani-getter/pkg/client"
	"github.com/oidbt/bangumi-ani-getter/pkg/logging"
	"github.com/oidbt/bangumi-ani-getter/pkg/metrics"
	"github.com/oidbt/bangumi-ani-getter/pkg/poller"
	"github.com/oidbt/bangumi-ani-getter/pkg/store"
	"github.com/rs/zerolog"
)

func main() {
	configPath := flag.String("config", "", "path to a YAML config file (environment variables override it)")
	flag.Parse()

	if err := run(*configPath); err != nil {
		fmt.Fprintf(os.Stderr, "bangumi-getter: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	logger := logging.Setup(cfg.LoggingConfig())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := store.Open(ctx, cfg.StoreConfig())
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()
	logger.Info().Str("backend", cfg.Storage.Backend).Msg("Store opened")

	fetcher, err := client.New(cfg.ClientConfig())
	if err != nil {
		return fmt.Errorf("create fetcher: %w", err)
	}

	p, err := poller.New(fetcher, st, cfg.PollerConfig())
	if err != nil {
		return fmt.Errorf("create poller: %w", err)
	}

	if cfg.Server.Enabled {
		srv := &http.Server{
			Addr:              cfg.Server.Addr,
			Handler:           newMux(p, st),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go serve(srv, logging.NewLogger(logging.ComponentServer))
		defer shutdown(srv)
	}

	err = p.Run(ctx)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func serve(srv *http.Server, logger zerolog.Logger) {
	logger.Info().Str("addr", srv.Addr).Msg("Starting diagnostics server")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error().Err(err).Msg("Diagnostics server failed")
	}
}

func shutdown(srv *http.Server) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	srv.Shutdown(ctx)
}

// stateSource is satisfied by *poller.Poller.
type stateSource interface {
	State() poller.State
}

// recordCounter is satisfied by every store backend.
type recordCounter interface {
	Count(ctx context.Context) (int, error)
}

func newMux(states stateSource, records recordCounter) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", healthHandler)
	mux.HandleFunc("/status", statusHandler(states, records))
	mux.Handle("/metrics", metrics.Handler())
	return mux
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, "OK")
}

type statusResponse struct {
	Offset     int    `json:"offset"`
	Cycle      int    `json:"cycle"`
	Interval   string `json:"interval"`
	Total      *int   `json:"total"`
	Misses     int    `json:"consecutive_misses"`
	Records    int    `json:"records"`
	StoreError string `json:"store_error,omitempty"`
}

func statusHandler(states stateSource, records recordCounter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		state := states.State()

		resp := statusResponse{
			Offset:   state.Offset,
			Cycle:    state.Cycle,
			Interval: state.Interval.String(),
			Misses:   state.Misses,
		}
		if state.TotalKnown {
			total := state.Total
			resp.Total = &total
		}

		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		status := http.StatusOK
		count, err := records.Count(ctx)
		if err != nil {
			status = http.StatusServiceUnavailable
			resp.StoreError = err.Error()
		}
		resp.Records = count

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		json.NewEncoder(w).Encode(resp)
	}
}
