// Package client fetches pages of the Bangumi subject catalog and classifies
// every failure as either a transient miss or a contract violation.
package client

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/oidbt/bangumi-ani-getter/pkg/catalog"
	"github.com/oidbt/bangumi-ani-getter/pkg/logging"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

// Prometheus metrics for catalog requests.
var (
	catalogRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bangumi_requests_total",
		Help: "Total catalog requests by outcome status",
	}, []string{"status"})

	catalogRequestDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "bangumi_request_duration_seconds",
		Help:    "Catalog request duration in seconds",
		Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10},
	})

	catalogFetchErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bangumi_fetch_errors_total",
		Help: "Total failed catalog fetches by error class",
	}, []string{"class"})
)

const (
	// DefaultEndpoint is the Bangumi subjects listing.
	DefaultEndpoint = "https://api.bgm.tv/v0/subjects"

	// PageSize is the number of subjects requested per page.
	PageSize = 100

	// SubjectTypeAnime selects the anime category.
	SubjectTypeAnime = 2

	// SortByDate orders subjects by date, newest first.
	SortByDate = "date"
)

// Config holds the fetcher configuration.
type Config struct {
	// Endpoint is the full URL of the subjects listing.
	Endpoint string

	// UserAgent header (required by Bangumi).
	// Format: "AppName/Version (contact or repo URL)"
	UserAgent string

	// SubjectType and Sort are sent verbatim as query parameters.
	SubjectType int
	Sort        string

	// PageSize is sent as the limit parameter.
	PageSize int

	// Timeout bounds a single request, including reading the body.
	Timeout time.Duration

	// ProxyURL is an optional outbound proxy (http, https or socks5).
	// When empty the environment proxy settings apply.
	ProxyURL string
}

// DefaultConfig returns the configuration used against the public API.
func DefaultConfig(userAgent string) Config {
	return Config{
		Endpoint:    DefaultEndpoint,
		UserAgent:   userAgent,
		SubjectType: SubjectTypeAnime,
		Sort:        SortByDate,
		PageSize:    PageSize,
		Timeout:     10 * time.Second,
	}
}

// Fetcher issues one catalog request per call.
type Fetcher struct {
	http   *resty.Client
	config Config
	logger zerolog.Logger
}

// New creates a Fetcher.
func New(cfg Config) (*Fetcher, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("endpoint is required")
	}

	if cfg.UserAgent == "" {
		return nil, fmt.Errorf("user-agent is required")
	}

	if cfg.PageSize <= 0 {
		return nil, fmt.Errorf("page_size must be > 0 (got %d)", cfg.PageSize)
	}

	if cfg.Timeout <= 0 {
		return nil, fmt.Errorf("timeout must be > 0 (got %s)", cfg.Timeout)
	}

	logger := logging.NewLogger(logging.ComponentFetcher)

	httpClient := resty.New().
		SetTimeout(cfg.Timeout).
		SetLogger(restyLogger{logger}).
		SetHeader("User-Agent", cfg.UserAgent).
		SetHeader("Accept", "application/json")

	if cfg.ProxyURL != "" {
		proxy, err := url.Parse(cfg.ProxyURL)
		if err != nil || proxy.Scheme == "" || proxy.Host == "" {
			return nil, fmt.Errorf("invalid proxy url %q", cfg.ProxyURL)
		}
		httpClient.SetProxy(proxy.String())
		logger.Info().Str("proxy", proxy.Redacted()).Msg("Using outbound proxy")
	}

	return &Fetcher{
		http:   httpClient,
		config: cfg,
		logger: logger,
	}, nil
}

// Fetch requests the page starting at offset.
//
// A transport or status failure returns a *FetchError (transient miss).
// A body that does not match the expected shape returns a *ContractError.
// If ctx is done the context error is returned unclassified.
func (f *Fetcher) Fetch(ctx context.Context, offset int) (*catalog.Page, error) {
	startTime := time.Now()
	defer func() {
		catalogRequestDuration.Observe(time.Since(startTime).Seconds())
	}()

	f.logger.Debug().Int("offset", offset).Msg("Requesting catalog page")

	resp, err := f.http.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"type":   strconv.Itoa(f.config.SubjectType),
			"sort":   f.config.Sort,
			"limit":  strconv.Itoa(f.config.PageSize),
			"offset": strconv.Itoa(offset),
		}).
		Get(f.config.Endpoint)

	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, f.transportFailure(offset, err)
	}

	if resp.Request != nil && resp.Request.RawRequest != nil {
		f.logger.Trace().
			Interface("headers", resp.Request.RawRequest.Header).
			Msg("Request headers")
	}
	f.logger.Trace().
		Str("proto", resp.Proto()).
		Int("status_code", resp.StatusCode()).
		Interface("headers", resp.Header()).
		Msg("Response headers")

	if !resp.IsSuccess() {
		return nil, f.statusFailure(offset, resp)
	}

	page, err := decodePage(resp.Body())
	if err != nil {
		catalogRequestsTotal.WithLabelValues("invalid").Inc()
		f.logger.Error().Err(err).Int("offset", offset).Msg("Catalog response failed validation")
		return nil, &ContractError{Offset: offset, Err: err}
	}

	catalogRequestsTotal.WithLabelValues(strconv.Itoa(resp.StatusCode())).Inc()
	return page, nil
}

func (f *Fetcher) transportFailure(offset int, err error) *FetchError {
	errClass := classifyTransportError(err)
	catalogFetchErrorsTotal.WithLabelValues(string(errClass)).Inc()
	catalogRequestsTotal.WithLabelValues(string(errClass)).Inc()

	if errClass == ErrorClassTimeout {
		f.logger.Warn().Int("offset", offset).Dur("timeout", f.config.Timeout).Msg("Catalog request timed out")
	} else {
		f.logger.Error().Err(err).Int("offset", offset).Msg("Catalog connection failed")
	}

	return &FetchError{
		Class:   errClass,
		Offset:  offset,
		Message: "request failed",
		Err:     err,
	}
}

func (f *Fetcher) statusFailure(offset int, resp *resty.Response) *FetchError {
	errClass := classifyStatus(resp.StatusCode())
	catalogFetchErrorsTotal.WithLabelValues(string(errClass)).Inc()
	catalogRequestsTotal.WithLabelValues(strconv.Itoa(resp.StatusCode())).Inc()

	f.logger.Error().
		Int("offset", offset).
		Int("status_code", resp.StatusCode()).
		Str("error_class", string(errClass)).
		Msg("Catalog status error")

	return &FetchError{
		Class:      errClass,
		StatusCode: resp.StatusCode(),
		Offset:     offset,
		Message:    resp.Status(),
	}
}

// classifyStatus categorizes a non-2xx status code.
func classifyStatus(code int) ErrorClass {
	switch {
	case code >= 400 && code < 500:
		return ErrorClassClient
	case code >= 500:
		return ErrorClassServer
	default:
		return ErrorClassStatus
	}
}

// classifyTransportError separates timeouts from other connection failures.
func classifyTransportError(err error) ErrorClass {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, http.ErrHandlerTimeout) {
		return ErrorClassTimeout
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ErrorClassTimeout
	}

	return ErrorClassNetwork
}

// restyLogger routes resty's internal messages through zerolog.
type restyLogger struct {
	logger zerolog.Logger
}

func (l restyLogger) Errorf(format string, v ...interface{}) {
	l.logger.Error().Msgf(format, v...)
}

func (l restyLogger) Warnf(format string, v ...interface{}) {
	l.logger.Warn().Msgf(format, v...)
}

func (l restyLogger) Debugf(format string, v ...interface{}) {
	l.logger.Debug().Msgf(format, v...)
}
