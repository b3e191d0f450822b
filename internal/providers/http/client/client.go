package client

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/hashicorp/go-retryablehttp"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/GriffinCanCode/WebOS/backend/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/WebOS/backend/internal/infrastructure/resilience"
	"github.com/GriffinCanCode/WebOS/backend/internal/shared/types"
)

var (
	ErrInvalidURL    = errors.New("invalid url")
	ErrInvalidMethod = errors.New("method not allowed")
	ErrUnavailable   = errors.New("remote service unavailable")

	errServerStatus = errors.New("server error status")
)

var methods = map[string]bool{
	"GET": true, "HEAD": true, "POST": true, "PUT": true, "PATCH": true, "DELETE": true, "OPTIONS": true,
}

// Config defines client behavior
type Config struct {
	Timeout           time.Duration
	Retries           int
	RetryWaitMin      time.Duration
	RetryWaitMax      time.Duration
	RequestsPerSecond float64 // 0 means unlimited
	MaxBodyBytes      int
	UserAgent         string
}

// DefaultConfig returns production defaults
func DefaultConfig() Config {
	return Config{
		Timeout:           30 * time.Second,
		Retries:           3,
		RetryWaitMin:      500 * time.Millisecond,
		RetryWaitMax:      10 * time.Second,
		RequestsPerSecond: 10,
		MaxBodyBytes:      5 << 20,
		UserAgent:         "WebOS-Fetch/1.0",
	}
}

// Client performs app fetches with rate limiting and per-host breakers
type Client struct {
	resty    *resty.Client
	limiter  *rate.Limiter
	breakers *resilience.Group
	maxBody  int
	logger   *zap.Logger
	metrics  *monitoring.Metrics
}

// New creates a client. Zero config fields take defaults; metrics may be nil.
func New(cfg Config, logger *zap.Logger, metrics *monitoring.Metrics) *Client {
	def := DefaultConfig()
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.Retries < 0 {
		cfg.Retries = 0
	}
	if cfg.RetryWaitMin <= 0 {
		cfg.RetryWaitMin = def.RetryWaitMin
	}
	if cfg.RetryWaitMax <= 0 {
		cfg.RetryWaitMax = def.RetryWaitMax
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = def.MaxBodyBytes
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = def.UserAgent
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("fetch")

	// Pooled transport from retryablehttp; retries are driven by resty
	pooled := retryablehttp.NewClient()
	pooled.Logger = nil

	r := resty.New().
		SetTransport(pooled.HTTPClient.Transport).
		SetTimeout(cfg.Timeout).
		SetRetryCount(cfg.Retries).
		SetRetryWaitTime(cfg.RetryWaitMin).
		SetRetryMaxWaitTime(cfg.RetryWaitMax).
		SetHeader("User-Agent", cfg.UserAgent).
		AddRetryCondition(func(resp *resty.Response, err error) bool {
			if err != nil {
				return !errors.Is(err, context.Canceled)
			}
			return resp.StatusCode() >= 500 || resp.StatusCode() == 429
		})

	limiter := rate.NewLimiter(rate.Inf, 0)
	if cfg.RequestsPerSecond > 0 {
		burst := int(cfg.RequestsPerSecond)
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst)
	}

	return &Client{
		resty:   r,
		limiter: limiter,
		breakers: resilience.NewGroup(resilience.Settings{
			MaxRequests: 3,
			Interval:    time.Minute,
			Timeout:     30 * time.Second,
			ReadyToTrip: func(c resilience.Counts) bool {
				return c.ConsecutiveFailures >= 5 ||
					(c.Requests >= 20 && float64(c.TotalFailures)/float64(c.Requests) > 0.7)
			},
			OnStateChange: func(host string, from, to resilience.State) {
				logger.Warn("fetch breaker changed state",
					zap.String("host", host), zap.Stringer("from", from), zap.Stringer("to", to))
			},
		}),
		maxBody: cfg.MaxBodyBytes,
		logger:  logger,
		metrics: metrics,
	}
}

// Fetch performs req under ctx
func (c *Client) Fetch(ctx context.Context, req types.FetchRequest) (types.FetchResponse, error) {
	method := strings.ToUpper(strings.TrimSpace(req.Method))
	if method == "" {
		method = "GET"
	}
	if !methods[method] {
		return types.FetchResponse{}, fmt.Errorf("%w: %s", ErrInvalidMethod, req.Method)
	}
	u, err := url.Parse(req.URL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return types.FetchResponse{}, fmt.Errorf("%w: %q", ErrInvalidURL, req.URL)
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return types.FetchResponse{}, fmt.Errorf("rate limit: %w", err)
	}

	timer := monitoring.NewTimer(c.metrics, "fetch", method)
	var resp *resty.Response
	err = c.breakers.Get(u.Host).Do(ctx, func(ctx context.Context) error {
		r := c.resty.R().SetContext(ctx).SetHeaders(req.Headers)
		if req.Body != "" {
			r.SetBody(req.Body)
		}
		var err error
		resp, err = r.Execute(method, u.String())
		if err != nil {
			return err
		}
		if resp.StatusCode() >= 500 {
			return errServerStatus
		}
		return nil
	})
	timer.Done(err)

	switch {
	case errors.Is(err, errServerStatus):
	case errors.Is(err, resilience.ErrCircuitOpen), errors.Is(err, resilience.ErrTooManyRequests):
		return types.FetchResponse{}, fmt.Errorf("%w: %s", ErrUnavailable, u.Host)
	case err != nil:
		c.logger.Debug("fetch failed", zap.String("host", u.Host), zap.Error(err))
		return types.FetchResponse{}, err
	}

	return c.toResponse(resp), nil
}

func (c *Client) toResponse(resp *resty.Response) types.FetchResponse {
	body := resp.Body()
	if len(body) > c.maxBody {
		body = body[:c.maxBody]
	}
	headers := make(map[string]string, len(resp.Header()))
	for k, v := range resp.Header() {
		if len(v) > 0 {
			headers[k] = v[0]
		}
	}
	return types.FetchResponse{Status: resp.StatusCode(), Headers: headers, Body: string(body)}
}

// BreakerStates reports the breaker state of every host contacted so far
func (c *Client) BreakerStates() map[string]string {
	out := make(map[string]string)
	for host, s := range c.breakers.States() {
		out[host] = s.String()
	}
	return out
}
