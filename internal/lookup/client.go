package lookup

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"travelguard/antifraud/internal/cache"
	"travelguard/antifraud/internal/metrics"
	"travelguard/antifraud/internal/traces"
)

// Defaults for Config fields left zero.
const (
	DefaultTimeout = 2 * time.Second
	DefaultTTL     = 24 * time.Hour
)

// Config tunes a Client.
type Config struct {
	Name    string        // cache key prefix and metrics label, e.g. "geo"
	Timeout time.Duration // per provider attempt
	TTL     time.Duration // lifetime of cached answers

	// Normalize validates and canonicalizes the key before any I/O. A
	// non-nil error yields a degraded result with the error as reason.
	Normalize func(key string) (string, error)
}

// Client resolves keys to countries through a cache and ordered providers.
type Client struct {
	cfg       Config
	cache     *cache.Cache[string]
	breaker   *Breaker
	providers []Provider
	logger    *slog.Logger
}

// NewClient creates a client. The cache may be shared between clients since
// keys are prefixed with cfg.Name.
func NewClient(cfg Config, c *cache.Cache[string], breaker *Breaker, logger *slog.Logger, providers ...Provider) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}
	if breaker == nil {
		breaker = NewBreaker(0, 0)
	}
	return &Client{
		cfg:       cfg,
		cache:     c,
		breaker:   breaker,
		providers: providers,
		logger:    logger.With("lookup", cfg.Name),
	}
}

// Providers returns the provider names in query order.
func (c *Client) Providers() []string {
	names := make([]string, len(c.providers))
	for i, p := range c.providers {
		names[i] = p.Name()
	}
	return names
}

// Lookup resolves key. It never returns an error; failures are folded into
// the result's status and reason.
func (c *Client) Lookup(ctx context.Context, key string) Result {
	res := c.lookup(ctx, key)
	metrics.LookupResultsTotal.WithLabelValues(c.cfg.Name, res.Source, string(res.Status)).Inc()
	switch res.Status {
	case StatusTimeout:
		c.logger.Warn("lookup timed out", "key", key, "reason", res.Reason)
	case StatusDegraded:
		c.logger.Debug("lookup degraded", "key", key, "reason", res.Reason)
	}
	return res
}

func (c *Client) lookup(ctx context.Context, key string) Result {
	key = strings.TrimSpace(key)
	if key == "" {
		return Degraded("missing key")
	}
	if c.cfg.Normalize != nil {
		k, err := c.cfg.Normalize(key)
		if err != nil {
			return Degraded(err.Error())
		}
		key = k
	}

	cacheKey := c.cfg.Name + ":" + key
	if country, ok := c.cache.Get(cacheKey); ok {
		return Found(country, SourceCache)
	}

	var (
		reasons   []string
		attempted int
		timeouts  int
	)
	for _, p := range c.providers {
		if err := ctx.Err(); err != nil {
			return abandoned(err, reasons)
		}
		name := p.Name()
		if !c.breaker.Allow(name) {
			reasons = append(reasons, name+": breaker open")
			continue
		}
		attempted++

		country, err := c.attempt(ctx, p, key)
		switch {
		case err != nil && ctx.Err() != nil:
			// The caller gave up; the provider is not judged.
			c.breaker.Abandon(name)
			return abandoned(ctx.Err(), append(reasons, name+": "+err.Error()))
		case err == nil:
			c.breaker.Success(name)
			c.cache.Set(cacheKey, country, c.cfg.TTL)
			return Found(country, name)
		case errors.Is(err, ErrNoAnswer):
			c.breaker.Success(name)
		case errors.Is(err, context.DeadlineExceeded):
			timeouts++
			c.breaker.Failure(name)
		default:
			c.breaker.Failure(name)
		}
		reasons = append(reasons, err.Error())
	}

	reason := strings.Join(reasons, "; ")
	if reason == "" {
		reason = "no providers configured"
	}
	if attempted > 0 && timeouts == attempted {
		return TimedOut(reason)
	}
	return Degraded(reason)
}

// abandoned reports a lookup cut short by its caller's context.
func abandoned(err error, reasons []string) Result {
	reason := strings.Join(append(reasons, "lookup abandoned: "+err.Error()), "; ")
	if errors.Is(err, context.DeadlineExceeded) {
		return TimedOut(reason)
	}
	return Degraded(reason)
}

// attempt runs one provider call under its own deadline.
func (c *Client) attempt(ctx context.Context, p Provider, key string) (string, error) {
	ctx, span := traces.StartSpan(ctx, "lookup."+c.cfg.Name, traces.Provider(p.Name()))
	defer span.End()

	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	raw, err := p.Fetch(ctx, key)
	if err == nil {
		country, ok := NormalizeCountry(raw)
		if !ok {
			err = fmt.Errorf("%s: %q: %w", p.Name(), raw, ErrMalformed)
		} else {
			span.SetAttributes(traces.LookupStatus(string(StatusOK)))
			return country, nil
		}
	}
	if ctx.Err() == context.DeadlineExceeded && !errors.Is(err, context.DeadlineExceeded) {
		err = fmt.Errorf("%w: %w", context.DeadlineExceeded, err)
	}
	span.RecordError(err)
	return "", err
}
