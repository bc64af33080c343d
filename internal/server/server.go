// Package server assembles the scoring service from configuration and owns
// the lifecycle of its background workers.
package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"travelguard/antifraud/internal/alert"
	"travelguard/antifraud/internal/anomaly"
	"travelguard/antifraud/internal/api"
	"travelguard/antifraud/internal/cache"
	"travelguard/antifraud/internal/config"
	"travelguard/antifraud/internal/domain"
	"travelguard/antifraud/internal/health"
	"travelguard/antifraud/internal/logging"
	"travelguard/antifraud/internal/lookup"
	"travelguard/antifraud/internal/ratelimit"
	"travelguard/antifraud/internal/rules"
	"travelguard/antifraud/internal/scoring"
	"travelguard/antifraud/internal/store"
	"travelguard/antifraud/internal/traces"
)

// Version is reported in traces. Set by ldflags.
var Version = "dev"

// Janitor intervals.
const (
	cacheSweepInterval   = 10 * time.Minute
	limiterPruneInterval = time.Minute
	shutdownTimeout      = 15 * time.Second
)

// Server is the assembled service.
type Server struct {
	cfg    *config.Config
	logger *slog.Logger

	store        store.Store
	db           *sql.DB       // nil when in-memory
	redis        *redis.Client // nil when the limiter is in-process
	limiter      *ratelimit.Limiter
	lookupCache  *cache.Cache[string]
	fingerprints *cache.Counter
	engine       *scoring.Engine
	dispatcher   *alert.Dispatcher
	hub          *alert.Hub
	health       *health.Registry
	router       http.Handler
	httpClient   *http.Client

	geoProviders []lookup.Provider
	binProviders []lookup.Provider

	stopTracing func(context.Context) error
}

// Option configures the server
type Option func(*Server)

// WithLogger sets a custom logger
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) { s.logger = logger }
}

// WithStore replaces the configured record store.
func WithStore(st store.Store) Option {
	return func(s *Server) { s.store = st }
}

// WithProviders replaces the configured lookup providers. Tests use it to
// keep lookups off the network.
func WithProviders(geo, bin []lookup.Provider) Option {
	return func(s *Server) {
		s.geoProviders = geo
		s.binProviders = bin
	}
}

// WithHTTPClient sets the client used by lookup providers and webhooks.
func WithHTTPClient(c *http.Client) Option {
	return func(s *Server) { s.httpClient = c }
}

// New creates a new server instance
func New(ctx context.Context, cfg *config.Config, opts ...Option) (*Server, error) {
	s := &Server{
		cfg:    cfg,
		logger: logging.New(cfg.LogLevel, cfg.LogFormat),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.httpClient == nil {
		s.httpClient = &http.Client{Timeout: cfg.LookupTimeout}
	}
	s.health = health.NewRegistry(2 * time.Second)

	stop, err := traces.Init(ctx, cfg.OTLPEndpoint, Version, s.logger)
	if err != nil {
		return nil, fmt.Errorf("init tracing: %w", err)
	}
	s.stopTracing = stop

	if err := s.initStore(ctx); err != nil {
		return nil, err
	}
	backend, err := s.initLimiter(ctx)
	if err != nil {
		return nil, err
	}
	geo, issuer, err := s.initLookups()
	if err != nil {
		return nil, err
	}
	s.initAlerts()

	s.fingerprints = cache.NewCounter("fingerprints", cfg.DeviceCacheTTL)
	anomalyCfg := anomaly.DefaultConfig()
	anomalyCfg.MaxDelta = cfg.Scores.AnomalyMax

	s.engine = scoring.New(scoring.Config{
		Thresholds:     scoring.Thresholds{Block: cfg.ThresholdBlock, Review: cfg.ThresholdReview},
		VelocityWindow: cfg.VelocityWindow,
		StoreTimeout:   cfg.StoreTimeout,
		FingerprintTTL: cfg.DeviceCacheTTL,
	}, scoring.Deps{
		IPGate:       ratelimit.NewGate(backend, ratelimit.ScopeIP, cfg.RateLimitIP, cfg.RateLimitWindow),
		AccountGate:  ratelimit.NewGate(backend, ratelimit.ScopeAccount, cfg.RateLimitEmail, cfg.RateLimitWindow),
		Geo:          geo,
		Issuer:       issuer,
		History:      s.store,
		Fingerprints: s.fingerprints,
		Rules:        rules.NewSet(ruleConfig(cfg)),
		Anomaly:      anomaly.New(anomalyCfg),
		Alerts:       s.dispatcher,
		Logger:       s.logger,
	})

	h := api.NewHandler(s.store, s.engine, s.health)
	s.router = api.NewRouter(h, api.RouterConfig{
		APIKey: cfg.APIKey,
		Alerts: http.HandlerFunc(s.hub.HandleWebSocket),
		Logger: s.logger,
	})

	return s, nil
}

// initStore uses Postgres when DATABASE_URL is set, otherwise memory.
func (s *Server) initStore(ctx context.Context) error {
	if s.store == nil {
		if s.cfg.DatabaseURL == "" {
			s.logger.Info("using in-memory store")
			s.store = store.NewMemory()
		} else {
			db, err := store.Open(ctx, s.cfg.DatabaseURL)
			if err != nil {
				return err
			}
			if err := store.Migrate(ctx, db); err != nil {
				_ = db.Close()
				return err
			}
			s.db = db
			s.store = store.NewPostgres(db)
			s.logger.Info("using postgres store")
		}
	}
	s.health.Register("store", s.store.Ping)
	return nil
}

// initLimiter uses Redis when REDIS_URL is set so replicas share windows.
func (s *Server) initLimiter(ctx context.Context) (ratelimit.Backend, error) {
	if s.cfg.RedisURL == "" {
		s.limiter = ratelimit.New()
		return s.limiter, nil
	}

	opts, err := redis.ParseURL(s.cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("parse REDIS_URL: %w", err)
	}
	s.redis = redis.NewClient(opts)
	rl := ratelimit.NewRedis(s.redis, "antifraud:rl:", s.logger)
	if err := rl.Ping(ctx); err != nil {
		// The limiter fails open, so an unreachable Redis is not fatal.
		s.logger.Warn("redis unreachable at startup", "error", err)
	}
	s.health.Register("redis", rl.Ping)
	s.logger.Info("using redis rate limiter")
	return rl, nil
}

func (s *Server) initLookups() (scoring.CountryLookup, scoring.CountryLookup, error) {
	geo, bin := s.geoProviders, s.binProviders
	if geo == nil {
		for _, name := range s.cfg.GeoProviders {
			p, err := lookup.GeoProvider(name, s.httpClient)
			if err != nil {
				return nil, nil, err
			}
			geo = append(geo, p)
		}
	}
	if bin == nil {
		for _, name := range s.cfg.BINProviders {
			p, err := lookup.BINProvider(name, s.httpClient, nil)
			if err != nil {
				return nil, nil, err
			}
			bin = append(bin, p)
		}
	}

	s.lookupCache = cache.New[string]("lookups", s.cfg.CacheTTL)
	geoClient := lookup.NewClient(lookup.Config{
		Name:    "geo",
		Timeout: s.cfg.LookupTimeout,
		TTL:     s.cfg.CacheTTL,
	}, s.lookupCache, lookup.NewBreaker(0, 0), s.logger, geo...)
	binClient := lookup.NewClient(lookup.Config{
		Name:      "bin",
		Timeout:   s.cfg.LookupTimeout,
		TTL:       s.cfg.CacheTTL,
		Normalize: lookup.NormalizeBIN,
	}, s.lookupCache, lookup.NewBreaker(0, 0), s.logger, bin...)

	s.logger.Info("lookups configured", "geo", geoClient.Providers(), "bin", binClient.Providers())
	return geoClient, binClient, nil
}

func (s *Server) initAlerts() {
	s.dispatcher = alert.NewDispatcher(alert.Config{}, s.logger)
	s.hub = alert.NewHub(s.logger)
	s.dispatcher.Subscribe(s.hub)
	for _, url := range s.cfg.WebhookURLs {
		s.dispatcher.Subscribe(alert.NewWebhookObserver(url, s.cfg.WebhookSecret, nil, s.logger))
	}
}

func ruleConfig(cfg *config.Config) rules.Config {
	sc := cfg.Scores
	return rules.Config{
		Deltas: rules.Deltas{
			GeoMismatch:      sc.GeoMismatch,
			TimezoneMismatch: sc.TimezoneMismatch,
			InvalidEmail:     sc.InvalidEmail,
			TemporaryEmail:   sc.TemporaryEmail,
			SuspiciousEmail:  sc.SuspiciousEmail,
			Velocity:         sc.Velocity,
			BotActivity:      sc.BotActivity,
			TypingTooFast:    sc.TypingTooFast,
			SuspiciousDevice: sc.DeviceSuspicious,
			FrequentDevice:   sc.FrequentDevice,
			IPBlacklisted:    sc.IPBlacklisted,
		},
		DisposableDomains: cfg.DisposableDomains,
		BotSignatures:     cfg.BotSignatures,
		VelocityLimit:     cfg.VelocityLimit,
	}
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler { return s.router }

// Engine returns the scoring engine.
func (s *Server) Engine() *scoring.Engine { return s.engine }

// Store returns the record store.
func (s *Server) Store() store.Store { return s.store }

// SeedBlacklist adds the configured IPs. Already-listed IPs are skipped.
func (s *Server) SeedBlacklist(ctx context.Context) error {
	added := 0
	for _, ip := range s.cfg.SeedBlacklistIPs {
		err := s.store.AddBlacklist(ctx, &domain.BlacklistEntry{
			IP:        ip,
			Reason:    "seeded from configuration",
			CreatedAt: time.Now().UTC(),
		})
		switch {
		case err == nil:
			added++
		case errors.Is(err, store.ErrDuplicate):
		default:
			return fmt.Errorf("seed blacklist %s: %w", ip, err)
		}
	}
	if added > 0 {
		s.logger.Info("blacklist seeded", "added", added)
	}
	return nil
}

// Replay scores events in order and persists each result, so the service
// starts with history. Rate-limited events are counted and skipped.
func (s *Server) Replay(ctx context.Context, events []domain.Event) (scored, limited int, err error) {
	for i := range events {
		a, evalErr := s.engine.Evaluate(ctx, &events[i])
		if errors.Is(evalErr, scoring.ErrRateLimited) {
			limited++
			continue
		}
		if evalErr != nil {
			return scored, limited, evalErr
		}
		if err = s.store.SaveCheck(ctx, a.Record()); err != nil {
			return scored, limited, fmt.Errorf("save replayed check: %w", err)
		}
		scored++
	}
	return scored, limited, nil
}

// Run serves HTTP and runs the background workers until ctx is done, then
// shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	httpSrv := &http.Server{
		Addr:              ":" + s.cfg.Port,
		Handler:           s.router,
		ReadTimeout:       10 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { s.hub.Run(gctx); return nil })
	g.Go(func() error { s.dispatcher.Run(gctx); return nil })
	g.Go(func() error { s.lookupCache.Run(gctx, cacheSweepInterval); return nil })
	g.Go(func() error { s.fingerprints.Run(gctx, cacheSweepInterval); return nil })
	if s.limiter != nil {
		g.Go(func() error { s.limiter.Run(gctx, limiterPruneInterval); return nil })
	}

	g.Go(func() error {
		s.logger.Info("server listening", "port", s.cfg.Port, "env", s.cfg.Env)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		s.logger.Info("shutting down...")
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return httpSrv.Shutdown(sctx)
	})

	err := g.Wait()
	s.close()
	s.logger.Info("server stopped")
	return err
}

// close releases connections and flushes traces.
func (s *Server) close() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if s.redis != nil {
		if err := s.redis.Close(); err != nil {
			s.logger.Error("redis close error", "error", err)
		}
	}
	if s.db != nil {
		if err := s.db.Close(); err != nil {
			s.logger.Error("database close error", "error", err)
		}
	}
	if s.stopTracing != nil {
		if err := s.stopTracing(ctx); err != nil {
			s.logger.Error("tracing shutdown error", "error", err)
		}
	}
}
