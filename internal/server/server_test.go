package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"travelguard/antifraud/internal/alert"
	"travelguard/antifraud/internal/config"
	"travelguard/antifraud/internal/domain"
	"travelguard/antifraud/internal/logging"
	"travelguard/antifraud/internal/lookup"
)

// testConfig returns a minimal in-memory config for testing
func testConfig() *config.Config {
	return &config.Config{
		Port:            "0",
		Env:             "development",
		LogLevel:        "error",
		LogFormat:       "text",
		RateLimitIP:     60,
		RateLimitEmail:  20,
		RateLimitWindow: time.Minute,
		Scores:          config.DefaultScores(),
		ThresholdBlock:  80,
		ThresholdReview: 50,
		VelocityWindow:  5 * time.Minute,
		VelocityLimit:   3,
		StoreTimeout:    time.Second,
		CacheTTL:        time.Hour,
		DeviceCacheTTL:  time.Hour,
		LookupTimeout:   time.Second,
	}
}

func newTestServer(t *testing.T, cfg *config.Config) *Server {
	t.Helper()
	bin, err := lookup.BINProvider("bintable", nil, map[string]string{"453211": "BR"})
	require.NoError(t, err)
	s, err := New(context.Background(), cfg,
		WithLogger(logging.Discard()),
		WithProviders(
			[]lookup.Provider{lookup.NewStaticProvider("static-geo", map[string]string{"177.10.20.30": "BR", "5.5.5.5": "RU"})},
			[]lookup.Provider{bin},
		),
	)
	require.NoError(t, err)
	return s
}

func event(email, ip string) domain.Event {
	return domain.Event{Email: email, IP: ip, CardPrefix: "453211", Timezone: "America/Sao_Paulo"}
}

func TestNew_InMemoryDefaults(t *testing.T) {
	s := newTestServer(t, testConfig())
	assert.Nil(t, s.db)
	assert.Nil(t, s.redis)
	assert.NotNil(t, s.limiter)
	assert.Equal(t, []string{alert.HubID}, s.dispatcher.Observers())
	assert.Equal(t, 50, s.Engine().Thresholds().Review)
}

func TestNew_UnknownProvider(t *testing.T) {
	cfg := testConfig()
	cfg.GeoProviders = []string{"nope"}
	_, err := New(context.Background(), cfg, WithLogger(logging.Discard()))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown geo provider")
}

func TestNew_WebhooksSubscribed(t *testing.T) {
	cfg := testConfig()
	cfg.WebhookURLs = []string{"http://hooks.local/a", "http://hooks.local/b"}
	s := newTestServer(t, cfg)
	assert.ElementsMatch(t,
		[]string{alert.HubID, "webhook:http://hooks.local/a", "webhook:http://hooks.local/b"},
		s.dispatcher.Observers())
}

func TestSeedBlacklist_Idempotent(t *testing.T) {
	cfg := testConfig()
	cfg.SeedBlacklistIPs = []string{"5.5.5.5", "6.6.6.6"}
	s := newTestServer(t, cfg)
	ctx := context.Background()

	require.NoError(t, s.SeedBlacklist(ctx))
	require.NoError(t, s.SeedBlacklist(ctx))

	entries, err := s.Store().ListBlacklist(ctx)
	require.NoError(t, err)
	assert.Len(t, entries, 2)

	res, err := s.Engine().Score(ctx, &domain.Event{Email: "x@example.com", IP: "5.5.5.5"})
	require.NoError(t, err)
	assert.True(t, res.HasFlag(domain.FlagIPBlacklisted))
}

func TestReplay_PersistsAndBuildsHistory(t *testing.T) {
	s := newTestServer(t, testConfig())
	ctx := context.Background()

	events := make([]domain.Event, 4)
	for i := range events {
		events[i] = event("replay@example.com", "177.10.20.30")
	}
	scored, limited, err := s.Replay(ctx, events)
	require.NoError(t, err)
	assert.Equal(t, 4, scored)
	assert.Zero(t, limited)

	checks, err := s.Store().ListChecks(ctx, 10)
	require.NoError(t, err)
	require.Len(t, checks, 4)

	var velocityHits int
	for _, c := range checks {
		for _, f := range c.Flags {
			if f == domain.FlagTooManyAttempts {
				velocityHits++
			}
		}
	}
	assert.Equal(t, 1, velocityHits)
}

func TestReplay_CountsRateLimited(t *testing.T) {
	cfg := testConfig()
	cfg.RateLimitEmail = 2
	s := newTestServer(t, cfg)

	events := []domain.Event{
		event("same@example.com", "177.10.20.30"),
		event("same@example.com", "177.10.20.30"),
		event("same@example.com", "177.10.20.30"),
	}
	scored, limited, err := s.Replay(context.Background(), events)
	require.NoError(t, err)
	assert.Equal(t, 2, scored)
	assert.Equal(t, 1, limited)
}

func TestHandler_ScoresCheck(t *testing.T) {
	s := newTestServer(t, testConfig())
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	body, _ := json.Marshal(event("api@example.com", "177.10.20.30"))
	resp, err := http.Post(srv.URL+"/api/check", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	ready, err := http.Get(srv.URL + "/health/ready")
	require.NoError(t, err)
	defer ready.Body.Close()
	assert.Equal(t, http.StatusOK, ready.StatusCode)
}

func freePort(t *testing.T) string {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := l.Addr().(*net.TCPAddr).Port
	require.NoError(t, l.Close())
	return strconv.Itoa(port)
}

func TestRun_ServesUntilCancelled(t *testing.T) {
	cfg := testConfig()
	cfg.Port = freePort(t)
	s := newTestServer(t, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://127.0.0.1:" + cfg.Port + "/health")
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
