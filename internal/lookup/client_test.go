package lookup_test

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"travelguard/antifraud/internal/cache"
	"travelguard/antifraud/internal/logging"
	"travelguard/antifraud/internal/lookup"
)

// ─── Helpers ──────────────────────────────────────────────────────────────────

// funcProvider adapts a function to lookup.Provider and counts calls.
type funcProvider struct {
	name  string
	calls atomic.Int32
	fn    func(ctx context.Context, key string) (string, error)
}

func (p *funcProvider) Name() string { return p.name }

func (p *funcProvider) Fetch(ctx context.Context, key string) (string, error) {
	p.calls.Add(1)
	return p.fn(ctx, key)
}

func answer(name, country string) *funcProvider {
	return &funcProvider{name: name, fn: func(context.Context, string) (string, error) { return country, nil }}
}

func failing(name string, err error) *funcProvider {
	return &funcProvider{name: name, fn: func(context.Context, string) (string, error) { return "", err }}
}

func hanging(name string) *funcProvider {
	return &funcProvider{name: name, fn: func(ctx context.Context, _ string) (string, error) {
		<-ctx.Done()
		return "", ctx.Err()
	}}
}

func newClient(providers ...lookup.Provider) (*lookup.Client, *cache.Cache[string]) {
	c := cache.New[string]("lookup-test", time.Hour)
	cfg := lookup.Config{Name: "geo", Timeout: 30 * time.Millisecond, TTL: time.Hour}
	return lookup.NewClient(cfg, c, lookup.NewBreaker(5, time.Minute), logging.Discard(), providers...), c
}

// ─── Lookup ──────────────────────────────────────────────────────────────────

func TestLookup_FirstProviderWins(t *testing.T) {
	first, second := answer("a", "us"), answer("b", "GB")
	client, _ := newClient(first, second)

	res := client.Lookup(context.Background(), "8.8.8.8")
	assert.Equal(t, lookup.Found("US", "a"), res)
	assert.EqualValues(t, 0, second.calls.Load())
}

func TestLookup_CachesAnswer(t *testing.T) {
	p := answer("a", "US")
	client, c := newClient(p)

	client.Lookup(context.Background(), "8.8.8.8")
	res := client.Lookup(context.Background(), "8.8.8.8")

	assert.Equal(t, lookup.Found("US", lookup.SourceCache), res)
	assert.EqualValues(t, 1, p.calls.Load())
	v, ok := c.Get("geo:8.8.8.8")
	require.True(t, ok)
	assert.Equal(t, "US", v)
}

func TestLookup_FallsThroughErrorsAndMalformed(t *testing.T) {
	client, _ := newClient(
		failing("down", errors.New("connection refused")),
		answer("junk", "USA"),
		answer("good", "de"),
	)

	res := client.Lookup(context.Background(), "1.1.1.1")
	assert.Equal(t, lookup.Found("DE", "good"), res)
}

func TestLookup_ExhaustedIsDegradedAndNotCached(t *testing.T) {
	client, c := newClient(failing("a", lookup.ErrNoAnswer), answer("b", "1"))

	res := client.Lookup(context.Background(), "10.0.0.1")
	assert.Equal(t, lookup.StatusDegraded, res.Status)
	assert.Empty(t, res.Country)
	assert.Contains(t, res.Reason, "no answer")
	assert.Contains(t, res.Reason, "malformed")
	assert.Equal(t, 0, c.Len(), "absence must never be cached")
}

func TestLookup_AllTimeoutsIsTimeout(t *testing.T) {
	client, _ := newClient(hanging("slow1"), hanging("slow2"))

	start := time.Now()
	res := client.Lookup(context.Background(), "8.8.4.4")
	assert.Equal(t, lookup.StatusTimeout, res.Status)
	assert.Less(t, time.Since(start), time.Second, "each attempt is bounded by the per-provider timeout")
}

func TestLookup_MixedFailureIsDegraded(t *testing.T) {
	client, _ := newClient(hanging("slow"), failing("down", errors.New("500")))
	res := client.Lookup(context.Background(), "8.8.4.4")
	assert.Equal(t, lookup.StatusDegraded, res.Status)
}

func TestLookup_EmptyKey(t *testing.T) {
	p := answer("a", "US")
	client, _ := newClient(p)
	res := client.Lookup(context.Background(), "  ")
	assert.Equal(t, lookup.Degraded("missing key"), res)
	assert.EqualValues(t, 0, p.calls.Load())
}

func TestLookup_BreakerSkipsFailingProvider(t *testing.T) {
	bad := failing("bad", errors.New("boom"))
	good := answer("good", "FR")
	c := cache.New[string]("lookup-test", time.Hour)
	client := lookup.NewClient(lookup.Config{Name: "geo"}, c, lookup.NewBreaker(2, time.Hour), logging.Discard(), bad, good)

	for i := 0; i < 4; i++ {
		res := client.Lookup(context.Background(), fmt.Sprintf("10.0.0.%d", i))
		assert.Equal(t, "FR", res.Country)
	}
	assert.EqualValues(t, 2, bad.calls.Load(), "open breaker should stop calls to the failing provider")
}

func TestLookup_CancelledCallerDoesNotTripBreaker(t *testing.T) {
	slow := hanging("slow")
	breaker := lookup.NewBreaker(5, 0)
	c := cache.New[string]("lookup-test", time.Hour)
	client := lookup.NewClient(lookup.Config{Name: "geo", Timeout: time.Second}, c, breaker, logging.Discard(), slow)

	cancelled, cancel := context.WithCancel(context.Background())
	cancel()
	for i := 0; i < 5; i++ {
		res := client.Lookup(cancelled, fmt.Sprintf("10.0.0.%d", i))
		assert.Equal(t, lookup.StatusDegraded, res.Status)
		assert.Contains(t, res.Reason, "context canceled")
	}
	assert.EqualValues(t, 0, slow.calls.Load(), "a done context skips the providers")
	assert.Equal(t, lookup.BreakerClosed, breaker.State("slow"))
}

func TestLookup_CancelMidFlightDoesNotTripBreaker(t *testing.T) {
	slow := hanging("slow")
	next := answer("next", "FR")
	breaker := lookup.NewBreaker(5, 0)
	c := cache.New[string]("lookup-test", time.Hour)
	client := lookup.NewClient(lookup.Config{Name: "geo", Timeout: time.Second}, c, breaker, logging.Discard(), slow, next)

	for i := 0; i < 5; i++ {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
		res := client.Lookup(ctx, fmt.Sprintf("10.0.0.%d", i))
		cancel()
		assert.Equal(t, lookup.StatusTimeout, res.Status)
	}
	assert.EqualValues(t, 5, slow.calls.Load())
	assert.EqualValues(t, 0, next.calls.Load(), "no further providers once the caller is gone")
	assert.Equal(t, lookup.BreakerClosed, breaker.State("slow"))
}

// ─── BIN ─────────────────────────────────────────────────────────────────────

func TestBINClient_ShortBINDegradesWithoutIO(t *testing.T) {
	p := answer("a", "US")
	c := cache.New[string]("lookup-test", time.Hour)
	client := lookup.NewClient(lookup.Config{Name: "bin", Normalize: lookup.NormalizeBIN}, c, nil, logging.Discard(), p)

	res := client.Lookup(context.Background(), "4111")
	assert.Equal(t, lookup.Degraded("invalid bin"), res)
	assert.EqualValues(t, 0, p.calls.Load())
}

func TestBINClient_StaticTable(t *testing.T) {
	table, err := lookup.BINProvider("bintable", nil, map[string]string{"520000": "fr"})
	require.NoError(t, err)
	c := cache.New[string]("lookup-test", time.Hour)
	client := lookup.NewClient(lookup.Config{Name: "bin", Normalize: lookup.NormalizeBIN}, c, nil, logging.Discard(), table)

	assert.Equal(t, "US", client.Lookup(context.Background(), "4111 1111 1111 1111").Country)
	assert.Equal(t, "GB", client.Lookup(context.Background(), "555555").Country)
	assert.Equal(t, "FR", client.Lookup(context.Background(), "520000").Country)
	assert.Equal(t, lookup.StatusDegraded, client.Lookup(context.Background(), "999999").Status)
}

func TestNormalizeBIN(t *testing.T) {
	got, err := lookup.NormalizeBIN("4111-1111")
	require.NoError(t, err)
	assert.Equal(t, "411111", got)

	_, err = lookup.NormalizeBIN("41111a")
	assert.Error(t, err)
}

func TestNormalizeCountry(t *testing.T) {
	tests := []struct {
		in   string
		want string
		ok   bool
	}{
		{"us", "US", true},
		{" GB ", "GB", true},
		{"USA", "", false},
		{"U1", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		got, ok := lookup.NormalizeCountry(tt.in)
		assert.Equal(t, tt.ok, ok, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
}

// ─── HTTP provider ───────────────────────────────────────────────────────────

func TestHTTPProvider_NestedField(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/411111", r.URL.Path)
		_, _ = w.Write([]byte(`{"scheme":"visa","country":{"alpha2":"US","name":"United States"}}`))
	}))
	defer srv.Close()

	p := &lookup.HTTPProvider{ProviderName: "binlist", URL: srv.URL + "/%s", Field: "country.alpha2", Client: srv.Client()}
	got, err := p.Fetch(context.Background(), "411111")
	require.NoError(t, err)
	assert.Equal(t, "US", got)
}

func TestHTTPProvider_SuccessField(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"success":false,"message":"reserved range"}`))
	}))
	defer srv.Close()

	p := &lookup.HTTPProvider{
		ProviderName: "ipwhois", URL: srv.URL + "/%s", Field: "country_code",
		SuccessField: "success", SuccessValue: "true", Client: srv.Client(),
	}
	_, err := p.Fetch(context.Background(), "10.0.0.1")
	assert.ErrorIs(t, err, lookup.ErrNoAnswer)
}

func TestHTTPProvider_Non200(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	p := &lookup.HTTPProvider{ProviderName: "ipapi", URL: srv.URL + "/%s/json/", Field: "country", Client: srv.Client()}
	_, err := p.Fetch(context.Background(), "8.8.8.8")
	assert.ErrorContains(t, err, "unexpected status 429")
}

func TestHTTPProvider_ThroughClient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"status":"success","countryCode":"br"}`))
	}))
	defer srv.Close()

	p := &lookup.HTTPProvider{
		ProviderName: "ipapicom", URL: srv.URL + "/json/%s", Field: "countryCode",
		SuccessField: "status", SuccessValue: "success", Client: srv.Client(),
	}
	client, _ := newClient(p)
	assert.Equal(t, lookup.Found("BR", "ipapicom"), client.Lookup(context.Background(), "177.10.20.30"))
}

func TestBuiltinProviders(t *testing.T) {
	for _, name := range []string{"ipapi", "ipwhois", "ipapicom"} {
		p, err := lookup.GeoProvider(name, nil)
		require.NoError(t, err)
		assert.Equal(t, name, p.Name())
	}
	_, err := lookup.GeoProvider("maxmind", nil)
	assert.Error(t, err)

	_, err = lookup.BINProvider("binlist", nil, nil)
	assert.NoError(t, err)
}
