package lookup

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
)

var (
	// ErrNoAnswer means the provider has no record for the key.
	ErrNoAnswer = errors.New("lookup: no answer")

	// ErrMalformed means the provider answered with something that is not a country code.
	ErrMalformed = errors.New("lookup: malformed answer")
)

// Provider answers one kind of lookup.
type Provider interface {
	Name() string
	Fetch(ctx context.Context, key string) (string, error)
}

// ─── Static ──────────────────────────────────────────────────────────────────

// StaticProvider answers from an in-memory table.
type StaticProvider struct {
	name  string
	mu    sync.RWMutex
	table map[string]string
}

// NewStaticProvider creates a provider over a copy of table.
func NewStaticProvider(name string, table map[string]string) *StaticProvider {
	p := &StaticProvider{name: name, table: make(map[string]string, len(table))}
	for k, v := range table {
		p.table[k] = v
	}
	return p
}

func (p *StaticProvider) Name() string { return p.name }

// Fetch returns the table entry for key or ErrNoAnswer.
func (p *StaticProvider) Fetch(_ context.Context, key string) (string, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if v, ok := p.table[key]; ok {
		return v, nil
	}
	return "", ErrNoAnswer
}

// Put adds or replaces an entry.
func (p *StaticProvider) Put(key, country string) {
	p.mu.Lock()
	p.table[key] = country
	p.mu.Unlock()
}

// ─── HTTP ────────────────────────────────────────────────────────────────────

// HTTPProvider queries a JSON endpoint. URL is a fmt template with one %s
// for the escaped key; Field is a dot path into the response object.
type HTTPProvider struct {
	ProviderName string
	URL          string
	Field        string
	SuccessField string // optional; when set, the field must equal SuccessValue
	SuccessValue string
	Client       *http.Client
}

func (p *HTTPProvider) Name() string { return p.ProviderName }

// Fetch performs the GET and extracts Field. The caller's ctx bounds the call.
func (p *HTTPProvider) Fetch(ctx context.Context, key string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fmt.Sprintf(p.URL, url.PathEscape(key)), nil)
	if err != nil {
		return "", fmt.Errorf("%s: build request: %w", p.ProviderName, err)
	}
	req.Header.Set("Accept", "application/json")

	client := p.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%s: %w", p.ProviderName, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return "", fmt.Errorf("%s: %w", p.ProviderName, ErrNoAnswer)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%s: unexpected status %d", p.ProviderName, resp.StatusCode)
	}

	var body map[string]any
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&body); err != nil {
		return "", fmt.Errorf("%s: decode response: %w", p.ProviderName, err)
	}

	if p.SuccessField != "" {
		v, _ := dig(body, p.SuccessField)
		if fmt.Sprint(v) != p.SuccessValue {
			return "", fmt.Errorf("%s: %s=%v: %w", p.ProviderName, p.SuccessField, v, ErrNoAnswer)
		}
	}

	v, ok := dig(body, p.Field)
	if !ok {
		return "", fmt.Errorf("%s: field %q missing: %w", p.ProviderName, p.Field, ErrNoAnswer)
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("%s: field %q is %T: %w", p.ProviderName, p.Field, v, ErrMalformed)
	}
	return s, nil
}

// dig walks a dot-separated path through nested JSON objects.
func dig(obj map[string]any, path string) (any, bool) {
	var cur any = obj
	for _, part := range strings.Split(path, ".") {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		if cur, ok = m[part]; !ok {
			return nil, false
		}
	}
	return cur, true
}
