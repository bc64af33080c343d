package ratelimit

import (
	"context"
	"time"
)

// Limiter scopes.
const (
	ScopeIP      = "ip"
	ScopeAccount = "email"
)

// UnknownKey stands in for a missing IP so anonymous traffic shares one window.
const UnknownKey = "unknown"

// Gate binds a backend to one scope and its limit.
type Gate struct {
	Scope   string
	Limit   int
	Window  time.Duration
	backend Backend
}

// NewGate creates a gate over backend.
func NewGate(backend Backend, scope string, limit int, window time.Duration) *Gate {
	return &Gate{Scope: scope, Limit: limit, Window: window, backend: backend}
}

// Admit reports whether a request for key may proceed. Keys are namespaced
// by scope so one backend can serve several gates.
func (g *Gate) Admit(ctx context.Context, key string) bool {
	return g.backend.AllowContext(ctx, g.Scope+":"+key, g.Limit, g.Window)
}
