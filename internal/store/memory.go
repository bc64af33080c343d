package store

import (
	"context"
	"maps"
	"sort"
	"sync"
	"time"

	"travelguard/antifraud/internal/domain"
)

// Memory is a thread-safe in-memory Store. Secondary indexes by email and IP
// keep velocity counts proportional to the entity's own history.
type Memory struct {
	mu sync.RWMutex

	checks    map[string]*domain.CheckRecord
	order     []string // check IDs in insertion order
	blacklist map[string]*domain.BlacklistEntry

	byEmail map[string][]string
	byIP    map[string][]string
}

var _ Store = (*Memory)(nil)

// NewMemory creates an empty store.
func NewMemory() *Memory {
	return &Memory{
		checks:    make(map[string]*domain.CheckRecord),
		blacklist: make(map[string]*domain.BlacklistEntry),
		byEmail:   make(map[string][]string),
		byIP:      make(map[string][]string),
	}
}

// ─── Checks ───────────────────────────────────────────────────────────────────

// SaveCheck stores rec and updates the indexes.
func (m *Memory) SaveCheck(_ context.Context, rec *domain.CheckRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.checks[rec.ID]; exists {
		return ErrDuplicate
	}
	m.checks[rec.ID] = cloneCheck(rec)
	m.order = append(m.order, rec.ID)
	m.byEmail[rec.Email] = append(m.byEmail[rec.Email], rec.ID)
	if rec.IP != "" {
		m.byIP[rec.IP] = append(m.byIP[rec.IP], rec.ID)
	}
	return nil
}

// GetCheck returns a copy of the check with the given ID.
func (m *Memory) GetCheck(_ context.Context, id string) (*domain.CheckRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.checks[id]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneCheck(rec), nil
}

// ListChecks returns up to limit checks, newest first.
func (m *Memory) ListChecks(_ context.Context, limit int) ([]*domain.CheckRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	all := make([]*domain.CheckRecord, 0, len(m.checks))
	for _, id := range m.order {
		all = append(all, cloneCheck(m.checks[id]))
	}
	sort.SliceStable(all, func(i, j int) bool { return all[i].CreatedAt.After(all[j].CreatedAt) })
	if limit > 0 && len(all) > limit {
		all = all[:limit]
	}
	return all, nil
}

// ChecksSince returns checks created at or after since, oldest first.
func (m *Memory) ChecksSince(_ context.Context, since time.Time) ([]*domain.CheckRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*domain.CheckRecord
	for _, id := range m.order {
		rec := m.checks[id]
		if !rec.CreatedAt.Before(since) {
			out = append(out, cloneCheck(rec))
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// CountSince counts indexed checks for value at or after since.
func (m *Memory) CountSince(ctx context.Context, field Field, value string, since time.Time) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	var ids []string
	switch field {
	case FieldEmail:
		ids = m.byEmail[value]
	case FieldIP:
		ids = m.byIP[value]
	}
	n := 0
	for _, id := range ids {
		if !m.checks[id].CreatedAt.Before(since) {
			n++
		}
	}
	return n, nil
}

// cloneCheck copies rec deeply enough that callers never share its slices
// or maps.
func cloneCheck(rec *domain.CheckRecord) *domain.CheckRecord {
	cp := *rec
	if rec.Flags != nil {
		cp.Flags = append([]string{}, rec.Flags...)
	}
	cp.AnomalyFeatures = maps.Clone(rec.AnomalyFeatures)
	return &cp
}

// ─── Blacklist ────────────────────────────────────────────────────────────────

// AddBlacklist stores entry, failing with ErrDuplicate if the IP is listed.
func (m *Memory) AddBlacklist(_ context.Context, entry *domain.BlacklistEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.blacklist[entry.IP]; exists {
		return ErrDuplicate
	}
	cp := *entry
	m.blacklist[entry.IP] = &cp
	return nil
}

// RemoveBlacklist deletes the entry for ip.
func (m *Memory) RemoveBlacklist(_ context.Context, ip string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.blacklist[ip]; !exists {
		return ErrNotFound
	}
	delete(m.blacklist, ip)
	return nil
}

// ListBlacklist returns every entry, oldest first.
func (m *Memory) ListBlacklist(_ context.Context) ([]*domain.BlacklistEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*domain.BlacklistEntry, 0, len(m.blacklist))
	for _, e := range m.blacklist {
		cp := *e
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].IP < out[j].IP
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

// IsBlacklisted reports whether ip is listed.
func (m *Memory) IsBlacklisted(ctx context.Context, ip string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.blacklist[ip]
	return ok, nil
}

// Ping always succeeds.
func (m *Memory) Ping(context.Context) error { return nil }
