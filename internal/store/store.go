// Package store keeps completed checks and the IP blacklist.
//
// The scoring pipeline only reads from it (velocity counts and blacklist
// membership); the HTTP layer appends a CheckRecord after every scored run.
// Two implementations exist: Memory for single-process deployments and
// tests, Postgres for shared, durable state.
package store

import (
	"context"
	"errors"
	"time"

	"travelguard/antifraud/internal/domain"
)

var (
	// ErrNotFound is returned when a check or blacklist entry does not exist.
	ErrNotFound = errors.New("not found")

	// ErrDuplicate is returned when a check ID or blacklisted IP is stored twice.
	ErrDuplicate = errors.New("already exists")
)

// Field selects which attribute CountSince matches on.
type Field string

const (
	FieldEmail Field = "email"
	FieldIP    Field = "ip"
)

// Store is the record store used by the service.
type Store interface {
	SaveCheck(ctx context.Context, rec *domain.CheckRecord) error
	GetCheck(ctx context.Context, id string) (*domain.CheckRecord, error)
	// ListChecks returns the most recent checks, newest first.
	ListChecks(ctx context.Context, limit int) ([]*domain.CheckRecord, error)
	// ChecksSince returns every check created at or after since.
	ChecksSince(ctx context.Context, since time.Time) ([]*domain.CheckRecord, error)
	// CountSince counts checks whose field equals value created at or after since.
	CountSince(ctx context.Context, field Field, value string, since time.Time) (int, error)

	AddBlacklist(ctx context.Context, entry *domain.BlacklistEntry) error
	RemoveBlacklist(ctx context.Context, ip string) error
	ListBlacklist(ctx context.Context) ([]*domain.BlacklistEntry, error)
	IsBlacklisted(ctx context.Context, ip string) (bool, error)

	Ping(ctx context.Context) error
}
