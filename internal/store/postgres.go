package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
	"github.com/pressly/goose/v3"

	"travelguard/antifraud/internal/domain"
	"travelguard/antifraud/migrations"
)

// uniqueViolation is the PostgreSQL error code for a duplicate key.
const uniqueViolation = "23505"

// Postgres is a Store backed by PostgreSQL.
type Postgres struct {
	db *sql.DB
}

var _ Store = (*Postgres)(nil)

// NewPostgres wraps an open database handle.
func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

// Open connects to databaseURL and verifies the connection.
func Open(ctx context.Context, databaseURL string) (*sql.DB, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	return db, nil
}

// Migrate applies every pending embedded migration.
func Migrate(ctx context.Context, db *sql.DB) error {
	goose.SetBaseFS(migrations.FS)
	if err := goose.SetDialect("postgres"); err != nil {
		return err
	}
	if err := goose.UpContext(ctx, db, "."); err != nil {
		return fmt.Errorf("apply migrations: %w", err)
	}
	return nil
}

// ─── Checks ───────────────────────────────────────────────────────────────────

const checkColumns = `id, email, ip, bin, user_agent, ip_country, bin_country, timezone,
	risk_score, fraud_flags, recommendation, anomaly_score, created_at, anomaly_features`

func (p *Postgres) SaveCheck(ctx context.Context, rec *domain.CheckRecord) error {
	features := []byte("{}")
	if len(rec.AnomalyFeatures) > 0 {
		b, err := json.Marshal(rec.AnomalyFeatures)
		if err != nil {
			return fmt.Errorf("encode anomaly features: %w", err)
		}
		features = b
	}
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO checks (`+checkColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		rec.ID, rec.Email, rec.IP, rec.CardPrefix, rec.UserAgent, rec.IPCountry, rec.IssuerCountry, rec.Timezone,
		rec.RiskScore, pq.Array(rec.Flags), string(rec.Recommendation), rec.AnomalyScore, rec.CreatedAt, features,
	)
	if isUniqueViolation(err) {
		return ErrDuplicate
	}
	return err
}

func (p *Postgres) GetCheck(ctx context.Context, id string) (*domain.CheckRecord, error) {
	rec, err := scanCheck(p.db.QueryRowContext(ctx, `SELECT `+checkColumns+` FROM checks WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return rec, err
}

func (p *Postgres) ListChecks(ctx context.Context, limit int) ([]*domain.CheckRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := p.db.QueryContext(ctx, `
		SELECT `+checkColumns+`
		FROM checks
		ORDER BY created_at DESC
		LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	return scanChecks(rows)
}

func (p *Postgres) ChecksSince(ctx context.Context, since time.Time) ([]*domain.CheckRecord, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT `+checkColumns+`
		FROM checks
		WHERE created_at >= $1
		ORDER BY created_at ASC`, since)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	return scanChecks(rows)
}

func (p *Postgres) CountSince(ctx context.Context, field Field, value string, since time.Time) (int, error) {
	var column string
	switch field {
	case FieldEmail:
		column = "email"
	case FieldIP:
		column = "ip"
	default:
		return 0, fmt.Errorf("count since: unknown field %q", field)
	}

	var n int
	err := p.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM checks WHERE `+column+` = $1 AND created_at >= $2`,
		value, since,
	).Scan(&n)
	return n, err
}

// ─── Blacklist ────────────────────────────────────────────────────────────────

func (p *Postgres) AddBlacklist(ctx context.Context, entry *domain.BlacklistEntry) error {
	_, err := p.db.ExecContext(ctx,
		`INSERT INTO ip_blacklist (ip, reason, created_at) VALUES ($1, $2, $3)`,
		entry.IP, entry.Reason, entry.CreatedAt,
	)
	if isUniqueViolation(err) {
		return ErrDuplicate
	}
	return err
}

func (p *Postgres) RemoveBlacklist(ctx context.Context, ip string) error {
	res, err := p.db.ExecContext(ctx, `DELETE FROM ip_blacklist WHERE ip = $1`, ip)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *Postgres) ListBlacklist(ctx context.Context) ([]*domain.BlacklistEntry, error) {
	rows, err := p.db.QueryContext(ctx, `SELECT ip, reason, created_at FROM ip_blacklist ORDER BY created_at ASC, ip ASC`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []*domain.BlacklistEntry
	for rows.Next() {
		e := &domain.BlacklistEntry{}
		if err := rows.Scan(&e.IP, &e.Reason, &e.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (p *Postgres) IsBlacklisted(ctx context.Context, ip string) (bool, error) {
	var exists bool
	err := p.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM ip_blacklist WHERE ip = $1)`, ip).Scan(&exists)
	return exists, err
}

func (p *Postgres) Ping(ctx context.Context) error {
	return p.db.PingContext(ctx)
}

// ─── Scanning ─────────────────────────────────────────────────────────────────

type scanner interface {
	Scan(dest ...any) error
}

func scanCheck(row scanner) (*domain.CheckRecord, error) {
	rec := &domain.CheckRecord{}
	var (
		recommendation string
		features       []byte
	)
	err := row.Scan(
		&rec.ID, &rec.Email, &rec.IP, &rec.CardPrefix, &rec.UserAgent, &rec.IPCountry, &rec.IssuerCountry, &rec.Timezone,
		&rec.RiskScore, pq.Array(&rec.Flags), &recommendation, &rec.AnomalyScore, &rec.CreatedAt, &features,
	)
	if err != nil {
		return nil, err
	}
	if len(features) > 0 && string(features) != "{}" {
		if err := json.Unmarshal(features, &rec.AnomalyFeatures); err != nil {
			return nil, fmt.Errorf("decode anomaly features: %w", err)
		}
	}
	rec.Recommendation = domain.Recommendation(recommendation)
	if rec.Flags == nil {
		rec.Flags = []string{}
	}
	return rec, nil
}

func scanChecks(rows *sql.Rows) ([]*domain.CheckRecord, error) {
	var out []*domain.CheckRecord
	for rows.Next() {
		rec, err := scanCheck(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == uniqueViolation
}
