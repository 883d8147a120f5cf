package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"quoteengine/internal/commission"
)

type queryable interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

// NewPool opens and pings a pgx pool.
func NewPool(ctx context.Context, databaseURL string, maxConns, minConns int32) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	if maxConns > 0 {
		cfg.MaxConns = maxConns
	}
	if minConns > 0 {
		cfg.MinConns = minConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return pool, nil
}

// Postgres stores commissions in the commission_ledger table.
type Postgres struct{ db queryable }

func NewPostgres(pool *pgxpool.Pool) *Postgres { return &Postgres{db: pool} }

const schema = `
CREATE TABLE IF NOT EXISTS commission_ledger (
	id            UUID PRIMARY KEY,
	quote_id      TEXT NOT NULL,
	provider_id   TEXT NOT NULL,
	amount        BIGINT NOT NULL,
	rate          DOUBLE PRECISION NOT NULL,
	currency      TEXT NOT NULL DEFAULT '',
	status        TEXT NOT NULL,
	date_earned   TIMESTAMPTZ NOT NULL,
	date_paid     TIMESTAMPTZ,
	policy_number TEXT,
	source        TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS commission_ledger_date_earned_idx ON commission_ledger (date_earned);`

func (p *Postgres) EnsureSchema(ctx context.Context) error {
	if _, err := p.db.Exec(ctx, schema); err != nil {
		return fmt.Errorf("ensure commission_ledger: %w", err)
	}
	return nil
}

const ledgerCols = `id, quote_id, provider_id, amount, rate, currency, status,
	date_earned, date_paid, policy_number, source`

func (p *Postgres) Record(ctx context.Context, c commission.Commission) error {
	id, err := uuid.Parse(c.ID)
	if err != nil {
		return fmt.Errorf("commission id: %w", err)
	}
	_, err = p.db.Exec(ctx, `
		INSERT INTO commission_ledger (`+ledgerCols+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
		ON CONFLICT (id) DO NOTHING`,
		id, c.QuoteID, c.ProviderID, c.Amount, c.Rate, c.Currency, string(c.Status),
		c.DateEarned, c.DatePaid, c.PolicyNumber, c.Source)
	if err != nil {
		return fmt.Errorf("record commission %s: %w", c.ID, err)
	}
	return nil
}

func (p *Postgres) List(ctx context.Context, since time.Time) ([]commission.Commission, error) {
	rows, err := p.db.Query(ctx, `SELECT `+ledgerCols+` FROM commission_ledger
		WHERE date_earned >= $1 ORDER BY date_earned`, since)
	if err != nil {
		return nil, fmt.Errorf("list commissions: %w", err)
	}
	defer rows.Close()

	var out []commission.Commission
	for rows.Next() {
		var (
			c      commission.Commission
			id     uuid.UUID
			status string
		)
		if err := rows.Scan(&id, &c.QuoteID, &c.ProviderID, &c.Amount, &c.Rate, &c.Currency, &status,
			&c.DateEarned, &c.DatePaid, &c.PolicyNumber, &c.Source); err != nil {
			return nil, err
		}
		c.ID = id.String()
		c.Status = commission.Status(status)
		out = append(out, c)
	}
	return out, rows.Err()
}
