// Package postgres is the ledger on PostgreSQL. Amounts live in NUMERIC(15,2)
// columns and cross the driver boundary as text so they stay exact.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"dompet/internal/core"
	"dompet/internal/ledger"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

const schema = `
CREATE TABLE IF NOT EXISTS categories (
    id         BIGSERIAL PRIMARY KEY,
    owner_id   TEXT        NOT NULL DEFAULT '',
    name       VARCHAR(100) NOT NULL,
    type       TEXT        NOT NULL CHECK (type IN ('income', 'expense')),
    created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE TABLE IF NOT EXISTS transactions (
    id            BIGSERIAL PRIMARY KEY,
    owner_id      TEXT          NOT NULL DEFAULT '',
    category_id   BIGINT        NOT NULL REFERENCES categories (id) ON DELETE CASCADE,
    amount        NUMERIC(15,2) NOT NULL CHECK (amount >= 0),
    description   TEXT          NOT NULL DEFAULT '',
    date          DATE          NOT NULL,
    created_at    TIMESTAMPTZ   NOT NULL,
    mirror_status TEXT          NOT NULL DEFAULT 'pending'
);
CREATE INDEX IF NOT EXISTS idx_transactions_owner_date ON transactions (owner_id, date);
CREATE INDEX IF NOT EXISTS idx_transactions_mirror ON transactions (mirror_status, created_at);
`

const entryColumns = `t.id, t.owner_id, t.category_id, t.amount::text, t.description, t.date::text, t.created_at, c.name, c.type`

type Store struct {
	pool *pgxpool.Pool
	now  func() time.Time
}

var _ ledger.Store = (*Store)(nil)

// Open connects to url and makes sure the schema exists.
func Open(ctx context.Context, url string) (*Store, error) {
	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}
	return &Store{pool: pool, now: time.Now}, nil
}

func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *Store) CreateCategory(ctx context.Context, c core.Category) (core.Category, error) {
	if err := c.Validate(); err != nil {
		return core.Category{}, err
	}
	c.Name = strings.TrimSpace(c.Name)
	err := s.pool.QueryRow(ctx,
		`INSERT INTO categories (owner_id, name, type) VALUES ($1, $2, $3) RETURNING id`,
		c.OwnerID, c.Name, string(c.Type)).Scan(&c.ID)
	if err != nil {
		return core.Category{}, fmt.Errorf("insert category: %w", err)
	}
	return c, nil
}

func (s *Store) DeleteCategory(ctx context.Context, owner core.OwnerScope, id int64) error {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM categories WHERE id = $1 AND ($2 = '' OR owner_id = $2)`, id, owner.OwnerID)
	if err != nil {
		return fmt.Errorf("delete category: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ledger.ErrNotFound
	}
	return nil
}

func (s *Store) CreateTransaction(ctx context.Context, t core.Transaction) (core.Transaction, error) {
	if err := t.Validate(); err != nil {
		return core.Transaction{}, err
	}
	if _, err := s.GetCategory(ctx, core.OwnerScope{OwnerID: t.OwnerID}, t.CategoryID); err != nil {
		if errors.Is(err, ledger.ErrNotFound) {
			return core.Transaction{}, core.ErrMissingCategory
		}
		return core.Transaction{}, err
	}
	t.CreatedAt = s.now().UTC()
	err := s.pool.QueryRow(ctx,
		`INSERT INTO transactions (owner_id, category_id, amount, description, date, created_at)
		 VALUES ($1, $2, $3::numeric, $4, $5::date, $6) RETURNING id`,
		t.OwnerID, t.CategoryID, t.Amount.StringFixed(2), t.Description, t.Date.String(), t.CreatedAt).Scan(&t.ID)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("insert transaction: %w", err)
	}
	slog.InfoContext(ctx, "Transaction saved to Postgres", "id", t.ID, "amount", t.Amount.StringFixed(2))
	return t, nil
}

func (s *Store) DeleteTransaction(ctx context.Context, owner core.OwnerScope, id int64) error {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM transactions WHERE id = $1 AND ($2 = '' OR owner_id = $2)`, id, owner.OwnerID)
	if err != nil {
		return fmt.Errorf("delete transaction: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ledger.ErrNotFound
	}
	return nil
}

func (s *Store) ListCategories(ctx context.Context, owner core.OwnerScope) ([]core.Category, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, owner_id, name, type FROM categories WHERE ($1 = '' OR owner_id = $1) ORDER BY id`,
		owner.OwnerID)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (core.Category, error) {
		var c core.Category
		var typ string
		err := row.Scan(&c.ID, &c.OwnerID, &c.Name, &typ)
		c.Type = core.CategoryType(typ)
		return c, err
	})
}

func (s *Store) GetCategory(ctx context.Context, owner core.OwnerScope, id int64) (core.Category, error) {
	var c core.Category
	var typ string
	err := s.pool.QueryRow(ctx,
		`SELECT id, owner_id, name, type FROM categories WHERE id = $1 AND ($2 = '' OR owner_id = $2)`,
		id, owner.OwnerID).Scan(&c.ID, &c.OwnerID, &c.Name, &typ)
	if errors.Is(err, pgx.ErrNoRows) {
		return core.Category{}, ledger.ErrNotFound
	}
	if err != nil {
		return core.Category{}, fmt.Errorf("get category: %w", err)
	}
	c.Type = core.CategoryType(typ)
	return c, nil
}

func (s *Store) ListEntries(ctx context.Context, q ledger.Query) ([]core.Entry, error) {
	return s.queryEntries(ctx,
		`SELECT `+entryColumns+`
		 FROM transactions t JOIN categories c ON c.id = t.category_id
		 WHERE t.date BETWEEN $1::date AND $2::date AND ($3 = '' OR t.owner_id = $3)
		 ORDER BY t.date DESC, t.created_at DESC, t.id DESC`,
		q.Start.String(), q.End.String(), q.Owner.OwnerID)
}

func (s *Store) GetEntry(ctx context.Context, owner core.OwnerScope, id int64) (core.Entry, error) {
	entries, err := s.queryEntries(ctx,
		`SELECT `+entryColumns+`
		 FROM transactions t JOIN categories c ON c.id = t.category_id
		 WHERE t.id = $1 AND ($2 = '' OR t.owner_id = $2)`,
		id, owner.OwnerID)
	if err != nil {
		return core.Entry{}, err
	}
	if len(entries) == 0 {
		return core.Entry{}, ledger.ErrNotFound
	}
	return entries[0], nil
}

func (s *Store) DailyTotals(ctx context.Context, q ledger.Query) ([]ledger.DailyTotal, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT t.date::text, c.type, SUM(t.amount)::text
		 FROM transactions t JOIN categories c ON c.id = t.category_id
		 WHERE t.date BETWEEN $1::date AND $2::date AND ($3 = '' OR t.owner_id = $3)
		 GROUP BY t.date, c.type
		 ORDER BY t.date, c.type`,
		q.Start.String(), q.End.String(), q.Owner.OwnerID)
	if err != nil {
		return nil, fmt.Errorf("daily totals: %w", err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (ledger.DailyTotal, error) {
		var day, typ, total string
		if err := row.Scan(&day, &typ, &total); err != nil {
			return ledger.DailyTotal{}, err
		}
		d, err := core.ParseDate(day)
		if err != nil {
			return ledger.DailyTotal{}, fmt.Errorf("parse stored date %q: %w", day, err)
		}
		amount, err := decimal.NewFromString(total)
		if err != nil {
			return ledger.DailyTotal{}, fmt.Errorf("parse stored amount %q: %w", total, err)
		}
		return ledger.DailyTotal{Date: d, Type: core.CategoryType(typ), Total: amount}, nil
	})
}

func (s *Store) CategoryTotals(ctx context.Context, q ledger.Query, typ core.CategoryType) ([]ledger.CategoryTotal, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT c.name, SUM(t.amount)::text
		 FROM transactions t JOIN categories c ON c.id = t.category_id
		 WHERE c.type = $1 AND t.date BETWEEN $2::date AND $3::date AND ($4 = '' OR t.owner_id = $4)
		 GROUP BY c.name
		 ORDER BY SUM(t.amount) DESC`,
		string(typ), q.Start.String(), q.End.String(), q.Owner.OwnerID)
	if err != nil {
		return nil, fmt.Errorf("category totals: %w", err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (ledger.CategoryTotal, error) {
		var ct ledger.CategoryTotal
		var total string
		if err := row.Scan(&ct.Name, &total); err != nil {
			return ct, err
		}
		amount, err := decimal.NewFromString(total)
		if err != nil {
			return ct, fmt.Errorf("parse stored amount %q: %w", total, err)
		}
		ct.Total = amount
		return ct, nil
	})
}

func (s *Store) CountTransactions(ctx context.Context, q ledger.Query) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM transactions t
		 WHERE t.date BETWEEN $1::date AND $2::date AND ($3 = '' OR t.owner_id = $3)`,
		q.Start.String(), q.End.String(), q.Owner.OwnerID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count transactions: %w", err)
	}
	return n, nil
}

func (s *Store) CountActiveCategories(ctx context.Context, q ledger.Query) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(DISTINCT t.category_id) FROM transactions t
		 WHERE t.date BETWEEN $1::date AND $2::date AND ($3 = '' OR t.owner_id = $3)`,
		q.Start.String(), q.End.String(), q.Owner.OwnerID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count active categories: %w", err)
	}
	return n, nil
}

func (s *Store) RecentEntries(ctx context.Context, q ledger.Query, limit int) ([]core.Entry, error) {
	return s.queryEntries(ctx,
		`SELECT `+entryColumns+`
		 FROM transactions t JOIN categories c ON c.id = t.category_id
		 WHERE t.date BETWEEN $1::date AND $2::date AND ($3 = '' OR t.owner_id = $3)
		 ORDER BY t.date DESC, t.created_at DESC, t.id DESC
		 LIMIT $4`,
		q.Start.String(), q.End.String(), q.Owner.OwnerID, limit)
}

func (s *Store) PendingMirror(ctx context.Context, limit int) ([]int64, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id FROM transactions WHERE mirror_status <> 'mirrored' ORDER BY created_at, id LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("get pending mirror: %w", err)
	}
	return pgx.CollectRows(rows, pgx.RowTo[int64])
}

func (s *Store) MarkMirrored(ctx context.Context, id int64) error {
	return s.setMirrorStatus(ctx, id, "mirrored")
}

func (s *Store) MarkMirrorFailed(ctx context.Context, id int64) error {
	return s.setMirrorStatus(ctx, id, "error")
}

func (s *Store) setMirrorStatus(ctx context.Context, id int64, status string) error {
	tag, err := s.pool.Exec(ctx, `UPDATE transactions SET mirror_status = $1 WHERE id = $2`, status, id)
	if err != nil {
		return fmt.Errorf("set mirror status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ledger.ErrNotFound
	}
	return nil
}

func (s *Store) queryEntries(ctx context.Context, query string, args ...any) ([]core.Entry, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query entries: %w", err)
	}
	entries, err := pgx.CollectRows(rows, scanEntry)
	if err != nil {
		return nil, fmt.Errorf("scan entries: %w", err)
	}
	if entries == nil {
		entries = []core.Entry{}
	}
	return entries, nil
}

func scanEntry(row pgx.CollectableRow) (core.Entry, error) {
	var (
		e           core.Entry
		amount, day string
		typ         string
	)
	if err := row.Scan(&e.ID, &e.OwnerID, &e.CategoryID, &amount, &e.Description, &day, &e.CreatedAt, &e.CategoryName, &typ); err != nil {
		return e, err
	}
	d, err := core.ParseDate(day)
	if err != nil {
		return e, fmt.Errorf("parse stored date %q: %w", day, err)
	}
	if e.Amount, err = decimal.NewFromString(amount); err != nil {
		return e, fmt.Errorf("parse stored amount %q: %w", amount, err)
	}
	e.Date = d
	e.CategoryType = core.CategoryType(typ)
	return e, nil
}
