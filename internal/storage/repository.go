// Package storage is the SQLite ledger. Amounts are stored as integer cents,
// dates as ISO text and creation times as unix nanoseconds.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"dompet/internal/core"
	"dompet/internal/ledger"

	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite"
)

const (
	mirrorPending  = "pending"
	mirrorDone     = "mirrored"
	mirrorFailed   = "error"
	ownerCondition = "(? = '' OR t.owner_id = ?)"
)

type SQLiteRepository struct {
	db  *sql.DB
	now func() time.Time
}

var _ ledger.Store = (*SQLiteRepository)(nil)

// NewSQLiteRepository opens (creating if needed) the database file and
// applies pending migrations.
func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	dsn := dsnFor(dbPath)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// SQLite serializes writers; one connection avoids SQLITE_BUSY under load.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dsn); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteRepository{db: db, now: time.Now}, nil
}

func dsnFor(path string) string {
	return "file:" + path + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// Ping reports whether the database is reachable.
func (r *SQLiteRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

func (r *SQLiteRepository) CreateCategory(ctx context.Context, c core.Category) (core.Category, error) {
	if err := c.Validate(); err != nil {
		return core.Category{}, err
	}
	c.Name = strings.TrimSpace(c.Name)
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO categories (owner_id, name, type, created_at) VALUES (?, ?, ?, ?)`,
		c.OwnerID, c.Name, string(c.Type), r.now().UnixNano())
	if err != nil {
		return core.Category{}, fmt.Errorf("insert category: %w", err)
	}
	if c.ID, err = res.LastInsertId(); err != nil {
		return core.Category{}, fmt.Errorf("category id: %w", err)
	}
	slog.InfoContext(ctx, "Category saved to SQLite", "id", c.ID, "name", c.Name, "type", c.Type)
	return c, nil
}

// DeleteCategory removes the category; its transactions go with it through
// the foreign key cascade.
func (r *SQLiteRepository) DeleteCategory(ctx context.Context, owner core.OwnerScope, id int64) error {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM categories WHERE id = ? AND (? = '' OR owner_id = ?)`,
		id, owner.OwnerID, owner.OwnerID)
	if err != nil {
		return fmt.Errorf("delete category: %w", err)
	}
	return affectedOne(res)
}

func (r *SQLiteRepository) CreateTransaction(ctx context.Context, t core.Transaction) (core.Transaction, error) {
	if err := t.Validate(); err != nil {
		return core.Transaction{}, err
	}
	if _, err := r.GetCategory(ctx, core.OwnerScope{OwnerID: t.OwnerID}, t.CategoryID); err != nil {
		if errors.Is(err, ledger.ErrNotFound) {
			return core.Transaction{}, core.ErrMissingCategory
		}
		return core.Transaction{}, err
	}

	t.CreatedAt = r.now().UTC()
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO transactions (owner_id, category_id, amount_cents, description, date, created_at, mirror_status)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		t.OwnerID, t.CategoryID, toCents(t.Amount), t.Description, t.Date.String(), t.CreatedAt.UnixNano(), mirrorPending)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("insert transaction: %w", err)
	}
	if t.ID, err = res.LastInsertId(); err != nil {
		return core.Transaction{}, fmt.Errorf("transaction id: %w", err)
	}

	slog.InfoContext(ctx, "Transaction saved to SQLite",
		"id", t.ID,
		"category_id", t.CategoryID,
		"amount", t.Amount.StringFixed(2),
		"date", t.Date.String())
	return t, nil
}

func (r *SQLiteRepository) DeleteTransaction(ctx context.Context, owner core.OwnerScope, id int64) error {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM transactions WHERE id = ? AND (? = '' OR owner_id = ?)`,
		id, owner.OwnerID, owner.OwnerID)
	if err != nil {
		return fmt.Errorf("delete transaction: %w", err)
	}
	return affectedOne(res)
}

func (r *SQLiteRepository) ListCategories(ctx context.Context, owner core.OwnerScope) ([]core.Category, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, owner_id, name, type FROM categories WHERE (? = '' OR owner_id = ?) ORDER BY id`,
		owner.OwnerID, owner.OwnerID)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	defer rows.Close()

	var out []core.Category
	for rows.Next() {
		var c core.Category
		var typ string
		if err := rows.Scan(&c.ID, &c.OwnerID, &c.Name, &typ); err != nil {
			return nil, fmt.Errorf("scan category: %w", err)
		}
		c.Type = core.CategoryType(typ)
		out = append(out, c)
	}
	return out, rows.Err()
}

func (r *SQLiteRepository) GetCategory(ctx context.Context, owner core.OwnerScope, id int64) (core.Category, error) {
	var c core.Category
	var typ string
	err := r.db.QueryRowContext(ctx,
		`SELECT id, owner_id, name, type FROM categories WHERE id = ? AND (? = '' OR owner_id = ?)`,
		id, owner.OwnerID, owner.OwnerID).Scan(&c.ID, &c.OwnerID, &c.Name, &typ)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Category{}, ledger.ErrNotFound
	}
	if err != nil {
		return core.Category{}, fmt.Errorf("get category: %w", err)
	}
	c.Type = core.CategoryType(typ)
	return c, nil
}

const entryColumns = `t.id, t.owner_id, t.category_id, t.amount_cents, t.description, t.date, t.created_at, c.name, c.type`

func (r *SQLiteRepository) ListEntries(ctx context.Context, q ledger.Query) ([]core.Entry, error) {
	return r.queryEntries(ctx,
		`SELECT `+entryColumns+`
		 FROM transactions t JOIN categories c ON c.id = t.category_id
		 WHERE t.date BETWEEN ? AND ? AND `+ownerCondition+`
		 ORDER BY t.date DESC, t.created_at DESC, t.id DESC`,
		q.Start.String(), q.End.String(), q.Owner.OwnerID, q.Owner.OwnerID)
}

func (r *SQLiteRepository) GetEntry(ctx context.Context, owner core.OwnerScope, id int64) (core.Entry, error) {
	entries, err := r.queryEntries(ctx,
		`SELECT `+entryColumns+`
		 FROM transactions t JOIN categories c ON c.id = t.category_id
		 WHERE t.id = ? AND `+ownerCondition,
		id, owner.OwnerID, owner.OwnerID)
	if err != nil {
		return core.Entry{}, err
	}
	if len(entries) == 0 {
		return core.Entry{}, ledger.ErrNotFound
	}
	return entries[0], nil
}

func (r *SQLiteRepository) DailyTotals(ctx context.Context, q ledger.Query) ([]ledger.DailyTotal, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT t.date, c.type, SUM(t.amount_cents)
		 FROM transactions t JOIN categories c ON c.id = t.category_id
		 WHERE t.date BETWEEN ? AND ? AND `+ownerCondition+`
		 GROUP BY t.date, c.type
		 ORDER BY t.date, c.type`,
		q.Start.String(), q.End.String(), q.Owner.OwnerID, q.Owner.OwnerID)
	if err != nil {
		return nil, fmt.Errorf("daily totals: %w", err)
	}
	defer rows.Close()

	var out []ledger.DailyTotal
	for rows.Next() {
		var day, typ string
		var cents int64
		if err := rows.Scan(&day, &typ, &cents); err != nil {
			return nil, fmt.Errorf("scan daily total: %w", err)
		}
		d, err := core.ParseDate(day)
		if err != nil {
			return nil, fmt.Errorf("parse stored date %q: %w", day, err)
		}
		out = append(out, ledger.DailyTotal{Date: d, Type: core.CategoryType(typ), Total: fromCents(cents)})
	}
	return out, rows.Err()
}

func (r *SQLiteRepository) CategoryTotals(ctx context.Context, q ledger.Query, typ core.CategoryType) ([]ledger.CategoryTotal, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT c.name, SUM(t.amount_cents) AS total
		 FROM transactions t JOIN categories c ON c.id = t.category_id
		 WHERE c.type = ? AND t.date BETWEEN ? AND ? AND `+ownerCondition+`
		 GROUP BY c.name
		 ORDER BY total DESC`,
		string(typ), q.Start.String(), q.End.String(), q.Owner.OwnerID, q.Owner.OwnerID)
	if err != nil {
		return nil, fmt.Errorf("category totals: %w", err)
	}
	defer rows.Close()

	var out []ledger.CategoryTotal
	for rows.Next() {
		var ct ledger.CategoryTotal
		var cents int64
		if err := rows.Scan(&ct.Name, &cents); err != nil {
			return nil, fmt.Errorf("scan category total: %w", err)
		}
		ct.Total = fromCents(cents)
		out = append(out, ct)
	}
	return out, rows.Err()
}

func (r *SQLiteRepository) CountTransactions(ctx context.Context, q ledger.Query) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM transactions t WHERE t.date BETWEEN ? AND ? AND `+ownerCondition,
		q.Start.String(), q.End.String(), q.Owner.OwnerID, q.Owner.OwnerID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count transactions: %w", err)
	}
	return n, nil
}

func (r *SQLiteRepository) CountActiveCategories(ctx context.Context, q ledger.Query) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(DISTINCT t.category_id) FROM transactions t WHERE t.date BETWEEN ? AND ? AND `+ownerCondition,
		q.Start.String(), q.End.String(), q.Owner.OwnerID, q.Owner.OwnerID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count active categories: %w", err)
	}
	return n, nil
}

func (r *SQLiteRepository) RecentEntries(ctx context.Context, q ledger.Query, limit int) ([]core.Entry, error) {
	return r.queryEntries(ctx,
		`SELECT `+entryColumns+`
		 FROM transactions t JOIN categories c ON c.id = t.category_id
		 WHERE t.date BETWEEN ? AND ? AND `+ownerCondition+`
		 ORDER BY t.date DESC, t.created_at DESC, t.id DESC
		 LIMIT ?`,
		q.Start.String(), q.End.String(), q.Owner.OwnerID, q.Owner.OwnerID, limit)
}

// PendingMirror returns transactions whose mirror status is pending or error.
func (r *SQLiteRepository) PendingMirror(ctx context.Context, limit int) ([]int64, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id FROM transactions WHERE mirror_status != ? ORDER BY created_at, id LIMIT ?`,
		mirrorDone, limit)
	if err != nil {
		return nil, fmt.Errorf("get pending mirror: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan pending id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (r *SQLiteRepository) MarkMirrored(ctx context.Context, id int64) error {
	if err := r.setMirrorStatus(ctx, id, mirrorDone); err != nil {
		return fmt.Errorf("mark transaction mirrored: %w", err)
	}
	slog.InfoContext(ctx, "Transaction marked as mirrored", "id", id)
	return nil
}

func (r *SQLiteRepository) MarkMirrorFailed(ctx context.Context, id int64) error {
	if err := r.setMirrorStatus(ctx, id, mirrorFailed); err != nil {
		return fmt.Errorf("mark transaction mirror error: %w", err)
	}
	slog.WarnContext(ctx, "Transaction marked with mirror error", "id", id)
	return nil
}

func (r *SQLiteRepository) setMirrorStatus(ctx context.Context, id int64, status string) error {
	res, err := r.db.ExecContext(ctx, `UPDATE transactions SET mirror_status = ? WHERE id = ?`, status, id)
	if err != nil {
		return err
	}
	return affectedOne(res)
}

func (r *SQLiteRepository) queryEntries(ctx context.Context, query string, args ...any) ([]core.Entry, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query entries: %w", err)
	}
	defer rows.Close()

	out := []core.Entry{}
	for rows.Next() {
		var (
			e         core.Entry
			cents     int64
			day, typ  string
			createdAt int64
		)
		if err := rows.Scan(&e.ID, &e.OwnerID, &e.CategoryID, &cents, &e.Description, &day, &createdAt, &e.CategoryName, &typ); err != nil {
			return nil, fmt.Errorf("scan entry: %w", err)
		}
		d, err := core.ParseDate(day)
		if err != nil {
			return nil, fmt.Errorf("parse stored date %q: %w", day, err)
		}
		e.Date = d
		e.Amount = fromCents(cents)
		e.CreatedAt = time.Unix(0, createdAt).UTC()
		e.CategoryType = core.CategoryType(typ)
		out = append(out, e)
	}
	return out, rows.Err()
}

func affectedOne(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return ledger.ErrNotFound
	}
	return nil
}

func toCents(d decimal.Decimal) int64 {
	return d.Shift(2).IntPart()
}

func fromCents(c int64) decimal.Decimal {
	return decimal.New(c, -2)
}
