package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"ledger/internal/core"
	"ledger/internal/ledger"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

// Dialect selects the SQL flavour a SQLRepository speaks.
type Dialect string

const (
	DialectSQLite   Dialect = "sqlite"
	DialectPostgres Dialect = "postgres"
)

const columns = "id, amount_minor, kind, category, description, occurred_at, created_at, source"

// SQLRepository persists transactions in SQLite or PostgreSQL.
type SQLRepository struct {
	db      *sql.DB
	dialect Dialect
	retry   RetryPolicy
}

// OpenSQLite opens (creating if needed) the database file at path and runs
// migrations against it.
func OpenSQLite(path string) (*SQLRepository, error) {
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create db directory: %w", err)
		}
	}

	dsn := sqliteDSN(path)
	if err := RunMigrations(DialectSQLite, dsn); err != nil {
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// A single writer connection avoids SQLITE_BUSY between pooled
	// connections of the same process.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	slog.Info("SQLite repository ready", "path", path)
	return NewSQLRepository(db, DialectSQLite), nil
}

// OpenPostgres connects to dsn and runs migrations.
func OpenPostgres(dsn string) (*SQLRepository, error) {
	if err := RunMigrations(DialectPostgres, dsn); err != nil {
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	slog.Info("PostgreSQL repository ready")
	return NewSQLRepository(db, DialectPostgres), nil
}

// NewSQLRepository wraps an already migrated database handle.
func NewSQLRepository(db *sql.DB, dialect Dialect) *SQLRepository {
	return &SQLRepository{db: db, dialect: dialect, retry: DefaultRetryPolicy}
}

// WithRetry replaces the retry policy used for every statement.
func (r *SQLRepository) WithRetry(p RetryPolicy) *SQLRepository {
	r.retry = p
	return r
}

func (r *SQLRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// Ping reports whether the database is reachable.
func (r *SQLRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

func (r *SQLRepository) Create(ctx context.Context, tx core.Transaction) error {
	query := r.rebind(`INSERT INTO transactions (` + columns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO NOTHING`)

	var affected int64
	err := r.retry.Do(ctx, "insert transaction", func(ctx context.Context) error {
		res, err := r.db.ExecContext(ctx, query,
			tx.ID, tx.AmountMinor, tx.Kind.String(), tx.Category,
			tx.Description, tx.OccurredAt, tx.CreatedAt, string(tx.Source))
		if err != nil {
			return err
		}
		affected, err = res.RowsAffected()
		return err
	})
	if err != nil {
		return core.Storage("insert transaction", err)
	}
	if affected == 0 {
		return core.Conflict(tx.ID)
	}
	return nil
}

func (r *SQLRepository) Replace(ctx context.Context, tx core.Transaction) error {
	query := r.rebind(`UPDATE transactions
		SET amount_minor = ?, kind = ?, category = ?, description = ?,
		    occurred_at = ?, created_at = ?, source = ?
		WHERE id = ?`)

	var affected int64
	err := r.retry.Do(ctx, "update transaction", func(ctx context.Context) error {
		res, err := r.db.ExecContext(ctx, query,
			tx.AmountMinor, tx.Kind.String(), tx.Category, tx.Description,
			tx.OccurredAt, tx.CreatedAt, string(tx.Source), tx.ID)
		if err != nil {
			return err
		}
		affected, err = res.RowsAffected()
		return err
	})
	if err != nil {
		return core.Storage("update transaction", err)
	}
	if affected == 0 {
		return core.NotFound(tx.ID)
	}
	return nil
}

func (r *SQLRepository) Remove(ctx context.Context, id string) error {
	query := r.rebind(`DELETE FROM transactions WHERE id = ?`)

	var affected int64
	err := r.retry.Do(ctx, "delete transaction", func(ctx context.Context) error {
		res, err := r.db.ExecContext(ctx, query, id)
		if err != nil {
			return err
		}
		affected, err = res.RowsAffected()
		return err
	})
	if err != nil {
		return core.Storage("delete transaction", err)
	}
	if affected == 0 {
		return core.NotFound(id)
	}
	return nil
}

func (r *SQLRepository) Find(ctx context.Context, id string) (core.Transaction, bool, error) {
	query := r.rebind(`SELECT ` + columns + ` FROM transactions WHERE id = ?`)

	var (
		tx    core.Transaction
		found bool
	)
	err := r.retry.Do(ctx, "get transaction", func(ctx context.Context) error {
		var err error
		tx, err = scanTransaction(r.db.QueryRowContext(ctx, query, id))
		if errors.Is(err, sql.ErrNoRows) {
			found = false
			return nil
		}
		found = err == nil
		return err
	})
	if err != nil {
		return core.Transaction{}, false, core.Storage("get transaction", err)
	}
	if !found {
		return core.Transaction{}, false, nil
	}
	return tx, true, nil
}

func (r *SQLRepository) List(ctx context.Context, from, to int64) ([]core.Transaction, error) {
	var (
		where []string
		args  []any
	)
	if from != 0 {
		where = append(where, "occurred_at >= ?")
		args = append(args, from)
	}
	if to != 0 {
		where = append(where, "occurred_at <= ?")
		args = append(args, to)
	}

	query := `SELECT ` + columns + ` FROM transactions`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY occurred_at DESC, ` + r.idOrder()
	query = r.rebind(query)

	var out []core.Transaction
	err := r.retry.Do(ctx, "list transactions", func(ctx context.Context) error {
		rows, err := r.db.QueryContext(ctx, query, args...)
		if err != nil {
			return err
		}
		defer rows.Close()

		out = out[:0]
		for rows.Next() {
			tx, err := scanTransaction(rows)
			if err != nil {
				return err
			}
			out = append(out, tx)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, core.Storage("list transactions", err)
	}
	if out == nil {
		out = []core.Transaction{}
	}
	return out, nil
}

// idOrder orders ids bytewise so both dialects agree with core.LedgerOrder.
func (r *SQLRepository) idOrder() string {
	if r.dialect == DialectPostgres {
		return `id COLLATE "C" ASC`
	}
	return "id ASC"
}

// rebind turns ? placeholders into $n for PostgreSQL.
func (r *SQLRepository) rebind(query string) string {
	if r.dialect != DialectPostgres {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, ch := range query {
		if ch == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(ch)
	}
	return b.String()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTransaction(row rowScanner) (core.Transaction, error) {
	var (
		tx     core.Transaction
		kind   string
		source string
	)
	if err := row.Scan(&tx.ID, &tx.AmountMinor, &kind, &tx.Category,
		&tx.Description, &tx.OccurredAt, &tx.CreatedAt, &source); err != nil {
		return core.Transaction{}, err
	}
	k, err := core.ParseKind(kind)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("row %s: %w", tx.ID, err)
	}
	tx.Kind = k
	tx.Source = core.Source(source)
	return tx, nil
}

func sqliteDSN(path string) string {
	return "file:" + path +
		"?_pragma=journal_mode(WAL)" +
		"&_pragma=synchronous(FULL)" +
		"&_pragma=busy_timeout(5000)" +
		"&_pragma=foreign_keys(ON)"
}

var _ ledger.Repository = (*SQLRepository)(nil)
