package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"expenses/internal/core"

	"github.com/go-sql-driver/mysql"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"
)

const expenseColumns = "id, user_id, amount_cents, category, date, note, created_at, updated_at"

// Repository is the SQL store for users and expenses. Every expense query
// carries the owner in its WHERE clause.
type Repository struct {
	db      *sql.DB
	dialect Dialect
}

// Open connects to the database, verifies the connection and applies
// pending migrations. For SQLite dsn is a file path.
func Open(ctx context.Context, dialect Dialect, dsn string) (*Repository, error) {
	if dialect == SQLite {
		if err := os.MkdirAll(filepath.Dir(dsn), 0755); err != nil {
			return nil, fmt.Errorf("create db directory: %w", err)
		}
	}

	connDSN, err := connString(dialect, dsn, false)
	if err != nil {
		return nil, err
	}
	db, err := sql.Open(dialect.driverName(), connDSN)
	if err != nil {
		return nil, fmt.Errorf("open %s database: %w", dialect, err)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if dialect != SQLite {
		db.SetMaxOpenConns(10)
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(5 * time.Minute)
	}

	// Run migrations
	if err := RunMigrations(dialect, dsn); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &Repository{db: db, dialect: dialect}, nil
}

// connString adapts the configured dsn to what the driver needs.
func connString(dialect Dialect, dsn string, migrations bool) (string, error) {
	switch dialect {
	case SQLite:
		sep := "?"
		if strings.Contains(dsn, "?") {
			sep = "&"
		}
		return dsn + sep + "_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)", nil
	case MySQL:
		cfg, err := mysql.ParseDSN(dsn)
		if err != nil {
			return "", fmt.Errorf("parse mysql dsn: %w", err)
		}
		cfg.ParseTime = true
		cfg.Loc = time.UTC
		// Report matched rows so an update that changes nothing is not
		// mistaken for a missing record.
		cfg.ClientFoundRows = true
		cfg.MultiStatements = migrations
		return cfg.FormatDSN(), nil
	default:
		return dsn, nil
	}
}

func (r *Repository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// Ping checks that the database is reachable.
func (r *Repository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Dialect reports the SQL flavour in use.
func (r *Repository) Dialect() Dialect {
	return r.dialect
}

func (r *Repository) q(query string) string {
	return r.dialect.rebind(query)
}

// readTxOptions gives page and count one snapshot. SQLite serialises
// readers on a single transaction already.
func (r *Repository) readTxOptions() *sql.TxOptions {
	if r.dialect == SQLite {
		return nil
	}
	return &sql.TxOptions{Isolation: sql.LevelRepeatableRead, ReadOnly: true}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanExpense(row rowScanner) (core.Expense, error) {
	var (
		e    core.Expense
		note sql.NullString
	)
	err := row.Scan(&e.ID, &e.UserID, &e.Amount.Cents, &e.Category, &e.Date, &note, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		return core.Expense{}, err
	}
	if note.Valid {
		e.Note = &note.String
	}
	e.CreatedAt = e.CreatedAt.UTC()
	e.UpdatedAt = e.UpdatedAt.UTC()
	return e, nil
}

// CreateExpense inserts a fully populated expense.
func (r *Repository) CreateExpense(ctx context.Context, e core.Expense) error {
	_, err := r.db.ExecContext(ctx,
		r.q(`INSERT INTO expenses (`+expenseColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`),
		e.ID, e.UserID, e.Amount.Cents, e.Category, e.Date, e.Note, e.CreatedAt, e.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("create expense %s: %w", e.ID, core.ErrConflict)
		}
		return fmt.Errorf("create expense: %w", err)
	}
	return nil
}

func expenseWhere(f core.ListFilter) (string, []any) {
	clauses := []string{"user_id = ?"}
	args := []any{f.UserID}
	if f.Category != "" {
		clauses = append(clauses, "category = ?")
		args = append(args, f.Category)
	}
	if f.StartDate != nil {
		clauses = append(clauses, "date >= ?")
		args = append(args, *f.StartDate)
	}
	if f.EndDate != nil {
		clauses = append(clauses, "date <= ?")
		args = append(args, *f.EndDate)
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

// ListExpenses returns one page of the caller's expenses, newest first,
// together with the number of rows matching the filter. Both reads share a
// transaction so the total agrees with the page.
func (r *Repository) ListExpenses(ctx context.Context, f core.ListFilter) ([]core.Expense, int64, error) {
	where, args := expenseWhere(f)

	tx, err := r.db.BeginTx(ctx, r.readTxOptions())
	if err != nil {
		return nil, 0, fmt.Errorf("begin list transaction: %w", err)
	}
	defer tx.Rollback()

	var total int64
	if err := tx.QueryRowContext(ctx, r.q(`SELECT COUNT(*) FROM expenses`+where), args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count expenses: %w", err)
	}

	expenses := []core.Expense{}
	if total > f.Offset() {
		pageArgs := append(append([]any{}, args...), f.Limit, f.Offset())
		rows, err := tx.QueryContext(ctx,
			r.q(`SELECT `+expenseColumns+` FROM expenses`+where+
				` ORDER BY date DESC, created_at DESC, id DESC LIMIT ? OFFSET ?`),
			pageArgs...,
		)
		if err != nil {
			return nil, 0, fmt.Errorf("list expenses: %w", err)
		}
		defer rows.Close()

		for rows.Next() {
			e, err := scanExpense(rows)
			if err != nil {
				return nil, 0, fmt.Errorf("scan expense: %w", err)
			}
			expenses = append(expenses, e)
		}
		if err := rows.Err(); err != nil {
			return nil, 0, fmt.Errorf("iterate expenses: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, 0, fmt.Errorf("commit list transaction: %w", err)
	}
	return expenses, total, nil
}

// SummarizeExpenses totals the caller's whole history per category.
func (r *Repository) SummarizeExpenses(ctx context.Context, userID string) (core.Summary, error) {
	rows, err := r.db.QueryContext(ctx,
		r.q(`SELECT category, `+r.dialect.sumCents()+` FROM expenses WHERE user_id = ? GROUP BY category`),
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("summarize expenses: %w", err)
	}
	defer rows.Close()

	summary := core.Summary{}
	for rows.Next() {
		var (
			category string
			cents    int64
		)
		if err := rows.Scan(&category, &cents); err != nil {
			return nil, fmt.Errorf("scan category sum: %w", err)
		}
		summary[category] = core.Money{Cents: cents}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate category sums: %w", err)
	}
	return summary, nil
}

// UpdateExpense applies patch to the expense only when it belongs to
// userID and returns the stored result. A missing or foreign expense
// yields core.ErrNotFound.
func (r *Repository) UpdateExpense(ctx context.Context, id, userID string, patch core.ExpensePatch, now time.Time) (core.Expense, error) {
	var (
		sets []string
		args []any
	)
	if patch.Amount != nil {
		sets = append(sets, "amount_cents = ?")
		args = append(args, patch.Amount.Cents)
	}
	if patch.Category != nil {
		sets = append(sets, "category = ?")
		args = append(args, *patch.Category)
	}
	if patch.Date != nil {
		sets = append(sets, "date = ?")
		args = append(args, *patch.Date)
	}
	if patch.Note.Set {
		sets = append(sets, "note = ?")
		args = append(args, patch.Note.Ptr())
	}
	sets = append(sets, "updated_at = ?")
	args = append(args, now, id, userID)

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return core.Expense{}, fmt.Errorf("begin update transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		r.q(`UPDATE expenses SET `+strings.Join(sets, ", ")+` WHERE id = ? AND user_id = ?`),
		args...,
	)
	if err != nil {
		return core.Expense{}, fmt.Errorf("update expense: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return core.Expense{}, fmt.Errorf("update expense rows affected: %w", err)
	}
	if n == 0 {
		return core.Expense{}, core.ErrNotFound
	}

	e, err := scanExpense(tx.QueryRowContext(ctx,
		r.q(`SELECT `+expenseColumns+` FROM expenses WHERE id = ? AND user_id = ?`),
		id, userID,
	))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return core.Expense{}, core.ErrNotFound
		}
		return core.Expense{}, fmt.Errorf("reload expense: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return core.Expense{}, fmt.Errorf("commit update transaction: %w", err)
	}
	return e, nil
}

// DeleteExpense removes the expense only when it belongs to userID.
func (r *Repository) DeleteExpense(ctx context.Context, id, userID string) error {
	res, err := r.db.ExecContext(ctx,
		r.q(`DELETE FROM expenses WHERE id = ? AND user_id = ?`),
		id, userID,
	)
	if err != nil {
		return fmt.Errorf("delete expense: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete expense rows affected: %w", err)
	}
	if n == 0 {
		return core.ErrNotFound
	}
	return nil
}
