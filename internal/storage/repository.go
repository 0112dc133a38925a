// Package storage persists the FamilyBank ledger in SQLite.
//
// Every multi-row mutation (allocation splits, chore approval, wishlist
// settlement, cash-out) runs inside a single database transaction so
// concurrent readers never observe a partially-applied change.
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

	"familybank/internal/core"

	_ "modernc.org/sqlite"
)

type SQLiteRepository struct {
	db *sql.DB
}

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	// WAL keeps readers unblocked during writes; busy_timeout serializes
	// concurrent writers instead of failing them.
	dsn := "file:" + dbPath + "?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteRepository{db: db}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// CreateAccount inserts the account together with its five jars and five
// zero balances in one transaction.
func (r *SQLiteRepository) CreateAccount(ctx context.Context, name string, jars core.JarSet) (core.Account, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return core.Account{}, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	res, err := tx.ExecContext(ctx,
		`INSERT INTO accounts (name, created_at) VALUES (?, ?)`,
		name, dbTime(now))
	if err != nil {
		return core.Account{}, fmt.Errorf("insert account: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return core.Account{}, fmt.Errorf("account id: %w", err)
	}

	for _, jar := range core.AllJarTypes() {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO jars (account_id, jar_type, percentage) VALUES (?, ?, ?)`,
			id, string(jar), jars.Percentage(jar)); err != nil {
			return core.Account{}, fmt.Errorf("insert jar %s: %w", jar, err)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO balances (account_id, jar_type, amount) VALUES (?, ?, 0)`,
			id, string(jar)); err != nil {
			return core.Account{}, fmt.Errorf("insert balance %s: %w", jar, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return core.Account{}, fmt.Errorf("commit: %w", err)
	}

	slog.InfoContext(ctx, "Account created", "id", id, "name", name)
	return core.Account{ID: id, Name: name, CreatedAt: now}, nil
}

func (r *SQLiteRepository) GetAccount(ctx context.Context, id int64) (core.Account, error) {
	var (
		a       core.Account
		created string
	)
	err := r.db.QueryRowContext(ctx,
		`SELECT id, name, created_at FROM accounts WHERE id = ?`, id).
		Scan(&a.ID, &a.Name, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Account{}, core.ErrAccountNotFound
	}
	if err != nil {
		return core.Account{}, fmt.Errorf("get account: %w", err)
	}
	a.CreatedAt = parseDBTime(created)
	return a, nil
}

// DeleteAccount removes the account; jars, balances, transactions, chores,
// allowances and wishlist items cascade at the schema level.
func (r *SQLiteRepository) DeleteAccount(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM accounts WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete account: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return core.ErrAccountNotFound
	}
	slog.InfoContext(ctx, "Account deleted", "id", id)
	return nil
}

// GetJarSet loads the account's jar percentages. The rows are revalidated
// through core.NewJarSet so a corrupted allocation surfaces as
// ErrInvalidAllocation instead of silently mis-splitting.
func (r *SQLiteRepository) GetJarSet(ctx context.Context, accountID int64) (core.JarSet, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT jar_type, percentage FROM jars WHERE account_id = ?`, accountID)
	if err != nil {
		return core.JarSet{}, fmt.Errorf("query jars: %w", err)
	}
	defer rows.Close()

	percentages := make(map[core.JarType]int)
	for rows.Next() {
		var (
			jar string
			pct int
		)
		if err := rows.Scan(&jar, &pct); err != nil {
			return core.JarSet{}, fmt.Errorf("scan jar: %w", err)
		}
		percentages[core.JarType(jar)] = pct
	}
	if err := rows.Err(); err != nil {
		return core.JarSet{}, fmt.Errorf("iterate jars: %w", err)
	}
	if len(percentages) == 0 {
		return core.JarSet{}, core.ErrAccountNotFound
	}
	return core.NewJarSet(percentages)
}

// UpdateJarPercentages rewrites the account's jar rows. The caller hands in
// a core.JarSet, so the 100% invariant was enforced before any row is
// touched.
func (r *SQLiteRepository) UpdateJarPercentages(ctx context.Context, accountID int64, jars core.JarSet) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	for _, jar := range core.AllJarTypes() {
		res, err := tx.ExecContext(ctx,
			`UPDATE jars SET percentage = ? WHERE account_id = ? AND jar_type = ?`,
			jars.Percentage(jar), accountID, string(jar))
		if err != nil {
			return fmt.Errorf("update jar %s: %w", jar, err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return core.ErrAccountNotFound
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}

	slog.InfoContext(ctx, "Jar percentages updated", "account_id", accountID)
	return nil
}

func (r *SQLiteRepository) GetBalances(ctx context.Context, accountID int64) (map[core.JarType]core.Tokens, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT jar_type, amount FROM balances WHERE account_id = ?`, accountID)
	if err != nil {
		return nil, fmt.Errorf("query balances: %w", err)
	}
	defer rows.Close()

	balances := make(map[core.JarType]core.Tokens)
	for rows.Next() {
		var (
			jar    string
			amount int64
		)
		if err := rows.Scan(&jar, &amount); err != nil {
			return nil, fmt.Errorf("scan balance: %w", err)
		}
		balances[core.JarType(jar)] = core.Tokens(amount)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate balances: %w", err)
	}
	if len(balances) == 0 {
		return nil, core.ErrAccountNotFound
	}
	return balances, nil
}

func (r *SQLiteRepository) GetBalance(ctx context.Context, accountID int64, jar core.JarType) (core.Tokens, error) {
	var amount int64
	err := r.db.QueryRowContext(ctx,
		`SELECT amount FROM balances WHERE account_id = ? AND jar_type = ?`,
		accountID, string(jar)).Scan(&amount)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, core.ErrAccountNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("get balance: %w", err)
	}
	return core.Tokens(amount), nil
}

// dbTime and parseDBTime keep all persisted timestamps in UTC RFC3339.
func dbTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

func parseDBTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

func parseDBNullTime(s sql.NullString) *time.Time {
	if !s.Valid || s.String == "" {
		return nil
	}
	t := parseDBTime(s.String)
	return &t
}

// isUniqueViolation detects UNIQUE constraint failures without depending on
// the driver's error types.
func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
