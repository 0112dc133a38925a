package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"familybank/internal/core"
)

func (r *SQLiteRepository) CreateAllowance(ctx context.Context, a core.Allowance) (core.Allowance, error) {
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO allowances (account_id, weekly_amount, pay_day, next_payment_at, active)
		 VALUES (?, ?, ?, ?, 1)`,
		a.AccountID, int64(a.WeeklyAmount), int(a.PayDay), dbTime(a.NextPaymentAt))
	if err != nil {
		return core.Allowance{}, fmt.Errorf("insert allowance: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return core.Allowance{}, fmt.Errorf("allowance id: %w", err)
	}

	a.ID = id
	a.Active = true
	slog.InfoContext(ctx, "Allowance created",
		"id", id,
		"account_id", a.AccountID,
		"weekly_amount", int64(a.WeeklyAmount),
		"pay_day", a.PayDay.String(),
		"first_payment", a.NextPaymentAt.Format("2006-01-02"))
	return a, nil
}

func (r *SQLiteRepository) GetAllowance(ctx context.Context, id int64) (core.Allowance, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, account_id, weekly_amount, pay_day, next_payment_at, active
		 FROM allowances WHERE id = ?`, id)
	a, err := scanAllowance(row)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Allowance{}, core.ErrEntityNotFound
	}
	if err != nil {
		return core.Allowance{}, err
	}
	return a, nil
}

// ListDueAllowances returns active allowances whose next payment is at or
// before now.
func (r *SQLiteRepository) ListDueAllowances(ctx context.Context, now time.Time) ([]core.Allowance, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, account_id, weekly_amount, pay_day, next_payment_at, active
		 FROM allowances WHERE active = 1 AND next_payment_at <= ?`,
		dbTime(now))
	if err != nil {
		return nil, fmt.Errorf("query due allowances: %w", err)
	}
	defer rows.Close()

	var due []core.Allowance
	for rows.Next() {
		a, err := scanAllowance(rows)
		if err != nil {
			return nil, err
		}
		due = append(due, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate allowances: %w", err)
	}
	return due, nil
}

func (r *SQLiteRepository) AdvanceAllowance(ctx context.Context, id int64, next time.Time) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE allowances SET next_payment_at = ? WHERE id = ?`,
		dbTime(next), id)
	if err != nil {
		return fmt.Errorf("advance allowance: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return core.ErrEntityNotFound
	}
	return nil
}

func (r *SQLiteRepository) SetAllowanceActive(ctx context.Context, id int64, active bool) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE allowances SET active = ? WHERE id = ?`, boolInt(active), id)
	if err != nil {
		return fmt.Errorf("set allowance active: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return core.ErrEntityNotFound
	}
	slog.InfoContext(ctx, "Allowance active flag updated", "id", id, "active", active)
	return nil
}

func scanAllowance(row rowScanner) (core.Allowance, error) {
	var (
		a      core.Allowance
		payDay int
		next   string
		active int
	)
	if err := row.Scan(&a.ID, &a.AccountID, &a.WeeklyAmount, &payDay, &next, &active); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return core.Allowance{}, err
		}
		return core.Allowance{}, fmt.Errorf("scan allowance: %w", err)
	}
	a.PayDay = time.Weekday(payDay)
	a.NextPaymentAt = parseDBTime(next)
	a.Active = active != 0
	return a, nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
