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

// ApplySplit credits every jar in shares and appends one ledger row per
// jar, all-or-nothing. When idempotencyKey is non-empty it is recorded on
// the first ledger row; a second call with the same key commits nothing and
// returns core.ErrDuplicatePayment.
func (r *SQLiteRepository) ApplySplit(ctx context.Context, accountID int64, shares []core.Share, txType core.TransactionType, referenceID *int64, idempotencyKey string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if err := applySplitTx(ctx, tx, accountID, shares, txType, referenceID, idempotencyKey); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit split: %w", err)
	}

	slog.InfoContext(ctx, "Split applied to jars",
		"account_id", accountID,
		"tx_type", txType,
		"jars", len(shares))
	return nil
}

// applySplitTx is the shared body of ApplySplit, also used by chore
// approval so status change and split share one transaction.
func applySplitTx(ctx context.Context, tx *sql.Tx, accountID int64, shares []core.Share, txType core.TransactionType, referenceID *int64, idempotencyKey string) error {
	now := dbTime(time.Now())
	for i, share := range shares {
		res, err := tx.ExecContext(ctx,
			`UPDATE balances SET amount = amount + ? WHERE account_id = ? AND jar_type = ?`,
			int64(share.Amount), accountID, string(share.Jar))
		if err != nil {
			return fmt.Errorf("credit jar %s: %w", share.Jar, err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return core.ErrAccountNotFound
		}

		key := any(nil)
		if i == 0 && idempotencyKey != "" {
			key = idempotencyKey
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO transactions (account_id, jar_type, amount, tx_type, reference_id, idempotency_key, created_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			accountID, string(share.Jar), int64(share.Amount), string(txType), refValue(referenceID), key, now)
		if isUniqueViolation(err) {
			return core.ErrDuplicatePayment
		}
		if err != nil {
			return fmt.Errorf("append transaction for jar %s: %w", share.Jar, err)
		}
	}
	return nil
}

// DebitJar atomically subtracts amount from one jar and appends the
// matching negative ledger row. The balance guard in the UPDATE makes the
// read-validate-write race-safe: of two concurrent debits only the one that
// still finds sufficient funds takes effect.
func (r *SQLiteRepository) DebitJar(ctx context.Context, accountID int64, jar core.JarType, amount core.Tokens, txType core.TransactionType, referenceID *int64) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if err := debitJarTx(ctx, tx, accountID, jar, amount, txType, referenceID); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit debit: %w", err)
	}

	slog.InfoContext(ctx, "Jar debited",
		"account_id", accountID,
		"jar", jar,
		"amount", int64(amount),
		"tx_type", txType)
	return nil
}

func debitJarTx(ctx context.Context, tx *sql.Tx, accountID int64, jar core.JarType, amount core.Tokens, txType core.TransactionType, referenceID *int64) error {
	var exists int
	err := tx.QueryRowContext(ctx,
		`SELECT 1 FROM balances WHERE account_id = ? AND jar_type = ?`,
		accountID, string(jar)).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return core.ErrAccountNotFound
	}
	if err != nil {
		return fmt.Errorf("check balance row: %w", err)
	}

	res, err := tx.ExecContext(ctx,
		`UPDATE balances SET amount = amount - ?
		 WHERE account_id = ? AND jar_type = ? AND amount >= ?`,
		int64(amount), accountID, string(jar), int64(amount))
	if err != nil {
		return fmt.Errorf("debit jar %s: %w", jar, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return core.ErrInsufficientFunds
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO transactions (account_id, jar_type, amount, tx_type, reference_id, idempotency_key, created_at)
		 VALUES (?, ?, ?, ?, ?, NULL, ?)`,
		accountID, string(jar), -int64(amount), string(txType), refValue(referenceID), dbTime(time.Now()))
	if err != nil {
		return fmt.Errorf("append debit transaction: %w", err)
	}
	return nil
}

// ListTransactions returns the newest ledger rows for an account.
func (r *SQLiteRepository) ListTransactions(ctx context.Context, accountID int64, limit int) ([]core.Transaction, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, account_id, jar_type, amount, tx_type, reference_id, COALESCE(idempotency_key, ''), created_at
		 FROM transactions WHERE account_id = ?
		 ORDER BY id DESC LIMIT ?`,
		accountID, limit)
	if err != nil {
		return nil, fmt.Errorf("query transactions: %w", err)
	}
	defer rows.Close()

	var txs []core.Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		txs = append(txs, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate transactions: %w", err)
	}
	return txs, nil
}

// GetTransaction fetches one ledger row, used by the statement worker when
// mirroring committed rows to the export sheet.
func (r *SQLiteRepository) GetTransaction(ctx context.Context, id int64) (core.Transaction, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, account_id, jar_type, amount, tx_type, reference_id, COALESCE(idempotency_key, ''), created_at
		 FROM transactions WHERE id = ?`, id)
	t, err := scanTransaction(row)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Transaction{}, core.ErrEntityNotFound
	}
	if err != nil {
		return core.Transaction{}, err
	}
	return t, nil
}

// LastTransactionID returns the id of the most recent ledger row for an
// account and transaction type, so callers can reference what they just
// committed.
func (r *SQLiteRepository) LastTransactionID(ctx context.Context, accountID int64, txType core.TransactionType) (int64, error) {
	var id int64
	err := r.db.QueryRowContext(ctx,
		`SELECT id FROM transactions WHERE account_id = ? AND tx_type = ? ORDER BY id DESC LIMIT 1`,
		accountID, string(txType)).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, core.ErrEntityNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("last transaction id: %w", err)
	}
	return id, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTransaction(row rowScanner) (core.Transaction, error) {
	var (
		t       core.Transaction
		jar     string
		txType  string
		ref     sql.NullInt64
		created string
	)
	if err := row.Scan(&t.ID, &t.AccountID, &jar, &t.Amount, &txType, &ref, &t.IdempotencyKey, &created); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return core.Transaction{}, err
		}
		return core.Transaction{}, fmt.Errorf("scan transaction: %w", err)
	}
	t.Jar = core.JarType(jar)
	t.Type = core.TransactionType(txType)
	if ref.Valid {
		t.ReferenceID = &ref.Int64
	}
	t.CreatedAt = parseDBTime(created)
	return t, nil
}

func refValue(id *int64) any {
	if id == nil {
		return nil
	}
	return *id
}
