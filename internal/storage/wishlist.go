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

func (r *SQLiteRepository) CreateWishlistItem(ctx context.Context, item core.WishlistItem) (core.WishlistItem, error) {
	now := time.Now().UTC()
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO wishlist_items (account_id, name, target, approved, purchased, created_at)
		 VALUES (?, ?, ?, 0, 0, ?)`,
		item.AccountID, item.Name, int64(item.Target), dbTime(now))
	if err != nil {
		return core.WishlistItem{}, fmt.Errorf("insert wishlist item: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return core.WishlistItem{}, fmt.Errorf("wishlist item id: %w", err)
	}

	item.ID = id
	item.Approved = false
	item.Purchased = false
	item.CreatedAt = now
	slog.InfoContext(ctx, "Wishlist item created",
		"id", id,
		"account_id", item.AccountID,
		"target", int64(item.Target))
	return item, nil
}

func (r *SQLiteRepository) GetWishlistItem(ctx context.Context, id int64) (core.WishlistItem, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, account_id, name, target, approved, purchased, created_at
		 FROM wishlist_items WHERE id = ?`, id)
	item, err := scanWishlistItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return core.WishlistItem{}, core.ErrEntityNotFound
	}
	if err != nil {
		return core.WishlistItem{}, err
	}
	return item, nil
}

// SettleWishlistItem approves and purchases the item by debiting the
// WISHLIST jar for the target amount, appending the WISHLIST_SPEND ledger
// row, and flipping both flags in one transaction. The item state is
// re-read inside the transaction so two racing settlements cannot both
// succeed.
func (r *SQLiteRepository) SettleWishlistItem(ctx context.Context, id int64, at time.Time) (core.WishlistItem, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return core.WishlistItem{}, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	item, err := scanWishlistItem(tx.QueryRowContext(ctx,
		`SELECT id, account_id, name, target, approved, purchased, created_at
		 FROM wishlist_items WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return core.WishlistItem{}, core.ErrEntityNotFound
	}
	if err != nil {
		return core.WishlistItem{}, err
	}
	if item.Approved || item.Purchased {
		return core.WishlistItem{}, core.ErrInvalidStateTransition
	}

	ref := item.ID
	if err := debitJarTx(ctx, tx, item.AccountID, core.JarWishlist, item.Target, core.TxWishlistSpend, &ref); err != nil {
		return core.WishlistItem{}, err
	}

	// The flag update is guarded the same way as the read above; a racing
	// settlement that slipped between read and write loses here.
	res, err := tx.ExecContext(ctx,
		`UPDATE wishlist_items SET approved = 1, purchased = 1
		 WHERE id = ? AND approved = 0 AND purchased = 0`, id)
	if err != nil {
		return core.WishlistItem{}, fmt.Errorf("mark item purchased: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return core.WishlistItem{}, core.ErrInvalidStateTransition
	}

	if err := tx.Commit(); err != nil {
		return core.WishlistItem{}, fmt.Errorf("commit settlement: %w", err)
	}

	item.Approved = true
	item.Purchased = true
	slog.InfoContext(ctx, "Wishlist item settled",
		"id", id,
		"account_id", item.AccountID,
		"target", int64(item.Target))
	return item, nil
}

// DeleteWishlistItem removes the item outright. Denial is destructive and
// has no balance effect.
func (r *SQLiteRepository) DeleteWishlistItem(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM wishlist_items WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete wishlist item: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return core.ErrEntityNotFound
	}
	slog.InfoContext(ctx, "Wishlist item denied and deleted", "id", id)
	return nil
}

func (r *SQLiteRepository) ListWishlistByAccount(ctx context.Context, accountID int64) ([]core.WishlistItem, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, account_id, name, target, approved, purchased, created_at
		 FROM wishlist_items WHERE account_id = ? ORDER BY id DESC`, accountID)
	if err != nil {
		return nil, fmt.Errorf("query wishlist: %w", err)
	}
	defer rows.Close()

	var items []core.WishlistItem
	for rows.Next() {
		item, err := scanWishlistItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate wishlist: %w", err)
	}
	return items, nil
}

func scanWishlistItem(row rowScanner) (core.WishlistItem, error) {
	var (
		item      core.WishlistItem
		approved  int
		purchased int
		created   string
	)
	if err := row.Scan(&item.ID, &item.AccountID, &item.Name, &item.Target, &approved, &purchased, &created); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return core.WishlistItem{}, err
		}
		return core.WishlistItem{}, fmt.Errorf("scan wishlist item: %w", err)
	}
	item.Approved = approved != 0
	item.Purchased = purchased != 0
	item.CreatedAt = parseDBTime(created)
	return item, nil
}
