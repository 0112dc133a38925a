package services

import (
	"context"

	"familybank/internal/core"
	"familybank/internal/events"
)

// CashOutStore is the storage surface cash-outs need.
type CashOutStore interface {
	DebitJar(ctx context.Context, accountID int64, jar core.JarType, amount core.Tokens, txType core.TransactionType, referenceID *int64) error
}

// CashOutService handles parent-initiated direct debits: real-world money
// handed to the child outside the app. The debit goes through the same
// ledger path as every other mutation, so the transaction log stays the
// source of truth for cash-outs too.
type CashOutService struct {
	store     CashOutStore
	publisher EventPublisher
}

func NewCashOutService(store CashOutStore, publisher EventPublisher) *CashOutService {
	return &CashOutService{store: store, publisher: publisher}
}

// CashOut debits the named jar by amount as a MANUAL_ADJUSTMENT. The
// WISHLIST jar is reserved for wishlist settlement and cannot be cashed
// out. Insufficient funds abort with no mutation.
func (s *CashOutService) CashOut(ctx context.Context, accountID int64, jar core.JarType, amount core.Tokens) error {
	if !jar.Valid() {
		return core.ErrInvalidJarType
	}
	if jar == core.JarWishlist {
		return core.ErrWishlistLocked
	}
	if err := amount.Validate(); err != nil {
		return err
	}

	if err := s.store.DebitJar(ctx, accountID, jar, amount, core.TxManualAdjustment, nil); err != nil {
		return err
	}

	emitEvent(ctx, s.publisher, events.NewEvent(events.KindCashOut, accountID, -int64(amount), 0))
	return nil
}
