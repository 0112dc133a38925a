// Package services implements the FamilyBank business rules: jar
// allocation, the chore lifecycle, allowance scheduling, wishlist
// settlement, and cash-outs. Services validate and orchestrate; atomicity
// lives in the storage layer.
package services

import (
	"context"
	"fmt"
	"log/slog"

	"familybank/internal/core"
	"familybank/internal/events"
	"familybank/internal/metrics"
)

// EventPublisher is the hook notifiers subscribe through. Publish failures
// must never affect the financial mutation that triggered them, so services
// log and continue.
type EventPublisher interface {
	Publish(ctx context.Context, event events.Event) error
}

// LedgerStore is the slice of storage the allocation engine needs.
type LedgerStore interface {
	GetJarSet(ctx context.Context, accountID int64) (core.JarSet, error)
	ApplySplit(ctx context.Context, accountID int64, shares []core.Share, txType core.TransactionType, referenceID *int64, idempotencyKey string) error
}

// AllocationEngine distributes earned value (chore rewards, allowances)
// across an account's jars by their configured percentages.
type AllocationEngine struct {
	store LedgerStore
}

func NewAllocationEngine(store LedgerStore) *AllocationEngine {
	return &AllocationEngine{store: store}
}

// SplitIntoJars splits amount across the account's jars and commits one
// balance delta plus one ledger row per jar as a single unit. The rounded
// shares conserve the amount exactly (the last jar absorbs the remainder).
func (e *AllocationEngine) SplitIntoJars(ctx context.Context, accountID int64, amount core.Tokens, txType core.TransactionType, referenceID *int64) error {
	return e.split(ctx, accountID, amount, txType, referenceID, "")
}

// SplitIntoJarsIdempotent is SplitIntoJars with a caller-supplied
// idempotency key; reapplying the same key returns
// core.ErrDuplicatePayment with no mutation. Used by the allowance
// scheduler so a crashed run can be retried without double-paying.
func (e *AllocationEngine) SplitIntoJarsIdempotent(ctx context.Context, accountID int64, amount core.Tokens, txType core.TransactionType, referenceID *int64, idempotencyKey string) error {
	return e.split(ctx, accountID, amount, txType, referenceID, idempotencyKey)
}

func (e *AllocationEngine) split(ctx context.Context, accountID int64, amount core.Tokens, txType core.TransactionType, referenceID *int64, idempotencyKey string) error {
	if err := amount.Validate(); err != nil {
		return err
	}

	jars, err := e.store.GetJarSet(ctx, accountID)
	if err != nil {
		return fmt.Errorf("load jar set for account %d: %w", accountID, err)
	}

	shares := core.SplitShares(amount, jars)
	if err := e.store.ApplySplit(ctx, accountID, shares, txType, referenceID, idempotencyKey); err != nil {
		return err
	}

	metrics.SplitsApplied.Inc()
	return nil
}

// Shares computes the per-jar split without applying it, for previews.
func (e *AllocationEngine) Shares(ctx context.Context, accountID int64, amount core.Tokens) ([]core.Share, error) {
	if err := amount.Validate(); err != nil {
		return nil, err
	}
	jars, err := e.store.GetJarSet(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("load jar set for account %d: %w", accountID, err)
	}
	return core.SplitShares(amount, jars), nil
}

// emitEvent publishes a domain event if a publisher is configured. Failures
// are logged, never surfaced: the ledger write already committed.
func emitEvent(ctx context.Context, publisher EventPublisher, event events.Event) {
	if publisher == nil {
		return
	}
	if err := publisher.Publish(ctx, event); err != nil {
		slog.ErrorContext(ctx, "Failed to publish domain event",
			"kind", event.Kind,
			"account_id", event.AccountID,
			"error", err)
	}
}
