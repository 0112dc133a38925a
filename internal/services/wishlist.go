package services

import (
	"context"
	"time"

	"familybank/internal/core"
	"familybank/internal/events"
)

// WishlistStore is the storage surface wishlist settlement needs.
type WishlistStore interface {
	CreateWishlistItem(ctx context.Context, item core.WishlistItem) (core.WishlistItem, error)
	GetWishlistItem(ctx context.Context, id int64) (core.WishlistItem, error)
	SettleWishlistItem(ctx context.Context, id int64, at time.Time) (core.WishlistItem, error)
	DeleteWishlistItem(ctx context.Context, id int64) error
}

// WishlistService settles wishlist goals against the WISHLIST jar.
type WishlistService struct {
	store     WishlistStore
	publisher EventPublisher
	clock     core.Clock
}

func NewWishlistService(store WishlistStore, publisher EventPublisher, clock core.Clock) *WishlistService {
	if clock == nil {
		clock = core.SystemClock{}
	}
	return &WishlistService{store: store, publisher: publisher, clock: clock}
}

func (s *WishlistService) Create(ctx context.Context, item core.WishlistItem) (core.WishlistItem, error) {
	if err := item.Validate(); err != nil {
		return core.WishlistItem{}, err
	}
	return s.store.CreateWishlistItem(ctx, item)
}

// ApproveAndPurchase debits the WISHLIST jar for the item's target amount
// and marks it approved and purchased, atomically. An item already settled
// returns ErrInvalidStateTransition; a jar short of the target returns
// ErrInsufficientFunds with nothing applied.
func (s *WishlistService) ApproveAndPurchase(ctx context.Context, itemID int64) (core.WishlistItem, error) {
	item, err := s.store.SettleWishlistItem(ctx, itemID, s.clock.Now())
	if err != nil {
		return core.WishlistItem{}, err
	}

	emitEvent(ctx, s.publisher, events.NewEvent(events.KindWishlistPurchased, item.AccountID, -int64(item.Target), item.ID))
	return item, nil
}

// Deny deletes the wishlist item outright. Destructive and irreversible;
// no balance effect.
func (s *WishlistService) Deny(ctx context.Context, itemID int64) error {
	return s.store.DeleteWishlistItem(ctx, itemID)
}
