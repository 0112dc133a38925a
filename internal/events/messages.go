// Package events publishes domain events for committed financial
// mutations. Delivery is best-effort by design: a publish failure is logged
// by the caller and never rolls back the ledger write that triggered it.
package events

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

const (
	KindChoreApproved     = "CHORE_APPROVED"
	KindAllowancePaid     = "ALLOWANCE_PAID"
	KindWishlistPurchased = "WISHLIST_PURCHASED"
	KindCashOut           = "CASH_OUT"
)

// Event describes one committed balance mutation. Amount is in tokens,
// signed the same way as the underlying ledger rows.
type Event struct {
	EventID     string    `json:"event_id"`
	Kind        string    `json:"kind"`
	AccountID   int64     `json:"account_id"`
	Amount      int64     `json:"amount"`
	ReferenceID int64     `json:"reference_id,omitempty"`
	OccurredAt  time.Time `json:"occurred_at"`
}

// NewEvent stamps a fresh event with a unique id and the current time.
func NewEvent(kind string, accountID, amount, referenceID int64) Event {
	return Event{
		EventID:     uuid.NewString(),
		Kind:        kind,
		AccountID:   accountID,
		Amount:      amount,
		ReferenceID: referenceID,
		OccurredAt:  time.Now().UTC(),
	}
}

func (e Event) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

func EventFromJSON(data []byte) (Event, error) {
	var e Event
	if err := json.Unmarshal(data, &e); err != nil {
		return Event{}, err
	}
	return e, nil
}
