package core

import (
	"errors"
	"strings"
	"time"
)

const (
	JarToys     JarType = "TOYS"
	JarBooks    JarType = "BOOKS"
	JarShopping JarType = "SHOPPING"
	JarCharity  JarType = "CHARITY"
	JarWishlist JarType = "WISHLIST"
)

const (
	TxChoreReward      TransactionType = "CHORE_REWARD"
	TxAllowanceSplit   TransactionType = "ALLOWANCE_SPLIT"
	TxWishlistSpend    TransactionType = "WISHLIST_SPEND"
	TxManualAdjustment TransactionType = "MANUAL_ADJUSTMENT"
)

const (
	ChorePending   ChoreStatus = "PENDING"
	ChoreSubmitted ChoreStatus = "SUBMITTED"
	ChoreApproved  ChoreStatus = "APPROVED"
)

const (
	RecurrenceNone   RecurrenceKind = "none"
	RecurrenceDaily  RecurrenceKind = "daily"
	RecurrenceWeekly RecurrenceKind = "weekly"
)

type (
	JarType         string
	TransactionType string
	ChoreStatus     string
	RecurrenceKind  string

	Account struct {
		ID        int64
		Name      string
		CreatedAt time.Time
	}

	Chore struct {
		ID          int64
		AccountID   int64
		Title       string
		Reward      Tokens
		Status      ChoreStatus
		Recurrence  RecurrenceKind
		Weekdays    Weekdays
		TemplateID  *int64 // set on instances generated from a recurring template
		ScheduledOn string // YYYY-MM-DD, instances only
		SubmittedAt *time.Time
		ApprovedAt  *time.Time
		CreatedAt   time.Time
	}

	Allowance struct {
		ID            int64
		AccountID     int64
		WeeklyAmount  Tokens
		PayDay        time.Weekday
		NextPaymentAt time.Time
		Active        bool
	}

	WishlistItem struct {
		ID        int64
		AccountID int64
		Name      string
		Target    Tokens
		Approved  bool
		Purchased bool
		CreatedAt time.Time
	}

	// Transaction is an immutable, append-only record of a single balance
	// change. Rows are never updated or deleted; the log is the source of
	// truth for audit and reconciliation.
	Transaction struct {
		ID             int64
		AccountID      int64
		Jar            JarType
		Amount         Tokens // signed: credits positive, debits negative
		Type           TransactionType
		ReferenceID    *int64
		IdempotencyKey string
		CreatedAt      time.Time
	}
)

var (
	ErrInvalidAllocation      = errors.New("jar percentages do not sum to 100")
	ErrInsufficientFunds      = errors.New("insufficient jar balance")
	ErrInvalidStateTransition = errors.New("state transition not allowed")
	ErrAccountNotFound        = errors.New("account not found")
	ErrEntityNotFound         = errors.New("entity not found")
	ErrDuplicatePayment       = errors.New("payment already applied for this period")

	ErrInvalidAmount  = errors.New("invalid amount")
	ErrInvalidJarType = errors.New("invalid jar type")
	ErrEmptyName      = errors.New("empty name")
	ErrWishlistLocked = errors.New("wishlist jar cannot be cashed out")
)

// AllJarTypes returns every jar category in declaration order. Allocation
// iterates this slice, so the split order (and which jar absorbs the
// rounding remainder) is deterministic.
func AllJarTypes() []JarType {
	return []JarType{JarToys, JarBooks, JarShopping, JarCharity, JarWishlist}
}

func (j JarType) Valid() bool {
	switch j {
	case JarToys, JarBooks, JarShopping, JarCharity, JarWishlist:
		return true
	}
	return false
}

func ParseJarType(s string) (JarType, error) {
	j := JarType(strings.ToUpper(strings.TrimSpace(s)))
	if !j.Valid() {
		return "", ErrInvalidJarType
	}
	return j, nil
}

func (t TransactionType) Valid() bool {
	switch t {
	case TxChoreReward, TxAllowanceSplit, TxWishlistSpend, TxManualAdjustment:
		return true
	}
	return false
}

// Weekdays is the set of weekdays a weekly recurring chore fires on.
type Weekdays []time.Weekday

func (w Weekdays) Contains(d time.Weekday) bool {
	for _, wd := range w {
		if wd == d {
			return true
		}
	}
	return false
}

// DueOn reports whether a recurring template should produce an instance on
// the given day. Non-recurring chores are never due.
func (c Chore) DueOn(day time.Time) bool {
	switch c.Recurrence {
	case RecurrenceDaily:
		return true
	case RecurrenceWeekly:
		return c.Weekdays.Contains(day.Weekday())
	default:
		return false
	}
}

// IsTemplate reports whether the chore is a recurring definition rather
// than a completable instance. The zero RecurrenceKind counts as
// non-recurring.
func (c Chore) IsTemplate() bool {
	return c.Recurrence != RecurrenceNone && c.Recurrence != ""
}

func (c Chore) Validate() error {
	if len(strings.TrimSpace(c.Title)) == 0 {
		return ErrEmptyName
	}
	if len(c.Title) > 200 {
		return errors.New("title too long (max 200 characters)")
	}
	if err := c.Reward.Validate(); err != nil {
		return err
	}
	switch c.Recurrence {
	case "", RecurrenceNone, RecurrenceDaily:
	case RecurrenceWeekly:
		if len(c.Weekdays) == 0 {
			return errors.New("weekly recurrence requires at least one weekday")
		}
	default:
		return errors.New("invalid recurrence kind")
	}
	return nil
}

func (a Allowance) Validate() error {
	if err := a.WeeklyAmount.Validate(); err != nil {
		return err
	}
	if a.PayDay < time.Sunday || a.PayDay > time.Saturday {
		return errors.New("invalid pay day")
	}
	return nil
}

func (w WishlistItem) Validate() error {
	if len(strings.TrimSpace(w.Name)) == 0 {
		return ErrEmptyName
	}
	if err := w.Target.Validate(); err != nil {
		return err
	}
	return nil
}
