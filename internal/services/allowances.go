package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"familybank/internal/core"
	"familybank/internal/events"
	"familybank/internal/metrics"
)

// AllowanceStore is the storage surface the scheduler needs.
type AllowanceStore interface {
	CreateAllowance(ctx context.Context, a core.Allowance) (core.Allowance, error)
	GetAllowance(ctx context.Context, id int64) (core.Allowance, error)
	ListDueAllowances(ctx context.Context, now time.Time) ([]core.Allowance, error)
	AdvanceAllowance(ctx context.Context, id int64, next time.Time) error
	SetAllowanceActive(ctx context.Context, id int64, active bool) error
}

// AllowanceScheduler pays due weekly allowances through the allocation
// engine and reschedules them.
type AllowanceScheduler struct {
	store     AllowanceStore
	engine    *AllocationEngine
	publisher EventPublisher
	clock     core.Clock
}

func NewAllowanceScheduler(store AllowanceStore, engine *AllocationEngine, publisher EventPublisher, clock core.Clock) *AllowanceScheduler {
	if clock == nil {
		clock = core.SystemClock{}
	}
	return &AllowanceScheduler{store: store, engine: engine, publisher: publisher, clock: clock}
}

// Create registers a weekly allowance. The first payment lands on the next
// future occurrence of the configured weekday; when created on that weekday
// it defers to the following week.
func (s *AllowanceScheduler) Create(ctx context.Context, accountID int64, weeklyAmount core.Tokens, payDay time.Weekday) (core.Allowance, error) {
	a := core.Allowance{
		AccountID:    accountID,
		WeeklyAmount: weeklyAmount,
		PayDay:       payDay,
	}
	if err := a.Validate(); err != nil {
		return core.Allowance{}, err
	}
	a.NextPaymentAt = FirstPaymentAt(s.clock.Now(), payDay)
	return s.store.CreateAllowance(ctx, a)
}

// FirstPaymentAt returns the next future occurrence of the weekday, at
// midnight UTC. Creation on the pay day itself rolls to the next week.
func FirstPaymentAt(now time.Time, payDay time.Weekday) time.Time {
	daysUntil := int(payDay - now.Weekday())
	if daysUntil <= 0 {
		daysUntil += 7
	}
	next := now.AddDate(0, 0, daysUntil)
	return time.Date(next.Year(), next.Month(), next.Day(), 0, 0, 0, 0, time.UTC)
}

// ProcessDue pays every active allowance due at or before now. Each
// allowance is processed independently: one failure never aborts the rest.
// Payment is idempotent per due date, so rerunning after a crash cannot
// double-pay; the next payment is scheduled a fixed 7 days from the
// processing moment (a late run does not compound or catch up).
func (s *AllowanceScheduler) ProcessDue(ctx context.Context, now time.Time) (processed, failed int, err error) {
	due, err := s.store.ListDueAllowances(ctx, now)
	if err != nil {
		return 0, 0, fmt.Errorf("list due allowances: %w", err)
	}

	slog.InfoContext(ctx, "Processing due allowances",
		"due", len(due),
		"processing_date", now.Format("2006-01-02"))

	for _, a := range due {
		if err := s.payOne(ctx, a, now); err != nil {
			slog.ErrorContext(ctx, "Failed to process allowance",
				"allowance_id", a.ID,
				"account_id", a.AccountID,
				"error", err)
			metrics.JobItemFailures.WithLabelValues("allowances").Inc()
			failed++
			continue
		}
		processed++
	}

	slog.InfoContext(ctx, "Allowance processing complete",
		"processed", processed,
		"failed", failed)
	return processed, failed, nil
}

func (s *AllowanceScheduler) payOne(ctx context.Context, a core.Allowance, now time.Time) error {
	// Keyed by allowance and scheduled due date: a retry after a crash
	// mid-run finds the key already used and skips straight to
	// rescheduling.
	key := fmt.Sprintf("allowance:%d:%s", a.ID, core.DateOf(a.NextPaymentAt))

	ref := a.ID
	payErr := s.engine.SplitIntoJarsIdempotent(ctx, a.AccountID, a.WeeklyAmount, core.TxAllowanceSplit, &ref, key)
	switch {
	case payErr == nil:
		emitEvent(ctx, s.publisher, events.NewEvent(events.KindAllowancePaid, a.AccountID, int64(a.WeeklyAmount), a.ID))
	case errors.Is(payErr, core.ErrDuplicatePayment):
		slog.WarnContext(ctx, "Allowance already paid for this period, rescheduling only",
			"allowance_id", a.ID,
			"period", core.DateOf(a.NextPaymentAt))
	default:
		// Leave next_payment_at untouched so the next run retries.
		return payErr
	}

	next := now.Add(7 * 24 * time.Hour)
	if err := s.store.AdvanceAllowance(ctx, a.ID, next); err != nil {
		return fmt.Errorf("advance allowance %d: %w", a.ID, err)
	}
	return nil
}

// Deactivate stops future payments without deleting the allowance history.
func (s *AllowanceScheduler) Deactivate(ctx context.Context, id int64) error {
	return s.store.SetAllowanceActive(ctx, id, false)
}

// Activate resumes a deactivated allowance.
func (s *AllowanceScheduler) Activate(ctx context.Context, id int64) error {
	return s.store.SetAllowanceActive(ctx, id, true)
}
