package services

import (
	"context"
	"testing"
	"time"

	"familybank/internal/core"
	"familybank/internal/events"
)

func TestFirstPaymentAt(t *testing.T) {
	// Wednesday.
	now := time.Date(2024, 1, 17, 15, 0, 0, 0, time.UTC)

	tests := []struct {
		name   string
		payDay time.Weekday
		want   time.Time
	}{
		{
			name:   "later this week",
			payDay: time.Friday,
			want:   time.Date(2024, 1, 19, 0, 0, 0, 0, time.UTC),
		},
		{
			name:   "earlier weekday rolls to next week",
			payDay: time.Monday,
			want:   time.Date(2024, 1, 22, 0, 0, 0, 0, time.UTC),
		},
		{
			name:   "same weekday defers a full week",
			payDay: time.Wednesday,
			want:   time.Date(2024, 1, 24, 0, 0, 0, 0, time.UTC),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := FirstPaymentAt(now, tt.payDay)
			if !got.Equal(tt.want) {
				t.Errorf("FirstPaymentAt() = %v, want %v", got, tt.want)
			}
		})
	}
}

func newSchedulerFixture(t *testing.T, now time.Time) (*fakeStore, *recordingPublisher, *AllowanceScheduler) {
	t.Helper()
	store := newFakeStore()
	store.addAccount(1, specJars(t))
	pub := &recordingPublisher{}
	engine := NewAllocationEngine(store)
	sched := NewAllowanceScheduler(store, engine, pub, core.FixedClock{T: now})
	return store, pub, sched
}

func TestProcessDue_PaysAndReschedulesFixedOffset(t *testing.T) {
	// Allowance due Monday, processed Wednesday because the runner was down.
	wednesday := time.Date(2024, 1, 17, 9, 0, 0, 0, time.UTC)
	store, pub, sched := newSchedulerFixture(t, wednesday)
	ctx := context.Background()

	monday := time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)
	a, _ := store.CreateAllowance(ctx, core.Allowance{
		AccountID: 1, WeeklyAmount: 50, PayDay: time.Monday, NextPaymentAt: monday, Active: true,
	})

	processed, failed, err := sched.ProcessDue(ctx, wednesday)
	if err != nil {
		t.Fatalf("ProcessDue() error: %v", err)
	}
	if processed != 1 || failed != 0 {
		t.Fatalf("processed=%d failed=%d, want 1/0", processed, failed)
	}

	var total core.Tokens
	for _, amount := range store.balances[1] {
		total += amount
	}
	if total != 50 {
		t.Errorf("credited %d tokens, want 50", total)
	}

	// Fixed-offset policy: next payment is 7 days from processing, not from
	// the missed Monday.
	got, _ := store.GetAllowance(ctx, a.ID)
	want := wednesday.Add(7 * 24 * time.Hour)
	if !got.NextPaymentAt.Equal(want) {
		t.Errorf("next_payment_at = %v, want %v", got.NextPaymentAt, want)
	}

	if len(pub.published) != 1 || pub.published[0].Kind != events.KindAllowancePaid {
		t.Errorf("expected one ALLOWANCE_PAID event, got %+v", pub.published)
	}
}

func TestProcessDue_RetryDoesNotDoublePay(t *testing.T) {
	now := time.Date(2024, 1, 17, 9, 0, 0, 0, time.UTC)
	store, _, sched := newSchedulerFixture(t, now)
	ctx := context.Background()

	due := time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)
	a, _ := store.CreateAllowance(ctx, core.Allowance{
		AccountID: 1, WeeklyAmount: 50, PayDay: time.Monday, NextPaymentAt: due, Active: true,
	})

	if _, _, err := sched.ProcessDue(ctx, now); err != nil {
		t.Fatalf("ProcessDue() error: %v", err)
	}

	// Simulate a crash after payment but before rescheduling: the due date
	// is rolled back while the idempotency key stays consumed.
	store.allowance[a.ID].NextPaymentAt = due

	processed, failed, err := sched.ProcessDue(ctx, now)
	if err != nil {
		t.Fatalf("ProcessDue() retry error: %v", err)
	}
	if processed != 1 || failed != 0 {
		t.Fatalf("retry processed=%d failed=%d, want 1/0", processed, failed)
	}

	var total core.Tokens
	for _, amount := range store.balances[1] {
		total += amount
	}
	if total != 50 {
		t.Errorf("credited %d tokens after retry, want 50 (paid once)", total)
	}
}

func TestProcessDue_IsolatesPerItemFailures(t *testing.T) {
	now := time.Date(2024, 1, 17, 9, 0, 0, 0, time.UTC)
	store, _, sched := newSchedulerFixture(t, now)
	ctx := context.Background()

	due := now.Add(-time.Hour)
	// Account 2 has no jars: its allowance fails, account 1's must still pay.
	store.CreateAllowance(ctx, core.Allowance{AccountID: 2, WeeklyAmount: 30, PayDay: time.Monday, NextPaymentAt: due, Active: true})
	store.CreateAllowance(ctx, core.Allowance{AccountID: 1, WeeklyAmount: 50, PayDay: time.Monday, NextPaymentAt: due, Active: true})

	processed, failed, err := sched.ProcessDue(ctx, now)
	if err != nil {
		t.Fatalf("ProcessDue() error: %v", err)
	}
	if processed != 1 || failed != 1 {
		t.Fatalf("processed=%d failed=%d, want 1/1", processed, failed)
	}

	var total core.Tokens
	for _, amount := range store.balances[1] {
		total += amount
	}
	if total != 50 {
		t.Errorf("healthy account credited %d, want 50", total)
	}
}

func TestProcessDue_SkipsInactiveAndFuture(t *testing.T) {
	now := time.Date(2024, 1, 17, 9, 0, 0, 0, time.UTC)
	store, _, sched := newSchedulerFixture(t, now)
	ctx := context.Background()

	// Allowances are created active; deactivate the due one explicitly.
	stopped, err := store.CreateAllowance(ctx, core.Allowance{
		AccountID: 1, WeeklyAmount: 50, PayDay: time.Monday,
		NextPaymentAt: now.Add(-time.Hour),
	})
	if err != nil {
		t.Fatalf("CreateAllowance() error: %v", err)
	}
	if err := sched.Deactivate(ctx, stopped.ID); err != nil {
		t.Fatalf("Deactivate() error: %v", err)
	}
	store.CreateAllowance(ctx, core.Allowance{
		AccountID: 1, WeeklyAmount: 50, PayDay: time.Monday,
		NextPaymentAt: now.Add(24 * time.Hour), Active: true,
	})

	processed, failed, err := sched.ProcessDue(ctx, now)
	if err != nil {
		t.Fatalf("ProcessDue() error: %v", err)
	}
	if processed != 0 || failed != 0 {
		t.Fatalf("processed=%d failed=%d, want 0/0", processed, failed)
	}
}

func TestCreateAllowance_SchedulesFirstPayment(t *testing.T) {
	// Wednesday.
	now := time.Date(2024, 1, 17, 9, 0, 0, 0, time.UTC)
	_, _, sched := newSchedulerFixture(t, now)

	a, err := sched.Create(context.Background(), 1, 50, time.Friday)
	if err != nil {
		t.Fatalf("Create() error: %v", err)
	}
	want := time.Date(2024, 1, 19, 0, 0, 0, 0, time.UTC)
	if !a.NextPaymentAt.Equal(want) {
		t.Errorf("first payment = %v, want %v", a.NextPaymentAt, want)
	}
	if !a.Active {
		t.Error("new allowance should be active")
	}
}
