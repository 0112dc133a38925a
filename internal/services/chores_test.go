package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"familybank/internal/core"
	"familybank/internal/events"
)

func newChoreFixture(t *testing.T) (*fakeStore, *recordingPublisher, *ChoreService, core.Chore) {
	t.Helper()
	store := newFakeStore()
	store.addAccount(1, specJars(t))
	pub := &recordingPublisher{}
	svc := NewChoreService(store, pub, core.FixedClock{T: time.Date(2024, 1, 15, 12, 0, 0, 0, time.UTC)})

	chore, err := svc.Create(context.Background(), core.Chore{
		AccountID: 1, Title: "Take out trash", Reward: 37, Recurrence: core.RecurrenceNone,
	})
	if err != nil {
		t.Fatalf("Create() error: %v", err)
	}
	return store, pub, svc, chore
}

func TestChoreLifecycle_SubmitApprove(t *testing.T) {
	store, pub, svc, chore := newChoreFixture(t)
	ctx := context.Background()

	if err := svc.Submit(ctx, chore.ID); err != nil {
		t.Fatalf("Submit() error: %v", err)
	}
	if err := svc.Approve(ctx, chore.ID); err != nil {
		t.Fatalf("Approve() error: %v", err)
	}

	got, _ := store.GetChore(ctx, chore.ID)
	if got.Status != core.ChoreApproved {
		t.Errorf("status = %s, want APPROVED", got.Status)
	}

	var total core.Tokens
	for _, amount := range store.balances[1] {
		total += amount
	}
	if total != 37 {
		t.Errorf("reward credited = %d, want 37", total)
	}

	if len(pub.published) != 1 || pub.published[0].Kind != events.KindChoreApproved {
		t.Errorf("expected one CHORE_APPROVED event, got %+v", pub.published)
	}
}

func TestChoreLifecycle_ApprovePendingRejected(t *testing.T) {
	_, _, svc, chore := newChoreFixture(t)

	err := svc.Approve(context.Background(), chore.ID)
	if !errors.Is(err, core.ErrInvalidStateTransition) {
		t.Fatalf("Approve(PENDING) error = %v, want ErrInvalidStateTransition", err)
	}
}

func TestChoreLifecycle_RejectResetsToPending(t *testing.T) {
	store, _, svc, chore := newChoreFixture(t)
	ctx := context.Background()

	if err := svc.Submit(ctx, chore.ID); err != nil {
		t.Fatalf("Submit() error: %v", err)
	}
	if err := svc.Reject(ctx, chore.ID); err != nil {
		t.Fatalf("Reject() error: %v", err)
	}

	got, _ := store.GetChore(ctx, chore.ID)
	if got.Status != core.ChorePending {
		t.Errorf("status = %s, want PENDING", got.Status)
	}
	if got.SubmittedAt != nil {
		t.Error("submission stamp should be cleared on rejection")
	}

	// Resubmission works after a reset.
	if err := svc.Submit(ctx, chore.ID); err != nil {
		t.Fatalf("resubmit error: %v", err)
	}
}

func TestChoreLifecycle_FailedSplitLeavesSubmitted(t *testing.T) {
	store, pub, svc, chore := newChoreFixture(t)
	ctx := context.Background()

	if err := svc.Submit(ctx, chore.ID); err != nil {
		t.Fatalf("Submit() error: %v", err)
	}

	store.failSplit = errors.New("disk full")
	if err := svc.Approve(ctx, chore.ID); err == nil {
		t.Fatal("Approve() expected error when split fails")
	}

	got, _ := store.GetChore(ctx, chore.ID)
	if got.Status != core.ChoreSubmitted {
		t.Errorf("status = %s, want SUBMITTED (no partial approval)", got.Status)
	}
	if len(pub.published) != 0 {
		t.Errorf("no event expected on failure, got %d", len(pub.published))
	}

	// A retry after the failure clears succeeds.
	store.failSplit = nil
	if err := svc.Approve(ctx, chore.ID); err != nil {
		t.Fatalf("retry Approve() error: %v", err)
	}
}

func TestChoreLifecycle_TemplateNotSubmittable(t *testing.T) {
	store := newFakeStore()
	store.addAccount(1, specJars(t))
	svc := NewChoreService(store, nil, nil)
	ctx := context.Background()

	tpl, err := svc.Create(ctx, core.Chore{
		AccountID: 1, Title: "Make bed", Reward: 5, Recurrence: core.RecurrenceDaily,
	})
	if err != nil {
		t.Fatalf("Create() error: %v", err)
	}

	if err := svc.Submit(ctx, tpl.ID); !errors.Is(err, core.ErrInvalidStateTransition) {
		t.Fatalf("Submit(template) error = %v, want ErrInvalidStateTransition", err)
	}
}

func TestMaterializeRecurring_IdempotentPerDay(t *testing.T) {
	store := newFakeStore()
	store.addAccount(1, specJars(t))
	svc := NewChoreService(store, nil, nil)
	ctx := context.Background()

	if _, err := svc.Create(ctx, core.Chore{
		AccountID: 1, Title: "Make bed", Reward: 5, Recurrence: core.RecurrenceDaily,
	}); err != nil {
		t.Fatalf("Create() error: %v", err)
	}

	monday := time.Date(2024, 1, 15, 8, 0, 0, 0, time.UTC)
	created, err := svc.MaterializeRecurring(ctx, monday)
	if err != nil {
		t.Fatalf("MaterializeRecurring() error: %v", err)
	}
	if created != 1 {
		t.Fatalf("first run created %d instances, want 1", created)
	}

	// Second run the same day creates nothing.
	created, err = svc.MaterializeRecurring(ctx, monday.Add(6*time.Hour))
	if err != nil {
		t.Fatalf("MaterializeRecurring() second run error: %v", err)
	}
	if created != 0 {
		t.Errorf("second run created %d instances, want 0", created)
	}

	// The next day creates a fresh instance.
	created, err = svc.MaterializeRecurring(ctx, monday.AddDate(0, 0, 1))
	if err != nil {
		t.Fatalf("MaterializeRecurring() next day error: %v", err)
	}
	if created != 1 {
		t.Errorf("next day created %d instances, want 1", created)
	}
}

func TestMaterializeRecurring_WeeklyRespectsWeekdays(t *testing.T) {
	store := newFakeStore()
	store.addAccount(1, specJars(t))
	svc := NewChoreService(store, nil, nil)
	ctx := context.Background()

	if _, err := svc.Create(ctx, core.Chore{
		AccountID: 1, Title: "Mow lawn", Reward: 50,
		Recurrence: core.RecurrenceWeekly, Weekdays: core.Weekdays{time.Saturday},
	}); err != nil {
		t.Fatalf("Create() error: %v", err)
	}

	friday := time.Date(2024, 1, 19, 8, 0, 0, 0, time.UTC)
	created, err := svc.MaterializeRecurring(ctx, friday)
	if err != nil {
		t.Fatalf("MaterializeRecurring() error: %v", err)
	}
	if created != 0 {
		t.Errorf("friday run created %d, want 0", created)
	}

	saturday := friday.AddDate(0, 0, 1)
	created, err = svc.MaterializeRecurring(ctx, saturday)
	if err != nil {
		t.Fatalf("MaterializeRecurring() error: %v", err)
	}
	if created != 1 {
		t.Errorf("saturday run created %d, want 1", created)
	}
}

func TestCleanupApproved_RespectsRetentionAndExemptions(t *testing.T) {
	store := newFakeStore()
	store.addAccount(1, specJars(t))
	svc := NewChoreService(store, nil, nil)
	ctx := context.Background()
	now := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

	old := now.Add(-31 * 24 * time.Hour)
	recent := now.Add(-5 * 24 * time.Hour)

	// Recurrence left at its zero value: Create must accept that as a
	// one-off chore.
	stale, err := svc.Create(ctx, core.Chore{AccountID: 1, Title: "Old", Reward: 10})
	if err != nil {
		t.Fatalf("Create() error: %v", err)
	}
	store.chores[stale.ID].Status = core.ChoreApproved
	store.chores[stale.ID].ApprovedAt = &old

	fresh, err := svc.Create(ctx, core.Chore{AccountID: 1, Title: "Fresh", Reward: 10})
	if err != nil {
		t.Fatalf("Create() error: %v", err)
	}
	store.chores[fresh.ID].Status = core.ChoreApproved
	store.chores[fresh.ID].ApprovedAt = &recent

	tpl, err := svc.Create(ctx, core.Chore{AccountID: 1, Title: "Daily", Reward: 5, Recurrence: core.RecurrenceDaily})
	if err != nil {
		t.Fatalf("Create() error: %v", err)
	}
	store.chores[tpl.ID].Status = core.ChoreApproved
	store.chores[tpl.ID].ApprovedAt = &old

	deleted, err := svc.CleanupApproved(ctx, now)
	if err != nil {
		t.Fatalf("CleanupApproved() error: %v", err)
	}
	if deleted != 1 {
		t.Fatalf("deleted = %d, want 1", deleted)
	}
	if _, err := store.GetChore(ctx, stale.ID); !errors.Is(err, core.ErrEntityNotFound) {
		t.Error("stale approved chore should be gone")
	}
	if _, err := store.GetChore(ctx, fresh.ID); err != nil {
		t.Error("recent approved chore should survive")
	}
	if _, err := store.GetChore(ctx, tpl.ID); err != nil {
		t.Error("template should survive cleanup")
	}
}

func TestEmitEvent_FailureIsSwallowed(t *testing.T) {
	store, pub, svc, chore := newChoreFixture(t)
	pub.fail = true
	ctx := context.Background()

	if err := svc.Submit(ctx, chore.ID); err != nil {
		t.Fatalf("Submit() error: %v", err)
	}
	// Approval must succeed even though the event publish fails.
	if err := svc.Approve(ctx, chore.ID); err != nil {
		t.Fatalf("Approve() error: %v", err)
	}
	got, _ := store.GetChore(ctx, chore.ID)
	if got.Status != core.ChoreApproved {
		t.Errorf("status = %s, want APPROVED despite publish failure", got.Status)
	}
}
