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

// ApprovedRetention is how long APPROVED chore instances are kept before
// the cleanup job may delete them.
const ApprovedRetention = 30 * 24 * time.Hour

// ChoreStore is the storage surface the chore lifecycle needs.
type ChoreStore interface {
	CreateChore(ctx context.Context, c core.Chore) (core.Chore, error)
	GetChore(ctx context.Context, id int64) (core.Chore, error)
	TransitionChore(ctx context.Context, id int64, from, to core.ChoreStatus, at time.Time) error
	ApproveChoreWithSplit(ctx context.Context, choreID, accountID int64, shares []core.Share, at time.Time) error
	GetJarSet(ctx context.Context, accountID int64) (core.JarSet, error)
	ListRecurringTemplates(ctx context.Context) ([]core.Chore, error)
	InsertChoreInstance(ctx context.Context, template core.Chore, day string) (bool, error)
	DeleteApprovedBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// ChoreService drives the PENDING → SUBMITTED → APPROVED lifecycle and the
// recurring-template machinery around it.
type ChoreService struct {
	store     ChoreStore
	publisher EventPublisher
	clock     core.Clock
}

func NewChoreService(store ChoreStore, publisher EventPublisher, clock core.Clock) *ChoreService {
	if clock == nil {
		clock = core.SystemClock{}
	}
	return &ChoreService{store: store, publisher: publisher, clock: clock}
}

func (s *ChoreService) Create(ctx context.Context, c core.Chore) (core.Chore, error) {
	if c.Recurrence == "" {
		c.Recurrence = core.RecurrenceNone
	}
	if err := c.Validate(); err != nil {
		return core.Chore{}, err
	}
	return s.store.CreateChore(ctx, c)
}

// Submit marks a PENDING chore as done by the child. Templates are
// definitions, not completable work, and are rejected.
func (s *ChoreService) Submit(ctx context.Context, choreID int64) error {
	c, err := s.store.GetChore(ctx, choreID)
	if err != nil {
		return err
	}
	if c.IsTemplate() {
		return core.ErrInvalidStateTransition
	}
	return s.store.TransitionChore(ctx, choreID, core.ChorePending, core.ChoreSubmitted, s.clock.Now())
}

// Approve confirms a SUBMITTED chore and pays the reward. The status
// transition and the jar split commit together: if the split fails the
// chore stays SUBMITTED. Two racing approvals are serialized by the
// status compare-and-swap, so the reward is paid at most once.
func (s *ChoreService) Approve(ctx context.Context, choreID int64) error {
	c, err := s.store.GetChore(ctx, choreID)
	if err != nil {
		return err
	}
	if c.Status != core.ChoreSubmitted {
		return core.ErrInvalidStateTransition
	}

	jars, err := s.store.GetJarSet(ctx, c.AccountID)
	if err != nil {
		return fmt.Errorf("load jar set for account %d: %w", c.AccountID, err)
	}
	shares := core.SplitShares(c.Reward, jars)

	if err := s.store.ApproveChoreWithSplit(ctx, c.ID, c.AccountID, shares, s.clock.Now()); err != nil {
		return err
	}

	metrics.SplitsApplied.Inc()
	emitEvent(ctx, s.publisher, events.NewEvent(events.KindChoreApproved, c.AccountID, int64(c.Reward), c.ID))
	return nil
}

// Reject sends a SUBMITTED chore back to PENDING for resubmission.
func (s *ChoreService) Reject(ctx context.Context, choreID int64) error {
	return s.store.TransitionChore(ctx, choreID, core.ChoreSubmitted, core.ChorePending, s.clock.Now())
}

// MaterializeRecurring creates today's PENDING instances from recurring
// templates. Creation is idempotent per template per calendar day; running
// the job twice on the same day adds nothing. Per-template failures are
// isolated so one broken template cannot starve the rest.
func (s *ChoreService) MaterializeRecurring(ctx context.Context, now time.Time) (int, error) {
	templates, err := s.store.ListRecurringTemplates(ctx)
	if err != nil {
		return 0, fmt.Errorf("list recurring templates: %w", err)
	}

	day := core.DateOf(now)
	created := 0
	for _, tpl := range templates {
		if !tpl.DueOn(now) {
			continue
		}
		ok, err := s.store.InsertChoreInstance(ctx, tpl, day)
		if err != nil {
			slog.ErrorContext(ctx, "Failed to materialize chore instance",
				"template_id", tpl.ID,
				"day", day,
				"error", err)
			metrics.JobItemFailures.WithLabelValues("chore_materializer").Inc()
			continue
		}
		if !ok {
			// Already created today.
			continue
		}
		created++
		slog.InfoContext(ctx, "Materialized chore instance",
			"template_id", tpl.ID,
			"account_id", tpl.AccountID,
			"day", day)
	}

	slog.InfoContext(ctx, "Recurring chore materialization complete",
		"templates_checked", len(templates),
		"instances_created", created,
		"day", day)
	return created, nil
}

// CleanupApproved deletes APPROVED instances older than the retention
// window. Templates and non-approved chores are exempt.
func (s *ChoreService) CleanupApproved(ctx context.Context, now time.Time) (int64, error) {
	cutoff := now.Add(-ApprovedRetention)
	deleted, err := s.store.DeleteApprovedBefore(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("cleanup approved chores: %w", err)
	}
	return deleted, nil
}

// IsRetryable reports whether the caller should advise a retry. Domain
// rule violations are final; anything else is treated as a transient
// storage failure.
func IsRetryable(err error) bool {
	switch {
	case errors.Is(err, core.ErrInvalidAllocation),
		errors.Is(err, core.ErrInsufficientFunds),
		errors.Is(err, core.ErrInvalidStateTransition),
		errors.Is(err, core.ErrAccountNotFound),
		errors.Is(err, core.ErrEntityNotFound),
		errors.Is(err, core.ErrDuplicatePayment),
		errors.Is(err, core.ErrInvalidAmount),
		errors.Is(err, core.ErrInvalidJarType),
		errors.Is(err, core.ErrWishlistLocked),
		errors.Is(err, core.ErrEmptyName):
		return false
	}
	return err != nil
}
