package services

import (
	"context"
	"errors"
	"strconv"
	"time"

	"familybank/internal/core"
	"familybank/internal/events"
)

// fakeStore is an in-memory stand-in for the SQLite repository, with the
// same atomicity semantics: failed operations leave no partial state.
type fakeStore struct {
	jars      map[int64]core.JarSet
	balances  map[int64]map[core.JarType]core.Tokens
	ledger    []core.Transaction
	idemKeys  map[string]bool
	chores    map[int64]*core.Chore
	instances map[string]int64 // "templateID/day" -> instance id
	allowance map[int64]*core.Allowance
	wishlist  map[int64]*core.WishlistItem
	nextID    int64

	failSplit error // injected failure for ApplySplit / ApproveChoreWithSplit
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		jars:      make(map[int64]core.JarSet),
		balances:  make(map[int64]map[core.JarType]core.Tokens),
		idemKeys:  make(map[string]bool),
		chores:    make(map[int64]*core.Chore),
		instances: make(map[string]int64),
		allowance: make(map[int64]*core.Allowance),
		wishlist:  make(map[int64]*core.WishlistItem),
		nextID:    1,
	}
}

func (f *fakeStore) addAccount(id int64, jars core.JarSet) {
	f.jars[id] = jars
	f.balances[id] = make(map[core.JarType]core.Tokens)
	for _, jar := range core.AllJarTypes() {
		f.balances[id][jar] = 0
	}
}

func (f *fakeStore) id() int64 {
	id := f.nextID
	f.nextID++
	return id
}

func (f *fakeStore) GetJarSet(_ context.Context, accountID int64) (core.JarSet, error) {
	js, ok := f.jars[accountID]
	if !ok {
		return core.JarSet{}, core.ErrAccountNotFound
	}
	return js, nil
}

func (f *fakeStore) ApplySplit(_ context.Context, accountID int64, shares []core.Share, txType core.TransactionType, referenceID *int64, idempotencyKey string) error {
	if f.failSplit != nil {
		return f.failSplit
	}
	if _, ok := f.balances[accountID]; !ok {
		return core.ErrAccountNotFound
	}
	if idempotencyKey != "" {
		if f.idemKeys[idempotencyKey] {
			return core.ErrDuplicatePayment
		}
		f.idemKeys[idempotencyKey] = true
	}
	for _, s := range shares {
		f.balances[accountID][s.Jar] += s.Amount
		f.ledger = append(f.ledger, core.Transaction{
			ID: f.id(), AccountID: accountID, Jar: s.Jar,
			Amount: s.Amount, Type: txType, ReferenceID: referenceID,
		})
	}
	return nil
}

func (f *fakeStore) DebitJar(_ context.Context, accountID int64, jar core.JarType, amount core.Tokens, txType core.TransactionType, referenceID *int64) error {
	balances, ok := f.balances[accountID]
	if !ok {
		return core.ErrAccountNotFound
	}
	if balances[jar] < amount {
		return core.ErrInsufficientFunds
	}
	balances[jar] -= amount
	f.ledger = append(f.ledger, core.Transaction{
		ID: f.id(), AccountID: accountID, Jar: jar,
		Amount: -amount, Type: txType, ReferenceID: referenceID,
	})
	return nil
}

func (f *fakeStore) CreateChore(_ context.Context, c core.Chore) (core.Chore, error) {
	c.ID = f.id()
	c.Status = core.ChorePending
	f.chores[c.ID] = &c
	return c, nil
}

func (f *fakeStore) GetChore(_ context.Context, id int64) (core.Chore, error) {
	c, ok := f.chores[id]
	if !ok {
		return core.Chore{}, core.ErrEntityNotFound
	}
	return *c, nil
}

func (f *fakeStore) TransitionChore(_ context.Context, id int64, from, to core.ChoreStatus, at time.Time) error {
	c, ok := f.chores[id]
	if !ok {
		return core.ErrEntityNotFound
	}
	if c.Status != from {
		return core.ErrInvalidStateTransition
	}
	c.Status = to
	switch to {
	case core.ChoreSubmitted:
		c.SubmittedAt = &at
	case core.ChoreApproved:
		c.ApprovedAt = &at
	default:
		c.SubmittedAt = nil
	}
	return nil
}

func (f *fakeStore) ApproveChoreWithSplit(ctx context.Context, choreID, accountID int64, shares []core.Share, at time.Time) error {
	c, ok := f.chores[choreID]
	if !ok {
		return core.ErrEntityNotFound
	}
	if c.Status != core.ChoreSubmitted {
		return core.ErrInvalidStateTransition
	}
	if err := f.ApplySplit(ctx, accountID, shares, core.TxChoreReward, &choreID, ""); err != nil {
		// Split failed: the status change rolls back with it.
		return err
	}
	c.Status = core.ChoreApproved
	c.ApprovedAt = &at
	return nil
}

func (f *fakeStore) ListRecurringTemplates(_ context.Context) ([]core.Chore, error) {
	var templates []core.Chore
	for _, c := range f.chores {
		if c.IsTemplate() {
			templates = append(templates, *c)
		}
	}
	return templates, nil
}

func (f *fakeStore) InsertChoreInstance(_ context.Context, template core.Chore, day string) (bool, error) {
	k := instanceKey(template.ID, day)
	if _, exists := f.instances[k]; exists {
		return false, nil
	}
	id := f.id()
	tplID := template.ID
	f.chores[id] = &core.Chore{
		ID: id, AccountID: template.AccountID, Title: template.Title,
		Reward: template.Reward, Status: core.ChorePending,
		Recurrence: core.RecurrenceNone, TemplateID: &tplID, ScheduledOn: day,
	}
	f.instances[k] = id
	return true, nil
}

func instanceKey(templateID int64, day string) string {
	return day + "/" + strconv.FormatInt(templateID, 10)
}

func (f *fakeStore) DeleteApprovedBefore(_ context.Context, cutoff time.Time) (int64, error) {
	var deleted int64
	for id, c := range f.chores {
		if c.Status == core.ChoreApproved && !c.IsTemplate() &&
			c.ApprovedAt != nil && c.ApprovedAt.Before(cutoff) {
			delete(f.chores, id)
			deleted++
		}
	}
	return deleted, nil
}

func (f *fakeStore) CreateAllowance(_ context.Context, a core.Allowance) (core.Allowance, error) {
	a.ID = f.id()
	a.Active = true
	f.allowance[a.ID] = &a
	return a, nil
}

func (f *fakeStore) GetAllowance(_ context.Context, id int64) (core.Allowance, error) {
	a, ok := f.allowance[id]
	if !ok {
		return core.Allowance{}, core.ErrEntityNotFound
	}
	return *a, nil
}

func (f *fakeStore) ListDueAllowances(_ context.Context, now time.Time) ([]core.Allowance, error) {
	var due []core.Allowance
	for _, a := range f.allowance {
		if a.Active && !a.NextPaymentAt.After(now) {
			due = append(due, *a)
		}
	}
	return due, nil
}

func (f *fakeStore) AdvanceAllowance(_ context.Context, id int64, next time.Time) error {
	a, ok := f.allowance[id]
	if !ok {
		return core.ErrEntityNotFound
	}
	a.NextPaymentAt = next
	return nil
}

func (f *fakeStore) SetAllowanceActive(_ context.Context, id int64, active bool) error {
	a, ok := f.allowance[id]
	if !ok {
		return core.ErrEntityNotFound
	}
	a.Active = active
	return nil
}

func (f *fakeStore) CreateWishlistItem(_ context.Context, item core.WishlistItem) (core.WishlistItem, error) {
	item.ID = f.id()
	f.wishlist[item.ID] = &item
	return item, nil
}

func (f *fakeStore) GetWishlistItem(_ context.Context, id int64) (core.WishlistItem, error) {
	item, ok := f.wishlist[id]
	if !ok {
		return core.WishlistItem{}, core.ErrEntityNotFound
	}
	return *item, nil
}

func (f *fakeStore) SettleWishlistItem(ctx context.Context, id int64, _ time.Time) (core.WishlistItem, error) {
	item, ok := f.wishlist[id]
	if !ok {
		return core.WishlistItem{}, core.ErrEntityNotFound
	}
	if item.Approved || item.Purchased {
		return core.WishlistItem{}, core.ErrInvalidStateTransition
	}
	ref := item.ID
	if err := f.DebitJar(ctx, item.AccountID, core.JarWishlist, item.Target, core.TxWishlistSpend, &ref); err != nil {
		return core.WishlistItem{}, err
	}
	item.Approved = true
	item.Purchased = true
	return *item, nil
}

func (f *fakeStore) DeleteWishlistItem(_ context.Context, id int64) error {
	if _, ok := f.wishlist[id]; !ok {
		return core.ErrEntityNotFound
	}
	delete(f.wishlist, id)
	return nil
}

// recordingPublisher captures emitted events for assertions.
type recordingPublisher struct {
	published []events.Event
	fail      bool
}

func (p *recordingPublisher) Publish(_ context.Context, e events.Event) error {
	if p.fail {
		return errors.New("broker unavailable")
	}
	p.published = append(p.published, e)
	return nil
}
