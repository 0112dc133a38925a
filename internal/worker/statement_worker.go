package worker

import (
	"context"
	"fmt"
	"log/slog"

	"familybank/internal/core"
	"familybank/internal/events"
	"familybank/internal/sheets"
)

// AccountGetter is the storage surface the worker needs to resolve names.
type AccountGetter interface {
	GetAccount(ctx context.Context, id int64) (core.Account, error)
}

// StatementWorker exports committed balance mutations to the family
// statement spreadsheet. It consumes events from AMQP; the sheet is a
// read-only mirror, never a source of truth.
type StatementWorker struct {
	storage AccountGetter
	sheets  sheets.StatementWriter
}

func NewStatementWorker(storage AccountGetter, writer sheets.StatementWriter) *StatementWorker {
	return &StatementWorker{storage: storage, sheets: writer}
}

// HandleEvent appends one statement row for the event. Returning an error
// requeues the message, so failures here must be transient ones worth
// retrying (sheet quota, network).
func (w *StatementWorker) HandleEvent(ctx context.Context, e events.Event) error {
	slog.InfoContext(ctx, "Processing statement event",
		"event_id", e.EventID,
		"kind", e.Kind,
		"account_id", e.AccountID)

	account, err := w.storage.GetAccount(ctx, e.AccountID)
	if err != nil {
		return fmt.Errorf("get account %d: %w", e.AccountID, err)
	}

	row := sheets.StatementRow{
		Date:        e.OccurredAt.UTC().Format("2006-01-02"),
		AccountName: account.Name,
		Kind:        e.Kind,
		Amount:      core.Tokens(e.Amount).Display(),
		Reference:   e.EventID,
	}

	ref, err := w.sheets.Append(ctx, row)
	if err != nil {
		return fmt.Errorf("append statement row: %w", err)
	}

	slog.InfoContext(ctx, "Statement row exported",
		"event_id", e.EventID,
		"sheets_ref", ref,
		"account", account.Name,
		"amount_tokens", e.Amount)
	return nil
}
