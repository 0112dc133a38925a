package sheets

import "context"

// StatementRow is one exported line of the family statement: a committed
// balance mutation rendered for the spreadsheet.
type StatementRow struct {
	Date        string  // YYYY-MM-DD
	AccountName string
	Kind        string  // CHORE_APPROVED, ALLOWANCE_PAID, ...
	Amount      float64 // display units, negative for debits
	Reference   string  // event id, used to spot duplicates by hand
}

// Ports for outbound adapters.
type StatementWriter interface {
	Append(ctx context.Context, row StatementRow) (rowRef string, err error)
}
