package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"familybank/internal/core"
)

func (r *SQLiteRepository) CreateChore(ctx context.Context, c core.Chore) (core.Chore, error) {
	now := time.Now().UTC()
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO chores (account_id, title, reward, status, recurrence, weekdays, template_id, scheduled_on, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.AccountID, c.Title, int64(c.Reward), string(core.ChorePending),
		string(c.Recurrence), encodeWeekdays(c.Weekdays), refValue(c.TemplateID),
		nullString(c.ScheduledOn), dbTime(now))
	if err != nil {
		return core.Chore{}, fmt.Errorf("insert chore: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return core.Chore{}, fmt.Errorf("chore id: %w", err)
	}

	c.ID = id
	c.Status = core.ChorePending
	c.CreatedAt = now
	slog.InfoContext(ctx, "Chore created",
		"id", id,
		"account_id", c.AccountID,
		"reward", int64(c.Reward),
		"recurrence", c.Recurrence)
	return c, nil
}

func (r *SQLiteRepository) GetChore(ctx context.Context, id int64) (core.Chore, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, account_id, title, reward, status, recurrence, weekdays,
		        template_id, COALESCE(scheduled_on, ''), submitted_at, approved_at, created_at
		 FROM chores WHERE id = ?`, id)
	c, err := scanChore(row)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Chore{}, core.ErrEntityNotFound
	}
	if err != nil {
		return core.Chore{}, err
	}
	return c, nil
}

// TransitionChore moves a chore from one status to another with a
// compare-and-swap on the current status. Zero affected rows means the
// precondition no longer holds (a concurrent caller won the race or the
// chore is in another state) and maps to ErrInvalidStateTransition.
func (r *SQLiteRepository) TransitionChore(ctx context.Context, id int64, from, to core.ChoreStatus, at time.Time) error {
	column := ""
	switch to {
	case core.ChoreSubmitted:
		column = "submitted_at"
	case core.ChoreApproved:
		column = "approved_at"
	}

	var (
		res sql.Result
		err error
	)
	if column != "" {
		res, err = r.db.ExecContext(ctx,
			`UPDATE chores SET status = ?, `+column+` = ? WHERE id = ? AND status = ?`,
			string(to), dbTime(at), id, string(from))
	} else {
		// Rejection resets the submission stamp.
		res, err = r.db.ExecContext(ctx,
			`UPDATE chores SET status = ?, submitted_at = NULL WHERE id = ? AND status = ?`,
			string(to), id, string(from))
	}
	if err != nil {
		return fmt.Errorf("transition chore: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		if _, err := r.GetChore(ctx, id); err != nil {
			return err
		}
		return core.ErrInvalidStateTransition
	}

	slog.InfoContext(ctx, "Chore transitioned", "id", id, "from", from, "to", to)
	return nil
}

// ApproveChoreWithSplit commits the SUBMITTED→APPROVED transition and the
// reward split as one unit. If the allocation cannot be applied the status
// change rolls back with it and the chore stays SUBMITTED.
func (r *SQLiteRepository) ApproveChoreWithSplit(ctx context.Context, choreID, accountID int64, shares []core.Share, at time.Time) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`UPDATE chores SET status = ?, approved_at = ? WHERE id = ? AND status = ?`,
		string(core.ChoreApproved), dbTime(at), choreID, string(core.ChoreSubmitted))
	if err != nil {
		return fmt.Errorf("approve chore: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return core.ErrInvalidStateTransition
	}

	ref := choreID
	if err := applySplitTx(ctx, tx, accountID, shares, core.TxChoreReward, &ref, ""); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit approval: %w", err)
	}

	slog.InfoContext(ctx, "Chore approved and reward split",
		"chore_id", choreID,
		"account_id", accountID,
		"jars", len(shares))
	return nil
}

// ListRecurringTemplates returns all chores that act as recurring
// definitions (daily, or weekly with a weekday set).
func (r *SQLiteRepository) ListRecurringTemplates(ctx context.Context) ([]core.Chore, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, account_id, title, reward, status, recurrence, weekdays,
		        template_id, COALESCE(scheduled_on, ''), submitted_at, approved_at, created_at
		 FROM chores WHERE recurrence != ?`, string(core.RecurrenceNone))
	if err != nil {
		return nil, fmt.Errorf("query templates: %w", err)
	}
	defer rows.Close()
	return collectChores(rows)
}

// InsertChoreInstance materializes one PENDING instance from a template for
// the given calendar day. The unique (template_id, scheduled_on) index makes
// this idempotent per day: a duplicate insert reports created=false and
// changes nothing.
func (r *SQLiteRepository) InsertChoreInstance(ctx context.Context, template core.Chore, day string) (bool, error) {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO chores (account_id, title, reward, status, recurrence, weekdays, template_id, scheduled_on, created_at)
		 VALUES (?, ?, ?, ?, ?, '', ?, ?, ?)`,
		template.AccountID, template.Title, int64(template.Reward),
		string(core.ChorePending), string(core.RecurrenceNone),
		template.ID, day, dbTime(time.Now()))
	if isUniqueViolation(err) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("insert chore instance: %w", err)
	}
	return true, nil
}

// DeleteApprovedBefore removes APPROVED non-template instances approved
// before the cutoff. Templates and non-approved chores are untouched.
func (r *SQLiteRepository) DeleteApprovedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM chores
		 WHERE status = ? AND recurrence = ? AND approved_at IS NOT NULL AND approved_at < ?`,
		string(core.ChoreApproved), string(core.RecurrenceNone), dbTime(cutoff))
	if err != nil {
		return 0, fmt.Errorf("delete stale chores: %w", err)
	}
	n, _ := res.RowsAffected()
	if n > 0 {
		slog.InfoContext(ctx, "Stale approved chores deleted", "count", n, "cutoff", cutoff.Format("2006-01-02"))
	}
	return n, nil
}

func (r *SQLiteRepository) ListChoresByAccount(ctx context.Context, accountID int64) ([]core.Chore, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, account_id, title, reward, status, recurrence, weekdays,
		        template_id, COALESCE(scheduled_on, ''), submitted_at, approved_at, created_at
		 FROM chores WHERE account_id = ? ORDER BY id DESC`, accountID)
	if err != nil {
		return nil, fmt.Errorf("query chores: %w", err)
	}
	defer rows.Close()
	return collectChores(rows)
}

func collectChores(rows *sql.Rows) ([]core.Chore, error) {
	var chores []core.Chore
	for rows.Next() {
		c, err := scanChore(rows)
		if err != nil {
			return nil, err
		}
		chores = append(chores, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate chores: %w", err)
	}
	return chores, nil
}

func scanChore(row rowScanner) (core.Chore, error) {
	var (
		c           core.Chore
		status      string
		recurrence  string
		weekdays    string
		templateID  sql.NullInt64
		submittedAt sql.NullString
		approvedAt  sql.NullString
		created     string
	)
	err := row.Scan(&c.ID, &c.AccountID, &c.Title, &c.Reward, &status, &recurrence,
		&weekdays, &templateID, &c.ScheduledOn, &submittedAt, &approvedAt, &created)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return core.Chore{}, err
		}
		return core.Chore{}, fmt.Errorf("scan chore: %w", err)
	}
	c.Status = core.ChoreStatus(status)
	c.Recurrence = core.RecurrenceKind(recurrence)
	c.Weekdays = decodeWeekdays(weekdays)
	if templateID.Valid {
		c.TemplateID = &templateID.Int64
	}
	c.SubmittedAt = parseDBNullTime(submittedAt)
	c.ApprovedAt = parseDBNullTime(approvedAt)
	c.CreatedAt = parseDBTime(created)
	return c, nil
}

// Weekday sets are stored as a comma-separated list of time.Weekday ints.
func encodeWeekdays(w core.Weekdays) string {
	if len(w) == 0 {
		return ""
	}
	parts := make([]string, len(w))
	for i, d := range w {
		parts[i] = strconv.Itoa(int(d))
	}
	return strings.Join(parts, ",")
}

func decodeWeekdays(s string) core.Weekdays {
	if s == "" {
		return nil
	}
	var w core.Weekdays
	for _, part := range strings.Split(s, ",") {
		n, err := strconv.Atoi(part)
		if err != nil || n < 0 || n > 6 {
			continue
		}
		w = append(w, time.Weekday(n))
	}
	return w
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
