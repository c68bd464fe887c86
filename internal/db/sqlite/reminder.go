package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"time"

	"repeatme/internal/core/domain/clock"
	c "repeatme/internal/core/domain/common"
	e "repeatme/internal/core/domain/errors"
	"repeatme/internal/core/domain/reminder"

	"github.com/google/uuid"
)

const reminderColumns = `id, owner_id, submission_id, payload, offset_ms, due_at, state, claimed_at, attempts, created_at, sent_at`

const claimDueQuery = `
UPDATE reminder
SET state = 'in_flight', claimed_at = ?1, attempts = attempts + 1
WHERE id IN (
    SELECT id FROM reminder
    WHERE (state = 'pending' AND due_at <= ?1)
       OR (state = 'in_flight' AND claimed_at <= ?2)
    ORDER BY due_at, id
    LIMIT ?3
)
RETURNING ` + reminderColumns

const finalizeQuery = `
UPDATE reminder
SET state = ?2,
    claimed_at = NULL,
    sent_at = CASE WHEN ?2 = 'sent' THEN MAX(?3, due_at) ELSE NULL END
WHERE id = ?1 AND state = 'in_flight'`

const cancelQuery = `
UPDATE reminder
SET state = 'failed', claimed_at = NULL
WHERE id = ?1 AND state IN ('pending', 'in_flight')
RETURNING ` + reminderColumns

// ReminderStore claims with a single UPDATE statement, which SQLite runs
// under its database write lock, so concurrent claimers in other processes
// never see the same rows.
type ReminderStore struct {
	db *sql.DB
}

func NewReminderStore(db *sql.DB) *ReminderStore {
	if db == nil {
		panic(e.NewNilArgumentError("db"))
	}
	return &ReminderStore{db: db}
}

func (s *ReminderStore) CreateReminders(
	ctx context.Context,
	input reminder.CreateInput,
) (created []reminder.Reminder, err error) {
	input.CreatedAt = clock.Normalize(input.CreatedAt)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin create reminders: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(
		ctx,
		`INSERT INTO reminder (owner_id, submission_id, payload, offset_ms, due_at, state, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?) RETURNING id`,
	)
	if err != nil {
		return nil, fmt.Errorf("prepare create reminder: %w", err)
	}
	defer stmt.Close()

	created = input.NewReminders()
	for ix, r := range created {
		var id int64
		err := stmt.QueryRowContext(
			ctx,
			string(r.OwnerID),
			r.SubmissionID.String(),
			r.Payload,
			r.Offset.Milliseconds(),
			r.DueAt.UnixMilli(),
			r.State.String(),
			r.CreatedAt.UnixMilli(),
		).Scan(&id)
		if err != nil {
			return nil, fmt.Errorf("insert reminder: %w", err)
		}
		created[ix].ID = reminder.ID(id)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit create reminders: %w", err)
	}
	return created, nil
}

func (s *ReminderStore) GetByID(ctx context.Context, id reminder.ID) (reminder.Reminder, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+reminderColumns+` FROM reminder WHERE id = ?`, int64(id))
	r, err := decodeReminder(row)
	if errors.Is(err, sql.ErrNoRows) {
		return r, reminder.ErrReminderDoesNotExist
	}
	return r, err
}

func (s *ReminderStore) ListPending(ctx context.Context, owner reminder.OwnerID) ([]reminder.Reminder, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT `+reminderColumns+` FROM reminder
		 WHERE owner_id = ? AND state IN ('pending', 'in_flight')
		 ORDER BY due_at, id`,
		string(owner),
	)
	if err != nil {
		return nil, fmt.Errorf("list pending reminders: %w", err)
	}
	return decodeReminders(rows)
}

func (s *ReminderStore) NextPending(
	ctx context.Context,
	owner reminder.OwnerID,
) (c.Optional[reminder.Reminder], error) {
	row := s.db.QueryRowContext(
		ctx,
		`SELECT `+reminderColumns+` FROM reminder
		 WHERE owner_id = ? AND state IN ('pending', 'in_flight')
		 ORDER BY due_at, id
		 LIMIT 1`,
		string(owner),
	)
	r, err := decodeReminder(row)
	if errors.Is(err, sql.ErrNoRows) {
		return c.None[reminder.Reminder](), nil
	}
	if err != nil {
		return c.None[reminder.Reminder](), err
	}
	return c.NewOptional(r, true), nil
}

func (s *ReminderStore) ClaimDue(ctx context.Context, input reminder.ClaimInput) ([]reminder.Reminder, error) {
	now := clock.Normalize(input.Now)
	rows, err := s.db.QueryContext(
		ctx,
		claimDueQuery,
		now.UnixMilli(),
		reminder.LeaseExpiredBefore(now, input.Lease).UnixMilli(),
		int64(input.Limit),
	)
	if err != nil {
		return nil, fmt.Errorf("claim due reminders: %w", err)
	}
	claimed, err := decodeReminders(rows)
	if err != nil {
		return nil, err
	}
	// RETURNING does not keep the subquery order.
	sort.Slice(claimed, func(i, j int) bool { return reminder.Less(claimed[i], claimed[j]) })
	return claimed, nil
}

func (s *ReminderStore) Finalize(ctx context.Context, input reminder.FinalizeInput) (bool, error) {
	state := input.Outcome.State()
	if !state.IsTerminal() {
		return false, fmt.Errorf("finalize reminder %d: %w", input.ID, reminder.ErrParseOutcome)
	}
	result, err := s.db.ExecContext(
		ctx,
		finalizeQuery,
		int64(input.ID),
		state.String(),
		clock.Normalize(input.Now).UnixMilli(),
	)
	if err != nil {
		return false, fmt.Errorf("finalize reminder %d: %w", input.ID, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected == 1, nil
}

func (s *ReminderStore) Cancel(ctx context.Context, id reminder.ID, now time.Time) (reminder.Reminder, error) {
	r, err := decodeReminder(s.db.QueryRowContext(ctx, cancelQuery, int64(id)))
	if errors.Is(err, sql.ErrNoRows) {
		// Either unknown or already terminal.
		return s.GetByID(ctx, id)
	}
	if err != nil {
		return r, fmt.Errorf("cancel reminder %d: %w", id, err)
	}
	return r, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func decodeReminders(rows *sql.Rows) ([]reminder.Reminder, error) {
	defer rows.Close()
	reminders := make([]reminder.Reminder, 0)
	for rows.Next() {
		r, err := decodeReminder(rows)
		if err != nil {
			return nil, err
		}
		reminders = append(reminders, r)
	}
	return reminders, rows.Err()
}

func decodeReminder(row scanner) (r reminder.Reminder, err error) {
	var (
		id           int64
		owner        string
		submissionID string
		offsetMs     int64
		dueAt        int64
		state        string
		claimedAt    sql.NullInt64
		attempts     int64
		createdAt    int64
		sentAt       sql.NullInt64
	)
	err = row.Scan(
		&id, &owner, &submissionID, &r.Payload, &offsetMs, &dueAt,
		&state, &claimedAt, &attempts, &createdAt, &sentAt,
	)
	if err != nil {
		return r, err
	}

	r.ID = reminder.ID(id)
	r.OwnerID = reminder.OwnerID(owner)
	if r.SubmissionID, err = uuid.Parse(submissionID); err != nil {
		return r, err
	}
	r.Offset = reminder.OffsetFromMilliseconds(offsetMs)
	r.DueAt = clock.FromUnixMilli(dueAt)
	if r.State, err = reminder.ParseState(state); err != nil {
		return r, err
	}
	if claimedAt.Valid {
		r.ClaimedAt = c.NewOptional(clock.FromUnixMilli(claimedAt.Int64), true)
	}
	r.Attempts = uint32(attempts)
	r.CreatedAt = clock.FromUnixMilli(createdAt)
	if sentAt.Valid {
		r.SentAt = c.NewOptional(clock.FromUnixMilli(sentAt.Int64), true)
	}
	return r, r.Validate()
}
