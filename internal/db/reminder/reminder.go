package reminder

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"repeatme/internal/core/domain/clock"
	c "repeatme/internal/core/domain/common"
	e "repeatme/internal/core/domain/errors"
	"repeatme/internal/core/domain/reminder"
	"repeatme/internal/db"

	"github.com/google/uuid"
	"github.com/jackc/pgconn"
	"github.com/jackc/pgtype"
	"github.com/jackc/pgx/v4"
)

const reminderColumns = `id, owner_id, submission_id, payload, offset_ms, due_at, state, claimed_at, attempts, created_at, sent_at`

const createReminderQuery = `
INSERT INTO reminder (owner_id, submission_id, payload, offset_ms, due_at, state, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)
RETURNING id`

// Rows locked by a concurrent claimer are skipped, and a row claimed and
// committed meanwhile is re-checked against the predicate before locking.
const claimDueQuery = `
WITH due AS (
    SELECT id FROM reminder
    WHERE (state = 'pending' AND due_at <= $1)
       OR (state = 'in_flight' AND claimed_at <= $2)
    ORDER BY due_at, id
    LIMIT $3
    FOR UPDATE SKIP LOCKED
)
UPDATE reminder AS r
SET state = 'in_flight', claimed_at = $1, attempts = r.attempts + 1
FROM due
WHERE r.id = due.id
RETURNING r.id, r.owner_id, r.submission_id, r.payload, r.offset_ms, r.due_at,
          r.state, r.claimed_at, r.attempts, r.created_at, r.sent_at`

const finalizeQuery = `
UPDATE reminder
SET state = $2::text,
    claimed_at = NULL,
    sent_at = CASE WHEN $2::text = 'sent' THEN GREATEST($3::timestamptz, due_at) ELSE NULL END
WHERE id = $1 AND state = 'in_flight'`

const cancelQuery = `
UPDATE reminder
SET state = 'failed', claimed_at = NULL
WHERE id = $1 AND state IN ('pending', 'in_flight')
RETURNING ` + reminderColumns

type PgxReminderStore struct {
	db db.DBTX
}

func NewPgxReminderStore(dbtx db.DBTX) *PgxReminderStore {
	if dbtx == nil {
		panic(e.NewNilArgumentError("db"))
	}
	return &PgxReminderStore{db: dbtx}
}

func (s *PgxReminderStore) CreateReminders(
	ctx context.Context,
	input reminder.CreateInput,
) ([]reminder.Reminder, error) {
	input.CreatedAt = clock.Normalize(input.CreatedAt)
	created := input.NewReminders()

	// A batch runs as one implicit transaction.
	batch := &pgx.Batch{}
	for _, r := range created {
		batch.Queue(
			createReminderQuery,
			string(r.OwnerID),
			r.SubmissionID.String(),
			r.Payload,
			r.Offset.Milliseconds(),
			r.DueAt,
			r.State.String(),
			r.CreatedAt,
		)
	}
	results := s.db.SendBatch(ctx, batch)
	defer results.Close()

	for ix := range created {
		var id int64
		if err := results.QueryRow().Scan(&id); err != nil {
			return nil, translateError(fmt.Errorf("insert reminder: %w", err))
		}
		created[ix].ID = reminder.ID(id)
	}
	if err := results.Close(); err != nil {
		return nil, translateError(fmt.Errorf("create reminders: %w", err))
	}
	return created, nil
}

func (s *PgxReminderStore) GetByID(ctx context.Context, id reminder.ID) (reminder.Reminder, error) {
	row := s.db.QueryRow(ctx, `SELECT `+reminderColumns+` FROM reminder WHERE id = $1`, int64(id))
	r, err := decodeReminder(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return r, reminder.ErrReminderDoesNotExist
	}
	return r, err
}

func (s *PgxReminderStore) ListPending(ctx context.Context, owner reminder.OwnerID) ([]reminder.Reminder, error) {
	rows, err := s.db.Query(
		ctx,
		`SELECT `+reminderColumns+` FROM reminder
		 WHERE owner_id = $1 AND state IN ('pending', 'in_flight')
		 ORDER BY due_at, id`,
		string(owner),
	)
	if err != nil {
		return nil, fmt.Errorf("list pending reminders: %w", err)
	}
	return decodeReminders(rows)
}

func (s *PgxReminderStore) NextPending(
	ctx context.Context,
	owner reminder.OwnerID,
) (c.Optional[reminder.Reminder], error) {
	row := s.db.QueryRow(
		ctx,
		`SELECT `+reminderColumns+` FROM reminder
		 WHERE owner_id = $1 AND state IN ('pending', 'in_flight')
		 ORDER BY due_at, id
		 LIMIT 1`,
		string(owner),
	)
	r, err := decodeReminder(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return c.None[reminder.Reminder](), nil
	}
	if err != nil {
		return c.None[reminder.Reminder](), err
	}
	return c.NewOptional(r, true), nil
}

func (s *PgxReminderStore) ClaimDue(ctx context.Context, input reminder.ClaimInput) ([]reminder.Reminder, error) {
	now := clock.Normalize(input.Now)
	rows, err := s.db.Query(
		ctx,
		claimDueQuery,
		now,
		reminder.LeaseExpiredBefore(now, input.Lease),
		int64(input.Limit),
	)
	if err != nil {
		return nil, fmt.Errorf("claim due reminders: %w", err)
	}
	claimed, err := decodeReminders(rows)
	if err != nil {
		return nil, fmt.Errorf("claim due reminders: %w", err)
	}
	// UPDATE ... RETURNING does not keep the CTE order.
	sort.Slice(claimed, func(i, j int) bool { return reminder.Less(claimed[i], claimed[j]) })
	return claimed, nil
}

func (s *PgxReminderStore) Finalize(ctx context.Context, input reminder.FinalizeInput) (bool, error) {
	state := input.Outcome.State()
	if !state.IsTerminal() {
		return false, fmt.Errorf("finalize reminder %d: %w", input.ID, reminder.ErrParseOutcome)
	}
	tag, err := s.db.Exec(
		ctx,
		finalizeQuery,
		int64(input.ID),
		state.String(),
		clock.Normalize(input.Now),
	)
	if err != nil {
		return false, translateError(fmt.Errorf("finalize reminder %d: %w", input.ID, err))
	}
	return tag.RowsAffected() == 1, nil
}

func (s *PgxReminderStore) Cancel(ctx context.Context, id reminder.ID, now time.Time) (reminder.Reminder, error) {
	r, err := decodeReminder(s.db.QueryRow(ctx, cancelQuery, int64(id)))
	if errors.Is(err, pgx.ErrNoRows) {
		// Either unknown or already terminal.
		return s.GetByID(ctx, id)
	}
	if err != nil {
		return r, fmt.Errorf("cancel reminder %d: %w", id, err)
	}
	return r, nil
}

func translateError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == db.PG_CHECK_CONSTRAINT_ERR_CODE {
		return fmt.Errorf("%w: %v", e.NewInvalidStateError(pgErr.ConstraintName), err)
	}
	return err
}

func decodeReminders(rows pgx.Rows) ([]reminder.Reminder, error) {
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

func decodeReminder(row pgx.Row) (r reminder.Reminder, err error) {
	var (
		id           int64
		owner        string
		submissionID pgtype.UUID
		offsetMs     int64
		dueAt        time.Time
		state        string
		claimedAt    pgtype.Timestamptz
		attempts     int32
		createdAt    time.Time
		sentAt       pgtype.Timestamptz
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
	r.SubmissionID = uuid.UUID(submissionID.Bytes)
	r.Offset = reminder.OffsetFromMilliseconds(offsetMs)
	r.DueAt = clock.Normalize(dueAt)
	if r.State, err = reminder.ParseState(state); err != nil {
		return r, err
	}
	r.ClaimedAt = decodeOptionalTime(claimedAt)
	r.Attempts = uint32(attempts)
	r.CreatedAt = clock.Normalize(createdAt)
	r.SentAt = decodeOptionalTime(sentAt)
	return r, r.Validate()
}

func decodeOptionalTime(t pgtype.Timestamptz) c.Optional[time.Time] {
	if t.Status != pgtype.Present {
		return c.None[time.Time]()
	}
	return c.NewOptional(clock.Normalize(t.Time), true)
}
