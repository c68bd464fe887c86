package reminder

import (
	"context"
	c "repeatme/internal/core/domain/common"
	"time"

	"github.com/google/uuid"
)

type CreateInput struct {
	OwnerID      OwnerID
	SubmissionID uuid.UUID
	Payload      string
	Offsets      []Offset
	CreatedAt    time.Time
}

// NewReminders expands a submission into one pending record per offset.
// IDs are left for the store to assign.
func (i CreateInput) NewReminders() []Reminder {
	reminders := make([]Reminder, 0, len(i.Offsets))
	for _, offset := range i.Offsets {
		reminders = append(reminders, Reminder{
			OwnerID:      i.OwnerID,
			SubmissionID: i.SubmissionID,
			Payload:      i.Payload,
			Offset:       offset,
			DueAt:        offset.DueFrom(i.CreatedAt),
			State:        StatePending,
			CreatedAt:    i.CreatedAt,
		})
	}
	return reminders
}

type ClaimInput struct {
	Now   time.Time
	Lease time.Duration
	Limit uint
}

type FinalizeInput struct {
	ID      ID
	Outcome Outcome
	Now     time.Time
}

// Store is the only component allowed to read or change reminder state.
//
// ClaimDue must be atomic across processes: two concurrent calls never
// return the same reminder. Finalize changes only in-flight reminders and
// reports whether it did.
type Store interface {
	CreateReminders(ctx context.Context, input CreateInput) ([]Reminder, error)
	GetByID(ctx context.Context, id ID) (Reminder, error)
	ListPending(ctx context.Context, owner OwnerID) ([]Reminder, error)
	NextPending(ctx context.Context, owner OwnerID) (c.Optional[Reminder], error)
	ClaimDue(ctx context.Context, input ClaimInput) ([]Reminder, error)
	Finalize(ctx context.Context, input FinalizeInput) (bool, error)
	Cancel(ctx context.Context, id ID, now time.Time) (Reminder, error)
}
