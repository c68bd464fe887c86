package reminder

import (
	"repeatme/internal/core/domain/clock"
	c "repeatme/internal/core/domain/common"
	e "repeatme/internal/core/domain/errors"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
)

const MAX_PAYLOAD_LENGTH = 4096

type ID int64

// OwnerID identifies a recipient. The scheduler never interprets it.
type OwnerID string

type Reminder struct {
	ID           ID
	OwnerID      OwnerID
	SubmissionID uuid.UUID
	Payload      string
	Offset       Offset
	DueAt        time.Time
	State        State
	ClaimedAt    c.Optional[time.Time]
	Attempts     uint32
	CreatedAt    time.Time
	SentAt       c.Optional[time.Time]
}

func (r *Reminder) Validate() error {
	if r.State == StateUnknown {
		return e.NewInvalidStateError("state must be set")
	}
	if !r.DueAt.Equal(r.Offset.DueFrom(r.CreatedAt)) {
		return e.NewInvalidStateError("DueAt must equal CreatedAt plus Offset")
	}
	if r.State == StateInFlight && !r.ClaimedAt.IsPresent {
		return e.NewInvalidStateError("ClaimedAt must be set for in-flight reminders")
	}
	if r.State != StateInFlight && r.ClaimedAt.IsPresent {
		return e.NewInvalidStateError("ClaimedAt must be set only for in-flight reminders")
	}
	if r.State == StateSent && !r.SentAt.IsPresent {
		return e.NewInvalidStateError("SentAt must be set for sent reminders")
	}
	if r.State != StateSent && r.SentAt.IsPresent {
		return e.NewInvalidStateError("SentAt must be set only for sent reminders")
	}
	if r.SentAt.IsPresent && r.SentAt.Value.Before(r.DueAt) {
		return e.NewInvalidStateError("SentAt must not be before DueAt")
	}
	return nil
}

// IsClaimable reports whether a claim at now with the given lease may take r.
func (r *Reminder) IsClaimable(now time.Time, lease time.Duration) bool {
	switch r.State {
	case StatePending:
		return !r.DueAt.After(now)
	case StateInFlight:
		return r.ClaimedAt.IsPresent && !r.ClaimedAt.Value.Add(lease).After(now)
	default:
		return false
	}
}

// LeaseExpiredBefore is the latest claim instant considered abandoned at now.
func LeaseExpiredBefore(now time.Time, lease time.Duration) time.Time {
	return now.Add(-lease)
}

// SentAt stamps a delivery finalized at now. A reminder is never reported
// as sent before it was due.
func SentAt(dueAt time.Time, now time.Time) time.Time {
	if now.Before(dueAt) {
		return dueAt
	}
	return now
}

// Less orders reminders by due instant, then by id.
func Less(a, b Reminder) bool {
	if a.DueAt.Equal(b.DueAt) {
		return a.ID < b.ID
	}
	return a.DueAt.Before(b.DueAt)
}

func ValidateOwner(owner OwnerID) error {
	if strings.TrimSpace(string(owner)) == "" {
		return ErrEmptyOwner
	}
	return nil
}

func ValidatePayload(payload string) error {
	if strings.TrimSpace(payload) == "" {
		return ErrEmptyPayload
	}
	if len(payload) > MAX_PAYLOAD_LENGTH {
		return ErrPayloadTooLong
	}
	if !utf8.ValidString(payload) {
		return ErrPayloadNotUTF8
	}
	return nil
}

func ValidateOffsets(offsets []Offset) error {
	if len(offsets) == 0 {
		return ErrNoOffsets
	}
	seen := make(map[Offset]struct{}, len(offsets))
	for _, o := range offsets {
		if err := o.Validate(); err != nil {
			return err
		}
		if _, ok := seen[o]; ok {
			return ErrDuplicateOffsets
		}
		seen[o] = struct{}{}
	}
	return nil
}

// PendingReminder is a reminder as shown to its owner.
type PendingReminder struct {
	Reminder
	TimeRemaining time.Duration
}

func NewPendingReminder(r Reminder, now time.Time) PendingReminder {
	return PendingReminder{Reminder: r, TimeRemaining: clock.Remaining(r.DueAt, now)}
}
