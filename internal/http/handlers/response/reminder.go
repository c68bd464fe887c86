package response

import (
	"repeatme/internal/core/domain/clock"
	"repeatme/internal/core/domain/reminder"
	"time"
)

type Reminder struct {
	ID                   int64      `json:"id"`
	OwnerID              string     `json:"owner_id"`
	SubmissionID         string     `json:"submission_id"`
	Payload              string     `json:"payload"`
	Offset               string     `json:"offset"`
	DueAt                time.Time  `json:"due_at"`
	DueAtLocal           string     `json:"due_at_local"`
	TimeRemainingSeconds int64      `json:"time_remaining_seconds"`
	State                string     `json:"state"`
	Attempts             uint32     `json:"attempts"`
	CreatedAt            time.Time  `json:"created_at"`
	SentAt               *time.Time `json:"sent_at"`
}

// FromDomainType fills r from dr. Local times are rendered by projector.
func (r *Reminder) FromDomainType(dr reminder.PendingReminder, projector *clock.Projector) {
	r.ID = int64(dr.ID)
	r.OwnerID = string(dr.OwnerID)
	r.SubmissionID = dr.SubmissionID.String()
	r.Payload = dr.Payload
	r.Offset = dr.Offset.String()
	r.DueAt = dr.DueAt
	r.DueAtLocal = projector.Local(dr.DueAt)
	r.TimeRemainingSeconds = int64(dr.TimeRemaining / time.Second)
	r.State = dr.State.String()
	r.Attempts = dr.Attempts
	r.CreatedAt = dr.CreatedAt
	if dr.SentAt.IsPresent {
		r.SentAt = &dr.SentAt.Value
	}
}

func FromDomainTypes(drs []reminder.PendingReminder, projector *clock.Projector) []Reminder {
	reminders := make([]Reminder, 0, len(drs))
	for _, dr := range drs {
		var r Reminder
		r.FromDomainType(dr, projector)
		reminders = append(reminders, r)
	}
	return reminders
}
