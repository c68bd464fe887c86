package reminder

import (
	"errors"
	"sort"
	"strings"
	"testing"
	"time"

	c "repeatme/internal/core/domain/common"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var CreatedAt = time.Date(2023, 3, 1, 10, 0, 0, 0, time.UTC)

func newPending() Reminder {
	return Reminder{
		ID:           1,
		OwnerID:      "42",
		SubmissionID: uuid.New(),
		Payload:      "Photosynthesis basics",
		Offset:       Days(1),
		DueAt:        CreatedAt.Add(Day),
		State:        StatePending,
		CreatedAt:    CreatedAt,
	}
}

func TestReminderValidate(t *testing.T) {
	claimedAt := CreatedAt.Add(Day + time.Second)

	cases := []struct {
		id    string
		patch func(r *Reminder)
		valid bool
	}{
		{id: "pending", patch: func(r *Reminder) {}, valid: true},
		{
			id: "in flight",
			patch: func(r *Reminder) {
				r.State = StateInFlight
				r.ClaimedAt = c.NewOptional(claimedAt, true)
			},
			valid: true,
		},
		{
			id: "sent",
			patch: func(r *Reminder) {
				r.State = StateSent
				r.SentAt = c.NewOptional(claimedAt, true)
			},
			valid: true,
		},
		{id: "failed", patch: func(r *Reminder) { r.State = StateFailed }, valid: true},
		{id: "unknown state", patch: func(r *Reminder) { r.State = StateUnknown }},
		{id: "due at moved", patch: func(r *Reminder) { r.DueAt = r.DueAt.Add(time.Minute) }},
		{id: "in flight without claim", patch: func(r *Reminder) { r.State = StateInFlight }},
		{
			id:    "pending with claim",
			patch: func(r *Reminder) { r.ClaimedAt = c.NewOptional(claimedAt, true) },
		},
		{id: "sent without sent at", patch: func(r *Reminder) { r.State = StateSent }},
		{
			id: "failed with sent at",
			patch: func(r *Reminder) {
				r.State = StateFailed
				r.SentAt = c.NewOptional(claimedAt, true)
			},
		},
		{
			id: "sent early",
			patch: func(r *Reminder) {
				r.State = StateSent
				r.SentAt = c.NewOptional(r.DueAt.Add(-time.Millisecond), true)
			},
		},
	}

	for _, testcase := range cases {
		t.Run(testcase.id, func(t *testing.T) {
			r := newPending()
			testcase.patch(&r)
			err := r.Validate()
			if testcase.valid {
				assert.Nil(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}

func TestReminderIsClaimable(t *testing.T) {
	lease := time.Minute
	dueAt := CreatedAt.Add(Day)

	pending := newPending()
	assert.False(t, pending.IsClaimable(dueAt.Add(-time.Millisecond), lease))
	assert.True(t, pending.IsClaimable(dueAt, lease))
	assert.True(t, pending.IsClaimable(dueAt.Add(time.Second), lease))

	inFlight := newPending()
	inFlight.State = StateInFlight
	inFlight.ClaimedAt = c.NewOptional(dueAt, true)
	assert.False(t, inFlight.IsClaimable(dueAt.Add(lease-time.Millisecond), lease))
	assert.True(t, inFlight.IsClaimable(dueAt.Add(lease), lease))

	for _, state := range []State{StateSent, StateFailed} {
		terminal := newPending()
		terminal.State = state
		assert.False(t, terminal.IsClaimable(dueAt.Add(Day), lease))
	}
}

func TestSentAtIsNeverBeforeDueAt(t *testing.T) {
	dueAt := CreatedAt.Add(Day)

	assert.Equal(t, dueAt, SentAt(dueAt, dueAt.Add(-time.Second)))
	assert.Equal(t, dueAt.Add(time.Second), SentAt(dueAt, dueAt.Add(time.Second)))
}

func TestLess(t *testing.T) {
	a := Reminder{ID: 3, DueAt: CreatedAt.Add(Day)}
	b := Reminder{ID: 1, DueAt: CreatedAt.Add(3 * Day)}
	x := Reminder{ID: 2, DueAt: CreatedAt.Add(Day)}
	reminders := []Reminder{b, a, x}

	sort.Slice(reminders, func(i, j int) bool { return Less(reminders[i], reminders[j]) })

	assert.Equal(t, []ID{2, 3, 1}, []ID{reminders[0].ID, reminders[1].ID, reminders[2].ID})
}

func TestCreateInputNewReminders(t *testing.T) {
	// Setup ---
	input := CreateInput{
		OwnerID:      "42",
		SubmissionID: uuid.New(),
		Payload:      "Photosynthesis basics",
		Offsets:      DefaultOffsets(),
		CreatedAt:    CreatedAt,
	}

	// Exercise ---
	reminders := input.NewReminders()

	// Verify ---
	assert := require.New(t)
	assert.Len(reminders, 4)
	for ix, days := range []int{1, 3, 7, 30} {
		r := reminders[ix]
		assert.Equal(OwnerID("42"), r.OwnerID)
		assert.Equal(input.SubmissionID, r.SubmissionID)
		assert.Equal(input.Payload, r.Payload)
		assert.Equal(StatePending, r.State)
		assert.Equal(CreatedAt, r.CreatedAt)
		assert.Equal(CreatedAt.Add(time.Duration(days)*Day), r.DueAt)
		assert.Nil(r.Validate())
	}
}

func TestValidatePayload(t *testing.T) {
	assert.ErrorIs(t, ValidatePayload(""), ErrEmptyPayload)
	assert.ErrorIs(t, ValidatePayload(" \n\t"), ErrEmptyPayload)
	assert.ErrorIs(t, ValidatePayload(strings.Repeat("a", MAX_PAYLOAD_LENGTH+1)), ErrPayloadTooLong)
	assert.ErrorIs(t, ValidatePayload(string([]byte{0xff, 0xfe})), ErrPayloadNotUTF8)
	assert.Nil(t, ValidatePayload(strings.Repeat("a", MAX_PAYLOAD_LENGTH)))
	assert.Nil(t, ValidatePayload("🔁 Takrorlash"))
}

func TestValidateOwner(t *testing.T) {
	assert.ErrorIs(t, ValidateOwner(""), ErrEmptyOwner)
	assert.ErrorIs(t, ValidateOwner("  "), ErrEmptyOwner)
	assert.Nil(t, ValidateOwner("telegram:42"))
}

func TestPermanentFailure(t *testing.T) {
	cause := errors.New("chat not found")

	err := PermanentFailure(cause)

	assert.True(t, IsPermanentFailure(err))
	assert.ErrorIs(t, err, cause)
	assert.True(t, IsPermanentFailure(errors.Join(errors.New("context"), err)))
	assert.False(t, IsPermanentFailure(cause))
	assert.Nil(t, PermanentFailure(nil))
}
