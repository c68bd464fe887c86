// Package storetest holds the behaviour every reminder.Store backend must share.
package storetest

import (
	"context"
	"sync"
	"time"

	"repeatme/internal/core/domain/clock"
	"repeatme/internal/core/domain/reminder"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"
)

var T0 = clock.Normalize(time.Date(2023, 3, 1, 10, 0, 0, 123_000_000, time.UTC))

const Lease = 60 * time.Second

// Suite is embedded by backend test suites. NewStore must return an empty store.
type Suite struct {
	suite.Suite
	NewStore func() reminder.Store
	Store    reminder.Store
}

func (s *Suite) SetupTest() {
	s.Store = s.NewStore()
}

func (s *Suite) submit(owner reminder.OwnerID, payload string, createdAt time.Time) []reminder.Reminder {
	reminders, err := s.Store.CreateReminders(context.Background(), reminder.CreateInput{
		OwnerID:      owner,
		SubmissionID: uuid.New(),
		Payload:      payload,
		Offsets:      reminder.DefaultOffsets(),
		CreatedAt:    createdAt,
	})
	s.Require().Nil(err)
	return reminders
}

func (s *Suite) get(id reminder.ID) reminder.Reminder {
	r, err := s.Store.GetByID(context.Background(), id)
	s.Require().Nil(err)
	return r
}

func (s *Suite) claim(now time.Time, limit uint) []reminder.Reminder {
	claimed, err := s.Store.ClaimDue(
		context.Background(),
		reminder.ClaimInput{Now: now, Lease: Lease, Limit: limit},
	)
	s.Require().Nil(err)
	return claimed
}

func (s *Suite) finalize(id reminder.ID, outcome reminder.Outcome, now time.Time) bool {
	ok, err := s.Store.Finalize(
		context.Background(),
		reminder.FinalizeInput{ID: id, Outcome: outcome, Now: now},
	)
	s.Require().Nil(err)
	return ok
}

func (s *Suite) sameInstant(expected time.Time, actual time.Time) {
	s.Require().True(expected.Equal(actual), "expected %v, got %v", expected, actual)
}

func ids(reminders []reminder.Reminder) []reminder.ID {
	result := make([]reminder.ID, 0, len(reminders))
	for _, r := range reminders {
		result = append(result, r.ID)
	}
	return result
}

func (s *Suite) TestCreateRemindersFansOut() {
	// Setup ---
	submissionID := uuid.New()

	// Exercise ---
	reminders, err := s.Store.CreateReminders(context.Background(), reminder.CreateInput{
		OwnerID:      "42",
		SubmissionID: submissionID,
		Payload:      "Photosynthesis basics",
		Offsets:      reminder.DefaultOffsets(),
		CreatedAt:    T0,
	})

	// Verify ---
	assert := s.Require()
	assert.Nil(err)
	assert.Len(reminders, 4)
	seen := make(map[reminder.ID]struct{})
	for ix, days := range []int{1, 3, 7, 30} {
		r := reminders[ix]
		assert.Greater(int64(r.ID), int64(0))
		seen[r.ID] = struct{}{}
		assert.Equal(reminder.OwnerID("42"), r.OwnerID)
		assert.Equal(submissionID, r.SubmissionID)
		assert.Equal("Photosynthesis basics", r.Payload)
		assert.Equal(reminder.Days(days), r.Offset)
		assert.Equal(reminder.StatePending, r.State)
		assert.False(r.ClaimedAt.IsPresent)
		assert.False(r.SentAt.IsPresent)
		assert.Equal(uint32(0), r.Attempts)
		s.sameInstant(T0, r.CreatedAt)
		s.sameInstant(T0.Add(time.Duration(days)*reminder.Day), r.DueAt)
		assert.Nil(r.Validate())

		stored := s.get(r.ID)
		assert.Equal(r.Payload, stored.Payload)
		assert.Equal(r.Offset, stored.Offset)
		s.sameInstant(r.DueAt, stored.DueAt)
	}
	assert.Len(seen, 4)
}

func (s *Suite) TestIDsAreNeverReused() {
	first := s.submit("42", "first", T0)
	second := s.submit("42", "second", T0)

	seen := make(map[reminder.ID]struct{})
	for _, id := range append(ids(first), ids(second)...) {
		_, ok := seen[id]
		s.Require().False(ok, "duplicate id %d", id)
		seen[id] = struct{}{}
	}
}

func (s *Suite) TestListPendingIsOrderedAndScopedToOwner() {
	// Setup ---
	later := s.submit("42", "Mitochondria", T0.Add(time.Hour))
	earlier := s.submit("42", "Photosynthesis basics", T0)
	s.submit("7", "Somebody else", T0)

	// Exercise ---
	pending, err := s.Store.ListPending(context.Background(), "42")

	// Verify ---
	assert := s.Require()
	assert.Nil(err)
	assert.Len(pending, 8)
	for ix := 1; ix < len(pending); ix++ {
		assert.False(pending[ix].DueAt.Before(pending[ix-1].DueAt))
	}
	assert.Equal(earlier[0].ID, pending[0].ID)
	assert.Equal(later[0].ID, pending[1].ID)
	for _, r := range pending {
		assert.Equal(reminder.OwnerID("42"), r.OwnerID)
	}
}

func (s *Suite) TestListPendingExcludesTerminalAndKeepsInFlight() {
	// Setup ---
	reminders := s.submit("42", "Photosynthesis basics", T0)
	now := T0.Add(3*reminder.Day + time.Second)
	claimed := s.claim(now, 10)
	s.Require().Len(claimed, 2)
	s.Require().True(s.finalize(reminders[0].ID, reminder.OutcomeDelivered, now))

	// Exercise ---
	pending, err := s.Store.ListPending(context.Background(), "42")

	// Verify ---
	assert := s.Require()
	assert.Nil(err)
	assert.Equal(ids(reminders[1:]), ids(pending))
	assert.Equal(reminder.StateInFlight, pending[0].State)
	assert.Equal(reminder.StatePending, pending[1].State)
}

func (s *Suite) TestListPendingUnknownOwner() {
	pending, err := s.Store.ListPending(context.Background(), "nobody")

	s.Require().Nil(err)
	s.Require().Empty(pending)
}

func (s *Suite) TestNextPending() {
	// Setup ---
	reminders := s.submit("42", "Photosynthesis basics", T0)

	// Exercise ---
	next, err := s.Store.NextPending(context.Background(), "42")

	// Verify ---
	assert := s.Require()
	assert.Nil(err)
	assert.True(next.IsPresent)
	assert.Equal(reminders[0].ID, next.Value.ID)
	s.sameInstant(T0.Add(reminder.Day), next.Value.DueAt)
}

func (s *Suite) TestNextPendingEmpty() {
	s.submit("42", "Photosynthesis basics", T0)

	next, err := s.Store.NextPending(context.Background(), "7")

	s.Require().Nil(err)
	s.Require().False(next.IsPresent)
}

func (s *Suite) TestClaimDueTakesOnlyDueReminders() {
	// Setup ---
	reminders := s.submit("42", "Photosynthesis basics", T0)
	now := T0.Add(reminder.Day + time.Second)

	// Exercise ---
	claimed := s.claim(now, 10)

	// Verify ---
	assert := s.Require()
	assert.Len(claimed, 1)
	assert.Equal(reminders[0].ID, claimed[0].ID)
	assert.Equal(reminder.OwnerID("42"), claimed[0].OwnerID)
	assert.Equal("Photosynthesis basics", claimed[0].Payload)
	assert.Equal(reminder.Days(1), claimed[0].Offset)
	assert.Equal(reminder.StateInFlight, claimed[0].State)
	assert.Equal(uint32(1), claimed[0].Attempts)
	assert.True(claimed[0].ClaimedAt.IsPresent)
	s.sameInstant(now, claimed[0].ClaimedAt.Value)

	stored := s.get(reminders[0].ID)
	assert.Equal(reminder.StateInFlight, stored.State)
	s.sameInstant(now, stored.ClaimedAt.Value)
	for _, r := range reminders[1:] {
		assert.Equal(reminder.StatePending, s.get(r.ID).State)
	}
}

func (s *Suite) TestClaimDueAtExactDueInstant() {
	reminders := s.submit("42", "Photosynthesis basics", T0)

	assert := s.Require()
	assert.Empty(s.claim(reminders[0].DueAt.Add(-time.Millisecond), 10))
	claimed := s.claim(reminders[0].DueAt, 10)
	assert.Equal([]reminder.ID{reminders[0].ID}, ids(claimed))
}

func (s *Suite) TestClaimDueRespectsLimitAndOrder() {
	// Setup ---
	third := s.submit("3", "third", T0.Add(2*time.Minute))
	first := s.submit("1", "first", T0)
	second := s.submit("2", "second", T0.Add(time.Minute))
	now := T0.Add(reminder.Day + time.Hour)

	// Exercise ---
	batch := s.claim(now, 2)
	rest := s.claim(now, 2)
	empty := s.claim(now, 2)

	// Verify ---
	assert := s.Require()
	assert.Equal([]reminder.ID{first[0].ID, second[0].ID}, ids(batch))
	assert.Equal([]reminder.ID{third[0].ID}, ids(rest))
	assert.Empty(empty)
}

func (s *Suite) TestClaimedReminderIsReclaimableOnlyAfterLease() {
	// Setup ---
	reminders := s.submit("42", "Photosynthesis basics", T0)
	claimedAt := T0.Add(reminder.Day + time.Second)
	s.Require().Len(s.claim(claimedAt, 10), 1)

	// Exercise ---
	beforeLease := s.claim(claimedAt.Add(Lease-time.Millisecond), 10)
	afterLease := s.claim(claimedAt.Add(Lease), 10)

	// Verify ---
	assert := s.Require()
	assert.Empty(beforeLease)
	assert.Len(afterLease, 1)
	assert.Equal(reminders[0].ID, afterLease[0].ID)
	assert.Equal(reminder.StateInFlight, afterLease[0].State)
	assert.Equal(uint32(2), afterLease[0].Attempts)
	s.sameInstant(claimedAt.Add(Lease), afterLease[0].ClaimedAt.Value)
}

func (s *Suite) TestFinalizeDelivered() {
	// Setup ---
	reminders := s.submit("42", "Photosynthesis basics", T0)
	now := T0.Add(reminder.Day + time.Second)
	s.claim(now, 10)
	finalizedAt := now.Add(5 * time.Second)

	// Exercise ---
	ok := s.finalize(reminders[0].ID, reminder.OutcomeDelivered, finalizedAt)

	// Verify ---
	assert := s.Require()
	assert.True(ok)
	stored := s.get(reminders[0].ID)
	assert.Equal(reminder.StateSent, stored.State)
	assert.True(stored.SentAt.IsPresent)
	s.sameInstant(finalizedAt, stored.SentAt.Value)
	assert.False(stored.SentAt.Value.Before(stored.DueAt))
	assert.False(stored.ClaimedAt.IsPresent)
	assert.Nil(stored.Validate())
}

func (s *Suite) TestFinalizeNeverStampsSentBeforeDue() {
	// Setup ---
	reminders := s.submit("42", "Photosynthesis basics", T0)
	claimedAt := reminders[0].DueAt
	s.Require().Len(s.claim(claimedAt, 10), 1)

	// Exercise ---
	ok := s.finalize(reminders[0].ID, reminder.OutcomeDelivered, claimedAt.Add(-time.Second))

	// Verify ---
	s.Require().True(ok)
	stored := s.get(reminders[0].ID)
	s.sameInstant(stored.DueAt, stored.SentAt.Value)
}

func (s *Suite) TestFinalizePermanentFailure() {
	// Setup ---
	reminders := s.submit("42", "Photosynthesis basics", T0)
	now := T0.Add(reminder.Day + time.Second)
	s.claim(now, 10)

	// Exercise ---
	ok := s.finalize(reminders[0].ID, reminder.OutcomePermanentFailure, now)

	// Verify ---
	assert := s.Require()
	assert.True(ok)
	stored := s.get(reminders[0].ID)
	assert.Equal(reminder.StateFailed, stored.State)
	assert.False(stored.SentAt.IsPresent)
	assert.False(stored.ClaimedAt.IsPresent)
	assert.Empty(s.claim(now.Add(10*Lease), 10))
}

func (s *Suite) TestFinalizeTwiceIsNoop() {
	// Setup ---
	reminders := s.submit("42", "Photosynthesis basics", T0)
	now := T0.Add(reminder.Day + time.Second)
	s.claim(now, 10)
	s.Require().True(s.finalize(reminders[0].ID, reminder.OutcomeDelivered, now))
	before := s.get(reminders[0].ID)

	// Exercise ---
	again := s.finalize(reminders[0].ID, reminder.OutcomeDelivered, now.Add(time.Hour))
	failed := s.finalize(reminders[0].ID, reminder.OutcomePermanentFailure, now.Add(time.Hour))

	// Verify ---
	assert := s.Require()
	assert.False(again)
	assert.False(failed)
	after := s.get(reminders[0].ID)
	assert.Equal(before.State, after.State)
	s.sameInstant(before.SentAt.Value, after.SentAt.Value)
}

func (s *Suite) TestFinalizePendingIsNoop() {
	reminders := s.submit("42", "Photosynthesis basics", T0)

	ok := s.finalize(reminders[1].ID, reminder.OutcomeDelivered, T0.Add(30*reminder.Day))

	s.Require().False(ok)
	s.Require().Equal(reminder.StatePending, s.get(reminders[1].ID).State)
}

func (s *Suite) TestFinalizeUnknownIDIsNoop() {
	ok := s.finalize(reminder.ID(1_000_000), reminder.OutcomeDelivered, T0)

	s.Require().False(ok)
}

func (s *Suite) TestTerminalRemindersNeverChange() {
	// Setup ---
	reminders := s.submit("42", "Photosynthesis basics", T0)
	farFuture := T0.Add(365 * reminder.Day)
	claimed := s.claim(farFuture, 10)
	s.Require().Len(claimed, 4)
	s.Require().True(s.finalize(reminders[0].ID, reminder.OutcomeDelivered, farFuture))
	s.Require().True(s.finalize(reminders[1].ID, reminder.OutcomePermanentFailure, farFuture))

	// Exercise ---
	reclaimed := s.claim(farFuture.Add(10*Lease), 10)
	canceledSent, err := s.Store.Cancel(context.Background(), reminders[0].ID, farFuture)
	s.Require().Nil(err)

	// Verify ---
	assert := s.Require()
	assert.ElementsMatch(ids(reminders[2:]), ids(reclaimed))
	assert.Equal(reminder.StateSent, canceledSent.State)
	assert.Equal(reminder.StateSent, s.get(reminders[0].ID).State)
	assert.Equal(reminder.StateFailed, s.get(reminders[1].ID).State)
}

func (s *Suite) TestLateFinalizeAfterReclaim() {
	// Setup ---
	reminders := s.submit("42", "Photosynthesis basics", T0)
	firstClaim := T0.Add(reminder.Day)
	s.Require().Len(s.claim(firstClaim, 1), 1)
	secondClaim := firstClaim.Add(Lease)
	s.Require().Len(s.claim(secondClaim, 1), 1)

	// Exercise ---
	first := s.finalize(reminders[0].ID, reminder.OutcomeDelivered, secondClaim.Add(time.Second))
	second := s.finalize(reminders[0].ID, reminder.OutcomeDelivered, secondClaim.Add(2*time.Second))

	// Verify ---
	s.Require().True(first)
	s.Require().False(second)
	s.Require().Equal(reminder.StateSent, s.get(reminders[0].ID).State)
}

func (s *Suite) TestCancel() {
	// Setup ---
	reminders := s.submit("42", "Photosynthesis basics", T0)
	now := T0.Add(reminder.Day)
	s.Require().Len(s.claim(now, 10), 1)

	// Exercise ---
	canceledPending, err := s.Store.Cancel(context.Background(), reminders[1].ID, now)
	s.Require().Nil(err)
	canceledInFlight, err := s.Store.Cancel(context.Background(), reminders[0].ID, now)
	s.Require().Nil(err)

	// Verify ---
	assert := s.Require()
	assert.Equal(reminder.StateFailed, canceledPending.State)
	assert.Equal(reminder.StateFailed, canceledInFlight.State)
	assert.False(canceledInFlight.ClaimedAt.IsPresent)
	assert.False(s.finalize(reminders[0].ID, reminder.OutcomeDelivered, now))
	pending, err := s.Store.ListPending(context.Background(), "42")
	assert.Nil(err)
	assert.Equal(ids(reminders[2:]), ids(pending))
}

func (s *Suite) TestCancelUnknown() {
	_, err := s.Store.Cancel(context.Background(), reminder.ID(1_000_000), T0)

	s.Require().ErrorIs(err, reminder.ErrReminderDoesNotExist)
}

func (s *Suite) TestGetByIDUnknown() {
	_, err := s.Store.GetByID(context.Background(), reminder.ID(1_000_000))

	s.Require().ErrorIs(err, reminder.ErrReminderDoesNotExist)
}

func (s *Suite) TestConcurrentClaimsAreDisjoint() {
	// Setup ---
	const owners = 25
	for ix := 0; ix < owners; ix++ {
		s.submit(reminder.OwnerID(uuid.NewString()), "concurrent", T0)
	}
	now := T0.Add(3*reminder.Day + time.Second)
	expected := owners * 2

	// Exercise ---
	var (
		wg      sync.WaitGroup
		lock    sync.Mutex
		claimed = make(map[reminder.ID]int)
		errs    []error
	)
	for worker := 0; worker < 8; worker++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				batch, err := s.Store.ClaimDue(
					context.Background(),
					reminder.ClaimInput{Now: now, Lease: Lease, Limit: 4},
				)
				if err != nil {
					lock.Lock()
					errs = append(errs, err)
					lock.Unlock()
					return
				}
				if len(batch) == 0 {
					return
				}
				lock.Lock()
				for _, r := range batch {
					claimed[r.ID]++
				}
				lock.Unlock()
			}
		}()
	}
	wg.Wait()

	// Verify ---
	assert := s.Require()
	assert.Empty(errs)
	assert.Len(claimed, expected)
	for id, count := range claimed {
		assert.Equal(1, count, "reminder %d claimed %d times", id, count)
	}
}

func (s *Suite) TestFinalizeUnknownOutcomeIsRejected() {
	// Setup ---
	reminders := s.submit("42", "Photosynthesis basics", T0)
	now := T0.Add(reminder.Day + time.Second)
	s.Require().Len(s.claim(now, 10), 1)

	// Exercise ---
	ok, err := s.Store.Finalize(
		context.Background(),
		reminder.FinalizeInput{ID: reminders[0].ID, Outcome: reminder.OutcomeUnknown, Now: now},
	)

	// Verify ---
	assert := s.Require()
	assert.ErrorIs(err, reminder.ErrParseOutcome)
	assert.False(ok)
	stored := s.get(reminders[0].ID)
	assert.Equal(reminder.StateInFlight, stored.State)
	assert.Nil(stored.Validate())
	assert.True(s.finalize(reminders[0].ID, reminder.OutcomeDelivered, now))
}

func (s *Suite) TestReclaimRespectsLimitAndOrder() {
	// Setup ---
	first := s.submit("1", "first", T0)
	second := s.submit("2", "second", T0.Add(time.Minute))
	third := s.submit("3", "third", T0.Add(2*time.Minute))
	claimedAt := T0.Add(reminder.Day + time.Hour)
	s.Require().Len(s.claim(claimedAt, 10), 3)
	expired := claimedAt.Add(Lease)

	// Exercise ---
	batch := s.claim(expired, 2)
	rest := s.claim(expired, 2)

	// Verify ---
	assert := s.Require()
	assert.Equal([]reminder.ID{first[0].ID, second[0].ID}, ids(batch))
	assert.Equal([]reminder.ID{third[0].ID}, ids(rest))
}
