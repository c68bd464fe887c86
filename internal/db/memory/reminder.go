// Package memory keeps reminders in process memory. It is safe for
// concurrent use inside one process and is meant for single-node
// deployments and tests.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"repeatme/internal/core/domain/clock"
	c "repeatme/internal/core/domain/common"
	"repeatme/internal/core/domain/reminder"
)

type ReminderStore struct {
	lock      sync.Mutex
	lastID    reminder.ID
	reminders map[reminder.ID]*reminder.Reminder
	// pending holds non-terminal reminders ordered by due instant.
	pending []*reminder.Reminder
}

func NewReminderStore() *ReminderStore {
	return &ReminderStore{reminders: make(map[reminder.ID]*reminder.Reminder)}
}

func (s *ReminderStore) CreateReminders(
	ctx context.Context,
	input reminder.CreateInput,
) ([]reminder.Reminder, error) {
	input.CreatedAt = clock.Normalize(input.CreatedAt)

	s.lock.Lock()
	defer s.lock.Unlock()

	created := input.NewReminders()
	for ix := range created {
		s.lastID++
		created[ix].ID = s.lastID
		r := created[ix]
		s.reminders[r.ID] = &r
		s.insertPending(&r)
	}
	return created, nil
}

func (s *ReminderStore) GetByID(ctx context.Context, id reminder.ID) (reminder.Reminder, error) {
	s.lock.Lock()
	defer s.lock.Unlock()

	r, ok := s.reminders[id]
	if !ok {
		return reminder.Reminder{}, reminder.ErrReminderDoesNotExist
	}
	return *r, nil
}

func (s *ReminderStore) ListPending(ctx context.Context, owner reminder.OwnerID) ([]reminder.Reminder, error) {
	s.lock.Lock()
	defer s.lock.Unlock()

	result := make([]reminder.Reminder, 0)
	for _, r := range s.pending {
		if r.OwnerID == owner {
			result = append(result, *r)
		}
	}
	return result, nil
}

func (s *ReminderStore) NextPending(
	ctx context.Context,
	owner reminder.OwnerID,
) (c.Optional[reminder.Reminder], error) {
	s.lock.Lock()
	defer s.lock.Unlock()

	for _, r := range s.pending {
		if r.OwnerID == owner {
			return c.NewOptional(*r, true), nil
		}
	}
	return c.None[reminder.Reminder](), nil
}

func (s *ReminderStore) ClaimDue(ctx context.Context, input reminder.ClaimInput) ([]reminder.Reminder, error) {
	now := clock.Normalize(input.Now)

	s.lock.Lock()
	defer s.lock.Unlock()

	claimed := make([]reminder.Reminder, 0)
	for _, r := range s.pending {
		if uint(len(claimed)) >= input.Limit {
			break
		}
		if r.DueAt.After(now) {
			// Claimed reminders were due when claimed, so nothing later qualifies.
			break
		}
		if !r.IsClaimable(now, input.Lease) {
			continue
		}
		r.State = reminder.StateInFlight
		r.ClaimedAt = c.NewOptional(now, true)
		r.Attempts++
		claimed = append(claimed, *r)
	}
	return claimed, nil
}

func (s *ReminderStore) Finalize(ctx context.Context, input reminder.FinalizeInput) (bool, error) {
	now := clock.Normalize(input.Now)
	state := input.Outcome.State()
	if !state.IsTerminal() {
		return false, fmt.Errorf("finalize reminder %d: %w", input.ID, reminder.ErrParseOutcome)
	}

	s.lock.Lock()
	defer s.lock.Unlock()

	r, ok := s.reminders[input.ID]
	if !ok || r.State != reminder.StateInFlight {
		return false, nil
	}
	r.State = state
	r.ClaimedAt = c.None[time.Time]()
	if r.State == reminder.StateSent {
		r.SentAt = c.NewOptional(reminder.SentAt(r.DueAt, now), true)
	}
	s.removePending(r.ID)
	return true, nil
}

func (s *ReminderStore) Cancel(ctx context.Context, id reminder.ID, now time.Time) (reminder.Reminder, error) {
	s.lock.Lock()
	defer s.lock.Unlock()

	r, ok := s.reminders[id]
	if !ok {
		return reminder.Reminder{}, reminder.ErrReminderDoesNotExist
	}
	if r.State.IsTerminal() {
		return *r, nil
	}
	r.State = reminder.StateFailed
	r.ClaimedAt = c.None[time.Time]()
	s.removePending(r.ID)
	return *r, nil
}

func (s *ReminderStore) insertPending(r *reminder.Reminder) {
	ix := sort.Search(len(s.pending), func(i int) bool {
		return reminder.Less(*r, *s.pending[i])
	})
	s.pending = append(s.pending, nil)
	copy(s.pending[ix+1:], s.pending[ix:])
	s.pending[ix] = r
}

func (s *ReminderStore) removePending(id reminder.ID) {
	for ix, r := range s.pending {
		if r.ID == id {
			s.pending = append(s.pending[:ix], s.pending[ix+1:]...)
			return
		}
	}
}
