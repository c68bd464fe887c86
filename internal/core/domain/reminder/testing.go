package reminder

import (
	"context"
	c "repeatme/internal/core/domain/common"
	"sync"
	"time"
)

type TestStore struct {
	CreateError   error
	CreateWith    []CreateInput
	GetResult     Reminder
	GetError      error
	ListResult    []Reminder
	ListError     error
	ListWith      []OwnerID
	NextResult    c.Optional[Reminder]
	NextError     error
	NextWith      []OwnerID
	ClaimResult   []Reminder
	ClaimError    error
	ClaimWith     []ClaimInput
	FinalizeNoop  bool
	FinalizeError error
	FinalizeWith  []FinalizeInput
	CancelResult  Reminder
	CancelError   error
	CancelWith    []ID
	lock          sync.Mutex
}

func NewTestStore() *TestStore {
	return &TestStore{}
}

func (s *TestStore) CreateReminders(ctx context.Context, input CreateInput) ([]Reminder, error) {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.CreateWith = append(s.CreateWith, input)
	if s.CreateError != nil {
		return nil, s.CreateError
	}
	reminders := input.NewReminders()
	for ix := range reminders {
		reminders[ix].ID = ID(ix + 1)
	}
	return reminders, nil
}

func (s *TestStore) GetByID(ctx context.Context, id ID) (Reminder, error) {
	if s.GetError != nil {
		return Reminder{}, s.GetError
	}
	return s.GetResult, nil
}

func (s *TestStore) ListPending(ctx context.Context, owner OwnerID) ([]Reminder, error) {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.ListWith = append(s.ListWith, owner)
	if s.ListError != nil {
		return nil, s.ListError
	}
	return s.ListResult, nil
}

func (s *TestStore) NextPending(ctx context.Context, owner OwnerID) (c.Optional[Reminder], error) {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.NextWith = append(s.NextWith, owner)
	if s.NextError != nil {
		return c.Optional[Reminder]{}, s.NextError
	}
	return s.NextResult, nil
}

func (s *TestStore) ClaimDue(ctx context.Context, input ClaimInput) ([]Reminder, error) {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.ClaimWith = append(s.ClaimWith, input)
	if s.ClaimError != nil {
		return nil, s.ClaimError
	}
	return s.ClaimResult, nil
}

func (s *TestStore) Finalize(ctx context.Context, input FinalizeInput) (bool, error) {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.FinalizeWith = append(s.FinalizeWith, input)
	if s.FinalizeError != nil {
		return false, s.FinalizeError
	}
	return !s.FinalizeNoop, nil
}

// Finalized returns the recorded finalize call for id, if any.
func (s *TestStore) Finalized(id ID) (FinalizeInput, bool) {
	s.lock.Lock()
	defer s.lock.Unlock()
	for _, input := range s.FinalizeWith {
		if input.ID == id {
			return input, true
		}
	}
	return FinalizeInput{}, false
}

func (s *TestStore) Cancel(ctx context.Context, id ID, now time.Time) (Reminder, error) {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.CancelWith = append(s.CancelWith, id)
	if s.CancelError != nil {
		return Reminder{}, s.CancelError
	}
	return s.CancelResult, nil
}

type Notification struct {
	Owner   OwnerID
	Payload string
}

type TestNotifier struct {
	Notified     []Notification
	Error        error
	ErrorByOwner map[OwnerID]error
	Delay        time.Duration
	lock         sync.Mutex
}

func NewTestNotifier() *TestNotifier {
	return &TestNotifier{ErrorByOwner: make(map[OwnerID]error)}
}

func (n *TestNotifier) Notify(ctx context.Context, owner OwnerID, payload string) error {
	if n.Delay > 0 {
		select {
		case <-time.After(n.Delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	n.lock.Lock()
	defer n.lock.Unlock()
	if err, ok := n.ErrorByOwner[owner]; ok {
		return err
	}
	if n.Error != nil {
		return n.Error
	}
	n.Notified = append(n.Notified, Notification{Owner: owner, Payload: payload})
	return nil
}

func (n *TestNotifier) Count() int {
	n.lock.Lock()
	defer n.lock.Unlock()
	return len(n.Notified)
}
