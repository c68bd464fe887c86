package dispatcher

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"repeatme/internal/core/domain/logging"
	"repeatme/internal/core/domain/reminder"
	dispatchreminders "repeatme/internal/core/services/dispatch_reminders"
	"repeatme/internal/db/memory"

	"github.com/stretchr/testify/require"
)

type stubService struct {
	lock     sync.Mutex
	calls    int
	failures map[int]func() error
}

func (s *stubService) Run(
	ctx context.Context,
	input dispatchreminders.Input,
) (dispatchreminders.Result, error) {
	s.lock.Lock()
	s.calls++
	fail := s.failures[s.calls]
	s.lock.Unlock()

	if fail != nil {
		return dispatchreminders.Result{}, fail()
	}
	return dispatchreminders.Result{}, nil
}

func (s *stubService) Calls() int {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.calls
}

func TestLoopSurvivesFailedCycles(t *testing.T) {
	// Setup ---
	assert := require.New(t)
	log := logging.NewFakeLogger()
	service := &stubService{failures: map[int]func() error{
		1: func() error { return errors.New("database is locked") },
		2: func() error { panic("unexpected nil") },
	}}
	d := New(log, service, 5*time.Millisecond)

	// Exercise ---
	d.Start()
	assert.Eventually(func() bool { return service.Calls() >= 4 }, time.Second, time.Millisecond)
	d.Stop()

	// Verify ---
	assert.Len(log.Records(logging.ERROR), 2)
}

func TestStopWaitsForLoop(t *testing.T) {
	// Setup ---
	assert := require.New(t)
	service := &stubService{}
	d := New(logging.NewFakeLogger(), service, time.Millisecond)

	// Exercise ---
	d.Start()
	d.Start()
	assert.Eventually(func() bool { return service.Calls() >= 1 }, time.Second, time.Millisecond)
	d.Stop()
	stoppedAt := service.Calls()
	time.Sleep(20 * time.Millisecond)

	// Verify ---
	assert.Equal(stoppedAt, service.Calls())
	d.Stop()
}

func TestRunStopsWithContext(t *testing.T) {
	// Setup ---
	assert := require.New(t)
	service := &stubService{}
	d := New(logging.NewFakeLogger(), service, time.Hour)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	// Exercise ---
	go func() {
		defer close(done)
		d.Run(ctx)
	}()
	assert.Eventually(func() bool { return service.Calls() == 1 }, time.Second, time.Millisecond)
	cancel()

	// Verify ---
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("dispatcher did not stop")
	}
	assert.Equal(1, service.Calls())
}

// Two dispatchers sharing one store deliver every reminder exactly once.
func TestDispatchersShareStoreWithoutDuplicates(t *testing.T) {
	// Setup ---
	assert := require.New(t)
	store := memory.NewReminderStore()
	createdAt := time.Now().UTC().Add(-time.Hour).Truncate(time.Millisecond)
	for ix := 0; ix < 30; ix++ {
		_, err := store.CreateReminders(context.Background(), reminder.CreateInput{
			OwnerID:   reminder.OwnerID("telegram:" + string(rune('a'+ix%26))),
			Payload:   "photosynthesis",
			Offsets:   []reminder.Offset{reminder.NewOffset(time.Minute), reminder.NewOffset(2 * time.Minute)},
			CreatedAt: createdAt,
		})
		assert.Nil(err)
	}
	notifier := reminder.NewTestNotifier()
	config := dispatchreminders.Config{
		BatchSize:       7,
		Lease:           time.Minute,
		DeliveryTimeout: time.Second,
		Concurrency:     3,
	}
	dispatchers := make([]*Dispatcher, 0, 2)
	for ix := 0; ix < 2; ix++ {
		log := logging.NewFakeLogger()
		service := dispatchreminders.New(log, store, notifier, config, time.Now)
		dispatchers = append(dispatchers, New(log, service, time.Millisecond))
	}

	// Exercise ---
	for _, d := range dispatchers {
		d.Start()
	}
	assert.Eventually(func() bool { return notifier.Count() >= 60 }, 5*time.Second, 5*time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	for _, d := range dispatchers {
		d.Stop()
	}

	// Verify ---
	assert.Equal(60, notifier.Count())
	for id := reminder.ID(1); id <= 60; id++ {
		r, err := store.GetByID(context.Background(), id)
		assert.Nil(err)
		assert.Equal(reminder.StateSent, r.State)
		assert.False(r.SentAt.Value.Before(r.DueAt))
	}
}
