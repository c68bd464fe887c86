package dispatchreminders

import (
	"context"
	"errors"
	c "repeatme/internal/core/domain/common"
	"repeatme/internal/core/domain/logging"
	"repeatme/internal/core/domain/reminder"
	"repeatme/internal/core/services"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

var (
	Now        = time.Date(2023, 3, 8, 10, 0, 0, 500_999_999, time.UTC)
	TestConfig = Config{
		BatchSize:       10,
		Lease:           time.Minute,
		DeliveryTimeout: 50 * time.Millisecond,
		Concurrency:     4,
	}
)

func inFlight(id reminder.ID, owner reminder.OwnerID, attempts uint32) reminder.Reminder {
	createdAt := Now.Add(-7 * 24 * time.Hour).Truncate(time.Millisecond)
	return reminder.Reminder{
		ID:        id,
		OwnerID:   owner,
		Payload:   "payload " + string(owner),
		Offset:    reminder.Days(7),
		DueAt:     reminder.Days(7).DueFrom(createdAt),
		State:     reminder.StateInFlight,
		ClaimedAt: c.NewOptional(Now.Truncate(time.Millisecond), true),
		Attempts:  attempts,
		CreatedAt: createdAt,
	}
}

type testSuite struct {
	suite.Suite
	logger   *logging.FakeLogger
	store    *reminder.TestStore
	notifier *reminder.TestNotifier
	service  services.Service[Input, Result]
}

func (suite *testSuite) SetupTest() {
	suite.logger = logging.NewFakeLogger()
	suite.store = reminder.NewTestStore()
	suite.notifier = reminder.NewTestNotifier()
	suite.service = New(
		suite.logger,
		suite.store,
		suite.notifier,
		TestConfig,
		func() time.Time { return Now },
	)
}

func TestDispatchRemindersService(t *testing.T) {
	suite.Run(t, new(testSuite))
}

func (s *testSuite) TestNothingDue() {
	// Exercise ---
	result, err := s.service.Run(context.Background(), Input{})

	// Verify ---
	assert := s.Require()
	assert.Nil(err)
	assert.Equal(Result{}, result)
	assert.Len(s.store.ClaimWith, 1)
	assert.Equal(
		reminder.ClaimInput{Now: Now.Truncate(time.Millisecond), Lease: TestConfig.Lease, Limit: TestConfig.BatchSize},
		s.store.ClaimWith[0],
	)
	assert.Equal(0, s.notifier.Count())
	assert.Empty(s.store.FinalizeWith)
}

func (s *testSuite) TestDeliveredRemindersAreFinalizedAsSent() {
	// Setup ---
	s.store.ClaimResult = []reminder.Reminder{inFlight(1, "telegram:1", 1), inFlight(2, "telegram:2", 1)}

	// Exercise ---
	result, err := s.service.Run(context.Background(), Input{})

	// Verify ---
	assert := s.Require()
	assert.Nil(err)
	assert.Equal(Result{Claimed: 2, Delivered: 2}, result)
	assert.ElementsMatch(
		[]reminder.Notification{
			{Owner: "telegram:1", Payload: "payload telegram:1"},
			{Owner: "telegram:2", Payload: "payload telegram:2"},
		},
		s.notifier.Notified,
	)
	for _, id := range []reminder.ID{1, 2} {
		finalized, ok := s.store.Finalized(id)
		assert.True(ok)
		assert.Equal(reminder.OutcomeDelivered, finalized.Outcome)
		assert.Equal(Now.Truncate(time.Millisecond), finalized.Now)
	}
}

func (s *testSuite) TestPermanentFailureIsFinalizedAsFailed() {
	// Setup ---
	s.store.ClaimResult = []reminder.Reminder{inFlight(1, "telegram:blocked", 1), inFlight(2, "telegram:2", 1)}
	s.notifier.ErrorByOwner["telegram:blocked"] = reminder.PermanentFailure(errors.New("bot was blocked"))

	// Exercise ---
	result, err := s.service.Run(context.Background(), Input{})

	// Verify ---
	assert := s.Require()
	assert.Nil(err)
	assert.Equal(Result{Claimed: 2, Delivered: 1, Failed: 1}, result)
	finalized, ok := s.store.Finalized(1)
	assert.True(ok)
	assert.Equal(reminder.OutcomePermanentFailure, finalized.Outcome)
}

func (s *testSuite) TestTransientFailureStaysInFlight() {
	// Setup ---
	s.store.ClaimResult = []reminder.Reminder{inFlight(1, "telegram:down", 1)}
	s.notifier.Error = errors.New("503 service unavailable")

	// Exercise ---
	result, err := s.service.Run(context.Background(), Input{})

	// Verify ---
	assert := s.Require()
	assert.Nil(err)
	assert.Equal(Result{Claimed: 1, Retried: 1}, result)
	assert.Empty(s.store.FinalizeWith)
	assert.Len(s.logger.Records(logging.WARNING), 1)
}

func (s *testSuite) TestDeliveryTimeoutIsTransient() {
	// Setup ---
	s.store.ClaimResult = []reminder.Reminder{inFlight(1, "telegram:slow", 1)}
	s.notifier.Delay = time.Second

	// Exercise ---
	started := time.Now()
	result, err := s.service.Run(context.Background(), Input{})

	// Verify ---
	assert := s.Require()
	assert.Nil(err)
	assert.Less(time.Since(started), time.Second)
	assert.Equal(Result{Claimed: 1, Retried: 1}, result)
	assert.Empty(s.store.FinalizeWith)
}

func (s *testSuite) TestReclaimedReminderIsDeliveredAgain() {
	// Setup ---
	s.store.ClaimResult = []reminder.Reminder{inFlight(1, "telegram:1", 3)}

	// Exercise ---
	result, err := s.service.Run(context.Background(), Input{})

	// Verify ---
	assert := s.Require()
	assert.Nil(err)
	assert.Equal(Result{Claimed: 1, Delivered: 1, Reclaimed: 1}, result)
	assert.Len(s.logger.Records(logging.WARNING), 1)
}

func (s *testSuite) TestFinalizeNoopIsNotCounted() {
	// Setup ---
	s.store.ClaimResult = []reminder.Reminder{inFlight(1, "telegram:1", 2)}
	s.store.FinalizeNoop = true

	// Exercise ---
	result, err := s.service.Run(context.Background(), Input{})

	// Verify ---
	assert := s.Require()
	assert.Nil(err)
	assert.Equal(Result{Claimed: 1, Reclaimed: 1}, result)
	assert.Equal(1, s.notifier.Count())
}

func (s *testSuite) TestFinalizeErrorLeavesReminderForRetry() {
	// Setup ---
	s.store.ClaimResult = []reminder.Reminder{inFlight(1, "telegram:1", 1)}
	s.store.FinalizeError = errors.New("connection reset")

	// Exercise ---
	result, err := s.service.Run(context.Background(), Input{})

	// Verify ---
	assert := s.Require()
	assert.Nil(err)
	assert.Equal(Result{Claimed: 1, Retried: 1}, result)
	assert.Len(s.logger.Records(logging.ERROR), 1)
}

func (s *testSuite) TestClaimFailure() {
	// Setup ---
	s.store.ClaimError = errors.New("database is locked")

	// Exercise ---
	_, err := s.service.Run(context.Background(), Input{})

	// Verify ---
	assert := s.Require()
	assert.ErrorIs(err, s.store.ClaimError)
	assert.Len(s.logger.Records(logging.ERROR), 1)
	assert.Equal(0, s.notifier.Count())
}

type panickingNotifier struct{}

func (panickingNotifier) Notify(ctx context.Context, owner reminder.OwnerID, payload string) error {
	panic("transport bug")
}

func TestNotifierPanicDoesNotAbortCycle(t *testing.T) {
	// Setup ---
	assert := require.New(t)
	log := logging.NewFakeLogger()
	store := reminder.NewTestStore()
	store.ClaimResult = []reminder.Reminder{inFlight(1, "telegram:1", 1)}
	service := New(log, store, panickingNotifier{}, TestConfig, func() time.Time { return Now })

	// Exercise ---
	result, err := service.Run(context.Background(), Input{})

	// Verify ---
	assert.Nil(err)
	assert.Equal(Result{Claimed: 1, Retried: 1}, result)
	assert.Empty(store.FinalizeWith)
	assert.Len(log.Records(logging.ERROR), 1)
}

type countingNotifier struct {
	lock    sync.Mutex
	current int
	max     int
}

func (n *countingNotifier) Notify(ctx context.Context, owner reminder.OwnerID, payload string) error {
	n.lock.Lock()
	n.current++
	if n.current > n.max {
		n.max = n.current
	}
	n.lock.Unlock()

	time.Sleep(5 * time.Millisecond)

	n.lock.Lock()
	n.current--
	n.lock.Unlock()
	return nil
}

func TestDeliveriesAreBoundedByConcurrency(t *testing.T) {
	// Setup ---
	assert := require.New(t)
	store := reminder.NewTestStore()
	for ix := 1; ix <= 10; ix++ {
		store.ClaimResult = append(store.ClaimResult, inFlight(reminder.ID(ix), "telegram:1", 1))
	}
	notifier := &countingNotifier{}
	config := TestConfig
	config.Concurrency = 2
	service := New(logging.NewFakeLogger(), store, notifier, config, func() time.Time { return Now })

	// Exercise ---
	result, err := service.Run(context.Background(), Input{})

	// Verify ---
	assert.Nil(err)
	assert.Equal(10, result.Delivered)
	assert.LessOrEqual(notifier.max, 2)
}

func TestConfigValidate(t *testing.T) {
	cases := []struct {
		id     string
		modify func(*Config)
		valid  bool
	}{
		{id: "default", modify: func(cfg *Config) {}, valid: true},
		{id: "zero batch", modify: func(cfg *Config) { cfg.BatchSize = 0 }},
		{id: "zero concurrency", modify: func(cfg *Config) { cfg.Concurrency = 0 }},
		{id: "zero timeout", modify: func(cfg *Config) { cfg.DeliveryTimeout = 0 }},
		{id: "lease equals timeout", modify: func(cfg *Config) { cfg.Lease = cfg.DeliveryTimeout }},
	}
	for _, testcase := range cases {
		t.Run(testcase.id, func(t *testing.T) {
			config := TestConfig
			testcase.modify(&config)
			err := config.Validate()
			if testcase.valid {
				require.Nil(t, err)
			} else {
				require.NotNil(t, err)
			}
		})
	}
}
