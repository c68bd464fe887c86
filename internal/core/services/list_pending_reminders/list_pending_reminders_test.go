package listpendingreminders

import (
	"context"
	"errors"
	"repeatme/internal/core/domain/logging"
	"repeatme/internal/core/domain/reminder"
	"repeatme/internal/core/services"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
)

const OWNER_ID = reminder.OwnerID("telegram:42")

var (
	CreatedAt = time.Date(2023, 3, 1, 10, 0, 0, 0, time.UTC)
	Now       = CreatedAt.Add(36 * time.Hour)
)

type testSuite struct {
	suite.Suite
	logger  *logging.FakeLogger
	store   *reminder.TestStore
	service services.Service[Input, Result]
}

func (suite *testSuite) SetupTest() {
	suite.logger = logging.NewFakeLogger()
	suite.store = reminder.NewTestStore()
	suite.service = New(suite.logger, suite.store, func() time.Time { return Now })
}

func TestListPendingRemindersService(t *testing.T) {
	suite.Run(t, new(testSuite))
}

func (s *testSuite) TestTimeRemainingIsDerivedFromNow() {
	// Setup ---
	s.store.ListResult = reminder.CreateInput{
		OwnerID:   OWNER_ID,
		Payload:   "krebs cycle",
		Offsets:   []reminder.Offset{reminder.Days(1), reminder.Days(3)},
		CreatedAt: CreatedAt,
	}.NewReminders()
	s.store.ListResult[0].State = reminder.StateInFlight

	// Exercise ---
	result, err := s.service.Run(context.Background(), Input{OwnerID: OWNER_ID})

	// Verify ---
	assert := s.Require()
	assert.Nil(err)
	assert.Equal([]reminder.OwnerID{OWNER_ID}, s.store.ListWith)
	assert.Len(result.Reminders, 2)
	assert.Equal(time.Duration(0), result.Reminders[0].TimeRemaining)
	assert.Equal(36*time.Hour, result.Reminders[1].TimeRemaining)
	assert.Equal(reminder.StateInFlight, result.Reminders[0].State)
}

func (s *testSuite) TestUnknownOwnerGetsEmptyList() {
	// Exercise ---
	result, err := s.service.Run(context.Background(), Input{OwnerID: "telegram:unknown"})

	// Verify ---
	assert := s.Require()
	assert.Nil(err)
	assert.NotNil(result.Reminders)
	assert.Empty(result.Reminders)
}

func (s *testSuite) TestEmptyOwner() {
	// Exercise ---
	_, err := s.service.Run(context.Background(), Input{})

	// Verify ---
	s.Require().ErrorIs(err, reminder.ErrEmptyOwner)
	s.Require().Empty(s.store.ListWith)
}

func (s *testSuite) TestStoreFailure() {
	// Setup ---
	s.store.ListError = errors.New("timeout")

	// Exercise ---
	_, err := s.service.Run(context.Background(), Input{OwnerID: OWNER_ID})

	// Verify ---
	s.Require().ErrorIs(err, s.store.ListError)
	s.Require().Len(s.logger.Records(logging.ERROR), 1)
}
