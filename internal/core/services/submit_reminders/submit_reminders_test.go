package submitreminders

import (
	"context"
	"errors"
	"repeatme/internal/core/domain/logging"
	"repeatme/internal/core/domain/reminder"
	"repeatme/internal/core/services"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
)

const OWNER_ID = reminder.OwnerID("telegram:42")

var Now = time.Date(2023, 3, 1, 10, 0, 0, 123_456_789, time.UTC)

type testSuite struct {
	suite.Suite
	logger  *logging.FakeLogger
	store   *reminder.TestStore
	service services.Service[Input, Result]
}

func (suite *testSuite) SetupTest() {
	suite.logger = logging.NewFakeLogger()
	suite.store = reminder.NewTestStore()
	suite.service = New(
		suite.logger,
		suite.store,
		reminder.DefaultOffsets(),
		func() time.Time { return Now },
	)
}

func TestSubmitRemindersService(t *testing.T) {
	suite.Run(t, new(testSuite))
}

func (s *testSuite) TestSubmitFansOutOverOffsets() {
	// Exercise ---
	result, err := s.service.Run(context.Background(), Input{OwnerID: OWNER_ID, Payload: "ribosome"})

	// Verify ---
	assert := s.Require()
	assert.Nil(err)
	assert.Len(result.Reminders, 4)
	assert.Len(s.store.CreateWith, 1)

	created := s.store.CreateWith[0]
	assert.Equal(OWNER_ID, created.OwnerID)
	assert.Equal("ribosome", created.Payload)
	assert.Equal(reminder.DefaultOffsets(), created.Offsets)
	assert.Equal(Now.Truncate(time.Millisecond), created.CreatedAt)

	for ix, r := range result.Reminders {
		assert.Equal(reminder.StatePending, r.State)
		assert.Equal(created.SubmissionID, r.SubmissionID)
		assert.Equal(created.CreatedAt, r.CreatedAt)
		assert.Equal(created.CreatedAt.Add(created.Offsets[ix].Duration()), r.DueAt)
	}
	assert.Len(s.logger.Records(logging.INFO), 1)
}

func (s *testSuite) TestEverySubmissionGetsItsOwnID() {
	// Exercise ---
	_, err := s.service.Run(context.Background(), Input{OwnerID: OWNER_ID, Payload: "one"})
	s.Require().Nil(err)
	_, err = s.service.Run(context.Background(), Input{OwnerID: OWNER_ID, Payload: "one"})
	s.Require().Nil(err)

	// Verify ---
	s.Require().Len(s.store.CreateWith, 2)
	s.Require().NotEqual(s.store.CreateWith[0].SubmissionID, s.store.CreateWith[1].SubmissionID)
}

func (s *testSuite) TestInvalidInput() {
	cases := []struct {
		id    string
		input Input
		err   error
	}{
		{id: "empty owner", input: Input{OwnerID: "", Payload: "x"}, err: reminder.ErrEmptyOwner},
		{id: "blank owner", input: Input{OwnerID: "  ", Payload: "x"}, err: reminder.ErrEmptyOwner},
		{id: "empty payload", input: Input{OwnerID: OWNER_ID, Payload: ""}, err: reminder.ErrEmptyPayload},
		{id: "blank payload", input: Input{OwnerID: OWNER_ID, Payload: "\n\t "}, err: reminder.ErrEmptyPayload},
		{
			id:    "long payload",
			input: Input{OwnerID: OWNER_ID, Payload: strings.Repeat("a", reminder.MAX_PAYLOAD_LENGTH+1)},
			err:   reminder.ErrPayloadTooLong,
		},
		{id: "invalid utf8", input: Input{OwnerID: OWNER_ID, Payload: "\xff\xfe"}, err: reminder.ErrPayloadNotUTF8},
	}

	for _, testcase := range cases {
		s.Run(testcase.id, func() {
			s.SetupTest()

			// Exercise ---
			_, err := s.service.Run(context.Background(), testcase.input)

			// Verify ---
			assert := s.Require()
			assert.ErrorIs(err, testcase.err)
			assert.Empty(s.store.CreateWith)
		})
	}
}

func (s *testSuite) TestStoreFailure() {
	// Setup ---
	storeErr := errors.New("connection refused")
	s.store.CreateError = storeErr

	// Exercise ---
	_, err := s.service.Run(context.Background(), Input{OwnerID: OWNER_ID, Payload: "x"})

	// Verify ---
	assert := s.Require()
	assert.ErrorIs(err, storeErr)
	assert.Len(s.logger.Records(logging.ERROR), 1)
}

func TestNewRejectsInvalidOffsets(t *testing.T) {
	log := logging.NewFakeLogger()
	store := reminder.NewTestStore()
	now := func() time.Time { return Now }

	cases := []struct {
		id      string
		offsets []reminder.Offset
	}{
		{id: "empty", offsets: nil},
		{id: "duplicate", offsets: []reminder.Offset{reminder.Days(1), reminder.Days(1)}},
		{id: "zero", offsets: []reminder.Offset{reminder.NewOffset(0)}},
	}
	for _, testcase := range cases {
		t.Run(testcase.id, func(t *testing.T) {
			defer func() {
				if recover() == nil {
					t.Fatalf("expected panic for %s offsets", testcase.id)
				}
			}()
			New(log, store, testcase.offsets, now)
		})
	}
}
