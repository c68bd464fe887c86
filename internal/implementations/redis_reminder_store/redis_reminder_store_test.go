package redisreminderstore

import (
	"context"
	"testing"

	"repeatme/internal/core/domain/reminder"
	"repeatme/internal/db/storetest"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

type testSuite struct {
	storetest.Suite
	server *miniredis.Miniredis
	client *redis.Client
}

func (s *testSuite) SetupTest() {
	server, err := miniredis.Run()
	s.Require().Nil(err)
	s.server = server
	s.client = redis.NewClient(&redis.Options{Addr: server.Addr()})
	s.NewStore = func() reminder.Store { return New(s.client, "test") }
	s.Suite.SetupTest()
}

func (s *testSuite) TearDownTest() {
	s.client.Close()
	s.server.Close()
}

func TestRedisReminderStore(t *testing.T) {
	suite.Run(t, new(testSuite))
}

func TestTerminalRemindersLeaveIndexes(t *testing.T) {
	// Setup ---
	assert := require.New(t)
	ctx := context.Background()
	server := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: server.Addr()})
	defer client.Close()
	store := New(client, "")

	created, err := store.CreateReminders(ctx, reminder.CreateInput{
		OwnerID:      "telegram:42",
		SubmissionID: uuid.New(),
		Payload:      "mitochondria",
		Offsets:      []reminder.Offset{reminder.Days(1), reminder.Days(3)},
		CreatedAt:    storetest.T0,
	})
	assert.Nil(err)
	now := created[1].DueAt

	// Exercise ---
	claimed, err := store.ClaimDue(ctx, reminder.ClaimInput{Now: now, Lease: storetest.Lease, Limit: 10})
	assert.Nil(err)
	assert.Len(claimed, 2)
	ok, err := store.Finalize(ctx, reminder.FinalizeInput{
		ID:      claimed[0].ID,
		Outcome: reminder.OutcomeDelivered,
		Now:     now,
	})
	assert.Nil(err)
	assert.True(ok)
	_, err = store.Cancel(ctx, claimed[1].ID, now)
	assert.Nil(err)

	// Verify ---
	pending, err := server.ZMembers("repeatme:reminders:pending")
	if err == nil {
		assert.Empty(pending)
	}
	inFlight, err := server.ZMembers("repeatme:reminders:in_flight")
	if err == nil {
		assert.Empty(inFlight)
	}
	assert.False(server.Exists("repeatme:owner:telegram:42:reminders"))
	assert.Equal("sent", server.HGet("repeatme:reminder:1", "state"))
	assert.Equal("failed", server.HGet("repeatme:reminder:2", "state"))
}
