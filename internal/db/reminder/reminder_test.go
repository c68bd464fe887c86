package reminder

import (
	"context"
	"testing"
	"time"

	"repeatme/internal/core/domain/reminder"
	"repeatme/internal/db"
	"repeatme/internal/db/storetest"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/stretchr/testify/suite"
)

type testSuite struct {
	storetest.Suite
	pool *pgxpool.Pool
}

func (s *testSuite) SetupSuite() {
	s.pool = db.CreateTestPool()
	s.NewStore = func() reminder.Store { return NewPgxReminderStore(s.pool) }
}

func (s *testSuite) TearDownSuite() {
	s.pool.Close()
}

func (s *testSuite) TearDownTest() {
	db.TruncateTables(s.pool)
}

func TestPgxReminderStore(t *testing.T) {
	if !db.HasTestDatabase() {
		t.Skip("TEST_POSTGRESQL_URL is not set")
	}
	suite.Run(t, new(testSuite))
}

// A claim held by an open transaction is skipped instead of waited for.
func (s *testSuite) TestClaimDueSkipsLockedRows() {
	// Setup ---
	ctx := context.Background()
	created, err := s.Store.CreateReminders(ctx, reminder.CreateInput{
		OwnerID:      "42",
		SubmissionID: uuid.New(),
		Payload:      "Photosynthesis basics",
		Offsets:      []reminder.Offset{reminder.Days(1), reminder.Days(3)},
		CreatedAt:    storetest.T0,
	})
	s.Require().Nil(err)
	now := storetest.T0.Add(3*reminder.Day + time.Second)

	tx, err := s.pool.Begin(ctx)
	s.Require().Nil(err)
	defer tx.Rollback(ctx)
	held, err := NewPgxReminderStore(tx).ClaimDue(
		ctx,
		reminder.ClaimInput{Now: now, Lease: storetest.Lease, Limit: 1},
	)
	s.Require().Nil(err)
	s.Require().Len(held, 1)

	// Exercise ---
	claimCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	claimed, err := s.Store.ClaimDue(
		claimCtx,
		reminder.ClaimInput{Now: now, Lease: storetest.Lease, Limit: 10},
	)

	// Verify ---
	s.Require().Nil(err)
	s.Require().Len(claimed, 1)
	s.Require().Equal(created[0].ID, held[0].ID)
	s.Require().Equal(created[1].ID, claimed[0].ID)
}
