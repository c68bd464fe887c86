package memory

import (
	"testing"

	"repeatme/internal/core/domain/reminder"
	"repeatme/internal/db/storetest"

	"github.com/stretchr/testify/suite"
)

func TestMemoryReminderStore(t *testing.T) {
	suite.Run(t, &storetest.Suite{
		NewStore: func() reminder.Store { return NewReminderStore() },
	})
}
