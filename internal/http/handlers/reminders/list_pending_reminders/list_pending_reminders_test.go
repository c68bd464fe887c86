package listpendingreminders

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"repeatme/internal/core/domain/clock"
	"repeatme/internal/core/domain/reminder"
	service "repeatme/internal/core/services/list_pending_reminders"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var CreatedAt = time.Date(2023, 3, 8, 10, 0, 0, 0, time.UTC)

type stubService struct {
	reminders []reminder.PendingReminder
	err       error
	input     *service.Input
}

func (s *stubService) Run(ctx context.Context, input service.Input) (result service.Result, err error) {
	s.input = &input
	if s.err != nil {
		return result, s.err
	}
	result.Reminders = s.reminders
	return result, nil
}

func pending(id reminder.ID, offset reminder.Offset, remaining time.Duration) reminder.PendingReminder {
	return reminder.PendingReminder{
		Reminder: reminder.Reminder{
			ID:        id,
			OwnerID:   "email:student@example.com",
			Payload:   "krebs cycle",
			Offset:    offset,
			DueAt:     offset.DueFrom(CreatedAt),
			State:     reminder.StatePending,
			CreatedAt: CreatedAt,
		},
		TimeRemaining: remaining,
	}
}

func TestListPendingRemindersHandler(t *testing.T) {
	cases := []struct {
		id             string
		owner          string
		reminders      []reminder.PendingReminder
		err            error
		expectedStatus int
		expectedCount  int
	}{
		{
			id:    "pending reminders",
			owner: "email:student@example.com",
			reminders: []reminder.PendingReminder{
				pending(1, reminder.Days(1), 90*time.Second),
				pending(2, reminder.Days(3), 2*reminder.Day),
			},
			expectedStatus: http.StatusOK,
			expectedCount:  2,
		},
		{
			id:             "no reminders",
			owner:          "email:student@example.com",
			expectedStatus: http.StatusOK,
		},
		{
			id:             "blank owner",
			owner:          "%20",
			err:            reminder.ErrEmptyOwner,
			expectedStatus: http.StatusBadRequest,
		},
		{
			id:             "store failure",
			owner:          "email:student@example.com",
			err:            errors.New("connection refused"),
			expectedStatus: http.StatusInternalServerError,
		},
	}

	for _, testcase := range cases {
		t.Run(testcase.id, func(t *testing.T) {
			s := &stubService{reminders: testcase.reminders, err: testcase.err}
			projector, err := clock.NewProjector("")
			require.Nil(t, err)
			router := chi.NewRouter()
			router.Method(http.MethodGet, "/owners/{ownerID}/reminders", New(s, projector))

			req := httptest.NewRequest(http.MethodGet, "/owners/"+testcase.owner+"/reminders", nil)
			rr := httptest.NewRecorder()
			router.ServeHTTP(rr, req)

			assert.Equal(t, testcase.expectedStatus, rr.Code)
			if rr.Code != http.StatusOK {
				return
			}
			assert.Equal(t, reminder.OwnerID(testcase.owner), s.input.OwnerID)
			var result Result
			require.Nil(t, json.Unmarshal(rr.Body.Bytes(), &result))
			assert.Len(t, result.Reminders, testcase.expectedCount)
			assert.NotNil(t, result.Reminders)
			if testcase.expectedCount > 0 {
				assert.Equal(t, int64(90), result.Reminders[0].TimeRemainingSeconds)
				assert.Equal(t, "2023-03-09 10:00:00", result.Reminders[0].DueAtLocal)
			}
		})
	}
}
