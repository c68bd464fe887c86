package app

import (
	"fmt"
	"net/http"
	"repeatme/internal/app/deps"
	"repeatme/internal/app/services"
	"repeatme/internal/http/handlers/owners/events"
	cancelreminder "repeatme/internal/http/handlers/reminders/cancel_reminder"
	getreminder "repeatme/internal/http/handlers/reminders/get_reminder"
	listpendingreminders "repeatme/internal/http/handlers/reminders/list_pending_reminders"
	nextpendingreminder "repeatme/internal/http/handlers/reminders/next_pending_reminder"
	submitreminders "repeatme/internal/http/handlers/reminders/submit_reminders"
	"repeatme/internal/telemetry"

	sentryhttp "github.com/getsentry/sentry-go/http"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

func InitHttpServer(deps *deps.Deps, s *services.Services) *http.Server {
	return &http.Server{
		Handler: NewRouter(deps, s),
		Addr:    fmt.Sprintf("0.0.0.0:%d", deps.Config.Port),
	}
}

func NewRouter(deps *deps.Deps, s *services.Services) http.Handler {
	ownerRouter := chi.NewRouter()
	ownerRouter.Method(
		http.MethodPost,
		"/reminders",
		submitreminders.New(s.SubmitReminders, deps.Projector, deps.Now),
	)
	ownerRouter.Method(
		http.MethodGet,
		"/reminders",
		listpendingreminders.New(s.ListPendingReminders, deps.Projector),
	)
	ownerRouter.Method(
		http.MethodGet,
		"/reminders/next",
		nextpendingreminder.New(s.NextPendingReminder, deps.Projector),
	)
	ownerRouter.Method(http.MethodGet, "/events", events.New(deps.Logger, deps.SseServer))

	reminderRouter := chi.NewRouter()
	reminderRouter.Method(http.MethodGet, "/{reminderID:[0-9]+}", getreminder.New(s.GetReminder, deps.Projector))
	reminderRouter.Method(
		http.MethodDelete,
		"/{reminderID:[0-9]+}",
		cancelreminder.New(s.CancelReminder, deps.Projector),
	)

	router := chi.NewRouter()
	router.Use(middleware.Recoverer)
	router.Use(sentryhttp.New(sentryhttp.Options{Repanic: true}).Handle)
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   deps.Config.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: false,
		MaxAge:           300, // Maximum value not ignored by any of major browsers
	}))
	router.Mount("/owners/{ownerID}", ownerRouter)
	router.Mount("/reminders", reminderRouter)
	router.Method(http.MethodGet, "/metrics", telemetry.Handler())

	return router
}
