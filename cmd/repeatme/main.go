package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"repeatme/internal/app"
	"repeatme/internal/app/consumers"
	"repeatme/internal/app/deps"
	"repeatme/internal/app/services"
	"repeatme/internal/dispatcher"
	"syscall"
	"time"

	dl "repeatme/internal/core/domain/logging"
)

func main() {
	deps, shutdownDeps := deps.InitDeps()
	services := services.InitServices(deps)

	shutdownConsumers := consumers.InitConsumers(deps, services)

	reminderDispatcher := dispatcher.New(deps.Logger, services.DispatchReminders, deps.Config.DispatchPollInterval)
	reminderDispatcher.Start()

	httpServer := app.InitHttpServer(deps, services)
	go start(httpServer, deps)

	stopCh, closeCh := createChannel()
	defer closeCh()

	<-stopCh
	shutdown(context.Background(), httpServer, reminderDispatcher, deps, shutdownConsumers, shutdownDeps)
}

func createChannel() (chan os.Signal, func()) {
	stopCh := make(chan os.Signal, 1)
	signal.Notify(stopCh, os.Interrupt, syscall.SIGTERM, syscall.SIGINT)

	return stopCh, func() {
		signal.Stop(stopCh)
		close(stopCh)
	}
}

func start(server *http.Server, deps *deps.Deps) {
	deps.Logger.Info(
		context.Background(),
		"HTTP server has started.",
		dl.Entry("address", server.Addr),
		dl.Entry("isTestMode", deps.Config.IsTestMode),
		dl.Entry("storeDriver", deps.Config.StoreDriver),
		dl.Entry("defaultTransport", deps.Config.DefaultTransport),
	)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		panic(err)
	} else {
		deps.Logger.Info(context.Background(), "HTTP service is stopping gracefully.")
	}
}

func shutdown(
	ctx context.Context,
	server *http.Server,
	reminderDispatcher *dispatcher.Dispatcher,
	deps *deps.Deps,
	shutdownConsumers func(),
	shutdownDeps func(),
) {
	ctx, cancel := context.WithTimeout(ctx, 20*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		panic(err)
	}
	shutdownConsumers()
	reminderDispatcher.Stop()

	deps.Logger.Info(ctx, "HTTP server has shutdowned.")
	shutdownDeps()
}
