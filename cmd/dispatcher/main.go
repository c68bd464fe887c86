package main

import (
	"context"
	"os"
	"os/signal"
	"repeatme/internal/app/deps"
	"repeatme/internal/app/services"
	"repeatme/internal/core/domain/logging"
	"repeatme/internal/dispatcher"
	"syscall"
)

func main() {
	deps, shutdownDeps := deps.InitDeps()
	log := deps.Logger
	defer shutdownDeps()

	services := services.InitServices(deps)

	stopCh, closeCh := createChannel()
	defer closeCh()

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-stopCh
		log.Info(context.Background(), "Stopping reminder dispatcher.")
		cancel()
	}()

	log.Info(
		context.Background(),
		"Starting reminder dispatcher.",
		logging.Entry("pollInterval", deps.Config.DispatchPollInterval.String()),
		logging.Entry("batchSize", deps.Config.DispatchBatchSize),
		logging.Entry("lease", deps.Config.DispatchLeaseDuration.String()),
	)
	dispatcher.New(log, services.DispatchReminders, deps.Config.DispatchPollInterval).Run(ctx)
	log.Info(context.Background(), "Reminder dispatcher stopped.")
}

func createChannel() (chan os.Signal, func()) {
	stopCh := make(chan os.Signal, 1)
	signal.Notify(stopCh, os.Interrupt, syscall.SIGTERM, syscall.SIGINT)

	return stopCh, func() {
		signal.Stop(stopCh)
	}
}
