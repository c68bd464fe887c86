// Package dispatcher drives reminder delivery with a fixed-interval poll loop.
package dispatcher

import (
	"context"
	"fmt"
	"sync"
	"time"

	e "repeatme/internal/core/domain/errors"
	"repeatme/internal/core/domain/logging"
	"repeatme/internal/core/services"
	dispatchreminders "repeatme/internal/core/services/dispatch_reminders"
)

type Dispatcher struct {
	log      logging.Logger
	service  services.Service[dispatchreminders.Input, dispatchreminders.Result]
	interval time.Duration

	lock   sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

func New(
	log logging.Logger,
	service services.Service[dispatchreminders.Input, dispatchreminders.Result],
	interval time.Duration,
) *Dispatcher {
	if log == nil {
		panic(e.NewNilArgumentError("log"))
	}
	if service == nil {
		panic(e.NewNilArgumentError("service"))
	}
	if interval <= 0 {
		panic(e.NewInvalidArgumentError("interval", "must be positive"))
	}
	return &Dispatcher{log: log, service: service, interval: interval}
}

// Start runs the loop in the background until Stop is called.
// Calling Start on a running dispatcher does nothing.
func (d *Dispatcher) Start() {
	d.lock.Lock()
	defer d.lock.Unlock()
	if d.cancel != nil {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	d.cancel = cancel
	d.done = done
	go func() {
		defer close(done)
		d.Run(ctx)
	}()
}

// Stop cancels the loop and waits for the running cycle to return.
func (d *Dispatcher) Stop() {
	d.lock.Lock()
	cancel, done := d.cancel, d.done
	d.cancel, d.done = nil, nil
	d.lock.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// Run blocks until ctx is done. A failed cycle is logged and the loop goes on.
func (d *Dispatcher) Run(ctx context.Context) {
	d.log.Info(ctx, "Dispatcher has started.", logging.Entry("interval", d.interval.String()))

	timer := time.NewTimer(0)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			d.log.Info(context.Background(), "Dispatcher has stopped.")
			return
		case <-timer.C:
			d.cycle(ctx)
			timer.Reset(d.interval)
		}
	}
}

func (d *Dispatcher) cycle(ctx context.Context) {
	defer func() {
		if p := recover(); p != nil {
			logging.Error(ctx, d.log, fmt.Errorf("dispatch cycle panic: %v", p))
		}
	}()

	_, err := d.service.Run(ctx, dispatchreminders.Input{})
	if err != nil && ctx.Err() == nil {
		d.log.Error(ctx, "Dispatch cycle returned an error.", logging.Entry("err", err))
	}
}
