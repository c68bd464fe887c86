package dispatchreminders

import (
	"context"
	"fmt"
	"repeatme/internal/core/domain/clock"
	e "repeatme/internal/core/domain/errors"
	"repeatme/internal/core/domain/logging"
	"repeatme/internal/core/domain/reminder"
	"repeatme/internal/core/services"
	"repeatme/internal/telemetry"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

type Config struct {
	BatchSize       uint
	Lease           time.Duration
	DeliveryTimeout time.Duration
	Concurrency     int
}

func (c Config) Validate() error {
	if c.BatchSize == 0 {
		return e.NewInvalidArgumentError("BatchSize", "must be positive")
	}
	if c.Concurrency <= 0 {
		return e.NewInvalidArgumentError("Concurrency", "must be positive")
	}
	if c.DeliveryTimeout <= 0 {
		return e.NewInvalidArgumentError("DeliveryTimeout", "must be positive")
	}
	if c.Lease <= c.DeliveryTimeout {
		return e.NewInvalidArgumentError("Lease", "must be longer than DeliveryTimeout")
	}
	return nil
}

type Input struct{}

type Result struct {
	Claimed   int
	Delivered int
	Failed    int
	Retried   int
	Reclaimed int
}

type service struct {
	log      logging.Logger
	store    reminder.Store
	notifier reminder.Notifier
	config   Config
	now      func() time.Time
}

func New(
	log logging.Logger,
	store reminder.Store,
	notifier reminder.Notifier,
	config Config,
	now func() time.Time,
) services.Service[Input, Result] {
	if log == nil {
		panic(e.NewNilArgumentError("log"))
	}
	if store == nil {
		panic(e.NewNilArgumentError("store"))
	}
	if notifier == nil {
		panic(e.NewNilArgumentError("notifier"))
	}
	if now == nil {
		panic(e.NewNilArgumentError("now"))
	}
	if err := config.Validate(); err != nil {
		panic(err)
	}
	return &service{
		log:      log,
		store:    store,
		notifier: notifier,
		config:   config,
		now:      now,
	}
}

// Run claims due reminders and delivers them. Deliveries run outside of
// any store transaction, so a slow transport never holds a lock.
func (s *service) Run(ctx context.Context, input Input) (result Result, err error) {
	started := time.Now()
	defer func() {
		telemetry.DispatchDuration.Observe(time.Since(started).Seconds())
	}()

	claimed, err := s.store.ClaimDue(ctx, reminder.ClaimInput{
		Now:   clock.Normalize(s.now()),
		Lease: s.config.Lease,
		Limit: s.config.BatchSize,
	})
	if err != nil {
		telemetry.DispatchErrors.Inc()
		logging.Error(ctx, s.log, err)
		return result, err
	}
	result.Claimed = len(claimed)
	telemetry.RemindersClaimed.Add(float64(len(claimed)))
	if len(claimed) == 0 {
		return result, nil
	}

	var lock sync.Mutex
	g := new(errgroup.Group)
	g.SetLimit(s.config.Concurrency)
	for _, r := range claimed {
		r := r
		g.Go(func() error {
			outcome := s.dispatch(ctx, r)
			lock.Lock()
			defer lock.Unlock()
			result.add(outcome, r)
			return nil
		})
	}
	g.Wait()

	telemetry.RemindersDelivered.Add(float64(result.Delivered))
	telemetry.RemindersFailed.Add(float64(result.Failed))
	telemetry.RemindersRetried.Add(float64(result.Retried))
	telemetry.RemindersReclaimed.Add(float64(result.Reclaimed))
	s.log.Info(
		ctx,
		"Dispatch cycle finished.",
		logging.Entry("claimed", result.Claimed),
		logging.Entry("delivered", result.Delivered),
		logging.Entry("failed", result.Failed),
		logging.Entry("retried", result.Retried),
	)
	return result, nil
}

type outcome int

const (
	outcomeDelivered outcome = iota
	outcomeFailed
	outcomeRetry
	outcomeLost
)

func (r *Result) add(o outcome, claimed reminder.Reminder) {
	if claimed.Attempts > 1 {
		r.Reclaimed++
	}
	switch o {
	case outcomeDelivered:
		r.Delivered++
	case outcomeFailed:
		r.Failed++
	case outcomeRetry:
		r.Retried++
	}
}

func (s *service) dispatch(ctx context.Context, r reminder.Reminder) (o outcome) {
	defer func() {
		if p := recover(); p != nil {
			logging.Error(ctx, s.log, fmt.Errorf("notifier panic: %v", p), logging.Entry("reminderID", r.ID))
			o = outcomeRetry
		}
	}()

	if r.Attempts > 1 {
		s.log.Warning(
			ctx,
			"Retrying reminder after lease expiration.",
			logging.Entry("reminderID", r.ID),
			logging.Entry("attempts", r.Attempts),
		)
	}

	deliveryCtx, cancel := context.WithTimeout(ctx, s.config.DeliveryTimeout)
	err := s.notifier.Notify(deliveryCtx, r.OwnerID, r.Payload)
	cancel()

	finalize := reminder.FinalizeInput{ID: r.ID, Outcome: reminder.OutcomeDelivered}
	switch {
	case err == nil:
	case reminder.IsPermanentFailure(err):
		s.log.Warning(
			ctx,
			"Reminder could not be delivered.",
			logging.Entry("reminderID", r.ID),
			logging.Entry("owner", r.OwnerID),
			logging.Entry("err", err),
		)
		finalize.Outcome = reminder.OutcomePermanentFailure
	default:
		s.log.Warning(
			ctx,
			"Reminder delivery failed, it stays in flight until the lease expires.",
			logging.Entry("reminderID", r.ID),
			logging.Entry("owner", r.OwnerID),
			logging.Entry("attempts", r.Attempts),
			logging.Entry("err", err),
		)
		return outcomeRetry
	}

	// A delivered reminder is recorded even when the cycle is being stopped.
	finalize.Now = clock.Normalize(s.now())
	ok, err := s.store.Finalize(context.WithoutCancel(ctx), finalize)
	if err != nil {
		logging.Error(ctx, s.log, err, logging.Entry("reminderID", r.ID), logging.Entry("outcome", finalize.Outcome))
		return outcomeRetry
	}
	if !ok {
		s.log.Warning(
			ctx,
			"Reminder was already finalized by another dispatcher.",
			logging.Entry("reminderID", r.ID),
			logging.Entry("outcome", finalize.Outcome),
		)
		return outcomeLost
	}
	if finalize.Outcome == reminder.OutcomeDelivered {
		return outcomeDelivered
	}
	return outcomeFailed
}
