package remindersender

import (
	"context"
	"fmt"
	e "repeatme/internal/core/domain/errors"
	"repeatme/internal/core/domain/logging"
	"repeatme/internal/core/domain/reminder"
	"strings"
)

type Scheme string

const (
	SchemeTelegram Scheme = "telegram"
	SchemeEmail    Scheme = "email"
	SchemeInternal Scheme = "internal"
	SchemeAMQP     Scheme = "amqp"
	SchemeLog      Scheme = "log"
)

// Transport delivers a payload to an address of one scheme.
// It follows the reminder.Notifier error contract.
type Transport interface {
	Deliver(ctx context.Context, address string, payload string) error
}

// Sender routes a reminder to the transport named by the owner id scheme,
// e.g. "telegram:12345" or "email:student@example.com". Owner ids without
// a known scheme prefix go to the default transport.
type Sender struct {
	log           logging.Logger
	defaultScheme Scheme
	transports    map[Scheme]Transport
}

func New(log logging.Logger, defaultScheme Scheme, transports map[Scheme]Transport) *Sender {
	if log == nil {
		panic(e.NewNilArgumentError("log"))
	}
	if transports == nil {
		panic(e.NewNilArgumentError("transports"))
	}
	return &Sender{log: log, defaultScheme: defaultScheme, transports: transports}
}

func (s *Sender) Notify(ctx context.Context, owner reminder.OwnerID, payload string) error {
	scheme, address := s.Route(owner)
	transport, ok := s.transports[scheme]
	if !ok {
		return reminder.PermanentFailure(fmt.Errorf("no transport for scheme %q", scheme))
	}

	err := transport.Deliver(ctx, address, payload)
	if err != nil {
		return err
	}
	s.log.Info(
		ctx,
		"Reminder has been sent.",
		logging.Entry("owner", owner),
		logging.Entry("scheme", scheme),
	)
	return nil
}

// Route splits an owner id into a transport scheme and an address.
func (s *Sender) Route(owner reminder.OwnerID) (Scheme, string) {
	prefix, address, found := strings.Cut(string(owner), ":")
	if found && isScheme(prefix) {
		return Scheme(prefix), address
	}
	return s.defaultScheme, string(owner)
}

func isScheme(value string) bool {
	if value == "" {
		return false
	}
	for _, r := range value {
		if r < 'a' || r > 'z' {
			return false
		}
	}
	return true
}
