package reminder

import (
	"context"
	"errors"
)

// Notifier delivers a payload to its owner.
//
// A nil error means the payload was delivered. Errors built with
// PermanentFailure stop retries, any other error is retried after the
// claim lease expires.
type Notifier interface {
	Notify(ctx context.Context, owner OwnerID, payload string) error
}

type permanentFailure struct {
	err error
}

func (f *permanentFailure) Error() string {
	return "permanent delivery failure: " + f.err.Error()
}

func (f *permanentFailure) Unwrap() error {
	return f.err
}

func PermanentFailure(err error) error {
	if err == nil {
		return nil
	}
	return &permanentFailure{err: err}
}

func IsPermanentFailure(err error) bool {
	var f *permanentFailure
	return errors.As(err, &f)
}
