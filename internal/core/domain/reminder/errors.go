package reminder

import "errors"

var (
	ErrReminderDoesNotExist = errors.New("reminder does not exist")
	ErrEmptyOwner           = errors.New("owner must not be empty")
	ErrEmptyPayload         = errors.New("payload must not be empty")
	ErrPayloadTooLong       = errors.New("payload is too long")
	ErrPayloadNotUTF8       = errors.New("payload must be valid UTF-8")
	ErrNoOffsets            = errors.New("at least one offset is required")
	ErrDuplicateOffsets     = errors.New("offsets must be unique")
)

// IsInvalidInput reports whether err was caused by the caller's input.
func IsInvalidInput(err error) bool {
	return errors.Is(err, ErrEmptyOwner) ||
		errors.Is(err, ErrEmptyPayload) ||
		errors.Is(err, ErrPayloadTooLong) ||
		errors.Is(err, ErrPayloadNotUTF8)
}
