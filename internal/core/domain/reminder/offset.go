package reminder

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

var (
	ErrParseOffset   = errors.New("invalid offset string")
	ErrInvalidOffset = errors.New("invalid offset")
)

const (
	Day = 24 * time.Hour

	MIN_OFFSET = time.Second
	MAX_OFFSET = 5 * 366 * Day
)

// Offset is the delay between a submission and one of its deliveries.
type Offset struct {
	d time.Duration
}

func NewOffset(d time.Duration) Offset {
	return Offset{d: d}
}

func Days(n int) Offset {
	return Offset{d: time.Duration(n) * Day}
}

// OffsetFromMilliseconds restores an offset persisted as milliseconds.
func OffsetFromMilliseconds(ms int64) Offset {
	return Offset{d: time.Duration(ms) * time.Millisecond}
}

func (o Offset) Duration() time.Duration {
	return o.d
}

func (o Offset) Milliseconds() int64 {
	return o.d.Milliseconds()
}

func (o Offset) IsZero() bool {
	return o.d == 0
}

func (o Offset) String() string {
	switch {
	case o.d == 0:
		return "0s"
	case o.d%Day == 0:
		return fmt.Sprintf("%dd", o.d/Day)
	case o.d%time.Hour == 0:
		return fmt.Sprintf("%dh", o.d/time.Hour)
	case o.d%time.Minute == 0:
		return fmt.Sprintf("%dm", o.d/time.Minute)
	default:
		return o.d.String()
	}
}

func (o Offset) Validate() error {
	if o.d < MIN_OFFSET || o.d > MAX_OFFSET {
		return ErrInvalidOffset
	}
	if o.d%time.Millisecond != 0 {
		return ErrInvalidOffset
	}
	return nil
}

// DueFrom is the due instant of a reminder created at t.
func (o Offset) DueFrom(t time.Time) time.Time {
	return t.Add(o.d)
}

// ParseOffset accepts "<n>d" for whole days or any time.ParseDuration string.
func ParseOffset(value string) (o Offset, err error) {
	value = strings.TrimSpace(value)
	if strings.HasSuffix(value, "d") {
		n, err := strconv.ParseUint(strings.TrimSuffix(value, "d"), 10, 16)
		if err != nil {
			return o, ErrParseOffset
		}
		o = Days(int(n))
	} else {
		d, err := time.ParseDuration(value)
		if err != nil {
			return o, ErrParseOffset
		}
		o = NewOffset(d)
	}
	if err := o.Validate(); err != nil {
		return Offset{}, err
	}
	return o, nil
}

func (o *Offset) UnmarshalText(text []byte) error {
	parsed, err := ParseOffset(string(text))
	if err != nil {
		return fmt.Errorf("%w: %q", err, string(text))
	}
	*o = parsed
	return nil
}

func (o Offset) MarshalText() ([]byte, error) {
	return []byte(o.String()), nil
}

// DefaultOffsets is the classic spaced-repetition schedule.
func DefaultOffsets() []Offset {
	return []Offset{Days(1), Days(3), Days(7), Days(30)}
}
