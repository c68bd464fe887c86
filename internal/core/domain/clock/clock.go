// Package clock supplies absolute instants and their display projection.
//
// All comparisons in the scheduler are done on UTC instants truncated to
// milliseconds, which is the precision every store backend keeps.
package clock

import (
	"time"
	_ "time/tzdata"

	"github.com/golang-module/carbon/v2"
)

const Precision = time.Millisecond

// Now returns the current instant in UTC at store precision.
func Now() time.Time {
	return Normalize(time.Now())
}

// Normalize converts t to the representation used for comparisons.
func Normalize(t time.Time) time.Time {
	return t.UTC().Truncate(Precision)
}

// FromUnixMilli restores an instant persisted as epoch milliseconds.
func FromUnixMilli(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}

// Remaining is the time left until due, never negative.
func Remaining(due time.Time, now time.Time) time.Duration {
	d := due.Sub(now)
	if d < 0 {
		return 0
	}
	return d
}

type Projector struct {
	timezone string
}

func NewProjector(timezone string) (*Projector, error) {
	if timezone == "" {
		timezone = carbon.UTC
	}
	if _, err := time.LoadLocation(timezone); err != nil {
		return nil, err
	}
	return &Projector{timezone: timezone}, nil
}

func (p *Projector) Timezone() string {
	return p.timezone
}

// Local renders t in the projector's time zone. The result is for display only.
func (p *Projector) Local(t time.Time) string {
	return carbon.Time2Carbon(t).SetTimezone(p.timezone).ToDateTimeString()
}
