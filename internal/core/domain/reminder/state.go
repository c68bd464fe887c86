package reminder

import "errors"

var ErrParseState = errors.New("invalid state")

type State struct {
	v string
}

func (s State) String() string {
	return s.v
}

// IsTerminal reports whether no further transition is possible.
func (s State) IsTerminal() bool {
	return s == StateSent || s == StateFailed
}

func ParseState(value string) (State, error) {
	switch value {
	case "pending":
		return StatePending, nil
	case "in_flight":
		return StateInFlight, nil
	case "sent":
		return StateSent, nil
	case "failed":
		return StateFailed, nil
	default:
		return StateUnknown, ErrParseState
	}
}

var (
	StateUnknown  = State{}
	StatePending  = State{v: "pending"}
	StateInFlight = State{v: "in_flight"}
	StateSent     = State{v: "sent"}
	StateFailed   = State{v: "failed"}
)

var ErrParseOutcome = errors.New("invalid outcome")

// Outcome is the result of a delivery attempt that ends the reminder's life.
type Outcome struct {
	v string
}

func (o Outcome) String() string {
	return o.v
}

// State is the terminal state the outcome leads to.
func (o Outcome) State() State {
	switch o {
	case OutcomeDelivered:
		return StateSent
	case OutcomePermanentFailure:
		return StateFailed
	default:
		return StateUnknown
	}
}

func ParseOutcome(value string) (Outcome, error) {
	switch value {
	case "delivered":
		return OutcomeDelivered, nil
	case "permanent_failure":
		return OutcomePermanentFailure, nil
	default:
		return OutcomeUnknown, ErrParseOutcome
	}
}

var (
	OutcomeUnknown          = Outcome{}
	OutcomeDelivered        = Outcome{v: "delivered"}
	OutcomePermanentFailure = Outcome{v: "permanent_failure"}
)
