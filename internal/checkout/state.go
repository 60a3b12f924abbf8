package checkout

import (
	"fmt"

	"github.com/sirupsen/logrus"
)

// State is the phase of one checkout attempt.
type State int

const (
	Idle State = iota
	Submitting
	Committed
	Failed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Submitting:
		return "submitting"
	case Committed:
		return "committed"
	case Failed:
		return "failed"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Terminal reports whether no further transition is possible.
func (s State) Terminal() bool {
	return s == Committed || s == Failed
}

// attempt tracks a single checkout through Idle -> Submitting -> {Committed, Failed}.
type attempt struct {
	state State
	log   logrus.FieldLogger
}

func newAttempt(log logrus.FieldLogger) *attempt {
	return &attempt{state: Idle, log: log}
}

func (a *attempt) allowed(next State) bool {
	switch a.state {
	case Idle:
		return next == Submitting
	case Submitting:
		return next == Committed || next == Failed
	}
	return false
}

// to moves the attempt to next. An illegal transition is a programming error.
func (a *attempt) to(next State) {
	if !a.allowed(next) {
		panic(fmt.Sprintf("checkout: illegal transition %s -> %s", a.state, next))
	}
	a.log.WithFields(logrus.Fields{"from": a.state.String(), "state": next.String()}).Debug("checkout transition")
	a.state = next
}
