package scraper

import (
	"time"

	"imobot/models"
)

// OutcomeKind tags the result of one fetch attempt.
type OutcomeKind int

const (
	OutcomeOK OutcomeKind = iota
	OutcomeTransient
	OutcomeBlocked
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeOK:
		return "ok"
	case OutcomeBlocked:
		return "blocked"
	default:
		return "transient"
	}
}

// Outcome is the tagged result of a single attempt.
type Outcome struct {
	Kind      OutcomeKind
	Class     FailureClass
	Err       error
	Records   []*models.Listing
	Extractor string
}

// Action is what the worker does after an attempt.
type Action int

const (
	ActionFinish Action = iota
	ActionRetry
	ActionRestartAndRetry
	ActionGiveUp
)

func (a Action) String() string {
	return [...]string{"finish", "retry", "restart+retry", "give-up"}[a]
}

// RetryPolicy bounds the attempts for one target. All failure classes share
// the same budget.
type RetryPolicy struct {
	MaxAttempts int
	Delay       time.Duration
}

// Next decides what follows attempt (1-based) given its outcome. Blocked and
// successful outcomes finish immediately; a restart is only issued for a
// connection-class failure with budget left.
func (p RetryPolicy) Next(attempt int, o Outcome) Action {
	switch o.Kind {
	case OutcomeOK, OutcomeBlocked:
		return ActionFinish
	}
	if attempt >= p.maxAttempts() {
		return ActionGiveUp
	}
	if o.Class == ClassConnection {
		return ActionRestartAndRetry
	}
	return ActionRetry
}

func (p RetryPolicy) maxAttempts() int {
	if p.MaxAttempts < 1 {
		return 1
	}
	return p.MaxAttempts
}
