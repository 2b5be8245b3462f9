package decision

import (
	"time"
)

type Verdict int

const (
	// VerdictAlreadyHandled means the record was published before; it is
	// never re-evaluated.
	VerdictAlreadyHandled Verdict = iota
	// VerdictIneligible is final for this content: filtered out, degenerate
	// age, or past the tracked observation window.
	VerdictIneligible
	// VerdictIneligibleForNow failed the ratio test at this position but may
	// still qualify at a later one.
	VerdictIneligibleForNow
	// VerdictEligible passed the ratio test. Advisory only: publication
	// still requires the rate limiter's approval.
	VerdictEligible
)

func (v Verdict) String() string {
	switch v {
	case VerdictAlreadyHandled:
		return "already-handled"
	case VerdictIneligible:
		return "ineligible"
	case VerdictIneligibleForNow:
		return "ineligible-for-now"
	case VerdictEligible:
		return "eligible"
	default:
		return "unknown"
	}
}

// Input is everything the engine needs to evaluate one observation:
// the record's state after the append, the filter outcome, and the
// community's threshold table.
type Input struct {
	Posted          bool
	FilterRejected  bool
	FilterPermanent bool
	CreatedAt       time.Time
	Now             time.Time
	Score           int64
	Position        int // resulting ledger length, 1-indexed
	Thresholds      []float64
}

type Engine struct{}

func NewEngine() *Engine {
	return &Engine{}
}

// Run evaluates the decision rule in order. The ratio test compares the
// record's score-per-second of age, strictly, against the threshold for the
// current ledger position; positions beyond the table are out of the tracked
// window for good.
func (e *Engine) Run(in Input) Verdict {
	if in.Posted {
		return VerdictAlreadyHandled
	}

	if in.FilterRejected {
		if in.FilterPermanent {
			return VerdictIneligible
		}
		return VerdictIneligibleForNow
	}

	age := in.Now.Sub(in.CreatedAt)
	if age <= 0 {
		return VerdictIneligible
	}

	if in.Position > len(in.Thresholds) {
		return VerdictIneligible
	}

	ratio := float64(in.Score) / age.Seconds()
	if ratio > in.Thresholds[in.Position-1] {
		return VerdictEligible
	}

	return VerdictIneligibleForNow
}
