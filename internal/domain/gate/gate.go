// Package gate decides whether a freshly computed score record may
// overwrite the publicly visible one.
//
// Per NFT the gate walks NO_SCORE -> AWAITING_DATA -> PUBLISHED and then
// cycles through republish decisions. A high candidate score computed from
// sparse data is never surfaced: until every minimum-data threshold is met
// the outcome is AwaitData regardless of the candidate's magnitude.
package gate

import (
	"time"

	"github.com/proofofaesthetic/poa-engine/internal/domain/model"
)

// Outcome is the gate's verdict for one candidate.
type Outcome int

const (
	// AwaitData: minimum-data thresholds unmet; nothing is published.
	AwaitData Outcome = iota
	// Publish: commit the candidate to the published score store.
	Publish
	// Hold: thresholds met but the candidate is not worth a republish
	// (change too small, no tier crossing, or inside the grace period).
	Hold
)

// HoldReason explains a Hold outcome, for observability.
type HoldReason string

const (
	HoldNone        HoldReason = ""
	HoldGracePeriod HoldReason = "grace_period"
	HoldSmallChange HoldReason = "small_change"
)

// Decision carries the outcome and, for holds, the reason.
type Decision struct {
	Outcome Outcome
	Reason  HoldReason
}

// Gate evaluates publish policy. It is pure: the same candidate, previous
// record, progress and clock always produce the same decision.
type Gate struct {
	minPOAChange    float64
	gracePeriod     time.Duration
	confidenceTiers []float64
}

// Option applies a configuration option to the Gate.
type Option func(*Gate)

// WithMinPOAChange sets the smallest score delta worth republishing.
func WithMinPOAChange(d float64) Option {
	return func(g *Gate) {
		if d >= 0 {
			g.minPOAChange = d
		}
	}
}

// WithGracePeriod sets the debounce window between publishes per NFT.
func WithGracePeriod(d time.Duration) Option {
	return func(g *Gate) {
		if d >= 0 {
			g.gracePeriod = d
		}
	}
}

// WithConfidenceTiers sets the ascending tier cut points.
func WithConfidenceTiers(tiers []float64) Option {
	return func(g *Gate) {
		if len(tiers) > 0 {
			g.confidenceTiers = append([]float64(nil), tiers...)
		}
	}
}

// New creates a Gate with default policy.
func New(opts ...Option) *Gate {
	g := &Gate{
		minPOAChange:    0.5,
		gracePeriod:     5 * time.Minute,
		confidenceTiers: []float64{20, 30, 40, 50, 60, 70, 80, 90},
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Decide evaluates one candidate. prev is nil when the NFT has no published
// score yet. prev.UpdatedAt must come from the latest committed record so
// two concurrent recomputations cannot both see an elapsed grace period.
func (g *Gate) Decide(candidate model.ScoreRecord, prev *model.ScoreRecord, progress model.Progress, now time.Time) Decision {
	if !progress.Met() {
		return Decision{Outcome: AwaitData}
	}

	if prev == nil {
		// First publish: thresholds are the only barrier.
		return Decision{Outcome: Publish}
	}

	if now.Sub(prev.UpdatedAt) < g.gracePeriod {
		return Decision{Outcome: Hold, Reason: HoldGracePeriod}
	}

	delta := candidate.POA - prev.POA
	if delta < 0 {
		delta = -delta
	}
	if delta >= g.minPOAChange {
		return Decision{Outcome: Publish}
	}
	if g.tierOf(candidate.Confidence) != g.tierOf(prev.Confidence) {
		return Decision{Outcome: Publish}
	}
	return Decision{Outcome: Hold, Reason: HoldSmallChange}
}

// tierOf returns the index of the highest tier boundary at or below c;
// -1 below the first boundary.
func (g *Gate) tierOf(c float64) int {
	tier := -1
	for i, boundary := range g.confidenceTiers {
		if c >= boundary {
			tier = i
		}
	}
	return tier
}
