// Package score derives candidate score records from NFT statistics.
//
// The engine is a pure function of the statistics it is given: recomputing
// on unchanged input yields an identical record. It never writes to the
// published score store; that is the publish gate's job.
package score

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/proofofaesthetic/poa-engine/internal/domain/model"
	"github.com/proofofaesthetic/poa-engine/internal/domain/rating"
)

// ErrComputation marks a composite result that came out non-finite. The
// caller must leave the previously published score untouched and requeue
// the NFT instead of publishing a corrupted record.
var ErrComputation = errors.New("score computation failed")

// Engine turns NFT statistics into candidate score records.
type Engine struct {
	eloWeight    float64
	sliderWeight float64
	fireWeight   float64

	initialEloMean        float64
	initialEloUncertainty float64
	uncertaintyFloor      float64

	provisionalConfidence float64
}

// Option applies a configuration option to the Engine.
type Option func(*Engine)

// WithWeights sets the component weights (already validated to sum to 1).
func WithWeights(elo, slider, fire float64) Option {
	return func(e *Engine) {
		e.eloWeight = elo
		e.sliderWeight = slider
		e.fireWeight = fire
	}
}

// WithEloBounds sets the initial mean and the uncertainty range used for
// component normalization and confidence.
func WithEloBounds(initialMean, initialUncertainty, uncertaintyFloor float64) Option {
	return func(e *Engine) {
		if initialUncertainty > 0 {
			e.initialEloMean = initialMean
			e.initialEloUncertainty = initialUncertainty
		}
		if uncertaintyFloor > 0 {
			e.uncertaintyFloor = uncertaintyFloor
		}
	}
}

// WithProvisionalConfidence sets the confidence below which a published
// score is flagged provisional.
func WithProvisionalConfidence(c float64) Option {
	return func(e *Engine) {
		if c >= 0 {
			e.provisionalConfidence = c
		}
	}
}

// NewEngine creates an engine with default parameters.
func NewEngine(opts ...Option) *Engine {
	e := &Engine{
		eloWeight:             0.5,
		sliderWeight:          0.35,
		fireWeight:            0.15,
		initialEloMean:        1200,
		initialEloUncertainty: 350,
		uncertaintyFloor:      80,
		provisionalConfidence: 50,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Compute produces a candidate score record for the given statistics.
// The now argument only stamps UpdatedAt; the numeric output depends on
// stats alone.
func (e *Engine) Compute(stats model.NFTStats, now time.Time) (model.ScoreRecord, error) {
	eloComp := rating.EloComponent(stats.EloMean, e.initialEloMean)

	sliderComp := 0.0
	if stats.HasSliderData() {
		sliderComp = stats.SliderMean
	}

	fireComp := rating.FireComponent(stats.FireRate())

	poa, confidence := rating.Composite(rating.CompositeInput{
		EloComponent:      eloComp,
		EloUncertainty:    stats.EloUncertainty,
		SliderComponent:   sliderComp,
		HasSlider:         stats.HasSliderData(),
		SliderCount:       stats.SliderCount,
		FireComponent:     fireComp,
		ReliabilityFactor: stats.MeanRaterReliability(),
		EloWeight:         e.eloWeight,
		SliderWeight:      e.sliderWeight,
		FireWeight:        e.fireWeight,
		UncertaintyRef:    e.initialEloUncertainty,
		UncertaintyFloor:  e.uncertaintyFloor,
	})

	for _, v := range []float64{eloComp, sliderComp, fireComp, poa, confidence} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return model.ScoreRecord{}, fmt.Errorf("%w: non-finite component for nft %s", ErrComputation, stats.ID)
		}
	}

	return model.ScoreRecord{
		NFTID:           stats.ID,
		POA:             poa,
		Confidence:      confidence,
		Provisional:     confidence < e.provisionalConfidence,
		EloComponent:    eloComp,
		SliderComponent: sliderComp,
		FireComponent:   fireComp,
		UpdatedAt:       now,
	}, nil
}
