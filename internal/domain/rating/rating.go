// Package rating holds the stateless numeric primitives behind the POA
// score: the Bayesian Elo update, slider normalization, the streaming
// Welford accumulator, the reliability EMA, the fire transform, and the
// composite formula. Everything here is pure and deterministic.
package rating

import "math"

// Numeric bounds shared by the primitives.
const (
	scaleMin = 0.0
	scaleMax = 100.0

	// sliderCenter and sliderSpread re-map a z-scored rating back onto the
	// 0-100 scale.
	sliderCenter = 50.0
	sliderSpread = 20.0

	// minCalibrationCount is how many ratings a user needs before their
	// personal calibration is trusted over the raw value.
	minCalibrationCount = 3

	// minCalibrationStd guards the z-score against a near-constant history.
	minCalibrationStd = 1e-6

	// reliabilityAgreeTarget is where repeated consensus agreement pulls a
	// user's reliability.
	reliabilityAgreeTarget = 1.4

	// fireSaturation tempers the fire-rate transform; tanh keeps it
	// monotone and strictly below the top of the scale.
	fireSaturation = 2.5

	// confidence blend: uncertainty shrink dominates, slider sample size
	// fills in the rest. sliderSampleHalf is the count at which the sample
	// term reaches one half.
	confidenceEloShare    = 0.7
	confidenceSliderShare = 0.3
	sliderSampleHalf      = 3.0
)

// Elo bundles the parameters of the Bayesian Elo update rule.
type Elo struct {
	// KFactor is the base step size, scaled by current uncertainty.
	KFactor float64
	// UncertaintyRef normalizes the K scaling; conventionally the initial
	// uncertainty, so a fresh NFT moves at full K.
	UncertaintyRef float64
	// UncertaintyFloor bounds uncertainty from below.
	UncertaintyFloor float64
	// UncertaintyDecay multiplies uncertainty per vote, in (0, 1].
	UncertaintyDecay float64
	// SuperVoteMultiplier boosts K for fire-flagged votes.
	SuperVoteMultiplier float64
}

// Expected is the standard logistic expected score of a player with rating
// mean against oppMean.
func Expected(mean, oppMean float64) float64 {
	return 1.0 / (1.0 + math.Pow(10, (oppMean-mean)/400.0))
}

// Update applies one head-to-head outcome (1 win, 0.5 tie, 0 loss) to a
// rating and returns the new mean and uncertainty. K grows with the current
// uncertainty so unsettled ratings move faster, and uncertainty decays
// geometrically toward the floor.
func (e Elo) Update(mean, sigma, oppMean, outcome float64, super bool) (newMean, newSigma float64) {
	expected := Expected(mean, oppMean)

	k := e.KFactor
	if e.UncertaintyRef > 0 {
		k *= sigma / e.UncertaintyRef
	}
	if super {
		k *= e.SuperVoteMultiplier
	}

	newMean = mean + k*(outcome-expected)
	newSigma = math.Max(e.UncertaintyFloor, sigma*e.UncertaintyDecay)
	return newMean, newSigma
}

// Welford is a streaming mean/variance accumulator. The value receiver makes
// every update a pure fold step: replaying the full history from a zero
// Welford reproduces the incrementally maintained state.
type Welford struct {
	Count int64
	Mean  float64
	M2    float64
}

// Add folds one observation into the accumulator.
func (w Welford) Add(x float64) Welford {
	w.Count++
	delta := x - w.Mean
	w.Mean += delta / float64(w.Count)
	w.M2 += delta * (x - w.Mean)
	return w
}

// Variance is the population variance of the observations so far.
func (w Welford) Variance() float64 {
	if w.Count < 2 {
		return 0
	}
	return w.M2 / float64(w.Count)
}

// Std is the population standard deviation.
func (w Welford) Std() float64 {
	return math.Sqrt(w.Variance())
}

// NormalizeSlider maps a raw 0-100 rating onto the absolute scale by
// z-scoring it against the rater's personal calibration, so a user who
// always rates high or low does not distort the aggregate. Until the user
// has enough history the raw value passes through unchanged.
func NormalizeSlider(raw, userMean, userStd float64, userCount int64) float64 {
	if userCount < minCalibrationCount || userStd < minCalibrationStd {
		return clamp(raw, scaleMin, scaleMax)
	}
	z := (raw - userMean) / userStd
	return clamp(sliderCenter+z*sliderSpread, scaleMin, scaleMax)
}

// UpdateReliability moves a user's reliability toward the agreement target
// on consensus agreement and toward the floor on disagreement. The step is
// an exponential moving update scaled by weight, clamped to [floor, ceiling].
func UpdateReliability(current float64, agreed bool, weight, step, floor, ceiling float64) float64 {
	target := floor
	if agreed {
		target = reliabilityAgreeTarget
	}
	next := current + step*weight*(target-current)
	return clamp(next, floor, ceiling)
}

// FireComponent maps fire-votes-per-total onto 0-100 with a saturating tanh
// so a handful of fire votes cannot dominate the composite.
func FireComponent(fireRate float64) float64 {
	r := clamp(fireRate, 0, 1)
	return scaleMax * math.Tanh(fireSaturation*r)
}

// EloComponent normalizes an Elo mean onto 0-100 around the initial mean,
// saturating at +-400 points.
func EloComponent(eloMean, initialMean float64) float64 {
	return clamp((eloMean-(initialMean-400))/800*scaleMax, scaleMin, scaleMax)
}

// CompositeInput carries everything the POA formula consumes.
type CompositeInput struct {
	EloComponent    float64
	EloUncertainty  float64
	SliderComponent float64
	HasSlider       bool
	SliderCount     int64
	FireComponent   float64

	// ReliabilityFactor is the mean reliability of the raters behind the
	// slider component; it modulates how much the slider share counts.
	ReliabilityFactor float64

	// Weights and uncertainty bounds from configuration.
	EloWeight        float64
	SliderWeight     float64
	FireWeight       float64
	UncertaintyRef   float64
	UncertaintyFloor float64
}

// Composite combines the three components into the bounded POA value and a
// confidence estimate. With no slider data the slider share is redistributed
// rather than treated as zero. Confidence grows asymptotically with data and
// never reaches 100.
func Composite(in CompositeInput) (poa, confidence float64) {
	wElo, wSlider, wFire := in.EloWeight, in.SliderWeight, in.FireWeight

	if !in.HasSlider {
		wSlider = 0
	} else {
		// A score rated by unreliable users counts for less; one rated by
		// proven users for slightly more. The factor is clamped so even a
		// floored cohort keeps some influence.
		wSlider *= clamp(in.ReliabilityFactor, 0.5, 1.5)
	}

	total := wElo + wSlider + wFire
	if total <= 0 {
		return 0, 0
	}
	wElo /= total
	wSlider /= total
	wFire /= total

	poa = wElo*in.EloComponent + wSlider*in.SliderComponent + wFire*in.FireComponent
	poa = clamp(poa, scaleMin, scaleMax)

	confidence = scaleMax * (confidenceEloShare*uncertaintyShrink(in.EloUncertainty, in.UncertaintyRef, in.UncertaintyFloor) +
		confidenceSliderShare*sampleTerm(in.SliderCount))
	confidence = clamp(confidence, scaleMin, scaleMax)
	return poa, confidence
}

// uncertaintyShrink maps sigma in [floor, ref] onto [0, 1): 0 at the initial
// uncertainty, approaching but never reaching 1 at the floor.
func uncertaintyShrink(sigma, ref, floor float64) float64 {
	if ref <= floor {
		return 0
	}
	s := clamp(sigma, floor, ref)
	shrink := (ref - s) / (ref - floor)
	// Cap strictly below 1 so confidence stays asymptotic even at the floor.
	return math.Min(shrink, 0.999)
}

// sampleTerm grows from 0 toward 1 with slider sample size.
func sampleTerm(n int64) float64 {
	if n <= 0 {
		return 0
	}
	return float64(n) / (float64(n) + sliderSampleHalf)
}

func clamp(x, lo, hi float64) float64 {
	if x < lo {
		return lo
	}
	if x > hi {
		return hi
	}
	return x
}
