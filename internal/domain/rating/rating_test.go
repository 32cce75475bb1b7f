package rating_test

import (
	"math"
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/proofofaesthetic/poa-engine/internal/domain/rating"
)

func defaultElo() rating.Elo {
	return rating.Elo{
		KFactor:             32,
		UncertaintyRef:      350,
		UncertaintyFloor:    80,
		UncertaintyDecay:    0.97,
		SuperVoteMultiplier: 2.0,
	}
}

func TestExpected(t *testing.T) {
	Convey("Given the logistic expectation", t, func() {
		Convey("Equal ratings expect an even split", func() {
			So(rating.Expected(1200, 1200), ShouldAlmostEqual, 0.5, 1e-12)
		})

		Convey("A 400-point favorite expects roughly ten-to-one odds", func() {
			So(rating.Expected(1600, 1200), ShouldAlmostEqual, 10.0/11.0, 1e-9)
		})

		Convey("Expectations of both sides sum to one", func() {
			So(rating.Expected(1340, 1180)+rating.Expected(1180, 1340), ShouldAlmostEqual, 1.0, 1e-12)
		})
	})
}

func TestEloUpdate(t *testing.T) {
	Convey("Given the Bayesian Elo update", t, func() {
		elo := defaultElo()

		Convey("When two equal NFTs play and A wins", func() {
			meanA, sigmaA := elo.Update(1200, 350, 1200, 1.0, false)
			meanB, sigmaB := elo.Update(1200, 350, 1200, 0.0, false)

			Convey("Then the winner goes up and the loser down symmetrically", func() {
				So(meanA, ShouldBeGreaterThan, 1200)
				So(meanB, ShouldBeLessThan, 1200)
				So(meanA-1200, ShouldAlmostEqual, 1200-meanB, 1e-9)
			})

			Convey("And both uncertainties decay", func() {
				So(sigmaA, ShouldAlmostEqual, 350*0.97, 1e-9)
				So(sigmaB, ShouldAlmostEqual, 350*0.97, 1e-9)
			})
		})

		Convey("When the same outcome arrives with a settled rating", func() {
			freshMean, _ := elo.Update(1200, 350, 1200, 1.0, false)
			settledMean, _ := elo.Update(1200, 100, 1200, 1.0, false)

			Convey("Then the settled rating moves less", func() {
				So(settledMean-1200, ShouldBeLessThan, freshMean-1200)
			})
		})

		Convey("When the vote is fire-flagged", func() {
			plain, _ := elo.Update(1200, 350, 1200, 1.0, false)
			super, _ := elo.Update(1200, 350, 1200, 1.0, true)

			Convey("Then the super vote moves exactly twice as far", func() {
				So(super-1200, ShouldAlmostEqual, 2*(plain-1200), 1e-9)
			})
		})

		Convey("When uncertainty decays over many votes", func() {
			sigma := 350.0
			prev := sigma
			for i := 0; i < 200; i++ {
				_, sigma = elo.Update(1200, sigma, 1200, 0.5, false)
				So(sigma, ShouldBeLessThanOrEqualTo, prev)
				prev = sigma
			}

			Convey("Then it settles on the floor and never crosses it", func() {
				So(sigma, ShouldAlmostEqual, 80, 1e-9)
			})
		})

		Convey("When a tie is recorded between unequal ratings", func() {
			mean, _ := elo.Update(1400, 350, 1200, 0.5, false)

			Convey("Then the favorite loses ground", func() {
				So(mean, ShouldBeLessThan, 1400)
			})
		})
	})
}

func TestWelford(t *testing.T) {
	Convey("Given a streaming Welford accumulator", t, func() {
		Convey("When observations are folded in", func() {
			var w rating.Welford
			xs := []float64{62, 71, 55, 80, 66, 59}
			for _, x := range xs {
				w = w.Add(x)
			}

			Convey("Then the mean matches the batch mean", func() {
				sum := 0.0
				for _, x := range xs {
					sum += x
				}
				So(w.Mean, ShouldAlmostEqual, sum/float64(len(xs)), 1e-9)
			})

			Convey("And the variance matches the batch population variance", func() {
				mean := w.Mean
				ss := 0.0
				for _, x := range xs {
					ss += (x - mean) * (x - mean)
				}
				So(w.Variance(), ShouldAlmostEqual, ss/float64(len(xs)), 1e-9)
				So(w.Std(), ShouldAlmostEqual, math.Sqrt(ss/float64(len(xs))), 1e-9)
			})
		})

		Convey("With fewer than two observations variance is zero", func() {
			var w rating.Welford
			So(w.Variance(), ShouldEqual, 0)
			w = w.Add(42)
			So(w.Variance(), ShouldEqual, 0)
			So(w.Mean, ShouldAlmostEqual, 42, 1e-12)
		})

		Convey("Replaying the history reproduces the incremental state", func() {
			incremental := rating.Welford{}
			xs := []float64{10, 20, 30, 25, 90, 5, 44}
			for _, x := range xs {
				incremental = incremental.Add(x)
			}

			replayed := rating.Welford{}
			for _, x := range xs {
				replayed = replayed.Add(x)
			}

			So(replayed.Count, ShouldEqual, incremental.Count)
			So(replayed.Mean, ShouldAlmostEqual, incremental.Mean, 1e-12)
			So(replayed.M2, ShouldAlmostEqual, incremental.M2, 1e-9)
		})
	})
}

func TestNormalizeSlider(t *testing.T) {
	Convey("Given slider normalization", t, func() {
		Convey("A rater without history passes the raw value through", func() {
			So(rating.NormalizeSlider(73, 0, 0, 0), ShouldAlmostEqual, 73, 1e-12)
			So(rating.NormalizeSlider(73, 80, 10, 2), ShouldAlmostEqual, 73, 1e-12)
		})

		Convey("A rater with a flat history passes the raw value through", func() {
			So(rating.NormalizeSlider(73, 73, 0, 10), ShouldAlmostEqual, 73, 1e-12)
		})

		Convey("A calibrated harsh rater gets re-centered", func() {
			// Mean 30, std 10: a raw 40 is one std above their norm.
			got := rating.NormalizeSlider(40, 30, 10, 20)
			So(got, ShouldAlmostEqual, 70, 1e-9)
		})

		Convey("A calibrated generous rater gets pulled down", func() {
			// Mean 85, std 5: a raw 80 is one std below their norm.
			got := rating.NormalizeSlider(80, 85, 5, 20)
			So(got, ShouldAlmostEqual, 30, 1e-9)
		})

		Convey("Extreme z-scores clamp to the scale", func() {
			So(rating.NormalizeSlider(100, 10, 5, 20), ShouldEqual, 100)
			So(rating.NormalizeSlider(0, 90, 5, 20), ShouldEqual, 0)
		})
	})
}

func TestUpdateReliability(t *testing.T) {
	Convey("Given the reliability EMA", t, func() {
		const (
			step    = 0.1
			floor   = 0.5
			ceiling = 2.0
		)

		Convey("Agreement pulls reliability upward", func() {
			next := rating.UpdateReliability(1.0, true, 1.0, step, floor, ceiling)
			So(next, ShouldBeGreaterThan, 1.0)
		})

		Convey("Disagreement pulls reliability downward", func() {
			next := rating.UpdateReliability(1.0, false, 1.0, step, floor, ceiling)
			So(next, ShouldBeLessThan, 1.0)
		})

		Convey("Repeated disagreement converges to the floor without crossing it", func() {
			r := 1.5
			for i := 0; i < 500; i++ {
				r = rating.UpdateReliability(r, false, 1.0, step, floor, ceiling)
				So(r, ShouldBeGreaterThanOrEqualTo, floor)
			}
			So(r, ShouldAlmostEqual, floor, 1e-6)
		})

		Convey("Repeated agreement converges toward the target below the ceiling", func() {
			r := 0.5
			for i := 0; i < 500; i++ {
				r = rating.UpdateReliability(r, true, 1.0, step, floor, ceiling)
				So(r, ShouldBeLessThanOrEqualTo, ceiling)
			}
			So(r, ShouldAlmostEqual, 1.4, 1e-6)
		})

		Convey("A lower weight moves reliability more slowly", func() {
			full := rating.UpdateReliability(1.0, true, 1.0, step, floor, ceiling)
			half := rating.UpdateReliability(1.0, true, 0.5, step, floor, ceiling)
			So(half-1.0, ShouldAlmostEqual, (full-1.0)/2, 1e-12)
		})
	})
}

func TestFireComponent(t *testing.T) {
	Convey("Given the fire transform", t, func() {
		Convey("Zero fire rate maps to zero", func() {
			So(rating.FireComponent(0), ShouldEqual, 0)
		})

		Convey("It is monotone in the rate", func() {
			prev := -1.0
			for _, r := range []float64{0, 0.1, 0.25, 0.5, 0.75, 1.0} {
				got := rating.FireComponent(r)
				So(got, ShouldBeGreaterThan, prev)
				prev = got
			}
		})

		Convey("It saturates strictly below 100", func() {
			So(rating.FireComponent(1.0), ShouldBeLessThan, 100)
			So(rating.FireComponent(1.0), ShouldBeGreaterThan, 98)
		})

		Convey("Out-of-range rates are clamped", func() {
			So(rating.FireComponent(-0.5), ShouldEqual, 0)
			So(rating.FireComponent(2.0), ShouldAlmostEqual, rating.FireComponent(1.0), 1e-12)
		})
	})
}

func TestEloComponent(t *testing.T) {
	Convey("Given the Elo component mapping", t, func() {
		Convey("The initial mean lands at the middle of the scale", func() {
			So(rating.EloComponent(1200, 1200), ShouldAlmostEqual, 50, 1e-12)
		})

		Convey("400 points above saturates at 100", func() {
			So(rating.EloComponent(1600, 1200), ShouldEqual, 100)
			So(rating.EloComponent(2000, 1200), ShouldEqual, 100)
		})

		Convey("400 points below saturates at 0", func() {
			So(rating.EloComponent(800, 1200), ShouldEqual, 0)
		})
	})
}

func TestComposite(t *testing.T) {
	Convey("Given the composite POA formula", t, func() {
		base := rating.CompositeInput{
			EloComponent:      60,
			EloUncertainty:    200,
			SliderComponent:   70,
			HasSlider:         true,
			SliderCount:       10,
			FireComponent:     20,
			ReliabilityFactor: 1.0,
			EloWeight:         0.5,
			SliderWeight:      0.35,
			FireWeight:        0.15,
			UncertaintyRef:    350,
			UncertaintyFloor:  80,
		}

		Convey("The score stays within the scale", func() {
			poa, confidence := rating.Composite(base)
			So(poa, ShouldBeGreaterThanOrEqualTo, 0)
			So(poa, ShouldBeLessThanOrEqualTo, 100)
			So(confidence, ShouldBeGreaterThanOrEqualTo, 0)
			So(confidence, ShouldBeLessThan, 100)
		})

		Convey("With unit reliability the weights apply directly", func() {
			poa, _ := rating.Composite(base)
			So(poa, ShouldAlmostEqual, 0.5*60+0.35*70+0.15*20, 1e-9)
		})

		Convey("Without slider data the slider weight is redistributed", func() {
			in := base
			in.HasSlider = false
			in.SliderCount = 0
			poa, _ := rating.Composite(in)
			// Elo and fire shares renormalized over 0.65.
			want := (0.5*60 + 0.15*20) / 0.65
			So(poa, ShouldAlmostEqual, want, 1e-9)
		})

		Convey("Unreliable raters shrink the slider share", func() {
			trusted, _ := rating.Composite(base)
			in := base
			in.ReliabilityFactor = 0.5
			distrusted, _ := rating.Composite(in)
			// Slider is above the other components here, so discounting the
			// raters pulls the composite down.
			So(distrusted, ShouldBeLessThan, trusted)
		})

		Convey("The reliability factor is clamped on both ends", func() {
			lo := base
			lo.ReliabilityFactor = 0.01
			loFloor := base
			loFloor.ReliabilityFactor = 0.5
			gotLo, _ := rating.Composite(lo)
			wantLo, _ := rating.Composite(loFloor)
			So(gotLo, ShouldAlmostEqual, wantLo, 1e-12)

			hi := base
			hi.ReliabilityFactor = 9.0
			hiCeil := base
			hiCeil.ReliabilityFactor = 1.5
			gotHi, _ := rating.Composite(hi)
			wantHi, _ := rating.Composite(hiCeil)
			So(gotHi, ShouldAlmostEqual, wantHi, 1e-12)
		})

		Convey("Confidence grows as uncertainty shrinks", func() {
			unsettled := base
			unsettled.EloUncertainty = 340
			settled := base
			settled.EloUncertainty = 90
			_, cLow := rating.Composite(unsettled)
			_, cHigh := rating.Composite(settled)
			So(cHigh, ShouldBeGreaterThan, cLow)
		})

		Convey("Confidence grows with slider sample size", func() {
			few := base
			few.SliderCount = 2
			many := base
			many.SliderCount = 50
			_, cFew := rating.Composite(few)
			_, cMany := rating.Composite(many)
			So(cMany, ShouldBeGreaterThan, cFew)
		})

		Convey("Even at the uncertainty floor confidence never reaches 100", func() {
			in := base
			in.EloUncertainty = 80
			in.SliderCount = 1_000_000
			_, c := rating.Composite(in)
			So(c, ShouldBeLessThan, 100)
		})
	})
}
