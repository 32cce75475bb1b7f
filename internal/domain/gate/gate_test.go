package gate_test

import (
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/proofofaesthetic/poa-engine/internal/domain/gate"
	"github.com/proofofaesthetic/poa-engine/internal/domain/model"
)

func metProgress() model.Progress {
	return model.Progress{
		HeadToHead: 8, UniqueOpponents: 5, SliderRatings: 4, UniqueSliderUsers: 3,
		MinHeadToHead: 5, MinUniqueOpponents: 3, MinSliderRatings: 2, MinUniqueSliderUsers: 2,
	}
}

func candidate(poa, confidence float64, at time.Time) model.ScoreRecord {
	return model.ScoreRecord{NFTID: "nft-1", POA: poa, Confidence: confidence, UpdatedAt: at}
}

func TestGateDecide(t *testing.T) {
	base := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

	Convey("Given a gate with default policy", t, func() {
		g := gate.New(
			gate.WithMinPOAChange(0.5),
			gate.WithGracePeriod(5*time.Minute),
			gate.WithConfidenceTiers([]float64{20, 30, 40, 50, 60, 70, 80, 90}),
		)

		Convey("When any minimum is unmet the outcome is AwaitData", func() {
			p := metProgress()
			p.HeadToHead = 4
			d := g.Decide(candidate(92, 80, base), nil, p, base)
			So(d.Outcome, ShouldEqual, gate.AwaitData)

			Convey("Even with a previously published score", func() {
				prev := candidate(50, 60, base.Add(-time.Hour))
				d := g.Decide(candidate(92, 80, base), &prev, p, base)
				So(d.Outcome, ShouldEqual, gate.AwaitData)
			})
		})

		Convey("When an NFT tops every scale but one threshold", func() {
			// Plenty of volume on three axes does not compensate the fourth.
			p := model.Progress{
				HeadToHead: 4, UniqueOpponents: 3, SliderRatings: 5, UniqueSliderUsers: 5,
				MinHeadToHead: 5, MinUniqueOpponents: 3, MinSliderRatings: 2, MinUniqueSliderUsers: 2,
			}
			d := g.Decide(candidate(99, 95, base), nil, p, base)

			Convey("Then it is never published", func() {
				So(d.Outcome, ShouldEqual, gate.AwaitData)
			})
		})

		Convey("When thresholds are met and no score was published yet", func() {
			d := g.Decide(candidate(55, 40, base), nil, metProgress(), base)

			Convey("Then the first publish goes through", func() {
				So(d.Outcome, ShouldEqual, gate.Publish)
			})
		})

		Convey("When a republish arrives inside the grace period", func() {
			prev := candidate(50, 60, base.Add(-time.Minute))
			d := g.Decide(candidate(70, 60, base), &prev, metProgress(), base)

			Convey("Then it is held regardless of the delta", func() {
				So(d.Outcome, ShouldEqual, gate.Hold)
				So(d.Reason, ShouldEqual, gate.HoldGracePeriod)
			})
		})

		Convey("When the grace period has elapsed", func() {
			prev := candidate(50, 55, base.Add(-10*time.Minute))

			Convey("A large enough delta publishes", func() {
				d := g.Decide(candidate(50.5, 55, base), &prev, metProgress(), base)
				So(d.Outcome, ShouldEqual, gate.Publish)
			})

			Convey("A negative delta of the same magnitude publishes too", func() {
				d := g.Decide(candidate(49.5, 55, base), &prev, metProgress(), base)
				So(d.Outcome, ShouldEqual, gate.Publish)
			})

			Convey("A tiny delta with no tier crossing is held", func() {
				d := g.Decide(candidate(50.2, 55, base), &prev, metProgress(), base)
				So(d.Outcome, ShouldEqual, gate.Hold)
				So(d.Reason, ShouldEqual, gate.HoldSmallChange)
			})

			Convey("A tiny delta that crosses a confidence tier publishes", func() {
				d := g.Decide(candidate(50.2, 61, base), &prev, metProgress(), base)
				So(d.Outcome, ShouldEqual, gate.Publish)
			})

			Convey("A confidence drop across a tier also publishes", func() {
				d := g.Decide(candidate(50.2, 49, base), &prev, metProgress(), base)
				So(d.Outcome, ShouldEqual, gate.Publish)
			})
		})

		Convey("When repeated small oscillations arrive after one publish", func() {
			prev := candidate(50, 55, base.Add(-10*time.Minute))
			published := 0
			for i := 0; i < 20; i++ {
				poa := 50.0
				if i%2 == 1 {
					poa = 50.3
				}
				d := g.Decide(candidate(poa, 55, base), &prev, metProgress(), base)
				if d.Outcome == gate.Publish {
					published++
				}
			}

			Convey("Then none of them republish", func() {
				So(published, ShouldEqual, 0)
			})
		})
	})

	Convey("Given a gate with a zero grace period", t, func() {
		g := gate.New(gate.WithGracePeriod(0), gate.WithMinPOAChange(0.5))

		Convey("Then only the delta and tier rules apply", func() {
			prev := candidate(50, 55, base)
			d := g.Decide(candidate(51, 55, base), &prev, metProgress(), base)
			So(d.Outcome, ShouldEqual, gate.Publish)
		})
	})
}
