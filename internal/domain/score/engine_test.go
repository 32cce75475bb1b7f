package score_test

import (
	"errors"
	"math"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/proofofaesthetic/poa-engine/internal/domain/model"
	"github.com/proofofaesthetic/poa-engine/internal/domain/score"
)

func ratedStats(id string) model.NFTStats {
	s := model.NewNFTStats(id, 1200, 350, time.Date(2026, 3, 14, 11, 0, 0, 0, time.UTC))
	s.EloMean = 1350
	s.EloUncertainty = 150
	s.HeadToHeadVotes = 20
	s.Wins = 14
	s.Losses = 6
	s.SliderMean = 72
	s.SliderCount = 12
	s.SliderWeight = 12
	s.FireCount = 3
	s.TotalVotes = 32
	return s
}

func TestEngineCompute(t *testing.T) {
	Convey("Given a score engine with default parameters", t, func() {
		engine := score.NewEngine()
		now := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

		Convey("When computing a record for a well-rated NFT", func() {
			rec, err := engine.Compute(ratedStats("nft-1"), now)

			Convey("Then the record is complete and bounded", func() {
				So(err, ShouldBeNil)
				So(rec.NFTID, ShouldEqual, "nft-1")
				So(rec.POA, ShouldBeGreaterThanOrEqualTo, 0)
				So(rec.POA, ShouldBeLessThanOrEqualTo, 100)
				So(rec.Confidence, ShouldBeGreaterThan, 0)
				So(rec.Confidence, ShouldBeLessThan, 100)
				So(rec.UpdatedAt, ShouldEqual, now)
			})
		})

		Convey("When computing twice on identical statistics", func() {
			a, errA := engine.Compute(ratedStats("nft-1"), now)
			b, errB := engine.Compute(ratedStats("nft-1"), now)

			Convey("Then the records are identical", func() {
				So(errA, ShouldBeNil)
				So(errB, ShouldBeNil)
				So(a, ShouldResemble, b)
			})
		})

		Convey("When the NFT has no slider data", func() {
			s := ratedStats("nft-2")
			s.SliderCount = 0
			s.SliderMean = 0
			s.SliderWeight = 0
			rec, err := engine.Compute(s, now)

			Convey("Then the slider component is zero but the score is not", func() {
				So(err, ShouldBeNil)
				So(rec.SliderComponent, ShouldEqual, 0)
				So(rec.POA, ShouldBeGreaterThan, 0)
			})
		})

		Convey("When confidence is low", func() {
			s := model.NewNFTStats("nft-3", 1200, 350, now)
			s.HeadToHeadVotes = 5
			s.TotalVotes = 5
			rec, err := engine.Compute(s, now)

			Convey("Then the record is flagged provisional", func() {
				So(err, ShouldBeNil)
				So(rec.Confidence, ShouldBeLessThan, 50)
				So(rec.Provisional, ShouldBeTrue)
			})
		})

		Convey("When the statistics are corrupted to non-finite values", func() {
			s := ratedStats("nft-4")
			s.EloMean = math.NaN()
			_, err := engine.Compute(s, now)

			Convey("Then it reports a computation error", func() {
				So(err, ShouldNotBeNil)
				So(errors.Is(err, score.ErrComputation), ShouldBeTrue)
			})
		})

		Convey("When a better Elo record is scored", func() {
			weak := ratedStats("nft-5")
			weak.EloMean = 1100
			strong := ratedStats("nft-5")
			strong.EloMean = 1400

			weakRec, _ := engine.Compute(weak, now)
			strongRec, _ := engine.Compute(strong, now)

			Convey("Then the stronger NFT scores higher", func() {
				So(strongRec.POA, ShouldBeGreaterThan, weakRec.POA)
			})
		})
	})

	Convey("Given an engine with custom weights", t, func() {
		engine := score.NewEngine(
			score.WithWeights(1.0, 0, 0),
			score.WithEloBounds(1500, 350, 80),
		)
		now := time.Now().UTC()

		Convey("When only the Elo weight is active", func() {
			s := ratedStats("nft-6")
			s.EloMean = 1500
			rec, err := engine.Compute(s, now)

			Convey("Then the score equals the Elo component", func() {
				So(err, ShouldBeNil)
				So(rec.POA, ShouldAlmostEqual, 50, 1e-9)
			})
		})
	})
}
