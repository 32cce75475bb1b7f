package repository_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/proofofaesthetic/poa-engine/internal/adapters/repository"
	"github.com/proofofaesthetic/poa-engine/internal/domain/model"
)

func h2hEvent(id, voter, a, b, winner string) model.VoteEvent {
	return model.VoteEvent{
		EventID: id, VoterID: voter, NFTA: a, NFTB: b, WinnerID: winner,
		TS: time.Now().UTC(),
	}
}

func sliderEvent(id, voter, nft string, v float64) model.VoteEvent {
	return model.VoteEvent{
		EventID: id, VoterID: voter, NFTA: nft, Slider: &v,
		TS: time.Now().UTC(),
	}
}

func TestMemoryVoteLog(t *testing.T) {
	ctx := context.Background()

	Convey("Given an in-memory vote log", t, func() {
		log := repository.NewMemoryVoteLog()

		Convey("An empty log reports zero progress and no events", func() {
			p, err := log.Progress(ctx, "a")
			So(err, ShouldBeNil)
			So(p.HeadToHead, ShouldEqual, 0)

			events, err := log.Events(ctx, "a")
			So(err, ShouldBeNil)
			So(events, ShouldBeEmpty)
			So(log.Len(ctx), ShouldEqual, 0)
		})

		Convey("A head-to-head event indexes both NFTs", func() {
			So(log.Append(ctx, h2hEvent("e1", "u1", "a", "b", "a")), ShouldBeNil)

			pa, _ := log.Progress(ctx, "a")
			pb, _ := log.Progress(ctx, "b")
			So(pa.HeadToHead, ShouldEqual, 1)
			So(pa.UniqueOpponents, ShouldEqual, 1)
			So(pb.HeadToHead, ShouldEqual, 1)
			So(pb.UniqueOpponents, ShouldEqual, 1)

			eventsA, _ := log.Events(ctx, "a")
			eventsB, _ := log.Events(ctx, "b")
			So(eventsA, ShouldHaveLength, 1)
			So(eventsB, ShouldHaveLength, 1)
			So(log.Len(ctx), ShouldEqual, 1)
		})

		Convey("Repeat opponents count votes but not uniqueness", func() {
			So(log.Append(ctx, h2hEvent("e1", "u1", "a", "b", "a")), ShouldBeNil)
			So(log.Append(ctx, h2hEvent("e2", "u2", "a", "b", "b")), ShouldBeNil)
			So(log.Append(ctx, h2hEvent("e3", "u3", "a", "c", "a")), ShouldBeNil)

			p, _ := log.Progress(ctx, "a")
			So(p.HeadToHead, ShouldEqual, 3)
			So(p.UniqueOpponents, ShouldEqual, 2)
		})

		Convey("Slider events track ratings and unique raters", func() {
			So(log.Append(ctx, sliderEvent("e1", "u1", "a", 70)), ShouldBeNil)
			So(log.Append(ctx, sliderEvent("e2", "u1", "a", 75)), ShouldBeNil)
			So(log.Append(ctx, sliderEvent("e3", "u2", "a", 40)), ShouldBeNil)

			p, _ := log.Progress(ctx, "a")
			So(p.SliderRatings, ShouldEqual, 3)
			So(p.UniqueSliderUsers, ShouldEqual, 2)
			So(p.HeadToHead, ShouldEqual, 0)
		})

		Convey("Events come back in append order", func() {
			for i := 0; i < 10; i++ {
				So(log.Append(ctx, sliderEvent(fmt.Sprintf("e%d", i), "u1", "a", float64(i))), ShouldBeNil)
			}
			events, _ := log.Events(ctx, "a")
			So(events, ShouldHaveLength, 10)
			for i, e := range events {
				So(*e.Slider, ShouldEqual, float64(i))
			}
		})

		Convey("Per-NFT views do not leak other NFTs' events", func() {
			So(log.Append(ctx, sliderEvent("e1", "u1", "a", 50)), ShouldBeNil)
			So(log.Append(ctx, sliderEvent("e2", "u1", "b", 60)), ShouldBeNil)

			eventsA, _ := log.Events(ctx, "a")
			So(eventsA, ShouldHaveLength, 1)
			So(eventsA[0].NFTA, ShouldEqual, "a")
		})
	})
}
