package notify_test

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/proofofaesthetic/poa-engine/internal/adapters/notify"
	"github.com/proofofaesthetic/poa-engine/internal/domain/model"
	"github.com/proofofaesthetic/poa-engine/pkg/logger"
)

func init() {
	_ = logger.Init()
}

func TestBroadcaster(t *testing.T) {
	ctx := context.Background()

	Convey("Given a publish broadcaster", t, func() {
		b := notify.NewBroadcaster()
		defer b.Close()

		Convey("A subscriber receives published records", func() {
			got := make(chan model.ScoreRecord, 1)
			b.Subscribe(ctx, func(rec model.ScoreRecord) {
				got <- rec
			})

			b.ScorePublished(ctx, model.ScoreRecord{NFTID: "a", POA: 61})

			select {
			case rec := <-got:
				So(rec.NFTID, ShouldEqual, "a")
				So(rec.POA, ShouldEqual, 61)
			case <-time.After(time.Second):
				t.Fatal("notification never arrived")
			}
		})

		Convey("All subscribers receive each record", func() {
			var count atomic.Int64
			for i := 0; i < 3; i++ {
				b.Subscribe(ctx, func(model.ScoreRecord) {
					count.Add(1)
				})
			}

			b.ScorePublished(ctx, model.ScoreRecord{NFTID: "a"})

			deadline := time.Now().Add(time.Second)
			for count.Load() < 3 && time.Now().Before(deadline) {
				time.Sleep(5 * time.Millisecond)
			}
			So(count.Load(), ShouldEqual, 3)
		})

		Convey("Publishing with no subscribers is a no-op", func() {
			b.ScorePublished(ctx, model.ScoreRecord{NFTID: "a"})
		})
	})

	Convey("Given a slow subscriber behind a tiny buffer", t, func() {
		b := notify.NewBroadcaster(notify.WithBufferSize(1))
		defer b.Close()

		block := make(chan struct{})
		var delivered atomic.Int64
		b.Subscribe(ctx, func(model.ScoreRecord) {
			<-block
			delivered.Add(1)
		})

		Convey("Excess notifications are dropped, not blocking", func() {
			done := make(chan struct{})
			go func() {
				for i := 0; i < 100; i++ {
					b.ScorePublished(ctx, model.ScoreRecord{NFTID: "a"})
				}
				close(done)
			}()

			select {
			case <-done:
				// Publisher never stalled.
			case <-time.After(time.Second):
				t.Fatal("publisher blocked on a slow subscriber")
			}
			close(block)
		})
	})

	Convey("Given a closed broadcaster", t, func() {
		b := notify.NewBroadcaster()
		received := make(chan model.ScoreRecord, 1)
		b.Subscribe(ctx, func(rec model.ScoreRecord) {
			received <- rec
		})
		b.Close()

		Convey("Publishing after close is ignored", func() {
			b.ScorePublished(ctx, model.ScoreRecord{NFTID: "a"})
			select {
			case <-received:
				t.Fatal("received a record after close")
			case <-time.After(50 * time.Millisecond):
			}
		})

		Convey("Closing twice is a no-op", func() {
			b.Close()
		})
	})
}
