package logger_test

import (
	"context"
	"errors"
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/proofofaesthetic/poa-engine/pkg/logger"
)

func TestLogger(t *testing.T) {
	Convey("Given an initialized logger", t, func() {
		So(logger.Init(), ShouldBeNil)

		Convey("Get returns a usable logger", func() {
			log := logger.Get()
			So(log, ShouldNotBeNil)
			log.Info(context.Background(), "message", logger.String("k", "v"))
		})

		Convey("Named returns a component-scoped child", func() {
			child := logger.Named("worker")
			So(child, ShouldNotBeNil)
			child.Debug(context.Background(), "scoped message")
		})

		Convey("Level names parse case-insensitively", func() {
			for _, level := range []string{"debug", "info", "WARN", "warning", "Error", ""} {
				So(logger.SetLevelString(level), ShouldBeNil)
			}
		})

		Convey("An unknown level name is rejected", func() {
			So(logger.SetLevelString("loud"), ShouldNotBeNil)
		})
	})
}

func TestFields(t *testing.T) {
	Convey("Given the field constructors", t, func() {
		Convey("Each carries its key and value", func() {
			So(logger.String("s", "v").Key, ShouldEqual, "s")
			So(logger.Int("i", 7).Value, ShouldEqual, 7)
			So(logger.Int64("i64", int64(9)).Value, ShouldEqual, int64(9))
			So(logger.Float64("f", 1.5).Value, ShouldEqual, 1.5)
			So(logger.Bool("b", true).Value, ShouldEqual, true)

			err := errors.New("boom")
			f := logger.Error(err)
			So(f.Key, ShouldEqual, "error")
			So(f.Value, ShouldEqual, err)
		})
	})
}
