package model_test

import (
	"errors"
	"strings"
	"testing"

	model "github.com/okian/scoreboard/internal/domain/model"
	"github.com/smartystreets/goconvey/convey"
)

func TestScoreRecord(t *testing.T) {
	convey.Convey("Given score record construction", t, func() {
		convey.Convey("When the player id is present", func() {
			rec, err := model.NewScoreRecord("  p1 ", 100, "Alice")

			convey.Convey("Then it should be trimmed and valid", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(rec.PlayerID, convey.ShouldEqual, "p1")
				convey.So(rec.Score, convey.ShouldEqual, 100)
				convey.So(rec.DisplayName, convey.ShouldEqual, "Alice")
			})
		})

		convey.Convey("When the player id is blank", func() {
			_, err := model.NewScoreRecord("   ", 10, "")

			convey.Convey("Then it should be rejected", func() {
				convey.So(errors.Is(err, model.ErrInvalidRecord), convey.ShouldBeTrue)
			})
		})

		convey.Convey("When the player id is too long", func() {
			_, err := model.NewScoreRecord(strings.Repeat("x", model.MaxPlayerIDLength+1), 10, "")

			convey.Convey("Then it should be rejected", func() {
				convey.So(errors.Is(err, model.ErrInvalidRecord), convey.ShouldBeTrue)
			})
		})

		convey.Convey("When negative scores are used", func() {
			rec, err := model.NewScoreRecord("p1", -5, "")

			convey.Convey("Then they are accepted as ordinary values", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(rec.Score, convey.ShouldEqual, -5)
			})
		})
	})

	convey.Convey("Given two records for comparison", t, func() {
		low := model.ScoreRecord{PlayerID: "p", Score: 10}
		high := model.ScoreRecord{PlayerID: "p", Score: 20}

		convey.So(high.Better(low), convey.ShouldBeTrue)
		convey.So(low.Better(high), convey.ShouldBeFalse)
		convey.So(low.Better(low), convey.ShouldBeFalse)
	})
}

func TestOutcome(t *testing.T) {
	convey.Convey("Given the outcome constructors", t, func() {
		convey.So(model.Success().OK(), convey.ShouldBeTrue)
		convey.So(model.Success().Message, convey.ShouldEqual, "User score ingested successfully")
		convey.So(model.Failure().OK(), convey.ShouldBeFalse)
		convey.So(model.Failure().Message, convey.ShouldEqual, "User score insertion failed")
	})
}
