package rating_test

import (
	"fmt"
	"math"
	"testing"
	"time"

	"github.com/okian/duel/internal/domain/model"
	rating "github.com/okian/duel/internal/domain/rating"
	. "github.com/smartystreets/goconvey/convey"
)

func TestExpected(t *testing.T) {
	Convey("Given two ratings", t, func() {
		Convey("When they are equal", func() {
			Convey("Then each side is expected to win half the time", func() {
				So(rating.Expected(1500, 1500), ShouldEqual, 0.5)
			})
		})

		Convey("When one side leads by 400 points", func() {
			Convey("Then it is ten times as likely to win", func() {
				So(rating.Expected(1900, 1500), ShouldAlmostEqual, 10.0/11.0, 1e-12)
			})
		})

		Convey("When swapping sides", func() {
			Convey("Then the expectations sum to one", func() {
				So(rating.Expected(1620, 1411)+rating.Expected(1411, 1620), ShouldAlmostEqual, 1.0, 1e-12)
			})
		})
	})
}

func TestEloApply(t *testing.T) {
	Convey("Given an Elo rater with default options", t, func() {
		elo := rating.NewElo()
		now := time.Now()

		Convey("Then defaults are K=32 and baseline 1500", func() {
			So(elo.KFactor(), ShouldEqual, 32.0)
			So(elo.Baseline(), ShouldEqual, 1500.0)
		})

		Convey("When two fresh items are compared", func() {
			a := model.NewRatingEntry("g", "A", elo.Baseline())
			b := model.NewRatingEntry("g", "B", elo.Baseline())
			elo.Apply(&a, &b, now)

			Convey("Then the winner gains 16 and the loser drops 16", func() {
				So(a.Rating, ShouldAlmostEqual, 1516.0, 1e-9)
				So(b.Rating, ShouldAlmostEqual, 1484.0, 1e-9)
			})

			Convey("And counters move by exactly one", func() {
				So(a.Comparisons, ShouldEqual, 1)
				So(a.Wins, ShouldEqual, 1)
				So(a.Losses, ShouldEqual, 0)
				So(b.Comparisons, ShouldEqual, 1)
				So(b.Wins, ShouldEqual, 0)
				So(b.Losses, ShouldEqual, 1)
				So(a.UpdatedAt, ShouldEqual, now)
			})
		})

		Convey("When ratings differ", func() {
			cases := [][2]float64{{1500, 1500}, {1800, 1200}, {1200, 1800}, {1499.5, 1733.25}, {-40, 3000}}
			for _, c := range cases {
				w := model.RatingEntry{Rating: c[0]}
				l := model.RatingEntry{Rating: c[1]}
				elo.Apply(&w, &l, now)

				Convey("Then the update is zero-sum for "+formatPair(c), func() {
					So((w.Rating-c[0])+(l.Rating-c[1]), ShouldAlmostEqual, 0.0, 1e-9)
					So(w.Rating, ShouldBeGreaterThan, c[0])
					So(l.Rating, ShouldBeLessThan, c[1])
				})
			}
		})

		Convey("When the favourite wins", func() {
			Convey("Then it gains less than when the underdog wins", func() {
				So(elo.Delta(1800, 1500), ShouldBeLessThan, elo.Delta(1500, 1800))
				So(elo.Delta(1800, 1500)+elo.Delta(1500, 1800), ShouldAlmostEqual, 32.0, 1e-9)
			})
		})
	})

	Convey("Given custom options", t, func() {
		Convey("When valid values are provided", func() {
			elo := rating.NewElo(rating.WithKFactor(16), rating.WithBaseline(1000))

			Convey("Then they are applied", func() {
				So(elo.KFactor(), ShouldEqual, 16.0)
				So(elo.Baseline(), ShouldEqual, 1000.0)
			})
		})

		Convey("When invalid values are provided", func() {
			elo := rating.NewElo(rating.WithKFactor(-1), rating.WithBaseline(math.NaN()))

			Convey("Then defaults are kept", func() {
				So(elo.KFactor(), ShouldEqual, rating.DefaultKFactor)
				So(elo.Baseline(), ShouldEqual, model.DefaultBaselineRating)
			})
		})
	})
}

func formatPair(c [2]float64) string {
	return fmt.Sprintf("%g vs %g", c[0], c[1])
}
