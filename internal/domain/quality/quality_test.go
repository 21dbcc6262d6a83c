package quality_test

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/okian/netpulse/internal/domain/model"
	"github.com/okian/netpulse/internal/domain/quality"
	. "github.com/smartystreets/goconvey/convey"
)

func healthy() quality.Input {
	return quality.Input{
		Download: model.Throughput{SpeedMbps: 250, StabilityPct: 100},
		Upload:   model.Throughput{SpeedMbps: 80, StabilityPct: 100},
		Latency:  model.Latency{MinMs: 8, MaxMs: 14, AvgMs: 11, JitterMs: 2},
	}
}

func TestScore(t *testing.T) {
	Convey("Given the quality scorer", t, func() {
		Convey("When the connection is healthy", func() {
			q := quality.Score(healthy())

			Convey("Then it should score full marks with no issues", func() {
				want := model.Quality{Score: 100, Grade: "A", Issues: []string{}}
				So(cmp.Diff(want, q), ShouldBeEmpty)
			})
		})

		Convey("When every measurement is at its worst", func() {
			q := quality.Score(quality.Input{
				Download: model.Throughput{SpeedMbps: 0, StabilityPct: 0},
				Upload:   model.Throughput{SpeedMbps: 0, StabilityPct: 0},
				Latency:  model.Latency{AvgMs: 1000, JitterMs: 500},
			})

			Convey("Then the score should bottom out at zero with grade F", func() {
				So(q.Score, ShouldEqual, 0)
				So(q.Grade, ShouldEqual, "F")
				So(len(q.Issues), ShouldEqual, 7)
			})
		})

		Convey("When only jitter is degraded", func() {
			in := healthy()
			in.Latency.JitterMs = 27.5 // halfway between 5 and 50

			q := quality.Score(in)

			Convey("Then the jitter penalty should be linear", func() {
				So(q.Score, ShouldEqual, 90)
				So(q.Grade, ShouldEqual, "A")
				So(q.Issues, ShouldBeEmpty)
			})
		})

		Convey("When jitter grows", func() {
			prev := 101.0
			monotone := true
			for _, j := range []float64{0, 5, 10, 20, 30, 40, 50, 80} {
				in := healthy()
				in.Latency.JitterMs = j
				s := quality.Score(in).Score
				if s > prev {
					monotone = false
				}
				prev = s
			}

			Convey("Then the score should never increase", func() {
				So(monotone, ShouldBeTrue)
			})
		})

		Convey("When latency grows", func() {
			prev := 101.0
			monotone := true
			for _, l := range []float64{5, 20, 50, 100, 150, 200, 400} {
				in := healthy()
				in.Latency.AvgMs = l
				s := quality.Score(in).Score
				if s > prev {
					monotone = false
				}
				prev = s
			}

			Convey("Then the score should never increase", func() {
				So(monotone, ShouldBeTrue)
			})
		})

		Convey("When stability and speed grow", func() {
			prev := -1.0
			monotone := true
			for _, v := range []float64{0, 10, 40, 70, 90, 100} {
				in := healthy()
				in.Download.StabilityPct = v
				in.Upload.StabilityPct = v
				in.Download.SpeedMbps = v
				s := quality.Score(in).Score
				if s < prev {
					monotone = false
				}
				prev = s
			}

			Convey("Then the score should never decrease", func() {
				So(monotone, ShouldBeTrue)
			})
		})

		Convey("When thresholds are breached", func() {
			in := healthy()
			in.Latency.JitterMs = 31
			in.Latency.AvgMs = 101
			in.Upload.StabilityPct = 79

			q := quality.Score(in)

			Convey("Then each breach should be reported", func() {
				So(q.Issues, ShouldHaveLength, 3)
				So(q.Issues[0], ShouldContainSubstring, "jitter")
				So(q.Issues[1], ShouldContainSubstring, "latency")
				So(q.Issues[2], ShouldContainSubstring, "upload")
			})
		})

		Convey("When the same input is scored twice", func() {
			in := healthy()
			in.Download.SpeedMbps = 42

			Convey("Then the result should be identical", func() {
				So(cmp.Diff(quality.Score(in), quality.Score(in)), ShouldBeEmpty)
			})
		})
	})
}

func TestGrade(t *testing.T) {
	Convey("Given grade boundaries", t, func() {
		cases := map[float64]string{
			100: "A", 90: "A", 89: "B", 80: "B", 79: "C",
			70: "C", 69: "D", 60: "D", 59: "F", 0: "F",
		}
		for score, want := range cases {
			So(quality.Grade(score), ShouldEqual, want)
		}
	})
}
