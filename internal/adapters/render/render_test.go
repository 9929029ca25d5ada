package render_test

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/okian/regflow/internal/adapters/render"
	"github.com/okian/regflow/internal/domain/aggregate"
	"github.com/okian/regflow/internal/domain/binning"
	"github.com/okian/regflow/internal/domain/model"
	"github.com/okian/regflow/internal/domain/period"
	"github.com/okian/regflow/internal/domain/stats"
	. "github.com/smartystreets/goconvey/convey"
	"gonum.org/v1/plot/vg"
)

var pngMagic = []byte("\x89PNG")

func isPNG(path string) bool {
	b, err := os.ReadFile(path)
	return err == nil && bytes.HasPrefix(b, pngMagic)
}

func summaries() []model.ApplicationSummary {
	fwd := model.TransitionKey{From: 1, To: 2, Direction: model.Forward}
	fwd2 := model.TransitionKey{From: 2, To: 4, Direction: model.Forward}
	back := model.TransitionKey{From: 4, To: 2, Direction: model.Backward}
	return []model.ApplicationSummary{
		{ApplicationID: "a", ElapsedDays: 0.5, MaxLevel: 2, Steps: 2, Transitions: map[model.TransitionKey]float64{fwd: 100}},
		{ApplicationID: "b", ElapsedDays: 10, MaxLevel: 4, Steps: 4, Transitions: map[model.TransitionKey]float64{fwd: 20, fwd2: 50, back: 30}},
		{ApplicationID: "c", ElapsedDays: 40, MaxLevel: 4, Steps: 3, Transitions: map[model.TransitionKey]float64{fwd: 60, fwd2: 40}},
	}
}

func TestWorkflowCharts(t *testing.T) {
	Convey("Given aggregated workflow results", t, func() {
		dir := t.TempDir()
		r := render.New(render.WithSize(8*vg.Inch, 5*vg.Inch), render.WithLabelPrefix("L"))
		s := summaries()
		dist := aggregate.Distribute(s, binning.Workflow)
		aggs := aggregate.Aggregate(s, binning.Workflow, aggregate.MeanOverBin)

		Convey("When rendering the distribution chart", func() {
			path := filepath.Join(dir, "ir_approved_distribution.png")
			err := r.Distribution(path, "Industry Registration: approved", dist, stats.Describe([]float64{0.5, 10, 40}))

			Convey("Then a PNG is written", func() {
				So(err, ShouldBeNil)
				So(isPNG(path), ShouldBeTrue)
			})
		})

		Convey("When rendering the transition chart", func() {
			path := filepath.Join(dir, "nested", "ir_approved_transitions.png")
			err := r.Transitions(path, "Where the time goes", aggs)

			Convey("Then a PNG is written into a created directory", func() {
				So(err, ShouldBeNil)
				So(isPNG(path), ShouldBeTrue)
			})
		})

		Convey("When rendering levels and shares", func() {
			lp := filepath.Join(dir, "levels.png")
			sp := filepath.Join(dir, "status.png")
			So(r.Levels(lp, "Levels", aggregate.LevelDistribution(s)), ShouldBeNil)
			So(r.Shares(sp, "Status", []render.Share{{Label: "approved", Count: 3}, {Label: "rejected", Count: 1}}), ShouldBeNil)

			Convey("Then both are written", func() {
				So(isPNG(lp), ShouldBeTrue)
				So(isPNG(sp), ShouldBeTrue)
			})
		})

		Convey("When there is nothing to draw", func() {
			empty := aggregate.Aggregate(nil, binning.Workflow, aggregate.MeanOverBin)

			Convey("Then ErrNoData is returned and no file is created", func() {
				path := filepath.Join(dir, "none.png")
				So(errors.Is(r.Transitions(path, "none", empty), render.ErrNoData), ShouldBeTrue)
				So(errors.Is(r.Distribution(path, "none", model.Distribution{}, stats.Summary{}), render.ErrNoData), ShouldBeTrue)
				So(errors.Is(r.Shares(path, "none", nil), render.ErrNoData), ShouldBeTrue)
				_, err := os.Stat(path)
				So(os.IsNotExist(err), ShouldBeTrue)
			})
		})
	})
}

func TestPeriodCharts(t *testing.T) {
	Convey("Given span results", t, func() {
		dir := t.TempDir()
		r := render.New()
		a := []float64{0, 1, 2, 5, 9, 30, 45}
		b := []float64{3, 8, 13, 21, 90, 200}
		spans := []period.SpanResult{
			{Span: period.Span{Label: "Created to Submitted"}, Values: a, Summary: stats.Describe(a), Bins: period.Bin(a, binning.Period)},
			{Span: period.Span{Label: "Submitted to Approved"}, Values: b, Summary: stats.Describe(b), Bins: period.Bin(b, binning.Period)},
			{Span: period.Span{Label: "Empty"}, Bins: period.Bin(nil, binning.Period)},
		}

		Convey("When rendering every period chart", func() {
			hp := filepath.Join(dir, "company_created_histogram.png")
			bp := filepath.Join(dir, "company_binned.png")
			xp := filepath.Join(dir, "company_boxplot.png")

			So(r.Histogram(hp, "Created to Submitted", a, spans[0].Summary), ShouldBeNil)
			So(r.PeriodBins(bp, "Company registration", spans), ShouldBeNil)
			So(r.BoxPlot(xp, "Company registration", spans), ShouldBeNil)

			Convey("Then every file is a PNG", func() {
				So(isPNG(hp), ShouldBeTrue)
				So(isPNG(bp), ShouldBeTrue)
				So(isPNG(xp), ShouldBeTrue)
			})
		})

		Convey("When a span has no values", func() {
			err := r.Histogram(filepath.Join(dir, "empty.png"), "Empty", nil, stats.Summary{})
			So(errors.Is(err, render.ErrNoData), ShouldBeTrue)
		})
	})
}
