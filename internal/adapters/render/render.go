// Package render draws workflow and period charts as PNG files.
package render

import (
	"fmt"
	"image/color"
	"os"
	"path/filepath"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/okian/regflow/internal/domain/aggregate"
	"github.com/okian/regflow/internal/domain/model"
	"github.com/okian/regflow/internal/domain/period"
	"github.com/okian/regflow/internal/domain/stats"
)

const barWidth = 18

// Renderer writes charts; it holds no per-chart state and is safe for
// concurrent use.
type Renderer struct {
	width       vg.Length
	height      vg.Length
	labelPrefix string
}

// New returns a Renderer with a 14x8 inch canvas by default.
func New(opts ...Option) *Renderer {
	r := &Renderer{width: 14 * vg.Inch, height: 8 * vg.Inch, labelPrefix: "L"}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Share is one bar of a share chart.
type Share struct {
	Label string
	Count int
}

// Distribution draws application counts per bin with "count (pct%)" labels
// and a median/mean/p95 caption.
func (r *Renderer) Distribution(path, title string, d model.Distribution, elapsed stats.Summary) error {
	if d.Total == 0 {
		return ErrNoData
	}
	labels := make([]string, len(d.Bins))
	vals := make(plotter.Values, len(d.Bins))
	for i, b := range d.Bins {
		labels[i] = b.Label
		vals[i] = float64(b.Count)
	}
	caption := fmt.Sprintf("Elapsed time\nn=%d  median %.1fd  mean %.1fd  p95 %.1fd",
		d.Total, elapsed.Median, elapsed.Mean, elapsed.P95)

	annotations := make([]string, len(d.Bins))
	for i, b := range d.Bins {
		if b.Count > 0 {
			annotations[i] = fmt.Sprintf("%d (%.1f%%)", b.Count, b.Percent)
		}
	}
	return r.bars(path, title, caption, "Applications", labels, vals, annotations)
}

// Levels draws how many applications reached each highest level.
func (r *Renderer) Levels(path, title string, levels []aggregate.LevelCount) error {
	if len(levels) == 0 {
		return ErrNoData
	}
	labels := make([]string, len(levels))
	vals := make(plotter.Values, len(levels))
	annotations := make([]string, len(levels))
	for i, l := range levels {
		labels[i] = fmt.Sprintf("%s%d", r.labelPrefix, l.Level)
		vals[i] = float64(l.Count)
		annotations[i] = fmt.Sprintf("%d (%.1f%%)", l.Count, l.Percent)
	}
	return r.bars(path, title, "Highest authority level reached", "Applications", labels, vals, annotations)
}

// Shares draws a percentage-of-total bar per category.
func (r *Renderer) Shares(path, title string, shares []Share) error {
	total := 0
	for _, s := range shares {
		total += s.Count
	}
	if total == 0 {
		return ErrNoData
	}
	labels := make([]string, len(shares))
	vals := make(plotter.Values, len(shares))
	annotations := make([]string, len(shares))
	for i, s := range shares {
		pct := float64(s.Count) / float64(total) * 100
		labels[i] = s.Label
		vals[i] = pct
		annotations[i] = fmt.Sprintf("%.1f%% (%d)", pct, s.Count)
	}
	return r.bars(path, title, "", "Share of applications (%)", labels, vals, annotations)
}

func (r *Renderer) bars(path, title, xLabel, yLabel string, labels []string, vals plotter.Values, annotations []string) error {
	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = xLabel
	p.Y.Label.Text = yLabel
	p.Add(plotter.NewGrid())

	bc, err := plotter.NewBarChart(vals, vg.Points(barWidth*2))
	if err != nil {
		return fmt.Errorf("bar chart: %w", err)
	}
	bc.Color = barColor
	bc.LineStyle.Width = vg.Length(0)
	p.Add(bc)
	p.NominalX(labels...)

	xys := make([]plotter.XY, len(vals))
	for i, v := range vals {
		xys[i] = plotter.XY{X: float64(i), Y: v}
	}
	lbl, err := plotter.NewLabels(plotter.XYLabels{XYs: xys, Labels: annotations})
	if err != nil {
		return fmt.Errorf("labels: %w", err)
	}
	for i := range lbl.TextStyle {
		lbl.TextStyle[i].XAlign = -0.5
		lbl.TextStyle[i].YAlign = 0
	}
	p.Add(lbl)
	return r.save(p, path)
}

// Transitions draws one stacked horizontal bar per populated bin. Forward
// segments use a blue gradient and backward segments an orange one, both
// keyed by source level.
func (r *Renderer) Transitions(path, title string, aggs []model.BinAggregate) error {
	var populated []model.BinAggregate
	keySet := make(map[model.TransitionKey]float64)
	for _, a := range aggs {
		if len(a.Transitions) == 0 {
			continue
		}
		populated = append(populated, a)
		for k := range a.Transitions {
			keySet[k] = 0
		}
	}
	if len(populated) == 0 {
		return ErrNoData
	}
	keys := aggregate.SortedKeys(keySet)
	minFrom, maxFrom := keys[0].From, keys[0].From
	for _, k := range keys {
		minFrom = min(minFrom, k.From)
		maxFrom = max(maxFrom, k.From)
	}

	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = "Share of elapsed time (%)"
	p.X.Min, p.X.Max = 0, 100
	p.Legend.Top = true
	p.Legend.Left = false

	var below *plotter.BarChart
	for _, k := range keys {
		vals := make(plotter.Values, len(populated))
		for i, a := range populated {
			vals[i] = a.Transitions[k]
		}
		bc, err := plotter.NewBarChart(vals, vg.Points(barWidth))
		if err != nil {
			return fmt.Errorf("bar chart %s: %w", k.Label(r.labelPrefix), err)
		}
		bc.Horizontal = true
		bc.LineStyle.Width = vg.Length(0)
		bc.Color = keyColor(k, minFrom, maxFrom)
		if below != nil {
			bc.StackOn(below)
		}
		below = bc
		p.Add(bc)
		p.Legend.Add(k.Label(r.labelPrefix), bc)
	}

	labels := make([]string, len(populated))
	for i, a := range populated {
		labels[i] = fmt.Sprintf("%s (n=%d)", a.Label, a.Count)
	}
	p.NominalY(labels...)
	return r.save(p, path)
}

func keyColor(k model.TransitionKey, minFrom, maxFrom int) color.RGBA {
	t := 0.5
	if maxFrom > minFrom {
		t = float64(k.From-minFrom) / float64(maxFrom-minFrom)
	}
	if k.Direction == model.Forward {
		return gradient(blueLight, blueDark, t)
	}
	return gradient(orangeLight, orangeDark, t)
}

// Histogram draws the raw day values of one span.
func (r *Renderer) Histogram(path, title string, values []float64, s stats.Summary) error {
	if len(values) == 0 {
		return ErrNoData
	}
	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = fmt.Sprintf("Days\nn=%d  median %.1f  mean %.1f  p90 %.1f", s.Count, s.Median, s.Mean, s.P90)
	p.Y.Label.Text = "Applications"
	p.Add(plotter.NewGrid())

	bins := 50
	if len(values) < bins {
		bins = max(len(values), 1)
	}
	h, err := plotter.NewHist(plotter.Values(values), bins)
	if err != nil {
		return fmt.Errorf("histogram: %w", err)
	}
	h.FillColor = barColor
	p.Add(h)
	return r.save(p, path)
}

// PeriodBins draws the binned percentage of every span side by side.
func (r *Renderer) PeriodBins(path, title string, spans []period.SpanResult) error {
	var drawn []period.SpanResult
	for _, s := range spans {
		if len(s.Values) > 0 {
			drawn = append(drawn, s)
		}
	}
	if len(drawn) == 0 {
		return ErrNoData
	}

	p := plot.New()
	p.Title.Text = title
	p.Y.Label.Text = "Share of applications (%)"
	p.Legend.Top = true
	p.Add(plotter.NewGrid())

	w := vg.Points(barWidth * 3 / float64(len(drawn)))
	for i, s := range drawn {
		vals := make(plotter.Values, len(s.Bins))
		for j, b := range s.Bins {
			vals[j] = b.Percent
		}
		bc, err := plotter.NewBarChart(vals, w)
		if err != nil {
			return fmt.Errorf("bar chart %s: %w", s.Span.Label, err)
		}
		bc.Color = seriesColor(i)
		bc.LineStyle.Width = vg.Length(0)
		bc.Offset = vg.Length(float64(i)-float64(len(drawn)-1)/2) * w
		p.Add(bc)
		p.Legend.Add(fmt.Sprintf("%s (n=%d)", s.Span.Label, len(s.Values)), bc)
	}

	labels := make([]string, len(drawn[0].Bins))
	for i, b := range drawn[0].Bins {
		labels[i] = b.Label
	}
	p.NominalX(labels...)
	return r.save(p, path)
}

// BoxPlot draws one box per span with values.
func (r *Renderer) BoxPlot(path, title string, spans []period.SpanResult) error {
	p := plot.New()
	p.Title.Text = title
	p.Y.Label.Text = "Days"

	var names []string
	for _, s := range spans {
		if len(s.Values) == 0 {
			continue
		}
		b, err := plotter.NewBoxPlot(vg.Points(barWidth*2), float64(len(names)), plotter.Values(s.Values))
		if err != nil {
			return fmt.Errorf("box plot %s: %w", s.Span.Label, err)
		}
		b.FillColor = seriesColor(len(names))
		p.Add(b)
		names = append(names, s.Span.Label)
	}
	if len(names) == 0 {
		return ErrNoData
	}
	p.NominalX(names...)
	return r.save(p, path)
}

func (r *Renderer) save(p *plot.Plot, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create %s: %w", filepath.Dir(path), err)
	}
	if err := p.Save(r.width, r.height, path); err != nil {
		return fmt.Errorf("save %s: %w", path, err)
	}
	return nil
}
