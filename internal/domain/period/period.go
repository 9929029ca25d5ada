// Package period measures the days between two lifecycle timestamps of each
// row of a registration table and bins the results.
package period

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/okian/regflow/internal/domain/binning"
	"github.com/okian/regflow/internal/domain/stats"
)

// AsOf as a span end measures up to the run reference date.
const AsOf = "@as_of"

const secondsPerDay = 86400

// Table is the tabular input a job reads.
type Table interface {
	Column(name string) (int, error)
	HasColumn(name string) bool
	Records() [][]string
}

// DateParser turns a cell into a timestamp.
type DateParser interface {
	Parse(s string) (time.Time, bool)
}

// ColumnFilter keeps rows whose column holds one of Values, or any non-empty
// value when Values is empty. Matching ignores case.
type ColumnFilter struct {
	Column string   `koanf:"column" yaml:"column"`
	Values []string `koanf:"values" yaml:"values"`
}

// Span is one measured period of a job.
type Span struct {
	Label  string         `koanf:"label" yaml:"label"`
	Start  string         `koanf:"start" yaml:"start"`
	End    string         `koanf:"end" yaml:"end"`
	Filter []ColumnFilter `koanf:"filter" yaml:"filter"`
}

// Job is a set of spans over one input table.
type Job struct {
	Name    string         `koanf:"name" yaml:"name"`
	Input   string         `koanf:"input" yaml:"input"`
	Filter  []ColumnFilter `koanf:"filter" yaml:"filter"`
	GroupBy string         `koanf:"group_by" yaml:"group_by"`
	Spans   []Span         `koanf:"spans" yaml:"spans"`
}

// Validate checks that the job is runnable.
func (j Job) Validate() error {
	if strings.TrimSpace(j.Name) == "" {
		return fmt.Errorf("%w: empty name", ErrInvalidJob)
	}
	if len(j.Spans) == 0 {
		return fmt.Errorf("%w: %s has no spans", ErrInvalidJob, j.Name)
	}
	for _, s := range j.Spans {
		if s.Label == "" || s.Start == "" || s.End == "" {
			return fmt.Errorf("%w: %s has a span without label, start or end", ErrInvalidJob, j.Name)
		}
	}
	return nil
}

// BinCount is one bar of a period distribution.
type BinCount struct {
	Label      string
	Count      int
	Percent    float64
	Cumulative float64
}

// GroupSummary describes one value of the group column.
type GroupSummary struct {
	Group   string
	Summary stats.Summary
}

// Skipped counts rows that did not contribute a value.
type Skipped struct {
	Filtered     int
	MissingStart int
	MissingEnd   int
	Negative     int
}

// SpanResult holds the measurements of one span.
type SpanResult struct {
	Span    Span
	Values  []float64
	Summary stats.Summary
	Bins    []BinCount
	Groups  []GroupSummary
	Skipped Skipped
}

// Result is the outcome of one job.
type Result struct {
	Job   Job
	Spans []SpanResult
	// GroupsSkipped is set when GroupBy names a column the table lacks.
	GroupsSkipped bool
}

// Compute runs job over t. A missing start, end or filter column is an
// error; a missing group column only disables the per-group summaries.
func Compute(t Table, job Job, parser DateParser, asOf time.Time, scheme binning.Scheme) (Result, error) {
	if err := job.Validate(); err != nil {
		return Result{}, err
	}
	res := Result{Job: job}

	jobFilter, err := compileFilters(t, job.Filter)
	if err != nil {
		return Result{}, err
	}
	groupIdx := -1
	if job.GroupBy != "" {
		if t.HasColumn(job.GroupBy) {
			groupIdx, _ = t.Column(job.GroupBy)
		} else {
			res.GroupsSkipped = true
		}
	}

	for _, span := range job.Spans {
		sr, err := computeSpan(t, span, jobFilter, groupIdx, parser, asOf, scheme)
		if err != nil {
			return Result{}, fmt.Errorf("%s/%s: %w", job.Name, span.Label, err)
		}
		res.Spans = append(res.Spans, sr)
	}
	return res, nil
}

func computeSpan(t Table, span Span, jobFilter []compiled, groupIdx int, parser DateParser, asOf time.Time, scheme binning.Scheme) (SpanResult, error) {
	sr := SpanResult{Span: span}

	startIdx, err := t.Column(span.Start)
	if err != nil {
		return sr, err
	}
	endIdx := -1
	if span.End != AsOf {
		if endIdx, err = t.Column(span.End); err != nil {
			return sr, err
		}
	}
	spanFilter, err := compileFilters(t, span.Filter)
	if err != nil {
		return sr, err
	}

	byGroup := make(map[string][]float64)
	for _, row := range t.Records() {
		if !matchAll(jobFilter, row) || !matchAll(spanFilter, row) {
			sr.Skipped.Filtered++
			continue
		}
		start, ok := parser.Parse(cell(row, startIdx))
		if !ok {
			sr.Skipped.MissingStart++
			continue
		}
		end := asOf
		if endIdx >= 0 {
			if end, ok = parser.Parse(cell(row, endIdx)); !ok {
				sr.Skipped.MissingEnd++
				continue
			}
		}
		days := end.Sub(start).Seconds() / secondsPerDay
		if days < 0 || math.IsNaN(days) {
			sr.Skipped.Negative++
			continue
		}
		sr.Values = append(sr.Values, days)
		if groupIdx >= 0 {
			g := cell(row, groupIdx)
			if g == "" {
				g = "(blank)"
			}
			byGroup[g] = append(byGroup[g], days)
		}
	}

	sr.Summary = stats.Describe(sr.Values)
	sr.Bins = Bin(sr.Values, scheme)

	groups := make([]string, 0, len(byGroup))
	for g := range byGroup {
		groups = append(groups, g)
	}
	sort.Strings(groups)
	for _, g := range groups {
		sr.Groups = append(sr.Groups, GroupSummary{Group: g, Summary: stats.Describe(byGroup[g])})
	}
	return sr, nil
}

// Bin counts values per scheme bin with percentage and running percentage.
func Bin(values []float64, scheme binning.Scheme) []BinCount {
	out := make([]BinCount, scheme.Len())
	for i, l := range scheme.Labels {
		out[i].Label = l
	}
	for _, v := range values {
		out[scheme.Index(v)].Count++
	}
	if len(values) == 0 {
		return out
	}
	var cum float64
	for i := range out {
		out[i].Percent = float64(out[i].Count) / float64(len(values)) * 100
		cum += out[i].Percent
		out[i].Cumulative = cum
	}
	return out
}

type compiled struct {
	idx    int
	values map[string]struct{}
}

func compileFilters(t Table, fs []ColumnFilter) ([]compiled, error) {
	out := make([]compiled, 0, len(fs))
	for _, f := range fs {
		idx, err := t.Column(f.Column)
		if err != nil {
			return nil, err
		}
		c := compiled{idx: idx}
		if len(f.Values) > 0 {
			c.values = make(map[string]struct{}, len(f.Values))
			for _, v := range f.Values {
				c.values[strings.ToLower(strings.TrimSpace(v))] = struct{}{}
			}
		}
		out = append(out, c)
	}
	return out, nil
}

func matchAll(fs []compiled, row []string) bool {
	for _, f := range fs {
		v := cell(row, f.idx)
		if f.values == nil {
			if v == "" {
				return false
			}
			continue
		}
		if _, ok := f.values[strings.ToLower(v)]; !ok {
			return false
		}
	}
	return true
}

func cell(row []string, i int) string {
	if i < 0 || i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}
