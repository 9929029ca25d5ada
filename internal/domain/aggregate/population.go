package aggregate

import (
	"fmt"
	"sort"
	"strings"

	"github.com/okian/regflow/internal/domain/binning"
	"github.com/okian/regflow/internal/domain/model"
)

// MeanMode chooses the denominator of per-transition means within a bin.
type MeanMode int

// Mean modes.
const (
	// MeanOverBin averages over every application in the bin; an application
	// without a transition contributes 0 to it.
	MeanOverBin MeanMode = iota
	// MeanOverPresent averages only over applications that made the transition.
	MeanOverPresent
)

// String returns the configuration token for m.
func (m MeanMode) String() string {
	if m == MeanOverPresent {
		return "present"
	}
	return "bin"
}

// ParseMeanMode resolves a configuration token.
func ParseMeanMode(s string) (MeanMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "bin":
		return MeanOverBin, nil
	case "present":
		return MeanOverPresent, nil
	}
	return MeanOverBin, fmt.Errorf("%w: %q", ErrUnknownMeanMode, s)
}

// Aggregate builds one BinAggregate per scheme bin, in scheme order. Empty
// bins are kept with a zero count. In a bin with any transitions the mean
// shares are renormalized to sum to 100.
func Aggregate(summaries []model.ApplicationSummary, scheme binning.Scheme, mode MeanMode) []model.BinAggregate {
	type acc struct {
		count   int
		sums    map[model.TransitionKey]float64
		present map[model.TransitionKey]int
	}
	accs := make([]acc, scheme.Len())
	for i := range accs {
		accs[i] = acc{sums: map[model.TransitionKey]float64{}, present: map[model.TransitionKey]int{}}
	}

	for _, s := range summaries {
		a := &accs[scheme.Index(s.ElapsedDays)]
		a.count++
		for k, pct := range s.Transitions {
			a.sums[k] += pct
			a.present[k]++
		}
	}

	out := make([]model.BinAggregate, scheme.Len())
	for i, a := range accs {
		agg := model.BinAggregate{
			Label:       scheme.Labels[i],
			Index:       i,
			Count:       a.count,
			Transitions: make(map[model.TransitionKey]float64, len(a.sums)),
		}
		if a.count > 0 {
			keys := SortedKeys(a.sums)
			var total float64
			means := make([]float64, len(keys))
			for j, k := range keys {
				denom := a.count
				if mode == MeanOverPresent {
					denom = a.present[k]
				}
				means[j] = a.sums[k] / float64(denom)
				total += means[j]
			}
			if total > 0 {
				for j, k := range keys {
					agg.Transitions[k] = means[j] / total * 100
				}
			}
		}
		out[i] = agg
	}
	return out
}

// SortedKeys returns the keys of m in TransitionKey order.
func SortedKeys(m map[model.TransitionKey]float64) []model.TransitionKey {
	keys := make([]model.TransitionKey, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].Less(keys[j]) })
	return keys
}

// Distribute counts summaries per bin, in scheme order.
func Distribute(summaries []model.ApplicationSummary, scheme binning.Scheme) model.Distribution {
	d := model.Distribution{Bins: make([]model.DistributionBin, scheme.Len()), Total: len(summaries)}
	for i, l := range scheme.Labels {
		d.Bins[i].Label = l
	}
	for _, s := range summaries {
		d.Bins[scheme.Index(s.ElapsedDays)].Count++
	}
	if d.Total > 0 {
		for i := range d.Bins {
			d.Bins[i].Percent = float64(d.Bins[i].Count) / float64(d.Total) * 100
		}
	}
	return d
}

// LevelCount is the number of applications whose highest level was Level.
type LevelCount struct {
	Level      int
	Count      int
	Percent    float64
	Cumulative float64
}

// LevelDistribution counts applications by the highest authority level reached.
func LevelDistribution(summaries []model.ApplicationSummary) []LevelCount {
	counts := make(map[int]int)
	for _, s := range summaries {
		if s.Steps == 0 {
			continue
		}
		counts[s.MaxLevel]++
	}
	levels := make([]int, 0, len(counts))
	total := 0
	for l, c := range counts {
		levels = append(levels, l)
		total += c
	}
	sort.Ints(levels)

	out := make([]LevelCount, 0, len(levels))
	var cum float64
	for _, l := range levels {
		pct := float64(counts[l]) / float64(total) * 100
		cum += pct
		out = append(out, LevelCount{Level: l, Count: counts[l], Percent: pct, Cumulative: cum})
	}
	return out
}
