// Package binning maps elapsed-day values onto named, ordered time bins.
package binning

import (
	"fmt"
	"math"
	"sort"
)

// Scheme is an ordered set of half-open day intervals.
//
// Left-closed schemes cover [Edges[i], Edges[i+1]); right-closed schemes
// cover (Edges[i], Edges[i+1]]. Values outside the outer edges clamp to the
// first or last bin.
type Scheme struct {
	Edges       []float64
	Labels      []string
	RightClosed bool
}

// Workflow is the bin set used for per-application elapsed time.
var Workflow = Scheme{
	Edges:  []float64{0, 1, 2, 3, 4, 5, 6, 7, 14, 21, 28, 35, 60, 90, 180, 365, math.Inf(1)},
	Labels: []string{"1d", "2d", "3d", "4d", "5d", "6d", "7d", "2wk", "3wk", "4wk", "5wk", "2mo", "3mo", "6mo", "1yr", "1yr+"},
}

// Period is the bin set used for lifecycle spans between two dates.
var Period = Scheme{
	Edges: []float64{math.Inf(-1), 0, 1, 3, 7, 14, 30, 60, 90, 180, 365, math.Inf(1)},
	Labels: []string{
		"Same day", "1 day", "2-3 days", "4-7 days", "1-2 weeks", "2-4 weeks",
		"1-2 months", "2-3 months", "3-6 months", "6-12 months", "1+ year",
	},
	RightClosed: true,
}

// New validates edges and labels and returns a Scheme.
func New(edges []float64, labels []string, rightClosed bool) (Scheme, error) {
	s := Scheme{
		Edges:       append([]float64(nil), edges...),
		Labels:      append([]string(nil), labels...),
		RightClosed: rightClosed,
	}
	if err := s.Validate(); err != nil {
		return Scheme{}, err
	}
	return s, nil
}

// Validate checks that edges are strictly increasing and match the labels.
func (s Scheme) Validate() error {
	if len(s.Labels) == 0 {
		return fmt.Errorf("%w: no labels", ErrInvalidScheme)
	}
	if len(s.Edges) != len(s.Labels)+1 {
		return fmt.Errorf("%w: %d edges for %d labels", ErrInvalidScheme, len(s.Edges), len(s.Labels))
	}
	for i := 1; i < len(s.Edges); i++ {
		if math.IsNaN(s.Edges[i]) || !(s.Edges[i] > s.Edges[i-1]) {
			return fmt.Errorf("%w: edge %d (%v) not above %v", ErrInvalidScheme, i, s.Edges[i], s.Edges[i-1])
		}
	}
	seen := make(map[string]struct{}, len(s.Labels))
	for _, l := range s.Labels {
		if _, dup := seen[l]; dup {
			return fmt.Errorf("%w: duplicate label %q", ErrInvalidScheme, l)
		}
		seen[l] = struct{}{}
	}
	return nil
}

// Len returns the number of bins.
func (s Scheme) Len() int { return len(s.Labels) }

// Assign returns the bin index and label for days.
func (s Scheme) Assign(days float64) (int, string) {
	idx := s.Index(days)
	return idx, s.Labels[idx]
}

// Index returns the bin index for days.
func (s Scheme) Index(days float64) int {
	last := len(s.Labels) - 1
	if math.IsNaN(days) {
		return 0
	}
	var n int
	if s.RightClosed {
		n = sort.Search(len(s.Edges), func(i int) bool { return s.Edges[i] >= days })
	} else {
		n = sort.Search(len(s.Edges), func(i int) bool { return s.Edges[i] > days })
	}
	idx := n - 1
	if idx < 0 {
		return 0
	}
	if idx > last {
		return last
	}
	return idx
}

// IndexOf returns the position of label, or -1.
func (s Scheme) IndexOf(label string) int {
	for i, l := range s.Labels {
		if l == label {
			return i
		}
	}
	return -1
}
