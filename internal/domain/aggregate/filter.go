// Package aggregate turns a workflow event log into per-application
// summaries and per-bin transition breakdowns.
package aggregate

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/okian/regflow/internal/domain/model"
	"github.com/okian/regflow/internal/domain/status"
)

const secondsPerDay = 86400

// StatusSource selects where an application's final status comes from.
type StatusSource int

// Status sources.
const (
	// LastEvent reads the status of the chronologically last event.
	LastEvent StatusSource = iota
	// Authoritative reads the status from a reference table joined by id.
	Authoritative
)

// String returns the configuration token for s.
func (s StatusSource) String() string {
	if s == Authoritative {
		return "authoritative"
	}
	return "last_event"
}

// ParseStatusSource resolves a configuration token.
func ParseStatusSource(s string) (StatusSource, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "last_event", "inferred":
		return LastEvent, nil
	case "authoritative":
		return Authoritative, nil
	}
	return LastEvent, fmt.Errorf("%w: %q", ErrUnknownStatusSource, s)
}

// Filter restricts the event log to one process and one status cohort.
type Filter struct {
	// Process keeps only events of this process; empty keeps all.
	Process string
	Cohort  status.Cohort
	Source  StatusSource
	Mapping status.Mapping
	// Lookup holds authoritative statuses by application id.
	Lookup map[string]string
	// AsOf is the reference date for dormancy; zero disables dormancy.
	AsOf time.Time
}

// Group is one application's events in ascending time order.
type Group struct {
	ApplicationID string
	Events        []model.WorkflowEvent
}

// SelectStats counts how applications were filtered.
type SelectStats struct {
	Events        int
	Applications  int
	Selected      int
	MissingStatus int
}

// GroupByApplication buckets events by application id. Groups are sorted by
// id and events within a group by time; ties keep input order.
func GroupByApplication(events []model.WorkflowEvent) []Group {
	idx := make(map[string]int)
	var groups []Group
	for _, e := range events {
		i, ok := idx[e.ApplicationID]
		if !ok {
			i = len(groups)
			idx[e.ApplicationID] = i
			groups = append(groups, Group{ApplicationID: e.ApplicationID})
		}
		groups[i].Events = append(groups[i].Events, e)
	}
	for i := range groups {
		sortByTime(groups[i].Events)
	}
	sort.Slice(groups, func(i, j int) bool { return groups[i].ApplicationID < groups[j].ApplicationID })
	return groups
}

func sortByTime(events []model.WorkflowEvent) {
	sort.SliceStable(events, func(i, j int) bool { return events[i].At.Before(events[j].At) })
}

// Select applies f and returns the matching application groups.
func Select(events []model.WorkflowEvent, f Filter) ([]Group, SelectStats) {
	var scoped []model.WorkflowEvent
	for _, e := range events {
		if f.Process == "" || e.Process == f.Process {
			scoped = append(scoped, e)
		}
	}

	groups := GroupByApplication(scoped)
	st := SelectStats{Events: len(scoped), Applications: len(groups)}

	selected := groups[:0:0]
	for _, g := range groups {
		facts, ok := f.facts(g)
		if !ok {
			st.MissingStatus++
			continue
		}
		if f.Cohort.Matches(facts) {
			selected = append(selected, g)
		}
	}
	st.Selected = len(selected)
	return selected, st
}

// facts derives the cohort inputs for one application. The second result is
// false when the authoritative status is required but absent.
func (f Filter) facts(g Group) (status.Facts, bool) {
	last := g.Events[len(g.Events)-1]
	raw := last.Status
	if f.Source == Authoritative {
		v, ok := f.Lookup[g.ApplicationID]
		if !ok {
			return status.Facts{}, false
		}
		raw = v
	}

	maxLevel := g.Events[0].Level
	for _, e := range g.Events[1:] {
		if e.Level > maxLevel {
			maxLevel = e.Level
		}
	}

	var dormant float64
	if !f.AsOf.IsZero() {
		dormant = math.Floor(f.AsOf.Sub(last.At).Seconds() / secondsPerDay)
	}

	mapping := f.Mapping
	if mapping == nil {
		mapping = status.Inferred()
	}
	return status.Facts{
		Category:    mapping.Classify(raw),
		RawStatus:   raw,
		MaxLevel:    maxLevel,
		DaysDormant: dormant,
	}, true
}

// CategoryCount is the number of applications in one status category.
type CategoryCount struct {
	Category status.Category
	Count    int
}

// Categories classifies every application of f.Process, ignoring f.Cohort.
// Applications without an authoritative status are left out.
func Categories(events []model.WorkflowEvent, f Filter) []CategoryCount {
	order := []status.Category{status.Approved, status.Rejected, status.SentBack, status.InProcess, status.Unknown}
	counts := make(map[status.Category]int, len(order))

	var scoped []model.WorkflowEvent
	for _, e := range events {
		if f.Process == "" || e.Process == f.Process {
			scoped = append(scoped, e)
		}
	}
	for _, g := range GroupByApplication(scoped) {
		if facts, ok := f.facts(g); ok {
			counts[facts.Category]++
		}
	}

	out := make([]CategoryCount, 0, len(order))
	for _, c := range order {
		out = append(out, CategoryCount{Category: c, Count: counts[c]})
	}
	return out
}
