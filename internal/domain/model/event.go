// Package model contains domain models passed between layers.
package model

import (
	"fmt"
	"time"
)

// WorkflowEvent represents one recorded action on an application.
// Rows whose timestamp could not be parsed never become events.
type WorkflowEvent struct {
	ApplicationID string    // opaque application key
	Process       string    // process/menu name, e.g. "Industry Registration"
	Level         int       // authority level the action happened at
	Status        string    // raw status code as found in the export
	At            time.Time // event timestamp
}

// Direction tags a transition as moving up or down the approval hierarchy.
type Direction int

// Transition directions.
const (
	Forward Direction = iota
	Backward
)

// String returns the lower-case direction name.
func (d Direction) String() string {
	if d == Forward {
		return "forward"
	}
	return "backward"
}

// TransitionKey identifies movement between two differing authority levels.
type TransitionKey struct {
	From      int
	To        int
	Direction Direction
}

// NewTransitionKey returns the key for a move from one level to another.
// The second result is false for same-level pairs, which are not transitions.
func NewTransitionKey(from, to int) (TransitionKey, bool) {
	switch {
	case to > from:
		return TransitionKey{From: from, To: to, Direction: Forward}, true
	case to < from:
		return TransitionKey{From: from, To: to, Direction: Backward}, true
	default:
		return TransitionKey{}, false
	}
}

// Label renders the key as shown on charts, e.g. "L1→L3" or "L5←L2".
func (k TransitionKey) Label(prefix string) string {
	arrow := "→"
	if k.Direction == Backward {
		arrow = "←"
	}
	return fmt.Sprintf("%s%d%s%s%d", prefix, k.From, arrow, prefix, k.To)
}

// Less orders keys forward first, then by source and target level.
func (k TransitionKey) Less(o TransitionKey) bool {
	if k.Direction != o.Direction {
		return k.Direction < o.Direction
	}
	if k.From != o.From {
		return k.From < o.From
	}
	return k.To < o.To
}

// ApplicationSummary is derived once per application from its ordered events.
type ApplicationSummary struct {
	ApplicationID string
	ElapsedDays   float64
	Bin           string
	BinIndex      int
	// Transitions maps each key to the share (0-100) of elapsed time spent on it.
	Transitions  map[TransitionKey]float64
	Steps        int
	FinalStatus  string
	FinalLevel   int
	MaxLevel     int
	LastActivity time.Time
}

// BinAggregate summarizes all applications that fell into one time bin.
type BinAggregate struct {
	Label       string
	Index       int
	Count       int
	Transitions map[TransitionKey]float64
}

// DistributionBin is one bar of a distribution chart.
type DistributionBin struct {
	Label   string
	Count   int
	Percent float64
}

// Distribution counts applications per time bin in scheme order.
type Distribution struct {
	Bins  []DistributionBin
	Total int
}
