// Package status classifies raw workflow statuses into categories and
// selects application cohorts from them.
package status

import (
	"fmt"
	"sort"
	"strings"
)

// Category is the normalized meaning of a raw status value.
type Category int

// Status categories.
const (
	Unknown Category = iota
	Approved
	Rejected
	SentBack
	InProcess
)

var categoryNames = map[Category]string{
	Unknown:   "unknown",
	Approved:  "approved",
	Rejected:  "rejected",
	SentBack:  "sent_back",
	InProcess: "in_process",
}

// String returns the snake_case category name.
func (c Category) String() string {
	if n, ok := categoryNames[c]; ok {
		return n
	}
	return "unknown"
}

// ParseCategory accepts the names produced by String plus a few aliases.
func ParseCategory(s string) (Category, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "approved":
		return Approved, nil
	case "rejected":
		return Rejected, nil
	case "sent_back", "sentback", "back_for_review":
		return SentBack, nil
	case "in_process", "inprocess":
		return InProcess, nil
	case "unknown":
		return Unknown, nil
	}
	return Unknown, fmt.Errorf("%w: %q", ErrUnknownCategory, s)
}

// Mapping translates raw status values into categories.
// Lookups trim surrounding whitespace and ignore case.
type Mapping map[string]Category

// Classify returns the category for raw, or Unknown.
func (m Mapping) Classify(raw string) Category {
	if c, ok := m[normalize(raw)]; ok {
		return c
	}
	return Unknown
}

// With returns a copy of m with overrides applied.
func (m Mapping) With(overrides map[string]Category) Mapping {
	out := make(Mapping, len(m)+len(overrides))
	for k, v := range m {
		out[k] = v
	}
	for k, v := range overrides {
		out[normalize(k)] = v
	}
	return out
}

// Values lists raw values mapped to c, sorted.
func (m Mapping) Values(c Category) []string {
	var out []string
	for k, v := range m {
		if v == c {
			out = append(out, k)
		}
	}
	sort.Strings(out)
	return out
}

func normalize(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	// Numeric codes exported as floats ("1.0") mean the same as "1".
	if strings.HasSuffix(s, ".0") && len(s) > 2 && isDigits(s[:len(s)-2]) {
		return s[:len(s)-2]
	}
	return s
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return s != ""
}

func newMapping(pairs map[string]Category) Mapping {
	m := make(Mapping, len(pairs))
	for k, v := range pairs {
		m[normalize(k)] = v
	}
	return m
}

// Inferred maps the numeric status code of an application's last event.
// Code 3 means sent back and never resubmitted; it counts as rejected unless
// overridden.
func Inferred() Mapping {
	return newMapping(map[string]Category{
		"0": InProcess,
		"1": Approved,
		"2": Rejected,
		"3": Rejected,
	})
}

// Authoritative maps the status column of the reference status table.
func Authoritative() Mapping {
	return newMapping(map[string]Category{
		"Approved":                Approved,
		"Rejected":                Rejected,
		"Back for review":         SentBack,
		"In Process":              InProcess,
		"Sent for recommendation": InProcess,
		"Sent to external office": InProcess,
		"Sent for committee":      InProcess,
	})
}

// Order maps the working status of order-based spreadsheet exports.
func Order() Mapping {
	return newMapping(map[string]Category{
		"Accept":        Approved,
		"AcceptNotPaid": Approved,
		"Reject":        Rejected,
		"SendBack":      SentBack,
		"Request":       InProcess,
		"Forward":       InProcess,
	})
}

// MappingByName returns one of the built-in mappings.
func MappingByName(name string) (Mapping, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "inferred", "":
		return Inferred(), nil
	case "authoritative":
		return Authoritative(), nil
	case "order":
		return Order(), nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownMapping, name)
}
