package status

import (
	"fmt"
	"strings"
)

// Thresholds used by the approval confidence cohorts.
const (
	seniorLevel     = 4
	topLevel        = 6
	dormantDaysMark = 180
)

// Facts are the per-application inputs to a cohort rule.
type Facts struct {
	Category    Category
	RawStatus   string
	MaxLevel    int
	DaysDormant float64
}

// Cohort is a closed set of application selections used for reporting.
type Cohort int

// Cohorts. The approved variants trade completeness for confidence that
// the approval was final.
const (
	CohortApproved Cohort = iota
	CohortApprovedL4Plus
	CohortApprovedL4PlusOrDormant
	CohortApprovedL6Plus
	CohortRejected
	CohortSentBack
	CohortInProcess
)

// AllCohorts lists every cohort in reporting order.
func AllCohorts() []Cohort {
	return []Cohort{
		CohortApproved,
		CohortApprovedL4Plus,
		CohortApprovedL4PlusOrDormant,
		CohortApprovedL6Plus,
		CohortRejected,
		CohortSentBack,
		CohortInProcess,
	}
}

// Matches evaluates the cohort rule against one application's facts.
func (c Cohort) Matches(f Facts) bool {
	switch c {
	case CohortApproved:
		return f.Category == Approved
	case CohortApprovedL4Plus:
		return f.Category == Approved && f.MaxLevel >= seniorLevel
	case CohortApprovedL4PlusOrDormant:
		return f.Category == Approved && (f.MaxLevel >= seniorLevel || f.DaysDormant > dormantDaysMark)
	case CohortApprovedL6Plus:
		return f.Category == Approved && f.MaxLevel >= topLevel
	case CohortRejected:
		return f.Category == Rejected
	case CohortSentBack:
		return f.Category == SentBack
	case CohortInProcess:
		return f.Category == InProcess
	}
	return false
}

// String returns the stable token used in file names and configuration.
func (c Cohort) String() string {
	switch c {
	case CohortApproved:
		return "approved"
	case CohortApprovedL4Plus:
		return "approved_l4plus"
	case CohortApprovedL4PlusOrDormant:
		return "approved_l4plus_or_dormant"
	case CohortApprovedL6Plus:
		return "approved_l6plus"
	case CohortRejected:
		return "rejected"
	case CohortSentBack:
		return "sent_back"
	case CohortInProcess:
		return "in_process"
	}
	return fmt.Sprintf("cohort(%d)", int(c))
}

// Title is the human-readable cohort name.
func (c Cohort) Title() string {
	switch c {
	case CohortApproved:
		return "Approved (All)"
	case CohortApprovedL4Plus:
		return "Approved (L4+)"
	case CohortApprovedL4PlusOrDormant:
		return "Approved (L4+ or Dormant)"
	case CohortApprovedL6Plus:
		return "Approved (L6+)"
	case CohortRejected:
		return "Rejected"
	case CohortSentBack:
		return "Back for Review"
	case CohortInProcess:
		return "In-Process"
	}
	return c.String()
}

// Confidence describes how sure an approved cohort is that approval was final.
// It is empty for non-approved cohorts.
func (c Cohort) Confidence() string {
	switch c {
	case CohortApproved:
		return "Mixed - includes potential intermediate approvals"
	case CohortApprovedL4Plus:
		return "HIGH - reached senior approval levels"
	case CohortApprovedL4PlusOrDormant:
		return "HIGH - L4+ or no activity for 180+ days"
	case CohortApprovedL6Plus:
		return "VERY HIGH - final approvals only"
	}
	return ""
}

// ParseCohort resolves a cohort token. Old spellings like "inprocess" and
// "back_for_review" are accepted.
func ParseCohort(s string) (Cohort, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "approved", "approved_all":
		return CohortApproved, nil
	case "approved_l4plus":
		return CohortApprovedL4Plus, nil
	case "approved_l4plus_or_dormant":
		return CohortApprovedL4PlusOrDormant, nil
	case "approved_l6plus":
		return CohortApprovedL6Plus, nil
	case "rejected":
		return CohortRejected, nil
	case "sent_back", "back_for_review":
		return CohortSentBack, nil
	case "in_process", "inprocess":
		return CohortInProcess, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownCohort, s)
}

// ParseCohorts resolves a list of tokens; an empty list means all cohorts.
func ParseCohorts(names []string) ([]Cohort, error) {
	if len(names) == 0 {
		return AllCohorts(), nil
	}
	out := make([]Cohort, 0, len(names))
	for _, n := range names {
		c, err := ParseCohort(n)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}
