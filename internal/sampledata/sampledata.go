// Package sampledata generates synthetic registration workflow exports.
//
// Output is reproducible for a given seed: application ids, levels, gaps and
// outcomes all come from one seeded source.
package sampledata

import (
	"encoding/csv"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/okian/regflow/internal/adapters/source"
)

// Outcome shares, in percent.
const (
	approvedShare = 55
	rejectedShare = 15
	sentBackShare = 10

	maxGapHours   = 24 * 21
	startWindow   = 365
	levelsDefault = 6
)

// Outcome is how a generated application ended.
type Outcome int

// Outcomes.
const (
	Approved Outcome = iota
	Rejected
	SentBack
	InProcess
)

// Config controls generation.
type Config struct {
	Applications int
	Seed         int64
	// Start is the earliest submission; zero means 2024-01-01 UTC.
	Start     time.Time
	Processes []string
	MaxLevel  int
	// MissingStatusPercent of applications are left out of the status table.
	MissingStatusPercent int
	// DuplicatePercent of events are written twice.
	DuplicatePercent int
	// BadTimestampPercent of extra rows carry an unparseable timestamp.
	BadTimestampPercent int
}

// DefaultConfig returns a small, realistic configuration.
func DefaultConfig() Config {
	return Config{
		Applications:         500,
		Seed:                 1,
		Start:                time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		Processes:            []string{"Industry Registration", "Trade License"},
		MaxLevel:             levelsDefault,
		MissingStatusPercent: 5,
		DuplicatePercent:     2,
		BadTimestampPercent:  1,
	}
}

// Step is one generated workflow action.
type Step struct {
	Level  int
	Status string
	At     time.Time
}

// Application is one generated history.
type Application struct {
	ID          string
	Process     string
	CompanyType string
	Outcome     Outcome
	Steps       []Step
	// InStatusTable is false for applications left out of the status table.
	InStatusTable bool
}

// Submitted returns the first step time.
func (a Application) Submitted() time.Time { return a.Steps[0].At }

// Finished returns the last step time.
func (a Application) Finished() time.Time { return a.Steps[len(a.Steps)-1].At }

// Dataset is a generated set of applications.
type Dataset struct {
	Applications []Application
	duplicates   map[int]bool
	badRows      int
}

var companyTypes = []string{"Private Limited", "Public Limited", "Foreign Branch"}

// Generate builds a dataset from cfg.
func Generate(cfg Config) Dataset {
	if cfg.MaxLevel < 2 {
		cfg.MaxLevel = levelsDefault
	}
	if cfg.Start.IsZero() {
		cfg.Start = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	}
	if len(cfg.Processes) == 0 {
		cfg.Processes = DefaultConfig().Processes
	}
	rng := rand.New(rand.NewSource(cfg.Seed)) //nolint:gosec // reproducible sample data

	ds := Dataset{duplicates: make(map[int]bool)}
	eventIndex := 0
	for i := 0; i < cfg.Applications; i++ {
		id, err := uuid.NewRandomFromReader(rng)
		if err != nil {
			id = uuid.New()
		}
		app := Application{
			ID:            id.String(),
			Process:       cfg.Processes[rng.Intn(len(cfg.Processes))],
			CompanyType:   companyTypes[rng.Intn(len(companyTypes))],
			Outcome:       pickOutcome(rng),
			InStatusTable: rng.Intn(100) >= cfg.MissingStatusPercent,
		}
		start := cfg.Start.Add(time.Duration(rng.Intn(startWindow*24)) * time.Hour).Truncate(time.Minute)
		app.Steps = history(rng, start, app.Outcome, cfg.MaxLevel)
		for range app.Steps {
			if rng.Intn(100) < cfg.DuplicatePercent {
				ds.duplicates[eventIndex] = true
			}
			eventIndex++
		}
		if rng.Intn(100) < cfg.BadTimestampPercent {
			ds.badRows++
		}
		ds.Applications = append(ds.Applications, app)
	}
	return ds
}

func pickOutcome(rng *rand.Rand) Outcome {
	n := rng.Intn(100)
	switch {
	case n < approvedShare:
		return Approved
	case n < approvedShare+rejectedShare:
		return Rejected
	case n < approvedShare+rejectedShare+sentBackShare:
		return SentBack
	default:
		return InProcess
	}
}

// history walks an application up the levels. Approved applications reach
// a random top level; others stop part way with their final status code.
func history(rng *rand.Rand, start time.Time, o Outcome, maxLevel int) []Step {
	top := 2 + rng.Intn(maxLevel-1)
	if o != Approved {
		top = 1 + rng.Intn(maxLevel)
	}
	at := start
	steps := []Step{{Level: 1, Status: "0", At: at}}
	for lvl := 2; lvl <= top; lvl++ {
		at = at.Add(gap(rng))
		steps = append(steps, Step{Level: lvl, Status: "0", At: at})
		if o == SentBack && lvl > 2 && rng.Intn(3) == 0 {
			at = at.Add(gap(rng))
			steps = append(steps, Step{Level: lvl - 1, Status: "0", At: at})
			at = at.Add(gap(rng))
			steps = append(steps, Step{Level: lvl, Status: "0", At: at})
		}
	}
	at = at.Add(gap(rng))
	last := steps[len(steps)-1].Level
	switch o {
	case Approved:
		steps = append(steps, Step{Level: last, Status: "1", At: at})
	case Rejected:
		steps = append(steps, Step{Level: last, Status: "2", At: at})
	case SentBack:
		steps = append(steps, Step{Level: last, Status: "3", At: at})
	case InProcess:
	}
	return steps
}

func gap(rng *rand.Rand) time.Duration {
	h := 1 + rng.Intn(maxGapHours)
	if rng.Intn(4) == 0 {
		h = 1 + rng.Intn(8)
	}
	return time.Duration(h)*time.Hour + time.Duration(rng.Intn(60))*time.Minute
}

// AuthoritativeStatus is the status-table wording of an outcome.
func (o Outcome) AuthoritativeStatus() string {
	switch o {
	case Approved:
		return "Approved"
	case Rejected:
		return "Rejected"
	case SentBack:
		return "Back for review"
	default:
		return "In Process"
	}
}

// Events is the number of distinct workflow events.
func (d Dataset) Events() int {
	n := 0
	for _, a := range d.Applications {
		n += len(a.Steps)
	}
	return n
}

// Duplicates is the number of repeated event rows in the workflow export.
func (d Dataset) Duplicates() int { return len(d.duplicates) }

// BadRows is the number of rows with an unparseable timestamp.
func (d Dataset) BadRows() int { return d.badRows }

// WriteWorkflowCSV writes the workflow history in the export layout.
func (d Dataset) WriteWorkflowCSV(path string) error {
	cols := source.DefaultEventColumns()
	rows := [][]string{{cols.ID, cols.Level, cols.Status, cols.Timestamp, cols.Process}}
	idx := 0
	for _, a := range d.Applications {
		for _, s := range a.Steps {
			row := []string{a.ID, strconv.Itoa(s.Level), s.Status, s.At.Format(source.WorkflowLayout), a.Process}
			rows = append(rows, row)
			if d.duplicates[idx] {
				rows = append(rows, row)
			}
			idx++
		}
	}
	for i := 0; i < d.badRows; i++ {
		a := d.Applications[i%len(d.Applications)]
		rows = append(rows, []string{a.ID, "1", "0", "n/a", a.Process})
	}
	return writeCSV(path, rows)
}

// WriteStatusCSV writes the authoritative status table.
func (d Dataset) WriteStatusCSV(path string) error {
	cols := source.DefaultEventColumns()
	rows := [][]string{{cols.ID, cols.Status}}
	for _, a := range d.Applications {
		if a.InStatusTable {
			rows = append(rows, []string{a.ID, a.Outcome.AuthoritativeStatus()})
		}
	}
	return writeCSV(path, rows)
}

// LifecycleLayout is the date layout of the lifecycle export.
const LifecycleLayout = "2006-01-02 15:04:05"

// WriteLifecycleCSV writes one row per application with its submission and
// decision dates. Undecided applications have an empty decided_date.
func (d Dataset) WriteLifecycleCSV(path string) error {
	rows := [][]string{{"application_id", "process", "company_type", "status", "submitted_date", "decided_date"}}
	for _, a := range d.Applications {
		decided := ""
		if a.Outcome != InProcess {
			decided = a.Finished().Format(LifecycleLayout)
		}
		rows = append(rows, []string{
			a.ID, a.Process, a.CompanyType, a.Outcome.AuthoritativeStatus(),
			a.Submitted().Format(LifecycleLayout), decided,
		})
	}
	return writeCSV(path, rows)
}

func writeCSV(path string, rows [][]string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create dir for %s: %w", path, err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	w := csv.NewWriter(f)
	if err := w.WriteAll(rows); err != nil {
		_ = f.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close %s: %w", path, err)
	}
	return nil
}
