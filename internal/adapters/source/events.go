package source

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/okian/regflow/internal/domain/model"
)

// EventColumns names the columns of a workflow history table.
type EventColumns struct {
	ID        string
	Level     string
	Status    string
	Timestamp string
	// Process is optional; without it every event takes the table name.
	Process string
}

// DefaultEventColumns matches the workflow history export.
func DefaultEventColumns() EventColumns {
	return EventColumns{
		ID:        "table_data_id",
		Level:     "auth_level",
		Status:    "auth_status",
		Timestamp: "workflow_date",
		Process:   "menu_name",
	}
}

// LoadStats counts what happened to each input row.
type LoadStats struct {
	Rows           int
	Events         int
	BadTimestamp   int
	BadLevel       int
	MissingID      int
	ProcessFromTab bool
}

// Dropped is the number of rows that did not become events.
func (s LoadStats) Dropped() int { return s.BadTimestamp + s.BadLevel + s.MissingID }

// DecodeEvents converts table rows into events. Rows with an empty id, an
// unparseable level or an unparseable timestamp are dropped and counted.
// A missing required column is an error.
func DecodeEvents(t *Table, cols EventColumns, parser DateParser) ([]model.WorkflowEvent, LoadStats, error) {
	var st LoadStats
	idx := make(map[string]int, 4)
	for _, name := range []string{cols.ID, cols.Level, cols.Status, cols.Timestamp} {
		i, err := t.Column(name)
		if err != nil {
			return nil, st, err
		}
		idx[name] = i
	}
	processIdx := -1
	if cols.Process != "" && t.HasColumn(cols.Process) {
		processIdx, _ = t.Column(cols.Process)
	} else {
		st.ProcessFromTab = true
	}

	events := make([]model.WorkflowEvent, 0, len(t.Rows))
	for _, row := range t.Rows {
		st.Rows++
		id := Cell(row, idx[cols.ID])
		if id == "" {
			st.MissingID++
			continue
		}
		level, ok := ParseLevel(Cell(row, idx[cols.Level]))
		if !ok {
			st.BadLevel++
			continue
		}
		at, ok := parser.Parse(Cell(row, idx[cols.Timestamp]))
		if !ok {
			st.BadTimestamp++
			continue
		}
		process := t.Name
		if processIdx >= 0 {
			process = Cell(row, processIdx)
		}
		events = append(events, model.WorkflowEvent{
			ApplicationID: normalizeID(id),
			Process:       process,
			Level:         level,
			Status:        Cell(row, idx[cols.Status]),
			At:            at,
		})
	}
	st.Events = len(events)
	return events, st, nil
}

// ParseLevel reads an authority level; float renderings such as "3.0" are
// accepted when integral.
func ParseLevel(s string) (int, bool) {
	if s == "" {
		return 0, false
	}
	if n, err := strconv.Atoi(s); err == nil {
		return n, true
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || f != float64(int(f)) {
		return 0, false
	}
	return int(f), true
}

// LoadStatusLookup builds an id to status map from a reference table. Later
// rows win for repeated ids.
func LoadStatusLookup(t *Table, idColumn, statusColumn string) (map[string]string, error) {
	idIdx, err := t.Column(idColumn)
	if err != nil {
		return nil, err
	}
	stIdx, err := t.Column(statusColumn)
	if err != nil {
		return nil, err
	}
	out := make(map[string]string, len(t.Rows))
	for _, row := range t.Rows {
		id := Cell(row, idIdx)
		if id == "" {
			continue
		}
		out[normalizeID(id)] = Cell(row, stIdx)
	}
	return out, nil
}

// Processes lists distinct process names in first-seen order.
func Processes(events []model.WorkflowEvent) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, e := range events {
		if _, ok := seen[e.Process]; ok {
			continue
		}
		seen[e.Process] = struct{}{}
		out = append(out, e.Process)
	}
	return out
}

// normalizeID makes "1234.0" and "1234" the same application.
func normalizeID(id string) string {
	if strings.HasSuffix(id, ".0") {
		if _, err := strconv.Atoi(id[:len(id)-2]); err == nil {
			return id[:len(id)-2]
		}
	}
	return id
}

// String renders load statistics for logs.
func (s LoadStats) String() string {
	return fmt.Sprintf("rows=%d events=%d bad_timestamp=%d bad_level=%d missing_id=%d",
		s.Rows, s.Events, s.BadTimestamp, s.BadLevel, s.MissingID)
}
