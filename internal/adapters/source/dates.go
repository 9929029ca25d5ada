package source

import (
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"
)

// WorkflowLayout is the day/month/year hour:minute format of workflow exports.
const WorkflowLayout = "2/1/2006 15:04"

// DefaultLayouts covers the lifecycle date columns of registration exports.
var DefaultLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
	WorkflowLayout,
	"2/1/2006",
}

// DateParser turns cell text into timestamps. Layouts are tried in order;
// with ExcelSerials set, numeric cells are read as spreadsheet date serials.
// Parsed times are in Location, UTC when nil.
type DateParser struct {
	Layouts      []string
	ExcelSerials bool
	Location     *time.Location
}

// NewDateParser returns a parser for layouts, or DefaultLayouts when empty.
func NewDateParser(layouts []string, excelSerials bool) DateParser {
	if len(layouts) == 0 {
		layouts = DefaultLayouts
	}
	return DateParser{Layouts: layouts, ExcelSerials: excelSerials}
}

// Parse returns the timestamp in s, or false when nothing matched.
func (p DateParser) Parse(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	loc := p.Location
	if loc == nil {
		loc = time.UTC
	}
	for _, layout := range p.Layouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, true
		}
	}
	if p.ExcelSerials {
		if v, err := strconv.ParseFloat(s, 64); err == nil && v > 0 && !math.IsInf(v, 0) {
			if t, err := excelize.ExcelDateToTime(v, false); err == nil {
				return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), 0, loc), true
			}
		}
	}
	return time.Time{}, false
}
