// Package report writes CSV summaries and the run manifest.
package report

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"
	"unicode"

	"gopkg.in/yaml.v3"

	"github.com/okian/regflow/internal/domain/aggregate"
	"github.com/okian/regflow/internal/domain/model"
	"github.com/okian/regflow/internal/domain/period"
	"github.com/okian/regflow/internal/domain/stats"
)

// ManifestName is the manifest file name inside the output directory.
const ManifestName = "manifest.yaml"

// File is one output listed in the manifest.
type File struct {
	Name string `yaml:"name" json:"name"`
	Kind string `yaml:"kind" json:"kind"`
	Job  string `yaml:"job,omitempty" json:"job,omitempty"`
}

// JobEntry records the outcome of one job in the manifest.
type JobEntry struct {
	Name         string  `yaml:"name" json:"name"`
	Kind         string  `yaml:"kind" json:"kind"`
	Applications int     `yaml:"applications" json:"applications"`
	Seconds      float64 `yaml:"seconds" json:"seconds"`
	Error        string  `yaml:"error,omitempty" json:"error,omitempty"`
}

// Manifest describes one run.
type Manifest struct {
	RunID      string     `yaml:"run_id"`
	StartedAt  time.Time  `yaml:"started_at"`
	FinishedAt time.Time  `yaml:"finished_at"`
	AsOf       string     `yaml:"as_of"`
	Jobs       []JobEntry `yaml:"jobs"`
	Files      []File     `yaml:"files"`
}

// Writer writes report files into one directory and remembers them.
// It is safe for concurrent use.
type Writer struct {
	dir     string
	onWrite func(kind string)

	mu    sync.Mutex
	files []File
}

// Option configures a Writer.
type Option func(*Writer)

// WithOnWrite registers a callback invoked with the kind of every file.
func WithOnWrite(fn func(kind string)) Option {
	return func(w *Writer) { w.onWrite = fn }
}

// NewWriter returns a Writer for dir.
func NewWriter(dir string, opts ...Option) *Writer {
	w := &Writer{dir: dir}
	for _, o := range opts {
		o(w)
	}
	return w
}

// Dir returns the output directory.
func (w *Writer) Dir() string { return w.dir }

// Path joins name onto the output directory.
func (w *Writer) Path(name string) string { return filepath.Join(w.dir, name) }

// Record lists a file written by someone else, such as a chart.
func (w *Writer) Record(name, kind, job string) {
	w.mu.Lock()
	w.files = append(w.files, File{Name: name, Kind: kind, Job: job})
	w.mu.Unlock()
	if w.onWrite != nil {
		w.onWrite(kind)
	}
}

// Files returns the written files sorted by name.
func (w *Writer) Files() []File {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := append([]File(nil), w.files...)
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Slug turns a process or job name into a file name fragment.
func Slug(s string) string {
	var b strings.Builder
	underscore := false
	for _, r := range strings.ToLower(strings.TrimSpace(s)) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
			underscore = false
			continue
		}
		if !underscore && b.Len() > 0 {
			b.WriteByte('_')
			underscore = true
		}
	}
	return strings.TrimSuffix(b.String(), "_")
}

func (w *Writer) writeCSV(name, job string, header []string, rows [][]string) error {
	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return fmt.Errorf("create %s: %w", w.dir, err)
	}
	f, err := os.Create(w.Path(name))
	if err != nil {
		return fmt.Errorf("create %s: %w", name, err)
	}
	cw := csv.NewWriter(f)
	if err := cw.Write(header); err != nil {
		_ = f.Close()
		return fmt.Errorf("write %s: %w", name, err)
	}
	if err := cw.WriteAll(rows); err != nil {
		_ = f.Close()
		return fmt.Errorf("write %s: %w", name, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close %s: %w", name, err)
	}
	w.Record(name, "csv", job)
	return nil
}

func num(v float64) string { return strconv.FormatFloat(v, 'f', 4, 64) }

// Bins writes bin,count,percent.
func (w *Writer) Bins(name, job string, d model.Distribution) error {
	rows := make([][]string, 0, len(d.Bins))
	for _, b := range d.Bins {
		rows = append(rows, []string{b.Label, strconv.Itoa(b.Count), num(b.Percent)})
	}
	return w.writeCSV(name, job, []string{"bin", "count", "percent"}, rows)
}

// Transitions writes one row per bin and transition; bins without
// transitions get a single row with empty transition fields.
func (w *Writer) Transitions(name, job, prefix string, aggs []model.BinAggregate) error {
	var rows [][]string
	for _, a := range aggs {
		if len(a.Transitions) == 0 {
			rows = append(rows, []string{a.Label, strconv.Itoa(a.Count), "", "", ""})
			continue
		}
		for _, k := range aggregate.SortedKeys(a.Transitions) {
			rows = append(rows, []string{a.Label, strconv.Itoa(a.Count), k.Label(prefix), k.Direction.String(), num(a.Transitions[k])})
		}
	}
	return w.writeCSV(name, job, []string{"bin", "count", "transition", "direction", "percent"}, rows)
}

// Applications writes one row per application summary.
func (w *Writer) Applications(name, job, prefix string, summaries []model.ApplicationSummary) error {
	rows := make([][]string, 0, len(summaries))
	for _, s := range summaries {
		parts := make([]string, 0, len(s.Transitions))
		for _, k := range aggregate.SortedKeys(s.Transitions) {
			parts = append(parts, k.Label(prefix)+"="+strconv.FormatFloat(s.Transitions[k], 'f', 2, 64))
		}
		last := ""
		if !s.LastActivity.IsZero() {
			last = s.LastActivity.Format(time.RFC3339)
		}
		rows = append(rows, []string{
			s.ApplicationID,
			num(s.ElapsedDays),
			s.Bin,
			strconv.Itoa(s.Steps),
			s.FinalStatus,
			strconv.Itoa(s.FinalLevel),
			strconv.Itoa(s.MaxLevel),
			last,
			strings.Join(parts, ";"),
		})
	}
	header := []string{"application_id", "elapsed_days", "bin", "steps", "final_status", "final_level", "max_level", "last_activity", "transitions"}
	return w.writeCSV(name, job, header, rows)
}

// StatusShares writes category,count,percent.
func (w *Writer) StatusShares(name, job string, counts []aggregate.CategoryCount) error {
	total := 0
	for _, c := range counts {
		total += c.Count
	}
	rows := make([][]string, 0, len(counts))
	for _, c := range counts {
		pct := 0.0
		if total > 0 {
			pct = float64(c.Count) / float64(total) * 100
		}
		rows = append(rows, []string{c.Category.String(), strconv.Itoa(c.Count), num(pct)})
	}
	return w.writeCSV(name, job, []string{"category", "count", "percent"}, rows)
}

// PeriodStats writes the overall and per-group summary of every span.
func (w *Writer) PeriodStats(name string, res period.Result) error {
	header := []string{"period", "group", "count", "mean", "median", "std", "min", "max", "p25", "p75", "p90", "p95"}
	var rows [][]string
	for _, s := range res.Spans {
		rows = append(rows, statsRow(s.Span.Label, "", s.Summary))
		for _, g := range s.Groups {
			rows = append(rows, statsRow(s.Span.Label, g.Group, g.Summary))
		}
	}
	return w.writeCSV(name, res.Job.Name, header, rows)
}

func statsRow(label, group string, s stats.Summary) []string {
	return []string{
		label, group, strconv.Itoa(s.Count),
		num(s.Mean), num(s.Median), num(s.Std), num(s.Min), num(s.Max),
		num(s.P25), num(s.P75), num(s.P90), num(s.P95),
	}
}

// PeriodDistribution writes period,bin,count,percent,cumulative_percent.
func (w *Writer) PeriodDistribution(name string, res period.Result) error {
	var rows [][]string
	for _, s := range res.Spans {
		for _, b := range s.Bins {
			rows = append(rows, []string{s.Span.Label, b.Label, strconv.Itoa(b.Count), num(b.Percent), num(b.Cumulative)})
		}
	}
	return w.writeCSV(name, res.Job.Name, []string{"period", "bin", "count", "percent", "cumulative_percent"}, rows)
}

// WriteManifest writes manifest.yaml listing every recorded file. The
// manifest itself is not listed.
func (w *Writer) WriteManifest(m Manifest) error {
	m.Files = w.Files()
	b, err := yaml.Marshal(m)
	if err != nil {
		return fmt.Errorf("encode manifest: %w", err)
	}
	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return fmt.Errorf("create %s: %w", w.dir, err)
	}
	if err := os.WriteFile(w.Path(ManifestName), b, 0o644); err != nil {
		return fmt.Errorf("write manifest: %w", err)
	}
	if w.onWrite != nil {
		w.onWrite("yaml")
	}
	return nil
}

// ReadManifest loads a manifest written by WriteManifest.
func ReadManifest(path string) (Manifest, error) {
	var m Manifest
	b, err := os.ReadFile(path)
	if err != nil {
		return m, fmt.Errorf("read manifest: %w", err)
	}
	if err := yaml.Unmarshal(b, &m); err != nil {
		return m, fmt.Errorf("decode manifest: %w", err)
	}
	return m, nil
}
