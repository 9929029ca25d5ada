// Package config defines the run configuration and its loading hooks.
//
// Conventions:
//   - New returns defaults; Load layers a YAML file and REGFLOW_ env vars on top.
//   - Slices have no defaults in the struct; resolvers fill them after loading.
//   - Validation errors wrap ErrInvalidConfig.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/okian/regflow/internal/adapters/source"
	"github.com/okian/regflow/internal/domain/aggregate"
	"github.com/okian/regflow/internal/domain/binning"
	"github.com/okian/regflow/internal/domain/period"
	"github.com/okian/regflow/internal/domain/status"
	"github.com/robfig/cron/v3"
)

// AsOfLayout is the date format of the as_of setting.
const AsOfLayout = "2006-01-02"

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`
	// LogFormat is text or json.
	LogFormat string `koanf:"log_format"`

	// OutputDir receives charts, CSV files and the manifest.
	OutputDir string `koanf:"output_dir"`
	// AsOf is the reference date (YYYY-MM-DD) for dormancy and pending spans;
	// empty means the run start time.
	AsOf string `koanf:"as_of"`
	// Workers bounds how many analysis jobs run at once.
	Workers int `koanf:"workers"`
	// FailFast stops the run at the first failing job.
	FailFast bool `koanf:"fail_fast"`
	// Charts toggles PNG rendering.
	Charts bool `koanf:"charts"`

	Workflow WorkflowConfig `koanf:"workflow"`
	Periods  PeriodsConfig  `koanf:"periods"`
	Sink     SinkConfig     `koanf:"sink"`
	Slack    SlackConfig    `koanf:"slack"`

	// Schedule is a cron expression; empty runs once.
	Schedule string `koanf:"schedule"`
	// MetricsTextfile is written after every run when set.
	MetricsTextfile string `koanf:"metrics_textfile"`
	// Addr serves /healthz and /report while scheduled; empty disables it.
	Addr string `koanf:"addr"`
}

// WorkflowConfig describes the workflow history analysis.
type WorkflowConfig struct {
	Input string `koanf:"input"`
	// Sheet selects the XLSX sheet; empty is the first.
	Sheet string `koanf:"sheet"`

	StatusInput    string `koanf:"status_input"`
	StatusIDColumn string `koanf:"status_id_column"`
	StatusColumn   string `koanf:"status_column"`

	Columns      ColumnsConfig `koanf:"columns"`
	DateLayouts  []string      `koanf:"date_layouts"`
	ExcelSerials bool          `koanf:"excel_serials"`

	// Processes limits the analysis; empty means every process in the input.
	Processes []string `koanf:"processes"`
	// Cohorts limits the analysis; empty means every cohort.
	Cohorts []string `koanf:"cohorts"`

	// StatusSource is last_event or authoritative.
	StatusSource string `koanf:"status_source"`
	// Mapping is inferred, authoritative or order.
	Mapping          string            `koanf:"mapping"`
	MappingOverrides map[string]string `koanf:"mapping_overrides"`
	// SentBackAs reinterprets "Back for review": sent_back or in_process.
	SentBackAs string `koanf:"sent_back_as"`
	// Code3As reinterprets inferred status code 3: rejected or sent_back.
	Code3As string `koanf:"code3_as"`

	Bins        BinsConfig `koanf:"bins"`
	MeanMode    string     `koanf:"mean_mode"`
	LabelPrefix string     `koanf:"label_prefix"`
	Dedupe      bool       `koanf:"dedupe"`
}

// ColumnsConfig names the workflow history columns.
type ColumnsConfig struct {
	ID        string `koanf:"id"`
	Level     string `koanf:"level"`
	Status    string `koanf:"status"`
	Timestamp string `koanf:"timestamp"`
	Process   string `koanf:"process"`
}

// BinsConfig overrides a bin scheme; empty keeps the built-in one.
type BinsConfig struct {
	Edges  []float64 `koanf:"edges"`
	Labels []string  `koanf:"labels"`
}

// PeriodsConfig describes lifecycle period jobs.
type PeriodsConfig struct {
	DateLayouts  []string     `koanf:"date_layouts"`
	ExcelSerials bool         `koanf:"excel_serials"`
	Bins         BinsConfig   `koanf:"bins"`
	Jobs         []period.Job `koanf:"jobs"`
}

// SinkConfig selects the SQL result sink; an empty driver disables it.
type SinkConfig struct {
	Driver string `koanf:"driver"`
	DSN    string `koanf:"dsn"`
}

// SlackConfig enables run notifications when token and channel are set.
type SlackConfig struct {
	Token   string `koanf:"token"`
	Channel string `koanf:"channel"`
	APIURL  string `koanf:"api_url"`
}

// Enabled reports whether notifications are configured.
func (s SlackConfig) Enabled() bool { return s.Token != "" && s.Channel != "" }

// New returns a Config holding defaults.
func New() *Config {
	cols := source.DefaultEventColumns()
	return &Config{
		LogLevel:  "info",
		LogFormat: "text",
		OutputDir: "out",
		Workers:   1,
		Charts:    true,
		Workflow: WorkflowConfig{
			StatusIDColumn: cols.ID,
			StatusColumn:   cols.Status,
			Columns: ColumnsConfig{
				ID:        cols.ID,
				Level:     cols.Level,
				Status:    cols.Status,
				Timestamp: cols.Timestamp,
				Process:   cols.Process,
			},
			StatusSource: "last_event",
			Mapping:      "inferred",
			SentBackAs:   "sent_back",
			Code3As:      "rejected",
			MeanMode:     "bin",
			LabelPrefix:  "L",
			Dedupe:       true,
		},
	}
}

// Validate checks every setting that can be checked without touching files.
func (c *Config) Validate() error {
	if c.Workers < 1 {
		return invalid("workers must be at least 1, got %d", c.Workers)
	}
	switch strings.ToLower(c.LogFormat) {
	case "", "text", "json":
	default:
		return invalid("log_format must be text or json, got %q", c.LogFormat)
	}
	if c.OutputDir == "" {
		return invalid("output_dir must not be empty")
	}
	if c.Workflow.Input == "" && len(c.Periods.Jobs) == 0 {
		return invalid("nothing to do: set workflow.input or periods.jobs")
	}
	if _, err := c.AsOfTime(time.Now()); err != nil {
		return err
	}
	if c.Workflow.Input != "" {
		if err := c.Workflow.validate(); err != nil {
			return err
		}
	}
	if _, err := c.Periods.Scheme(); err != nil {
		return err
	}
	for _, j := range c.Periods.Jobs {
		if err := j.Validate(); err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
		}
		if j.Input == "" {
			return invalid("period job %s has no input", j.Name)
		}
	}
	switch c.Sink.Driver {
	case "":
	case "sqlite3", "postgres":
		if c.Sink.DSN == "" {
			return invalid("sink.dsn is required for driver %s", c.Sink.Driver)
		}
	default:
		return invalid("sink.driver must be sqlite3 or postgres, got %q", c.Sink.Driver)
	}
	if (c.Slack.Token == "") != (c.Slack.Channel == "") {
		return invalid("slack.token and slack.channel must be set together")
	}
	if c.Schedule != "" {
		if _, err := cron.ParseStandard(c.Schedule); err != nil {
			return invalid("schedule %q: %v", c.Schedule, err)
		}
	}
	return nil
}

func (w WorkflowConfig) validate() error {
	src, err := aggregate.ParseStatusSource(w.StatusSource)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	if src == aggregate.Authoritative && w.StatusInput == "" {
		return invalid("workflow.status_input is required for the authoritative status source")
	}
	if _, err := aggregate.ParseMeanMode(w.MeanMode); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	if _, err := w.CohortList(); err != nil {
		return err
	}
	if _, err := w.StatusMapping(); err != nil {
		return err
	}
	if _, err := w.Scheme(); err != nil {
		return err
	}
	c := w.Columns
	if c.ID == "" || c.Level == "" || c.Status == "" || c.Timestamp == "" {
		return invalid("workflow.columns id, level, status and timestamp must be set")
	}
	return nil
}

// AsOfTime resolves the reference date; empty falls back to now.
func (c *Config) AsOfTime(now time.Time) (time.Time, error) {
	if c.AsOf == "" {
		return now, nil
	}
	t, err := time.Parse(AsOfLayout, c.AsOf)
	if err != nil {
		return time.Time{}, invalid("as_of %q: want YYYY-MM-DD", c.AsOf)
	}
	return t, nil
}

// EventColumns converts the column names for the source decoder.
func (w WorkflowConfig) EventColumns() source.EventColumns {
	return source.EventColumns{
		ID:        w.Columns.ID,
		Level:     w.Columns.Level,
		Status:    w.Columns.Status,
		Timestamp: w.Columns.Timestamp,
		Process:   w.Columns.Process,
	}
}

// DateParser builds the timestamp parser; the workflow layout is the default.
func (w WorkflowConfig) DateParser() source.DateParser {
	layouts := w.DateLayouts
	if len(layouts) == 0 {
		layouts = []string{source.WorkflowLayout}
	}
	return source.NewDateParser(layouts, w.ExcelSerials)
}

// Source returns the parsed status source.
func (w WorkflowConfig) Source() aggregate.StatusSource {
	s, _ := aggregate.ParseStatusSource(w.StatusSource)
	return s
}

// Mean returns the parsed mean mode.
func (w WorkflowConfig) Mean() aggregate.MeanMode {
	m, _ := aggregate.ParseMeanMode(w.MeanMode)
	return m
}

// CohortList resolves the configured cohorts; empty means all.
func (w WorkflowConfig) CohortList() ([]status.Cohort, error) {
	cs, err := status.ParseCohorts(w.Cohorts)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	return cs, nil
}

// StatusMapping builds the mapping with reinterpretations and overrides.
func (w WorkflowConfig) StatusMapping() (status.Mapping, error) {
	m, err := status.MappingByName(w.Mapping)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	over := make(map[string]status.Category)

	switch strings.ToLower(w.SentBackAs) {
	case "", "sent_back":
	case "in_process":
		over["Back for review"] = status.InProcess
	default:
		return nil, invalid("workflow.sent_back_as must be sent_back or in_process, got %q", w.SentBackAs)
	}
	switch strings.ToLower(w.Code3As) {
	case "", "rejected":
	case "sent_back":
		over["3"] = status.SentBack
	default:
		return nil, invalid("workflow.code3_as must be rejected or sent_back, got %q", w.Code3As)
	}

	for raw, name := range w.MappingOverrides {
		cat, err := status.ParseCategory(name)
		if err != nil {
			return nil, fmt.Errorf("%w: mapping override %q: %w", ErrInvalidConfig, raw, err)
		}
		over[raw] = cat
	}
	return m.With(over), nil
}

// Scheme returns the workflow bin scheme.
func (w WorkflowConfig) Scheme() (binning.Scheme, error) {
	return w.Bins.scheme(binning.Workflow, false)
}

// Scheme returns the period bin scheme.
func (p PeriodsConfig) Scheme() (binning.Scheme, error) {
	return p.Bins.scheme(binning.Period, true)
}

// DateParser builds the parser for lifecycle date columns.
func (p PeriodsConfig) DateParser() source.DateParser {
	return source.NewDateParser(p.DateLayouts, p.ExcelSerials)
}

func (b BinsConfig) scheme(def binning.Scheme, rightClosed bool) (binning.Scheme, error) {
	if len(b.Edges) == 0 && len(b.Labels) == 0 {
		return def, nil
	}
	s, err := binning.New(b.Edges, b.Labels, rightClosed)
	if err != nil {
		return binning.Scheme{}, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	return s, nil
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidConfig, fmt.Sprintf(format, args...))
}
