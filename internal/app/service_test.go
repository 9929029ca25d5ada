package service_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/okian/regflow/internal/adapters/notify"
	"github.com/okian/regflow/internal/adapters/report"
	"github.com/okian/regflow/internal/adapters/repository"
	service "github.com/okian/regflow/internal/app"
	"github.com/okian/regflow/internal/config"
	"github.com/okian/regflow/internal/domain/period"
	"github.com/okian/regflow/internal/sampledata"
	"github.com/okian/regflow/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

var fixedNow = time.Date(2025, 6, 30, 12, 0, 0, 0, time.UTC)

type recordingNotifier struct {
	mu   sync.Mutex
	sent []notify.Summary
}

func (n *recordingNotifier) Notify(_ context.Context, s notify.Summary) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, s)
	return nil
}

type inputs struct {
	dir       string
	workflow  string
	status    string
	lifecycle string
	dataset   sampledata.Dataset
}

func writeInputs(t *testing.T, apps int) inputs {
	t.Helper()
	cfg := sampledata.DefaultConfig()
	cfg.Applications = apps
	ds := sampledata.Generate(cfg)
	dir := t.TempDir()
	in := inputs{
		dir:       dir,
		workflow:  filepath.Join(dir, "in", "workflow.csv"),
		status:    filepath.Join(dir, "in", "status.csv"),
		lifecycle: filepath.Join(dir, "in", "lifecycle.csv"),
		dataset:   ds,
	}
	if err := ds.WriteWorkflowCSV(in.workflow); err != nil {
		t.Fatal(err)
	}
	if err := ds.WriteStatusCSV(in.status); err != nil {
		t.Fatal(err)
	}
	if err := ds.WriteLifecycleCSV(in.lifecycle); err != nil {
		t.Fatal(err)
	}
	return in
}

func lifecycleJob(input string) period.Job {
	return period.Job{
		Name:    "decision time",
		Input:   input,
		GroupBy: "company_type",
		Spans: []period.Span{
			{Label: "submitted to decided", Start: "submitted_date", End: "decided_date"},
			{
				Label:  "pending",
				Start:  "submitted_date",
				End:    period.AsOf,
				Filter: []period.ColumnFilter{{Column: "status", Values: []string{"In Process"}}},
			},
		},
	}
}

func baseConfig(in inputs) *config.Config {
	cfg := config.New()
	cfg.OutputDir = filepath.Join(in.dir, "out")
	cfg.AsOf = "2025-06-30"
	cfg.Workers = 4
	cfg.Workflow.Input = in.workflow
	cfg.Workflow.Processes = []string{"Industry Registration", "Trade License"}
	cfg.Periods.Jobs = []period.Job{lifecycleJob(in.lifecycle)}
	return cfg
}

func newService(cfg *config.Config, opts ...service.Option) *service.Service {
	base := []service.Option{
		service.WithConfig(cfg),
		service.WithLogger(logger.Discard()),
		service.WithClock(func() time.Time { return fixedNow }),
		service.WithRunID(func() string { return "run-1" }),
	}
	return service.New(append(base, opts...)...)
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func TestService_Run(t *testing.T) {
	Convey("Given generated exports and a full configuration", t, func() {
		in := writeInputs(t, 150)
		cfg := baseConfig(in)
		cfg.Workflow.StatusInput = in.status
		cfg.Workflow.StatusSource = "authoritative"
		cfg.Workflow.Mapping = "authoritative"

		store, err := repository.Open(context.Background(), repository.DriverSQLite, filepath.Join(in.dir, "runs.db"))
		So(err, ShouldBeNil)
		defer store.Close()
		notifier := &recordingNotifier{}
		svc := newService(cfg, service.WithStore(store), service.WithNotifier(notifier))

		Convey("When running once", func() {
			rep, err := svc.Run(context.Background())

			Convey("Then every job succeeds in definition order", func() {
				So(err, ShouldBeNil)
				So(rep.RunID, ShouldEqual, "run-1")
				So(len(rep.Jobs), ShouldEqual, 2*(1+7)+1)
				So(rep.Failed(), ShouldEqual, 0)
				So(rep.Jobs[0].Name, ShouldEqual, "Industry Registration/status")
				So(rep.Jobs[1].Name, ShouldEqual, "Industry Registration/approved")
				So(rep.Jobs[len(rep.Jobs)-1].Kind, ShouldEqual, service.KindPeriod)
				So(rep.Applications(), ShouldBeGreaterThan, 0)
			})

			Convey("Then duplicates and bad rows are accounted for", func() {
				So(rep.Load.Duplicates, ShouldEqual, in.dataset.Duplicates())
				So(rep.Load.Events, ShouldEqual, in.dataset.Events())
				So(rep.Load.Dropped, ShouldEqual, in.dataset.BadRows())
				So(rep.Load.StatusEntries, ShouldBeGreaterThan, 0)
			})

			Convey("Then CSV files, charts and the manifest are written", func() {
				out := cfg.OutputDir
				So(exists(filepath.Join(out, "industry_registration_approved_bins.csv")), ShouldBeTrue)
				So(exists(filepath.Join(out, "industry_registration_approved_transitions.csv")), ShouldBeTrue)
				So(exists(filepath.Join(out, "industry_registration_approved_transitions.png")), ShouldBeTrue)
				So(exists(filepath.Join(out, "trade_license_status.png")), ShouldBeTrue)
				So(exists(filepath.Join(out, "decision_time_stats.csv")), ShouldBeTrue)
				So(exists(filepath.Join(out, "decision_time_boxplot.png")), ShouldBeTrue)

				m, err := report.ReadManifest(filepath.Join(out, report.ManifestName))
				So(err, ShouldBeNil)
				So(m.RunID, ShouldEqual, "run-1")
				So(m.AsOf, ShouldEqual, "2025-06-30")
				So(len(m.Jobs), ShouldEqual, len(rep.Jobs))
				So(len(m.Files), ShouldEqual, len(rep.Files))
			})

			Convey("Then the run is stored and announced", func() {
				last, err := store.LastRun(context.Background())
				So(err, ShouldBeNil)
				So(last.ID, ShouldEqual, "run-1")
				So(len(notifier.sent), ShouldEqual, 1)
				So(notifier.sent[0].Jobs, ShouldEqual, len(rep.Jobs))
			})

			Convey("Then the report is available afterwards", func() {
				got, ok := svc.LastReport()
				So(ok, ShouldBeTrue)
				So(got, ShouldEqual, rep)
			})
		})
	})

	Convey("Given a period job referencing a missing column", t, func() {
		in := writeInputs(t, 40)
		cfg := baseConfig(in)
		cfg.Charts = false
		broken := lifecycleJob(in.lifecycle)
		broken.Name = "broken"
		broken.Spans[0].End = "registered_date"
		cfg.Periods.Jobs = append(cfg.Periods.Jobs, broken)

		Convey("When running without fail-fast", func() {
			rep, err := newService(cfg).Run(context.Background())

			Convey("Then the other jobs still finish", func() {
				So(errors.Is(err, service.ErrJobsFailed), ShouldBeTrue)
				So(rep.Failed(), ShouldEqual, 1)
				last := rep.Jobs[len(rep.Jobs)-1]
				So(last.Name, ShouldEqual, "broken")
				So(last.Error, ShouldContainSubstring, "registered_date")
				So(exists(filepath.Join(cfg.OutputDir, "decision_time_stats.csv")), ShouldBeTrue)
			})

			Convey("Then the manifest records the failure", func() {
				m, err := report.ReadManifest(filepath.Join(cfg.OutputDir, report.ManifestName))
				So(err, ShouldBeNil)
				So(m.Jobs[len(m.Jobs)-1].Error, ShouldNotBeEmpty)
			})
		})

		Convey("When running fail-fast on one worker with the broken job first", func() {
			cfg.Workers = 1
			cfg.FailFast = true
			cfg.Workflow.Input = ""
			cfg.Periods.Jobs = []period.Job{broken, lifecycleJob(in.lifecycle)}
			rep, err := newService(cfg).Run(context.Background())

			Convey("Then the remaining jobs are skipped", func() {
				So(errors.Is(err, service.ErrJobsFailed), ShouldBeTrue)
				So(rep.Jobs[0].Failed(), ShouldBeTrue)
				So(rep.Jobs[1].Skipped, ShouldBeTrue)
			})
		})
	})

	Convey("Given a workflow input that does not exist", t, func() {
		in := writeInputs(t, 10)
		cfg := baseConfig(in)
		cfg.Workflow.Input = filepath.Join(in.dir, "missing.csv")

		Convey("Then the run fails before any job", func() {
			rep, err := newService(cfg).Run(context.Background())
			So(errors.Is(err, service.ErrLoadInput), ShouldBeTrue)
			So(rep.Jobs, ShouldBeEmpty)
			So(rep.Errors, ShouldNotBeEmpty)
			So(exists(filepath.Join(cfg.OutputDir, report.ManifestName)), ShouldBeTrue)
		})
	})

	Convey("Given a metrics textfile path", t, func() {
		in := writeInputs(t, 20)
		cfg := baseConfig(in)
		cfg.Charts = false
		cfg.MetricsTextfile = filepath.Join(in.dir, "regflow.prom")

		Convey("Then the registry is written after the run", func() {
			_, err := newService(cfg).Run(context.Background())
			So(err, ShouldBeNil)
			b, err := os.ReadFile(cfg.MetricsTextfile)
			So(err, ShouldBeNil)
			So(string(b), ShouldContainSubstring, "regflow_batch_run_duration_seconds")
		})
	})
}

func TestService_LastReportBeforeRun(t *testing.T) {
	Convey("Given a new service", t, func() {
		svc := service.New(service.WithLogger(logger.Discard()))

		Convey("Then no report is available", func() {
			_, ok := svc.LastReport()
			So(ok, ShouldBeFalse)
			So(svc.Report(), ShouldBeNil)
		})
	})
}

func TestService_RunScheduled(t *testing.T) {
	Convey("Given a service on a one-second schedule", t, func() {
		in := writeInputs(t, 20)
		cfg := baseConfig(in)
		cfg.Charts = false
		svc := newService(cfg)

		Convey("When the scheduler runs until the context ends", func() {
			ctx, cancel := context.WithTimeout(context.Background(), 2500*time.Millisecond)
			defer cancel()
			err := svc.RunScheduled(ctx, "@every 1s")

			Convey("Then at least one run finished", func() {
				So(err, ShouldBeNil)
				So(svc.Report(), ShouldNotBeNil)
			})
		})

		Convey("When the schedule is invalid", func() {
			err := svc.RunScheduled(context.Background(), "every day")
			So(err, ShouldNotBeNil)
		})
	})
}
