package repository_test

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/okian/regflow/internal/adapters/repository"
	"github.com/okian/regflow/internal/domain/aggregate"
	"github.com/okian/regflow/internal/domain/binning"
	"github.com/okian/regflow/internal/domain/model"
	"github.com/okian/regflow/internal/domain/period"
	"github.com/okian/regflow/internal/domain/stats"
	. "github.com/smartystreets/goconvey/convey"
)

func openStore(t *testing.T) (*repository.SQLStore, string) {
	t.Helper()
	dsn := filepath.Join(t.TempDir(), "regflow-test.db")
	s, err := repository.Open(context.Background(), repository.DriverSQLite, dsn, repository.WithLabelPrefix("L"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s, dsn
}

func sampleRun(id string, started time.Time) repository.Run {
	fwd := model.TransitionKey{From: 1, To: 3, Direction: model.Forward}
	back := model.TransitionKey{From: 3, To: 2, Direction: model.Backward}
	summaries := []model.ApplicationSummary{
		{ApplicationID: "a", ElapsedDays: 10, Transitions: map[model.TransitionKey]float64{fwd: 60, back: 40}},
	}
	vals := []float64{1, 2, 3}
	return repository.Run{
		ID:         id,
		StartedAt:  started,
		FinishedAt: started.Add(time.Minute),
		AsOf:       "2026-01-25",
		Workflow: []repository.WorkflowResult{{
			Process:      "Industry Registration",
			Cohort:       "approved",
			Distribution: aggregate.Distribute(summaries, binning.Workflow),
			Aggregates:   aggregate.Aggregate(summaries, binning.Workflow, aggregate.MeanOverBin),
		}},
		Periods: []period.Result{{
			Job: period.Job{Name: "company"},
			Spans: []period.SpanResult{{
				Span:    period.Span{Label: "Created to Approved"},
				Summary: stats.Describe(vals),
				Groups:  []period.GroupSummary{{Group: "Private", Summary: stats.Describe(vals[:2])}},
			}},
		}},
	}
}

func count(db *sql.DB, table string) int {
	var n int
	So(db.QueryRow("SELECT COUNT(*) FROM "+table).Scan(&n), ShouldBeNil)
	return n
}

func TestSQLStore(t *testing.T) {
	Convey("Given an empty SQLite sink", t, func() {
		ctx := context.Background()
		store, dsn := openStore(t)

		Convey("When nothing was saved", func() {
			_, err := store.LastRun(ctx)

			Convey("Then LastRun reports ErrNotFound", func() {
				So(errors.Is(err, repository.ErrNotFound), ShouldBeTrue)
			})
		})

		Convey("When two runs are saved", func() {
			base := time.Date(2026, 1, 25, 8, 0, 0, 0, time.UTC)
			So(store.SaveRun(ctx, sampleRun("run-1", base)), ShouldBeNil)
			So(store.SaveRun(ctx, sampleRun("run-2", base.Add(time.Hour))), ShouldBeNil)

			db, err := sql.Open("sqlite3", dsn)
			So(err, ShouldBeNil)
			defer func() { _ = db.Close() }()

			Convey("Then every row is stored", func() {
				So(count(db, "runs"), ShouldEqual, 2)
				So(count(db, "bin_aggregates"), ShouldEqual, 2*binning.Workflow.Len())
				So(count(db, "bin_transitions"), ShouldEqual, 4)
				So(count(db, "period_stats"), ShouldEqual, 4)
			})

			Convey("Then transitions keep labels and levels", func() {
				var label, dir string
				var from, to int
				var pct float64
				err := db.QueryRow(`SELECT transition, direction, from_level, to_level, percent FROM bin_transitions
					WHERE run_id = 'run-1' AND direction = 'backward'`).Scan(&label, &dir, &from, &to, &pct)
				So(err, ShouldBeNil)
				So(label, ShouldEqual, "L3←L2")
				So(from, ShouldEqual, 3)
				So(to, ShouldEqual, 2)
				So(pct, ShouldAlmostEqual, 40, 1e-9)
			})

			Convey("Then LastRun returns the newest header", func() {
				last, err := store.LastRun(ctx)
				So(err, ShouldBeNil)
				So(last.ID, ShouldEqual, "run-2")
				So(last.Jobs, ShouldEqual, 2)
				So(last.AsOf, ShouldEqual, "2026-01-25")
			})
		})

		Convey("When a run id repeats", func() {
			base := time.Date(2026, 1, 25, 8, 0, 0, 0, time.UTC)
			So(store.SaveRun(ctx, sampleRun("dup", base)), ShouldBeNil)
			err := store.SaveRun(ctx, sampleRun("dup", base))

			Convey("Then the second save fails and leaves no partial rows", func() {
				So(err, ShouldNotBeNil)
				db, err := sql.Open("sqlite3", dsn)
				So(err, ShouldBeNil)
				defer func() { _ = db.Close() }()
				So(count(db, "runs"), ShouldEqual, 1)
				So(count(db, "bin_aggregates"), ShouldEqual, binning.Workflow.Len())
			})
		})
	})

	Convey("Given an unknown driver", t, func() {
		_, err := repository.Open(context.Background(), "mysql", "x")
		So(errors.Is(err, repository.ErrUnsupportedDriver), ShouldBeTrue)
	})
}
