package metrics

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	. "github.com/smartystreets/goconvey/convey"
)

func TestMetricsManagerCreation(t *testing.T) {
	Convey("Given metrics manager creation", t, func() {
		Convey("When creating with custom options", func() {
			registry := prometheus.NewRegistry()
			manager := NewManager(
				WithNamespace("test"),
				WithSubsystem("unit"),
				WithHistogramBuckets([]float64{0.1, 1}),
				WithConstLabels(map[string]string{"site": "lab"}),
				WithPrometheusRegistry(registry),
			)
			manager.rowsRead.WithLabelValues("history").Add(3)

			Convey("Then collectors are registered under the namespace", func() {
				families, err := registry.Gather()
				So(err, ShouldBeNil)
				names := make([]string, 0, len(families))
				for _, f := range families {
					names = append(names, f.GetName())
				}
				So(names, ShouldContain, "test_unit_rows_read_total")
				So(testutil.ToFloat64(manager.rowsRead.WithLabelValues("history")), ShouldEqual, 3)
			})
		})
	})
}

func TestMetricsRecording(t *testing.T) {
	Convey("Given the global manager", t, func() {
		m := globalManager

		Convey("When recording input metrics", func() {
			before := testutil.ToFloat64(m.rowsDropped.WithLabelValues("bad_timestamp"))
			RecordRowsRead("history", 10)
			RecordRowsDropped("bad_timestamp", 2)
			RecordRowsDropped("bad_timestamp", 0)
			dupBefore := testutil.ToFloat64(m.eventsDuplicate)
			RecordEventDuplicates(4)

			Convey("Then counters move by the recorded amounts", func() {
				So(testutil.ToFloat64(m.rowsDropped.WithLabelValues("bad_timestamp"))-before, ShouldEqual, 2)
				So(testutil.ToFloat64(m.eventsDuplicate)-dupBefore, ShouldEqual, 4)
			})
		})

		Convey("When recording job outcomes", func() {
			before := testutil.ToFloat64(m.jobFailures.WithLabelValues("workflow"))
			RecordJob("workflow", 20*time.Millisecond, false)
			RecordJob("workflow", 30*time.Millisecond, true)

			Convey("Then only failed jobs count as failures", func() {
				So(testutil.ToFloat64(m.jobFailures.WithLabelValues("workflow"))-before, ShouldEqual, 1)
			})
		})

		Convey("When recording outputs", func() {
			RecordFileWritten("png")
			RecordSinkWrite(nil)
			RecordSinkWrite(errors.New("locked"))
			RecordNotification(nil)
			RecordApplicationsSummarized("Industry Registration", "approved", 7)

			Convey("Then results are split by label", func() {
				So(testutil.ToFloat64(m.sinkWrites.WithLabelValues("error")), ShouldBeGreaterThanOrEqualTo, 1)
				So(testutil.ToFloat64(m.applicationsSummarized.WithLabelValues("Industry Registration", "approved")), ShouldBeGreaterThanOrEqualTo, 7)
			})
		})

		Convey("When a run succeeds", func() {
			at := time.Unix(1_700_000_000, 0)
			RecordRun(time.Second, true, at)

			Convey("Then the success gauge holds its time", func() {
				So(testutil.ToFloat64(m.lastSuccessUnix), ShouldEqual, 1_700_000_000)
			})
		})

		Convey("When recording HTTP metrics", func() {
			So(func() {
				RecordHTTPRequest("/healthz", "GET", "200")
				RecordHTTPRequestDuration("/healthz", "GET", "200", 5*time.Millisecond)
			}, ShouldNotPanic)
		})
	})
}

func TestWriteTextfile(t *testing.T) {
	Convey("Given a textfile collector directory", t, func() {
		RecordRowsRead("textfile", 1)
		path := filepath.Join(t.TempDir(), "regflow.prom")

		Convey("When writing the registry", func() {
			err := WriteTextfile(path)

			Convey("Then the file holds the exposition format", func() {
				So(err, ShouldBeNil)
				body, err := os.ReadFile(path)
				So(err, ShouldBeNil)
				So(strings.Contains(string(body), "regflow_batch_rows_read_total"), ShouldBeTrue)
			})
		})

		Convey("When the directory does not exist", func() {
			err := WriteTextfile(filepath.Join(t.TempDir(), "missing", "x.prom"))

			Convey("Then the error is wrapped", func() {
				So(errors.Is(err, ErrWriteTextfile), ShouldBeTrue)
			})
		})
	})
}
