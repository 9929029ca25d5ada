package api_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/okian/regflow/internal/adapters/http/api"
	"github.com/okian/regflow/internal/adapters/repository"
	"github.com/okian/regflow/pkg/logger"
	"github.com/okian/regflow/pkg/metrics"
	. "github.com/smartystreets/goconvey/convey"
)

func init() {
	if err := logger.Init(logger.WithWriter(io.Discard)); err != nil {
		panic(err)
	}
}

type mockReports struct {
	report any
	ok     bool
}

func (m *mockReports) LastReport() (any, bool) { return m.report, m.ok }

type mockRuns struct {
	run repository.RunSummary
	err error
}

func (m *mockRuns) LastRun(context.Context) (repository.RunSummary, error) { return m.run, m.err }

func serve(mux *http.ServeMux, method, path string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)
	return w
}

func TestServer_Register(t *testing.T) {
	Convey("Given a server with a finished run", t, func() {
		reports := &mockReports{report: map[string]any{"run_id": "r1", "jobs": 3}, ok: true}
		runs := &mockRuns{run: repository.RunSummary{
			ID:        "r1",
			StartedAt: time.Date(2026, 1, 25, 8, 0, 0, 0, time.UTC),
			Jobs:      3,
			Failures:  1,
		}}
		mux := http.NewServeMux()
		api.NewServer(reports, runs).Register(mux)

		Convey("When requesting /healthz", func() {
			metrics.RecordFileWritten("png")
			w := serve(mux, http.MethodGet, "/healthz")

			Convey("Then the metrics registry is served", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				So(w.Body.String(), ShouldContainSubstring, "regflow_batch_files_written_total")
			})
		})

		Convey("When requesting /report", func() {
			w := serve(mux, http.MethodGet, "/report")

			Convey("Then the report is returned as JSON", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				So(w.Header().Get("Content-Type"), ShouldStartWith, "application/json")
				var body map[string]any
				So(json.Unmarshal(w.Body.Bytes(), &body), ShouldBeNil)
				So(body["run_id"], ShouldEqual, "r1")
			})
		})

		Convey("When posting to /report", func() {
			w := serve(mux, http.MethodPost, "/report")
			So(w.Code, ShouldEqual, http.StatusNotFound)
		})

		Convey("When requesting /runs/last", func() {
			w := serve(mux, http.MethodGet, "/runs/last")

			Convey("Then the stored header is returned", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				var body map[string]any
				So(json.Unmarshal(w.Body.Bytes(), &body), ShouldBeNil)
				So(body["id"], ShouldEqual, "r1")
				So(body["failures"], ShouldEqual, 1.0)
			})
		})
	})

	Convey("Given a server before the first run", t, func() {
		mux := http.NewServeMux()
		api.NewServer(&mockReports{}, &mockRuns{err: repository.ErrNotFound}).Register(mux)

		Convey("Then /report is not found", func() {
			w := serve(mux, http.MethodGet, "/report")
			So(w.Code, ShouldEqual, http.StatusNotFound)
			So(w.Body.String(), ShouldContainSubstring, "not_found")
		})

		Convey("Then /runs/last is not found", func() {
			w := serve(mux, http.MethodGet, "/runs/last")
			So(w.Code, ShouldEqual, http.StatusNotFound)
		})
	})

	Convey("Given a failing run store", t, func() {
		mux := http.NewServeMux()
		api.NewServer(&mockReports{}, &mockRuns{err: errors.New("db down")}).Register(mux)

		Convey("Then /runs/last reports an internal error", func() {
			w := serve(mux, http.MethodGet, "/runs/last")
			So(w.Code, ShouldEqual, http.StatusInternalServerError)
		})
	})

	Convey("Given a server without a run store", t, func() {
		mux := http.NewServeMux()
		api.NewServer(&mockReports{}, nil).Register(mux)

		Convey("Then /runs/last is not routed", func() {
			w := serve(mux, http.MethodGet, "/runs/last")
			So(w.Code, ShouldEqual, http.StatusNotFound)
		})
	})
}

func TestListenAndServe(t *testing.T) {
	Convey("Given a server on a free port", t, func() {
		srv := api.NewServer(&mockReports{}, nil)
		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan error, 1)
		go func() { done <- srv.ListenAndServe(ctx, "127.0.0.1:0") }()

		Convey("When the context is cancelled", func() {
			time.Sleep(50 * time.Millisecond)
			cancel()

			Convey("Then the server shuts down cleanly", func() {
				select {
				case err := <-done:
					So(err, ShouldBeNil)
				case <-time.After(5 * time.Second):
					So("timeout", ShouldBeEmpty)
				}
			})
		})
	})
}
