package main

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/okian/regflow/internal/adapters/report"
	"github.com/okian/regflow/internal/sampledata"
	"github.com/smartystreets/goconvey/convey"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "regflow.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestRun(t *testing.T) {
	convey.Convey("Given generated exports and a config file", t, func() {
		dir := t.TempDir()
		ds := sampledata.Generate(sampledata.DefaultConfig())
		workflow := filepath.Join(dir, "workflow.csv")
		convey.So(ds.WriteWorkflowCSV(workflow), convey.ShouldBeNil)
		out := filepath.Join(dir, "out")
		cfgPath := writeConfig(t, fmt.Sprintf(`
log_level: warn
output_dir: %q
charts: false
as_of: "2025-06-30"
workflow:
  input: %q
  cohorts: [approved_l4plus, rejected]
sink:
  driver: sqlite3
  dsn: %q
`, out, workflow, filepath.Join(dir, "runs.db")))

		convey.Convey("When running once", func() {
			var stderr bytes.Buffer
			code := run(context.Background(), []string{"-config", cfgPath, "-once"}, &stderr)

			convey.Convey("Then it exits cleanly and writes the manifest", func() {
				convey.So(code, convey.ShouldEqual, exitOK)
				m, err := report.ReadManifest(filepath.Join(out, report.ManifestName))
				convey.So(err, convey.ShouldBeNil)
				convey.So(len(m.Jobs), convey.ShouldEqual, 2*(1+2))
				convey.So(m.Files, convey.ShouldNotBeEmpty)
			})
		})
	})

	convey.Convey("Given an invalid configuration", t, func() {
		cfgPath := writeConfig(t, "workers: 0\n")

		convey.Convey("Then run exits with a failure", func() {
			var stderr bytes.Buffer
			code := run(context.Background(), []string{"-config", cfgPath}, &stderr)
			convey.So(code, convey.ShouldEqual, exitFailure)
			convey.So(stderr.String(), convey.ShouldContainSubstring, "failed to load config")
		})
	})

	convey.Convey("Given an unknown flag", t, func() {
		var stderr bytes.Buffer
		code := run(context.Background(), []string{"-bogus"}, &stderr)
		convey.So(code, convey.ShouldEqual, exitFailure)
	})

	convey.Convey("Given a workflow input that cannot be read", t, func() {
		dir := t.TempDir()
		cfgPath := writeConfig(t, fmt.Sprintf("output_dir: %q\nworkflow:\n  input: %q\n", filepath.Join(dir, "out"), filepath.Join(dir, "nope.csv")))

		convey.Convey("Then the run fails with exit code 1", func() {
			var stderr bytes.Buffer
			code := run(context.Background(), []string{"-config", cfgPath}, &stderr)
			convey.So(code, convey.ShouldEqual, exitFailure)
		})
	})
}
