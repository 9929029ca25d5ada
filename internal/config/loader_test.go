package config_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/okian/regflow/internal/config"
	"github.com/smartystreets/goconvey/convey"
)

func TestConfigLoader(t *testing.T) {
	convey.Convey("Given a config loader", t, func() {
		ctx := context.Background()
		clearConfigEnvVars()

		convey.Convey("When loading a YAML file", func() {
			path := writeConfig(t, `
log_level: debug
output_dir: /tmp/regflow
as_of: "2026-01-25"
workers: 4
workflow:
  input: Industry_workflow_history.csv
  status_input: menuwise_last_date.csv
  status_source: authoritative
  cohorts: [approved, sent_back]
  mean_mode: present
  bins:
    edges: [0, 7, 30, .inf]
    labels: [week, month, later]
periods:
  jobs:
    - name: deregistration
      input: deregistration.csv
      group_by: de_registration_type
      spans:
        - label: Submitted to Approved
          start: submitted_date
          end: approved_date
          filter:
            - column: application_status
              values: [APPROVED]
        - label: Pending
          start: submitted_date
          end: "@as_of"
sink:
  driver: sqlite3
  dsn: file:regflow.db
`)
			cfg, err := config.Load(ctx, path)

			convey.Convey("Then file values override defaults", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.LogLevel, convey.ShouldEqual, "debug")
				convey.So(cfg.Workers, convey.ShouldEqual, 4)
				convey.So(cfg.Workflow.Cohorts, convey.ShouldResemble, []string{"approved", "sent_back"})
				convey.So(cfg.Workflow.Columns.ID, convey.ShouldEqual, "table_data_id") // default kept
				convey.So(cfg.Periods.Jobs, convey.ShouldHaveLength, 1)
				convey.So(cfg.Periods.Jobs[0].Spans[0].Filter[0].Values, convey.ShouldResemble, []string{"APPROVED"})
				convey.So(cfg.Periods.Jobs[0].Spans[1].End, convey.ShouldEqual, "@as_of")
				convey.So(cfg.Sink.Driver, convey.ShouldEqual, "sqlite3")
			})

			convey.Convey("Then the custom bins resolve", func() {
				s, err := cfg.Workflow.Scheme()
				convey.So(err, convey.ShouldBeNil)
				convey.So(s.Len(), convey.ShouldEqual, 3)
				_, label := s.Assign(10)
				convey.So(label, convey.ShouldEqual, "month")
			})
		})

		convey.Convey("When the file path comes from the environment", func() {
			path := writeConfig(t, "workflow:\n  input: a.csv\nworkers: 2\n")
			_ = os.Setenv(config.EnvConfig, path)
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx, "")

			convey.Convey("Then it is read", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Workers, convey.ShouldEqual, 2)
			})
		})

		convey.Convey("When environment variables are set as well", func() {
			path := writeConfig(t, "workflow:\n  input: a.csv\n  mean_mode: present\nworkers: 2\n")
			_ = os.Setenv("REGFLOW_WORKERS", "8")
			_ = os.Setenv("REGFLOW_WORKFLOW__MEAN_MODE", "bin")
			_ = os.Setenv("REGFLOW_SLACK__TOKEN", "xoxb-test")
			_ = os.Setenv("REGFLOW_SLACK__CHANNEL", "#reports")
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx, path)

			convey.Convey("Then environment variables win", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Workers, convey.ShouldEqual, 8)
				convey.So(cfg.Workflow.MeanMode, convey.ShouldEqual, "bin")
				convey.So(cfg.Workflow.Input, convey.ShouldEqual, "a.csv")
				convey.So(cfg.Slack.Enabled(), convey.ShouldBeTrue)
			})
		})

		convey.Convey("When the YAML is malformed", func() {
			path := writeConfig(t, `invalid: yaml: content: [`)
			cfg, err := config.Load(ctx, path)

			convey.Convey("Then loading fails", func() {
				convey.So(errors.Is(err, config.ErrLoadConfig), convey.ShouldBeTrue)
				convey.So(cfg, convey.ShouldBeNil)
			})
		})

		convey.Convey("When the file does not exist", func() {
			cfg, err := config.Load(ctx, "/non/existent/file.yaml")

			convey.Convey("Then loading fails", func() {
				convey.So(errors.Is(err, config.ErrLoadConfig), convey.ShouldBeTrue)
				convey.So(cfg, convey.ShouldBeNil)
			})
		})

		convey.Convey("When a numeric variable is not a number", func() {
			_ = os.Setenv("REGFLOW_WORKFLOW__INPUT", "a.csv")
			_ = os.Setenv("REGFLOW_WORKERS", "many")
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx, "")

			convey.Convey("Then loading fails", func() {
				convey.So(err, convey.ShouldNotBeNil)
				convey.So(cfg, convey.ShouldBeNil)
			})
		})

		convey.Convey("When the loaded values are invalid", func() {
			_ = os.Setenv("REGFLOW_WORKFLOW__INPUT", "a.csv")
			_ = os.Setenv("REGFLOW_WORKFLOW__COHORTS", "sometimes")
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx, "")

			convey.Convey("Then validation fails", func() {
				convey.So(errors.Is(err, config.ErrInvalidConfig), convey.ShouldBeTrue)
				convey.So(cfg, convey.ShouldBeNil)
			})
		})
	})
}

// Helper functions.

func clearConfigEnvVars() {
	for _, kv := range os.Environ() {
		for i := 0; i < len(kv); i++ {
			if kv[i] == '=' {
				if name := kv[:i]; len(name) >= len(config.EnvPrefix) && name[:len(config.EnvPrefix)] == config.EnvPrefix {
					_ = os.Unsetenv(name)
				}
				break
			}
		}
	}
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "regflow.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}
