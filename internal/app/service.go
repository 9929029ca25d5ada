// Package service runs the configured analyses and publishes their results.
package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/okian/regflow/internal/adapters/notify"
	"github.com/okian/regflow/internal/adapters/render"
	"github.com/okian/regflow/internal/adapters/report"
	"github.com/okian/regflow/internal/adapters/repository"
	"github.com/okian/regflow/internal/config"
	"github.com/okian/regflow/internal/domain/period"
	"github.com/okian/regflow/pkg/logger"
	"github.com/okian/regflow/pkg/metrics"
	"golang.org/x/sync/errgroup"
)

// Service runs analysis batches. Runs are serialized; the last report can
// be read concurrently.
type Service struct {
	cfg      *config.Config
	logger   logger.Logger
	store    repository.Store
	notifier notify.Notifier
	renderer *render.Renderer
	now      func() time.Time
	newID    func() string

	runMu sync.Mutex

	mu   sync.RWMutex
	last *RunReport
}

// New constructs a Service. Without WithConfig it uses config defaults,
// which have no inputs.
func New(opts ...Option) *Service {
	s := &Service{
		cfg:   config.New(),
		now:   time.Now,
		newID: uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = logger.Get().Named("service")
	}
	if s.renderer == nil {
		s.renderer = render.New(render.WithLabelPrefix(s.cfg.Workflow.LabelPrefix))
	}
	return s
}

// LastReport returns the report of the last finished run.
func (s *Service) LastReport() (any, bool) {
	r := s.Report()
	return r, r != nil
}

// Report returns the last finished run, or nil.
func (s *Service) Report() *RunReport {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.last
}

type job struct {
	report JobReport
	run    func(ctx context.Context) (jobResult, error)
}

type jobResult struct {
	applications int
	workflow     *repository.WorkflowResult
	period       *period.Result
}

// runState is shared by the jobs of one run.
type runState struct {
	w      *report.Writer
	asOf   time.Time
	tables *tableCache
}

// Run executes every configured job once. Job failures are collected in
// the report; the returned error wraps ErrJobsFailed when any job failed.
// Errors loading the shared workflow input abort the run.
func (s *Service) Run(ctx context.Context) (*RunReport, error) {
	s.runMu.Lock()
	defer s.runMu.Unlock()

	cfg := s.cfg
	started := s.now()
	asOf, err := cfg.AsOfTime(started)
	if err != nil {
		return nil, err
	}
	rep := &RunReport{
		RunID:     s.newID(),
		StartedAt: started,
		AsOf:      asOf.Format(config.AsOfLayout),
		OutputDir: cfg.OutputDir,
	}
	log := s.logger
	log.Info(ctx, "run started",
		logger.String("run_id", rep.RunID),
		logger.String("as_of", rep.AsOf),
		logger.Int("workers", cfg.Workers),
	)

	st := &runState{
		w:      report.NewWriter(cfg.OutputDir, report.WithOnWrite(metrics.RecordFileWritten)),
		asOf:   asOf,
		tables: newTableCache(),
	}

	var runErr error
	var results []jobResult
	jobs, err := s.plan(ctx, st, rep)
	if err != nil {
		runErr = err
		rep.Errors = append(rep.Errors, err.Error())
	} else {
		results, runErr = s.execute(ctx, jobs, rep)
	}
	rep.FinishedAt = s.now()

	if err == nil && s.store != nil {
		serr := s.store.SaveRun(ctx, toRun(rep, results))
		metrics.RecordSinkWrite(serr)
		if serr != nil {
			serr = fmt.Errorf("%w: %w", ErrSink, serr)
			log.Error(ctx, "saving run failed", logger.String("run_id", rep.RunID), logger.Error(serr))
			rep.Errors = append(rep.Errors, serr.Error())
			runErr = errors.Join(runErr, serr)
		}
	}

	if merr := st.w.WriteManifest(rep.manifest()); merr != nil {
		log.Error(ctx, "writing manifest failed", logger.Error(merr))
		rep.Errors = append(rep.Errors, merr.Error())
		runErr = errors.Join(runErr, merr)
	}
	rep.Files = st.w.Files()

	metrics.RecordRun(rep.Duration(), runErr == nil, rep.FinishedAt)
	if cfg.MetricsTextfile != "" {
		if terr := metrics.WriteTextfile(cfg.MetricsTextfile); terr != nil {
			log.Warn(ctx, "writing metrics textfile failed", logger.Error(terr))
			rep.Errors = append(rep.Errors, terr.Error())
		}
	}

	if s.notifier != nil {
		nerr := s.notifier.Notify(ctx, rep.Summary())
		metrics.RecordNotification(nerr)
		if nerr != nil {
			log.Warn(ctx, "run notification failed", logger.Error(nerr))
		}
	}

	s.mu.Lock()
	s.last = rep
	s.mu.Unlock()

	log.Info(ctx, "run finished",
		logger.String("run_id", rep.RunID),
		logger.Int("jobs", len(rep.Jobs)),
		logger.Int("failed", rep.Failed()),
		logger.Int("files", len(rep.Files)),
		logger.Duration("took", rep.Duration()),
	)
	return rep, runErr
}

// execute runs jobs with at most cfg.Workers in flight. Reports and
// results keep the job order.
func (s *Service) execute(ctx context.Context, jobs []job, rep *RunReport) ([]jobResult, error) {
	cfg := s.cfg
	results := make([]jobResult, len(jobs))
	rep.Jobs = make([]JobReport, len(jobs))
	for i, j := range jobs {
		rep.Jobs[i] = j.report
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(cfg.Workers, 1))
	for i := range jobs {
		i := i
		g.Go(func() error {
			jr := &rep.Jobs[i]
			if gctx.Err() != nil {
				jr.Skipped = true
				return nil
			}
			start := time.Now()
			res, err := jobs[i].run(gctx)
			jr.Duration = time.Since(start)
			jr.Applications = res.applications
			metrics.RecordJob(jr.Kind, jr.Duration, err != nil)
			if err != nil {
				jr.Error = err.Error()
				s.logger.Error(gctx, "job failed",
					logger.String("job", jr.Name),
					logger.String("kind", jr.Kind),
					logger.Error(err),
				)
				if cfg.FailFast {
					return fmt.Errorf("%s: %w", jr.Name, err)
				}
				return nil
			}
			results[i] = res
			s.logger.Debug(gctx, "job finished",
				logger.String("job", jr.Name),
				logger.Int("applications", res.applications),
				logger.Duration("took", jr.Duration),
			)
			return nil
		})
	}
	_ = g.Wait()

	var err error
	if failed := rep.Failed(); failed > 0 {
		err = fmt.Errorf("%w: %d of %d", ErrJobsFailed, failed, len(jobs))
	}
	if ctx.Err() != nil {
		err = errors.Join(err, ctx.Err())
	}
	return results, err
}

func toRun(rep *RunReport, results []jobResult) repository.Run {
	run := repository.Run{
		ID:         rep.RunID,
		StartedAt:  rep.StartedAt,
		FinishedAt: rep.FinishedAt,
		AsOf:       rep.AsOf,
		Failures:   rep.Failed(),
	}
	for _, r := range results {
		if r.workflow != nil {
			run.Workflow = append(run.Workflow, *r.workflow)
		}
		if r.period != nil {
			run.Periods = append(run.Periods, *r.period)
		}
	}
	return run
}
