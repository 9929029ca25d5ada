package service

import (
	"context"
	"fmt"

	"github.com/okian/regflow/pkg/logger"
	"github.com/robfig/cron/v3"
)

// RunScheduled runs the batch on a cron schedule until ctx is cancelled.
// A run still in progress when the next one is due makes that one skip.
func (s *Service) RunScheduled(ctx context.Context, spec string) error {
	cl := cronLogger{ctx: ctx, l: s.logger}
	c := cron.New(
		cron.WithLogger(cl),
		cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
	)
	id, err := c.AddFunc(spec, func() {
		if _, err := s.Run(ctx); err != nil {
			s.logger.Error(ctx, "scheduled run failed", logger.Error(err))
		}
	})
	if err != nil {
		return fmt.Errorf("schedule %q: %w", spec, err)
	}
	c.Start()
	s.logger.Info(ctx, "scheduler started",
		logger.String("schedule", spec),
		logger.Time("next", c.Entry(id).Next),
	)

	<-ctx.Done()
	<-c.Stop().Done()
	s.logger.Info(ctx, "scheduler stopped")
	return nil
}

// cronLogger adapts logger.Logger to cron.Logger.
type cronLogger struct {
	ctx context.Context //nolint:containedctx // cron.Logger has no context parameter
	l   logger.Logger
}

func (c cronLogger) Info(msg string, keysAndValues ...any) {
	c.l.Debug(c.ctx, "cron: "+msg, pairs(keysAndValues)...)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...any) {
	c.l.Error(c.ctx, "cron: "+msg, append(pairs(keysAndValues), logger.Error(err))...)
}

func pairs(kv []any) []logger.Field {
	fields := make([]logger.Field, 0, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		fields = append(fields, logger.Any(fmt.Sprint(kv[i]), kv[i+1]))
	}
	return fields
}
