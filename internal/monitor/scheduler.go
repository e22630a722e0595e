package monitor

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	logx "vaultwatch/pkg/logx"
)

// Scheduler triggers a job from a ParsedSpec. Overlapping triggers are
// skipped while the previous run is still going.
type Scheduler struct {
	spec   ParsedSpec
	loc    *time.Location
	job    func(ctx context.Context)
	log    logx.Logger
	parser cron.Parser

	// RunOnStart fires the job once before the first scheduled time.
	RunOnStart bool
}

func NewScheduler(spec ParsedSpec, loc *time.Location, job func(ctx context.Context), log logx.Logger) (*Scheduler, error) {
	if loc == nil {
		loc = time.Local
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	s := &Scheduler{
		spec: spec,
		loc:  loc,
		job:  job,
		log:  log.With(logx.String("comp", "scheduler")),
		parser:     cronParser,
		RunOnStart: true,
	}
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

// Run blocks until ctx is done. A SpecOnce schedule runs the job a single
// time and returns.
func (s *Scheduler) Run(ctx context.Context) error {
	if s.spec.Kind == SpecOnce {
		s.job(ctx)
		return nil
	}

	clog := cronLogger{log: s.log}
	c := cron.New(
		cron.WithParser(s.parser),
		cron.WithLocation(s.loc),
		cron.WithLogger(clog),
		cron.WithChain(cron.Recover(clog), cron.SkipIfStillRunning(clog)),
	)
	job := cron.FuncJob(func() { s.job(ctx) })

	var (
		id  cron.EntryID
		err error
	)
	switch s.spec.Kind {
	case SpecInterval:
		id = c.Schedule(cron.Every(s.spec.Every), job)
	default:
		id, err = c.AddJob(s.spec.Cron, job)
	}
	if err != nil {
		return err
	}

	if s.RunOnStart {
		// Through the entry's wrapped job so the skip-if-running guard applies.
		go c.Entry(id).WrappedJob.Run()
	}
	c.Start()
	s.log.Info("scheduler started",
		logx.String("kind", s.spec.Kind.String()),
		logx.String("tz", s.loc.String()),
		logx.Time("next", c.Entry(id).Next),
	)

	<-ctx.Done()
	stopped := c.Stop()
	<-stopped.Done()
	s.log.Info("scheduler stopped")
	return nil
}

// cronLogger routes robfig/cron's logr-style calls to logx.
type cronLogger struct{ log logx.Logger }

func (l cronLogger) Info(msg string, kv ...any) {
	l.log.Debug("cron: "+msg, kvFields(kv)...)
}

func (l cronLogger) Error(err error, msg string, kv ...any) {
	l.log.Error("cron: "+msg, append(kvFields(kv), logx.Err(err))...)
}

func kvFields(kv []any) []logx.Field {
	out := make([]logx.Field, 0, len(kv)/2+1)
	for i := 0; i+1 < len(kv); i += 2 {
		out = append(out, logx.Any(fmt.Sprint(kv[i]), kv[i+1]))
	}
	return out
}
