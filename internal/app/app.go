package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"vaultwatch/internal/alert"
	"vaultwatch/internal/config"
	"vaultwatch/internal/delivery"
	"vaultwatch/internal/eventbus"
	"vaultwatch/internal/hyperliquid"
	"vaultwatch/internal/metrics"
	"vaultwatch/internal/monitor"
	"vaultwatch/internal/observability/debug"
	rtsup "vaultwatch/internal/runtime/supervisor"
	"vaultwatch/internal/snapshot"
	"vaultwatch/internal/stream"
	"vaultwatch/internal/transport"
	"vaultwatch/internal/transport/logsink"
	"vaultwatch/internal/transport/telegram"
	logx "vaultwatch/pkg/logx"
	"vaultwatch/pkg/systemd"
)

// Options are the command-line choices plus optional overrides of the
// network-facing pieces.
type Options struct {
	ConfigPath string
	Mode       Mode
	// Chat is GROUP or USER; poll mode only.
	Chat   string
	DryRun bool
	// DryRunOutput receives dry-run messages; nil means stdout.
	DryRunOutput io.Writer

	// Overrides; nil uses the Telegram sink, the Hyperliquid client and
	// the websocket dialer.
	Sink      transport.Sink
	Fetcher   monitor.Fetcher
	Transport stream.Transport
}

type App struct {
	opts Options
	cfgm *config.Manager

	log  logx.Logger
	logs *logx.Service
	bus  eventbus.Bus
	sup  *rtsup.Supervisor
	sd   systemd.Notifier

	metrics *metrics.Metrics
	debug   *debug.Server

	sink  transport.Sink
	queue *delivery.Queue
	store snapshot.Store

	spec   monitor.ParsedSpec
	poller *monitor.Poller
	sched  *monitor.Scheduler
	subs   []*stream.Subscriber

	// done is closed when a run-once poll finished; exit also on fatal
	// supervisor errors.
	done    chan struct{}
	exit    chan struct{}
	mu      sync.Mutex
	runErr  error
	stopped bool
}

// New loads and validates the config, then builds every component. All
// config errors are returned before any network activity.
func New(opts Options) (*App, error) {
	mode, err := ParseMode(string(opts.Mode))
	if err != nil {
		return nil, err
	}
	opts.Mode = mode

	if err := config.LoadEnv(); err != nil {
		return nil, err
	}
	cfgm := config.NewManager(opts.ConfigPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}

	var (
		spec   monitor.ParsedSpec
		target transport.ChatTarget
	)
	switch mode {
	case ModePoll:
		if spec, err = parseSchedule(cfg.Poll.Schedule); err != nil {
			return nil, err
		}
		if target, err = cfg.ResolveChat(opts.Chat); err != nil {
			return nil, err
		}
	case ModeStream:
		if len(cfg.Tracking.Addresses) == 0 {
			return nil, errors.New("tracking.addresses is required in stream mode")
		}
		if target, err = cfg.StreamChat(); err != nil {
			return nil, err
		}
	}

	bootLog := logx.NewConsole(cfg.Logging.Level)
	sink := opts.Sink
	if sink == nil {
		if opts.DryRun {
			out := opts.DryRunOutput
			if out == nil {
				out = os.Stdout
			}
			sink = logsink.New(bootLog, out)
		} else {
			ts, err := telegram.New(telegram.Config{
				Token:   cfg.Telegram.Token,
				APIURL:  cfg.Telegram.APIURL,
				Timeout: cfg.Telegram.Timeout.D(),
			}, bootLog)
			if err != nil {
				return nil, fmt.Errorf("telegram: %w", err)
			}
			sink = ts
		}
	}

	logSvc, log := logx.New(mapLogConfig(cfg), sink)
	log = log.With(logx.String("comp", "app"), logx.String("mode", string(mode)))

	bus := eventbus.New()
	m := metrics.New()

	a := &App{
		opts:    opts,
		cfgm:    cfgm,
		log:     log,
		logs:    logSvc,
		bus:     bus,
		metrics: m,
		debug:   debug.New(mapDebugConfig(cfg), m.Registry(), log),
		sink:    sink,
		spec:    spec,
		done:    make(chan struct{}),
	}
	a.queue = delivery.New(string(mode), sink, target, mapPolicy(mode.policy(cfg)),
		delivery.WithBus(bus), delivery.WithLogger(log))

	switch mode {
	case ModePoll:
		err = a.buildPoll(cfg, loc)
	case ModeStream:
		err = a.buildStream(cfg, loc)
	}
	if err != nil {
		_ = logSvc.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) buildPoll(cfg *config.Config, loc *time.Location) error {
	st, err := snapshot.Open(mapSnapshotConfig(cfg), a.log)
	if err != nil {
		return err
	}
	a.store = st

	f := a.opts.Fetcher
	if f == nil {
		f = hyperliquid.New(mapClientConfig(cfg), a.log)
	}
	a.poller = monitor.NewPoller(mapPollerConfig(cfg, loc), f, st, a.queue,
		monitor.WithLogger(a.log), monitor.WithBus(a.bus))

	if a.spec.Kind == monitor.SpecOnce {
		return nil
	}
	a.sched, err = monitor.NewScheduler(a.spec, loc, a.pollJob, a.log)
	return err
}

func (a *App) pollJob(ctx context.Context) {
	rep, err := a.poller.RunCycle(ctx)
	switch {
	case errors.Is(err, context.Canceled):
	case err != nil && !rep.NoData:
		a.log.Error("poll cycle failed", logx.Err(err))
	default:
		_, _ = a.sd.Status(fmt.Sprintf("last cycle %s: %d vaults, %d updates",
			rep.Started.Format(time.RFC3339), rep.Entities, rep.Deltas))
	}
}

func (a *App) buildStream(cfg *config.Config, loc *time.Location) error {
	tr := a.opts.Transport
	if tr == nil {
		tr = mapDialer(cfg)
	}
	for _, addr := range cfg.Tracking.Addresses {
		addr = strings.TrimSpace(addr)
		scfg := mapStreamConfig(cfg, addr, loc)
		log := a.log.With(logx.String("user", addr))
		h, err := stream.NewHandler(cfg.Tracking.SubscriptionType, a.queue,
			alert.FeedOptions{Options: scfg.Alerts, Address: addr}, log)
		if err != nil {
			return err
		}
		a.subs = append(a.subs, stream.New(scfg, tr, h, a.queue,
			stream.WithLogger(log), stream.WithBus(a.bus)))
	}
	return nil
}

// Done is closed when the app finished on its own (a run-once poll) or its
// supervisor was cancelled by a fatal error.
func (a *App) Done() <-chan struct{} {
	if a.exit == nil {
		return a.done
	}
	return a.exit
}

// Err returns the run-once error or the first fatal supervisor error.
func (a *App) Err() error {
	a.mu.Lock()
	err := a.runErr
	a.mu.Unlock()
	if err != nil {
		return err
	}
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

func (a *App) Start(ctx context.Context) error {
	a.sup = rtsup.New(ctx, rtsup.WithLogger(a.log), rtsup.WithCancelOnError(true))
	a.exit = make(chan struct{})
	go func() {
		defer close(a.exit)
		select {
		case <-a.done:
		case <-a.sup.Context().Done():
		}
	}()

	a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))
	a.cfgm.SetValidator(a.validate)

	a.queue.Start(a.sup.Context())
	a.sup.Go0("metrics", func(c context.Context) { a.metrics.Run(c, a.bus) })
	if err := a.debug.Start(a.sup.Context()); err != nil {
		return err
	}

	a.sup.Go0("config.reload", a.reloadLoop)
	a.sup.Go0("config.watch", func(c context.Context) {
		if err := a.cfgm.Watch(c); err != nil && !errors.Is(err, context.Canceled) {
			a.log.Warn("config watch stopped", logx.Err(err))
		}
	})

	switch a.opts.Mode {
	case ModePoll:
		if a.sched == nil {
			a.sup.Go0("poll.once", a.runOnce)
		} else {
			a.sup.Go("poll.scheduler", a.sched.Run)
		}
	case ModeStream:
		for i, s := range a.subs {
			a.sup.Go(fmt.Sprintf("stream.%d", i), s.Run)
		}
	}

	if _, err := a.sd.Ready(); err != nil {
		a.log.Warn("sd_notify ready failed", logx.Err(err))
	}
	a.sup.Go("systemd.watchdog", a.sd.Watchdog)

	a.log.Info("app started",
		logx.String("schedule", a.spec.Kind.String()),
		logx.Int("subscribers", len(a.subs)),
		logx.Bool("dry_run", a.opts.DryRun))
	return nil
}

// runOnce performs a single cycle, waits for its alerts to be delivered and
// signals Done.
func (a *App) runOnce(ctx context.Context) {
	defer close(a.done)
	rep, err := a.poller.RunCycle(ctx)
	if err != nil && !rep.NoData && !errors.Is(err, context.Canceled) {
		a.log.Error("poll cycle failed", logx.Err(err))
		a.mu.Lock()
		a.runErr = err
		a.mu.Unlock()
	}
	if err := a.queue.Drain(ctx); err != nil {
		a.log.Warn("delivery not drained", logx.Err(err), logx.Int("pending", a.queue.Pending()))
	}
}

func parseSchedule(raw string) (monitor.ParsedSpec, error) {
	spec, err := monitor.ParseSchedule(raw)
	if err == nil {
		err = spec.Validate()
	}
	if err != nil {
		return monitor.ParsedSpec{}, fmt.Errorf("poll.schedule: %w", err)
	}
	return spec, nil
}

// validate runs on every reload before the new config is committed.
func (a *App) validate(_ context.Context, cfg *config.Config) error {
	if a.opts.Mode == ModePoll {
		if _, err := parseSchedule(cfg.Poll.Schedule); err != nil {
			return err
		}
		if _, err := cfg.ResolveChat(a.opts.Chat); err != nil {
			return err
		}
	}
	return nil
}

func (a *App) Stop(ctx context.Context, reason StopReason) error {
	a.mu.Lock()
	if a.sup == nil || a.stopped {
		a.mu.Unlock()
		return nil
	}
	a.stopped = true
	a.mu.Unlock()

	a.log.Info("stopping", logx.String("reason", string(reason)))
	_, _ = a.sd.Stopping()

	for _, s := range a.subs {
		s.Stop()
	}
	a.sup.Cancel()

	step := func(name string, max time.Duration, fn func(context.Context) error) {
		start := time.Now()
		stepCtx := ctx
		if max > 0 {
			if dl, ok := ctx.Deadline(); !ok || time.Until(dl) > max {
				var cancel context.CancelFunc
				stepCtx, cancel = context.WithTimeout(ctx, max)
				defer cancel()
			}
		}

		done := make(chan error, 1)
		go func() {
			defer func() {
				if r := recover(); r != nil {
					done <- fmt.Errorf("panic in stop step %s: %v", name, r)
				}
			}()
			done <- fn(stepCtx)
		}()

		select {
		case err := <-done:
			if err != nil && !errors.Is(err, context.Canceled) {
				a.log.Warn("stop step error", logx.String("name", name), logx.Err(err))
			}
			a.log.Debug("stop step end", logx.String("name", name), logx.Duration("took", time.Since(start)))
		case <-stepCtx.Done():
			a.log.Warn("stop step deadline reached (continuing)",
				logx.String("name", name), logx.Duration("elapsed", time.Since(start)))
		}
	}

	step("delivery", 5*time.Second, func(c context.Context) error {
		if n := a.queue.Stop(c); n > 0 {
			a.log.Warn("undelivered batches dropped", logx.Int("count", n))
		}
		return nil
	})
	step("debug", time.Second, func(c context.Context) error { a.debug.Stop(c); return nil })
	step("supervisor", 3*time.Second, func(c context.Context) error { return a.sup.Wait(c) })
	step("snapshot", time.Second, func(context.Context) error {
		if a.store != nil {
			return a.store.Close()
		}
		return nil
	})

	a.log.Info("stopped")
	return a.logs.Close()
}
