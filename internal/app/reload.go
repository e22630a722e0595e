package app

import (
	"context"
	"strings"

	"vaultwatch/internal/config"
	logx "vaultwatch/pkg/logx"
)

// reloadLoop applies hot-reloaded configs. Logging, thresholds, alert
// rendering and delivery policy change live; everything in
// config.RestartSections waits for a restart.
func (a *App) reloadLoop(ctx context.Context) {
	sub := a.cfgm.Subscribe(8)
	defer a.cfgm.Unsubscribe(sub)

	last := a.cfgm.Get()
	for {
		select {
		case <-ctx.Done():
			return
		case cfg, ok := <-sub:
			if !ok {
				return
			}
			// Coalesce bursts; only the newest config matters.
		drain:
			for {
				select {
				case newer := <-sub:
					if newer != nil {
						cfg = newer
					}
				default:
					break drain
				}
			}
			a.apply(last, cfg)
			last = cfg
		}
	}
}

func (a *App) apply(prev, cfg *config.Config) {
	sections, attrs := config.SummarizeConfigChange(prev, cfg)
	if len(sections) == 0 {
		a.log.Info("config reloaded (no changes)")
		return
	}

	var restart []string
	for _, s := range sections {
		if config.RestartSections[s] {
			restart = append(restart, s)
		}
	}
	if a.opts.Mode == ModePoll && prev != nil && prev.Poll.Schedule != cfg.Poll.Schedule {
		restart = append(restart, "poll.schedule")
	}
	if len(restart) > 0 {
		a.log.Warn("config changes need a restart to take effect", logx.String("sections", strings.Join(restart, ",")))
	}

	a.logs.Apply(mapLogConfig(cfg))
	a.queue.Apply(mapPolicy(a.opts.Mode.policy(cfg)))

	if a.poller != nil {
		loc, err := cfg.Location()
		if err != nil {
			a.log.Warn("invalid timezone; keeping previous poll config", logx.Err(err))
		} else {
			a.poller.Apply(mapPollerConfig(cfg, loc))
		}
	}

	fields := append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)
	a.log.Info("config reloaded", fields...)
}
