// Package app assembles the alarm daemon: config, logging, storage,
// the evaluation engine, the dispatch tick loop, and the notify
// pipeline, with hot reload for the runtime-adjustable parts.
package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"alarmkit/internal/alarm"
	"alarmkit/internal/conditions"
	"alarmkit/internal/config"
	"alarmkit/internal/dispatch"
	"alarmkit/internal/engine"
	"alarmkit/internal/eventbus"
	"alarmkit/internal/notify"
	"alarmkit/internal/optimize"
	"alarmkit/internal/schedule"
	"alarmkit/internal/settings"
	"alarmkit/internal/storage"
	"alarmkit/internal/suncalc"
	logx "alarmkit/pkg/logx"
)

type App struct {
	cfgPath string
	cfgm    *config.Manager

	log  logx.Logger
	logs *logx.Service
	bus  eventbus.Bus

	store storage.Store
	sets  *settings.Store

	eng   *engine.Engine
	notif *notify.Service
	disp  *dispatch.Service

	coord    *schedule.Coordinator
	transfer *schedule.Transfer

	cancel context.CancelFunc
	doneCh chan struct{}
}

func New(cfgPath string) (*App, error) {
	cfgm := config.NewManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}

	logSvc, log := logx.New(logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	})
	log = log.With(logx.String("comp", "app"))

	bus := eventbus.New()

	// Storage (optional).
	var store storage.Store
	if sc, enabled, err := mapStorageConfig(cfg); err != nil {
		return nil, err
	} else if enabled {
		st, err := storage.Open(sc, log.With(logx.String("comp", "storage")))
		if err != nil {
			return nil, err
		}
		store = st
		log.Info("storage enabled", logx.String("driver", sc.Driver))
	}

	// Scheduling config/stats, persisted through the store's KV surface.
	sets := settings.NewStore(storage.KVAdapter{Store: store}, log.With(logx.String("comp", "settings")))
	if err := sets.Load(context.Background()); err != nil {
		log.Warn("scheduling settings load degraded", logx.Err(err))
	}

	// Notification channel.
	ncfg, err := mapNotifierConfig(cfg)
	if err != nil {
		return nil, err
	}
	adapter, err := buildAdapter(cfg, log)
	if err != nil {
		return nil, err
	}
	notif := notify.New(ncfg, adapter, log.With(logx.String("comp", "notify")), bus)

	// Evaluation engine. Condition/optimization signal providers and the
	// geolocation source are external; the daemon runs without them and
	// the pipeline degrades per alarm when they are absent.
	eng := engine.New(sets,
		conditions.New(nil, notifyBridge(notif), log.With(logx.String("comp", "conditions"))),
		optimize.New(nil, log.With(logx.String("comp", "optimize"))),
		suncalc.New(nil, time.UTC),
		nil,
		log.With(logx.String("comp", "engine")))

	dcfg, err := mapDispatchConfig(cfg)
	if err != nil {
		return nil, err
	}
	disp := dispatch.New(dcfg, eng, store, notif, sets, bus, log.With(logx.String("comp", "dispatch")))

	return &App{
		cfgPath:  cfgPath,
		cfgm:     cfgm,
		log:      log,
		logs:     logSvc,
		bus:      bus,
		store:    store,
		sets:     sets,
		eng:      eng,
		notif:    notif,
		disp:     disp,
		coord:    schedule.NewCoordinator(store, log.With(logx.String("comp", "bulk"))),
		transfer: schedule.NewTransfer(store, sets, log.With(logx.String("comp", "transfer"))),
	}, nil
}

// Bulk exposes the batch mutation surface.
func (a *App) Bulk() *schedule.Coordinator { return a.coord }

// Transfer exposes the export/import surface.
func (a *App) Transfer() *schedule.Transfer { return a.transfer }

func (a *App) Start(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	a.cancel = cancel
	a.doneCh = make(chan struct{})

	a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))
	a.cfgm.SetValidator(func(_ context.Context, cfg *config.Config) error {
		if _, err := mapNotifierConfig(cfg); err != nil {
			return err
		}
		if _, err := mapDispatchConfig(cfg); err != nil {
			return err
		}
		if _, _, err := mapStorageConfig(cfg); err != nil {
			return err
		}
		if tz := strings.TrimSpace(cfg.Scheduler.Timezone); tz != "" {
			if _, err := time.LoadLocation(tz); err != nil {
				return fmt.Errorf("scheduler.timezone: invalid %q: %w", tz, err)
			}
		}
		return nil
	})

	if a.notif.Enabled() {
		a.notif.Start(runCtx)
	}
	if a.disp.Enabled() {
		if err := a.disp.Start(runCtx); err != nil {
			cancel()
			return err
		}
	}

	go a.reloadLoop(runCtx)
	go func() {
		defer close(a.doneCh)
		if err := a.cfgm.Watch(runCtx); err != nil {
			a.log.Warn("config watch exited", logx.Err(err))
		}
	}()

	a.log.Info("alarmd started")
	return nil
}

// reloadLoop applies hot config updates: logging always, notifier and
// dispatch when their sections change. Storage changes need a restart.
func (a *App) reloadLoop(ctx context.Context) {
	sub := a.cfgm.Subscribe(8)
	defer a.cfgm.Unsubscribe(sub)

	lastApplied := a.cfgm.Get()
	for {
		select {
		case <-ctx.Done():
			return
		case newCfg, ok := <-sub:
			if !ok {
				return
			}
			sections, attrs := config.SummarizeConfigChange(lastApplied, newCfg)
			lastApplied = newCfg
			if len(sections) == 0 {
				a.log.Debug("config reload received, no effective changes")
				continue
			}

			for _, s := range sections {
				if s == "storage" {
					a.log.Warn("storage config changed; restart required")
					break
				}
			}

			a.logs.Apply(logx.Config{
				Level:   newCfg.Logging.Level,
				Console: newCfg.Logging.Console,
				File: logx.FileConfig{
					Enabled: newCfg.Logging.File.Enabled,
					Path:    newCfg.Logging.File.Path,
				},
			})

			if ncfg, err := mapNotifierConfig(newCfg); err != nil {
				a.log.Warn("invalid notifier config; keeping previous", logx.Err(err))
			} else {
				wasEnabled := a.notif.Enabled()
				a.notif.Apply(ncfg)
				if wasEnabled && !ncfg.Enabled {
					stopCtx, stop := context.WithTimeout(ctx, 3*time.Second)
					a.notif.Stop(stopCtx)
					stop()
				} else if !wasEnabled && ncfg.Enabled {
					a.notif.Start(ctx)
				}
			}

			// Dispatch tick/timezone changes need a loop restart.
			if dcfg, err := mapDispatchConfig(newCfg); err != nil {
				a.log.Warn("invalid scheduler config; keeping previous", logx.Err(err))
			} else {
				stopCtx, stop := context.WithTimeout(ctx, 3*time.Second)
				a.disp.Stop(stopCtx)
				stop()
				a.disp = dispatch.New(dcfg,
					a.eng, a.store, a.notif, a.sets, a.bus,
					a.log.With(logx.String("comp", "dispatch")))
				if dcfg.Enabled {
					if err := a.disp.Start(ctx); err != nil {
						a.log.Warn("dispatch restart failed", logx.Err(err))
					}
				}
			}

			fields := append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)
			a.log.Info("config reloaded", fields...)
		}
	}
}

func (a *App) Stop(ctx context.Context) error {
	a.log.Info("stopping")
	if a.cancel != nil {
		a.cancel()
	}

	stopCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	a.disp.Stop(stopCtx)
	a.notif.Stop(stopCtx)
	cancel()

	if a.doneCh != nil {
		select {
		case <-a.doneCh:
		case <-ctx.Done():
		}
	}

	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.log.Warn("storage close failed", logx.Err(err))
		}
	}

	a.log.Info("stopped")
	if a.logs != nil {
		a.logs.Close()
	}
	return nil
}

// notifyBridge adapts the notify service to the condition evaluator's
// send_notification hook.
func notifyBridge(s *notify.Service) conditions.Notifier {
	return func(ctx context.Context, a alarm.AdvancedAlarm, message string) {
		_ = s.Notify(ctx, notify.Notification{AlarmID: a.ID, Label: a.Label, Body: message, Priority: 5})
	}
}
