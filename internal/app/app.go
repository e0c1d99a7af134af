package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"animefinder/internal/bot"
	"animefinder/internal/broadcast"
	"animefinder/internal/config"
	"animefinder/internal/delivery"
	"animefinder/internal/eventbus"
	"animefinder/internal/health"
	"animefinder/internal/oracle"
	"animefinder/internal/publish"
	"animefinder/internal/resolver"
	rtsup "animefinder/internal/runtime/supervisor"
	"animefinder/internal/storage"
	"animefinder/internal/task/scheduler"
	kit "animefinder/internal/transport"
	telegram "animefinder/internal/transport/telegram/adapter"
	logx "animefinder/pkg/logx"
)

// Options overrides collaborators that are otherwise built from Env.
type Options struct {
	Adapter kit.Adapter
	Oracle  oracle.Oracle
	Now     func() time.Time
}

type App struct {
	env  config.Env
	cfgm *config.Manager
	sup  *rtsup.Supervisor

	log  logx.Logger
	logs *logx.Service
	bus  eventbus.Bus

	store    storage.Store
	adapter  kit.Adapter
	oracle   oracle.Oracle
	resolver *resolver.Resolver
	publish  *publish.Coordinator
	bcast    *broadcast.Service
	delivery *delivery.Scheduler
	sched    *scheduler.Service
	health   *health.Service
	bot      *bot.Bot
	now      func() time.Time

	updates chan kit.Update
}

// New builds every component. The store is opened here so a broken database
// fails startup instead of the first query.
func New(ctx context.Context, env config.Env, cfgm *config.Manager, opt Options) (_ *App, err error) {
	settings, err := cfgm.Load()
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	// Alerts stay off until the target chat is set, then the final config is applied.
	bootLog := settings.Log
	bootLog.AdminAlerts.Enabled = false
	logSvc, log := logx.New(bootLog)
	log = log.With(logx.String("comp", "app"))
	defer func() {
		if err != nil {
			_ = logSvc.Close()
		}
	}()

	ad := opt.Adapter
	if ad == nil {
		tg, err := telegram.New(telegram.Config{
			Token:       env.BotToken,
			PollTimeout: settings.PollTimeout,
		}, log.With(logx.String("comp", "telegram")))
		if err != nil {
			return nil, err
		}
		ad = tg
	}
	logSvc.SetAlertTarget(ad, env.AdminID)
	logSvc.Apply(settings.Log)

	orc := opt.Oracle
	if orc == nil {
		g, err := oracle.NewGemini(oracle.GeminiConfig{
			APIKey:     env.GeminiAPIKey,
			Model:      env.GeminiModel,
			Timeout:    settings.OracleTimeout,
			RatePerSec: settings.OracleRatePerSec,
		}, log)
		if err != nil {
			return nil, err
		}
		orc = g
	}

	st, err := storage.Open(ctx, mapStorageConfig(env), log.With(logx.String("comp", "storage")))
	if err != nil {
		return nil, err
	}

	now := opt.Now
	if now == nil {
		now = time.Now
	}

	bus := eventbus.New()
	res := resolver.New(st, orc, mapResolverConfig(settings), log)
	bc := broadcast.New(mapBroadcastConfig(settings), broadcast.Options{
		Adapter:    ad,
		Recipients: st,
		Bus:        bus,
		ChannelID:  env.ChannelID,
		Caption:    bot.BroadcastCaption,
	}, log)
	coord := publish.NewCoordinator(st, publish.NewSessions(settings.SessionTTL), bc, bus, log)
	del := delivery.New(mapDeliveryConfig(settings), ad, bus, log.With(logx.String("comp", "delivery")))
	sched := scheduler.New(mapSchedulerConfig(settings), log.With(logx.String("comp", "scheduler")))
	hs := health.New(health.Config{Addr: healthAddr(env.Port)}, st, log)

	b := bot.New(bot.Config{
		AdminID:        env.AdminID,
		ChannelID:      env.ChannelID,
		Workers:        settings.Workers,
		HandlerTimeout: settings.HandlerTimeout,
	}, bot.Deps{
		Adapter:   ad,
		Store:     st,
		Resolver:  res,
		Publish:   coord,
		Deleter:   del,
		Broadcast: bc,
	}, log)

	return &App{
		env:      env,
		cfgm:     cfgm,
		log:      log,
		logs:     logSvc,
		bus:      bus,
		store:    st,
		adapter:  ad,
		oracle:   orc,
		resolver: res,
		publish:  coord,
		bcast:    bc,
		delivery: del,
		sched:    sched,
		health:   hs,
		bot:      b,
		now:      now,
		updates:  make(chan kit.Update, 256),
	}, nil
}

// Done is closed when the app supervisor context is canceled (fatal error or Stop()).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error observed by the supervisor (if any).
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

func (a *App) Start(ctx context.Context) error {
	a.sup = rtsup.NewSupervisor(ctx, rtsup.WithLogger(a.log), rtsup.WithCancelOnError(true))
	runCtx := a.sup.Context()

	if err := a.adapter.Start(runCtx, a.updates); err != nil {
		return err
	}
	a.bcast.Start(runCtx)
	a.delivery.Start(runCtx)
	a.health.Start(a.sup)

	if err := a.registerJobs(a.cfgm.Get()); err != nil {
		return err
	}
	a.sched.Start(runCtx)
	for _, j := range a.sched.Jobs() {
		a.log.Info("maintenance job", logx.String("name", j.Name), logx.String("schedule", j.Spec), logx.Time("next", j.Next))
	}
	// fill the catalog gauges before the first tick
	if err := a.sched.RunNow(runCtx, "catalog.stats"); err != nil {
		a.log.Warn("initial stats refresh failed", logx.Err(err))
	}

	a.sup.Go("bot.dispatch", func(c context.Context) error {
		return a.bot.Run(c, a.updates)
	})

	events, unsub := a.bus.Subscribe(128)
	a.sup.Go0("eventbus.consume", func(c context.Context) {
		defer unsub()
		for {
			select {
			case <-c.Done():
				return
			case e, ok := <-events:
				if !ok {
					return
				}
				a.onEvent(e)
			}
		}
	})

	sub := a.cfgm.Subscribe(8)
	a.sup.Go0("config.reload", func(c context.Context) {
		defer a.cfgm.Unsubscribe(sub)
		last := a.cfgm.Get()
		for {
			select {
			case <-c.Done():
				return
			case s, ok := <-sub:
				if !ok {
					return
				}
				a.applySettings(last, s)
				last = s
			}
		}
	})
	a.sup.Go("config.watch", func(c context.Context) error {
		return a.cfgm.Watch(c)
	})

	a.log.Info("app started",
		logx.Int64("admin_id", a.env.AdminID),
		logx.Int64("channel_id", a.env.ChannelID),
		logx.String("storage", a.env.DatabaseDriver),
	)
	return nil
}

func (a *App) registerJobs(s config.Settings) error {
	sweep := sweepPendingJob(a.store, func() time.Duration { return a.cfgm.Get().PendingTTL }, a.now, a.log)
	if err := a.sched.Add("pending.sweep", s.PendingSweep, time.Minute, sweep); err != nil {
		return fmt.Errorf("maintenance.pending_sweep: %w", err)
	}
	if err := a.sched.Add("catalog.stats", s.StatsRefresh, 30*time.Second, refreshStatsJob(a.store, a.log)); err != nil {
		return fmt.Errorf("maintenance.stats: %w", err)
	}
	return nil
}

func (a *App) onEvent(e eventbus.Event) {
	switch d := e.Data.(type) {
	case eventbus.PublishedData:
		// a new title may answer queries the oracle rejected before
		a.resolver.Invalidate()
		a.log.Debug("event", logx.String("type", e.Type), logx.String("name", d.Name), logx.Int64("record_id", d.RecordID))
	case eventbus.BroadcastData:
		a.log.Info("broadcast finished",
			logx.String("job_id", d.JobID), logx.String("name", d.Name),
			logx.Int("total", d.Total), logx.Int("sent", d.Sent), logx.Int("failed", d.Failed))
	case eventbus.DeliveryData:
		a.log.Debug("event", logx.String("type", e.Type), logx.Int64("chat_id", d.ChatID), logx.Int("msg_id", d.MessageID))
	default:
		a.log.Debug("event", logx.String("type", e.Type), logx.Time("time", e.Time))
	}
}

// applySettings pushes a reloaded config into the live components.
func (a *App) applySettings(old, s config.Settings) {
	if changed := config.RestartRequired(old, s); len(changed) > 0 {
		a.log.Warn("config changes need a restart to take effect", logx.String("settings", strings.Join(changed, ",")))
	}
	a.logs.Apply(s.Log)
	a.bcast.Apply(mapBroadcastConfig(s))
	a.delivery.Apply(mapDeliveryConfig(s))
	if t, ok := a.oracle.(interface{ SetTimeout(time.Duration) }); ok {
		t.SetTimeout(s.OracleTimeout)
	}
	a.sched.Apply(mapSchedulerConfig(s))
	if old.PendingSweep != s.PendingSweep || old.StatsRefresh != s.StatsRefresh {
		if err := a.registerJobs(s); err != nil {
			a.log.Warn("maintenance schedule rejected; keeping previous", logx.Err(err))
		}
	}
	a.log.Info("config applied")
}

func (a *App) Stop(ctx context.Context, reason StopReason) error {
	if a.sup == nil {
		return nil
	}
	a.log.Info("stopping", logx.String("reason", string(reason)))
	a.sup.Cancel()

	// step bounds one shutdown stage so a stuck component cannot stall the rest.
	step := func(name string, max time.Duration, fn func(context.Context) error) {
		start := time.Now()
		stepCtx, cancel := context.WithTimeout(ctx, max)
		defer cancel()

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
			if err != nil {
				a.log.Warn("stop step error", logx.String("name", name), logx.Err(err))
			}
			a.log.Debug("stop step end", logx.String("name", name), logx.Duration("took", time.Since(start)))
		case <-stepCtx.Done():
			a.log.Warn("stop step deadline reached (continuing)", logx.String("name", name), logx.Duration("elapsed", time.Since(start)))
		}
	}

	step("adapter", 2*time.Second, func(c context.Context) error { return a.adapter.Stop(c) })
	step("scheduler", 2*time.Second, func(c context.Context) error { a.sched.Stop(c); return nil })
	step("broadcast", 2*time.Second, func(c context.Context) error { a.bcast.Stop(c); return nil })
	step("delivery", 2*time.Second, func(c context.Context) error { a.delivery.Stop(c); return nil })
	step("supervisor", 3*time.Second, func(c context.Context) error { return a.sup.Wait(c) })
	step("storage", 1*time.Second, func(c context.Context) error { return a.store.Close() })

	a.log.Info("stopped")
	return a.logs.Close()
}
