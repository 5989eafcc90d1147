// Package app wires the daemon: configuration, logging, the scheduler and
// the command jobs declared in the config file.
package app

import (
	"context"
	"fmt"
	"io"
	"os/exec"
	"sync"
	"time"

	"github.com/google/uuid"

	"tickwork/internal/config"
	"tickwork/internal/eventbus"
	"tickwork/internal/history"
	"tickwork/internal/sched"
	"tickwork/pkg/logx"
	"tickwork/pkg/sdnotify"
)

type App struct {
	cfgPath string

	log      logx.Logger
	logClose io.Closer
	bus      eventbus.Bus
	sched    *sched.Scheduler
	store    *history.Store

	shutdownTimeout time.Duration

	// registered config jobs, keyed by name
	mu   sync.Mutex
	jobs map[string]registeredJob
}

type registeredJob struct {
	id          uuid.UUID
	fingerprint string
}

func New(cfgPath string, cfg *config.Config) (*App, error) {
	log, logClose, err := logx.New(logx.Config{
		Level:   cfg.Log.Level,
		Console: cfg.Log.Console,
		File:    cfg.Log.File,
	})
	if err != nil {
		return nil, fmt.Errorf("logging: %w", err)
	}

	bus := eventbus.New()
	opts := []sched.Option{
		sched.WithLogger(log.With(logx.String("comp", "sched"))),
		sched.WithBus(bus),
		sched.WithResolution(cfg.Scheduler.Resolution.Std()),
		sched.WithHistorySize(cfg.History.Size),
	}

	var store *history.Store
	if cfg.History.Path != "" {
		store, err = history.Open(cfg.History.Path, cfg.History.Size*50, log.With(logx.String("comp", "history")))
		if err != nil {
			_ = logClose.Close()
			return nil, fmt.Errorf("history store: %w", err)
		}
		opts = append(opts, sched.WithRecorder(store))
	}

	a := &App{
		cfgPath:         cfgPath,
		log:             log,
		logClose:        logClose,
		bus:             bus,
		sched:           sched.New(opts...),
		store:           store,
		shutdownTimeout: cfg.Scheduler.ShutdownTimeout.Std(),
		jobs:            map[string]registeredJob{},
	}
	a.sched.SetShutdownHook(func() {
		log.Info("shutdown hook: all work drained")
	})
	if err := a.applyJobs(cfg.Jobs); err != nil {
		_ = logClose.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) Start(ctx context.Context) error {
	if err := a.sched.Start(); err != nil {
		return err
	}
	if err := config.Watch(ctx, a.cfgPath, a.log.With(logx.String("comp", "config")), func(cfg *config.Config) {
		if err := a.applyJobs(cfg.Jobs); err != nil {
			a.log.Warn("config reload apply failed", logx.Err(err))
		}
	}); err != nil {
		a.log.Warn("config watch unavailable", logx.Err(err))
	}
	go a.watchEvents(ctx)
	sdnotify.Ready()
	sdnotify.Status(fmt.Sprintf("%d jobs scheduled", len(a.jobNames())))
	return nil
}

func (a *App) Stop() error {
	sdnotify.Stopping()
	ctx := context.Background()
	if a.shutdownTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.shutdownTimeout)
		defer cancel()
	}
	err := a.sched.Shutdown(ctx)
	if a.store != nil {
		_ = a.store.Close()
	}
	if a.logClose != nil {
		_ = a.logClose.Close()
	}
	return err
}

// applyJobs reconciles the scheduler with the declared job list: new names
// are added, changed definitions are re-added, vanished names are removed.
func (a *App) applyJobs(jobs []config.JobConfig) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	wanted := map[string]config.JobConfig{}
	for _, jc := range jobs {
		wanted[jc.Name] = jc
	}

	for name, reg := range a.jobs {
		jc, keep := wanted[name]
		if keep && jc.Fingerprint() == reg.fingerprint {
			delete(wanted, name)
			continue
		}
		if err := a.sched.Remove(reg.id); err != nil {
			a.log.Warn("job remove failed", logx.String("job", name), logx.Err(err))
		}
		delete(a.jobs, name)
	}

	for name, jc := range wanted {
		j, err := a.buildJob(jc)
		if err != nil {
			return fmt.Errorf("job %q: %w", name, err)
		}
		id, err := a.sched.Add(j)
		if err != nil {
			return fmt.Errorf("job %q: %w", name, err)
		}
		a.jobs[name] = registeredJob{id: id, fingerprint: jc.Fingerprint()}
	}
	return nil
}

// buildJob turns a config entry into a scheduled shell command.
func (a *App) buildJob(jc config.JobConfig) (*sched.Job, error) {
	body := commandBody(jc.Command)
	opts := []sched.JobOption{sched.WithName(jc.Name)}
	if jc.Timeout > 0 {
		opts = append(opts, sched.WithTimeout(jc.Timeout.Std()))
	}

	switch {
	case jc.Cron != "":
		return sched.NewJob(jc.Cron, body, opts...)
	case jc.Every > 0:
		return sched.NewRepeated(jc.Every.Std(), body, opts...)
	default:
		return sched.NewOneShot(jc.After.Std(), body, opts...)
	}
}

func commandBody(command string) sched.JobFunc {
	return func(ctx context.Context, id uuid.UUID, h *sched.Handle) error {
		out, err := exec.CommandContext(ctx, "/bin/sh", "-c", command).CombinedOutput()
		if err != nil {
			return fmt.Errorf("%w: %s", err, tail(out, 512))
		}
		return nil
	}
}

func tail(b []byte, n int) string {
	if len(b) > n {
		b = b[len(b)-n:]
	}
	return string(b)
}

// watchEvents mirrors job failures onto the systemd status line so operators
// see the last failure without opening the log.
func (a *App) watchEvents(ctx context.Context) {
	ch, unsub := a.bus.Subscribe(32)
	defer unsub()
	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-ch:
			if !ok {
				return
			}
			if e.Type != sched.EventJobFailed {
				continue
			}
			if je, ok := e.Data.(sched.JobEvent); ok {
				sdnotify.Status(fmt.Sprintf("last failure: %s at %s", je.Name, e.Time.Format(time.RFC3339)))
			}
		}
	}
}

func (a *App) jobNames() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	names := make([]string, 0, len(a.jobs))
	for name := range a.jobs {
		names = append(names, name)
	}
	return names
}

// Snapshot exposes scheduler diagnostics to the host (logs, future admin
// surfaces).
func (a *App) Snapshot() sched.Snapshot {
	return a.sched.Snapshot()
}
