// Package app assembles the RKSOK daemon: configuration, the logging
// graph, the phonebook store, the approval client, the TCP server, the
// diagnostics endpoint, and scheduled log maintenance.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	sdaemon "github.com/coreos/go-systemd/v22/daemon"
	"github.com/gofrs/flock"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/robfig/cron/v3"

	"rksokd/internal/approval"
	"rksokd/internal/config"
	"rksokd/internal/diag"
	"rksokd/internal/logdict"
	"rksokd/internal/phonebook"
	"rksokd/internal/server"
	"rksokd/internal/supervisor"
	"rksokd/pkg/logx"
)

// App owns every long-lived component of the daemon. New wires them up from
// the config file; Start runs them under one supervisor; Stop unwinds them in
// reverse, closing the logging graph last so shutdown itself is logged.
type App struct {
	boot logx.Logger

	cfgm *config.ConfigManager
	logm *logdict.Manager
	log  *slog.Logger
	reg  *prometheus.Registry

	store   phonebook.Store
	approve *approval.Client
	srv     *server.Server
	diag    *diag.Service

	lock     *flock.Flock
	lockPath string

	shutdownTimeout time.Duration

	mu      sync.Mutex
	sup     *supervisor.Supervisor
	cron    *cron.Cron
	cronID  cron.EntryID
	docPath string // logging document currently applied; "" means the built-in
}

// New reads and validates the config file and constructs every component,
// binding the listen socket up front so address conflicts fail before Start.
// boot receives bootstrap and machinery diagnostics; application logs flow
// through the logging document.
func New(cfgPath string, boot logx.Logger) (a *App, err error) {
	if boot.IsZero() {
		boot = logx.Nop()
	}

	cfgm := config.NewConfigManager(cfgPath)
	cfgm.SetLogger(boot.With(logx.String("comp", "config")))
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := config.Validate(context.Background(), cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	dataDir := strings.TrimSpace(cfg.DataDir)
	if dataDir == "" {
		dataDir = "."
	}
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	a = &App{
		boot: boot,
		cfgm: cfgm,
	}

	// Refuse to run next to another daemon before any component takes
	// resources (ports, sqlite handles).
	a.lockPath = filepath.Join(dataDir, "rksokd.lock")
	a.lock = flock.New(a.lockPath)
	ok, err := a.lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire instance lock: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("another rksokd instance holds %s", a.lockPath)
	}
	defer func() {
		if err != nil {
			_ = a.lock.Unlock()
		}
	}()

	a.logm = logdict.NewManager(logdict.WithDiagnostics(boot.With(logx.String("comp", "logging"))))
	a.docPath = strings.TrimSpace(cfg.Logging.Config)
	doc, err := loadDocument(a.docPath)
	if err != nil {
		return nil, fmt.Errorf("load logging document: %w", err)
	}
	if err := a.logm.Apply(doc); err != nil {
		return nil, fmt.Errorf("apply logging document: %w", err)
	}
	defer func() {
		if err != nil {
			_ = a.logm.Close()
		}
	}()
	a.log = a.logm.Logger(logdict.DefaultLoggerName)

	pcfg, err := mapPhonebookConfig(cfg, dataDir)
	if err != nil {
		return nil, err
	}
	a.store, err = phonebook.Open(pcfg, boot.With(logx.String("comp", "phonebook")))
	if err != nil {
		return nil, fmt.Errorf("open phonebook: %w", err)
	}
	defer func() {
		if err != nil {
			_ = a.store.Close()
		}
	}()
	if entries, lerr := a.store.List(context.Background()); lerr != nil {
		boot.Warn("phonebook scan failed", logx.Err(lerr))
	} else {
		a.log.Info("phonebook ready",
			slog.String("driver", driverName(pcfg.Driver)),
			slog.Int("records", len(entries)),
		)
	}

	approvalTimeout, err := config.ParseDurationOrDefault("approval.timeout", cfg.Approval.Timeout, approval.DefaultTimeout)
	if err != nil {
		return nil, err
	}
	a.approve = approval.NewClient(cfg.Approval.Addr, approvalTimeout, boot.With(logx.String("comp", "approval")))

	a.reg = prometheus.NewRegistry()
	metrics := server.NewMetrics(a.reg)

	dcfg, err := mapDiagConfig(cfg)
	if err != nil {
		return nil, err
	}
	a.diag = diag.New(dcfg, a.log.With(slog.String("comp", "diag")), a.reg, a.healthPayload)

	a.shutdownTimeout, err = config.ParseDurationOrDefault("server.shutdown_timeout", cfg.Server.ShutdownTimeout, 10*time.Second)
	if err != nil {
		return nil, err
	}
	a.cron = cron.New()

	scfg, err := mapServerConfig(cfg)
	if err != nil {
		return nil, err
	}
	a.srv, err = server.New(scfg, a.store, a.approve, a.log, metrics)
	if err != nil {
		return nil, err
	}

	return a, nil
}

// Start launches everything under one supervisor. A fatal component error
// cancels the supervisor context; main observes it through Done and Err.
func (a *App) Start(ctx context.Context) error {
	a.mu.Lock()
	if a.sup != nil {
		a.mu.Unlock()
		return errors.New("app already started")
	}
	sup := supervisor.New(ctx,
		supervisor.WithLogger(a.boot.With(logx.String("comp", "supervisor"))),
		supervisor.WithCancelOnError(true),
	)
	a.sup = sup
	a.mu.Unlock()

	// Transactional reloads: a config that fails validation is never
	// committed or published.
	a.cfgm.SetValidator(config.Validate)

	cfg := a.cfgm.Get()

	sup.Go("server", a.srv.Serve)

	if a.diag.Enabled() {
		a.diag.Start(sup.Context())
	}

	a.scheduleRetention(cfg)
	a.cron.Start()

	sub := a.cfgm.Subscribe(8)
	sup.Go("config.reload", func(c context.Context) error {
		a.reloadLoop(c, sub)
		return nil
	})
	sup.Go("config.watch", a.cfgm.Watch)

	if cfg.Logging.Watch {
		if docPath := strings.TrimSpace(cfg.Logging.Config); docPath != "" {
			wlog := a.boot.With(logx.String("comp", "logwatch"))
			sup.Go("logdoc.watch", func(c context.Context) error {
				return config.WatchFile(c, wlog, docPath, func() { a.reapplyDocument(docPath) })
			})
		}
	}

	if sent, err := sdaemon.SdNotify(false, sdaemon.SdNotifyReady); err != nil {
		a.boot.Warn("systemd readiness notify failed", logx.Err(err))
	} else if sent {
		a.log.Debug("systemd readiness notified")
	}

	a.log.Info("rksok daemon started",
		slog.String("listen", a.srv.Addr().String()),
		slog.String("approval", a.approve.Addr()),
		slog.String("lock", a.lockPath),
	)
	return nil
}

// Reload re-reads the config file immediately; the SIGHUP handler calls it.
func (a *App) Reload(ctx context.Context) error {
	return a.cfgm.Reload(ctx)
}

// Done is closed when the supervisor context is canceled, either by a fatal
// component error or by Stop.
func (a *App) Done() <-chan struct{} {
	a.mu.Lock()
	sup := a.sup
	a.mu.Unlock()
	if sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return sup.Context().Done()
}

// Err returns the first fatal error observed by the supervisor, if any.
func (a *App) Err() error {
	a.mu.Lock()
	sup := a.sup
	a.mu.Unlock()
	if sup == nil {
		return nil
	}
	return sup.Err()
}

// Addr returns the bound listen address.
func (a *App) Addr() string { return a.srv.Addr().String() }

// Stop unwinds the daemon: drain the server, stop diag and the retention
// schedule, close the store, wait out supervised goroutines, release the
// instance lock, and close the logging graph last.
func (a *App) Stop(ctx context.Context) error {
	a.mu.Lock()
	sup := a.sup
	a.mu.Unlock()
	if sup == nil {
		return nil
	}

	_, _ = sdaemon.SdNotify(false, sdaemon.SdNotifyStopping)
	a.log.Info("stopping")
	sup.Cancel()

	// Bound every shutdown step so one stuck component cannot stall the
	// whole stop. The caller's deadline is never extended.
	step := func(name string, max time.Duration, fn func(context.Context) error) {
		start := time.Now()
		stepCtx := ctx
		var cancel context.CancelFunc
		if max > 0 {
			if dl, ok := ctx.Deadline(); ok {
				rem := time.Until(dl)
				if rem <= 0 {
					max = 0
				} else if rem < max {
					max = rem
				}
			}
			if max > 0 {
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
			if err != nil {
				a.log.Warn("stop step error", slog.String("name", name), slog.Any("err", err))
			}
			a.log.Debug("stop step done", slog.String("name", name), slog.Duration("took", time.Since(start)))
		case <-stepCtx.Done():
			a.log.Warn("stop step deadline reached (continuing)",
				slog.String("name", name),
				slog.Duration("elapsed", time.Since(start)),
			)
			// Observe when, or if, the step eventually finishes.
			go func() {
				err := <-done
				if err != nil {
					a.log.Warn("stop step finished after deadline", slog.String("name", name), slog.Any("err", err))
				} else {
					a.log.Info("stop step finished after deadline", slog.String("name", name), slog.Duration("took", time.Since(start)))
				}
			}()
		}
	}

	step("server", a.shutdownTimeout, a.srv.Shutdown)
	step("diag", 2*time.Second, func(c context.Context) error {
		a.diag.Stop(c)
		return nil
	})
	step("retention", 2*time.Second, func(c context.Context) error {
		a.mu.Lock()
		cr := a.cron
		a.cron = nil
		a.mu.Unlock()
		if cr == nil {
			return nil
		}
		select {
		case <-cr.Stop().Done():
			return nil
		case <-c.Done():
			return c.Err()
		}
	})
	step("phonebook", 1*time.Second, func(context.Context) error { return a.store.Close() })
	step("supervisor", 2*time.Second, sup.Wait)

	if err := a.lock.Unlock(); err != nil {
		a.boot.Warn("release instance lock failed", logx.Err(err))
	}

	a.log.Info("rksok daemon stopped")
	if err := a.logm.Close(); err != nil {
		a.boot.Warn("logging shutdown incomplete", logx.Err(err))
	}
	return nil
}

// healthPayload backs the diag /healthz endpoint.
func (a *App) healthPayload() any {
	a.mu.Lock()
	sup := a.sup
	a.mu.Unlock()
	return struct {
		Status     string              `json:"status"`
		Listen     string              `json:"listen"`
		Supervisor supervisor.Snapshot `json:"supervisor"`
	}{
		Status:     "ok",
		Listen:     a.srv.Addr().String(),
		Supervisor: sup.Snapshot(),
	}
}

func driverName(raw string) string {
	d := strings.ToLower(strings.TrimSpace(raw))
	if d == "" {
		return "file"
	}
	return d
}

func mapServerConfig(cfg *config.Config) (server.Config, error) {
	readTimeout, err := config.ParseDurationField("server.read_timeout", cfg.Server.ReadTimeout)
	if err != nil {
		return server.Config{}, err
	}
	return server.Config{
		Listen:          cfg.Server.Listen,
		ReadTimeout:     readTimeout,
		MaxRequestBytes: cfg.Server.MaxRequestBytes,
		MaxConns:        cfg.Server.MaxConns,
	}, nil
}

func mapPhonebookConfig(cfg *config.Config, dataDir string) (phonebook.Config, error) {
	busy, err := config.ParseDurationField("phonebook.busy_timeout", cfg.Phonebook.BusyTimeout)
	if err != nil {
		return phonebook.Config{}, err
	}
	path := strings.TrimSpace(cfg.Phonebook.Path)
	if path == "" && strings.HasPrefix(driverName(cfg.Phonebook.Driver), "sqlite") {
		path = filepath.Join(dataDir, "rksok.db")
	}
	return phonebook.Config{
		Driver:      cfg.Phonebook.Driver,
		Path:        path,
		BusyTimeout: busy,
	}, nil
}

func mapDiagConfig(cfg *config.Config) (diag.Config, error) {
	d := cfg.Diag
	readTimeout, err := config.ParseDurationField("diag.read_timeout", d.ReadTimeout)
	if err != nil {
		return diag.Config{}, err
	}
	writeTimeout, err := config.ParseDurationField("diag.write_timeout", d.WriteTimeout)
	if err != nil {
		return diag.Config{}, err
	}
	idleTimeout, err := config.ParseDurationField("diag.idle_timeout", d.IdleTimeout)
	if err != nil {
		return diag.Config{}, err
	}
	return diag.Config{
		Enabled:              d.Enabled,
		Addr:                 d.Addr,
		Token:                d.Token,
		AllowInsecure:        d.AllowInsecure,
		Pprof:                d.PprofEnabled(),
		Metrics:              d.MetricsEnabled(),
		ReadTimeout:          readTimeout,
		WriteTimeout:         writeTimeout,
		IdleTimeout:          idleTimeout,
		MutexProfileFraction: d.MutexProfileFraction,
		BlockProfileRate:     d.BlockProfileRate,
		MemProfileRate:       d.MemProfileRate,
	}, nil
}
