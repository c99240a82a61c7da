package app

import (
	"context"
	"log/slog"
	"path/filepath"
	"strings"

	"rksokd/internal/config"
	"rksokd/internal/logdict"
	"rksokd/pkg/logx"
)

// defaultRetentionSchedule runs the log sweep nightly at 03:00.
const defaultRetentionSchedule = "0 3 * * *"

// reloadLoop consumes published configs and applies what can change live:
// the logging document, the diag endpoint, and the retention schedule.
// Sections that need a restart get a warning instead.
func (a *App) reloadLoop(ctx context.Context, sub chan *config.Config) {
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
			// Coalesce bursts: keep only the latest config in the channel.
			for {
				select {
				case newer := <-sub:
					if newer != nil {
						newCfg = newer
					}
				default:
					goto APPLY
				}
			}
		APPLY:
			sections, attrs := config.SummarizeConfigChange(lastApplied, newCfg)
			if len(sections) > 0 {
				fields := append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)
				a.boot.Debug("config change summary", fields...)
			} else {
				a.boot.Debug("config reload received, but no effective changes detected")
			}
			a.applyConfig(ctx, sections, lastApplied, newCfg)
			lastApplied = newCfg
		}
	}
}

func (a *App) applyConfig(ctx context.Context, sections []string, oldCfg, newCfg *config.Config) {
	for _, s := range sections {
		switch s {
		case "server", "approval", "phonebook", "data_dir":
			a.log.Warn("config change needs a restart to take effect", slog.String("section", s))
		}
	}

	for _, s := range sections {
		switch s {
		case "logging":
			a.applyLoggingChange(oldCfg, newCfg)
		case "diag":
			dcfg, err := mapDiagConfig(newCfg)
			if err != nil {
				a.boot.Warn("invalid diag config; keeping previous", logx.Err(err))
				continue
			}
			a.diag.Reconfigure(ctx, dcfg)
		}
	}
}

func (a *App) applyLoggingChange(oldCfg, newCfg *config.Config) {
	docPath := strings.TrimSpace(newCfg.Logging.Config)

	a.mu.Lock()
	prev := a.docPath
	a.mu.Unlock()

	if docPath != prev {
		doc, err := loadDocument(docPath)
		if err != nil {
			a.boot.Warn("logging document load failed; keeping previous graph",
				logx.String("path", docPath), logx.Err(err))
		} else if err := a.logm.Apply(doc); err != nil {
			a.boot.Warn("logging document rejected; keeping previous graph",
				logx.String("path", docPath), logx.Err(err))
		} else {
			a.mu.Lock()
			a.docPath = docPath
			a.mu.Unlock()
			a.boot.Info("logging document switched", logx.String("path", docPath))
			if newCfg.Logging.Watch && docPath != "" {
				// The watcher goroutine is bound to the path it started with.
				a.boot.Warn("document watcher does not follow the new path; restart to watch it",
					logx.String("path", docPath))
			}
		}
	}

	if oldCfg != nil && oldCfg.Logging.Watch != newCfg.Logging.Watch {
		a.boot.Warn("logging.watch change needs a restart to take effect")
	}

	a.scheduleRetention(newCfg)
}

// reapplyDocument reloads the watched logging document. A document that
// fails to parse or build leaves the running graph untouched.
func (a *App) reapplyDocument(path string) {
	doc, err := logdict.ReadDocument(path)
	if err != nil {
		a.boot.Warn("logging document reload failed; keeping previous graph",
			logx.String("path", path), logx.Err(err))
		return
	}
	if err := a.logm.Apply(doc); err != nil {
		a.boot.Warn("logging document rejected; keeping previous graph",
			logx.String("path", path), logx.Err(err))
		return
	}
	a.boot.Info("logging document re-applied", logx.String("path", path))
}

// loadDocument reads the document at path, or the built-in one when path is
// empty.
func loadDocument(path string) (*logdict.Document, error) {
	if strings.TrimSpace(path) == "" {
		return logdict.DefaultDocument()
	}
	return logdict.ReadDocument(path)
}

// scheduleRetention replaces the cron entry for the log sweep. A
// max_age_days of zero unschedules it.
func (a *App) scheduleRetention(cfg *config.Config) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.cron == nil {
		return
	}
	if a.cronID != 0 {
		a.cron.Remove(a.cronID)
		a.cronID = 0
	}

	days := cfg.Logging.Retention.MaxAgeDays
	if days <= 0 {
		a.log.Debug("log retention disabled")
		return
	}
	spec := strings.TrimSpace(cfg.Logging.Retention.Schedule)
	if spec == "" {
		spec = defaultRetentionSchedule
	}
	id, err := a.cron.AddFunc(spec, func() { a.sweepOldLogs(days) })
	if err != nil {
		a.boot.Warn("retention schedule rejected", logx.String("schedule", spec), logx.Err(err))
		return
	}
	a.cronID = id
	a.log.Info("log retention scheduled",
		slog.String("schedule", spec),
		slog.Int("max_age_days", days),
	)
}

func (a *App) sweepOldLogs(maxAgeDays int) {
	removed := logdict.CleanupOldLogs(a.boot.With(logx.String("comp", "retention")), maxAgeDays, a.retentionTargets()...)
	if removed > 0 {
		a.log.Info("old log files pruned", slog.Int("removed", removed))
	} else {
		a.log.Debug("log retention sweep found nothing to prune")
	}
}

// retentionTargets sweeps the directories holding the graph's live log
// files; the live files themselves are excluded.
func (a *App) retentionTargets() []logdict.RetentionTarget {
	active := a.logm.ActiveFiles()
	seen := make(map[string]struct{}, len(active))
	targets := make([]logdict.RetentionTarget, 0, len(active))
	for _, f := range active {
		dir := filepath.Dir(f)
		if _, ok := seen[dir]; ok {
			continue
		}
		seen[dir] = struct{}{}
		targets = append(targets, logdict.RetentionTarget{
			Dir:     dir,
			Pattern: logdict.DailyFilePattern,
			Exclude: active,
		})
	}
	return targets
}
