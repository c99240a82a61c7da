package config

import (
	"sort"
	"strings"

	logx "rksokd/pkg/logx"
)

// SummarizeConfigChange returns (1) a compact list of changed sections and
// (2) safe structured attrs for logging (never includes secrets like the
// diag token).
func SummarizeConfigChange(oldCfg, newCfg *Config) ([]string, []logx.Field) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}

	changed := make([]string, 0, 6)
	attrs := make([]logx.Field, 0, 20)

	if strings.TrimSpace(oldCfg.DataDir) != strings.TrimSpace(newCfg.DataDir) {
		changed = append(changed, "data_dir")
		attrs = append(attrs, logx.String("data_dir", strings.TrimSpace(newCfg.DataDir)))
	}

	// Server
	if strings.TrimSpace(oldCfg.Server.Listen) != strings.TrimSpace(newCfg.Server.Listen) ||
		strings.TrimSpace(oldCfg.Server.ReadTimeout) != strings.TrimSpace(newCfg.Server.ReadTimeout) ||
		strings.TrimSpace(oldCfg.Server.ShutdownTimeout) != strings.TrimSpace(newCfg.Server.ShutdownTimeout) ||
		oldCfg.Server.MaxRequestBytes != newCfg.Server.MaxRequestBytes ||
		oldCfg.Server.MaxConns != newCfg.Server.MaxConns {
		changed = append(changed, "server")
		attrs = append(attrs,
			logx.String("server.listen", strings.TrimSpace(newCfg.Server.Listen)),
			logx.String("server.read_timeout", strings.TrimSpace(newCfg.Server.ReadTimeout)),
			logx.String("server.shutdown_timeout", strings.TrimSpace(newCfg.Server.ShutdownTimeout)),
			logx.Int64("server.max_request_bytes", newCfg.Server.MaxRequestBytes),
			logx.Int("server.max_conns", newCfg.Server.MaxConns),
		)
	}

	// Approval
	if strings.TrimSpace(oldCfg.Approval.Addr) != strings.TrimSpace(newCfg.Approval.Addr) ||
		strings.TrimSpace(oldCfg.Approval.Timeout) != strings.TrimSpace(newCfg.Approval.Timeout) {
		changed = append(changed, "approval")
		attrs = append(attrs,
			logx.String("approval.addr", strings.TrimSpace(newCfg.Approval.Addr)),
			logx.String("approval.timeout", strings.TrimSpace(newCfg.Approval.Timeout)),
		)
	}

	// Phonebook
	if strings.TrimSpace(oldCfg.Phonebook.Driver) != strings.TrimSpace(newCfg.Phonebook.Driver) ||
		strings.TrimSpace(oldCfg.Phonebook.Path) != strings.TrimSpace(newCfg.Phonebook.Path) ||
		strings.TrimSpace(oldCfg.Phonebook.BusyTimeout) != strings.TrimSpace(newCfg.Phonebook.BusyTimeout) {
		changed = append(changed, "phonebook")
		attrs = append(attrs,
			logx.String("phonebook.driver", strings.TrimSpace(newCfg.Phonebook.Driver)),
			logx.Bool("phonebook.path_set", strings.TrimSpace(newCfg.Phonebook.Path) != ""),
			logx.String("phonebook.busy_timeout", strings.TrimSpace(newCfg.Phonebook.BusyTimeout)),
		)
	}

	// Logging (document path + upkeep)
	if strings.TrimSpace(oldCfg.Logging.Config) != strings.TrimSpace(newCfg.Logging.Config) ||
		oldCfg.Logging.Watch != newCfg.Logging.Watch ||
		oldCfg.Logging.Retention != newCfg.Logging.Retention {
		changed = append(changed, "logging")
		attrs = append(attrs,
			logx.String("logging.config", strings.TrimSpace(newCfg.Logging.Config)),
			logx.Bool("logging.watch", newCfg.Logging.Watch),
			logx.Int("logging.retention.max_age_days", newCfg.Logging.Retention.MaxAgeDays),
			logx.String("logging.retention.schedule", strings.TrimSpace(newCfg.Logging.Retention.Schedule)),
		)
	}

	// Diag (never log token)
	if oldCfg.Diag.Enabled != newCfg.Diag.Enabled ||
		strings.TrimSpace(oldCfg.Diag.Addr) != strings.TrimSpace(newCfg.Diag.Addr) ||
		oldCfg.Diag.AllowInsecure != newCfg.Diag.AllowInsecure ||
		oldCfg.Diag.PprofEnabled() != newCfg.Diag.PprofEnabled() ||
		oldCfg.Diag.MetricsEnabled() != newCfg.Diag.MetricsEnabled() ||
		strings.TrimSpace(oldCfg.Diag.ReadTimeout) != strings.TrimSpace(newCfg.Diag.ReadTimeout) ||
		strings.TrimSpace(oldCfg.Diag.WriteTimeout) != strings.TrimSpace(newCfg.Diag.WriteTimeout) ||
		strings.TrimSpace(oldCfg.Diag.IdleTimeout) != strings.TrimSpace(newCfg.Diag.IdleTimeout) ||
		oldCfg.Diag.MutexProfileFraction != newCfg.Diag.MutexProfileFraction ||
		oldCfg.Diag.BlockProfileRate != newCfg.Diag.BlockProfileRate ||
		oldCfg.Diag.MemProfileRate != newCfg.Diag.MemProfileRate ||
		(strings.TrimSpace(oldCfg.Diag.Token) != "") != (strings.TrimSpace(newCfg.Diag.Token) != "") {
		changed = append(changed, "diag")
		attrs = append(attrs,
			logx.Bool("diag.enabled", newCfg.Diag.Enabled),
			logx.String("diag.addr", strings.TrimSpace(newCfg.Diag.Addr)),
			logx.Bool("diag.pprof", newCfg.Diag.PprofEnabled()),
			logx.Bool("diag.metrics", newCfg.Diag.MetricsEnabled()),
			logx.Bool("diag.token_set", strings.TrimSpace(newCfg.Diag.Token) != ""),
			logx.Bool("diag.allow_insecure", newCfg.Diag.AllowInsecure),
		)
	}

	sort.Strings(changed)
	return changed, attrs
}
