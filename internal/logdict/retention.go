package logdict

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"rksokd/pkg/logx"
)

// RetentionTarget names a directory and filename pattern to prune.
// Exclude lists paths that must survive the sweep, typically
// Manager.ActiveFiles.
type RetentionTarget struct {
	Dir     string
	Pattern string
	Exclude []string
}

// CleanupOldLogs removes files matching the targets that are older than
// maxAgeDays and returns how many were removed. A maxAgeDays of 0
// disables pruning. Unreadable directories and entries are skipped.
func CleanupOldLogs(log logx.Logger, maxAgeDays int, targets ...RetentionTarget) int {
	if maxAgeDays <= 0 {
		return 0
	}
	cutoff := time.Now().AddDate(0, 0, -maxAgeDays)

	exclusions := make(map[string]struct{})
	for _, target := range targets {
		for _, path := range target.Exclude {
			if trimmed := strings.TrimSpace(path); trimmed != "" {
				if abs, err := filepath.Abs(trimmed); err == nil {
					exclusions[abs] = struct{}{}
				}
			}
		}
	}

	removed := 0
	for _, target := range targets {
		dir := strings.TrimSpace(target.Dir)
		if dir == "" {
			continue
		}
		entries, err := os.ReadDir(dir)
		if err != nil {
			continue
		}
		for _, entry := range entries {
			if entry.IsDir() {
				continue
			}
			name := entry.Name()
			if pat := strings.TrimSpace(target.Pattern); pat != "" {
				matched, err := filepath.Match(pat, name)
				if err != nil || !matched {
					continue
				}
			}
			path := filepath.Join(dir, name)
			if abs, err := filepath.Abs(path); err == nil {
				path = abs
			}
			if _, skip := exclusions[path]; skip {
				continue
			}
			info, err := entry.Info()
			if err != nil {
				continue
			}
			if !info.ModTime().Before(cutoff) {
				continue
			}
			if err := os.Remove(path); err != nil {
				log.Warn("log retention remove failed", logx.String("path", path), logx.Err(err))
				continue
			}
			removed++
			log.Debug("old log pruned", logx.String("path", path))
		}
	}
	return removed
}
