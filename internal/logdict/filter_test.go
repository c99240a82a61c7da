package logdict

import (
	"log/slog"
	"testing"
)

func levelEntry(l slog.Level) Entry {
	e := tplEntry
	e.Level = l
	return e
}

func TestBelowErrorFilter(t *testing.T) {
	t.Parallel()
	f, err := newBelowErrorFilter(FilterSpec{Factory: "below_error"})
	if err != nil {
		t.Fatalf("factory error: %v", err)
	}
	for _, l := range []slog.Level{slog.LevelDebug, slog.LevelInfo, slog.LevelWarn} {
		if !f.Allow(levelEntry(l)) {
			t.Fatalf("Allow(%s) = false, want true", LevelName(l))
		}
	}
	for _, l := range []slog.Level{slog.LevelError, LevelCritical} {
		if f.Allow(levelEntry(l)) {
			t.Fatalf("Allow(%s) = true, want false", LevelName(l))
		}
	}
}

func TestExactLevelFilter(t *testing.T) {
	t.Parallel()
	f, err := newExactLevelFilter(FilterSpec{Factory: "exact_level", Level: "INFO"})
	if err != nil {
		t.Fatalf("factory error: %v", err)
	}
	if !f.Allow(levelEntry(slog.LevelInfo)) {
		t.Fatal("Allow(INFO) = false, want true")
	}
	if f.Allow(levelEntry(slog.LevelDebug)) || f.Allow(levelEntry(slog.LevelError)) {
		t.Fatal("exact_level admitted a non-matching level")
	}

	if _, err := newExactLevelFilter(FilterSpec{Factory: "exact_level"}); err == nil {
		t.Fatal("expected error without level")
	}
}

func TestRateLimitFilter(t *testing.T) {
	t.Parallel()
	f, err := newRateLimitFilter(FilterSpec{Factory: "rate_limit", Rate: 0.001, Burst: 2})
	if err != nil {
		t.Fatalf("factory error: %v", err)
	}
	e := levelEntry(slog.LevelInfo)
	if !f.Allow(e) || !f.Allow(e) {
		t.Fatal("burst records should pass")
	}
	if f.Allow(e) {
		t.Fatal("record beyond burst should be dropped")
	}

	if _, err := newRateLimitFilter(FilterSpec{Factory: "rate_limit"}); err == nil {
		t.Fatal("expected error without rate")
	}
}
