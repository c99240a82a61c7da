package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"rksokd/internal/app"
	"rksokd/internal/logdict"
	"rksokd/pkg/logx"
)

func main() {
	var (
		cfgPath string
		level   string
		dumpDoc bool
	)
	flag.StringVar(&cfgPath, "config", "./config.yml", "path to the daemon config")
	flag.StringVar(&level, "log-level", "INFO", "bootstrap log level (TRACE, DEBUG, INFO, WARN, ERROR)")
	flag.BoolVar(&dumpDoc, "dump-logging-config", false, "print the built-in logging document and exit")
	flag.Parse()

	if dumpDoc {
		_, _ = os.Stdout.Write(logdict.DefaultDocumentBytes())
		return
	}

	boot := logx.NewConsole(level).With(logx.String("comp", "boot"))

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	a, err := app.New(cfgPath, boot)
	if err != nil {
		fmt.Fprintln(os.Stderr, "fatal:", err)
		os.Exit(1)
	}
	if err := a.Start(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "fatal start:", err)
		os.Exit(1)
	}

	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)

	for running := true; running; {
		select {
		case <-ctx.Done():
			running = false
		case <-a.Done():
			running = false
		case <-hup:
			boot.Info("SIGHUP received; reloading config")
			if err := a.Reload(ctx); err != nil {
				boot.Warn("config reload failed", logx.Err(err))
			}
		}
	}

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer stopCancel()
	_ = a.Stop(stopCtx)

	if err := a.Err(); err != nil {
		fmt.Fprintln(os.Stderr, "fatal:", err)
		os.Exit(1)
	}
}
