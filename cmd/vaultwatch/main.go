package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"vaultwatch/internal/app"
)

func main() {
	var (
		cfgPath string
		mode    string
		chat    string
		dryRun  bool
	)
	flag.StringVar(&cfgPath, "config", "./config.yaml", "path to config (json or yaml)")
	flag.StringVar(&mode, "mode", "poll", "poll (vault leaderboard) or stream (tracked addresses)")
	flag.StringVar(&chat, "chat", "GROUP", "poll-mode chat: GROUP or USER")
	flag.BoolVar(&dryRun, "dry-run", false, "print messages instead of sending them")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	a, err := app.New(app.Options{
		ConfigPath: cfgPath,
		Mode:       app.Mode(mode),
		Chat:       chat,
		DryRun:     dryRun,
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, "fatal:", err)
		os.Exit(1)
	}
	if err := a.Start(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "fatal start:", err)
		_ = a.Stop(context.Background(), app.StopFatalError)
		os.Exit(1)
	}

	reason := app.StopCompleted
	select {
	case <-ctx.Done():
		reason = app.StopSignal
	case <-a.Done():
		if a.Err() != nil && ctx.Err() == nil {
			reason = app.StopFatalError
		}
	}

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer stopCancel()
	_ = a.Stop(stopCtx, reason)

	if reason != app.StopSignal {
		if err := a.Err(); err != nil && !errors.Is(err, context.Canceled) {
			fmt.Fprintln(os.Stderr, "fatal:", err)
			os.Exit(1)
		}
	}
}
