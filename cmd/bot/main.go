package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"animefinder/internal/app"
	"animefinder/internal/config"
	logx "animefinder/pkg/logx"
	"animefinder/pkg/systemd"
)

func main() {
	var envFile, cfgPath string
	flag.StringVar(&envFile, "env", ".env", "path to dotenv file (optional)")
	flag.StringVar(&cfgPath, "config", "", "path to tuning file, yaml or json (overrides CONFIG_FILE)")
	flag.Parse()

	env, err := config.LoadEnv(envFile)
	if err != nil {
		fmt.Fprintln(os.Stderr, "fatal:", err)
		os.Exit(1)
	}
	if cfgPath == "" {
		cfgPath = env.ConfigFile
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	cfgm := config.NewManager(cfgPath, logx.NewConsole("info"))
	a, err := app.New(ctx, env, cfgm, app.Options{})
	if err != nil {
		fmt.Fprintln(os.Stderr, "fatal:", err)
		os.Exit(1)
	}
	if err := a.Start(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "fatal start:", err)
		_ = a.Stop(context.Background(), app.StopFatalError)
		os.Exit(1)
	}

	_, _ = systemd.Ready()
	_, _ = systemd.Status("serving")
	go func() { _ = systemd.Watchdog(ctx, func() bool { return a.Err() == nil }) }()

	reason := app.StopUnknown
	select {
	case sig := <-sigCh:
		reason = app.StopSIGTERM
		if sig == os.Interrupt {
			reason = app.StopSIGINT
		}
	case <-a.Done():
		reason = app.StopAppStop
		if a.Err() != nil {
			reason = app.StopFatalError
		}
	}

	_, _ = systemd.Stopping()
	stopCtx, stopCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer stopCancel()
	err = a.Stop(stopCtx, reason)
	cancel()
	if reason == app.StopFatalError || err != nil {
		if e := a.Err(); e != nil {
			fmt.Fprintln(os.Stderr, "fatal:", e)
		}
		os.Exit(1)
	}
}
