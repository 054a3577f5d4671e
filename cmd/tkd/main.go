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

	"telekinesis/internal/app"
	"telekinesis/pkg/systemd"
)

// statusEvery is how often the systemd status line is refreshed.
const statusEvery = 5 * time.Second

func main() {
	var (
		cfgPath    string
		importDir  string
		stopBudget time.Duration
	)
	flag.StringVar(&cfgPath, "config", "./config.yaml", "path to config (yaml or json)")
	flag.StringVar(&importDir, "import-patterns", "", "copy funscript files from this directory into storage and exit")
	flag.DurationVar(&stopBudget, "stop-timeout", 10*time.Second, "upper bound for graceful shutdown")
	flag.Parse()

	a, err := app.New(cfgPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "fatal:", err)
		os.Exit(1)
	}

	if importDir != "" {
		os.Exit(runImport(a, importDir, stopBudget))
	}

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt, syscall.SIGTERM, syscall.SIGHUP)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := a.Start(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "fatal start:", err)
		os.Exit(1)
	}
	_, _ = systemd.Ready()
	go func() { _ = systemd.Watchdog(ctx, func() bool { return a.Err() == nil }) }()
	go func() {
		_ = systemd.ReportStatus(ctx, statusEvery, func() string {
			return fmt.Sprintf("%d active tasks", a.ActiveCount())
		})
	}()

	reason := app.StopUnknown
wait:
	for {
		select {
		case s := <-sigs:
			switch s {
			case syscall.SIGHUP:
				_, _ = systemd.Reloading()
				if err := a.ReloadConfig(ctx); err != nil {
					fmt.Fprintln(os.Stderr, "reload:", err)
				}
				_, _ = systemd.Ready()
				continue
			case syscall.SIGTERM:
				reason = app.StopSIGTERM
			default:
				reason = app.StopSIGINT
			}
		case <-a.Done():
			reason = app.StopFatalError
		}
		break wait
	}
	_, _ = systemd.Stopping()

	stopCtx, stopCancel := context.WithTimeout(context.Background(), stopBudget)
	defer stopCancel()
	_ = a.Stop(stopCtx, reason)
	cancel()

	if err := a.Err(); err != nil && !errors.Is(err, context.Canceled) {
		fmt.Fprintln(os.Stderr, "fatal:", err)
		os.Exit(1)
	}
}

func runImport(a *app.App, dir string, budget time.Duration) int {
	ctx, cancel := context.WithTimeout(context.Background(), budget)
	defer cancel()
	n, err := a.ImportPatterns(ctx, dir)
	_ = a.Stop(ctx, app.StopAppStop)
	fmt.Printf("imported %d patterns from %s\n", n, dir)
	if err != nil {
		fmt.Fprintln(os.Stderr, "import:", err)
		return 1
	}
	return 0
}
