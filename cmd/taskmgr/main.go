package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Vampouille/georchestra/internal/app"
	"github.com/Vampouille/georchestra/internal/task"
)

func main() {
	var (
		cfgPath  string
		demo     int
		demoTime time.Duration
	)
	flag.StringVar(&cfgPath, "config", "./config.yaml", "path to config (json or yaml)")
	flag.IntVar(&demo, "demo", 0, "submit N sleep tasks with rotating priorities on start")
	flag.DurationVar(&demoTime, "demo-duration", 2*time.Second, "run time of each demo task")
	flag.Parse()

	a, err := app.NewApp(cfgPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "fatal:", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := a.Start(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "fatal start:", err)
		os.Exit(1)
	}

	for i := 0; i < demo; i++ {
		p := task.Priority(i % 3)
		name := fmt.Sprintf("demo-%d", i+1)
		t := task.NewFunc(name, p, func(c context.Context) error {
			select {
			case <-c.Done():
				return c.Err()
			case <-time.After(demoTime):
				return nil
			}
		})
		if err := a.Scheduler().Submit(t); err != nil {
			fmt.Fprintln(os.Stderr, "demo submit:", err)
			break
		}
	}

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigs)

	reason := app.StopUnknown
	select {
	case sig := <-sigs:
		reason = app.StopSIGINT
		if sig == syscall.SIGTERM {
			reason = app.StopSIGTERM
		}
	case <-a.Done():
		reason = app.StopFatalError
	}

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer stopCancel()
	_ = a.Stop(stopCtx, reason)

	if err := a.Err(); err != nil {
		fmt.Fprintln(os.Stderr, "fatal:", err)
		os.Exit(1)
	}
}
