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

	"github.com/fatih/color"

	"automat/internal/agent"
	"automat/internal/app"
	"automat/internal/tasks"
	"automat/pkg/systemd"
)

func main() {
	var (
		cfgPath    string
		once       bool
		iterations int
		demo       bool
	)
	flag.StringVar(&cfgPath, "config", "", "path to config file (json or yaml, optional)")
	flag.BoolVar(&once, "once", false, "run a single sweep and exit")
	flag.IntVar(&iterations, "iterations", 0, "stop the run loop after N sweeps (0 = run until signalled)")
	flag.BoolVar(&demo, "demo", false, "register the built-in demo tasks")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	a, err := app.New(cfgPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "fatal:", err)
		os.Exit(1)
	}

	ag := a.Agent()
	if demo {
		registerDemoTasks(ag)
	}

	if once {
		printResults(ag.RunOnce(ctx))
		printStatus(ag)
		return
	}

	if err := a.Start(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "fatal start:", err)
		os.Exit(1)
	}
	systemd.NotifyReady()

	runErr := ag.Run(ctx, iterations)

	systemd.NotifyStopping()
	stopCtx, stopCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer stopCancel()
	_ = a.Stop(stopCtx)

	if demo {
		printStatus(ag)
	}
	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		fmt.Fprintln(os.Stderr, "fatal run:", runErr)
		os.Exit(1)
	}
}

func registerDemoTasks(ag *agent.Agent) {
	ag.AddTask("hello", tasks.Announce("hello from automat"))
	ag.AddTaskOpt("health-check", tasks.HealthCheck, agent.TaskOptions{Interval: 2 * time.Second})
	ag.AddTaskOpt("temp-usage", tasks.DiskUsage(""), agent.TaskOptions{Interval: 5 * time.Second})
	ag.AddTaskOpt("temp-cleanup", tasks.CleanupTempFiles("", "", time.Hour), agent.TaskOptions{Interval: 30 * time.Second})
	ag.AddTaskOpt("status-report", tasks.StatusReport(ag), agent.TaskOptions{Interval: 5 * time.Second})
}

var (
	nameCol = color.New(color.FgCyan)
	okCol   = color.New(color.FgGreen)
	failCol = color.New(color.FgRed, color.Bold)
	dimCol  = color.New(color.Faint)
)

func printResults(results []agent.Result) {
	if len(results) == 0 {
		dimCol.Println("no tasks were due")
		return
	}
	for _, r := range results {
		nameCol.Printf("%-16s", r.Task)
		if r.Failed() {
			failCol.Print(" FAIL ")
			fmt.Println(r.Error)
			continue
		}
		okCol.Print(" ok   ")
		fmt.Printf("%s %s\n", r.Message, dimCol.Sprintf("(%s)", r.Duration.Round(time.Millisecond)))
	}
}

func printStatus(ag *agent.Agent) {
	statuses := ag.Status()
	if len(statuses) == 0 {
		return
	}
	fmt.Println()
	dimCol.Printf("%s: %d task(s)\n", ag.Name(), len(statuses))
	for _, st := range statuses {
		nameCol.Printf("%-16s", st.Name)
		fmt.Printf(" state=%-9s runs=%-3d", st.State, st.RunCount)
		if st.Schedule != "" {
			fmt.Printf(" schedule=%s", st.Schedule)
		} else if st.Interval > 0 {
			fmt.Printf(" every=%s", st.Interval)
		} else {
			fmt.Print(" once")
		}
		if !st.Enabled {
			dimCol.Print(" disabled")
		}
		if st.LastError != "" {
			failCol.Printf(" err=%s", st.LastError)
		}
		fmt.Println()
	}
}
