// Command pipeline is the orchestrator's CLI entrypoint: it drives one
// pipeline or sweeps every enabled pipeline, then exits with a status
// that reflects what happened so it can be wired into cron or a CI job.
//
// Usage:
//
//	pipeline --all
//	pipeline --id 3
//	pipeline --name weekly-digest
//	pipeline --all --debug-only --ignore-weekday
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/originpress/inkwell/internal/app"
	"github.com/originpress/inkwell/internal/domain"
	"github.com/originpress/inkwell/internal/pipeline/orchestrator"
)

// Exit codes per the CLI surface: 0 on full success, 1 on an error before a
// run was recorded or on any failed:config/failed:internal run, 2 when any
// other run did not succeed (partial, skipped or a failed delivery).
const (
	exitSuccess = 0
	exitPartial = 2
	exitError   = 1
)

func main() {
	all := flag.Bool("all", false, "run every enabled pipeline in id order")
	id := flag.Int64("id", 0, "run exactly one pipeline by id")
	name := flag.String("name", "", "run exactly one pipeline by name")
	debugOnly := flag.Bool("debug-only", false, "run only pipelines with debug_enabled = 1")
	ignoreWeekday := flag.Bool("ignore-weekday", false, "bypass the weekday gate for this invocation")
	dbPath := flag.String("db", "", "path to the catalogue database (defaults to an in-memory store)")
	flag.Parse()

	if !*all && *id == 0 && *name == "" {
		fmt.Fprintln(os.Stderr, "pipeline: one of --all, --id or --name is required")
		flag.Usage()
		os.Exit(exitError)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	runtimeCfg := app.RuntimeConfig{CataloguePath: *dbPath}
	application, err := app.New(app.Stores{}, app.WithRuntimeConfig(runtimeCfg))
	if err != nil {
		fmt.Fprintf(os.Stderr, "pipeline: initialize application: %v\n", err)
		os.Exit(exitError)
	}
	defer application.Store.Close()

	opts := orchestrator.RunOptions{IgnoreWeekday: *ignoreWeekday, DebugMode: *debugOnly}
	orch := application.Orchestrator

	var runs []domain.PipelineRun
	var runErrs []error

	switch {
	case *all:
		filter := debugOnlyFilter(*debugOnly)
		runs, runErrs = orch.RunAll(ctx, time.Now(), opts, filter)
	case *id != 0:
		run, err := orch.Run(ctx, *id, time.Now(), opts)
		if err != nil {
			fmt.Fprintf(os.Stderr, "pipeline: run %d: %v\n", *id, err)
			os.Exit(exitError)
		}
		runs = append(runs, run)
	case *name != "":
		targetID, err := resolvePipelineIDByName(ctx, application, *name)
		if err != nil {
			fmt.Fprintf(os.Stderr, "pipeline: %v\n", err)
			os.Exit(exitError)
		}
		run, err := orch.Run(ctx, targetID, time.Now(), opts)
		if err != nil {
			fmt.Fprintf(os.Stderr, "pipeline: run %q: %v\n", *name, err)
			os.Exit(exitError)
		}
		runs = append(runs, run)
	}

	for _, err := range runErrs {
		if err != nil {
			fmt.Fprintf(os.Stderr, "pipeline: %v\n", err)
		}
	}

	os.Exit(exitCodeFor(runs, runErrs))
}

// debugOnlyFilter returns the pipeline predicate RunAll sweeps with.
// nil means "every enabled pipeline"; restricting to debug pipelines is
// the only filter the sweep flags currently need.
func debugOnlyFilter(debugOnly bool) func(domain.Pipeline) bool {
	if !debugOnly {
		return nil
	}
	return func(p domain.Pipeline) bool { return p.DebugEnabled }
}

func resolvePipelineIDByName(ctx context.Context, application *app.Application, name string) (int64, error) {
	pipelines, err := application.Store.ListPipelines(ctx)
	if err != nil {
		return 0, fmt.Errorf("list pipelines: %w", err)
	}
	for _, p := range pipelines {
		if p.Name == name {
			return p.ID, nil
		}
	}
	return 0, fmt.Errorf("no pipeline named %q", name)
}

// exitCodeFor maps a batch of runs to the documented exit codes: any
// outright error before a run completed, or any run settling on
// "failed:config" or "failed:internal", is a hard error; any other
// non-success status ("partial", "skipped:*", or a delivery "failed")
// downgrades to the partial exit code; otherwise success.
func exitCodeFor(runs []domain.PipelineRun, runErrs []error) int {
	for _, err := range runErrs {
		if err != nil {
			return exitError
		}
	}
	code := exitSuccess
	for _, run := range runs {
		switch {
		case run.Status == orchestrator.StatusFailedConfig || run.Status == orchestrator.StatusFailedInternal:
			return exitError
		case run.Status != orchestrator.StatusSuccess:
			code = exitPartial
		}
	}
	return code
}
