package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/ritzau/angioflow/pkg/config"
	"github.com/ritzau/angioflow/pkg/logging"
	"github.com/ritzau/angioflow/pkg/metrics"
	"github.com/ritzau/angioflow/pkg/output"
	"github.com/ritzau/angioflow/pkg/sim"
	"github.com/ritzau/angioflow/pkg/watcher"
	"github.com/ritzau/angioflow/pkg/web"
)

func main() {
	flags := pflag.NewFlagSet("angioflow", pflag.ExitOnError)
	config.RegisterFlags(flags)
	_ = flags.Parse(os.Args[1:])

	cfg, err := config.Load(flags)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	level := logging.ParseLevel(cfg.Verbosity)
	if cfg.JSONLogs {
		logging.SetJSONOutput(level)
	} else {
		logging.SetLevel(level)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var server *web.Server
	if cfg.WebMode {
		server = web.NewServer(metrics.NewRegistry())
		go func() {
			if err := server.Start(ctx, cfg.Port); err != nil {
				logging.Fatal("failed to start server", "error", err)
			}
		}()
	}

	if cfg.Watch {
		if err := watch(ctx, flags, cfg, server); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	res, err := run(ctx, cfg.Params, server)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if server != nil {
		// keep serving the final state until interrupted
		<-ctx.Done()
	}
	if res.Outcome == sim.Aborted || res.Outcome == sim.Failed {
		os.Exit(1)
	}
}

// run executes one simulation, through the web server when there is one,
// and prints the report.
func run(ctx context.Context, p config.Params, server *web.Server) (sim.Result, error) {
	c, err := p.NewController()
	if err != nil {
		return sim.Result{}, err
	}
	var res sim.Result
	if server != nil {
		res, err = server.Run(ctx, c)
	} else {
		bar := output.NewProgress(os.Stderr, p.Run.Duration, p.Run.TimeStep)
		res, err = c.WithObserver(bar).Run(ctx)
		bar.Finish()
	}
	output.PrintRunReport(os.Stdout, res, c.Network())
	return res, err
}

// watch restarts the run whenever the parameter file is saved. A failed
// reload keeps the current run going.
func watch(ctx context.Context, flags *pflag.FlagSet, cfg *config.Config, server *web.Server) error {
	fw, err := watcher.NewFileWatcher(cfg.File)
	if err != nil {
		return err
	}
	if err := fw.Start(ctx); err != nil {
		return err
	}
	deb := watcher.NewDebouncer(fw.Events(), 300*time.Millisecond, 2*time.Second)
	deb.Start(ctx)

	start := func(p config.Params) (context.CancelFunc, <-chan struct{}) {
		runCtx, cancel := context.WithCancel(ctx)
		done := make(chan struct{})
		go func() {
			defer close(done)
			if _, err := run(runCtx, p, server); err != nil {
				logging.Error("run failed", "error", err)
			}
		}()
		return cancel, done
	}

	cancel, done := start(cfg.Params)
	defer func() {
		cancel()
		<-done
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-deb.Output():
			if !ok {
				return nil
			}
			analysis := watcher.AnalyzeChanges(ev)
			if !analysis.Rerun {
				logging.Warn("parameter file removed, keeping current run", "path", fw.Path())
				continue
			}
			next, err := config.Load(flags)
			if err != nil {
				logging.Error("reload failed, keeping current run", "error", err)
				continue
			}
			logging.Info("parameters changed, restarting run", "files", len(analysis.ChangedFiles))
			cancel()
			<-done
			cancel, done = start(next.Params)
		}
	}
}
