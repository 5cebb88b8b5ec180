package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/viant/taskd"
	"github.com/viant/taskd/model/job"
	"github.com/viant/taskd/service/event"
	"golang.org/x/sync/errgroup"
)

func main() {
	configURL := flag.String("config", "", "configuration document URL (YAML)")
	node := flag.String("node", "", "node name echoed in every response; overrides the config")
	shutdownTimeout := flag.Duration("shutdown-timeout", 30*time.Second, "how long running jobs may take to stop")
	flag.Parse()

	if err := run(*configURL, *node, *shutdownTimeout); err != nil {
		slog.Error("taskd failed", "error", err)
		os.Exit(1)
	}
}

func run(configURL, node string, shutdownTimeout time.Duration) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	config := taskd.DefaultConfig("")
	if configURL != "" {
		var err error
		if config, err = taskd.LoadConfig(ctx, configURL); err != nil {
			return err
		}
	}
	if node != "" {
		config.Node = node
	}
	if err := config.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	logger, err := config.Log.NewLogger(os.Stderr)
	if err != nil {
		return err
	}
	slog.SetDefault(logger)

	srv, err := taskd.New(ctx, taskd.WithConfig(config), taskd.WithLogger(logger))
	if err != nil {
		return fmt.Errorf("failed to create service: %w", err)
	}
	if events := srv.Events(); events != nil {
		err = event.SetListenerOf[job.Job](ctx, events, func(e *event.Event[job.Job]) {
			logger.Debug("job transition", "job", e.Context.JobID, "project", e.Context.Project, "from", e.Context.Previous, "to", e.Context.EventType)
		})
		if err != nil {
			return fmt.Errorf("failed to attach event listener: %w", err)
		}
	}
	if err = srv.Start(ctx); err != nil {
		return fmt.Errorf("failed to start: %w", err)
	}

	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		<-gCtx.Done()
		logger.Info("shutting down", "node", srv.Node())
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	g.Go(func() error {
		ticker := time.NewTicker(time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-gCtx.Done():
				return nil
			case <-ticker.C:
				status, err := srv.Status(gCtx)
				if err != nil {
					continue
				}
				logger.Info("status", "pending", status.Pending, "running", status.Running, "finished", status.Finished, "failed", status.Failed, "cancelled", status.Cancelled)
			}
		}
	})
	return g.Wait()
}
