package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"

	"github.com/linkedin-autopost/internal/app"
	"github.com/linkedin-autopost/internal/config"
	"github.com/linkedin-autopost/internal/runlock"
	"github.com/linkedin-autopost/pkg/logger"
)

var (
	cfgFile string
	cfg     *config.Config
	log     *logger.Logger
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "autopost-scheduler",
		Short: "Background scheduler for the LinkedIn auto-post bot",
		Long: `Runs the daily workflow on a cron schedule and keeps the preview
server up between runs. This daemon should be run as a service.`,
		RunE: runScheduler,
	}

	rootCmd.Flags().StringVar(&cfgFile, "config", "", "config file path")

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runScheduler(cmd *cobra.Command, args []string) error {
	var err error

	cfg, err = config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	log = logger.New(logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	})

	log.Info().Msg("Starting LinkedIn auto-post scheduler")

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	a, err := app.New(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer a.Close()

	// The preview server doubles as the health endpoint for the host
	previewDone := make(chan error, 1)
	go func() {
		previewDone <- a.Preview.Run(ctx)
	}()

	c := cron.New(cron.WithLogger(cronLogger{log}), cron.WithChain(
		cron.Recover(cronLogger{log}),
		cron.SkipIfStillRunning(cronLogger{log}),
	))

	_, err = c.AddFunc(cfg.Scheduler.RunCron, func() {
		log.Info().Msg("Running scheduled workflow")

		report, err := a.RunOnce(ctx)
		if errors.Is(err, runlock.ErrHeld) {
			log.Warn().Err(err).Msg("Skipping scheduled run")
			return
		}
		if err != nil {
			log.Error().Err(err).Msg("Scheduled workflow failed")
			return
		}
		if report.Skipped != "" {
			log.Info().Str("skipped", report.Skipped).Msg("Scheduled workflow skipped")
			return
		}

		log.Info().
			Str("run_id", report.Run.ID).
			Bool("posted", report.Outcome.Posted).
			Str("reason", string(report.Outcome.Reason)).
			Msg("Scheduled workflow completed")
	})
	if err != nil {
		return fmt.Errorf("failed to schedule workflow: %w", err)
	}
	log.Info().Str("cron", cfg.Scheduler.RunCron).Msg("Workflow job scheduled")

	c.Start()
	log.Info().Msg("Scheduler started")

	select {
	case <-ctx.Done():
	case err := <-previewDone:
		if err != nil {
			log.Error().Err(err).Msg("Preview server failed")
		}
		<-ctx.Done()
	}

	log.Info().Msg("Shutting down scheduler")
	// wait for a run in progress; its summary mail is already sent or sending
	<-c.Stop().Done()

	return nil
}

// cronLogger adapts our logger for cron
type cronLogger struct {
	log *logger.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debug().Fields(keysAndValues).Msg(msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Error().Err(err).Fields(keysAndValues).Msg(msg)
}
