package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/robfig/cron/v3"

	"github.com/platinummonkey/casedesk/pkg/config"
	"github.com/platinummonkey/casedesk/pkg/observability"
	"github.com/platinummonkey/casedesk/pkg/operators"
	"github.com/platinummonkey/casedesk/pkg/records"
	"github.com/platinummonkey/casedesk/pkg/storage"
	"github.com/platinummonkey/casedesk/pkg/storage/postgres"
)

var (
	schedule = flag.String("schedule", "", "Cron schedule for the legacy normalization sweep (default from CASEDESK_NORMALIZE_SCHEDULE)")
	runOnce  = flag.Bool("run-once", false, "Run the sweep once and exit")
)

// normalizer rewrites documents stored with legacy structure fields
type normalizer interface {
	NormalizeLegacy(ctx context.Context) (int, error)
}

func main() {
	flag.Parse()

	cfg, err := config.LoadConfig()
	if err != nil {
		observability.NewLogger(observability.ErrorLevel, os.Stderr).WithError(err).Error("Failed to load configuration")
		os.Exit(1)
	}
	logger := observability.NewLogger(cfg.Observability.Level(), os.Stdout).WithField("service", "casedesk-maintenance")

	if cfg.Storage.Type != "postgres" {
		logger.Error("The maintenance sweep needs the postgres document store")
		os.Exit(1)
	}

	ctx := observability.WithLogger(context.Background(), logger)
	db, err := postgres.Open(ctx, postgres.ConnectionConfigFrom(cfg.Storage))
	if err != nil {
		logger.WithError(err).Error("Failed to connect to database")
		os.Exit(1)
	}
	store := postgres.NewDocumentStore(db, nil)
	defer store.Close()

	sweep := newSweep(store)

	// Run once mode (for testing or ad-hoc repairs)
	if *runOnce {
		if err := sweep(ctx); err != nil {
			logger.WithError(err).Error("Normalization failed")
			os.Exit(1)
		}
		return
	}

	spec := *schedule
	if spec == "" {
		spec = cfg.Maintenance.NormalizeSchedule
	}

	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	if _, err := c.AddFunc(spec, func() {
		if err := sweep(ctx); err != nil {
			logger.WithError(err).Error("Scheduled normalization failed")
		}
	}); err != nil {
		logger.WithError(err).WithField("schedule", spec).Error("Failed to schedule normalization")
		os.Exit(1)
	}

	c.Start()
	logger.WithField("schedule", spec).Info("casedesk maintenance started")

	sigCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	<-sigCtx.Done()

	logger.Info("Shutting down gracefully...")
	<-c.Stop().Done()
	logger.Info("Maintenance stopped")
}

// newSweep returns the normalization pass, operators first
func newSweep(store storage.DocumentStore) func(context.Context) error {
	steps := []struct {
		name string
		n    normalizer
	}{
		{"operators", operators.NewDirectory(store)},
		{"records", records.NewService(store, operators.NewDirectory(store), records.Options{})},
	}

	return func(ctx context.Context) error {
		logger := observability.FromContext(ctx)
		for _, step := range steps {
			rewritten, err := step.n.NormalizeLegacy(ctx)
			if err != nil {
				return err
			}
			logger.WithFields(map[string]interface{}{
				"collection": step.name,
				"rewritten":  rewritten,
			}).Info("Legacy documents normalized")
		}
		return nil
	}
}
