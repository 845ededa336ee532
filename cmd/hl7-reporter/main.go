package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/meridian-health/hl7-reporter/internal/config"
	"github.com/meridian-health/hl7-reporter/internal/jurisdiction"
	"github.com/meridian-health/hl7-reporter/internal/platform/docdb"
	"github.com/meridian-health/hl7-reporter/internal/platform/objstore"
	"github.com/meridian-health/hl7-reporter/internal/platform/queue"
	"github.com/meridian-health/hl7-reporter/internal/platform/secrets"
	"github.com/meridian-health/hl7-reporter/internal/report"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "hl7-reporter",
		Short: "DOH HL7 v2 reporting worker",
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(processCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Consume encounter-complete events and report them",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

func processCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "process",
		Short: "Report a single encounter and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			encounterID, _ := cmd.Flags().GetString("encounter-id")
			reprocess, _ := cmd.Flags().GetBool("reprocess")
			vax, _ := cmd.Flags().GetBool("vax")
			return runOnce(encounterID, reprocess, vax)
		},
	}
	cmd.Flags().String("encounter-id", "", "Encounter id to report")
	cmd.Flags().Bool("reprocess", false, "Process the encounter even if already delivered")
	cmd.Flags().Bool("vax", false, "Report a vaccination encounter instead of test orders")
	cmd.MarkFlagRequired("encounter-id")
	return cmd
}

func newLogger() zerolog.Logger {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	if os.Getenv("ENV") == "development" {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}
	return logger
}

// buildProcessor wires the collaborators every command needs: the document
// database, the jurisdiction store, and the destination bucket.
func buildProcessor(ctx context.Context, cfg *config.Config, logger zerolog.Logger, reprocess bool) (*report.Processor, *docdb.Client, error) {
	mongoURI := cfg.MongoURI
	if cfg.SecretID != "" {
		mgr, err := secrets.New(ctx, cfg.AWSRegion, cfg.SecretID)
		if err != nil {
			return nil, nil, err
		}
		uri, err := mgr.Token(ctx, "docdb_uri")
		if err != nil {
			return nil, nil, err
		}
		mongoURI = uri
	}

	db, err := docdb.Connect(ctx, docdb.Config{
		URI:           mongoURI,
		Database:      cfg.MongoDatabase,
		RetryAttempts: cfg.RetryAttempts,
		RetryDelay:    cfg.RetryDelay,
		Timeout:       cfg.RequestTimeout,
	}, logger)
	if err != nil {
		return nil, nil, err
	}
	logger.Info().Msg("connected to document database")

	store, err := jurisdiction.NewStore(cfg.JurisdictionConfigDir)
	if err != nil {
		db.Close(ctx)
		return nil, nil, err
	}

	bucket, err := objstore.New(ctx, objstore.Config{
		Region:    cfg.AWSRegion,
		Bucket:    cfg.DestinationBucket,
		Endpoint:  cfg.S3Endpoint,
		PathStyle: cfg.S3PathStyle,
	})
	if err != nil {
		db.Close(ctx)
		return nil, nil, err
	}

	processor := report.NewProcessor(store, bucket, logger, report.WithReprocess(reprocess))
	return processor, db, nil
}

func runServer() error {
	logger := newLogger()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}
	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid config")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	processor, db, err := buildProcessor(ctx, cfg, logger, cfg.ProcessRepeatedMessages)
	if err != nil {
		logger.Error().Err(err).Msg("worker setup failed")
		if cfg.DebugMode {
			return nil
		}
		return err
	}
	defer db.Close(context.Background())

	consumer, err := queue.Connect(queue.Config{URL: cfg.AMQPURL, Queue: cfg.QueueName}, logger)
	if err != nil {
		logger.Error().Err(err).Msg("broker setup failed")
		if cfg.DebugMode {
			return nil
		}
		return err
	}
	defer consumer.Close()

	// Health endpoint for the orchestrator's liveness probe
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})
	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Msg("starting health endpoint")
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("health endpoint error")
		}
	}()

	go func() {
		logger.Info().Str("queue", cfg.QueueName).Msg("consuming encounter events")
		err := consumer.Consume(ctx, func(ctx context.Context, event queue.Event) {
			handleEvent(ctx, processor, db, event, logger)
		})
		if err != nil && ctx.Err() == nil {
			logger.Fatal().Err(err).Msg("queue consumer stopped")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down worker")
	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Fatal().Err(err).Msg("health endpoint shutdown failed")
	}
	logger.Info().Msg("worker stopped")
	return nil
}

// handleEvent turns one encounter-complete event into jurisdiction messages.
// Failures are logged; the consumer keeps going.
func handleEvent(ctx context.Context, processor *report.Processor, db *docdb.Client, event queue.Event, logger zerolog.Logger) {
	logger = logger.With().Str("encounter_id", event.EncounterID).Logger()
	logger.Info().Msg("encounter event received")

	payloads, err := db.OrderData(ctx, event.EncounterID)
	if err != nil {
		logger.Warn().Err(err).Msg("HL7 message error")
		return
	}
	processor.ProcessBatch(ctx, payloads)
}

func runOnce(encounterID string, reprocess, vax bool) error {
	logger := newLogger()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}

	ctx := context.Background()
	processor, db, err := buildProcessor(ctx, cfg, logger, reprocess || cfg.ProcessRepeatedMessages)
	if err != nil {
		logger.Error().Err(err).Msg("setup failed")
		if cfg.DebugMode {
			return nil
		}
		return err
	}
	defer db.Close(ctx)

	// Vaccination encounters carry no orders; their records come straight
	// from the encounter documents.
	if vax {
		payloads, err := db.EncounterData(ctx, encounterID)
		if err != nil {
			return err
		}
		processor.ProcessVaccinationBatch(ctx, payloads)
		return nil
	}

	payloads, err := db.OrderData(ctx, encounterID)
	if err != nil {
		return err
	}
	processor.ProcessBatch(ctx, payloads)
	return nil
}
