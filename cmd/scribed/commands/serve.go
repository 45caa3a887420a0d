package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/haivivi/scribe/pkg/archive"
	"github.com/haivivi/scribe/pkg/gateway"
	"github.com/haivivi/scribe/pkg/rewrite"
	"github.com/haivivi/scribe/pkg/sauc"
	"github.com/haivivi/scribe/pkg/store"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the transcription gateway server",
	Long: `Run the scribed gateway.

The server exposes:
  GET    /health                          liveness probe
  GET    /api/v1/transcribe/stream        streaming transcription WebSocket
  POST   /api/v1/transcribe               WAV upload transcription
  GET    /api/v1/transcriptions           stored transcription records
  GET    /api/v1/transcriptions/{id}      one record
  DELETE /api/v1/transcriptions/{id}      remove a record

Upstream credentials come from the config file or environment
(VOLC_APP_KEY, VOLC_ACCESS_KEY). LLM correction needs ARK_API_KEY and
ARK_MODEL_ID; without them, use_llm sessions run uncorrected.

Example:
  scribed serve --config scribed.yaml`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	})))
	logger := slog.Default()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("Shutting down...")
		cancel()
	}()

	rec := sauc.NewClient(cfg.Volcengine.AppKey, cfg.Volcengine.AccessKey,
		sauc.WithResourceID(cfg.Volcengine.ResourceID))
	if !rec.Configured() {
		logger.Warn("VOLC_APP_KEY/VOLC_ACCESS_KEY not set, recognition requests will fail")
	}
	rw := rewrite.NewClient(cfg.Volcengine.ArkAPIKey, cfg.Volcengine.ArkModelID)

	st, err := store.Open(store.Options{Dir: cfg.RecordsDir()})
	if err != nil {
		return err
	}
	defer st.Close()

	var arch archive.Archive
	if cfg.S3 != nil {
		if cfg.S3.Bucket == "" {
			return fmt.Errorf("s3 archive configured without a bucket")
		}
		arch = archive.NewS3FromConfig(*cfg.S3)
		logger.Info("Archiving uploads to S3", "bucket", cfg.S3.Bucket)
	} else {
		arch, err = archive.NewLocal(cfg.UploadsDir())
		if err != nil {
			return fmt.Errorf("init local archive: %w", err)
		}
	}

	srv := gateway.New(gateway.Options{
		Config:     cfg,
		Recognizer: rec,
		Rewriter:   rw,
		Store:      st,
		Archive:    arch,
		Logger:     logger,
	})
	return srv.Run(ctx)
}
