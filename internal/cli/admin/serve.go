package admin

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cloo-solutions/procminer/internal/api/handlers"
	"github.com/cloo-solutions/procminer/internal/config"
	"github.com/cloo-solutions/procminer/internal/gemini"
	"github.com/cloo-solutions/procminer/internal/inference"
	"github.com/cloo-solutions/procminer/internal/jobs"
	"github.com/cloo-solutions/procminer/internal/media"
	"github.com/cloo-solutions/procminer/internal/metrics"
	"github.com/cloo-solutions/procminer/internal/openai"
	"github.com/cloo-solutions/procminer/internal/server"
	"github.com/cloo-solutions/procminer/internal/service"
	"github.com/cloo-solutions/procminer/internal/telemetry"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
)

const defaultPort = "8000"

// ServeCmd returns the serve command
func ServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the API server",
		Long:  "Start the Process Miner API server on the specified port",
		RunE:  runServe,
	}

	cmd.Flags().StringP("port", "p", defaultPort, "Port to listen on")
	cmd.Flags().Bool("no-migrate", false, "Skip automatic database migrations on startup")

	return cmd
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if !cfg.HasGemini() {
		return errors.New("PROCMINER_GEMINI_API_KEY is required to serve")
	}

	if cfg.SentryDSN != "" {
		// 10% sampling in production, everything in development
		sampleRate := 0.1
		if cfg.Environment == "development" {
			sampleRate = 1.0
		}

		shutdownTelemetry, err := telemetry.Init(telemetry.Config{
			DSN:              cfg.SentryDSN,
			Environment:      cfg.Environment,
			TracesSampleRate: sampleRate,
			Debug:            cfg.Debug,
		})
		if err != nil {
			log.Printf("telemetry init failed (continuing without tracing): %v", err)
		} else {
			defer shutdownTelemetry()
		}
	}

	if port, _ := cmd.Flags().GetString("port"); cmd.Flags().Changed("port") && port != "" {
		cfg.Port = port
	}

	noMigrate, _ := cmd.Flags().GetBool("no-migrate")
	store, closeStore, err := OpenStore(ctx, cfg, !noMigrate)
	if err != nil {
		return err
	}
	defer closeStore()

	prompts, err := service.LoadPrompts(cfg.PromptsFile)
	if err != nil {
		return fmt.Errorf("failed to load prompts: %w", err)
	}

	analysis, err := gemini.NewClient(ctx, gemini.Config{APIKey: cfg.GeminiAPIKey, Model: cfg.GeminiModel})
	if err != nil {
		return fmt.Errorf("failed to create gemini client: %w", err)
	}

	var text inference.Generator
	if cfg.HasOpenAI() {
		text = openai.NewClientWithConfig(openai.Config{APIKey: cfg.OpenAIAPIKey, Model: cfg.OpenAIModel})
		log.Println("merge and routing calls use openai")
	}

	m := metrics.New(prometheus.DefaultRegisterer)

	pipeline := service.NewPipeline(service.PipelineDeps{
		Inference:    analysis,
		Text:         text,
		Transcoder:   media.NewFFmpeg(cfg.FFprobeBin, cfg.FFmpegBin),
		Store:        store,
		StoreBackend: cfg.StoreBackend(),
		Prompts:      prompts,
		Metrics:      m,
	}, service.PipelineConfig{
		ChunkSeconds:       cfg.ChunkSeconds,
		PollInterval:       cfg.ReadinessPollInterval,
		ReadinessTimeout:   cfg.ReadinessTimeout,
		MaxConcurrentUnits: cfg.MaxConcurrentUnits,
	})

	if err := os.MkdirAll(cfg.UploadDir, 0o755); err != nil {
		return fmt.Errorf("failed to create upload dir: %w", err)
	}
	active := jobs.NewActiveSet()
	sweeper := jobs.NewWorker("scratch sweeper", jobs.NewScratchSweeper(cfg.UploadDir, cfg.ScratchTTL, active), cfg.SweepInterval)
	go sweeper.Start(ctx)

	router := server.NewRouter(server.RouterConfig{
		AnalyzeHandler:  handlers.NewAnalyzeHandler(pipeline, cfg.UploadDir).WithTracker(active),
		DocumentHandler: handlers.NewDocumentHandler(store),
		Metrics:         metrics.Handler(prometheus.DefaultGatherer),
		MaxUploadBytes:  cfg.MaxUploadBytes,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Printf("starting server on port %s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-serveErr:
		sweeper.Stop()
		return fmt.Errorf("server failed: %w", err)
	}
	log.Println("shutting down...")

	sweeper.Stop()

	// analyses can run for minutes; give in-flight requests time to file
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	log.Println("server exited")
	return nil
}
