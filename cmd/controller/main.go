// Package main is the entry point for the spinframe controller.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"spinframe/internal/catalog"
	"spinframe/internal/catalog/postgres"
	"spinframe/internal/config"
	"spinframe/internal/controller"
	"spinframe/internal/events"
	"spinframe/internal/logger"
	"spinframe/internal/observability"
	"spinframe/internal/render"
	"spinframe/internal/resource"
	"spinframe/internal/scheduler"
	"spinframe/internal/sequence"

	"go.opentelemetry.io/otel"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

// catalogBackend is what the controller needs from either catalog implementation.
type catalogBackend interface {
	catalog.Catalog
	Close() error
}

type staticBackend struct{ *catalog.Static }

func (staticBackend) Close() error { return nil }

func main() {
	// Parse flags
	migrateFlag := flag.Bool("migrate", false, "Run catalog database migrations before starting")
	seedCatalog := flag.String("seed-catalog", "", "Import models from a YAML catalog file into the postgres catalog")
	configPath := flag.String("config", "", "Path to config file (default: spinframe.yaml in current directory)")
	flag.Parse()

	// Load Config
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	logr := logger.New(cfg.LogLevel)

	ctx := context.Background()

	// Catalog
	cat, err := openCatalog(ctx, cfg, *migrateFlag, *seedCatalog)
	if err != nil {
		log.Fatalf("Failed to open catalog: %v", err)
	}
	defer cat.Close()

	svc := observability.Service{Name: "spinframe-controller", Version: version}

	// Tracing
	shutdownTracer, err := observability.InitTracer(ctx, svc, cfg.OTELEndpoint, cfg.TraceSampleRatio)
	if err != nil {
		log.Fatalf("Failed to init tracing: %v", err)
	}
	defer func() {
		if err := shutdownTracer(context.Background()); err != nil {
			log.Printf("Failed to shutdown tracer: %v", err)
		}
	}()

	// Metrics
	metricsHandler, shutdownMetrics, err := observability.InitMetrics(ctx, svc)
	if err != nil {
		log.Fatalf("Failed to init metrics: %v", err)
	}
	defer func() {
		if err := shutdownMetrics(context.Background()); err != nil {
			log.Printf("Failed to shutdown metrics: %v", err)
		}
	}()

	// Sequence store and resource monitor
	store, err := sequence.NewStore(cfg.SequencesDir)
	if err != nil {
		log.Fatalf("Failed to open sequence store: %v", err)
	}

	thresholds := resource.Thresholds{
		MemoryElevatedPercent: cfg.MemoryElevatedPercent,
		MemoryCriticalPercent: cfg.MemoryCriticalPercent,
		DiskElevatedFreeBytes: uint64(cfg.DiskElevatedFreeMB) << 20,
		DiskCriticalFreeBytes: uint64(cfg.DiskCriticalFreeMB) << 20,
	}
	monitor := resource.NewMonitor(resource.HostSampler{}, store.Root(), thresholds, cfg.ResourceCacheTTL, logr)
	monitor.AddCleanupHook("sequence-temp-files", func(ctx context.Context) error {
		n, err := store.CleanupTemp(time.Hour)
		if n > 0 {
			logr.Info("removed stale temp files", "count", n)
		}
		return err
	})

	// Rendering
	scratchDir, err := os.MkdirTemp("", "spinframe-render-")
	if err != nil {
		log.Fatalf("Failed to create scratch directory: %v", err)
	}
	defer os.RemoveAll(scratchDir)

	renderer, err := newRenderer(cfg, scratchDir)
	if err != nil {
		log.Fatalf("Failed to init renderer: %v", err)
	}
	encoders := render.NewEncoders(cfg.EncoderCommands, scratchDir)

	// Job events
	publisher, err := newPublisher(ctx, cfg, logr)
	if err != nil {
		log.Fatalf("Failed to init event publisher: %v", err)
	}
	defer publisher.Close()

	// Scheduler
	meter := otel.Meter("spinframe-controller")
	genMetrics, err := observability.NewGenerationMetrics(meter)
	if err != nil {
		log.Fatalf("Failed to init generation metrics: %v", err)
	}

	sched, err := scheduler.New(scheduler.Config{
		MaxConcurrentJobs: cfg.MaxConcurrentJobs,
		MaxRetainedJobs:   cfg.MaxRetainedJobs,
		JobRetention:      cfg.JobRetention,
		MaxAttempts:       cfg.RenderMaxAttempts,
		DefaultMaterials:  cfg.DefaultMaterials,
		Defaults: scheduler.Settings{
			FrameCount: cfg.DefaultFrameCount,
			Size:       render.Size{Width: cfg.DefaultWidth, Height: cfg.DefaultHeight},
			Formats:    cfg.DefaultFormats,
			Quality:    cfg.DefaultQuality,
		},
		Limits:    scheduler.DefaultLimits(),
		Generator: sequence.Generator{Name: "spinframe", Version: version},
	}, scheduler.Deps{
		Catalog:   cat,
		Renderer:  renderer,
		Encoders:  encoders,
		Store:     store,
		Resources: monitor,
		Publisher: publisher,
		Metrics:   genMetrics,
		Logger:    logr,
	})
	if err != nil {
		log.Fatalf("Failed to create scheduler: %v", err)
	}

	// Observable gauges are evaluated only when scraped.
	err = observability.RegisterGauges(meter, observability.GaugeSources{
		Jobs: func() (int64, int64) {
			m := sched.Metrics()
			return int64(m.ActiveJobs), int64(m.QueueSize)
		},
		Resources: func() (float64, int64, bool) {
			snap, ok := monitor.Last()
			return snap.MemoryPercent, int64(snap.DiskFree), ok
		},
	})
	if err != nil {
		log.Printf("Failed to register gauges: %v", err)
	}

	runCtx, stop := context.WithCancel(ctx)
	defer stop()
	go sched.Run(runCtx)

	inventory := catalog.NewInventory(cat, store, cfg.DefaultMaterials, cfg.DefaultFrameCount, cfg.DefaultFormats)
	inventory.TrackJobs(sched)

	// Start Server
	addr := fmt.Sprintf(":%d", cfg.HTTPPort)
	srv := controller.New(addr, controller.Deps{
		Scheduler:      sched,
		Inventory:      inventory,
		Resources:      monitor,
		Catalog:        cat,
		Metrics:        metricsHandler,
		RateLimit:      cfg.RateLimit,
		RateLimitBurst: cfg.RateLimitBurst,
		Logger:         logr,
	})

	go func() {
		log.Printf("Spinframe Controller %s starting on %s (renderer=%s, catalog=%s)", version, addr, cfg.Renderer, cfg.Catalog)
		if err := srv.Run(runCtx); err != nil {
			log.Printf("Server stopped: %v", err)
		}
	}()

	// Graceful Shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down controller...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server forced to shutdown: %v", err)
	}

	// Processing jobs stop at the next frame boundary.
	stop()
	select {
	case <-sched.Done():
	case <-time.After(cfg.RenderTimeout + 5*time.Second):
		log.Println("Timed out waiting for jobs to stop")
	}
	log.Println("Controller exited properly")
}

func openCatalog(ctx context.Context, cfg *config.Config, migrate bool, seedPath string) (catalogBackend, error) {
	if cfg.Catalog == "static" {
		if seedPath != "" {
			return nil, errors.New("--seed-catalog requires the postgres catalog")
		}
		s, err := catalog.LoadStatic(cfg.CatalogFile)
		if err != nil {
			return nil, err
		}
		return staticBackend{s}, nil
	}

	// Connect to Postgres
	db, err := postgres.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect to DB: %w", err)
	}

	// Run migrations if requested
	if migrate {
		log.Println("Running database migrations...")
		schemaVersion, err := postgres.Migrate(db.DB())
		if err != nil {
			db.Close()
			return nil, fmt.Errorf("migration failed: %w", err)
		}
		log.Printf("Catalog schema at version %d", schemaVersion)
	}

	if seedPath != "" {
		src, err := catalog.LoadStatic(seedPath)
		if err != nil {
			db.Close()
			return nil, err
		}
		models, err := src.ListModels(ctx)
		if err != nil {
			db.Close()
			return nil, err
		}
		if err := db.Seed(ctx, models); err != nil {
			db.Close()
			return nil, fmt.Errorf("seed catalog: %w", err)
		}
		log.Printf("Imported %d models from %s", len(models), seedPath)
	}
	return db, nil
}

func newRenderer(cfg *config.Config, scratchDir string) (render.Renderer, error) {
	switch cfg.Renderer {
	case "exec":
		return render.NewExecRenderer(cfg.RenderCommand, cfg.ModelsDir, scratchDir, cfg.RenderTimeout), nil
	case "docker":
		return render.NewDockerRenderer(render.DockerRendererConfig{
			Image:      cfg.RenderImage,
			Args:       cfg.RenderCommand,
			ModelsDir:  cfg.ModelsDir,
			ScratchDir: scratchDir,
			Timeout:    cfg.RenderTimeout,
		})
	case "synthetic":
		return render.SyntheticRenderer{}, nil
	default:
		return nil, fmt.Errorf("unknown renderer %q", cfg.Renderer)
	}
}

func newPublisher(ctx context.Context, cfg *config.Config, logr *slog.Logger) (events.Publisher, error) {
	switch cfg.EventsBackend {
	case "redis":
		p, err := events.NewRedisPublisher(ctx, cfg.RedisURL, cfg.EventsTopic, 24*time.Hour)
		if err != nil {
			return nil, err
		}
		logr.Info("publishing job events to redis", "topic", cfg.EventsTopic)
		return p, nil
	case "mqtt":
		hostname, _ := os.Hostname()
		p, err := events.NewMQTTPublisher(cfg.MQTTBroker, "spinframe-"+hostname, cfg.EventsTopic, logr)
		if err != nil {
			return nil, err
		}
		logr.Info("publishing job events to mqtt", "broker", cfg.MQTTBroker, "topic", cfg.EventsTopic)
		return p, nil
	default:
		return events.Nop{}, nil
	}
}
