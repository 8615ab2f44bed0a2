package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/nats-io/nats.go/jetstream"
	ort "github.com/yalue/onnxruntime_go"

	"github.com/your-org/facesort/internal/api"
	"github.com/your-org/facesort/internal/api/ws"
	"github.com/your-org/facesort/internal/config"
	"github.com/your-org/facesort/internal/faces"
	"github.com/your-org/facesort/internal/models"
	"github.com/your-org/facesort/internal/observability"
	"github.com/your-org/facesort/internal/queue"
	"github.com/your-org/facesort/internal/storage"
	"github.com/your-org/facesort/internal/vision"
	"github.com/your-org/facesort/pkg/dto"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	observability.SetupLogger(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.File)

	slog.Info("starting facesort API service",
		"port", cfg.Server.Port,
		"database", cfg.Database.Driver,
		"storage", cfg.Storage.Backend,
		"provider", cfg.Vision.Provider,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store, err := storage.Open(ctx, cfg.Database)
	if err != nil {
		slog.Error("open document store", "error", err)
		os.Exit(1)
	}
	defer store.Close()

	blobs, err := storage.OpenBlobs(ctx, cfg)
	if err != nil {
		slog.Error("open blob storage", "error", err)
		os.Exit(1)
	}

	if cfg.Vision.Provider == config.ProviderONNX {
		ort.SetSharedLibraryPath(getONNXLibPath())
		defer func() { _ = ort.DestroyEnvironment() }()
	}
	provider, err := vision.NewProvider(cfg.Vision)
	if err != nil {
		slog.Error("init embedding provider", "error", err)
		os.Exit(1)
	}
	defer provider.Close()

	hub := ws.NewHub()
	go hub.Run()

	// NATS is optional: without it events are not published and the
	// WebSocket feed stays silent.
	var producer *queue.Producer
	opts := faces.Options{
		Threshold:   cfg.Matching.Threshold,
		GrowGallery: cfg.Batch.GrowGallery,
	}
	if cfg.NATS.URL != "" {
		producer, err = queue.NewProducer(cfg.NATS.URL)
		if err != nil {
			slog.Error("connect to nats", "error", err)
			os.Exit(1)
		}
		defer producer.Close()

		if err := producer.EnsureStreams(ctx); err != nil {
			slog.Warn("ensure nats streams", "error", err)
		}
		opts.Events = producer

		consumer, err := queue.NewConsumer(cfg.NATS.URL)
		if err != nil {
			slog.Error("create event consumer", "error", err)
			os.Exit(1)
		}
		defer consumer.Close()

		if err := consumer.ConsumeEvents(ctx, "api-events", broadcastEvents(hub)); err != nil {
			slog.Warn("start event consumer", "error", err)
		}
	}

	processor := faces.NewProcessor(store, blobs, provider, opts)
	controller := faces.NewController(processor, cfg.Batch.Interval)
	if cfg.Batch.Autostart {
		slog.Info("autostarting batch", "status", controller.Start(ctx))
	}

	router := api.NewRouter(api.RouterConfig{
		APIKey:         cfg.Server.APIKey,
		MaxUploadBytes: cfg.Server.MaxUploadBytes,
		Store:          store,
		Blobs:          blobs,
		Batch:          controller,
		Producer:       producer,
		Hub:            hub,
	})

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("API server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down API server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server shutdown error", "error", err)
	}

	// The photo in flight finishes before the store closes.
	controller.Stop()
	controller.Wait()
	cancel()

	slog.Info("API server stopped")
}

// broadcastEvents forwards pipeline events from the EVENTS stream to WebSocket clients.
func broadcastEvents(hub *ws.Hub) queue.MessageHandler {
	return func(ctx context.Context, msg jetstream.Msg) error {
		switch msg.Subject() {
		case queue.SubjectPhotoProcessed:
			var ev models.PhotoProcessedEvent
			if err := json.Unmarshal(msg.Data(), &ev); err != nil {
				slog.Error("unmarshal photo event", "error", err)
				return nil // Don't retry on unmarshal errors
			}
			hub.Broadcast(&dto.WSEvent{Type: "photo_processed", Data: ev})
		case queue.SubjectPersonCreated:
			var ev models.PersonCreatedEvent
			if err := json.Unmarshal(msg.Data(), &ev); err != nil {
				slog.Error("unmarshal person event", "error", err)
				return nil
			}
			hub.Broadcast(&dto.WSEvent{Type: "person_created", Data: ev})
		default:
			slog.Debug("ignoring event", "subject", msg.Subject())
		}
		return nil
	}
}

// getONNXLibPath returns the ONNX Runtime shared library path.
func getONNXLibPath() string {
	if p := os.Getenv("ONNXRUNTIME_LIB"); p != "" {
		return p
	}
	switch runtime.GOOS {
	case "windows":
		return "onnxruntime.dll"
	case "darwin":
		return "libonnxruntime.dylib"
	default:
		return "libonnxruntime.so"
	}
}
