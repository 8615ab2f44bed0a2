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

	"github.com/prometheus/client_golang/prometheus/promhttp"
	ort "github.com/yalue/onnxruntime_go"

	"github.com/your-org/facesort/internal/config"
	"github.com/your-org/facesort/internal/faces"
	"github.com/your-org/facesort/internal/models"
	"github.com/your-org/facesort/internal/observability"
	"github.com/your-org/facesort/internal/queue"
	"github.com/your-org/facesort/internal/storage"
	"github.com/your-org/facesort/internal/vision"
)

const defaultInterval = 30 * time.Second

func main() {
	configPath := flag.String("config", "configs/config.yaml", "path to config file")
	once := flag.Bool("once", false, "run a single batch pass and exit")
	control := flag.String("control", "", "send start|stop|status to a running worker and exit")
	metricsAddr := flag.String("metrics-addr", ":8082", "metrics and health listen address")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	observability.SetupLogger(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.File)

	if *control != "" {
		os.Exit(sendControl(cfg.NATS.URL, *control))
	}

	slog.Info("starting facesort worker",
		"once", *once,
		"provider", cfg.Vision.Provider,
		"cpu_cores", runtime.NumCPU(),
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

	opts := faces.Options{
		Threshold:   cfg.Matching.Threshold,
		GrowGallery: cfg.Batch.GrowGallery,
	}
	var producer *queue.Producer
	if cfg.NATS.URL != "" {
		producer, err = queue.NewProducer(cfg.NATS.URL)
		if err != nil {
			slog.Error("connect to nats producer", "error", err)
			os.Exit(1)
		}
		defer producer.Close()

		if err := producer.EnsureStreams(ctx); err != nil {
			slog.Warn("ensure nats streams", "error", err)
		}
		opts.Events = producer
	}

	processor := faces.NewProcessor(store, blobs, provider, opts)

	if *once {
		stats, err := processor.RunOnce(ctx)
		out, _ := json.Marshal(stats)
		fmt.Println(string(out))
		if err != nil {
			slog.Error("batch run failed", "error", err)
			os.Exit(1)
		}
		return
	}

	interval := cfg.Batch.Interval
	if interval <= 0 {
		interval = defaultInterval
	}
	controller := faces.NewController(processor, interval)

	if cfg.NATS.URL != "" {
		consumer, err := queue.NewConsumer(cfg.NATS.URL)
		if err != nil {
			slog.Error("create control consumer", "error", err)
			os.Exit(1)
		}
		defer consumer.Close()

		if err := consumer.ServeControl(ctx, controlHandler(controller)); err != nil {
			slog.Error("serve control subject", "error", err)
			os.Exit(1)
		}
	}

	slog.Info("batch", "status", controller.Start(ctx), "interval", interval)

	// Metrics endpoint
	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte(`{"status":"ok"}`))
		})
		slog.Info("worker metrics listening", "addr", *metricsAddr)
		if err := http.ListenAndServe(*metricsAddr, mux); err != nil {
			slog.Error("metrics server error", "error", err)
		}
	}()

	// Wait for shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down worker...")
	controller.Stop()
	controller.Wait()
	cancel()
	slog.Info("worker stopped")
}

// controlHandler maps control commands onto the controller.
func controlHandler(c *faces.Controller) queue.ControlHandler {
	return func(ctx context.Context, cmd models.ControlCommand) models.ControlReply {
		var status faces.Status
		switch cmd.Action {
		case models.ActionStart:
			status = c.Start(ctx)
		case models.ActionStop:
			status = c.Stop()
		case models.ActionStatus:
		default:
			return models.ControlReply{Running: c.Running(), Error: fmt.Sprintf("unknown action %q", cmd.Action)}
		}
		slog.Info("control command", "action", cmd.Action, "status", status)
		return models.ControlReply{Status: string(status), Running: c.Running()}
	}
}

func sendControl(natsURL, action string) int {
	if natsURL == "" {
		fmt.Fprintln(os.Stderr, "nats.url is required for -control")
		return 2
	}
	producer, err := queue.NewProducer(natsURL)
	if err != nil {
		fmt.Fprintf(os.Stderr, "connect to nats: %v\n", err)
		return 1
	}
	defer producer.Close()

	reply, err := producer.RequestControl(context.Background(), action)
	if err != nil {
		fmt.Fprintf(os.Stderr, "control %s: %v\n", action, err)
		return 1
	}
	out, _ := json.Marshal(reply)
	fmt.Println(string(out))
	if reply.Error != "" {
		return 1
	}
	return 0
}

// getONNXLibPath returns the ONNX Runtime shared library path
// based on the operating system.
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
