package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	PhotosProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "facesort",
		Name:      "photos_processed_total",
		Help:      "Photos moved to a terminal state, by state",
	}, []string{"state"})

	FacesDetected = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "facesort",
		Name:      "faces_detected_total",
		Help:      "Faces detected in photos",
	})

	FacesResolved = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "facesort",
		Name:      "faces_resolved_total",
		Help:      "Detected faces resolved to a person, by outcome (matched, created)",
	}, []string{"outcome"})

	GallerySkipped = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "facesort",
		Name:      "gallery_skipped_total",
		Help:      "Persons left out of the gallery, by reason",
	}, []string{"reason"})

	GallerySize = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "facesort",
		Name:      "gallery_size",
		Help:      "Reference embeddings in the gallery of the last batch run",
	})

	InferenceDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "facesort",
		Name:      "inference_duration_seconds",
		Help:      "Duration of face detection and encoding calls",
		Buckets:   prometheus.ExponentialBuckets(0.005, 2, 12),
	}, []string{"stage"})

	BatchRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "facesort",
		Name:      "batch_runs_total",
		Help:      "Batch runs, by result (completed, failed, cancelled)",
	}, []string{"result"})

	BatchRunning = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "facesort",
		Name:      "batch_running",
		Help:      "1 while a batch run is active",
	})

	PhotosUploaded = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "facesort",
		Name:      "photos_uploaded_total",
		Help:      "Photos accepted by the upload endpoint",
	})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "facesort",
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request duration",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	WSConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "facesort",
		Name:      "ws_connections",
		Help:      "Number of active WebSocket connections",
	})
)
