package api

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/your-org/facesort/internal/api/handlers"
	"github.com/your-org/facesort/internal/api/ws"
	"github.com/your-org/facesort/internal/auth"
	"github.com/your-org/facesort/internal/queue"
	"github.com/your-org/facesort/internal/storage"
)

type RouterConfig struct {
	APIKey         string
	MaxUploadBytes int64
	Store          storage.DocumentStore
	Blobs          storage.BlobStore
	Batch          handlers.BatchControl
	Producer       *queue.Producer // optional
	Hub            *ws.Hub         // optional
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(LoggingMiddleware())
	r.Use(cors.Default())
	r.MaxMultipartMemory = 32 << 20

	// System endpoints (no auth)
	systemH := handlers.NewSystemHandler(cfg.Store, cfg.Blobs, cfg.Producer)
	r.GET("/healthz", systemH.Healthz)
	r.GET("/readyz", systemH.Readyz)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := r.Group("/api")
	api.Use(auth.APIKeyMiddleware(cfg.APIKey))

	if cfg.Hub != nil {
		api.GET("/ws", cfg.Hub.HandleWS)
	}

	// Photos
	photoH := handlers.NewPhotoHandler(cfg.Store, cfg.Blobs, cfg.MaxUploadBytes)
	photos := api.Group("/photos")
	photos.POST("/upload", photoH.Upload)
	photos.GET("", photoH.List)
	photos.GET("/list", photoH.List)
	photos.GET("/file/:filename", photoH.File)
	photos.GET("/faces/:filename", photoH.FaceFile)
	photos.GET("/person-images/:person_id", photoH.ListByPerson)
	photos.GET("/:id", photoH.Get)
	photos.POST("/:id/add-person", photoH.AddPerson)
	photos.POST("/:id/change-person", photoH.ChangePerson)

	// Persons
	personH := handlers.NewPersonHandler(cfg.Store)
	persons := api.Group("/persons")
	persons.GET("", personH.List)
	persons.GET("/list", personH.List)
	persons.GET("/:id", personH.Get)
	persons.PATCH("/:id", personH.Update)

	// Batch processing
	processH := handlers.NewProcessHandler(cfg.Batch)
	process := api.Group("/process")
	process.POST("/start", processH.Start)
	process.POST("/stop", processH.Stop)
	process.GET("/status", processH.Status)

	return r
}
