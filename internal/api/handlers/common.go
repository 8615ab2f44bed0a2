package handlers

import (
	"errors"
	"log/slog"
	"math"
	"net/http"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/your-org/facesort/internal/models"
	"github.com/your-org/facesort/internal/storage"
	"github.com/your-org/facesort/pkg/dto"
)

const (
	defaultPerPage = 10
	maxPerPage     = 100
)

// pagination reads page and per_page query params (1-based).
func pagination(c *gin.Context) (page, perPage int, ok bool) {
	page, perPage = 1, defaultPerPage
	if v := c.Query("page"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid page"})
			return 0, 0, false
		}
		page = n
	}
	if v := c.Query("per_page"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid per_page"})
			return 0, 0, false
		}
		perPage = min(n, maxPerPage)
	}
	// The row offset (page-1)*perPage must not overflow.
	if page-1 > math.MaxInt/perPage {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid page"})
		return 0, 0, false
	}
	return page, perPage, true
}

// storeError maps storage sentinels to HTTP statuses.
func storeError(c *gin.Context, err error, what string) {
	switch {
	case errors.Is(err, storage.ErrInvalidID):
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid " + what + " id"})
	case errors.Is(err, storage.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": what + " not found"})
	default:
		slog.Error("store request failed", "what", what, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}

func timestamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

func photoResponse(p *models.Photo) dto.PhotoResponse {
	people := make([]dto.AnnotationResponse, 0, len(p.People))
	for _, a := range p.People {
		people = append(people, dto.AnnotationResponse{
			PersonID: a.PersonID,
			X:        a.Box.X,
			Y:        a.Box.Y,
			W:        a.Box.W,
			H:        a.Box.H,
		})
	}
	state := p.State
	if state == "" {
		state = models.StateUnprocessed
	}
	tags := p.Tags
	if tags == nil {
		tags = []string{}
	}
	var captured *string
	if p.CaptureDate != nil {
		s := timestamp(*p.CaptureDate)
		captured = &s
	}
	return dto.PhotoResponse{
		ID:              p.ID,
		Filename:        p.Filename,
		FileURL:         "/api/photos/file/" + p.Filename,
		People:          people,
		State:           string(state),
		ProcessingError: p.ProcessingError,
		Tags:            tags,
		CaptureDate:     captured,
		Location:        p.Location,
		CreatedAt:       timestamp(p.CreatedAt),
	}
}

func personResponse(p *models.Person) dto.PersonResponse {
	resp := dto.PersonResponse{
		ID:         p.ID,
		Name:       p.Name,
		FaceFile:   p.FaceFile,
		PhotoCount: p.PhotoCount,
		CreatedAt:  timestamp(p.CreatedAt),
	}
	if strings.HasPrefix(p.FaceFile, storage.FaceKey("")) {
		resp.FaceURL = "/api/photos/faces/" + path.Base(p.FaceFile)
	}
	return resp
}
