package handlers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"mime/multipart"
	"net/http"
	"path"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/your-org/facesort/internal/models"
	"github.com/your-org/facesort/internal/observability"
	"github.com/your-org/facesort/internal/storage"
	"github.com/your-org/facesort/pkg/dto"
)

var allowedExtensions = map[string]bool{
	".png":  true,
	".jpg":  true,
	".jpeg": true,
	".gif":  true,
	".webp": true,
}

type PhotoHandler struct {
	store    storage.DocumentStore
	blobs    storage.BlobStore
	maxBytes int64
}

func NewPhotoHandler(store storage.DocumentStore, blobs storage.BlobStore, maxUploadBytes int64) *PhotoHandler {
	return &PhotoHandler{store: store, blobs: blobs, maxBytes: maxUploadBytes}
}

// Upload stores each file of the multipart field "photos" as a new unprocessed photo.
func (h *PhotoHandler) Upload(c *gin.Context) {
	if h.maxBytes > 0 {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxBytes)
	}
	form, err := c.MultipartForm()
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "upload too large"})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": "multipart form required"})
		return
	}
	files := form.File["photos"]
	if len(files) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "no photos in request"})
		return
	}

	ctx := c.Request.Context()
	resp := dto.UploadResponse{Uploaded: []string{}}
	storeFailed := false
	for _, fh := range files {
		ext := strings.ToLower(filepath.Ext(fh.Filename))
		if !allowedExtensions[ext] {
			resp.Rejected = append(resp.Rejected, fh.Filename)
			continue
		}
		id, err := h.storeUpload(ctx, fh, ext)
		if err != nil {
			// Files stored so far are kept and reported.
			slog.Error("store upload", "filename", fh.Filename, "error", err)
			resp.Rejected = append(resp.Rejected, fh.Filename)
			storeFailed = true
			continue
		}
		observability.PhotosUploaded.Inc()
		resp.Uploaded = append(resp.Uploaded, id)
	}

	if len(resp.Uploaded) == 0 {
		status := http.StatusBadRequest
		if storeFailed {
			status = http.StatusInternalServerError
		}
		c.JSON(status, gin.H{"error": "no photos stored", "rejected": resp.Rejected})
		return
	}
	slog.Info("photos uploaded", "count", len(resp.Uploaded), "rejected", len(resp.Rejected))
	c.JSON(http.StatusCreated, resp)
}

func (h *PhotoHandler) List(c *gin.Context) {
	page, perPage, ok := pagination(c)
	if !ok {
		return
	}
	photos, total, err := h.store.ListPhotos(c.Request.Context(), (page-1)*perPage, perPage)
	if err != nil {
		storeError(c, err, "photo")
		return
	}
	c.JSON(http.StatusOK, photoList(photos, total, page, perPage))
}

// ListByPerson returns the photos in which the person is annotated.
func (h *PhotoHandler) ListByPerson(c *gin.Context) {
	page, perPage, ok := pagination(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()
	personID := c.Param("person_id")
	if _, err := h.store.GetPerson(ctx, personID); err != nil {
		storeError(c, err, "person")
		return
	}
	photos, total, err := h.store.ListPhotosByPerson(ctx, personID, (page-1)*perPage, perPage)
	if err != nil {
		storeError(c, err, "photo")
		return
	}
	c.JSON(http.StatusOK, photoList(photos, total, page, perPage))
}

func (h *PhotoHandler) Get(c *gin.Context) {
	photo, err := h.store.GetPhoto(c.Request.Context(), c.Param("id"))
	if err != nil {
		storeError(c, err, "photo")
		return
	}
	c.JSON(http.StatusOK, photoResponse(photo))
}

// File serves the original bytes of an uploaded photo.
func (h *PhotoHandler) File(c *gin.Context) {
	h.serveBlob(c, storage.PhotoKey(c.Param("filename")))
}

// FaceFile serves a reference face crop.
func (h *PhotoHandler) FaceFile(c *gin.Context) {
	h.serveBlob(c, storage.FaceKey(c.Param("filename")))
}

func (h *PhotoHandler) serveBlob(c *gin.Context, key string) {
	if strings.Contains(key, "..") {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid filename"})
		return
	}
	data, err := h.blobs.Get(c.Request.Context(), key)
	if err != nil {
		if errors.Is(err, storage.ErrBlobNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "file not found"})
			return
		}
		slog.Error("read blob", "key", key, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.Header("Cache-Control", "public, max-age=86400")
	c.Data(http.StatusOK, contentType(key), data)
}

// AddPerson annotates a region of the photo with an existing person.
func (h *PhotoHandler) AddPerson(c *gin.Context) {
	var req dto.AddPersonRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ctx := c.Request.Context()
	photoID := c.Param("id")
	if !h.requireFinalized(c, photoID) {
		return
	}
	if _, err := h.store.GetPerson(ctx, req.PersonID); err != nil {
		storeError(c, err, "person")
		return
	}
	ann := models.FaceAnnotation{
		PersonID: req.PersonID,
		Box:      models.BoundingBox{X: *req.X, Y: *req.Y, W: req.W, H: req.H},
	}
	if err := h.store.AddAnnotation(ctx, photoID, ann); err != nil {
		storeError(c, err, "photo")
		return
	}
	if err := h.store.AdjustPhotoCount(ctx, req.PersonID, 1); err != nil {
		storeError(c, err, "person")
		return
	}
	c.JSON(http.StatusOK, dto.MessageResponse{Message: "person added to photo"})
}

// ChangePerson re-points one annotation to another person and moves the photo count.
func (h *PhotoHandler) ChangePerson(c *gin.Context) {
	var req dto.ChangePersonRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ctx := c.Request.Context()
	photoID := c.Param("id")
	if !h.requireFinalized(c, photoID) {
		return
	}
	if _, err := h.store.GetPerson(ctx, req.NewPersonID); err != nil {
		storeError(c, err, "person")
		return
	}
	old := models.FaceAnnotation{
		PersonID: req.OldPersonID,
		Box:      models.BoundingBox{X: *req.X, Y: *req.Y, W: req.W, H: req.H},
	}
	if err := h.store.ReassignAnnotation(ctx, photoID, old, req.NewPersonID); err != nil {
		storeError(c, err, "annotation")
		return
	}
	if req.OldPersonID == req.NewPersonID {
		c.JSON(http.StatusOK, dto.MessageResponse{Message: "person unchanged"})
		return
	}
	// The old person may have been removed since the photo was annotated.
	if err := h.store.AdjustPhotoCount(ctx, req.OldPersonID, -1); err != nil && !errors.Is(err, storage.ErrNotFound) && !errors.Is(err, storage.ErrInvalidID) {
		storeError(c, err, "person")
		return
	}
	if err := h.store.AdjustPhotoCount(ctx, req.NewPersonID, 1); err != nil {
		storeError(c, err, "person")
		return
	}
	c.JSON(http.StatusOK, dto.MessageResponse{Message: "person changed"})
}

// requireFinalized rejects manual edits to a photo the pipeline has not
// finished with yet: its terminal write replaces the whole people list, and
// with it any annotation added before.
func (h *PhotoHandler) requireFinalized(c *gin.Context, photoID string) bool {
	photo, err := h.store.GetPhoto(c.Request.Context(), photoID)
	if err != nil {
		storeError(c, err, "photo")
		return false
	}
	if !photo.State.Terminal() {
		c.JSON(http.StatusConflict, gin.H{"error": "photo has not been processed yet"})
		return false
	}
	return true
}

// storeUpload writes one uploaded file under a fresh name and creates its
// unprocessed photo record.
func (h *PhotoHandler) storeUpload(ctx context.Context, fh *multipart.FileHeader, ext string) (string, error) {
	data, err := readPart(fh)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", fh.Filename, err)
	}

	filename := uuid.NewString() + ext
	key := storage.PhotoKey(filename)
	if err := h.blobs.Put(ctx, key, data, contentType(filename)); err != nil {
		return "", err
	}
	photo, err := h.store.CreatePhoto(ctx, filename)
	if err != nil {
		if derr := h.blobs.Delete(ctx, key); derr != nil {
			slog.Warn("remove orphaned upload", "key", key, "error", derr)
		}
		return "", fmt.Errorf("create photo: %w", err)
	}
	return photo.ID, nil
}

func photoList(photos []models.Photo, total, page, perPage int) dto.PhotoListResponse {
	resp := dto.PhotoListResponse{
		Photos:  make([]dto.PhotoResponse, 0, len(photos)),
		Total:   total,
		Page:    page,
		PerPage: perPage,
	}
	for i := range photos {
		resp.Photos = append(resp.Photos, photoResponse(&photos[i]))
	}
	return resp
}

func readPart(fh *multipart.FileHeader) ([]byte, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(f)
}

func contentType(name string) string {
	if ct := mime.TypeByExtension(strings.ToLower(path.Ext(name))); ct != "" {
		return ct
	}
	return "application/octet-stream"
}
