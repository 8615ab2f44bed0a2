package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/your-org/facesort/internal/models"
	"github.com/your-org/facesort/internal/storage"
	"github.com/your-org/facesort/pkg/dto"
)

type PersonHandler struct {
	store storage.PersonStore
}

func NewPersonHandler(store storage.PersonStore) *PersonHandler {
	return &PersonHandler{store: store}
}

func (h *PersonHandler) List(c *gin.Context) {
	page, perPage, ok := pagination(c)
	if !ok {
		return
	}
	persons, total, err := h.store.ListPersonsPage(c.Request.Context(), (page-1)*perPage, perPage)
	if err != nil {
		storeError(c, err, "person")
		return
	}

	resp := dto.PersonListResponse{
		Persons: make([]dto.PersonResponse, 0, len(persons)),
		Total:   total,
		Page:    page,
		PerPage: perPage,
	}
	for i := range persons {
		resp.Persons = append(resp.Persons, personResponse(&persons[i]))
	}
	c.JSON(http.StatusOK, resp)
}

func (h *PersonHandler) Get(c *gin.Context) {
	person, err := h.store.GetPerson(c.Request.Context(), c.Param("id"))
	if err != nil {
		storeError(c, err, "person")
		return
	}
	c.JSON(http.StatusOK, personResponse(person))
}

// Update renames a person or replaces their reference crop.
func (h *PersonHandler) Update(c *gin.Context) {
	var req dto.UpdatePersonRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	upd := models.PersonUpdate{Name: req.Name, FaceFile: req.FaceFile}
	if upd.Empty() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "no fields to update"})
		return
	}
	if req.Name != nil && *req.Name == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "name must not be empty"})
		return
	}

	ctx := c.Request.Context()
	id := c.Param("id")
	if err := h.store.UpdatePerson(ctx, id, upd); err != nil {
		storeError(c, err, "person")
		return
	}
	person, err := h.store.GetPerson(ctx, id)
	if err != nil {
		storeError(c, err, "person")
		return
	}
	c.JSON(http.StatusOK, personResponse(person))
}
