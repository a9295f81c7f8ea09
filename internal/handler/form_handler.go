package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/phd-portal-api/internal/dto"
	"github.com/noah-isme/phd-portal-api/internal/forms"
	"github.com/noah-isme/phd-portal-api/internal/models"
	"github.com/noah-isme/phd-portal-api/internal/service"
	appErrors "github.com/noah-isme/phd-portal-api/pkg/errors"
	"github.com/noah-isme/phd-portal-api/pkg/response"
)

type formCreationService interface {
	Create(ctx context.Context, actor service.Actor, formType string, req dto.CreateFormRequest) (*models.FormInstance, error)
}

type formSubmissionService interface {
	Submit(ctx context.Context, actor service.Actor, formType, formID string, req dto.SubmitFormRequest) (*models.FormInstance, error)
	BulkSubmit(ctx context.Context, actor service.Actor, formType string, req dto.BulkSubmitRequest) (*dto.BulkSubmitReport, error)
}

type formListingService interface {
	List(ctx context.Context, actor service.Actor, formType string, query dto.ListFormsQuery) (*dto.ListFormsResponse, error)
	Get(ctx context.Context, actor service.Actor, formType, formID string) (*models.FormInstance, error)
}

type formExportService interface {
	Export(ctx context.Context, actor service.Actor, formType, format string, filters *dto.FilterSet) (*service.ExportResult, error)
	Download(token string) (*service.ExportResult, error)
}

// FormHandler serves the workflow surface: listing, viewing, creating and
// acting on form instances.
type FormHandler struct {
	creation   formCreationService
	submission formSubmissionService
	listing    formListingService
	exports    formExportService
}

// NewFormHandler constructs the handler.
func NewFormHandler(creation formCreationService, submission formSubmissionService, listing formListingService, exports formExportService) *FormHandler {
	return &FormHandler{creation: creation, submission: submission, listing: listing, exports: exports}
}

// RegisterPublicRoutes mounts the endpoints that carry their own credential.
func (h *FormHandler) RegisterPublicRoutes(group *gin.RouterGroup) {
	group.GET("/exports/download", h.Download)
}

// RegisterRoutes mounts the form endpoints on an authenticated group.
func (h *FormHandler) RegisterRoutes(group *gin.RouterGroup) {
	group.GET("/forms", h.ListFormTypes)
	group.GET("/forms/:type", h.List)
	group.POST("/forms/:type", h.Create)
	group.GET("/forms/:type/export", h.Export)
	group.POST("/forms/:type/bulk", h.BulkSubmit)
	group.GET("/forms/:type/:id", h.Get)
	group.POST("/forms/:type/:id", h.Submit)
}

// ListFormTypes returns the static form catalog.
func (h *FormHandler) ListFormTypes(c *gin.Context) {
	slugs := forms.Slugs()
	catalog := make([]gin.H, 0, len(slugs))
	for _, slug := range slugs {
		def, err := forms.Lookup(slug)
		if err != nil {
			continue
		}
		catalog = append(catalog, gin.H{
			"form_type": def.Slug,
			"name":      def.Name,
			"max_count": def.MaxCount,
			"steps":     def.Steps,
		})
	}
	response.JSON(c, http.StatusOK, catalog, nil)
}

// List returns the role-scoped page of one form type.
func (h *FormHandler) List(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	query := dto.ListFormsQuery{
		Page:     queryInt(c, "page", 1),
		PageSize: queryInt(c, "page_size", 0),
	}
	if raw := c.Query("filters"); raw != "" {
		var filters dto.FilterSet
		if err := json.Unmarshal([]byte(raw), &filters); err != nil {
			response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid filters payload"))
			return
		}
		query.Filters = &filters
	}

	resp, err := h.listing.List(c.Request.Context(), actor, c.Param("type"), query)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, resp, nil)
}

// Get returns one form instance with its full state and history.
func (h *FormHandler) Get(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	inst, err := h.listing.Get(c.Request.Context(), actor, c.Param("type"), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, inst, nil)
}

// Create starts a new instance of a form type.
func (h *FormHandler) Create(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var req dto.CreateFormRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid request payload"))
		return
	}

	inst, err := h.creation.Create(c.Request.Context(), actor, c.Param("type"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, inst)
}

// Submit applies the actor's decision to one instance.
func (h *FormHandler) Submit(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var req dto.SubmitFormRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid request payload"))
		return
	}

	inst, err := h.submission.Submit(c.Request.Context(), actor, c.Param("type"), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, inst, nil)
}

// BulkSubmit approves a batch of instances.
func (h *FormHandler) BulkSubmit(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var req dto.BulkSubmitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid request payload"))
		return
	}

	report, err := h.submission.BulkSubmit(c.Request.Context(), actor, c.Param("type"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, report, nil)
}

// Export streams the actor's listing as CSV or PDF.
func (h *FormHandler) Export(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var filters *dto.FilterSet
	if raw := c.Query("filters"); raw != "" {
		filters = &dto.FilterSet{}
		if err := json.Unmarshal([]byte(raw), filters); err != nil {
			response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid filters payload"))
			return
		}
	}

	result, err := h.exports.Export(c.Request.Context(), actor, c.Param("type"), c.Query("format"), filters)
	if err != nil {
		response.Error(c, err)
		return
	}

	if result.DownloadToken != "" {
		c.Header("X-Export-Token", result.DownloadToken)
		c.Header("X-Export-Expires", result.ExpiresAt.UTC().Format(http.TimeFormat))
	}
	c.Header("Content-Disposition", `attachment; filename="`+result.Filename+`"`)
	c.Data(http.StatusOK, result.ContentType, result.Content)
}

// Download serves an archived export; the signed token is the credential.
func (h *FormHandler) Download(c *gin.Context) {
	token := c.Query("token")
	if token == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "token is required"))
		return
	}

	result, err := h.exports.Download(token)
	if err != nil {
		response.Error(c, err)
		return
	}

	c.Header("Content-Disposition", `attachment; filename="`+result.Filename+`"`)
	c.Data(http.StatusOK, result.ContentType, result.Content)
}

func queryInt(c *gin.Context, key string, fallback int) int {
	raw := c.Query(key)
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return value
}
