package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	"github.com/noah-isme/phd-portal-api/internal/dto"
	"github.com/noah-isme/phd-portal-api/internal/middleware"
	"github.com/noah-isme/phd-portal-api/internal/models"
	"github.com/noah-isme/phd-portal-api/internal/service"
	appErrors "github.com/noah-isme/phd-portal-api/pkg/errors"
	"github.com/noah-isme/phd-portal-api/pkg/response"
)

type formAdminService interface {
	Overview(ctx context.Context, rollNo string) (*dto.StudentFormsOverview, error)
	EnableOrCreate(ctx context.Context, actor service.Actor, req dto.AdminCreateFormRequest) (*models.FormInstance, error)
	ToggleAvailability(ctx context.Context, req dto.ToggleAvailabilityRequest) error
	Control(ctx context.Context, req dto.FormControlRequest) (*models.FormInstance, error)
	SetLevel(ctx context.Context, req dto.FormLevelRequest) (*models.FormInstance, error)
	Delete(ctx context.Context, formType, formID string) error
}

// AdminFormHandler serves the override surface. Every route is gated to the
// admin role; the service layer bypasses the normal workflow guards.
type AdminFormHandler struct {
	admin    formAdminService
	validate *validator.Validate
}

// NewAdminFormHandler constructs the handler.
func NewAdminFormHandler(admin formAdminService, validate *validator.Validate) *AdminFormHandler {
	if validate == nil {
		validate = validator.New()
	}
	return &AdminFormHandler{admin: admin, validate: validate}
}

// RegisterRoutes mounts the admin endpoints on an authenticated group.
func (h *AdminFormHandler) RegisterRoutes(group *gin.RouterGroup) {
	admin := group.Group("/admin", middleware.RequireRoles(models.RoleAdmin))
	admin.GET("/students/:roll_no/forms", h.Overview)
	admin.POST("/forms", h.EnableOrCreate)
	admin.PATCH("/forms/availability", h.ToggleAvailability)
	admin.PATCH("/forms/control", h.Control)
	admin.PATCH("/forms/level", h.SetLevel)
	admin.DELETE("/forms/:type/:id", h.Delete)
}

// Overview returns every form type's ledger and instances for one student.
func (h *AdminFormHandler) Overview(c *gin.Context) {
	overview, err := h.admin.Overview(c.Request.Context(), c.Param("roll_no"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, overview, nil)
}

// EnableOrCreate enables a form for a student, optionally starting an
// instance on the student's behalf.
func (h *AdminFormHandler) EnableOrCreate(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var req dto.AdminCreateFormRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid request payload"))
		return
	}
	if err := h.validate.Struct(req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "student_id and form_type are required"))
		return
	}

	inst, err := h.admin.EnableOrCreate(c.Request.Context(), actor, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	if inst == nil {
		response.JSON(c, http.StatusOK, gin.H{"enabled": true}, nil)
		return
	}
	response.Created(c, inst)
}

// ToggleAvailability flips one role's availability flag on the ledger.
func (h *AdminFormHandler) ToggleAvailability(c *gin.Context) {
	var req dto.ToggleAvailabilityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid request payload"))
		return
	}
	if err := h.validate.Struct(req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "student_id, form_type and role are required"))
		return
	}

	if err := h.admin.ToggleAvailability(c.Request.Context(), req); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// Control rewrites workflow fields on an instance.
func (h *AdminFormHandler) Control(c *gin.Context) {
	var req dto.FormControlRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid request payload"))
		return
	}
	if err := h.validate.Struct(req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "student_id, form_type and form_id are required"))
		return
	}

	inst, err := h.admin.Control(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, inst, nil)
}

// SetLevel resets an instance back to a role's step and unlocks it.
func (h *AdminFormHandler) SetLevel(c *gin.Context) {
	var req dto.FormLevelRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid request payload"))
		return
	}
	if err := h.validate.Struct(req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "form_type, form_id, roll_no and role are required"))
		return
	}

	inst, err := h.admin.SetLevel(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, inst, nil)
}

// Delete removes an instance and releases its ledger slot.
func (h *AdminFormHandler) Delete(c *gin.Context) {
	if err := h.admin.Delete(c.Request.Context(), c.Param("type"), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
