package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/phd-portal-api/internal/models"
	"github.com/noah-isme/phd-portal-api/internal/service"
	appErrors "github.com/noah-isme/phd-portal-api/pkg/errors"
	"github.com/noah-isme/phd-portal-api/pkg/response"
)

// AuthHandler serves login, role switching and the profile endpoint.
type AuthHandler struct {
	auth *service.AuthService
}

// NewAuthHandler constructs the handler.
func NewAuthHandler(auth *service.AuthService) *AuthHandler {
	return &AuthHandler{auth: auth}
}

// RegisterPublicRoutes mounts the unauthenticated endpoints.
func (h *AuthHandler) RegisterPublicRoutes(group *gin.RouterGroup) {
	group.POST("/auth/login", h.Login)
	group.POST("/auth/refresh", h.Refresh)
}

// RegisterRoutes mounts the authenticated endpoints.
func (h *AuthHandler) RegisterRoutes(group *gin.RouterGroup) {
	group.POST("/auth/switch-role", h.SwitchRole)
	group.GET("/auth/me", h.Me)
}

// Login authenticates credentials and returns a role-bound token.
func (h *AuthHandler) Login(c *gin.Context) {
	var req models.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid request payload"))
		return
	}

	resp, err := h.auth.Login(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, resp, nil)
}

// Refresh exchanges a refresh token for a fresh token pair.
func (h *AuthHandler) Refresh(c *gin.Context) {
	var req models.RefreshRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid request payload"))
		return
	}

	resp, err := h.auth.Refresh(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, resp, nil)
}

// SwitchRole changes the active role and issues a fresh token.
func (h *AuthHandler) SwitchRole(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var req models.SwitchRoleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid request payload"))
		return
	}

	resp, err := h.auth.SwitchRole(c.Request.Context(), claims.UserID, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, resp, nil)
}

// Me returns the profile behind the presented token.
func (h *AuthHandler) Me(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	info, err := h.auth.Me(c.Request.Context(), claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, info, nil)
}
