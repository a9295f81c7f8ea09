package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/noah-isme/phd-portal-api/internal/middleware"
	"github.com/noah-isme/phd-portal-api/internal/models"
	"github.com/noah-isme/phd-portal-api/internal/service"
)

func claimsFromContext(c *gin.Context) *models.JWTClaims {
	value, exists := c.Get(middleware.ContextUserKey)
	if !exists {
		return nil
	}
	claims, ok := value.(*models.JWTClaims)
	if !ok {
		return nil
	}
	return claims
}

func actorFromContext(c *gin.Context) (service.Actor, bool) {
	claims := claimsFromContext(c)
	if claims == nil {
		return service.Actor{}, false
	}
	return service.Actor{UserID: claims.UserID, Role: claims.Role, Name: claims.Name}, true
}
