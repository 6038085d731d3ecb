package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/campus-tic/projector-loan-api/internal/middleware"
	"github.com/campus-tic/projector-loan-api/internal/models"
)

// claimsFromContext pulls the JWT claims stored by the auth
// middleware, returning nil when the request is unauthenticated.
func claimsFromContext(c *gin.Context) *models.JWTClaims {
	value, ok := c.Get(middleware.ContextUserKey)
	if !ok {
		return nil
	}
	claims, ok := value.(*models.JWTClaims)
	if !ok {
		return nil
	}
	return claims
}
