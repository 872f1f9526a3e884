package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/nnh2x/hemidi-authen/internal/infra/security"
)

const jwksCacheControl = "public, max-age=3600"

// JWKSHandler publishes the public half of the signing keys.
type JWKSHandler struct {
	keys security.KeyProvider
}

// NewJWKSHandler constructs a JWKS handler backed by the supplied key provider.
func NewJWKSHandler(keys security.KeyProvider) *JWKSHandler {
	return &JWKSHandler{keys: keys}
}

// Keys godoc
// @Summary Retrieve JSON Web Key Set
// @Description Exposes the public keys used to verify access token signatures.
// @Tags Public
// @Produce json
// @Success 200 {object} security.JSONWebKeySet
// @Failure 503 {object} ErrorResponse
// @Router /.well-known/jwks.json [get]
func (h *JWKSHandler) Keys(c *gin.Context) {
	if h == nil || h.keys == nil {
		c.JSON(http.StatusServiceUnavailable, NewErrorResponse(c, "jwks not available"))
		return
	}

	c.Header("Cache-Control", jwksCacheControl)
	c.JSON(http.StatusOK, security.BuildJWKS(h.keys))
}
