package http

import (
	"net/http"
	"strings"

	"vinyl/internal/core/services"
	"vinyl/pkg/errors"
	"vinyl/pkg/validation"

	"github.com/gin-gonic/gin"
)

type AuthHandler struct {
	authService services.AuthService
}

func NewAuthHandler(authService services.AuthService) *AuthHandler {
	return &AuthHandler{
		authService: authService,
	}
}

func (h *AuthHandler) SetupRoutes(router *gin.Engine) {
	api := router.Group("/auth")
	{
		api.POST("/session", h.CreateSession)
		api.POST("/refresh", h.RefreshToken)
	}
}

type SessionRequest struct {
	Username string `json:"username" binding:"required,max=50"`
}

type RefreshTokenRequest struct {
	RefreshToken string `json:"refresh_token" binding:"required,max=2048"`
}

// CreateSession issues a guest identity. Rooms have no accounts; the name is
// only used for display and attribution of submitted tracks.
func (h *AuthHandler) CreateSession(c *gin.Context) {
	var req SessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(errors.NewInvalidInputError("invalid request format"))
		return
	}

	req.Username = strings.TrimSpace(req.Username)
	if err := validation.ValidateUsername(req.Username); err != nil {
		c.Error(errors.NewInvalidInputError(err.Error()))
		return
	}

	pair, err := h.authService.IssueSession(req.Username)
	if err != nil {
		c.Error(errors.NewInternalError("failed to issue session"))
		return
	}

	c.JSON(http.StatusCreated, pair)
}

func (h *AuthHandler) RefreshToken(c *gin.Context) {
	var req RefreshTokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(errors.NewInvalidInputError("invalid request format"))
		return
	}

	pair, err := h.authService.Refresh(req.RefreshToken)
	if err != nil {
		c.Error(errors.NewUnauthorizedError("invalid refresh token"))
		return
	}

	c.JSON(http.StatusOK, pair)
}
