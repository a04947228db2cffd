package portal

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"DirectoryAdmin/internal/identity"
)

type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

func (h *Handler) SignIn(c echo.Context) error {
	var req SignInRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request"})
	}
	token, err := h.service.SignIn(c.Request().Context(), req)
	if err != nil {
		switch {
		case errors.Is(err, ErrNotAdmin):
			return c.JSON(http.StatusForbidden, map[string]string{"error": err.Error()})
		case errors.Is(err, identity.ErrBadCredentials), errors.Is(err, identity.ErrDisabled):
			return c.JSON(http.StatusUnauthorized, map[string]string{"error": err.Error()})
		}
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	return c.JSON(http.StatusOK, map[string]string{"token": token})
}

func (h *Handler) AuthState(c echo.Context) error {
	var req AuthStateRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request"})
	}
	if req.Email == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Email is required"})
	}
	result, err := h.service.AuthState(c.Request().Context(), req)
	if err != nil {
		if errors.Is(err, identity.ErrPrincipalNotFound) {
			return c.JSON(http.StatusNotFound, map[string]string{"error": err.Error()})
		}
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	return c.JSON(http.StatusOK, result)
}

func (h *Handler) Profile(c echo.Context) error {
	claims, ok := c.Get("user").(*SessionClaims)
	if !ok || claims == nil {
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "Invalid or missing token"})
	}
	return c.JSON(http.StatusOK, map[string]any{
		"email": claims.Email,
		"name":  claims.Name,
		"role":  claims.Role,
	})
}
