package directory

import (
	"errors"
	"net/http"
	"net/url"

	"github.com/labstack/echo/v4"
)

type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

func emailParam(c echo.Context) string {
	raw := c.Param("email")
	if decoded, err := url.PathUnescape(raw); err == nil {
		return decoded
	}
	return raw
}

func (h *Handler) errorResponse(c echo.Context, err error) error {
	switch {
	case errors.Is(err, ErrInvalidRole):
		return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	case errors.Is(err, ErrNotFound):
		return c.JSON(http.StatusNotFound, map[string]string{"error": err.Error()})
	case errors.Is(err, ErrAlreadyExists):
		return c.JSON(http.StatusConflict, map[string]string{"error": err.Error()})
	case errors.Is(err, ErrUpstreamUnavailable):
		return c.JSON(http.StatusBadGateway, map[string]string{"error": err.Error()})
	}
	return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
}

func (h *Handler) CreateUser(c echo.Context) error {
	var in CreateInput
	if err := c.Bind(&in); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid Request"})
	}
	if in.Email == "" || in.Password == "" || in.Name == "" || in.Role == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Missing required fields: email, password, name, role"})
	}
	result, err := h.service.Create(c.Request().Context(), in)
	if err != nil {
		return h.errorResponse(c, err)
	}
	return c.JSON(http.StatusOK, map[string]any{
		"success":  true,
		"uid":      result.PrincipalID,
		"emailKey": result.EmailKey,
		"userData": result.Record,
	})
}

func (h *Handler) ListUsers(c echo.Context) error {
	records, err := h.service.List(c.Request().Context())
	if err != nil {
		return h.errorResponse(c, err)
	}
	return c.JSON(http.StatusOK, map[string]any{"users": records})
}

func (h *Handler) UpdateUser(c echo.Context) error {
	var in UpdateInput
	if err := c.Bind(&in); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid Request"})
	}
	rec, err := h.service.Update(c.Request().Context(), emailParam(c), in)
	if err != nil {
		return h.errorResponse(c, err)
	}
	return c.JSON(http.StatusOK, map[string]any{"success": true, "userData": rec})
}

type passwordRequest struct {
	Password string `json:"password"`
}

func (h *Handler) ChangePassword(c echo.Context) error {
	var req passwordRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid Request"})
	}
	if req.Password == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Password is required"})
	}
	if err := h.service.ChangePassword(c.Request().Context(), emailParam(c), req.Password); err != nil {
		return h.errorResponse(c, err)
	}
	return c.JSON(http.StatusOK, map[string]any{"success": true})
}

type disabledRequest struct {
	Disabled *bool `json:"disabled"`
}

func (h *Handler) SetDisabled(c echo.Context) error {
	var req disabledRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid Request"})
	}
	if req.Disabled == nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "disabled must be boolean"})
	}
	if err := h.service.SetDisabled(c.Request().Context(), emailParam(c), *req.Disabled); err != nil {
		return h.errorResponse(c, err)
	}
	return c.JSON(http.StatusOK, map[string]any{"success": true})
}

func (h *Handler) DeleteUser(c echo.Context) error {
	if err := h.service.Delete(c.Request().Context(), emailParam(c)); err != nil {
		return h.errorResponse(c, err)
	}
	return c.JSON(http.StatusOK, map[string]any{"success": true})
}

type loginRequest struct {
	PrincipalID string `json:"uid"`
}

func (h *Handler) RecordLogin(c echo.Context) error {
	var req loginRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid Request"})
	}
	result, err := h.service.RecordLogin(c.Request().Context(), emailParam(c), req.PrincipalID)
	if err != nil {
		return h.errorResponse(c, err)
	}
	return c.JSON(http.StatusOK, map[string]any{"success": true, "lastLogin": result.LastLogin})
}

func (h *Handler) LoginHistory(c echo.Context) error {
	result, err := h.service.LoginHistory(c.Request().Context(), emailParam(c))
	if err != nil {
		return h.errorResponse(c, err)
	}
	return c.JSON(http.StatusOK, result)
}

func (h *Handler) SendCredentialReset(c echo.Context) error {
	if err := h.service.SendCredentialReset(c.Request().Context(), emailParam(c)); err != nil {
		return h.errorResponse(c, err)
	}
	return c.JSON(http.StatusOK, map[string]any{"success": true})
}

// repairResponse returns the report even when the pass finished with
// per-item errors; callers re-run the idempotent pass after fixing upstream.
func repairResponse(c echo.Context, report any, err error) error {
	var partial *PartialFailureError
	if err != nil && !errors.As(err, &partial) {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	body := map[string]any{"success": err == nil, "report": report}
	if partial != nil {
		body["failures"] = partial.Failures
	}
	return c.JSON(http.StatusOK, body)
}

func (h *Handler) RemoveDuplicates(c echo.Context) error {
	report, err := h.service.RemoveDuplicates(c.Request().Context())
	return repairResponse(c, report, err)
}

func (h *Handler) CleanupRoleCollections(c echo.Context) error {
	report, err := h.service.CleanupRoleCollections(c.Request().Context())
	return repairResponse(c, report, err)
}

func (h *Handler) CreateMissingDocument(c echo.Context) error {
	var in ManualRepairInput
	if err := c.Bind(&in); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid Request"})
	}
	if in.Email == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Email is required"})
	}
	result, err := h.service.CreateMissingDocument(c.Request().Context(), in)
	if err != nil {
		return h.errorResponse(c, err)
	}
	return c.JSON(http.StatusOK, map[string]any{"success": true, "emailKey": result.EmailKey})
}

func (h *Handler) MigrateLegacyKeys(c echo.Context) error {
	report, err := h.service.MigrateLegacyKeys(c.Request().Context())
	return repairResponse(c, report, err)
}
