package api

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"jobvault/internal/server/auth"
	"jobvault/internal/server/database"
	"jobvault/internal/server/service"

	"github.com/labstack/echo/v4"
)

// Handler contains the HTTP handlers for the vault API.
type Handler struct {
	vault  *service.VaultService
	users  *service.UserService
	codec  *auth.TokenCodec
	cipher *auth.CookieCipher
	db     *database.DB
}

// NewHandler creates a new handler with the given dependencies.
func NewHandler(vault *service.VaultService, users *service.UserService, codec *auth.TokenCodec, cipher *auth.CookieCipher, db *database.DB) *Handler {
	return &Handler{vault: vault, users: users, codec: codec, cipher: cipher, db: db}
}

type credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// HandleRegister handles POST /users.
func (h *Handler) HandleRegister(c echo.Context) error {
	var creds credentials
	if err := c.Bind(&creds); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}

	user, err := h.users.Register(c.Request().Context(), creds.Email, creds.Password)
	if err != nil {
		return mapServiceError(c, err)
	}

	return c.JSON(http.StatusCreated, echo.Map{
		"id":    user.ID,
		"email": user.Email,
	})
}

// HandleLogin handles POST /users/login.
// On success it issues a fresh session token and sets it, encrypted, as the
// session cookie.
func (h *Handler) HandleLogin(c echo.Context) error {
	var creds credentials
	if err := c.Bind(&creds); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}

	user, err := h.users.Login(c.Request().Context(), creds.Email, creds.Password)
	if err != nil {
		return mapServiceError(c, err)
	}

	token, err := h.codec.Issue(user.ID)
	if err != nil {
		return fmt.Errorf("failed to issue session token: %w", err)
	}
	encrypted, err := h.cipher.Encrypt(token)
	if err != nil {
		return fmt.Errorf("failed to encrypt session token: %w", err)
	}
	auth.SetSessionCookie(c, encrypted)

	return c.JSON(http.StatusOK, echo.Map{
		"id":    user.ID,
		"email": user.Email,
	})
}

// HandleLogout handles POST /users/logout. Sessions are stateless, so logout
// just expires the cookie on the client.
func (h *Handler) HandleLogout(c echo.Context) error {
	auth.ClearSessionCookie(c)
	return c.JSON(http.StatusOK, echo.Map{"message": "logged out"})
}

// HandleCheck handles GET /users/check. Reaching it at all means the session
// gateway accepted the cookie.
func (h *Handler) HandleCheck(c echo.Context) error {
	return c.JSON(http.StatusOK, echo.Map{"userId": auth.UserID(c)})
}

// HandleUpload handles POST /files/upload.
// Accepts a multipart form with a "file" field and a "fileType" field.
func (h *Handler) HandleUpload(c echo.Context) error {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{
			"error": "file is required (use form field 'file')",
		})
	}

	src, err := fileHeader.Open()
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{
			"error": "failed to read uploaded file",
		})
	}
	defer src.Close()

	result, err := h.vault.Upload(
		c.Request().Context(),
		auth.UserID(c),
		fileHeader.Filename,
		c.FormValue("fileType"),
		src,
	)
	if err != nil {
		return mapServiceError(c, err)
	}

	return c.JSON(http.StatusOK, result)
}

// HandleList handles GET /files/all.
func (h *Handler) HandleList(c echo.Context) error {
	infos, err := h.vault.List(c.Request().Context(), auth.UserID(c))
	if err != nil {
		return mapServiceError(c, err)
	}
	return c.JSON(http.StatusOK, infos)
}

// HandleDownload handles GET /files/:id.
// Serves the decrypted archive as an attachment; the transient plaintext is
// removed once the response has been written.
func (h *Handler) HandleDownload(c echo.Context) error {
	result, release, err := h.vault.Download(c.Request().Context(), auth.UserID(c), c.Param("id"))
	if err != nil {
		return mapServiceError(c, err)
	}
	defer release()

	return c.Attachment(result.Path, attachmentName(result.DisplayName))
}

// HandleDelete handles DELETE /files/:id.
func (h *Handler) HandleDelete(c echo.Context) error {
	if err := h.vault.Delete(c.Request().Context(), auth.UserID(c), c.Param("id")); err != nil {
		return mapServiceError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"message": "file deleted successfully"})
}

type linkRequest struct {
	JobID string `json:"jobId"`
}

// HandleLink handles PUT /files/link/:fileId.
func (h *Handler) HandleLink(c echo.Context) error {
	var req linkRequest
	if err := c.Bind(&req); err != nil || req.JobID == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "jobId is required"})
	}

	if err := h.vault.Link(c.Request().Context(), auth.UserID(c), c.Param("fileId"), req.JobID); err != nil {
		return mapServiceError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"message": "file linked to job"})
}

// HandleUnlink handles PUT /files/unlink/:fileId.
func (h *Handler) HandleUnlink(c echo.Context) error {
	var req linkRequest
	if err := c.Bind(&req); err != nil || req.JobID == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "jobId is required"})
	}

	if err := h.vault.Unlink(c.Request().Context(), auth.UserID(c), c.Param("fileId"), req.JobID); err != nil {
		return mapServiceError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"message": "file unlinked from job"})
}

// HandleHealth handles GET /health.
// Returns the health status of the server, including database connectivity.
func (h *Handler) HandleHealth(c echo.Context) error {
	status := "healthy"
	dbStatus := "connected"

	if err := h.db.HealthCheck(c.Request().Context()); err != nil {
		status = "degraded"
		dbStatus = fmt.Sprintf("error: %v", err)
	}

	return c.JSON(http.StatusOK, echo.Map{
		"status":   status,
		"database": dbStatus,
	})
}

// mapServiceError translates service-layer errors into HTTP responses.
// Ownership failures map to 401 while unknown ids map to 404, so the two
// stay distinguishable to the client; integrity failures are server faults.
func mapServiceError(c echo.Context, err error) error {
	switch {
	case errors.Is(err, service.ErrInvalidFileType):
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid file type provided"})
	case errors.Is(err, service.ErrNotPDF):
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "only PDF files are allowed"})
	case errors.Is(err, service.ErrEmptyFile):
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "file is empty"})
	case errors.Is(err, service.ErrFileTooLarge):
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "file exceeds maximum allowed size"})
	case errors.Is(err, service.ErrNotFound):
		return c.JSON(http.StatusNotFound, echo.Map{"error": "file not found"})
	case errors.Is(err, service.ErrJobNotFound):
		return c.JSON(http.StatusNotFound, echo.Map{"error": "job not found"})
	case errors.Is(err, service.ErrNotOwner):
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	case errors.Is(err, service.ErrAlreadyLinked):
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "file is already linked to this job"})
	case errors.Is(err, service.ErrNotLinked):
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "file is not linked to this job"})
	case errors.Is(err, service.ErrMissingField):
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "email and password are required"})
	case errors.Is(err, service.ErrEmailTaken):
		return c.JSON(http.StatusConflict, echo.Map{"error": "email is already in use"})
	case errors.Is(err, service.ErrUnknownUser), errors.Is(err, service.ErrBadCredentials):
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid credentials"})
	default:
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal server error"})
	}
}

// attachmentName names the served archive after the stored display name.
func attachmentName(displayName string) string {
	base := strings.TrimSuffix(displayName, ".pdf")
	if base == "" {
		base = "document"
	}
	return base + ".zip"
}
