package handler

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/prn-tf/helpdesk/internal/auth"
	"github.com/prn-tf/helpdesk/internal/service"
)

// AuthHandler serves login and the current-user endpoint.
type AuthHandler struct {
	authService *service.AuthService
	maxBodySize int64
	logger      zerolog.Logger
}

// NewAuthHandler creates a new AuthHandler.
func NewAuthHandler(authService *service.AuthService, maxBodySize int64, logger zerolog.Logger) *AuthHandler {
	return &AuthHandler{
		authService: authService,
		maxBodySize: maxBodySize,
		logger:      logger.With().Str("handler", "auth").Logger(),
	}
}

// RegisterRoutes registers auth routes.
func (h *AuthHandler) RegisterRoutes(r chi.Router) {
	r.Post("/api/login", h.handleLogin)
	r.With(auth.RequireAuthMiddleware).Get("/api/me", h.handleMe)
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token       string `json:"token"`
	UserID      int64  `json:"user_id"`
	Username    string `json:"username"`
	Email       string `json:"email"`
	IsStaff     bool   `json:"is_staff"`
	IsSuperuser bool   `json:"is_superuser"`
}

func (h *AuthHandler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !decodeJSON(w, r, h.maxBodySize, &req) {
		return
	}

	out, err := h.authService.Login(r.Context(), service.LoginInput{
		Username: req.Username,
		Password: req.Password,
	})
	if err != nil {
		if errors.Is(err, service.ErrInvalidCredentials) {
			writeJSON(w, http.StatusBadRequest, map[string][]string{
				"non_field_errors": {msgInvalidCredentials},
			})
			return
		}
		writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, loginResponse{
		Token:       out.Token,
		UserID:      out.User.ID,
		Username:    out.User.Username,
		Email:       out.User.Email,
		IsStaff:     out.User.IsStaff,
		IsSuperuser: out.User.IsSuperuser,
	})
}

func (h *AuthHandler) handleMe(w http.ResponseWriter, r *http.Request) {
	authCtx := auth.GetAuthContext(r.Context())
	writeJSON(w, http.StatusOK, authCtx.User.View())
}
