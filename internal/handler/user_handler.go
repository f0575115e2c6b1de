package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/prn-tf/helpdesk/internal/domain"
	"github.com/prn-tf/helpdesk/internal/service"
)

// UserHandler serves the user collection and detail endpoints.
type UserHandler struct {
	userService *service.UserService
	maxBodySize int64
	logger      zerolog.Logger
}

// NewUserHandler creates a new UserHandler.
func NewUserHandler(userService *service.UserService, maxBodySize int64, logger zerolog.Logger) *UserHandler {
	return &UserHandler{
		userService: userService,
		maxBodySize: maxBodySize,
		logger:      logger.With().Str("handler", "user").Logger(),
	}
}

// RegisterRoutes registers user routes.
func (h *UserHandler) RegisterRoutes(r chi.Router) {
	r.Route("/api/users", func(r chi.Router) {
		r.Get("/", h.handleList)
		r.Post("/", h.handleCreate)
		r.Get("/{id}", h.handleGet)
		r.Patch("/{id}", h.handleUpdate)
		r.Put("/{id}", h.handleReplace)
		r.Delete("/{id}", h.handleDelete)
	})
}

// userRequest is the writable subset of a user. Read-only fields such as
// is_staff or date_joined are not decoded and are silently dropped.
type userRequest struct {
	Username  *string `json:"username"`
	Password  *string `json:"password"`
	Email     *string `json:"email"`
	FirstName *string `json:"first_name"`
	LastName  *string `json:"last_name"`
}

func (req userRequest) createInput() service.CreateUserInput {
	return service.CreateUserInput{
		Username:  deref(req.Username),
		Password:  deref(req.Password),
		Email:     deref(req.Email),
		FirstName: deref(req.FirstName),
		LastName:  deref(req.LastName),
	}
}

func (req userRequest) updateInput() service.UpdateUserInput {
	return service.UpdateUserInput{
		Username:  req.Username,
		Password:  req.Password,
		Email:     req.Email,
		FirstName: req.FirstName,
		LastName:  req.LastName,
	}
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func (h *UserHandler) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req userRequest
	if !decodeJSON(w, r, h.maxBodySize, &req) {
		return
	}

	user, err := h.userService.Create(r.Context(), req.createInput())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, user.View())
}

func (h *UserHandler) handleList(w http.ResponseWriter, r *http.Request) {
	input, verr := parseListInput(r)
	if verr != nil {
		writeServiceError(w, r, verr)
		return
	}

	out, err := h.userService.List(r.Context(), input)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	w.Header().Set("X-Total-Count", strconv.FormatInt(out.TotalCount, 10))
	writeJSON(w, http.StatusOK, domain.Views(out.Users))
}

func parseListInput(r *http.Request) (service.ListUsersInput, error) {
	var input service.ListUsersInput
	verr := &service.ValidationError{}
	q := r.URL.Query()
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			verr.Add("limit", msgInvalidInteger)
		}
		input.Limit = n
	}
	if v := q.Get("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			verr.Add("offset", msgInvalidInteger)
		}
		input.Offset = n
	}
	if !verr.Empty() {
		return input, verr
	}
	return input, nil
}

func (h *UserHandler) handleGet(w http.ResponseWriter, r *http.Request) {
	id, ok := userID(w, r)
	if !ok {
		return
	}

	user, err := h.userService.Get(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, user.View())
}

func (h *UserHandler) handleUpdate(w http.ResponseWriter, r *http.Request) {
	h.update(w, r, h.userService.Update)
}

func (h *UserHandler) handleReplace(w http.ResponseWriter, r *http.Request) {
	h.update(w, r, h.userService.Replace)
}

type updateFunc func(ctx context.Context, id int64, input service.UpdateUserInput) (*domain.User, error)

func (h *UserHandler) update(w http.ResponseWriter, r *http.Request, fn updateFunc) {
	id, ok := userID(w, r)
	if !ok {
		return
	}

	var req userRequest
	if !decodeJSON(w, r, h.maxBodySize, &req) {
		return
	}

	user, err := fn(r.Context(), id, req.updateInput())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, user.View())
}

func (h *UserHandler) handleDelete(w http.ResponseWriter, r *http.Request) {
	id, ok := userID(w, r)
	if !ok {
		return
	}

	if err := h.userService.Delete(r.Context(), id); err != nil {
		writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// userID parses the {id} URL parameter. A non-numeric id is reported as not found.
func userID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		writeDetail(w, http.StatusNotFound, detailNotFound)
		return 0, false
	}
	return id, true
}
