package api

import (
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"
	"gwi.com/chattyagent/internal/core"
)

type APIHandler struct {
	auth       *core.AuthService
	projects   *core.ProjectService
	chats      *core.ChatService
	files      *core.FileService
	logger     *zap.Logger
	env        string
	production bool
}

type Services struct {
	Auth     *core.AuthService
	Projects *core.ProjectService
	Chats    *core.ChatService
	Files    *core.FileService
}

func NewAPIHandler(svc Services, env string, production bool, logger *zap.Logger) *APIHandler {
	return &APIHandler{
		auth:       svc.Auth,
		projects:   svc.Projects,
		chats:      svc.Chats,
		files:      svc.Files,
		logger:     logger,
		env:        env,
		production: production,
	}
}

func (h *APIHandler) HealthHandler(w http.ResponseWriter, r *http.Request) {
	respond(w, http.StatusOK, "ChattyAgent API is running", M{
		"timestamp":   time.Now().UTC(),
		"environment": h.env,
	})
}

// queryInt reads an integer query parameter; anything unparsable is 0.
func queryInt(r *http.Request, key string) int {
	n, _ := strconv.Atoi(r.URL.Query().Get(key))
	return n
}

type RegisterRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name"`
}

func (h *APIHandler) RegisterHandler(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := decodeJSON(r, &req); err != nil {
		h.fail(w, r, err, "")
		return
	}

	session, err := h.auth.Register(r.Context(), req.Email, req.Password, req.Name)
	if err != nil {
		h.fail(w, r, err, "Internal server error during registration")
		return
	}
	respond(w, http.StatusCreated, "User registered successfully", session)
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (h *APIHandler) LoginHandler(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := decodeJSON(r, &req); err != nil {
		h.fail(w, r, err, "")
		return
	}

	session, err := h.auth.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		h.fail(w, r, err, "Internal server error during login")
		return
	}
	respond(w, http.StatusOK, "Login successful", session)
}

func (h *APIHandler) GetProfileHandler(w http.ResponseWriter, r *http.Request) {
	user, err := h.auth.Profile(r.Context(), currentUser(r).ID)
	if err != nil {
		h.fail(w, r, err, "Error fetching user profile")
		return
	}
	respond(w, http.StatusOK, "", M{"user": user})
}

type UpdateProfileRequest struct {
	Name string `json:"name"`
}

func (h *APIHandler) UpdateProfileHandler(w http.ResponseWriter, r *http.Request) {
	var req UpdateProfileRequest
	if err := decodeJSON(r, &req); err != nil {
		h.fail(w, r, err, "")
		return
	}

	user, err := h.auth.UpdateProfile(r.Context(), currentUser(r).ID, req.Name)
	if err != nil {
		h.fail(w, r, err, "Error updating profile")
		return
	}
	respond(w, http.StatusOK, "Profile updated successfully", M{"user": user})
}
