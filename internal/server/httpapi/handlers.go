package httpapi

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/dmitrijs2005/gatekeeper/internal/common"
	"github.com/dmitrijs2005/gatekeeper/internal/server/models"
	"github.com/dmitrijs2005/gatekeeper/internal/server/services"
)

// defaultDocumentURLTTL applies when a download request does not ask for a
// specific lifetime.
const defaultDocumentURLTTL = 10 * time.Minute

// maxUploadBytes caps the multipart request body slightly above the document
// size limit so oversized uploads fail validation, not transport.
const maxUploadBytes = 6 << 20

type userPayload struct {
	ID          string    `json:"id"`
	Email       string    `json:"email"`
	Name        string    `json:"name"`
	Tel         string    `json:"tel,omitempty"`
	Role        string    `json:"role"`
	DocumentKey string    `json:"document_key,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

type sessionPayload struct {
	AccessToken string      `json:"access_token"`
	User        userPayload `json:"user"`
}

type signedAccessPayload struct {
	URL       string    `json:"url"`
	ExpiresAt time.Time `json:"expires_at"`
}

func toUserPayload(u *models.User) userPayload {
	return userPayload{
		ID:          u.ID,
		Email:       u.Email,
		Name:        u.Name,
		Tel:         u.Tel,
		Role:        string(u.Role),
		DocumentKey: u.DocumentKey,
		CreatedAt:   u.CreatedAt,
	}
}

func toSessionPayload(r *services.LoginResult) sessionPayload {
	return sessionPayload{AccessToken: r.AccessToken, User: toUserPayload(r.User)}
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, r, common.ErrValidation)
		return
	}

	res, err := s.auth.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, toSessionPayload(res))
}

type registerRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name"`
	Tel      string `json:"tel"`
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, r, common.ErrValidation)
		return
	}

	res, err := s.users.Register(r.Context(), req.Email, req.Password, req.Name, req.Tel)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, toSessionPayload(res))
}

func (s *Server) handleListUsers(w http.ResponseWriter, r *http.Request) {
	var role *models.Role
	if v := r.URL.Query().Get("role"); v != "" {
		rv := models.Role(v)
		role = &rv
	}

	list, err := s.users.List(r.Context(), role)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	payload := make([]userPayload, 0, len(list))
	for _, u := range list {
		payload = append(payload, toUserPayload(u))
	}
	writeJSON(w, http.StatusOK, payload)
}

func (s *Server) handleGetUser(w http.ResponseWriter, r *http.Request) {
	user, err := s.users.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toUserPayload(user))
}

type updateRequest struct {
	Email    *string `json:"email"`
	Name     *string `json:"name"`
	Tel      *string `json:"tel"`
	Password *string `json:"password"`
	Role     *string `json:"role"`
}

func (s *Server) handleUpdateUser(w http.ResponseWriter, r *http.Request) {
	var req updateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, r, common.ErrValidation)
		return
	}

	patch := &services.UserPatch{
		Email:    req.Email,
		Name:     req.Name,
		Tel:      req.Tel,
		Password: req.Password,
	}
	if req.Role != nil {
		// Only admins may change the access level of an account.
		if p := principalFrom(r.Context()); p == nil || p.Role != models.RoleAdmin {
			s.writeError(w, r, common.ErrForbidden)
			return
		}
		role := models.Role(*req.Role)
		patch.Role = &role
	}

	res, err := s.users.Update(r.Context(), chi.URLParam(r, "id"), patch)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toSessionPayload(res))
}

func (s *Server) handleDeleteUser(w http.ResponseWriter, r *http.Request) {
	if err := s.users.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleAttachDocument(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		s.writeError(w, r, common.ErrValidation)
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		s.writeError(w, r, common.ErrValidation)
		return
	}
	defer file.Close()

	body, err := io.ReadAll(file)
	if err != nil {
		s.writeError(w, r, common.ErrValidation)
		return
	}

	access, err := s.users.AttachDocument(r.Context(), chi.URLParam(r, "id"),
		header.Filename, body, header.Header.Get("Content-Type"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, signedAccessPayload{URL: access.URL, ExpiresAt: access.ExpiresAt})
}

func (s *Server) handleRemoveDocument(w http.ResponseWriter, r *http.Request) {
	if err := s.users.RemoveDocument(r.Context(), chi.URLParam(r, "id")); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleDocumentURL issues a time-boxed download URL for the user's document.
// The optional ttl query parameter is in seconds; out-of-range values are
// rejected, never clamped.
func (s *Server) handleDocumentURL(w http.ResponseWriter, r *http.Request) {
	ttl := defaultDocumentURLTTL
	if v := r.URL.Query().Get("ttl"); v != "" {
		seconds, err := strconv.Atoi(v)
		if err != nil {
			s.writeError(w, r, common.ErrValidation)
			return
		}
		ttl = time.Duration(seconds) * time.Second
	}

	access, err := s.users.DocumentURL(r.Context(), chi.URLParam(r, "id"), ttl)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, signedAccessPayload{URL: access.URL, ExpiresAt: access.ExpiresAt})
}
