package apikey

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	apperrors "github.com/Adithya-Monish-Kumar-K/competition-retrieval/pkg/errors"
)

// Manager is the key administration surface of *Validator.
type Manager interface {
	CreateKey(ctx context.Context, name string, rateLimit int, expiresAt *time.Time) (string, *KeyInfo, error)
	RevokeKey(ctx context.Context, id string) error
	ListKeys(ctx context.Context) ([]KeyInfo, error)
}

// Handler serves /api/v1/admin/keys. Callers are authenticated by the
// admin token in the auth middleware.
type Handler struct {
	keys             Manager
	defaultRateLimit int
	logger           *slog.Logger
}

func NewHandler(keys Manager, defaultRateLimit int) *Handler {
	if defaultRateLimit <= 0 {
		defaultRateLimit = 600
	}
	return &Handler{
		keys:             keys,
		defaultRateLimit: defaultRateLimit,
		logger:           slog.Default().With("component", "apikey-handler"),
	}
}

func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/v1/admin/keys", h.Create)
	mux.HandleFunc("GET /api/v1/admin/keys", h.List)
	mux.HandleFunc("DELETE /api/v1/admin/keys/{id}", h.Revoke)
}

type createRequest struct {
	Name      string `json:"name"`
	RateLimit int    `json:"rate_limit"`
	ExpiresIn string `json:"expires_in,omitempty"`
}

func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 64<<10)).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		h.writeError(w, http.StatusBadRequest, "name is required")
		return
	}
	if req.RateLimit <= 0 {
		req.RateLimit = h.defaultRateLimit
	}

	var expiresAt *time.Time
	if req.ExpiresIn != "" {
		d, err := time.ParseDuration(req.ExpiresIn)
		if err != nil || d <= 0 {
			h.writeError(w, http.StatusBadRequest, "expires_in must be a positive duration such as 720h")
			return
		}
		t := time.Now().Add(d).UTC()
		expiresAt = &t
	}

	raw, info, err := h.keys.CreateKey(r.Context(), req.Name, req.RateLimit, expiresAt)
	if err != nil {
		h.logger.Error("failed to create api key", "error", err)
		h.writeError(w, http.StatusInternalServerError, "failed to create api key")
		return
	}
	h.writeJSON(w, http.StatusCreated, map[string]any{
		"api_key": raw,
		"key":     info,
	})
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	keys, err := h.keys.ListKeys(r.Context())
	if err != nil {
		h.logger.Error("failed to list api keys", "error", err)
		h.writeError(w, http.StatusInternalServerError, "failed to list api keys")
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"keys": keys, "count": len(keys)})
}

func (h *Handler) Revoke(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := h.keys.RevokeKey(r.Context(), id); err != nil {
		status := apperrors.HTTPStatusCode(err)
		if status >= http.StatusInternalServerError {
			h.logger.Error("failed to revoke api key", "id", id, "error", err)
			h.writeError(w, status, "failed to revoke api key")
			return
		}
		h.writeError(w, status, err.Error())
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "revoked", "id": id})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to write response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
