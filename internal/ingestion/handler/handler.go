// Package handler serves the passage write endpoints.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/Adithya-Monish-Kumar-K/competition-retrieval/internal/ingestion"
	"github.com/Adithya-Monish-Kumar-K/competition-retrieval/internal/ingestion/publisher"
	"github.com/Adithya-Monish-Kumar-K/competition-retrieval/internal/ingestion/validator"
	apperrors "github.com/Adithya-Monish-Kumar-K/competition-retrieval/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/competition-retrieval/pkg/logger"
)

const maxBodyBytes = 8 << 20

// Trigger schedules a rebuild; *indexer.Rebuilder satisfies it.
type Trigger interface {
	Request(ctx context.Context, trigger string) error
}

type Handler struct {
	publisher *publisher.Publisher
	trigger   Trigger
	logger    *slog.Logger
}

// New wires the handler. When the publisher does not announce changes on
// Kafka, trigger rebuilds the local index after each write.
func New(pub *publisher.Publisher, trigger Trigger) *Handler {
	return &Handler{
		publisher: pub,
		trigger:   trigger,
		logger:    slog.Default().With("component", "ingestion-handler"),
	}
}

func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/v1/passages", h.Ingest)
	mux.HandleFunc("DELETE /api/v1/passages/{id}", h.Delete)
}

func (h *Handler) Ingest(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.FromContext(ctx)

	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	var req ingestion.IngestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if err := validator.ValidateIngestRequest(&req); err != nil {
		var validationErr *validator.ValidationError
		if errors.As(err, &validationErr) {
			h.writeJSON(w, http.StatusBadRequest, map[string]any{
				"error":  "validation failed",
				"fields": validationErr.Fields,
			})
			return
		}
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	resp, err := h.publisher.Ingest(ctx, &req)
	if err != nil {
		status := apperrors.HTTPStatusCode(err)
		log.Error("ingestion failed", "error", err, "status_code", status)
		h.writeError(w, status, "ingestion failed")
		return
	}
	h.rebuildLocally(ctx, "ingest")
	log.Info("passages ingested", "count", len(resp.IDs), "status", resp.Status)
	h.writeJSON(w, http.StatusAccepted, resp)
}

func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := r.PathValue("id")
	if err := h.publisher.Delete(ctx, id); err != nil {
		status := apperrors.HTTPStatusCode(err)
		message := err.Error()
		if status >= http.StatusInternalServerError {
			logger.FromContext(ctx).Error("passage delete failed", "id", id, "error", err)
			message = "passage delete failed"
		}
		h.writeError(w, status, message)
		return
	}
	h.rebuildLocally(ctx, "delete")
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "deleted", "id": id})
}

func (h *Handler) rebuildLocally(ctx context.Context, reason string) {
	if h.trigger == nil || h.publisher.Notifies() {
		return
	}
	go func() {
		if err := h.trigger.Request(context.WithoutCancel(ctx), reason); err != nil {
			h.logger.Error("local rebuild after write failed", "reason", reason, "error", err)
		}
	}()
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
