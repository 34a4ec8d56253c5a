package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/Adithya-Monish-Kumar-K/near-duplicate-platform/internal/ingestion"
	"github.com/Adithya-Monish-Kumar-K/near-duplicate-platform/internal/ingestion/validator"
	apperrors "github.com/Adithya-Monish-Kumar-K/near-duplicate-platform/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/near-duplicate-platform/pkg/logger"
)

// DocumentStore is the persistence surface the handler needs.
type DocumentStore interface {
	Put(ctx context.Context, docs []ingestion.IngestRequest) ([]ingestion.IngestResponse, error)
	Count(ctx context.Context) (int64, error)
}

type Handler struct {
	store   DocumentStore
	maxText int
	logger  *slog.Logger
}

// New creates a Handler. maxText bounds document text in bytes; 0 disables
// the check.
func New(store DocumentStore, maxText int) *Handler {
	return &Handler{
		store:   store,
		maxText: maxText,
		logger:  slog.Default().With("component", "ingestion-handler"),
	}
}

// Ingest handles POST /api/v1/documents.
func (h *Handler) Ingest(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContext(r.Context())
	var req ingestion.IngestRequest
	if err := json.NewDecoder(h.limit(r.Body, 1)).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if err := validator.ValidateDocument(&req, h.maxText); err != nil {
		h.writeValidation(w, err)
		return
	}

	results, err := h.store.Put(r.Context(), []ingestion.IngestRequest{req})
	if err != nil {
		log.Error("ingestion failed", "id", req.ID, "error", err)
		h.writeAppError(w, err)
		return
	}
	resp := results[0]
	log.Info("document ingested", "id", resp.ID, "status", resp.Status)
	status := http.StatusOK
	if resp.Status == ingestion.StatusCreated {
		status = http.StatusCreated
	}
	h.writeJSON(w, status, resp)
}

// IngestBatch handles POST /api/v1/documents/batch.
func (h *Handler) IngestBatch(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContext(r.Context())
	var req ingestion.BatchRequest
	if err := json.NewDecoder(h.limit(r.Body, validator.MaxBatchSize)).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if err := validator.ValidateBatch(&req, h.maxText); err != nil {
		h.writeValidation(w, err)
		return
	}

	results, err := h.store.Put(r.Context(), req.Documents)
	if err != nil {
		log.Error("batch ingestion failed", "documents", len(req.Documents), "error", err)
		h.writeAppError(w, err)
		return
	}
	resp := ingestion.BatchResponse{Results: results}
	for _, res := range results {
		if res.Status == ingestion.StatusCreated {
			resp.Created++
		} else {
			resp.Existing++
		}
	}
	log.Info("batch ingested", "created", resp.Created, "existing", resp.Existing)
	status := http.StatusOK
	if resp.Created > 0 {
		status = http.StatusCreated
	}
	h.writeJSON(w, status, resp)
}

// Stats handles GET /api/v1/documents/stats.
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	n, err := h.store.Count(r.Context())
	if err != nil {
		h.logger.Error("counting documents failed", "error", err)
		h.writeAppError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]int64{"documents": n})
}

func (h *Handler) limit(body io.Reader, docs int) io.Reader {
	if h.maxText <= 0 {
		return body
	}
	return io.LimitReader(body, int64(docs)*(2*int64(h.maxText)+1024))
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

func (h *Handler) writeValidation(w http.ResponseWriter, err error) {
	var verr *validator.ValidationError
	if errors.As(err, &verr) {
		h.writeJSON(w, http.StatusBadRequest, map[string]any{
			"error":  "validation failed",
			"fields": verr.Fields,
		})
		return
	}
	h.writeError(w, http.StatusBadRequest, err.Error())
}

func (h *Handler) writeAppError(w http.ResponseWriter, err error) {
	status := apperrors.HTTPStatusCode(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		msg = "ingestion failed"
	}
	h.writeJSON(w, status, map[string]string{"error": msg, "code": apperrors.Code(err)})
}
