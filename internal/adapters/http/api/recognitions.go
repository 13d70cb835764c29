package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/okian/facesense/internal/adapters/mq/queue"
	service "github.com/okian/facesense/internal/app"
	"github.com/okian/facesense/internal/domain/model"
)

const maxSubmitBody = 1 << 20

// RecognitionsHandler accepts probes from edge devices.
type RecognitionsHandler struct {
	deps Dependencies
}

// NewRecognitionsHandler creates a new recognitions handler.
func NewRecognitionsHandler(deps Dependencies) *RecognitionsHandler {
	return &RecognitionsHandler{deps: deps}
}

type submitRequest struct {
	Embedding model.Embedding `json:"embedding"`
	Source    string          `json:"source"`
}

type submitResponse struct {
	Status  string `json:"status"`
	ProbeID string `json:"probe_id"`
}

// HandleSubmit handles POST /api/recognitions.
func (h *RecognitionsHandler) HandleSubmit(w http.ResponseWriter, r *http.Request) {
	var req submitRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxSubmitBody))
	if err := dec.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", fmt.Errorf("%w: %w", ErrBadRequest, err))
		return
	}
	if len(req.Embedding) == 0 {
		writeError(w, http.StatusBadRequest, "bad_request", fmt.Errorf("%w: missing embedding", ErrBadRequest))
		return
	}

	id, err := h.deps.SubmitEmbedding(r.Context(), req.Embedding, strings.TrimSpace(req.Source))
	switch {
	case err == nil:
		writeJSON(w, http.StatusAccepted, submitResponse{Status: "accepted", ProbeID: id})
	case errors.Is(err, queue.ErrFull):
		writeError(w, http.StatusTooManyRequests, "backpressure", ErrBackpressure)
	case errors.Is(err, service.ErrInvalidEmbedding):
		writeError(w, http.StatusBadRequest, "bad_request", err)
	case errors.Is(err, service.ErrNotStarted), errors.Is(err, queue.ErrClosed):
		writeError(w, http.StatusServiceUnavailable, "unavailable", err)
	default:
		writeError(w, http.StatusInternalServerError, "internal", err)
	}
}

type decisionView struct {
	ProbeID   string  `json:"probe_id"`
	Name      string  `json:"name"`
	Identity  string  `json:"identity"`
	Accuracy  int     `json:"accuracy"`
	Threshold int     `json:"threshold"`
	Quality   float64 `json:"quality"`
	Outcome   string  `json:"outcome"`
	Status    string  `json:"status,omitempty"`
	Recorded  bool    `json:"recorded"`
}

// HandleRecent handles GET /api/recognitions/recent.
func (h *RecognitionsHandler) HandleRecent(w http.ResponseWriter, _ *http.Request) {
	ds := h.deps.RecentDecisions()
	out := make([]decisionView, 0, len(ds))
	for _, d := range ds {
		out = append(out, decisionView{
			ProbeID:   d.ProbeID,
			Name:      d.Display,
			Identity:  d.Match.Identity,
			Accuracy:  d.Accuracy,
			Threshold: d.Threshold,
			Quality:   d.Match.Quality,
			Outcome:   d.Outcome,
			Status:    string(d.Status),
			Recorded:  d.Recorded,
		})
	}
	writeJSON(w, http.StatusOK, out)
}
