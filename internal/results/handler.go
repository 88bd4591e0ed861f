package results

import (
	"encoding/json"
	"errors"
	"net/http"
	"regexp"
	"strconv"

	"github.com/saveenergy/playertester/internal/logging"
	"github.com/saveenergy/playertester/pkg/types"
)

var validID = regexp.MustCompile(`^[0-9a-zA-Z-]{1,64}$`)

const maxListLimit = 500

type Handler struct {
	store *Store
}

func NewHandler(store *Store) *Handler {
	return &Handler{store: store}
}

type samplesResponse struct {
	RunID   string         `json:"run_id"`
	Samples []types.Sample `json:"samples"`
}

type listResponse struct {
	Runs []Run `json:"runs"`
}

func respondJSONError(w http.ResponseWriter, msg string, code int) {
	writeJSON(w, code, map[string]string{"error": msg})
}

func writeJSON(w http.ResponseWriter, code int, payload interface{}) {
	body, err := json.Marshal(payload)
	if err != nil {
		logging.Warn("results: marshal response failed", logging.F("error", err))
		code = http.StatusInternalServerError
		body = []byte(`{"error":"internal error"}` + "\n")
	}
	w.Header().Set("Content-Type", "application/json")
	if code == http.StatusOK {
		w.Header().Set("Cache-Control", "no-store")
	}
	w.WriteHeader(code)
	if _, err := w.Write(body); err != nil {
		logging.Warn("results: write response failed", logging.F("error", err))
	}
}

// List serves GET /api/v1/runs?limit=N.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 || n > maxListLimit {
			respondJSONError(w, "limit must be 1-500", http.StatusBadRequest)
			return
		}
		limit = n
	}

	runs, err := h.store.List(limit)
	if err != nil {
		logging.Warn("results: list failed", logging.F("error", err))
		msg, code := mapStoreError(err)
		respondJSONError(w, msg, code)
		return
	}
	if runs == nil {
		runs = []Run{}
	}
	writeJSON(w, http.StatusOK, listResponse{Runs: runs})
}

// Get serves GET /api/v1/runs/{id}.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if !validID.MatchString(id) {
		respondJSONError(w, "invalid run ID", http.StatusBadRequest)
		return
	}

	run, err := h.store.Get(id)
	if err != nil {
		msg, code := mapStoreError(err)
		respondJSONError(w, msg, code)
		return
	}
	if run == nil {
		respondJSONError(w, "run not found", http.StatusNotFound)
		return
	}

	writeJSON(w, http.StatusOK, run)
}

// Samples serves GET /api/v1/runs/{id}/samples.
func (h *Handler) Samples(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if !validID.MatchString(id) {
		respondJSONError(w, "invalid run ID", http.StatusBadRequest)
		return
	}

	run, err := h.store.Get(id)
	if err != nil {
		msg, code := mapStoreError(err)
		respondJSONError(w, msg, code)
		return
	}
	if run == nil {
		respondJSONError(w, "run not found", http.StatusNotFound)
		return
	}

	samples, err := h.store.Samples(id)
	if err != nil {
		msg, code := mapStoreError(err)
		respondJSONError(w, msg, code)
		return
	}
	if samples == nil {
		samples = []types.Sample{}
	}
	writeJSON(w, http.StatusOK, samplesResponse{RunID: id, Samples: samples})
}

func mapStoreError(err error) (string, int) {
	if errors.Is(err, ErrStoreRetryable) {
		return "store temporarily unavailable", http.StatusServiceUnavailable
	}
	return "internal error", http.StatusInternalServerError
}
