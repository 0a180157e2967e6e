package proxy

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/rs/zerolog"

	"namegofer/internal/recordnames"
)

// Lookuper resolves record names through the coalescer
type Lookuper interface {
	RequestNames(ctx context.Context, source recordnames.SourceID, records []recordnames.RecordID) (recordnames.Names, error)
	Stats() recordnames.Stats
}

// Handler serves record name lookups over plain HTTP
type Handler struct {
	lookuper Lookuper
	logger   zerolog.Logger
}

// NewHandler creates a new Handler
func NewHandler(lookuper Lookuper, logger zerolog.Logger) *Handler {
	return &Handler{
		lookuper: lookuper,
		logger:   logger.With().Str("component", "proxy").Logger(),
	}
}

// Register adds the handler's routes to mux
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /data-source/{id}/record-names/", h.handleRecordNames)
	mux.HandleFunc("GET /healthz", h.handleHealth)
}

// handleRecordNames answers with the builder API shape: a JSON object of
// record id to name. Ids without a record are left out.
func (h *Handler) handleRecordNames(w http.ResponseWriter, r *http.Request) {
	source, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || source <= 0 {
		h.writeError(w, http.StatusBadRequest, CodeRequestValidation, "invalid data source id")
		return
	}

	records, err := recordnames.ParseRecordIDs(r.URL.Query().Get("record_ids"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, CodeRequestValidation, err.Error())
		return
	}
	if len(records) == 0 {
		h.writeJSON(w, http.StatusOK, map[string]string{})
		return
	}

	names, err := h.lookuper.RequestNames(r.Context(), recordnames.SourceID(source), records)
	if err != nil {
		if r.Context().Err() != nil {
			// client went away, nobody to answer
			return
		}
		status, code := ClassifyError(err)
		event := h.logger.Debug()
		if status >= http.StatusInternalServerError {
			event = h.logger.Warn()
		}
		event.Err(err).
			Int64("source", source).
			Int("status", status).
			Msg("lookup failed")
		h.writeError(w, status, code, err.Error())
		return
	}
	h.writeJSON(w, http.StatusOK, names.Strings())
}

type healthResponse struct {
	Status string            `json:"status"`
	Stats  recordnames.Stats `json:"stats"`
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, healthResponse{
		Status: "ok",
		Stats:  h.lookuper.Stats(),
	})
}

// writeJSON writes v as a JSON response
func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to marshal response")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(data)
}

// writeError writes an error in the builder API shape
func (h *Handler) writeError(w http.ResponseWriter, status int, code, detail string) {
	h.writeJSON(w, status, errorBody{Error: code, Detail: detail})
}
