// Package api serves the REST endpoints used by scripts and the dashboard.
package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/agungkristd/session-switcher/logger"
	"github.com/agungkristd/session-switcher/session"
)

// maxImportBytes bounds the body of POST /api/import.
const maxImportBytes = 32 << 20

type SessionHandler struct {
	store session.Store
}

func NewSessionHandler(store session.Store) *SessionHandler {
	return &SessionHandler{store: store}
}

// Register adds the handler's routes to mux.
func (h *SessionHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/domains", h.HandleDomains)
	mux.HandleFunc("GET /api/domains/{domain}/sessions", h.HandleSessions)
	mux.HandleFunc("GET /api/export", h.HandleExport)
	mux.HandleFunc("POST /api/import", h.HandleImport)
}

func (h *SessionHandler) HandleDomains(w http.ResponseWriter, r *http.Request) {
	log := logger.NewRequestLogger()

	domains, err := h.store.Domains(r.Context())
	if err != nil {
		log.Error("failed to list domains", "error", err)
		http.Error(w, "Failed to list domains", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"domains": domains})
}

type sessionsResponse struct {
	Domain     string            `json:"domain"`
	Sessions   []session.Session `json:"sessions"`
	ActiveName string            `json:"active_name,omitempty"`
}

func (h *SessionHandler) HandleSessions(w http.ResponseWriter, r *http.Request) {
	log := logger.NewRequestLogger()

	domain := r.PathValue("domain")
	if domain == "" {
		http.Error(w, "Domain required", http.StatusBadRequest)
		return
	}

	rec, err := h.store.Load(r.Context(), domain)
	if err != nil {
		log.Error("failed to load sessions", "domain", domain, "error", err)
		http.Error(w, "Failed to load sessions", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, sessionsResponse{
		Domain:     domain,
		Sessions:   rec.Sessions,
		ActiveName: rec.ActiveSessionName,
	})
}

// HandleExport writes every stored domain in the browser extension's
// storage layout.
func (h *SessionHandler) HandleExport(w http.ResponseWriter, r *http.Request) {
	log := logger.NewRequestLogger()

	records, err := session.Export(r.Context(), h.store)
	if err != nil {
		log.Error("failed to export sessions", "error", err)
		http.Error(w, "Failed to export sessions", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Disposition", `attachment; filename="sessions.json"`)
	if err := session.EncodeLegacy(w, records); err != nil {
		log.Error("failed to write export", "error", err)
	}
}

func (h *SessionHandler) HandleImport(w http.ResponseWriter, r *http.Request) {
	log := logger.NewRequestLogger()

	records, err := session.DecodeLegacy(http.MaxBytesReader(w, r.Body, maxImportBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			http.Error(w, "Import too large", http.StatusRequestEntityTooLarge)
			return
		}
		http.Error(w, "Invalid import file", http.StatusBadRequest)
		return
	}

	domains, err := session.Import(r.Context(), h.store, records)
	if err != nil {
		log.Error("failed to import sessions", "error", err)
		http.Error(w, "Failed to import sessions", http.StatusInternalServerError)
		return
	}

	log.Info("sessions imported", "domains", len(domains))
	writeJSON(w, http.StatusOK, map[string]any{"imported": domains})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
