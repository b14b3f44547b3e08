package fliphttp

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"flipmarket/internal/flip/catalog"
	"flipmarket/internal/flip/host"
	"flipmarket/internal/flip/session"
)

// ViewerHeader carries the viewer id on every request and response.
const ViewerHeader = "X-Viewer-ID"

const maxViewerIDLen = 64

// resolveViewer reads the viewer id and echoes it back. Only the catalog
// listing may mint a new id; every other route needs one already issued.
func resolveViewer(w http.ResponseWriter, r *http.Request, mint bool) (string, bool) {
	id := strings.TrimSpace(r.Header.Get(ViewerHeader))
	if id == "" {
		if !mint {
			writeError(w, http.StatusBadRequest, ViewerHeader+" header is required")
			return "", false
		}
		id = uuid.NewString()
	}
	if len(id) > maxViewerIDLen {
		writeError(w, http.StatusBadRequest, "invalid "+ViewerHeader)
		return "", false
	}
	w.Header().Set(ViewerHeader, id)
	return id, true
}

func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// writeSessionError maps session and catalog errors to HTTP statuses.
func writeSessionError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, host.ErrRegistryFull):
		writeError(w, http.StatusServiceUnavailable, "too many active viewers, retry later")
	case errors.Is(err, catalog.ErrItemNotFound):
		writeError(w, http.StatusNotFound, "item not found")
	case errors.Is(err, session.ErrLocked):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, session.ErrConsentRequired):
		writeError(w, http.StatusPreconditionFailed, err.Error())
	case errors.Is(err, session.ErrInvalidOperation):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, session.ErrCommitFailed):
		writeError(w, http.StatusBadGateway, "checkout hand-off failed")
	default:
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func wantsWait(r *http.Request) bool {
	switch strings.ToLower(r.URL.Query().Get("wait")) {
	case "1", "true", "yes":
		return true
	}
	return false
}
