package fliphttp

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"flipmarket/internal/flip/checkout"
	"flipmarket/internal/flip/host"
	"flipmarket/internal/flip/session"
	"flipmarket/internal/flip/ws"
)

// Logger provides minimal logging required by the server.
type Logger interface {
	Infof(format string, args ...interface{})
	Errorf(format string, args ...interface{})
}

// PurchaseLister reads the purchases ledger.
type PurchaseLister interface {
	ListByViewer(ctx context.Context, viewerID string, limit int) ([]checkout.Event, error)
}

// Server handles HTTP endpoints for the flip module.
type Server struct {
	logger      Logger
	registry    *host.Registry
	hub         *ws.Hub
	purchases   PurchaseLister
	waitTimeout time.Duration
}

// NewServer constructs Server. purchases and hub may be nil.
func NewServer(logger Logger, registry *host.Registry, hub *ws.Hub, purchases PurchaseLister, waitTimeout time.Duration) *Server {
	if waitTimeout <= 0 {
		waitTimeout = 15 * time.Second
	}
	return &Server{
		logger:      logger,
		registry:    registry,
		hub:         hub,
		purchases:   purchases,
		waitTimeout: waitTimeout,
	}
}

// RegisterRoutes registers HTTP routes on mux.
func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/api/v1/items", s.handleItems)
	mux.HandleFunc("/api/v1/items/", s.handleItemSubroutes)
	mux.HandleFunc("/api/v1/purchases", s.handlePurchases)
	if s.hub != nil {
		mux.HandleFunc("/ws/sessions", s.hub.ServeWS)
	}
}

type catalogResponse struct {
	ViewerID string      `json:"viewer_id"`
	Currency string      `json:"currency"`
	Items    []host.Card `json:"items"`
}

func (s *Server) handleItems(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	viewerID, ok := resolveViewer(w, r, true)
	if !ok {
		return
	}
	h, err := s.registry.Host(viewerID)
	if err != nil {
		writeSessionError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, catalogResponse{
		ViewerID: viewerID,
		Currency: s.registry.Catalog().Currency(),
		Items:    h.Cards(),
	})
}

func (s *Server) handleItemSubroutes(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/api/v1/items/")
	path = strings.Trim(path, "/")
	if path == "" {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	parts := strings.Split(path, "/")
	if len(parts) != 2 {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	viewerID, ok := resolveViewer(w, r, false)
	if !ok {
		return
	}
	h, err := s.registry.Host(viewerID)
	if err != nil {
		writeSessionError(w, err)
		return
	}
	sess, err := h.Session(parts[0])
	if err != nil {
		writeSessionError(w, err)
		return
	}

	switch parts[1] {
	case "session":
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		writeJSON(w, http.StatusOK, sess.Snapshot())
	case "mode":
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		s.handleMode(w, r, sess)
	case "terms":
		switch r.Method {
		case http.MethodPost:
			s.respond(w, sess, sess.OpenTerms())
		case http.MethodDelete:
			s.respond(w, sess, sess.CloseTerms())
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
	case "consent":
		switch r.Method {
		case http.MethodPost:
			s.respond(w, sess, sess.GiveConsent())
		case http.MethodDelete:
			s.respond(w, sess, sess.RevokeConsent())
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
	case "flip":
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		s.handleStartFlip(w, r, sess)
	case "accept":
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		ev, err := sess.Accept(r.Context())
		s.respondPurchase(w, sess, ev, err)
	case "cancel":
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		s.respond(w, sess, sess.Cancel())
	case "buy":
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		ev, err := sess.BuyStandard(r.Context())
		s.respondPurchase(w, sess, ev, err)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

type modePayload struct {
	Mode string `json:"mode"`
}

func (p *modePayload) normalize() {
	p.Mode = strings.ToLower(strings.TrimSpace(p.Mode))
}

func (p modePayload) validate() string {
	switch p.Mode {
	case "flip", "standard":
		return ""
	case "":
		return "mode is required"
	default:
		return "invalid mode"
	}
}

func (s *Server) handleMode(w http.ResponseWriter, r *http.Request, sess *session.Session) {
	var payload modePayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	payload.normalize()
	if msg := payload.validate(); msg != "" {
		writeError(w, http.StatusBadRequest, msg)
		return
	}
	s.respond(w, sess, sess.SelectMode(payload.Mode))
}

func (s *Server) handleStartFlip(w http.ResponseWriter, r *http.Request, sess *session.Session) {
	if err := sess.StartFlip(); err != nil {
		writeSessionError(w, err)
		return
	}
	if !wantsWait(r) {
		writeJSON(w, http.StatusAccepted, sess.Snapshot())
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), s.waitTimeout)
	defer cancel()
	snap, err := sess.Await(ctx)
	if err != nil {
		// the flip keeps running; the client can poll or listen on the socket
		writeJSON(w, http.StatusAccepted, snap)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) respond(w http.ResponseWriter, sess *session.Session, err error) {
	if err != nil {
		writeSessionError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sess.Snapshot())
}

type purchaseResponse struct {
	Purchase checkout.Event   `json:"purchase"`
	Session  session.Snapshot `json:"session"`
}

func (s *Server) respondPurchase(w http.ResponseWriter, sess *session.Session, ev checkout.Event, err error) {
	if err != nil {
		if errors.Is(err, session.ErrCommitFailed) {
			s.logger.Errorf("commit %s for item %s failed: %v", ev.ID, ev.ItemID, err)
		}
		writeSessionError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, purchaseResponse{Purchase: ev, Session: sess.Snapshot()})
}

func (s *Server) handlePurchases(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	viewerID, ok := resolveViewer(w, r, false)
	if !ok {
		return
	}
	if s.purchases == nil {
		writeError(w, http.StatusServiceUnavailable, "purchases ledger is not configured")
		return
	}
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 || n > 500 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = n
	}
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()
	list, err := s.purchases.ListByViewer(ctx, viewerID, limit)
	if err != nil {
		s.logger.Errorf("list purchases for %s: %v", viewerID, err)
		writeError(w, http.StatusInternalServerError, "failed to list purchases")
		return
	}
	if list == nil {
		list = []checkout.Event{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"purchases": list})
}
