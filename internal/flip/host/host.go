package host

import (
	"fmt"

	"flipmarket/internal/flip/catalog"
	"flipmarket/internal/flip/fsm"
	"flipmarket/internal/flip/session"
)

// Deps are shared by every session a host creates.
type Deps struct {
	Pricer    session.Pricer
	Committer session.Committer
	// Listener, when set, receives every snapshot of every session of the host.
	Listener func(viewerID string, snap session.Snapshot)
}

// Host owns one independent flip session per catalog item for a single viewer.
type Host struct {
	viewerID string
	catalog  *catalog.Catalog
	sessions map[string]*session.Session
}

// New creates a host with a fresh session for every item.
func New(viewerID string, cat *catalog.Catalog, deps Deps) *Host {
	h := &Host{
		viewerID: viewerID,
		catalog:  cat,
		sessions: make(map[string]*session.Session, cat.Len()),
	}
	var listener session.Listener
	if deps.Listener != nil {
		listener = func(snap session.Snapshot) { deps.Listener(viewerID, snap) }
	}
	for _, it := range cat.Items() {
		h.sessions[it.ID] = session.New(it, session.Config{
			ViewerID:  viewerID,
			Currency:  cat.Currency(),
			Pricer:    deps.Pricer,
			Committer: deps.Committer,
			Listener:  listener,
		})
	}
	return h
}

// ViewerID identifies the viewer this host renders for.
func (h *Host) ViewerID() string { return h.viewerID }

// Session returns the session of an item.
func (h *Host) Session(itemID string) (*session.Session, error) {
	s, ok := h.sessions[itemID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", catalog.ErrItemNotFound, itemID)
	}
	return s, nil
}

// Card pairs an item with its session state.
type Card struct {
	Item    catalog.Item     `json:"item"`
	Session session.Snapshot `json:"session"`
}

// Cards renders every item in catalog order.
func (h *Host) Cards() []Card {
	items := h.catalog.Items()
	cards := make([]Card, 0, len(items))
	for _, it := range items {
		cards = append(cards, Card{Item: it, Session: h.sessions[it.ID].Snapshot()})
	}
	return cards
}

// InFlight reports whether any session is waiting on the pricing service.
func (h *Host) InFlight() bool {
	for _, s := range h.sessions {
		if s.Snapshot().Request == fsm.RequestPending {
			return true
		}
	}
	return false
}

// Close tears down every session.
func (h *Host) Close() {
	for _, s := range h.sessions {
		s.Close()
	}
}
