package host

import (
	"errors"
	"sync"
	"time"

	"flipmarket/internal/flip/catalog"
)

// ErrRegistryFull is returned when a new viewer arrives at capacity.
var ErrRegistryFull = errors.New("viewer capacity reached")

type entry struct {
	host     *Host
	lastSeen time.Time
}

// Registry keeps one host per viewer and forgets viewers that go idle.
type Registry struct {
	catalog  *catalog.Catalog
	deps     Deps
	maxHosts int
	now      func() time.Time

	mu    sync.Mutex
	hosts map[string]*entry
}

// NewRegistry constructs an empty registry holding at most maxHosts viewers.
// maxHosts <= 0 means no limit.
func NewRegistry(cat *catalog.Catalog, deps Deps, maxHosts int) *Registry {
	return &Registry{
		catalog:  cat,
		deps:     deps,
		maxHosts: maxHosts,
		now:      time.Now,
		hosts:    make(map[string]*entry),
	}
}

// Catalog returns the catalog every host renders.
func (r *Registry) Catalog() *catalog.Catalog { return r.catalog }

// Host returns the viewer's host, creating it on first use.
func (r *Registry) Host(viewerID string) (*Host, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.hosts[viewerID]
	if !ok {
		if r.maxHosts > 0 && len(r.hosts) >= r.maxHosts {
			return nil, ErrRegistryFull
		}
		e = &entry{host: New(viewerID, r.catalog, r.deps)}
		r.hosts[viewerID] = e
	}
	e.lastSeen = r.now()
	return e.host, nil
}

// Lookup returns an existing host without creating or touching it.
func (r *Registry) Lookup(viewerID string) (*Host, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.hosts[viewerID]
	if !ok {
		return nil, false
	}
	return e.host, true
}

// Len reports the number of live hosts.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.hosts)
}

// Sweep drops hosts idle for longer than ttl and returns their viewer ids.
// Hosts with a request still in flight are kept until it settles.
func (r *Registry) Sweep(now time.Time, ttl time.Duration) []string {
	r.mu.Lock()
	var evicted []*Host
	var ids []string
	for id, e := range r.hosts {
		if now.Sub(e.lastSeen) <= ttl || e.host.InFlight() {
			continue
		}
		delete(r.hosts, id)
		evicted = append(evicted, e.host)
		ids = append(ids, id)
	}
	r.mu.Unlock()

	for _, h := range evicted {
		h.Close()
	}
	return ids
}
