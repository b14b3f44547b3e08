package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/shopspring/decimal"

	"flipmarket/internal/flip/catalog"
	"flipmarket/internal/flip/checkout"
	"flipmarket/internal/flip/fsm"
	"flipmarket/internal/flip/oracle"
)

// ErrConsentRequired is returned when a flip is started without consent.
var ErrConsentRequired = errors.New("consent is required before flipping")

// ErrLocked is returned when a trigger would change a locked session.
var ErrLocked = errors.New("session is locked by an outstanding flip")

// ErrInvalidOperation is returned for triggers that do not apply in the current state.
var ErrInvalidOperation = errors.New("invalid operation for current state")

// ErrCommitFailed wraps failures of the checkout hand-off. The session has
// already reset when it is returned.
var ErrCommitFailed = errors.New("commit hand-off failed")

// Pricer resolves a flip for an item at its base price.
type Pricer interface {
	RequestOutcome(ctx context.Context, itemID string, basePrice decimal.Decimal) (oracle.Outcome, error)
}

// Committer receives committed purchases.
type Committer interface {
	Commit(ctx context.Context, ev checkout.Event) error
}

// Listener observes every accepted transition.
type Listener func(Snapshot)

// Config wires a session to its collaborators.
type Config struct {
	ViewerID  string
	Currency  string
	Pricer    Pricer
	Committer Committer
	Listener  Listener
	// Now and NewID are overridable for tests.
	Now   func() time.Time
	NewID func() string
}

// Snapshot is a copy of the observable session state.
type Snapshot struct {
	ItemID       string          `json:"item_id"`
	ListedPrice  decimal.Decimal `json:"listed_price"`
	Currency     string          `json:"currency"`
	Mode         string          `json:"mode"`
	Locked       bool            `json:"locked"`
	Consent      bool            `json:"consent"`
	TermsShown   bool            `json:"terms_shown"`
	Request      string          `json:"request"`
	Outcome      *oracle.Outcome `json:"outcome,omitempty"`
	ErrorMessage string          `json:"error_message,omitempty"`
	ErrorReason  string          `json:"error_reason,omitempty"`
	Version      uint64          `json:"version"`
}

type state struct {
	mode         string
	consent      bool
	termsShown   bool
	request      string
	outcome      *oracle.Outcome
	errorMessage string
	errorReason  string
}

func initialState() state {
	return state{mode: fsm.ModeStandard, request: fsm.RequestIdle}
}

// Session is the flip state machine for one item shown to one viewer.
// Triggers run to completion under mu; the pricing call runs on its own
// goroutine and is applied as a later transition.
type Session struct {
	item      catalog.Item
	viewerID  string
	currency  string
	pricer    Pricer
	committer Committer
	listener  Listener
	now       func() time.Time
	newID     func() string

	ctx    context.Context
	cancel context.CancelFunc

	mu         sync.Mutex
	st         state
	version    uint64
	generation uint64
	inflight   chan struct{}
}

// New creates a session in the initial state.
func New(item catalog.Item, cfg Config) *Session {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.NewID == nil {
		cfg.NewID = func() string { return ulid.Make().String() }
	}
	if cfg.Currency == "" {
		cfg.Currency = catalog.DefaultCurrency
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Session{
		item:      item,
		viewerID:  cfg.ViewerID,
		currency:  cfg.Currency,
		pricer:    cfg.Pricer,
		committer: cfg.Committer,
		listener:  cfg.Listener,
		now:       cfg.Now,
		newID:     cfg.NewID,
		ctx:       ctx,
		cancel:    cancel,
		st:        initialState(),
	}
}

// Item returns the item this session prices.
func (s *Session) Item() catalog.Item { return s.item }

// Snapshot returns the current state.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *Session) snapshotLocked() Snapshot {
	snap := Snapshot{
		ItemID:       s.item.ID,
		ListedPrice:  s.item.Price,
		Currency:     s.currency,
		Mode:         s.st.mode,
		Locked:       fsm.Locked(s.st.request),
		Consent:      s.st.consent,
		TermsShown:   s.st.termsShown,
		Request:      s.st.request,
		ErrorMessage: s.st.errorMessage,
		ErrorReason:  s.st.errorReason,
		Version:      s.version,
	}
	if s.st.outcome != nil {
		out := *s.st.outcome
		snap.Outcome = &out
	}
	return snap
}

// update runs fn under the lock and, when fn reports a change, bumps the
// version and notifies the listener outside the lock.
func (s *Session) update(fn func(st *state) (bool, error)) error {
	s.mu.Lock()
	changed, err := fn(&s.st)
	if err != nil || !changed {
		s.mu.Unlock()
		return err
	}
	s.version++
	snap := s.snapshotLocked()
	s.mu.Unlock()
	s.notify(snap)
	return nil
}

func (s *Session) notify(snap Snapshot) {
	if s.listener != nil {
		s.listener(snap)
	}
}

// SelectFlipMode switches the session into flip mode.
func (s *Session) SelectFlipMode() error {
	return s.update(func(st *state) (bool, error) {
		if fsm.Locked(st.request) {
			return false, ErrLocked
		}
		if st.mode == fsm.ModeFlip {
			return false, nil
		}
		st.mode = fsm.ModeFlip
		return true, nil
	})
}

// SelectStandardMode leaves flip mode and forgets consent.
func (s *Session) SelectStandardMode() error {
	return s.update(func(st *state) (bool, error) {
		if fsm.Locked(st.request) {
			return false, ErrLocked
		}
		if st.mode == fsm.ModeStandard {
			return false, nil
		}
		*st = initialState()
		return true, nil
	})
}

// SelectMode dispatches to SelectFlipMode or SelectStandardMode.
func (s *Session) SelectMode(mode string) error {
	switch mode {
	case fsm.ModeFlip:
		return s.SelectFlipMode()
	case fsm.ModeStandard:
		return s.SelectStandardMode()
	default:
		return fmt.Errorf("%w: unknown mode %q", ErrInvalidOperation, mode)
	}
}

// OpenTerms shows the flip terms.
func (s *Session) OpenTerms() error {
	return s.update(func(st *state) (bool, error) {
		if fsm.Locked(st.request) {
			return false, ErrLocked
		}
		if st.mode != fsm.ModeFlip {
			return false, ErrInvalidOperation
		}
		if st.termsShown {
			return false, nil
		}
		st.termsShown = true
		return true, nil
	})
}

// CloseTerms hides the terms without starting a flip. Consent is kept.
func (s *Session) CloseTerms() error {
	return s.update(func(st *state) (bool, error) {
		if !st.termsShown {
			return false, nil
		}
		st.termsShown = false
		return true, nil
	})
}

// GiveConsent records informed consent. Terms must be shown.
func (s *Session) GiveConsent() error {
	return s.setConsent(true)
}

// RevokeConsent withdraws consent while the terms are shown.
func (s *Session) RevokeConsent() error {
	return s.setConsent(false)
}

func (s *Session) setConsent(v bool) error {
	return s.update(func(st *state) (bool, error) {
		if fsm.Locked(st.request) {
			return false, ErrLocked
		}
		if !st.termsShown {
			return false, ErrInvalidOperation
		}
		if st.consent == v {
			return false, nil
		}
		st.consent = v
		return true, nil
	})
}

// StartFlip locks the session and issues the single pricing request.
// It returns as soon as the request is in flight.
func (s *Session) StartFlip() error {
	s.mu.Lock()
	switch {
	case fsm.Locked(s.st.request):
		s.mu.Unlock()
		return ErrLocked
	case s.st.mode != fsm.ModeFlip:
		s.mu.Unlock()
		return ErrInvalidOperation
	case !s.st.consent:
		s.mu.Unlock()
		return ErrConsentRequired
	case !s.st.termsShown:
		s.mu.Unlock()
		return ErrInvalidOperation
	case s.pricer == nil:
		s.mu.Unlock()
		return fmt.Errorf("%w: no pricing service configured", ErrInvalidOperation)
	}
	if err := fsm.Validate(s.st.request, fsm.RequestPending); err != nil {
		s.mu.Unlock()
		return fmt.Errorf("%w: %v", ErrInvalidOperation, err)
	}
	s.st.request = fsm.RequestPending
	s.st.termsShown = false
	s.generation++
	gen := s.generation
	done := make(chan struct{})
	s.inflight = done
	s.version++
	snap := s.snapshotLocked()
	s.mu.Unlock()

	s.notify(snap)
	go s.resolve(gen, done)
	return nil
}

func (s *Session) resolve(gen uint64, done chan struct{}) {
	defer close(done)
	out, err := s.pricer.RequestOutcome(s.ctx, s.item.ID, s.item.Price)
	s.complete(gen, out, err)
}

// complete applies a pricing result. Results for a superseded generation
// are dropped.
func (s *Session) complete(gen uint64, out oracle.Outcome, err error) {
	s.mu.Lock()
	if gen != s.generation || s.st.request != fsm.RequestPending {
		s.mu.Unlock()
		return
	}
	if err != nil {
		s.st.request = fsm.RequestFailed
		s.st.outcome = nil
		s.st.errorMessage = "flip failed: " + err.Error()
		var se *oracle.ServiceError
		if errors.As(err, &se) {
			s.st.errorReason = se.Reason
		} else {
			s.st.errorReason = oracle.ReasonNetwork
		}
	} else {
		s.st.request = fsm.RequestResolved
		s.st.outcome = &out
		s.st.errorMessage = ""
		s.st.errorReason = ""
	}
	s.version++
	snap := s.snapshotLocked()
	s.mu.Unlock()
	s.notify(snap)
}

// Await blocks until the outstanding request, if any, leaves Pending.
func (s *Session) Await(ctx context.Context) (Snapshot, error) {
	s.mu.Lock()
	done := s.inflight
	pending := s.st.request == fsm.RequestPending
	s.mu.Unlock()
	if pending && done != nil {
		select {
		case <-done:
		case <-ctx.Done():
			return s.Snapshot(), ctx.Err()
		}
	}
	return s.Snapshot(), nil
}

// Accept commits a resolved flip at its final price and resets the session.
func (s *Session) Accept(ctx context.Context) (checkout.Event, error) {
	var ev checkout.Event
	err := s.update(func(st *state) (bool, error) {
		if st.request != fsm.RequestResolved || st.outcome == nil {
			return false, ErrInvalidOperation
		}
		ev = s.newEvent(checkout.PathFlip, st.outcome.Kind, st.outcome.FinalPrice)
		s.resetLocked()
		return true, nil
	})
	if err != nil {
		return checkout.Event{}, err
	}
	return ev, s.commit(ctx, ev)
}

// Cancel discards a resolved or failed flip and resets the session.
func (s *Session) Cancel() error {
	return s.update(func(st *state) (bool, error) {
		if !fsm.Terminal(st.request) {
			return false, ErrInvalidOperation
		}
		s.resetLocked()
		return true, nil
	})
}

// BuyStandard commits a purchase at the listed price. Session state is unchanged.
func (s *Session) BuyStandard(ctx context.Context) (checkout.Event, error) {
	s.mu.Lock()
	switch {
	case fsm.Locked(s.st.request):
		s.mu.Unlock()
		return checkout.Event{}, ErrLocked
	case s.st.mode != fsm.ModeStandard:
		s.mu.Unlock()
		return checkout.Event{}, ErrInvalidOperation
	}
	ev := s.newEvent(checkout.PathStandard, "", s.item.Price)
	s.mu.Unlock()
	return ev, s.commit(ctx, ev)
}

// Close aborts any in-flight pricing call. The session is unusable afterwards.
func (s *Session) Close() {
	s.cancel()
}

func (s *Session) resetLocked() {
	if err := fsm.Validate(s.st.request, fsm.RequestIdle); err != nil {
		return
	}
	s.st = initialState()
	s.inflight = nil
}

func (s *Session) newEvent(path, kind string, price decimal.Decimal) checkout.Event {
	return checkout.Event{
		ID:          s.newID(),
		ViewerID:    s.viewerID,
		ItemID:      s.item.ID,
		Title:       s.item.Title,
		Path:        path,
		Outcome:     kind,
		ListedPrice: s.item.Price,
		FinalPrice:  price,
		Currency:    s.currency,
		CommittedAt: s.now().UTC(),
	}
}

// commitTimeout bounds the checkout hand-off. The hand-off runs after the
// session has reset, so it is detached from the caller's cancellation.
const commitTimeout = 10 * time.Second

func (s *Session) commit(ctx context.Context, ev checkout.Event) error {
	if s.committer == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), commitTimeout)
	defer cancel()
	if err := s.committer.Commit(ctx, ev); err != nil {
		return fmt.Errorf("%w: %v", ErrCommitFailed, err)
	}
	return nil
}
