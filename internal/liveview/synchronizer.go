package liveview

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/xaenox/shieldbot/internal/metrics"
	"github.com/xaenox/shieldbot/internal/models"
	"github.com/xaenox/shieldbot/internal/storage"
)

const reloadTimeout = 10 * time.Second

type viewKey struct {
	kind  Kind
	phone string
}

// Synchronizer opens live views. At most one view is active per kind and
// phone number; opening another retires the previous one.
type Synchronizer struct {
	store   storage.MessageStore
	feed    storage.ChangeFeed
	metrics *metrics.Metrics
	logger  *zap.Logger

	mu    sync.Mutex
	views map[viewKey]*View
}

func NewSynchronizer(store storage.MessageStore, feed storage.ChangeFeed, m *metrics.Metrics, logger *zap.Logger) *Synchronizer {
	return &Synchronizer{
		store:   store,
		feed:    feed,
		metrics: m,
		logger:  logger.Named("liveview"),
		views:   make(map[viewKey]*View),
	}
}

// View is a live list of one receiver's messages. It owns its subscription
// and stops applying events once closed.
type View struct {
	kind     Kind
	phone    string
	pred     Predicate
	sub      *storage.Subscription
	onChange func(State)
	release  func(*View)
	reload   func() (State, error)
	logger   *zap.Logger

	mu    sync.RWMutex
	state State

	done      chan struct{}
	closeOnce sync.Once
}

// Open subscribes a view for phone and loads its current members. onChange,
// if set, is called from the view's goroutine with every new state and must
// not call Close.
func (s *Synchronizer) Open(ctx context.Context, kind Kind, phone string, onChange func(State)) (*View, error) {
	if phone == "" {
		return nil, fmt.Errorf("opening %s view: phone number is required", kind)
	}

	key := viewKey{kind: kind, phone: phone}
	s.mu.Lock()
	prior := s.views[key]
	s.mu.Unlock()
	if prior != nil {
		s.logger.Debug("Retiring previous view", zap.String("kind", string(kind)), zap.String("phone", phone))
		prior.Close()
	}

	// Subscribe before loading so nothing committed in between is missed.
	sub, err := s.feed.Subscribe(ctx, phone)
	if err != nil {
		return nil, fmt.Errorf("opening %s view: %w", kind, err)
	}

	state, err := s.load(ctx, kind, phone)
	if err != nil {
		sub.Close()
		return nil, err
	}

	v := &View{
		kind:     kind,
		phone:    phone,
		pred:     kind.Predicate(),
		sub:      sub,
		onChange: onChange,
		release:  s.release,
		logger:   s.logger,
		state:    state,
		done:     make(chan struct{}),
	}
	v.reload = func() (State, error) {
		ctx, cancel := context.WithTimeout(context.Background(), reloadTimeout)
		defer cancel()
		return s.load(ctx, kind, phone)
	}

	s.mu.Lock()
	if raced := s.views[key]; raced != nil {
		defer raced.Close()
	}
	s.views[key] = v
	s.mu.Unlock()

	s.metrics.ViewOpened(string(kind))
	go v.run(s.metrics)
	return v, nil
}

func (s *Synchronizer) load(ctx context.Context, kind Kind, phone string) (State, error) {
	members, err := s.store.ListMessages(ctx, storage.MessageFilter{ReceiverNumber: phone, RiskLevel: kind.Level()})
	if err != nil {
		return State{}, fmt.Errorf("loading %s view: %w", kind, err)
	}
	pending, err := s.store.ListMessages(ctx, storage.MessageFilter{ReceiverNumber: phone, RiskLevel: models.RiskPending})
	if err != nil {
		return State{}, fmt.Errorf("loading %s view: %w", kind, err)
	}

	state := State{Messages: members, Analyzing: make(map[string]struct{}, len(pending))}
	for _, m := range pending {
		state.Analyzing[m.ID] = struct{}{}
	}
	return state, nil
}

func (s *Synchronizer) release(v *View) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := viewKey{kind: v.kind, phone: v.phone}
	if s.views[key] == v {
		delete(s.views, key)
	}
}

// Active returns the open view for kind and phone, if any.
func (s *Synchronizer) Active(kind Kind, phone string) (*View, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	v, ok := s.views[viewKey{kind: kind, phone: phone}]
	return v, ok
}

// CloseAll retires every open view.
func (s *Synchronizer) CloseAll() {
	s.mu.Lock()
	views := make([]*View, 0, len(s.views))
	for _, v := range s.views {
		views = append(views, v)
	}
	s.mu.Unlock()

	for _, v := range views {
		v.Close()
	}
}

func (v *View) run(m *metrics.Metrics) {
	defer func() {
		v.release(v)
		m.ViewClosed(string(v.kind))
		close(v.done)
	}()

	for ev := range v.sub.C {
		var fresh *State
		if ev.Type == storage.EventResync {
			state, err := v.reload()
			if err != nil {
				v.logger.Warn("Failed to reload view after resync", zap.String("kind", string(v.kind)), zap.String("phone", v.phone), zap.Error(err))
				continue
			}
			fresh = &state
		}

		v.mu.Lock()
		if fresh != nil {
			v.state = *fresh
		} else {
			v.state = Reconcile(v.state, ev, v.pred)
		}
		snapshot := v.state.clone()
		v.mu.Unlock()

		if v.onChange != nil {
			v.onChange(snapshot)
		}
	}
}

// Snapshot returns the current state.
func (v *View) Snapshot() State {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.state.clone()
}

// Close unsubscribes and waits for the view goroutine to exit.
func (v *View) Close() {
	v.closeOnce.Do(v.sub.Close)
	<-v.done
}

// Done is closed once the view has stopped.
func (v *View) Done() <-chan struct{} {
	return v.done
}

func (v *View) Kind() Kind {
	return v.kind
}

func (v *View) Phone() string {
	return v.phone
}
