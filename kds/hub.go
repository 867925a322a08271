package kds

import (
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/yeremiapane/order-tracker/models"
	"github.com/yeremiapane/order-tracker/utils"
)

// EventSink receives every event published on this instance. Forward must
// return quickly; see AsyncSink.
type EventSink interface {
	Forward(e Event)
}

// DeliveryObserver is told about each per-session send and session count
// changes.
type DeliveryObserver interface {
	ObserveDelivery(ok bool)
	ObserveSessions(n int)
}

type pendingPrompt struct {
	gen   uint64
	timer *time.Timer
}

// Hub fans events out to subscribed sessions. A session may follow many
// orders and an order may have many sessions. Wildcard sessions receive
// every order.
type Hub struct {
	mu        sync.RWMutex
	sessions  map[string]Session
	subs      map[string]map[string]struct{} // order id -> session ids
	bySession map[string]map[string]struct{} // session id -> order ids
	wildcard  map[string]struct{}
	sinks     []EventSink
	observer  DeliveryObserver

	reviewDelay time.Duration
	reviewGate  func(orderID string) bool

	promptMu  sync.Mutex
	prompts   map[string]*pendingPrompt
	promptGen uint64
}

type HubOption func(*Hub)

// WithReviewDelay sets how long after delivery the review prompt goes out.
func WithReviewDelay(d time.Duration) HubOption {
	return func(h *Hub) { h.reviewDelay = d }
}

// WithReviewGate installs a check run right before a prompt is sent. A false
// result drops the prompt.
func WithReviewGate(gate func(orderID string) bool) HubOption {
	return func(h *Hub) { h.reviewGate = gate }
}

func WithObserver(o DeliveryObserver) HubOption {
	return func(h *Hub) { h.observer = o }
}

func WithSink(s EventSink) HubOption {
	return func(h *Hub) { h.sinks = append(h.sinks, s) }
}

func NewHub(opts ...HubOption) *Hub {
	h := &Hub{
		sessions:    make(map[string]Session),
		subs:        make(map[string]map[string]struct{}),
		bySession:   make(map[string]map[string]struct{}),
		wildcard:    make(map[string]struct{}),
		reviewDelay: 2 * time.Minute,
		prompts:     make(map[string]*pendingPrompt),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// AddSink registers a sink after construction.
func (h *Hub) AddSink(s EventSink) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.sinks = append(h.sinks, s)
}

func (h *Hub) Register(s Session) {
	h.mu.Lock()
	h.sessions[s.ID()] = s
	n := len(h.sessions)
	h.mu.Unlock()

	utils.InfoLogger.WithField("session_id", s.ID()).Debug("session registered")
	if h.observer != nil {
		h.observer.ObserveSessions(n)
	}
}

// Unregister drops every subscription the session holds and closes it.
func (h *Hub) Unregister(sessionID string) {
	h.mu.Lock()
	s, ok := h.sessions[sessionID]
	if !ok {
		h.mu.Unlock()
		return
	}
	for orderID := range h.bySession[sessionID] {
		h.removeSub(orderID, sessionID)
	}
	delete(h.bySession, sessionID)
	delete(h.wildcard, sessionID)
	delete(h.sessions, sessionID)
	n := len(h.sessions)
	h.mu.Unlock()

	s.Close()
	utils.InfoLogger.WithField("session_id", sessionID).Debug("session unregistered")
	if h.observer != nil {
		h.observer.ObserveSessions(n)
	}
}

func (h *Hub) Subscribe(orderID, sessionID string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.sessions[sessionID]; !ok {
		return fmt.Errorf("subscribe %s: unknown session %s", orderID, sessionID)
	}
	if h.subs[orderID] == nil {
		h.subs[orderID] = make(map[string]struct{})
	}
	h.subs[orderID][sessionID] = struct{}{}
	if h.bySession[sessionID] == nil {
		h.bySession[sessionID] = make(map[string]struct{})
	}
	h.bySession[sessionID][orderID] = struct{}{}
	return nil
}

func (h *Hub) Unsubscribe(orderID, sessionID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeSub(orderID, sessionID)
	if orders := h.bySession[sessionID]; orders != nil {
		delete(orders, orderID)
		if len(orders) == 0 {
			delete(h.bySession, sessionID)
		}
	}
}

// removeSub requires h.mu.
func (h *Hub) removeSub(orderID, sessionID string) {
	sessions := h.subs[orderID]
	if sessions == nil {
		return
	}
	delete(sessions, sessionID)
	if len(sessions) == 0 {
		delete(h.subs, orderID)
	}
}

// SubscribeAll makes the session receive events for every order.
func (h *Hub) SubscribeAll(sessionID string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.sessions[sessionID]; !ok {
		return fmt.Errorf("subscribe all: unknown session %s", sessionID)
	}
	h.wildcard[sessionID] = struct{}{}
	return nil
}

func (h *Hub) SessionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions)
}

// Subscribers counts the sessions following orderID directly.
func (h *Hub) Subscribers(orderID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[orderID])
}

// SendTo delivers e to one session only. Used to hand a fresh subscriber the
// current snapshot.
func (h *Hub) SendTo(sessionID string, e Event) error {
	h.mu.RLock()
	s, ok := h.sessions[sessionID]
	h.mu.RUnlock()
	if !ok {
		return fmt.Errorf("send: unknown session %s", sessionID)
	}
	msg, err := Encode(e)
	if err != nil {
		return err
	}
	err = s.Send(msg)
	if h.observer != nil {
		h.observer.ObserveDelivery(err == nil)
	}
	return err
}

// Publish fans e out to local sessions and hands it to every sink. It never
// blocks on delivery and never fails; send errors are logged and dropped.
func (h *Hub) Publish(e Event) {
	h.Deliver(e)

	h.mu.RLock()
	sinks := append([]EventSink(nil), h.sinks...)
	h.mu.RUnlock()
	for _, s := range sinks {
		s.Forward(e)
	}
}

// Deliver fans e out to local sessions only. Events relayed from other
// instances come in here so they are not forwarded again.
func (h *Hub) Deliver(e Event) {
	if u, ok := e.(StatusUpdate); ok {
		h.trackReview(u)
	}
	h.fanout(e)
}

func (h *Hub) fanout(e Event) {
	orderID := OrderOf(e)
	msg, err := Encode(e)
	if err != nil {
		utils.ErrorLogger.WithField("order_id", orderID).WithError(err).Error("failed to encode event")
		return
	}

	h.mu.RLock()
	targets := make([]Session, 0, len(h.subs[orderID])+len(h.wildcard))
	seen := make(map[string]struct{}, cap(targets))
	for id := range h.subs[orderID] {
		if s, ok := h.sessions[id]; ok {
			targets = append(targets, s)
			seen[id] = struct{}{}
		}
	}
	// review prompts are for the guests following the order, not kitchen screens
	if _, prompt := e.(ReviewPrompt); !prompt {
		for id := range h.wildcard {
			if _, dup := seen[id]; dup {
				continue
			}
			if s, ok := h.sessions[id]; ok {
				targets = append(targets, s)
			}
		}
	}
	h.mu.RUnlock()

	failed := 0
	for _, s := range targets {
		err := s.Send(msg)
		if err != nil {
			failed++
			utils.ErrorLogger.WithFields(logrus.Fields{
				"order_id":   orderID,
				"session_id": s.ID(),
				"event":      e.Kind(),
			}).WithError(err).Warn("dropped event for session")
		}
		if h.observer != nil {
			h.observer.ObserveDelivery(err == nil)
		}
	}

	utils.InfoLogger.WithFields(logrus.Fields{
		"order_id":   orderID,
		"event":      e.Kind(),
		"recipients": len(targets) - failed,
		"failed":     failed,
	}).Debug("event fanned out")
}

func (h *Hub) trackReview(u StatusUpdate) {
	if u.Status != models.StatusDelivered {
		h.CancelReviewPrompt(u.OrderID)
		return
	}

	deliveredAt := time.Now().UTC()
	if n := len(u.Timeline); n > 0 {
		deliveredAt = u.Timeline[n-1].UpdatedAt
	}

	h.promptMu.Lock()
	defer h.promptMu.Unlock()
	if p, ok := h.prompts[u.OrderID]; ok {
		p.timer.Stop()
	}
	h.promptGen++
	gen := h.promptGen
	orderID := u.OrderID
	h.prompts[orderID] = &pendingPrompt{
		gen: gen,
		timer: time.AfterFunc(h.reviewDelay, func() {
			h.firePrompt(orderID, gen, deliveredAt)
		}),
	}
}

// CancelReviewPrompt drops a scheduled prompt. It is safe to call when none
// is pending.
func (h *Hub) CancelReviewPrompt(orderID string) {
	h.promptMu.Lock()
	defer h.promptMu.Unlock()
	if p, ok := h.prompts[orderID]; ok {
		p.timer.Stop()
		delete(h.prompts, orderID)
	}
}

// PendingPrompts counts scheduled review prompts.
func (h *Hub) PendingPrompts() int {
	h.promptMu.Lock()
	defer h.promptMu.Unlock()
	return len(h.prompts)
}

// firePrompt runs on the timer goroutine. A timer that was cancelled or
// replaced after it already started finds a different generation and exits.
func (h *Hub) firePrompt(orderID string, gen uint64, deliveredAt time.Time) {
	h.promptMu.Lock()
	p, ok := h.prompts[orderID]
	if !ok || p.gen != gen {
		h.promptMu.Unlock()
		return
	}
	delete(h.prompts, orderID)
	h.promptMu.Unlock()

	if h.reviewGate != nil && !h.reviewGate(orderID) {
		utils.InfoLogger.WithField("order_id", orderID).Info("review prompt skipped by gate")
		return
	}
	h.fanout(ReviewPrompt{OrderID: orderID, DeliveredAt: deliveredAt})
}

// Close cancels pending prompts and closes every session.
func (h *Hub) Close() {
	h.promptMu.Lock()
	for id, p := range h.prompts {
		p.timer.Stop()
		delete(h.prompts, id)
	}
	h.promptMu.Unlock()

	h.mu.Lock()
	sessions := h.sessions
	h.sessions = make(map[string]Session)
	h.subs = make(map[string]map[string]struct{})
	h.bySession = make(map[string]map[string]struct{})
	h.wildcard = make(map[string]struct{})
	h.mu.Unlock()

	for _, s := range sessions {
		s.Close()
	}
}
