// Package realtime fans out record change notifications to subscribers of a vault.
package realtime

import (
	"context"
	"sync"

	"github.com/mirrorx/vault/internal/models"
	"go.uber.org/zap"
)

const defaultBuffer = 16

// Subscription receives the change events of one vault, optionally
// restricted to a set of tables.
type Subscription struct {
	hub     *Hub
	vaultID string
	tables  map[string]bool
	ch      chan models.ChangeEvent
	once    sync.Once
}

// Events returns the channel events are delivered on. It is closed by Close.
func (s *Subscription) Events() <-chan models.ChangeEvent {
	return s.ch
}

// Close detaches the subscription from the hub and closes its channel.
func (s *Subscription) Close() {
	s.once.Do(func() {
		s.hub.remove(s)
	})
}

func (s *Subscription) wants(table string) bool {
	return len(s.tables) == 0 || s.tables[table]
}

// Hub is an in-process publish/subscribe switch keyed by vault id.
type Hub struct {
	mu   sync.RWMutex
	log  *zap.Logger
	subs map[string]map[*Subscription]struct{}
}

// NewHub creates an empty hub.
func NewHub(log *zap.Logger) *Hub {
	return &Hub{
		log:  log.With(zap.String("component", "realtime-hub")),
		subs: make(map[string]map[*Subscription]struct{}),
	}
}

// Subscribe registers interest in a vault's changes. With no tables every
// table of the vault is delivered.
func (h *Hub) Subscribe(vaultID string, tables ...string) *Subscription {
	s := &Subscription{
		hub:     h,
		vaultID: vaultID,
		tables:  make(map[string]bool, len(tables)),
		ch:      make(chan models.ChangeEvent, defaultBuffer),
	}
	for _, t := range tables {
		if t != "" {
			s.tables[t] = true
		}
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.subs[vaultID]
	if !ok {
		set = make(map[*Subscription]struct{})
		h.subs[vaultID] = set
	}
	set[s] = struct{}{}
	h.log.Debug("subscribed", zap.String("vault_id", vaultID), zap.Strings("tables", tables))
	return s
}

// Listen calls fn for every change of table in the vault until the returned
// unsubscribe function is called.
func (h *Hub) Listen(vaultID, table string, fn func(models.ChangeEvent)) (unsubscribe func()) {
	sub := h.Subscribe(vaultID, table)
	go func() {
		for ev := range sub.Events() {
			fn(ev)
		}
	}()
	return sub.Close
}

// Broadcast delivers ev to matching subscribers without blocking; a
// subscriber whose buffer is full misses the event.
func (h *Hub) Broadcast(ev models.ChangeEvent) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for s := range h.subs[ev.VaultID] {
		if !s.wants(ev.Table) {
			continue
		}
		select {
		case s.ch <- ev:
		default:
			h.log.Warn("dropping change event for slow subscriber",
				zap.String("vault_id", ev.VaultID), zap.String("table", ev.Table))
		}
	}
}

// Publish implements the service publisher interface for single-instance deployments.
func (h *Hub) Publish(_ context.Context, ev models.ChangeEvent) error {
	h.Broadcast(ev)
	return nil
}

// Subscribers returns the number of live subscriptions on a vault.
func (h *Hub) Subscribers(vaultID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[vaultID])
}

func (h *Hub) remove(s *Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if set, ok := h.subs[s.vaultID]; ok {
		delete(set, s)
		if len(set) == 0 {
			delete(h.subs, s.vaultID)
		}
	}
	close(s.ch)
}
