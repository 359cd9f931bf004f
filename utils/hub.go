package utils

import (
	"context"
	"sync"

	"github.com/cppla/ledger/ledger"
)

// NoticeFilter decides whether a subscriber receives a notice.
type NoticeFilter func(ledger.Notice) bool

type subscriber struct {
	ch     chan ledger.Notice
	filter NoticeFilter
}

// Hub fans committed ledger notices out to in-process subscribers.
type Hub struct {
	mu   sync.RWMutex
	subs map[*subscriber]struct{}
}

// NewHub creates an empty Hub. It is safe for concurrent use.
func NewHub() *Hub {
	return &Hub{subs: make(map[*subscriber]struct{})}
}

// Notify implements ledger.Notifier. It never blocks the caller.
func (h *Hub) Notify(n ledger.Notice) {
	if h == nil {
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()

	for s := range h.subs {
		if s.filter != nil && !s.filter(n) {
			continue
		}
		select {
		case s.ch <- n:
		default:
			// slow consumer: drop
		}
	}
}

// Subscribe registers a buffered channel that is closed when ctx ends.
func (h *Hub) Subscribe(ctx context.Context, buffer int, filter NoticeFilter) <-chan ledger.Notice {
	if buffer <= 0 {
		buffer = 16
	}
	s := &subscriber{ch: make(chan ledger.Notice, buffer), filter: filter}

	h.mu.Lock()
	h.subs[s] = struct{}{}
	h.mu.Unlock()

	go func() {
		<-ctx.Done()
		h.mu.Lock()
		delete(h.subs, s)
		h.mu.Unlock()
		close(s.ch)
	}()

	return s.ch
}

// Subscribers reports the number of live subscriptions.
func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// ForOwners passes notices addressed to any of the given owners.
func ForOwners(owners ...ledger.Owner) NoticeFilter {
	set := make(map[ledger.Owner]struct{}, len(owners))
	for _, o := range owners {
		set[o] = struct{}{}
	}
	return func(n ledger.Notice) bool {
		_, ok := set[n.Owner]
		return ok
	}
}
