// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package logexport

import (
	"sync"
	"time"
)

// DefaultRingSize is the number of drained lines kept for late readers.
const DefaultRingSize = 512

// subscriberBuffer is the per-subscriber queue depth. A subscriber that falls
// further behind loses lines rather than stalling the drain.
const subscriberBuffer = 64

// Line is one drained log line.
type Line struct {
	Seq       uint64    `json:"seq"`
	Text      string    `json:"text"`
	SessionID string    `json:"session_id"`
	At        time.Time `json:"at"`
}

// Hub keeps a bounded history of drained lines and fans them out to live
// subscribers.
type Hub struct {
	mu      sync.Mutex
	ring    []Line
	next    int
	full    bool
	seq     uint64
	subs    map[int]chan Line
	nextSub int
	dropped uint64
}

// NewHub creates a hub keeping size lines.
func NewHub(size int) *Hub {
	if size <= 0 {
		size = DefaultRingSize
	}
	return &Hub{
		ring: make([]Line, size),
		subs: make(map[int]chan Line),
	}
}

// Publish stores a line and delivers it to subscribers.
func (h *Hub) Publish(text, sessionID string, at time.Time) Line {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.seq++
	l := Line{Seq: h.seq, Text: text, SessionID: sessionID, At: at}
	h.ring[h.next] = l
	h.next = (h.next + 1) % len(h.ring)
	if h.next == 0 {
		h.full = true
	}

	for _, ch := range h.subs {
		select {
		case ch <- l:
		default:
			h.dropped++
		}
	}
	return l
}

// Recent returns up to n lines, oldest first. n <= 0 returns everything kept.
func (h *Hub) Recent(n int) []Line {
	h.mu.Lock()
	defer h.mu.Unlock()

	var ordered []Line
	if h.full {
		ordered = append(ordered, h.ring[h.next:]...)
	}
	ordered = append(ordered, h.ring[:h.next]...)
	if n > 0 && len(ordered) > n {
		ordered = ordered[len(ordered)-n:]
	}
	return ordered
}

// Subscribe returns a channel of new lines and a function that ends the
// subscription and closes the channel.
func (h *Hub) Subscribe() (<-chan Line, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()

	id := h.nextSub
	h.nextSub++
	ch := make(chan Line, subscriberBuffer)
	h.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs, id)
			h.mu.Unlock()
			close(ch)
		})
	}
}

// Subscribers returns the number of live subscriptions.
func (h *Hub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// Dropped returns how many deliveries were skipped for slow subscribers.
func (h *Hub) Dropped() uint64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.dropped
}
