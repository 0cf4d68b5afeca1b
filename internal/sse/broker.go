// Package sse is the in-process event bus. It fans typed events out to
// Server-Sent Events clients and to in-process listeners.
package sse

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"
)

// Topic names an event stream.
type Topic string

const (
	TopicNoteCreated     Topic = "note.created"
	TopicNoteUpdated     Topic = "note.updated"
	TopicNoteDeleted     Topic = "note.deleted"
	TopicNotesChanged    Topic = "notes.changed"
	TopicNotesRefresh    Topic = "notes.refresh"
	TopicCategoryAdded   Topic = "category.added"
	TopicCategoryUpdated Topic = "category.updated"
	TopicCategoryDeleted Topic = "category.deleted"
	TopicBackupCompleted Topic = "backup.completed"
)

// Event represents an event to broadcast.
type Event struct {
	Type Topic `json:"type"`
	Data any   `json:"data"`
}

// Publisher is what producers depend on.
type Publisher interface {
	Publish(event Event)
	PublishNoteEvent(kind, id string)
}

// Handler receives events for a topic it listens on. Handlers run on the
// broker loop and must not block or call Listen.
type Handler func(Event)

// Nop discards everything.
type Nop struct{}

func (Nop) Publish(Event)                   {}
func (Nop) PublishNoteEvent(string, string) {}

type noteEventReq struct {
	kind string
	id   string
}

type listenReq struct {
	id      uint64
	topic   Topic
	handler Handler
}

// Broker manages SSE client connections and in-process listeners.
//
// Concurrency model: a single internal event loop (goroutine) owns mutable state
// (clients, listeners, and the notes.changed throttle timestamp). Public methods
// communicate with this loop through channels, so no mutexes are required.
type Broker struct {
	changedMin time.Duration

	subscribeCh   chan chan []byte
	unsubscribeCh chan chan []byte
	listenCh      chan listenReq
	unlistenCh    chan uint64
	publishCh     chan Event
	noteEventCh   chan noteEventReq
	countReqCh    chan chan int

	nextListener atomic.Uint64

	stopCh  chan struct{}
	stopped chan struct{}
	closed  atomic.Bool
}

// NewBroker creates a broker that emits at most one notes.changed event per
// changedThrottle interval.
func NewBroker(changedThrottle time.Duration) *Broker {
	if changedThrottle <= 0 {
		changedThrottle = 2 * time.Second
	}

	b := &Broker{
		changedMin:    changedThrottle,
		subscribeCh:   make(chan chan []byte),
		unsubscribeCh: make(chan chan []byte),
		listenCh:      make(chan listenReq),
		unlistenCh:    make(chan uint64),
		publishCh:     make(chan Event, 256),
		noteEventCh:   make(chan noteEventReq, 256),
		countReqCh:    make(chan chan int),
		stopCh:        make(chan struct{}),
		stopped:       make(chan struct{}),
	}

	go b.run()
	return b
}

func (b *Broker) run() {
	defer close(b.stopped)

	clients := make(map[chan []byte]struct{})
	listeners := make(map[Topic]map[uint64]Handler)
	var lastChanged time.Time

	broadcast := func(event Event) {
		for _, h := range listeners[event.Type] {
			h(event)
		}

		if len(clients) == 0 {
			return
		}
		payload, err := json.Marshal(event.Data)
		if err != nil {
			return
		}
		raw := []byte(fmt.Sprintf("event: %s\ndata: %s\n\n", event.Type, payload))

		for ch := range clients {
			select {
			case ch <- raw:
			default:
				// Client buffer full; skip to avoid blocking broker loop.
			}
		}
	}

	for {
		select {
		case <-b.stopCh:
			for ch := range clients {
				close(ch)
			}
			return

		case ch := <-b.subscribeCh:
			clients[ch] = struct{}{}

		case ch := <-b.unsubscribeCh:
			if _, ok := clients[ch]; ok {
				delete(clients, ch)
				close(ch)
			}

		case req := <-b.listenCh:
			if listeners[req.topic] == nil {
				listeners[req.topic] = make(map[uint64]Handler)
			}
			listeners[req.topic][req.id] = req.handler

		case id := <-b.unlistenCh:
			for _, hs := range listeners {
				delete(hs, id)
			}

		case event := <-b.publishCh:
			broadcast(event)

		case req := <-b.noteEventCh:
			data := map[string]string{"id": req.id}
			switch req.kind {
			case "created":
				broadcast(Event{Type: TopicNoteCreated, Data: data})
			case "updated":
				broadcast(Event{Type: TopicNoteUpdated, Data: data})
			case "deleted":
				broadcast(Event{Type: TopicNoteDeleted, Data: data})
			}

			now := time.Now()
			if now.Sub(lastChanged) >= b.changedMin {
				lastChanged = now
				broadcast(Event{Type: TopicNotesChanged, Data: map[string]string{}})
			}

		case resp := <-b.countReqCh:
			resp <- len(clients)
		}
	}
}

// Close gracefully stops broker loop and closes all client channels.
func (b *Broker) Close() {
	if b.closed.CompareAndSwap(false, true) {
		close(b.stopCh)
	}
	<-b.stopped
}

// Subscribe adds a new SSE client and returns its channel.
func (b *Broker) Subscribe() chan []byte {
	ch := make(chan []byte, 64)
	if b.closed.Load() {
		close(ch)
		return ch
	}

	select {
	case b.subscribeCh <- ch:
	case <-b.stopped:
		close(ch)
	}

	return ch
}

// Unsubscribe removes a client and closes its channel.
func (b *Broker) Unsubscribe(ch chan []byte) {
	if b.closed.Load() {
		return
	}
	select {
	case b.unsubscribeCh <- ch:
	case <-b.stopped:
	}
}

// Listen registers h for topic and returns a function that removes it.
func (b *Broker) Listen(topic Topic, h Handler) (cancel func()) {
	id := b.nextListener.Add(1)
	if b.closed.Load() {
		return func() {}
	}
	select {
	case b.listenCh <- listenReq{id: id, topic: topic, handler: h}:
	case <-b.stopped:
		return func() {}
	}
	return func() {
		if b.closed.Load() {
			return
		}
		select {
		case b.unlistenCh <- id:
		case <-b.stopped:
		}
	}
}

// ClientCount returns the number of connected SSE clients.
func (b *Broker) ClientCount() int {
	if b.closed.Load() {
		return 0
	}

	resp := make(chan int, 1)
	select {
	case b.countReqCh <- resp:
	case <-b.stopped:
		return 0
	}

	select {
	case n := <-resp:
		return n
	case <-b.stopped:
		return 0
	}
}

// Publish sends an event to every client and listener.
func (b *Broker) Publish(event Event) {
	if b.closed.Load() {
		return
	}
	select {
	case b.publishCh <- event:
	case <-b.stopped:
	}
}

// PublishNoteEvent publishes a note change and a throttled notes.changed event.
func (b *Broker) PublishNoteEvent(kind, id string) {
	if b.closed.Load() {
		return
	}
	select {
	case b.noteEventCh <- noteEventReq{kind: kind, id: id}:
	case <-b.stopped:
	}
}

// ServeHTTP is the SSE endpoint handler (GET /api/events).
func (b *Broker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ch := b.Subscribe()
	defer b.Unsubscribe(ch)

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			_, _ = w.Write(msg)
			flusher.Flush()
		}
	}
}

var (
	_ Publisher = (*Broker)(nil)
	_ Publisher = Nop{}
)
