// Package sse streams note changes to the browser sessions of their owner.
package sse

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync/atomic"
)

// Event is one SSE message.
type Event struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

type publishReq struct {
	userID string
	event  Event
}

type subscription struct {
	userID string
	ch     chan []byte
}

// Broker fans events out to the subscribers of each user.
//
// A single internal goroutine owns the subscriber set; public methods talk
// to it over channels.
type Broker struct {
	subscribeCh   chan subscription
	unsubscribeCh chan chan []byte
	publishCh     chan publishReq
	countReqCh    chan chan int

	stopCh  chan struct{}
	stopped chan struct{}
	closed  atomic.Bool
}

// NewBroker starts a broker.
func NewBroker() *Broker {
	b := &Broker{
		subscribeCh:   make(chan subscription),
		unsubscribeCh: make(chan chan []byte),
		publishCh:     make(chan publishReq, 256),
		countReqCh:    make(chan chan int),
		stopCh:        make(chan struct{}),
		stopped:       make(chan struct{}),
	}
	go b.run()
	return b
}

func (b *Broker) run() {
	defer close(b.stopped)

	clients := make(map[chan []byte]string)

	for {
		select {
		case <-b.stopCh:
			for ch := range clients {
				close(ch)
			}
			return

		case s := <-b.subscribeCh:
			clients[s.ch] = s.userID

		case ch := <-b.unsubscribeCh:
			if _, ok := clients[ch]; ok {
				delete(clients, ch)
				close(ch)
			}

		case req := <-b.publishCh:
			raw, err := encode(req.event)
			if err != nil {
				continue
			}
			for ch, owner := range clients {
				if owner != req.userID {
					continue
				}
				select {
				case ch <- raw:
				default:
					// Slow client; drop rather than block the loop.
				}
			}

		case resp := <-b.countReqCh:
			resp <- len(clients)
		}
	}
}

func encode(e Event) ([]byte, error) {
	payload, err := json.Marshal(e.Data)
	if err != nil {
		return nil, err
	}
	return []byte(fmt.Sprintf("event: %s\ndata: %s\n\n", e.Type, payload)), nil
}

// Close stops the loop and closes every subscriber channel.
func (b *Broker) Close() {
	if b.closed.CompareAndSwap(false, true) {
		close(b.stopCh)
	}
	<-b.stopped
}

// Subscribe registers a client of userID.
func (b *Broker) Subscribe(userID string) chan []byte {
	ch := make(chan []byte, 64)
	if b.closed.Load() {
		close(ch)
		return ch
	}
	select {
	case b.subscribeCh <- subscription{userID: userID, ch: ch}:
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

// ClientCount returns the number of connected clients.
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

// Publish sends event to every client of userID.
func (b *Broker) Publish(userID string, event Event) {
	if b.closed.Load() {
		return
	}
	select {
	case b.publishCh <- publishReq{userID: userID, event: event}:
	case <-b.stopped:
	}
}

// PublishNoteEvent sends a note.<kind> event carrying data.
func (b *Broker) PublishNoteEvent(userID, kind string, data any) {
	b.Publish(userID, Event{Type: "note." + kind, Data: data})
}

// Serve streams the events of userID until the request ends.
func (b *Broker) Serve(w http.ResponseWriter, r *http.Request, userID string) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ch := b.Subscribe(userID)
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
