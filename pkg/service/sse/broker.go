package sse

import (
	"net/http"
	"sync"
	"time"

	"github.com/agentmesh/a2a-core/pkg/a2a"
)

/*
Broker is the server-wide event firehose: every event the processor
distributes is broadcast, kind-tagged, to all connected SSE clients.
It is an operator surface, not part of the task streaming contract, so
slow clients lose frames rather than slowing the pipeline.

Each event is sent as a single-line SSE message of the form:

data: {json}\n\n
*/
type Broker struct {
	mu       sync.RWMutex
	clients  map[chan []byte]struct{}
	closed   bool
	testMode bool
}

func NewBroker() *Broker {
	return &Broker{clients: make(map[chan []byte]struct{})}
}

// NewTestBroker shortens the heartbeat interval for tests.
func NewTestBroker() *Broker {
	return &Broker{clients: make(map[chan []byte]struct{}), testMode: true}
}

/*
Observer adapts the broker to the processor's observer hook.
*/
func (broker *Broker) Observer() func(taskID string, event a2a.Event) {
	return func(taskID string, event a2a.Event) {
		broker.Broadcast(event)
	}
}

/*
Subscribe upgrades the HTTP connection to an SSE stream and blocks until
the client disconnects. Use from an HTTP handler:

broker.Subscribe(w, r)
*/
func (broker *Broker) Subscribe(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	ch := make(chan []byte, 8)
	broker.mu.Lock()

	if broker.closed {
		broker.mu.Unlock()
		http.Error(w, "broker closed", http.StatusGone)
		return
	}

	broker.clients[ch] = struct{}{}
	broker.mu.Unlock()

	// heartbeat ticker to keep connections alive through proxies.
	tickerInterval := 25 * time.Second
	if broker.testMode {
		tickerInterval = 100 * time.Millisecond
	}

	ticker := time.NewTicker(tickerInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			broker.remove(ch)
			return
		case msg, open := <-ch:
			if !open {
				return
			}
			_, _ = w.Write([]byte("data: "))
			_, _ = w.Write(msg)
			_, _ = w.Write([]byte("\n\n"))
			flusher.Flush()
		case <-ticker.C:
			// comment heartbeat
			_, _ = w.Write([]byte(": heartbeat\n\n"))
			flusher.Flush()
		}
	}
}

/*
Broadcast serializes the event with its kind tag and sends it to every
connected client. Marshal failures drop the frame.
*/
func (broker *Broker) Broadcast(event a2a.Event) error {
	msg, err := a2a.MarshalEvent(event)
	if err != nil {
		return err
	}

	broker.mu.RLock()
	defer broker.mu.RUnlock()

	if broker.closed {
		return nil
	}

	for ch := range broker.clients {
		select {
		case ch <- msg:
		default:
			// slow client, drop the frame to avoid blocking.
		}
	}

	return nil
}

/*
Close disconnects all clients and prevents further subscriptions.
*/
func (broker *Broker) Close() {
	broker.mu.Lock()
	defer broker.mu.Unlock()

	if broker.closed {
		return
	}

	broker.closed = true

	for ch := range broker.clients {
		close(ch)
	}

	broker.clients = map[chan []byte]struct{}{}
}

func (broker *Broker) remove(ch chan []byte) {
	broker.mu.Lock()

	if _, ok := broker.clients[ch]; ok {
		delete(broker.clients, ch)
		close(ch)
	}

	broker.mu.Unlock()
}
