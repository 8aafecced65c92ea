// Package sse streams store and tree changes to browsers as Server-Sent
// Events.
package sse

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync/atomic"
	"time"
)

// Node event kinds accepted by PublishNodeEvent.
const (
	NodeAdded   = "added"
	NodeRemoved = "removed"
	NodeChanged = "changed"
)

// Event is one message on the stream. Seq is assigned by the broker.
type Event struct {
	Seq  uint64
	Type string
	Data any
}

// NodePayload is the data of node.* events.
type NodePayload struct {
	ID     string `json:"id"`
	Parent string `json:"parent,omitempty"`
}

// StorePayload is the data of store.* events.
type StorePayload struct {
	Name string `json:"name"`
}

func (e Event) frame() ([]byte, error) {
	payload, err := json.Marshal(e.Data)
	if err != nil {
		return nil, err
	}
	return []byte(fmt.Sprintf("id: %d\nevent: %s\ndata: %s\n\n", e.Seq, e.Type, payload)), nil
}

// Option configures a Broker.
type Option func(*Broker)

// WithTreeThrottle sets the minimum gap between tree.updated events.
func WithTreeThrottle(d time.Duration) Option {
	return func(b *Broker) { b.treeMin = d }
}

// WithHistory keeps the last n frames for clients resuming with
// Last-Event-ID.
func WithHistory(n int) Option {
	return func(b *Broker) { b.historyLen = n }
}

// WithKeepAlive sends a comment line every d so proxies keep idle
// streams open. Zero disables it.
func WithKeepAlive(d time.Duration) Option {
	return func(b *Broker) { b.keepAlive = d }
}

type subscription struct {
	ch    chan []byte
	after uint64
}

// Broker fans events out to SSE clients.
//
// One loop goroutine owns the clients, the sequence counter, the replay
// history and the tree throttle; everything else talks to it over channels.
type Broker struct {
	treeMin    time.Duration
	historyLen int
	keepAlive  time.Duration

	subscribeCh   chan subscription
	unsubscribeCh chan chan []byte
	publishCh     chan Event
	countReqCh    chan chan int

	stopCh  chan struct{}
	stopped chan struct{}
	closed  atomic.Bool
}

// NewBroker starts a broker. By default tree.updated is sent at most every
// two seconds and the last 64 frames are kept for replay.
func NewBroker(opts ...Option) *Broker {
	b := &Broker{
		treeMin:       2 * time.Second,
		historyLen:    64,
		keepAlive:     30 * time.Second,
		subscribeCh:   make(chan subscription),
		unsubscribeCh: make(chan chan []byte),
		publishCh:     make(chan Event),
		countReqCh:    make(chan chan int),
		stopCh:        make(chan struct{}),
		stopped:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(b)
	}
	go b.run()
	return b
}

type frame struct {
	seq uint64
	raw []byte
}

func (b *Broker) run() {
	defer close(b.stopped)

	clients := make(map[chan []byte]struct{})
	var history []frame
	var seq uint64
	var lastTree time.Time

	send := func(ch chan []byte, raw []byte) {
		select {
		case ch <- raw:
		default:
			// slow client, drop
		}
	}

	emit := func(e Event) {
		seq++
		e.Seq = seq
		raw, err := e.frame()
		if err != nil {
			return
		}
		if b.historyLen > 0 {
			history = append(history, frame{seq: seq, raw: raw})
			if len(history) > b.historyLen {
				history = history[len(history)-b.historyLen:]
			}
		}
		for ch := range clients {
			send(ch, raw)
		}
	}

	for {
		select {
		case <-b.stopCh:
			for ch := range clients {
				close(ch)
			}
			return

		case sub := <-b.subscribeCh:
			clients[sub.ch] = struct{}{}
			if sub.after > 0 {
				for _, f := range history {
					if f.seq > sub.after {
						send(sub.ch, f.raw)
					}
				}
			}

		case ch := <-b.unsubscribeCh:
			if _, ok := clients[ch]; ok {
				delete(clients, ch)
				close(ch)
			}

		case e := <-b.publishCh:
			emit(e)
			if strings.HasPrefix(e.Type, "node.") {
				now := time.Now()
				if now.Sub(lastTree) >= b.treeMin {
					lastTree = now
					emit(Event{Type: "tree.updated", Data: struct{}{}})
				}
			}

		case resp := <-b.countReqCh:
			resp <- len(clients)
		}
	}
}

// Close stops the loop and closes every client channel.
func (b *Broker) Close() {
	if b.closed.CompareAndSwap(false, true) {
		close(b.stopCh)
	}
	<-b.stopped
}

// Subscribe adds a client. Frames after sequence number after are replayed
// from history first; zero replays nothing.
func (b *Broker) Subscribe(after uint64) chan []byte {
	ch := make(chan []byte, 64)
	if b.closed.Load() {
		close(ch)
		return ch
	}
	select {
	case b.subscribeCh <- subscription{ch: ch, after: after}:
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

// Publish queues an event for all clients.
func (b *Broker) Publish(e Event) {
	if b.closed.Load() {
		return
	}
	select {
	case b.publishCh <- e:
	case <-b.stopped:
	}
}

// PublishNodeEvent sends node.<kind> followed, at most once per throttle
// window, by tree.updated. Unknown kinds are ignored.
func (b *Broker) PublishNodeEvent(kind, id, parent string) {
	switch kind {
	case NodeAdded, NodeRemoved, NodeChanged:
	default:
		return
	}
	b.Publish(Event{Type: "node." + kind, Data: NodePayload{ID: id, Parent: parent}})
}

// PublishStoreEvent sends store.<kind>, e.g. store.locked or store.saved.
func (b *Broker) PublishStoreEvent(kind, name string) {
	b.Publish(Event{Type: "store." + kind, Data: StorePayload{Name: name}})
}

// ServeHTTP is the SSE endpoint (GET /api/events). A Last-Event-ID header
// resumes after the given frame when it is still in history.
func (b *Broker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
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

	after, _ := strconv.ParseUint(r.Header.Get("Last-Event-ID"), 10, 64)
	ch := b.Subscribe(after)
	defer b.Unsubscribe(ch)

	var tick <-chan time.Time
	if b.keepAlive > 0 {
		t := time.NewTicker(b.keepAlive)
		defer t.Stop()
		tick = t.C
	}

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case <-tick:
			_, _ = w.Write([]byte(": ping\n\n"))
			flusher.Flush()
		case msg, ok := <-ch:
			if !ok {
				return
			}
			_, _ = w.Write(msg)
			flusher.Flush()
		}
	}
}
