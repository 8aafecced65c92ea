package sse

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

// drain collects frames until none arrive for a short while.
func drain(ch chan []byte) []string {
	var out []string
	for {
		select {
		case msg, ok := <-ch:
			if !ok {
				return out
			}
			out = append(out, string(msg))
		case <-time.After(50 * time.Millisecond):
			return out
		}
	}
}

func TestSubscribeUnsubscribe(t *testing.T) {
	b := NewBroker()
	defer b.Close()
	ch := b.Subscribe(0)
	if b.ClientCount() != 1 {
		t.Fatalf("expected 1 client")
	}
	b.Unsubscribe(ch)
	if b.ClientCount() != 0 {
		t.Fatalf("expected 0 clients after unsub")
	}
	if _, ok := <-ch; ok {
		t.Error("channel should be closed after unsubscribe")
	}
}

func TestStoreEventFrame(t *testing.T) {
	b := NewBroker()
	defer b.Close()
	ch := b.Subscribe(0)
	defer b.Unsubscribe(ch)

	b.PublishStoreEvent("locked", "vault")

	frames := drain(ch)
	if len(frames) != 1 {
		t.Fatalf("frames = %q", frames)
	}
	want := "id: 1\nevent: store.locked\ndata: {\"name\":\"vault\"}\n\n"
	if frames[0] != want {
		t.Errorf("frame = %q, want %q", frames[0], want)
	}
}

func TestNodeEventsThrottleTreeUpdates(t *testing.T) {
	b := NewBroker(WithTreeThrottle(time.Minute))
	defer b.Close()
	ch := b.Subscribe(0)
	defer b.Unsubscribe(ch)

	b.PublishNodeEvent(NodeAdded, "a", "root")
	b.PublishNodeEvent(NodeChanged, "b", "")
	b.PublishNodeEvent("bogus", "c", "")

	var nodes, trees int
	for _, f := range drain(ch) {
		switch {
		case strings.Contains(f, "event: tree.updated"):
			trees++
		case strings.Contains(f, "event: node."):
			nodes++
		}
	}
	if nodes != 2 {
		t.Errorf("node events = %d, want 2", nodes)
	}
	if trees != 1 {
		t.Errorf("tree events = %d, want 1", trees)
	}
}

func TestNodePayloadOmitsEmptyParent(t *testing.T) {
	b := NewBroker()
	defer b.Close()
	ch := b.Subscribe(0)
	defer b.Unsubscribe(ch)

	b.PublishNodeEvent(NodeRemoved, "x", "")
	frames := drain(ch)
	if len(frames) == 0 || !strings.Contains(frames[0], `data: {"id":"x"}`) {
		t.Errorf("frames = %q", frames)
	}
}

func TestReplayAfterLastEventID(t *testing.T) {
	b := NewBroker(WithHistory(2))
	defer b.Close()

	b.PublishStoreEvent("saved", "a")
	b.PublishStoreEvent("locked", "a")
	b.PublishStoreEvent("unlocked", "a")
	// Publish hands off to the loop; ClientCount waits for it to finish.
	b.ClientCount()

	ch := b.Subscribe(1)
	defer b.Unsubscribe(ch)
	frames := drain(ch)
	if len(frames) != 2 {
		t.Fatalf("replayed = %q", frames)
	}
	if !strings.HasPrefix(frames[0], "id: 2\n") || !strings.HasPrefix(frames[1], "id: 3\n") {
		t.Errorf("replayed = %q", frames)
	}

	fresh := b.Subscribe(0)
	defer b.Unsubscribe(fresh)
	if got := drain(fresh); len(got) != 0 {
		t.Errorf("new client without id should not replay: %q", got)
	}
}

func TestSSEHandler(t *testing.T) {
	b := NewBroker(WithKeepAlive(0))
	defer b.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	req := httptest.NewRequest(http.MethodGet, "/api/events", nil).WithContext(ctx)
	w := httptest.NewRecorder()

	done := make(chan struct{})
	go func() {
		b.ServeHTTP(w, req)
		close(done)
	}()

	// Give handler time to subscribe.
	time.Sleep(50 * time.Millisecond)
	if b.ClientCount() != 1 {
		t.Fatalf("expected 1 client from handler")
	}

	b.PublishStoreEvent("locked", "store")
	time.Sleep(50 * time.Millisecond)

	cancel()
	<-done

	body := w.Body.String()
	if !strings.Contains(body, "event: store.locked") {
		t.Errorf("handler output missing event: %q", body)
	}
	if w.Header().Get("Content-Type") != "text/event-stream" {
		t.Errorf("content type = %q", w.Header().Get("Content-Type"))
	}

	time.Sleep(50 * time.Millisecond)
	if b.ClientCount() != 0 {
		t.Errorf("client not cleaned up after disconnect")
	}
}

func TestSSEHandlerResumes(t *testing.T) {
	b := NewBroker(WithKeepAlive(0))
	defer b.Close()
	b.PublishStoreEvent("saved", "s")
	b.PublishStoreEvent("locked", "s")
	b.ClientCount()

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	req := httptest.NewRequest(http.MethodGet, "/api/events", nil).WithContext(ctx)
	req.Header.Set("Last-Event-ID", "1")
	w := httptest.NewRecorder()
	b.ServeHTTP(w, req)

	body := w.Body.String()
	if strings.Contains(body, "store.saved") || !strings.Contains(body, "store.locked") {
		t.Errorf("resumed body = %q", body)
	}
}

func TestPublishDropsOnFullBuffer(t *testing.T) {
	b := NewBroker()
	defer b.Close()
	ch := b.Subscribe(0)
	defer b.Unsubscribe(ch)

	// The client buffer holds 64 frames; the rest are dropped, not blocked on.
	for i := 0; i < 70; i++ {
		b.PublishStoreEvent("saved", "x")
	}
	b.ClientCount()
	if n := len(ch); n != 64 {
		t.Errorf("buffered = %d, want 64", n)
	}
}

func TestCloseClosesSubscribersAndStopsOperations(t *testing.T) {
	b := NewBroker()
	ch := b.Subscribe(0)

	b.Close()

	select {
	case _, ok := <-ch:
		if ok {
			t.Fatal("expected subscriber channel to be closed")
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for channel close")
	}

	if b.ClientCount() != 0 {
		t.Fatalf("expected 0 clients after close")
	}

	// No-ops after close.
	b.PublishNodeEvent(NodeChanged, "x", "")
	b.PublishStoreEvent("saved", "store")
	if _, ok := <-b.Subscribe(0); ok {
		t.Error("subscribe after close should return a closed channel")
	}
	b.Close()
}
