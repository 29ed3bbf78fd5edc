package sse

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestSubscribeUnsubscribe(t *testing.T) {
	b := NewBroker(100 * time.Millisecond)
	defer b.Close()
	if b.ClientCount() != 0 {
		t.Fatalf("expected 0 clients")
	}
	ch := b.Subscribe()
	if b.ClientCount() != 1 {
		t.Fatalf("expected 1 client")
	}
	b.Unsubscribe(ch)
	if b.ClientCount() != 0 {
		t.Fatalf("expected 0 clients after unsub")
	}
}

func TestPublishDelivery(t *testing.T) {
	b := NewBroker(100 * time.Millisecond)
	defer b.Close()
	ch := b.Subscribe()
	defer b.Unsubscribe(ch)

	b.Publish(Event{Type: SubmissionCreated, Data: map[string]string{"id": "jane-doe"}})

	select {
	case msg := <-ch:
		s := string(msg)
		if !strings.HasPrefix(s, "id: ") {
			t.Errorf("missing event id in %q", s)
		}
		if !strings.Contains(s, "event: submission.created") {
			t.Errorf("missing event type in %q", s)
		}
		if !strings.Contains(s, `"id":"jane-doe"`) {
			t.Errorf("missing data in %q", s)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for message")
	}
}

func TestPublishChange_DirectoryThrottle(t *testing.T) {
	b := NewBroker(500 * time.Millisecond)
	defer b.Close()
	ch := b.Subscribe()
	defer b.Unsubscribe(ch)

	// First change should trigger directory.updated.
	b.PublishChange(MemberCreated, "jane-doe")
	// Second change immediately should NOT trigger another one.
	b.PublishChange(MemberDeleted, "bob")

	time.Sleep(50 * time.Millisecond)
	directoryCount := 0
	changeCount := 0
loop:
	for {
		select {
		case msg := <-ch:
			s := string(msg)
			if strings.Contains(s, "event: "+DirectoryUpdated) {
				directoryCount++
			} else {
				changeCount++
			}
		default:
			break loop
		}
	}

	if changeCount != 2 {
		t.Errorf("change events = %d, want 2", changeCount)
	}
	if directoryCount != 1 {
		t.Errorf("directory events = %d, want 1 (throttled)", directoryCount)
	}
}

func TestPublishChangeWithoutID(t *testing.T) {
	b := NewBroker(time.Second)
	defer b.Close()
	ch := b.Subscribe()
	defer b.Unsubscribe(ch)

	b.PublishChange(RegistryChanged, "")

	select {
	case msg := <-ch:
		s := string(msg)
		if !strings.Contains(s, "event: registry.changed") || !strings.Contains(s, "data: {}") {
			t.Errorf("unexpected message %q", s)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for message")
	}
}

func TestSSEHandler(t *testing.T) {
	b := NewBroker(100 * time.Millisecond)
	defer b.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	req := httptest.NewRequest(http.MethodGet, "/admin/events", nil)
	req = req.WithContext(ctx)
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

	b.Publish(Event{Type: MemberUpdated, Data: map[string]string{"id": "jane-doe"}})
	time.Sleep(50 * time.Millisecond)

	cancel()
	<-done

	if ct := w.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("content type = %q", ct)
	}
	body := w.Body.String()
	if !strings.Contains(body, "event: member.updated") {
		t.Errorf("handler output missing event: %q", body)
	}

	time.Sleep(50 * time.Millisecond)
	if b.ClientCount() != 0 {
		t.Errorf("client not cleaned up after disconnect")
	}
}

func TestPublishDropsOnFullBuffer(t *testing.T) {
	b := NewBroker(time.Second)
	defer b.Close()
	ch := b.Subscribe()
	defer b.Unsubscribe(ch)

	// Fill buffer (capacity 64) and then one more should not block.
	for i := 0; i < 70; i++ {
		b.Publish(Event{Type: SubmissionsChanged, Data: map[string]string{}})
	}
}

func TestCloseClosesSubscribersAndStopsOperations(t *testing.T) {
	b := NewBroker(100 * time.Millisecond)
	ch := b.Subscribe()
	if b.ClientCount() != 1 {
		t.Fatalf("expected 1 client")
	}

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

	// Should be safe no-op after close.
	b.Publish(Event{Type: MemberUpdated, Data: map[string]string{"id": "x"}})
	b.PublishChange(MemberUpdated, "x")
}

func eventID(t *testing.T, msg []byte) string {
	t.Helper()
	line, _, _ := strings.Cut(string(msg), "\n")
	id, ok := strings.CutPrefix(line, "id: ")
	if !ok {
		t.Fatalf("no id line in %q", msg)
	}
	return id
}

func TestSubscribeFromReplaysMissedEvents(t *testing.T) {
	b := NewBroker(time.Hour)
	defer b.Close()
	first := b.Subscribe()

	b.Publish(Event{Type: SubmissionCreated, Data: map[string]string{"id": "a"}})
	b.Publish(Event{Type: SubmissionCreated, Data: map[string]string{"id": "b"}})
	b.Publish(Event{Type: SubmissionCreated, Data: map[string]string{"id": "c"}})

	var ids []string
	for len(ids) < 3 {
		select {
		case msg := <-first:
			ids = append(ids, eventID(t, msg))
		case <-time.After(time.Second):
			t.Fatal("timeout waiting for message")
		}
	}
	b.Unsubscribe(first)

	again := b.SubscribeFrom(ids[0])
	defer b.Unsubscribe(again)
	for _, want := range []string{`"id":"b"`, `"id":"c"`} {
		select {
		case msg := <-again:
			if !strings.Contains(string(msg), want) {
				t.Errorf("replayed %q, want %s", msg, want)
			}
		case <-time.After(time.Second):
			t.Fatal("timeout waiting for replay")
		}
	}
	select {
	case msg := <-again:
		t.Errorf("unexpected extra replay %q", msg)
	default:
	}
}

func TestSubscribeFromUnknownIDReplaysNothing(t *testing.T) {
	b := NewBroker(time.Hour)
	defer b.Close()
	b.Publish(Event{Type: MemberDeleted, Data: map[string]string{"id": "x"}})

	ch := b.SubscribeFrom("not-an-id")
	defer b.Unsubscribe(ch)
	select {
	case msg := <-ch:
		t.Errorf("unexpected replay %q", msg)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestHistoryIsBounded(t *testing.T) {
	var history []frame
	b := NewBroker(time.Hour)
	defer b.Close()
	ch := b.Subscribe()
	defer b.Unsubscribe(ch)

	for i := 0; i < historySize+5; i++ {
		b.Publish(Event{Type: SubmissionsChanged, Data: map[string]string{}})
		select {
		case msg := <-ch:
			history = append(history, frame{id: eventID(t, msg)})
		case <-time.After(time.Second):
			t.Fatal("timeout waiting for message")
		}
	}

	// The oldest events have been evicted and can no longer anchor a replay.
	old := b.SubscribeFrom(history[0].id)
	defer b.Unsubscribe(old)
	select {
	case msg := <-old:
		t.Errorf("evicted id replayed %q", msg)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestSSEHandlerHeartbeat(t *testing.T) {
	b := NewBroker(time.Hour, WithHeartbeat(10*time.Millisecond))
	defer b.Close()

	ctx, cancel := context.WithCancel(context.Background())
	req := httptest.NewRequest(http.MethodGet, "/admin/events", nil).WithContext(ctx)
	w := httptest.NewRecorder()

	done := make(chan struct{})
	go func() {
		b.ServeHTTP(w, req)
		close(done)
	}()
	time.Sleep(60 * time.Millisecond)
	cancel()
	<-done

	if !strings.Contains(w.Body.String(), ": ping\n\n") {
		t.Errorf("no heartbeat in %q", w.Body.String())
	}
}
