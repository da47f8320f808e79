package events

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestPublisher_Publish(t *testing.T) {
	received := make(chan Event, 1)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/internal/events" || r.Method != http.MethodPost {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		var ev Event
		if err := json.NewDecoder(r.Body).Decode(&ev); err != nil {
			t.Errorf("decode: %v", err)
		}
		received <- ev
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	p := NewPublisher(server.URL, nil)
	err := p.Publish(context.Background(), TypeSubscription, SubscriptionExpired, SubscriptionEventData{
		SubscriptionID: "sub-1",
		Status:         "expired",
	})
	if err != nil {
		t.Fatalf("Publish: %v", err)
	}

	ev := <-received
	if ev.Type != TypeSubscription || ev.Event != SubscriptionExpired {
		t.Errorf("got %s/%s", ev.Type, ev.Event)
	}
	data, ok := ev.Data.(map[string]interface{})
	if !ok || data["subscription_id"] != "sub-1" {
		t.Errorf("unexpected data %#v", ev.Data)
	}
}

func TestPublisher_PublishRejected(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	p := NewPublisher(server.URL, nil)
	if err := p.Publish(context.Background(), TypeScheduler, SchedulerSweepStarted, nil); err == nil {
		t.Error("expected error for rejected event")
	}
}

func TestPublisher_PublishAsync(t *testing.T) {
	received := make(chan struct{}, 1)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		received <- struct{}{}
	}))
	defer server.Close()

	NewPublisher(server.URL, nil).PublishSweepCompleted(SweepEventData{RunID: "run-1"})

	select {
	case <-received:
	case <-time.After(2 * time.Second):
		t.Fatal("async event was not delivered")
	}
}
