package push

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func TestSend_OK(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Fatalf("method = %s, want POST", r.Method)
		}
		if r.URL.Path != "/api/messages" {
			t.Fatalf("path = %s, want /api/messages", r.URL.Path)
		}

		var msg Message
		if err := json.NewDecoder(r.Body).Decode(&msg); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if msg.Token != "device-1" || msg.Title != "Заказ подтверждён" {
			t.Fatalf("unexpected message: %+v", msg)
		}

		w.WriteHeader(http.StatusOK)
	}))
	defer ts.Close()

	client := NewClient(ts.URL)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	retry, err := client.Send(ctx, Message{
		Token: "device-1",
		Title: "Заказ подтверждён",
		Body:  "Магазин принял ваш заказ",
	})
	if err != nil {
		t.Fatalf("Send error: %v", err)
	}
	if retry != 0 {
		t.Fatalf("retryAfter = %v, want 0", retry)
	}
}

func TestSend_TooManyRequests(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "3")
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer ts.Close()

	client := NewClient(ts.URL)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	retry, err := client.Send(ctx, Message{Token: "device-1", Title: "t"})
	if err != nil {
		t.Fatalf("Send error: %v", err)
	}
	if retry != 3*time.Second {
		t.Fatalf("retryAfter = %v, want 3s", retry)
	}
}

func TestSend_RetriesTransientFailure(t *testing.T) {
	var calls atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer ts.Close()

	client := NewClient(ts.URL)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	retry, err := client.Send(ctx, Message{Token: "device-1", Title: "t"})
	if err != nil {
		t.Fatalf("Send error: %v", err)
	}
	if retry != 0 {
		t.Fatalf("retryAfter = %v, want 0", retry)
	}
	if calls.Load() != 2 {
		t.Fatalf("calls = %d, want 2 (one retry)", calls.Load())
	}
}

func TestSend_NotConfigured(t *testing.T) {
	client := NewClient("")
	if _, err := client.Send(context.Background(), Message{}); err == nil {
		t.Fatalf("expected error for unconfigured client")
	}
}
