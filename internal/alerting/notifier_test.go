package alerting

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"flowstore/internal/eventbus"
	"flowstore/internal/storage"
)

func testAlert() storage.PowerAlert {
	return storage.PowerAlert{
		ID:        1,
		Symbol:    "NVDA",
		AlertDate: time.Date(2024, 3, 8, 0, 0, 0, 0, time.UTC),
		Strength:  7,
		NumCalls:  12,
		FirstSpot: decimal.NewFromFloat(875.50),
	}
}

func TestTelegramNotifierSuccess(t *testing.T) {
	received := make(map[string]string)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.Contains(r.URL.Path, "sendMessage") {
			t.Fatalf("path should contain sendMessage, got %s", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&received); err != nil {
			t.Fatalf("decode request body: %v", err)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": true})
	}))
	defer srv.Close()

	notifier := NewTelegramNotifier("token", "chat", srv.URL, time.Second, testLogger())

	if err := notifier.Notify(context.Background(), testAlert()); err != nil {
		t.Fatalf("Notify should succeed: %v", err)
	}

	if received["chat_id"] != "chat" {
		t.Fatalf("unexpected chat_id: %#v", received)
	}
	if !strings.Contains(received["text"], "NVDA") {
		t.Fatalf("message should mention the symbol, got %q", received["text"])
	}
}

func TestTelegramNotifierError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": false})
	}))
	defer srv.Close()

	notifier := NewTelegramNotifier("token", "chat", srv.URL, time.Second, testLogger())

	if err := notifier.Notify(context.Background(), testAlert()); err == nil {
		t.Fatal("ok=false should be an error")
	}
}

type recordingNotifier struct {
	alerts []storage.PowerAlert
}

func (r *recordingNotifier) Notify(_ context.Context, alert storage.PowerAlert) error {
	r.alerts = append(r.alerts, alert)
	return nil
}

func TestBusHandlerFiltersByStrength(t *testing.T) {
	rec := &recordingNotifier{}
	handler := BusHandler(rec, 5, time.Second, testLogger())

	weak := testAlert()
	weak.Strength = 3
	strong := testAlert()
	strong.Strength = 8

	handler(eventbus.Event{At: time.Now(), Record: weak})
	handler(eventbus.Event{At: time.Now(), Record: strong})
	handler(eventbus.Event{At: time.Now(), Record: storage.TimeAndSale{Symbol: "SPY"}})

	if len(rec.alerts) != 1 {
		t.Fatalf("expected 1 notified alert, got %d", len(rec.alerts))
	}
	if rec.alerts[0].Strength != 8 {
		t.Fatalf("wrong alert notified: %+v", rec.alerts[0])
	}
}

func testLogger() zerolog.Logger {
	return zerolog.Nop()
}
