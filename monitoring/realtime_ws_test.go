package monitoring

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func dialHub(t *testing.T, hub *AlertHub, query string) *websocket.Conn {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(hub.HandleWebSocket))
	t.Cleanup(server.Close)

	url := "ws" + strings.TrimPrefix(server.URL, "http") + query
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func waitForClients(t *testing.T, hub *AlertHub, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for hub.ClientCount() != n {
		if time.Now().After(deadline) {
			t.Fatalf("expected %d clients, got %d", n, hub.ClientCount())
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestAlertHubBroadcastsAlerts(t *testing.T) {
	hub := NewAlertHub(nil)
	go hub.Run()
	defer hub.Stop()

	conn := dialHub(t, hub, "")
	waitForClients(t, hub, 1)

	alert := newAlert(WaterQualityAlert, SeverityHigh, "Rampur", "unsafe", time.Now())
	if err := hub.Notify(context.Background(), alert); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if msg.Type != AlertMessage {
		t.Fatalf("unexpected message type: %s", msg.Type)
	}
	var got Alert
	if err := json.Unmarshal(msg.Data, &got); err != nil {
		t.Fatalf("invalid alert json: %v", err)
	}
	if got.ID != alert.ID || got.Village != "Rampur" {
		t.Fatalf("unexpected alert: %+v", got)
	}
}

func TestAlertHubFiltersByVillage(t *testing.T) {
	hub := NewAlertHub(nil)
	go hub.Run()
	defer hub.Stop()

	conn := dialHub(t, hub, "?village=Sonpur")
	waitForClients(t, hub, 1)

	other := newAlert(WaterQualityAlert, SeverityMedium, "Rampur", "moderate", time.Now())
	mine := newAlert(WaterQualityAlert, SeverityMedium, "Sonpur", "moderate", time.Now())
	for _, alert := range []*Alert{other, mine} {
		if err := hub.Notify(context.Background(), alert); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(string(data), mine.ID) {
		t.Fatalf("expected only the Sonpur alert, got %s", data)
	}
}
