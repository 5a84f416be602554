package monitor

import (
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"arc-welder-go/pkg/log"
	"arc-welder-go/pkg/welder"
)

func startTestServer(t *testing.T) *Server {
	t.Helper()
	logger := log.New("monitor-test")
	logger.SetLevel(log.ERROR)
	s := New("127.0.0.1:0", logger)
	if err := s.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	t.Cleanup(s.Stop)
	return s
}

func TestProgressSnapshot(t *testing.T) {
	s := startTestServer(t)

	resp, err := http.Get("http://" + s.Addr() + "/progress")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Errorf("expected 204 before any publish, got %d", resp.StatusCode)
	}

	s.Publish(welder.Progress{LinesProcessed: 42, ArcsCreated: 3})

	resp, err = http.Get("http://" + s.Addr() + "/progress")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var p welder.Progress
	if err := json.NewDecoder(resp.Body).Decode(&p); err != nil {
		t.Fatal(err)
	}
	if p.LinesProcessed != 42 || p.ArcsCreated != 3 {
		t.Errorf("unexpected snapshot %+v", p)
	}
}

func TestWebSocketPush(t *testing.T) {
	s := startTestServer(t)
	s.Publish(welder.Progress{LinesProcessed: 1})

	conn, _, err := websocket.DefaultDialer.Dial("ws://"+s.Addr()+"/websocket", nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	// Late joiners get the latest snapshot immediately.
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var first welder.Progress
	if err := conn.ReadJSON(&first); err != nil {
		t.Fatalf("read greeting: %v", err)
	}
	if first.LinesProcessed != 1 {
		t.Errorf("greeting snapshot: %+v", first)
	}

	s.Publish(welder.Progress{LinesProcessed: 100, PointsCompressed: 5})

	var second welder.Progress
	if err := conn.ReadJSON(&second); err != nil {
		t.Fatalf("read push: %v", err)
	}
	if second.LinesProcessed != 100 || second.PointsCompressed != 5 {
		t.Errorf("pushed snapshot: %+v", second)
	}
}

func TestStopDisconnectsClients(t *testing.T) {
	s := startTestServer(t)
	conn, _, err := websocket.DefaultDialer.Dial("ws://"+s.Addr()+"/websocket", nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	s.Stop()

	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	if _, _, err := conn.ReadMessage(); err == nil {
		t.Error("expected read to fail after server stop")
	}
}
