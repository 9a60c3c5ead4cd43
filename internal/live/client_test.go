package live

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/lexiqai/voice-coach/internal/fault"
	"github.com/lexiqai/voice-coach/internal/protocol"
)

var upgrader = websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}

// fakeServer runs handler for each upgraded connection and records the setup frame.
func fakeServer(t *testing.T, handler func(*websocket.Conn)) (*httptest.Server, *Dialer) {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, servicePath) {
			http.NotFound(w, r)
			return
		}
		if r.URL.Query().Get("key") != "test-key" {
			http.Error(w, "bad key", http.StatusUnauthorized)
			return
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		handler(conn)
	}))
	t.Cleanup(srv.Close)

	base := "ws" + strings.TrimPrefix(srv.URL, "http")
	return srv, NewDialer(base, "test-key", "gemini-test")
}

func acceptSetup(t *testing.T, conn *websocket.Conn) map[string]any {
	_, raw, err := conn.ReadMessage()
	if err != nil {
		t.Errorf("server read setup: %v", err)
		return nil
	}
	var setup map[string]any
	if err := json.Unmarshal(raw, &setup); err != nil {
		t.Errorf("setup is not JSON: %v", err)
	}
	conn.WriteMessage(websocket.TextMessage, []byte(`{"setupComplete":{}}`))
	return setup
}

func TestDial_SetupAndExchange(t *testing.T) {
	got := make(chan string, 1)
	_, d := fakeServer(t, func(conn *websocket.Conn) {
		setup := acceptSetup(t, conn)
		if _, ok := setup["setup"]; !ok {
			t.Error("Expected setup envelope")
		}
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return
		}
		got <- string(raw)
		conn.WriteMessage(websocket.TextMessage, []byte(`{"serverContent":{"turnComplete":true}}`))
		conn.ReadMessage() // wait for client close
	})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	c, err := d.Dial(ctx, protocol.SessionConfig{VoiceID: "Puck"})
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	defer c.Close()

	if err := c.WriteAudio([]byte(`{"realtimeInput":{}}`)); err != nil {
		t.Fatalf("WriteAudio failed: %v", err)
	}
	select {
	case raw := <-got:
		if raw != `{"realtimeInput":{}}` {
			t.Errorf("Unexpected frame at server: %s", raw)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("server never received audio")
	}

	raw, err := c.ReadFrame()
	if err != nil {
		t.Fatalf("ReadFrame failed: %v", err)
	}
	if !strings.Contains(string(raw), "turnComplete") {
		t.Errorf("Unexpected inbound frame %s", raw)
	}
}

func TestDial_Timeout(t *testing.T) {
	_, d := fakeServer(t, func(conn *websocket.Conn) {
		conn.ReadMessage()
		time.Sleep(500 * time.Millisecond) // never acknowledge
	})

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	_, err := d.Dial(ctx, protocol.SessionConfig{})
	if !fault.IsNetwork(err) {
		t.Errorf("Expected NetworkError on timeout, got %v", err)
	}
}

func TestDial_SetupRejected(t *testing.T) {
	_, d := fakeServer(t, func(conn *websocket.Conn) {
		conn.ReadMessage()
		conn.WriteMessage(websocket.TextMessage, []byte(`{"error":{"code":400,"message":"unknown voice"}}`))
		conn.ReadMessage()
	})

	_, err := d.Dial(context.Background(), protocol.SessionConfig{VoiceID: "Nobody"})
	if !fault.IsNetwork(err) || !strings.Contains(err.Error(), "unknown voice") {
		t.Errorf("Expected NetworkError carrying the server message, got %v", err)
	}
}

func TestDial_BadKey(t *testing.T) {
	srv, _ := fakeServer(t, func(*websocket.Conn) {})
	d := NewDialer("ws"+strings.TrimPrefix(srv.URL, "http"), "wrong", "gemini-test")

	_, err := d.Dial(context.Background(), protocol.SessionConfig{})
	if !fault.IsNetwork(err) {
		t.Errorf("Expected NetworkError for rejected handshake, got %v", err)
	}
}

func TestReadFrame_CloseClassification(t *testing.T) {
	tests := []struct {
		name     string
		code     int
		graceful bool
	}{
		{"normal closure", websocket.CloseNormalClosure, true},
		{"server error", websocket.CloseInternalServerErr, false},
		{"policy violation", websocket.ClosePolicyViolation, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, d := fakeServer(t, func(conn *websocket.Conn) {
				acceptSetup(t, conn)
				conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(tt.code, "bye"))
				time.Sleep(50 * time.Millisecond)
			})

			c, err := d.Dial(context.Background(), protocol.SessionConfig{})
			if err != nil {
				t.Fatalf("Dial failed: %v", err)
			}
			defer c.Close()

			_, err = c.ReadFrame()
			if tt.graceful && !errors.Is(err, protocol.ErrClosed) {
				t.Errorf("Expected ErrClosed, got %v", err)
			}
			if !tt.graceful && !fault.IsNetwork(err) {
				t.Errorf("Expected NetworkError, got %v", err)
			}
		})
	}
}

func TestConn_CloseIdempotent(t *testing.T) {
	_, d := fakeServer(t, func(conn *websocket.Conn) {
		acceptSetup(t, conn)
		conn.ReadMessage()
	})

	c, err := d.Dial(context.Background(), protocol.SessionConfig{})
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	c.Close()
	c.Close()

	if err := c.WriteAudio([]byte("{}")); !errors.Is(err, protocol.ErrClosed) {
		t.Errorf("Expected ErrClosed after close, got %v", err)
	}
	if _, err := c.ReadFrame(); !errors.Is(err, protocol.ErrClosed) {
		t.Errorf("Expected ErrClosed reading a locally closed conn, got %v", err)
	}
}
