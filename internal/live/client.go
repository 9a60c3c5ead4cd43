// Package live is the duplex transport to the Gemini Live streaming API.
package live

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/lexiqai/voice-coach/internal/fault"
	"github.com/lexiqai/voice-coach/internal/observability"
	"github.com/lexiqai/voice-coach/internal/protocol"
)

// DefaultBaseURL is the public Gemini Live WebSocket endpoint.
const DefaultBaseURL = "wss://generativelanguage.googleapis.com/ws"

const servicePath = "/google.ai.generativelanguage.v1beta.GenerativeService.BidiGenerateContent"

// Dialer opens Gemini Live sessions.
type Dialer struct {
	BaseURL      string
	APIKey       string
	Model        string
	WriteTimeout time.Duration

	ws *websocket.Dialer
}

// NewDialer creates a dialer for model authenticated by apiKey.
func NewDialer(baseURL, apiKey, model string) *Dialer {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Dialer{
		BaseURL:      baseURL,
		APIKey:       apiKey,
		Model:        model,
		WriteTimeout: 5 * time.Second,
		ws: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: 10 * time.Second,
			ReadBufferSize:   64 * 1024,
			WriteBufferSize:  64 * 1024,
		},
	}
}

func (d *Dialer) endpoint() string {
	return fmt.Sprintf("%s%s?key=%s", d.BaseURL, servicePath, url.QueryEscape(d.APIKey))
}

// Dial connects, sends the setup frame and waits for the server's
// acknowledgement. The context bounds the whole open attempt.
func (d *Dialer) Dial(ctx context.Context, cfg protocol.SessionConfig) (*Conn, error) {
	logger := observability.WithContext(ctx)

	ws, resp, err := d.ws.DialContext(ctx, d.endpoint(), nil)
	if err != nil {
		if resp != nil {
			return nil, &fault.NetworkError{Op: "dial", Err: fmt.Errorf("%w (status %d)", err, resp.StatusCode)}
		}
		return nil, &fault.NetworkError{Op: "dial", Err: err}
	}

	c := &Conn{ws: ws, writeTimeout: d.WriteTimeout, logger: logger}

	setup, err := protocol.EncodeSetup(d.Model, cfg)
	if err != nil {
		ws.Close()
		return nil, fmt.Errorf("encode setup: %w", err)
	}
	if err := c.write(setup); err != nil {
		ws.Close()
		return nil, &fault.NetworkError{Op: "send setup", Err: err}
	}

	if err := c.awaitSetup(ctx); err != nil {
		ws.Close()
		return nil, err
	}

	logger.Info().Str("model", d.Model).Str("voice", cfg.VoiceID).Msg("Live session open")
	return c, nil
}

// Conn is an open session stream. WriteAudio may be called concurrently
// with ReadFrame; ReadFrame itself must have a single caller.
type Conn struct {
	ws           *websocket.Conn
	writeTimeout time.Duration
	logger       zerolog.Logger

	writeMu sync.Mutex
	closed  atomic.Bool
	once    sync.Once
}

func (c *Conn) awaitSetup(ctx context.Context) error {
	if deadline, ok := ctx.Deadline(); ok {
		c.ws.SetReadDeadline(deadline)
	}
	// unblock the read below if ctx is cancelled without a deadline
	stop := context.AfterFunc(ctx, func() { c.ws.SetReadDeadline(time.Now()) })
	defer stop()

	for {
		_, raw, err := c.ws.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return &fault.NetworkError{Op: "await setup", Err: ctx.Err()}
			}
			return &fault.NetworkError{Op: "await setup", Err: err}
		}
		msgs, err := protocol.Decode(raw)
		if err != nil {
			return err
		}
		for _, m := range msgs {
			switch m.Kind {
			case protocol.KindSetupComplete:
				c.ws.SetReadDeadline(time.Time{})
				return nil
			case protocol.KindError:
				return &fault.NetworkError{Op: "setup", Err: errors.New(m.Detail)}
			}
		}
	}
}

func (c *Conn) write(data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if c.writeTimeout > 0 {
		c.ws.SetWriteDeadline(time.Now().Add(c.writeTimeout))
	}
	return c.ws.WriteMessage(websocket.TextMessage, data)
}

// WriteAudio sends one realtime input frame.
func (c *Conn) WriteAudio(data []byte) error {
	if c.closed.Load() {
		return protocol.ErrClosed
	}
	if err := c.write(data); err != nil {
		return &fault.NetworkError{Op: "write", Err: err}
	}
	return nil
}

// ReadFrame blocks for the next inbound frame. A normal closure by either
// side yields protocol.ErrClosed; anything else is a NetworkError.
func (c *Conn) ReadFrame() ([]byte, error) {
	_, raw, err := c.ws.ReadMessage()
	if err == nil {
		return raw, nil
	}
	if c.closed.Load() || websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
		return nil, protocol.ErrClosed
	}
	return nil, &fault.NetworkError{Op: "read", Err: err}
}

// Close sends a normal closure and releases the socket. Safe to call more
// than once.
func (c *Conn) Close() error {
	var err error
	c.once.Do(func() {
		c.closed.Store(true)
		c.writeMu.Lock()
		_ = c.ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, "session closed"),
			time.Now().Add(time.Second))
		c.writeMu.Unlock()
		err = c.ws.Close()
	})
	return err
}
