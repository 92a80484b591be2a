package relay

import (
	"context"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// SocketConfig describes the provider's streaming endpoint.
type SocketConfig struct {
	// URL is the listen endpoint, e.g. wss://api.deepgram.com/v1/listen.
	URL      string
	Model    string
	Language string

	// Params carries extra query parameters, e.g. encoding metadata for raw
	// PCM capture.
	Params map[string]string

	ConnectTimeout time.Duration
}

// webSocket is the gorilla-backed Socket. The ephemeral credential rides in
// the websocket subprotocol pair ("token", key), never in a header or the
// URL, mirroring what browser clients are limited to.
type webSocket struct {
	cfg SocketConfig

	mu     sync.Mutex
	conn   *websocket.Conn
	closed bool

	events chan SocketEvent
	done   chan struct{}
	wg     sync.WaitGroup
}

// NewWebSocket builds an unopened socket for one session.
func NewWebSocket(cfg SocketConfig) Socket {
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = 10 * time.Second
	}
	return &webSocket{
		cfg:    cfg,
		events: make(chan SocketEvent, 64),
		done:   make(chan struct{}),
	}
}

func (w *webSocket) buildURL() (string, error) {
	u, err := url.Parse(w.cfg.URL)
	if err != nil {
		return "", fmt.Errorf("parse socket url: %w", err)
	}

	q := u.Query()
	if w.cfg.Model != "" {
		q.Set("model", w.cfg.Model)
	}
	if w.cfg.Language != "" {
		q.Set("language", w.cfg.Language)
	}
	q.Set("interim_results", "true")
	q.Set("punctuate", "true")
	for k, v := range w.cfg.Params {
		q.Set(k, v)
	}

	u.RawQuery = q.Encode()
	return u.String(), nil
}

// Open dials asynchronously; the outcome arrives on Events as SocketOpened
// or SocketError followed by SocketClosed.
func (w *webSocket) Open(ctx context.Context, credential string) error {
	wsURL, err := w.buildURL()
	if err != nil {
		return err
	}

	dialer := websocket.Dialer{
		Subprotocols:     []string{"token", credential},
		HandshakeTimeout: w.cfg.ConnectTimeout,
	}

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()

		dialCtx, cancel := context.WithTimeout(ctx, w.cfg.ConnectTimeout)
		defer cancel()

		conn, resp, err := dialer.DialContext(dialCtx, wsURL, nil)
		if err != nil {
			if resp != nil {
				err = fmt.Errorf("%w: dial failed with status %d: %v", ErrConnect, resp.StatusCode, err)
			} else {
				err = fmt.Errorf("%w: %v", ErrConnect, err)
			}
			w.emit(SocketEvent{Kind: SocketError, Err: err})
			w.emit(SocketEvent{Kind: SocketClosed})
			return
		}

		w.mu.Lock()
		if w.closed {
			w.mu.Unlock()
			conn.Close()
			w.emit(SocketEvent{Kind: SocketClosed})
			return
		}
		w.conn = conn
		w.mu.Unlock()

		w.emit(SocketEvent{Kind: SocketOpened})
		w.readLoop(conn)
	}()

	return nil
}

func (w *webSocket) readLoop(conn *websocket.Conn) {
	for {
		_, payload, err := conn.ReadMessage()
		if err != nil {
			w.mu.Lock()
			closed := w.closed
			w.mu.Unlock()

			if !closed && !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				w.emit(SocketEvent{Kind: SocketError, Err: fmt.Errorf("socket read: %w", err)})
			}
			w.emit(SocketEvent{Kind: SocketClosed})
			return
		}
		w.emit(SocketEvent{Kind: SocketMessage, Payload: payload})
	}
}

func (w *webSocket) emit(ev SocketEvent) {
	select {
	case w.events <- ev:
	case <-w.done:
	}
}

func (w *webSocket) Send(data []byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.conn == nil {
		return fmt.Errorf("socket not open")
	}
	if w.closed {
		return fmt.Errorf("socket closed")
	}
	if err := w.conn.WriteMessage(websocket.BinaryMessage, data); err != nil {
		return fmt.Errorf("socket write: %w", err)
	}
	return nil
}

func (w *webSocket) Events() <-chan SocketEvent {
	return w.events
}

// Close is idempotent. It unblocks any pending emit, sends a best-effort
// close frame and drops the connection.
func (w *webSocket) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	conn := w.conn
	w.mu.Unlock()

	close(w.done)

	if conn != nil {
		_ = conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		conn.Close()
	}
	return nil
}
