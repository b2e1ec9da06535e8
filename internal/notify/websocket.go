package notify

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"golang.org/x/oauth2"
)

const (
	wsQueueSize    = 64
	wsWriteTimeout = 5 * time.Second
	wsDialTimeout  = 10 * time.Second
)

// wsMessage is the JSON frame sent per notification.
type wsMessage struct {
	Type    string    `json:"type"`
	Kind    string    `json:"kind"`
	Message string    `json:"message"`
	Time    time.Time `json:"time"`
}

// WebSocket forwards notifications as JSON frames to a listener, e.g. a
// desktop tray or browser UI. Notify never blocks: frames go through a
// bounded queue and are dropped when it is full.
type WebSocket struct {
	conn   *websocket.Conn
	queue  chan wsMessage
	logger *slog.Logger

	closeOnce sync.Once
	done      chan struct{}
	stopped   chan struct{}
	dropped   int
	mu        sync.Mutex
}

// DialWebSocket connects to url and starts the writer goroutine. When ts
// yields a token, the handshake carries it as the Authorization header;
// otherwise the relay is dialed anonymously.
func DialWebSocket(ctx context.Context, url string, ts oauth2.TokenSource, logger *slog.Logger) (*WebSocket, error) {
	if logger == nil {
		logger = slog.Default()
	}

	dialCtx, cancel := context.WithTimeout(ctx, wsDialTimeout)
	defer cancel()

	//nolint:bodyclose // coder/websocket closes the handshake response body itself
	conn, _, err := websocket.Dial(dialCtx, url, &websocket.DialOptions{HTTPHeader: handshakeHeader(ts, logger)})
	if err != nil {
		return nil, fmt.Errorf("notify: dialing %s: %w", url, err)
	}

	w := &WebSocket{
		conn:    conn,
		queue:   make(chan wsMessage, wsQueueSize),
		logger:  logger,
		done:    make(chan struct{}),
		stopped: make(chan struct{}),
	}

	go w.writeLoop()

	return w, nil
}

func handshakeHeader(ts oauth2.TokenSource, logger *slog.Logger) http.Header {
	h := http.Header{}
	if ts == nil {
		return h
	}

	tok, err := ts.Token()
	if err != nil {
		logger.Debug("websocket relay dialed without credentials", slog.String("reason", err.Error()))
		return h
	}

	h.Set("Authorization", tok.Type()+" "+tok.AccessToken)

	return h
}

// Notify queues the message for delivery.
func (w *WebSocket) Notify(message, kind string) {
	msg := wsMessage{Type: "notification", Kind: kind, Message: message, Time: time.Now().UTC()}

	select {
	case <-w.done:
		return
	default:
	}

	select {
	case w.queue <- msg:
	default:
		w.mu.Lock()
		w.dropped++
		w.mu.Unlock()

		w.logger.Warn("notification dropped, websocket queue full", slog.String("kind", kind))
	}
}

// Dropped returns how many notifications were discarded because the queue was full.
func (w *WebSocket) Dropped() int {
	w.mu.Lock()
	defer w.mu.Unlock()

	return w.dropped
}

func (w *WebSocket) writeLoop() {
	defer close(w.stopped)

	for {
		select {
		case <-w.done:
			w.flush()
			return
		case msg := <-w.queue:
			w.write(msg)
		}
	}
}

func (w *WebSocket) write(msg wsMessage) {
	ctx, cancel := context.WithTimeout(context.Background(), wsWriteTimeout)
	defer cancel()

	if err := wsjson.Write(ctx, w.conn, msg); err != nil {
		w.logger.Warn("websocket notification failed", slog.String("error", err.Error()))
	}
}

// Close flushes queued frames and closes the connection normally.
func (w *WebSocket) Close() error {
	var err error

	w.closeOnce.Do(func() {
		close(w.done)
		<-w.stopped
		err = w.conn.Close(websocket.StatusNormalClosure, "")
	})

	return err
}

// flush writes whatever is still queued.
func (w *WebSocket) flush() {
	for {
		select {
		case msg := <-w.queue:
			w.write(msg)
		default:
			return
		}
	}
}
