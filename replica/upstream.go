package replica

import (
	"context"
	"sync"
	"time"

	"collabtext/core"
	"collabtext/protocol"
	"github.com/cenkalti/backoff"
	"github.com/gorilla/websocket"
)

const (
	sendBuffer = 256
	writeWait  = 10 * time.Second
)

// Upstream is a replica's connection to the relay. Messages queued while the
// connection is down are buffered; once the buffer overflows, messages are
// dropped and the next connect is flagged so the owner can resend a snapshot.
type Upstream struct {
	url        string
	maxBackoff time.Duration
	onMessage  func(protocol.Message)
	onConnect  func(dropped bool)

	send chan []byte

	mu      sync.Mutex
	dropped bool
}

// NewUpstream creates a relay client for url. onMessage receives every decoded
// message; onConnect runs after each successful dial.
func NewUpstream(url string, maxBackoff time.Duration, onMessage func(protocol.Message), onConnect func(dropped bool)) *Upstream {
	return &Upstream{
		url:        url,
		maxBackoff: maxBackoff,
		onMessage:  onMessage,
		onConnect:  onConnect,
		send:       make(chan []byte, sendBuffer),
	}
}

func (u *Upstream) String() string {
	return "Upstream " + u.url
}

// Send queues m for the relay without blocking.
func (u *Upstream) Send(m protocol.Message) {
	data, err := protocol.Encode(m)
	if err != nil {
		core.LogError(u, "Unable to encode message: ", err)
		return
	}
	select {
	case u.send <- data:
	default:
		u.mu.Lock()
		u.dropped = true
		u.mu.Unlock()
		core.LogWarn(u, "Send buffer full, dropping ", m.Type)
	}
}

// Run keeps the connection up until ctx is cancelled, redialling with
// exponential backoff.
func (u *Upstream) Run(ctx context.Context) error {
	for {
		var conn *websocket.Conn
		dial := func() error {
			c, _, err := websocket.DefaultDialer.DialContext(ctx, u.url, nil)
			if err != nil {
				core.LogDebug(u, "Dial failed: ", err)
				return err
			}
			conn = c
			return nil
		}
		b := backoff.NewExponentialBackOff()
		b.MaxElapsedTime = 0
		if u.maxBackoff > 0 {
			b.MaxInterval = u.maxBackoff
		}
		if err := backoff.Retry(dial, backoff.WithContext(b, ctx)); err != nil || conn == nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}
		core.LogInfo(u, "Connected")

		u.mu.Lock()
		dropped := u.dropped
		u.dropped = false
		u.mu.Unlock()
		if u.onConnect != nil {
			u.onConnect(dropped)
		}

		u.serve(ctx, conn)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		core.LogWarn(u, "Connection lost, reconnecting")
	}
}

// serve pumps messages over conn until either side fails or ctx ends.
func (u *Upstream) serve(ctx context.Context, conn *websocket.Conn) {
	defer conn.Close()
	conn.SetReadLimit(4 << 20)

	readErr := make(chan error, 1)
	go func() {
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				readErr <- err
				return
			}
			m, err := protocol.Decode(data)
			if err != nil {
				core.LogWarn(u, "Ignoring malformed message: ", err)
				continue
			}
			u.onMessage(m)
		}
	}()

	for {
		select {
		case <-ctx.Done():
			conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
			return
		case err := <-readErr:
			core.LogDebug(u, "Read failed: ", err)
			return
		case data := <-u.send:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				core.LogDebug(u, "Write failed: ", err)
				u.mu.Lock()
				u.dropped = true
				u.mu.Unlock()
				return
			}
		}
	}
}
