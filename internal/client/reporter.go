package client

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-proctor/internal/session"
	ws "github.com/stemsi/exstem-proctor/internal/websocket"
)

const (
	reportBuffer = 32
	pingInterval = 30 * time.Second
	writeWait    = 5 * time.Second
)

// Reporter mirrors session proctoring events to the server over a WebSocket.
// Delivery is best-effort: a full buffer or a dead connection drops events.
type Reporter struct {
	conn   *websocket.Conn
	events chan session.Event
	log    zerolog.Logger

	closeOnce sync.Once
	done      chan struct{}
	wg        sync.WaitGroup
}

// ProctorURL derives the taker stream URL from the API base URL.
func ProctorURL(baseURL string, testID uuid.UUID, token string) (string, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return "", fmt.Errorf("parse base url: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	u.Path += "/ws/v1/tests/" + testID.String() + "/proctor"
	u.RawQuery = url.Values{"token": {token}}.Encode()
	return u.String(), nil
}

// DialReporter connects to the proctor stream of a test.
func DialReporter(ctx context.Context, baseURL string, testID uuid.UUID, token string, log zerolog.Logger) (*Reporter, error) {
	target, err := ProctorURL(baseURL, testID, token)
	if err != nil {
		return nil, err
	}

	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, target, nil)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		return nil, fmt.Errorf("dial proctor stream: %w", err)
	}

	r := &Reporter{
		conn:   conn,
		events: make(chan session.Event, reportBuffer),
		log:    log.With().Str("component", "proctor_reporter").Logger(),
		done:   make(chan struct{}),
	}
	r.wg.Add(2)
	go r.writeLoop()
	go r.readLoop()
	return r, nil
}

// Report queues an event without blocking. It is safe to pass as a session.OnEvent callback.
func (r *Reporter) Report(ev session.Event) {
	select {
	case <-r.done:
		return
	default:
	}
	select {
	case r.events <- ev:
	default:
		r.log.Warn().Str("kind", string(ev.Kind)).Msg("Report buffer full, dropping event")
	}
}

// Close flushes queued events, closes the connection and waits for the loops to exit.
func (r *Reporter) Close() {
	r.closeOnce.Do(func() {
		close(r.done)
	})
	r.wg.Wait()
}

func (r *Reporter) writeLoop() {
	defer r.wg.Done()
	defer r.conn.Close()

	ping := time.NewTicker(pingInterval)
	defer ping.Stop()

	for {
		select {
		case ev := <-r.events:
			r.send(ev)
		case <-ping.C:
			if err := ws.WriteTyped(r.conn, ws.PingRequest{Action: ws.ActionPing}); err != nil {
				r.log.Debug().Err(err).Msg("Ping failed")
			}
		case <-r.done:
			for {
				select {
				case ev := <-r.events:
					r.send(ev)
				default:
					msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
					_ = r.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
					return
				}
			}
		}
	}
}

func (r *Reporter) send(ev session.Event) {
	err := ws.WriteTyped(r.conn, ws.ViolationRequest{
		Action: ws.ActionViolation,
		Kind:   ev.Kind,
		Count:  ev.ViolationCount,
		At:     ev.At,
	})
	if err != nil {
		r.log.Debug().Err(err).Str("kind", string(ev.Kind)).Msg("Report failed")
	}
}

// readLoop drains server replies so control frames are processed.
func (r *Reporter) readLoop() {
	defer r.wg.Done()
	for {
		var env ws.ResponseEnvelope
		if err := ws.ReadJSON(r.conn, &env); err != nil {
			return
		}
		if env.Event == ws.EventError {
			r.log.Warn().Str("error", env.Error).Msg("Server rejected proctor report")
		}
	}
}
