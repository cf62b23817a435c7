package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-proctor/internal/model"
	"github.com/stemsi/exstem-proctor/internal/response"
	ws "github.com/stemsi/exstem-proctor/internal/websocket"
)

const (
	keepAliveInterval = 30 * time.Second
	maxClockSkew      = time.Minute
)

// buildUpgrader creates a WebSocket upgrader with origin validation.
// allowedOrigins comes from config.Config.AllowedOrigins.
// An empty slice permits all origins (development mode).
func buildUpgrader(allowedOrigins []string) websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			if len(allowedOrigins) == 0 {
				return true
			}
			origin := r.Header.Get("Origin")
			if origin == "" {
				// Non-browser clients (the taker CLI) send no Origin.
				return true
			}
			for _, allowed := range allowedOrigins {
				if strings.EqualFold(allowed, origin) {
					return true
				}
			}
			return false
		},
	}
}

// ProctorFeed is the proctor event surface.
type ProctorFeed interface {
	Record(ctx context.Context, ev *model.ProctorEvent) error
	ListForTest(ctx context.Context, who model.Identity, testID uuid.UUID) ([]model.ProctorEvent, error)
	Subscribe(ctx context.Context, testID uuid.UUID) *redis.PubSub
}

// TestChecker reports whether a test exists.
type TestChecker interface {
	Exists(ctx context.Context, id uuid.UUID) (bool, error)
}

// ProctorHandler handles the taker event stream and the authority views of it.
type ProctorHandler struct {
	feed     ProctorFeed
	tests    TestChecker
	log      zerolog.Logger
	upgrader websocket.Upgrader
	now      func() time.Time
}

// NewProctorHandler creates a new ProctorHandler.
func NewProctorHandler(feed ProctorFeed, tests TestChecker, log zerolog.Logger, allowedOrigins []string) *ProctorHandler {
	return &ProctorHandler{
		feed:     feed,
		tests:    tests,
		log:      log.With().Str("component", "proctor_handler").Logger(),
		upgrader: buildUpgrader(allowedOrigins),
		now:      time.Now,
	}
}

// TakerStream godoc
// WS /ws/v1/tests/:test_id/proctor
// Receives violation reports from a taker client. Reports are informational
// and never change how the attempt is graded.
func (h *ProctorHandler) TakerStream(c *gin.Context) {
	who, ok := requireIdentity(c)
	if !ok {
		return
	}

	testID, ok := uuidParam(c, "test_id")
	if !ok {
		return
	}

	exists, err := h.tests.Exists(c.Request.Context(), testID)
	if err != nil {
		failFromError(c, h.log, err)
		return
	}
	if !exists {
		response.Fail(c, http.StatusNotFound, response.ErrNotFound)
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Error().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	defer conn.Close()

	wsLog := h.log.With().
		Int("student_id", who.UserID).
		Str("test_id", testID.String()).
		Logger()

	wsLog.Info().Msg("Taker connected")

	for {
		data, err := ws.ReadMessage(conn)
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				wsLog.Warn().Err(err).Msg("Unexpected close")
			} else {
				wsLog.Debug().Msg("Connection closed")
			}
			return
		}

		var env ws.RequestEnvelope
		if err := json.Unmarshal(data, &env); err != nil {
			_ = ws.WriteError(conn, "malformed message")
			continue
		}

		switch env.Action {
		case ws.ActionViolation:
			h.handleViolation(conn, wsLog, who, testID, data)
		case ws.ActionPing:
			_ = ws.WriteTyped(conn, ws.PongResponse{Event: ws.EventPong})
		default:
			wsLog.Warn().Str("action", string(env.Action)).Msg("Unknown action")
			_ = ws.WriteError(conn, "unknown action: "+string(env.Action))
		}
	}
}

func (h *ProctorHandler) handleViolation(conn *websocket.Conn, wsLog zerolog.Logger, who model.Identity, testID uuid.UUID, data []byte) {
	var req ws.ViolationRequest
	if err := json.Unmarshal(data, &req); err != nil {
		_ = ws.WriteError(conn, "malformed violation")
		return
	}

	switch req.Kind {
	case model.ProctorEventVisibilityHidden, model.ProctorEventInputBlocked:
	default:
		_ = ws.WriteError(conn, "unknown kind: "+string(req.Kind))
		return
	}
	if req.Count < 0 {
		_ = ws.WriteError(conn, "count must not be negative")
		return
	}

	now := h.now().UTC()
	at := req.At.UTC()
	if at.IsZero() || at.After(now.Add(maxClockSkew)) {
		at = now
	}

	ev := &model.ProctorEvent{
		TestID:         testID,
		StudentID:      who.UserID,
		Kind:           req.Kind,
		ViolationCount: req.Count,
		RecordedAt:     at,
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := h.feed.Record(ctx, ev); err != nil {
		wsLog.Error().Err(err).Msg("Failed to queue proctor event")
		_ = ws.WriteError(conn, "record failed")
		return
	}

	_ = ws.WriteTyped(conn, ws.RecordedResponse{Event: ws.EventRecorded, Count: req.Count})
}

// ListEvents godoc
// GET /api/v1/admin/tests/:test_id/proctor-events
// Lists stored proctor events for a test in recording order.
func (h *ProctorHandler) ListEvents(c *gin.Context) {
	who, ok := requireIdentity(c)
	if !ok {
		return
	}

	testID, ok := uuidParam(c, "test_id")
	if !ok {
		return
	}

	events, err := h.feed.ListForTest(c.Request.Context(), who, testID)
	if err != nil {
		failFromError(c, h.log, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"events": events})
}

// LiveFeed godoc
// GET /api/v1/admin/tests/:test_id/proctor/live
// Streams live proctor events for a test over Server-Sent Events.
func (h *ProctorHandler) LiveFeed(c *gin.Context) {
	if _, ok := requireIdentity(c); !ok {
		return
	}

	testID, ok := uuidParam(c, "test_id")
	if !ok {
		return
	}

	reqCtx := c.Request.Context()
	exists, err := h.tests.Exists(reqCtx, testID)
	if err != nil {
		failFromError(c, h.log, err)
		return
	}
	if !exists {
		response.Fail(c, http.StatusNotFound, response.ErrNotFound)
		return
	}

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")

	pubsub := h.feed.Subscribe(reqCtx, testID)
	defer pubsub.Close()
	ch := pubsub.Channel()

	keepAlive := time.NewTicker(keepAliveInterval)
	defer keepAlive.Stop()

	pingPayload, _ := json.Marshal(map[string]string{"type": "ping"})

	h.log.Info().Str("test_id", testID.String()).Msg("Authority attached to live proctor feed")
	c.Writer.WriteHeader(http.StatusOK)
	c.Writer.Flush()

	for {
		select {
		case <-reqCtx.Done():
			h.log.Info().Str("test_id", testID.String()).Msg("Authority detached from live proctor feed")
			return

		case msg, ok := <-ch:
			if !ok {
				return
			}
			writeSSE(c, []byte(msg.Payload))

		case <-keepAlive.C:
			writeSSE(c, pingPayload)
		}
	}
}

func writeSSE(c *gin.Context, payload []byte) {
	_, _ = c.Writer.Write([]byte("data: "))
	_, _ = c.Writer.Write(payload)
	_, _ = c.Writer.Write([]byte("\n\n"))
	c.Writer.Flush()
}
