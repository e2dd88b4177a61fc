package handlers

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/gofiber/contrib/websocket"
	"golang.org/x/time/rate"

	"uptask/internal/logging"
	"uptask/internal/models"
	"uptask/internal/services"
	"uptask/pkg/apierrors"
)

// RealtimeWebSocketHandler serves /ws. Clients join project rooms and receive task events
// for those projects; all mutations go through the HTTP API.
type RealtimeWebSocketHandler struct {
	realtime    *services.RealtimeService
	rooms       *services.RoomRegistry
	metrics     *services.Metrics
	frameRate   rate.Limit
	frameBurst  int
	pingEvery   time.Duration
	eventBuffer int
}

// NewRealtimeWebSocketHandler creates a new realtime handler. Inbound frames are throttled
// to framesPerSecond with the given burst per connection.
func NewRealtimeWebSocketHandler(realtime *services.RealtimeService, rooms *services.RoomRegistry, metrics *services.Metrics, framesPerSecond float64, burst int) *RealtimeWebSocketHandler {
	if framesPerSecond <= 0 {
		framesPerSecond = 5
	}
	if burst <= 0 {
		burst = 20
	}
	return &RealtimeWebSocketHandler{
		realtime:    realtime,
		rooms:       rooms,
		metrics:     metrics,
		frameRate:   rate.Limit(framesPerSecond),
		frameBurst:  burst,
		pingEvery:   30 * time.Second,
		eventBuffer: 64,
	}
}

// Handle is the WebSocket handler for /ws
func (h *RealtimeWebSocketHandler) Handle(c *websocket.Conn) {
	user, ok := c.Locals("user").(*models.User)
	if !ok || user == nil {
		log.Printf("[ROOMS] Connection rejected: missing session user")
		_ = c.WriteJSON(models.RealtimeEvent{Type: models.EventError, Data: map[string]string{"message": "unauthorized"}})
		return
	}

	conn, err := h.rooms.Connect(user.ID.Hex(), h.eventBuffer)
	if err != nil {
		log.Printf("[ROOMS] Connection rejected: %v", err)
		return
	}
	logger := logging.WithConnection(conn.ID, conn.UserID)
	logger.Info("realtime connection opened")

	done := make(chan struct{})
	var closeOnce sync.Once
	closeDone := func() { closeOnce.Do(func() { close(done) }) }

	// Write mutex serializes JSON frames and protocol pings
	var writeMu sync.Mutex

	go func() {
		defer func() {
			if r := recover(); r != nil {
				logger.Error("write loop recovered", "panic", r)
			}
		}()
		for {
			select {
			case <-done:
				return
			case <-conn.Done():
				// Registry shut down; unblock the read loop
				_ = c.Close()
				return
			case event := <-conn.Events():
				writeMu.Lock()
				err := c.WriteJSON(event)
				writeMu.Unlock()
				if err != nil {
					logger.Warn("write failed", "error", err)
					return
				}
			}
		}
	}()

	go func() {
		ticker := time.NewTicker(h.pingEvery)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				writeMu.Lock()
				err := c.WriteMessage(websocket.PingMessage, nil)
				writeMu.Unlock()
				if err != nil {
					return
				}
			case <-done:
				return
			}
		}
	}()

	defer func() {
		closeDone()
		h.rooms.Disconnect(conn.ID)
		logger.Info("realtime connection closed")
	}()

	h.rooms.Send(conn.ID, models.RealtimeEvent{
		Type: models.EventConnected,
		Data: map[string]string{"connection_id": conn.ID},
	})

	limiter := rate.NewLimiter(h.frameRate, h.frameBurst)
	ctx := context.Background()

	for {
		_, msg, err := c.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logger.Debug("read ended", "error", err)
			}
			return
		}

		if !limiter.Allow() {
			h.sendError(conn.ID, "", "Too many messages, slow down")
			continue
		}

		var frame models.ClientFrame
		if err := json.Unmarshal(msg, &frame); err != nil {
			h.sendError(conn.ID, "", "Invalid message format")
			continue
		}
		h.metrics.RecordInbound(frame.Type)

		h.handleFrame(ctx, conn.ID, user, frame)
	}
}

func (h *RealtimeWebSocketHandler) handleFrame(ctx context.Context, connID string, user *models.User, frame models.ClientFrame) {
	switch frame.Type {
	case models.FrameJoinProject:
		if err := h.realtime.JoinProjectRoom(ctx, connID, frame.ProjectID, user); err != nil {
			if apierrors.HTTPStatus(apierrors.KindOf(err)) >= 500 {
				log.Printf("[ROOMS] Join failed for conn=%s project=%s: %v", connID, frame.ProjectID, err)
			}
			h.sendError(connID, frame.ProjectID, apierrors.MessageOf(err))
			return
		}
		h.rooms.Send(connID, models.RealtimeEvent{Type: models.EventJoined, ProjectID: frame.ProjectID})

	case models.FrameLeaveProject:
		h.realtime.LeaveProjectRoom(connID, frame.ProjectID)
		h.rooms.Send(connID, models.RealtimeEvent{Type: models.EventLeft, ProjectID: frame.ProjectID})

	case models.FramePing:
		h.rooms.Send(connID, models.RealtimeEvent{Type: models.EventPong})

	default:
		h.sendError(connID, frame.ProjectID, "Unknown message type")
	}
}

func (h *RealtimeWebSocketHandler) sendError(connID, projectID, message string) {
	h.rooms.Send(connID, models.RealtimeEvent{
		Type:      models.EventError,
		ProjectID: projectID,
		Data:      map[string]string{"message": message},
	})
}
