package ws

import (
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/WebOS/backend/internal/providers/bus"
	"github.com/GriffinCanCode/WebOS/backend/internal/shared/id"
	"github.com/GriffinCanCode/WebOS/backend/internal/shared/types"
	"github.com/GriffinCanCode/WebOS/backend/internal/shared/utils"
)

// Frame types exchanged on /stream
const (
	TypeSystem    = "system"
	TypeJoinRoom  = "join_room"
	TypeLeaveRoom = "leave_room"
	TypeMessage   = "message"
	TypePing      = "ping"
	TypePong      = "pong"
	TypeJoined    = "joined"
	TypeLeft      = "left"
	TypeError     = "error"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	sendBuffer     = 64
	maxFrameSize   = utils.MaxPayloadSize + 4096
	maxPayloadNest = 32
)

// Config tunes the upgrader
type Config struct {
	// AllowedOrigins lists accepted Origin headers; empty accepts any
	AllowedOrigins []string
}

// Handler bridges WebSocket clients onto the bus
type Handler struct {
	bus      *bus.Bus
	logger   *zap.Logger
	upgrader websocket.Upgrader
}

// NewHandler creates a new WebSocket handler
func NewHandler(b *bus.Bus, logger *zap.Logger, cfg Config) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	allowed := make(map[string]bool, len(cfg.AllowedOrigins))
	for _, o := range cfg.AllowedOrigins {
		allowed[o] = true
	}

	return &Handler{
		bus:    b,
		logger: logger.Named("ws"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				if len(allowed) == 0 || allowed["*"] {
					return true
				}
				return allowed[r.Header.Get("Origin")]
			},
		},
	}
}

// conn is one connected client. All writes go through send and the writer
// goroutine.
type conn struct {
	id     string
	ws     *websocket.Conn
	logger *zap.Logger
	send   chan types.WSMessage
	done   chan struct{}
	once   sync.Once
}

// push queues a frame; a full buffer drops it
func (c *conn) push(frame types.WSMessage) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.send <- frame:
		return true
	case <-c.done:
		return false
	default:
		c.logger.Warn("send buffer full, dropping frame", zap.String("type", frame.Type))
		return false
	}
}

func (c *conn) close() {
	c.once.Do(func() { close(c.done) })
}

// HandleConnection upgrades the request and serves the client until it
// disconnects
func (h *Handler) HandleConnection(c *gin.Context) {
	wsConn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	cl := &conn{
		id:   id.NewClientID().String(),
		ws:   wsConn,
		send: make(chan types.WSMessage, sendBuffer),
		done: make(chan struct{}),
	}
	cl.logger = h.logger.With(zap.String("client", cl.id))

	if err := h.bus.ConnectRemote(cl.id, func(msg types.Message) {
		cl.push(messageFrame(msg))
	}); err != nil {
		h.logger.Warn("bus connect failed", zap.Error(err))
		_ = wsConn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseTryAgainLater, err.Error()))
		wsConn.Close()
		return
	}

	cl.logger.Info("client connected", zap.String("remote_addr", c.ClientIP()))
	cl.push(types.WSMessage{
		Type:      TypeSystem,
		Payload:   map[string]interface{}{"client_id": cl.id, "message": "Connected to WebOS bus"},
		Timestamp: time.Now().UnixMilli(),
	})

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		h.writeLoop(cl)
	}()

	h.readLoop(cl)

	cl.close()
	wg.Wait()
	h.bus.Disconnect(cl.id)
	wsConn.Close()
	cl.logger.Info("client disconnected")
}

func (h *Handler) readLoop(cl *conn) {
	cl.ws.SetReadLimit(maxFrameSize)
	_ = cl.ws.SetReadDeadline(time.Now().Add(pongWait))
	cl.ws.SetPongHandler(func(string) error {
		_ = h.bus.Touch(cl.id)
		return cl.ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := cl.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				cl.logger.Debug("websocket read error", zap.Error(err))
			}
			return
		}
		_ = cl.ws.SetReadDeadline(time.Now().Add(pongWait))

		var frame types.WSMessage
		if err := sonic.Unmarshal(data, &frame); err != nil {
			cl.push(errorFrame("", "malformed frame"))
			continue
		}
		if err := h.bus.Touch(cl.id); errors.Is(err, bus.ErrClientNotFound) {
			// Expired by the sweeper
			return
		}
		h.handleFrame(cl, frame)
	}
}

func (h *Handler) handleFrame(cl *conn, frame types.WSMessage) {
	switch frame.Type {
	case TypeJoinRoom:
		if err := h.bus.Join(cl.id, frame.Room); err != nil {
			cl.push(errorFrame(frame.Room, err.Error()))
			return
		}
		cl.push(types.WSMessage{Type: TypeJoined, Room: frame.Room, Timestamp: time.Now().UnixMilli()})

	case TypeLeaveRoom:
		if err := h.bus.Leave(cl.id, frame.Room); err != nil {
			cl.push(errorFrame(frame.Room, err.Error()))
			return
		}
		cl.push(types.WSMessage{Type: TypeLeft, Room: frame.Room, Timestamp: time.Now().UnixMilli()})

	case TypeMessage:
		if err := utils.ValidatePayload(frame.Payload, maxPayloadNest); err != nil {
			cl.push(errorFrame(frame.Room, err.Error()))
			return
		}
		if _, err := h.bus.Publish(frame.Room, frame.Event, frame.Payload, cl.id); err != nil {
			cl.push(errorFrame(frame.Room, err.Error()))
		}

	case TypePing:
		cl.push(types.WSMessage{Type: TypePong, Timestamp: time.Now().UnixMilli()})

	default:
		cl.push(errorFrame("", "unknown message type"))
	}
}

func (h *Handler) writeLoop(cl *conn) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case frame := <-cl.send:
			data, err := sonic.Marshal(frame)
			if err != nil {
				cl.logger.Warn("frame not encodable", zap.String("type", frame.Type), zap.Error(err))
				continue
			}
			_ = cl.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := cl.ws.WriteMessage(websocket.TextMessage, data); err != nil {
				cl.logger.Debug("websocket write failed", zap.Error(err))
				cl.close()
				// Unblock the reader
				cl.ws.Close()
				return
			}

		case <-ticker.C:
			_ = cl.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := cl.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				cl.close()
				cl.ws.Close()
				return
			}

		case <-cl.done:
			_ = cl.ws.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(writeWait))
			return
		}
	}
}

func messageFrame(msg types.Message) types.WSMessage {
	return types.WSMessage{
		Type:      TypeMessage,
		ID:        msg.ID,
		Room:      msg.Room,
		Event:     msg.Event,
		Payload:   msg.Payload,
		Sender:    msg.Sender,
		Timestamp: msg.Timestamp.UnixMilli(),
	}
}

func errorFrame(room, message string) types.WSMessage {
	return types.WSMessage{
		Type:      TypeError,
		Room:      room,
		Error:     message,
		Timestamp: time.Now().UnixMilli(),
	}
}
