package ws

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/WebOS/backend/internal/providers/bus"
	"github.com/GriffinCanCode/WebOS/backend/internal/shared/types"
)

func newServer(t *testing.T) (*bus.Bus, string) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	b := bus.New(bus.DefaultConfig(), zap.NewNop(), nil)
	router := gin.New()
	router.GET("/stream", NewHandler(b, zap.NewNop(), Config{}).HandleConnection)

	srv := httptest.NewServer(router)
	t.Cleanup(func() {
		srv.Close()
		b.Close()
	})
	return b, "ws" + strings.TrimPrefix(srv.URL, "http") + "/stream"
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	welcome := read(t, conn)
	require.Equal(t, TypeSystem, welcome.Type)
	return conn
}

func read(t *testing.T, conn *websocket.Conn) types.WSMessage {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	var frame types.WSMessage
	require.NoError(t, sonic.Unmarshal(data, &frame))
	return frame
}

// readUntil skips frames until match returns true
func readUntil(t *testing.T, conn *websocket.Conn, match func(types.WSMessage) bool) types.WSMessage {
	t.Helper()
	for i := 0; i < 10; i++ {
		if frame := read(t, conn); match(frame) {
			return frame
		}
	}
	t.Fatal("expected frame not received")
	return types.WSMessage{}
}

func send(t *testing.T, conn *websocket.Conn, frame types.WSMessage) {
	t.Helper()
	data, err := sonic.Marshal(frame)
	require.NoError(t, err)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, data))
}

func TestPingPong(t *testing.T) {
	_, url := newServer(t)
	conn := dial(t, url)

	send(t, conn, types.WSMessage{Type: TypePing})
	assert.Equal(t, TypePong, read(t, conn).Type)
}

func TestRoomMessagesReachMembers(t *testing.T) {
	b, url := newServer(t)
	alice := dial(t, url)
	bob := dial(t, url)

	for _, c := range []*websocket.Conn{alice, bob} {
		send(t, c, types.WSMessage{Type: TypeJoinRoom, Room: "chat"})
		readUntil(t, c, func(f types.WSMessage) bool { return f.Type == TypeJoined })
	}
	assert.Equal(t, 2, b.Rooms()["chat"])

	send(t, alice, types.WSMessage{Type: TypeMessage, Room: "chat", Event: "say", Payload: "hi"})

	got := readUntil(t, bob, func(f types.WSMessage) bool {
		return f.Type == TypeMessage && f.Event == "say"
	})
	assert.Equal(t, "chat", got.Room)
	assert.Equal(t, "hi", got.Payload)
	assert.NotEmpty(t, got.Sender)

	history := b.History("chat", 0)
	require.Len(t, history, 1)
	assert.Equal(t, "say", history[0].Event)
}

func TestLeaveAnnouncesToRoom(t *testing.T) {
	_, url := newServer(t)
	alice := dial(t, url)
	bob := dial(t, url)

	for _, c := range []*websocket.Conn{alice, bob} {
		send(t, c, types.WSMessage{Type: TypeJoinRoom, Room: "chat"})
		readUntil(t, c, func(f types.WSMessage) bool { return f.Type == TypeJoined })
	}

	send(t, alice, types.WSMessage{Type: TypeLeaveRoom, Room: "chat"})
	readUntil(t, alice, func(f types.WSMessage) bool { return f.Type == TypeLeft })

	got := readUntil(t, bob, func(f types.WSMessage) bool {
		return f.Type == TypeMessage && f.Event == bus.EventLeft
	})
	assert.Equal(t, "chat", got.Room)
}

func TestInvalidFramesAreRejected(t *testing.T) {
	_, url := newServer(t)
	conn := dial(t, url)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("{not json")))
	assert.Equal(t, TypeError, read(t, conn).Type)

	send(t, conn, types.WSMessage{Type: TypeJoinRoom, Room: "bad room!"})
	assert.Equal(t, TypeError, read(t, conn).Type)

	send(t, conn, types.WSMessage{Type: "shout"})
	frame := read(t, conn)
	assert.Equal(t, TypeError, frame.Type)
	assert.Equal(t, "unknown message type", frame.Error)
}

func TestDisconnectRemovesClient(t *testing.T) {
	b, url := newServer(t)
	conn := dial(t, url)
	require.Equal(t, 1, b.Stats().Clients)

	require.NoError(t, conn.Close())
	assert.Eventually(t, func() bool { return b.Stats().Clients == 0 }, 2*time.Second, 10*time.Millisecond)
}
