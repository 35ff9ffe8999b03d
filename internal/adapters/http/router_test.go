package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dkeye/Huddle/internal/adapters/signal"
	"github.com/dkeye/Huddle/internal/app"
	"github.com/dkeye/Huddle/internal/app/orch"
	"github.com/dkeye/Huddle/internal/config"
	"github.com/dkeye/Huddle/internal/engine"
	"github.com/dkeye/Huddle/internal/engine/memengine"
	"github.com/dkeye/Huddle/internal/protocol"
)

var (
	caps = json.RawMessage(`{"codecs":[{"kind":"audio","mimeType":"audio/opus"},{"kind":"video","mimeType":"video/VP8"}]}`)
	dtls = json.RawMessage(`{"role":"client","fingerprints":[{"algorithm":"sha-256","value":"00"}]}`)
)

func newServer(t *testing.T) (*httptest.Server, *orch.Orchestrator) {
	t.Helper()
	w, err := memengine.NewWorker()
	require.NoError(t, err)
	pool, err := engine.NewPool(w)
	require.NoError(t, err)
	rooms := app.NewRoomManager(pool, time.Second)
	o := orch.New(app.NewRegistry(), rooms, app.SimplePolicy{})
	ctrl := signal.NewSignalWSController(o, signal.NewRoomRateLimiter(2, time.Minute), signal.Settings{PingPeriod: time.Second})

	ctx, cancel := context.WithCancel(context.Background())
	cfg := &config.Config{Mode: "test", Secret: "s"}
	srv := httptest.NewServer(SetupRouter(ctx, cfg, o, ctrl))
	t.Cleanup(func() {
		cancel()
		srv.Close()
		rooms.Close()
		pool.Close()
	})
	return srv, o
}

type wsClient struct {
	t      *testing.T
	conn   *websocket.Conn
	nextID uint64
	events []protocol.Message
}

func dial(t *testing.T, srv *httptest.Server) *wsClient {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/ws/signal"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return &wsClient{t: t, conn: conn}
}

func (c *wsClient) read() (protocol.Message, error) {
	_ = c.conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, raw, err := c.conn.ReadMessage()
	if err != nil {
		return protocol.Message{}, err
	}
	return protocol.Decode(raw)
}

// call sends a request and returns its response, keeping notifications
// that arrive in between.
func (c *wsClient) call(method string, data any) protocol.Message {
	c.t.Helper()
	c.nextID++
	req, err := protocol.NewRequest(c.nextID, method, data)
	require.NoError(c.t, err)
	require.NoError(c.t, c.conn.WriteJSON(req))
	for {
		m, err := c.read()
		require.NoError(c.t, err)
		if m.Notification {
			c.events = append(c.events, m)
			continue
		}
		require.Equal(c.t, c.nextID, m.ID)
		return m
	}
}

// waitEvent reads until a notification named method arrives.
func (c *wsClient) waitEvent(method string) protocol.Message {
	c.t.Helper()
	for i, m := range c.events {
		if m.Method == method {
			c.events = append(c.events[:i], c.events[i+1:]...)
			return m
		}
	}
	for {
		m, err := c.read()
		require.NoError(c.t, err)
		if m.Notification && m.Method == method {
			return m
		}
		c.events = append(c.events, m)
	}
}

func TestHealthAndRooms(t *testing.T) {
	srv, o := newServer(t)
	_, err := o.CreateRoom("r1")
	require.NoError(t, err)

	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(srv.URL + "/api/rooms")
	require.NoError(t, err)
	var rooms []map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&rooms))
	resp.Body.Close()
	require.Len(t, rooms, 1)

	resp, err = http.Get(srv.URL + "/api/rooms/missing")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestSignalRequiresJoin(t *testing.T) {
	srv, _ := newServer(t)
	c := dial(t, srv)

	resp := c.call(protocol.MethodGetRouterRtpCapabilities, nil)
	assert.Equal(t, protocol.CodeNotInRoom, resp.ErrorCode)

	resp = c.call(protocol.MethodJoin, protocol.JoinRequest{Name: "a", RoomID: "nope"})
	assert.Equal(t, protocol.CodeRoomNotFound, resp.ErrorCode)

	resp = c.call("teleport", nil)
	assert.Equal(t, protocol.CodeBadRequest, resp.ErrorCode)
}

func TestCreateRoomRules(t *testing.T) {
	srv, _ := newServer(t)
	c := dial(t, srv)

	resp := c.call(protocol.MethodCreateRoom, protocol.CreateRoomRequest{RoomID: "r1"})
	require.True(t, resp.OK)
	resp = c.call(protocol.MethodCreateRoom, protocol.CreateRoomRequest{RoomID: "r1"})
	assert.Equal(t, protocol.CodeAlreadyExists, resp.ErrorCode)
	resp = c.call(protocol.MethodCreateRoom, protocol.CreateRoomRequest{RoomID: "r2"})
	assert.Equal(t, protocol.CodeRateLimited, resp.ErrorCode)
}

func TestSignalJoinProduceConsumeExit(t *testing.T) {
	srv, o := newServer(t)
	p1 := dial(t, srv)
	p2 := dial(t, srv)

	require.True(t, p1.call(protocol.MethodCreateRoom, protocol.CreateRoomRequest{RoomID: "r1"}).OK)
	require.True(t, p1.call(protocol.MethodJoin, protocol.JoinRequest{Name: "p1", RoomID: "r1"}).OK)
	assert.Equal(t, protocol.CodeAlreadyJoined, p1.call(protocol.MethodJoin, protocol.JoinRequest{Name: "p1", RoomID: "r1"}).ErrorCode)

	resp := p1.call(protocol.MethodCreateWebRtcTransport, protocol.CreateTransportRequest{Producing: true})
	require.True(t, resp.OK)
	var send engine.TransportParams
	require.NoError(t, resp.Bind(&send))
	require.True(t, p1.call(protocol.MethodConnectTransport, protocol.ConnectTransportRequest{TransportID: send.ID, DtlsParameters: dtls}).OK)

	resp = p1.call(protocol.MethodProduce, protocol.ProduceRequest{TransportID: send.ID, Kind: "video"})
	require.True(t, resp.OK)
	var produced protocol.ProduceResponse
	require.NoError(t, resp.Bind(&produced))
	require.NotEmpty(t, produced.ProducerID)

	resp = p2.call(protocol.MethodJoin, protocol.JoinRequest{Name: "p2", RoomID: "r1"})
	require.True(t, resp.OK)
	p1.waitEvent(protocol.EventNewPeer)

	resp = p2.call(protocol.MethodGetProducers, nil)
	require.True(t, resp.OK)
	var list []map[string]any
	require.NoError(t, resp.Bind(&list))
	require.Len(t, list, 1)
	assert.Equal(t, produced.ProducerID, list[0]["producerId"])

	resp = p2.call(protocol.MethodCreateWebRtcTransport, protocol.CreateTransportRequest{RtpCapabilities: caps})
	require.True(t, resp.OK)
	var recv engine.TransportParams
	require.NoError(t, resp.Bind(&recv))

	resp = p2.call(protocol.MethodConsume, protocol.ConsumeRequest{
		TransportID:     recv.ID,
		ProducerID:      produced.ProducerID,
		RtpCapabilities: json.RawMessage(`{"codecs":[{"kind":"audio","mimeType":"audio/opus"}]}`),
	})
	require.True(t, resp.OK)
	assert.Equal(t, "null", string(resp.Data))

	resp = p2.call(protocol.MethodConsume, protocol.ConsumeRequest{TransportID: recv.ID, ProducerID: "gone", RtpCapabilities: caps})
	assert.False(t, resp.OK)
	assert.Equal(t, protocol.CodeProducerNotFound, resp.ErrorCode)

	resp = p2.call(protocol.MethodConsume, protocol.ConsumeRequest{TransportID: recv.ID, ProducerID: produced.ProducerID, RtpCapabilities: caps})
	require.True(t, resp.OK)
	var cons map[string]any
	require.NoError(t, resp.Bind(&cons))
	assert.Equal(t, "video", cons["mediaKind"])

	require.True(t, p1.call(protocol.MethodExitRoom, nil).OK)
	_, err := p1.read()
	assert.Error(t, err, "connection closed after exit")

	p2.waitEvent(protocol.EventConsumerClosed)
	p2.waitEvent(protocol.EventPeerClosed)

	require.True(t, p2.call(protocol.MethodExitRoom, nil).OK)
	assert.Eventually(t, func() bool { return o.Rooms.Len() == 0 }, time.Second, 10*time.Millisecond)
}
