package bot

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/interiorlens/api"
	"github.com/BaSui01/interiorlens/testutil"
	"github.com/BaSui01/interiorlens/testutil/fixtures"
	"github.com/BaSui01/interiorlens/types"
)

// chanSubmitter forwards items to a channel.
type chanSubmitter struct {
	items chan types.Item
	err   error
}

func (s *chanSubmitter) Submit(item types.Item) error {
	if s.err != nil {
		return s.err
	}
	s.items <- item
	return nil
}

func newGatewayServer(t *testing.T, g *Gateway) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(g)
	t.Cleanup(func() {
		g.Close()
		srv.Close()
	})
	return srv
}

func dialGateway(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(srv.URL, "http")+GatewayPath, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close(websocket.StatusNormalClosure, "done") })
	return conn
}

func sendFrame(t *testing.T, conn *websocket.Conn, frame any) {
	t.Helper()
	var data []byte
	switch f := frame.(type) {
	case string:
		data = []byte(f)
	default:
		var err error
		data, err = json.Marshal(f)
		require.NoError(t, err)
	}
	require.NoError(t, conn.Write(testutil.TestContext(t), websocket.MessageText, data))
}

func readReply(t *testing.T, conn *websocket.Conn) api.OutboundFrame {
	t.Helper()
	ctx := testutil.TestContextWithTimeout(t, 3*time.Second)
	_, data, err := conn.Read(ctx)
	require.NoError(t, err)
	var out api.OutboundFrame
	require.NoError(t, json.Unmarshal(data, &out))
	return out
}

func TestGateway_InboundFrameBecomesItem(t *testing.T) {
	sub := &chanSubmitter{items: make(chan types.Item, 4)}
	g := NewGateway(DefaultGatewayConfig())
	g.Bind(sub)
	conn := dialGateway(t, newGatewayServer(t, g))

	payload := fixtures.PNG(3, 3, fixtures.Gray)
	sendFrame(t, conn, api.InboundFrame{
		ChatID:       42,
		MessageID:    7,
		MediaGroupID: "grp",
		FileName:     "room.png",
		MIMEType:     "image/png",
		Data:         payload,
	})

	item, ok := testutil.WaitForChannel(sub.items, 2*time.Second)
	require.True(t, ok)
	assert.Equal(t, int64(42), item.ChatID)
	assert.Equal(t, int64(7), item.Seq)
	assert.Equal(t, "grp", item.GroupID)
	assert.Equal(t, "room.png", item.Name)
	assert.Equal(t, "image/png", item.MIMEType)
	assert.Equal(t, payload, item.Payload)
	assert.False(t, item.ArrivedAt.IsZero())
	assert.Equal(t, 1, g.Connections())
}

func TestGateway_SkipsInvalidFrames(t *testing.T) {
	sub := &chanSubmitter{items: make(chan types.Item, 4)}
	g := NewGateway(DefaultGatewayConfig())
	g.Bind(sub)
	conn := dialGateway(t, newGatewayServer(t, g))

	sendFrame(t, conn, "not-json")
	sendFrame(t, conn, api.InboundFrame{MessageID: 1, Data: []byte("x")})
	sendFrame(t, conn, api.InboundFrame{ChatID: 5, MessageID: 2, Data: []byte("x")})

	item, ok := testutil.WaitForChannel(sub.items, 2*time.Second)
	require.True(t, ok)
	assert.Equal(t, int64(2), item.Seq)
	testutil.AssertNoReceive(t, (<-chan types.Item)(sub.items), 50*time.Millisecond)
}

func TestGateway_ReplyRoutesToLastConnection(t *testing.T) {
	sub := &chanSubmitter{items: make(chan types.Item, 4)}
	g := NewGateway(DefaultGatewayConfig())
	g.Bind(sub)
	srv := newGatewayServer(t, g)
	first := dialGateway(t, srv)
	second := dialGateway(t, srv)

	sendFrame(t, first, api.InboundFrame{ChatID: 9, MessageID: 1, Data: []byte("x")})
	_, ok := testutil.WaitForChannel(sub.items, 2*time.Second)
	require.True(t, ok)
	sendFrame(t, second, api.InboundFrame{ChatID: 9, MessageID: 2, Data: []byte("x")})
	_, ok = testutil.WaitForChannel(sub.items, 2*time.Second)
	require.True(t, ok)

	require.NoError(t, g.Reply(context.Background(), 9, 2, "hello"))
	out := readReply(t, second)
	assert.Equal(t, api.OutboundFrame{ChatID: 9, ReplyToMessageID: 2, Text: "hello"}, out)
}

func TestGateway_ReplyWithoutRoute(t *testing.T) {
	g := NewGateway(DefaultGatewayConfig())
	err := g.Reply(context.Background(), 1, 1, "x")
	assert.ErrorIs(t, err, ErrNoRoute)
}

func TestGateway_DisconnectDropsRoutes(t *testing.T) {
	sub := &chanSubmitter{items: make(chan types.Item, 4)}
	g := NewGateway(DefaultGatewayConfig())
	g.Bind(sub)
	conn := dialGateway(t, newGatewayServer(t, g))

	sendFrame(t, conn, api.InboundFrame{ChatID: 3, MessageID: 1, Data: []byte("x")})
	_, ok := testutil.WaitForChannel(sub.items, 2*time.Second)
	require.True(t, ok)

	require.NoError(t, conn.Close(websocket.StatusNormalClosure, "bye"))
	testutil.AssertEventuallyTrue(t, func() bool { return g.Connections() == 0 }, 2*time.Second)
	assert.ErrorIs(t, g.Reply(context.Background(), 3, 1, "late"), ErrNoRoute)
}

func TestGateway_ClosesWhenPipelineRejects(t *testing.T) {
	sub := &chanSubmitter{err: errors.New("closed")}
	g := NewGateway(DefaultGatewayConfig())
	g.Bind(sub)
	conn := dialGateway(t, newGatewayServer(t, g))

	sendFrame(t, conn, api.InboundFrame{ChatID: 3, MessageID: 1, Data: []byte("x")})

	ctx := testutil.TestContextWithTimeout(t, 3*time.Second)
	_, _, err := conn.Read(ctx)
	require.Error(t, err)
	assert.Equal(t, websocket.StatusTryAgainLater, websocket.CloseStatus(err))
}

func TestGateway_NotBound(t *testing.T) {
	g := NewGateway(DefaultGatewayConfig())
	rec := httptest.NewRecorder()
	g.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, GatewayPath, nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestGateway_EndToEndAlbum(t *testing.T) {
	g := NewGateway(DefaultGatewayConfig())
	d := &fakeDispatcher{}
	p := NewPipeline(testPipelineConfig(30*time.Millisecond), d, g)
	t.Cleanup(func() { _ = p.Close(context.Background()) })
	g.Bind(p)
	conn := dialGateway(t, newGatewayServer(t, g))

	png := fixtures.PNG(3, 3, fixtures.Gray)
	for _, seq := range []int64{21, 20} {
		sendFrame(t, conn, api.InboundFrame{ChatID: 11, MessageID: seq, MediaGroupID: "m", Data: png})
	}

	first := readReply(t, conn)
	second := readReply(t, conn)
	assert.Equal(t, int64(20), first.ReplyToMessageID)
	assert.Equal(t, int64(21), second.ReplyToMessageID)
	assert.Equal(t, int64(11), first.ChatID)
	assert.Contains(t, first.Text, "Classification result")

	require.Len(t, d.Batches(), 1)
}
