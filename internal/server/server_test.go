package server

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

	"vanna/internal/adapters/config"
	"vanna/internal/domain/chain"
	"vanna/internal/session"
	"vanna/internal/stream"
	"vanna/pkg/errors"
)

type stubAssembler struct {
	known map[string]bool
	spot  float64
}

func (s *stubAssembler) Assemble(ctx context.Context, underlying string) (*chain.ChainSnapshot, error) {
	if !s.known[underlying] {
		return nil, errors.Wrapf(errors.ErrUnknownSeries, "underlying %s", underlying)
	}
	return &chain.ChainSnapshot{
		Symbol:    underlying,
		Expiry:    "2026-09-03",
		SpotPrice: s.spot,
		Timestamp: time.Now(),
		Rows: []chain.ChainRow{
			{Strike: 24500, Call: &chain.LegQuote{LTP: 118.5, OI: 200}, Put: &chain.LegQuote{LTP: 96.0, OI: 300}},
		},
		PutCallRatio:  1.5,
		MaxPainStrike: 24500,
		TotalCallOI:   200,
		TotalPutOI:    300,
	}, nil
}

func (s *stubAssembler) Spot(ctx context.Context, underlying string) (float64, error) {
	if !s.known[underlying] {
		return 0, errors.Wrapf(errors.ErrNoSpotPrice, "underlying %s", underlying)
	}
	return s.spot, nil
}

type stubAuth struct {
	fail bool
}

func (a *stubAuth) Login(ctx context.Context, clientCode, password, totp string) (session.Session, error) {
	if a.fail {
		return session.Session{}, errors.Wrap(errors.ErrAuth, "Invalid totp")
	}
	return session.Session{
		ClientCode: clientCode,
		FeedToken:  "feed-abc",
		AuthToken:  "jwt-abc",
		LoginTime:  time.Now(),
	}, nil
}

type testHarness struct {
	srv    *httptest.Server
	hub    *Hub
	feeder *stream.Feeder
}

func newHarness(t *testing.T, auth BrokerAuth) *testHarness {
	t.Helper()

	assembler := &stubAssembler{known: map[string]bool{"NIFTY": true, "BANKNIFTY": true}, spot: 24550}
	hub := NewHub()
	feeder := stream.NewFeeder(assembler, hub, 50*time.Millisecond, 100*time.Millisecond, time.Second)
	hub.SetOnLastUnsubscribe(feeder.Release)

	ctx, cancel := context.WithCancel(context.Background())
	feeder.Start(ctx)

	server := NewServer(
		config.ServerConfig{},
		"1.0.0",
		time.Second,
		hub,
		feeder,
		assembler,
		chain.NewMemoryTickStore(10*time.Second),
		session.NewMemoryStore(time.Hour),
		auth,
	)

	ts := httptest.NewServer(server.Routes())
	t.Cleanup(func() {
		ts.Close()
		feeder.Stop()
		cancel()
	})

	return &testHarness{srv: ts, hub: hub, feeder: feeder}
}

func (h *testHarness) wsURL(path string) string {
	return "ws" + strings.TrimPrefix(h.srv.URL, "http") + path
}

func readFrame(t *testing.T, conn *websocket.Conn) map[string]json.RawMessage {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, payload, err := conn.ReadMessage()
	require.NoError(t, err)

	var frame map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(payload, &frame))
	return frame
}

func frameType(t *testing.T, frame map[string]json.RawMessage) string {
	t.Helper()
	var typ string
	require.NoError(t, json.Unmarshal(frame["type"], &typ))
	return typ
}

func TestServer_WebSocketFlow(t *testing.T) {
	h := newHarness(t, &stubAuth{})

	conn, _, err := websocket.DefaultDialer.Dial(h.wsURL("/ws/NIFTY/CLIENT1"), nil)
	require.NoError(t, err)
	defer conn.Close()

	// First frame is the connected acknowledgment
	frame := readFrame(t, conn)
	assert.Equal(t, "connected", frameType(t, frame))

	// An update follows within the snapshot cadence
	frame = readFrame(t, conn)
	require.Equal(t, "update", frameType(t, frame))

	var snapshot chain.ChainSnapshot
	require.NoError(t, json.Unmarshal(frame["data"], &snapshot))
	assert.Equal(t, "NIFTY", snapshot.Symbol)
	assert.Equal(t, 24550.0, snapshot.SpotPrice)
	require.Len(t, snapshot.Rows, 1)
	assert.Equal(t, 24500.0, snapshot.Rows[0].Strike)
}

func TestServer_WebSocketPingPong(t *testing.T) {
	h := newHarness(t, &stubAuth{})

	conn, _, err := websocket.DefaultDialer.Dial(h.wsURL("/ws/NIFTY/CLIENT1"), nil)
	require.NoError(t, err)
	defer conn.Close()

	frame := readFrame(t, conn)
	require.Equal(t, "connected", frameType(t, frame))

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"ping"}`)))

	// Updates may interleave with the pong
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		frame = readFrame(t, conn)
		if frameType(t, frame) == "pong" {
			return
		}
	}
	t.Fatal("no pong received")
}

func TestServer_WebSocketDisconnectCleansUp(t *testing.T) {
	h := newHarness(t, &stubAuth{})

	conn, _, err := websocket.DefaultDialer.Dial(h.wsURL("/ws/NIFTY/CLIENT1"), nil)
	require.NoError(t, err)

	frame := readFrame(t, conn)
	require.Equal(t, "connected", frameType(t, frame))
	require.Eventually(t, func() bool { return h.hub.ActiveSubscriptions() == 1 }, time.Second, 5*time.Millisecond)

	conn.Close()

	require.Eventually(t, func() bool { return h.hub.ActiveSubscriptions() == 0 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, 0, h.hub.ClientCount())
}

func TestServer_TwoClientsSameUnderlying(t *testing.T) {
	h := newHarness(t, &stubAuth{})

	conn1, _, err := websocket.DefaultDialer.Dial(h.wsURL("/ws/NIFTY/CLIENT1"), nil)
	require.NoError(t, err)
	defer conn1.Close()
	conn2, _, err := websocket.DefaultDialer.Dial(h.wsURL("/ws/NIFTY/CLIENT2"), nil)
	require.NoError(t, err)
	defer conn2.Close()

	for _, conn := range []*websocket.Conn{conn1, conn2} {
		frame := readFrame(t, conn)
		require.Equal(t, "connected", frameType(t, frame))
		frame = readFrame(t, conn)
		assert.Equal(t, "update", frameType(t, frame))
	}

	assert.Equal(t, 2, h.hub.SubscriberCount("NIFTY"))
	assert.Equal(t, 2, h.hub.ClientCount())
}

func TestServer_OptionChainEndpoint(t *testing.T) {
	h := newHarness(t, &stubAuth{})

	resp, err := http.Get(h.srv.URL + "/api/option-chain/NIFTY")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var snapshot chain.ChainSnapshot
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&snapshot))
	assert.Equal(t, "NIFTY", snapshot.Symbol)
	assert.Equal(t, "2026-09-03", snapshot.Expiry)
	assert.Equal(t, 1.5, snapshot.PutCallRatio)
}

func TestServer_OptionChainUnknownSymbol(t *testing.T) {
	h := newHarness(t, &stubAuth{})

	resp, err := http.Get(h.srv.URL + "/api/option-chain/WHATEVER")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestServer_SpotEndpoint(t *testing.T) {
	h := newHarness(t, &stubAuth{})

	resp, err := http.Get(h.srv.URL + "/api/spot/NIFTY")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "NIFTY", body["symbol"])
	assert.Equal(t, 24550.0, body["spot_price"])
}

func TestServer_LoginAndSession(t *testing.T) {
	h := newHarness(t, &stubAuth{})

	resp, err := http.Post(h.srv.URL+"/api/auth/login", "application/json",
		strings.NewReader(`{"client_code":"C12345","password":"pin","totp_token":"123456"}`))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var reply loginReply
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&reply))
	assert.True(t, reply.Success)
	assert.Equal(t, "Login successful", reply.Message)

	resp, err = http.Get(h.srv.URL + "/api/auth/session/C12345")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestServer_LoginRejected(t *testing.T) {
	h := newHarness(t, &stubAuth{fail: true})

	resp, err := http.Post(h.srv.URL+"/api/auth/login", "application/json",
		strings.NewReader(`{"client_code":"C12345","password":"pin","totp_token":"000000"}`))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var reply loginReply
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&reply))
	assert.False(t, reply.Success)
}

func TestServer_LoginMissingCredentials(t *testing.T) {
	h := newHarness(t, &stubAuth{})

	resp, err := http.Post(h.srv.URL+"/api/auth/login", "application/json",
		strings.NewReader(`{"client_code":"","password":""}`))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var reply loginReply
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&reply))
	assert.False(t, reply.Success)
	assert.Equal(t, "Invalid credentials", reply.Message)
}

func TestServer_SessionNotFound(t *testing.T) {
	h := newHarness(t, &stubAuth{})

	resp, err := http.Get(h.srv.URL + "/api/auth/session/GHOST")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestServer_Health(t *testing.T) {
	h := newHarness(t, &stubAuth{})

	resp, err := http.Get(h.srv.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, "connected", body["tick_store"])
	assert.Equal(t, 0.0, body["active_subscriptions"])
}

func TestServer_Root(t *testing.T) {
	h := newHarness(t, &stubAuth{})

	resp, err := http.Get(h.srv.URL + "/")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "1.0.0", body["version"])
	assert.Equal(t, "running", body["status"])
}
