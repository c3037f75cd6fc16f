package discord

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/ticket-relay/internal/platform"
)

type recordingHandler struct {
	mu       sync.Mutex
	messages []platform.InboundMessage
	closes   []platform.CloseAction
	deleted  []string
}

func (h *recordingHandler) HandleMessage(_ context.Context, msg platform.InboundMessage) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.messages = append(h.messages, msg)
}

func (h *recordingHandler) HandleCloseAction(_ context.Context, action platform.CloseAction) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closes = append(h.closes, action)
}

func (h *recordingHandler) HandleChannelDeleted(_ context.Context, channelID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.deleted = append(h.deleted, channelID)
}

func (h *recordingHandler) snapshot() ([]platform.InboundMessage, []platform.CloseAction, []string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]platform.InboundMessage(nil), h.messages...),
		append([]platform.CloseAction(nil), h.closes...),
		append([]string(nil), h.deleted...)
}

type gatewayScript func(t *testing.T, conn *websocket.Conn, attempt int)

func newGatewayServer(t *testing.T, api *fakeAPI, script gatewayScript) (*httptest.Server, *int32) {
	t.Helper()
	var attempts int32
	upgrader := websocket.Upgrader{}
	mux := http.NewServeMux()
	mux.Handle("/", api.handler())
	mux.HandleFunc("/gateway", func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		n := int(atomic.AddInt32(&attempts, 1))

		hello, _ := json.Marshal(helloData{HeartbeatInterval: 60000})
		assert.NoError(t, conn.WriteJSON(gatewayPayload{Op: opHello, D: hello}))

		var identify gatewayPayload
		assert.NoError(t, conn.ReadJSON(&identify))
		assert.Equal(t, opIdentify, identify.Op)
		var id identifyData
		assert.NoError(t, json.Unmarshal(identify.D, &id))
		assert.Equal(t, "secret", id.Token)
		assert.Equal(t, defaultIntents, id.Intents)

		script(t, conn, n)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, &attempts
}

func dispatchPayload(t *testing.T, eventType string, seq int64, data any) gatewayPayload {
	t.Helper()
	raw, err := json.Marshal(data)
	assert.NoError(t, err)
	return gatewayPayload{Op: opDispatch, T: eventType, S: &seq, D: raw}
}

func drain(conn *websocket.Conn) {
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func startGateway(t *testing.T, srv *httptest.Server, handler platform.EventHandler) (*Gateway, *Adapter) {
	t.Helper()
	client := NewClient(ClientConfig{BaseURL: srv.URL, Token: "secret"})
	adapter := NewAdapter(client, "guild-1", nil)
	gw := NewGateway(GatewayConfig{
		URL:        "ws" + strings.TrimPrefix(srv.URL, "http") + "/gateway",
		Token:      "secret",
		MinBackoff: 10 * time.Millisecond,
		MaxBackoff: 50 * time.Millisecond,
	}, adapter, handler, nil)
	return gw, adapter
}

func TestGatewayDispatchesEvents(t *testing.T) {
	api := newFakeAPI()
	srv, _ := newGatewayServer(t, api, func(t *testing.T, conn *websocket.Conn, _ int) {
		events := []gatewayPayload{
			dispatchPayload(t, "READY", 1, readyData{SessionID: "s-1", User: User{ID: "bot-1", Username: "relay"}}),
			dispatchPayload(t, "MESSAGE_CREATE", 2, Message{ID: "m-1", ChannelID: "chan-1", Author: User{ID: "agent-1", Username: "agent", GlobalName: "Agent Smith"}, Content: "hello"}),
			dispatchPayload(t, "MESSAGE_CREATE", 3, Message{ID: "m-2", ChannelID: "chan-1", Author: User{ID: "bot-1", Username: "relay"}, Content: "echo"}),
			dispatchPayload(t, "INTERACTION_CREATE", 4, map[string]any{
				"id": "int-1", "type": interactionTypeComponent, "token": "tok", "channel_id": "chan-1",
				"member": map[string]any{"nick": "Mod", "user": map[string]any{"id": "agent-2", "username": "mod"}},
				"data":   map[string]any{"custom_id": platform.CloseButtonID},
			}),
			dispatchPayload(t, "INTERACTION_CREATE", 5, map[string]any{
				"id": "int-2", "type": interactionTypeComponent, "token": "tok", "channel_id": "chan-1",
				"data": map[string]any{"custom_id": "something_else"},
			}),
			dispatchPayload(t, "CHANNEL_DELETE", 6, Channel{ID: "chan-2"}),
		}
		for _, e := range events {
			assert.NoError(t, conn.WriteJSON(e))
		}
		drain(conn)
	})

	handler := &recordingHandler{}
	gw, adapter := startGateway(t, srv, handler)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- gw.Run(ctx) }()

	assert.Eventually(t, func() bool {
		_, _, deleted := handler.snapshot()
		return len(deleted) == 1
	}, 2*time.Second, 10*time.Millisecond)

	messages, closes, deleted := handler.snapshot()
	require.Len(t, messages, 2)
	assert.Equal(t, "hello", messages[0].Content)
	assert.Equal(t, "Agent Smith", messages[0].AuthorName)
	assert.False(t, messages[0].FromSelf)
	assert.True(t, messages[1].FromSelf)
	assert.Equal(t, []platform.CloseAction{{ChannelID: "chan-1", ActorName: "Mod"}}, closes)
	assert.Equal(t, []string{"chan-2"}, deleted)
	assert.Equal(t, []string{"int-1"}, api.acked())
	assert.Equal(t, "bot-1", adapter.SelfID())

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("gateway did not stop")
	}
}

func TestGatewayReconnectsWhenAsked(t *testing.T) {
	srv, attempts := newGatewayServer(t, newFakeAPI(), func(t *testing.T, conn *websocket.Conn, attempt int) {
		if attempt == 1 {
			assert.NoError(t, conn.WriteJSON(gatewayPayload{Op: opReconnect}))
			return
		}
		assert.NoError(t, conn.WriteJSON(dispatchPayload(t, "CHANNEL_DELETE", 1, Channel{ID: "chan-9"})))
		drain(conn)
	})

	handler := &recordingHandler{}
	gw, _ := startGateway(t, srv, handler)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = gw.Run(ctx) }()

	assert.Eventually(t, func() bool {
		_, _, deleted := handler.snapshot()
		return len(deleted) == 1
	}, 2*time.Second, 10*time.Millisecond)
	assert.GreaterOrEqual(t, atomic.LoadInt32(attempts), int32(2))
}

func TestGatewayStopsOnAuthenticationFailure(t *testing.T) {
	srv, _ := newGatewayServer(t, newFakeAPI(), func(_ *testing.T, conn *websocket.Conn, _ int) {
		_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(4004, "Authentication failed."))
		drain(conn)
	})

	gw, _ := startGateway(t, srv, &recordingHandler{})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	err := gw.Run(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "authentication failed")
}
