package api_test

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcoot/partygate/internal/api"
	"github.com/mcoot/partygate/internal/api/apierr"
	"github.com/mcoot/partygate/internal/api/response"
	"github.com/mcoot/partygate/internal/factory"
	"github.com/mcoot/partygate/internal/model"
)

// testServer creates a test server with all dependencies
type testServer struct {
	handler http.Handler
	app     *factory.TestApp
}

func newTestServer(t *testing.T, trustProxy bool) *testServer {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))

	app := factory.NewTestApp()
	t.Cleanup(func() { _ = app.Close() })

	router := api.NewRouter(api.RouterConfig{
		Logger:          logger,
		LobbyController: app.LobbyController,
		HubManager:      app.HubManager,
		Upgrader:        app.Upgrader,
		TrustProxy:      trustProxy,
	})

	return &testServer{
		handler: router,
		app:     app,
	}
}

func (ts *testServer) request(method, path string, body any, mutate ...func(*http.Request)) *httptest.ResponseRecorder {
	reqBody := bytes.NewBuffer(nil)
	if body != nil {
		b, _ := json.Marshal(body)
		reqBody = bytes.NewBuffer(b)
	}

	req := httptest.NewRequest(method, path, reqBody)
	req.Header.Set("Content-Type", "application/json")
	for _, m := range mutate {
		m(req)
	}

	rr := httptest.NewRecorder()
	ts.handler.ServeHTTP(rr, req)
	return rr
}

func (ts *testServer) createLobby(t *testing.T, code string, body any) response.Lobby {
	t.Helper()
	ts.app.MockRandom.QueueString(code)

	rr := ts.request(http.MethodPost, "/api/v1/lobbies", body)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())

	var resp response.Lobby
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	return resp
}

func errorCode(t *testing.T, rr *httptest.ResponseRecorder) string {
	t.Helper()
	var resp apierr.ErrorResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	return resp.Error.Code
}

func fromAddr(addr string) func(*http.Request) {
	return func(r *http.Request) { r.RemoteAddr = addr }
}

func TestHealthCheck(t *testing.T) {
	ts := newTestServer(t, false)

	health := func() response.Health {
		rr := ts.request(http.MethodGet, "/api/v1/health", nil)
		require.Equal(t, http.StatusOK, rr.Code)
		var h response.Health
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &h))
		return h
	}

	assert.Equal(t, response.Health{Status: "ok"}, health())

	// A lobby's manager starts with its first join
	ts.createLobby(t, "ABC123", nil)
	assert.Equal(t, 0, health().ActiveLobbies)
	rr := ts.request(http.MethodPost, "/api/v1/lobbies/ABC123/join",
		map[string]string{"display_name": "Alice"}, fromAddr("10.1.1.1:5000"))
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Equal(t, 1, health().ActiveLobbies)
	assert.Equal(t, "no-store", rr.Header().Get("Cache-Control"))
}

func TestCreateLobby(t *testing.T) {
	ts := newTestServer(t, false)

	resp := ts.createLobby(t, "ABC123", nil)

	assert.Equal(t, "ABC123", resp.Code)
	assert.Equal(t, "waiting", resp.State)
	assert.False(t, resp.HasPasscode)
	assert.Equal(t, model.DefaultLobbyConfig().MaxPlayers, resp.Config.MaxPlayers)
	assert.True(t, resp.Config.AllowReconnects)
	assert.Empty(t, resp.Members)
}

func TestCreateLobbyLocation(t *testing.T) {
	ts := newTestServer(t, false)
	ts.app.MockRandom.QueueString("XYZ789")

	rr := ts.request(http.MethodPost, "/api/v1/lobbies", nil)
	require.Equal(t, http.StatusCreated, rr.Code)
	assert.Equal(t, "/api/v1/lobbies/XYZ789", rr.Header().Get("Location"))
}

func TestCreateLobbyWithSettings(t *testing.T) {
	ts := newTestServer(t, false)

	resp := ts.createLobby(t, "ABC123", map[string]any{
		"max_players":               4,
		"passcode":                  "hunter2",
		"allow_reconnects":          false,
		"kill_disconnected_players": true,
	})

	assert.True(t, resp.HasPasscode)
	assert.Equal(t, 4, resp.Config.MaxPlayers)
	assert.False(t, resp.Config.AllowReconnects)
	assert.True(t, resp.Config.KillDisconnectedPlayers)
	// Unset knobs keep their defaults
	assert.True(t, resp.Config.AllowPregameReconnects)
}

func TestCreateLobbyInvalidBody(t *testing.T) {
	ts := newTestServer(t, false)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/lobbies", strings.NewReader("{not json"))
	rr := httptest.NewRecorder()
	ts.handler.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, apierr.CodeInvalidRequest, errorCode(t, rr))
}

func TestGetAndListLobbies(t *testing.T) {
	ts := newTestServer(t, false)
	ts.createLobby(t, "BBB222", nil)
	ts.createLobby(t, "AAA111", nil)

	rr := ts.request(http.MethodGet, "/api/v1/lobbies", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var list response.LobbyList
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &list))
	assert.Equal(t, []string{"AAA111", "BBB222"}, list.Codes)

	// Codes are matched case-insensitively
	rr = ts.request(http.MethodGet, "/api/v1/lobbies/aaa111", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var lobby response.Lobby
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &lobby))
	assert.Equal(t, "AAA111", lobby.Code)
	assert.Nil(t, lobby.Connections)
}

func TestGetLobbyNotFound(t *testing.T) {
	ts := newTestServer(t, false)

	rr := ts.request(http.MethodGet, "/api/v1/lobbies/NOPE00", nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)
	assert.Equal(t, apierr.CodeLobbyNotFound, errorCode(t, rr))
}

func TestJoinReservesSlot(t *testing.T) {
	ts := newTestServer(t, false)
	ts.createLobby(t, "ABC123", nil)

	rr := ts.request(http.MethodPost, "/api/v1/lobbies/ABC123/join",
		map[string]string{"display_name": "Alice"}, fromAddr("10.1.1.1:5000"))
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	var ticket response.JoinTicket
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &ticket))
	assert.Equal(t, "Alice", ticket.DisplayName)
	assert.Equal(t, "ABC123", ticket.GameCode)
	assert.NotEmpty(t, ticket.Token)

	// The slot is held for the caller's host, without the port
	mgr, ok := ts.app.LobbyController.ExistingManager("ABC123")
	require.True(t, ok)
	snapshot := mgr.Snapshot()
	require.Len(t, snapshot, 1)
	assert.Equal(t, "10.1.1.1", snapshot[0].Address)
	assert.Equal(t, model.PhaseReserved, snapshot[0].Phase)

	rr = ts.request(http.MethodGet, "/api/v1/lobbies/ABC123", nil)
	var lobby response.Lobby
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &lobby))
	require.NotNil(t, lobby.Connections)
	assert.Equal(t, 1, lobby.Connections.Reservations)
}

func TestJoinErrors(t *testing.T) {
	ts := newTestServer(t, false)
	ts.createLobby(t, "ABC123", map[string]any{"passcode": "hunter2", "max_players": 1})

	tests := []struct {
		name       string
		body       map[string]string
		addr       string
		wantStatus int
		wantCode   string
	}{
		{"wrong passcode", map[string]string{"display_name": "Alice", "passcode": "nope"}, "10.0.0.1:1", http.StatusForbidden, apierr.CodeWrongPasscode},
		{"empty name", map[string]string{"display_name": " ", "passcode": "hunter2"}, "10.0.0.1:1", http.StatusBadRequest, apierr.CodeInvalidName},
		{"first join", map[string]string{"display_name": "Alice", "passcode": "hunter2"}, "10.0.0.1:1", http.StatusOK, ""},
		{"lobby full", map[string]string{"display_name": "Bob", "passcode": "hunter2"}, "10.0.0.2:1", http.StatusConflict, apierr.CodeLobbyFull},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := ts.request(http.MethodPost, "/api/v1/lobbies/ABC123/join", tt.body, fromAddr(tt.addr))
			assert.Equal(t, tt.wantStatus, rr.Code, rr.Body.String())
			if tt.wantCode != "" {
				assert.Equal(t, tt.wantCode, errorCode(t, rr))
			}
		})
	}
}

func TestJoinNameTaken(t *testing.T) {
	ts := newTestServer(t, false)
	ts.createLobby(t, "ABC123", nil)

	rr := ts.request(http.MethodPost, "/api/v1/lobbies/ABC123/join",
		map[string]string{"display_name": "Alice"}, fromAddr("10.0.0.1:1"))
	require.Equal(t, http.StatusOK, rr.Code)

	rr = ts.request(http.MethodPost, "/api/v1/lobbies/ABC123/join",
		map[string]string{"display_name": "ALICE"}, fromAddr("10.0.0.2:1"))
	assert.Equal(t, http.StatusConflict, rr.Code)
	assert.Equal(t, apierr.CodeNameTaken, errorCode(t, rr))
}

func TestJoinTrustProxy(t *testing.T) {
	tests := []struct {
		name       string
		trustProxy bool
		wantAddr   string
	}{
		{"forwarded header honoured", true, "203.0.113.7"},
		{"forwarded header ignored", false, "10.0.0.1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := newTestServer(t, tt.trustProxy)
			ts.createLobby(t, "ABC123", nil)

			rr := ts.request(http.MethodPost, "/api/v1/lobbies/ABC123/join",
				map[string]string{"display_name": "Alice"},
				fromAddr("10.0.0.1:443"),
				func(r *http.Request) { r.Header.Set("X-Forwarded-For", "203.0.113.7, 10.0.0.1") })
			require.Equal(t, http.StatusOK, rr.Code)

			mgr, ok := ts.app.LobbyController.ExistingManager("ABC123")
			require.True(t, ok)
			assert.Equal(t, tt.wantAddr, mgr.Snapshot()[0].Address)
		})
	}
}

func TestStartWithoutPlayers(t *testing.T) {
	ts := newTestServer(t, false)
	ts.createLobby(t, "ABC123", nil)

	rr := ts.request(http.MethodPost, "/api/v1/lobbies/ABC123/start", nil)
	assert.Equal(t, http.StatusConflict, rr.Code)
	assert.Equal(t, apierr.CodeNotEnoughPlayers, errorCode(t, rr))
}

func TestKick(t *testing.T) {
	ts := newTestServer(t, false)
	ts.createLobby(t, "ABC123", nil)

	rr := ts.request(http.MethodPost, "/api/v1/lobbies/ABC123/join",
		map[string]string{"display_name": "Alice"}, fromAddr("10.0.0.1:1"))
	require.Equal(t, http.StatusOK, rr.Code)

	rr = ts.request(http.MethodDelete, "/api/v1/lobbies/ABC123/members/Alice", nil)
	assert.Equal(t, http.StatusNoContent, rr.Code)

	rr = ts.request(http.MethodDelete, "/api/v1/lobbies/ABC123/members/Alice", nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)
	assert.Equal(t, apierr.CodeMemberNotFound, errorCode(t, rr))
}

func TestDeleteLobby(t *testing.T) {
	ts := newTestServer(t, false)
	ts.createLobby(t, "ABC123", nil)

	rr := ts.request(http.MethodDelete, "/api/v1/lobbies/ABC123", nil)
	assert.Equal(t, http.StatusNoContent, rr.Code)

	rr = ts.request(http.MethodGet, "/api/v1/lobbies/ABC123", nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)

	rr = ts.request(http.MethodGet, "/api/v1/lobbies/ABC123/events", nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

// Tests below run a real server so websockets and event streams work

func startServer(t *testing.T) (*testServer, *httptest.Server) {
	t.Helper()
	ts := newTestServer(t, false)
	srv := httptest.NewServer(ts.handler)
	t.Cleanup(srv.Close)
	return ts, srv
}

func wsURL(srv *httptest.Server, code string) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/v1/lobbies/" + code + "/ws"
}

func postJoin(t *testing.T, srv *httptest.Server, code, name string) response.JoinTicket {
	t.Helper()
	b, _ := json.Marshal(map[string]string{"display_name": name})
	resp, err := http.Post(srv.URL+"/api/v1/lobbies/"+code+"/join", "application/json", bytes.NewReader(b))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var ticket response.JoinTicket
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&ticket))
	return ticket
}

func readMessage(t *testing.T, conn *websocket.Conn) model.OutboundMessage {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	var msg model.OutboundMessage
	require.NoError(t, conn.ReadJSON(&msg))
	return msg
}

func TestWebsocketJoinFlow(t *testing.T) {
	ts, srv := startServer(t)
	ts.createLobby(t, "ABC123", nil)

	ticket := postJoin(t, srv, "ABC123", "Alice")

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(srv, "ABC123"), nil)
	require.NoError(t, err)
	defer conn.Close()

	challenge := readMessage(t, conn)
	assert.Equal(t, model.MessageChallenge, challenge.Type)
	assert.Equal(t, "ABC123", challenge.GameCode)

	require.NoError(t, conn.WriteJSON(model.InboundMessage{
		Type:        model.MessageSubmitCredentials,
		Credentials: model.Credentials{Token: ticket.Token, DisplayName: "Alice", GameCode: "ABC123"},
	}))
	accepted := readMessage(t, conn)
	assert.Equal(t, model.MessageAccepted, accepted.Type)

	// Membership is recorded by the join callback
	require.Eventually(t, func() bool {
		l, err := ts.app.LobbyController.GetLobby(context.Background(), "ABC123")
		return err == nil && l.GetMember("Alice") != nil
	}, 2*time.Second, 10*time.Millisecond)

	resp, err := http.Post(srv.URL+"/api/v1/lobbies/ABC123/start", "application/json", nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	// Dropping the socket keeps the session for a later reconnect
	require.NoError(t, conn.Close())
	mgr, ok := ts.app.LobbyController.ExistingManager("ABC123")
	require.True(t, ok)
	require.Eventually(t, func() bool {
		st := mgr.Stats()
		return st.Sessions == 1 && st.Connected == 0
	}, 2*time.Second, 10*time.Millisecond)
}

func TestWebsocketWithoutReservation(t *testing.T) {
	ts, srv := startServer(t)
	ts.createLobby(t, "ABC123", nil)

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(srv, "ABC123"), nil)
	require.NoError(t, err)
	defer conn.Close()

	rejected := readMessage(t, conn)
	assert.Equal(t, model.MessageRejected, rejected.Type)
	assert.NotEmpty(t, rejected.Reasons)

	_, _, err = conn.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure), "got %v", err)
}

func TestWebsocketUnknownLobby(t *testing.T) {
	_, srv := startServer(t)

	_, resp, err := websocket.DefaultDialer.Dial(wsURL(srv, "NOPE00"), nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestEventStream(t *testing.T) {
	ts, srv := startServer(t)
	ts.createLobby(t, "ABC123", nil)

	resp, err := http.Get(srv.URL + "/api/v1/lobbies/ABC123/events")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	reader := bufio.NewReader(resp.Body)
	nextEvent := func() (string, string) {
		var name, data string
		for {
			line, err := reader.ReadString('\n')
			require.NoError(t, err)
			line = strings.TrimRight(line, "\n")
			switch {
			case strings.HasPrefix(line, "event: "):
				name = strings.TrimPrefix(line, "event: ")
			case strings.HasPrefix(line, "data: "):
				data = strings.TrimPrefix(line, "data: ")
			case line == "" && name != "":
				return name, data
			}
		}
	}

	name, _ := nextEvent()
	require.Equal(t, "connected", name)

	ticket := postJoin(t, srv, "ABC123", "Alice")
	conn, _, err := websocket.DefaultDialer.Dial(wsURL(srv, "ABC123"), nil)
	require.NoError(t, err)
	defer conn.Close()
	readMessage(t, conn)
	require.NoError(t, conn.WriteJSON(model.InboundMessage{
		Type:        model.MessageSubmitCredentials,
		Credentials: model.Credentials{Token: ticket.Token},
	}))

	name, data := nextEvent()
	assert.Equal(t, string(model.EventPlayerJoined), name)
	var ev model.Event
	require.NoError(t, json.Unmarshal([]byte(data), &ev))
	assert.Equal(t, "Alice", ev.DisplayName)
	assert.Equal(t, string(model.RolePlayer), ev.Role)
	assert.Equal(t, model.LobbyCode("ABC123"), ev.LobbyCode)

	// Deleting the lobby ends the stream
	req, _ := http.NewRequest(http.MethodDelete, srv.URL+"/api/v1/lobbies/ABC123", nil)
	delResp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	delResp.Body.Close()
	assert.Equal(t, http.StatusNoContent, delResp.StatusCode)
}
