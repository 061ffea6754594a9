package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/CDeX-Labs/CDeX-Balloon-Service/internal/auth"
	"github.com/CDeX-Labs/CDeX-Balloon-Service/internal/connection"
	"github.com/CDeX-Labs/CDeX-Balloon-Service/internal/deliveredset"
	"github.com/CDeX-Labs/CDeX-Balloon-Service/internal/delivery"
	"github.com/CDeX-Labs/CDeX-Balloon-Service/internal/hub"
	"github.com/CDeX-Labs/CDeX-Balloon-Service/internal/middleware"
	"github.com/CDeX-Labs/CDeX-Balloon-Service/pkg/contest"
	"github.com/CDeX-Labs/CDeX-Balloon-Service/pkg/protocol"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const secret = "handlers-test-secret"

type fakeConnection struct {
	state      connection.State
	reconnects int
	err        error
}

func (f *fakeConnection) State() connection.State { return f.state }

func (f *fakeConnection) Reconnect() error {
	f.reconnects++
	return f.err
}

type brokenSet struct{ *deliveredset.Memory }

func (brokenSet) Add(context.Context, string) error { return errors.New("disk full") }

func snapshot() *contest.Snapshot {
	return &contest.Snapshot{
		Submissions: []contest.Submission{
			{ID: "1", TeamID: "7", ProblemID: "A", Time: "2024-05-01T10:00:00Z"},
			{ID: "2", TeamID: "8", ProblemID: "A", Time: "2024-05-01T10:05:00Z"},
		},
		Judgements: []contest.Judgement{
			{ID: "1", SubmissionID: "1", JudgementTypeID: "AC"},
			{ID: "2", SubmissionID: "2", JudgementTypeID: "AC"},
		},
		Teams:    []contest.Team{{ID: "7", Name: "Lambda"}, {ID: "8", Name: "Sigma"}},
		Problems: []contest.Problem{{ID: "A", Label: "A", Name: "Apples", Color: "red"}},
	}
}

type fixture struct {
	store  *delivery.Store
	conn   *fakeConnection
	server http.Handler
}

func newFixture(t *testing.T, set delivery.DeliveredSet) *fixture {
	t.Helper()
	store := delivery.NewStore(delivery.Options{Set: set, Logger: zerolog.Nop()})
	require.NoError(t, store.Load(context.Background()))
	store.Apply(snapshot())

	conn := &fakeConnection{state: connection.State{Phase: connection.PhaseConnected}}
	api := NewAPI(Deps{
		Deliveries: store,
		Connection: conn,
		Validator:  auth.NewJWTValidator(secret),
		Limiter:    middleware.NewRateLimiter(1000, time.Minute, zerolog.Nop()),
		Gatherer:   prometheus.NewRegistry(),
	}, zerolog.Nop())

	return &fixture{store: store, conn: conn, server: api.Routes()}
}

func token(t *testing.T, role string) string {
	t.Helper()
	tok, err := auth.IssueToken(secret, "runner-1", "Ana", role, time.Hour)
	require.NoError(t, err)
	return tok
}

func (f *fixture) do(method, path, tok string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	if tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}
	rec := httptest.NewRecorder()
	f.server.ServeHTTP(rec, req)
	return rec
}

func TestAPI_ListAndGet(t *testing.T) {
	f := newFixture(t, deliveredset.NewMemory())

	rec := f.do(http.MethodGet, "/v1/deliveries", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var body boardResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Len(t, body.Pending, 2)
	assert.Empty(t, body.Recent)
	assert.Equal(t, connection.PhaseConnected, body.Connection.Phase)

	rec = f.do(http.MethodGet, "/v1/deliveries/7-A", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"teamName":"Lambda"`)

	rec = f.do(http.MethodGet, "/v1/deliveries/99-Z", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.JSONEq(t, `{"error":"delivery not found"}`, rec.Body.String())
}

func TestAPI_MarkDelivered(t *testing.T) {
	f := newFixture(t, deliveredset.NewMemory())

	assert.Equal(t, http.StatusUnauthorized, f.do(http.MethodPost, "/v1/deliveries/7-A/deliver", "").Code)

	rec := f.do(http.MethodPost, "/v1/deliveries/7-A/deliver", token(t, auth.RoleVolunteer))
	require.Equal(t, http.StatusOK, rec.Code)

	var record delivery.Record
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &record))
	assert.Equal(t, delivery.StatusDelivered, record.Status)
	assert.NotEmpty(t, record.DeliveredAt)

	board := f.store.Board()
	assert.Len(t, board.Pending, 1)
	assert.Len(t, board.Recent, 1)

	rec = f.do(http.MethodPost, "/v1/deliveries/nope/deliver", token(t, auth.RoleVolunteer))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAPI_MarkDeliveredPersistFailure(t *testing.T) {
	f := newFixture(t, brokenSet{deliveredset.NewMemory()})

	rec := f.do(http.MethodPost, "/v1/deliveries/7-A/deliver", token(t, auth.RoleVolunteer))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)

	record, ok := f.store.Get("7-A")
	require.True(t, ok)
	assert.Equal(t, delivery.StatusPending, record.Status)
}

func TestAPI_ClearRequiresAdmin(t *testing.T) {
	set := deliveredset.NewMemory("7-A")
	f := newFixture(t, set)

	assert.Equal(t, http.StatusForbidden, f.do(http.MethodDelete, "/v1/delivered", token(t, auth.RoleVolunteer)).Code)

	rec := f.do(http.MethodDelete, "/v1/delivered", token(t, auth.RoleAdmin))
	assert.Equal(t, http.StatusNoContent, rec.Code)

	keys, err := set.Load(context.Background())
	require.NoError(t, err)
	assert.Empty(t, keys)
	assert.Empty(t, f.store.Board().Recent)
}

func TestAPI_Reconnect(t *testing.T) {
	f := newFixture(t, deliveredset.NewMemory())

	rec := f.do(http.MethodPost, "/v1/connection/reconnect", token(t, auth.RoleVolunteer))
	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, 1, f.conn.reconnects)

	f.conn.err = connection.ErrNotRunning
	rec = f.do(http.MethodPost, "/v1/connection/reconnect", token(t, auth.RoleVolunteer))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestAPI_HealthReadyMetrics(t *testing.T) {
	f := newFixture(t, deliveredset.NewMemory())

	assert.JSONEq(t, `{"status":"ok"}`, f.do(http.MethodGet, "/health", "").Body.String())

	rec := f.do(http.MethodGet, "/ready", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"deliveries":2`)

	f.conn.state = connection.State{Phase: connection.PhaseFailed, Attempt: 6}
	rec = f.do(http.MethodGet, "/ready", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "degraded")

	assert.Equal(t, http.StatusOK, f.do(http.MethodGet, "/metrics", "").Code)
}

func TestAPI_RateLimited(t *testing.T) {
	store := delivery.NewStore(delivery.Options{Set: deliveredset.NewMemory(), Logger: zerolog.Nop()})
	api := NewAPI(Deps{
		Deliveries: store,
		Connection: &fakeConnection{},
		Validator:  auth.NewJWTValidator(secret),
		Limiter:    middleware.NewRateLimiter(1, time.Minute, zerolog.Nop()),
	}, zerolog.Nop())
	srv := api.Routes()

	for i, want := range []int{http.StatusOK, http.StatusTooManyRequests} {
		rec := httptest.NewRecorder()
		srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/deliveries", nil))
		assert.Equal(t, want, rec.Code, "request %d", i)
	}

	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code, "health is not limited")
}

type onlineUsers struct {
	mu  sync.Mutex
	ids []string
}

func (o *onlineUsers) SetOnline(_ context.Context, id string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.ids = append(o.ids, id)
	return nil
}

func (o *onlineUsers) list() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]string(nil), o.ids...)
}

func TestWebSocket_GreetsAndAnswersPing(t *testing.T) {
	store := delivery.NewStore(delivery.Options{Set: deliveredset.NewMemory(), Logger: zerolog.Nop()})
	store.Apply(snapshot())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h := hub.NewHub(nil, nil, zerolog.Nop())
	go h.Run(ctx)

	online := &onlineUsers{}
	api := NewAPI(Deps{
		Deliveries: store,
		Connection: &fakeConnection{},
		Validator:  auth.NewJWTValidator(secret),
		WebSocket:  NewWebSocketHandler(h, store.Board, online, zerolog.Nop()),
	}, zerolog.Nop())
	srv := httptest.NewServer(api.Routes())
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/v1/ws?token=" + token(t, auth.RoleVolunteer)
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer ws.Close()

	read := func() *protocol.Message {
		ws.SetReadDeadline(time.Now().Add(2 * time.Second))
		_, data, err := ws.ReadMessage()
		require.NoError(t, err)
		msg, err := protocol.ParseMessage(data)
		require.NoError(t, err)
		return msg
	}

	assert.Equal(t, protocol.MsgConnected, read().Type)
	board := read()
	assert.Equal(t, protocol.MsgBoard, board.Type)
	assert.Contains(t, string(board.Payload), `"7-A"`)

	require.NoError(t, ws.WriteMessage(websocket.TextMessage, []byte(`{"type":"ping","requestId":"p"}`)))
	assert.Equal(t, protocol.MsgPong, read().Type)
	assert.Equal(t, []string{"runner-1"}, online.list())

	_, _, err = websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/v1/ws", nil)
	assert.Error(t, err)
}
