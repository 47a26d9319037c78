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
	"github.com/ppiankov/sourcecheck/internal/messaging"
	"github.com/ppiankov/sourcecheck/internal/model"
	"github.com/ppiankov/sourcecheck/internal/pipeline"
	"github.com/ppiankov/sourcecheck/internal/session"
	"github.com/ppiankov/sourcecheck/internal/settings"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRunner struct {
	report *model.RunReport
	err    error
}

func (f *fakeRunner) VerifySelection(ctx context.Context) (*model.RunReport, error) {
	return f.report, f.err
}

type fixture struct {
	server      *Server
	bus         *messaging.Bus
	coordinator *session.Coordinator
	runner      *fakeRunner
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	store := session.NewMemoryStore()
	coord := session.NewCoordinator(store, nil)
	router := messaging.NewRouter(messaging.Services{
		Coordinator: coord,
		Settings:    settings.NewMemoryStore(settings.Settings{}),
	})
	bus := messaging.NewBus(router, messaging.WithTimeout(5*time.Second))
	t.Cleanup(func() {
		_ = bus.Close()
		_ = store.Close()
	})

	runner := &fakeRunner{}
	return &fixture{
		server:      New(bus, runner, coord, nil),
		bus:         bus,
		coordinator: coord,
		runner:      runner,
	}
}

func (f *fixture) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(rec, req)
	return rec
}

func encode(t *testing.T, msg messaging.Message) string {
	t.Helper()
	data, err := messaging.Encode(msg)
	require.NoError(t, err)
	return string(data)
}

func decodeReply(t *testing.T, rec *httptest.ResponseRecorder) messaging.Message {
	t.Helper()
	msg, err := messaging.Decode(rec.Body.Bytes())
	require.NoError(t, err, rec.Body.String())
	return msg
}

func TestHealthz(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())
}

func TestMessages_SelectionThenState(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodPost, "/v1/messages", encode(t, messaging.Selection{
		Text:    "The tower opened in 1889",
		Context: "Built for the World's Fair.",
		URLs:    []string{"https://a.test/"},
	}))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.IsType(t, messaging.Ack{}, decodeReply(t, rec))

	rec = f.do(t, http.MethodPost, "/v1/messages", encode(t, messaging.GetState{}))
	require.Equal(t, http.StatusOK, rec.Code)
	reply, ok := decodeReply(t, rec).(messaging.State)
	require.True(t, ok)
	assert.Equal(t, "The tower opened in 1889", reply.State.SelectedText)
	assert.Equal(t, []string{"https://a.test/"}, reply.State.SourceURLs)

	rec = f.do(t, http.MethodGet, "/v1/state", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var state model.SessionState
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &state))
	assert.Equal(t, reply.State.SelectionID, state.SelectionID)
}

func TestMessages_Errors(t *testing.T) {
	f := newFixture(t)

	tests := []struct {
		name   string
		body   string
		status int
		code   string
	}{
		{"malformed", `{"type":`, http.StatusBadRequest, "bad_request"},
		{"unknown kind", `{"type":"launch"}`, http.StatusBadRequest, "bad_request"},
		{"reply sent as request", encode(t, messaging.Ack{}), http.StatusBadRequest, "bad_request"},
		{"no acquirer", encode(t, messaging.FetchPage{URL: "https://a.test/"}), http.StatusServiceUnavailable, "unavailable"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := f.do(t, http.MethodPost, "/v1/messages", tt.body)
			assert.Equal(t, tt.status, rec.Code)

			reply, ok := decodeReply(t, rec).(messaging.ErrorReply)
			require.True(t, ok)
			assert.Equal(t, tt.code, reply.Code)
			assert.NotEmpty(t, reply.Message)
		})
	}
}

func TestVerify(t *testing.T) {
	f := newFixture(t)

	f.runner.report = &model.RunReport{
		RunID:  "run-1",
		Result: model.Inconclusive("no fetchable sources"),
	}
	rec := f.do(t, http.MethodPost, "/v1/verify", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp verifyResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotNil(t, resp.Report)
	assert.Equal(t, model.VerdictInconclusive, resp.Report.Result.Status)
	assert.Nil(t, resp.Error)
}

func TestVerify_Errors(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"missing credentials", &pipeline.ConfigError{Reason: "no API key"}, http.StatusPreconditionFailed, "config"},
		{"superseded", pipeline.ErrSuperseded, http.StatusConflict, "superseded"},
		{"empty claim", pipeline.ErrEmptyClaim, http.StatusBadRequest, "empty_claim"},
		{"timeout", messaging.ErrTimeout, http.StatusGatewayTimeout, "timeout"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.runner.err = tt.err
			f.runner.report = &model.RunReport{RunID: "run-1"}

			rec := f.do(t, http.MethodPost, "/v1/verify", "")
			assert.Equal(t, tt.status, rec.Code)

			var resp verifyResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			require.NotNil(t, resp.Error)
			assert.Equal(t, tt.code, resp.Error.Code)
			assert.NotNil(t, resp.Report, "partial report is returned")
		})
	}
}

func TestStatusFor(t *testing.T) {
	tests := map[string]int{
		"bad_request":            http.StatusBadRequest,
		"config":                 http.StatusPreconditionFailed,
		"fetch_timeout":          http.StatusBadGateway,
		"verify_schema_mismatch": http.StatusBadGateway,
		"unavailable":            http.StatusServiceUnavailable,
		"internal":               http.StatusInternalServerError,
	}
	for code, want := range tests {
		assert.Equal(t, want, statusFor(code), code)
	}
}

func TestStateWebSocket(t *testing.T) {
	f := newFixture(t)
	ts := httptest.NewServer(f.server.Handler())
	defer ts.Close()

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/v1/state/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer func() { _ = conn.Close() }()

	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	var first model.SessionState
	require.NoError(t, conn.ReadJSON(&first))
	assert.Empty(t, first.SelectedText)

	_, err = f.coordinator.OnSelection(context.Background(), session.Selection{
		Text: "Bees dance to share directions",
		URLs: []string{"https://bees.test/"},
	})
	require.NoError(t, err)

	var next model.SessionState
	require.NoError(t, conn.ReadJSON(&next))
	assert.Equal(t, "Bees dance to share directions", next.SelectedText)
	assert.Greater(t, next.SelectionID, first.SelectionID)
}
