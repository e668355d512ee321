package api

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"wolf-backend/internal/config"
	"wolf-backend/internal/gateway"
	"wolf-backend/internal/handlers"
	"wolf-backend/internal/lock"
	"wolf-backend/internal/models"
	"wolf-backend/internal/realtime"
	"wolf-backend/internal/services"
	"wolf-backend/internal/store/sqlite"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type testServer struct {
	t        *testing.T
	server   *httptest.Server
	upstream *httptest.Server

	mu     sync.Mutex
	status int
	stream string
}

// setUpstream sets what the fake AI gateway answers with.
func (ts *testServer) setUpstream(status int, stream string) {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	ts.status, ts.stream = status, stream
}

func (ts *testServer) currentUpstream() (int, string) {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	return ts.status, ts.stream
}

func newTestServer(t *testing.T, rateLimit config.RateLimitConfig) *testServer {
	t.Helper()
	ts := &testServer{t: t, status: http.StatusOK}
	logger := zap.NewNop().Sugar()

	ts.upstream = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		status, stream := ts.currentUpstream()
		if status != http.StatusOK {
			http.Error(w, "upstream failure", status)
			return
		}
		w.Header().Set("Content-Type", "text/event-stream")
		_, _ = io.WriteString(w, stream)
	}))
	t.Cleanup(ts.upstream.Close)

	cfg := &config.Config{
		JWTSecret:          "test-secret",
		TokenExpiration:    time.Hour,
		CORSAllowedOrigins: []string{"*"},
		RateLimit:          rateLimit,
		Gateway: config.GatewayConfig{
			BaseURL:       ts.upstream.URL,
			APIKey:        "key",
			StreamTimeout: 10 * time.Second,
			IdleTimeout:   5 * time.Second,
		},
	}

	sqliteStore, err := sqlite.Open(context.Background(), filepath.Join(t.TempDir(), "wolf.db"), logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqliteStore.Close() })

	hub := realtime.NewHub(8, logger)
	st := realtime.NewPublishingStore(sqliteStore, hub)
	gw := gateway.NewClient(cfg.Gateway, gateway.DefaultProfile(), logger)
	convSvc := services.NewConversationService(st, logger)

	router := NewRouter(RouterDependencies{
		AuthHandler:         handlers.NewAuthHandler(services.NewAuthService(st, cfg, logger), logger),
		ConversationHandler: handlers.NewConversationHandlers(convSvc, logger),
		MessageHandler:      handlers.NewMessageHandlers(services.NewChatSessionService(st, gw, lock.NewMemoryLocker(), cfg.Gateway.StreamTimeout, logger), logger),
		ChatStreamHandler:   handlers.NewChatStreamHandler(gw, logger),
		LiveHandler:         handlers.NewLiveHandler(hub, convSvc, cfg.CORSAllowedOrigins, logger),
		RateLimiter:         NewUserRateLimiter(rateLimit.RPS, rateLimit.Burst),
		Config:              cfg,
		Logger:              logger,
	})
	ts.server = httptest.NewServer(router)
	t.Cleanup(ts.server.Close)
	return ts
}

func (ts *testServer) do(method, path, token string, body interface{}) *http.Response {
	ts.t.Helper()
	var rdr io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(ts.t, err)
		rdr = strings.NewReader(string(raw))
	}
	req, err := http.NewRequest(method, ts.server.URL+path, rdr)
	require.NoError(ts.t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(ts.t, err)
	ts.t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func (ts *testServer) login(email string) string {
	ts.t.Helper()
	resp := ts.do(http.MethodPost, "/v1/auth/signup", "", models.SignupRequest{Email: email, Password: "secret1"})
	require.Equal(ts.t, http.StatusCreated, resp.StatusCode)
	resp = ts.do(http.MethodPost, "/v1/auth/login", "", models.LoginRequest{Email: email, Password: "secret1"})
	require.Equal(ts.t, http.StatusOK, resp.StatusCode)
	return decode[models.AuthResponse](ts.t, resp).AccessToken
}

type sseFrame struct {
	event string
	data  string
}

func readFrames(t *testing.T, r io.Reader) []sseFrame {
	t.Helper()
	var frames []sseFrame
	var cur sseFrame
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := sc.Text()
		switch {
		case strings.HasPrefix(line, "event: "):
			cur.event = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			cur.data = strings.TrimPrefix(line, "data: ")
		case line == "" && cur.event != "":
			frames = append(frames, cur)
			cur = sseFrame{}
		}
	}
	require.NoError(t, sc.Err())
	return frames
}

func event(content string) string {
	return `data: {"choices":[{"delta":{"content":"` + content + `"}}]}` + "\n\n"
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t, config.RateLimitConfig{})
	resp := ts.do(http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	ts := newTestServer(t, config.RateLimitConfig{})
	assert.Equal(t, http.StatusUnauthorized, ts.do(http.MethodGet, "/v1/conversations", "", nil).StatusCode)
	assert.Equal(t, http.StatusUnauthorized, ts.do(http.MethodGet, "/v1/conversations", "garbage", nil).StatusCode)
	assert.Equal(t, http.StatusUnauthorized, ts.do(http.MethodPost, "/functions/v1/chat-stream", "", nil).StatusCode)
}

func TestSendMessageRelaysFragmentsAndPersists(t *testing.T) {
	ts := newTestServer(t, config.RateLimitConfig{})
	token := ts.login("wolf@example.com")
	ts.setUpstream(http.StatusOK, event("Hel") + event("lo") + "data: [DONE]\n\n")

	resp := ts.do(http.MethodPost, "/v1/conversations", token, map[string]string{})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	conv := decode[models.ConversationResponse](t, resp)
	assert.Equal(t, models.DefaultConversationTitle, conv.Title)

	resp = ts.do(http.MethodPost, "/v1/conversations/"+conv.ID.String()+"/messages", token, models.SendMessageRequest{Content: "Hi"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	frames := readFrames(t, resp.Body)
	require.Len(t, frames, 3)
	assert.Equal(t, "fragment", frames[0].event)
	assert.JSONEq(t, `{"content":"Hel"}`, frames[0].data)
	assert.JSONEq(t, `{"content":"lo"}`, frames[1].data)
	require.Equal(t, "done", frames[2].event)

	var done models.SendMessageResponse
	require.NoError(t, json.Unmarshal([]byte(frames[2].data), &done))
	require.NotNil(t, done.AssistantMessage)
	assert.Equal(t, "Hello", done.AssistantMessage.Content)

	resp = ts.do(http.MethodGet, "/v1/conversations/"+conv.ID.String()+"/messages", token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	msgs := decode[models.ListMessagesResponse](t, resp).Messages
	require.Len(t, msgs, 2)
	assert.Equal(t, models.RoleUser, msgs[0].Role)
	assert.Equal(t, "Hi", msgs[0].Content)
	assert.Equal(t, "Hello", msgs[1].Content)
}

func TestSendMessageErrorsBeforeFirstFragmentAreJSON(t *testing.T) {
	ts := newTestServer(t, config.RateLimitConfig{})
	token := ts.login("wolf@example.com")
	conv := decode[models.ConversationResponse](t, ts.do(http.MethodPost, "/v1/conversations", token, nil))
	path := "/v1/conversations/" + conv.ID.String() + "/messages"

	resp := ts.do(http.MethodPost, path, token, models.SendMessageRequest{Content: "   "})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	ts.setUpstream(http.StatusTooManyRequests, "")
	resp = ts.do(http.MethodPost, path, token, models.SendMessageRequest{Content: "hi"})
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	assert.Equal(t, gateway.MessageRateLimited, decode[models.ErrorResponse](t, resp).Error)

	ts.setUpstream(http.StatusInternalServerError, "")
	resp = ts.do(http.MethodPost, path, token, models.SendMessageRequest{Content: "hi"})
	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)

	// Failed sends keep the user turns and add no replies.
	msgs := decode[models.ListMessagesResponse](t, ts.do(http.MethodGet, path, token, nil)).Messages
	require.Len(t, msgs, 2)
	for _, m := range msgs {
		assert.Equal(t, models.RoleUser, m.Role)
	}
}

func TestDeletedConversationRejectsSend(t *testing.T) {
	ts := newTestServer(t, config.RateLimitConfig{})
	token := ts.login("wolf@example.com")
	conv := decode[models.ConversationResponse](t, ts.do(http.MethodPost, "/v1/conversations", token, nil))
	base := "/v1/conversations/" + conv.ID.String()

	assert.Equal(t, http.StatusNoContent, ts.do(http.MethodDelete, base, token, nil).StatusCode)
	assert.Equal(t, http.StatusNotFound, ts.do(http.MethodGet, base, token, nil).StatusCode)
	assert.Equal(t, http.StatusNotFound, ts.do(http.MethodPost, base+"/messages", token, models.SendMessageRequest{Content: "hi"}).StatusCode)
}

func TestConversationsAreScopedToOwner(t *testing.T) {
	ts := newTestServer(t, config.RateLimitConfig{})
	alice := ts.login("alice@example.com")
	bob := ts.login("bob@example.com")
	conv := decode[models.ConversationResponse](t, ts.do(http.MethodPost, "/v1/conversations", alice, nil))
	base := "/v1/conversations/" + conv.ID.String()

	assert.Equal(t, http.StatusNotFound, ts.do(http.MethodGet, base, bob, nil).StatusCode)
	assert.Equal(t, http.StatusNotFound, ts.do(http.MethodPatch, base, bob, models.RenameConversationRequest{Title: "x"}).StatusCode)
	assert.Equal(t, http.StatusNotFound, ts.do(http.MethodPost, base+"/messages", bob, models.SendMessageRequest{Content: "hi"}).StatusCode)

	resp := ts.do(http.MethodPatch, base, alice, models.RenameConversationRequest{Title: "Plans"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "Plans", decode[models.ConversationResponse](t, resp).Title)

	list := decode[models.ListConversationsResponse](t, ts.do(http.MethodGet, "/v1/conversations", bob, nil))
	assert.Empty(t, list.Conversations)
}

func TestStartConversationCreatesOnFirstSend(t *testing.T) {
	ts := newTestServer(t, config.RateLimitConfig{})
	token := ts.login("wolf@example.com")
	ts.setUpstream(http.StatusOK, event("Hey"))

	resp := ts.do(http.MethodPost, "/v1/messages", token, models.SendMessageRequest{Content: "hello"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	frames := readFrames(t, resp.Body)
	require.NotEmpty(t, frames)
	last := frames[len(frames)-1]
	require.Equal(t, "done", last.event)

	var done models.SendMessageResponse
	require.NoError(t, json.Unmarshal([]byte(last.data), &done))

	list := decode[models.ListConversationsResponse](t, ts.do(http.MethodGet, "/v1/conversations", token, nil))
	require.Len(t, list.Conversations, 1)
	assert.Equal(t, done.ConversationID, list.Conversations[0].ID)
}

func TestChatStreamProxy(t *testing.T) {
	ts := newTestServer(t, config.RateLimitConfig{})
	token := ts.login("wolf@example.com")

	req, err := http.NewRequest(http.MethodOptions, ts.server.URL+"/functions/v1/chat-stream", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
	assert.Equal(t, proxyAllowHeaders, resp.Header.Get("Access-Control-Allow-Headers"))

	ts.setUpstream(http.StatusOK, event("a") + "data: [DONE]\n\n")
	body := models.ChatStreamRequest{Messages: []models.ChatMessage{{Role: models.RoleUser, Content: "hi"}}}
	resp = ts.do(http.MethodPost, "/functions/v1/chat-stream", token, body)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))
	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
	_, stream := ts.currentUpstream()
	assert.Equal(t, stream, string(mustRead(t, resp)))

	ts.setUpstream(http.StatusPaymentRequired, "")
	resp = ts.do(http.MethodPost, "/functions/v1/chat-stream", token, body)
	assert.Equal(t, http.StatusPaymentRequired, resp.StatusCode)
	assert.JSONEq(t, `{"error":"Payment required. Please add credits to your workspace."}`, string(mustRead(t, resp)))

	ts.setUpstream(http.StatusServiceUnavailable, "")
	resp = ts.do(http.MethodPost, "/functions/v1/chat-stream", token, body)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	gwErr := decode[models.GatewayErrorResponse](t, resp)
	assert.Equal(t, gateway.MessageUpstreamFailed, gwErr.Error)
	assert.Equal(t, http.StatusServiceUnavailable, gwErr.Status)
	assert.Contains(t, gwErr.Details, "upstream failure")
}

func mustRead(t *testing.T, resp *http.Response) []byte {
	t.Helper()
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return raw
}

func TestSendRateLimit(t *testing.T) {
	ts := newTestServer(t, config.RateLimitConfig{RPS: 0.001, Burst: 1})
	token := ts.login("wolf@example.com")
	ts.setUpstream(http.StatusOK, event("ok"))

	resp := ts.do(http.MethodPost, "/v1/messages", token, models.SendMessageRequest{Content: "one"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	_, _ = io.Copy(io.Discard, resp.Body)

	resp = ts.do(http.MethodPost, "/v1/messages", token, models.SendMessageRequest{Content: "two"})
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	assert.Equal(t, rateLimitMessage, decode[models.ErrorResponse](t, resp).Error)

	// Reads are not limited.
	assert.Equal(t, http.StatusOK, ts.do(http.MethodGet, "/v1/conversations", token, nil).StatusCode)
}

func TestLiveSendsBacklogThenNewMessages(t *testing.T) {
	ts := newTestServer(t, config.RateLimitConfig{})
	token := ts.login("wolf@example.com")
	ts.setUpstream(http.StatusOK, event("first reply"))

	resp := ts.do(http.MethodPost, "/v1/messages", token, models.SendMessageRequest{Content: "first"})
	frames := readFrames(t, resp.Body)
	var done models.SendMessageResponse
	require.NoError(t, json.Unmarshal([]byte(frames[len(frames)-1].data), &done))
	convPath := "/v1/conversations/" + done.ConversationID.String()

	wsURL := "ws" + strings.TrimPrefix(ts.server.URL, "http") + convPath + "/live?access_token=" + token
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))

	var backlog models.LiveEvent
	require.NoError(t, conn.ReadJSON(&backlog))
	assert.Equal(t, "backlog", backlog.Type)
	require.Len(t, backlog.Messages, 2)

	ts.setUpstream(http.StatusOK, event("second reply"))
	resp = ts.do(http.MethodPost, convPath+"/messages", token, models.SendMessageRequest{Content: "second"})
	_, _ = io.Copy(io.Discard, resp.Body)

	var got []string
	for len(got) < 2 {
		var ev models.LiveEvent
		require.NoError(t, conn.ReadJSON(&ev))
		require.Equal(t, "message", ev.Type)
		got = append(got, ev.Message.Content)
	}
	assert.Equal(t, []string{"second", "second reply"}, got)
}

func TestLiveRejectsUnknownConversation(t *testing.T) {
	ts := newTestServer(t, config.RateLimitConfig{})
	token := ts.login("wolf@example.com")

	wsURL := "ws" + strings.TrimPrefix(ts.server.URL, "http") + "/v1/conversations/00000000-0000-0000-0000-000000000001/live?access_token=" + token
	_, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
