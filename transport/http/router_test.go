package http

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/layer-3/chomp-auth/adapters/backend"
	"github.com/layer-3/chomp-auth/adapters/signer"
	"github.com/layer-3/chomp-auth/adapters/store"
	"github.com/layer-3/chomp-auth/core"
	"github.com/layer-3/chomp-auth/internal/testbackend"
	"github.com/layer-3/chomp-auth/service"
	"github.com/layer-3/chomp-auth/service/flow"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type agent struct {
	be     *testbackend.Backend
	server *httptest.Server
	client *http.Client
}

func newAgent(t *testing.T) *agent {
	t.Helper()
	gin.SetMode(gin.TestMode)

	be := testbackend.New()
	t.Cleanup(be.Close)

	kv := store.NewMemoryStore()
	endpoint, err := backend.NewEndpoint(backend.Backend{Name: "test", URL: be.URL()})
	require.NoError(t, err)
	endpoint.WithStore(kv)

	client := backend.NewClient(endpoint)
	sessions := service.NewSessions(kv, client)
	client.SetTokenSource(sessions)

	orch := service.NewOrchestrator(flow.NewBuilder(client, signer.NewRegistry(), kv), sessions)
	server := httptest.NewServer(SetupRouter(orch, endpoint, zerolog.Nop()))
	t.Cleanup(server.Close)

	return &agent{
		be:     be,
		server: server,
		client: &http.Client{
			CheckRedirect: func(*http.Request, []*http.Request) error { return http.ErrUseLastResponse },
		},
	}
}

func (a *agent) do(t *testing.T, method, path string, body any, header http.Header) (*http.Response, map[string]any) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequest(method, a.server.URL+path, reader)
	require.NoError(t, err)
	for k, v := range header {
		req.Header[k] = v
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := a.client.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out map[string]any
	_ = json.NewDecoder(resp.Body).Decode(&out)
	return resp, out
}

func TestLoginStaticAndProxy(t *testing.T) {
	a := newAgent(t)

	resp, _ := a.do(t, http.MethodGet, "/api/me", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, body := a.do(t, http.MethodPost, "/auth/login", gin.H{"method": "static", "input": testbackend.DemoToken}, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "success", body["step"])
	assert.Equal(t, true, body["authenticated"])

	resp, body = a.do(t, http.MethodGet, "/auth/session", nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "authenticated_user", body["user_id"])
	assert.NotContains(t, body, "token")

	resp, body = a.do(t, http.MethodGet, "/api/me", nil, http.Header{"Authorization": {"Bearer caller-token"}})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "authenticated_user", body["user_id"])

	calls := a.be.CallsTo("/api/me")
	require.Len(t, calls, 1)
	assert.NotEqual(t, "Bearer caller-token", calls[0].Auth)
	assert.True(t, strings.HasPrefix(calls[0].Auth, "Bearer tok_"))
}

func TestLoginFailures(t *testing.T) {
	a := newAgent(t)

	resp, _ := a.do(t, http.MethodPost, "/auth/login", gin.H{"method": "password"}, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = a.do(t, http.MethodPost, "/auth/login", gin.H{}, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, body := a.do(t, http.MethodPost, "/auth/login", gin.H{"method": "static", "input": "nope"}, nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "error", body["step"])
	assert.Equal(t, map[string]any{"kind": "auth", "message": "Invalid static token"}, body["error"])

	resp, body = a.do(t, http.MethodPost, "/auth/dismiss", nil, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotContains(t, body, "error")

	resp, _ = a.do(t, http.MethodPost, "/auth/login", gin.H{"method": "web3:sui"}, nil)
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)

	resp, body = a.do(t, http.MethodPost, "/auth/cancel", nil, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "idle", body["step"])

	resp, _ = a.do(t, http.MethodPost, "/auth/retry", nil, nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestOAuth2CallbackRoute(t *testing.T) {
	a := newAgent(t)

	resp, body := a.do(t, http.MethodPost, "/auth/login", gin.H{"method": "oauth2:github"}, nil)
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	assert.Equal(t, "connecting", body["step"])

	redirect, ok := body["redirect"].(string)
	require.True(t, ok)
	authURL, err := url.Parse(redirect)
	require.NoError(t, err)

	a.be.AddOAuthCode("github", "gh-code", "octocat")
	q := url.Values{"code": {"gh-code"}, "state": {authURL.Query().Get("state")}, "next": {"/home"}}
	resp, _ = a.do(t, http.MethodGet, "/auth/callback?"+q.Encode(), nil, nil)
	require.Equal(t, http.StatusSeeOther, resp.StatusCode)
	assert.Equal(t, a.server.URL+"/auth/callback?next=%2Fhome", resp.Header.Get("Location"))

	resp, body = a.do(t, http.MethodGet, "/auth/state", nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "success", body["step"])
	assert.Equal(t, "oauth2:github", body["method"])

	// landing on the stripped URL is not a callback
	resp, body = a.do(t, http.MethodGet, "/auth/callback?next=%2Fhome", nil, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "success", body["step"])
}

func TestStateWait(t *testing.T) {
	a := newAgent(t)

	resp, body := a.do(t, http.MethodGet, "/auth/state?wait=10ms", nil, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "idle", body["step"])

	resp, _ = a.do(t, http.MethodGet, "/auth/state?wait=soon", nil, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestMethodsRoute(t *testing.T) {
	a := newAgent(t)

	resp, body := a.do(t, http.MethodGet, "/auth/methods", nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body["methods"], "web3:evm")
	assert.Contains(t, body["methods"], "oauth2:x")
}

func TestSelectBackend(t *testing.T) {
	a := newAgent(t)
	other := testbackend.New()
	defer other.Close()

	resp, _ := a.do(t, http.MethodPut, "/backend", gin.H{"name": "broken", "url": "not a url"}, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, body := a.do(t, http.MethodPut, "/backend", gin.H{"name": "other", "url": other.URL()}, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "other", body["name"])

	resp, _ = a.do(t, http.MethodPost, "/auth/login", gin.H{"method": "static", "input": testbackend.DemoToken}, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Empty(t, a.be.Calls())
	assert.Len(t, other.CallsTo("/auth/direct"), 1)
}

func TestLogoutRoute(t *testing.T) {
	a := newAgent(t)

	resp, _ := a.do(t, http.MethodPost, "/auth/login", gin.H{"method": "static", "input": testbackend.DemoToken}, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, _ = a.do(t, http.MethodPost, "/auth/logout", nil, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, a.be.CallsTo("/auth/logout"), 1)

	_, body := a.do(t, http.MethodGet, "/auth/session", nil, nil)
	assert.Equal(t, false, body["authenticated"])

	_, body = a.do(t, http.MethodGet, "/auth/state", nil, nil)
	assert.Equal(t, string(core.StateIdle), body["step"])
}
