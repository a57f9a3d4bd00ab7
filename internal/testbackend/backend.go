// Package testbackend is an in-process backend speaking the auth wire
// contract. It issues and verifies real wallet challenges so client flows can
// be exercised end to end.
package testbackend

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/google/uuid"
	"github.com/layer-3/chomp-auth/adapters/signer"
)

// DemoToken is the static token accepted by default
const DemoToken = "demo-token"

type challengeRecord struct {
	method     string
	identifier string
	message    string
	expiresAt  time.Time
	used       bool
}

// Call records one request the backend received
type Call struct {
	Method string
	Path   string
	Auth   string
	Body   map[string]any
}

type forced struct {
	status int
	body   string
}

// Backend is a fake auth backend
type Backend struct {
	mu sync.Mutex

	StaticToken  string
	ChallengeTTL time.Duration
	AuthorizeURL string // provider authorize page the login URL points at

	challenges map[string]*challengeRecord
	sessions   map[string]string            // token -> user id
	codes      map[string]map[string]string // provider -> code -> user id
	forced     map[string][]forced
	calls      []Call
	issued     []string
	gate       map[string]chan struct{}

	server *httptest.Server
}

// New creates and starts a backend
func New() *Backend {
	gin.SetMode(gin.TestMode)

	b := &Backend{
		StaticToken:  DemoToken,
		ChallengeTTL: 5 * time.Minute,
		AuthorizeURL: "https://provider.example/authorize",
		challenges:   make(map[string]*challengeRecord),
		sessions:     make(map[string]string),
		codes:        map[string]map[string]string{"github": {}, "x": {}},
		forced:       make(map[string][]forced),
		gate:         make(map[string]chan struct{}),
	}
	b.server = httptest.NewServer(b.router())
	return b
}

// URL returns the base URL of the running backend
func (b *Backend) URL() string {
	return b.server.URL
}

// Close stops the backend
func (b *Backend) Close() {
	b.server.Close()
}

// AddOAuthCode makes code exchangeable for a session of userID
func (b *Backend) AddOAuthCode(provider, code, userID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.codes[provider] == nil {
		b.codes[provider] = make(map[string]string)
	}
	b.codes[provider][code] = userID
}

// Fail makes the next request to path answer with status and raw body
func (b *Backend) Fail(path string, status int, body string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.forced[path] = append(b.forced[path], forced{status: status, body: body})
}

// Hold blocks requests to path until the returned func is called
func (b *Backend) Hold(path string) (release func()) {
	ch := make(chan struct{})
	b.mu.Lock()
	b.gate[path] = ch
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.gate, path)
			b.mu.Unlock()
			close(ch)
		})
	}
}

// Revoke invalidates an issued token
func (b *Backend) Revoke(token string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.sessions, token)
}

// Valid reports whether token is a live session
func (b *Backend) Valid(token string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.sessions[token]
	return ok
}

// Calls returns the recorded requests
func (b *Backend) Calls() []Call {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]Call(nil), b.calls...)
}

// CallsTo returns the recorded requests for one path
func (b *Backend) CallsTo(path string) []Call {
	var out []Call
	for _, c := range b.Calls() {
		if c.Path == path {
			out = append(out, c)
		}
	}
	return out
}

// IssuedChallenges returns the IDs of every challenge handed out, in order
func (b *Backend) IssuedChallenges() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.issued...)
}

// SubmittedChallenges returns the challenge IDs sent to /auth/verify, in order
func (b *Backend) SubmittedChallenges() []string {
	var ids []string
	for _, c := range b.CallsTo("/auth/verify") {
		if id, ok := c.Body["challenge_id"].(string); ok {
			ids = append(ids, id)
		}
	}
	return ids
}

func (b *Backend) router() *gin.Engine {
	router := gin.New()
	router.Use(b.record)

	auth := router.Group("/auth")
	{
		auth.POST("/direct", b.handleDirect)
		auth.GET("/:provider/login", b.handleOAuthLogin)
		auth.POST("/challenge", b.handleChallenge)
		auth.POST("/verify", b.handleVerify)
		auth.GET("/status", b.handleStatus)
		auth.POST("/logout", b.handleLogout)
	}
	router.GET("/api/me", b.handleMe)

	return router
}

// record captures the call, applies forced failures and holds
func (b *Backend) record(c *gin.Context) {
	call := Call{
		Method: c.Request.Method,
		Path:   c.Request.URL.Path,
		Auth:   c.GetHeader("Authorization"),
	}
	if c.Request.Body != nil && c.Request.ContentLength != 0 {
		var body map[string]any
		if err := c.ShouldBindBodyWith(&body, binding.JSON); err == nil {
			call.Body = body
		}
	}

	b.mu.Lock()
	b.calls = append(b.calls, call)
	gate := b.gate[call.Path]
	var f *forced
	if queue := b.forced[call.Path]; len(queue) > 0 {
		f = &queue[0]
		b.forced[call.Path] = queue[1:]
	}
	b.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-c.Request.Context().Done():
			c.Abort()
			return
		}
	}

	if f != nil {
		c.Data(f.status, "application/json", []byte(f.body))
		c.Abort()
		return
	}
	c.Next()
}

type directRequest struct {
	AuthMethod  string `json:"auth_method" binding:"required"`
	Credentials struct {
		Token string `json:"token"`
	} `json:"credentials"`
}

func (b *Backend) handleDirect(c *gin.Context) {
	var req directRequest
	if err := c.ShouldBindBodyWith(&req, binding.JSON); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"detail": "invalid request"})
		return
	}

	switch {
	case req.AuthMethod == "static":
		if req.Credentials.Token == "" || req.Credentials.Token != b.StaticToken {
			c.JSON(http.StatusUnauthorized, gin.H{"detail": "Invalid static token"})
			return
		}
		// The static scheme carries no identity; the client fills in a default
		c.JSON(http.StatusOK, gin.H{"access_token": b.issue(""), "expires_hours": 24})

	case strings.HasPrefix(req.AuthMethod, "oauth2_"):
		provider := strings.TrimPrefix(req.AuthMethod, "oauth2_")
		b.mu.Lock()
		userID, ok := b.codes[provider][req.Credentials.Token]
		if ok {
			delete(b.codes[provider], req.Credentials.Token)
		}
		b.mu.Unlock()
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"detail": "Invalid authorization code"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"access_token": b.issue(userID), "user_id": userID, "expires_hours": "1.5"})

	default:
		c.JSON(http.StatusBadRequest, gin.H{"detail": "unsupported auth method"})
	}
}

func (b *Backend) handleOAuthLogin(c *gin.Context) {
	provider := c.Param("provider")

	b.mu.Lock()
	_, known := b.codes[provider]
	b.mu.Unlock()
	state := uuid.New().String()

	if !known {
		c.JSON(http.StatusNotFound, gin.H{"message": fmt.Sprintf("%s oauth2 is not configured", provider)})
		return
	}

	q := url.Values{"client_id": {"chomp"}, "state": {state}, "provider": {provider}}
	c.JSON(http.StatusOK, gin.H{"auth_url": b.AuthorizeURL + "?" + q.Encode()})
}

type challengeRequest struct {
	AuthMethod string `json:"auth_method" binding:"required"`
	Identifier string `json:"identifier" binding:"required"`
}

func (b *Backend) handleChallenge(c *gin.Context) {
	var req challengeRequest
	if err := c.ShouldBindBodyWith(&req, binding.JSON); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"detail": "auth_method and identifier are required"})
		return
	}
	switch req.AuthMethod {
	case "evm", "svm", "sui":
	default:
		c.JSON(http.StatusBadRequest, gin.H{"detail": "unsupported auth method"})
		return
	}

	id := uuid.New().String()
	record := &challengeRecord{
		method:     req.AuthMethod,
		identifier: req.Identifier,
		message:    fmt.Sprintf("Sign in to chomp\naddress: %s\nnonce: %s", req.Identifier, id),
		expiresAt:  time.Now().Add(b.ChallengeTTL),
	}

	b.mu.Lock()
	b.challenges[id] = record
	b.issued = append(b.issued, id)
	b.mu.Unlock()

	c.JSON(http.StatusOK, gin.H{
		"challenge_id": id,
		"message":      record.message,
		"expires_at":   record.expiresAt.UTC().Format(time.RFC3339Nano),
	})
}

type verifyRequest struct {
	ChallengeID string `json:"challenge_id" binding:"required"`
	Credentials struct {
		Address   string `json:"address" binding:"required"`
		Signature string `json:"signature" binding:"required"`
	} `json:"credentials"`
}

func (b *Backend) handleVerify(c *gin.Context) {
	var req verifyRequest
	if err := c.ShouldBindBodyWith(&req, binding.JSON); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"detail": "invalid request"})
		return
	}

	b.mu.Lock()
	record, ok := b.challenges[req.ChallengeID]
	var reason string
	switch {
	case !ok:
		reason = "unknown challenge"
	case record.used:
		reason = "challenge already used"
	case time.Now().After(record.expiresAt):
		reason = "challenge expired"
	case record.identifier != req.Credentials.Address:
		reason = "address does not match challenge"
	default:
		// Consumed by any verification attempt, successful or not
		record.used = true
	}
	b.mu.Unlock()

	if reason != "" {
		c.JSON(http.StatusUnauthorized, gin.H{"detail": reason})
		return
	}

	if err := verifySignature(record, req.Credentials.Signature); err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"detail": "invalid signature"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"access_token": b.issue(record.identifier), "user_id": record.identifier})
}

func verifySignature(record *challengeRecord, signature string) error {
	switch record.method {
	case "evm":
		return signer.VerifyEVM(record.message, signature, record.identifier)
	case "svm":
		return signer.VerifySVM(record.message, signature, record.identifier)
	case "sui":
		return signer.VerifySui(record.message, signature, record.identifier)
	}
	return fmt.Errorf("unsupported method %s", record.method)
}

func (b *Backend) handleStatus(c *gin.Context) {
	token, ok := bearer(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"detail": "authorization header is required"})
		return
	}

	b.mu.Lock()
	userID, valid := b.sessions[token]
	b.mu.Unlock()

	if !valid {
		c.JSON(http.StatusOK, gin.H{"authenticated": false, "message": "invalid or expired token"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"authenticated": true, "user_id": userID, "message": "ok"})
}

func (b *Backend) handleLogout(c *gin.Context) {
	token, ok := bearer(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"detail": "authorization header is required"})
		return
	}
	b.Revoke(token)
	c.JSON(http.StatusOK, gin.H{"message": "logged out successfully"})
}

func (b *Backend) handleMe(c *gin.Context) {
	token, ok := bearer(c)
	b.mu.Lock()
	userID, valid := b.sessions[token]
	b.mu.Unlock()
	if !ok || !valid {
		c.JSON(http.StatusUnauthorized, gin.H{"detail": "unauthorized"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"user_id": userID})
}

func (b *Backend) issue(userID string) string {
	token := "tok_" + uuid.New().String()
	b.mu.Lock()
	if userID == "" {
		userID = "authenticated_user"
	}
	b.sessions[token] = userID
	b.mu.Unlock()
	return token
}

func bearer(c *gin.Context) (string, bool) {
	h := c.GetHeader("Authorization")
	if len(h) < 8 || h[:7] != "Bearer " {
		return "", false
	}
	return h[7:], true
}
