package flow_test

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"net/http"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/layer-3/chomp-auth/adapters/backend"
	"github.com/layer-3/chomp-auth/adapters/signer"
	"github.com/layer-3/chomp-auth/adapters/store"
	"github.com/layer-3/chomp-auth/core"
	"github.com/layer-3/chomp-auth/internal/testbackend"
	"github.com/layer-3/chomp-auth/ports"
	"github.com/layer-3/chomp-auth/service/flow"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingNavigator struct {
	urls []string
	err  error
}

func (n *recordingNavigator) Navigate(_ context.Context, u string) error {
	n.urls = append(n.urls, u)
	return n.err
}

type recordingProgress struct {
	steps     []string
	challenge core.Challenge
}

func (p *recordingProgress) ChallengeIssued(c core.Challenge) {
	p.steps = append(p.steps, "challenge")
	p.challenge = c
}

func (p *recordingProgress) Signed() {
	p.steps = append(p.steps, "signed")
}

type env struct {
	be      *testbackend.Backend
	client  *backend.Client
	store   *store.MemoryStore
	wallets *signer.Registry
	builder *flow.Builder
}

func newEnv(t *testing.T, approve signer.ApproveFunc) *env {
	t.Helper()
	be := testbackend.New()
	t.Cleanup(be.Close)

	endpoint, err := backend.NewEndpoint(backend.Backend{Name: "test", URL: be.URL()})
	require.NoError(t, err)
	client := backend.NewClient(endpoint)

	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	_, svmKey, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	_, suiKey, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)

	wallets := signer.NewRegistry(
		signer.NewEVMSigner(signer.NewEVMKeyWalletFromKey(key, approve), nil),
		signer.NewSVMSigner(signer.NewSVMKeyWallet(svmKey, approve), nil),
		signer.NewSuiSigner(signer.NewSuiKeyWallet(suiKey, approve), nil),
	)
	kv := store.NewMemoryStore()

	return &env{
		be:      be,
		client:  client,
		store:   kv,
		wallets: wallets,
		builder: flow.NewBuilder(client, wallets, kv),
	}
}

func (e *env) build(t *testing.T, method core.AuthMethod, nav ports.Navigator) ports.Flow {
	t.Helper()
	f, err := e.builder.Build(method, nav)
	require.NoError(t, err)
	assert.Equal(t, method, f.Method())
	return f
}

func TestStaticLogin(t *testing.T) {
	e := newEnv(t, nil)

	session, err := e.build(t, core.StaticMethod(), nil).Attempt(context.Background(), testbackend.DemoToken, nil)
	require.NoError(t, err)
	assert.Equal(t, "authenticated_user", session.UserID)
	assert.Equal(t, core.StaticMethod(), session.Method)
	assert.True(t, e.be.Valid(session.Token))
}

func TestStaticEmptyTokenMakesNoCall(t *testing.T) {
	e := newEnv(t, nil)

	_, err := e.build(t, core.StaticMethod(), nil).Attempt(context.Background(), "", nil)
	assert.Equal(t, core.KindAuth, core.KindOf(err))
	assert.Empty(t, e.be.Calls())
}

func TestStaticWrongToken(t *testing.T) {
	e := newEnv(t, nil)

	_, err := e.build(t, core.StaticMethod(), nil).Attempt(context.Background(), "guess", nil)
	require.Error(t, err)
	ae := core.AsAuthError(err)
	assert.Equal(t, core.KindAuth, ae.Kind)
	assert.Equal(t, "Invalid static token", ae.Message)
}

func startRedirect(t *testing.T, e *env, provider string) (ports.ResumableFlow, string) {
	t.Helper()
	nav := &recordingNavigator{}
	f := e.build(t, core.OAuth2Method(provider), nav)

	_, err := f.Attempt(context.Background(), "", nil)
	require.ErrorIs(t, err, core.ErrRedirectPending)
	require.Len(t, nav.urls, 1)

	authURL, err := url.Parse(nav.urls[0])
	require.NoError(t, err)
	state := authURL.Query().Get("state")
	require.NotEmpty(t, state)

	rf, ok := f.(ports.ResumableFlow)
	require.True(t, ok)
	return rf, state
}

func TestOAuth2RedirectAndCallback(t *testing.T) {
	e := newEnv(t, nil)
	rf, state := startRedirect(t, e, "github")

	method, ok := e.builder.PendingRedirect(context.Background())
	require.True(t, ok)
	assert.Equal(t, core.OAuth2Method("github"), method)

	e.be.AddOAuthCode("github", "code-1", "octocat")
	session, cleaned, err := rf.Callback(context.Background(),
		"http://localhost:3000/login?code=code-1&state="+state+"&tab=wallets")
	require.NoError(t, err)
	assert.Equal(t, "octocat", session.UserID)
	assert.Equal(t, core.OAuth2Method("github"), session.Method)
	assert.Equal(t, "http://localhost:3000/login?tab=wallets", cleaned)

	calls := e.be.CallsTo("/auth/direct")
	require.Len(t, calls, 1)
	assert.Equal(t, "oauth2_github", calls[0].Body["auth_method"])

	_, ok = e.builder.PendingRedirect(context.Background())
	assert.False(t, ok, "marker is consumed")
}

func TestOAuth2StateMismatch(t *testing.T) {
	e := newEnv(t, nil)
	rf, _ := startRedirect(t, e, "x")
	e.be.AddOAuthCode("x", "code-1", "someone")

	_, cleaned, err := rf.Callback(context.Background(), "http://localhost:3000/login?code=code-1&state=forged")
	assert.ErrorIs(t, err, core.ErrStateMismatch)
	assert.Equal(t, core.KindAuth, core.KindOf(err))
	assert.Equal(t, "http://localhost:3000/login", cleaned)
	assert.Empty(t, e.be.CallsTo("/auth/direct"))
}

func TestOAuth2ProviderError(t *testing.T) {
	e := newEnv(t, nil)
	rf, state := startRedirect(t, e, "github")

	_, cleaned, err := rf.Callback(context.Background(),
		"http://localhost:3000/login?error=access_denied&error_description=nope&state="+state)
	require.Error(t, err)
	ae := core.AsAuthError(err)
	assert.Equal(t, core.KindAuth, ae.Kind)
	assert.Equal(t, "OAuth2 error: access_denied", ae.Message)
	assert.Equal(t, "http://localhost:3000/login", cleaned)
}

func TestOAuth2CallbackWithoutParams(t *testing.T) {
	e := newEnv(t, nil)
	rf, _ := startRedirect(t, e, "github")

	_, _, err := rf.Callback(context.Background(), "http://localhost:3000/login")
	assert.ErrorIs(t, err, core.ErrNoCallback)

	_, ok := e.builder.PendingRedirect(context.Background())
	assert.True(t, ok, "a bare return keeps the redirect pending")
}

func TestOAuth2CallbackWithoutRedirect(t *testing.T) {
	e := newEnv(t, nil)
	rf := e.build(t, core.OAuth2Method("github"), nil).(ports.ResumableFlow)

	_, _, err := rf.Callback(context.Background(), "http://localhost:3000/login?code=c&state=s")
	assert.ErrorIs(t, err, core.ErrStateMismatch)
}

func TestOAuth2UnknownProvider(t *testing.T) {
	e := newEnv(t, nil)
	nav := &recordingNavigator{}

	_, err := e.build(t, core.OAuth2Method("gitlab"), nav).Attempt(context.Background(), "", nil)
	assert.Equal(t, core.KindAuth, core.KindOf(err))
	assert.Empty(t, nav.urls)

	_, ok := e.builder.PendingRedirect(context.Background())
	assert.False(t, ok)
}

func TestIsCallback(t *testing.T) {
	assert.True(t, flow.IsCallback("http://localhost/?code=1&state=2"))
	assert.True(t, flow.IsCallback("http://localhost/?error=access_denied"))
	assert.False(t, flow.IsCallback("http://localhost/?tab=1"))
	assert.False(t, flow.IsCallback("%zz"))
}

func TestWeb3LoginAllFamilies(t *testing.T) {
	for _, family := range []core.ChainFamily{core.ChainEVM, core.ChainSVM, core.ChainSui} {
		t.Run(string(family), func(t *testing.T) {
			e := newEnv(t, nil)
			progress := &recordingProgress{}

			session, err := e.build(t, core.Web3Method(family), nil).Attempt(context.Background(), "", progress)
			require.NoError(t, err)
			assert.Equal(t, []string{"challenge", "signed"}, progress.steps)
			assert.Equal(t, core.Web3Method(family), session.Method)
			assert.True(t, e.be.Valid(session.Token))

			// the verified challenge is the one that was issued for this attempt
			assert.Equal(t, []string{progress.challenge.ID}, e.be.IssuedChallenges())
			assert.Equal(t, e.be.IssuedChallenges(), e.be.SubmittedChallenges())
		})
	}
}

func TestWeb3UserRejection(t *testing.T) {
	deny := func(context.Context, core.ChainFamily, string) bool { return false }
	e := newEnv(t, deny)
	progress := &recordingProgress{}

	_, err := e.build(t, core.Web3Method(core.ChainEVM), nil).Attempt(context.Background(), "", progress)
	assert.ErrorIs(t, err, core.ErrUserRejected)
	assert.Equal(t, core.KindWallet, core.KindOf(err))
	assert.Equal(t, []string{"challenge"}, progress.steps)
	assert.Empty(t, e.be.CallsTo("/auth/verify"))
}

func TestWeb3ExpiredChallengeIsStillSubmitted(t *testing.T) {
	e := newEnv(t, nil)
	e.be.ChallengeTTL = -time.Minute

	_, err := e.build(t, core.Web3Method(core.ChainSVM), nil).Attempt(context.Background(), "", nil)
	require.Error(t, err)
	ae := core.AsAuthError(err)
	assert.Equal(t, core.KindAuth, ae.Kind)
	assert.Equal(t, "challenge expired", ae.Message)
	assert.Equal(t, e.be.IssuedChallenges(), e.be.SubmittedChallenges())
}

func TestWeb3ChallengeFailureSkipsSigning(t *testing.T) {
	asked := 0
	count := func(context.Context, core.ChainFamily, string) bool {
		asked++
		return true
	}
	e := newEnv(t, count)
	e.be.Fail("/auth/challenge", http.StatusInternalServerError, `{"detail":"challenge store unavailable"}`)

	_, err := e.build(t, core.Web3Method(core.ChainSui), nil).Attempt(context.Background(), "", nil)
	require.Error(t, err)
	ae := core.AsAuthError(err)
	assert.Equal(t, core.KindChallenge, ae.Kind)
	assert.Equal(t, "challenge store unavailable", ae.Message)
	assert.Zero(t, asked)
}

func TestWeb3IdentifierMustMatchWallet(t *testing.T) {
	e := newEnv(t, nil)
	other, err := crypto.GenerateKey()
	require.NoError(t, err)

	f := e.build(t, core.Web3Method(core.ChainEVM), nil)
	_, err = f.Attempt(context.Background(), crypto.PubkeyToAddress(other.PublicKey).Hex(), nil)
	assert.ErrorIs(t, err, core.ErrAccountMismatch)
	assert.Equal(t, core.KindWallet, core.KindOf(err))
	assert.Empty(t, e.be.Calls())
}

func TestWeb3SuppliedIdentifierOfWallet(t *testing.T) {
	e := newEnv(t, nil)
	evm, err := e.wallets.Resolve(context.Background(), core.ChainEVM)
	require.NoError(t, err)
	account, err := evm.Identifier(context.Background())
	require.NoError(t, err)

	session, err := e.build(t, core.Web3Method(core.ChainEVM), nil).Attempt(context.Background(), strings.ToLower(account), nil)
	require.NoError(t, err)
	assert.True(t, e.be.Valid(session.Token))
}

func TestWeb3NoWallet(t *testing.T) {
	e := newEnv(t, nil)
	builder := flow.NewBuilder(e.client, signer.NewRegistry(), e.store)

	f, err := builder.Build(core.Web3Method(core.ChainSui), nil)
	require.NoError(t, err)
	_, err = f.Attempt(context.Background(), "", nil)
	assert.ErrorIs(t, err, core.ErrNoWallet)
	assert.Equal(t, core.KindWallet, core.KindOf(err))
	assert.Empty(t, e.be.Calls())
}

func TestBuildRejectsInvalidMethod(t *testing.T) {
	e := newEnv(t, nil)
	for _, m := range []core.AuthMethod{{}, core.OAuth2Method(""), core.Web3Method("btc")} {
		_, err := e.builder.Build(m, nil)
		assert.ErrorIs(t, err, core.ErrInvalidMethod)
	}
}
