package service_test

import (
	"context"
	"net/http"
	"net/url"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/layer-3/chomp-auth/adapters/signer"
	"github.com/layer-3/chomp-auth/core"
	"github.com/layer-3/chomp-auth/internal/testbackend"
	"github.com/layer-3/chomp-auth/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type navigations struct {
	urls []string
}

func (n *navigations) Navigate(_ context.Context, u string) error {
	n.urls = append(n.urls, u)
	return nil
}

func addEVMWallet(t *testing.T, h *harness, approve signer.ApproveFunc) {
	t.Helper()
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	h.wallets.Register(signer.NewEVMSigner(signer.NewEVMKeyWalletFromKey(key, approve), nil))
}

func newOrchestrator(h *harness, opts ...service.OrchestratorOption) *service.Orchestrator {
	return service.NewOrchestrator(h.builder, h.sessions, opts...)
}

func TestStaticDemoTokenLogin(t *testing.T) {
	h := newHarness(t, nil, nil)
	o := newOrchestrator(h)

	session, err := o.Begin(context.Background(), core.StaticMethod(), testbackend.DemoToken)
	require.NoError(t, err)
	assert.Equal(t, "authenticated_user", session.UserID)
	assert.NotEmpty(t, session.Token)

	snap := o.Snapshot()
	assert.Equal(t, core.StateSuccess, snap.Step)
	assert.Nil(t, snap.Error)
	assert.True(t, h.sessions.Authenticated())
}

func TestEVMUserRejection(t *testing.T) {
	h := newHarness(t, nil, nil)
	addEVMWallet(t, h, func(context.Context, core.ChainFamily, string) bool { return false })
	o := newOrchestrator(h)

	_, err := o.Begin(context.Background(), core.Web3Method(core.ChainEVM), "")
	assert.ErrorIs(t, err, core.ErrUserRejected)

	snap := o.Snapshot()
	assert.Equal(t, core.StateError, snap.Step)
	require.NotNil(t, snap.Error)
	assert.Equal(t, core.KindWallet, snap.Error.Kind)
	assert.Nil(t, snap.Challenge)
	assert.False(t, h.sessions.Authenticated())
	assert.Empty(t, h.be.CallsTo("/auth/verify"))
}

func TestExpiredChallengeIsRejectedByBackend(t *testing.T) {
	h := newHarness(t, nil, nil)
	h.be.ChallengeTTL = -time.Second
	addEVMWallet(t, h, nil)
	o := newOrchestrator(h)

	_, err := o.Begin(context.Background(), core.Web3Method(core.ChainEVM), "")
	require.Error(t, err)

	snap := o.Snapshot()
	assert.Equal(t, core.StateError, snap.Step)
	assert.Equal(t, core.KindAuth, snap.Error.Kind)
	assert.Len(t, h.be.SubmittedChallenges(), 1)
}

func TestWalletStepsAreObservable(t *testing.T) {
	h := newHarness(t, nil, nil)
	addEVMWallet(t, h, nil)
	o := newOrchestrator(h)

	changes := o.Changes()
	release := h.be.Hold("/auth/verify")
	defer release()

	done := make(chan error, 1)
	go func() {
		_, err := o.Begin(context.Background(), core.Web3Method(core.ChainEVM), "")
		done <- err
	}()

	select {
	case <-changes:
	case <-time.After(time.Second):
		t.Fatal("no state change observed")
	}

	require.Eventually(t, func() bool { return len(h.be.CallsTo("/auth/verify")) == 1 }, time.Second, 5*time.Millisecond)
	snap := o.Snapshot()
	assert.Equal(t, core.StateVerifying, snap.Step)
	require.NotNil(t, snap.Challenge)
	assert.Equal(t, h.be.IssuedChallenges(), []string{snap.Challenge.ID})

	release()
	require.NoError(t, <-done)
	assert.Equal(t, core.StateSuccess, o.Snapshot().Step)
	assert.Nil(t, o.Snapshot().Challenge)
}

func TestNewAttemptSupersedesPending(t *testing.T) {
	h := newHarness(t, nil, nil)
	addEVMWallet(t, h, nil)
	o := newOrchestrator(h)

	release := h.be.Hold("/auth/challenge")
	defer release()

	stale := make(chan error, 1)
	go func() {
		_, err := o.Begin(context.Background(), core.Web3Method(core.ChainEVM), "")
		stale <- err
	}()
	require.Eventually(t, func() bool { return len(h.be.CallsTo("/auth/challenge")) == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, core.StateConnecting, o.Snapshot().Step)

	session, err := o.Begin(context.Background(), core.StaticMethod(), testbackend.DemoToken)
	require.NoError(t, err)
	release()

	assert.ErrorIs(t, <-stale, core.ErrSuperseded)
	assert.Equal(t, core.StateSuccess, o.Snapshot().Step)
	assert.Nil(t, o.Snapshot().Error)

	got, ok := h.sessions.Session()
	require.True(t, ok)
	assert.Equal(t, session.Token, got.Token)
	assert.Empty(t, h.be.CallsTo("/auth/verify"))
}

func TestCancelInvalidatesPendingAttempt(t *testing.T) {
	h := newHarness(t, nil, nil)
	addEVMWallet(t, h, nil)
	o := newOrchestrator(h)

	release := h.be.Hold("/auth/challenge")
	defer release()

	stale := make(chan error, 1)
	go func() {
		_, err := o.Begin(context.Background(), core.Web3Method(core.ChainEVM), "")
		stale <- err
	}()
	require.Eventually(t, func() bool { return len(h.be.CallsTo("/auth/challenge")) == 1 }, time.Second, 5*time.Millisecond)

	o.Cancel()
	assert.ErrorIs(t, <-stale, core.ErrSuperseded)

	snap := o.Snapshot()
	assert.Equal(t, core.StateIdle, snap.Step)
	assert.Nil(t, snap.Challenge)
	assert.Nil(t, snap.Error)
	assert.False(t, h.sessions.Authenticated())
}

func TestRetryUsesFreshChallenge(t *testing.T) {
	h := newHarness(t, nil, nil)
	addEVMWallet(t, h, nil)
	o := newOrchestrator(h)
	h.be.Fail("/auth/verify", http.StatusServiceUnavailable, `{"detail":"try again"}`)

	_, err := o.Begin(context.Background(), core.Web3Method(core.ChainEVM), "")
	require.Error(t, err)
	assert.Equal(t, core.StateError, o.Snapshot().Step)

	_, err = o.Retry(context.Background())
	require.NoError(t, err)
	assert.Equal(t, core.StateSuccess, o.Snapshot().Step)

	issued := h.be.IssuedChallenges()
	require.Len(t, issued, 2)
	assert.NotEqual(t, issued[0], issued[1])
	assert.Equal(t, issued, h.be.SubmittedChallenges())
}

func TestRetryOnlyFromError(t *testing.T) {
	h := newHarness(t, nil, nil)
	o := newOrchestrator(h)

	_, err := o.Retry(context.Background())
	assert.ErrorIs(t, err, core.ErrInvalidTransition)
	assert.Equal(t, core.StateIdle, o.Snapshot().Step)
}

func TestBeginRejectedWhileAuthenticated(t *testing.T) {
	h := newHarness(t, nil, nil)
	o := newOrchestrator(h)

	_, err := o.Begin(context.Background(), core.StaticMethod(), testbackend.DemoToken)
	require.NoError(t, err)

	_, err = o.Begin(context.Background(), core.StaticMethod(), testbackend.DemoToken)
	assert.ErrorIs(t, err, core.ErrInvalidTransition)

	require.NoError(t, o.Logout(context.Background()))
	assert.Equal(t, core.StateIdle, o.Snapshot().Step)
	assert.False(t, h.sessions.Authenticated())

	_, err = o.Begin(context.Background(), core.StaticMethod(), testbackend.DemoToken)
	assert.NoError(t, err)
}

func TestDismissKeepsStep(t *testing.T) {
	h := newHarness(t, nil, nil)
	o := newOrchestrator(h)

	_, err := o.Begin(context.Background(), core.StaticMethod(), "wrong")
	require.Error(t, err)
	require.NotNil(t, o.Snapshot().Error)
	assert.Equal(t, "Invalid static token", o.Snapshot().Error.Message)

	o.Dismiss()
	assert.Nil(t, o.Snapshot().Error)
	assert.Equal(t, core.StateError, o.Snapshot().Step)
}

func TestOAuth2RedirectAndResume(t *testing.T) {
	h := newHarness(t, nil, nil)
	nav := &navigations{}
	o := newOrchestrator(h, service.WithNavigator(nav))

	_, err := o.Begin(context.Background(), core.OAuth2Method("github"), "")
	require.ErrorIs(t, err, core.ErrRedirectPending)

	snap := o.Snapshot()
	assert.Equal(t, core.StateConnecting, snap.Step)
	require.Len(t, nav.urls, 1)
	assert.Equal(t, nav.urls[0], snap.Redirect)

	authURL, err := url.Parse(snap.Redirect)
	require.NoError(t, err)
	h.be.AddOAuthCode("github", "gh-code", "octocat")

	// the callback arrives in a new process sharing the store
	restarted := newHarness(t, h.store, h.be)
	resumed := newOrchestrator(restarted)
	session, cleaned, err := resumed.Resume(context.Background(),
		"http://localhost:3000/login?code=gh-code&state="+authURL.Query().Get("state"))
	require.NoError(t, err)
	assert.Equal(t, "octocat", session.UserID)
	assert.Equal(t, "http://localhost:3000/login", cleaned)
	assert.Equal(t, core.StateSuccess, resumed.Snapshot().Step)
	assert.True(t, restarted.sessions.Authenticated())
}

func TestOAuth2ProviderErrorOnResume(t *testing.T) {
	h := newHarness(t, nil, nil)
	o := newOrchestrator(h)

	_, err := o.Begin(context.Background(), core.OAuth2Method("x"), "")
	require.ErrorIs(t, err, core.ErrRedirectPending)

	_, _, err = o.Resume(context.Background(), "http://localhost:3000/login?error=access_denied")
	require.Error(t, err)
	snap := o.Snapshot()
	assert.Equal(t, core.StateError, snap.Step)
	assert.Equal(t, "OAuth2 error: access_denied", snap.Error.Message)
}

func TestResumeWithoutCallback(t *testing.T) {
	h := newHarness(t, nil, nil)
	o := newOrchestrator(h)

	_, _, err := o.Resume(context.Background(), "http://localhost:3000/login?code=c")
	assert.ErrorIs(t, err, core.ErrNoAttempt)

	_, err = o.Begin(context.Background(), core.OAuth2Method("github"), "")
	require.ErrorIs(t, err, core.ErrRedirectPending)

	_, cleaned, err := o.Resume(context.Background(), "http://localhost:3000/login?tab=1")
	assert.ErrorIs(t, err, core.ErrNoCallback)
	assert.Equal(t, "http://localhost:3000/login?tab=1", cleaned)
	assert.Equal(t, core.StateConnecting, o.Snapshot().Step)
}

func TestOAuth2CanBeDisabled(t *testing.T) {
	h := newHarness(t, nil, nil)
	o := newOrchestrator(h, service.WithOAuth2Providers())

	for _, m := range o.Methods() {
		assert.NotEqual(t, core.KindOAuth2, m.Kind)
	}
	_, err := o.Begin(context.Background(), core.OAuth2Method("github"), "")
	assert.ErrorIs(t, err, core.ErrInvalidMethod)
	assert.Equal(t, core.StateIdle, o.Snapshot().Step)
}

func TestMethods(t *testing.T) {
	o := newOrchestrator(newHarness(t, nil, nil))

	var names []string
	for _, m := range o.Methods() {
		names = append(names, m.String())
	}
	assert.Equal(t, []string{"static", "oauth2:github", "oauth2:x", "web3:evm", "web3:svm", "web3:sui"}, names)
}
