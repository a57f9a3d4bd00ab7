package service

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/layer-3/chomp-auth/core"
	"github.com/layer-3/chomp-auth/ports"
	"github.com/rs/zerolog"
)

// DefaultOAuth2Providers are offered when OAuth2 is enabled
var DefaultOAuth2Providers = []string{"github", "x"}

// Snapshot is a copy of the orchestrator state for rendering
type Snapshot struct {
	Step      core.FlowState
	Method    core.AuthMethod
	Error     *core.AuthError
	Challenge *core.Challenge
	Redirect  string // authorization URL of a pending OAuth2 attempt
	Attempt   uint64
}

// Orchestrator drives one authentication attempt at a time through the
// flow state machine. A newer attempt always supersedes an older one; the
// older one's result is discarded.
type Orchestrator struct {
	flows     ports.FlowBuilder
	sessions  *Sessions
	navigator ports.Navigator
	logger    zerolog.Logger
	providers []string

	mu        sync.Mutex
	step      core.FlowState
	method    core.AuthMethod
	input     string
	err       *core.AuthError
	challenge *core.Challenge
	redirect  string
	gen       uint64
	cancel    context.CancelFunc
	changed   chan struct{}
}

// OrchestratorOption configures the Orchestrator
type OrchestratorOption func(*Orchestrator)

// WithNavigator sets where OAuth2 authorization URLs are opened
func WithNavigator(nav ports.Navigator) OrchestratorOption {
	return func(o *Orchestrator) {
		o.navigator = nav
	}
}

// WithOAuth2Providers sets the offered OAuth2 providers; none disables OAuth2
func WithOAuth2Providers(providers ...string) OrchestratorOption {
	return func(o *Orchestrator) {
		o.providers = providers
	}
}

// WithOrchestratorLogger sets a custom logger
func WithOrchestratorLogger(logger zerolog.Logger) OrchestratorOption {
	return func(o *Orchestrator) {
		o.logger = logger
	}
}

// NewOrchestrator creates an orchestrator in the idle state
func NewOrchestrator(flows ports.FlowBuilder, sessions *Sessions, opts ...OrchestratorOption) *Orchestrator {
	o := &Orchestrator{
		flows:     flows,
		sessions:  sessions,
		logger:    zerolog.Nop(),
		providers: DefaultOAuth2Providers,
		step:      core.StateIdle,
		changed:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Methods lists the methods that can be selected
func (o *Orchestrator) Methods() []core.AuthMethod {
	methods := []core.AuthMethod{core.StaticMethod()}
	for _, p := range o.providers {
		methods = append(methods, core.OAuth2Method(p))
	}
	return append(methods,
		core.Web3Method(core.ChainEVM),
		core.Web3Method(core.ChainSVM),
		core.Web3Method(core.ChainSui),
	)
}

func (o *Orchestrator) offered(method core.AuthMethod) bool {
	for _, m := range o.Methods() {
		if m == method {
			return true
		}
	}
	return false
}

// Sessions returns the session store the orchestrator logs into
func (o *Orchestrator) Sessions() *Sessions {
	return o.sessions
}

// Snapshot returns the current state
func (o *Orchestrator) Snapshot() Snapshot {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.snapshot()
}

func (o *Orchestrator) snapshot() Snapshot {
	s := Snapshot{
		Step:     o.step,
		Method:   o.method,
		Error:    o.err,
		Redirect: o.redirect,
		Attempt:  o.gen,
	}
	if o.challenge != nil {
		c := *o.challenge
		s.Challenge = &c
	}
	return s
}

// Changes returns a channel that is closed on the next state change
func (o *Orchestrator) Changes() <-chan struct{} {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.changed
}

// Begin starts an attempt with method. input is the static token for the
// static method and an optional wallet identifier for wallet methods.
// It returns once the attempt resolves, or with core.ErrRedirectPending once
// an OAuth2 attempt has handed off to the provider.
func (o *Orchestrator) Begin(ctx context.Context, method core.AuthMethod, input string) (core.Session, error) {
	if !o.offered(method) {
		return core.Session{}, fmt.Errorf("%w: %s is not available", core.ErrInvalidMethod, method)
	}

	nav := &attemptNavigator{o: o}
	f, err := o.flows.Build(method, nav)
	if err != nil {
		return core.Session{}, err
	}

	actx, gen, err := o.start(ctx, method, input)
	if err != nil {
		return core.Session{}, err
	}
	nav.gen = gen

	session, err := f.Attempt(actx, input, &attemptProgress{o: o, gen: gen})
	return o.finish(ctx, gen, session, err)
}

// Retry runs a fresh attempt with the method and input of the failed one
func (o *Orchestrator) Retry(ctx context.Context) (core.Session, error) {
	o.mu.Lock()
	step, method, input := o.step, o.method, o.input
	o.mu.Unlock()

	if step != core.StateError {
		return core.Session{}, fmt.Errorf("%w: retry from %s", core.ErrInvalidTransition, step)
	}
	if method.IsZero() {
		return core.Session{}, core.ErrNoAttempt
	}
	return o.Begin(ctx, method, input)
}

// Resume finishes a redirect attempt from the URL the provider returned to
// and reports that URL with the callback parameters removed. A URL that is
// not a callback returns core.ErrNoCallback and changes nothing.
func (o *Orchestrator) Resume(ctx context.Context, callbackURL string) (core.Session, string, error) {
	method, ok := o.flows.PendingRedirect(ctx)
	if !ok {
		o.mu.Lock()
		method = o.method
		o.mu.Unlock()
		if method.Kind != core.KindOAuth2 {
			return core.Session{}, callbackURL, core.ErrNoAttempt
		}
	}

	nav := &attemptNavigator{o: o}
	f, err := o.flows.Build(method, nav)
	if err != nil {
		return core.Session{}, callbackURL, err
	}
	rf, ok := f.(ports.ResumableFlow)
	if !ok {
		return core.Session{}, callbackURL, fmt.Errorf("%w: %s cannot be resumed", core.ErrInvalidMethod, method)
	}
	if !rf.Returned(callbackURL) {
		return core.Session{}, callbackURL, core.ErrNoCallback
	}

	actx, gen, err := o.start(ctx, method, "")
	if err != nil {
		return core.Session{}, callbackURL, err
	}
	nav.gen = gen
	o.transition(gen, core.StateVerifying, nil)

	session, cleaned, err := rf.Callback(actx, callbackURL)
	session, err = o.finish(ctx, gen, session, err)
	return session, cleaned, err
}

// Cancel abandons the pending attempt and its challenge
func (o *Orchestrator) Cancel() {
	o.mu.Lock()
	defer o.mu.Unlock()

	if !o.step.Pending() && o.step != core.StateError {
		return
	}
	o.gen++
	o.stopAttempt()
	o.challenge = nil
	o.redirect = ""
	o.err = nil
	o.setStep(core.StateIdle)
}

// Dismiss clears the retained error; the step is left as is
func (o *Orchestrator) Dismiss() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.err == nil {
		return
	}
	o.err = nil
	o.notify()
}

// Logout ends the session and returns to idle
func (o *Orchestrator) Logout(ctx context.Context) error {
	err := o.sessions.Logout(ctx)

	o.mu.Lock()
	defer o.mu.Unlock()
	if o.step == core.StateSuccess {
		o.setStep(core.StateIdle)
	}
	return err
}

// start moves to connecting for a new attempt, superseding whatever was pending
func (o *Orchestrator) start(ctx context.Context, method core.AuthMethod, input string) (context.Context, uint64, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.step == core.StateSuccess {
		if o.sessions.Authenticated() {
			return nil, 0, fmt.Errorf("%w: already authenticated", core.ErrInvalidTransition)
		}
		o.setStep(core.StateIdle)
	}
	if o.step.Pending() {
		o.stopAttempt()
		o.setStep(core.StateIdle)
	}

	o.gen++
	actx, cancel := context.WithCancel(ctx)
	o.cancel = cancel
	o.method = method
	o.input = input
	o.err = nil
	o.challenge = nil
	o.redirect = ""
	o.setStep(core.StateConnecting)
	return actx, o.gen, nil
}

// finish applies the outcome of attempt gen unless it was superseded
func (o *Orchestrator) finish(ctx context.Context, gen uint64, session core.Session, err error) (core.Session, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if gen != o.gen {
		o.logger.Debug().Uint64("attempt", gen).Msg("discarding superseded attempt")
		return core.Session{}, core.ErrSuperseded
	}
	o.stopAttempt()

	if errors.Is(err, core.ErrRedirectPending) {
		return core.Session{}, err
	}
	if err == nil {
		// Sessions never calls back into the orchestrator, so holding mu is safe
		err = o.sessions.Login(ctx, session)
	}
	if err != nil {
		o.fail(core.AsAuthError(err))
		return core.Session{}, o.err
	}

	o.challenge = nil
	o.setStep(core.StateSuccess)
	return session, nil
}

func (o *Orchestrator) fail(err *core.AuthError) {
	o.err = err
	o.challenge = nil
	o.logger.Warn().Str("kind", string(err.Kind)).Str("method", o.method.String()).Msg(err.Message)
	o.setStep(core.StateError)
}

// transition moves attempt gen to step if it is still current
func (o *Orchestrator) transition(gen uint64, step core.FlowState, apply func()) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if gen != o.gen {
		return
	}
	if apply != nil {
		apply()
	}
	o.setStep(step)
}

func (o *Orchestrator) setStep(to core.FlowState) {
	from := o.step
	if from != to && !core.CanTransition(from, to) {
		o.logger.Error().Str("from", string(from)).Str("to", string(to)).Msg("invalid flow transition")
		return
	}
	o.step = to
	o.logger.Debug().
		Str("from", string(from)).
		Str("to", string(to)).
		Str("method", o.method.String()).
		Uint64("attempt", o.gen).
		Msg("flow transition")
	o.notify()
}

func (o *Orchestrator) notify() {
	close(o.changed)
	o.changed = make(chan struct{})
}

func (o *Orchestrator) stopAttempt() {
	if o.cancel != nil {
		o.cancel()
		o.cancel = nil
	}
}

type attemptProgress struct {
	o   *Orchestrator
	gen uint64
}

func (p *attemptProgress) ChallengeIssued(challenge core.Challenge) {
	p.o.transition(p.gen, core.StateSigning, func() {
		p.o.challenge = &challenge
	})
}

func (p *attemptProgress) Signed() {
	p.o.transition(p.gen, core.StateVerifying, nil)
}

// attemptNavigator records the redirect for rendering, then hands it on
type attemptNavigator struct {
	o   *Orchestrator
	gen uint64
}

func (n *attemptNavigator) Navigate(ctx context.Context, url string) error {
	n.o.mu.Lock()
	if n.gen != n.o.gen {
		n.o.mu.Unlock()
		return core.ErrSuperseded
	}
	n.o.redirect = url
	n.o.notify()
	nav := n.o.navigator
	n.o.mu.Unlock()

	if nav == nil {
		return nil
	}
	return nav.Navigate(ctx, url)
}
