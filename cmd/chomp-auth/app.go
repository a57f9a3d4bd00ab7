package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/layer-3/chomp-auth/adapters/backend"
	"github.com/layer-3/chomp-auth/adapters/events"
	"github.com/layer-3/chomp-auth/adapters/signer"
	"github.com/layer-3/chomp-auth/adapters/store"
	"github.com/layer-3/chomp-auth/adapters/tokenizer"
	"github.com/layer-3/chomp-auth/core"
	"github.com/layer-3/chomp-auth/internal/config"
	"github.com/layer-3/chomp-auth/internal/logging"
	"github.com/layer-3/chomp-auth/ports"
	"github.com/layer-3/chomp-auth/service"
	"github.com/layer-3/chomp-auth/service/flow"
	"github.com/rs/zerolog"
)

// app holds the wired client for one command invocation
type app struct {
	logger   zerolog.Logger
	endpoint *backend.Endpoint
	client   *backend.Client
	sessions *service.Sessions
	orch     *service.Orchestrator
	closers  []func() error
}

type appOptions struct {
	navigator ports.Navigator
	approve   signer.ApproveFunc
	console   bool
}

func newApp(ctx context.Context, cfg config.Config, logOut io.Writer, opts appOptions) (*app, error) {
	newLogger := logging.New
	if opts.console {
		newLogger = logging.NewConsole
	}
	logger, err := newLogger(cfg.LogLevel, logOut)
	if err != nil {
		return nil, err
	}

	a := &app{logger: logger}

	kv, eventPub, err := a.openStore(ctx, cfg)
	if err != nil {
		a.Close()
		return nil, err
	}

	endpoint, err := backend.NewEndpoint(backend.Backend{Name: cfg.BackendName, URL: cfg.BackendURL})
	if err != nil {
		a.Close()
		return nil, err
	}
	endpoint.WithStore(kv)
	if err := endpoint.Restore(ctx); err != nil {
		logger.Warn().Err(err).Msg("ignoring stored backend selection")
	}
	a.endpoint = endpoint

	inspector := tokenizer.NewJWTInspector()
	a.client = backend.NewClient(endpoint,
		backend.WithTokenInspector(inspector),
		backend.WithLogger(logger),
	)
	a.sessions = service.NewSessions(kv, a.client,
		service.WithTokenInspector(inspector),
		service.WithEventPublisher(eventPub),
		service.WithSessionsLogger(logger),
	)
	a.client.SetTokenSource(a.sessions)

	wallets, err := buildWallets(cfg, opts.approve)
	if err != nil {
		a.Close()
		return nil, err
	}

	orchOpts := []service.OrchestratorOption{
		service.WithOAuth2Providers(cfg.Providers()...),
		service.WithOrchestratorLogger(logger),
	}
	if opts.navigator != nil {
		orchOpts = append(orchOpts, service.WithNavigator(opts.navigator))
	}
	builder := flow.NewBuilder(a.client, wallets, kv, flow.WithLogger(logger))
	a.orch = service.NewOrchestrator(builder, a.sessions, orchOpts...)

	return a, nil
}

// openStore picks Redis when configured, otherwise a SQLite file
func (a *app) openStore(ctx context.Context, cfg config.Config) (ports.Store, ports.EventPublisher, error) {
	if cfg.RedisURL != "" {
		rs, err := store.NewRedisStoreFromURL(ctx, cfg.RedisURL)
		if err != nil {
			return nil, nil, err
		}
		a.closers = append(a.closers, rs.Close)

		pub, err := events.NewRedisStreamPublisher(rs.Client(), logging.NewWatermillAdapter(a.logger))
		if err != nil {
			return nil, nil, err
		}
		a.closers = append(a.closers, pub.Close)
		return rs, pub, nil
	}

	if err := os.MkdirAll(filepath.Dir(cfg.StorePath), 0o700); err != nil {
		return nil, nil, fmt.Errorf("failed to create store directory: %w", err)
	}
	ss, err := store.OpenSQLiteStore(cfg.StorePath)
	if err != nil {
		return nil, nil, err
	}
	a.closers = append(a.closers, ss.Close)
	return ss, events.Nop{}, nil
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.logger.Warn().Err(err).Msg("close failed")
		}
	}
	a.closers = nil
}

// buildWallets registers a key wallet for every configured private key
func buildWallets(cfg config.Config, approve signer.ApproveFunc) (*signer.Registry, error) {
	wallets := signer.NewRegistry()

	if cfg.EVMPrivateKey != "" {
		w, err := signer.NewEVMKeyWallet(cfg.EVMPrivateKey, approve)
		if err != nil {
			return nil, fmt.Errorf("invalid CHOMP_EVM_PRIVATE_KEY: %w", err)
		}
		wallets.Register(signer.NewEVMSigner(w, nil))
	}
	if cfg.SVMPrivateKey != "" {
		key, err := signer.ParseEd25519Key(cfg.SVMPrivateKey)
		if err != nil {
			return nil, fmt.Errorf("invalid CHOMP_SVM_PRIVATE_KEY: %w", err)
		}
		wallets.Register(signer.NewSVMSigner(signer.NewSVMKeyWallet(key, approve), nil))
	}
	if cfg.SuiPrivateKey != "" {
		key, err := signer.ParseEd25519Key(cfg.SuiPrivateKey)
		if err != nil {
			return nil, fmt.Errorf("invalid CHOMP_SUI_PRIVATE_KEY: %w", err)
		}
		wallets.Register(signer.NewSuiSigner(signer.NewSuiKeyWallet(key, approve), nil))
	}
	return wallets, nil
}

// promptApprove asks on in before a key wallet signs
func promptApprove(in io.Reader, out io.Writer) signer.ApproveFunc {
	reader := bufio.NewReader(in)
	return func(_ context.Context, family core.ChainFamily, message string) bool {
		fmt.Fprintf(out, "\n%s\n\nSign this message with your %s key? [y/N] ", message, family)
		answer, err := reader.ReadString('\n')
		if err != nil && answer == "" {
			return false
		}
		answer = strings.ToLower(strings.TrimSpace(answer))
		return answer == "y" || answer == "yes"
	}
}

func autoApprove(context.Context, core.ChainFamily, string) bool { return true }

// printNavigator shows the authorization URL instead of opening a browser
type printNavigator struct {
	out io.Writer
}

func (n printNavigator) Navigate(_ context.Context, url string) error {
	_, err := fmt.Fprintf(n.out, "Open this URL to continue signing in:\n\n  %s\n\n", url)
	return err
}
