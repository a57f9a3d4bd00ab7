package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	transport "github.com/layer-3/chomp-auth/transport/http"
	"github.com/spf13/cobra"
)

var serveYes bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the local auth agent",
	Long: `Serve the auth flow over HTTP on CHOMP_LISTEN_ADDR and proxy /api/* to
the backend with the session token attached.

OAuth2 providers should redirect to http://<listen addr>/auth/callback.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().BoolVarP(&serveYes, "yes", "y", false, "sign wallet messages without asking")
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	approve := promptApprove(cmd.InOrStdin(), cmd.ErrOrStderr())
	if serveYes {
		approve = autoApprove
	}
	a, err := newApp(ctx, cfg, os.Stderr, appOptions{approve: approve})
	if err != nil {
		return err
	}
	defer a.Close()

	if ok, err := a.sessions.CheckAuth(ctx); err != nil {
		a.logger.Warn().Err(err).Msg("stored session rejected")
	} else if ok {
		a.logger.Info().Msg("restored session")
	}

	gin.SetMode(gin.ReleaseMode)
	server := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           transport.SetupRouter(a.orch, a.endpoint, a.logger),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errs := make(chan error, 1)
	go func() {
		a.logger.Info().Str("addr", cfg.ListenAddr).Str("backend", a.endpoint.BaseURL()).Msg("serving")
		errs <- server.ListenAndServe()
	}()

	select {
	case err := <-errs:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}
