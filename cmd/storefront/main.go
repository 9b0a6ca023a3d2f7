package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alexjbarnes/storefront/internal/auth"
	"github.com/alexjbarnes/storefront/internal/config"
	"github.com/alexjbarnes/storefront/internal/logging"
	"github.com/alexjbarnes/storefront/internal/metrics"
	"github.com/alexjbarnes/storefront/internal/provider"
	"github.com/alexjbarnes/storefront/internal/server"
	"github.com/alexjbarnes/storefront/internal/state"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"
)

var Version = "dev"

const usage = "usage: storefront [serve|whoami|logout]"

func main() {
	cmd := "serve"
	if len(os.Args) > 1 {
		cmd = os.Args[1]
	}

	if err := run(cmd, os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(cmd string, out io.Writer) error {
	switch cmd {
	case "serve", "whoami", "logout":
	case "version":
		fmt.Fprintln(out, Version)
		return nil
	default:
		return errors.New(usage)
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := logging.NewLogger(cfg.Environment, cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	switch cmd {
	case "whoami":
		return runWhoami(ctx, cfg, logger, out, cliWait(cfg))
	case "logout":
		return runLogout(ctx, cfg, logger, out)
	}

	return runServe(ctx, cfg, logger)
}

// newClient builds the identity provider client shared by every command.
func newClient(cfg *config.Config, observer provider.Observer) *provider.Client {
	opts := []provider.ClientOption{
		provider.WithHTTPClient(&http.Client{Timeout: cfg.IDPTimeout}),
		provider.WithCookieName(cfg.IDPSessionCookie),
		provider.WithRateLimit(cfg.IDPRateLimit, cfg.IDPRateBurst),
	}
	if observer != nil {
		opts = append(opts, provider.WithObserver(observer))
	}

	return provider.NewClient(cfg.IDPURL, opts...)
}

func newFactory(cfg *config.Config, client *provider.Client, logger *slog.Logger, recorder auth.Recorder) *auth.Factory {
	return &auth.Factory{
		Fetcher:    client,
		Authority:  client,
		Secret:     []byte(cfg.TokenSecret),
		CookieName: cfg.IDPSessionCookie,
		Secure:     cfg.CookieSecure(),
		Logger:     logger,
		Recorder:   recorder,
	}
}

// runServe starts the storefront HTTP server.
func runServe(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	logger.Info("storefront starting",
		slog.String("version", Version),
		slog.String("listen", cfg.ListenAddr),
		slog.String("idp", cfg.IDPURL),
		slog.Bool("metrics", cfg.EnableMetrics),
	)

	var (
		observer provider.Observer
		recorder auth.Recorder
		metricsH http.Handler
	)

	if cfg.EnableMetrics {
		reg := prometheus.NewRegistry()
		collector := metrics.NewCollector(reg)
		observer = collector
		recorder = collector
		metricsH = metrics.Handler(reg)
	}

	client := newClient(cfg, observer)

	handler := server.NewRouter(server.Config{
		Factory:   newFactory(cfg, client, logger, recorder),
		BaseURL:   cfg.BaseURL,
		LoginPath: cfg.LoginPath,
		GuardWait: cfg.GuardWait,
		Logger:    logger,
		Recorder:  recorder,
		Metrics:   metricsH,
	})

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server error: %w", err)
		}

		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down http server")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

// mountCLI opens the local token database and mounts an auth context for
// the configured provider session.
func mountCLI(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*auth.Context, func(), error) {
	var (
		st  *state.State
		err error
	)

	if cfg.StatePath != "" {
		st, err = state.LoadAt(cfg.StatePath)
	} else {
		st, err = state.Load()
	}

	if err != nil {
		return nil, nil, fmt.Errorf("loading state: %w", err)
	}

	factory := newFactory(cfg, newClient(cfg, nil), logger, nil)
	ac := factory.Mount(ctx, st, cfg.IDPSessionToken)

	cleanup := func() {
		ac.Unmount()

		if err := st.Close(); err != nil {
			logger.Warn("closing state", slog.String("error", err.Error()))
		}
	}

	return ac, cleanup, nil
}

// cliWait bounds how long whoami waits for the provider. It outlasts the
// HTTP client timeout so a hung provider surfaces as an error.
func cliWait(cfg *config.Config) time.Duration {
	return cfg.IDPTimeout + time.Second
}

// runWhoami prints the signed-in user for IDP_SESSION_TOKEN, waiting up
// to wait for the provider.
func runWhoami(ctx context.Context, cfg *config.Config, logger *slog.Logger, out io.Writer, wait time.Duration) error {
	ac, cleanup, err := mountCLI(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer cleanup()

	st := ac.Await(ctx, wait)

	switch st.Status {
	case auth.StatusAuthenticated:
		fmt.Fprintf(out, "signed in as %s <%s> (id %s)\n", st.User.DisplayName, st.User.Email, st.User.ID)
		return nil
	case auth.StatusError:
		return fmt.Errorf("identity provider unavailable: %w", st.Err)
	case auth.StatusUnauthenticated:
		return errors.New("not signed in")
	default:
		return errors.New("timed out waiting for the identity provider")
	}
}

// runLogout removes the local token and ends the provider session.
func runLogout(ctx context.Context, cfg *config.Config, logger *slog.Logger, out io.Writer) error {
	ac, cleanup, err := mountCLI(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer cleanup()

	if err := ac.Logout(ctx); err != nil {
		return err
	}

	fmt.Fprintln(out, "signed out")

	return nil
}
