package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/iksnae/chatstream/internal"
	"github.com/iksnae/chatstream/internal/llm"
	"github.com/iksnae/chatstream/internal/server"
)

const shutdownTimeout = 30 * time.Second

var (
	listenAddr string
	jsonLogs   bool
)

// serveCmd runs the chat relay
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the chat relay in front of an OpenAI-compatible API",
	Long: `Run the HTTP relay that chat clients talk to.

  POST /api/chat      streams the reply to a transcript as data stream frames
  POST /api/enhancer  streams an improved version of a draft prompt as text
  GET  /healthz       reports the relay is up
  GET  /metrics       Prometheus metrics

The upstream is configured with api_key, base_url and model in the config file
or the CHATSTREAM_API_KEY, CHATSTREAM_BASE_URL and CHATSTREAM_MODEL variables.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if listenAddr != "" {
			cfg.ListenAddr = listenAddr
		}
		logger := newServerLogger(jsonLogs)

		if cfg.APIKey == "" {
			logger.Warn().Msg("no API key configured; upstream requests are sent without authorization")
		}

		relay := server.New(server.Options{
			Upstream:  llm.NewClient(cfg.BaseURL, cfg.APIKey),
			Model:     cfg.Model,
			MaxTokens: cfg.MaxTokens,
			Logger:    logger,
		})

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		return runServer(ctx, relay.HTTPServer(cfg.ListenAddr), logger)
	},
}

// runServer serves until ctx is done, then shuts srv down gracefully
func runServer(ctx context.Context, srv *http.Server, logger zerolog.Logger) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info().
			Str("addr", srv.Addr).
			Str("model", cfg.Model).
			Str("upstream", cfg.BaseURL).
			Msg("starting chat relay")

		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		logger.Info().Msg("shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server forced to shutdown: %w", err)
		}
		logger.Info().Msg("server stopped")
		return nil
	})

	return g.Wait()
}

func newServerLogger(json bool) zerolog.Logger {
	level := internal.CurrentLogLevel().Zerolog()
	if json {
		return zerolog.New(os.Stdout).Level(level).With().Timestamp().Logger()
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}).
		Level(level).
		With().
		Timestamp().
		Logger()
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&listenAddr, "listen", "", "Address to listen on (default :5173)")
	serveCmd.Flags().BoolVar(&jsonLogs, "json-logs", false, "Log JSON lines instead of console output")
}
