package cli

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"featurekit/internal/api"
	"featurekit/internal/config"
	"featurekit/internal/engine"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var errNoDataset = errors.New("no dataset configured")

// logFromConfig marks commands whose default log level comes from the
// config (info) instead of staying disabled.
const logFromConfig = "log-from-config"

func newServeCommand(g *globals) *cobra.Command {
	var addr, format string
	cmd := &cobra.Command{
		Use:   "serve [dataset]",
		Short: "Serve a dataset's profile and associations over HTTP",
		Long: `Serve starts the HTTP API immediately and loads the dataset in the
background; /api answers 503 until the load completes.

Routes:
  GET  /api/columns
  GET  /api/profile?examples=N
  POST /api/associations
  GET  /healthz
  GET  /metrics`,
		Args:        cobra.MaximumNArgs(1),
		Annotations: map[string]string{logFromConfig: "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := *g.settings
			if addr != "" {
				cfg.Addr = addr
			}
			if len(args) == 1 {
				cfg.Dataset.Path = args[0]
			}
			if format != "" {
				if _, err := engine.ParseFormat(format); err != nil {
					return err
				}
				cfg.Dataset.Format = format
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return serve(ctx, &cfg)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides config)")
	cmd.Flags().StringVar(&format, "format", "", "dataset format (csv, arrow)")
	return cmd
}

// NewServerCommand is the standalone server binary: serve with the global
// flags attached.
func NewServerCommand() *cobra.Command {
	g := &globals{}
	cmd := newServeCommand(g)
	cmd.Use = "server [dataset]"
	cmd.SilenceUsage = true
	cmd.PersistentFlags().StringVar(&g.cfgFile, "config", "", "config file (YAML)")
	cmd.PersistentFlags().StringVar(&g.logLevel, "log-level", "info", "log level (debug, info, warn, error, disabled)")
	cmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		return g.init(cmd)
	}
	return cmd
}

func serve(ctx context.Context, cfg *config.Config) error {
	// 1. Initialize Echo (Starts Instantly)
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.CORS())
	e.Use(middleware.Recover())
	e.Use(middleware.Logger())

	// 2. The API is live immediately but returns 503 until the dataset is in.
	reg := prometheus.NewRegistry()
	h := api.NewHandler(cfg.Profile.Examples, reg)
	h.RegisterRoutes(e)

	// 3. Load the dataset in the background
	go loadDataset(h, cfg.Dataset)

	// 4. Start Server
	errc := make(chan error, 1)
	go func() {
		log.Info().Str("addr", cfg.Addr).Msg("server listening (dataset loading in background)")
		errc <- e.Start(cfg.Addr)
	}()

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		log.Info().Msg("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return e.Shutdown(shutdownCtx)
	}
}

func loadDataset(h *api.Handler, ds config.DatasetConfig) {
	if ds.Path == "" {
		h.SetError(errNoDataset)
		log.Warn().Msg("no dataset.path configured; serving health and metrics only")
		return
	}
	log.Info().Str("path", ds.Path).Msg("loading dataset")
	t0 := time.Now()

	format, _ := engine.ParseFormat(ds.Format)
	t, err := engine.Load(ds.Path, format, ds.CSVOptions())
	if err != nil {
		h.SetError(err)
		log.Error().Err(err).Str("path", ds.Path).Msg("dataset load failed")
		return
	}
	took := time.Since(t0)
	h.SetData(t, took)
	log.Info().Int("rows", t.NumRows()).Int("columns", t.NumCols()).Dur("took", took).Msg("dataset ready")
}
