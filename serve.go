package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mdp/qrterminal/v3"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/agungkristd/session-switcher/api"
	"github.com/agungkristd/session-switcher/config"
	"github.com/agungkristd/session-switcher/logger"
	"github.com/agungkristd/session-switcher/metrics"
	"github.com/agungkristd/session-switcher/middleware"
	"github.com/agungkristd/session-switcher/session"
	"github.com/agungkristd/session-switcher/settings"
	"github.com/agungkristd/session-switcher/ws"
)

func newServeCmd() *cobra.Command {
	var port int
	var noQR bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP and WebSocket server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("port") {
				cfg.Port = port
			}
			if noQR {
				cfg.ShowQR = false
			}
			if err := cfg.RequireToken(); err != nil {
				return err
			}
			return runServe(cmd.Context(), cfg)
		},
	}

	cmd.Flags().IntVarP(&port, "port", "p", 0, "listen port (env SWITCHER_PORT)")
	cmd.Flags().BoolVar(&noQR, "no-qr", false, "do not print the connect QR code")
	return cmd
}

type server struct {
	handler http.Handler
	rpc     *ws.RPCHandler
}

func newServer(cfg *config.Config, registry *session.Registry, settingsStore *settings.Store, m *metrics.Metrics) *server {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	// WebSocket endpoint (handles its own auth via the first request)
	rpcHandler := ws.NewRPCHandler(cfg.AuthToken, version, cfg.DevMode, registry, settingsStore)
	mux.Handle("GET /ws", rpcHandler)

	api.NewSessionHandler(registry.Store()).Register(mux)
	mux.Handle("GET /metrics", m.Handler())

	return &server{
		handler: middleware.Recover(m.Middleware(middleware.Auth(cfg.AuthToken)(mux))),
		rpc:     rpcHandler,
	}
}

func runServe(ctx context.Context, cfg *config.Config) error {
	logger.Init(logger.Config{
		DataDir: cfg.DataDir,
		DevMode: cfg.DevMode,
		Level:   cfg.Log.Level,
		Format:  cfg.Log.Format,
		File:    cfg.Log.File,
	})

	store, closeStore, err := openStore(cfg, true)
	if err != nil {
		return err
	}
	defer closeStore()

	driver, closeDriver := openDriver(cfg)
	defer closeDriver()

	settingsStore, err := settings.NewStore(cfg.DataDir)
	if err != nil {
		return fmt.Errorf("open settings: %w", err)
	}

	m := metrics.New()
	registry := session.NewRegistry(store, driver, session.WithObserver(m))

	srv := newServer(cfg, registry, settingsStore, m)
	defer srv.rpc.Stop()

	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           srv.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		errCh <- httpServer.ListenAndServe()
	}()

	slog.Info("server starting", "port", cfg.Port, "dataDir", cfg.DataDir, "store", cfg.Store, "driver", cfg.Browser.Driver, "version", version)
	printConnectInfo(cfg)

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	slog.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return httpServer.Shutdown(shutdownCtx)
}

func printConnectInfo(cfg *config.Config) {
	url := fmt.Sprintf("ws://localhost:%d/ws", cfg.Port)
	fmt.Printf("Listening on %s\n", url)
	if !cfg.ShowQR || !term.IsTerminal(int(os.Stdout.Fd())) {
		return
	}
	qrterminal.GenerateHalfBlock(url, qrterminal.L, os.Stdout)
}
