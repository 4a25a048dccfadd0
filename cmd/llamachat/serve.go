package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	llamawebui "github.com/MegaGrindStone/llama-web-ui"
	"github.com/MegaGrindStone/llama-web-ui/internal/handlers"
	"github.com/MegaGrindStone/llama-web-ui/internal/services"
)

const serveShortDesc string = "Serve the chat page"

type serveCommander struct {
	root *rootCommander
	port string
}

func newServeCmd(root *rootCommander) *cobra.Command {
	cmder := &serveCommander{root: root}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: serveShortDesc,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmder.run(cmd.Context())
		},
	}

	cmd.Flags().StringVarP(&cmder.port, "port", "p", "", "Port to listen on (overrides the config file)")

	return cmd
}

func (c *serveCommander) run(ctx context.Context) error {
	cfg, logger, err := c.root.load()
	if err != nil {
		return err
	}
	defer logger.Sync()

	if c.port != "" {
		cfg.Port = c.port
	}

	baseURL, err := cfg.baseURL()
	if err != nil {
		return err
	}

	dir, err := configDir()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("error creating config directory: %w", err)
	}
	boltDB, err := services.NewBoltDB(filepath.Join(dir, "store.db"))
	if err != nil {
		return err
	}
	defer boltDB.Close()

	backend := services.NewBackend(services.BackendConfig{
		BaseURL: baseURL,
		APIKey:  cfg.APIKey,
	}, logger)

	m, err := handlers.NewMain(handlers.Config{
		Models:       cfg.modelOptions(discoverModels(ctx, cfg.OllamaHost, logger)),
		DefaultModel: cfg.DefaultModel,
		ErrorMessage: cfg.ErrorMessage,
	}, handlers.HTTPBackend(backend), boltDB, logger)
	if err != nil {
		return err
	}

	// Serve static files
	staticFS, err := fs.Sub(llamawebui.StaticFS, "static")
	if err != nil {
		return err
	}
	fileServer := http.FileServer(http.FS(staticFS))

	mux := http.NewServeMux()
	mux.Handle("/static/", http.StripPrefix("/static/", fileServer))
	mux.HandleFunc("/", m.HandleHome)
	mux.HandleFunc("/chats", m.HandleChats)
	mux.HandleFunc("/chats/clear", m.HandleClear)
	mux.HandleFunc("/model", m.HandleModel)
	mux.HandleFunc("/state", m.HandleState)
	mux.HandleFunc("/sse", m.HandleSSE)
	mux.HandleFunc("/health", handlers.HandleHealth)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	srv.RegisterOnShutdown(func() {
		if err := m.Shutdown(context.Background()); err != nil {
			logger.Error("Failed to shutdown sse server", zap.Error(err))
		}
	})

	logger.Info("Chat server starting",
		zap.String("addr", srv.Addr),
		zap.String("api", backend.Endpoint()),
	)

	return serveUntilSignal(srv, logger)
}

// discoverModels lists the models installed on an Ollama server. Discovery is optional: an empty host
// or an unreachable server yields no models.
func discoverModels(ctx context.Context, host string, logger *zap.Logger) []string {
	if host == "" {
		return nil
	}
	o, err := services.NewOllama(host, logger)
	if err != nil {
		logger.Warn("Model discovery disabled", zap.Error(err))
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	names, err := o.Models(ctx)
	if err != nil {
		logger.Warn("Model discovery failed", zap.String("host", host), zap.Error(err))
		return nil
	}
	logger.Info("Discovered models", zap.Strings("models", names))
	return names
}

// serveUntilSignal runs srv until it fails or the process is interrupted, then shuts it down
// gracefully.
func serveUntilSignal(srv *http.Server, logger *zap.Logger) error {
	// Channel to listen for errors coming from the listener
	serverErrors := make(chan error, 1)

	go func() {
		serverErrors <- srv.ListenAndServe()
	}()

	// Channel to listen for interrupt/terminate signals
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(shutdown)

	select {
	case err := <-serverErrors:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server error: %w", err)

	case sig := <-shutdown:
		logger.Info("Start shutdown", zap.String("signal", sig.String()))

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			logger.Error("Graceful shutdown failed", zap.Error(err))
			if err := srv.Close(); err != nil {
				return fmt.Errorf("forcing server close: %w", err)
			}
		}
	}
	return nil
}
