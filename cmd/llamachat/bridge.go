package main

import (
	"context"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/MegaGrindStone/llama-web-ui/internal/bridge"
)

const bridgeLongDesc string = `Serve the streaming chat API the web page talks to.

Requests to POST {prefix}/chat/stream are relayed to an Ollama server, an
OpenAI-compatible API or the Anthropic API and answered with "data: " records ending in
"data: [DONE]". GET {prefix}/models lists the available models.

Examples:
  llamachat bridge
  llamachat bridge --listen :9000 --prefix /api`

const bridgeShortDesc string = "Serve the streaming chat API"

type bridgeCommander struct {
	root   *rootCommander
	listen string
	prefix string
}

func newBridgeCmd(root *rootCommander) *cobra.Command {
	cmder := &bridgeCommander{root: root}

	cmd := &cobra.Command{
		Use:   "bridge",
		Short: bridgeShortDesc,
		Long:  bridgeLongDesc,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmder.run(cmd.Context())
		},
	}

	cmd.Flags().StringVarP(&cmder.listen, "listen", "l", "", "Address to listen on (overrides the config file)")
	cmd.Flags().StringVar(&cmder.prefix, "prefix", "", "Path prefix of the API (overrides the config file)")

	return cmd
}

func (c *bridgeCommander) run(_ context.Context) error {
	cfg, logger, err := c.root.load()
	if err != nil {
		return err
	}
	defer logger.Sync()

	if c.listen != "" {
		cfg.Bridge.Listen = c.listen
	}
	if c.prefix != "" {
		cfg.Bridge.Prefix = c.prefix
	}

	provider, err := cfg.Bridge.provider(logger)
	if err != nil {
		return err
	}

	h := bridge.NewHandler(provider, bridge.Config{
		APIKey:       cfg.APIKey,
		DefaultModel: cfg.DefaultModel,
	}, logger)

	srv := &http.Server{
		Addr:              cfg.Bridge.Listen,
		Handler:           h.Routes(cfg.Bridge.Prefix),
		ReadHeaderTimeout: 5 * time.Second,
	}

	logger.Info("Bridge starting",
		zap.String("addr", srv.Addr),
		zap.String("prefix", cfg.Bridge.Prefix),
		zap.String("provider", cfg.Bridge.Provider),
	)

	return serveUntilSignal(srv, logger)
}
