package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/MegaGrindStone/llama-web-ui/internal/logger"
)

const rootLongDesc string = `Llama Chat is a local chat interface for language models.

"serve" runs the web page, "bridge" runs the streaming chat API the page
talks to, and "ask" sends a single message from the terminal.

Configuration is read from config.yaml in the user config directory
(for example ~/.config/llamachat/config.yaml) and may be overridden with
LLAMACHAT_API_URL, LLAMACHAT_API_KEY, OLLAMA_HOST, OPENAI_API_KEY and
ANTHROPIC_API_KEY.`

const rootShortDesc string = "Local chat interface for language models"

type rootCommander struct {
	configPath string
	debug      bool
}

func newRootCmd() *cobra.Command {
	cmder := &rootCommander{}

	cmd := &cobra.Command{
		Use:           "llamachat",
		Short:         rootShortDesc,
		Long:          rootLongDesc,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVarP(&cmder.configPath, "config", "c", "", "Path to the config file")
	cmd.PersistentFlags().BoolVar(&cmder.debug, "debug", false, "Enable debug logging")

	cmd.AddCommand(newServeCmd(cmder))
	cmd.AddCommand(newBridgeCmd(cmder))
	cmd.AddCommand(newAskCmd(cmder))

	return cmd
}

// load reads the configuration and builds the logger shared by the subcommands.
func (r *rootCommander) load() (config, *zap.Logger, error) {
	cfg, err := loadConfig(r.configPath)
	if err != nil {
		return cfg, nil, err
	}
	cfg.applyEnv(os.Getenv)
	if err := cfg.validate(); err != nil {
		return cfg, nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, logger.NewLogger(r.debug), nil
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
