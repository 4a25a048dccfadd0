package main

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/MegaGrindStone/llama-web-ui/internal/handlers"
	"github.com/MegaGrindStone/llama-web-ui/internal/models"
	"github.com/MegaGrindStone/llama-web-ui/internal/services"
)

const askLongDesc string = `Send one message to the chat API and print the reply as it streams.

The request is the same one the web page sends, without history.

Examples:
  llamachat ask "Explícame qué es la inteligencia artificial"
  llamachat ask --model mistral --render "Dame 5 consejos para programar mejor"`

const askShortDesc string = "Send a single message from the terminal"

type askCommander struct {
	root   *rootCommander
	model  string
	render bool
}

func newAskCmd(root *rootCommander) *cobra.Command {
	cmder := &askCommander{root: root}

	cmd := &cobra.Command{
		Use:   "ask <message>",
		Short: askShortDesc,
		Long:  askLongDesc,
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmder.run(cmd.Context(), cmd.OutOrStdout(), strings.Join(args, " "))
		},
	}

	cmd.Flags().StringVarP(&cmder.model, "model", "m", "", "Model to use (defaults to defaultModel)")
	cmd.Flags().BoolVarP(&cmder.render, "render", "r", false, "Render the reply as markdown once it is complete")

	return cmd
}

func (c *askCommander) run(ctx context.Context, out io.Writer, text string) error {
	cfg, logger, err := c.root.load()
	if err != nil {
		return err
	}
	defer logger.Sync()

	baseURL, err := cfg.baseURL()
	if err != nil {
		return err
	}
	model := c.model
	if model == "" {
		model = cfg.DefaultModel
	}

	backend := services.NewBackend(services.BackendConfig{BaseURL: baseURL, APIKey: cfg.APIKey}, logger)

	errorMessage := cfg.ErrorMessage
	if errorMessage == "" {
		errorMessage = handlers.DefaultErrorMessage
	}

	reply, err := ask(ctx, backend, models.ChatRequest{Message: text, Model: model}, errorMessage, c.streamTo(out))
	if err != nil {
		logger.Error("Chat request failed", zap.Error(err))
	}

	if c.render {
		r, rerr := glamour.NewTermRenderer(glamour.WithAutoStyle(), glamour.WithWordWrap(100))
		if rerr != nil {
			return fmt.Errorf("error creating renderer: %w", rerr)
		}
		rendered, rerr := r.Render(reply)
		if rerr != nil {
			return fmt.Errorf("error rendering reply: %w", rerr)
		}
		fmt.Fprint(out, rendered)
	} else {
		fmt.Fprintln(out)
	}

	return err
}

// streamTo prints fragments as they arrive unless the reply is rendered at the end.
func (c *askCommander) streamTo(out io.Writer) func(string) {
	if c.render {
		return func(string) {}
	}
	return func(fragment string) { fmt.Fprint(out, fragment) }
}

// ask submits req and accumulates the reply the way the web chat does: fragments are appended to an
// assistant placeholder, and a failure replaces the placeholder with errorMessage only while it is
// still empty. The reply is returned together with the failure, if any.
func ask(
	ctx context.Context,
	backend services.Backend,
	req models.ChatRequest,
	errorMessage string,
	onFragment func(string),
) (string, error) {
	conv := models.NewConversation(nil)
	conv.AppendUser(req.Message)
	placeholder := conv.AppendPlaceholder()

	var failure error
	for fragment, err := range backend.Chat(ctx, req) {
		if err != nil {
			failure = err
			break
		}
		conv.AppendFragment(placeholder.ID, fragment)
		onFragment(fragment)
	}

	if failure != nil {
		if msg, ok := conv.FailPlaceholder(placeholder.ID, errorMessage); ok {
			onFragment(msg.Content)
		}
	}

	last, _ := conv.Last()
	return last.Content, failure
}
