package chatcmder

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/muesli/termenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/term"

	"github.com/stevejgoodman/hotmesscoach/client"
	"github.com/stevejgoodman/hotmesscoach/pkg/blob"
	"github.com/stevejgoodman/hotmesscoach/pkg/config"
	"github.com/stevejgoodman/hotmesscoach/pkg/conversation"
	"github.com/stevejgoodman/hotmesscoach/pkg/logger"
)

const chatLongDesc string = `Chat with the coach through a running relay server.

Type a message and press enter. Charts sent back by the backend are
kept in memory for the session and can be written out with /save.
Attach a file with /attach; it is uploaded right away and goes out
with your next message.

When stdin is not a terminal, or with --plain, a simple line mode is
used instead of the full-screen interface.

Examples:
  coach chat
  coach chat --relay http://localhost:3000 --log-file /tmp/coach.log
  echo "how do I plan my week?" | coach chat --plain`

const chatShortDesc string = "Chat with the coach from the terminal"

type chatCommander struct {
	configPath string
	relayURL   string
	model      string
	logFile    string
	timeout    time.Duration
	plain      bool
	noGreeting bool
	debug      bool
}

func NewChatCmd() *cobra.Command {
	cmder := &chatCommander{}

	cmd := &cobra.Command{
		Use:   "chat",
		Short: chatShortDesc,
		Long:  chatLongDesc,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmder.run(cmd.Context(), cmd)
		},
	}

	cmd.Flags().StringVarP(&cmder.configPath, "config", "c", "", "Path to TOML config file")
	cmd.Flags().StringVarP(&cmder.relayURL, "relay", "r", "", "Relay server URL (default http://localhost:3000)")
	cmd.Flags().StringVarP(&cmder.model, "model", "m", "", "Model to request")
	cmd.Flags().StringVar(&cmder.logFile, "log-file", "", "Write logs to this file (default: discard)")
	cmd.Flags().DurationVar(&cmder.timeout, "timeout", 0, "Timeout for a single relay call")
	cmd.Flags().BoolVar(&cmder.plain, "plain", false, "Use line mode instead of the full-screen interface")
	cmd.Flags().BoolVar(&cmder.noGreeting, "no-greeting", false, "Start without the coach's greeting")
	cmd.Flags().BoolVar(&cmder.debug, "debug", false, "Enable debug logging")

	return cmd
}

func (c *chatCommander) run(ctx context.Context, cmd *cobra.Command) error {
	cfg, err := config.Load(c.configPath)
	if err != nil {
		return err
	}
	c.applyFlags(cmd, cfg)

	log, closeLog, err := logger.NewFileLogger(cfg.Chat.LogFile, cfg.Debug)
	if err != nil {
		return err
	}
	defer closeLog()

	log.Info("chat session starting",
		zap.String("relay", cfg.Chat.RelayURL),
		zap.String("model", cfg.Chat.Model),
	)

	opts := []conversation.Option{
		conversation.WithModel(cfg.Chat.Model),
		conversation.WithLogger(log),
	}
	if cfg.Chat.Greeting {
		opts = append(opts, conversation.WithGreeting(""))
	}

	registry := blob.NewRegistry()
	manager := conversation.NewManager(client.New(cfg.Chat.RelayURL, cfg.Chat.Timeout.Duration, log), registry, opts...)
	defer func() {
		if err := manager.Close(); err != nil {
			log.Error("failed to release session resources", zap.Error(err))
		}
		created, released := registry.Stats()
		log.Info("chat session ended", zap.Int("charts", created), zap.Int("released", released))
	}()

	s := &session{manager: manager, registry: registry}
	in, out := cmd.InOrStdin(), cmd.OutOrStdout()

	if c.plain || !isTerminal(in) {
		return runPlain(ctx, s, in, out)
	}

	style := "dark"
	if !termenv.HasDarkBackground() {
		style = "light"
	}

	p := tea.NewProgram(newModel(ctx, s, style, log),
		tea.WithAltScreen(),
		tea.WithContext(ctx),
		tea.WithInput(in),
		tea.WithOutput(out),
	)
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("chat interface failed: %w", err)
	}
	return nil
}

// applyFlags overrides file and environment settings with flags the user set.
func (c *chatCommander) applyFlags(cmd *cobra.Command, cfg *config.Config) {
	flags := cmd.Flags()
	if flags.Changed("relay") {
		cfg.Chat.RelayURL = c.relayURL
	}
	if flags.Changed("model") {
		cfg.Chat.Model = c.model
	}
	if flags.Changed("log-file") {
		cfg.Chat.LogFile = c.logFile
	}
	if flags.Changed("timeout") {
		cfg.Chat.Timeout.Duration = c.timeout
	}
	if flags.Changed("no-greeting") {
		cfg.Chat.Greeting = !c.noGreeting
	}
	if flags.Changed("debug") {
		cfg.Debug = c.debug
	}
}

func isTerminal(r io.Reader) bool {
	f, ok := r.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}
