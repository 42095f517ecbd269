package servecmder

import (
	"context"
	"fmt"
	"net"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/stevejgoodman/hotmesscoach/pkg/config"
	"github.com/stevejgoodman/hotmesscoach/pkg/logger"
	"github.com/stevejgoodman/hotmesscoach/server"
	"github.com/stevejgoodman/hotmesscoach/upstream"
)

const serveLongDesc string = `Run the relay server in front of the inference backend.

The relay accepts chat messages on POST /api/chat and file uploads
on POST /api/uploadfile/, forwards them to the backend and returns
either a {"response": ...} envelope or the chart image as-is.

The backend address comes from --backend, then API_BASE_URL, then the
config file, and defaults to http://localhost:8000.

Examples:
  coach serve
  coach serve --listen :8080 --backend http://10.0.0.5:8000
  API_BASE_URL=http://backend:8000 coach serve --debug`

const serveShortDesc string = "Run the chat relay server"

type serveCommander struct {
	configPath string
	listen     string
	backend    string
	model      string
	timeout    time.Duration
	debug      bool
}

func NewServeCmd() *cobra.Command {
	cmder := &serveCommander{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: serveShortDesc,
		Long:  serveLongDesc,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmder.run(cmd.Context(), cmd)
		},
	}

	cmd.Flags().StringVarP(&cmder.configPath, "config", "c", "", "Path to TOML config file")
	cmd.Flags().StringVarP(&cmder.listen, "listen", "l", "", "Address to listen on (default :3000)")
	cmd.Flags().StringVarP(&cmder.backend, "backend", "b", "", "Inference backend base URL")
	cmd.Flags().StringVarP(&cmder.model, "model", "m", "", "Model used when a request names none")
	cmd.Flags().DurationVar(&cmder.timeout, "timeout", 0, "Timeout for a single backend call")
	cmd.Flags().BoolVar(&cmder.debug, "debug", false, "Enable debug logging")

	return cmd
}

func (c *serveCommander) run(ctx context.Context, cmd *cobra.Command) error {
	cfg, err := config.Load(c.configPath)
	if err != nil {
		return err
	}
	c.applyFlags(cmd, cfg)

	log := logger.NewLogger(cfg.Debug)
	defer log.Sync()

	log.Info("hotmesscoach relay starting",
		zap.String("listen", cfg.Server.ListenAddr),
		zap.String("backend", cfg.Server.BackendURL),
		zap.String("default_model", cfg.Server.DefaultModel),
		zap.Bool("debug", cfg.Debug),
	)

	forwarder := upstream.New(upstream.Config{
		BaseURL:      cfg.Server.BackendURL,
		DefaultModel: cfg.Server.DefaultModel,
		Timeout:      cfg.Server.Timeout.Duration,
	}, log)

	srv := server.New(server.Config{
		ListenAddr: cfg.Server.ListenAddr,
		BodyLimit:  cfg.Server.BodyLimit,
	}, forwarder, log)

	listener, err := net.Listen("tcp", cfg.Server.ListenAddr)
	if err != nil {
		return fmt.Errorf("could not listen on %s: %w", cfg.Server.ListenAddr, err)
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.RunWithListener(listener)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("relay server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
		log.Info("shutting down relay server")
		if err := srv.Shutdown(); err != nil {
			return fmt.Errorf("could not shut down relay server: %w", err)
		}
		return nil
	}
}

// applyFlags overrides file and environment settings with flags the user set.
func (c *serveCommander) applyFlags(cmd *cobra.Command, cfg *config.Config) {
	flags := cmd.Flags()
	if flags.Changed("listen") {
		cfg.Server.ListenAddr = c.listen
	}
	if flags.Changed("backend") {
		cfg.Server.BackendURL = c.backend
	}
	if flags.Changed("model") {
		cfg.Server.DefaultModel = c.model
	}
	if flags.Changed("timeout") {
		cfg.Server.Timeout.Duration = c.timeout
	}
	if flags.Changed("debug") {
		cfg.Debug = c.debug
	}
}
