// Package server provides the relay endpoints that sit between the chat UI and
// the inference backend.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/gofiber/adaptor/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"go.uber.org/zap"

	"github.com/stevejgoodman/hotmesscoach/pkg/relay"
)

const (
	summaryChatFailed   = "Failed to get response from backend"
	summaryUploadFailed = "Failed to upload file"
	summaryInternal     = "Internal server error"
	summaryNoFile       = "No file provided"
)

// Forwarder sends requests to the inference backend. *upstream.Client
// implements it.
type Forwarder interface {
	ForwardChat(ctx context.Context, message, model string) relay.Response
	ForwardUpload(ctx context.Context, filename, mediaType string, data []byte) relay.Response
}

// Server exposes the chat and upload relay endpoints. It holds no
// conversation state; every request is relayed independently.
type Server struct {
	config    Config
	forwarder Forwarder
	logger    *zap.Logger
	server    *fiber.App
}

// New creates a new Server relaying to the given forwarder.
func New(config Config, forwarder Forwarder, logger *zap.Logger) *Server {
	s := &Server{
		config:    config,
		forwarder: forwarder,
		logger:    logger,
	}

	app := fiber.New(fiber.Config{
		// Disable startup message for cleaner logs
		DisableStartupMessage: true,
		BodyLimit:             config.BodyLimit,
		ErrorHandler:          s.handleError,
	})
	app.Use(recover.New())

	s.registerRoutes(app)
	s.server = app

	return s
}

func (s *Server) registerRoutes(app *fiber.App) {
	app.Post("/api/chat", s.handleChat)
	// Non-strict routing also serves /api/uploadfile/
	app.Post("/api/uploadfile", s.handleUpload)

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(map[string]string{"status": "ok"})
	})
}

// Run starts the server on the configured listening address.
func (s *Server) Run() error {
	s.logger.Info("starting relay server", zap.String("listen", s.config.ListenAddr))

	return s.server.Listen(s.config.ListenAddr)
}

// RunWithListener starts the server on an existing listener.
func (s *Server) RunWithListener(listener net.Listener) error {
	s.logger.Info("starting relay server", zap.String("listen", listener.Addr().String()))

	return s.server.Listener(listener)
}

// Handler exposes the relay endpoints as a net/http handler, for mounting
// under another mux or serving from httptest.
func (s *Server) Handler() http.Handler {
	return adaptor.FiberApp(s.server)
}

// Shutdown stops accepting connections and waits for in-flight requests.
func (s *Server) Shutdown() error {
	return s.server.ShutdownWithTimeout(10 * time.Second)
}

// handleChat relays a chat message. Images pass through byte-for-byte with
// their content type; text is wrapped in a {"response": ...} envelope.
func (s *Server) handleChat(c *fiber.Ctx) error {
	startTime := time.Now()

	var req relay.ChatRequest
	if err := json.Unmarshal(c.Body(), &req); err != nil {
		s.logger.Error("failed to parse chat request", zap.Error(err))
		return writeFailed(c, fiber.StatusInternalServerError, summaryInternal, err.Error())
	}

	s.logger.Debug("received chat request",
		zap.String("model", req.Model),
		zap.Int("message_size", len(req.Message)),
	)

	resp := s.forwarder.ForwardChat(c.UserContext(), req.Message, req.Model)

	s.logger.Debug("chat relayed",
		zap.String("kind", string(resp.Kind)),
		zap.Duration("duration", time.Since(startTime)),
	)

	switch resp.Kind {
	case relay.KindImage:
		c.Set(fiber.HeaderContentType, resp.MediaType)
		return c.Send(resp.Bytes)
	case relay.KindText:
		return c.JSON(relay.ChatResponse{Response: resp.Text})
	case relay.KindError:
		return writeFailure(c, resp, summaryChatFailed)
	default:
		return fmt.Errorf("unexpected chat response kind %q", resp.Kind)
	}
}

// handleUpload relays a single multipart file to the backend and returns its
// acknowledgement unchanged.
func (s *Server) handleUpload(c *fiber.Ctx) error {
	fh, err := c.FormFile(relay.FileField)
	if err != nil {
		s.logger.Debug("upload without file", zap.Error(err))
		return writeError(c, fiber.StatusBadRequest, summaryNoFile, "")
	}

	f, err := fh.Open()
	if err != nil {
		return fmt.Errorf("open uploaded file: %w", err)
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return fmt.Errorf("read uploaded file: %w", err)
	}

	mediaType := fh.Header.Get(fiber.HeaderContentType)
	s.logger.Debug("received upload",
		zap.String("filename", fh.Filename),
		zap.String("media_type", mediaType),
		zap.Int64("size", fh.Size),
	)

	resp := s.forwarder.ForwardUpload(c.UserContext(), fh.Filename, mediaType, data)

	switch resp.Kind {
	case relay.KindAck:
		c.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
		return c.Send(resp.Bytes)
	case relay.KindError:
		return writeFailure(c, resp, summaryUploadFailed)
	default:
		return fmt.Errorf("unexpected upload response kind %q", resp.Kind)
	}
}

// handleError is the last line of defense: handler errors and recovered
// panics become a structured JSON body.
func (s *Server) handleError(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	summary := summaryInternal

	var fe *fiber.Error
	if errors.As(err, &fe) {
		code = fe.Code
		if code != fiber.StatusInternalServerError {
			summary = fe.Message
		}
	}

	s.logger.Error("request failed",
		zap.String("method", c.Method()),
		zap.String("path", c.Path()),
		zap.Int("status", code),
		zap.Error(err),
	)

	if code < fiber.StatusInternalServerError {
		return writeError(c, code, summary, err.Error())
	}
	return writeFailed(c, code, summary, err.Error())
}

// writeFailure maps an upstream error response onto the endpoint's envelope.
// Rejections keep the upstream status; local faults are reported as internal.
func writeFailure(c *fiber.Ctx, resp relay.Response, rejectedSummary string) error {
	summary := summaryInternal
	if resp.Reason == relay.ReasonUpstreamRejected {
		summary = rejectedSummary
	}

	status := resp.Status
	if status == 0 {
		status = fiber.StatusInternalServerError
	}

	return writeFailed(c, status, summary, resp.Detail)
}

func writeError(c *fiber.Ctx, status int, summary, details string) error {
	return c.Status(status).JSON(relay.ErrorResponse{Error: summary, Details: details})
}

func writeFailed(c *fiber.Ctx, status int, summary, details string) error {
	return c.Status(status).JSON(relay.FailureResponse{Error: summary, Details: details})
}
