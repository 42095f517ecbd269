// Package upstream forwards chat and upload requests to the inference backend
// and normalizes every outcome into a relay.Response.
package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/stevejgoodman/hotmesscoach/pkg/negotiate"
	"github.com/stevejgoodman/hotmesscoach/pkg/relay"
)

const (
	chatPath   = "/api/chat"
	uploadPath = "/api/uploadfile/"
)

// Client is the upstream adapter. It never retries; a failed call is reported
// once and the caller decides what to do with it.
type Client struct {
	config     Config
	negotiator *negotiate.Negotiator
	logger     *zap.Logger
	httpClient *http.Client
}

// New creates a Client for the given backend.
func New(config Config, logger *zap.Logger) *Client {
	config.BaseURL = strings.TrimRight(config.BaseURL, "/")
	if config.DefaultModel == "" {
		config.DefaultModel = relay.DefaultModel
	}
	if config.Timeout <= 0 {
		// Chart generation on the backend can be slow
		config.Timeout = 5 * time.Minute
	}

	return &Client{
		config:     config,
		negotiator: negotiate.New(),
		logger:     logger,
		httpClient: newHTTPClient(config.Timeout),
	}
}

func newHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			Proxy: http.ProxyFromEnvironment,
			DialContext: (&net.Dialer{
				Timeout:   10 * time.Second,
				KeepAlive: 30 * time.Second,
			}).DialContext,
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 10,
			IdleConnTimeout:     90 * time.Second,
			TLSHandshakeTimeout: 10 * time.Second,
		},
	}
}

// BaseURL returns the backend address requests are sent to.
func (c *Client) BaseURL() string {
	return c.config.BaseURL
}

// ForwardChat sends a message to the backend's chat endpoint. An empty model
// is replaced by the configured default.
func (c *Client) ForwardChat(ctx context.Context, message, model string) relay.Response {
	if model == "" {
		model = c.config.DefaultModel
	}

	reqBody, err := json.Marshal(relay.ChatRequest{Message: message, Model: model})
	if err != nil {
		return relay.Failed(relay.ReasonDecodeFailure, fmt.Errorf("marshal request: %w", err))
	}

	upstreamURL := c.config.BaseURL + chatPath
	c.logger.Debug("forwarding chat request to upstream",
		zap.String("url", upstreamURL),
		zap.String("model", model),
		zap.Int("body_size", len(reqBody)),
	)

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, upstreamURL, bytes.NewReader(reqBody))
	if err != nil {
		return relay.Failed(relay.ReasonTransportFailure, fmt.Errorf("create request: %w", err))
	}
	httpReq.Header.Set("Content-Type", "application/json")

	header, body, failure := c.do(httpReq)
	if failure != nil {
		return *failure
	}

	resp, err := c.negotiator.Classify(header, body)
	if err != nil {
		c.logger.Error("failed to decode upstream response",
			zap.String("content_type", header.Get("Content-Type")),
			zap.Error(err),
		)
		return relay.Failed(relay.ReasonDecodeFailure, err)
	}

	c.logger.Debug("received response from upstream",
		zap.String("kind", string(resp.Kind)),
		zap.String("media_type", resp.MediaType),
		zap.String("content_preview", truncate(resp.Text, 100)),
	)

	return resp
}

// ForwardUpload re-encodes a file as multipart form data and sends it to the
// backend's upload endpoint. A successful acknowledgement is returned verbatim.
func (c *Client) ForwardUpload(ctx context.Context, filename, mediaType string, data []byte) relay.Response {
	body, contentType, err := relay.EncodeUpload(filename, mediaType, data)
	if err != nil {
		return relay.Failed(relay.ReasonDecodeFailure, err)
	}

	upstreamURL := c.config.BaseURL + uploadPath
	c.logger.Debug("forwarding upload to upstream",
		zap.String("url", upstreamURL),
		zap.String("filename", filename),
		zap.String("media_type", mediaType),
		zap.Int("size", len(data)),
	)

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, upstreamURL, body)
	if err != nil {
		return relay.Failed(relay.ReasonTransportFailure, fmt.Errorf("create request: %w", err))
	}
	httpReq.Header.Set("Content-Type", contentType)

	_, ack, failure := c.do(httpReq)
	if failure != nil {
		return *failure
	}

	if !json.Valid(ack) {
		err := fmt.Errorf("%w: upload acknowledgement is not JSON", negotiate.ErrDecode)
		c.logger.Error("failed to decode upstream acknowledgement", zap.Error(err))
		return relay.Failed(relay.ReasonDecodeFailure, err)
	}

	return relay.Ack(ack)
}

// do executes the request and reads the full body. A non-nil failure is the
// normalized error response for transport faults and non-success statuses.
func (c *Client) do(httpReq *http.Request) (http.Header, []byte, *relay.Response) {
	startTime := time.Now()

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		c.logger.Error("upstream request failed",
			zap.String("url", httpReq.URL.String()),
			zap.Error(err),
		)
		failure := relay.Failed(relay.ReasonTransportFailure, err)
		return nil, nil, &failure
	}
	defer httpResp.Body.Close()

	body, readErr := io.ReadAll(httpResp.Body)

	if httpResp.StatusCode < 200 || httpResp.StatusCode > 299 {
		// The error body is best-effort: whatever was read before a failure is kept.
		c.logger.Error("upstream returned error",
			zap.String("url", httpReq.URL.String()),
			zap.Int("status", httpResp.StatusCode),
			zap.String("body", string(body)),
			zap.NamedError("read_error", readErr),
		)
		failure := relay.Rejected(httpResp.StatusCode, string(body))
		return nil, nil, &failure
	}

	if readErr != nil {
		c.logger.Error("failed to read upstream response", zap.Error(readErr))
		failure := relay.Failed(relay.ReasonTransportFailure, fmt.Errorf("read response: %w", readErr))
		return nil, nil, &failure
	}

	c.logger.Debug("upstream call complete",
		zap.String("url", httpReq.URL.String()),
		zap.Int("status", httpResp.StatusCode),
		zap.Int("body_size", len(body)),
		zap.Duration("duration", time.Since(startTime)),
	)

	return httpResp.Header, body, nil
}

func truncate(s string, maxLen int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	if len(s) <= maxLen {
		return s
	}
	// Cut on a rune boundary.
	cut := maxLen
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}
