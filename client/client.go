// Package client talks to the relay endpoints on behalf of a chat UI. It
// implements conversation.Relay.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/stevejgoodman/hotmesscoach/pkg/negotiate"
	"github.com/stevejgoodman/hotmesscoach/pkg/relay"
)

// Client calls a relay server over HTTP.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *zap.Logger
}

// New creates a Client for the relay at baseURL (e.g., "http://localhost:3000").
func New(baseURL string, timeout time.Duration, logger *zap.Logger) *Client {
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

// Chat posts a message to /api/chat. Non-success statuses come back as error
// responses; only transport and decode faults are returned as errors.
func (c *Client) Chat(ctx context.Context, message, model string) (relay.Response, error) {
	reqBody, err := json.Marshal(relay.ChatRequest{Message: message, Model: model})
	if err != nil {
		return relay.Response{}, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/chat", bytes.NewReader(reqBody))
	if err != nil {
		return relay.Response{}, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	header, body, failure, err := c.do(httpReq)
	if err != nil || failure != nil {
		return deref(failure), err
	}

	if contentType := header.Get("Content-Type"); negotiate.IsImage(contentType) {
		return relay.Image(contentType, body), nil
	}

	var resp relay.ChatResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return relay.Response{}, fmt.Errorf("%w: %v", negotiate.ErrDecode, err)
	}
	return relay.Text(resp.Response), nil
}

// Upload posts a file to /api/uploadfile/ and returns the acknowledgement.
func (c *Client) Upload(ctx context.Context, filename, mediaType string, data []byte) (relay.Response, error) {
	body, contentType, err := relay.EncodeUpload(filename, mediaType, data)
	if err != nil {
		return relay.Response{}, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/uploadfile/", body)
	if err != nil {
		return relay.Response{}, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", contentType)

	_, ack, failure, err := c.do(httpReq)
	if err != nil || failure != nil {
		return deref(failure), err
	}
	return relay.Ack(ack), nil
}

func (c *Client) do(httpReq *http.Request) (http.Header, []byte, *relay.Response, error) {
	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("do request: %w", err)
	}
	defer httpResp.Body.Close()

	body, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("read response: %w", err)
	}

	if httpResp.StatusCode < 200 || httpResp.StatusCode > 299 {
		var envelope relay.ErrorResponse
		detail := string(body)
		if json.Unmarshal(body, &envelope) == nil && envelope.Error != "" {
			detail = envelope.Error
			if envelope.Details != "" {
				detail += ": " + envelope.Details
			}
		}
		c.logger.Warn("relay returned error",
			zap.String("url", httpReq.URL.String()),
			zap.Int("status", httpResp.StatusCode),
			zap.String("detail", detail),
		)
		failure := relay.Rejected(httpResp.StatusCode, detail)
		return nil, nil, &failure, nil
	}

	return httpResp.Header, body, nil, nil
}

func deref(r *relay.Response) relay.Response {
	if r == nil {
		return relay.Response{}
	}
	return *r
}
