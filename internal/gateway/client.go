// Package gateway streams chat completions from the OpenAI-compatible AI
// gateway.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"wolf-backend/internal/config"
	"wolf-backend/internal/models"

	"go.uber.org/zap"
)

const maxErrorBody = 64 << 10

type httpDoer interface {
	Do(*http.Request) (*http.Response, error)
}

type completionRequest struct {
	Model    string               `json:"model"`
	Messages []models.ChatMessage `json:"messages"`
	Stream   bool                 `json:"stream"`
}

type Client struct {
	endpoint    string
	apiKey      string
	profile     Profile
	idleTimeout time.Duration
	client      httpDoer
	logger      *zap.SugaredLogger
}

// NewClient builds a client for cfg. A non-empty cfg.Model overrides the
// profile's model.
func NewClient(cfg config.GatewayConfig, profile Profile, logger *zap.SugaredLogger) *Client {
	if m := strings.TrimSpace(cfg.Model); m != "" {
		profile.Model = m
	}
	return &Client{
		endpoint:    cfg.BaseURL,
		apiKey:      cfg.APIKey,
		profile:     profile,
		idleTimeout: cfg.IdleTimeout,
		// No client-wide timeout: streams are bounded by the caller's context
		// and the idle timer.
		client: &http.Client{},
		logger: logger,
	}
}

// Model returns the model requests are sent to.
func (c *Client) Model() string { return c.profile.Model }

// StreamCompletion posts history with the persona prepended and returns the
// raw event stream. Non-2xx responses are returned as *GatewayError. The
// caller must Close the body; closing also releases the idle timer.
func (c *Client) StreamCompletion(ctx context.Context, history []models.ChatMessage) (io.ReadCloser, error) {
	if c.apiKey == "" {
		return nil, ErrNotConfigured
	}

	messages := make([]models.ChatMessage, 0, len(history)+1)
	if c.profile.SystemPrompt != "" {
		messages = append(messages, models.ChatMessage{Role: models.RoleSystem, Content: c.profile.SystemPrompt})
	}
	messages = append(messages, history...)

	body, err := json.Marshal(completionRequest{Model: c.profile.Model, Messages: messages, Stream: true})
	if err != nil {
		return nil, fmt.Errorf("marshal completion payload: %w", err)
	}

	ctx, cancel := context.WithCancel(ctx)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		cancel()
		return nil, fmt.Errorf("create completion request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")

	var timer *time.Timer
	if c.idleTimeout > 0 {
		timer = time.AfterFunc(c.idleTimeout, cancel)
	}

	c.logger.Infow("Calling AI gateway", "messages", len(history), "model", c.profile.Model)
	resp, err := c.client.Do(req)
	if err != nil {
		stopTimer(timer)
		cancel()
		return nil, fmt.Errorf("call gateway: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		details, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		resp.Body.Close()
		stopTimer(timer)
		cancel()
		c.logger.Errorw("AI gateway error", "status", resp.StatusCode, "body", string(details))
		return nil, newGatewayError(resp.StatusCode, string(details))
	}

	return &idleBody{body: resp.Body, timer: timer, timeout: c.idleTimeout, cancel: cancel}, nil
}

func stopTimer(t *time.Timer) {
	if t != nil {
		t.Stop()
	}
}

// idleBody cancels the request when no bytes arrive for timeout.
type idleBody struct {
	body    io.ReadCloser
	timer   *time.Timer
	timeout time.Duration
	cancel  context.CancelFunc
	once    sync.Once
}

func (b *idleBody) Read(p []byte) (int, error) {
	n, err := b.body.Read(p)
	if n > 0 && b.timer != nil {
		b.timer.Reset(b.timeout)
	}
	return n, err
}

func (b *idleBody) Close() error {
	var err error
	b.once.Do(func() {
		stopTimer(b.timer)
		err = b.body.Close()
		b.cancel()
	})
	return err
}
