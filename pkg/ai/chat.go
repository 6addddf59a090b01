package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/voicetalk/voicegate/pkg/provider"
)

// chatClient drives an OpenAI-compatible chat completions endpoint.
// Both bundled AI backends speak this shape; only endpoint, credentials
// and defaults differ.
type chatClient struct {
	name    string
	config  *Config
	client  *http.Client
	logger  *slog.Logger
	baseURL string
}

type chatRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
	Temperature float64   `json:"temperature,omitempty"`
}

type chatResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

func (c *chatClient) generate(ctx context.Context, req *Request) (*Reply, error) {
	start := time.Now()

	if err := validate(req); err != nil {
		return nil, err
	}

	messages := req.Messages
	if c.config.SystemPrompt != "" {
		messages = append([]Message{{Role: RoleSystem, Content: c.config.SystemPrompt}}, messages...)
	}

	body, err := json.Marshal(chatRequest{
		Model:       c.config.Model,
		Messages:    messages,
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
	})
	if err != nil {
		return nil, provider.WrapError(c.name, fmt.Errorf("marshal payload: %w", err))
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, provider.WrapError(c.name, fmt.Errorf("create request: %w", err))
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.config.APIKey)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, provider.WrapError(c.name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, c.parseError(resp)
	}

	var out chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, provider.WrapError(c.name, fmt.Errorf("%w: %v", provider.ErrBadResponse, err))
	}
	if len(out.Choices) == 0 {
		return nil, provider.WrapError(c.name, fmt.Errorf("%w: no choices", provider.ErrBadResponse))
	}

	text := strings.TrimSpace(out.Choices[0].Message.Content)
	if text == "" {
		return nil, provider.WrapError(c.name, fmt.Errorf("%w: empty reply", provider.ErrBadResponse))
	}

	c.logger.Debug("generated reply",
		"context_messages", len(messages),
		"chars", len(text),
		"latency_ms", time.Since(start).Milliseconds(),
	)

	return &Reply{Text: text, Provider: c.name, Model: out.Model}, nil
}

func (c *chatClient) health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/models", nil)
	if err != nil {
		return provider.WrapError(c.name, err)
	}
	req.Header.Set("Authorization", "Bearer "+c.config.APIKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return provider.WrapError(c.name, fmt.Errorf("health check: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return c.parseError(resp)
	}
	return nil
}

// parseError reads an OpenAI-style error payload into an APIError.
func (c *chatClient) parseError(resp *http.Response) error {
	body, _ := io.ReadAll(resp.Body)

	var errResp struct {
		Error struct {
			Message string `json:"message"`
			Code    string `json:"code"`
		} `json:"error"`
	}

	message := string(body)
	code := ""
	if json.Unmarshal(body, &errResp) == nil && errResp.Error.Message != "" {
		message = errResp.Error.Message
		code = errResp.Error.Code
	}

	return &provider.APIError{
		StatusCode: resp.StatusCode,
		Message:    message,
		Code:       code,
		Provider:   c.name,
	}
}
