package ai

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"time"

	json "github.com/goccy/go-json"

	"radio-stack/internal/models"
	"radio-stack/shared/config"
)

type anthropicClient struct {
	cfg    *config.ProviderConfig
	client *http.Client
}

func newAnthropicClient(cfg *config.ProviderConfig) *anthropicClient {
	return &anthropicClient{
		cfg:    cfg,
		client: &http.Client{Timeout: 90 * time.Second},
	}
}

func (c *anthropicClient) credentialPresent() bool {
	return c.cfg.APIKey != ""
}

func (c *anthropicClient) modelCatalog() []ModelInfo {
	return []ModelInfo{
		{ID: "claude-sonnet-4-20250514", Name: "Claude Sonnet 4", Description: "Balanced quality and speed"},
		{ID: "claude-3-5-haiku-20241022", Name: "Claude 3.5 Haiku", Description: "Fast, inexpensive small model"},
	}
}

// complete maps our message shape onto the Anthropic messages API, which
// takes the system prompt as a top-level field rather than a message.
func (c *anthropicClient) complete(ctx context.Context, req CompletionRequest) (string, error) {
	type chatMsg struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	}
	type chatReq struct {
		Model       string    `json:"model"`
		System      string    `json:"system,omitempty"`
		Messages    []chatMsg `json:"messages"`
		Temperature float64   `json:"temperature,omitempty"`
		MaxTokens   int       `json:"max_tokens"`
	}

	var system string
	msgs := make([]chatMsg, 0, len(req.Messages))
	for _, m := range req.Messages {
		if m.Role == RoleSystem {
			system = m.Content
			continue
		}
		msgs = append(msgs, chatMsg{Role: m.Role, Content: m.Content})
	}

	body, err := json.Marshal(chatReq{
		Model:       req.Model,
		System:      system,
		Messages:    msgs,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	})
	if err != nil {
		return "", NewError(KindConfig, models.ProviderAnthropic, "marshal request: %v", err)
	}

	baseURL := c.cfg.BaseURL
	if baseURL == "" {
		baseURL = "https://api.anthropic.com/v1"
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, baseURL+"/messages", bytes.NewReader(body))
	if err != nil {
		return "", NewError(KindConfig, models.ProviderAnthropic, "build request: %v", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", c.cfg.APIKey)
	httpReq.Header.Set("anthropic-version", "2023-06-01")

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return "", wrapTransport(models.ProviderAnthropic, err)
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return "", httpError(models.ProviderAnthropic, resp.StatusCode, raw)
	}

	var out struct {
		Content []struct {
			Type string `json:"type"`
			Text string `json:"text"`
		} `json:"content"`
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return "", NewError(KindUnavailable, models.ProviderAnthropic, "decode response: %v", err)
	}
	for _, block := range out.Content {
		if block.Type == "text" {
			return block.Text, nil
		}
	}
	return "", NewError(KindUnavailable, models.ProviderAnthropic, "no text content in response")
}
