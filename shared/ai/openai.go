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

type openAIClient struct {
	cfg    *config.ProviderConfig
	client *http.Client
}

func newOpenAIClient(cfg *config.ProviderConfig) *openAIClient {
	return &openAIClient{
		cfg:    cfg,
		client: &http.Client{Timeout: 90 * time.Second},
	}
}

func (c *openAIClient) credentialPresent() bool {
	return c.cfg.APIKey != ""
}

func (c *openAIClient) modelCatalog() []ModelInfo {
	return []ModelInfo{
		{ID: "gpt-4o", Name: "GPT-4o", Description: "Flagship multimodal model"},
		{ID: "gpt-4o-mini", Name: "GPT-4o mini", Description: "Fast, inexpensive small model"},
		{ID: "gpt-4.1", Name: "GPT-4.1", Description: "Long-context successor to GPT-4o"},
	}
}

func (c *openAIClient) complete(ctx context.Context, req CompletionRequest) (string, error) {
	type chatMsg struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	}
	type chatReq struct {
		Model       string    `json:"model"`
		Messages    []chatMsg `json:"messages"`
		Temperature float64   `json:"temperature,omitempty"`
		MaxTokens   int       `json:"max_completion_tokens,omitempty"`
	}

	msgs := make([]chatMsg, 0, len(req.Messages))
	for _, m := range req.Messages {
		msgs = append(msgs, chatMsg{Role: m.Role, Content: m.Content})
	}

	body, err := json.Marshal(chatReq{
		Model:       req.Model,
		Messages:    msgs,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	})
	if err != nil {
		return "", NewError(KindConfig, models.ProviderOpenAI, "marshal request: %v", err)
	}

	baseURL := c.cfg.BaseURL
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", NewError(KindConfig, models.ProviderOpenAI, "build request: %v", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return "", wrapTransport(models.ProviderOpenAI, err)
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return "", httpError(models.ProviderOpenAI, resp.StatusCode, raw)
	}

	var out struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return "", NewError(KindUnavailable, models.ProviderOpenAI, "decode response: %v", err)
	}
	if len(out.Choices) == 0 {
		return "", NewError(KindUnavailable, models.ProviderOpenAI, "no choices in response")
	}
	return out.Choices[0].Message.Content, nil
}
