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

// mistralClient is the one backend with a managed-agent abstraction: the
// vendor keeps the prompt/behavior definition server-side, and a call
// addresses it by agent id through a dedicated endpoint instead of a
// model id.
type mistralClient struct {
	cfg    *config.ProviderConfig
	client *http.Client
}

func newMistralClient(cfg *config.ProviderConfig) *mistralClient {
	return &mistralClient{
		cfg:    cfg,
		client: &http.Client{Timeout: 90 * time.Second},
	}
}

func (c *mistralClient) credentialPresent() bool {
	return c.cfg.APIKey != ""
}

func (c *mistralClient) modelCatalog() []ModelInfo {
	return []ModelInfo{
		{ID: "mistral-large-latest", Name: "Mistral Large", Description: "Flagship reasoning model"},
		{ID: "mistral-small-latest", Name: "Mistral Small", Description: "Fast, inexpensive small model"},
		{ID: models.ManagedAgentModel, Name: "Managed Agent", Description: "Server-side agent addressed by reference"},
	}
}

func (c *mistralClient) complete(ctx context.Context, req CompletionRequest) (string, error) {
	type chatMsg struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	}

	msgs := make([]chatMsg, 0, len(req.Messages))
	for _, m := range req.Messages {
		msgs = append(msgs, chatMsg{Role: m.Role, Content: m.Content})
	}

	var path string
	var payload any
	if req.Model == models.ManagedAgentModel {
		// Gateway validation guarantees AgentRef is set by the time we
		// get here.
		path = "/agents/completions"
		payload = struct {
			AgentID   string    `json:"agent_id"`
			Messages  []chatMsg `json:"messages"`
			MaxTokens int       `json:"max_tokens,omitempty"`
		}{AgentID: req.AgentRef, Messages: msgs, MaxTokens: req.MaxTokens}
	} else {
		path = "/chat/completions"
		payload = struct {
			Model       string    `json:"model"`
			Messages    []chatMsg `json:"messages"`
			Temperature float64   `json:"temperature,omitempty"`
			MaxTokens   int       `json:"max_tokens,omitempty"`
		}{Model: req.Model, Messages: msgs, Temperature: req.Temperature, MaxTokens: req.MaxTokens}
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", NewError(KindConfig, models.ProviderMistral, "marshal request: %v", err)
	}

	baseURL := c.cfg.BaseURL
	if baseURL == "" {
		baseURL = "https://api.mistral.ai/v1"
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, baseURL+path, bytes.NewReader(body))
	if err != nil {
		return "", NewError(KindConfig, models.ProviderMistral, "build request: %v", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return "", wrapTransport(models.ProviderMistral, err)
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return "", httpError(models.ProviderMistral, resp.StatusCode, raw)
	}

	var out struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return "", NewError(KindUnavailable, models.ProviderMistral, "decode response: %v", err)
	}
	if len(out.Choices) == 0 {
		return "", NewError(KindUnavailable, models.ProviderMistral, "no choices in response")
	}
	return out.Choices[0].Message.Content, nil
}
