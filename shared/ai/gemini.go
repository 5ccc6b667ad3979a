package ai

import (
	"context"
	"errors"
	"strings"

	"google.golang.org/genai"

	"radio-stack/internal/models"
	"radio-stack/shared/config"
)

type geminiClient struct {
	cfg    *config.ProviderConfig
	client *genai.Client
}

// newGeminiClient builds the Gemini backend. The genai client is only
// created when a key is present so an unconfigured provider stays inert
// instead of failing startup.
func newGeminiClient(ctx context.Context, cfg *config.ProviderConfig) (*geminiClient, error) {
	c := &geminiClient{cfg: cfg}
	if cfg.APIKey == "" {
		return c, nil
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: cfg.APIKey})
	if err != nil {
		return nil, NewError(KindConfig, models.ProviderGemini, "create client: %v", err)
	}
	c.client = client
	return c, nil
}

func (c *geminiClient) credentialPresent() bool {
	return c.client != nil
}

func (c *geminiClient) modelCatalog() []ModelInfo {
	return []ModelInfo{
		{ID: "gemini-2.5-flash", Name: "Gemini 2.5 Flash", Description: "Fast general-purpose model"},
		{ID: "gemini-2.5-pro", Name: "Gemini 2.5 Pro", Description: "Strongest reasoning model"},
	}
}

func (c *geminiClient) complete(ctx context.Context, req CompletionRequest) (string, error) {
	genCfg := &genai.GenerateContentConfig{
		Temperature:     genai.Ptr(float32(req.Temperature)),
		MaxOutputTokens: int32(req.MaxTokens),
	}

	var contents []*genai.Content
	for _, m := range req.Messages {
		switch m.Role {
		case RoleSystem:
			genCfg.SystemInstruction = genai.NewContentFromText(m.Content, genai.RoleUser)
		case RoleAssistant:
			contents = append(contents, genai.NewContentFromText(m.Content, genai.RoleModel))
		default:
			contents = append(contents, genai.NewContentFromText(m.Content, genai.RoleUser))
		}
	}

	result, err := c.client.Models.GenerateContent(ctx, req.Model, contents, genCfg)
	if err != nil {
		return "", classifyGeminiError(err)
	}

	text := result.Text()
	if text == "" {
		return "", NewError(KindUnavailable, models.ProviderGemini, "empty response")
	}
	return text, nil
}

func classifyGeminiError(err error) *Error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return httpError(models.ProviderGemini, apiErr.Code, []byte(apiErr.Message))
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return NewError(KindTimeout, models.ProviderGemini, "request deadline exceeded")
	}
	msg := err.Error()
	switch {
	case strings.Contains(msg, "API key"):
		return NewError(KindAuth, models.ProviderGemini, "%s", msg)
	case strings.Contains(msg, "RESOURCE_EXHAUSTED") || strings.Contains(msg, "429"):
		return NewError(KindRateLimited, models.ProviderGemini, "%s", msg)
	default:
		return NewError(KindUnavailable, models.ProviderGemini, "%s", msg)
	}
}
