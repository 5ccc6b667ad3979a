// Package news retrieves headline digests for the news segments of the
// generation pipeline.
package news

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/coocood/freecache"
	json "github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"radio-stack/shared/config"
)

// DefaultQuery is used when a news slot has a blank query.
const DefaultQuery = "music industry headlines"

const cacheSizeBytes = 1 << 20

// Source answers a news query with a short summary text.
type Source interface {
	Query(ctx context.Context, query string) (string, error)
}

// Client fetches headlines from a NewsAPI-style endpoint. Responses are
// cached briefly so several slots sharing a query inside one trigger
// window hit the vendor once.
type Client struct {
	cfg    *config.NewsConfig
	client *http.Client
	cache  *freecache.Cache
	logger zerolog.Logger
}

func NewClient(cfg *config.NewsConfig, logger zerolog.Logger) *Client {
	return &Client{
		cfg:    cfg,
		client: &http.Client{Timeout: 30 * time.Second},
		cache:  freecache.NewCache(cacheSizeBytes),
		logger: logger.With().Str("component", "news").Logger(),
	}
}

// Query returns a headline digest for the query text. A blank query
// falls back to DefaultQuery.
func (c *Client) Query(ctx context.Context, query string) (string, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		query = DefaultQuery
	}

	cacheKey := []byte("news:" + query)
	if cached, err := c.cache.Get(cacheKey); err == nil {
		c.logger.Debug().Str("query", query).Msg("news cache hit")
		return string(cached), nil
	}

	if c.cfg.APIKey == "" {
		return "", fmt.Errorf("news API key not configured")
	}

	baseURL := c.cfg.BaseURL
	if baseURL == "" {
		baseURL = "https://newsapi.org/v2"
	}
	reqURL := fmt.Sprintf("%s/everything?q=%s&sortBy=publishedAt&pageSize=5&language=en",
		baseURL, url.QueryEscape(query))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return "", fmt.Errorf("build news request: %w", err)
	}
	req.Header.Set("X-Api-Key", c.cfg.APIKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch news: %w", err)
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("news API returned status %d: %s", resp.StatusCode, truncate(string(raw), 256))
	}

	var out struct {
		Articles []struct {
			Title       string `json:"title"`
			Description string `json:"description"`
			Source      struct {
				Name string `json:"name"`
			} `json:"source"`
		} `json:"articles"`
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return "", fmt.Errorf("decode news response: %w", err)
	}
	if len(out.Articles) == 0 {
		return "", fmt.Errorf("no articles found for query %q", query)
	}

	var b strings.Builder
	for i, a := range out.Articles {
		fmt.Fprintf(&b, "%d. %s (%s)", i+1, a.Title, a.Source.Name)
		if a.Description != "" {
			fmt.Fprintf(&b, " — %s", truncate(a.Description, 200))
		}
		b.WriteString("\n")
	}
	digest := b.String()

	ttl := int(c.cfg.CacheTTL / time.Second)
	if err := c.cache.Set(cacheKey, []byte(digest), ttl); err != nil {
		c.logger.Warn().Err(err).Str("query", query).Msg("failed to cache news digest")
	}

	return digest, nil
}

// truncate caps s at max runes so multi-byte text is never split
// mid-sequence.
func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max]) + "..."
}
