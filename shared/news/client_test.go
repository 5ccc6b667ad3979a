package news

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"radio-stack/shared/config"
)

const articlesBody = `{"articles":[
	{"title":"Vinyl sales climb again","description":"Pressing plants report record backlogs","source":{"name":"Music Weekly"}},
	{"title":"Festival season lineup announced","description":"","source":{"name":"Stage Times"}}
]}`

func newTestClient(baseURL string) *Client {
	return NewClient(&config.NewsConfig{
		APIKey:   "key",
		BaseURL:  baseURL,
		CacheTTL: time.Minute,
	}, zerolog.Nop())
}

func TestQueryBuildsDigest(t *testing.T) {
	var gotQuery, gotKey string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query().Get("q")
		gotKey = r.Header.Get("X-Api-Key")
		w.Write([]byte(articlesBody))
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	digest, err := c.Query(context.Background(), "music industry headlines")
	require.NoError(t, err)

	assert.Equal(t, "music industry headlines", gotQuery)
	assert.Equal(t, "key", gotKey)
	assert.Contains(t, digest, "1. Vinyl sales climb again (Music Weekly)")
	assert.Contains(t, digest, "Pressing plants report record backlogs")
	assert.Contains(t, digest, "2. Festival season lineup announced (Stage Times)")
}

func TestQueryBlankFallsBackToDefault(t *testing.T) {
	var gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query().Get("q")
		w.Write([]byte(articlesBody))
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	_, err := c.Query(context.Background(), "   ")
	require.NoError(t, err)
	assert.Equal(t, DefaultQuery, gotQuery)
}

// A repeated query inside the TTL is served from cache; the vendor sees
// one request.
func TestQueryCachesDigest(t *testing.T) {
	hits := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		w.Write([]byte(articlesBody))
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	first, err := c.Query(context.Background(), "vinyl")
	require.NoError(t, err)
	second, err := c.Query(context.Background(), "vinyl")
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, hits)

	// A different query misses the cache.
	_, err = c.Query(context.Background(), "festivals")
	require.NoError(t, err)
	assert.Equal(t, 2, hits)
}

func TestQueryErrors(t *testing.T) {
	t.Run("missing api key", func(t *testing.T) {
		c := NewClient(&config.NewsConfig{}, zerolog.Nop())
		_, err := c.Query(context.Background(), "vinyl")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "API key")
	})

	t.Run("vendor error status", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusTooManyRequests)
		}))
		defer srv.Close()

		c := newTestClient(srv.URL)
		_, err := c.Query(context.Background(), "vinyl")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "429")
	})

	t.Run("no articles", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"articles":[]}`))
		}))
		defer srv.Close()

		c := newTestClient(srv.URL)
		_, err := c.Query(context.Background(), "nothing")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "no articles")
	})
}

// Long non-ASCII descriptions are cut on a rune boundary, never
// mid-sequence.
func TestDigestTruncatesDescriptionsSafely(t *testing.T) {
	desc := strings.Repeat("ö", 250)
	body := fmt.Sprintf(`{"articles":[{"title":"Tourdaten","description":"%s","source":{"name":"Musik Heute"}}]}`, desc)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(body))
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	digest, err := c.Query(context.Background(), "tour")
	require.NoError(t, err)
	assert.True(t, utf8.ValidString(digest))
	assert.Contains(t, digest, strings.Repeat("ö", 200)+"...")
}
