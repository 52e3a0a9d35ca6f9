package websearch

import (
	"context"
	"io"
	"log"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/dgraph-io/ristretto"

	"github.com/ent0n29/cheapchat/internal/htmltext"
)

const (
	DefaultPreviewTimeout  = 6 * time.Second
	DefaultPreviewMaxChars = 800
	DefaultPreviewCacheTTL = 10 * time.Minute

	previewBodyLimit = 2 << 20
)

// PreviewConfig controls page preview fetching.
type PreviewConfig struct {
	Timeout  time.Duration
	MaxChars int
	CacheTTL time.Duration
}

// Previewer fetches a short text preview of a page. Failures yield "".
type Previewer struct {
	client   *http.Client
	maxChars int
	cacheTTL time.Duration
	cache    *ristretto.Cache
}

func NewPreviewer(cfg PreviewConfig) (*Previewer, error) {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultPreviewTimeout
	}
	if cfg.MaxChars <= 0 {
		cfg.MaxChars = DefaultPreviewMaxChars
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = DefaultPreviewCacheTTL
	}

	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: 1e4,
		MaxCost:     1 << 22,
		BufferItems: 64,
	})
	if err != nil {
		return nil, err
	}
	return &Previewer{
		client:   &http.Client{Timeout: cfg.Timeout},
		maxChars: cfg.MaxChars,
		cacheTTL: cfg.CacheTTL,
		cache:    cache,
	}, nil
}

func (p *Previewer) Preview(ctx context.Context, pageURL string) string {
	pageURL = strings.TrimSpace(pageURL)
	if pageURL == "" {
		return ""
	}
	if v, ok := p.cache.Get(pageURL); ok {
		if s, ok := v.(string); ok {
			return s
		}
	}

	text, err := p.fetch(ctx, pageURL)
	if err != nil {
		log.Printf("websearch: preview %s: %v", pageURL, err)
		return ""
	}
	if text != "" {
		p.cache.SetWithTTL(pageURL, text, int64(len(text)), p.cacheTTL)
		p.cache.Wait()
	}
	return text
}

func (p *Previewer) fetch(ctx context.Context, pageURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("User-Agent", browserUserAgent)

	res, err := p.client.Do(req)
	if err != nil {
		return "", err
	}
	defer res.Body.Close()
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return "", &statusError{code: res.StatusCode}
	}

	body := io.LimitReader(res.Body, previewBodyLimit)
	var text string
	if strings.Contains(strings.ToLower(res.Header.Get("Content-Type")), "html") {
		text, err = htmltext.Extract(body)
		if err != nil {
			return "", err
		}
	} else {
		raw, err := io.ReadAll(body)
		if err != nil {
			return "", err
		}
		text = strings.TrimSpace(strings.ToValidUTF8(string(raw), ""))
	}
	return truncateRunes(text, p.maxChars), nil
}

func (p *Previewer) Close() {
	p.cache.Close()
}

type statusError struct{ code int }

func (e *statusError) Error() string   { return http.StatusText(e.code) }
func (e *statusError) HTTPStatus() int { return e.code }

func truncateRunes(s string, n int) string {
	if n <= 0 || utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}
