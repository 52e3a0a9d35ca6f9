package websearch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/net/html"

	"github.com/ent0n29/cheapchat/internal/apperr"
	"github.com/ent0n29/cheapchat/internal/htmltext"
)

const (
	duckDuckGoEndpoint = "https://html.duckduckgo.com/html/"
	browserUserAgent   = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36"
)

// DuckDuckGo scrapes the HTML endpoint of DuckDuckGo. Region is worldwide and
// safe search moderate.
type DuckDuckGo struct {
	endpoint string
	client   *http.Client
}

func NewDuckDuckGo() *DuckDuckGo {
	return NewDuckDuckGoWithEndpoint(duckDuckGoEndpoint, &http.Client{Timeout: 15 * time.Second})
}

func NewDuckDuckGoWithEndpoint(endpoint string, client *http.Client) *DuckDuckGo {
	if client == nil {
		client = http.DefaultClient
	}
	return &DuckDuckGo{endpoint: endpoint, client: client}
}

func (d *DuckDuckGo) Name() string { return "duckduckgo" }

func (d *DuckDuckGo) Search(ctx context.Context, query string, n int) ([]Result, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, apperr.Validation("empty search query")
	}
	if n <= 0 {
		n = DefaultResults
	}

	form := url.Values{}
	form.Set("q", query)
	form.Set("kl", "wt-wt")
	form.Set("kp", "-1")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("create search request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("User-Agent", browserUserAgent)

	res, err := d.client.Do(req)
	if err != nil {
		return nil, apperr.Upstream(err, "web search")
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(res.Body, 1<<10))
		return nil, apperr.Upstream(fmt.Errorf("status %d: %s", res.StatusCode, strings.TrimSpace(string(body))), "web search")
	}

	doc, err := html.Parse(res.Body)
	if err != nil {
		return nil, apperr.Upstream(err, "parse search results")
	}
	return parseResults(doc, n), nil
}

// parseResults collects result__a links and their result__snippet siblings.
func parseResults(doc *html.Node, n int) []Result {
	var out []Result
	var visit func(*html.Node)
	visit = func(node *html.Node) {
		if len(out) >= n {
			return
		}
		if node.Type == html.ElementNode && hasClass(node, "result") && !hasClass(node, "result--ad") {
			if r, ok := parseResult(node); ok {
				out = append(out, r)
			}
			return
		}
		for c := node.FirstChild; c != nil; c = c.NextSibling {
			visit(c)
		}
	}
	visit(doc)
	return out
}

func parseResult(node *html.Node) (Result, bool) {
	var r Result
	var visit func(*html.Node)
	visit = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch {
			case hasClass(n, "result__a") && r.URL == "":
				r.Title = htmltext.NodeText(n)
				r.URL = decodeResultURL(attr(n, "href"))
			case hasClass(n, "result__snippet") && r.Snippet == "":
				r.Snippet = htmltext.NodeText(n)
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			visit(c)
		}
	}
	visit(node)
	return r, r.URL != ""
}

// decodeResultURL unwraps //duckduckgo.com/l/?uddg=<target> redirect links.
func decodeResultURL(href string) string {
	href = strings.TrimSpace(href)
	if href == "" {
		return ""
	}
	if strings.HasPrefix(href, "//") {
		href = "https:" + href
	}
	u, err := url.Parse(href)
	if err != nil {
		return href
	}
	if target := u.Query().Get("uddg"); target != "" {
		return target
	}
	return href
}

func hasClass(n *html.Node, class string) bool {
	for _, f := range strings.Fields(attr(n, "class")) {
		if f == class {
			return true
		}
	}
	return false
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}
