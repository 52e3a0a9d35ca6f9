// Package htmltext reduces HTML documents to their visible text.
package htmltext

import (
	"fmt"
	"io"
	"strings"
	"unicode"

	"golang.org/x/net/html"
)

// Extract returns the visible text of an HTML document with block elements
// separated by newlines and runs of whitespace collapsed.
func Extract(r io.Reader) (string, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return "", fmt.Errorf("failed to parse HTML: %w", err)
	}

	var b strings.Builder
	walk(doc, &b)
	return normalize(b.String()), nil
}

// Title returns the document <title>, if any.
func Title(n *html.Node) string {
	if n.Type == html.ElementNode && strings.EqualFold(n.Data, "title") && n.FirstChild != nil {
		return strings.TrimSpace(n.FirstChild.Data)
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if t := Title(c); t != "" {
			return t
		}
	}
	return ""
}

// NodeText returns the concatenated text below n.
func NodeText(n *html.Node) string {
	var b strings.Builder
	walk(n, &b)
	return strings.Join(strings.Fields(b.String()), " ")
}

func walk(n *html.Node, b *strings.Builder) {
	switch n.Type {
	case html.CommentNode:
		return
	case html.TextNode:
		// Inline markup must not split words; collapsing happens afterwards.
		b.WriteString(strings.Map(spaceOnly, n.Data))
		return
	case html.ElementNode:
		tag := strings.ToLower(n.Data)
		if isSkipped(tag) {
			return
		}
		if isBlock(tag) {
			b.WriteByte('\n')
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		walk(c, b)
	}
	if n.Type == html.ElementNode && isBlock(strings.ToLower(n.Data)) {
		b.WriteByte('\n')
	}
}

func spaceOnly(r rune) rune {
	if unicode.IsSpace(r) {
		return ' '
	}
	return r
}

func normalize(s string) string {
	lines := strings.Split(s, "\n")
	out := make([]string, 0, len(lines))
	for _, l := range lines {
		if l = strings.Join(strings.Fields(l), " "); l != "" {
			out = append(out, l)
		}
	}
	return strings.Join(out, "\n")
}

func isSkipped(tag string) bool {
	switch tag {
	case "script", "style", "noscript", "template", "svg", "iframe", "head", "nav", "footer", "form", "button":
		return true
	}
	return false
}

func isBlock(tag string) bool {
	switch tag {
	case "p", "div", "section", "article", "main", "header", "aside", "ul", "ol", "li",
		"table", "tr", "td", "th", "dt", "dd", "h1", "h2", "h3", "h4", "h5", "h6", "pre", "blockquote", "br", "hr":
		return true
	}
	return false
}
