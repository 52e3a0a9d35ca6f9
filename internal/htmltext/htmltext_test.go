package htmltext

import (
	"strings"
	"testing"

	"golang.org/x/net/html"
)

func TestExtractSkipsNoise(t *testing.T) {
	src := `<html><head><title>T</title><style>p{}</style></head>
<body><nav>menu</nav><h1>Nagłówek</h1><p>Pierwszy   akapit
z łamaniem.</p><script>alert(1)</script><!-- c --><ul><li>a</li><li>b</li></ul></body></html>`

	got, err := Extract(strings.NewReader(src))
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	want := "Nagłówek\nPierwszy akapit z łamaniem.\na\nb"
	if got != want {
		t.Fatalf("Extract() = %q, want %q", got, want)
	}
}

func TestTitleAndNodeText(t *testing.T) {
	doc, err := html.Parse(strings.NewReader(`<html><head><title> Strona </title></head><body><a> x <b>y</b></a></body></html>`))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if got := Title(doc); got != "Strona" {
		t.Fatalf("Title() = %q, want %q", got, "Strona")
	}
	if got := NodeText(doc); got != "x y" {
		t.Fatalf("NodeText() = %q, want %q", got, "x y")
	}
}

func TestExtractKeepsInlineMarkupTogether(t *testing.T) {
	src := `<p>Documentation for <b>Go</b>. See <a href="#">docs</a>, now</p><p>un<i>believ</i>able</p>`

	got, err := Extract(strings.NewReader(src))
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	want := "Documentation for Go. See docs, now\nunbelievable"
	if got != want {
		t.Fatalf("Extract() = %q, want %q", got, want)
	}

	doc, err := html.Parse(strings.NewReader(`<a>Documentation for <b>Go</b>.</a>`))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if got := NodeText(doc); got != "Documentation for Go." {
		t.Fatalf("NodeText() = %q, want %q", got, "Documentation for Go.")
	}
}
