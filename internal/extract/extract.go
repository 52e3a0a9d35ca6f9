// Package extract turns uploaded documents into plain text.
package extract

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/gobwas/glob"
	"github.com/pdfcpu/pdfcpu/pkg/api"

	"github.com/ent0n29/cheapchat/internal/apperr"
	"github.com/ent0n29/cheapchat/internal/htmltext"
)

const (
	DefaultOCRLang = "pol+eng"
	DefaultOCRDPI  = 250
)

type format int

const (
	formatPlain format = iota
	formatPDF
	formatDOCX
	formatODT
	formatHTML
)

var routes = []struct {
	pattern glob.Glob
	format  format
}{
	{glob.MustCompile("*.pdf"), formatPDF},
	{glob.MustCompile("*.{docx,doc}"), formatDOCX},
	{glob.MustCompile("*.odt"), formatODT},
	{glob.MustCompile("*.{html,htm,xhtml}"), formatHTML},
}

func detect(path string) format {
	name := strings.ToLower(filepath.Base(path))
	for _, r := range routes {
		if r.pattern.Match(name) {
			return r.format
		}
	}
	return formatPlain
}

// Extractor shells out to poppler and tesseract for PDFs and images.
type Extractor struct {
	PDFToText string
	PDFToPPM  string
	Tesseract string
}

func New(pdftotext, pdftoppm, tesseract string) *Extractor {
	return &Extractor{
		PDFToText: orDefault(pdftotext, "pdftotext"),
		PDFToPPM:  orDefault(pdftoppm, "pdftoppm"),
		Tesseract: orDefault(tesseract, "tesseract"),
	}
}

// Text extracts the text layer of the file at path, routed by extension.
func (e *Extractor) Text(ctx context.Context, path string) (string, error) {
	var (
		text string
		err  error
	)
	switch detect(path) {
	case formatPDF:
		text, err = e.run(ctx, e.PDFToText, "-layout", "-enc", "UTF-8", path, "-")
	case formatDOCX:
		text, err = docxText(path)
	case formatODT:
		text, err = odtText(path)
	case formatHTML:
		text, err = htmlText(path)
	default:
		var raw []byte
		raw, err = os.ReadFile(path)
		text = strings.ToValidUTF8(string(raw), "")
	}
	if err != nil {
		return "", apperr.Upstream(err, "text extraction failed")
	}
	return text, nil
}

// OCR renders PDF pages with pdftoppm and runs tesseract on each page, or
// runs tesseract directly on an image.
func (e *Extractor) OCR(ctx context.Context, path, lang string, dpi int) (string, error) {
	if lang == "" {
		lang = DefaultOCRLang
	}
	if dpi <= 0 {
		dpi = DefaultOCRDPI
	}

	if detect(path) != formatPDF {
		text, err := e.run(ctx, e.Tesseract, path, "stdout", "-l", lang)
		if err != nil {
			return "", apperr.Upstream(err, "OCR failed")
		}
		return text, nil
	}

	dir, err := os.MkdirTemp("", "cheapchat-ocr-")
	if err != nil {
		return "", fmt.Errorf("create ocr dir: %w", err)
	}
	defer os.RemoveAll(dir)

	if _, err := e.run(ctx, e.PDFToPPM, "-r", strconv.Itoa(dpi), "-png", path, filepath.Join(dir, "page")); err != nil {
		return "", apperr.Upstream(err, "OCR failed")
	}
	pages, err := filepath.Glob(filepath.Join(dir, "page*.png"))
	if err != nil {
		return "", fmt.Errorf("list ocr pages: %w", err)
	}
	sort.Strings(pages)

	texts := make([]string, 0, len(pages))
	for _, p := range pages {
		t, err := e.run(ctx, e.Tesseract, p, "stdout", "-l", lang)
		if err != nil {
			return "", apperr.Upstream(err, "OCR failed")
		}
		texts = append(texts, t)
	}
	return strings.Join(texts, "\n\n"), nil
}

// PageCount returns the number of pages of a PDF, or 0 for other files.
func PageCount(path string) (int, error) {
	if detect(path) != formatPDF {
		return 0, nil
	}
	n, err := api.PageCountFile(path)
	if err != nil {
		return 0, fmt.Errorf("count pdf pages: %w", err)
	}
	return n, nil
}

func (e *Extractor) run(ctx context.Context, bin string, args ...string) (string, error) {
	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, bin, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg != "" {
			return "", fmt.Errorf("%s: %w: %s", filepath.Base(bin), err, msg)
		}
		return "", fmt.Errorf("%s: %w", filepath.Base(bin), err)
	}
	return strings.ToValidUTF8(stdout.String(), ""), nil
}

func htmlText(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	return htmltext.Extract(f)
}

func orDefault(v, def string) string {
	if v = strings.TrimSpace(v); v != "" {
		return v
	}
	return def
}
