package extract

import (
	"archive/zip"
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/ent0n29/cheapchat/internal/apperr"
)

func writeZip(t *testing.T, path string, files map[string]string) {
	t.Helper()
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	zw := zip.NewWriter(f)
	for name, body := range files {
		w, err := zw.Create(name)
		if err != nil {
			t.Fatalf("zip Create() error = %v", err)
		}
		if _, err := w.Write([]byte(body)); err != nil {
			t.Fatalf("zip Write() error = %v", err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("zip Close() error = %v", err)
	}
	_ = f.Close()
}

func writeScript(t *testing.T, dir, name, body string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	if err := os.WriteFile(p, []byte("#!/bin/sh\n"+body+"\n"), 0o755); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	return p
}

func TestDetect(t *testing.T) {
	cases := map[string]format{
		"a.PDF":          formatPDF,
		"/tmp/x.docx":    formatDOCX,
		"notes.odt":      formatODT,
		"page.HTM":       formatHTML,
		"readme.md":      formatPlain,
		"archive.tar.gz": formatPlain,
	}
	for name, want := range cases {
		if got := detect(name); got != want {
			t.Fatalf("detect(%q) = %d, want %d", name, got, want)
		}
	}
}

func TestTextPlainDropsInvalidUTF8(t *testing.T) {
	p := filepath.Join(t.TempDir(), "notes.txt")
	if err := os.WriteFile(p, []byte("zażółć\xff gęślą"), 0o600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	got, err := New("", "", "").Text(context.Background(), p)
	if err != nil {
		t.Fatalf("Text() error = %v", err)
	}
	if got != "zażółć gęślą" {
		t.Fatalf("Text() = %q", got)
	}
}

func TestTextDOCX(t *testing.T) {
	p := filepath.Join(t.TempDir(), "doc.docx")
	writeZip(t, p, map[string]string{
		"word/document.xml": `<?xml version="1.0"?>
<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main"><w:body>
<w:p><w:r><w:t>Pierwszy</w:t></w:r><w:r><w:tab/><w:t xml:space="preserve"> akapit</w:t></w:r></w:p>
<w:p><w:r><w:t>Drugi</w:t></w:r></w:p>
</w:body></w:document>`,
	})

	got, err := New("", "", "").Text(context.Background(), p)
	if err != nil {
		t.Fatalf("Text() error = %v", err)
	}
	if got != "Pierwszy\t akapit\nDrugi" {
		t.Fatalf("Text() = %q", got)
	}
}

func TestTextODT(t *testing.T) {
	p := filepath.Join(t.TempDir(), "doc.odt")
	writeZip(t, p, map[string]string{
		"content.xml": `<?xml version="1.0"?>
<office:document-content xmlns:office="urn:oasis:names:tc:opendocument:xmlns:office:1.0" xmlns:text="urn:oasis:names:tc:opendocument:xmlns:text:1.0">
<office:body><office:text>
<text:h>Tytuł</text:h>
<text:p>Ala <text:span>ma</text:span><text:s/>kota</text:p>
</office:text></office:body></office:document-content>`,
	})

	got, err := New("", "", "").Text(context.Background(), p)
	if err != nil {
		t.Fatalf("Text() error = %v", err)
	}
	if got != "Tytuł\nAla ma kota" {
		t.Fatalf("Text() = %q", got)
	}
}

func TestTextHTML(t *testing.T) {
	p := filepath.Join(t.TempDir(), "page.html")
	if err := os.WriteFile(p, []byte(`<html><body><script>x</script><p>Hello</p></body></html>`), 0o600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	got, err := New("", "", "").Text(context.Background(), p)
	if err != nil {
		t.Fatalf("Text() error = %v", err)
	}
	if got != "Hello" {
		t.Fatalf("Text() = %q, want Hello", got)
	}
}

func TestTextBrokenArchiveIsUpstream(t *testing.T) {
	p := filepath.Join(t.TempDir(), "broken.docx")
	if err := os.WriteFile(p, []byte("not a zip"), 0o600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	if _, err := New("", "", "").Text(context.Background(), p); !errors.Is(err, apperr.ErrUpstream) {
		t.Fatalf("Text() error = %v, want ErrUpstream", err)
	}
}

func TestPDFToolsPipeline(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("shell scripts")
	}
	dir := t.TempDir()
	e := New(
		writeScript(t, dir, "pdftotext", `echo "text of $(basename "$4")"`),
		writeScript(t, dir, "pdftoppm", `touch "$5-1.png" "$5-2.png"`),
		writeScript(t, dir, "tesseract", `printf "ocr %s %s" "$(basename "$1")" "$4"`),
	)
	pdf := filepath.Join(dir, "scan.pdf")
	if err := os.WriteFile(pdf, []byte("%PDF-1.4"), 0o600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	text, err := e.Text(context.Background(), pdf)
	if err != nil {
		t.Fatalf("Text() error = %v", err)
	}
	if text != "text of scan.pdf\n" {
		t.Fatalf("Text() = %q", text)
	}

	ocr, err := e.OCR(context.Background(), pdf, "eng", 150)
	if err != nil {
		t.Fatalf("OCR() error = %v", err)
	}
	if ocr != "ocr page-1.png eng\n\nocr page-2.png eng" {
		t.Fatalf("OCR() = %q", ocr)
	}

	img := filepath.Join(dir, "photo.png")
	if err := os.WriteFile(img, []byte("png"), 0o600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	ocr, err = e.OCR(context.Background(), img, "", 0)
	if err != nil {
		t.Fatalf("OCR(image) error = %v", err)
	}
	if ocr != "ocr photo.png pol+eng" {
		t.Fatalf("OCR(image) = %q", ocr)
	}
}

func TestMissingToolIsUpstream(t *testing.T) {
	e := New(filepath.Join(t.TempDir(), "no-such-pdftotext"), "", "")
	if _, err := e.Text(context.Background(), "x.pdf"); !errors.Is(err, apperr.ErrUpstream) {
		t.Fatalf("Text() error = %v, want ErrUpstream", err)
	}
}

func TestPageCountNonPDF(t *testing.T) {
	n, err := PageCount("notes.txt")
	if err != nil || n != 0 {
		t.Fatalf("PageCount() = %d, %v; want 0, nil", n, err)
	}
}
