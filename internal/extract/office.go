package extract

import (
	"archive/zip"
	"encoding/xml"
	"fmt"
	"io"
	"strings"
)

// docxText reads paragraphs from word/document.xml.
func docxText(path string) (string, error) {
	return zipXMLText(path, "word/document.xml", func(dec *xml.Decoder) (string, error) {
		var (
			b      strings.Builder
			inText bool
		)
		for {
			tok, err := dec.Token()
			if err == io.EOF {
				break
			}
			if err != nil {
				return "", err
			}
			switch t := tok.(type) {
			case xml.StartElement:
				switch t.Name.Local {
				case "t":
					inText = true
				case "tab":
					b.WriteByte('\t')
				case "br", "cr":
					b.WriteByte('\n')
				}
			case xml.EndElement:
				switch t.Name.Local {
				case "t":
					inText = false
				case "p":
					b.WriteByte('\n')
				}
			case xml.CharData:
				if inText {
					b.Write(t)
				}
			}
		}
		return strings.TrimRight(b.String(), "\n"), nil
	})
}

// odtText reads text:p and text:h paragraphs from content.xml.
func odtText(path string) (string, error) {
	return zipXMLText(path, "content.xml", func(dec *xml.Decoder) (string, error) {
		var (
			b     strings.Builder
			depth int
		)
		for {
			tok, err := dec.Token()
			if err == io.EOF {
				break
			}
			if err != nil {
				return "", err
			}
			switch t := tok.(type) {
			case xml.StartElement:
				switch t.Name.Local {
				case "p", "h":
					depth++
				case "s":
					if depth > 0 {
						b.WriteByte(' ')
					}
				case "tab":
					if depth > 0 {
						b.WriteByte('\t')
					}
				case "line-break":
					if depth > 0 {
						b.WriteByte('\n')
					}
				}
			case xml.EndElement:
				if t.Name.Local == "p" || t.Name.Local == "h" {
					depth--
					if depth == 0 {
						b.WriteByte('\n')
					}
				}
			case xml.CharData:
				if depth > 0 {
					b.Write(t)
				}
			}
		}
		return strings.TrimRight(b.String(), "\n"), nil
	})
}

func zipXMLText(path, member string, read func(*xml.Decoder) (string, error)) (string, error) {
	zr, err := zip.OpenReader(path)
	if err != nil {
		return "", fmt.Errorf("open archive: %w", err)
	}
	defer zr.Close()

	for _, f := range zr.File {
		if f.Name != member {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return "", fmt.Errorf("open %s: %w", member, err)
		}
		defer rc.Close()
		return read(xml.NewDecoder(rc))
	}
	return "", fmt.Errorf("archive has no %s", member)
}
