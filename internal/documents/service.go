package documents

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/ent0n29/cheapchat/internal/apperr"
	"github.com/ent0n29/cheapchat/internal/extract"
	"github.com/ent0n29/cheapchat/internal/store"
	"github.com/ent0n29/cheapchat/internal/tempfiles"
)

const (
	DefaultMaxChars = 50000

	minOCRDPI = 72
	maxOCRDPI = 600
)

var (
	ocrLangPattern = regexp.MustCompile(`^[a-z_+]+$`)
	suffixPattern  = regexp.MustCompile(`^\.[a-z0-9]{1,8}$`)
)

// Extractor is the subset of extract.Extractor the service needs.
type Extractor interface {
	Text(ctx context.Context, path string) (string, error)
	OCR(ctx context.Context, path, lang string, dpi int) (string, error)
}

// Info describes an uploaded document for API responses.
type Info struct {
	ID        string    `json:"id"`
	URL       string    `json:"url"`
	Name      string    `json:"name"`
	Mime      string    `json:"mime"`
	Size      int64     `json:"size"`
	Pages     int       `json:"pages,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Service stores uploads as transient files with a metadata record. When a
// document's file expires its record is deleted too.
type Service struct {
	store     store.DocumentStore
	registry  *tempfiles.Registry
	extractor Extractor
	dir       string
	maxChars  int
}

func NewService(st store.DocumentStore, reg *tempfiles.Registry, ex Extractor, dir string, maxChars int) (*Service, error) {
	if strings.TrimSpace(dir) == "" {
		dir = filepath.Join(os.TempDir(), "cheapchat")
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("create temp dir: %w", err)
	}
	if maxChars <= 0 {
		maxChars = DefaultMaxChars
	}

	s := &Service{store: st, registry: reg, extractor: ex, dir: dir, maxChars: maxChars}
	reg.SetExpireHook(s.onExpire)
	if err := s.purgeOrphans(context.Background()); err != nil {
		return nil, err
	}
	return s, nil
}

// purgeOrphans drops records left behind by a previous process. Their files
// are no longer tracked by the registry, so they can never be served again.
func (s *Service) purgeOrphans(ctx context.Context) error {
	docs, err := s.store.ListDocuments(ctx)
	if err != nil {
		return fmt.Errorf("list documents: %w", err)
	}
	purged := 0
	for _, d := range docs {
		if s.registry.Has(d.ID) {
			continue
		}
		if err := s.store.DeleteDocument(ctx, d.ID); err != nil {
			return fmt.Errorf("purge document %s: %w", d.ID, err)
		}
		if d.Filename != "" {
			_ = os.Remove(filepath.Join(s.dir, filepath.Base(d.Filename)))
		}
		purged++
	}
	if purged > 0 {
		log.Printf("documents: purged %d stale records", purged)
	}
	return nil
}

func (s *Service) onExpire(e tempfiles.Entry) {
	if !e.IsDocument {
		return
	}
	if err := s.store.DeleteDocument(context.Background(), e.ID); err != nil {
		log.Printf("documents: delete expired record %s: %v", e.ID, err)
	}
}

// TempURL is the download path of a transient file.
func TempURL(id string) string {
	return "/api/temp/" + id
}

func newID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

func safeSuffix(name string) string {
	ext := strings.ToLower(filepath.Ext(filepath.Base(name)))
	if !suffixPattern.MatchString(ext) {
		return ""
	}
	return ext
}

func (s *Service) writeFile(id, suffix string, r io.Reader) (string, int64, error) {
	path := filepath.Join(s.dir, id+suffix)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
	if err != nil {
		return "", 0, fmt.Errorf("create temp file: %w", err)
	}
	n, err := io.Copy(f, r)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(path)
		return "", 0, fmt.Errorf("write temp file: %w", err)
	}
	return path, n, nil
}

// Upload stores one document and schedules its expiry.
func (s *Service) Upload(ctx context.Context, name, mime string, r io.Reader) (Info, error) {
	name = strings.TrimSpace(filepath.Base(name))
	if name == "" || name == "." || name == string(filepath.Separator) {
		return Info{}, apperr.Validation("missing file name")
	}

	id := newID()
	path, size, err := s.writeFile(id, safeSuffix(name), r)
	if err != nil {
		return Info{}, err
	}

	doc := store.Document{
		ID:        id,
		Filename:  filepath.Base(path),
		OrigName:  name,
		Mime:      mime,
		Size:      size,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.store.CreateDocument(ctx, doc); err != nil {
		_ = os.Remove(path)
		return Info{}, err
	}
	s.registry.Register(id, path, mime, true)

	info := toInfo(doc)
	if n, err := extract.PageCount(path); err != nil {
		log.Printf("documents: page count %s: %v", name, err)
	} else {
		info.Pages = n
	}
	return info, nil
}

func toInfo(d store.Document) Info {
	return Info{
		ID:        d.ID,
		URL:       TempURL(d.ID),
		Name:      d.OrigName,
		Mime:      d.Mime,
		Size:      d.Size,
		CreatedAt: d.CreatedAt,
	}
}

// List returns documents whose transient file is still live.
func (s *Service) List(ctx context.Context) ([]Info, error) {
	docs, err := s.store.ListDocuments(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]Info, 0, len(docs))
	for _, d := range docs {
		if s.registry.Has(d.ID) {
			out = append(out, toInfo(d))
		}
	}
	return out, nil
}

// Delete removes a live document's file and record.
func (s *Service) Delete(ctx context.Context, id string) error {
	if !s.registry.Remove(id) {
		return apperr.NotFound("file %s", id)
	}
	return s.store.DeleteDocument(ctx, id)
}

// Open resolves a live transient file whose content is still on disk.
func (s *Service) Open(id string) (tempfiles.Entry, error) {
	e, err := s.registry.Resolve(id)
	if err != nil {
		return tempfiles.Entry{}, err
	}
	if _, err := os.Stat(e.Path); errors.Is(err, os.ErrNotExist) {
		return tempfiles.Entry{}, apperr.NotFound("file %s", id)
	}
	return e, nil
}

func (s *Service) Text(ctx context.Context, id string) (string, error) {
	e, err := s.Open(id)
	if err != nil {
		return "", err
	}
	return s.extractor.Text(ctx, e.Path)
}

func (s *Service) OCR(ctx context.Context, id, lang string, dpi int) (string, error) {
	lang = strings.TrimSpace(lang)
	if lang == "" {
		lang = extract.DefaultOCRLang
	}
	if !ocrLangPattern.MatchString(lang) {
		return "", apperr.Validation("invalid OCR language %q", lang)
	}
	if dpi == 0 {
		dpi = extract.DefaultOCRDPI
	}
	if dpi < minOCRDPI || dpi > maxOCRDPI {
		return "", apperr.Validation("dpi must be between %d and %d", minOCRDPI, maxOCRDPI)
	}

	e, err := s.Open(id)
	if err != nil {
		return "", err
	}
	return s.extractor.OCR(ctx, e.Path, lang, dpi)
}

// BlockText renders a document as a model context block with a name header,
// capped at the configured number of runes. Empty documents yield "".
func (s *Service) BlockText(ctx context.Context, id string) (string, error) {
	text, err := s.Text(ctx, id)
	if err != nil {
		return "", err
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return "", nil
	}

	name := id
	if d, err := s.store.GetDocument(ctx, id); err == nil && d.OrigName != "" {
		name = d.OrigName
	}
	if utf8.RuneCountInString(text) > s.maxChars {
		text = string([]rune(text)[:s.maxChars]) + "\n[...]"
	}
	return fmt.Sprintf("Dokument: %s\n\n%s", name, text), nil
}

// SaveArtifact stores generated content (not a document) as a transient file.
func (s *Service) SaveArtifact(data []byte, suffix, mime string) (tempfiles.Entry, error) {
	id := newID()
	path, _, err := s.writeFile(id, suffix, bytes.NewReader(data))
	if err != nil {
		return tempfiles.Entry{}, err
	}
	return s.registry.Register(id, path, mime, false), nil
}
