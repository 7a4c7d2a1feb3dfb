package importer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"mime"
	"path"
	"strings"
	"time"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"foiahub/pkg/domain"
)

const (
	// ManifestName is the batch manifest file inside each date directory.
	ManifestName = "manifest.yaml"
	// TextName holds the extracted text of a document.
	TextName = "record.txt"

	documentDateLayout = "20060102"
	isoDateLayout      = "2006-01-02"
)

// Details is the document metadata block of a manifest entry.
type Details struct {
	Title        string `yaml:"title"`
	DocumentDate string `yaml:"document_date"`
	FileType     string `yaml:"file_type"`
	DateCreated  string `yaml:"date_created"`
	DateReleased string `yaml:"date_released"`
	Pages        int    `yaml:"pages"`
}

// Entry is one manifest item.
type Entry struct {
	DocLocation string  `yaml:"doc_location"`
	Document    Details `yaml:"document"`
}

// Record is a manifest entry resolved against the archive.
type Record struct {
	Batch       string
	DocLocation string
	Details     Details
	// FilePath is the archive path of the original file, record.<file_type>.
	FilePath string
	Text     string
}

// Manifest parses the manifest of batch dir and returns it with the batch's
// archive path.
func (imp *Importer) Manifest(ctx context.Context, dir string) ([]Entry, string, error) {
	base := imp.source.Join(imp.prefix(), dir)
	raw, err := imp.source.ReadFile(ctx, imp.source.Join(base, ManifestName))
	if err != nil {
		return nil, base, fmt.Errorf("read manifest: %w", err)
	}
	var entries []Entry
	if err := yaml.Unmarshal(raw, &entries); err != nil {
		return nil, base, fmt.Errorf("parse manifest %s: %w", base, err)
	}
	return entries, base, nil
}

// TextContent returns the text file at p. A missing file yields an empty
// string so documents without extracted text still import.
func (imp *Importer) TextContent(ctx context.Context, p string) (string, error) {
	raw, err := imp.source.ReadFile(ctx, p)
	if errors.Is(err, fs.ErrNotExist) {
		imp.logger.Warn("document has no text content", zap.String("path", p))
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("read text %s: %w", p, err)
	}
	return string(raw), nil
}

// Documents resolves every manifest entry of batch dir into a Record.
func (imp *Importer) Documents(ctx context.Context, dir string) ([]Record, error) {
	entries, base, err := imp.Manifest(ctx, dir)
	if err != nil {
		return nil, err
	}
	records := make([]Record, 0, len(entries))
	for i, e := range entries {
		if e.DocLocation == "" {
			return nil, fmt.Errorf("manifest %s entry %d: doc_location required", base, i)
		}
		if !isSegment(e.DocLocation) {
			return nil, fmt.Errorf("manifest %s entry %d: doc_location %q must be a single directory name", base, i, e.DocLocation)
		}
		if ft := strings.TrimPrefix(e.Document.FileType, "."); ft != "" && !isSegment(ft) {
			return nil, fmt.Errorf("manifest %s entry %d: invalid file_type %q", base, i, e.Document.FileType)
		}
		docDir := imp.source.Join(base, e.DocLocation)
		text, err := imp.TextContent(ctx, imp.source.Join(docDir, TextName))
		if err != nil {
			return nil, err
		}
		records = append(records, Record{
			Batch:       dir,
			DocLocation: e.DocLocation,
			Details:     e.Document,
			FilePath:    imp.source.Join(docDir, "record."+strings.TrimPrefix(e.Document.FileType, ".")),
			Text:        text,
		})
	}
	return records, nil
}

// BasicDocument builds the document record for rec released by agency,
// without touching its file.
func (imp *Importer) BasicDocument(rec Record, agency string) (domain.Document, error) {
	d := rec.Details
	doc := domain.Document{
		Title:             d.Title,
		ReleaseAgencySlug: agency,
		ReleaseOfficeSlug: imp.office,
		BatchDirectory:    rec.Batch,
		DocLocation:       rec.DocLocation,
		Text:              rec.Text,
		Pages:             d.Pages,
		FileType:          strings.ToLower(strings.TrimPrefix(d.FileType, ".")),
	}
	var err error
	if doc.DocumentDate, err = parseDate(documentDateLayout, d.DocumentDate); err != nil {
		return domain.Document{}, fmt.Errorf("document_date: %w", err)
	}
	if doc.DateCreated, err = parseDate(isoDateLayout, d.DateCreated); err != nil {
		return domain.Document{}, fmt.Errorf("date_created: %w", err)
	}
	if doc.DateReleased, err = parseDate(isoDateLayout, d.DateReleased); err != nil {
		return domain.Document{}, fmt.Errorf("date_released: %w", err)
	}
	if doc.FileType != "" {
		doc.ContentType = mime.TypeByExtension("." + doc.FileType)
	}
	return doc, nil
}

// CreateDocument returns the basic document for rec together with the name
// and an open reader of its original file. The caller closes the reader.
func (imp *Importer) CreateDocument(ctx context.Context, rec Record, agency string) (domain.Document, string, io.ReadCloser, error) {
	doc, err := imp.BasicDocument(rec, agency)
	if err != nil {
		return domain.Document{}, "", nil, fmt.Errorf("%s: %w", rec.FilePath, err)
	}
	file, size, err := imp.source.Open(ctx, rec.FilePath)
	if err != nil {
		return domain.Document{}, "", nil, fmt.Errorf("open document file: %w", err)
	}
	doc.FileSize = size
	return doc, path.Base(rec.FilePath), file, nil
}

func parseDate(layout, value string) (*time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, nil
	}
	t, err := time.Parse(layout, value)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// isSegment reports whether name addresses exactly one entry inside its batch.
func isSegment(name string) bool {
	if name == "." || name == ".." || strings.ContainsAny(name, `/\`) {
		return false
	}
	return path.Base(name) == name
}
