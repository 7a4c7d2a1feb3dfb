// Package importer ingests released-document archives into the document store.
//
// An Importer processes one agency (or one office of an agency). Each date
// directory is a batch: its manifest lists the documents, every document file
// is copied into blob storage and the document records are written together
// with the batch's ImportLog in a single transaction. Batches that already
// have an ImportLog are skipped, so re-running an import is a no-op.
package importer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"foiahub/internal/archive"
	"foiahub/internal/blob"
	"foiahub/internal/metrics"
	"foiahub/pkg/domain"
)

var (
	// ErrUnknownAgency is returned when the importer's agency is not in the store.
	ErrUnknownAgency = errors.New("importer: unknown agency")
	// ErrUnknownOffice is returned when the importer's office is not in the store.
	ErrUnknownOffice = errors.New("importer: unknown office")
)

// Importer walks the archive directory of a single agency or office.
type Importer struct {
	source  archive.Source
	store   domain.PersistentStore
	blobs   blob.Store
	agency  string
	office  string
	logger  *zap.Logger
	metrics *metrics.Importer
	now     func() time.Time
}

// Option configures an Importer.
type Option func(*Importer)

// WithLogger sets the logger; the default discards output.
func WithLogger(l *zap.Logger) Option {
	return func(imp *Importer) {
		if l != nil {
			imp.logger = l
		}
	}
}

// WithMetrics records batch outcomes on m.
func WithMetrics(m *metrics.Importer) Option {
	return func(imp *Importer) { imp.metrics = m }
}

// WithClock overrides time.Now for batch timing.
func WithClock(now func() time.Time) Option {
	return func(imp *Importer) {
		if now != nil {
			imp.now = now
		}
	}
}

// New returns an importer for the agency directory named agency.
func New(source archive.Source, store domain.PersistentStore, blobs blob.Store, agency string, opts ...Option) *Importer {
	imp := &Importer{
		source: source,
		store:  store,
		blobs:  blobs,
		agency: agency,
		logger: zap.NewNop(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(imp)
	}
	imp.logger = imp.logger.With(zap.String("agency", agency))
	return imp
}

// Agency returns the agency slug being imported.
func (imp *Importer) Agency() string { return imp.agency }

// Office returns the office slug, empty for an agency-level importer.
func (imp *Importer) Office() string { return imp.office }

// NewProcessor returns a child importer for an office of the same agency.
func (imp *Importer) NewProcessor(office string) *Importer {
	child := *imp
	child.office = office
	child.logger = imp.logger.With(zap.String("office", office))
	return &child
}

// prefix is the archive directory holding this importer's date batches.
func (imp *Importer) prefix() string {
	if imp.office == "" {
		return imp.source.Join(imp.agency)
	}
	return imp.source.Join(imp.agency, imp.office)
}

// ImportDocs imports every unprocessed date batch of the agency (or office),
// then descends into the agency's office directories.
func (imp *Importer) ImportDocs(ctx context.Context) error {
	if err := imp.checkTarget(ctx); err != nil {
		return err
	}
	dates, err := imp.DateDirectories(ctx)
	if err != nil {
		return err
	}
	for _, dir := range dates {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := imp.importBatch(ctx, dir); err != nil {
			return err
		}
	}
	offices, err := imp.OfficeDirectories(ctx)
	if err != nil {
		return err
	}
	var errs []error
	for _, office := range offices {
		if err := imp.NewProcessor(office).ImportDocs(ctx); err != nil {
			errs = append(errs, fmt.Errorf("office %s: %w", office, err))
		}
	}
	return errors.Join(errs...)
}

func (imp *Importer) checkTarget(ctx context.Context) error {
	return imp.store.View(ctx, func(v domain.TransactionView) error {
		if _, ok := v.FindAgency(imp.agency); !ok {
			return fmt.Errorf("%w: %s", ErrUnknownAgency, imp.agency)
		}
		if imp.office == "" {
			return nil
		}
		if _, ok := v.FindOffice(domain.OfficeGlobalSlug(imp.agency, imp.office)); !ok {
			return fmt.Errorf("%w: %s", ErrUnknownOffice, domain.OfficeGlobalSlug(imp.agency, imp.office))
		}
		return nil
	})
}

// importBatch copies the batch's files into blob storage, then writes the
// documents and the ImportLog atomically.
func (imp *Importer) importBatch(ctx context.Context, dir string) error {
	log := imp.logger.With(zap.String("batch", dir))
	todo, err := imp.Unprocessed(ctx, dir)
	if err != nil {
		return err
	}
	if !todo {
		log.Debug("batch already imported")
		imp.metrics.Batch(imp.agency, "skipped", 0)
		return nil
	}
	started := imp.now()
	docs, err := imp.stageBatch(ctx, dir)
	if err == nil {
		_, err = imp.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
			if tx.HasImport(imp.agency, imp.office, dir) {
				return domain.ErrConflict{Entity: domain.EntityImportLog, ID: domain.ImportLogKey(imp.agency, imp.office, dir)}
			}
			for _, doc := range docs {
				if _, err := tx.UpsertDocument(doc); err != nil {
					return err
				}
			}
			_, err := tx.RecordImport(domain.ImportLog{AgencySlug: imp.agency, OfficeSlug: imp.office, Directory: dir})
			return err
		})
	}
	elapsed := imp.now().Sub(started)
	if err != nil {
		var conflict domain.ErrConflict
		if errors.As(err, &conflict) && conflict.Entity == domain.EntityImportLog {
			log.Info("batch imported concurrently")
			imp.metrics.Batch(imp.agency, "skipped", 0)
			return nil
		}
		imp.metrics.Batch(imp.agency, "failed", elapsed)
		log.Error("batch import failed", zap.Error(err))
		return fmt.Errorf("import %s: %w", imp.source.Join(imp.prefix(), dir), err)
	}
	imp.metrics.Batch(imp.agency, "imported", elapsed)
	imp.metrics.Documents(imp.agency, len(docs))
	log.Info("batch imported", zap.Int("documents", len(docs)), zap.Duration("elapsed", elapsed))
	return nil
}

// stageBatch builds the batch's documents and stores their files.
func (imp *Importer) stageBatch(ctx context.Context, dir string) ([]domain.Document, error) {
	records, err := imp.Documents(ctx, dir)
	if err != nil {
		return nil, err
	}
	docs := make([]domain.Document, 0, len(records))
	for _, rec := range records {
		doc, err := imp.storeDocument(ctx, rec)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

func (imp *Importer) storeDocument(ctx context.Context, rec Record) (domain.Document, error) {
	doc, name, file, err := imp.CreateDocument(ctx, rec, imp.agency)
	if err != nil {
		return domain.Document{}, err
	}
	defer file.Close()
	key := imp.blobKey(rec, name)
	info, created, err := blob.PutIfAbsent(ctx, imp.blobs, key, file, blob.PutOptions{
		ContentType: doc.ContentType,
		Metadata: map[string]string{
			"agency": imp.agency,
			"batch":  rec.Batch,
		},
	})
	if err != nil {
		return domain.Document{}, fmt.Errorf("store %s: %w", key, err)
	}
	if created {
		imp.metrics.StoredBytes(info.Size)
	}
	doc.FileKey = key
	doc.FileSize = info.Size
	if info.ContentType != "" {
		doc.ContentType = info.ContentType
	}
	return doc, nil
}

// blobKey is documents/<agency>[/<office>]/<date>/<doc_location>/<file>.
func (imp *Importer) blobKey(rec Record, name string) string {
	parts := []string{"documents", imp.agency}
	if imp.office != "" {
		parts = append(parts, imp.office)
	}
	parts = append(parts, rec.Batch, rec.DocLocation, name)
	return imp.source.Join(parts...)
}
