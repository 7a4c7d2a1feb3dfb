package importer

import (
	"context"

	"foiahub/pkg/domain"
)

// IsDate reports whether a directory name is a batch date. Batch directories
// are named YYYYMMDD; any non-empty all-digit name counts.
func IsDate(name string) bool {
	if name == "" {
		return false
	}
	for _, r := range name {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// Unprocessed reports whether dir has no ImportLog for this agency and office.
func (imp *Importer) Unprocessed(ctx context.Context, dir string) (bool, error) {
	var done bool
	err := imp.store.View(ctx, func(v domain.TransactionView) error {
		done = v.HasImport(imp.agency, imp.office, dir)
		return nil
	})
	return !done, err
}

// MarkProcessed records the ImportLog for dir.
func (imp *Importer) MarkProcessed(ctx context.Context, dir string) error {
	_, err := imp.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		_, err := tx.RecordImport(domain.ImportLog{AgencySlug: imp.agency, OfficeSlug: imp.office, Directory: dir})
		return err
	})
	return err
}

// WithImportLog runs fn once per directory: when dir is unprocessed fn runs
// and, if it succeeds, dir is marked processed. It reports whether fn ran.
func (imp *Importer) WithImportLog(ctx context.Context, dir string, fn func(context.Context) error) (bool, error) {
	todo, err := imp.Unprocessed(ctx, dir)
	if err != nil || !todo {
		return false, err
	}
	if err := fn(ctx); err != nil {
		return true, err
	}
	return true, imp.MarkProcessed(ctx, dir)
}

// DateDirectories lists the batch directories of the agency (or office) in order.
func (imp *Importer) DateDirectories(ctx context.Context) ([]string, error) {
	names, err := imp.source.ListDir(ctx, imp.prefix())
	if err != nil {
		return nil, err
	}
	var dates []string
	for _, n := range names {
		if IsDate(n) {
			dates = append(dates, n)
		}
	}
	return dates, nil
}

// OfficeDirectories lists the office directories of an agency. Office-level
// importers have none.
func (imp *Importer) OfficeDirectories(ctx context.Context) ([]string, error) {
	if imp.office != "" {
		return nil, nil
	}
	names, err := imp.source.ListDir(ctx, imp.prefix())
	if err != nil {
		return nil, err
	}
	var offices []string
	for _, n := range names {
		if !IsDate(n) {
			offices = append(offices, n)
		}
	}
	return offices, nil
}
