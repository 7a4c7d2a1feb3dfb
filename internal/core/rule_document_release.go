package core

import (
	"context"
	"fmt"

	"foiahub/pkg/domain"
)

// NewDocumentReleaseAgencyRule blocks documents whose releasing agency (or
// office) is not in the directory.
func NewDocumentReleaseAgencyRule() domain.Rule {
	return documentReleaseAgencyRule{}
}

type documentReleaseAgencyRule struct{}

func (documentReleaseAgencyRule) Name() string { return "document_release_agency" }

func (r documentReleaseAgencyRule) Evaluate(_ context.Context, view domain.TransactionView, changes []domain.Change) (domain.Result, error) {
	res := domain.Result{}
	for _, change := range changes {
		if change.Entity != domain.EntityDocument || change.Action == domain.ActionDelete {
			continue
		}
		doc, ok := change.After.(domain.Document)
		if !ok {
			continue
		}
		if _, ok := view.FindAgency(doc.ReleaseAgencySlug); !ok {
			res.Violations = append(res.Violations, blockingViolation(r.Name(), domain.EntityDocument, doc.ID,
				fmt.Sprintf("document %q references unknown agency %q", doc.Title, doc.ReleaseAgencySlug)))
			continue
		}
		if doc.ReleaseOfficeSlug == "" {
			continue
		}
		if _, ok := view.FindOffice(domain.OfficeGlobalSlug(doc.ReleaseAgencySlug, doc.ReleaseOfficeSlug)); !ok {
			res.Violations = append(res.Violations, blockingViolation(r.Name(), domain.EntityDocument, doc.ID,
				fmt.Sprintf("document %q references unknown office %q of %q", doc.Title, doc.ReleaseOfficeSlug, doc.ReleaseAgencySlug)))
		}
	}
	return res, nil
}
