package core

import (
	"context"
	"fmt"

	"foiahub/pkg/domain"
)

// NewOfficeAgencyReferenceRule blocks offices that do not belong to a known agency.
func NewOfficeAgencyReferenceRule() domain.Rule {
	return officeAgencyReferenceRule{}
}

type officeAgencyReferenceRule struct{}

func (officeAgencyReferenceRule) Name() string { return "office_agency_reference" }

func (r officeAgencyReferenceRule) Evaluate(_ context.Context, view domain.TransactionView, changes []domain.Change) (domain.Result, error) {
	res := domain.Result{}
	for _, change := range changes {
		if change.Entity != domain.EntityOffice || change.Action == domain.ActionDelete {
			continue
		}
		office, ok := change.After.(domain.Office)
		if !ok {
			continue
		}
		if _, ok := view.FindAgency(office.AgencySlug); !ok {
			res.Violations = append(res.Violations, blockingViolation(r.Name(), domain.EntityOffice, office.ID,
				fmt.Sprintf("office %s references missing agency %q", office.Slug, office.AgencySlug)))
		}
	}
	return res, nil
}
