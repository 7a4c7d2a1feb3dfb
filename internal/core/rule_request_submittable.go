package core

import (
	"context"

	"foiahub/pkg/domain"
)

// NoSubmissionEmailMessage is reported for requests whose target cannot receive email.
const NoSubmissionEmailMessage = "Agency or Office has no email address for submission"

// NewRequestSubmittableRule blocks new FOIA requests addressed to an unknown
// agency or office, or to one without an email address.
func NewRequestSubmittableRule() domain.Rule {
	return requestSubmittableRule{}
}

type requestSubmittableRule struct{}

func (requestSubmittableRule) Name() string { return "request_submittable" }

func (r requestSubmittableRule) Evaluate(_ context.Context, view domain.TransactionView, changes []domain.Change) (domain.Result, error) {
	res := domain.Result{}
	for _, change := range changes {
		if change.Entity != domain.EntityRequest || change.Action != domain.ActionCreate {
			continue
		}
		req, ok := change.After.(domain.FOIARequest)
		if !ok {
			continue
		}
		var emails []string
		switch {
		case req.OfficeSlug != "":
			office, ok := view.FindOffice(req.OfficeSlug)
			if !ok {
				res.Violations = append(res.Violations, blockingViolation(r.Name(), domain.EntityRequest, req.ID, "request addressed to unknown office "+req.OfficeSlug))
				continue
			}
			emails = office.Contact.Emails
		case req.AgencySlug != "":
			agency, ok := view.FindAgency(req.AgencySlug)
			if !ok {
				res.Violations = append(res.Violations, blockingViolation(r.Name(), domain.EntityRequest, req.ID, "request addressed to unknown agency "+req.AgencySlug))
				continue
			}
			emails = agency.Contact.Emails
		default:
			res.Violations = append(res.Violations, blockingViolation(r.Name(), domain.EntityRequest, req.ID, "request has no agency or office"))
			continue
		}
		if len(emails) == 0 || len(req.Emails) == 0 {
			res.Violations = append(res.Violations, blockingViolation(r.Name(), domain.EntityRequest, req.ID, NoSubmissionEmailMessage))
		}
	}
	return res, nil
}
