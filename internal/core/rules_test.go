package core

import (
	"context"
	"errors"
	"testing"

	"foiahub/internal/infra/persistence/memory"
	"foiahub/pkg/domain"
)

func TestDefaultRulesEngineRegistersRules(t *testing.T) {
	got := NewDefaultRulesEngine().Rules()
	want := []string{"document_release_agency", "request_submittable", "office_agency_reference"}
	if len(got) != len(want) {
		t.Fatalf("expected %d rules, got %v", len(want), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("rule %d: expected %s, got %s", i, want[i], got[i])
		}
	}
}

func newRuleStore(t *testing.T) *memory.Store {
	t.Helper()
	store := memory.NewStore(NewDefaultRulesEngine())
	_, err := store.RunInTransaction(context.Background(), func(tx Transaction) error {
		if _, err := tx.CreateAgency(domain.Agency{Name: "Agency A", Slug: "agency-a", Contact: domain.ContactInfo{Emails: []string{"a@example.gov"}}}); err != nil {
			return err
		}
		if _, err := tx.CreateAgency(domain.Agency{Name: "Agency B", Slug: "agency-b"}); err != nil {
			return err
		}
		_, err := tx.CreateOffice(domain.Office{AgencySlug: "agency-a", Name: "Records", OfficeSlug: "records"})
		return err
	})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
	return store
}

func expectBlocked(t *testing.T, err error, rule string) {
	t.Helper()
	var rv domain.RuleViolationError
	if !errors.As(err, &rv) {
		t.Fatalf("expected rule violation from %s, got %v", rule, err)
	}
	for _, v := range rv.Result.Violations {
		if v.Rule == rule && v.Severity == domain.SeverityBlock {
			return
		}
	}
	t.Fatalf("expected blocking violation from %s, got %+v", rule, rv.Result.Violations)
}

func TestDocumentReleaseAgencyRule(t *testing.T) {
	store := newRuleStore(t)
	ctx := context.Background()
	upsert := func(d domain.Document) error {
		_, err := store.RunInTransaction(ctx, func(tx Transaction) error {
			_, err := tx.UpsertDocument(d)
			return err
		})
		return err
	}

	if err := upsert(domain.Document{Title: "ok", ReleaseAgencySlug: "agency-a", ReleaseOfficeSlug: "records", BatchDirectory: "20150101", DocLocation: "1"}); err != nil {
		t.Fatalf("expected office document to pass: %v", err)
	}
	if err := upsert(domain.Document{Title: "ok", ReleaseAgencySlug: "agency-b", BatchDirectory: "20150101", DocLocation: "2"}); err != nil {
		t.Fatalf("expected agency document to pass: %v", err)
	}
	expectBlocked(t, upsert(domain.Document{Title: "x", ReleaseAgencySlug: "agency-z", BatchDirectory: "20150101", DocLocation: "3"}), "document_release_agency")
	expectBlocked(t, upsert(domain.Document{Title: "x", ReleaseAgencySlug: "agency-b", ReleaseOfficeSlug: "records", BatchDirectory: "20150101", DocLocation: "4"}), "document_release_agency")

	var n int
	_ = store.View(ctx, func(v TransactionView) error {
		n = len(v.ListDocuments())
		return nil
	})
	if n != 2 {
		t.Fatalf("expected blocked documents to be rolled back, have %d documents", n)
	}
}

func TestRequestSubmittableRule(t *testing.T) {
	store := newRuleStore(t)
	ctx := context.Background()
	submit := func(req domain.FOIARequest) error {
		_, err := store.RunInTransaction(ctx, func(tx Transaction) error {
			requester, err := tx.CreateRequester(domain.Requester{FirstName: "Dana", LastName: "Scully", Email: "dana@example.com"})
			if err != nil {
				return err
			}
			req.RequesterID = requester.ID
			_, err = tx.CreateRequest(req)
			return err
		})
		return err
	}

	if err := submit(domain.FOIARequest{AgencySlug: "agency-a", Emails: []string{"a@example.gov"}}); err != nil {
		t.Fatalf("expected request to pass: %v", err)
	}
	expectBlocked(t, submit(domain.FOIARequest{AgencySlug: "agency-b", Emails: []string{"nobody@example.gov"}}), "request_submittable")
	expectBlocked(t, submit(domain.FOIARequest{OfficeSlug: "agency-a--records", Emails: []string{"a@example.gov"}}), "request_submittable")
	expectBlocked(t, submit(domain.FOIARequest{AgencySlug: "agency-a"}), "request_submittable")
	expectBlocked(t, submit(domain.FOIARequest{AgencySlug: "agency-z", Emails: []string{"z@example.gov"}}), "request_submittable")
	expectBlocked(t, submit(domain.FOIARequest{Emails: []string{"a@example.gov"}}), "request_submittable")

	err := submit(domain.FOIARequest{AgencySlug: "agency-b", Emails: []string{"x@example.gov"}})
	var rv domain.RuleViolationError
	if !errors.As(err, &rv) || rv.Error() != "transaction blocked by rules: "+NoSubmissionEmailMessage {
		t.Fatalf("unexpected error message: %v", err)
	}
}

func TestOfficeAgencyReferenceRule(t *testing.T) {
	store := newRuleStore(t)
	_, err := store.RunInTransaction(context.Background(), func(tx Transaction) error {
		_, err := tx.CreateOffice(domain.Office{AgencySlug: "agency-z", Name: "Orphan", OfficeSlug: "orphan"})
		return err
	})
	expectBlocked(t, err, "office_agency_reference")

	_, err = store.RunInTransaction(context.Background(), func(tx Transaction) error {
		_, err := tx.UpdateOffice("agency-a--records", func(o *domain.Office) error {
			o.Notes = "Room 101"
			return nil
		})
		return err
	})
	if err != nil {
		t.Fatalf("expected office update to pass: %v", err)
	}
}
