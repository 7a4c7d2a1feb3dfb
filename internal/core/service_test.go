package core

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"foiahub/internal/blob"
	"foiahub/pkg/domain"
)

func median(v float64) *float64 { return &v }

func seedDirectory(t *testing.T, svc *Service) {
	t.Helper()
	_, err := svc.Store().RunInTransaction(context.Background(), func(tx Transaction) error {
		agencies := []domain.Agency{
			{
				Name:         "Department of Justice",
				Slug:         "department-of-justice",
				Abbreviation: "DOJ",
				Description:  "Enforces federal law.",
				Contact:      domain.ContactInfo{Emails: []string{"foia@doj.gov"}},
			},
			{
				Name:         "Federal Bureau of Investigation",
				Slug:         "federal-bureau-of-investigation",
				Abbreviation: "FBI",
				Description:  "Investigates federal crimes including UFO sightings.",
				ParentSlug:   "department-of-justice",
				Keywords:     []string{"ufo"},
				Contact: domain.ContactInfo{
					Emails: []string{"foiparequest@ic.fbi.gov"},
					City:   "Winchester",
				},
				ReadingRooms: []domain.ReadingRoomURL{{LinkText: "The Vault", URL: "https://vault.fbi.gov"}},
				Stats: []domain.ProcessingStats{
					{Year: 2012, StatType: domain.StatSimple, Median: median(30)},
					{Year: 2013, StatType: domain.StatSimple, Median: median(20)},
					{Year: 2013, StatType: domain.StatComplex, Median: median(200)},
				},
			},
			{
				Name:        "National Archives and Records Administration",
				Slug:        "national-archives-and-records-administration",
				Description: "Keeps the records of the federal government.",
			},
		}
		for _, a := range agencies {
			if _, err := tx.CreateAgency(a); err != nil {
				return err
			}
		}
		offices := []domain.Office{
			{
				AgencySlug: "department-of-justice",
				Name:       "Office of Information Policy",
				OfficeSlug: "office-of-information-policy",
				Contact:    domain.ContactInfo{Emails: []string{"oip@doj.gov"}},
				Stats:      []domain.ProcessingStats{{Year: 2013, StatType: domain.StatComplex, Median: median(55.5)}},
				Notes:      "Handles appeals.",
			},
			{
				AgencySlug: "national-archives-and-records-administration",
				Name:       "Office of Inspector General",
				OfficeSlug: "office-of-inspector-general",
			},
		}
		for _, o := range offices {
			if _, err := tx.CreateOffice(o); err != nil {
				return err
			}
		}
		return nil
	})
	require.NoError(t, err)
}

func newSeededService(t *testing.T, opts ...ServiceOption) *Service {
	t.Helper()
	svc := NewInMemoryService(NewDefaultRulesEngine(), opts...)
	seedDirectory(t, svc)
	return svc
}

func TestListAgencies(t *testing.T) {
	svc := newSeededService(t)
	ctx := context.Background()

	all, err := svc.ListAgencies(ctx, "")
	require.NoError(t, err)
	names := make([]string, 0, len(all))
	for _, a := range all {
		names = append(names, a.Name)
	}
	assert.Equal(t, []string{
		"Department of Justice",
		"Federal Bureau of Investigation",
		"National Archives and Records Administration",
	}, names)

	hits, err := svc.ListAgencies(ctx, "federal")
	require.NoError(t, err)
	require.Len(t, hits, 3)
	// Name matches outrank description matches.
	assert.Equal(t, "federal-bureau-of-investigation", hits[0].Slug)

	hits, err = svc.ListAgencies(ctx, "ufo")
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "FBI", hits[0].Abbreviation)
	assert.Equal(t, []string{"ufo"}, hits[0].Keywords)

	hits, err = svc.ListAgencies(ctx, "!!!")
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestAgencyDetail(t *testing.T) {
	svc := newSeededService(t)
	ctx := context.Background()

	fbi, err := svc.AgencyDetail(ctx, "federal-bureau-of-investigation")
	require.NoError(t, err)
	assert.Equal(t, "agency", fbi.IsA)
	assert.Equal(t, "Federal Bureau of Investigation", fbi.Name)
	assert.Equal(t, fbi.Slug, fbi.AgencySlug)
	assert.Equal(t, fbi.Name, fbi.AgencyName)
	require.NotNil(t, fbi.SimpleProcessingTime)
	assert.Equal(t, 20.0, *fbi.SimpleProcessingTime)
	require.NotNil(t, fbi.ComplexProcessingTime)
	assert.Equal(t, 200.0, *fbi.ComplexProcessingTime)
	require.NotNil(t, fbi.Parent)
	assert.Equal(t, "department-of-justice", fbi.Parent.Slug)
	assert.Equal(t, []domain.ReadingRoomURL{{LinkText: "The Vault", URL: "https://vault.fbi.gov"}}, fbi.FOIALibraries)
	assert.Equal(t, []string{"foiparequest@ic.fbi.gov"}, fbi.Emails)
	assert.Equal(t, "Winchester", fbi.City)
	assert.Empty(t, fbi.Offices)
	assert.Equal(t, []string{}, fbi.NoRecordsAbout)

	doj, err := svc.AgencyDetail(ctx, "department-of-justice")
	require.NoError(t, err)
	assert.Nil(t, doj.Parent)
	assert.Nil(t, doj.SimpleProcessingTime)
	require.Len(t, doj.Offices, 2)
	assert.Equal(t, "Federal Bureau of Investigation", doj.Offices[0].Name)
	assert.Equal(t, "federal-bureau-of-investigation", doj.Offices[0].Slug)
	assert.Equal(t, "department-of-justice--office-of-information-policy", doj.Offices[1].Slug)

	_, err = svc.AgencyDetail(ctx, "ministry-of-magic")
	var nf domain.ErrNotFound
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, domain.EntityAgency, nf.Entity)
}

func TestOfficeDetail(t *testing.T) {
	svc := newSeededService(t)
	ctx := context.Background()

	oip, err := svc.OfficeDetail(ctx, "department-of-justice--office-of-information-policy")
	require.NoError(t, err)
	assert.Equal(t, "office", oip.IsA)
	assert.Equal(t, "Office of Information Policy", oip.Name)
	assert.Equal(t, "office-of-information-policy", oip.OfficeSlug)
	assert.Equal(t, "Department of Justice", oip.AgencyName)
	assert.Equal(t, "department-of-justice", oip.AgencySlug)
	assert.Equal(t, "Enforces federal law.", oip.AgencyDescription)
	assert.Nil(t, oip.SimpleProcessingTime)
	require.NotNil(t, oip.ComplexProcessingTime)
	assert.Equal(t, 55.5, *oip.ComplexProcessingTime)
	assert.Equal(t, "Handles appeals.", oip.Notes)
	assert.Equal(t, []domain.ReadingRoomURL{}, oip.FOIALibraries)
	assert.NotEmpty(t, oip.ID)

	_, err = svc.OfficeDetail(ctx, "department-of-justice--nowhere")
	assert.ErrorAs(t, err, new(domain.ErrNotFound))
}

func TestDetailCache(t *testing.T) {
	svc := newSeededService(t, WithCache(8, time.Minute))
	ctx := context.Background()
	slug := "national-archives-and-records-administration"

	first, err := svc.AgencyDetail(ctx, slug)
	require.NoError(t, err)

	_, err = svc.Store().RunInTransaction(ctx, func(tx Transaction) error {
		_, err := tx.UpdateAgency(slug, func(a *domain.Agency) error {
			a.Description = "Updated."
			return nil
		})
		return err
	})
	require.NoError(t, err)

	cached, err := svc.AgencyDetail(ctx, slug)
	require.NoError(t, err)
	assert.Equal(t, first.Description, cached.Description)

	svc.InvalidateCache()
	fresh, err := svc.AgencyDetail(ctx, slug)
	require.NoError(t, err)
	assert.Equal(t, "Updated.", fresh.Description)
}

func validRequest() RequestInput {
	return RequestInput{
		Agency:    "federal-bureau-of-investigation",
		FirstName: "Fox",
		LastName:  "Mulder",
		Email:     "fox@example.com",
		Body:      "All records about Roswell.",
	}
}

func TestSubmitRequestToAgency(t *testing.T) {
	svc := newSeededService(t)
	ctx := context.Background()

	in := validRequest()
	in.DocumentsStart = "January 1, 1947"
	in.DocumentsEnd = "December 31, 1950"
	in.FeeLimit = 25
	receipt, err := svc.SubmitRequest(ctx, in)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusOpen, receipt.Status)
	require.NotEmpty(t, receipt.TrackingID)

	err = svc.Store().View(ctx, func(v TransactionView) error {
		req, ok := v.FindRequest(receipt.TrackingID)
		require.True(t, ok)
		assert.Equal(t, "federal-bureau-of-investigation", req.AgencySlug)
		assert.Empty(t, req.OfficeSlug)
		assert.Equal(t, []string{"foiparequest@ic.fbi.gov"}, req.Emails)
		require.NotNil(t, req.DateStart)
		assert.Equal(t, time.Date(1947, time.January, 1, 0, 0, 0, 0, time.UTC), *req.DateStart)
		assert.Equal(t, 25, req.FeeLimit)
		requester, ok := v.FindRequester(req.RequesterID)
		require.True(t, ok)
		assert.Equal(t, "Mulder", requester.LastName)
		return nil
	})
	require.NoError(t, err)

	receipts, err := svc.ListRequests(ctx)
	require.NoError(t, err)
	assert.Equal(t, []RequestReceipt{receipt}, receipts)
}

func TestSubmitRequestToOffice(t *testing.T) {
	svc := newSeededService(t)
	in := validRequest()
	in.Agency = "department-of-justice"
	in.Office = "office-of-information-policy"

	receipt, err := svc.SubmitRequest(context.Background(), in)
	require.NoError(t, err)

	err = svc.Store().View(context.Background(), func(v TransactionView) error {
		req, _ := v.FindRequest(receipt.TrackingID)
		assert.Equal(t, "department-of-justice--office-of-information-policy", req.OfficeSlug)
		assert.Empty(t, req.AgencySlug)
		assert.Equal(t, []string{"oip@doj.gov"}, req.Emails)
		return nil
	})
	require.NoError(t, err)
}

func TestSubmitRequestRejected(t *testing.T) {
	svc := newSeededService(t)
	ctx := context.Background()

	cases := []struct {
		name   string
		mutate func(*RequestInput)
		check  func(t *testing.T, err error)
	}{
		{"no target", func(in *RequestInput) { in.Agency = "" }, func(t *testing.T, err error) {
			assert.ErrorAs(t, err, new(ValidationError))
		}},
		{"missing body", func(in *RequestInput) { in.Body = " " }, func(t *testing.T, err error) {
			var ve ValidationError
			require.ErrorAs(t, err, &ve)
			assert.Equal(t, "body", ve.Field)
		}},
		{"bad date", func(in *RequestInput) { in.DocumentsStart = "1947-01-01" }, func(t *testing.T, err error) {
			var ve ValidationError
			require.ErrorAs(t, err, &ve)
			assert.Equal(t, "documents_start", ve.Field)
		}},
		{"reversed dates", func(in *RequestInput) {
			in.DocumentsStart = "March 1, 2000"
			in.DocumentsEnd = "February 1, 2000"
		}, func(t *testing.T, err error) {
			assert.ErrorAs(t, err, new(ValidationError))
		}},
		{"unknown agency", func(in *RequestInput) { in.Agency = "ministry-of-magic" }, func(t *testing.T, err error) {
			assert.ErrorAs(t, err, new(domain.ErrNotFound))
		}},
		{"unknown office", func(in *RequestInput) { in.Office = "nowhere" }, func(t *testing.T, err error) {
			var nf domain.ErrNotFound
			require.ErrorAs(t, err, &nf)
			assert.Equal(t, domain.EntityOffice, nf.Entity)
		}},
		{"no emails", func(in *RequestInput) { in.Agency = "national-archives-and-records-administration" }, func(t *testing.T, err error) {
			var ve ValidationError
			require.ErrorAs(t, err, &ve)
			assert.Equal(t, NoSubmissionEmailMessage, ve.Message)
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			in := validRequest()
			tc.mutate(&in)
			_, err := svc.SubmitRequest(ctx, in)
			require.Error(t, err)
			tc.check(t, err)
		})
	}

	receipts, err := svc.ListRequests(ctx)
	require.NoError(t, err)
	assert.Empty(t, receipts, "rejected requests must not leave requesters or requests behind")
	err = svc.Store().View(ctx, func(v TransactionView) error {
		assert.Empty(t, v.ListRequests())
		return nil
	})
	require.NoError(t, err)
}

func seedDocuments(t *testing.T, svc *Service, blobs blob.Store) {
	t.Helper()
	ctx := context.Background()
	_, err := blobs.Put(ctx, "documents/federal-bureau-of-investigation/20150301/roswell/record.pdf",
		strings.NewReader("%PDF roswell"), blob.PutOptions{ContentType: "application/pdf"})
	require.NoError(t, err)
	_, err = svc.Store().RunInTransaction(ctx, func(tx Transaction) error {
		docs := []domain.Document{
			{
				Title:             "Roswell incident report",
				ReleaseAgencySlug: "federal-bureau-of-investigation",
				BatchDirectory:    "20150301",
				DocLocation:       "roswell",
				Text:              "A flying disc was recovered near Roswell.",
				FileType:          "pdf",
				FileKey:           "documents/federal-bureau-of-investigation/20150301/roswell/record.pdf",
			},
			{
				Title:             "Budget memo",
				ReleaseAgencySlug: "federal-bureau-of-investigation",
				BatchDirectory:    "20150301",
				DocLocation:       "budget",
				Text:              "Mentions a disc drive purchase.",
				FileType:          "pdf",
			},
			{
				Title:             "Disc catalogue",
				ReleaseAgencySlug: "national-archives-and-records-administration",
				ReleaseOfficeSlug: "office-of-inspector-general",
				BatchDirectory:    "20140212",
				DocLocation:       "oig-0001",
				FileType:          "pdf",
			},
		}
		for _, d := range docs {
			if _, err := tx.UpsertDocument(d); err != nil {
				return err
			}
		}
		return nil
	})
	require.NoError(t, err)
}

func TestSearchDocuments(t *testing.T) {
	blobs := blob.NewMemory()
	svc := newSeededService(t, WithBlobStore(blobs))
	seedDocuments(t, svc, blobs)
	ctx := context.Background()

	hits, err := svc.SearchDocuments(ctx, "disc", "")
	require.NoError(t, err)
	require.Len(t, hits, 3)
	assert.Equal(t, "Disc catalogue", hits[0].Title, "title matches rank first")
	for _, d := range hits {
		assert.Empty(t, d.Text)
	}

	hits, err = svc.SearchDocuments(ctx, "disc", "federal-bureau-of-investigation")
	require.NoError(t, err)
	assert.Len(t, hits, 2)

	hits, err = svc.SearchDocuments(ctx, `"flying disc"`, "")
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "roswell", hits[0].DocLocation)

	hits, err = svc.SearchDocuments(ctx, "roswell | budget", "")
	require.NoError(t, err)
	assert.Len(t, hits, 2)

	all, err := svc.SearchDocuments(ctx, "", "national-archives-and-records-administration")
	require.NoError(t, err)
	assert.Len(t, all, 1)

	none, err := svc.SearchDocuments(ctx, "?!", "")
	require.NoError(t, err)
	assert.Empty(t, none)
}

type searcherStore struct {
	PersistentStore
	gotQuery  string
	gotAgency string
	ids       []string
	calls     int
}

func (s *searcherStore) SearchDocumentIDs(_ context.Context, tsquery, agency string, limit int) ([]string, error) {
	s.calls++
	s.gotQuery, s.gotAgency = tsquery, agency
	if limit != DocumentSearchLimit {
		return nil, errors.New("unexpected limit")
	}
	return s.ids, nil
}

func TestSearchDocumentsUsesNativeIndex(t *testing.T) {
	blobs := blob.NewMemory()
	base := newSeededService(t, WithBlobStore(blobs))
	seedDocuments(t, base, blobs)

	var ids []string
	require.NoError(t, base.Store().View(context.Background(), func(v TransactionView) error {
		for _, d := range v.ListDocuments() {
			ids = append(ids, d.ID)
		}
		return nil
	}))
	store := &searcherStore{PersistentStore: base.Store(), ids: append([]string{"missing"}, ids[:1]...)}
	svc := NewService(store)

	hits, err := svc.SearchDocuments(context.Background(), "flying saucer", "fbi")
	require.NoError(t, err)
	assert.Equal(t, "flying:* & saucer:*", store.gotQuery)
	assert.Equal(t, "fbi", store.gotAgency)
	require.Len(t, hits, 1)
	assert.Equal(t, ids[0], hits[0].ID)

	for _, q := range []string{"|", "&", "& |", "!?"} {
		hits, err := svc.SearchDocuments(context.Background(), q, "")
		require.NoError(t, err, q)
		assert.Empty(t, hits, q)
		assert.NotNil(t, hits, q)
	}
	assert.Equal(t, 1, store.calls, "queries without terms never reach the index")
}

func TestDocumentFiles(t *testing.T) {
	ctx := context.Background()
	fsBlobs, err := blob.NewFilesystem(t.TempDir(), "https://files.example.org/foia")
	require.NoError(t, err)
	svc := newSeededService(t, WithBlobStore(fsBlobs))
	seedDocuments(t, svc, fsBlobs)

	hits, err := svc.SearchDocuments(ctx, "roswell incident", "")
	require.NoError(t, err)
	require.Len(t, hits, 1)
	id := hits[0].ID

	doc, err := svc.Document(ctx, id)
	require.NoError(t, err)
	assert.Contains(t, doc.Text, "flying disc")

	url, err := svc.DocumentFileURL(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "https://files.example.org/foia/documents/federal-bureau-of-investigation/20150301/roswell/record.pdf", url)

	info, rc, err := svc.OpenDocumentFile(ctx, id)
	require.NoError(t, err)
	body, err := io.ReadAll(rc)
	require.NoError(t, rc.Close())
	require.NoError(t, err)
	assert.Equal(t, "%PDF roswell", string(body))
	assert.Equal(t, "application/pdf", info.ContentType)

	memSvc := newSeededService(t, WithBlobStore(blob.NewMemory()))
	seedDocuments(t, memSvc, blob.NewMemory())
	hits, err = memSvc.SearchDocuments(ctx, "roswell incident", "")
	require.NoError(t, err)
	_, err = memSvc.DocumentFileURL(ctx, hits[0].ID)
	assert.ErrorIs(t, err, blob.ErrUnsupported)

	hits, err = svc.SearchDocuments(ctx, "budget", "")
	require.NoError(t, err)
	_, err = svc.DocumentFileURL(ctx, hits[0].ID)
	assert.ErrorIs(t, err, ErrNoFile)

	_, err = svc.Document(ctx, "nope")
	assert.ErrorAs(t, err, new(domain.ErrNotFound))
}
