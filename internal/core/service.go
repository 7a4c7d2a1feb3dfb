package core

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"go.uber.org/zap"

	"foiahub/internal/blob"
	"foiahub/internal/infra/persistence/memory"
	"foiahub/internal/logging"
	"foiahub/internal/search"
	"foiahub/pkg/domain"
)

// DocumentSearchLimit caps the number of documents returned by a search.
const DocumentSearchLimit = 50

// RequestDateLayout is the accepted format of documents_start/documents_end.
const RequestDateLayout = "January 2, 2006"

const fileURLExpiry = 15 * time.Minute

// ValidationError reports unusable request input.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return e.Field + ": " + e.Message
}

// ErrNoFile is returned for documents imported without an attached file.
var ErrNoFile = errors.New("document has no file")

// Service exposes the directory, request and document operations used by the API.
type Service struct {
	store  PersistentStore
	blobs  blob.Store
	cache  *expirable.LRU[string, any]
	logger *zap.Logger
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithLogger sets the service logger.
func WithLogger(l *zap.Logger) ServiceOption {
	return func(s *Service) { s.logger = logging.OrNop(l) }
}

// WithBlobStore attaches the document file store.
func WithBlobStore(b blob.Store) ServiceOption {
	return func(s *Service) { s.blobs = b }
}

// WithCache enables the detail payload cache. A non-positive size disables it.
func WithCache(size int, ttl time.Duration) ServiceOption {
	return func(s *Service) {
		if size <= 0 {
			s.cache = nil
			return
		}
		s.cache = expirable.NewLRU[string, any](size, nil, ttl)
	}
}

// NewService constructs a service backed by the supplied store.
func NewService(store PersistentStore, opts ...ServiceOption) *Service {
	s := &Service{
		store:  store,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// NewInMemoryService creates a service and in-memory store with the given rules engine.
func NewInMemoryService(engine *RulesEngine, opts ...ServiceOption) *Service {
	return NewService(memory.NewStore(engine), opts...)
}

// Store returns the underlying storage implementation.
func (s *Service) Store() PersistentStore {
	return s.store
}

// InvalidateCache drops every cached detail payload.
func (s *Service) InvalidateCache() {
	if s.cache != nil {
		s.cache.Purge()
	}
}

func (s *Service) cached(key string) (any, bool) {
	if s.cache == nil {
		return nil, false
	}
	return s.cache.Get(key)
}

func (s *Service) remember(key string, v any) {
	if s.cache != nil {
		s.cache.Add(key, v)
	}
}

// ListAgencies returns every agency ordered by name, or, when query is set,
// the agencies matching it ordered by relevance.
func (s *Service) ListAgencies(ctx context.Context, query string) ([]AgencySummary, error) {
	var agencies []domain.Agency
	if err := s.store.View(ctx, func(v TransactionView) error {
		agencies = v.ListAgencies()
		return nil
	}); err != nil {
		return nil, err
	}
	out := make([]AgencySummary, 0, len(agencies))
	if strings.TrimSpace(query) == "" {
		sort.SliceStable(agencies, func(i, j int) bool { return agencies[i].Name < agencies[j].Name })
		for _, a := range agencies {
			out = append(out, summarizeAgency(a))
		}
		return out, nil
	}
	q, err := search.Parse(query)
	if errors.Is(err, search.ErrEmptyQuery) {
		return out, nil
	}
	if err != nil {
		return nil, err
	}
	type scored struct {
		agency domain.Agency
		score  float64
	}
	var hits []scored
	for _, a := range agencies {
		score := q.Rank(
			search.Field{Text: a.Name, Weight: search.WeightA},
			search.Field{Text: a.Description, Weight: search.WeightB},
		)
		if score > 0 {
			hits = append(hits, scored{agency: a, score: score})
		}
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].score > hits[j].score })
	for _, h := range hits {
		out = append(out, summarizeAgency(h.agency))
	}
	return out, nil
}

// AgencyDetail returns the contact page payload of the agency with slug.
func (s *Service) AgencyDetail(ctx context.Context, slug string) (AgencyDetail, error) {
	key := "agency:" + slug
	if v, ok := s.cached(key); ok {
		return v.(AgencyDetail), nil
	}
	var detail AgencyDetail
	err := s.store.View(ctx, func(v TransactionView) error {
		agency, ok := v.FindAgency(slug)
		if !ok {
			return domain.ErrNotFound{Entity: domain.EntityAgency, ID: slug}
		}
		detail = agencyDetail(v, agency)
		return nil
	})
	if err != nil {
		return AgencyDetail{}, err
	}
	s.remember(key, detail)
	return detail, nil
}

// OfficeDetail returns the contact page payload of the office with the given global slug.
func (s *Service) OfficeDetail(ctx context.Context, slug string) (OfficeDetail, error) {
	key := "office:" + slug
	if v, ok := s.cached(key); ok {
		return v.(OfficeDetail), nil
	}
	var detail OfficeDetail
	err := s.store.View(ctx, func(v TransactionView) error {
		office, ok := v.FindOffice(slug)
		if !ok {
			return domain.ErrNotFound{Entity: domain.EntityOffice, ID: slug}
		}
		agency, ok := v.FindAgency(office.AgencySlug)
		if !ok {
			return domain.ErrNotFound{Entity: domain.EntityAgency, ID: office.AgencySlug}
		}
		detail = officeDetail(agency, office)
		return nil
	})
	if err != nil {
		return OfficeDetail{}, err
	}
	s.remember(key, detail)
	return detail, nil
}

// RequestInput is a FOIA request as submitted by the web form. Office is the
// office slug within Agency.
type RequestInput struct {
	Agency         string `json:"agency"`
	Office         string `json:"office"`
	FirstName      string `json:"first_name"`
	LastName       string `json:"last_name"`
	Email          string `json:"email"`
	DocumentsStart string `json:"documents_start"`
	DocumentsEnd   string `json:"documents_end"`
	Body           string `json:"body"`
	FeeNewsMedia   bool   `json:"fee_newsmedia"`
	FeeWaiver      bool   `json:"fee_waiver"`
	FeeLimit       int    `json:"fee_limit"`
}

func (in RequestInput) validate() error {
	if in.Agency == "" {
		return ValidationError{Message: "no agency or office given"}
	}
	required := []struct{ field, value string }{
		{"first_name", in.FirstName},
		{"last_name", in.LastName},
		{"email", in.Email},
		{"body", in.Body},
	}
	for _, r := range required {
		if strings.TrimSpace(r.value) == "" {
			return ValidationError{Field: r.field, Message: "is required"}
		}
	}
	if in.FeeLimit < 0 {
		return ValidationError{Field: "fee_limit", Message: "must not be negative"}
	}
	return nil
}

func parseRequestDate(field, value string) (*time.Time, error) {
	if value == "" {
		return nil, nil
	}
	t, err := time.Parse(RequestDateLayout, value)
	if err != nil {
		return nil, ValidationError{Field: field, Message: fmt.Sprintf("expected a date like %q", RequestDateLayout)}
	}
	return &t, nil
}

// SubmitRequest files a FOIA request with an office (when both agency and
// office are given) or an agency. The requester and the request are created
// in one transaction.
func (s *Service) SubmitRequest(ctx context.Context, in RequestInput) (RequestReceipt, error) {
	if err := in.validate(); err != nil {
		return RequestReceipt{}, err
	}
	start, err := parseRequestDate("documents_start", in.DocumentsStart)
	if err != nil {
		return RequestReceipt{}, err
	}
	end, err := parseRequestDate("documents_end", in.DocumentsEnd)
	if err != nil {
		return RequestReceipt{}, err
	}
	if start != nil && end != nil && end.Before(*start) {
		return RequestReceipt{}, ValidationError{Field: "documents_end", Message: "precedes documents_start"}
	}

	var created domain.FOIARequest
	_, err = s.store.RunInTransaction(ctx, func(tx Transaction) error {
		req := domain.FOIARequest{
			Status:       domain.StatusOpen,
			DateStart:    start,
			DateEnd:      end,
			RequestBody:  in.Body,
			FeeNewsMedia: in.FeeNewsMedia,
			FeeWaiver:    in.FeeWaiver,
			FeeLimit:     in.FeeLimit,
		}
		if in.Office != "" {
			slug := domain.OfficeGlobalSlug(in.Agency, in.Office)
			office, ok := tx.FindOffice(slug)
			if !ok {
				return domain.ErrNotFound{Entity: domain.EntityOffice, ID: slug}
			}
			req.OfficeSlug = office.Slug
			req.Emails = append([]string(nil), office.Contact.Emails...)
		} else {
			agency, ok := tx.FindAgency(in.Agency)
			if !ok {
				return domain.ErrNotFound{Entity: domain.EntityAgency, ID: in.Agency}
			}
			req.AgencySlug = agency.Slug
			req.Emails = append([]string(nil), agency.Contact.Emails...)
		}
		if len(req.Emails) == 0 {
			return ValidationError{Message: NoSubmissionEmailMessage}
		}
		requester, err := tx.CreateRequester(domain.Requester{
			FirstName: in.FirstName,
			LastName:  in.LastName,
			Email:     in.Email,
		})
		if err != nil {
			return err
		}
		req.RequesterID = requester.ID
		created, err = tx.CreateRequest(req)
		return err
	})
	if err != nil {
		return RequestReceipt{}, err
	}
	s.logger.Info("foia request submitted",
		zap.String("tracking_id", created.ID),
		zap.String("agency", created.AgencySlug),
		zap.String("office", created.OfficeSlug))
	return RequestReceipt{Status: created.Status, TrackingID: created.ID}, nil
}

// ListRequests returns a receipt for every stored request, oldest first.
func (s *Service) ListRequests(ctx context.Context) ([]RequestReceipt, error) {
	var out []RequestReceipt
	err := s.store.View(ctx, func(v TransactionView) error {
		requests := v.ListRequests()
		out = make([]RequestReceipt, 0, len(requests))
		for _, r := range requests {
			out = append(out, RequestReceipt{Status: r.Status, TrackingID: r.ID})
		}
		return nil
	})
	return out, err
}

// SearchDocuments returns documents matching query, best match first, without
// their text. An empty query lists documents. agency optionally restricts the
// release agency.
func (s *Service) SearchDocuments(ctx context.Context, query, agency string) ([]domain.Document, error) {
	query = strings.TrimSpace(query)
	if searcher, ok := s.store.(domain.DocumentSearcher); ok && query != "" {
		tsquery := search.Sanitize(query)
		// Operators without terms are a tsquery syntax error.
		if _, err := search.Compile(tsquery); errors.Is(err, search.ErrEmptyQuery) {
			return []domain.Document{}, nil
		}
		ids, err := searcher.SearchDocumentIDs(ctx, tsquery, agency, DocumentSearchLimit)
		if err != nil {
			return nil, err
		}
		out := make([]domain.Document, 0, len(ids))
		err = s.store.View(ctx, func(v TransactionView) error {
			for _, id := range ids {
				if d, ok := v.FindDocument(id); ok {
					out = append(out, withoutText(d))
				}
			}
			return nil
		})
		return out, err
	}

	var q *search.Query
	if query != "" {
		var err error
		q, err = search.Parse(query)
		if errors.Is(err, search.ErrEmptyQuery) {
			return []domain.Document{}, nil
		}
		if err != nil {
			return nil, err
		}
	}
	type scored struct {
		doc   domain.Document
		score float64
	}
	var hits []scored
	err := s.store.View(ctx, func(v TransactionView) error {
		for _, d := range v.ListDocuments() {
			if agency != "" && d.ReleaseAgencySlug != agency {
				continue
			}
			score := 1.0
			if q != nil {
				score = q.Rank(
					search.Field{Text: d.Title, Weight: search.WeightA},
					search.Field{Text: d.Text, Weight: search.WeightB},
				)
			}
			if score > 0 {
				hits = append(hits, scored{doc: d, score: score})
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].score > hits[j].score })
	if len(hits) > DocumentSearchLimit {
		hits = hits[:DocumentSearchLimit]
	}
	out := make([]domain.Document, 0, len(hits))
	for _, h := range hits {
		out = append(out, withoutText(h.doc))
	}
	return out, nil
}

func withoutText(d domain.Document) domain.Document {
	d.Text = ""
	return d
}

// Document returns a document including its text.
func (s *Service) Document(ctx context.Context, id string) (domain.Document, error) {
	var doc domain.Document
	err := s.store.View(ctx, func(v TransactionView) error {
		d, ok := v.FindDocument(id)
		if !ok {
			return domain.ErrNotFound{Entity: domain.EntityDocument, ID: id}
		}
		doc = d
		return nil
	})
	return doc, err
}

func (s *Service) documentFile(ctx context.Context, id string) (domain.Document, error) {
	doc, err := s.Document(ctx, id)
	if err != nil {
		return domain.Document{}, err
	}
	if doc.FileKey == "" || s.blobs == nil {
		return domain.Document{}, ErrNoFile
	}
	return doc, nil
}

// DocumentFileURL returns a time-limited URL for the document's file. It
// returns blob.ErrUnsupported when the blob backend cannot sign URLs.
func (s *Service) DocumentFileURL(ctx context.Context, id string) (string, error) {
	doc, err := s.documentFile(ctx, id)
	if err != nil {
		return "", err
	}
	return s.blobs.PresignURL(ctx, doc.FileKey, blob.SignedURLOptions{Method: "GET", Expiry: fileURLExpiry})
}

// OpenDocumentFile streams the document's file from the blob store.
func (s *Service) OpenDocumentFile(ctx context.Context, id string) (blob.Info, io.ReadCloser, error) {
	doc, err := s.documentFile(ctx, id)
	if err != nil {
		return blob.Info{}, nil, err
	}
	return s.blobs.Get(ctx, doc.FileKey)
}
