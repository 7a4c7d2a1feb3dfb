// Package memory provides the in-memory transactional store that the durable
// sqlite and postgres stores build upon.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"foiahub/pkg/domain"
)

// Exported aliases keep method signatures concise.
type (
	Agency          = domain.Agency
	Office          = domain.Office
	Requester       = domain.Requester
	FOIARequest     = domain.FOIARequest
	Document        = domain.Document
	ImportLog       = domain.ImportLog
	Change          = domain.Change
	Result          = domain.Result
	RulesEngine     = domain.RulesEngine
	Transaction     = domain.Transaction
	TransactionView = domain.TransactionView
	PersistentStore = domain.PersistentStore
)

// Compile-time contract assertion.
var _ domain.PersistentStore = (*Store)(nil)

type memoryState struct {
	agencies   map[string]Agency // keyed by slug
	offices    map[string]Office // keyed by global slug
	requesters map[string]Requester
	requests   map[string]FOIARequest
	documents  map[string]Document
	docKeys    map[string]string // natural key -> document id
	importLogs map[string]ImportLog
}

// Snapshot is the serialisable representation of the in-memory state.
type Snapshot struct {
	Agencies   map[string]Agency      `json:"agencies"`
	Offices    map[string]Office      `json:"offices"`
	Requesters map[string]Requester   `json:"requesters"`
	Requests   map[string]FOIARequest `json:"requests"`
	Documents  map[string]Document    `json:"documents"`
	ImportLogs map[string]ImportLog   `json:"import_logs"`
}

func newMemoryState() memoryState {
	return memoryState{
		agencies:   map[string]Agency{},
		offices:    map[string]Office{},
		requesters: map[string]Requester{},
		requests:   map[string]FOIARequest{},
		documents:  map[string]Document{},
		docKeys:    map[string]string{},
		importLogs: map[string]ImportLog{},
	}
}

func (s memoryState) clone() memoryState {
	cloned := newMemoryState()
	for k, v := range s.agencies {
		cloned.agencies[k] = cloneAgency(v)
	}
	for k, v := range s.offices {
		cloned.offices[k] = cloneOffice(v)
	}
	for k, v := range s.requesters {
		cloned.requesters[k] = v
	}
	for k, v := range s.requests {
		cloned.requests[k] = cloneRequest(v)
	}
	for k, v := range s.documents {
		cloned.documents[k] = cloneDocument(v)
	}
	for k, v := range s.docKeys {
		cloned.docKeys[k] = v
	}
	for k, v := range s.importLogs {
		cloned.importLogs[k] = v
	}
	return cloned
}

func snapshotFromMemoryState(state memoryState) Snapshot {
	c := state.clone()
	return Snapshot{
		Agencies:   c.agencies,
		Offices:    c.offices,
		Requesters: c.requesters,
		Requests:   c.requests,
		Documents:  c.documents,
		ImportLogs: c.importLogs,
	}
}

func memoryStateFromSnapshot(s Snapshot) memoryState {
	state := newMemoryState()
	for k, v := range s.Agencies {
		state.agencies[k] = cloneAgency(v)
	}
	for k, v := range s.Offices {
		state.offices[k] = cloneOffice(v)
	}
	for k, v := range s.Requesters {
		state.requesters[k] = v
	}
	for k, v := range s.Requests {
		state.requests[k] = cloneRequest(v)
	}
	for k, v := range s.Documents {
		state.documents[k] = cloneDocument(v)
		state.docKeys[v.NaturalKey()] = k
	}
	for _, v := range s.ImportLogs {
		state.importLogs[v.Key()] = v
	}
	return state
}

func cloneStrings(in []string) []string {
	if in == nil {
		return nil
	}
	return append([]string(nil), in...)
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	cp := *t
	return &cp
}

func cloneContact(c domain.ContactInfo) domain.ContactInfo {
	cp := c
	cp.Emails = cloneStrings(c.Emails)
	cp.AddressLines = cloneStrings(c.AddressLines)
	return cp
}

func cloneStats(in []domain.ProcessingStats) []domain.ProcessingStats {
	if in == nil {
		return nil
	}
	out := make([]domain.ProcessingStats, len(in))
	for i, st := range in {
		out[i] = st
		if st.Median != nil {
			m := *st.Median
			out[i].Median = &m
		}
	}
	return out
}

func cloneAgency(a Agency) Agency {
	cp := a
	cp.Keywords = cloneStrings(a.Keywords)
	cp.CommonRequests = cloneStrings(a.CommonRequests)
	cp.NoRecordsAbout = cloneStrings(a.NoRecordsAbout)
	cp.Contact = cloneContact(a.Contact)
	cp.ReadingRooms = append([]domain.ReadingRoomURL(nil), a.ReadingRooms...)
	cp.Stats = cloneStats(a.Stats)
	return cp
}

func cloneOffice(o Office) Office {
	cp := o
	cp.Contact = cloneContact(o.Contact)
	cp.ReadingRooms = append([]domain.ReadingRoomURL(nil), o.ReadingRooms...)
	cp.Stats = cloneStats(o.Stats)
	return cp
}

func cloneRequest(r FOIARequest) FOIARequest {
	cp := r
	cp.Emails = cloneStrings(r.Emails)
	cp.DateStart = cloneTime(r.DateStart)
	cp.DateEnd = cloneTime(r.DateEnd)
	return cp
}

func cloneDocument(d Document) Document {
	cp := d
	cp.DocumentDate = cloneTime(d.DocumentDate)
	cp.DateCreated = cloneTime(d.DateCreated)
	cp.DateReleased = cloneTime(d.DateReleased)
	return cp
}

// Store provides an in-memory transactional store for the domain.
type Store struct {
	mu     sync.RWMutex
	state  memoryState
	engine *RulesEngine
	nowFn  func() time.Time
}

// NewStore constructs an in-memory store backed by the provided rules engine.
func NewStore(engine *RulesEngine) *Store {
	if engine == nil {
		engine = domain.NewRulesEngine()
	}
	return &Store{
		state:  newMemoryState(),
		engine: engine,
		nowFn:  func() time.Time { return time.Now().UTC() },
	}
}

func (s *Store) newID() string {
	return uuid.NewString()
}

// ExportState clones the current store state for external persistence.
func (s *Store) ExportState() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return snapshotFromMemoryState(s.state)
}

// ImportState replaces the store state with the provided snapshot.
func (s *Store) ImportState(snapshot Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = memoryStateFromSnapshot(snapshot)
}

// RulesEngine exposes the currently configured engine.
func (s *Store) RulesEngine() *RulesEngine {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.engine
}

// SetNowFunc overrides the clock; intended for tests.
func (s *Store) SetNowFunc(fn func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nowFn = fn
}

// Close is a no-op for the memory store.
func (s *Store) Close() error { return nil }

// RunInTransaction executes fn within a transactional copy of the store state.
func (s *Store) RunInTransaction(ctx context.Context, fn func(tx Transaction) error) (Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &transaction{
		store: s,
		state: s.state.clone(),
		now:   s.nowFn(),
	}

	if err := fn(tx); err != nil {
		return Result{}, err
	}

	var result Result
	if s.engine != nil {
		view := newTransactionView(&tx.state)
		res, err := s.engine.Evaluate(ctx, view, tx.changes)
		if err != nil {
			return Result{}, err
		}
		result = res
		if res.HasBlocking() {
			return res, domain.RuleViolationError{Result: res}
		}
	}

	s.state = tx.state
	return result, nil
}

// View executes fn against a read-only snapshot of the store state.
func (s *Store) View(_ context.Context, fn func(TransactionView) error) error {
	// Committed state maps are never mutated in place; transactions swap in a clone.
	s.mu.RLock()
	state := s.state
	s.mu.RUnlock()
	return fn(newTransactionView(&state))
}

type transaction struct {
	store   *Store
	state   memoryState
	changes []Change
	now     time.Time
}

type transactionView struct {
	state *memoryState
}

func newTransactionView(state *memoryState) TransactionView {
	return transactionView{state: state}
}

func (v transactionView) ListAgencies() []Agency {
	out := make([]Agency, 0, len(v.state.agencies))
	for _, a := range v.state.agencies {
		out = append(out, cloneAgency(a))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func (v transactionView) FindAgency(slug string) (Agency, bool) {
	a, ok := v.state.agencies[slug]
	if !ok {
		return Agency{}, false
	}
	return cloneAgency(a), true
}

func (v transactionView) ListOffices() []Office {
	out := make([]Office, 0, len(v.state.offices))
	for _, o := range v.state.offices {
		out = append(out, cloneOffice(o))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Slug < out[j].Slug })
	return out
}

func (v transactionView) ListAgencyOffices(agencySlug string) []Office {
	var out []Office
	for _, o := range v.state.offices {
		if o.AgencySlug == agencySlug {
			out = append(out, cloneOffice(o))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func (v transactionView) FindOffice(slug string) (Office, bool) {
	o, ok := v.state.offices[slug]
	if !ok {
		return Office{}, false
	}
	return cloneOffice(o), true
}

func (v transactionView) FindRequester(id string) (Requester, bool) {
	r, ok := v.state.requesters[id]
	return r, ok
}

func (v transactionView) ListRequests() []FOIARequest {
	out := make([]FOIARequest, 0, len(v.state.requests))
	for _, r := range v.state.requests {
		out = append(out, cloneRequest(r))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

func (v transactionView) FindRequest(id string) (FOIARequest, bool) {
	r, ok := v.state.requests[id]
	if !ok {
		return FOIARequest{}, false
	}
	return cloneRequest(r), true
}

func (v transactionView) ListDocuments() []Document {
	out := make([]Document, 0, len(v.state.documents))
	for _, d := range v.state.documents {
		out = append(out, cloneDocument(d))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].NaturalKey() < out[j].NaturalKey() })
	return out
}

func (v transactionView) FindDocument(id string) (Document, bool) {
	d, ok := v.state.documents[id]
	if !ok {
		return Document{}, false
	}
	return cloneDocument(d), true
}

func (v transactionView) ListImportLogs() []ImportLog {
	out := make([]ImportLog, 0, len(v.state.importLogs))
	for _, l := range v.state.importLogs {
		out = append(out, l)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key() < out[j].Key() })
	return out
}

func (v transactionView) HasImport(agency, office, directory string) bool {
	_, ok := v.state.importLogs[domain.ImportLogKey(agency, office, directory)]
	return ok
}

func (tx *transaction) recordChange(change Change) {
	tx.changes = append(tx.changes, change)
}

// Snapshot returns a read-only view over the transactional state.
func (tx *transaction) Snapshot() TransactionView {
	return newTransactionView(&tx.state)
}

func (tx *transaction) FindAgency(slug string) (Agency, bool) {
	return tx.Snapshot().FindAgency(slug)
}

func (tx *transaction) FindOffice(slug string) (Office, bool) {
	return tx.Snapshot().FindOffice(slug)
}

func (tx *transaction) HasImport(agency, office, directory string) bool {
	return tx.Snapshot().HasImport(agency, office, directory)
}

// CreateAgency stores a new agency keyed by slug.
func (tx *transaction) CreateAgency(a Agency) (Agency, error) {
	if a.Slug == "" {
		return Agency{}, fmt.Errorf("agency %q requires a slug", a.Name)
	}
	if _, exists := tx.state.agencies[a.Slug]; exists {
		return Agency{}, domain.ErrConflict{Entity: domain.EntityAgency, ID: a.Slug}
	}
	for _, existing := range tx.state.agencies {
		if existing.Name == a.Name {
			return Agency{}, domain.ErrConflict{Entity: domain.EntityAgency, ID: a.Name}
		}
	}
	if a.ID == "" {
		a.ID = tx.store.newID()
	}
	a.CreatedAt = tx.now
	a.UpdatedAt = tx.now
	tx.state.agencies[a.Slug] = cloneAgency(a)
	tx.recordChange(Change{Entity: domain.EntityAgency, Action: domain.ActionCreate, After: cloneAgency(a)})
	return cloneAgency(a), nil
}

// UpdateAgency mutates an agency; the slug is immutable.
func (tx *transaction) UpdateAgency(slug string, mutator func(*Agency) error) (Agency, error) {
	current, ok := tx.state.agencies[slug]
	if !ok {
		return Agency{}, domain.ErrNotFound{Entity: domain.EntityAgency, ID: slug}
	}
	before := cloneAgency(current)
	if err := mutator(&current); err != nil {
		return Agency{}, err
	}
	current.ID = before.ID
	current.Slug = slug
	current.CreatedAt = before.CreatedAt
	current.UpdatedAt = tx.now
	tx.state.agencies[slug] = cloneAgency(current)
	tx.recordChange(Change{Entity: domain.EntityAgency, Action: domain.ActionUpdate, Before: before, After: cloneAgency(current)})
	return cloneAgency(current), nil
}

// CreateOffice stores a new office; its global slug is derived from agency and office slugs.
func (tx *transaction) CreateOffice(o Office) (Office, error) {
	o.Slug = domain.OfficeGlobalSlug(o.AgencySlug, o.OfficeSlug)
	if _, exists := tx.state.offices[o.Slug]; exists {
		return Office{}, domain.ErrConflict{Entity: domain.EntityOffice, ID: o.Slug}
	}
	if o.ID == "" {
		o.ID = tx.store.newID()
	}
	o.CreatedAt = tx.now
	o.UpdatedAt = tx.now
	tx.state.offices[o.Slug] = cloneOffice(o)
	tx.recordChange(Change{Entity: domain.EntityOffice, Action: domain.ActionCreate, After: cloneOffice(o)})
	return cloneOffice(o), nil
}

// UpdateOffice mutates an office; agency and slugs are immutable.
func (tx *transaction) UpdateOffice(slug string, mutator func(*Office) error) (Office, error) {
	current, ok := tx.state.offices[slug]
	if !ok {
		return Office{}, domain.ErrNotFound{Entity: domain.EntityOffice, ID: slug}
	}
	before := cloneOffice(current)
	if err := mutator(&current); err != nil {
		return Office{}, err
	}
	current.ID = before.ID
	current.Slug = before.Slug
	current.AgencySlug = before.AgencySlug
	current.OfficeSlug = before.OfficeSlug
	current.CreatedAt = before.CreatedAt
	current.UpdatedAt = tx.now
	tx.state.offices[slug] = cloneOffice(current)
	tx.recordChange(Change{Entity: domain.EntityOffice, Action: domain.ActionUpdate, Before: before, After: cloneOffice(current)})
	return cloneOffice(current), nil
}

// CreateRequester stores a new requester.
func (tx *transaction) CreateRequester(r Requester) (Requester, error) {
	if r.ID == "" {
		r.ID = tx.store.newID()
	}
	if _, exists := tx.state.requesters[r.ID]; exists {
		return Requester{}, domain.ErrConflict{Entity: domain.EntityRequester, ID: r.ID}
	}
	r.CreatedAt = tx.now
	r.UpdatedAt = tx.now
	tx.state.requesters[r.ID] = r
	tx.recordChange(Change{Entity: domain.EntityRequester, Action: domain.ActionCreate, After: r})
	return r, nil
}

// CreateRequest stores a new FOIA request.
func (tx *transaction) CreateRequest(r FOIARequest) (FOIARequest, error) {
	if r.ID == "" {
		r.ID = tx.store.newID()
	}
	if _, exists := tx.state.requests[r.ID]; exists {
		return FOIARequest{}, domain.ErrConflict{Entity: domain.EntityRequest, ID: r.ID}
	}
	if _, ok := tx.state.requesters[r.RequesterID]; !ok {
		return FOIARequest{}, domain.ErrNotFound{Entity: domain.EntityRequester, ID: r.RequesterID}
	}
	if r.Status == "" {
		r.Status = domain.StatusOpen
	}
	r.CreatedAt = tx.now
	r.UpdatedAt = tx.now
	tx.state.requests[r.ID] = cloneRequest(r)
	tx.recordChange(Change{Entity: domain.EntityRequest, Action: domain.ActionCreate, After: cloneRequest(r)})
	return cloneRequest(r), nil
}

// UpdateRequest mutates a FOIA request.
func (tx *transaction) UpdateRequest(id string, mutator func(*FOIARequest) error) (FOIARequest, error) {
	current, ok := tx.state.requests[id]
	if !ok {
		return FOIARequest{}, domain.ErrNotFound{Entity: domain.EntityRequest, ID: id}
	}
	before := cloneRequest(current)
	if err := mutator(&current); err != nil {
		return FOIARequest{}, err
	}
	current.ID = id
	current.CreatedAt = before.CreatedAt
	current.UpdatedAt = tx.now
	tx.state.requests[id] = cloneRequest(current)
	tx.recordChange(Change{Entity: domain.EntityRequest, Action: domain.ActionUpdate, Before: before, After: cloneRequest(current)})
	return cloneRequest(current), nil
}

// UpsertDocument creates a document or replaces the existing one with the same natural key.
func (tx *transaction) UpsertDocument(d Document) (Document, error) {
	key := d.NaturalKey()
	if existingID, ok := tx.state.docKeys[key]; ok {
		before := cloneDocument(tx.state.documents[existingID])
		d.ID = existingID
		d.CreatedAt = before.CreatedAt
		d.UpdatedAt = tx.now
		tx.state.documents[existingID] = cloneDocument(d)
		tx.recordChange(Change{Entity: domain.EntityDocument, Action: domain.ActionUpdate, Before: before, After: cloneDocument(d)})
		return cloneDocument(d), nil
	}
	if d.ID == "" {
		d.ID = tx.store.newID()
	}
	if _, exists := tx.state.documents[d.ID]; exists {
		return Document{}, domain.ErrConflict{Entity: domain.EntityDocument, ID: d.ID}
	}
	d.CreatedAt = tx.now
	d.UpdatedAt = tx.now
	tx.state.documents[d.ID] = cloneDocument(d)
	tx.state.docKeys[key] = d.ID
	tx.recordChange(Change{Entity: domain.EntityDocument, Action: domain.ActionCreate, After: cloneDocument(d)})
	return cloneDocument(d), nil
}

// DeleteDocument removes a document.
func (tx *transaction) DeleteDocument(id string) error {
	current, ok := tx.state.documents[id]
	if !ok {
		return domain.ErrNotFound{Entity: domain.EntityDocument, ID: id}
	}
	delete(tx.state.documents, id)
	delete(tx.state.docKeys, current.NaturalKey())
	tx.recordChange(Change{Entity: domain.EntityDocument, Action: domain.ActionDelete, Before: cloneDocument(current)})
	return nil
}

// RecordImport marks a batch directory as processed.
func (tx *transaction) RecordImport(l ImportLog) (ImportLog, error) {
	key := l.Key()
	if _, exists := tx.state.importLogs[key]; exists {
		return ImportLog{}, domain.ErrConflict{Entity: domain.EntityImportLog, ID: key}
	}
	if l.ID == "" {
		l.ID = tx.store.newID()
	}
	l.CreatedAt = tx.now
	l.UpdatedAt = tx.now
	tx.state.importLogs[key] = l
	tx.recordChange(Change{Entity: domain.EntityImportLog, Action: domain.ActionCreate, After: l})
	return l, nil
}
