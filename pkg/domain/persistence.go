package domain

import "context"

// Transaction exposes the domain operations that a persistence implementation
// must support within an atomic scope.
type Transaction interface {
	Snapshot() TransactionView

	CreateAgency(Agency) (Agency, error)
	UpdateAgency(slug string, mutator func(*Agency) error) (Agency, error)
	FindAgency(slug string) (Agency, bool)

	CreateOffice(Office) (Office, error)
	UpdateOffice(slug string, mutator func(*Office) error) (Office, error)
	FindOffice(slug string) (Office, bool)

	CreateRequester(Requester) (Requester, error)
	CreateRequest(FOIARequest) (FOIARequest, error)
	UpdateRequest(id string, mutator func(*FOIARequest) error) (FOIARequest, error)

	// UpsertDocument creates the document or replaces the one sharing its NaturalKey.
	UpsertDocument(Document) (Document, error)
	DeleteDocument(id string) error

	// RecordImport stores an ImportLog; it fails with ErrConflict when the batch is already logged.
	RecordImport(ImportLog) (ImportLog, error)
	HasImport(agency, office, directory string) bool
}

// TransactionView provides read-only access to snapshot data for rules and queries.
type TransactionView interface {
	ListAgencies() []Agency
	FindAgency(slug string) (Agency, bool)
	ListOffices() []Office
	ListAgencyOffices(agencySlug string) []Office
	FindOffice(slug string) (Office, bool)
	FindRequester(id string) (Requester, bool)
	ListRequests() []FOIARequest
	FindRequest(id string) (FOIARequest, bool)
	ListDocuments() []Document
	FindDocument(id string) (Document, bool)
	ListImportLogs() []ImportLog
	HasImport(agency, office, directory string) bool
}

// PersistentStore is a minimal abstraction over durable backends. It mirrors
// the subset of store capabilities used directly by higher layers.
type PersistentStore interface {
	RunInTransaction(ctx context.Context, fn func(Transaction) error) (Result, error)
	View(ctx context.Context, fn func(TransactionView) error) error
	Close() error
}

// DocumentSearcher is implemented by stores that maintain a native full-text
// index. The query is a sanitized Postgres tsquery expression.
type DocumentSearcher interface {
	SearchDocumentIDs(ctx context.Context, tsquery, agency string, limit int) ([]string, error)
}
