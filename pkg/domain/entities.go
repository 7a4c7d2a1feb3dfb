// Package domain defines the persistent entities, value types, and rule
// evaluation primitives used by foiahub.
package domain

import (
	"time"
)

// EntityType identifies the type of record stored in the domain.
type EntityType string

// Supported entity type identifiers used in Change records and persistence buckets.
const (
	// EntityAgency identifies a federal agency record.
	EntityAgency EntityType = "agency"
	// EntityOffice identifies an agency component office.
	EntityOffice EntityType = "office"
	// EntityRequester identifies the person filing a FOIA request.
	EntityRequester EntityType = "requester"
	// EntityRequest identifies a FOIA request.
	EntityRequest EntityType = "foia_request"
	// EntityDocument identifies an imported released document.
	EntityDocument EntityType = "document"
	// EntityImportLog identifies a processed import batch marker.
	EntityImportLog EntityType = "import_log"
)

// RequestStatus is the lifecycle state of a FOIA request.
type RequestStatus string

// FOIA request statuses.
const (
	StatusOpen       RequestStatus = "O"
	StatusSubmitted  RequestStatus = "S"
	StatusProcessing RequestStatus = "P"
	StatusClosed     RequestStatus = "C"
)

// Label returns the human readable status name.
func (s RequestStatus) Label() string {
	switch s {
	case StatusOpen:
		return "open"
	case StatusSubmitted:
		return "submitted"
	case StatusProcessing:
		return "processing"
	case StatusClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// StatType distinguishes simple from complex request processing statistics.
type StatType string

const (
	StatSimple  StatType = "S"
	StatComplex StatType = "C"
)

// Severity indicates how the system should react to a rule violation.
type Severity string

const (
	SeverityBlock Severity = "block"
	SeverityWarn  Severity = "warn"
	SeverityLog   Severity = "log"
)

// Base contains common fields for all entities.
type Base struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ContactInfo captures the public FOIA contact details shared by agencies and offices.
type ContactInfo struct {
	Name               string   `json:"name,omitempty" yaml:"contact_name"`
	PersonName         string   `json:"person_name,omitempty" yaml:"person_name"`
	Emails             []string `json:"emails,omitempty" yaml:"emails"`
	Phone              string   `json:"phone,omitempty" yaml:"phone"`
	TollFreePhone      string   `json:"toll_free_phone,omitempty" yaml:"toll_free_phone"`
	Fax                string   `json:"fax,omitempty" yaml:"fax"`
	PublicLiaisonName  string   `json:"public_liaison_name,omitempty" yaml:"public_liaison_name"`
	PublicLiaisonEmail string   `json:"public_liaison_email,omitempty" yaml:"public_liaison_email"`
	PublicLiaisonPhone string   `json:"public_liaison_phone,omitempty" yaml:"public_liaison_phone"`
	RequestFormURL     string   `json:"request_form_url,omitempty" yaml:"request_form_url"`
	OfficeURL          string   `json:"office_url,omitempty" yaml:"office_url"`
	AddressLines       []string `json:"address_lines,omitempty" yaml:"address_lines"`
	Street             string   `json:"street,omitempty" yaml:"street"`
	City               string   `json:"city,omitempty" yaml:"city"`
	State              string   `json:"state,omitempty" yaml:"state"`
	ZipCode            string   `json:"zip_code,omitempty" yaml:"zip_code"`
}

// ReadingRoomURL links to an online FOIA library.
type ReadingRoomURL struct {
	LinkText string `json:"link_text" yaml:"link_text"`
	URL      string `json:"url" yaml:"url"`
}

// ProcessingStats records the median processing time in days for a fiscal year.
type ProcessingStats struct {
	Year     int      `json:"year" yaml:"year"`
	StatType StatType `json:"stat_type" yaml:"stat_type"`
	Median   *float64 `json:"median,omitempty" yaml:"median"`
}

// Agency is a federal agency that accepts FOIA requests.
type Agency struct {
	Base
	Name           string            `json:"name"`
	Abbreviation   string            `json:"abbreviation,omitempty"`
	Description    string            `json:"description,omitempty"`
	Slug           string            `json:"slug"`
	Keywords       []string          `json:"keywords,omitempty"`
	CommonRequests []string          `json:"common_requests,omitempty"`
	NoRecordsAbout []string          `json:"no_records_about,omitempty"`
	ParentSlug     string            `json:"parent_slug,omitempty"`
	Contact        ContactInfo       `json:"contact"`
	ReadingRooms   []ReadingRoomURL  `json:"reading_rooms,omitempty"`
	Stats          []ProcessingStats `json:"stats,omitempty"`
}

// Office is a component of an agency with its own FOIA contact.
type Office struct {
	Base
	AgencySlug   string            `json:"agency_slug"`
	Name         string            `json:"name"`
	OfficeSlug   string            `json:"office_slug"`
	Slug         string            `json:"slug"`
	Contact      ContactInfo       `json:"contact"`
	ReadingRooms []ReadingRoomURL  `json:"reading_rooms,omitempty"`
	Stats        []ProcessingStats `json:"stats,omitempty"`
	Notes        string            `json:"notes,omitempty"`
}

// OfficeSlugSeparator joins an agency slug and an office slug into the office's global slug.
const OfficeSlugSeparator = "--"

// OfficeGlobalSlug returns the globally unique slug for an office within an agency.
func OfficeGlobalSlug(agencySlug, officeSlug string) string {
	return agencySlug + OfficeSlugSeparator + officeSlug
}

// Requester is the person filing a FOIA request.
type Requester struct {
	Base
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Email     string `json:"email"`
}

// FOIARequest is a request for records addressed to an agency or one of its offices.
type FOIARequest struct {
	Base
	Status       RequestStatus `json:"status"`
	RequesterID  string        `json:"requester_id"`
	AgencySlug   string        `json:"agency_slug,omitempty"`
	OfficeSlug   string        `json:"office_slug,omitempty"`
	Emails       []string      `json:"emails"`
	DateStart    *time.Time    `json:"date_start,omitempty"`
	DateEnd      *time.Time    `json:"date_end,omitempty"`
	RequestBody  string        `json:"request_body"`
	FeeNewsMedia bool          `json:"fee_newsmedia"`
	FeeWaiver    bool          `json:"fee_waiver"`
	FeeLimit     int           `json:"fee_limit"`
}

// Document is a released record ingested by the import pipeline.
type Document struct {
	Base
	Title             string     `json:"title"`
	ReleaseAgencySlug string     `json:"release_agency_slug"`
	ReleaseOfficeSlug string     `json:"release_office_slug,omitempty"`
	BatchDirectory    string     `json:"batch_directory"`
	DocLocation       string     `json:"doc_location"`
	Text              string     `json:"text,omitempty"`
	DocumentDate      *time.Time `json:"document_date,omitempty"`
	DateCreated       *time.Time `json:"date_created,omitempty"`
	DateReleased      *time.Time `json:"date_released,omitempty"`
	Pages             int        `json:"pages"`
	FileType          string     `json:"file_type"`
	FileKey           string     `json:"file_key,omitempty"`
	FileSize          int64      `json:"file_size,omitempty"`
	ContentType       string     `json:"content_type,omitempty"`
}

// NaturalKey identifies a document independently of its generated ID so that
// re-running an interrupted batch updates rather than duplicates it.
func (d Document) NaturalKey() string {
	return d.ReleaseAgencySlug + "/" + d.ReleaseOfficeSlug + "/" + d.BatchDirectory + "/" + d.DocLocation
}

// ImportLog marks an agency (or office) batch directory as processed.
type ImportLog struct {
	Base
	AgencySlug string `json:"agency_slug"`
	OfficeSlug string `json:"office_slug,omitempty"`
	Directory  string `json:"directory"`
}

// Key returns the uniqueness key of the import log.
func (l ImportLog) Key() string {
	return ImportLogKey(l.AgencySlug, l.OfficeSlug, l.Directory)
}

// ImportLogKey builds the uniqueness key for an (agency, office, directory) triple.
func ImportLogKey(agency, office, directory string) string {
	return agency + "|" + office + "|" + directory
}

// Change describes a mutation applied to an entity during a transaction.
type Change struct {
	Entity EntityType
	Action Action
	Before any
	After  any
}

// Action indicates the type of modification performed.
type Action string

// Change actions enumerate supported CRUD operations captured in audit trail.
const (
	// ActionCreate indicates an entity was created.
	ActionCreate Action = "create"
	// ActionUpdate indicates an entity was updated.
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
)

// Violation reports a failed rule evaluation.
type Violation struct {
	Rule     string
	Severity Severity
	Message  string
	Entity   EntityType
	EntityID string
}

// Result aggregates violations from the rules engine.
type Result struct {
	Violations []Violation
}

// Merge appends violations from another result.
func (r *Result) Merge(other Result) {
	if len(other.Violations) == 0 {
		return
	}
	r.Violations = append(r.Violations, other.Violations...)
}

// HasBlocking returns true if the result contains blocking violations.
func (r Result) HasBlocking() bool {
	for _, v := range r.Violations {
		if v.Severity == SeverityBlock {
			return true
		}
	}
	return false
}

// RuleViolationError is returned when blocking violations are present.
type RuleViolationError struct {
	Result Result
}

func (e RuleViolationError) Error() string {
	for _, v := range e.Result.Violations {
		if v.Severity == SeverityBlock {
			return "transaction blocked by rules: " + v.Message
		}
	}
	return "transaction blocked by rules"
}
