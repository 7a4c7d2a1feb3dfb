package core

import (
	"sort"

	"foiahub/pkg/domain"
)

// AgencySummary is the list representation of an agency.
type AgencySummary struct {
	Name           string   `json:"name"`
	Description    string   `json:"description"`
	Abbreviation   string   `json:"abbreviation"`
	Slug           string   `json:"slug"`
	Keywords       []string `json:"keywords"`
	CommonRequests []string `json:"common_requests"`
}

// ComponentSummary names an office (or a child agency) under an agency.
type ComponentSummary struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Slug string `json:"slug"`
}

// Contact is the flattened contact block shared by agency and office payloads.
type Contact struct {
	PersonName         string   `json:"person_name"`
	Emails             []string `json:"emails"`
	Phone              string   `json:"phone"`
	TollFreePhone      string   `json:"toll_free_phone"`
	Fax                string   `json:"fax"`
	PublicLiaisonName  string   `json:"public_liaison_name"`
	PublicLiaisonEmail string   `json:"public_liaison_email"`
	PublicLiaisonPhone string   `json:"public_liaison_phone"`
	RequestFormURL     string   `json:"request_form_url"`
	OfficeURL          string   `json:"office_url"`
	AddressLines       []string `json:"address_lines"`
	Street             string   `json:"street"`
	City               string   `json:"city"`
	State              string   `json:"state"`
	ZipCode            string   `json:"zip_code"`
}

// AgencyDetail is the agency contact page payload.
type AgencyDetail struct {
	IsA string `json:"is_a"`
	AgencySummary
	AgencySlug            string                  `json:"agency_slug"`
	AgencyName            string                  `json:"agency_name"`
	NoRecordsAbout        []string                `json:"no_records_about"`
	SimpleProcessingTime  *float64                `json:"simple_processing_time"`
	ComplexProcessingTime *float64                `json:"complex_processing_time"`
	Parent                *AgencySummary          `json:"parent,omitempty"`
	FOIALibraries         []domain.ReadingRoomURL `json:"foia_libraries"`
	Offices               []ComponentSummary      `json:"offices"`
	Contact
}

// OfficeDetail is the office contact page payload.
type OfficeDetail struct {
	IsA                   string                  `json:"is_a"`
	ID                    string                  `json:"id"`
	Name                  string                  `json:"name"`
	Slug                  string                  `json:"slug"`
	OfficeSlug            string                  `json:"office_slug"`
	AgencyName            string                  `json:"agency_name"`
	AgencySlug            string                  `json:"agency_slug"`
	AgencyDescription     string                  `json:"agency_description"`
	SimpleProcessingTime  *float64                `json:"simple_processing_time"`
	ComplexProcessingTime *float64                `json:"complex_processing_time"`
	FOIALibraries         []domain.ReadingRoomURL `json:"foia_libraries"`
	Notes                 string                  `json:"notes,omitempty"`
	Contact
}

// RequestReceipt acknowledges a FOIA request.
type RequestReceipt struct {
	Status     domain.RequestStatus `json:"status"`
	TrackingID string               `json:"tracking_id"`
}

func summarizeAgency(a domain.Agency) AgencySummary {
	return AgencySummary{
		Name:           a.Name,
		Description:    a.Description,
		Abbreviation:   a.Abbreviation,
		Slug:           a.Slug,
		Keywords:       nonNil(a.Keywords),
		CommonRequests: nonNil(a.CommonRequests),
	}
}

func contactOf(c domain.ContactInfo) Contact {
	return Contact{
		PersonName:         c.PersonName,
		Emails:             nonNil(c.Emails),
		Phone:              c.Phone,
		TollFreePhone:      c.TollFreePhone,
		Fax:                c.Fax,
		PublicLiaisonName:  c.PublicLiaisonName,
		PublicLiaisonEmail: c.PublicLiaisonEmail,
		PublicLiaisonPhone: c.PublicLiaisonPhone,
		RequestFormURL:     c.RequestFormURL,
		OfficeURL:          c.OfficeURL,
		AddressLines:       nonNil(c.AddressLines),
		Street:             c.Street,
		City:               c.City,
		State:              c.State,
		ZipCode:            c.ZipCode,
	}
}

func libraries(rooms []domain.ReadingRoomURL) []domain.ReadingRoomURL {
	out := make([]domain.ReadingRoomURL, len(rooms))
	copy(out, rooms)
	return out
}

// latestMedian returns the median of the most recent year with a statistic of kind.
func latestMedian(stats []domain.ProcessingStats, kind domain.StatType) *float64 {
	var (
		best  *float64
		year  int
		found bool
	)
	for _, s := range stats {
		if s.StatType != kind {
			continue
		}
		if !found || s.Year > year {
			year, found = s.Year, true
			best = s.Median
		}
	}
	if best == nil {
		return nil
	}
	v := *best
	return &v
}

func agencyDetail(view domain.TransactionView, a domain.Agency) AgencyDetail {
	components := make([]ComponentSummary, 0)
	for _, o := range view.ListAgencyOffices(a.Slug) {
		components = append(components, ComponentSummary{ID: o.ID, Name: o.Name, Slug: o.Slug})
	}
	for _, child := range view.ListAgencies() {
		if child.ParentSlug == a.Slug {
			components = append(components, ComponentSummary{ID: child.ID, Name: child.Name, Slug: child.Slug})
		}
	}
	sort.SliceStable(components, func(i, j int) bool { return components[i].Name < components[j].Name })

	detail := AgencyDetail{
		IsA:                   string(domain.EntityAgency),
		AgencySummary:         summarizeAgency(a),
		AgencySlug:            a.Slug,
		AgencyName:            a.Name,
		NoRecordsAbout:        nonNil(a.NoRecordsAbout),
		SimpleProcessingTime:  latestMedian(a.Stats, domain.StatSimple),
		ComplexProcessingTime: latestMedian(a.Stats, domain.StatComplex),
		FOIALibraries:         libraries(a.ReadingRooms),
		Offices:               components,
		Contact:               contactOf(a.Contact),
	}
	if a.ParentSlug != "" {
		if parent, ok := view.FindAgency(a.ParentSlug); ok {
			summary := summarizeAgency(parent)
			detail.Parent = &summary
		}
	}
	return detail
}

func officeDetail(agency domain.Agency, o domain.Office) OfficeDetail {
	return OfficeDetail{
		IsA:                   string(domain.EntityOffice),
		ID:                    o.ID,
		Name:                  o.Name,
		Slug:                  o.Slug,
		OfficeSlug:            o.OfficeSlug,
		AgencyName:            agency.Name,
		AgencySlug:            agency.Slug,
		AgencyDescription:     agency.Description,
		SimpleProcessingTime:  latestMedian(o.Stats, domain.StatSimple),
		ComplexProcessingTime: latestMedian(o.Stats, domain.StatComplex),
		FOIALibraries:         libraries(o.ReadingRooms),
		Notes:                 o.Notes,
		Contact:               contactOf(o.Contact),
	}
}

func nonNil(in []string) []string {
	if in == nil {
		return []string{}
	}
	return in
}
