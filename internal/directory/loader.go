// Package directory loads the agency contact directory from YAML files.
//
// Each file describes one agency and its FOIA offices ("departments"). A
// department marked top_level carries the agency's own contact details
// instead of becoming an office.
package directory

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"foiahub/pkg/domain"
)

// YearStats holds the median processing days reported for one year.
type YearStats struct {
	SimpleMedianDays  *float64 `yaml:"simple_median_days"`
	ComplexMedianDays *float64 `yaml:"complex_median_days"`
}

// Department is an office entry of an agency file.
type Department struct {
	Name     string `yaml:"name"`
	Slug     string `yaml:"slug"`
	TopLevel bool   `yaml:"top_level"`
	Notes    string `yaml:"notes"`

	domain.ContactInfo `yaml:",inline"`
	ReadingRooms       []domain.ReadingRoomURL `yaml:"reading_rooms"`
	RequestTimeStats   map[string]YearStats    `yaml:"request_time_stats"`
}

// AgencyFile is the document stored in one YAML file.
type AgencyFile struct {
	Name           string   `yaml:"name"`
	Slug           string   `yaml:"slug"`
	Abbreviation   string   `yaml:"abbreviation"`
	Description    string   `yaml:"description"`
	Parent         string   `yaml:"parent"`
	Keywords       []string `yaml:"keywords"`
	CommonRequests []string `yaml:"common_requests"`
	NoRecordsAbout []string `yaml:"no_records_about"`

	domain.ContactInfo `yaml:",inline"`
	ReadingRooms       []domain.ReadingRoomURL `yaml:"reading_rooms"`
	RequestTimeStats   map[string]YearStats    `yaml:"request_time_stats"`
	Departments        []Department            `yaml:"departments"`
}

// Parse decodes an agency file.
func Parse(data []byte) (AgencyFile, error) {
	var f AgencyFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return AgencyFile{}, err
	}
	if f.Name == "" {
		return AgencyFile{}, fmt.Errorf("agency name required")
	}
	return f, nil
}

// Summary counts what a load changed.
type Summary struct {
	AgenciesCreated int
	AgenciesUpdated int
	OfficesCreated  int
	OfficesUpdated  int
}

func (s *Summary) add(o Summary) {
	s.AgenciesCreated += o.AgenciesCreated
	s.AgenciesUpdated += o.AgenciesUpdated
	s.OfficesCreated += o.OfficesCreated
	s.OfficesUpdated += o.OfficesUpdated
}

// Loader upserts agency files into a store, keyed by slug.
type Loader struct {
	store  domain.PersistentStore
	logger *zap.Logger
}

// NewLoader returns a loader writing to store.
func NewLoader(store domain.PersistentStore, logger *zap.Logger) *Loader {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Loader{store: store, logger: logger}
}

// LoadDir loads every *.yaml and *.yml file in dir in name order.
func (l *Loader) LoadDir(ctx context.Context, dir string) (Summary, error) {
	var files []string
	for _, pattern := range []string{"*.yaml", "*.yml"} {
		matches, err := filepath.Glob(filepath.Join(dir, pattern))
		if err != nil {
			return Summary{}, err
		}
		files = append(files, matches...)
	}
	sort.Strings(files)
	var total Summary
	for _, path := range files {
		s, err := l.LoadFile(ctx, path)
		if err != nil {
			return total, err
		}
		total.add(s)
	}
	return total, nil
}

// LoadFile loads a single agency file.
func (l *Loader) LoadFile(ctx context.Context, path string) (Summary, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Summary{}, err
	}
	f, err := Parse(data)
	if err != nil {
		return Summary{}, fmt.Errorf("parse %s: %w", path, err)
	}
	s, err := l.Load(ctx, f)
	if err != nil {
		return Summary{}, fmt.Errorf("load %s: %w", path, err)
	}
	l.logger.Info("agency loaded",
		zap.String("file", filepath.Base(path)),
		zap.Int("offices_created", s.OfficesCreated),
		zap.Int("offices_updated", s.OfficesUpdated))
	return s, nil
}

// Load writes the agency and its offices in one transaction.
func (l *Loader) Load(ctx context.Context, f AgencyFile) (Summary, error) {
	var s Summary
	agency := agencyFromFile(f)
	_, err := l.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		s = Summary{}
		if _, ok := tx.FindAgency(agency.Slug); ok {
			if _, err := tx.UpdateAgency(agency.Slug, func(a *domain.Agency) error {
				id := a.ID
				*a = agency
				a.ID = id
				return nil
			}); err != nil {
				return err
			}
			s.AgenciesUpdated++
		} else {
			if _, err := tx.CreateAgency(agency); err != nil {
				return err
			}
			s.AgenciesCreated++
		}
		for _, d := range f.Departments {
			if d.TopLevel {
				continue
			}
			office := officeFromDepartment(agency.Slug, d)
			if _, ok := tx.FindOffice(domain.OfficeGlobalSlug(office.AgencySlug, office.OfficeSlug)); ok {
				if _, err := tx.UpdateOffice(domain.OfficeGlobalSlug(office.AgencySlug, office.OfficeSlug), func(o *domain.Office) error {
					o.Name = office.Name
					o.Contact = office.Contact
					o.ReadingRooms = office.ReadingRooms
					o.Stats = office.Stats
					o.Notes = office.Notes
					return nil
				}); err != nil {
					return err
				}
				s.OfficesUpdated++
				continue
			}
			if _, err := tx.CreateOffice(office); err != nil {
				return err
			}
			s.OfficesCreated++
		}
		return nil
	})
	return s, err
}

func agencyFromFile(f AgencyFile) domain.Agency {
	a := domain.Agency{
		Name:           f.Name,
		Abbreviation:   f.Abbreviation,
		Description:    f.Description,
		Slug:           f.Slug,
		Keywords:       f.Keywords,
		CommonRequests: f.CommonRequests,
		NoRecordsAbout: f.NoRecordsAbout,
		ParentSlug:     f.Parent,
		Contact:        f.ContactInfo,
		ReadingRooms:   f.ReadingRooms,
		Stats:          stats(f.RequestTimeStats),
	}
	if a.Slug == "" {
		a.Slug = Slugify(f.Name)
	}
	// Single-office agencies describe their own contact as a top-level department.
	for _, d := range f.Departments {
		if !d.TopLevel {
			continue
		}
		a.Contact = d.ContactInfo
		if len(d.ReadingRooms) > 0 {
			a.ReadingRooms = d.ReadingRooms
		}
		if len(d.RequestTimeStats) > 0 {
			a.Stats = stats(d.RequestTimeStats)
		}
		break
	}
	if a.Contact.Name == "" {
		a.Contact.Name = a.Name
	}
	return a
}

func officeFromDepartment(agencySlug string, d Department) domain.Office {
	slug := d.Slug
	if slug == "" {
		slug = Slugify(d.Name)
	}
	contact := d.ContactInfo
	if contact.Name == "" {
		contact.Name = d.Name
	}
	return domain.Office{
		AgencySlug:   agencySlug,
		Name:         d.Name,
		OfficeSlug:   slug,
		Contact:      contact,
		ReadingRooms: d.ReadingRooms,
		Stats:        stats(d.RequestTimeStats),
		Notes:        d.Notes,
	}
}

// stats flattens request_time_stats into per-year simple and complex entries.
func stats(byYear map[string]YearStats) []domain.ProcessingStats {
	var out []domain.ProcessingStats
	for year, ys := range byYear {
		y, err := strconv.Atoi(year)
		if err != nil {
			continue
		}
		if ys.SimpleMedianDays != nil {
			out = append(out, domain.ProcessingStats{Year: y, StatType: domain.StatSimple, Median: ys.SimpleMedianDays})
		}
		if ys.ComplexMedianDays != nil {
			out = append(out, domain.ProcessingStats{Year: y, StatType: domain.StatComplex, Median: ys.ComplexMedianDays})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Year != out[j].Year {
			return out[i].Year < out[j].Year
		}
		return out[i].StatType > out[j].StatType
	})
	return out
}
