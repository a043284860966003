package school

import (
	"context"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/pmaschool/school-admin-go/internal/config"
	"github.com/pmaschool/school-admin-go/internal/odoo"
)

// EnrolledSection is a section activated for a school year, with its
// assigned professors, subjects and students.
type EnrolledSection struct {
	ID              int64
	Name            string
	Year            Ref
	BaseSection     Ref
	Type            string
	Current         bool
	ProfessorIDs    []int64
	SubjectIDs      []int64
	StudentIDs      []int64
	StudentsCount   int
	SubjectsCount   int
	ProfessorsCount int

	// Computed stats the backend embeds as JSON columns.
	SubjectsAverage *SubjectsAverage
	StudentsAverage *StudentsAverage
	TopStudents     *TopStudents
}

type SubjectAverage struct {
	SubjectID        int64   `json:"subject_id"`
	SubjectName      string  `json:"subject_name"`
	Average          float64 `json:"average"`
	TotalStudents    int     `json:"total_students"`
	ApprovedStudents int     `json:"approved_students"`
	FailedStudents   int     `json:"failed_students"`
}

type SubjectsAverage struct {
	EvaluationType string           `json:"evaluation_type"`
	Subjects       []SubjectAverage `json:"subjects"`
	GeneralAverage float64          `json:"general_average"`
}

type StudentAverage struct {
	StudentID   int64   `json:"student_id"`
	StudentName string  `json:"student_name"`
	Average     float64 `json:"average"`
	State       string  `json:"state"`
}

type StudentsAverage struct {
	EvaluationType   string           `json:"evaluation_type"`
	SectionType      string           `json:"section_type"`
	TotalStudents    int              `json:"total_students"`
	ApprovedStudents int              `json:"approved_students"`
	FailedStudents   int              `json:"failed_students"`
	GeneralAverage   float64          `json:"general_average"`
	Students         []StudentAverage `json:"students"`
}

type TopStudent struct {
	StudentID      int64   `json:"student_id"`
	StudentName    string  `json:"student_name"`
	Average        float64 `json:"average"`
	LiteralAverage string  `json:"literal_average,omitempty"`
	State          string  `json:"state"`
	UseLiteral     bool    `json:"use_literal"`
}

type TopStudents struct {
	EvaluationType string       `json:"evaluation_type"`
	SectionType    string       `json:"section_type"`
	TopStudents    []TopStudent `json:"top_students"`
}

var enrolledSectionFields = []string{
	"id",
	"name",
	"year_id",
	"section_id",
	"type",
	"current",
	"professor_ids",
	"subject_ids",
	"student_ids",
	"subjects_average_json",
	"students_average_json",
	"top_students_json",
}

func normalizeEnrolledSection(r odoo.Record) EnrolledSection {
	year, _ := many2one(r["year_id"])
	base, _ := many2one(r["section_id"])
	professorIDs := idList(r["professor_ids"])
	subjectIDs := idList(r["subject_ids"])
	studentIDs := idList(r["student_ids"])

	return EnrolledSection{
		ID:              integer(r, "id"),
		Name:            str(r, "name"),
		Year:            year,
		BaseSection:     base,
		Type:            strOr(r, "type", "primary"),
		Current:         boolean(r, "current"),
		ProfessorIDs:    professorIDs,
		SubjectIDs:      subjectIDs,
		StudentIDs:      studentIDs,
		StudentsCount:   len(studentIDs),
		SubjectsCount:   len(subjectIDs),
		ProfessorsCount: len(professorIDs),
		SubjectsAverage: jsonField[SubjectsAverage](r["subjects_average_json"]),
		StudentsAverage: jsonField[StudentsAverage](r["students_average_json"]),
		TopStudents:     jsonField[TopStudents](r["top_students_json"]),
	}
}

func normalizeEnrolledSections(records []odoo.Record) []EnrolledSection {
	sections := make([]EnrolledSection, 0, len(records))
	for _, r := range records {
		sections = append(sections, normalizeEnrolledSection(r))
	}
	return sections
}

// LoadCurrentEnrolledSections returns the active year's sections, cached.
func (s *Service) LoadCurrentEnrolledSections(ctx context.Context, forceReload bool) []EnrolledSection {
	if !forceReload {
		if cached, ok := cachedSlice[EnrolledSection](s.cache, cacheKeySectionsCurrent); ok && len(cached) > 0 {
			return cached
		}
	}

	records, err := s.api.SearchRead(ctx, SectionModel, odoo.SearchQuery{
		Domain: odoo.Domain{odoo.Eq("current", true)},
		Fields: enrolledSectionFields,
		Limit:  bulkLimit,
		Order:  "name asc",
	})
	if err != nil {
		log.Debug().Err(err).Msg("load current enrolled sections failed")
		if cached, ok := cachedSlice[EnrolledSection](s.cache, cacheKeySectionsCurrent); ok {
			return cached
		}
		return []EnrolledSection{}
	}

	sections := normalizeEnrolledSections(records)
	s.cache.Set(cacheKeySectionsCurrent, sections, config.CacheTTLSections)
	return sections
}

// LoadAllEnrolledSections returns sections across every school year.
func (s *Service) LoadAllEnrolledSections(ctx context.Context, forceReload bool) []EnrolledSection {
	if !forceReload {
		if cached, ok := cachedSlice[EnrolledSection](s.cache, cacheKeySectionsAll); ok && len(cached) > 0 {
			return cached
		}
	}

	records, err := s.api.SearchRead(ctx, SectionModel, odoo.SearchQuery{
		Fields: enrolledSectionFields,
		Limit:  allYearsLimit,
		Order:  "year_id desc, name asc",
	})
	if err != nil {
		log.Debug().Err(err).Msg("load all enrolled sections failed")
		if cached, ok := cachedSlice[EnrolledSection](s.cache, cacheKeySectionsAll); ok {
			return cached
		}
		return []EnrolledSection{}
	}

	sections := normalizeEnrolledSections(records)
	s.cache.Set(cacheKeySectionsAll, sections, config.CacheTTLSections)
	return sections
}

// LoadEnrolledSectionByID fetches a single section, nil when missing.
func (s *Service) LoadEnrolledSectionByID(ctx context.Context, id int64) *EnrolledSection {
	records, err := s.api.Read(ctx, SectionModel, []int64{id}, enrolledSectionFields)
	if err != nil || len(records) == 0 {
		if err != nil {
			log.Debug().Err(err).Int64("id", id).Msg("load enrolled section failed")
		}
		return nil
	}
	section := normalizeEnrolledSection(records[0])
	return &section
}

// SearchEnrolledSections matches current-year sections by name substring.
func (s *Service) SearchEnrolledSections(ctx context.Context, query string) []EnrolledSection {
	query = strings.TrimSpace(query)
	if len(query) < minSearchQuery {
		return []EnrolledSection{}
	}

	records, err := s.api.SearchRead(ctx, SectionModel, odoo.SearchQuery{
		Domain: odoo.Domain{odoo.Ilike("name", query), odoo.Eq("current", true)},
		Fields: enrolledSectionFields,
		Limit:  searchLimit,
		Order:  "name asc",
	})
	if err != nil {
		log.Debug().Err(err).Msg("search enrolled sections failed")
		return []EnrolledSection{}
	}
	return normalizeEnrolledSections(records)
}

// EnrolledSectionsCount partitions the current year's sections by level.
func (s *Service) EnrolledSectionsCount(ctx context.Context) SectionsCountByType {
	base := odoo.Domain{odoo.Eq("current", true)}
	counts := s.countByField(ctx, SectionModel, "type", base, []string{"pre", "primary", "secundary"})
	return SectionsCountByType{
		Pre:       counts["pre"],
		Primary:   counts["primary"],
		Secundary: counts["secundary"],
		Total:     counts["pre"] + counts["primary"] + counts["secundary"],
	}
}

// CreateEnrolledSection activates a register section for a year,
// optionally assigning professors.
func (s *Service) CreateEnrolledSection(ctx context.Context, yearID, baseSectionID int64, professorIDs []int64) (int64, error) {
	values := map[string]any{
		"year_id":    yearID,
		"section_id": baseSectionID,
	}
	if len(professorIDs) > 0 {
		values["professor_ids"] = commandSet(professorIDs)
	}

	id, err := s.api.Create(ctx, SectionModel, values)
	if err != nil {
		return 0, err
	}
	s.InvalidateEnrolledSectionsCache()
	return id, nil
}

// UpdateEnrolledSection writes values onto a section.
func (s *Service) UpdateEnrolledSection(ctx context.Context, id int64, values map[string]any) error {
	if err := s.api.Update(ctx, SectionModel, []int64{id}, values); err != nil {
		return err
	}
	s.InvalidateEnrolledSectionsCache()
	return nil
}

// DeleteEnrolledSection removes a section from its year.
func (s *Service) DeleteEnrolledSection(ctx context.Context, id int64) error {
	if err := s.api.Delete(ctx, SectionModel, []int64{id}); err != nil {
		return err
	}
	s.InvalidateEnrolledSectionsCache()
	return nil
}

func (s *Service) InvalidateEnrolledSectionsCache() {
	s.cache.InvalidatePrefix("sections:")
}
