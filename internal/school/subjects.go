package school

import (
	"context"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/pmaschool/school-admin-go/internal/config"
	"github.com/pmaschool/school-admin-go/internal/odoo"
)

// Subject is a register subject: a course taught in secundary sections
// by one or more teaching employees.
type Subject struct {
	ID              int64
	Name            string
	SectionIDs      []int64
	ProfessorIDs    []int64
	SectionsCount   int
	ProfessorsCount int
}

// SubjectDetails is a subject with its section and employee references
// resolved to full records.
type SubjectDetails struct {
	Subject
	Sections   []Section
	Professors []Employee
}

// Employee is an hr.employee record. The school backend tags teaching
// staff with school_employee_type = docente.
type Employee struct {
	ID           int64
	Name         string
	EmployeeType string
	Active       bool
}

var subjectFields = []string{"id", "name", "section_ids", "professor_ids"}

var employeeFields = []string{"id", "name", "school_employee_type", "active"}

func normalizeSubject(r odoo.Record) Subject {
	sectionIDs := idList(r["section_ids"])
	professorIDs := idList(r["professor_ids"])

	return Subject{
		ID:              integer(r, "id"),
		Name:            str(r, "name"),
		SectionIDs:      sectionIDs,
		ProfessorIDs:    professorIDs,
		SectionsCount:   len(sectionIDs),
		ProfessorsCount: len(professorIDs),
	}
}

func normalizeSubjects(records []odoo.Record) []Subject {
	subjects := make([]Subject, 0, len(records))
	for _, r := range records {
		subjects = append(subjects, normalizeSubject(r))
	}
	return subjects
}

func normalizeEmployee(r odoo.Record) Employee {
	return Employee{
		ID:           integer(r, "id"),
		Name:         str(r, "name"),
		EmployeeType: str(r, "school_employee_type"),
		Active:       boolean(r, "active"),
	}
}

func normalizeEmployees(records []odoo.Record) []Employee {
	employees := make([]Employee, 0, len(records))
	for _, r := range records {
		employees = append(employees, normalizeEmployee(r))
	}
	return employees
}

// LoadSubjects returns every register subject, alphabetically, cached.
func (s *Service) LoadSubjects(ctx context.Context, forceReload bool) []Subject {
	if !forceReload {
		if cached, ok := cachedSlice[Subject](s.cache, cacheKeySubjects); ok && len(cached) > 0 {
			return cached
		}
	}

	records, err := s.api.SearchRead(ctx, SubjectModel, odoo.SearchQuery{
		Fields: subjectFields,
		Limit:  bulkLimit,
		Order:  "name asc",
	})
	if err != nil {
		log.Debug().Err(err).Msg("load subjects failed")
		if cached, ok := cachedSlice[Subject](s.cache, cacheKeySubjects); ok {
			return cached
		}
		return []Subject{}
	}

	subjects := normalizeSubjects(records)
	s.cache.Set(cacheKeySubjects, subjects, config.CacheTTLSubjects)
	return subjects
}

// LoadSubjectByID fetches a single subject with its sections and
// teaching staff resolved, nil when missing.
func (s *Service) LoadSubjectByID(ctx context.Context, id int64) *SubjectDetails {
	records, err := s.api.Read(ctx, SubjectModel, []int64{id}, subjectFields)
	if err != nil || len(records) == 0 {
		if err != nil {
			log.Debug().Err(err).Int64("id", id).Msg("load subject failed")
		}
		return nil
	}

	details := SubjectDetails{
		Subject:    normalizeSubject(records[0]),
		Sections:   []Section{},
		Professors: []Employee{},
	}

	if len(details.SectionIDs) > 0 {
		sections, err := s.api.Read(ctx, RegisterSectionModel, details.SectionIDs, registerSectionFields)
		if err != nil {
			log.Debug().Err(err).Int64("id", id).Msg("resolve subject sections failed")
		} else {
			details.Sections = normalizeSections(sections)
		}
	}
	if len(details.ProfessorIDs) > 0 {
		employees, err := s.api.Read(ctx, EmployeeModel, details.ProfessorIDs, employeeFields)
		if err != nil {
			log.Debug().Err(err).Int64("id", id).Msg("resolve subject professors failed")
		} else {
			details.Professors = normalizeEmployees(employees)
		}
	}

	return &details
}

// SearchSubjects matches register subjects by name substring.
func (s *Service) SearchSubjects(ctx context.Context, query string) []Subject {
	query = strings.TrimSpace(query)
	if len(query) < minSearchQuery {
		return []Subject{}
	}

	records, err := s.api.SearchRead(ctx, SubjectModel, odoo.SearchQuery{
		Domain: odoo.Domain{odoo.Ilike("name", query)},
		Fields: subjectFields,
		Limit:  searchLimit,
		Order:  "name asc",
	})
	if err != nil {
		log.Debug().Err(err).Msg("search subjects failed")
		return []Subject{}
	}
	return normalizeSubjects(records)
}

// SubjectsCount returns the number of register subjects, zero on error.
func (s *Service) SubjectsCount(ctx context.Context) int {
	count, err := s.api.SearchCount(ctx, SubjectModel, nil)
	if err != nil {
		log.Debug().Err(err).Msg("count subjects failed")
		return 0
	}
	return count
}

// LoadSecundarySections returns the register sections subjects can be
// assigned to. Only secundary sections carry subjects.
func (s *Service) LoadSecundarySections(ctx context.Context, forceReload bool) []Section {
	if !forceReload {
		if cached, ok := cachedSlice[Section](s.cache, cacheKeyRegisterSecundary); ok && len(cached) > 0 {
			return cached
		}
	}

	records, err := s.api.SearchRead(ctx, RegisterSectionModel, odoo.SearchQuery{
		Domain: odoo.Domain{odoo.Eq("type", "secundary")},
		Fields: registerSectionFields,
		Limit:  bulkLimit,
		Order:  "name asc",
	})
	if err != nil {
		log.Debug().Err(err).Msg("load secundary sections failed")
		if cached, ok := cachedSlice[Section](s.cache, cacheKeyRegisterSecundary); ok {
			return cached
		}
		return []Section{}
	}

	sections := normalizeSections(records)
	s.cache.Set(cacheKeyRegisterSecundary, sections, config.CacheTTLRegisterSections)
	return sections
}

// LoadTeachingEmployees returns the active docente employees, the pool a
// subject's professors are picked from, cached.
func (s *Service) LoadTeachingEmployees(ctx context.Context, forceReload bool) []Employee {
	if !forceReload {
		if cached, ok := cachedSlice[Employee](s.cache, cacheKeyTeachingEmployees); ok && len(cached) > 0 {
			return cached
		}
	}

	records, err := s.api.SearchRead(ctx, EmployeeModel, odoo.SearchQuery{
		Domain: odoo.Domain{odoo.Eq("school_employee_type", "docente"), odoo.Eq("active", true)},
		Fields: employeeFields,
		Limit:  bulkLimit,
		Order:  "name asc",
	})
	if err != nil {
		log.Debug().Err(err).Msg("load teaching employees failed")
		if cached, ok := cachedSlice[Employee](s.cache, cacheKeyTeachingEmployees); ok {
			return cached
		}
		return []Employee{}
	}

	employees := normalizeEmployees(records)
	s.cache.Set(cacheKeyTeachingEmployees, employees, config.CacheTTLEmployees)
	return employees
}

// CreateSubject registers a new subject, optionally linked to sections
// and teaching staff, and invalidates the cache.
func (s *Service) CreateSubject(ctx context.Context, name string, sectionIDs, professorIDs []int64) (int64, error) {
	values := map[string]any{"name": name}
	if len(sectionIDs) > 0 {
		values["section_ids"] = commandSet(sectionIDs)
	}
	if len(professorIDs) > 0 {
		values["professor_ids"] = commandSet(professorIDs)
	}

	id, err := s.api.Create(ctx, SubjectModel, values)
	if err != nil {
		return 0, err
	}
	s.InvalidateSubjectsCache()
	return id, nil
}

// UpdateSubject writes values onto a subject.
func (s *Service) UpdateSubject(ctx context.Context, id int64, values map[string]any) error {
	if err := s.api.Update(ctx, SubjectModel, []int64{id}, values); err != nil {
		return err
	}
	s.InvalidateSubjectsCache()
	return nil
}

// DeleteSubject removes a subject.
func (s *Service) DeleteSubject(ctx context.Context, id int64) error {
	if err := s.api.Delete(ctx, SubjectModel, []int64{id}); err != nil {
		return err
	}
	s.InvalidateSubjectsCache()
	return nil
}

// AssignSectionsToSubject replaces the subject's section links.
func (s *Service) AssignSectionsToSubject(ctx context.Context, id int64, sectionIDs []int64) error {
	return s.UpdateSubject(ctx, id, map[string]any{"section_ids": commandSet(sectionIDs)})
}

// AssignProfessorsToSubject replaces the subject's teaching staff.
func (s *Service) AssignProfessorsToSubject(ctx context.Context, id int64, professorIDs []int64) error {
	return s.UpdateSubject(ctx, id, map[string]any{"professor_ids": commandSet(professorIDs)})
}

func (s *Service) InvalidateSubjectsCache() {
	s.cache.Invalidate(cacheKeySubjects)
}
