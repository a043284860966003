package school

import (
	"context"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/pmaschool/school-admin-go/internal/config"
	"github.com/pmaschool/school-admin-go/internal/odoo"
)

// Professor is an employee assigned to teach during a school year.
type Professor struct {
	ID            int64
	Name          string
	Employee      Ref
	Year          Ref
	SectionIDs    []int64
	SubjectIDs    []int64
	Current       bool
	SectionsCount int
	SubjectsCount int
}

var professorFields = []string{
	"id",
	"name",
	"professor_id",
	"year_id",
	"section_ids",
	"subject_ids",
	"current",
}

func normalizeProfessor(r odoo.Record) Professor {
	employee, _ := many2one(r["professor_id"])
	year, _ := many2one(r["year_id"])
	sectionIDs := idList(r["section_ids"])
	subjectIDs := idList(r["subject_ids"])

	return Professor{
		ID:            integer(r, "id"),
		Name:          strOr(r, "name", employee.Name),
		Employee:      employee,
		Year:          year,
		SectionIDs:    sectionIDs,
		SubjectIDs:    subjectIDs,
		Current:       boolean(r, "current"),
		SectionsCount: len(sectionIDs),
		SubjectsCount: len(subjectIDs),
	}
}

func normalizeProfessors(records []odoo.Record) []Professor {
	professors := make([]Professor, 0, len(records))
	for _, r := range records {
		professors = append(professors, normalizeProfessor(r))
	}
	return professors
}

// LoadCurrentProfessors returns the active year's assignments, cached.
func (s *Service) LoadCurrentProfessors(ctx context.Context, forceReload bool) []Professor {
	if !forceReload {
		if cached, ok := cachedSlice[Professor](s.cache, cacheKeyProfessorsCurrent); ok && len(cached) > 0 {
			return cached
		}
	}

	records, err := s.api.SearchRead(ctx, ProfessorModel, odoo.SearchQuery{
		Domain: odoo.Domain{odoo.Eq("current", true)},
		Fields: professorFields,
		Limit:  bulkLimit,
		Order:  "name asc",
	})
	if err != nil {
		log.Debug().Err(err).Msg("load current professors failed")
		if cached, ok := cachedSlice[Professor](s.cache, cacheKeyProfessorsCurrent); ok {
			return cached
		}
		return []Professor{}
	}

	professors := normalizeProfessors(records)
	s.cache.Set(cacheKeyProfessorsCurrent, professors, config.CacheTTLProfessors)
	return professors
}

// LoadAllProfessors returns assignments across every school year.
func (s *Service) LoadAllProfessors(ctx context.Context, forceReload bool) []Professor {
	if !forceReload {
		if cached, ok := cachedSlice[Professor](s.cache, cacheKeyProfessorsAll); ok && len(cached) > 0 {
			return cached
		}
	}

	records, err := s.api.SearchRead(ctx, ProfessorModel, odoo.SearchQuery{
		Fields: professorFields,
		Limit:  allYearsLimit,
		Order:  "year_id desc, name asc",
	})
	if err != nil {
		log.Debug().Err(err).Msg("load all professors failed")
		if cached, ok := cachedSlice[Professor](s.cache, cacheKeyProfessorsAll); ok {
			return cached
		}
		return []Professor{}
	}

	professors := normalizeProfessors(records)
	s.cache.Set(cacheKeyProfessorsAll, professors, config.CacheTTLProfessors)
	return professors
}

// LoadProfessorByID fetches a single assignment, nil when missing.
func (s *Service) LoadProfessorByID(ctx context.Context, id int64) *Professor {
	records, err := s.api.Read(ctx, ProfessorModel, []int64{id}, professorFields)
	if err != nil || len(records) == 0 {
		if err != nil {
			log.Debug().Err(err).Int64("id", id).Msg("load professor failed")
		}
		return nil
	}
	professor := normalizeProfessor(records[0])
	return &professor
}

// SearchProfessors matches current-year assignments by name substring.
func (s *Service) SearchProfessors(ctx context.Context, query string) []Professor {
	query = strings.TrimSpace(query)
	if len(query) < minSearchQuery {
		return []Professor{}
	}

	records, err := s.api.SearchRead(ctx, ProfessorModel, odoo.SearchQuery{
		Domain: odoo.Domain{odoo.Ilike("name", query), odoo.Eq("current", true)},
		Fields: professorFields,
		Limit:  searchLimit,
		Order:  "name asc",
	})
	if err != nil {
		log.Debug().Err(err).Msg("search professors failed")
		return []Professor{}
	}
	return normalizeProfessors(records)
}

// CreateProfessor assigns an employee to a school year.
func (s *Service) CreateProfessor(ctx context.Context, employeeID, yearID int64, sectionIDs []int64) (int64, error) {
	values := map[string]any{
		"professor_id": employeeID,
		"year_id":      yearID,
	}
	if len(sectionIDs) > 0 {
		values["section_ids"] = commandSet(sectionIDs)
	}

	id, err := s.api.Create(ctx, ProfessorModel, values)
	if err != nil {
		return 0, err
	}
	s.InvalidateProfessorsCache()
	return id, nil
}

// UpdateProfessor writes values onto an assignment.
func (s *Service) UpdateProfessor(ctx context.Context, id int64, values map[string]any) error {
	if err := s.api.Update(ctx, ProfessorModel, []int64{id}, values); err != nil {
		return err
	}
	s.InvalidateProfessorsCache()
	return nil
}

// DeleteProfessor removes an assignment.
func (s *Service) DeleteProfessor(ctx context.Context, id int64) error {
	if err := s.api.Delete(ctx, ProfessorModel, []int64{id}); err != nil {
		return err
	}
	s.InvalidateProfessorsCache()
	return nil
}

func (s *Service) InvalidateProfessorsCache() {
	s.cache.Invalidate(cacheKeyProfessorsCurrent)
	s.cache.Invalidate(cacheKeyProfessorsAll)
}
