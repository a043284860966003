package school

import (
	"context"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/pmaschool/school-admin-go/internal/config"
	"github.com/pmaschool/school-admin-go/internal/odoo"
)

// Section is a base section from the school register, independent of any
// school year (the year-bound counterpart is EnrolledSection).
type Section struct {
	ID   int64
	Name string
	Type string
}

// SectionsCountByType partitions the register by education level.
type SectionsCountByType struct {
	Pre       int
	Primary   int
	Secundary int
	Total     int
}

var registerSectionFields = []string{"id", "name", "type"}

// SectionTypeLabels maps the backend's level codes to display labels.
var SectionTypeLabels = map[string]string{
	"pre":       "Preescolar",
	"primary":   "Primaria",
	"secundary": "Media General",
}

func normalizeSection(r odoo.Record) Section {
	return Section{
		ID:   integer(r, "id"),
		Name: str(r, "name"),
		Type: strOr(r, "type", "primary"),
	}
}

func normalizeSections(records []odoo.Record) []Section {
	sections := make([]Section, 0, len(records))
	for _, r := range records {
		sections = append(sections, normalizeSection(r))
	}
	return sections
}

// LoadSections returns every register section, alphabetically, cached.
// On RPC failure it falls back to the cached copy, then to an empty slice.
func (s *Service) LoadSections(ctx context.Context, forceReload bool) []Section {
	if !forceReload {
		if cached, ok := cachedSlice[Section](s.cache, cacheKeyRegisterSections); ok && len(cached) > 0 {
			return cached
		}
	}

	records, err := s.api.SearchRead(ctx, RegisterSectionModel, odoo.SearchQuery{
		Fields: registerSectionFields,
		Limit:  bulkLimit,
		Order:  "name asc",
	})
	if err != nil {
		log.Debug().Err(err).Msg("load sections failed")
		if cached, ok := cachedSlice[Section](s.cache, cacheKeyRegisterSections); ok {
			return cached
		}
		return []Section{}
	}

	sections := normalizeSections(records)
	s.cache.Set(cacheKeyRegisterSections, sections, config.CacheTTLRegisterSections)
	return sections
}

// LoadSectionsByType filters the register by level, reusing the cached
// full list rather than a per-type server query.
func (s *Service) LoadSectionsByType(ctx context.Context, sectionType string, forceReload bool) []Section {
	all := s.LoadSections(ctx, forceReload)
	filtered := make([]Section, 0, len(all))
	for _, section := range all {
		if section.Type == sectionType {
			filtered = append(filtered, section)
		}
	}
	return filtered
}

// SearchSections matches register sections by name substring. Queries
// shorter than two characters return nothing.
func (s *Service) SearchSections(ctx context.Context, query string) []Section {
	query = strings.TrimSpace(query)
	if len(query) < minSearchQuery {
		return []Section{}
	}

	records, err := s.api.SearchRead(ctx, RegisterSectionModel, odoo.SearchQuery{
		Domain: odoo.Domain{odoo.Ilike("name", query)},
		Fields: registerSectionFields,
		Limit:  searchLimit,
		Order:  "name asc",
	})
	if err != nil {
		log.Debug().Err(err).Msg("search sections failed")
		return []Section{}
	}
	return normalizeSections(records)
}

// SectionsCount fans out one search_count per level. A failed branch
// counts as zero; the others still land.
func (s *Service) SectionsCount(ctx context.Context) SectionsCountByType {
	counts := s.countByField(ctx, RegisterSectionModel, "type", nil, []string{"pre", "primary", "secundary"})
	return SectionsCountByType{
		Pre:       counts["pre"],
		Primary:   counts["primary"],
		Secundary: counts["secundary"],
		Total:     counts["pre"] + counts["primary"] + counts["secundary"],
	}
}

// CreateSection registers a new base section and invalidates the cache.
func (s *Service) CreateSection(ctx context.Context, name, sectionType string) (int64, error) {
	id, err := s.api.Create(ctx, RegisterSectionModel, map[string]any{
		"name": name,
		"type": sectionType,
	})
	if err != nil {
		return 0, err
	}
	s.InvalidateSectionsCache()
	return id, nil
}

// UpdateSection writes values onto a register section.
func (s *Service) UpdateSection(ctx context.Context, id int64, values map[string]any) error {
	if err := s.api.Update(ctx, RegisterSectionModel, []int64{id}, values); err != nil {
		return err
	}
	s.InvalidateSectionsCache()
	return nil
}

// DeleteSection removes a register section.
func (s *Service) DeleteSection(ctx context.Context, id int64) error {
	if err := s.api.Delete(ctx, RegisterSectionModel, []int64{id}); err != nil {
		return err
	}
	s.InvalidateSectionsCache()
	return nil
}

func (s *Service) InvalidateSectionsCache() {
	s.cache.InvalidatePrefix("register_sections:")
}
