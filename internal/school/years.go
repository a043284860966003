package school

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/pmaschool/school-admin-go/internal/config"
	"github.com/pmaschool/school-admin-go/internal/odoo"
)

// YearOverview is the listing slice of a school.year record: the base
// fields plus KPI counters and the grading scheme per level. The full
// widget payload lives on DashboardData.
type YearOverview struct {
	SchoolYear
	KPIs              DashboardKPIs
	EvaluationConfigs EvaluationConfigs
}

var yearFields = []string{
	"id",
	"name",
	"current",
	"state",
	"evalution_type_secundary",
	"evalution_type_primary",
	"evalution_type_pree",
	"total_students_count",
	"approved_students_count",
	"total_sections_count",
	"total_professors_count",
}

var evaluationTypeFields = []string{"id", "name", "type"}

func normalizeYear(r odoo.Record) YearOverview {
	evalPre, _ := many2one(r["evalution_type_pree"])
	evalPrimary, _ := many2one(r["evalution_type_primary"])
	evalSecundary, _ := many2one(r["evalution_type_secundary"])

	return YearOverview{
		SchoolYear: SchoolYear{
			ID:      integer(r, "id"),
			Name:    str(r, "name"),
			Current: boolean(r, "current"),
			State:   strOr(r, "state", "draft"),
		},
		KPIs: DashboardKPIs{
			TotalStudents:    int(integer(r, "total_students_count")),
			ApprovedStudents: int(integer(r, "approved_students_count")),
			TotalSections:    int(integer(r, "total_sections_count")),
			TotalProfessors:  int(integer(r, "total_professors_count")),
		},
		EvaluationConfigs: EvaluationConfigs{
			Pre:       evalPre,
			Primary:   evalPrimary,
			Secundary: evalSecundary,
		},
	}
}

func normalizeYears(records []odoo.Record) []YearOverview {
	years := make([]YearOverview, 0, len(records))
	for _, r := range records {
		years = append(years, normalizeYear(r))
	}
	return years
}

// LoadYears returns every school year, newest first, cached.
func (s *Service) LoadYears(ctx context.Context, forceReload bool) []YearOverview {
	if !forceReload {
		if cached, ok := cachedSlice[YearOverview](s.cache, cacheKeyYearsAll); ok && len(cached) > 0 {
			return cached
		}
	}

	records, err := s.api.SearchRead(ctx, YearModel, odoo.SearchQuery{
		Fields: yearFields,
		Limit:  bulkLimit,
		Order:  "id desc",
	})
	if err != nil {
		log.Debug().Err(err).Msg("load years failed")
		if cached, ok := cachedSlice[YearOverview](s.cache, cacheKeyYearsAll); ok {
			return cached
		}
		return []YearOverview{}
	}

	years := normalizeYears(records)
	s.cache.Set(cacheKeyYearsAll, years, config.CacheTTLYears)
	return years
}

// LoadCurrentYear returns the active school year, nil when none is
// marked current.
func (s *Service) LoadCurrentYear(ctx context.Context, forceReload bool) *YearOverview {
	if !forceReload {
		if v, ok := s.cache.Get(cacheKeyYearsCurrent); ok {
			if year, ok := v.(*YearOverview); ok {
				return year
			}
		}
	}

	records, err := s.api.SearchRead(ctx, YearModel, odoo.SearchQuery{
		Domain: odoo.Domain{odoo.Eq("current", true)},
		Fields: yearFields,
		Limit:  1,
	})
	if err != nil || len(records) == 0 {
		if err != nil {
			log.Debug().Err(err).Msg("load current year failed")
		}
		if v, ok := s.cache.Get(cacheKeyYearsCurrent); ok {
			if year, ok := v.(*YearOverview); ok {
				return year
			}
		}
		return nil
	}

	year := normalizeYear(records[0])
	s.cache.Set(cacheKeyYearsCurrent, &year, config.CacheTTLYears)
	return &year
}

// LoadYearByID fetches a single school year, nil when missing.
func (s *Service) LoadYearByID(ctx context.Context, id int64) *YearOverview {
	records, err := s.api.Read(ctx, YearModel, []int64{id}, yearFields)
	if err != nil || len(records) == 0 {
		if err != nil {
			log.Debug().Err(err).Int64("id", id).Msg("load year failed")
		}
		return nil
	}
	year := normalizeYear(records[0])
	return &year
}

// LoadEvaluationTypes returns the grading schemes, optionally filtered
// by level (pre, primary or secundary).
func (s *Service) LoadEvaluationTypes(ctx context.Context, levelType string) []Ref {
	var domain odoo.Domain
	if levelType != "" {
		domain = odoo.Domain{odoo.Eq("type", levelType)}
	}

	records, err := s.api.SearchRead(ctx, EvaluationTypeModel, odoo.SearchQuery{
		Domain: domain,
		Fields: evaluationTypeFields,
		Order:  "name asc",
	})
	if err != nil {
		log.Debug().Err(err).Msg("load evaluation types failed")
		return []Ref{}
	}

	types := make([]Ref, 0, len(records))
	for _, r := range records {
		types = append(types, Ref{ID: integer(r, "id"), Name: str(r, "name")})
	}
	return types
}

// YearsCount returns the number of school years, zero on error.
func (s *Service) YearsCount(ctx context.Context) int {
	count, err := s.api.SearchCount(ctx, YearModel, nil)
	if err != nil {
		log.Debug().Err(err).Msg("count years failed")
		return 0
	}
	return count
}

// CreateYear registers a new school year with its grading scheme per
// level and invalidates the year caches.
func (s *Service) CreateYear(ctx context.Context, name string, evalSecundaryID, evalPrimaryID, evalPreeID int64) (int64, error) {
	id, err := s.api.Create(ctx, YearModel, map[string]any{
		"name":                     name,
		"evalution_type_secundary": evalSecundaryID,
		"evalution_type_primary":   evalPrimaryID,
		"evalution_type_pree":      evalPreeID,
	})
	if err != nil {
		return 0, err
	}
	s.InvalidateYearsCache()
	return id, nil
}

// UpdateYear writes values onto a school year.
func (s *Service) UpdateYear(ctx context.Context, id int64, values map[string]any) error {
	if err := s.api.Update(ctx, YearModel, []int64{id}, values); err != nil {
		return err
	}
	s.InvalidateYearsCache()
	return nil
}

// DeleteYear removes a school year.
func (s *Service) DeleteYear(ctx context.Context, id int64) error {
	if err := s.api.Delete(ctx, YearModel, []int64{id}); err != nil {
		return err
	}
	s.InvalidateYearsCache()
	return nil
}

// InvalidateYearsCache drops the year listings and the dashboard built
// from the current year.
func (s *Service) InvalidateYearsCache() {
	s.cache.InvalidatePrefix("years:")
	s.InvalidateDashboardCache()
}
