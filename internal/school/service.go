// Package school contains the typed domain loaders over the Odoo client:
// dashboard, evaluations, professors, sections, subjects, school years
// and student enrollments.
// Loaders never return errors; every failure path degrades to an empty or
// cached result so callers always have something to render.
package school

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/pmaschool/school-admin-go/internal/cache"
	"github.com/pmaschool/school-admin-go/internal/odoo"
)

// API is the slice of the Odoo client the loaders consume. Kept small so
// tests can mock it.
type API interface {
	SearchRead(ctx context.Context, model string, q odoo.SearchQuery) ([]odoo.Record, error)
	Read(ctx context.Context, model string, ids []int64, fields []string) ([]odoo.Record, error)
	SearchCount(ctx context.Context, model string, domain odoo.Domain) (int, error)
	Create(ctx context.Context, model string, values map[string]any) (int64, error)
	Update(ctx context.Context, model string, ids []int64, values map[string]any) error
	Delete(ctx context.Context, model string, ids []int64) error
}

// Odoo model names owned by the school backend.
const (
	RegisterSectionModel = "school.register.section"
	SectionModel         = "school.section"
	SubjectModel         = "school.register.subject"
	EvaluationModel      = "school.evaluation"
	EvaluationTypeModel  = "school.evaluation.type"
	ProfessorModel       = "school.professor"
	EmployeeModel        = "hr.employee"
	EnrollmentModel      = "school.student"
	YearModel            = "school.year"
)

// The closed set of cache keys. Invalidation lives next to the loaders
// that populate these, so adding a collection cannot drift.
const (
	cacheKeyRegisterSections   cache.Key = "register_sections:all"
	cacheKeyRegisterSecundary  cache.Key = "register_sections:secundary"
	cacheKeySectionsCurrent    cache.Key = "sections:current"
	cacheKeySectionsAll        cache.Key = "sections:all"
	cacheKeyEvaluationsCurrent cache.Key = "evaluations:current"
	cacheKeyEvaluationsAll     cache.Key = "evaluations:all"
	cacheKeyProfessorsCurrent  cache.Key = "professors:current"
	cacheKeyProfessorsAll      cache.Key = "professors:all"
	cacheKeyEnrollmentsCurrent cache.Key = "enrollments:current"
	cacheKeyEnrollmentsAll     cache.Key = "enrollments:all"
	cacheKeySubjects           cache.Key = "subjects:all"
	cacheKeyTeachingEmployees  cache.Key = "employees:docentes:active"
	cacheKeyYearsAll           cache.Key = "years:all"
	cacheKeyYearsCurrent       cache.Key = "years:current"
	cacheKeyDashboard          cache.Key = "dashboard:full"
	cacheKeyDashboardLight     cache.Key = "dashboard:light"
)

// Result limits. The minimum query length guards the ilike searches from
// scanning on one-character input.
const (
	bulkLimit      = 1000
	allYearsLimit  = 5000
	searchLimit    = 50
	minSearchQuery = 2
)

type Service struct {
	api   API
	cache *cache.Cache
}

func NewService(api API, c *cache.Cache) *Service {
	return &Service{api: api, cache: c}
}

// CacheStats exposes cache occupancy for the status command.
func (s *Service) CacheStats() cache.Stats {
	return s.cache.Stats()
}

// ClearCache drops every cached collection.
func (s *Service) ClearCache() {
	s.cache.Clear()
}

// cachedSlice reads a typed slice out of the cache.
func cachedSlice[T any](c *cache.Cache, key cache.Key) ([]T, bool) {
	v, ok := c.Get(key)
	if !ok {
		return nil, false
	}
	s, ok := v.([]T)
	return s, ok
}

// countByField fans out one search_count per value of field, on top of an
// optional base domain. Branches run concurrently; a failed branch simply
// contributes nothing and the rest still land.
func (s *Service) countByField(ctx context.Context, model, field string, base odoo.Domain, values []string) map[string]int {
	var wg sync.WaitGroup
	var mu sync.Mutex
	counts := make(map[string]int, len(values))

	for _, value := range values {
		wg.Add(1)
		go func(value string) {
			defer wg.Done()
			domain := append(append(odoo.Domain{}, base...), odoo.Eq(field, value))
			count, err := s.api.SearchCount(ctx, model, domain)
			if err != nil {
				log.Debug().Err(err).Str("model", model).Str("value", value).Msg("count failed")
				return
			}
			mu.Lock()
			counts[value] = count
			mu.Unlock()
		}(value)
	}

	wg.Wait()
	return counts
}
