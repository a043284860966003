package school

import (
	"context"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/pmaschool/school-admin-go/internal/config"
	"github.com/pmaschool/school-admin-go/internal/odoo"
)

// Evaluation is a graded activity of a section, optionally bound to a
// subject for the secondary level.
type Evaluation struct {
	ID                   int64
	Name                 string
	Description          string
	EvaluationDate       string
	Year                 Ref
	Professor            Ref
	Section              Ref
	Subject              Ref
	HasSubject           bool
	Type                 string
	State                string
	StateScore           string
	ScoreAverage         string
	Current              bool
	InvisibleScore       bool
	InvisibleObservation bool
	InvisibleLiteral     bool
	ScoreIDs             []int64
	ScoresCount          int
}

// EvaluationFilters narrows LoadEvaluations. Zero values are ignored.
type EvaluationFilters struct {
	YearID      int64
	ProfessorID int64
	SectionID   int64
	SubjectID   int64
	Type        string
	State       string
	Current     *bool
}

// EvaluationsCountByState partitions current-year evaluations by grading
// progress.
type EvaluationsCountByState struct {
	All     int
	Partial int
	Draft   int
	Total   int
}

var evaluationFields = []string{
	"id",
	"name",
	"description",
	"evaluation_date",
	"year_id",
	"professor_id",
	"section_id",
	"subject_id",
	"type",
	"state",
	"state_score",
	"score_average",
	"current",
	"invisible_score",
	"invisible_observation",
	"invisible_literal",
	"evaluation_score_ids",
}

// EvaluationStateLabels maps grading states to display labels.
var EvaluationStateLabels = map[string]string{
	"all":     "Calificado",
	"partial": "Parcial",
	"draft":   "Sin calificar",
}

const evaluationOrder = "evaluation_date desc, name asc"

func normalizeEvaluation(r odoo.Record) Evaluation {
	year, _ := many2one(r["year_id"])
	professor, _ := many2one(r["professor_id"])
	section, _ := many2one(r["section_id"])
	subject, hasSubject := many2one(r["subject_id"])
	scoreIDs := idList(r["evaluation_score_ids"])

	return Evaluation{
		ID:                   integer(r, "id"),
		Name:                 str(r, "name"),
		Description:          str(r, "description"),
		EvaluationDate:       str(r, "evaluation_date"),
		Year:                 year,
		Professor:            professor,
		Section:              section,
		Subject:              subject,
		HasSubject:           hasSubject,
		Type:                 strOr(r, "type", "primary"),
		State:                strOr(r, "state", "draft"),
		StateScore:           strOr(r, "state_score", "failed"),
		ScoreAverage:         str(r, "score_average"),
		Current:              boolean(r, "current"),
		InvisibleScore:       boolean(r, "invisible_score"),
		InvisibleObservation: boolean(r, "invisible_observation"),
		InvisibleLiteral:     boolean(r, "invisible_literal"),
		ScoreIDs:             scoreIDs,
		ScoresCount:          len(scoreIDs),
	}
}

func normalizeEvaluations(records []odoo.Record) []Evaluation {
	evaluations := make([]Evaluation, 0, len(records))
	for _, r := range records {
		evaluations = append(evaluations, normalizeEvaluation(r))
	}
	return evaluations
}

// LoadCurrentEvaluations returns the active year's evaluations, cached.
func (s *Service) LoadCurrentEvaluations(ctx context.Context, forceReload bool) []Evaluation {
	if !forceReload {
		if cached, ok := cachedSlice[Evaluation](s.cache, cacheKeyEvaluationsCurrent); ok && len(cached) > 0 {
			return cached
		}
	}

	records, err := s.api.SearchRead(ctx, EvaluationModel, odoo.SearchQuery{
		Domain: odoo.Domain{odoo.Eq("current", true)},
		Fields: evaluationFields,
		Limit:  bulkLimit,
		Order:  evaluationOrder,
	})
	if err != nil {
		log.Debug().Err(err).Msg("load current evaluations failed")
		if cached, ok := cachedSlice[Evaluation](s.cache, cacheKeyEvaluationsCurrent); ok {
			return cached
		}
		return []Evaluation{}
	}

	evaluations := normalizeEvaluations(records)
	s.cache.Set(cacheKeyEvaluationsCurrent, evaluations, config.CacheTTLEvaluations)
	return evaluations
}

// LoadEvaluations returns evaluations matching the filters, uncached.
func (s *Service) LoadEvaluations(ctx context.Context, filters EvaluationFilters) []Evaluation {
	domain := odoo.Domain{}
	if filters.Current != nil {
		domain = append(domain, odoo.Eq("current", *filters.Current))
	}
	if filters.YearID != 0 {
		domain = append(domain, odoo.Eq("year_id", filters.YearID))
	}
	if filters.ProfessorID != 0 {
		domain = append(domain, odoo.Eq("professor_id", filters.ProfessorID))
	}
	if filters.SectionID != 0 {
		domain = append(domain, odoo.Eq("section_id", filters.SectionID))
	}
	if filters.SubjectID != 0 {
		domain = append(domain, odoo.Eq("subject_id", filters.SubjectID))
	}
	if filters.Type != "" {
		domain = append(domain, odoo.Eq("type", filters.Type))
	}
	if filters.State != "" {
		domain = append(domain, odoo.Eq("state", filters.State))
	}

	records, err := s.api.SearchRead(ctx, EvaluationModel, odoo.SearchQuery{
		Domain: domain,
		Fields: evaluationFields,
		Limit:  bulkLimit,
		Order:  evaluationOrder,
	})
	if err != nil {
		log.Debug().Err(err).Msg("load evaluations failed")
		return []Evaluation{}
	}
	return normalizeEvaluations(records)
}

// LoadAllEvaluations returns evaluations across every school year.
func (s *Service) LoadAllEvaluations(ctx context.Context, forceReload bool) []Evaluation {
	if !forceReload {
		if cached, ok := cachedSlice[Evaluation](s.cache, cacheKeyEvaluationsAll); ok && len(cached) > 0 {
			return cached
		}
	}

	records, err := s.api.SearchRead(ctx, EvaluationModel, odoo.SearchQuery{
		Fields: evaluationFields,
		Limit:  allYearsLimit,
		Order:  "year_id desc, evaluation_date desc",
	})
	if err != nil {
		log.Debug().Err(err).Msg("load all evaluations failed")
		if cached, ok := cachedSlice[Evaluation](s.cache, cacheKeyEvaluationsAll); ok {
			return cached
		}
		return []Evaluation{}
	}

	evaluations := normalizeEvaluations(records)
	s.cache.Set(cacheKeyEvaluationsAll, evaluations, config.CacheTTLEvaluations)
	return evaluations
}

// LoadEvaluationByID fetches a single evaluation, nil when missing.
func (s *Service) LoadEvaluationByID(ctx context.Context, id int64) *Evaluation {
	records, err := s.api.Read(ctx, EvaluationModel, []int64{id}, evaluationFields)
	if err != nil || len(records) == 0 {
		if err != nil {
			log.Debug().Err(err).Int64("id", id).Msg("load evaluation failed")
		}
		return nil
	}
	evaluation := normalizeEvaluation(records[0])
	return &evaluation
}

// SearchEvaluations matches evaluations by name substring, current year
// only unless currentOnly is false.
func (s *Service) SearchEvaluations(ctx context.Context, query string, currentOnly bool) []Evaluation {
	query = strings.TrimSpace(query)
	if len(query) < minSearchQuery {
		return []Evaluation{}
	}

	domain := odoo.Domain{odoo.Ilike("name", query)}
	if currentOnly {
		domain = append(domain, odoo.Eq("current", true))
	}

	records, err := s.api.SearchRead(ctx, EvaluationModel, odoo.SearchQuery{
		Domain: domain,
		Fields: evaluationFields,
		Limit:  searchLimit,
		Order:  "evaluation_date desc",
	})
	if err != nil {
		log.Debug().Err(err).Msg("search evaluations failed")
		return []Evaluation{}
	}
	return normalizeEvaluations(records)
}

// EvaluationsCount partitions current-year evaluations by grading state.
func (s *Service) EvaluationsCount(ctx context.Context) EvaluationsCountByState {
	base := odoo.Domain{odoo.Eq("current", true)}
	counts := s.countByField(ctx, EvaluationModel, "state", base, []string{"all", "partial", "draft"})
	return EvaluationsCountByState{
		All:     counts["all"],
		Partial: counts["partial"],
		Draft:   counts["draft"],
		Total:   counts["all"] + counts["partial"] + counts["draft"],
	}
}

// NewEvaluation is the payload for CreateEvaluation. SubjectID is only
// meaningful for the secondary level.
type NewEvaluation struct {
	Name           string
	Description    string
	EvaluationDate string
	YearID         int64
	ProfessorID    int64
	SectionID      int64
	SubjectID      int64
}

// CreateEvaluation inserts an evaluation and invalidates the cache.
func (s *Service) CreateEvaluation(ctx context.Context, e NewEvaluation) (int64, error) {
	values := map[string]any{
		"name":            e.Name,
		"description":     e.Description,
		"evaluation_date": e.EvaluationDate,
		"year_id":         e.YearID,
		"professor_id":    e.ProfessorID,
		"section_id":      e.SectionID,
	}
	if e.SubjectID != 0 {
		values["subject_id"] = e.SubjectID
	}

	id, err := s.api.Create(ctx, EvaluationModel, values)
	if err != nil {
		return 0, err
	}
	s.InvalidateEvaluationsCache()
	return id, nil
}

// UpdateEvaluation writes values onto an evaluation.
func (s *Service) UpdateEvaluation(ctx context.Context, id int64, values map[string]any) error {
	if err := s.api.Update(ctx, EvaluationModel, []int64{id}, values); err != nil {
		return err
	}
	s.InvalidateEvaluationsCache()
	return nil
}

// DeleteEvaluation removes an evaluation. The backend rejects deletion
// when scores are already registered; that surfaces as a domain error.
func (s *Service) DeleteEvaluation(ctx context.Context, id int64) error {
	if err := s.api.Delete(ctx, EvaluationModel, []int64{id}); err != nil {
		return err
	}
	s.InvalidateEvaluationsCache()
	return nil
}

func (s *Service) InvalidateEvaluationsCache() {
	s.cache.Invalidate(cacheKeyEvaluationsCurrent)
	s.cache.Invalidate(cacheKeyEvaluationsAll)
}
