package school

import (
	"context"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/pmaschool/school-admin-go/internal/config"
	"github.com/pmaschool/school-admin-go/internal/odoo"
)

// StudentEnrollment is a student's inscription into a section for a
// school year. The student themselves is a partner record; Mention only
// applies to the technical secondary track.
type StudentEnrollment struct {
	ID                 int64
	Name               string
	DisplayName        string
	Year               Ref
	Section            Ref
	Student            Ref
	Parent             Ref
	HasParent          bool
	Mention            Ref
	HasMention         bool
	MentionState       string
	Type               string
	State              string
	Current            bool
	InscriptionDate    string
	UninscriptionDate  string
	FromSchool         string
	Observations       string
	GeneralPerformance *GeneralPerformance
}

// GeneralPerformance is the student's embedded performance summary.
type GeneralPerformance struct {
	EvaluationType     string  `json:"evaluation_type"`
	SectionType        string  `json:"section_type"`
	TotalSubjects      int     `json:"total_subjects"`
	SubjectsApproved   int     `json:"subjects_approved"`
	SubjectsFailed     int     `json:"subjects_failed"`
	GeneralAverage     float64 `json:"general_average"`
	GeneralState       string  `json:"general_state"`
	UseLiteral         bool    `json:"use_literal"`
	LiteralAverage     string  `json:"literal_average,omitempty"`
	ApprovalPercentage float64 `json:"approval_percentage"`
}

// EnrollmentsCountByState partitions current-year enrollments by
// inscription state.
type EnrollmentsCountByState struct {
	Draft  int
	Done   int
	Cancel int
	Total  int
}

var enrollmentFields = []string{
	"id",
	"name",
	"display_name",
	"year_id",
	"section_id",
	"student_id",
	"type",
	"state",
	"current",
	"inscription_date",
	"uninscription_date",
	"from_school",
	"observations",
	"parent_id",
	"mention_id",
	"mention_state",
	"general_performance_json",
}

// EnrollmentStateLabels maps inscription states to display labels.
var EnrollmentStateLabels = map[string]string{
	"draft":  "Borrador",
	"done":   "Inscrito",
	"cancel": "Desinscrito",
}

func normalizeEnrollment(r odoo.Record) StudentEnrollment {
	year, _ := many2one(r["year_id"])
	section, _ := many2one(r["section_id"])
	student, _ := many2one(r["student_id"])
	parent, hasParent := many2one(r["parent_id"])
	mention, hasMention := many2one(r["mention_id"])

	return StudentEnrollment{
		ID:                 integer(r, "id"),
		Name:               str(r, "name"),
		DisplayName:        strOr(r, "display_name", str(r, "name")),
		Year:               year,
		Section:            section,
		Student:            student,
		Parent:             parent,
		HasParent:          hasParent,
		Mention:            mention,
		HasMention:         hasMention,
		MentionState:       str(r, "mention_state"),
		Type:               strOr(r, "type", "primary"),
		State:              strOr(r, "state", "draft"),
		Current:            boolean(r, "current"),
		InscriptionDate:    str(r, "inscription_date"),
		UninscriptionDate:  str(r, "uninscription_date"),
		FromSchool:         str(r, "from_school"),
		Observations:       str(r, "observations"),
		GeneralPerformance: jsonField[GeneralPerformance](r["general_performance_json"]),
	}
}

func normalizeEnrollments(records []odoo.Record) []StudentEnrollment {
	enrollments := make([]StudentEnrollment, 0, len(records))
	for _, r := range records {
		enrollments = append(enrollments, normalizeEnrollment(r))
	}
	return enrollments
}

// LoadCurrentEnrollments returns the active year's enrollments, cached.
func (s *Service) LoadCurrentEnrollments(ctx context.Context, forceReload bool) []StudentEnrollment {
	if !forceReload {
		if cached, ok := cachedSlice[StudentEnrollment](s.cache, cacheKeyEnrollmentsCurrent); ok && len(cached) > 0 {
			return cached
		}
	}

	records, err := s.api.SearchRead(ctx, EnrollmentModel, odoo.SearchQuery{
		Domain: odoo.Domain{odoo.Eq("current", true)},
		Fields: enrollmentFields,
		Limit:  bulkLimit,
		Order:  "name asc",
	})
	if err != nil {
		log.Debug().Err(err).Msg("load current enrollments failed")
		if cached, ok := cachedSlice[StudentEnrollment](s.cache, cacheKeyEnrollmentsCurrent); ok {
			return cached
		}
		return []StudentEnrollment{}
	}

	enrollments := normalizeEnrollments(records)
	s.cache.Set(cacheKeyEnrollmentsCurrent, enrollments, config.CacheTTLEnrollments)
	return enrollments
}

// LoadAllEnrollments returns enrollments across every school year.
func (s *Service) LoadAllEnrollments(ctx context.Context, forceReload bool) []StudentEnrollment {
	if !forceReload {
		if cached, ok := cachedSlice[StudentEnrollment](s.cache, cacheKeyEnrollmentsAll); ok && len(cached) > 0 {
			return cached
		}
	}

	records, err := s.api.SearchRead(ctx, EnrollmentModel, odoo.SearchQuery{
		Fields: enrollmentFields,
		Limit:  allYearsLimit,
		Order:  "year_id desc, name asc",
	})
	if err != nil {
		log.Debug().Err(err).Msg("load all enrollments failed")
		if cached, ok := cachedSlice[StudentEnrollment](s.cache, cacheKeyEnrollmentsAll); ok {
			return cached
		}
		return []StudentEnrollment{}
	}

	enrollments := normalizeEnrollments(records)
	s.cache.Set(cacheKeyEnrollmentsAll, enrollments, config.CacheTTLEnrollments)
	return enrollments
}

// LoadEnrollmentByID fetches a single enrollment, nil when missing.
func (s *Service) LoadEnrollmentByID(ctx context.Context, id int64) *StudentEnrollment {
	records, err := s.api.Read(ctx, EnrollmentModel, []int64{id}, enrollmentFields)
	if err != nil || len(records) == 0 {
		if err != nil {
			log.Debug().Err(err).Int64("id", id).Msg("load enrollment failed")
		}
		return nil
	}
	enrollment := normalizeEnrollment(records[0])
	return &enrollment
}

// SearchEnrollments matches current-year enrollments by student name.
func (s *Service) SearchEnrollments(ctx context.Context, query string) []StudentEnrollment {
	query = strings.TrimSpace(query)
	if len(query) < minSearchQuery {
		return []StudentEnrollment{}
	}

	records, err := s.api.SearchRead(ctx, EnrollmentModel, odoo.SearchQuery{
		Domain: odoo.Domain{odoo.Ilike("name", query), odoo.Eq("current", true)},
		Fields: enrollmentFields,
		Limit:  searchLimit,
		Order:  "name asc",
	})
	if err != nil {
		log.Debug().Err(err).Msg("search enrollments failed")
		return []StudentEnrollment{}
	}
	return normalizeEnrollments(records)
}

// EnrollmentsCount partitions current-year enrollments by state.
func (s *Service) EnrollmentsCount(ctx context.Context) EnrollmentsCountByState {
	base := odoo.Domain{odoo.Eq("current", true)}
	counts := s.countByField(ctx, EnrollmentModel, "state", base, []string{"draft", "done", "cancel"})
	return EnrollmentsCountByState{
		Draft:  counts["draft"],
		Done:   counts["done"],
		Cancel: counts["cancel"],
		Total:  counts["draft"] + counts["done"] + counts["cancel"],
	}
}

// NewEnrollment is the payload for CreateEnrollment.
type NewEnrollment struct {
	YearID       int64
	SectionID    int64
	StudentID    int64
	ParentID     int64
	FromSchool   string
	Observations string
}

// CreateEnrollment inscribes a student into a section.
func (s *Service) CreateEnrollment(ctx context.Context, e NewEnrollment) (int64, error) {
	values := map[string]any{
		"year_id":    e.YearID,
		"section_id": e.SectionID,
		"student_id": e.StudentID,
	}
	if e.ParentID != 0 {
		values["parent_id"] = e.ParentID
	}
	if e.FromSchool != "" {
		values["from_school"] = e.FromSchool
	}
	if e.Observations != "" {
		values["observations"] = e.Observations
	}

	id, err := s.api.Create(ctx, EnrollmentModel, values)
	if err != nil {
		return 0, err
	}
	s.InvalidateEnrollmentsCache()
	return id, nil
}

// UpdateEnrollment writes values onto an enrollment.
func (s *Service) UpdateEnrollment(ctx context.Context, id int64, values map[string]any) error {
	if err := s.api.Update(ctx, EnrollmentModel, []int64{id}, values); err != nil {
		return err
	}
	s.InvalidateEnrollmentsCache()
	return nil
}

// DeleteEnrollment removes an enrollment.
func (s *Service) DeleteEnrollment(ctx context.Context, id int64) error {
	if err := s.api.Delete(ctx, EnrollmentModel, []int64{id}); err != nil {
		return err
	}
	s.InvalidateEnrollmentsCache()
	return nil
}

func (s *Service) InvalidateEnrollmentsCache() {
	s.cache.Invalidate(cacheKeyEnrollmentsCurrent)
	s.cache.Invalidate(cacheKeyEnrollmentsAll)
}
