package school

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/pmaschool/school-admin-go/internal/cache"
	"github.com/pmaschool/school-admin-go/internal/config"
	"github.com/pmaschool/school-admin-go/internal/odoo"
)

// SchoolYear is the base slice of the year record.
type SchoolYear struct {
	ID            int64
	Name          string
	Current       bool
	State         string
	StartDateReal string
	EndDateReal   string
	IsLocked      bool
	CurrentLapso  string
	LapsoDisplay  string
}

// DashboardKPIs are the headline counters of the year.
type DashboardKPIs struct {
	TotalStudents    int
	ApprovedStudents int
	TotalSections    int
	TotalProfessors  int
}

// LevelCounts breaks a counter down by education level. Tecnico only
// applies to student counters (there are no tecnico-specific sections).
type LevelCounts struct {
	Pre       int
	Primary   int
	Secundary int
	Tecnico   int
}

// EvaluationConfigs holds the grading scheme chosen per level.
type EvaluationConfigs struct {
	Pre       Ref
	Primary   Ref
	Secundary Ref
}

type LevelPerformance struct {
	Type             string  `json:"type"`
	Name             string  `json:"name"`
	TotalStudents    int     `json:"total_students"`
	ApprovedStudents int     `json:"approved_students"`
	FailedStudents   int     `json:"failed_students"`
	Average          float64 `json:"average"`
	ApprovalRate     float64 `json:"approval_rate"`
}

type PerformanceByLevel struct {
	Levels []LevelPerformance `json:"levels"`
}

type StudentsDistribution struct {
	Labels []string `json:"labels"`
	Data   []int    `json:"data"`
	Total  int      `json:"total"`
}

type ApprovalRate struct {
	Total    int     `json:"total"`
	Approved int     `json:"approved"`
	Failed   int     `json:"failed"`
	Rate     float64 `json:"rate"`
}

type SectionComparison struct {
	SectionID        int64   `json:"section_id"`
	SectionName      string  `json:"section_name"`
	Type             string  `json:"type"`
	Average          float64 `json:"average"`
	TotalStudents    int     `json:"total_students"`
	ApprovedStudents int     `json:"approved_students"`
	FailedStudents   int     `json:"failed_students"`
	ApprovalRate     float64 `json:"approval_rate"`
}

type SectionsComparison struct {
	Sections []SectionComparison `json:"sections"`
}

type TopStudentsYear struct {
	TopStudents []TopStudent `json:"top_students"`
}

// TopStudentRanking is one ranked student of a section's top three. The
// average is "A" under literal grading and a number otherwise, so it
// stays untyped.
type TopStudentRanking struct {
	StudentID    int64   `json:"student_id"`
	StudentName  string  `json:"student_name"`
	EnrollmentID int64   `json:"enrollment_id"`
	Average      any     `json:"average"`
	SortValue    float64 `json:"sort_value"`
	State        string  `json:"state"`
	UseLiteral   bool    `json:"use_literal"`
}

type SectionTopStudents struct {
	SectionID   int64               `json:"section_id"`
	SectionName string              `json:"section_name"`
	Top3        []TopStudentRanking `json:"top_3"`
}

// LevelDashboard is the per-level widget payload with the top three
// students of every section of that level.
type LevelDashboard struct {
	TotalStudents        int                  `json:"total_students"`
	ApprovedCount        int                  `json:"approved_count"`
	FailedCount          int                  `json:"failed_count"`
	ApprovalRate         float64              `json:"approval_rate"`
	TopStudentsBySection []SectionTopStudents `json:"top_students_by_section"`
	EvaluationType       string               `json:"evaluation_type"`
	UseLiteral           bool                 `json:"use_literal"`
}

type ProfessorSummaryItem struct {
	ProfessorID      int64  `json:"professor_id"`
	ProfessorName    string `json:"professor_name"`
	SectionsCount    int    `json:"sections_count"`
	SubjectsCount    int    `json:"subjects_count"`
	EvaluationsCount int    `json:"evaluations_count"`
}

type ProfessorSummary struct {
	Professors []ProfessorSummaryItem `json:"professors"`
	Total      int                    `json:"total"`
}

type LevelStat struct {
	Count   int     `json:"count"`
	Average float64 `json:"average"`
}

// ProfessorStatsByType splits a professor's evaluation stats by the kind
// of student taught.
type ProfessorStatsByType struct {
	Pre              LevelStat `json:"pre"`
	Primary          LevelStat `json:"primary"`
	SecundaryGeneral LevelStat `json:"secundary_general"`
	SecundaryTecnico LevelStat `json:"secundary_tecnico"`
}

type ProfessorDetailedItem struct {
	ProfessorID      int64                `json:"professor_id"`
	ProfessorName    string               `json:"professor_name"`
	TotalEvaluations int                  `json:"total_evaluations"`
	SectionsCount    int                  `json:"sections_count"`
	StatsByType      ProfessorStatsByType `json:"stats_by_type"`
}

type ProfessorDetailedStats struct {
	Professors []ProfessorDetailedItem `json:"professors"`
	Total      int                     `json:"total"`
}

type DifficultSubject struct {
	SubjectID      int64   `json:"subject_id"`
	SubjectName    string  `json:"subject_name"`
	TotalStudents  int     `json:"total_students"`
	FailedStudents int     `json:"failed_students"`
	FailureRate    float64 `json:"failure_rate"`
	Average        float64 `json:"average"`
}

type DifficultSubjects struct {
	Subjects []DifficultSubject `json:"subjects"`
}

type EvaluationsStats struct {
	Total     int            `json:"total"`
	Qualified int            `json:"qualified"`
	Partial   int            `json:"partial"`
	Draft     int            `json:"draft"`
	ByType    map[string]int `json:"by_type"`
}

type RecentEvaluation struct {
	ID        int64   `json:"id"`
	Name      string  `json:"name"`
	Date      string  `json:"date"`
	Professor string  `json:"professor"`
	Section   string  `json:"section"`
	Subject   string  `json:"subject"`
	State     string  `json:"state"`
	Average   float64 `json:"average"`
}

type RecentEvaluations struct {
	Evaluations []RecentEvaluation `json:"evaluations"`
}

// DashboardData mirrors the current school.year record: KPI counters
// plus the widget JSON tabs the backend precomputes.
type DashboardData struct {
	SchoolYear        SchoolYear
	KPIs              DashboardKPIs
	StudentsByLevel   LevelCounts
	ApprovedByLevel   LevelCounts
	SectionsByLevel   LevelCounts
	EvaluationConfigs EvaluationConfigs

	PerformanceByLevel   *PerformanceByLevel
	StudentsDistribution *StudentsDistribution
	ApprovalRate         *ApprovalRate
	SectionsComparison   *SectionsComparison
	TopStudentsYear      *TopStudentsYear

	PrePerformance       *GeneralPerformance
	PrimaryPerformance   *GeneralPerformance
	SecundaryPerformance *GeneralPerformance

	PreDashboard              *LevelDashboard
	PrimaryDashboard          *LevelDashboard
	SecundaryGeneralDashboard *LevelDashboard
	SecundaryTecnicoDashboard *LevelDashboard

	ProfessorSummary       *ProfessorSummary
	ProfessorDetailedStats *ProfessorDetailedStats
	DifficultSubjects      *DifficultSubjects
	EvaluationsStats       *EvaluationsStats
	RecentEvaluations      *RecentEvaluations
}

var schoolYearBaseFields = []string{
	"id",
	"name",
	"current",
	"state",
	"start_date_real",
	"end_date_real",
	"is_locked",
	"current_lapso",
	"lapso_display",
	"total_students_count",
	"approved_students_count",
	"total_sections_count",
	"total_professors_count",
	"students_pre_count",
	"students_primary_count",
	"students_secundary_count",
	"students_tecnico_count",
	"approved_pre_count",
	"approved_primary_count",
	"approved_secundary_count",
	"approved_tecnico_count",
	"sections_pre_count",
	"sections_primary_count",
	"sections_secundary_count",
	"evalution_type_secundary",
	"evalution_type_primary",
	"evalution_type_pree",
}

var schoolYearTabFields = []string{
	"performance_by_level_json",
	"students_distribution_json",
	"approval_rate_json",
	"sections_comparison_json",
	"top_students_year_json",
	"pre_performance_json",
	"primary_performance_json",
	"secundary_performance_json",
	"pre_dashboard_json",
	"primary_dashboard_json",
	"secundary_general_dashboard_json",
	"secundary_tecnico_dashboard_json",
	"professor_summary_json",
	"professor_detailed_stats_json",
	"difficult_subjects_json",
	"evaluations_stats_json",
	"recent_evaluations_json",
}

func schoolYearAllFields() []string {
	fields := make([]string, 0, len(schoolYearBaseFields)+len(schoolYearTabFields))
	fields = append(fields, schoolYearBaseFields...)
	return append(fields, schoolYearTabFields...)
}

func normalizeDashboard(r odoo.Record) DashboardData {
	// The evalution_* spelling is the backend's, not ours.
	evalPre, _ := many2one(r["evalution_type_pree"])
	evalPrimary, _ := many2one(r["evalution_type_primary"])
	evalSecundary, _ := many2one(r["evalution_type_secundary"])

	return DashboardData{
		SchoolYear: SchoolYear{
			ID:            integer(r, "id"),
			Name:          str(r, "name"),
			Current:       boolean(r, "current"),
			State:         strOr(r, "state", "draft"),
			StartDateReal: str(r, "start_date_real"),
			EndDateReal:   str(r, "end_date_real"),
			IsLocked:      boolean(r, "is_locked"),
			CurrentLapso:  str(r, "current_lapso"),
			LapsoDisplay:  str(r, "lapso_display"),
		},
		KPIs: DashboardKPIs{
			TotalStudents:    int(integer(r, "total_students_count")),
			ApprovedStudents: int(integer(r, "approved_students_count")),
			TotalSections:    int(integer(r, "total_sections_count")),
			TotalProfessors:  int(integer(r, "total_professors_count")),
		},
		StudentsByLevel: LevelCounts{
			Pre:       int(integer(r, "students_pre_count")),
			Primary:   int(integer(r, "students_primary_count")),
			Secundary: int(integer(r, "students_secundary_count")),
			Tecnico:   int(integer(r, "students_tecnico_count")),
		},
		ApprovedByLevel: LevelCounts{
			Pre:       int(integer(r, "approved_pre_count")),
			Primary:   int(integer(r, "approved_primary_count")),
			Secundary: int(integer(r, "approved_secundary_count")),
			Tecnico:   int(integer(r, "approved_tecnico_count")),
		},
		SectionsByLevel: LevelCounts{
			Pre:       int(integer(r, "sections_pre_count")),
			Primary:   int(integer(r, "sections_primary_count")),
			Secundary: int(integer(r, "sections_secundary_count")),
		},
		EvaluationConfigs: EvaluationConfigs{
			Pre:       evalPre,
			Primary:   evalPrimary,
			Secundary: evalSecundary,
		},
		PerformanceByLevel:   jsonField[PerformanceByLevel](r["performance_by_level_json"]),
		StudentsDistribution: jsonField[StudentsDistribution](r["students_distribution_json"]),
		ApprovalRate:         jsonField[ApprovalRate](r["approval_rate_json"]),
		SectionsComparison:   jsonField[SectionsComparison](r["sections_comparison_json"]),
		TopStudentsYear:      jsonField[TopStudentsYear](r["top_students_year_json"]),

		PrePerformance:       jsonField[GeneralPerformance](r["pre_performance_json"]),
		PrimaryPerformance:   jsonField[GeneralPerformance](r["primary_performance_json"]),
		SecundaryPerformance: jsonField[GeneralPerformance](r["secundary_performance_json"]),

		PreDashboard:              jsonField[LevelDashboard](r["pre_dashboard_json"]),
		PrimaryDashboard:          jsonField[LevelDashboard](r["primary_dashboard_json"]),
		SecundaryGeneralDashboard: jsonField[LevelDashboard](r["secundary_general_dashboard_json"]),
		SecundaryTecnicoDashboard: jsonField[LevelDashboard](r["secundary_tecnico_dashboard_json"]),

		ProfessorSummary:       jsonField[ProfessorSummary](r["professor_summary_json"]),
		ProfessorDetailedStats: jsonField[ProfessorDetailedStats](r["professor_detailed_stats_json"]),
		DifficultSubjects:      jsonField[DifficultSubjects](r["difficult_subjects_json"]),
		EvaluationsStats:       jsonField[EvaluationsStats](r["evaluations_stats_json"]),
		RecentEvaluations:      jsonField[RecentEvaluations](r["recent_evaluations_json"]),
	}
}

func (s *Service) loadDashboard(ctx context.Context, cacheKey cache.Key, fields []string, forceReload bool) *DashboardData {
	if !forceReload {
		if v, ok := s.cache.Get(cacheKey); ok {
			if data, ok := v.(*DashboardData); ok {
				return data
			}
		}
	}

	records, err := s.api.SearchRead(ctx, YearModel, odoo.SearchQuery{
		Domain: odoo.Domain{odoo.Eq("current", true)},
		Fields: fields,
		Limit:  1,
	})
	if err != nil || len(records) == 0 {
		if err != nil {
			log.Debug().Err(err).Msg("load dashboard failed")
		}
		if v, ok := s.cache.Get(cacheKey); ok {
			if data, ok := v.(*DashboardData); ok {
				return data
			}
		}
		return nil
	}

	data := normalizeDashboard(records[0])
	s.cache.Set(cacheKey, &data, config.CacheTTLDashboard)
	return &data
}

// LoadDashboard returns the current year's full dashboard, nil when no
// current year exists or the backend is unreachable with a cold cache.
func (s *Service) LoadDashboard(ctx context.Context, forceReload bool) *DashboardData {
	return s.loadDashboard(ctx, cacheKeyDashboard, schoolYearAllFields(), forceReload)
}

// LoadDashboardLight fetches only the base and KPI fields, skipping the
// heavy widget JSON columns.
func (s *Service) LoadDashboardLight(ctx context.Context, forceReload bool) *DashboardData {
	return s.loadDashboard(ctx, cacheKeyDashboardLight, schoolYearBaseFields, forceReload)
}

func (s *Service) InvalidateDashboardCache() {
	s.cache.InvalidatePrefix("dashboard:")
}
