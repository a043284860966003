package school

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/pmaschool/school-admin-go/internal/cache"
	"github.com/pmaschool/school-admin-go/internal/config"
	"github.com/pmaschool/school-admin-go/internal/odoo"
)

type mockAPI struct {
	mock.Mock
}

func (m *mockAPI) SearchRead(ctx context.Context, model string, q odoo.SearchQuery) ([]odoo.Record, error) {
	args := m.Called(ctx, model, q)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]odoo.Record), args.Error(1)
}

func (m *mockAPI) Read(ctx context.Context, model string, ids []int64, fields []string) ([]odoo.Record, error) {
	args := m.Called(ctx, model, ids, fields)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]odoo.Record), args.Error(1)
}

func (m *mockAPI) SearchCount(ctx context.Context, model string, domain odoo.Domain) (int, error) {
	args := m.Called(ctx, model, domain)
	return args.Int(0), args.Error(1)
}

func (m *mockAPI) Create(ctx context.Context, model string, values map[string]any) (int64, error) {
	args := m.Called(ctx, model, values)
	return args.Get(0).(int64), args.Error(1)
}

func (m *mockAPI) Update(ctx context.Context, model string, ids []int64, values map[string]any) error {
	args := m.Called(ctx, model, ids, values)
	return args.Error(0)
}

func (m *mockAPI) Delete(ctx context.Context, model string, ids []int64) error {
	args := m.Called(ctx, model, ids)
	return args.Error(0)
}

func newTestService(api API) *Service {
	return NewService(api, cache.New(config.CacheMaxSize))
}

func evaluationRecord(id int64, name string) odoo.Record {
	return odoo.Record{
		"id":      float64(id),
		"name":    name,
		"year_id": []any{float64(1), "2024-2025"},
		"state":   "draft",
		"current": true,
	}
}

func TestService_LoadCurrentEvaluations(t *testing.T) {
	t.Run("fetches and caches the current year", func(t *testing.T) {
		api := new(mockAPI)
		svc := newTestService(api)
		ctx := context.Background()

		api.On("SearchRead", ctx, EvaluationModel, mock.MatchedBy(func(q odoo.SearchQuery) bool {
			return len(q.Domain) == 1 && q.Domain[0] == odoo.Eq("current", true)
		})).Return([]odoo.Record{evaluationRecord(1, "Examen 1")}, nil).Once()

		first := svc.LoadCurrentEvaluations(ctx, false)
		second := svc.LoadCurrentEvaluations(ctx, false)

		assert.Len(t, first, 1)
		assert.Equal(t, "Examen 1", first[0].Name)
		assert.Equal(t, first, second)
		api.AssertNumberOfCalls(t, "SearchRead", 1)
	})

	t.Run("force reload bypasses the cache", func(t *testing.T) {
		api := new(mockAPI)
		svc := newTestService(api)
		ctx := context.Background()

		api.On("SearchRead", ctx, EvaluationModel, mock.Anything).
			Return([]odoo.Record{evaluationRecord(1, "Examen 1")}, nil)

		svc.LoadCurrentEvaluations(ctx, false)
		svc.LoadCurrentEvaluations(ctx, true)

		api.AssertNumberOfCalls(t, "SearchRead", 2)
	})

	t.Run("degrades to empty slice on expired session", func(t *testing.T) {
		api := new(mockAPI)
		svc := newTestService(api)
		ctx := context.Background()

		expired := &odoo.Error{Kind: odoo.KindSessionExpired, SessionExpired: true, Message: "expirada"}
		api.On("SearchRead", ctx, EvaluationModel, mock.Anything).Return(nil, expired)

		evaluations := svc.LoadCurrentEvaluations(ctx, false)

		assert.NotNil(t, evaluations)
		assert.Empty(t, evaluations)
	})

	t.Run("falls back to cached data when the reload fails", func(t *testing.T) {
		api := new(mockAPI)
		svc := newTestService(api)
		ctx := context.Background()

		api.On("SearchRead", ctx, EvaluationModel, mock.Anything).
			Return([]odoo.Record{evaluationRecord(1, "Examen 1")}, nil).Once()
		api.On("SearchRead", ctx, EvaluationModel, mock.Anything).
			Return(nil, assert.AnError)

		svc.LoadCurrentEvaluations(ctx, false)
		evaluations := svc.LoadCurrentEvaluations(ctx, true)

		assert.Len(t, evaluations, 1)
		assert.Equal(t, "Examen 1", evaluations[0].Name)
	})
}

func TestService_LoadEvaluations(t *testing.T) {
	t.Run("builds the domain from the filters", func(t *testing.T) {
		api := new(mockAPI)
		svc := newTestService(api)
		ctx := context.Background()

		current := true
		api.On("SearchRead", ctx, EvaluationModel, mock.MatchedBy(func(q odoo.SearchQuery) bool {
			return len(q.Domain) == 3 &&
				q.Domain[0] == odoo.Eq("current", true) &&
				q.Domain[1] == odoo.Eq("professor_id", int64(3)) &&
				q.Domain[2] == odoo.Eq("state", "draft")
		})).Return([]odoo.Record{}, nil)

		svc.LoadEvaluations(ctx, EvaluationFilters{ProfessorID: 3, State: "draft", Current: &current})

		api.AssertExpectations(t)
	})
}

func TestService_MutationsInvalidateCache(t *testing.T) {
	api := new(mockAPI)
	svc := newTestService(api)
	ctx := context.Background()

	api.On("SearchRead", ctx, EvaluationModel, mock.Anything).
		Return([]odoo.Record{evaluationRecord(1, "Examen 1")}, nil)
	api.On("Create", ctx, EvaluationModel, mock.Anything).Return(int64(2), nil)

	svc.LoadCurrentEvaluations(ctx, false)

	id, err := svc.CreateEvaluation(ctx, NewEvaluation{Name: "Examen 2", YearID: 1, ProfessorID: 3, SectionID: 9})

	assert.NoError(t, err)
	assert.Equal(t, int64(2), id)

	svc.LoadCurrentEvaluations(ctx, false)
	api.AssertNumberOfCalls(t, "SearchRead", 2)
}

func TestService_CreateEvaluation(t *testing.T) {
	t.Run("omits the subject for primary sections", func(t *testing.T) {
		api := new(mockAPI)
		svc := newTestService(api)
		ctx := context.Background()

		api.On("Create", ctx, EvaluationModel, mock.MatchedBy(func(values map[string]any) bool {
			_, hasSubject := values["subject_id"]
			return !hasSubject && values["name"] == "Dictado"
		})).Return(int64(7), nil)

		id, err := svc.CreateEvaluation(ctx, NewEvaluation{Name: "Dictado", YearID: 1, ProfessorID: 3, SectionID: 9})

		assert.NoError(t, err)
		assert.Equal(t, int64(7), id)
		api.AssertExpectations(t)
	})

	t.Run("surfaces backend errors", func(t *testing.T) {
		api := new(mockAPI)
		svc := newTestService(api)
		ctx := context.Background()

		api.On("Create", ctx, EvaluationModel, mock.Anything).Return(int64(0), assert.AnError)

		_, err := svc.CreateEvaluation(ctx, NewEvaluation{Name: "Dictado"})

		assert.Error(t, err)
	})
}

func TestService_SearchSections(t *testing.T) {
	t.Run("short queries never reach the backend", func(t *testing.T) {
		api := new(mockAPI)
		svc := newTestService(api)

		sections := svc.SearchSections(context.Background(), " a ")

		assert.Empty(t, sections)
		api.AssertNotCalled(t, "SearchRead")
	})

	t.Run("searches by name substring", func(t *testing.T) {
		api := new(mockAPI)
		svc := newTestService(api)
		ctx := context.Background()

		api.On("SearchRead", ctx, RegisterSectionModel, mock.MatchedBy(func(q odoo.SearchQuery) bool {
			return len(q.Domain) == 1 && q.Domain[0] == odoo.Ilike("name", "3er")
		})).Return([]odoo.Record{{"id": float64(9), "name": "3er Grado A", "type": "primary"}}, nil)

		sections := svc.SearchSections(ctx, "3er")

		assert.Len(t, sections, 1)
		assert.Equal(t, "3er Grado A", sections[0].Name)
	})
}

func TestService_LoadSectionsByType(t *testing.T) {
	api := new(mockAPI)
	svc := newTestService(api)
	ctx := context.Background()

	api.On("SearchRead", ctx, RegisterSectionModel, mock.Anything).Return([]odoo.Record{
		{"id": float64(1), "name": "Sala de 5", "type": "pre"},
		{"id": float64(2), "name": "1er Grado", "type": "primary"},
		{"id": float64(3), "name": "2do Grado", "type": "primary"},
	}, nil).Once()

	primary := svc.LoadSectionsByType(ctx, "primary", false)
	pre := svc.LoadSectionsByType(ctx, "pre", false)

	assert.Len(t, primary, 2)
	assert.Len(t, pre, 1)
	api.AssertNumberOfCalls(t, "SearchRead", 1)
}

func TestService_SectionsCount(t *testing.T) {
	t.Run("a failed branch counts as zero", func(t *testing.T) {
		api := new(mockAPI)
		svc := newTestService(api)
		ctx := context.Background()

		api.On("SearchCount", ctx, RegisterSectionModel, odoo.Domain{odoo.Eq("type", "pre")}).Return(2, nil)
		api.On("SearchCount", ctx, RegisterSectionModel, odoo.Domain{odoo.Eq("type", "primary")}).Return(0, assert.AnError)
		api.On("SearchCount", ctx, RegisterSectionModel, odoo.Domain{odoo.Eq("type", "secundary")}).Return(5, nil)

		counts := svc.SectionsCount(ctx)

		assert.Equal(t, 2, counts.Pre)
		assert.Equal(t, 0, counts.Primary)
		assert.Equal(t, 5, counts.Secundary)
		assert.Equal(t, 7, counts.Total)
	})
}

func TestService_EvaluationsCount(t *testing.T) {
	api := new(mockAPI)
	svc := newTestService(api)
	ctx := context.Background()

	base := odoo.Domain{odoo.Eq("current", true)}
	api.On("SearchCount", ctx, EvaluationModel, append(append(odoo.Domain{}, base...), odoo.Eq("state", "all"))).Return(4, nil)
	api.On("SearchCount", ctx, EvaluationModel, append(append(odoo.Domain{}, base...), odoo.Eq("state", "partial"))).Return(3, nil)
	api.On("SearchCount", ctx, EvaluationModel, append(append(odoo.Domain{}, base...), odoo.Eq("state", "draft"))).Return(2, nil)

	counts := svc.EvaluationsCount(ctx)

	assert.Equal(t, EvaluationsCountByState{All: 4, Partial: 3, Draft: 2, Total: 9}, counts)
}

func TestService_LoadDashboard(t *testing.T) {
	yearRecord := odoo.Record{
		"id":                   float64(1),
		"name":                 "2024-2025",
		"current":              true,
		"total_students_count": float64(240),
		"approval_rate_json":   `{"total": 240, "approved": 190, "failed": 50, "rate": 79.2}`,
	}

	t.Run("full load requests the widget columns", func(t *testing.T) {
		api := new(mockAPI)
		svc := newTestService(api)
		ctx := context.Background()

		api.On("SearchRead", ctx, YearModel, mock.MatchedBy(func(q odoo.SearchQuery) bool {
			return q.Limit == 1 && len(q.Fields) == len(schoolYearBaseFields)+len(schoolYearTabFields)
		})).Return([]odoo.Record{yearRecord}, nil)

		data := svc.LoadDashboard(ctx, false)

		assert.NotNil(t, data)
		assert.Equal(t, "2024-2025", data.SchoolYear.Name)
		assert.Equal(t, 79.2, data.ApprovalRate.Rate)
		api.AssertExpectations(t)
	})

	t.Run("light load skips the widget columns", func(t *testing.T) {
		api := new(mockAPI)
		svc := newTestService(api)
		ctx := context.Background()

		api.On("SearchRead", ctx, YearModel, mock.MatchedBy(func(q odoo.SearchQuery) bool {
			return len(q.Fields) == len(schoolYearBaseFields)
		})).Return([]odoo.Record{yearRecord}, nil)

		data := svc.LoadDashboardLight(ctx, false)

		assert.NotNil(t, data)
		assert.Equal(t, 240, data.KPIs.TotalStudents)
		api.AssertExpectations(t)
	})

	t.Run("nil when no current year exists", func(t *testing.T) {
		api := new(mockAPI)
		svc := newTestService(api)
		ctx := context.Background()

		api.On("SearchRead", ctx, YearModel, mock.Anything).Return([]odoo.Record{}, nil)

		assert.Nil(t, svc.LoadDashboard(ctx, false))
	})

	t.Run("full and light caches are independent", func(t *testing.T) {
		api := new(mockAPI)
		svc := newTestService(api)
		ctx := context.Background()

		api.On("SearchRead", ctx, YearModel, mock.Anything).Return([]odoo.Record{yearRecord}, nil)

		svc.LoadDashboard(ctx, false)
		svc.LoadDashboardLight(ctx, false)
		svc.LoadDashboard(ctx, false)
		svc.LoadDashboardLight(ctx, false)

		api.AssertNumberOfCalls(t, "SearchRead", 2)
	})
}

func TestService_LoadEnrolledSectionByID(t *testing.T) {
	t.Run("nil when missing", func(t *testing.T) {
		api := new(mockAPI)
		svc := newTestService(api)
		ctx := context.Background()

		api.On("Read", ctx, SectionModel, []int64{404}, mock.Anything).Return([]odoo.Record{}, nil)

		assert.Nil(t, svc.LoadEnrolledSectionByID(ctx, 404))
	})
}

func TestService_CreateEnrolledSection(t *testing.T) {
	api := new(mockAPI)
	svc := newTestService(api)
	ctx := context.Background()

	api.On("Create", ctx, SectionModel, mock.MatchedBy(func(values map[string]any) bool {
		cmd, ok := values["professor_ids"].([]any)
		if !ok || len(cmd) != 1 {
			return false
		}
		triple, ok := cmd[0].([]any)
		return ok && triple[0] == 6 && triple[1] == 0
	})).Return(int64(20), nil)

	id, err := svc.CreateEnrolledSection(ctx, 1, 9, []int64{3, 4})

	assert.NoError(t, err)
	assert.Equal(t, int64(20), id)
	api.AssertExpectations(t)
}

func TestService_ConcurrentColdLoads(t *testing.T) {
	api := new(mockAPI)
	svc := newTestService(api)
	ctx := context.Background()

	api.On("SearchRead", ctx, ProfessorModel, mock.Anything).
		Return([]odoo.Record{{"id": float64(3), "name": "Ana Pérez"}}, nil)

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			professors := svc.LoadCurrentProfessors(ctx, false)
			assert.Len(t, professors, 1)
		}()
	}
	wg.Wait()

	// Cold loads are not de-duplicated: every goroutine that misses the
	// cache issues its own RPC, bounded only by the goroutine count.
	calls := 0
	for _, call := range api.Calls {
		if call.Method == "SearchRead" {
			calls++
		}
	}
	assert.GreaterOrEqual(t, calls, 1)
	assert.LessOrEqual(t, calls, 4)
}

func TestService_ClearCache(t *testing.T) {
	api := new(mockAPI)
	svc := newTestService(api)
	ctx := context.Background()

	api.On("SearchRead", ctx, RegisterSectionModel, mock.Anything).
		Return([]odoo.Record{{"id": float64(1), "name": "1er Grado", "type": "primary"}}, nil)

	svc.LoadSections(ctx, false)
	assert.Equal(t, 1, svc.CacheStats().Size)

	svc.ClearCache()
	assert.Equal(t, 0, svc.CacheStats().Size)

	svc.LoadSections(ctx, false)
	api.AssertNumberOfCalls(t, "SearchRead", 2)
}
