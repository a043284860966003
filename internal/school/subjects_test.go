package school

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/pmaschool/school-admin-go/internal/odoo"
)

func subjectRecord(id int64, name string, sectionIDs, professorIDs []float64) odoo.Record {
	sections := make([]any, 0, len(sectionIDs))
	for _, sid := range sectionIDs {
		sections = append(sections, sid)
	}
	professors := make([]any, 0, len(professorIDs))
	for _, pid := range professorIDs {
		professors = append(professors, pid)
	}
	return odoo.Record{
		"id":            float64(id),
		"name":          name,
		"section_ids":   sections,
		"professor_ids": professors,
	}
}

func TestService_LoadSubjects(t *testing.T) {
	t.Run("fetches and caches the register", func(t *testing.T) {
		api := new(mockAPI)
		svc := newTestService(api)
		ctx := context.Background()

		api.On("SearchRead", ctx, SubjectModel, mock.MatchedBy(func(q odoo.SearchQuery) bool {
			return len(q.Domain) == 0 && q.Order == "name asc"
		})).Return([]odoo.Record{subjectRecord(1, "Matemática", []float64{9}, []float64{3, 4})}, nil).Once()

		first := svc.LoadSubjects(ctx, false)
		second := svc.LoadSubjects(ctx, false)

		require.Len(t, first, 1)
		assert.Equal(t, "Matemática", first[0].Name)
		assert.Equal(t, []int64{9}, first[0].SectionIDs)
		assert.Equal(t, 2, first[0].ProfessorsCount)
		assert.Equal(t, first, second)
		api.AssertNumberOfCalls(t, "SearchRead", 1)
	})

	t.Run("falls back to cached data when the reload fails", func(t *testing.T) {
		api := new(mockAPI)
		svc := newTestService(api)
		ctx := context.Background()

		api.On("SearchRead", ctx, SubjectModel, mock.Anything).
			Return([]odoo.Record{subjectRecord(1, "Matemática", nil, nil)}, nil).Once()
		api.On("SearchRead", ctx, SubjectModel, mock.Anything).
			Return(nil, assert.AnError)

		svc.LoadSubjects(ctx, false)
		subjects := svc.LoadSubjects(ctx, true)

		assert.Len(t, subjects, 1)
	})

	t.Run("degrades to empty slice on a cold cache", func(t *testing.T) {
		api := new(mockAPI)
		svc := newTestService(api)
		ctx := context.Background()

		api.On("SearchRead", ctx, SubjectModel, mock.Anything).Return(nil, assert.AnError)

		subjects := svc.LoadSubjects(ctx, false)

		assert.NotNil(t, subjects)
		assert.Empty(t, subjects)
	})
}

func TestService_LoadSubjectByID(t *testing.T) {
	t.Run("resolves sections and teaching staff", func(t *testing.T) {
		api := new(mockAPI)
		svc := newTestService(api)
		ctx := context.Background()

		api.On("Read", ctx, SubjectModel, []int64{5}, subjectFields).
			Return([]odoo.Record{subjectRecord(5, "Química", []float64{9}, []float64{3})}, nil)
		api.On("Read", ctx, RegisterSectionModel, []int64{9}, registerSectionFields).
			Return([]odoo.Record{{"id": float64(9), "name": "1er Año A", "type": "secundary"}}, nil)
		api.On("Read", ctx, EmployeeModel, []int64{3}, employeeFields).
			Return([]odoo.Record{{"id": float64(3), "name": "Ana Pérez", "school_employee_type": "docente", "active": true}}, nil)

		details := svc.LoadSubjectByID(ctx, 5)

		require.NotNil(t, details)
		assert.Equal(t, "Química", details.Name)
		require.Len(t, details.Sections, 1)
		assert.Equal(t, "1er Año A", details.Sections[0].Name)
		require.Len(t, details.Professors, 1)
		assert.Equal(t, "Ana Pérez", details.Professors[0].Name)
		assert.True(t, details.Professors[0].Active)
		api.AssertExpectations(t)
	})

	t.Run("unlinked subject skips the resolution reads", func(t *testing.T) {
		api := new(mockAPI)
		svc := newTestService(api)
		ctx := context.Background()

		api.On("Read", ctx, SubjectModel, []int64{5}, subjectFields).
			Return([]odoo.Record{subjectRecord(5, "Química", nil, nil)}, nil)

		details := svc.LoadSubjectByID(ctx, 5)

		require.NotNil(t, details)
		assert.Empty(t, details.Sections)
		assert.Empty(t, details.Professors)
		api.AssertNumberOfCalls(t, "Read", 1)
	})

	t.Run("nil when missing", func(t *testing.T) {
		api := new(mockAPI)
		svc := newTestService(api)
		ctx := context.Background()

		api.On("Read", ctx, SubjectModel, []int64{99}, subjectFields).
			Return([]odoo.Record{}, nil)

		assert.Nil(t, svc.LoadSubjectByID(ctx, 99))
	})
}

func TestService_SearchSubjects(t *testing.T) {
	api := new(mockAPI)
	svc := newTestService(api)
	ctx := context.Background()

	assert.Empty(t, svc.SearchSubjects(ctx, " m "))

	api.On("SearchRead", ctx, SubjectModel, mock.MatchedBy(func(q odoo.SearchQuery) bool {
		return len(q.Domain) == 1 && q.Domain[0] == odoo.Ilike("name", "mate")
	})).Return([]odoo.Record{subjectRecord(1, "Matemática", nil, nil)}, nil)

	subjects := svc.SearchSubjects(ctx, "mate")

	assert.Len(t, subjects, 1)
}

func TestService_LoadSecundarySections(t *testing.T) {
	api := new(mockAPI)
	svc := newTestService(api)
	ctx := context.Background()

	api.On("SearchRead", ctx, RegisterSectionModel, mock.MatchedBy(func(q odoo.SearchQuery) bool {
		return len(q.Domain) == 1 && q.Domain[0] == odoo.Eq("type", "secundary")
	})).Return([]odoo.Record{{"id": float64(9), "name": "1er Año A", "type": "secundary"}}, nil).Once()

	first := svc.LoadSecundarySections(ctx, false)
	second := svc.LoadSecundarySections(ctx, false)

	require.Len(t, first, 1)
	assert.Equal(t, "secundary", first[0].Type)
	assert.Equal(t, first, second)
	api.AssertNumberOfCalls(t, "SearchRead", 1)
}

func TestService_LoadTeachingEmployees(t *testing.T) {
	api := new(mockAPI)
	svc := newTestService(api)
	ctx := context.Background()

	api.On("SearchRead", ctx, EmployeeModel, mock.MatchedBy(func(q odoo.SearchQuery) bool {
		return len(q.Domain) == 2 &&
			q.Domain[0] == odoo.Eq("school_employee_type", "docente") &&
			q.Domain[1] == odoo.Eq("active", true)
	})).Return([]odoo.Record{{"id": float64(3), "name": "Ana Pérez", "school_employee_type": "docente", "active": true}}, nil).Once()

	first := svc.LoadTeachingEmployees(ctx, false)
	second := svc.LoadTeachingEmployees(ctx, false)

	require.Len(t, first, 1)
	assert.Equal(t, "docente", first[0].EmployeeType)
	assert.Equal(t, first, second)
	api.AssertNumberOfCalls(t, "SearchRead", 1)
}

func TestService_CreateSubject(t *testing.T) {
	t.Run("links sections and staff with replace commands", func(t *testing.T) {
		api := new(mockAPI)
		svc := newTestService(api)
		ctx := context.Background()

		api.On("Create", ctx, SubjectModel, mock.MatchedBy(func(values map[string]any) bool {
			cmd, ok := values["section_ids"].([]any)
			if !ok || len(cmd) != 1 {
				return false
			}
			triple, ok := cmd[0].([]any)
			return ok && triple[0] == 6 && triple[1] == 0 && values["name"] == "Física"
		})).Return(int64(7), nil)

		id, err := svc.CreateSubject(ctx, "Física", []int64{9}, []int64{3})

		assert.NoError(t, err)
		assert.Equal(t, int64(7), id)
		api.AssertExpectations(t)
	})

	t.Run("omits empty links", func(t *testing.T) {
		api := new(mockAPI)
		svc := newTestService(api)
		ctx := context.Background()

		api.On("Create", ctx, SubjectModel, mock.MatchedBy(func(values map[string]any) bool {
			_, hasSections := values["section_ids"]
			_, hasProfessors := values["professor_ids"]
			return !hasSections && !hasProfessors
		})).Return(int64(8), nil)

		_, err := svc.CreateSubject(ctx, "Física", nil, nil)

		assert.NoError(t, err)
		api.AssertExpectations(t)
	})
}

func TestService_AssignProfessorsToSubject(t *testing.T) {
	api := new(mockAPI)
	svc := newTestService(api)
	ctx := context.Background()

	api.On("SearchRead", ctx, SubjectModel, mock.Anything).
		Return([]odoo.Record{subjectRecord(5, "Química", nil, nil)}, nil)
	api.On("Update", ctx, SubjectModel, []int64{5}, mock.MatchedBy(func(values map[string]any) bool {
		cmd, ok := values["professor_ids"].([]any)
		if !ok || len(cmd) != 1 {
			return false
		}
		triple, ok := cmd[0].([]any)
		return ok && triple[0] == 6 && triple[1] == 0
	})).Return(nil)

	svc.LoadSubjects(ctx, false)
	require.NoError(t, svc.AssignProfessorsToSubject(ctx, 5, []int64{3, 4}))

	// The assignment invalidates the subject listing.
	svc.LoadSubjects(ctx, false)
	api.AssertNumberOfCalls(t, "SearchRead", 2)
}
