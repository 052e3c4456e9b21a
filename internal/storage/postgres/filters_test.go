package postgres

import (
	"testing"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skaldlabs/skald-sub002/internal/storage"
	"github.com/skaldlabs/skald-sub002/pkg/types"
)

func TestBuildFilterClause(t *testing.T) {
	tests := []struct {
		name     string
		filter   types.MemoFilter
		wantSQL  string
		wantArgs []interface{}
	}{
		{
			name:     "native eq",
			filter:   types.MemoFilter{Field: "title", FilterType: types.FilterTypeNativeField, Operator: types.OpEq, Value: "Notes"},
			wantSQL:  " AND (COALESCE(m.title, '') = $2)",
			wantArgs: []interface{}{"base", "Notes"},
		},
		{
			name:     "native neq",
			filter:   types.MemoFilter{Field: "source", FilterType: types.FilterTypeNativeField, Operator: types.OpNeq, Value: "slack"},
			wantSQL:  " AND (COALESCE(m.source, '') IS DISTINCT FROM $2)",
			wantArgs: []interface{}{"base", "slack"},
		},
		{
			name:     "contains escapes wildcards",
			filter:   types.MemoFilter{Field: "client_reference_id", FilterType: types.FilterTypeNativeField, Operator: types.OpContains, Value: "50%_off"},
			wantSQL:  ` AND (COALESCE(m.client_reference_id, '') LIKE $2 ESCAPE '\')`,
			wantArgs: []interface{}{"base", `%50\%\_off%`},
		},
		{
			name:     "metadata startswith",
			filter:   types.MemoFilter{Field: "team", FilterType: types.FilterTypeCustomMetadata, Operator: types.OpStartsWith, Value: "eng"},
			wantSQL:  ` AND ((m.metadata ->> $2) LIKE $3 ESCAPE '\')`,
			wantArgs: []interface{}{"base", "team", "eng%"},
		},
		{
			name:     "metadata endswith",
			filter:   types.MemoFilter{Field: "team", FilterType: types.FilterTypeCustomMetadata, Operator: types.OpEndsWith, Value: "ops"},
			wantSQL:  ` AND ((m.metadata ->> $2) LIKE $3 ESCAPE '\')`,
			wantArgs: []interface{}{"base", "team", "%ops"},
		},
		{
			name:     "metadata in",
			filter:   types.MemoFilter{Field: "team", FilterType: types.FilterTypeCustomMetadata, Operator: types.OpIn, Value: []interface{}{"a", "b"}},
			wantSQL:  " AND ((m.metadata ->> $2) = ANY($3))",
			wantArgs: []interface{}{"base", "team", pq.Array([]string{"a", "b"})},
		},
		{
			name:     "metadata not_in keeps missing keys",
			filter:   types.MemoFilter{Field: "team", FilterType: types.FilterTypeCustomMetadata, Operator: types.OpNotIn, Value: []string{"a"}},
			wantSQL:  " AND (NOT COALESCE((m.metadata ->> $2) = ANY($3), FALSE))",
			wantArgs: []interface{}{"base", "team", pq.Array([]string{"a"})},
		},
		{
			name:     "tags in",
			filter:   types.MemoFilter{Field: "tags", FilterType: types.FilterTypeNativeField, Operator: types.OpIn, Value: []string{"go"}},
			wantSQL:  " AND (EXISTS (SELECT 1 FROM memo_tags t WHERE t.memo_uuid = m.uuid AND t.tag = ANY($2)))",
			wantArgs: []interface{}{"base", pq.Array([]string{"go"})},
		},
		{
			name:     "tags not_in",
			filter:   types.MemoFilter{Field: "tags", FilterType: types.FilterTypeNativeField, Operator: types.OpNotIn, Value: []string{"go"}},
			wantSQL:  " AND (NOT EXISTS (SELECT 1 FROM memo_tags t WHERE t.memo_uuid = m.uuid AND t.tag = ANY($2)))",
			wantArgs: []interface{}{"base", pq.Array([]string{"go"})},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sql, args, err := buildFilterClause([]types.MemoFilter{tt.filter}, []interface{}{"base"})
			require.NoError(t, err)
			assert.Equal(t, tt.wantSQL, sql)
			assert.Equal(t, tt.wantArgs, args)
		})
	}
}

func TestBuildFilterClause_Combined(t *testing.T) {
	filters := []types.MemoFilter{
		{Field: "title", FilterType: types.FilterTypeNativeField, Operator: types.OpEq, Value: "A"},
		{Field: "tags", FilterType: types.FilterTypeNativeField, Operator: types.OpIn, Value: []string{"x"}},
	}

	sql, args, err := buildFilterClause(filters, []interface{}{1, 2, 3, 4})
	require.NoError(t, err)
	assert.Equal(t, " AND (COALESCE(m.title, '') = $5) AND (EXISTS (SELECT 1 FROM memo_tags t WHERE t.memo_uuid = m.uuid AND t.tag = ANY($6)))", sql)
	assert.Len(t, args, 6)
}

func TestBuildFilterClause_Empty(t *testing.T) {
	sql, args, err := buildFilterClause(nil, []interface{}{"a"})
	require.NoError(t, err)
	assert.Empty(t, sql)
	assert.Equal(t, []interface{}{"a"}, args)
}

func TestBuildFilterClause_Invalid(t *testing.T) {
	_, _, err := buildFilterClause([]types.MemoFilter{
		{Field: "unknown", FilterType: types.FilterTypeNativeField, Operator: types.OpEq, Value: "x"},
	}, nil)
	assert.ErrorIs(t, err, storage.ErrInvalidInput)
}
