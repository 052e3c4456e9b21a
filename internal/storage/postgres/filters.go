package postgres

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/lib/pq"

	"github.com/skaldlabs/skald-sub002/internal/storage"
	"github.com/skaldlabs/skald-sub002/pkg/types"
)

// nativeColumns maps filterable native fields to their SQL expression on the
// memos table (aliased m). NULLs compare as empty strings.
var nativeColumns = map[string]string{
	types.FieldTitle:             "COALESCE(m.title, '')",
	types.FieldSource:            "COALESCE(m.source, '')",
	types.FieldClientReferenceID: "COALESCE(m.client_reference_id, '')",
}

// filterBuilder renders MemoFilters as SQL predicates, appending bind values
// after the arguments the surrounding query already uses.
type filterBuilder struct {
	args []interface{}
}

func (b *filterBuilder) bind(v interface{}) string {
	b.args = append(b.args, v)
	return "$" + strconv.Itoa(len(b.args))
}

// buildFilterClause returns a string of " AND (...)" predicates for the given
// filters together with the extended argument list.
func buildFilterClause(filters []types.MemoFilter, args []interface{}) (string, []interface{}, error) {
	b := &filterBuilder{args: args}
	var sb strings.Builder

	for _, f := range filters {
		if err := f.Validate(); err != nil {
			return "", nil, fmt.Errorf("%w: %v", storage.ErrInvalidInput, err)
		}

		pred, err := b.predicate(f)
		if err != nil {
			return "", nil, err
		}
		sb.WriteString(" AND (")
		sb.WriteString(pred)
		sb.WriteString(")")
	}

	return sb.String(), b.args, nil
}

func (b *filterBuilder) predicate(f types.MemoFilter) (string, error) {
	if f.FilterType == types.FilterTypeNativeField && f.Field == types.FieldTags {
		values, err := f.Values()
		if err != nil {
			return "", err
		}
		exists := "EXISTS (SELECT 1 FROM memo_tags t WHERE t.memo_uuid = m.uuid AND t.tag = ANY(" + b.bind(pq.Array(values)) + "))"
		if f.Operator == types.OpNotIn {
			return "NOT " + exists, nil
		}
		return exists, nil
	}

	var expr string
	if f.FilterType == types.FilterTypeNativeField {
		expr = nativeColumns[f.Field]
	} else {
		expr = "(m.metadata ->> " + b.bind(f.Field) + ")"
	}

	value, _ := f.Value.(string)
	switch f.Operator {
	case types.OpEq:
		return expr + " = " + b.bind(value), nil
	case types.OpNeq:
		return expr + " IS DISTINCT FROM " + b.bind(value), nil
	case types.OpContains:
		return expr + " LIKE " + b.bind("%"+escapeLike(value)+"%") + ` ESCAPE '\'`, nil
	case types.OpStartsWith:
		return expr + " LIKE " + b.bind(escapeLike(value)+"%") + ` ESCAPE '\'`, nil
	case types.OpEndsWith:
		return expr + " LIKE " + b.bind("%"+escapeLike(value)) + ` ESCAPE '\'`, nil
	case types.OpIn, types.OpNotIn:
		values, err := f.Values()
		if err != nil {
			return "", err
		}
		in := expr + " = ANY(" + b.bind(pq.Array(values)) + ")"
		if f.Operator == types.OpNotIn {
			return "NOT COALESCE(" + in + ", FALSE)", nil
		}
		return in, nil
	default:
		return "", fmt.Errorf("%w: unsupported operator %q", storage.ErrInvalidInput, f.Operator)
	}
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}
