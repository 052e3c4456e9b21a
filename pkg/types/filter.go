package types

import (
	"errors"
	"fmt"
	"strings"
)

// FilterType selects whether a filter targets a native memo column or a key
// inside the memo's custom metadata.
type FilterType string

// FilterOperator is the comparison a MemoFilter applies.
type FilterOperator string

const (
	FilterTypeNativeField    FilterType = "native_field"
	FilterTypeCustomMetadata FilterType = "custom_metadata"
)

const (
	OpEq         FilterOperator = "eq"
	OpNeq        FilterOperator = "neq"
	OpContains   FilterOperator = "contains"
	OpStartsWith FilterOperator = "startswith"
	OpEndsWith   FilterOperator = "endswith"
	OpIn         FilterOperator = "in"
	OpNotIn      FilterOperator = "not_in"
)

// Native filterable memo fields
const (
	FieldTitle             = "title"
	FieldSource            = "source"
	FieldClientReferenceID = "client_reference_id"
	FieldTags              = "tags"
)

// ErrInvalidFilter is returned by MemoFilter.Validate.
var ErrInvalidFilter = errors.New("invalid filter")

// MemoFilter restricts retrieval to memos matching a structured condition.
// Value is a string for scalar operators and a list of strings for in/not_in.
type MemoFilter struct {
	Field      string         `json:"field" yaml:"field"`
	FilterType FilterType     `json:"filter_type" yaml:"filter_type"`
	Operator   FilterOperator `json:"operator" yaml:"operator"`
	Value      interface{}    `json:"value" yaml:"value"`
}

// Validate checks the filter's field, operator and value shape.
func (f MemoFilter) Validate() error {
	switch f.FilterType {
	case FilterTypeNativeField:
		switch f.Field {
		case FieldTitle, FieldSource, FieldClientReferenceID:
		case FieldTags:
			if f.Operator != OpIn && f.Operator != OpNotIn && f.Operator != OpEq {
				return fmt.Errorf("%w: tags only support eq, in and not_in", ErrInvalidFilter)
			}
		default:
			return fmt.Errorf("%w: unknown native field %q", ErrInvalidFilter, f.Field)
		}
	case FilterTypeCustomMetadata:
		if strings.TrimSpace(f.Field) == "" {
			return fmt.Errorf("%w: metadata key is required", ErrInvalidFilter)
		}
	default:
		return fmt.Errorf("%w: unknown filter type %q", ErrInvalidFilter, f.FilterType)
	}

	switch f.Operator {
	case OpEq, OpNeq, OpContains, OpStartsWith, OpEndsWith:
		if _, ok := f.Value.(string); !ok {
			return fmt.Errorf("%w: operator %s needs a string value", ErrInvalidFilter, f.Operator)
		}
	case OpIn, OpNotIn:
		if _, err := f.Values(); err != nil {
			return err
		}
	default:
		return fmt.Errorf("%w: unknown operator %q", ErrInvalidFilter, f.Operator)
	}
	return nil
}

// Values returns the filter value as a list, accepting []string and the
// []interface{} shape produced by JSON/YAML decoding.
func (f MemoFilter) Values() ([]string, error) {
	switch v := f.Value.(type) {
	case []string:
		return v, nil
	case []interface{}:
		out := make([]string, 0, len(v))
		for _, item := range v {
			s, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("%w: list values must be strings", ErrInvalidFilter)
			}
			out = append(out, s)
		}
		return out, nil
	case string:
		return []string{v}, nil
	default:
		return nil, fmt.Errorf("%w: operator %s needs a list value", ErrInvalidFilter, f.Operator)
	}
}

// Matches evaluates the filter in memory against a memo and its tags.
// Backends that cannot push filters into a query use it directly.
func (f MemoFilter) Matches(memo *Memo, tags []string) bool {
	if f.FilterType == FilterTypeNativeField && f.Field == FieldTags {
		values, _ := f.Values()
		has := false
		for _, v := range values {
			for _, t := range tags {
				if t == v {
					has = true
				}
			}
		}
		if f.Operator == OpNotIn {
			return !has
		}
		return has
	}

	var actual string
	present := true
	if f.FilterType == FilterTypeNativeField {
		switch f.Field {
		case FieldTitle:
			actual = memo.Title
		case FieldSource:
			actual = memo.Source
		case FieldClientReferenceID:
			actual = memo.ClientReferenceID
		}
	} else {
		raw, ok := memo.Metadata[f.Field]
		present = ok
		if ok {
			actual = fmt.Sprint(raw)
		}
	}

	switch f.Operator {
	case OpEq:
		return present && actual == f.Value
	case OpNeq:
		return !present || actual != f.Value
	case OpContains:
		s, _ := f.Value.(string)
		return present && strings.Contains(actual, s)
	case OpStartsWith:
		s, _ := f.Value.(string)
		return present && strings.HasPrefix(actual, s)
	case OpEndsWith:
		s, _ := f.Value.(string)
		return present && strings.HasSuffix(actual, s)
	case OpIn, OpNotIn:
		values, _ := f.Values()
		found := false
		for _, v := range values {
			if present && actual == v {
				found = true
				break
			}
		}
		if f.Operator == OpNotIn {
			return !found
		}
		return found
	default:
		return false
	}
}
