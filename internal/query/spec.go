package query

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/koustreak/arcforge/internal/errs"
)

// Filter is one mini-language condition: Key is "field", "field__op",
// "table.field" or "table.field__op".
type Filter struct {
	Key   string
	Value any
}

// Spec describes one SELECT. It is built per call and consumed once.
type Spec struct {
	Where   []Filter
	Having  []Filter
	Select  []string
	GroupBy []string
	OrderBy []string
	Limit   int // 0 means no limit
	Offset  int
}

// Filters turns a map of conditions into filters ordered by key, so the
// generated statement is stable.
func Filters(m map[string]any) []Filter {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]Filter, 0, len(keys))
	for _, k := range keys {
		out = append(out, Filter{Key: k, Value: m[k]})
	}
	return out
}

// Reserved parameter keys. Everything else is a WHERE condition.
const (
	ParamSelect  = "select"
	ParamGroupBy = "group_by"
	ParamOrderBy = "order_by"
	ParamHaving  = "having"
	ParamLimit   = "limit"
	ParamOffset  = "offset"
)

// ParseParams builds a Spec from flat parameters such as a decoded JSON
// body or a URL query. List-valued keys take a []string, a []any or a
// comma-separated string; commas inside parentheses do not split.
// having takes a map, or "key=value" pairs separated by commas.
func ParseParams(params map[string]any) (Spec, error) {
	var spec Spec
	where := make(map[string]any)

	for key, v := range params {
		var err error
		switch key {
		case ParamSelect:
			spec.Select, err = stringList(key, v)
		case ParamGroupBy:
			spec.GroupBy, err = stringList(key, v)
		case ParamOrderBy:
			spec.OrderBy, err = stringList(key, v)
		case ParamHaving:
			spec.Having, err = havingFilters(v)
		case ParamLimit:
			spec.Limit, err = nonNegative(key, v)
		case ParamOffset:
			spec.Offset, err = nonNegative(key, v)
		default:
			where[key] = v
		}
		if err != nil {
			return Spec{}, err
		}
	}
	spec.Where = Filters(where)
	return spec, nil
}

func stringList(key string, v any) ([]string, error) {
	switch x := v.(type) {
	case string:
		return splitTopLevel(x), nil
	case []string:
		return x, nil
	case []any:
		out := make([]string, 0, len(x))
		for _, item := range x {
			s, ok := item.(string)
			if !ok {
				return nil, errs.Newf(errs.ErrKindInvalidInput, "%s: expected strings, got %T", key, item)
			}
			out = append(out, s)
		}
		return out, nil
	}
	return nil, errs.Newf(errs.ErrKindInvalidInput, "%s: expected a string or a list, got %T", key, v)
}

func havingFilters(v any) ([]Filter, error) {
	switch x := v.(type) {
	case map[string]any:
		return Filters(x), nil
	case string:
		m := make(map[string]any)
		for _, pair := range splitTopLevel(x) {
			k, val, ok := strings.Cut(pair, "=")
			if !ok {
				return nil, errs.Newf(errs.ErrKindInvalidInput, "having: expected key=value, got %q", pair)
			}
			m[strings.TrimSpace(k)] = strings.TrimSpace(val)
		}
		return Filters(m), nil
	}
	return nil, errs.Newf(errs.ErrKindInvalidInput, "having: expected a map or key=value list, got %T", v)
}

func nonNegative(key string, v any) (int, error) {
	var n int64
	switch x := v.(type) {
	case int:
		n = int64(x)
	case int64:
		n = x
	case float64:
		n = int64(x)
	case string:
		parsed, err := strconv.ParseInt(strings.TrimSpace(x), 10, 64)
		if err != nil {
			return 0, errs.Newf(errs.ErrKindInvalidInput, "%s: %q is not a number", key, x)
		}
		n = parsed
	default:
		if s := fmt.Sprint(v); s != "" {
			parsed, err := strconv.ParseInt(s, 10, 64)
			if err == nil {
				n = parsed
				break
			}
		}
		return 0, errs.Newf(errs.ErrKindInvalidInput, "%s: expected a number, got %T", key, v)
	}
	if n < 0 {
		return 0, errs.Newf(errs.ErrKindInvalidInput, "%s must not be negative", key)
	}
	return int(n), nil
}

// splitTopLevel splits on commas outside parentheses and trims each part.
func splitTopLevel(s string) []string {
	var (
		out   []string
		depth int
		start int
	)
	for i, r := range s {
		switch r {
		case '(':
			depth++
		case ')':
			if depth > 0 {
				depth--
			}
		case ',':
			if depth == 0 {
				if part := strings.TrimSpace(s[start:i]); part != "" {
					out = append(out, part)
				}
				start = i + 1
			}
		}
	}
	if part := strings.TrimSpace(s[start:]); part != "" {
		out = append(out, part)
	}
	return out
}
