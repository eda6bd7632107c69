package types

// Op is a comparison understood by every Store implementation.
type Op string

const (
	OpEq      Op = "eq"
	OpIsNull  Op = "is_null"
	OpNotNull Op = "not_null"
)

// Cond is a single column predicate. Value is ignored for null checks.
type Cond struct {
	Column string
	Op     Op
	Value  any
}

// Filter is a conjunction of conditions plus an optional projection and limit.
type Filter struct {
	Conds   []Cond
	Columns []string
	Limit   int
}

// Where builds a filter from equality conditions given as column/value pairs.
func Where(pairs ...any) Filter {
	var f Filter
	for i := 0; i+1 < len(pairs); i += 2 {
		col, _ := pairs[i].(string)
		f.Conds = append(f.Conds, Cond{Column: col, Op: OpEq, Value: pairs[i+1]})
	}
	return f
}

// Select returns a copy of f projecting only the given columns.
func (f Filter) Select(cols ...string) Filter {
	f.Columns = cols
	return f
}

// Take returns a copy of f limited to n rows.
func (f Filter) Take(n int) Filter {
	f.Limit = n
	return f
}

// Row is one table row keyed by column name.
type Row map[string]any

// Clone returns a shallow copy of r.
func (r Row) Clone() Row {
	out := make(Row, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}
