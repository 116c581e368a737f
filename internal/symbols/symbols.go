package symbols

import "strings"

// Filter is a normalized symbol filter for range queries. A zero Filter
// matches every symbol.
type Filter struct {
	values []string
}

// Expand parses a comma-delimited symbol string into a Filter. Tokens are
// trimmed, uppercased, and de-duplicated; blank tokens are dropped. Malformed
// input never fails, it just yields a smaller filter.
func Expand(raw string) Filter {
	if strings.TrimSpace(raw) == "" {
		return Filter{}
	}
	return ExpandList(strings.Split(raw, ","))
}

// ExpandList normalizes an explicit symbol list into a Filter.
func ExpandList(symbols []string) Filter {
	seen := make(map[string]struct{}, len(symbols))
	values := make([]string, 0, len(symbols))
	for _, s := range symbols {
		s = strings.ToUpper(strings.TrimSpace(s))
		if s == "" {
			continue
		}
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		values = append(values, s)
	}
	return Filter{values: values}
}

// IsEmpty reports whether the filter matches all symbols.
func (f Filter) IsEmpty() bool {
	return len(f.values) == 0
}

// Single returns the only symbol when the filter holds exactly one. Callers
// use this to build an equality predicate instead of a membership one.
func (f Filter) Single() (string, bool) {
	if len(f.values) == 1 {
		return f.values[0], true
	}
	return "", false
}

// Values returns the normalized symbols.
func (f Filter) Values() []string {
	return f.values
}

// Len returns the number of symbols in the filter.
func (f Filter) Len() int {
	return len(f.values)
}

// Contains reports whether the filter admits the given symbol. An empty
// filter admits everything. The symbol is normalized before comparison.
func (f Filter) Contains(symbol string) bool {
	if f.IsEmpty() {
		return true
	}
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	for _, v := range f.values {
		if v == symbol {
			return true
		}
	}
	return false
}

// String renders the filter as a comma-joined list, mainly for logging.
func (f Filter) String() string {
	return strings.Join(f.values, ",")
}
