package model

import "strings"

// FilterMode is the normalised form of a DSL wildcard filter string,
// decided once at parse time.
type FilterMode int

// The four active filter modes plus "no filter".
const (
	FilterNone FilterMode = iota
	FilterEq
	FilterPrefix
	FilterSuffix
	FilterContains
)

// StringFilter is a normalised name/type filter: a mode plus the core
// string to compare against, wildcard markers stripped.
type StringFilter struct {
	Mode FilterMode
	Core string
}

// ParseStringFilter normalises a raw DSL filter token. Empty, "*" and "**"
// all disable the filter. Otherwise leading/trailing "*" select the mode:
// both ends -> contains, trailing only -> prefix, leading only -> suffix,
// neither -> eq. Comparison core is lower-cased since matching is
// case-insensitive.
func ParseStringFilter(raw string) StringFilter {
	if raw == "" || raw == "*" || raw == "**" {
		return StringFilter{Mode: FilterNone}
	}
	leading := strings.HasPrefix(raw, "*")
	trailing := strings.HasSuffix(raw, "*")
	core := raw
	if leading {
		core = core[1:]
	}
	if trailing && len(core) > 0 {
		core = core[:len(core)-1]
	}
	core = strings.ToLower(core)
	switch {
	case leading && trailing:
		return StringFilter{Mode: FilterContains, Core: core}
	case trailing:
		return StringFilter{Mode: FilterPrefix, Core: core}
	case leading:
		return StringFilter{Mode: FilterSuffix, Core: core}
	default:
		return StringFilter{Mode: FilterEq, Core: core}
	}
}

// Match reports whether v satisfies the filter, case-insensitively.
func (f StringFilter) Match(v string) bool {
	if f.Mode == FilterNone {
		return true
	}
	v = strings.ToLower(v)
	switch f.Mode {
	case FilterEq:
		return v == f.Core
	case FilterPrefix:
		return strings.HasPrefix(v, f.Core)
	case FilterSuffix:
		return strings.HasSuffix(v, f.Core)
	case FilterContains:
		return strings.Contains(v, f.Core)
	default:
		return true
	}
}
