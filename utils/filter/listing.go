// Package filter decides which listing entries a filter_key/exclude_key query keeps.
package filter

import (
	"regexp"
	"strings"

	"golang.org/x/text/cases"
)

// IsEmpty as a filter value matches on whether the field is populated instead
// of on its content.
const IsEmpty = "is_empty"

// Fields exposes entry values by key, info labels first, then properties.
type Fields interface {
	Field(key string) (string, bool)
}

// Rules holds one include and one exclude condition.
type Rules struct {
	FilterKey    string
	FilterValue  string
	ExcludeKey   string
	ExcludeValue string
}

// FromParams reads filter_key, filter_value, exclude_key and exclude_value.
// Multi-value values ("a / b") use their first item.
func FromParams(params map[string]string) Rules {
	return Rules{
		FilterKey:    params["filter_key"],
		FilterValue:  firstItem(params["filter_value"]),
		ExcludeKey:   params["exclude_key"],
		ExcludeValue: firstItem(params["exclude_value"]),
	}
}

func firstItem(v string) string {
	if i := strings.Index(v, " / "); i >= 0 {
		v = v[:i]
	}
	return strings.TrimSpace(v)
}

// Active reports whether any condition is configured.
func (r Rules) Active() bool {
	return (r.FilterKey != "" && r.FilterValue != "") || (r.ExcludeKey != "" && r.ExcludeValue != "")
}

// Excluded reports whether the entry should be dropped.
//
// Include: an entry carrying the filter key is dropped unless the value
// contains the filter value; entries without the key are kept. With is_empty
// entries that have the field populated are dropped.
//
// Exclude: an entry is dropped when the exclude key's value contains the
// exclude value. With is_empty entries lacking the field are dropped.
func (r Rules) Excluded(f Fields) bool {
	if r.FilterKey != "" && r.FilterValue != "" {
		value, ok := f.Field(r.FilterKey)
		if r.FilterValue == IsEmpty {
			if value != "" {
				return true
			}
		} else if ok && !compileTerm(r.FilterValue).matches(value) {
			return true
		}
	}
	if r.ExcludeKey != "" && r.ExcludeValue != "" {
		value, ok := f.Field(r.ExcludeKey)
		if r.ExcludeValue == IsEmpty {
			if value == "" {
				return true
			}
		} else if ok && compileTerm(r.ExcludeValue).matches(value) {
			return true
		}
	}
	return false
}

// term is either a case folded substring or a case-insensitive regex given
// as /pattern/. An invalid pattern falls back to a substring of the whole value.
type term struct {
	plain string
	regex *regexp.Regexp
}

func fold(s string) string {
	return cases.Fold().String(s)
}

func compileTerm(raw string) term {
	raw = strings.TrimSpace(raw)
	if len(raw) >= 3 && raw[0] == '/' && raw[len(raw)-1] == '/' {
		if re, err := regexp.Compile("(?i)" + raw[1:len(raw)-1]); err == nil {
			return term{regex: re}
		}
	}
	return term{plain: fold(raw)}
}

func (t term) matches(value string) bool {
	if t.regex != nil {
		return t.regex.MatchString(value)
	}
	return strings.Contains(fold(value), t.plain)
}
