package negotiate

import (
	"encoding/json"
	"strconv"
	"strings"
)

// Rule extracts a display string from a decoded JSON object. ok is false when
// the rule does not apply and the next rule should be tried.
type Rule struct {
	Name    string
	Extract func(fields map[string]json.RawMessage) (text string, ok bool)
}

// DefaultRules is the backend's extraction order.
var DefaultRules = []Rule{
	Field("reply"),
	Field("response"),
	Field("message"),
	Prefixed("error", "Error: "),
}

// Field matches when the named field is present and truthy, yielding its value.
func Field(name string) Rule {
	return Prefixed(name, "")
}

// Prefixed matches like Field and prepends prefix to the value.
func Prefixed(name, prefix string) Rule {
	return Rule{
		Name: name,
		Extract: func(fields map[string]json.RawMessage) (string, bool) {
			raw, ok := fields[name]
			if !ok || !truthy(raw) {
				return "", false
			}
			return prefix + render(raw), true
		},
	}
}

// truthy treats null, "", false and numeric zero as absent.
func truthy(raw json.RawMessage) bool {
	s := strings.TrimSpace(string(raw))
	switch s {
	case "", "null", `""`, "false":
		return false
	}
	if s[0] == '-' || (s[0] >= '0' && s[0] <= '9') {
		f, err := strconv.ParseFloat(s, 64)
		return err != nil || f != 0
	}
	return true
}

// render returns string values unquoted and anything else as compact JSON.
func render(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return compact(raw)
}
