// Package template provides placeholder resolution for dynamic action
// configuration. Strings may contain {{path.to.value}} placeholders that are
// substituted against the instance context at fire time.
//
// Missing-key policy: a placeholder whose path does not resolve is replaced
// with the empty string. This keeps action payloads well-formed even when the
// context is sparse; it is deliberate and relied upon by callers.
package template

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var placeholderRe = regexp.MustCompile(`\{\{\s*([a-zA-Z0-9_.\-]+)\s*\}\}`)

// Resolve substitutes every {{path.to.value}} placeholder in input with the
// value found at that dot path in data. Unresolvable paths become "".
func Resolve(input string, data map[string]any) string {
	if !strings.Contains(input, "{{") {
		return input
	}

	return placeholderRe.ReplaceAllStringFunc(input, func(match string) string {
		path := placeholderRe.FindStringSubmatch(match)[1]

		value, ok := Lookup(data, path)
		if !ok {
			return ""
		}

		return stringify(value)
	})
}

// ResolveConfig returns a copy of config with every string value resolved
// against data. Nested maps and slices are walked; non-string leaves pass
// through untouched.
func ResolveConfig(config map[string]any, data map[string]any) map[string]any {
	if config == nil {
		return nil
	}

	resolved := make(map[string]any, len(config))
	for key, value := range config {
		resolved[key] = resolveValue(value, data)
	}

	return resolved
}

func resolveValue(value any, data map[string]any) any {
	switch v := value.(type) {
	case string:
		return Resolve(v, data)
	case map[string]any:
		return ResolveConfig(v, data)
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = resolveValue(item, data)
		}

		return out
	default:
		return value
	}
}

// Lookup walks a dot path through nested map[string]any values.
func Lookup(data map[string]any, path string) (any, bool) {
	if data == nil {
		return nil, false
	}

	segments := strings.Split(path, ".")
	var current any = data

	for _, segment := range segments {
		node, ok := current.(map[string]any)
		if !ok {
			return nil, false
		}

		current, ok = node[segment]
		if !ok {
			return nil, false
		}
	}

	return current, true
}

func stringify(value any) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	case bool:
		return strconv.FormatBool(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case int:
		return strconv.Itoa(v)
	case int64:
		return strconv.FormatInt(v, 10)
	default:
		return fmt.Sprintf("%v", v)
	}
}
