package expr

import (
	"strings"

	"github.com/eventops/manifest/internal/ir"
)

// Interpolate substitutes {placeholder} segments in a message template.
// Placeholders resolve against details first, then against the scope
// (args, then self, then context). Unresolved placeholders are left as-is
// so a malformed template still produces a readable message.
func Interpolate(template string, details map[string]ir.Value, scope Scope) string {
	var b strings.Builder
	rest := template
	for {
		open := strings.IndexByte(rest, '{')
		if open < 0 {
			b.WriteString(rest)
			return b.String()
		}
		end := strings.IndexByte(rest[open:], '}')
		if end < 0 {
			b.WriteString(rest)
			return b.String()
		}
		end += open

		b.WriteString(rest[:open])
		name := rest[open+1 : end]
		if v, ok := lookupPlaceholder(name, details, scope); ok {
			b.WriteString(formatValue(v))
		} else {
			b.WriteString(rest[open : end+1])
		}
		rest = rest[end+1:]
	}
}

func lookupPlaceholder(name string, details map[string]ir.Value, scope Scope) (ir.Value, bool) {
	if v, ok := details[name]; ok {
		return v, true
	}
	if v, ok := scope.Args[name]; ok {
		return v, true
	}
	if v, ok := scope.Self[name]; ok {
		return v, true
	}
	if v, ok := scope.Context[name]; ok {
		return v, true
	}
	return nil, false
}

// formatValue renders a value for message text: strings bare, everything
// else as compact JSON.
func formatValue(v ir.Value) string {
	if s, ok := v.(ir.String); ok {
		return string(s)
	}
	data, err := ir.MarshalValue(v)
	if err != nil {
		return "<unprintable>"
	}
	return string(data)
}
