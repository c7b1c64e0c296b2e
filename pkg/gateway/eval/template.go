package eval

import (
	"fmt"
	"regexp"
	"strings"

	"meridian-hq/meridian/pkg/gateway"
)

// templatePattern matches ${dotted.path} interpolation markers.
var templatePattern = regexp.MustCompile(`\$\{([^}]*)\}`)

// Render substitutes every ${path} marker in the template with the
// resolved value's string form. Unresolved paths substitute the empty
// string; rendering never fails.
func Render(ec *gateway.Context, template string) string {
	return templatePattern.ReplaceAllStringFunc(template, func(marker string) string {
		path := strings.TrimSpace(marker[2 : len(marker)-1])
		if path == "" {
			return ""
		}
		value, ok := Resolve(ec, path)
		if !ok {
			return ""
		}
		return stringify(value)
	})
}

func stringify(value any) string {
	switch v := value.(type) {
	case string:
		return v
	case []string:
		return strings.Join(v, " ")
	case nil:
		return ""
	default:
		return fmt.Sprintf("%v", v)
	}
}
