package personalize

import (
	"fmt"
	"regexp"
	"strings"
)

var placeholderRe = regexp.MustCompile(`\{\{\s*([^{}\s][^{}]*?)\s*\}\}`)

// Apply replaces every {{ key }} placeholder in s with the matching value from
// data. Whitespace around the key is tolerated. Placeholders whose key is not
// in data are left untouched, so partial personalization data never corrupts
// a template. Values are rendered with fmt.Sprint and inserted verbatim; the
// caller owns HTML escaping.
func Apply(s string, data map[string]any) string {
	if len(data) == 0 || !strings.Contains(s, "{{") {
		return s
	}

	return placeholderRe.ReplaceAllStringFunc(s, func(match string) string {
		key := placeholderRe.FindStringSubmatch(match)[1]
		value, ok := data[key]
		if !ok {
			return match
		}
		return fmt.Sprint(value)
	})
}
