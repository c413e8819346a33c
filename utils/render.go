package utils

import "regexp"

var placeholderRe = regexp.MustCompile(`\{\{\s*([A-Za-z0-9_]+)\s*\}\}`)

// RenderTemplate substitutes {{name}} placeholders in text with the values
// in vars. Placeholders without a matching variable are left verbatim, so
// the function is total: it never fails on user-authored templates.
func RenderTemplate(text string, vars map[string]string) string {
	return placeholderRe.ReplaceAllStringFunc(text, func(match string) string {
		name := placeholderRe.FindStringSubmatch(match)[1]
		if value, ok := vars[name]; ok {
			return value
		}
		return match
	})
}
