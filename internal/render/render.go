package render

import "regexp"

// placeholderRe matches {{name}} markers, with optional inner whitespace.
var placeholderRe = regexp.MustCompile(`\{\{\s*([A-Za-z_][A-Za-z0-9_]*)\s*\}\}`)

// Render substitutes {{placeholder}} markers in text with values from the
// context map. Placeholders without a context entry render as the empty
// string; anything that is not a well-formed marker is left untouched.
func Render(text string, context map[string]string) string {
	return placeholderRe.ReplaceAllStringFunc(text, func(m string) string {
		key := placeholderRe.FindStringSubmatch(m)[1]
		return context[key]
	})
}
