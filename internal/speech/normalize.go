package speech

import "regexp"

var (
	emphasisPattern   = regexp.MustCompile(`\*\*|__|\*|_`)
	headingPattern    = regexp.MustCompile(`#+[\s\v\p{Z}\x{85}]`)
	linkPattern       = regexp.MustCompile(`\[([^\]]+)\]\([^\)]+\)`)
	inlineCodePattern = regexp.MustCompile("`[^`]*`")
)

// Normalize strips markdown emphasis, heading markers, link syntax and inline
// code spans so the text reads as plain prose. The result is used verbatim as
// part of the audio cache key, so no trimming or whitespace folding is done.
func Normalize(text string) string {
	if text == "" {
		return ""
	}
	text = emphasisPattern.ReplaceAllString(text, "")
	text = headingPattern.ReplaceAllString(text, "")
	text = linkPattern.ReplaceAllString(text, "${1}")
	text = inlineCodePattern.ReplaceAllString(text, "")
	return text
}
