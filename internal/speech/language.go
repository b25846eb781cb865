package speech

import "unicode"

const (
	LangEnglish = "en"
	LangTelugu  = "te"
)

var teluguBlock = &unicode.RangeTable{
	R16: []unicode.Range16{{Lo: 0x0C00, Hi: 0x0C7F, Stride: 1}},
}

// DetectLanguage picks the synthesis language for text. Any rune from the
// Telugu block selects Telugu for the whole text, since the Telugu voice also
// reads interspersed Latin words; everything else falls back to English.
func DetectLanguage(text string) string {
	for _, r := range text {
		if unicode.Is(teluguBlock, r) {
			return LangTelugu
		}
	}
	return LangEnglish
}
