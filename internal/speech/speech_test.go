package speech

import (
	"regexp"
	"testing"
)

func TestNormalize(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{
			name: "empty input",
			in:   "",
			want: "",
		},
		{
			name: "drops bold and italic markers",
			in:   "Use **neem oil** and __compost__ on *young* _plants_.",
			want: "Use neem oil and compost on young plants.",
		},
		{
			name: "drops heading markers with their space",
			in:   "## Soil health\n# Tips",
			want: "Soil health\nTips",
		},
		{
			name: "heading marker without whitespace is kept",
			in:   "Issue #42",
			want: "Issue #42",
		},
		{
			name: "unwraps links to their label",
			in:   "See [ICAR guide](https://icar.org.in/guide) today.",
			want: "See ICAR guide today.",
		},
		{
			name: "removes inline code spans",
			in:   "Set `ph=6.5` before sowing.",
			want: "Set  before sowing.",
		},
		{
			name: "keeps surrounding whitespace untouched",
			in:   "  plain text  ",
			want: "  plain text  ",
		},
		{
			name: "telugu prose passes through",
			in:   "**వరి** పంట",
			want: "వరి పంట",
		},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			got := Normalize(tc.in)
			if got != tc.want {
				t.Fatalf("Normalize(%q) = %q, want %q", tc.in, got, tc.want)
			}
		})
	}
}

func TestNormalizeLeavesNoMarkup(t *testing.T) {
	inputs := []string{
		"# Title\n**bold** _it_ [a](b) `c`",
		"### Kharif\n* item one\n* item [two](http://x.y/z)",
		"__init__ and `code` and ***strong em***",
		"mixed తెలుగు **text** with [link](u)",
	}
	leftovers := []*regexp.Regexp{
		regexp.MustCompile(`\*|_`),
		regexp.MustCompile(`#+\s`),
		regexp.MustCompile(`\[([^\]]+)\]\([^\)]+\)`),
		regexp.MustCompile("`[^`]*`"),
	}
	for _, in := range inputs {
		got := Normalize(in)
		for _, re := range leftovers {
			if re.MatchString(got) {
				t.Fatalf("Normalize(%q) = %q still matches %s", in, got, re)
			}
		}
	}
}

func TestDetectLanguage(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{name: "ascii", in: "How do I treat stem borer?", want: LangEnglish},
		{name: "empty", in: "", want: LangEnglish},
		{name: "pure telugu", in: "నమస్కారం", want: LangTelugu},
		{name: "mostly english with one telugu rune", in: "Paddy yield in " + string(rune(0x0C05)) + " district", want: LangTelugu},
		{name: "block boundary low", in: string(rune(0x0C00)), want: LangTelugu},
		{name: "block boundary high", in: string(rune(0x0C7F)), want: LangTelugu},
		{name: "kannada is not telugu", in: "ನಮಸ್ಕಾರ", want: LangEnglish},
		{name: "devanagari is not telugu", in: "नमस्ते", want: LangEnglish},
	}
	for _, tc := range cases {
		if got := DetectLanguage(tc.in); got != tc.want {
			t.Fatalf("%s: DetectLanguage(%q) = %q, want %q", tc.name, tc.in, got, tc.want)
		}
	}
}
