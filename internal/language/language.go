package language

import (
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/language/display"
)

// Default is the language summaries are produced in before translation.
const Default = "en"

type entry struct {
	code2    string   // ISO 639-1
	code3    string   // ISO 639-2
	fontFile string   // Noto Sans face used for report rendering; empty means core Helvetica
	words    []string // English word forms accepted as input
}

var languages = []entry{
	{"en", "eng", "", []string{"english"}},
	{"hi", "hin", "NotoSansDevanagari-Regular.ttf", []string{"hindi"}},
	{"mr", "mar", "NotoSansDevanagari-Regular.ttf", []string{"marathi"}},
	{"gu", "guj", "NotoSansGujarati-Regular.ttf", []string{"gujarati"}},
	{"ta", "tam", "NotoSansTamil-Regular.ttf", []string{"tamil"}},
	{"te", "tel", "NotoSansTelugu-Regular.ttf", []string{"telugu"}},
	{"kn", "kan", "NotoSansKannada-Regular.ttf", []string{"kannada"}},
	{"ml", "mal", "NotoSansMalayalam-Regular.ttf", []string{"malayalam"}},
	{"bn", "ben", "NotoSansBengali-Regular.ttf", []string{"bengali", "bangla"}},
}

var index map[string]*entry

func init() {
	index = make(map[string]*entry, len(languages)*4)
	for i := range languages {
		e := &languages[i]
		index[e.code2] = e
		index[e.code3] = e
		for _, w := range e.words {
			index[w] = e
		}
	}
}

func lookup(code string) *entry {
	code = strings.ToLower(strings.TrimSpace(code))
	if code == "" {
		return nil
	}
	if e, ok := index[code]; ok {
		return e
	}
	// Accept BCP 47 forms such as "hi-IN".
	if tag, err := language.Parse(code); err == nil {
		base, _ := tag.Base()
		if e, ok := index[base.String()]; ok {
			return e
		}
	}
	return nil
}

// Supported reports whether code names a language the report renderer knows.
func Supported(code string) bool {
	return lookup(code) != nil
}

// Normalize converts any recognized code, BCP 47 tag or English word to its
// ISO 639-1 form. Unknown input yields Default.
func Normalize(code string) string {
	if e := lookup(code); e != nil {
		return e.code2
	}
	return Default
}

// FontFile returns the TrueType file name used to render code, or "" when the
// core PDF fonts suffice.
func FontFile(code string) string {
	if e := lookup(code); e != nil {
		return e.fontFile
	}
	return ""
}

// DisplayName returns the English name of a language code ("Hindi" for "hi").
func DisplayName(code string) string {
	trimmed := strings.TrimSpace(code)
	if trimmed == "" {
		return "Unknown"
	}
	tag, err := language.Parse(trimmed)
	if err != nil {
		return strings.ToUpper(trimmed)
	}
	if name := display.English.Languages().Name(tag); name != "" {
		return name
	}
	return strings.ToUpper(trimmed)
}

// PromptName is the target-language label used in translation prompts.
func PromptName(code string) string {
	name := DisplayName(code)
	if strings.EqualFold(name, code) {
		return code
	}
	return name
}

// Codes lists the ISO 639-1 codes in table order.
func Codes() []string {
	out := make([]string, 0, len(languages))
	for _, e := range languages {
		out = append(out, e.code2)
	}
	return out
}
