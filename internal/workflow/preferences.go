package workflow

import (
	"fmt"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/language/display"
)

// Language is a song language filter, stored as a BCP 47 tag.
type Language string

// Mood is a song mood filter.
type Mood string

// Supported language filters.
const (
	LanguageKorean   Language = "ko"
	LanguageEnglish  Language = "en"
	LanguageJapanese Language = "ja"
	LanguageChinese  Language = "zh"
	LanguageSpanish  Language = "es"
)

// Supported mood filters.
const (
	MoodHappy     Mood = "happy"
	MoodSad       Mood = "sad"
	MoodCalm      Mood = "calm"
	MoodExcited   Mood = "excited"
	MoodRomantic  Mood = "romantic"
	MoodNostalgic Mood = "nostalgic"
)

// Languages lists the language filters in display order.
var Languages = []Language{LanguageKorean, LanguageEnglish, LanguageJapanese, LanguageChinese, LanguageSpanish}

// Moods lists the mood filters in display order.
var Moods = []Mood{MoodHappy, MoodSad, MoodCalm, MoodExcited, MoodRomantic, MoodNostalgic}

var languageMatcher = language.NewMatcher([]language.Tag{
	language.Korean, language.English, language.Japanese, language.Chinese, language.Spanish,
})

// ParseLanguage accepts any BCP 47 tag or English language name that maps
// confidently onto a supported language ("ko-KR", "Korean", "en").
func ParseLanguage(s string) (Language, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", nil
	}
	for _, l := range Languages {
		if strings.EqualFold(s, l.DisplayName()) {
			return l, nil
		}
	}
	tag, err := language.Parse(s)
	if err != nil {
		return "", fmt.Errorf("unknown language %q", s)
	}
	_, idx, conf := languageMatcher.Match(tag)
	if conf < language.High {
		return "", fmt.Errorf("unsupported language %q", s)
	}
	return Languages[idx], nil
}

// DisplayName returns the English name of the language, e.g. "Korean".
func (l Language) DisplayName() string {
	if l == "" {
		return ""
	}
	return display.English.Languages().Name(language.Make(string(l)))
}

// ParseMood validates a mood name.
func ParseMood(s string) (Mood, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return "", nil
	}
	for _, m := range Moods {
		if Mood(s) == m {
			return m, nil
		}
	}
	return "", fmt.Errorf("unknown mood %q", s)
}

// Preferences are the optional recommendation filters. At most one value per
// category; the zero value means no filter.
type Preferences struct {
	Language Language `json:"language,omitempty"`
	Mood     Mood     `json:"mood,omitempty"`
}

// Toggle applies a selection with toggle semantics: choosing the current
// value clears it, choosing another value replaces it, and an empty argument
// leaves that category untouched.
func (p Preferences) Toggle(lang Language, mood Mood) Preferences {
	if lang != "" {
		if p.Language == lang {
			p.Language = ""
		} else {
			p.Language = lang
		}
	}
	if mood != "" {
		if p.Mood == mood {
			p.Mood = ""
		} else {
			p.Mood = mood
		}
	}
	return p
}
