// Package translation detects Albanian input and moves text between Albanian
// and English around backend calls.
package translation

import (
	"regexp"
	"strings"
)

// Language codes used with translation providers.
const (
	Albanian = "sq"
	English  = "en"
)

var albanianChars = regexp.MustCompile(`[çëÇË]`)

var englishQuestions = compileAll(
	`(?i)^what\s+`,
	`(?i)^who\s+`,
	`(?i)^when\s+`,
	`(?i)^where\s+`,
	`(?i)^why\s+`,
	`(?i)^how\s+`,
	`(?i)^which\s+`,
	`(?i)^is\s+`,
	`(?i)^are\s+`,
	`(?i)^can\s+`,
	`(?i)^does\s+`,
	`(?i)^do\s+`,
	`(?i)^will\s+`,
	`(?i)^would\s+`,
	`(?i)^could\s+`,
	`(?i)^should\s+`,
	`(?i)^tell\s+me`,
	`(?i)^explain\s+`,
	`(?i)^describe\s+`,
	`(?i)^define\s+`,
)

var albanianQuestions = compileAll(
	`(?i)^(cfare|cfarë|çfarë|çfare,cfar)\s+`,
	`(?i)^(eshte|është|eshtë|ështe)\s+`,
	`(?i)^(ku|kur|pse|kush|cila|cilat|cilët)\s+`,
	`(?i)^(si|sa)\s+`,
)

var albanianPhrases = compileAll(
	`(?i)\b(cfare\s+eshte|cfarë\s+është|çfarë\s+është|çfare\s+eshte)\b`,
	`(?i)\b(ku\s+eshte|ku\s+është)\b`,
	`(?i)\b(kur\s+eshte|kur\s+është)\b`,
	`(?i)\b(si\s+quhet|si\s+quhen)\b`,
	`(?i)\b(neni\s+\d+)\b`,
	`(?i)\b(nen\s+\d+)\b`,
)

// "nen" and "teu" are excluded; both occur in English legal text.
var strongWords = func() []*regexp.Regexp {
	words := []string{
		"cfare", "cfarë", "çfarë", "çfare",
		"eshte", "është", "eshtë", "ështe",
		"neni",
		"traktatit", "traktat",
		"bashkimi", "bashkim",
		"shteti", "shtet",
		"anëtar", "anetar",
		"ligjit", "ligj",
		"evropian", "evropiane",
	}
	out := make([]*regexp.Regexp, len(words))
	for i, w := range words {
		out[i] = regexp.MustCompile(`(?i)\b` + regexp.QuoteMeta(w) + `\b`)
	}
	return out
}()

var albanianVerbs = compileAll(
	`(?i)\b(jam|je|jemi|jeni|jane|janë)\b`,
	`(?i)\b(kam|ke|ka|kemi|keni|kane|kanë)\b`,
	`(?i)\b(dua|dëshiroj|dëshiron|dëshironi)\b`,
	`(?i)\b(mund|mundet|mundemi|mundeni)\b`,
)

func compileAll(patterns ...string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, len(patterns))
	for i, p := range patterns {
		out[i] = regexp.MustCompile(p)
	}
	return out
}

var accentFolder = strings.NewReplacer("ç", "c", "Ç", "c", "ë", "e", "Ë", "e")

// normalize folds ç and ë so unaccented typing still matches.
func normalize(text string) string {
	return strings.ToLower(accentFolder.Replace(text))
}

// DetectAlbanian reports whether text looks Albanian. Ambiguous input is
// treated as English.
func DetectAlbanian(text string) bool {
	if strings.TrimSpace(text) == "" {
		return false
	}
	if albanianChars.MatchString(text) {
		return true
	}

	for _, re := range englishQuestions {
		if re.MatchString(text) {
			return false
		}
	}

	normalized := normalize(text)
	matches := func(re *regexp.Regexp) bool {
		return re.MatchString(normalized) || re.MatchString(text)
	}

	for _, re := range albanianQuestions {
		if matches(re) {
			return true
		}
	}
	for _, re := range albanianPhrases {
		if matches(re) {
			return true
		}
	}

	strong := 0
	for _, re := range strongWords {
		if matches(re) {
			strong++
		}
	}
	if strong >= 2 {
		return true
	}

	verbs := 0
	for _, re := range albanianVerbs {
		if matches(re) {
			verbs++
		}
	}
	return verbs >= 1 && strong >= 1
}
