package ocr

import (
	"strings"
	"unicode/utf8"

	"github.com/pemistahl/lingua-go"
)

// minDetectRunes is the shortest snippet worth running detection on.
const minDetectRunes = 12

// candidates are the languages the detector chooses between, on top of the
// configured ones.
var candidates = []lingua.Language{
	lingua.English, lingua.Korean, lingua.Japanese, lingua.Chinese,
	lingua.Spanish, lingua.French, lingua.German, lingua.Portuguese,
	lingua.Russian, lingua.Italian,
}

// LanguageChecker flags OCR output that is not in an expected language.
type LanguageChecker struct {
	detector lingua.LanguageDetector
	allowed  map[lingua.IsoCode639_1]bool
}

// NewLanguageChecker accepts ISO 639-1 codes such as "en" and "ko". Unknown
// codes are ignored.
func NewLanguageChecker(codes []string) *LanguageChecker {
	allowed := make(map[lingua.IsoCode639_1]bool)
	langs := append([]lingua.Language(nil), candidates...)
	for _, c := range codes {
		iso := lingua.GetIsoCode639_1FromValue(strings.ToUpper(strings.TrimSpace(c)))
		if iso == lingua.UnknownIsoCode639_1 {
			continue
		}
		allowed[iso] = true
		if l := lingua.GetLanguageFromIsoCode639_1(iso); l != lingua.Unknown && !contains(langs, l) {
			langs = append(langs, l)
		}
	}
	return &LanguageChecker{
		detector: lingua.NewLanguageDetectorBuilder().FromLanguages(langs...).WithLowAccuracyMode().Build(),
		allowed:  allowed,
	}
}

// Check returns the detected ISO code in lower case and whether it is
// allowed. Short or undetectable text is allowed.
func (c *LanguageChecker) Check(text string) (string, bool) {
	if utf8.RuneCountInString(text) < minDetectRunes || len(c.allowed) == 0 {
		return "", true
	}
	lang, ok := c.detector.DetectLanguageOf(text)
	if !ok {
		return "", true
	}
	iso := lang.IsoCode639_1()
	return strings.ToLower(iso.String()), c.allowed[iso]
}

func contains(langs []lingua.Language, l lingua.Language) bool {
	for _, x := range langs {
		if x == l {
			return true
		}
	}
	return false
}
