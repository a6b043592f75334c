package dedup

import (
	"math"
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	apperrors "github.com/GriffinCanCode/vidscribe/internal/errors"
)

// ErrEmptyVocabulary is reported when neither text of a pair has a usable term.
var ErrEmptyVocabulary = apperrors.New(apperrors.InvalidArgument, "empty vocabulary: texts contain only stop words or no words")

// Words of two or more letters, digits or underscores, in any script.
var tokenPattern = regexp.MustCompile(`[\p{L}\p{M}\p{N}_]{2,}`)

// terms holds the raw term frequencies of one analysed text.
type terms map[string]int

// analyze lowercases, strips accents, tokenizes and drops stop words.
func analyze(text string) terms {
	folded := strings.ToLower(text)
	// transform chains carry state, so one is built per call
	stripper := transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	if s, _, err := transform.String(stripper, folded); err == nil {
		folded = s
	}

	out := make(terms)
	for _, tok := range tokenPattern.FindAllString(folded, -1) {
		if _, stop := englishStopWords[tok]; stop {
			continue
		}
		out[tok]++
	}
	return out
}

// TextSimilarity fits a TF-IDF model on exactly the two texts and returns the
// cosine similarity of their vectors.
func TextSimilarity(a, b string) Score {
	return pairSimilarity(analyze(a), analyze(b))
}

func pairSimilarity(a, b terms) Score {
	if len(a) == 0 && len(b) == 0 {
		return failed(ErrEmptyVocabulary)
	}
	return Score{Value: math.Min(1, cosine(weigh(a, b), weigh(b, a)))}
}

// weigh returns tf*idf for doc, with document frequencies taken over the
// pair (doc, other) and smooth idf ln((1+n)/(1+df))+1.
func weigh(doc, other terms) map[string]float64 {
	v := make(map[string]float64, len(doc))
	for t, tf := range doc {
		df := 1
		if _, ok := other[t]; ok {
			df = 2
		}
		idf := math.Log(float64(1+pairDocs)/float64(1+df)) + 1
		v[t] = float64(tf) * idf
	}
	return v
}
