package dedup

import (
	"math"

	apperrors "github.com/GriffinCanCode/vidscribe/internal/errors"
)

// Score is the outcome of a similarity comparison. A non-nil Err means the
// comparison could not be made; Value is then 0.
type Score struct {
	Value float64
	Err   error
}

// Duplicate reports whether the score meets the threshold. Failed comparisons
// never count as duplicates.
func (s Score) Duplicate(threshold float64) bool {
	return s.Err == nil && s.Value >= threshold
}

func failed(err error) Score { return Score{Err: err} }

// ImageSimilarity returns 1 - hamming/64 for two fingerprints of the same kind.
// Fingerprints of different kinds score 0 with an error.
func ImageSimilarity(a, b Fingerprint) Score {
	d, err := a.imageHash().Distance(b.imageHash())
	if err != nil {
		return failed(apperrors.Wrapf(err, apperrors.InvalidArgument, "compare %s with %s fingerprint", a.Kind, b.Kind))
	}
	return Score{Value: 1 - float64(d)/HashBits}
}

// BitstringSimilarity compares two rendered fingerprints position by position.
// Strings of different length score 0.
func BitstringSimilarity(a, b string) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	diff := 0
	for i := 0; i < len(a); i++ {
		if a[i] != b[i] {
			diff++
		}
	}
	return 1 - float64(diff)/float64(len(a))
}

func cosine(a, b map[string]float64) float64 {
	var dot, na, nb float64
	for t, w := range a {
		na += w * w
		if v, ok := b[t]; ok {
			dot += w * v
		}
	}
	for _, w := range b {
		nb += w * w
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
