package ash

// DefaultThreshold is the accept threshold used when none is configured.
const DefaultThreshold = 0.85

// Verdict is an advisory match decision.
type Verdict string

const (
	VerdictMatch   Verdict = "match"
	VerdictNoMatch Verdict = "no_match"
)

// Decide accepts a score at or above threshold.
func Decide(score float32, threshold float64) Verdict {
	if float64(score) >= threshold {
		return VerdictMatch
	}
	return VerdictNoMatch
}
