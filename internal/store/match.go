package store

import "github.com/andresmejia3/ash/internal/ash"

// Candidate is an enrolled fingerprint considered during identification.
type Candidate struct {
	ID   int
	Name string
	Ash  ash.Fingerprint
}

// Match is the outcome of an identification. ID is -1 when no candidate
// reached the threshold; Score is then the best score seen.
type Match struct {
	ID    int
	Name  string
	Score float32
}

// Found reports whether a candidate qualified.
func (m Match) Found() bool {
	return m.ID != -1
}

// BestMatch scores fp against candidates and keeps the highest scorer at or
// above threshold. Ties go to the earlier candidate.
func BestMatch(candidates []Candidate, fp ash.Fingerprint, cmp *ash.Comparator, threshold float64) Match {
	best := Match{ID: -1}
	var bestSeen float32
	for _, c := range candidates {
		score := cmp.Similarity(fp.String(), c.Ash.String())
		bestSeen = max(bestSeen, score)
		if ash.Decide(score, threshold) != ash.VerdictMatch {
			continue
		}
		if !best.Found() || score > best.Score {
			best = Match{ID: c.ID, Name: c.Name, Score: score}
		}
	}
	if !best.Found() {
		best.Score = bestSeen
	}
	return best
}
