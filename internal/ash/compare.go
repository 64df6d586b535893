package ash

import (
	"errors"
	"fmt"
	"math"
)

// Calibration holds the scoring constants. Their values were hand-tuned to
// bias against false positives and are not statistically derived.
type Calibration struct {
	// Saturation is the average normalized error at which the score reaches 0.
	Saturation float64 `yaml:"saturation" json:"saturation"`
	// DampingThreshold is the base score above which a score is kept as is.
	DampingThreshold float64 `yaml:"damping_threshold" json:"damping_threshold"`
	// DampingFactor multiplies every base score at or below the threshold.
	DampingFactor float64 `yaml:"damping_factor" json:"damping_factor"`
}

// DefaultCalibration returns the V6 scoring constants.
func DefaultCalibration() Calibration {
	return Calibration{
		Saturation:       0.5,
		DampingThreshold: 0.85,
		DampingFactor:    0.4,
	}
}

var ErrInvalidCalibration = errors.New("invalid calibration")

// Validate checks that the constants keep scores inside [0, 1].
func (c Calibration) Validate() error {
	if !(c.Saturation > 0) || math.IsInf(c.Saturation, 0) {
		return fmt.Errorf("%w: saturation must be positive, got %v", ErrInvalidCalibration, c.Saturation)
	}
	if !(c.DampingThreshold >= 0 && c.DampingThreshold <= 1) {
		return fmt.Errorf("%w: damping threshold must be in [0,1], got %v", ErrInvalidCalibration, c.DampingThreshold)
	}
	if !(c.DampingFactor >= 0 && c.DampingFactor <= 1) {
		return fmt.Errorf("%w: damping factor must be in [0,1], got %v", ErrInvalidCalibration, c.DampingFactor)
	}
	return nil
}

// Base maps an average error onto [0, 1] linearly, saturating at Saturation.
// A NaN error scores 0.
func (c Calibration) Base(avgError float64) float64 {
	if math.IsNaN(avgError) {
		return 0
	}
	return 1.0 - math.Min(1.0, avgError/c.Saturation)
}

// Damp applies the asymmetric damping to a base score.
func (c Calibration) Damp(base float64) float64 {
	if base > c.DampingThreshold {
		return base
	}
	return base * c.DampingFactor
}

// Score returns the final similarity for an average error.
func (c Calibration) Score(avgError float64) float64 {
	return c.Damp(c.Base(avgError))
}

// Reason explains how a comparison was decided.
type Reason string

const (
	ReasonScored          Reason = "scored"
	ReasonVersionMismatch Reason = "version_mismatch"
	ReasonEmpty           Reason = "empty"
	ReasonLengthMismatch  Reason = "length_mismatch"
)

// Comparison is a similarity score plus the values it was derived from.
type Comparison struct {
	Score     float32 `json:"score"`
	AvgError  float64 `json:"avg_error"`
	BaseScore float64 `json:"base_score"`
	Points    int     `json:"points"`
	Reason    Reason  `json:"reason"`
}

// Comparator scores fingerprint pairs. The zero value is not usable; build
// one with NewComparator. A Comparator is safe for concurrent use.
type Comparator struct {
	cal Calibration
}

// NewComparator returns a Comparator using cal.
func NewComparator(cal Calibration) (*Comparator, error) {
	if err := cal.Validate(); err != nil {
		return nil, err
	}
	return &Comparator{cal: cal}, nil
}

var defaultComparator = &Comparator{cal: DefaultCalibration()}

// Calibration returns the constants in use.
func (c *Comparator) Calibration() Calibration {
	return c.cal
}

// Compare scores a against b. It never fails: anything that cannot be
// compared scores 0 and the Reason says why.
func (c *Comparator) Compare(a, b string) Comparison {
	pa, errA := Parse(a)
	pb, errB := Parse(b)
	if errA != nil || errB != nil {
		return Comparison{Reason: ReasonVersionMismatch}
	}
	if len(pa) == 0 || len(pb) == 0 {
		return Comparison{Reason: ReasonEmpty}
	}
	if len(pa) != len(pb) {
		return Comparison{Reason: ReasonLengthMismatch}
	}

	var total float64
	for i := range pa {
		total += pa[i].Dist(pb[i])
	}
	avg := total / float64(len(pa))
	// Huge finite coordinates can overflow the sum; keep the report encodable
	if math.IsInf(avg, 1) {
		avg = math.MaxFloat64
	}
	base := c.cal.Base(avg)

	return Comparison{
		Score:     float32(c.cal.Damp(base)),
		AvgError:  avg,
		BaseScore: base,
		Points:    len(pa),
		Reason:    ReasonScored,
	}
}

// Similarity returns only the score of Compare.
func (c *Comparator) Similarity(a, b string) float32 {
	return c.Compare(a, b).Score
}

// Similarity scores a against b with the default calibration.
func Similarity(a, b string) float32 {
	return defaultComparator.Similarity(a, b)
}

// GetSimilarity is the foreign-call name for Similarity.
func GetSimilarity(a, b string) float32 {
	return Similarity(a, b)
}
