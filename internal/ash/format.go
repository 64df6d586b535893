// Package ash encodes facial landmark sets into versioned textual
// fingerprints ("Ash") and scores the similarity of two fingerprints.
//
// An Ash is a lossy geometric descriptor. It offers no collision or
// pre-image resistance and must not be treated as a cryptographic digest or
// as an access-control primitive on its own.
package ash

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/andresmejia3/ash/internal/landmark"
)

const (
	// Version is the current wire format tag.
	Version = "V6"
	// Prefix starts every current fingerprint.
	Prefix = Version + "-"

	pairSep  = 'x'
	pointSep = ';'
)

var (
	ErrVersionMismatch = errors.New("fingerprint version mismatch")
	ErrMalformed       = errors.New("malformed fingerprint")
)

// Fingerprint is a serialized, immutable Ash value.
type Fingerprint string

func (f Fingerprint) String() string { return string(f) }

// Format serializes normalized points as "V6-<x>x<y>;..." with two
// fractional digits. The output does not depend on locale.
func Format(points []landmark.Point) Fingerprint {
	b := make([]byte, 0, len(Prefix)+len(points)*12)
	b = append(b, Prefix...)
	for _, p := range points {
		b = strconv.AppendFloat(b, p.X, 'f', 2, 64)
		b = append(b, pairSep)
		b = strconv.AppendFloat(b, p.Y, 'f', 2, 64)
		b = append(b, pointSep)
	}
	return Fingerprint(b)
}

// Parse decodes the body of a current-version fingerprint.
// Segments without the pair separator, or whose numbers do not parse, are
// skipped rather than failing the whole decode. A missing or foreign
// version prefix yields ErrVersionMismatch.
func Parse(s string) ([]landmark.Point, error) {
	body, ok := strings.CutPrefix(s, Prefix)
	if !ok {
		return nil, ErrVersionMismatch
	}

	var points []landmark.Point
	for seg := range strings.SplitSeq(body, string(pointSep)) {
		p, ok := parsePair(seg)
		if !ok {
			continue
		}
		points = append(points, p)
	}
	return points, nil
}

func parsePair(seg string) (landmark.Point, bool) {
	xs, ys, found := strings.Cut(seg, string(pairSep))
	if !found {
		return landmark.Point{}, false
	}
	x, ok := parseCoord(xs)
	if !ok {
		return landmark.Point{}, false
	}
	y, ok := parseCoord(ys)
	if !ok {
		return landmark.Point{}, false
	}
	return landmark.Point{X: x, Y: y}, true
}

// parseCoord accepts any finite decimal. NaN and infinities never come out
// of Format and are treated like unparseable text.
func parseCoord(s string) (float64, bool) {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}

// canonicalPair reports whether seg is exactly what Format writes for one
// point: two numbers of the form -?digits.dd joined by the pair separator.
func canonicalPair(seg string) bool {
	xs, ys, found := strings.Cut(seg, string(pairSep))
	return found && canonicalNumber(xs) && canonicalNumber(ys)
}

func canonicalNumber(s string) bool {
	s = strings.TrimPrefix(s, "-")
	intPart, frac, found := strings.Cut(s, ".")
	if !found || intPart == "" || len(frac) != 2 {
		return false
	}
	return allDigits(intPart) && allDigits(frac)
}

func allDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

// Decode validates s strictly: current version, exactly landmark.Count
// pairs in the fixed two-decimal form Format writes, and no control
// characters. Use it before persisting or
// transporting a fingerprint received from an untrusted source.
func Decode(s string) (Fingerprint, error) {
	for i := 0; i < len(s); i++ {
		if c := s[i]; c < 0x20 || c == 0x7f {
			return "", fmt.Errorf("%w: control character at offset %d", ErrMalformed, i)
		}
	}
	body, ok := strings.CutPrefix(s, Prefix)
	if !ok {
		if tag, ok := VersionOf(s); ok {
			return "", fmt.Errorf("%w: got %s, want %s", ErrVersionMismatch, tag, Version)
		}
		return "", fmt.Errorf("%w: missing version prefix", ErrMalformed)
	}
	body, ok = strings.CutSuffix(body, string(pointSep))
	if !ok {
		return "", fmt.Errorf("%w: missing trailing %q", ErrMalformed, pointSep)
	}

	n := 0
	for seg := range strings.SplitSeq(body, string(pointSep)) {
		if !canonicalPair(seg) {
			return "", fmt.Errorf("%w: bad segment %d %q", ErrMalformed, n, seg)
		}
		n++
	}
	if n != landmark.Count {
		return "", fmt.Errorf("%w: %d points, want %d", ErrMalformed, n, landmark.Count)
	}
	return Fingerprint(s), nil
}

// VersionOf extracts the "V<digits>" tag of s, if it has one.
func VersionOf(s string) (string, bool) {
	if len(s) < 3 || s[0] != 'V' {
		return "", false
	}
	i := 1
	for i < len(s) && s[i] >= '0' && s[i] <= '9' {
		i++
	}
	if i == 1 || i >= len(s) || s[i] != '-' {
		return "", false
	}
	return s[:i], true
}
