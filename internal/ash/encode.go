package ash

import (
	"errors"
	"math"

	"github.com/andresmejia3/ash/internal/landmark"
)

// Sentinel strings returned at the foreign-call boundary in place of a
// fingerprint.
const (
	SentinelVoid         = "VOID"
	SentinelInvalidScale = "INVALID_SCALE"
)

var (
	ErrVoid         = errors.New("landmark input unavailable")
	ErrShortBuffer  = errors.New("landmark buffer shorter than required")
	ErrInvalidScale = errors.New("inter-eye distance is zero or not usable as a scale")
)

// Failure classifies why an encode produced no fingerprint.
type Failure int

const (
	FailureNone Failure = iota
	FailureVoid
	FailureShortBuffer
	FailureInvalidScale
)

func (f Failure) String() string {
	switch f {
	case FailureNone:
		return "none"
	case FailureVoid:
		return "void"
	case FailureShortBuffer:
		return "short_buffer"
	case FailureInvalidScale:
		return "invalid_scale"
	default:
		return "unknown"
	}
}

// Result is the outcome of one encode: either a fingerprint or a failure kind.
type Result struct {
	Fingerprint Fingerprint
	Failure     Failure
}

// OK reports whether the result carries a fingerprint.
func (r Result) OK() bool {
	return r.Failure == FailureNone
}

// Err maps the failure kind to a sentinel error, or nil on success.
func (r Result) Err() error {
	switch r.Failure {
	case FailureNone:
		return nil
	case FailureVoid:
		return ErrVoid
	case FailureShortBuffer:
		return ErrShortBuffer
	case FailureInvalidScale:
		return ErrInvalidScale
	default:
		return ErrVoid
	}
}

// String returns the fingerprint, or the boundary sentinel for a failure.
// A short buffer is reported as VOID: the host supplied no usable input.
func (r Result) String() string {
	switch r.Failure {
	case FailureNone:
		return string(r.Fingerprint)
	case FailureInvalidScale:
		return SentinelInvalidScale
	default:
		return SentinelVoid
	}
}

// Encode normalizes set around the nose tip, scales it by the inter-eye
// distance and serializes all landmarks in index order. Any landmark that
// does not normalize to a finite value fails with FailureInvalidScale.
func Encode(set landmark.Set) Result {
	if !set.Valid() {
		return Result{Failure: FailureVoid}
	}

	scale := set.EyeDistance()
	if scale == 0 || math.IsNaN(scale) || math.IsInf(scale, 0) {
		return Result{Failure: FailureInvalidScale}
	}

	origin := set.Origin()
	points := make([]landmark.Point, landmark.Count)
	for i := range points {
		p := set.At(i).Sub(origin).Scale(scale)
		// A NaN landmark or a vanishingly small scale would print as NaN/Inf
		if !finite(p.X) || !finite(p.Y) {
			return Result{Failure: FailureInvalidScale}
		}
		points[i] = p
	}
	return Result{Fingerprint: Format(points)}
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// EncodeBuffer wraps buf in a bounds-checked view and encodes it. buf is
// only read during the call.
func EncodeBuffer(buf []float64) Result {
	set, err := landmark.FromBuffer(buf)
	if err != nil {
		return failed(err)
	}
	return Encode(set)
}

// EncodeFloat32 encodes a detector landmark buffer.
func EncodeFloat32(buf []float32) Result {
	set, err := landmark.FromFloat32(buf)
	if err != nil {
		return failed(err)
	}
	return Encode(set)
}

func failed(err error) Result {
	if errors.Is(err, landmark.ErrShortBuffer) {
		return Result{Failure: FailureShortBuffer}
	}
	return Result{Failure: FailureVoid}
}

// GenerateGeometricHash is the boundary form of EncodeBuffer: it returns a
// fingerprint, "VOID" or "INVALID_SCALE".
func GenerateGeometricHash(buf []float64) string {
	return EncodeBuffer(buf).String()
}
