// Package landmark provides a bounds-checked, read-only view over the flat
// coordinate buffer produced by a 68-point facial landmark detector.
package landmark

import (
	"errors"
	"fmt"
	"math"
)

const (
	// Count is the number of points in a landmark set.
	Count = 68
	// BufferLen is the number of floats in an interleaved x,y buffer.
	BufferLen = Count * 2

	// NoseTip is the normalization origin.
	NoseTip = 30
	// LeftEyeOuter and RightEyeOuter define the normalization scale.
	LeftEyeOuter  = 36
	RightEyeOuter = 45
)

var (
	// ErrNilBuffer is returned when no buffer was supplied at all.
	ErrNilBuffer = errors.New("landmark buffer is nil")
	// ErrShortBuffer is returned when the buffer holds fewer than BufferLen values.
	ErrShortBuffer = errors.New("landmark buffer too short")
)

// Point is a 2-D coordinate in detector-frame or normalized units.
type Point struct {
	X, Y float64
}

// Sub returns p - q.
func (p Point) Sub(q Point) Point {
	return Point{X: p.X - q.X, Y: p.Y - q.Y}
}

// Scale returns p divided by s.
func (p Point) Scale(s float64) Point {
	return Point{X: p.X / s, Y: p.Y / s}
}

// Dist returns the Euclidean distance between p and q.
func (p Point) Dist(q Point) float64 {
	return math.Hypot(p.X-q.X, p.Y-q.Y)
}

// Set is a borrowed view over exactly BufferLen interleaved floats.
// It never copies or retains the caller's memory beyond its own lifetime;
// callers must not keep a Set past the call it was created for.
type Set struct {
	buf []float64
}

// FromBuffer wraps buf in a Set. Values beyond BufferLen are ignored.
func FromBuffer(buf []float64) (Set, error) {
	if buf == nil {
		return Set{}, ErrNilBuffer
	}
	if len(buf) < BufferLen {
		return Set{}, fmt.Errorf("%w: got %d values, need %d", ErrShortBuffer, len(buf), BufferLen)
	}
	return Set{buf: buf[:BufferLen:BufferLen]}, nil
}

// FromFloat32 converts a float32 buffer (the detector wire type) into a Set.
// Unlike FromBuffer the result owns its storage.
func FromFloat32(buf []float32) (Set, error) {
	if buf == nil {
		return Set{}, ErrNilBuffer
	}
	if len(buf) < BufferLen {
		return Set{}, fmt.Errorf("%w: got %d values, need %d", ErrShortBuffer, len(buf), BufferLen)
	}
	out := make([]float64, BufferLen)
	for i := range out {
		out[i] = float64(buf[i])
	}
	return Set{buf: out}, nil
}

// FromPoints flattens pts into a Set. It requires exactly Count points.
func FromPoints(pts []Point) (Set, error) {
	if pts == nil {
		return Set{}, ErrNilBuffer
	}
	if len(pts) != Count {
		return Set{}, fmt.Errorf("%w: got %d points, need %d", ErrShortBuffer, len(pts), Count)
	}
	out := make([]float64, 0, BufferLen)
	for _, p := range pts {
		out = append(out, p.X, p.Y)
	}
	return Set{buf: out}, nil
}

// Valid reports whether the set wraps a buffer.
func (s Set) Valid() bool {
	return len(s.buf) == BufferLen
}

// At returns landmark i. It panics if i is outside [0, Count) like a slice index.
func (s Set) At(i int) Point {
	return Point{X: s.buf[2*i], Y: s.buf[2*i+1]}
}

// Origin returns the nose tip.
func (s Set) Origin() Point {
	return s.At(NoseTip)
}

// EyeDistance returns the distance between the outer eye corners.
func (s Set) EyeDistance() float64 {
	return s.At(LeftEyeOuter).Dist(s.At(RightEyeOuter))
}

// Points copies the set into a new slice.
func (s Set) Points() []Point {
	if !s.Valid() {
		return nil
	}
	out := make([]Point, Count)
	for i := range out {
		out[i] = s.At(i)
	}
	return out
}
