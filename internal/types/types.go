package types

// ImageTask represents a single image sent to a worker for landmark detection
type ImageTask struct {
	Index int
	Path  string
	Data  []byte
}

// FaceLandmarks is one face reported by the detector process
type FaceLandmarks struct {
	Box        [4]int    `json:"box"`        // [top, right, bottom, left]
	Landmarks  []float32 `json:"landmarks"`  // 68 interleaved x,y pairs
	Confidence float64   `json:"confidence"` // detector score in [0, 1]
}

// Area returns the pixel area of the face box
func (f FaceLandmarks) Area() int {
	return (f.Box[2] - f.Box[0]) * (f.Box[1] - f.Box[3])
}

// LandmarkFile is the object form of a landmark JSON file:
// {"landmarks": [[x, y], ...]}
type LandmarkFile struct {
	Landmarks [][2]float64 `json:"landmarks"`
}

// ErrorResult captures the error object returned by an API on failure
type ErrorResult struct {
	Error string `json:"error"`
}
