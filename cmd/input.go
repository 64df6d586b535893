package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/andresmejia3/ash/internal/ash"
	"github.com/andresmejia3/ash/internal/types"
	"github.com/andresmejia3/ash/internal/utils"
	"github.com/andresmejia3/ash/internal/worker"
)

// Options holds shared configuration for encode, enroll, find and scan commands
type Options struct {
	LandmarksPath  string
	ImagePath      string
	Ash            string
	InputPath      string
	NumEngines     int
	MatchThreshold float64
	MinConfidence  float64
	Enroll         bool
}

var errNoInput = errors.New("exactly one of --landmarks or --image is required")

// validateFaceInput checks that exactly one face source was given. allowAsh
// admits a ready fingerprint as a third source.
func validateFaceInput(opts Options, allowAsh bool) error {
	n := 0
	for _, s := range []string{opts.LandmarksPath, opts.ImagePath} {
		if s != "" {
			n++
		}
	}
	if allowAsh && opts.Ash != "" {
		n++
	}
	if n == 1 {
		return nil
	}
	if allowAsh {
		return errors.New("exactly one of --landmarks, --image or --ash is required")
	}
	return errNoInput
}

// encodeInput produces a fingerprint from the face source named in opts.
// It returns the encode result and a label for logs.
func encodeInput(ctx context.Context, opts Options) (ash.Result, string, error) {
	switch {
	case opts.LandmarksPath != "":
		buf, err := utils.ReadLandmarks(opts.LandmarksPath)
		if err != nil {
			return ash.Result{}, opts.LandmarksPath, err
		}
		return ash.EncodeBuffer(buf), opts.LandmarksPath, nil
	case opts.ImagePath != "":
		face, err := detectFace(ctx, opts.ImagePath, opts.MinConfidence)
		if err != nil {
			return ash.Result{}, opts.ImagePath, err
		}
		return ash.EncodeFloat32(face.Landmarks), opts.ImagePath, nil
	default:
		return ash.Result{}, "", errNoInput
	}
}

// detectFace runs a single detector worker on one image and returns its
// largest face.
func detectFace(ctx context.Context, imagePath string, minConfidence float64) (types.FaceLandmarks, error) {
	imgData, err := os.ReadFile(imagePath)
	if err != nil {
		return types.FaceLandmarks{}, fmt.Errorf("failed to read image file: %w", err)
	}

	fmt.Fprintln(os.Stderr, "🚀 Starting landmark detector...")
	// We use ID 0 for this ad-hoc worker
	w, err := worker.NewDetectorWorker(ctx, 0, worker.Config{
		Command:     Cfg.Detector.Command,
		ReadTimeout: Cfg.Detector.Timeout,
	})
	if err != nil {
		return types.FaceLandmarks{}, fmt.Errorf("failed to start detector: %w", err)
	}
	defer w.Close()

	faces, err := w.Detect(imgData)
	if err != nil {
		utils.ShowError("Landmark detection failed", err, w.Cmd)
		return types.FaceLandmarks{}, err
	}

	faces = filterFaces(faces, minConfidence)
	if len(faces) > 1 {
		fmt.Fprintf(os.Stderr, "⚠️  Multiple faces detected (%d). Using the largest face.\n", len(faces))
	}
	face, ok := largestFace(faces)
	if !ok {
		return types.FaceLandmarks{}, fmt.Errorf("no faces detected in %s", imagePath)
	}
	return face, nil
}

// filterFaces drops detections below minConfidence.
func filterFaces(faces []types.FaceLandmarks, minConfidence float64) []types.FaceLandmarks {
	kept := faces[:0]
	for _, f := range faces {
		if f.Confidence >= minConfidence {
			kept = append(kept, f)
		}
	}
	return kept
}

// largestFace picks the face with the biggest box. Ties keep the first.
func largestFace(faces []types.FaceLandmarks) (types.FaceLandmarks, bool) {
	if len(faces) == 0 {
		return types.FaceLandmarks{}, false
	}
	best := faces[0]
	for _, f := range faces[1:] {
		if f.Area() > best.Area() {
			best = f
		}
	}
	return best, true
}
