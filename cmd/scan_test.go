package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/andresmejia3/ash/internal/ash"
	"github.com/andresmejia3/ash/internal/landmark"
	"github.com/andresmejia3/ash/internal/logging"
	"github.com/andresmejia3/ash/internal/store"
	"github.com/andresmejia3/ash/internal/types"
	"github.com/andresmejia3/ash/internal/utils"
	"github.com/andresmejia3/ash/internal/worker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeDetector answers by image content instead of running a process.
type fakeDetector struct {
	replies map[string][]types.FaceLandmarks
	closed  *atomic.Int32
}

func (f *fakeDetector) Detect(image []byte) ([]types.FaceLandmarks, error) {
	switch key := string(image); key {
	case "reject":
		return nil, fmt.Errorf("%w: cannot decode image", worker.ErrDetector)
	case "crash":
		return nil, io.ErrUnexpectedEOF
	default:
		return f.replies[key], nil
	}
}

func (f *fakeDetector) Close() { f.closed.Add(1) }

type sighting struct {
	sourceID   string
	faceIdx    int
	identityID int
	score      float32
}

type fakeSightingStore struct {
	candidates []store.Candidate
	nextID     int
	sources    []string
	sightings  []sighting
}

func (f *fakeSightingStore) Candidates(context.Context) ([]store.Candidate, error) {
	return f.candidates, nil
}

func (f *fakeSightingStore) CreateIdentity(_ context.Context, name string, fp ash.Fingerprint) (int, error) {
	f.nextID++
	f.candidates = append(f.candidates, store.Candidate{ID: f.nextID, Name: name, Ash: fp})
	return f.nextID, nil
}

func (f *fakeSightingStore) EnsureSource(_ context.Context, _ string, path string) error {
	f.sources = append(f.sources, filepath.Base(path))
	return nil
}

func (f *fakeSightingStore) InsertSighting(_ context.Context, sourceID string, faceIdx, identityID int, score float32) error {
	f.sightings = append(f.sightings, sighting{sourceID, faceIdx, identityID, score})
	return nil
}

// faceA is a plausible landmark layout with the eyes 60px apart.
func faceA() []float32 {
	buf := make([]float32, landmark.BufferLen)
	for i := 0; i < landmark.Count; i++ {
		buf[2*i] = 40 + float32(i%17)*7.5
		buf[2*i+1] = 60 + float32(i/17)*21.25
	}
	buf[2*landmark.NoseTip], buf[2*landmark.NoseTip+1] = 100, 120
	buf[2*landmark.LeftEyeOuter], buf[2*landmark.LeftEyeOuter+1] = 70, 90
	buf[2*landmark.RightEyeOuter], buf[2*landmark.RightEyeOuter+1] = 130, 90
	return buf
}

// faceB moves every non-anchor point half an eye distance away from faceA.
func faceB() []float32 {
	buf := faceA()
	for i := 0; i < landmark.Count; i++ {
		switch i {
		case landmark.NoseTip, landmark.LeftEyeOuter, landmark.RightEyeOuter:
			continue
		}
		buf[2*i] += 30
	}
	return buf
}

func flatFace() []float32 {
	return make([]float32, landmark.BufferLen)
}

func writeImages(t *testing.T, contents map[string]string) []string {
	t.Helper()
	dir := t.TempDir()
	for name, body := range contents {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644))
	}
	images, err := utils.ListImages(dir)
	require.NoError(t, err)
	return images
}

func newTestRun(t *testing.T, db sightingStore, opts Options, replies map[string][]types.FaceLandmarks, closed *atomic.Int32) *scanRun {
	t.Helper()
	cmp, err := ash.NewComparator(ash.DefaultCalibration())
	require.NoError(t, err)
	return &scanRun{
		opts: opts,
		db:   db,
		newDetector: func(context.Context, int) (worker.Detector, error) {
			return &fakeDetector{replies: replies, closed: closed}, nil
		},
		comparator: cmp,
		log:        logging.NoopLogger(),
		bar:        newScanBar(-1, io.Discard),
	}
}

func scanReplies() map[string][]types.FaceLandmarks {
	return map[string][]types.FaceLandmarks{
		"one": {{Box: [4]int{0, 100, 100, 0}, Landmarks: faceA(), Confidence: 0.99}},
		"two": {
			{Box: [4]int{0, 100, 100, 0}, Landmarks: faceA(), Confidence: 0.95},
			{Box: [4]int{0, 300, 50, 250}, Landmarks: faceB(), Confidence: 0.9},
		},
		"flat": {
			{Box: [4]int{0, 10, 10, 0}, Landmarks: flatFace(), Confidence: 0.9},
			{Box: [4]int{0, 10, 10, 0}, Landmarks: faceA(), Confidence: 0.1},
		},
	}
}

func TestScanRun_EnrollsAndMatches(t *testing.T) {
	images := writeImages(t, map[string]string{
		"a.jpg": "one",
		"b.png": "two",
		"c.jpg": "reject",
		"d.jpg": "flat",
	})
	db := &fakeSightingStore{}
	var closed atomic.Int32
	opts := Options{NumEngines: 2, MatchThreshold: ash.DefaultThreshold, MinConfidence: 0.5, Enroll: true}

	summary, err := newTestRun(t, db, opts, scanReplies(), &closed).execute(context.Background(), images)
	require.NoError(t, err)

	assert.Equal(t, 4, summary.Images)
	assert.Equal(t, 1, summary.Failed)
	assert.Equal(t, 4, summary.Faces)
	assert.Equal(t, 1, summary.Unencodable)
	assert.Equal(t, 2, summary.Enrolled)
	assert.Equal(t, 0, summary.Unknown)
	assert.Equal(t, map[int]int{1: 2, 2: 1}, summary.Sightings)
	assert.EqualValues(t, 2, closed.Load())

	assert.Equal(t, []string{"a.jpg", "b.png", "d.jpg"}, db.sources)
	require.Len(t, db.sightings, 3)
	assert.Equal(t, 1, db.sightings[0].identityID)
	assert.Equal(t, 1, db.sightings[1].identityID)
	assert.InDelta(t, 1.0, db.sightings[1].score, 1e-6)
	assert.Equal(t, 2, db.sightings[2].identityID)
	assert.Equal(t, 1, db.sightings[2].faceIdx)
}

func TestScanRun_WithoutEnroll(t *testing.T) {
	images := writeImages(t, map[string]string{"a.jpg": "one", "b.jpg": "two"})
	var closed atomic.Int32
	opts := Options{NumEngines: 1, MatchThreshold: ash.DefaultThreshold, MinConfidence: 0.5}

	res := ash.EncodeFloat32(faceA())
	require.True(t, res.OK())
	db := &fakeSightingStore{candidates: []store.Candidate{{ID: 9, Name: "Ada", Ash: res.Fingerprint}}}

	summary, err := newTestRun(t, db, opts, scanReplies(), &closed).execute(context.Background(), images)
	require.NoError(t, err)

	assert.Equal(t, 0, summary.Enrolled)
	assert.Equal(t, 1, summary.Unknown)
	assert.Equal(t, map[int]int{9: 2}, summary.Sightings)
	assert.Len(t, db.candidates, 1)
}

func TestScanRun_DetectorCrash(t *testing.T) {
	images := writeImages(t, map[string]string{"a.jpg": "one", "b.jpg": "crash"})
	var closed atomic.Int32
	opts := Options{NumEngines: 1, MatchThreshold: ash.DefaultThreshold}

	_, err := newTestRun(t, &fakeSightingStore{}, opts, scanReplies(), &closed).execute(context.Background(), images)
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
}

func TestScanRun_StartupFailure(t *testing.T) {
	images := writeImages(t, map[string]string{"a.jpg": "one"})
	var closed atomic.Int32
	run := newTestRun(t, &fakeSightingStore{}, Options{NumEngines: 3}, nil, &closed)
	run.newDetector = func(context.Context, int) (worker.Detector, error) {
		return nil, worker.ErrNoCommand
	}

	_, err := run.execute(context.Background(), images)
	assert.ErrorIs(t, err, worker.ErrNoCommand)
}

func TestValidateScanFlags(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "face.jpg")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0o644))

	tests := []struct {
		name    string
		opts    Options
		wantErr bool
	}{
		{name: "valid", opts: Options{InputPath: dir, NumEngines: 2, MatchThreshold: 0.85, MinConfidence: 0.5}},
		{name: "missing dir", opts: Options{InputPath: filepath.Join(dir, "nope"), MatchThreshold: 0.85}, wantErr: true},
		{name: "file not dir", opts: Options{InputPath: file, MatchThreshold: 0.85}, wantErr: true},
		{name: "threshold too high", opts: Options{InputPath: dir, MatchThreshold: 1.5}, wantErr: true},
		{name: "negative confidence", opts: Options{InputPath: dir, MatchThreshold: 0.85, MinConfidence: -1}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateScanFlags(&tt.opts)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
		})
	}

	opts := Options{InputPath: dir, NumEngines: 0, MatchThreshold: 0.85}
	require.NoError(t, validateScanFlags(&opts))
	assert.Equal(t, 1, opts.NumEngines)
}

func TestValidateFaceInput(t *testing.T) {
	assert.NoError(t, validateFaceInput(Options{LandmarksPath: "f.json"}, false))
	assert.NoError(t, validateFaceInput(Options{ImagePath: "f.jpg"}, false))
	assert.ErrorIs(t, validateFaceInput(Options{}, false), errNoInput)
	assert.ErrorIs(t, validateFaceInput(Options{LandmarksPath: "f.json", ImagePath: "f.jpg"}, false), errNoInput)
	assert.ErrorIs(t, validateFaceInput(Options{Ash: "V6-"}, false), errNoInput)

	assert.NoError(t, validateFaceInput(Options{Ash: "V6-"}, true))
	assert.Error(t, validateFaceInput(Options{Ash: "V6-", ImagePath: "f.jpg"}, true))
}

func TestLargestFace(t *testing.T) {
	_, ok := largestFace(nil)
	assert.False(t, ok)

	faces := []types.FaceLandmarks{
		{Box: [4]int{0, 10, 10, 0}, Confidence: 0.9},
		{Box: [4]int{0, 50, 40, 10}, Confidence: 0.3},
		{Box: [4]int{0, 40, 40, 0}, Confidence: 0.8},
	}
	best, ok := largestFace(faces)
	require.True(t, ok)
	assert.Equal(t, 1600, best.Area())

	kept := filterFaces(faces, 0.5)
	require.Len(t, kept, 2)
	for _, f := range kept {
		assert.GreaterOrEqual(t, f.Confidence, 0.5)
	}
}

func TestEncodeInput_Landmarks(t *testing.T) {
	buf := faceA()
	flat := make([]float64, len(buf))
	for i, v := range buf {
		flat[i] = float64(v)
	}
	path := filepath.Join(t.TempDir(), "face.json")
	body := "["
	for i, v := range flat {
		if i > 0 {
			body += ","
		}
		body += fmt.Sprint(v)
	}
	require.NoError(t, os.WriteFile(path, []byte(body+"]"), 0o644))

	res, source, err := encodeInput(context.Background(), Options{LandmarksPath: path})
	require.NoError(t, err)
	assert.Equal(t, path, source)
	assert.Equal(t, ash.GenerateGeometricHash(flat), res.String())

	_, _, err = encodeInput(context.Background(), Options{LandmarksPath: filepath.Join(t.TempDir(), "missing.json")})
	assert.True(t, errors.Is(err, os.ErrNotExist))
}
