package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/andresmejia3/ash/internal/ash"
	"github.com/andresmejia3/ash/internal/logging"
	"github.com/andresmejia3/ash/internal/store"
	"github.com/andresmejia3/ash/internal/types"
	"github.com/andresmejia3/ash/internal/utils"
	"github.com/andresmejia3/ash/internal/worker"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var scanOpts Options

var scanCmd = &cobra.Command{
	Use:         "scan",
	Short:       "Identify every face in a directory of images with parallel detectors",
	Annotations: dbAnnotation,
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		if !cmd.Flags().Changed("threshold") {
			scanOpts.MatchThreshold = Cfg.Matching.Threshold
		}
		if err := validateScanFlags(&scanOpts); err != nil {
			utils.ShowError("Invalid scan options", err, nil)
			return err
		}
		return runScan(cmd.Context(), scanOpts)
	},
}

func init() {
	scanCmd.Flags().StringVarP(&scanOpts.InputPath, "input", "i", "", "Directory of images to scan")
	scanCmd.Flags().IntVarP(&scanOpts.NumEngines, "engines", "e", 1, "Number of parallel detector workers")
	scanCmd.Flags().Float64VarP(&scanOpts.MatchThreshold, "threshold", "t", ash.DefaultThreshold, "Face matching threshold")
	scanCmd.Flags().Float64VarP(&scanOpts.MinConfidence, "detection-threshold", "D", 0.5, "Face detection confidence threshold")
	scanCmd.Flags().BoolVar(&scanOpts.Enroll, "enroll", false, "Enroll unmatched faces as new identities")

	scanCmd.MarkFlagRequired("input")
	rootCmd.AddCommand(scanCmd)
}

// sightingStore is the part of the identity store a scan writes to.
type sightingStore interface {
	Candidates(ctx context.Context) ([]store.Candidate, error)
	CreateIdentity(ctx context.Context, name string, fp ash.Fingerprint) (int, error)
	EnsureSource(ctx context.Context, sourceID, path string) error
	InsertSighting(ctx context.Context, sourceID string, faceIdx, identityID int, score float32) error
}

// detectorFactory starts the detector for one pool slot.
type detectorFactory func(ctx context.Context, id int) (worker.Detector, error)

func newProcessDetector(ctx context.Context, id int) (worker.Detector, error) {
	return worker.NewDetectorWorker(ctx, id, worker.Config{
		Command:     Cfg.Detector.Command,
		ReadTimeout: Cfg.Detector.Timeout,
	})
}

// scanRun bundles everything one scan needs.
type scanRun struct {
	opts        Options
	db          sightingStore
	newDetector detectorFactory
	comparator  *ash.Comparator
	log         *logging.Logger
	bar         *progressbar.ProgressBar
}

// scanResult wraps the output from a worker to be sent to the aggregator
type scanResult struct {
	Index int
	Path  string
	Faces []types.FaceLandmarks
	Err   error
}

// scanSummary counts what a scan did.
type scanSummary struct {
	Images      int
	Failed      int
	Faces       int
	Unencodable int
	Unknown     int
	Enrolled    int
	Sightings   map[int]int // identity ID -> faces attributed in this scan
}

// runScan orchestrates the scanning process: image listing, detector pool and progress tracking.
func runScan(ctx context.Context, opts Options) error {
	images, err := utils.ListImages(opts.InputPath)
	if err != nil {
		utils.ShowError("Failed to list images", err, nil)
		return err
	}
	if len(images) == 0 {
		fmt.Fprintf(os.Stderr, "No images found in %s\n", opts.InputPath)
		return nil
	}

	cmp, err := ash.NewComparator(Cfg.Matching.Calibration)
	if err != nil {
		return err
	}

	fmt.Fprintf(os.Stderr, "📂 Found %d images in %s\n", len(images), opts.InputPath)
	fmt.Fprintf(os.Stderr, "⚙️  Spawning %d Detector Workers...\n", opts.NumEngines)

	run := &scanRun{
		opts:        opts,
		db:          DB,
		newDetector: newProcessDetector,
		comparator:  cmp,
		log:         Log,
		bar:         newScanBar(len(images), os.Stderr),
	}
	summary, err := run.execute(ctx, images)
	if err != nil {
		return err
	}

	run.bar.Finish()
	printSummary(os.Stderr, summary)
	return nil
}

func newScanBar(total int, w io.Writer) *progressbar.ProgressBar {
	return progressbar.NewOptions(total,
		progressbar.OptionSetDescription("🔍 Ash Scanning"),
		progressbar.OptionSetWriter(w), // Write bar to Stderr
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetItsString("images"),
	)
}

// execute fans the images out to the detector pool and folds the results in
// image order.
func (s *scanRun) execute(ctx context.Context, images []string) (scanSummary, error) {
	g, gctx := errgroup.WithContext(ctx)

	tasks := make(chan types.ImageTask, s.opts.NumEngines)
	results := make(chan scanResult, s.opts.NumEngines*2)

	g.Go(func() error {
		defer close(tasks)
		for i, path := range images {
			select {
			case tasks <- types.ImageTask{Index: i, Path: path}:
			case <-gctx.Done():
				return gctx.Err()
			}
		}
		return nil
	})

	workers, wctx := errgroup.WithContext(gctx)
	for i := range s.opts.NumEngines {
		workers.Go(func() error {
			return s.startWorker(wctx, i, tasks, results)
		})
	}
	g.Go(func() error {
		defer close(results)
		return workers.Wait()
	})

	var summary scanSummary
	g.Go(func() error {
		var err error
		summary, err = s.processResults(gctx, results)
		return err
	})

	return summary, g.Wait()
}

// startWorker manages the lifecycle of a single detector.
// It reads image paths from the channel and sends the detected faces to the aggregator.
func (s *scanRun) startWorker(ctx context.Context, id int, tasks <-chan types.ImageTask, results chan<- scanResult) error {
	d, err := s.newDetector(ctx, id)
	if err != nil {
		return fmt.Errorf("worker %d startup failed: %w", id, err)
	}
	defer d.Close()
	log := s.log.WithWorker(id)

	for task := range tasks {
		res := scanResult{Index: task.Index, Path: task.Path}

		data, err := os.ReadFile(task.Path)
		if err != nil {
			res.Err = err
		} else {
			res.Faces, err = d.Detect(data)
			switch {
			case errors.Is(err, worker.ErrDetector):
				// The detector rejected this image but is still alive
				log.WarnContext(ctx, "detector rejected image", "path", task.Path, "error", err)
				res.Err = err
			case err != nil:
				// DRAIN: Wait for process to exit and capture final stderr logs
				d.Close()
				if dw, ok := d.(*worker.DetectorWorker); ok {
					utils.ShowError("Detector crashed", err, dw.Cmd)
				}
				return fmt.Errorf("worker %d: %w", id, err)
			}
		}

		select {
		case results <- res:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

func (s *scanRun) processResults(ctx context.Context, results <-chan scanResult) (scanSummary, error) {
	summary := scanSummary{Sightings: make(map[int]int)}

	candidates, err := s.db.Candidates(ctx)
	if err != nil {
		return summary, fmt.Errorf("loading enrolled identities: %w", err)
	}

	// Buffer for re-ordering images (Worker 2 might finish before Worker 1)
	buffer := make(map[int]scanResult)
	next := 0

	for res := range results {
		buffer[res.Index] = res

		// Process images in strict order so enrollment is deterministic
		for {
			r, ok := buffer[next]
			if !ok {
				break
			}
			delete(buffer, next)
			next++

			candidates, err = s.processImage(ctx, r, candidates, &summary)
			if err != nil {
				return summary, err
			}
			s.bar.Add(1)
		}
	}
	return summary, nil
}

// processImage attributes every face in one image and returns the possibly
// grown candidate list.
func (s *scanRun) processImage(ctx context.Context, r scanResult, candidates []store.Candidate, summary *scanSummary) ([]store.Candidate, error) {
	summary.Images++
	if r.Err != nil {
		summary.Failed++
		s.log.WarnContext(ctx, "image skipped", "path", r.Path, "error", r.Err)
		return candidates, nil
	}

	sourceID, err := utils.GenerateSourceID(r.Path)
	if err != nil {
		return candidates, fmt.Errorf("failed to generate source ID for %s: %w", r.Path, err)
	}
	if err := s.db.EnsureSource(ctx, sourceID, r.Path); err != nil {
		return candidates, fmt.Errorf("failed to register %s: %w", r.Path, err)
	}

	for faceIdx, face := range r.Faces {
		if face.Confidence < s.opts.MinConfidence {
			continue
		}
		summary.Faces++

		res := ash.EncodeFloat32(face.Landmarks)
		s.log.LogEncode(ctx, r.Path, res.Failure.String())
		if !res.OK() {
			summary.Unencodable++
			continue
		}

		m := store.BestMatch(candidates, res.Fingerprint, s.comparator, s.opts.MatchThreshold)
		s.log.LogIdentify(ctx, m.ID, m.Score, nil)

		score := m.Score
		id := m.ID
		if !m.Found() {
			if !s.opts.Enroll {
				summary.Unknown++
				continue
			}
			// Truly new identity -> create it so later faces can match it
			id, err = s.db.CreateIdentity(ctx, "", res.Fingerprint)
			if err != nil {
				return candidates, fmt.Errorf("failed to create new identity: %w", err)
			}
			candidates = append(candidates, store.Candidate{ID: id, Ash: res.Fingerprint})
			score = 1
			summary.Enrolled++
		}

		if err := s.db.InsertSighting(ctx, sourceID, faceIdx, id, score); err != nil {
			return candidates, fmt.Errorf("failed to persist sighting of identity %d: %w", id, err)
		}
		summary.Sightings[id]++
	}
	return candidates, nil
}

func printSummary(w io.Writer, summary scanSummary) {
	fmt.Fprintf(w, "\n---------------------------------------------------------\n")
	fmt.Fprintf(w, "📊 SCAN SUMMARY\n")
	fmt.Fprintf(w, "---------------------------------------------------------\n")

	ids := make([]int, 0, len(summary.Sightings))
	for id := range summary.Sightings {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	for _, id := range ids {
		fmt.Fprintf(w, "👤 Identity %d: %d face(s)\n", id, summary.Sightings[id])
	}

	fmt.Fprintf(w, "\n---------------------------------------------------------\n")
	fmt.Fprintf(w, "🖼️  Images Scanned:     %d (%d failed)\n", summary.Images, summary.Failed)
	fmt.Fprintf(w, "👁️  Faces Detected:     %d\n", summary.Faces)
	fmt.Fprintf(w, "🆕 New Identities:     %d\n", summary.Enrolled)
	fmt.Fprintf(w, "❓ Unknown Faces:      %d\n", summary.Unknown)
	fmt.Fprintf(w, "🚫 Unencodable Faces:  %d\n", summary.Unencodable)
	fmt.Fprintf(w, "---------------------------------------------------------\n")
}

// validateScanFlags ensures all CLI arguments are valid before starting heavy processes.
func validateScanFlags(opts *Options) error {
	info, err := os.Stat(opts.InputPath)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("input directory does not exist: %w", err)
		}
		return fmt.Errorf("unable to access input directory: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("input path %s is not a directory", opts.InputPath)
	}
	if opts.NumEngines < 1 {
		opts.NumEngines = 1
	}
	if err := validateThreshold(opts.MatchThreshold); err != nil {
		return err
	}
	if opts.MinConfidence < 0 || opts.MinConfidence > 1.0 {
		return fmt.Errorf("detection threshold must be between 0.0 and 1.0, got %f", opts.MinConfidence)
	}
	return nil
}
