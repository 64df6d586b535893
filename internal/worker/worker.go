package worker

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/andresmejia3/ash/internal/landmark"
	"github.com/andresmejia3/ash/internal/types"
	"github.com/andresmejia3/ash/internal/utils" // Using the SafeCommand wrapper
)

// maxFaces bounds the face count a detector may report for one image.
const maxFaces = 1024

var (
	ErrNoCommand = errors.New("detector command is empty")
	// ErrDetector wraps a failure the detector reported for one image. The
	// process stays usable after it.
	ErrDetector = errors.New("detector error")
)

// Detector finds faces and their 68 landmarks in an encoded image.
type Detector interface {
	Detect(image []byte) ([]types.FaceLandmarks, error)
	Close()
}

// Config controls how the detector process is launched.
type Config struct {
	Command     []string
	ReadTimeout time.Duration
}

// DetectorWorker drives one external landmark detector process.
type DetectorWorker struct {
	ID          int
	Cmd         *utils.SafeCommand
	Stdin       io.WriteCloser
	DataPipe    io.ReadCloser
	ReadTimeout time.Duration
}

func NewDetectorWorker(ctx context.Context, id int, cfg Config) (*DetectorWorker, error) {
	if len(cfg.Command) == 0 {
		return nil, ErrNoCommand
	}

	// 1. Initialize the SafeCommand so crash logs survive
	proc := utils.NewSafeCommand(ctx, cfg.Command[0], cfg.Command[1:]...)

	// Create a side-channel pipe (FD 3) for clean data transfer
	r, w, err := os.Pipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create pipe: %w", err)
	}
	// Pass the write-end to the child process. It will appear as FD 3.
	proc.Cmd.ExtraFiles = []*os.File{w}

	stdin, err := proc.StdinPipe()
	if err != nil {
		w.Close() // Prevent FD leak
		r.Close() // Close read-end too!
		return nil, fmt.Errorf("failed to create stdin pipe: %w", err)
	}

	if err := proc.Start(); err != nil {
		w.Close() // Close write end if start fails
		r.Close() // Close read-end too!
		return nil, fmt.Errorf("worker %d failed to start: %w", id, err)
	}

	// Close the write-end in the parent so only the child holds it
	w.Close()

	return &DetectorWorker{
		ID:          id,
		Cmd:         proc,
		Stdin:       stdin,
		DataPipe:    r,
		ReadTimeout: cfg.ReadTimeout,
	}, nil
}

// Communicate sends one length-prefixed request and reads one length-prefixed response.
func (w *DetectorWorker) Communicate(data []byte) ([]byte, error) {
	// Protocol: [Length][Data]
	if err := binary.Write(w.Stdin, binary.BigEndian, uint32(len(data))); err != nil {
		return nil, err
	}
	if _, err := w.Stdin.Write(data); err != nil {
		return nil, err
	}

	// Pipes from os.Pipe support deadlines; in-memory mocks do not.
	if d, ok := w.DataPipe.(interface{ SetReadDeadline(time.Time) error }); ok && w.ReadTimeout > 0 {
		if err := d.SetReadDeadline(time.Now().Add(w.ReadTimeout)); err != nil {
			return nil, err
		}
	}

	header := make([]byte, 4)
	if _, err := io.ReadFull(w.DataPipe, header); err != nil {
		return nil, err // This is where we catch a detector crash
	}

	respLen := binary.BigEndian.Uint32(header)
	respBody := make([]byte, respLen)
	_, err := io.ReadFull(w.DataPipe, respBody)
	return respBody, err
}

// Detect sends an encoded image and decodes the detector's reply.
//
// Reply protocol:
//
//	[Status:0] [NumFaces:u32] { [Box:4×i32] [Landmarks:136×f32] [Confidence:f32] }*
//	[Status:1] [MsgLen:u32] [Msg]
func (w *DetectorWorker) Detect(image []byte) ([]types.FaceLandmarks, error) {
	resp, err := w.Communicate(image)
	if err != nil {
		return nil, err
	}
	return decodeReply(resp)
}

func decodeReply(resp []byte) ([]types.FaceLandmarks, error) {
	r := bytes.NewReader(resp)

	status, err := r.ReadByte()
	if err != nil {
		return nil, fmt.Errorf("empty detector reply: %w", err)
	}
	if status != 0 {
		var msgLen uint32
		if err := binary.Read(r, binary.BigEndian, &msgLen); err != nil {
			return nil, fmt.Errorf("detector error without message: %w", err)
		}
		msg := make([]byte, msgLen)
		if _, err := io.ReadFull(r, msg); err != nil {
			return nil, fmt.Errorf("truncated detector error: %w", err)
		}
		return nil, fmt.Errorf("%w: %s", ErrDetector, msg)
	}

	var count uint32
	if err := binary.Read(r, binary.BigEndian, &count); err != nil {
		return nil, fmt.Errorf("reading face count: %w", err)
	}
	if count > maxFaces {
		return nil, fmt.Errorf("detector reported %d faces, limit is %d", count, maxFaces)
	}

	faces := make([]types.FaceLandmarks, 0, count)
	for i := uint32(0); i < count; i++ {
		var box [4]int32
		pts := make([]float32, landmark.BufferLen)
		var conf float32

		if err := binary.Read(r, binary.BigEndian, &box); err != nil {
			return nil, fmt.Errorf("face %d box: %w", i, err)
		}
		if err := binary.Read(r, binary.BigEndian, pts); err != nil {
			return nil, fmt.Errorf("face %d landmarks: %w", i, err)
		}
		if err := binary.Read(r, binary.BigEndian, &conf); err != nil {
			return nil, fmt.Errorf("face %d confidence: %w", i, err)
		}

		faces = append(faces, types.FaceLandmarks{
			Box:        [4]int{int(box[0]), int(box[1]), int(box[2]), int(box[3])},
			Landmarks:  pts,
			Confidence: float64(conf),
		})
	}
	return faces, nil
}

func (w *DetectorWorker) Close() {
	w.Stdin.Close()
	w.DataPipe.Close()
	if w.Cmd != nil {
		w.Cmd.Wait()
	}
}
