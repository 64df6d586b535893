package worker

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"math"
	"testing"

	"github.com/andresmejia3/ash/internal/landmark"
)

// MockCloser wraps a bytes.Buffer to satisfy io.ReadCloser and io.WriteCloser interfaces.
// This allows us to use in-memory buffers as if they were OS Pipes.
type MockCloser struct {
	*bytes.Buffer
}

func (m *MockCloser) Close() error { return nil }

func newMockWorker(reply []byte) (*DetectorWorker, *MockCloser) {
	stdinMock := &MockCloser{Buffer: new(bytes.Buffer)}
	dataPipeMock := &MockCloser{Buffer: new(bytes.Buffer)}

	// Write the length header (Big Endian uint32) and the body
	binary.Write(dataPipeMock, binary.BigEndian, uint32(len(reply)))
	dataPipeMock.Write(reply)

	return &DetectorWorker{
		ID:       1,
		Stdin:    stdinMock,
		DataPipe: dataPipeMock,
		// Cmd is nil because we aren't testing process management, just the protocol
	}, stdinMock
}

func TestDetect(t *testing.T) {
	// Protocol: [Status:0] [NumFaces:1] [Box] [Landmarks] [Confidence]
	payload := new(bytes.Buffer)
	payload.WriteByte(0)                               // Status OK
	binary.Write(payload, binary.BigEndian, uint32(1)) // 1 Face

	binary.Write(payload, binary.BigEndian, [4]int32{10, 40, 50, 5}) // Box

	pts := [landmark.BufferLen]float32{}
	pts[2*landmark.NoseTip] = 120.5 // Set one value to verify
	binary.Write(payload, binary.BigEndian, pts)

	binary.Write(payload, binary.BigEndian, float32(0.99)) // Confidence

	w, stdinMock := newMockWorker(payload.Bytes())

	inputImage := []byte{0xDE, 0xAD, 0xBE, 0xEF} // Fake image bytes
	faces, err := w.Detect(inputImage)
	if err != nil {
		t.Fatalf("Detect failed: %v", err)
	}

	// Verify Go sent the correct data TO the detector
	sentData := stdinMock.Bytes()
	if len(sentData) != 4+len(inputImage) {
		t.Errorf("Expected %d bytes sent, got %d", 4+len(inputImage), len(sentData))
	}
	if binary.BigEndian.Uint32(sentData[:4]) != uint32(len(inputImage)) {
		t.Errorf("Wrong length header %X", sentData[:4])
	}

	// Verify Go read the correct data FROM the detector
	if len(faces) != 1 {
		t.Fatalf("Expected 1 face, got %d", len(faces))
	}
	f := faces[0]
	if len(f.Landmarks) != landmark.BufferLen {
		t.Fatalf("Expected %d landmark values, got %d", landmark.BufferLen, len(f.Landmarks))
	}
	if f.Landmarks[2*landmark.NoseTip] != 120.5 {
		t.Errorf("Expected nose tip x 120.5, got %f", f.Landmarks[2*landmark.NoseTip])
	}
	if math.Abs(f.Confidence-0.99) > 1e-6 {
		t.Errorf("Expected confidence approx 0.99, got %f", f.Confidence)
	}
	if f.Box != [4]int{10, 40, 50, 5} || f.Area() != 40*35 {
		t.Errorf("Unexpected box %v (area %d)", f.Box, f.Area())
	}
}

func TestDetect_NoFaces(t *testing.T) {
	payload := new(bytes.Buffer)
	payload.WriteByte(0)
	binary.Write(payload, binary.BigEndian, uint32(0))

	w, _ := newMockWorker(payload.Bytes())
	faces, err := w.Detect([]byte("img"))
	if err != nil {
		t.Fatalf("Detect failed: %v", err)
	}
	if len(faces) != 0 {
		t.Errorf("Expected no faces, got %d", len(faces))
	}
}

func TestDetect_Error(t *testing.T) {
	// Protocol: [Status:1] [MsgLen] [Msg]
	payload := new(bytes.Buffer)
	payload.WriteByte(1) // Status ERROR

	errMsg := "Exception: model weights not found"
	binary.Write(payload, binary.BigEndian, uint32(len(errMsg)))
	payload.WriteString(errMsg)

	w, _ := newMockWorker(payload.Bytes())

	_, err := w.Detect([]byte("frame"))
	if err == nil {
		t.Fatal("Expected error, got nil")
	}
	if !errors.Is(err, ErrDetector) || err.Error() != "detector error: "+errMsg {
		t.Errorf("Expected error message '%s', got '%v'", "detector error: "+errMsg, err)
	}
}

func TestDetect_Truncated(t *testing.T) {
	payload := new(bytes.Buffer)
	payload.WriteByte(0)
	binary.Write(payload, binary.BigEndian, uint32(2))
	binary.Write(payload, binary.BigEndian, [4]int32{1, 2, 3, 4})

	w, _ := newMockWorker(payload.Bytes())
	if _, err := w.Detect([]byte("img")); err == nil {
		t.Fatal("Expected error for truncated reply")
	}
}

func TestDetect_TooManyFaces(t *testing.T) {
	payload := new(bytes.Buffer)
	payload.WriteByte(0)
	binary.Write(payload, binary.BigEndian, uint32(maxFaces+1))

	w, _ := newMockWorker(payload.Bytes())
	if _, err := w.Detect([]byte("img")); err == nil {
		t.Fatal("Expected error for oversized face count")
	}
}

func TestDetect_DetectorGone(t *testing.T) {
	w := &DetectorWorker{
		ID:       2,
		Stdin:    &MockCloser{Buffer: new(bytes.Buffer)},
		DataPipe: &MockCloser{Buffer: new(bytes.Buffer)}, // nothing to read: the process died
	}
	if _, err := w.Detect([]byte("img")); err == nil {
		t.Fatal("Expected error when the detector produced no reply")
	}
}

func TestNewDetectorWorker_EmptyCommand(t *testing.T) {
	_, err := NewDetectorWorker(context.Background(), 0, Config{})
	if !errors.Is(err, ErrNoCommand) {
		t.Errorf("Expected ErrNoCommand, got %v", err)
	}
}
