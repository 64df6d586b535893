package utils

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"unicode"

	"github.com/andresmejia3/ash/internal/landmark"
	"github.com/andresmejia3/ash/internal/types"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// --- 1. Process Safety & Command Wrapping ---

// SafeCommand wraps a standard exec.Cmd with a buffer to catch Stderr (detector logs)
// This ensures we don't lose critical crash information if a worker dies.
type SafeCommand struct {
	*exec.Cmd
	Stderr *bytes.Buffer
}

// NewSafeCommand initializes a command and attaches a buffer to its Stderr pipe
// It prepares the command for execution but does not start it.
func NewSafeCommand(ctx context.Context, name string, args ...string) *SafeCommand {
	cmd := exec.CommandContext(ctx, name, args...)
	stderr := &bytes.Buffer{}
	cmd.Stderr = stderr
	return &SafeCommand{Cmd: cmd, Stderr: stderr}
}

// ShowError prints a formatted error box and dumps detector logs if a SafeCommand is provided.
func ShowError(context string, err error, s *SafeCommand) {
	fmt.Fprintf(os.Stderr, "\n---------------------------------------------------------\n")
	fmt.Fprintf(os.Stderr, "🚨 ASH ERROR: %s\n", context)
	if err != nil {
		fmt.Fprintf(os.Stderr, "DETAILS: %v\n", err)
	}

	// If we have a SafeCommand and it captured logs, print them.
	if s != nil && s.Stderr.Len() > 0 {
		fmt.Fprintf(os.Stderr, "\nDETECTOR CRASH LOGS:\n%s\n", s.Stderr.String())
	}
	fmt.Fprintf(os.Stderr, "---------------------------------------------------------\n")
}

// --- 2. Input Discovery (Shared by Encode, Enroll & Scan) ---

var imageExts = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".bmp":  true,
	".webp": true,
}

// IsImage reports whether path has an image extension the detector accepts.
func IsImage(path string) bool {
	return imageExts[strings.ToLower(filepath.Ext(path))]
}

// ListImages walks dir and returns every image file in lexical order.
func ListImages(dir string) ([]string, error) {
	var out []string
	err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && IsImage(path) {
			out = append(out, path)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(out)
	return out, nil
}

var ErrLandmarkFormat = errors.New("unrecognized landmark file format")

// ParseLandmarks accepts either a flat array of 136 numbers or an object of
// the form {"landmarks": [[x, y], ...]} and returns the flat buffer.
func ParseLandmarks(data []byte) ([]float64, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, ErrLandmarkFormat
	}

	switch data[0] {
	case '[':
		var flat []float64
		if err := json.Unmarshal(data, &flat); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrLandmarkFormat, err)
		}
		return flat, nil
	case '{':
		var file types.LandmarkFile
		if err := json.Unmarshal(data, &file); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrLandmarkFormat, err)
		}
		if file.Landmarks == nil {
			return nil, fmt.Errorf("%w: missing \"landmarks\"", ErrLandmarkFormat)
		}
		flat := make([]float64, 0, landmark.BufferLen)
		for _, p := range file.Landmarks {
			flat = append(flat, p[0], p[1])
		}
		return flat, nil
	default:
		return nil, ErrLandmarkFormat
	}
}

// ReadLandmarks loads a landmark JSON file from disk.
func ReadLandmarks(path string) ([]float64, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	buf, err := ParseLandmarks(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return buf, nil
}

// GenerateSourceID creates a deterministic hash for an input file
// based on its path, size, and modification time.
func GenerateSourceID(path string) (string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return "", err
	}
	input := fmt.Sprintf("%s-%d-%d", path, info.Size(), info.ModTime().UnixNano())
	hash := sha256.Sum256([]byte(input))
	return hex.EncodeToString(hash[:]), nil
}

// --- 3. Identity Names ---

// RemoveDiacritics removes diacritical marks from a string (e.g., "Jiří" -> "Jiri").
func RemoveDiacritics(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	result, _, _ := transform.String(t, s)
	return result
}

// NameKey normalizes an identity name for lookups (lowercase, no diacritics, single spaces).
func NameKey(name string) string {
	name = RemoveDiacritics(name)
	name = strings.ToLower(name)
	name = strings.ReplaceAll(name, "-", " ")
	return strings.Join(strings.Fields(name), " ")
}
