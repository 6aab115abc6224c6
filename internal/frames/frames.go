// Package frames turns the still images captured while scrolling a page into
// a video.
package frames

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"time"

	"github.com/disintegration/imaging"
	"go.uber.org/zap"
)

// ErrNoFrames is returned when assembling an empty sequence.
var ErrNoFrames = errors.New("frame sequence is empty")

const framePattern = "frame_%04d.png"

// Sequence is an ordered set of numbered PNG frames in a private directory.
type Sequence struct {
	dir    string
	frames []string
}

// NewSequence creates (or empties) root/name for a new sequence.
func NewSequence(root, name string) (*Sequence, error) {
	dir := filepath.Join(root, name)
	if err := os.RemoveAll(dir); err != nil {
		return nil, fmt.Errorf("reset frame dir: %w", err)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create frame dir: %w", err)
	}
	return &Sequence{dir: dir}, nil
}

// Add writes the next frame.
func (s *Sequence) Add(png []byte) error {
	path := filepath.Join(s.dir, fmt.Sprintf(framePattern, len(s.frames)))
	if err := os.WriteFile(path, png, 0o644); err != nil {
		return fmt.Errorf("write frame %d: %w", len(s.frames), err)
	}
	s.frames = append(s.frames, path)
	return nil
}

// Len returns the number of frames written.
func (s *Sequence) Len() int {
	return len(s.frames)
}

// Dir returns the directory holding the frames.
func (s *Sequence) Dir() string {
	return s.dir
}

// Frames returns the frame paths in order.
func (s *Sequence) Frames() []string {
	return append([]string(nil), s.frames...)
}

// Pattern is the printf-style input pattern for encoders.
func (s *Sequence) Pattern() string {
	return filepath.Join(s.dir, framePattern)
}

// Remove deletes the frame directory. Safe to call repeatedly.
func (s *Sequence) Remove() error {
	return os.RemoveAll(s.dir)
}

// Encoder turns a numbered frame pattern into a video file.
type Encoder interface {
	Encode(ctx context.Context, pattern, out string) error
}

// FFmpeg encodes H.264 MP4 through the ffmpeg binary.
type FFmpeg struct {
	Path string
	FPS  int
}

// Args builds the ffmpeg argument list.
func (f FFmpeg) Args(pattern, out string) []string {
	fps := f.FPS
	if fps <= 0 {
		fps = 3
	}
	return []string{
		"-y",
		"-framerate", strconv.Itoa(fps),
		"-i", pattern,
		"-c:v", "libx264",
		"-pix_fmt", "yuv420p",
		// yuv420p needs even dimensions.
		"-vf", "pad=ceil(iw/2)*2:ceil(ih/2)*2",
		out,
	}
}

// Encode runs ffmpeg and includes the tail of its output on failure.
func (f FFmpeg) Encode(ctx context.Context, pattern, out string) error {
	path := f.Path
	if path == "" {
		path = "ffmpeg"
	}
	// #nosec G204 -- the binary path comes from operator configuration.
	cmd := exec.CommandContext(ctx, path, f.Args(pattern, out)...)
	output, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("ffmpeg: %w: %s", err, tail(output, 400))
	}
	return nil
}

func tail(b []byte, n int) string {
	if len(b) > n {
		b = b[len(b)-n:]
	}
	return string(b)
}

// Assembler normalizes a Sequence and encodes it.
type Assembler struct {
	encoder Encoder
	logger  *zap.Logger
	observe func(time.Duration)
}

// NewAssembler wires an encoder. observe, when set, receives encode durations.
func NewAssembler(encoder Encoder, logger *zap.Logger, observe func(time.Duration)) *Assembler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Assembler{encoder: encoder, logger: logger.Named("frames"), observe: observe}
}

// Assemble writes the video to out. The frame directory is removed on every
// return path.
func (a *Assembler) Assemble(ctx context.Context, seq *Sequence, out string) (err error) {
	defer func() {
		if rmErr := seq.Remove(); rmErr != nil {
			a.logger.Warn("frame cleanup failed", zap.String("dir", seq.Dir()), zap.Error(rmErr))
		}
	}()
	if seq.Len() == 0 {
		return ErrNoFrames
	}
	if err := Normalize(seq.Frames()); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(out), 0o755); err != nil {
		return fmt.Errorf("create video dir: %w", err)
	}
	start := time.Now()
	if err := a.encoder.Encode(ctx, seq.Pattern(), out); err != nil {
		return err
	}
	if a.observe != nil {
		a.observe(time.Since(start))
	}
	a.logger.Debug("video assembled", zap.String("out", out), zap.Int("frames", seq.Len()))
	return nil
}

// Normalize rewrites every frame as opaque RGB on a canvas the size of the
// first frame. Transparent pixels are flattened onto white; larger frames are
// cropped and smaller ones padded.
func Normalize(paths []string) error {
	if len(paths) == 0 {
		return nil
	}
	first, err := imaging.Open(paths[0])
	if err != nil {
		return fmt.Errorf("open frame 0: %w", err)
	}
	bounds := first.Bounds()
	for i, path := range paths {
		img := first
		if i > 0 {
			if img, err = imaging.Open(path); err != nil {
				return fmt.Errorf("open frame %d: %w", i, err)
			}
		}
		if err := imaging.Save(flatten(img, bounds.Dx(), bounds.Dy()), path); err != nil {
			return fmt.Errorf("save frame %d: %w", i, err)
		}
	}
	return nil
}

func flatten(img image.Image, w, h int) *image.NRGBA {
	canvas := imaging.New(w, h, color.White)
	return imaging.Overlay(canvas, img, image.Pt(0, 0), 1.0)
}
