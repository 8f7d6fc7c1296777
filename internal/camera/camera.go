// Package camera grabs still frames from a webcam.
package camera

import (
	"bytes"
	"context"
	stderrors "errors"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"strings"
	"sync"

	"github.com/hpungsan/colorbook/internal/errors"
)

// Device is a camera that can be acquired for capture.
type Device interface {
	Acquire(ctx context.Context) (Stream, error)
}

// Stream is an acquired camera. It must be released on every path.
type Stream interface {
	Frame(ctx context.Context) ([]byte, error)
	Release() error
}

// Capture acquires dev, grabs one frame, and releases the camera whatever
// happens.
func Capture(ctx context.Context, dev Device) (frame []byte, err error) {
	s, err := dev.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer func() {
		if rerr := s.Release(); rerr != nil && err == nil {
			err = errors.NewResourceUnavailable("camera", rerr)
		}
	}()
	return s.Frame(ctx)
}

// V4L2 is a Video4Linux camera such as /dev/video0. Frames are grabbed
// with ffmpeg.
type V4L2 struct {
	Device     string
	FFmpegPath string
}

// Acquire opens the device and holds it until Release.
func (v V4L2) Acquire(_ context.Context) (Stream, error) {
	f, err := os.OpenFile(v.Device, os.O_RDWR, 0)
	if err != nil {
		switch {
		case stderrors.Is(err, fs.ErrPermission):
			return nil, errors.NewResourceUnavailable("camera", fmt.Errorf("permission denied for %s", v.Device))
		case stderrors.Is(err, fs.ErrNotExist):
			return nil, errors.NewResourceUnavailable("camera", fmt.Errorf("no camera at %s", v.Device))
		default:
			return nil, errors.NewResourceUnavailable("camera", err)
		}
	}
	bin := v.FFmpegPath
	if bin == "" {
		bin = "ffmpeg"
	}
	return &v4l2Stream{device: v.Device, ffmpeg: bin, file: f}, nil
}

type v4l2Stream struct {
	device string
	ffmpeg string

	mu       sync.Mutex
	file     *os.File
	released bool
}

// Frame grabs a single PNG frame.
func (s *v4l2Stream) Frame(ctx context.Context) ([]byte, error) {
	s.mu.Lock()
	released := s.released
	s.mu.Unlock()
	if released {
		return nil, errors.NewResourceUnavailable("camera", stderrors.New("camera already released"))
	}
	if _, err := exec.LookPath(s.ffmpeg); err != nil {
		return nil, errors.NewResourceUnavailable("ffmpeg", err)
	}

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, s.ffmpeg,
		"-hide_banner", "-loglevel", "error",
		"-f", "v4l2", "-i", s.device,
		"-frames:v", "1",
		"-f", "image2pipe", "-vcodec", "png", "-",
	)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, errors.NewResourceUnavailable("camera", fmt.Errorf("%w: %s", err, strings.TrimSpace(stderr.String())))
	}
	if stdout.Len() == 0 {
		return nil, errors.NewDecodeFailed("camera frame", nil)
	}
	return stdout.Bytes(), nil
}

// Release closes the device. It is safe to call more than once.
func (s *v4l2Stream) Release() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.released {
		return nil
	}
	s.released = true
	return s.file.Close()
}
