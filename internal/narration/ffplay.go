package narration

import (
	"context"
	stderrors "errors"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"sync"

	"github.com/hpungsan/colorbook/internal/errors"
)

// FFplayPlayer plays audio files through the ffplay binary.
type FFplayPlayer struct {
	// Path is the ffplay executable; empty means "ffplay" on PATH.
	Path string
}

// Load checks that the file and the player exist. Playback starts on Play.
func (p FFplayPlayer) Load(ctx context.Context, path string, opts PlayOptions) (Track, error) {
	bin := p.Path
	if bin == "" {
		bin = "ffplay"
	}
	if _, err := exec.LookPath(bin); err != nil {
		return nil, errors.NewResourceUnavailable("ffplay", err)
	}
	if _, err := os.Stat(path); err != nil {
		return nil, errors.NewNotFound(path)
	}

	args := []string{"-nodisp", "-autoexit", "-loglevel", "error"}
	if opts.Loop {
		args = append(args, "-loop", "0")
	}
	volume := int(opts.Volume*100 + 0.5)
	volume = max(0, min(100, volume))
	args = append(args, "-volume", strconv.Itoa(volume), path)

	ctx, cancel := context.WithCancel(ctx)
	return &ffplayTrack{
		cmd:    exec.CommandContext(ctx, bin, args...),
		cancel: cancel,
		done:   make(chan struct{}),
	}, nil
}

type ffplayTrack struct {
	cmd    *exec.Cmd
	cancel context.CancelFunc

	mu      sync.Mutex
	started bool
	stopped bool
	err     error
	once    sync.Once
	done    chan struct{}
}

func (t *ffplayTrack) Play() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stopped {
		return stderrors.New("track already stopped")
	}
	if t.started {
		return nil
	}
	if err := t.cmd.Start(); err != nil {
		return fmt.Errorf("start ffplay: %w", err)
	}
	t.started = true

	go func() {
		err := t.cmd.Wait()
		t.mu.Lock()
		if !t.stopped && err != nil {
			t.err = err
		}
		t.mu.Unlock()
		t.once.Do(func() { close(t.done) })
	}()
	return nil
}

func (t *ffplayTrack) Stop() {
	t.mu.Lock()
	t.stopped = true
	started := t.started
	t.mu.Unlock()

	t.cancel()
	if !started {
		t.once.Do(func() { close(t.done) })
	}
}

func (t *ffplayTrack) Done() <-chan struct{} {
	return t.done
}

func (t *ffplayTrack) Err() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.err
}
