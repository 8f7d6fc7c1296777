package narration

import (
	"context"
	stderrors "errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/hpungsan/colorbook/internal/errors"
)

const (
	waitFor = 2 * time.Second
	tick    = 5 * time.Millisecond
)

// fakeSynth returns an artifact named after the text. Texts with a gate
// block until the gate is closed, ignoring cancellation, to simulate audio
// that arrives after its session was superseded.
type fakeSynth struct {
	mu    sync.Mutex
	gates map[string]chan struct{}
	err   error
}

func (s *fakeSynth) Name() string { return "fake" }

func (s *fakeSynth) hold(text string) chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gates == nil {
		s.gates = map[string]chan struct{}{}
	}
	gate := make(chan struct{})
	s.gates[text] = gate
	return gate
}

func (s *fakeSynth) Synthesize(_ context.Context, text string) (Artifact, error) {
	s.mu.Lock()
	gate := s.gates[text]
	err := s.err
	s.mu.Unlock()
	if gate != nil {
		<-gate
	}
	if err != nil {
		return Artifact{}, err
	}
	return Artifact{Path: text + ".mp3", Provider: "fake", Text: text, CreatedAt: time.Now()}, nil
}

type fakeTrack struct {
	path string
	opts PlayOptions

	mu      sync.Mutex
	played  bool
	stopped bool
	playErr error
	err     error
	once    sync.Once
	done    chan struct{}
}

func (t *fakeTrack) Play() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.playErr != nil {
		return t.playErr
	}
	t.played = true
	return nil
}

func (t *fakeTrack) Stop() {
	t.mu.Lock()
	t.stopped = true
	t.mu.Unlock()
	t.once.Do(func() { close(t.done) })
}

func (t *fakeTrack) Done() <-chan struct{} { return t.done }

func (t *fakeTrack) Err() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.err
}

// finish ends playback as if the file reached its end (or failed).
func (t *fakeTrack) finish(err error) {
	t.mu.Lock()
	t.err = err
	t.mu.Unlock()
	t.once.Do(func() { close(t.done) })
}

func (t *fakeTrack) state() (played, stopped bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.played, t.stopped
}

type fakePlayer struct {
	mu      sync.Mutex
	tracks  []*fakeTrack
	playErr map[string]error
}

func (p *fakePlayer) Load(_ context.Context, path string, opts PlayOptions) (Track, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	t := &fakeTrack{path: path, opts: opts, playErr: p.playErr[path], done: make(chan struct{})}
	p.tracks = append(p.tracks, t)
	return t, nil
}

// active counts tracks that are playing and not stopped, split by loop flag.
func (p *fakePlayer) active() (narration, ambient int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, t := range p.tracks {
		played, stopped := t.state()
		if !played || stopped {
			continue
		}
		if t.opts.Loop {
			ambient++
		} else {
			narration++
		}
	}
	return narration, ambient
}

func (p *fakePlayer) find(path string) *fakeTrack {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i := len(p.tracks) - 1; i >= 0; i-- {
		if p.tracks[i].path == path {
			return p.tracks[i]
		}
	}
	return nil
}

type fakeClock struct {
	mu     sync.Mutex
	now    time.Duration
	timers []*fakeTimer
}

type fakeTimer struct {
	clock   *fakeClock
	at      time.Duration
	f       func()
	stopped bool
	fired   bool
}

func (c *fakeClock) AfterFunc(d time.Duration, f func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTimer{clock: c, at: c.now + d, f: f}
	c.timers = append(c.timers, t)
	return t
}

func (t *fakeTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	wasPending := !t.stopped && !t.fired
	t.stopped = true
	return wasPending
}

// Advance moves time forward, firing due timers in order.
func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	target := c.now + d
	c.mu.Unlock()
	for {
		c.mu.Lock()
		var due *fakeTimer
		for _, t := range c.timers {
			if t.stopped || t.fired || t.at > target {
				continue
			}
			if due == nil || t.at < due.at {
				due = t
			}
		}
		if due == nil {
			c.now = target
			c.mu.Unlock()
			return
		}
		c.now = due.at
		due.fired = true
		c.mu.Unlock()
		due.f()
	}
}

func (c *fakeClock) pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, t := range c.timers {
		if !t.stopped && !t.fired {
			n++
		}
	}
	return n
}

type fakeImages struct{ img []byte }

func (f fakeImages) SelectedStoryImage() []byte { return f.img }

type countingEffects struct{ n atomic.Int32 }

func (e *countingEffects) Celebrate() { e.n.Add(1) }

type harness struct {
	o         *Orchestrator
	synth     *fakeSynth
	player    *fakePlayer
	clock     *fakeClock
	effects   *countingEffects
	mu        sync.Mutex
	artifacts []Artifact
}

func newHarness(t *testing.T, image []byte) *harness {
	t.Helper()
	h := &harness{
		synth:   &fakeSynth{},
		player:  &fakePlayer{},
		clock:   &fakeClock{},
		effects: &countingEffects{},
	}
	o, err := New(Options{
		Synthesizer:   h.synth,
		Player:        h.player,
		Clock:         h.clock,
		Effects:       h.effects,
		Images:        fakeImages{img: image},
		AmbientPath:   "ambient.mp3",
		AmbientVolume: 0.3,
		ImageDelay:    1500 * time.Millisecond,
		ImageToggle:   4000 * time.Millisecond,
		OnArtifact: func(a Artifact) {
			h.mu.Lock()
			h.artifacts = append(h.artifacts, a)
			h.mu.Unlock()
		},
	})
	require.NoError(t, err)
	h.o = o
	t.Cleanup(o.Close)
	return h
}

// waitPlaying waits until session id is playing with both tracks audible.
func (h *harness) waitPlaying(t *testing.T, id string) {
	t.Helper()
	require.Eventually(t, func() bool {
		snap := h.o.Snapshot()
		n, a := h.player.active()
		return snap.State == Playing && snap.SessionID == id && n == 1 && a == 1
	}, waitFor, tick)
}

func (h *harness) waitIdle(t *testing.T) {
	t.Helper()
	require.Eventually(t, func() bool {
		snap := h.o.Snapshot()
		return snap.State == Idle && !snap.Active
	}, waitFor, tick)
}

func TestTransitions_EveryExitFromActiveStatesTearsDown(t *testing.T) {
	for from, edges := range transitions {
		for ev, tr := range edges {
			if from == Idle {
				continue
			}
			if from == Preparing && ev == EventReady {
				require.False(t, tr.teardown, "preparing -> playing keeps the session")
				continue
			}
			require.True(t, tr.teardown, "%s --%s--> %s must tear down", from, ev, tr.to)
		}
	}
}

func TestTransitions_EveryStateReachesIdle(t *testing.T) {
	for _, s := range []State{Preparing, Playing, Completed, Failed} {
		tr, ok := next(s, EventCancel)
		if !ok {
			tr, ok = next(s, EventReset)
		}
		require.True(t, ok, "%s has no way back to idle", s)
		require.Equal(t, Idle, tr.to)
		require.True(t, tr.teardown)
	}
}

func TestTransitions_TerminalStatesIgnoreOtherEvents(t *testing.T) {
	for _, s := range []State{Completed, Failed} {
		for _, ev := range []Event{EventRead, EventReady, EventFinished, EventError, EventCancel} {
			_, ok := next(s, ev)
			require.False(t, ok, "%s should ignore %s", s, ev)
		}
	}
}

func TestRead_PlaysNarrationAndLoopedAmbient(t *testing.T) {
	h := newHarness(t, nil)

	id, err := h.o.Read(context.Background(), "once upon a time")
	require.NoError(t, err)
	require.NotEmpty(t, id)
	h.waitPlaying(t, id)

	narr := h.player.find("once upon a time.mp3")
	require.NotNil(t, narr)
	require.Equal(t, 1.0, narr.opts.Volume)
	require.False(t, narr.opts.Loop)

	amb := h.player.find("ambient.mp3")
	require.NotNil(t, amb)
	require.Equal(t, 0.3, amb.opts.Volume)
	require.True(t, amb.opts.Loop)
}

func TestRead_EmptyText(t *testing.T) {
	h := newHarness(t, nil)
	_, err := h.o.Read(context.Background(), "   ")
	require.True(t, errors.Is(err, errors.ErrInvalidRequest))
	require.Equal(t, Idle, h.o.Snapshot().State)
}

func TestRead_SupersedeLeavesOneHandleOfEach(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	first, err := h.o.Read(ctx, "first")
	require.NoError(t, err)
	h.waitPlaying(t, first)

	second, err := h.o.Read(ctx, "second")
	require.NoError(t, err)
	require.NotEqual(t, first, second)
	h.waitPlaying(t, second)

	_, stopped := h.player.find("first.mp3").state()
	require.True(t, stopped, "superseded narration must be stopped")

	n, a := h.player.active()
	require.Equal(t, 1, n)
	require.Equal(t, 1, a)
}

func TestRead_LateAudioFromSupersededSessionIsDiscarded(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	gate := h.synth.hold("first")
	_, err := h.o.Read(ctx, "first")
	require.NoError(t, err)

	second, err := h.o.Read(ctx, "second")
	require.NoError(t, err)
	h.waitPlaying(t, second)

	// First session's audio resolves only now.
	close(gate)
	require.Eventually(t, func() bool {
		late := h.player.find("first.mp3")
		if late == nil {
			return false
		}
		played, stopped := late.state()
		return stopped && !played
	}, waitFor, tick)

	n, _ := h.player.active()
	require.Equal(t, 1, n)
	require.Equal(t, second, h.o.Snapshot().SessionID)

	h.mu.Lock()
	defer h.mu.Unlock()
	require.Len(t, h.artifacts, 1)
	require.Equal(t, "second", h.artifacts[0].Text)
}

func TestCompletion_CelebratesAndTearsDown(t *testing.T) {
	h := newHarness(t, []byte("story.png"))
	id, err := h.o.Read(context.Background(), "the end")
	require.NoError(t, err)
	h.waitPlaying(t, id)
	h.clock.Advance(1500 * time.Millisecond)
	require.True(t, h.o.Snapshot().ImageVisible)

	h.player.find("the end.mp3").finish(nil)
	h.waitIdle(t)

	require.Eventually(t, func() bool { return h.effects.n.Load() == 1 }, waitFor, tick)
	_, stopped := h.player.find("ambient.mp3").state()
	require.True(t, stopped)
	require.Zero(t, h.clock.pending())
	require.False(t, h.o.Snapshot().ImageVisible)
	require.NoError(t, h.o.Wait(context.Background()))
}

func TestPlaybackError_TearsDownAndSurfaces(t *testing.T) {
	h := newHarness(t, []byte("story.png"))
	id, err := h.o.Read(context.Background(), "broken")
	require.NoError(t, err)
	h.waitPlaying(t, id)

	h.player.find("broken.mp3").finish(stderrors.New("decode error"))
	h.waitIdle(t)

	require.True(t, errors.Is(h.o.LastError(), errors.ErrPlaybackFailed))
	require.NotEmpty(t, h.o.Snapshot().Error)
	n, a := h.player.active()
	require.Zero(t, n)
	require.Zero(t, a)
	require.Zero(t, h.clock.pending())
	require.Zero(t, h.effects.n.Load())
}

func TestPlayFailure_TearsDown(t *testing.T) {
	h := newHarness(t, nil)
	h.player.playErr = map[string]error{"mute.mp3": stderrors.New("no audio device")}

	_, err := h.o.Read(context.Background(), "mute")
	require.NoError(t, err)
	err = h.o.Wait(context.Background())
	require.True(t, errors.Is(err, errors.ErrPlaybackFailed))
	h.waitIdle(t)

	require.Eventually(t, func() bool {
		amb := h.player.find("ambient.mp3")
		if amb == nil {
			return false
		}
		_, stopped := amb.state()
		return stopped
	}, waitFor, tick)
}

func TestSynthesisFailure_KeepsServiceCategory(t *testing.T) {
	h := newHarness(t, nil)
	h.synth.err = errors.NewQuotaExceeded("narration")

	_, err := h.o.Read(context.Background(), "hello")
	require.NoError(t, err)
	err = h.o.Wait(context.Background())
	require.True(t, errors.Is(err, errors.ErrQuotaExceeded))
	h.waitIdle(t)
}

func TestCancel_MidPreparing(t *testing.T) {
	h := newHarness(t, nil)
	gate := h.synth.hold("slow")

	_, err := h.o.Read(context.Background(), "slow")
	require.NoError(t, err)
	h.o.Cancel()

	snap := h.o.Snapshot()
	require.Equal(t, Idle, snap.State)
	require.False(t, snap.Active)

	close(gate)
	require.Eventually(t, func() bool {
		late := h.player.find("slow.mp3")
		if late == nil {
			return false
		}
		played, stopped := late.state()
		return stopped && !played
	}, waitFor, tick)
	n, a := h.player.active()
	require.Zero(t, n)
	require.Zero(t, a)
}

func TestCancel_MidPlaying(t *testing.T) {
	h := newHarness(t, []byte("story.png"))
	id, err := h.o.Read(context.Background(), "bedtime")
	require.NoError(t, err)
	h.waitPlaying(t, id)

	h.o.Cancel()
	snap := h.o.Snapshot()
	require.Equal(t, Idle, snap.State)
	require.False(t, snap.ImageVisible)
	require.Zero(t, h.clock.pending())
	n, a := h.player.active()
	require.Zero(t, n)
	require.Zero(t, a)

	// Cancel from idle is a no-op.
	h.o.Cancel()
	require.Equal(t, Idle, h.o.Snapshot().State)
}

func TestClose_RejectsFurtherReads(t *testing.T) {
	h := newHarness(t, nil)
	id, err := h.o.Read(context.Background(), "goodnight")
	require.NoError(t, err)
	h.waitPlaying(t, id)

	h.o.Close()
	require.Equal(t, Idle, h.o.Snapshot().State)
	_, err = h.o.Read(context.Background(), "again")
	require.True(t, errors.Is(err, errors.ErrResourceUnavailable))
}

func TestVisibilityCycle(t *testing.T) {
	h := newHarness(t, []byte("story.png"))
	id, err := h.o.Read(context.Background(), "dragons")
	require.NoError(t, err)
	h.waitPlaying(t, id)

	h.clock.Advance(1499 * time.Millisecond)
	require.False(t, h.o.Snapshot().ImageVisible)

	h.clock.Advance(time.Millisecond)
	require.True(t, h.o.Snapshot().ImageVisible)

	h.clock.Advance(4000 * time.Millisecond)
	require.False(t, h.o.Snapshot().ImageVisible)

	h.clock.Advance(4000 * time.Millisecond)
	require.True(t, h.o.Snapshot().ImageVisible)

	// A new reading resets the cycle before it starts again.
	second, err := h.o.Read(context.Background(), "more dragons")
	require.NoError(t, err)
	require.False(t, h.o.Snapshot().ImageVisible)
	h.waitPlaying(t, second)
	require.Equal(t, 1, h.clock.pending())
}

func TestNoStoryImage_NoVisibilityCycle(t *testing.T) {
	h := newHarness(t, nil)
	id, err := h.o.Read(context.Background(), "plain")
	require.NoError(t, err)
	h.waitPlaying(t, id)

	require.Zero(t, h.clock.pending())
	h.clock.Advance(10 * time.Second)
	require.False(t, h.o.Snapshot().ImageVisible)
	require.Equal(t, Playing, h.o.Snapshot().State)
}

func TestNew_RequiresCollaborators(t *testing.T) {
	_, err := New(Options{Player: &fakePlayer{}})
	require.Error(t, err)
	_, err = New(Options{Synthesizer: &fakeSynth{}})
	require.Error(t, err)
}

func TestArtifact_RecordedBeforeSupersedingRead(t *testing.T) {
	ctx := context.Background()
	entered := make(chan struct{})
	release := make(chan struct{})
	var mu sync.Mutex
	var recorded []string

	o, err := New(Options{
		Synthesizer: &fakeSynth{},
		Player:      &fakePlayer{},
		Clock:       &fakeClock{},
		OnArtifact: func(a Artifact) {
			mu.Lock()
			recorded = append(recorded, a.Text)
			mu.Unlock()
			if a.Text == "first" {
				close(entered)
				<-release
			}
		},
	})
	require.NoError(t, err)
	t.Cleanup(o.Close)

	_, err = o.Read(ctx, "first")
	require.NoError(t, err)
	select {
	case <-entered:
	case <-time.After(waitFor):
		t.Fatal("first artifact was never recorded")
	}

	started := make(chan string, 1)
	go func() {
		id, _ := o.Read(ctx, "second")
		started <- id
	}()
	select {
	case <-started:
		t.Fatal("a new reading started while the previous artifact was being recorded")
	case <-time.After(50 * time.Millisecond):
	}

	close(release)
	second := <-started
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(recorded) == 2
	}, waitFor, tick)
	require.Equal(t, []string{"first", "second"}, recorded)
	require.Equal(t, second, o.Snapshot().SessionID)
}
