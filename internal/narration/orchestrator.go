// Package narration plays a synthesized story reading with ambient audio and
// a timed story image, making sure at most one reading is ever active.
package narration

import (
	"context"
	stderrors "errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hpungsan/colorbook/internal/errors"
)

// Options configures an Orchestrator.
type Options struct {
	Synthesizer Synthesizer
	Player      Player
	Clock       Clock
	Effects     Effects
	Images      ImageSource
	Logger      *slog.Logger

	// AmbientPath is a looping background track. Empty disables ambient audio.
	AmbientPath   string
	AmbientVolume float64

	// ImageDelay is how long after playback starts the story image first shows.
	ImageDelay time.Duration
	// ImageToggle is the story image visibility toggle period.
	ImageToggle time.Duration

	// OnArtifact receives every narration artifact produced for the current
	// session. It runs with the orchestrator locked and must not call back
	// into it.
	OnArtifact func(Artifact)
	// OnChange receives a snapshot after every observable change.
	OnChange func(Snapshot)
}

// Snapshot is the externally visible orchestrator state.
type Snapshot struct {
	State        State  `json:"state"`
	SessionID    string `json:"session_id,omitempty"`
	Active       bool   `json:"active"`
	ImageVisible bool   `json:"image_visible"`
	Error        string `json:"error,omitempty"`
}

type session struct {
	id     string
	ctx    context.Context
	cancel context.CancelFunc

	narration    Track
	ambient      Track
	timer        Timer
	imageVisible bool

	done chan struct{}
	err  error
}

// Orchestrator runs narration sessions.
type Orchestrator struct {
	opts   Options
	logger *slog.Logger

	mu      sync.Mutex
	state   State
	sess    *session
	lastErr error
	closed  bool
}

// New creates an idle Orchestrator.
func New(opts Options) (*Orchestrator, error) {
	if opts.Synthesizer == nil {
		return nil, errors.NewInvalidRequest("narration requires a synthesizer")
	}
	if opts.Player == nil {
		return nil, errors.NewInvalidRequest("narration requires an audio player")
	}
	if opts.Clock == nil {
		opts.Clock = SystemClock()
	}
	if opts.Effects == nil {
		opts.Effects = noEffects{}
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{opts: opts, logger: logger.With("component", "narration")}, nil
}

// Read starts reading text aloud and returns the new session ID. Any
// session already running is torn down first.
func (o *Orchestrator) Read(ctx context.Context, text string) (string, error) {
	if strings.TrimSpace(text) == "" {
		return "", errors.NewInvalidRequest("story text is required")
	}

	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return "", errors.NewResourceUnavailable("narration", stderrors.New("orchestrator closed"))
	}
	o.fireLocked(EventRead)

	// The session outlives the request that started it.
	sessCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	sess := &session{
		id:     uuid.NewString(),
		ctx:    sessCtx,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	o.sess = sess
	o.lastErr = nil
	snap := o.snapshotLocked()
	o.mu.Unlock()
	o.notify(snap)

	o.logger.Info("narration started", "session", sess.id, "provider", o.opts.Synthesizer.Name())

	go o.loadNarration(sess, text)
	if o.opts.AmbientPath != "" {
		go o.loadAmbient(sess)
	}
	return sess.id, nil
}

// Cancel stops the active session, if any, and returns to Idle.
func (o *Orchestrator) Cancel() {
	o.mu.Lock()
	if !o.fireLocked(EventCancel) {
		o.mu.Unlock()
		return
	}
	snap := o.snapshotLocked()
	o.mu.Unlock()
	o.notify(snap)
}

// Close cancels the active session and rejects further reads.
func (o *Orchestrator) Close() {
	o.mu.Lock()
	o.closed = true
	o.mu.Unlock()
	o.Cancel()
}

// Wait blocks until the current session ends and returns its failure, if
// any. With no active session it returns the last failure.
func (o *Orchestrator) Wait(ctx context.Context) error {
	o.mu.Lock()
	sess := o.sess
	lastErr := o.lastErr
	o.mu.Unlock()

	if sess == nil {
		return lastErr
	}
	select {
	case <-sess.done:
		return sess.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Snapshot returns the current state.
func (o *Orchestrator) Snapshot() Snapshot {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.snapshotLocked()
}

// LastError returns the failure that ended the most recent session, if any.
func (o *Orchestrator) LastError() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.lastErr
}

func (o *Orchestrator) loadNarration(sess *session, text string) {
	art, err := o.opts.Synthesizer.Synthesize(sess.ctx, text)
	if err != nil {
		o.fail(sess, err)
		return
	}
	if !o.recordArtifact(sess, art) {
		o.logger.Debug("not recording narration from superseded session", "session", sess.id, "path", art.Path)
	}

	track, err := o.opts.Player.Load(sess.ctx, art.Path, PlayOptions{Volume: 1})
	if err != nil {
		o.fail(sess, err)
		return
	}
	o.startNarration(sess, track)
}

// recordArtifact hands art to OnArtifact if sess is still current. The hook
// runs under o.mu so a superseding Read cannot slip in between the check
// and the record.
func (o *Orchestrator) recordArtifact(sess *session, art Artifact) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.sess != sess {
		return false
	}
	if o.opts.OnArtifact != nil {
		o.opts.OnArtifact(art)
	}
	return true
}

func (o *Orchestrator) startNarration(sess *session, track Track) {
	o.mu.Lock()
	if o.sess != sess {
		o.mu.Unlock()
		track.Stop()
		o.logger.Debug("discarding late narration audio", "session", sess.id)
		return
	}

	sess.narration = track
	if err := track.Play(); err != nil {
		o.failLocked(sess, err)
		snap := o.snapshotLocked()
		o.mu.Unlock()
		o.notify(snap)
		return
	}
	o.fireLocked(EventReady)

	if sess.ambient != nil {
		o.playAmbientLocked(sess)
	}
	if o.opts.Images != nil && len(o.opts.Images.SelectedStoryImage()) > 0 {
		sess.timer = o.opts.Clock.AfterFunc(o.opts.ImageDelay, func() { o.toggleImage(sess) })
	}
	snap := o.snapshotLocked()
	o.mu.Unlock()
	o.notify(snap)

	go o.watch(sess, track)
}

func (o *Orchestrator) loadAmbient(sess *session) {
	track, err := o.opts.Player.Load(sess.ctx, o.opts.AmbientPath, PlayOptions{
		Volume: o.opts.AmbientVolume,
		Loop:   true,
	})
	if err != nil {
		if sess.ctx.Err() == nil {
			o.logger.Warn("ambient track unavailable", "path", o.opts.AmbientPath, "error", err)
		}
		return
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	if o.sess != sess {
		track.Stop()
		o.logger.Debug("discarding late ambient audio", "session", sess.id)
		return
	}
	sess.ambient = track
	if o.state == Playing {
		o.playAmbientLocked(sess)
	}
}

// playAmbientLocked starts the loaded ambient track. Ambient failures do
// not end the reading.
func (o *Orchestrator) playAmbientLocked(sess *session) {
	if err := sess.ambient.Play(); err != nil {
		o.logger.Warn("ambient playback failed", "session", sess.id, "error", err)
		sess.ambient.Stop()
		sess.ambient = nil
	}
}

func (o *Orchestrator) watch(sess *session, track Track) {
	select {
	case <-track.Done():
	case <-sess.ctx.Done():
		return
	}
	if err := track.Err(); err != nil {
		o.fail(sess, err)
		return
	}
	o.complete(sess)
}

func (o *Orchestrator) complete(sess *session) {
	o.mu.Lock()
	if o.sess != sess {
		o.mu.Unlock()
		return
	}
	go o.opts.Effects.Celebrate()
	o.fireLocked(EventFinished)
	o.fireLocked(EventReset)
	snap := o.snapshotLocked()
	o.mu.Unlock()

	o.logger.Info("narration completed", "session", sess.id)
	o.notify(snap)
}

func (o *Orchestrator) fail(sess *session, err error) {
	o.mu.Lock()
	if o.sess != sess {
		o.mu.Unlock()
		return
	}
	o.failLocked(sess, err)
	snap := o.snapshotLocked()
	o.mu.Unlock()
	o.notify(snap)
}

// failLocked records err for sess, then tears down through Failed to Idle.
// Service failures keep their category; anything else is a playback failure.
func (o *Orchestrator) failLocked(sess *session, err error) {
	var sErr *errors.StudioError
	if !stderrors.As(err, &sErr) {
		sErr = errors.NewPlaybackFailed(err)
	}
	sess.err = sErr
	o.lastErr = sErr
	o.logger.Warn("narration failed", "session", sess.id, "error", err)

	o.fireLocked(EventError)
	o.fireLocked(EventReset)
}

func (o *Orchestrator) toggleImage(sess *session) {
	o.mu.Lock()
	if o.sess != sess || o.state != Playing {
		o.mu.Unlock()
		return
	}
	sess.imageVisible = !sess.imageVisible
	sess.timer = o.opts.Clock.AfterFunc(o.opts.ImageToggle, func() { o.toggleImage(sess) })
	snap := o.snapshotLocked()
	o.mu.Unlock()
	o.notify(snap)
}

// fireLocked applies ev to the current state. It reports false when the
// event has no transition from the current state.
func (o *Orchestrator) fireLocked(ev Event) bool {
	t, ok := next(o.state, ev)
	if !ok {
		o.logger.Debug("ignoring event", "state", o.state, "event", ev)
		return false
	}
	if t.teardown {
		o.teardownLocked()
	}
	o.logger.Debug("transition", "from", o.state, "event", ev, "to", t.to)
	o.state = t.to
	return true
}

// teardownLocked releases every resource the active session holds.
func (o *Orchestrator) teardownLocked() {
	sess := o.sess
	if sess == nil {
		return
	}
	o.sess = nil
	sess.cancel()
	if sess.timer != nil {
		sess.timer.Stop()
		sess.timer = nil
	}
	if sess.narration != nil {
		sess.narration.Stop()
		sess.narration = nil
	}
	if sess.ambient != nil {
		sess.ambient.Stop()
		sess.ambient = nil
	}
	sess.imageVisible = false
	close(sess.done)
}

func (o *Orchestrator) snapshotLocked() Snapshot {
	snap := Snapshot{State: o.state}
	if o.sess != nil {
		snap.SessionID = o.sess.id
		snap.Active = true
		snap.ImageVisible = o.sess.imageVisible
	}
	if o.lastErr != nil {
		snap.Error = o.lastErr.Error()
	}
	return snap
}

func (o *Orchestrator) notify(snap Snapshot) {
	if o.opts.OnChange != nil {
		o.opts.OnChange(snap)
	}
}
