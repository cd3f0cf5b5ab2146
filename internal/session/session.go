// Package session holds the push-to-talk coordinator: the state machine
// that turns raw hotkey edges into record→transcribe→cleanup→deliver
// pipelines while owning the audio capture lifecycle.
package session

import (
	"errors"
	"sync"
	"time"

	"github.com/voxkey/voxkey/internal/audio"
	"github.com/voxkey/voxkey/internal/hotkey"
	"github.com/voxkey/voxkey/internal/logger"
	"github.com/voxkey/voxkey/internal/pipeline"
)

// State represents the coordinator state
type State int

const (
	// Idle means no session is live
	Idle State = iota
	// Recording means the audio stream is open and capturing
	Recording
	// Processing means captured audio is being transcribed and delivered
	Processing
	// ShuttingDown is the transient state passed through when the
	// failsafe forces an unresolved session back to Idle
	ShuttingDown
)

// String returns the string representation of the state
func (s State) String() string {
	switch s {
	case Idle:
		return "Idle"
	case Recording:
		return "Recording"
	case Processing:
		return "Processing"
	case ShuttingDown:
		return "ShuttingDown"
	default:
		return "Unknown"
	}
}

// Outcome is the session-level result pushed to observers
type Outcome int

const (
	// OutcomeDelivered means text reached the delivery sink
	OutcomeDelivered Outcome = iota
	// OutcomeSkipped means nothing was delivered (blank transcription)
	OutcomeSkipped
	// OutcomeFailed means a pipeline stage or the sink failed
	OutcomeFailed
	// OutcomeTimedOut means the failsafe forced the session back to idle
	OutcomeTimedOut
)

// String returns the string representation of the outcome
func (o Outcome) String() string {
	switch o {
	case OutcomeDelivered:
		return "Delivered"
	case OutcomeSkipped:
		return "Skipped"
	case OutcomeFailed:
		return "Failed"
	case OutcomeTimedOut:
		return "TimedOut"
	default:
		return "Unknown"
	}
}

// Timings records per-stage durations for the statistics stream
type Timings struct {
	Audio   time.Duration // captured audio length
	Process time.Duration // transcribe + cleanup
	Deliver time.Duration
}

// Event is pushed to observers when a session resolves. The coordinator
// pushes and never blocks: events are dropped when the observer is behind.
type Event struct {
	SessionID uint64
	Outcome   Outcome
	Text      string // delivered text, empty otherwise
	Raw       string // transcript before cleanup
	Timings   Timings
}

// Notifier is the user-visible channel for session-level errors. It must
// not call back into the coordinator.
type Notifier interface {
	Notify(title, message string)
	NotifyError(message string)
}

// Pipe is the processing work the coordinator dispatches off the hotkey
// path. Process may block for seconds; Deliver is called only after the
// coordinator confirms the session is still current.
type Pipe interface {
	Process(pcm []byte) pipeline.Result
	Deliver(text string) error
}

// Config holds coordinator configuration. The durations are product
// choices, not derived constraints, so they stay configurable.
type Config struct {
	Debounce  time.Duration // same-edge events closer than this are dropped
	Failsafe  time.Duration // hard bound on time spent in Processing
	MaxRecord time.Duration // recording longer than this is auto-stopped

	Notifier Notifier    // optional
	OnState  func(State) // optional; must not call back into the coordinator
}

// DefaultConfig returns the default coordinator configuration
func DefaultConfig() Config {
	return Config{
		Debounce:  100 * time.Millisecond,
		Failsafe:  30 * time.Second,
		MaxRecord: 60 * time.Second,
	}
}

// session is one record-to-deliver attempt. At most one is live at any
// instant; it is dropped when the coordinator returns to Idle.
type session struct {
	id        uint64
	startedAt time.Time
}

// pipelineDone carries a worker's result back to the coordinator
type pipelineDone struct {
	id      uint64
	result  pipeline.Result
	timings Timings
}

// Coordinator is the session state machine. Hotkey edges arrive on a
// thread it does not control; every transition and every capture call is
// serialized behind one mutex. Capture start/stop block briefly on hardware
// inside the lock; pipeline work runs on a worker goroutine strictly
// outside it and reports back over the results channel.
type Coordinator struct {
	capture audio.Capture
	pipe    Pipe
	log     *logger.Logger
	cfg     Config

	mu          sync.Mutex
	state       State
	current     *session
	nextID      uint64
	lastPress   time.Time
	lastRelease time.Time
	failsafe    *time.Timer
	maxTimer    *time.Timer

	results  chan pipelineDone
	events   chan Event
	stopChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// New creates a coordinator over the given capture and pipeline
func New(capture audio.Capture, pipe Pipe, log *logger.Logger, cfg Config) *Coordinator {
	return &Coordinator{
		capture:  capture,
		pipe:     pipe,
		log:      log,
		cfg:      cfg,
		state:    Idle,
		results:  make(chan pipelineDone, 1),
		events:   make(chan Event, 16),
		stopChan: make(chan struct{}),
	}
}

// Start begins consuming hotkey edge events in a background goroutine
func (c *Coordinator) Start(edges <-chan hotkey.Event) {
	c.wg.Add(1)
	go c.run(edges)
}

// run is the coordinator's event loop: hotkey edges in arrival order plus
// pipeline completions, one at a time.
func (c *Coordinator) run(edges <-chan hotkey.Event) {
	defer c.wg.Done()

	for {
		select {
		case edge, ok := <-edges:
			if !ok {
				return
			}
			switch edge.Type {
			case hotkey.Pressed:
				c.press(edge.At)
			case hotkey.Released:
				c.release(edge.At)
			}

		case done := <-c.results:
			c.complete(done)

		case <-c.stopChan:
			return
		}
	}
}

// Stop shuts the coordinator down: any live recording is cancelled and the
// event loop exits. A detached pipeline worker may still be running; its
// result is discarded.
func (c *Coordinator) Stop() {
	c.stopOnce.Do(func() { close(c.stopChan) })

	c.mu.Lock()
	if c.state == Recording {
		c.stopMaxTimerLocked()
		c.capture.Cancel()
		c.current = nil
		c.setStateLocked(Idle)
	}
	c.disarmFailsafeLocked()
	c.mu.Unlock()

	c.wg.Wait()
}

// Events returns the observer stream of resolved sessions
func (c *Coordinator) Events() <-chan Event {
	return c.events
}

// GetState returns the current state
func (c *Coordinator) GetState() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// accept applies the debounce window to one edge class. An accepted edge
// records its arrival time; a same-class edge inside the window is dropped
// before it reaches the transition table.
func (c *Coordinator) accept(last *time.Time, at time.Time) bool {
	if !last.IsZero() && at.Sub(*last) < c.cfg.Debounce {
		return false
	}
	*last = at
	return true
}

// press handles an accepted key-down edge
func (c *Coordinator) press(at time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.accept(&c.lastPress, at) {
		c.log.Debug("press debounced")
		return
	}

	if c.state != Idle {
		// Already recording or still processing the previous session
		c.log.Debug("press ignored in state %s", c.state)
		return
	}

	if err := c.capture.Start(); err != nil {
		c.log.Error("failed to start capture: %v", err)
		if errors.Is(err, audio.ErrDeviceUnavailable) {
			c.notifyError("Microphone unavailable. Check your input device.")
		} else {
			c.notifyError("Could not start recording.")
		}
		return
	}

	c.nextID++
	id := c.nextID
	c.current = &session{id: id, startedAt: at}
	c.setStateLocked(Recording)
	c.log.Info("session %d: recording started", id)

	if c.cfg.MaxRecord > 0 {
		c.maxTimer = time.AfterFunc(c.cfg.MaxRecord, func() { c.autoStop(id) })
	}
}

// release handles an accepted key-up edge
func (c *Coordinator) release(at time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.accept(&c.lastRelease, at) {
		c.log.Debug("release debounced")
		return
	}

	if c.state != Recording {
		// Spurious release (e.g. key was down before startup)
		c.log.Debug("release ignored in state %s", c.state)
		return
	}

	c.finishRecordingLocked()
}

// autoStop fires when a recording hits the maximum duration. It bypasses
// the debounce filter: the stop is synthetic, not a hardware edge.
func (c *Coordinator) autoStop(id uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != Recording || c.current == nil || c.current.id != id {
		return
	}

	c.log.Warn("session %d: max recording time reached, stopping", id)
	c.finishRecordingLocked()
}

// finishRecordingLocked stops the capture and either abandons the session
// (too short, hardware error) or moves it to Processing and dispatches the
// pipeline worker.
func (c *Coordinator) finishRecordingLocked() {
	sess := c.current
	c.stopMaxTimerLocked()

	pcm, duration, err := c.capture.Stop()
	if err != nil {
		c.current = nil
		c.setStateLocked(Idle)

		if errors.Is(err, audio.ErrTooShort) {
			// A no-op session, not an error toward the user
			c.log.Info("session %d: %v (%v), abandoned", sess.id, err, duration)
			return
		}

		c.log.Error("session %d: failed to stop capture: %v", sess.id, err)
		c.notifyError("Recording failed.")
		return
	}

	c.setStateLocked(Processing)
	c.armFailsafeLocked(sess.id)
	c.log.Info("session %d: captured %v of audio, processing", sess.id, duration)

	go c.runPipeline(sess.id, pcm, duration)
}

// runPipeline executes the slow stages outside the lock. Delivery is gated
// on the session still being current; a stale result is discarded without
// touching the sink or the state machine. The worker is deliberately not
// joined on shutdown: a collaborator stuck inside Process must not keep
// Stop from returning.
func (c *Coordinator) runPipeline(id uint64, pcm []byte, audioLen time.Duration) {
	started := time.Now()
	result := c.pipe.Process(pcm)
	timings := Timings{Audio: audioLen, Process: time.Since(started)}

	if result.Outcome == pipeline.Delivered {
		if !c.stillCurrent(id) {
			c.log.Warn("session %d: superseded before delivery, result discarded", id)
			return
		}

		deliverStart := time.Now()
		if err := c.pipe.Deliver(result.Text); err != nil {
			result = pipeline.Result{Outcome: pipeline.Failed, Raw: result.Raw, Err: err}
		}
		timings.Deliver = time.Since(deliverStart)
	}

	select {
	case c.results <- pipelineDone{id: id, result: result, timings: timings}:
	case <-c.stopChan:
	}
}

// stillCurrent reports whether the given session is still the one being
// processed. Session ids exist precisely to make this check possible.
func (c *Coordinator) stillCurrent(id uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state == Processing && c.current != nil && c.current.id == id
}

// complete resolves a session with its pipeline result. A result for a
// superseded session id is a no-op: the failsafe already reset the state.
func (c *Coordinator) complete(done pipelineDone) {
	c.mu.Lock()

	if c.state != Processing || c.current == nil || c.current.id != done.id {
		c.mu.Unlock()
		c.log.Debug("discarding late result for session %d", done.id)
		return
	}

	c.disarmFailsafeLocked()
	c.current = nil

	ev := Event{SessionID: done.id, Raw: done.result.Raw, Timings: done.timings}
	switch done.result.Outcome {
	case pipeline.Delivered:
		ev.Outcome = OutcomeDelivered
		ev.Text = done.result.Text
	case pipeline.Skipped:
		ev.Outcome = OutcomeSkipped
	case pipeline.Failed:
		ev.Outcome = OutcomeFailed
	}
	c.emitLocked(ev)
	c.setStateLocked(Idle)
	c.mu.Unlock()

	switch done.result.Outcome {
	case pipeline.Delivered:
		c.log.Info("session %d: delivered %d characters", done.id, len(done.result.Text))
	case pipeline.Skipped:
		c.log.Info("session %d: skipped, no speech detected", done.id)
	case pipeline.Failed:
		c.log.Error("session %d: %v", done.id, done.result.Err)
		c.notifyError("Transcription failed.")
	}
}

// Cancel abandons a live recording without dispatching the pipeline. It is
// idempotent: cancelling when nothing records is a no-op, and the capture's
// own Cancel tolerates an already-closed stream.
func (c *Coordinator) Cancel() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != Recording {
		return
	}

	id := c.current.id
	c.stopMaxTimerLocked()
	c.capture.Cancel()
	c.current = nil
	c.setStateLocked(Idle)
	c.log.Info("session %d: cancelled", id)
}

// armFailsafeLocked bounds the time spent in Processing. Whatever the
// pipeline does, the coordinator is back in Idle within the failsafe.
func (c *Coordinator) armFailsafeLocked(id uint64) {
	c.disarmFailsafeLocked()
	c.failsafe = time.AfterFunc(c.cfg.Failsafe, func() { c.failsafeFired(id) })
}

// disarmFailsafeLocked stops a pending failsafe timer
func (c *Coordinator) disarmFailsafeLocked() {
	if c.failsafe != nil {
		c.failsafe.Stop()
		c.failsafe = nil
	}
}

// stopMaxTimerLocked stops a pending auto-stop timer
func (c *Coordinator) stopMaxTimerLocked() {
	if c.maxTimer != nil {
		c.maxTimer.Stop()
		c.maxTimer = nil
	}
}

// failsafeFired forces an unresolved session back to Idle. The worker is
// detached, not killed: collaborator calls may be uninterruptible. Its late
// result fails the stillCurrent/complete checks and is dropped.
func (c *Coordinator) failsafeFired(id uint64) {
	c.mu.Lock()

	if c.state != Processing || c.current == nil || c.current.id != id {
		c.mu.Unlock()
		return
	}

	c.log.Warn("session %d: failsafe after %v, forcing idle", id, c.cfg.Failsafe)
	c.failsafe = nil
	c.current = nil
	c.setStateLocked(ShuttingDown)
	c.emitLocked(Event{SessionID: id, Outcome: OutcomeTimedOut})
	c.setStateLocked(Idle)
	c.mu.Unlock()

	if c.cfg.Notifier != nil {
		c.cfg.Notifier.Notify("VoxKey", "Processing took too long and was abandoned.")
	}
}

// setStateLocked updates the state and fires the state hook
func (c *Coordinator) setStateLocked(state State) {
	c.state = state
	if c.cfg.OnState != nil {
		c.cfg.OnState(state)
	}
}

// emitLocked pushes an observer event without blocking the coordinator
func (c *Coordinator) emitLocked(ev Event) {
	select {
	case c.events <- ev:
	default:
		c.log.Debug("observer behind, dropping event for session %d", ev.SessionID)
	}
}

// notifyError reports a session-level error on the user-visible channel
func (c *Coordinator) notifyError(message string) {
	if c.cfg.Notifier != nil {
		c.cfg.Notifier.NotifyError(message)
	}
}
