package pipeline

import (
	"errors"
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/voxkey/voxkey/internal/cleanup"
	"github.com/voxkey/voxkey/internal/logger"
)

// Errors crossing the pipeline's collaborator boundaries.
var (
	// ErrEngineUnavailable means the transcription engine could not run
	ErrEngineUnavailable = errors.New("transcription engine unavailable")
	// ErrSinkUnavailable means text could not be handed to the delivery sink
	ErrSinkUnavailable = errors.New("delivery sink unavailable")
)

// Transcriber converts captured PCM audio into text
type Transcriber interface {
	Transcribe(pcm []byte, sampleRate int) (string, error)
}

// Cleaner reformats a raw transcript. Output is not trusted: it passes
// through cleanup.Sanitize before use.
type Cleaner interface {
	Clean(text string) (string, error)
}

// Sink receives the final text (paste simulation into the foreground app)
type Sink interface {
	Deliver(text string) error
}

// Outcome is the terminal result of one session's processing
type Outcome int

const (
	// Delivered means text was produced; it becomes final once the
	// coordinator gates the session and the sink call succeeds
	Delivered Outcome = iota
	// Skipped means there was nothing worth delivering
	Skipped
	// Failed means a stage failed
	Failed
)

// String returns the string representation of the outcome
func (o Outcome) String() string {
	switch o {
	case Delivered:
		return "Delivered"
	case Skipped:
		return "Skipped"
	case Failed:
		return "Failed"
	default:
		return "Unknown"
	}
}

// SkipReason says why a session produced nothing
type SkipReason int

const (
	SkipNone SkipReason = iota
	// SkipEmpty means the transcription came back blank
	SkipEmpty
)

// Result is produced exactly once per processed session
type Result struct {
	Outcome Outcome
	Skip    SkipReason
	Text    string // final text when Outcome is Delivered
	Raw     string // transcript before cleanup
	Err     error  // cause when Outcome is Failed
}

// Pipeline runs the stateless processing stages over the external
// collaborators. It holds no session state; the coordinator decides when to
// run it and whether its output may still be delivered.
type Pipeline struct {
	transcriber    Transcriber
	cleaner        Cleaner
	sink           Sink
	log            *logger.Logger
	sampleRate     int
	cleanupEnabled atomic.Bool
}

// New creates a pipeline over the given collaborators. cleaner may be nil,
// in which case the local formatter stands in for the engine.
func New(transcriber Transcriber, cleaner Cleaner, sink Sink, log *logger.Logger, sampleRate int) *Pipeline {
	return &Pipeline{
		transcriber: transcriber,
		cleaner:     cleaner,
		sink:        sink,
		log:         log,
		sampleRate:  sampleRate,
	}
}

// SetCleanupEnabled toggles the cleanup stage
func (p *Pipeline) SetCleanupEnabled(enabled bool) {
	p.cleanupEnabled.Store(enabled)
}

// CleanupEnabled returns whether the cleanup stage is active
func (p *Pipeline) CleanupEnabled() bool {
	return p.cleanupEnabled.Load()
}

// Process runs transcription and cleanup over the captured samples. It may
// block for seconds and must never run under the coordinator's lock.
// Delivery is separate (Deliver) so the coordinator can check that the
// session is still current first.
func (p *Pipeline) Process(pcm []byte) Result {
	raw, err := p.transcriber.Transcribe(pcm, p.sampleRate)
	if err != nil {
		return Result{Outcome: Failed, Err: fmt.Errorf("transcribe: %w", err)}
	}

	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Result{Outcome: Skipped, Skip: SkipEmpty}
	}

	text := raw
	if p.cleanupEnabled.Load() {
		text = p.clean(raw)
	}

	return Result{Outcome: Delivered, Text: text, Raw: raw}
}

// clean runs the cleanup stage. Engine failures and malformed output are
// recovered locally and never surfaced; the user always gets a transcript.
func (p *Pipeline) clean(raw string) string {
	if p.cleaner == nil {
		return cleanup.FormatLocal(raw)
	}

	out, err := p.cleaner.Clean(raw)
	if err != nil {
		p.log.Warn("cleanup engine failed, using local formatter: %v", err)
		return cleanup.FormatLocal(raw)
	}

	return cleanup.Sanitize(out, raw)
}

// Deliver hands the final text to the sink
func (p *Pipeline) Deliver(text string) error {
	if err := p.sink.Deliver(text); err != nil {
		return fmt.Errorf("%w: %w", ErrSinkUnavailable, err)
	}
	return nil
}
