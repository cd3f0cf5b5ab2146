package session

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/voxkey/voxkey/internal/audio"
	"github.com/voxkey/voxkey/internal/hotkey"
	"github.com/voxkey/voxkey/internal/logger"
	"github.com/voxkey/voxkey/internal/pipeline"
)

// fakeCapture implements audio.Capture and fails the test if Start is
// called while a stream is already open.
type fakeCapture struct {
	mu          sync.Mutex
	open        bool
	startCount  int
	stopCount   int
	cancelCount int
	startErr    error
	stopErr     error
	pcm         []byte
	duration    time.Duration
}

func (f *fakeCapture) Start() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.startErr != nil {
		return f.startErr
	}
	if f.open {
		return fmt.Errorf("stream already open")
	}
	f.open = true
	f.startCount++
	return nil
}

func (f *fakeCapture) Stop() ([]byte, time.Duration, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.open = false
	f.stopCount++
	if f.stopErr != nil {
		return nil, f.duration, f.stopErr
	}
	return f.pcm, f.duration, nil
}

func (f *fakeCapture) Cancel() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.open = false
	f.cancelCount++
}

func (f *fakeCapture) Close() error { return nil }

func (f *fakeCapture) counts() (starts, stops, cancels int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.startCount, f.stopCount, f.cancelCount
}

// fakePipe implements Pipe with a controllable result and an optional
// block that holds Process until released.
type fakePipe struct {
	mu           sync.Mutex
	result       pipeline.Result
	deliverErr   error
	delivered    []string
	processCount int
	block        chan struct{}
}

func (f *fakePipe) Process(pcm []byte) pipeline.Result {
	f.mu.Lock()
	f.processCount++
	block := f.block
	result := f.result
	f.mu.Unlock()

	if block != nil {
		<-block
	}
	return result
}

func (f *fakePipe) Deliver(text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.deliverErr != nil {
		return f.deliverErr
	}
	f.delivered = append(f.delivered, text)
	return nil
}

func (f *fakePipe) deliveredTexts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.delivered...)
}

type fakeNotifier struct {
	mu       sync.Mutex
	messages []string
	errors   []string
}

func (f *fakeNotifier) Notify(title, message string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.messages = append(f.messages, message)
}

func (f *fakeNotifier) NotifyError(message string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errors = append(f.errors, message)
}

func (f *fakeNotifier) errorCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.errors)
}

func testLogger(t *testing.T) *logger.Logger {
	t.Helper()
	l, err := logger.New(logger.Config{
		LogDir:        t.TempDir(),
		Level:         logger.ERROR,
		RetentionDays: 1,
	})
	if err != nil {
		t.Fatalf("Failed to create logger: %v", err)
	}
	t.Cleanup(func() { l.Close() })
	return l
}

type fixture struct {
	capture  *fakeCapture
	pipe     *fakePipe
	notifier *fakeNotifier
	coord    *Coordinator
	edges    chan hotkey.Event
}

func newFixture(t *testing.T, cfg Config) *fixture {
	t.Helper()

	f := &fixture{
		capture: &fakeCapture{
			pcm:      []byte{1, 2, 3, 4},
			duration: time.Second,
		},
		pipe: &fakePipe{
			result: pipeline.Result{Outcome: pipeline.Delivered, Text: "Hello world.", Raw: "hello world"},
		},
		notifier: &fakeNotifier{},
		edges:    make(chan hotkey.Event, 16),
	}

	cfg.Notifier = f.notifier
	f.coord = New(f.capture, f.pipe, testLogger(t), cfg)
	f.coord.Start(f.edges)
	t.Cleanup(f.coord.Stop)

	return f
}

func (f *fixture) press(at time.Time) {
	f.edges <- hotkey.Event{Type: hotkey.Pressed, At: at}
}

func (f *fixture) release(at time.Time) {
	f.edges <- hotkey.Event{Type: hotkey.Released, At: at}
}

func waitForState(t *testing.T, c *Coordinator, want State) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if c.GetState() == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("Timed out waiting for state %s, current state %s", want, c.GetState())
}

func waitForEvent(t *testing.T, c *Coordinator) Event {
	t.Helper()
	select {
	case ev := <-c.Events():
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("Timed out waiting for session event")
		return Event{}
	}
}

func TestPressStartsRecording(t *testing.T) {
	f := newFixture(t, DefaultConfig())

	f.press(time.Now())
	waitForState(t, f.coord, Recording)

	starts, _, _ := f.capture.counts()
	if starts != 1 {
		t.Errorf("Expected 1 capture start, got %d", starts)
	}
}

func TestFullSessionDelivers(t *testing.T) {
	f := newFixture(t, DefaultConfig())

	t0 := time.Now()
	f.press(t0)
	waitForState(t, f.coord, Recording)
	f.release(t0.Add(1200 * time.Millisecond))

	ev := waitForEvent(t, f.coord)
	if ev.Outcome != OutcomeDelivered {
		t.Fatalf("Expected OutcomeDelivered, got %s", ev.Outcome)
	}
	if ev.Text != "Hello world." {
		t.Errorf("Expected delivered text 'Hello world.', got %q", ev.Text)
	}
	if ev.Raw != "hello world" {
		t.Errorf("Expected raw transcript 'hello world', got %q", ev.Raw)
	}
	if ev.Timings.Audio != time.Second {
		t.Errorf("Expected audio timing 1s, got %v", ev.Timings.Audio)
	}

	waitForState(t, f.coord, Idle)

	delivered := f.pipe.deliveredTexts()
	if len(delivered) != 1 || delivered[0] != "Hello world." {
		t.Errorf("Expected one delivery of 'Hello world.', got %v", delivered)
	}

	starts, stops, _ := f.capture.counts()
	if starts != 1 || stops != 1 {
		t.Errorf("Expected 1 start and 1 stop, got %d starts, %d stops", starts, stops)
	}
}

func TestDebounceWindow(t *testing.T) {
	c := New(&fakeCapture{}, &fakePipe{}, testLogger(t), DefaultConfig())

	t0 := time.Now()
	tests := []struct {
		name   string
		at     time.Time
		accept bool
	}{
		{"first edge always accepted", t0, true},
		{"inside window dropped", t0.Add(50 * time.Millisecond), false},
		{"still inside window", t0.Add(99 * time.Millisecond), false},
		{"outside window accepted", t0.Add(250 * time.Millisecond), true},
	}

	var last time.Time
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := c.accept(&last, tt.at); got != tt.accept {
				t.Errorf("Expected accept=%v, got %v", tt.accept, got)
			}
		})
	}
}

func TestDebounceTracksEdgeClassesSeparately(t *testing.T) {
	// A press followed 50ms later by a release is a legitimate quick
	// dictation, not bounce. Only same-class edges share a window.
	f := newFixture(t, DefaultConfig())

	t0 := time.Now()
	f.press(t0)
	waitForState(t, f.coord, Recording)
	f.release(t0.Add(50 * time.Millisecond))

	ev := waitForEvent(t, f.coord)
	if ev.Outcome != OutcomeDelivered {
		t.Errorf("Expected quick press-release to deliver, got %s", ev.Outcome)
	}
}

func TestRepeatPressWhileRecordingIgnored(t *testing.T) {
	f := newFixture(t, DefaultConfig())

	t0 := time.Now()
	f.press(t0)
	waitForState(t, f.coord, Recording)

	// Outside the debounce window but the state machine is not Idle
	f.press(t0.Add(300 * time.Millisecond))
	f.press(t0.Add(600 * time.Millisecond))

	f.release(t0.Add(900 * time.Millisecond))
	waitForEvent(t, f.coord)
	waitForState(t, f.coord, Idle)

	starts, stops, _ := f.capture.counts()
	if starts != 1 {
		t.Errorf("Expected exactly 1 capture start, got %d", starts)
	}
	if stops != 1 {
		t.Errorf("Expected exactly 1 capture stop, got %d", stops)
	}
}

func TestReleaseWhileIdleIgnored(t *testing.T) {
	f := newFixture(t, DefaultConfig())

	f.release(time.Now())

	// Give the loop a moment, then confirm nothing happened
	time.Sleep(50 * time.Millisecond)
	if state := f.coord.GetState(); state != Idle {
		t.Errorf("Expected Idle after spurious release, got %s", state)
	}
	_, stops, _ := f.capture.counts()
	if stops != 0 {
		t.Errorf("Expected no capture stops, got %d", stops)
	}
}

func TestTooShortRecordingAbandoned(t *testing.T) {
	f := newFixture(t, DefaultConfig())
	f.capture.stopErr = audio.ErrTooShort
	f.capture.duration = 100 * time.Millisecond

	t0 := time.Now()
	f.press(t0)
	waitForState(t, f.coord, Recording)
	f.release(t0.Add(150 * time.Millisecond))
	waitForState(t, f.coord, Idle)

	f.pipe.mu.Lock()
	processed := f.pipe.processCount
	f.pipe.mu.Unlock()
	if processed != 0 {
		t.Errorf("Expected pipeline not dispatched for short recording, got %d calls", processed)
	}

	// Too-short is a quiet no-op, not a user-facing error
	if n := f.notifier.errorCount(); n != 0 {
		t.Errorf("Expected no error notifications, got %d", n)
	}

	// The stream must still have been closed
	_, stops, _ := f.capture.counts()
	if stops != 1 {
		t.Errorf("Expected 1 capture stop, got %d", stops)
	}
}

func TestFailsafeForcesIdleAndDiscardsResult(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Failsafe = 50 * time.Millisecond

	f := newFixture(t, cfg)
	block := make(chan struct{})
	f.pipe.block = block

	t0 := time.Now()
	f.press(t0)
	waitForState(t, f.coord, Recording)
	f.release(t0.Add(time.Second))
	waitForState(t, f.coord, Processing)

	ev := waitForEvent(t, f.coord)
	if ev.Outcome != OutcomeTimedOut {
		t.Fatalf("Expected OutcomeTimedOut, got %s", ev.Outcome)
	}
	waitForState(t, f.coord, Idle)

	// Now let the stuck worker finish. Its result is stale and must not
	// reach the sink.
	close(block)
	time.Sleep(100 * time.Millisecond)

	if delivered := f.pipe.deliveredTexts(); len(delivered) != 0 {
		t.Errorf("Expected no delivery after timeout, got %v", delivered)
	}
	if state := f.coord.GetState(); state != Idle {
		t.Errorf("Expected Idle after late result, got %s", state)
	}
}

func TestNewSessionAfterFailsafe(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Failsafe = 50 * time.Millisecond

	f := newFixture(t, cfg)
	block := make(chan struct{})
	f.pipe.block = block

	t0 := time.Now()
	f.press(t0)
	waitForState(t, f.coord, Recording)
	f.release(t0.Add(time.Second))

	ev := waitForEvent(t, f.coord)
	if ev.Outcome != OutcomeTimedOut {
		t.Fatalf("Expected OutcomeTimedOut, got %s", ev.Outcome)
	}
	waitForState(t, f.coord, Idle)

	// A fresh session starts fine while the old worker is still stuck
	f.pipe.mu.Lock()
	f.pipe.block = nil
	f.pipe.mu.Unlock()

	t1 := t0.Add(5 * time.Second)
	f.press(t1)
	waitForState(t, f.coord, Recording)
	f.release(t1.Add(time.Second))

	ev = waitForEvent(t, f.coord)
	if ev.Outcome != OutcomeDelivered {
		t.Fatalf("Expected second session to deliver, got %s", ev.Outcome)
	}

	close(block)
	time.Sleep(100 * time.Millisecond)

	// Only the second session's text reached the sink
	if delivered := f.pipe.deliveredTexts(); len(delivered) != 1 {
		t.Errorf("Expected exactly 1 delivery, got %v", delivered)
	}
}

func TestStopReturnsWhileWorkerStuck(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Failsafe = 50 * time.Millisecond

	f := newFixture(t, cfg)
	block := make(chan struct{})
	f.pipe.block = block
	t.Cleanup(func() { close(block) })

	t0 := time.Now()
	f.press(t0)
	waitForState(t, f.coord, Recording)
	f.release(t0.Add(time.Second))

	ev := waitForEvent(t, f.coord)
	if ev.Outcome != OutcomeTimedOut {
		t.Fatalf("Expected OutcomeTimedOut, got %s", ev.Outcome)
	}
	waitForState(t, f.coord, Idle)

	// The worker is still parked inside Process. Shutdown must not wait
	// for it.
	done := make(chan struct{})
	go func() {
		f.coord.Stop()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop did not return while a pipeline worker was stuck")
	}
}

func TestSinkFailureReported(t *testing.T) {
	f := newFixture(t, DefaultConfig())
	f.pipe.deliverErr = errors.New("paste failed")

	t0 := time.Now()
	f.press(t0)
	waitForState(t, f.coord, Recording)
	f.release(t0.Add(time.Second))

	ev := waitForEvent(t, f.coord)
	if ev.Outcome != OutcomeFailed {
		t.Fatalf("Expected OutcomeFailed, got %s", ev.Outcome)
	}
	waitForState(t, f.coord, Idle)

	if n := f.notifier.errorCount(); n != 1 {
		t.Errorf("Expected 1 error notification, got %d", n)
	}
}

func TestEmptyTranscriptionSkipped(t *testing.T) {
	f := newFixture(t, DefaultConfig())
	f.pipe.result = pipeline.Result{Outcome: pipeline.Skipped, Skip: pipeline.SkipEmpty}

	t0 := time.Now()
	f.press(t0)
	waitForState(t, f.coord, Recording)
	f.release(t0.Add(time.Second))

	ev := waitForEvent(t, f.coord)
	if ev.Outcome != OutcomeSkipped {
		t.Fatalf("Expected OutcomeSkipped, got %s", ev.Outcome)
	}
	if len(f.pipe.deliveredTexts()) != 0 {
		t.Error("Expected nothing delivered for empty transcription")
	}
	if n := f.notifier.errorCount(); n != 0 {
		t.Errorf("Expected silence toward the user, got %d error notifications", n)
	}
}

func TestCancelIsIdempotent(t *testing.T) {
	f := newFixture(t, DefaultConfig())

	f.press(time.Now())
	waitForState(t, f.coord, Recording)

	f.coord.Cancel()
	if state := f.coord.GetState(); state != Idle {
		t.Fatalf("Expected Idle after cancel, got %s", state)
	}

	// Second and third cancels are no-ops
	f.coord.Cancel()
	f.coord.Cancel()

	_, _, cancels := f.capture.counts()
	if cancels != 1 {
		t.Errorf("Expected 1 capture cancel, got %d", cancels)
	}
}

func TestCancelWhileIdleIsNoOp(t *testing.T) {
	f := newFixture(t, DefaultConfig())

	f.coord.Cancel()

	_, _, cancels := f.capture.counts()
	if cancels != 0 {
		t.Errorf("Expected no capture cancels, got %d", cancels)
	}
}

func TestMaxRecordAutoStops(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxRecord = 50 * time.Millisecond

	f := newFixture(t, cfg)

	f.press(time.Now())
	waitForState(t, f.coord, Recording)

	// No release: the auto-stop timer finishes the recording
	ev := waitForEvent(t, f.coord)
	if ev.Outcome != OutcomeDelivered {
		t.Fatalf("Expected auto-stopped session to deliver, got %s", ev.Outcome)
	}

	_, stops, _ := f.capture.counts()
	if stops != 1 {
		t.Errorf("Expected 1 capture stop, got %d", stops)
	}
}

func TestDeviceUnavailableNotifies(t *testing.T) {
	f := newFixture(t, DefaultConfig())
	f.capture.startErr = fmt.Errorf("wrapped: %w", audio.ErrDeviceUnavailable)

	f.press(time.Now())

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) && f.notifier.errorCount() == 0 {
		time.Sleep(5 * time.Millisecond)
	}
	if n := f.notifier.errorCount(); n != 1 {
		t.Fatalf("Expected 1 error notification, got %d", n)
	}
	if state := f.coord.GetState(); state != Idle {
		t.Errorf("Expected Idle after failed start, got %s", state)
	}
}

func TestStopCancelsLiveRecording(t *testing.T) {
	f := newFixture(t, DefaultConfig())

	f.press(time.Now())
	waitForState(t, f.coord, Recording)

	f.coord.Stop()

	_, _, cancels := f.capture.counts()
	if cancels != 1 {
		t.Errorf("Expected 1 capture cancel on stop, got %d", cancels)
	}
}

func TestStreamAccountingAcrossSessions(t *testing.T) {
	f := newFixture(t, DefaultConfig())

	at := time.Now()
	for i := 0; i < 5; i++ {
		f.press(at)
		waitForState(t, f.coord, Recording)
		at = at.Add(time.Second)
		f.release(at)
		waitForEvent(t, f.coord)
		waitForState(t, f.coord, Idle)
		at = at.Add(time.Second)
	}

	starts, stops, cancels := f.capture.counts()
	if starts != 5 {
		t.Errorf("Expected 5 starts, got %d", starts)
	}
	if stops+cancels != 5 {
		t.Errorf("Expected every start matched by a stop or cancel, got %d stops, %d cancels", stops, cancels)
	}
}

func TestSessionIDsAreMonotonic(t *testing.T) {
	f := newFixture(t, DefaultConfig())

	at := time.Now()
	var lastID uint64
	for i := 0; i < 3; i++ {
		f.press(at)
		waitForState(t, f.coord, Recording)
		at = at.Add(time.Second)
		f.release(at)
		ev := waitForEvent(t, f.coord)
		if ev.SessionID <= lastID {
			t.Errorf("Expected session id > %d, got %d", lastID, ev.SessionID)
		}
		lastID = ev.SessionID
		waitForState(t, f.coord, Idle)
		at = at.Add(time.Second)
	}
}

func TestStateStrings(t *testing.T) {
	tests := []struct {
		state State
		want  string
	}{
		{Idle, "Idle"},
		{Recording, "Recording"},
		{Processing, "Processing"},
		{ShuttingDown, "ShuttingDown"},
		{State(99), "Unknown"},
	}

	for _, tt := range tests {
		if got := tt.state.String(); got != tt.want {
			t.Errorf("Expected %q, got %q", tt.want, got)
		}
	}
}
