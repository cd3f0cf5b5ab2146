package audio

import (
	"errors"
	"time"
)

// Device represents an audio input device
type Device struct {
	ID        int
	Name      string
	IsDefault bool
}

// Errors returned by a Capture implementation.
var (
	// ErrDeviceUnavailable means no usable input device is present
	ErrDeviceUnavailable = errors.New("audio input device unavailable")
	// ErrTooShort means the captured audio is below the minimum duration.
	// The stream is already closed when this is returned; it is a
	// business-rule failure, not a hardware one.
	ErrTooShort = errors.New("recording too short")
	// ErrNotRecording means Stop was called without a running capture
	ErrNotRecording = errors.New("not recording")
)

// Config holds audio capture configuration
type Config struct {
	DeviceID    int
	SampleRate  int
	Channels    int
	MinDuration time.Duration
}

// DefaultConfig returns the default capture configuration
// Sample rate: 16kHz (what the recognizer expects)
// Channels: 1 (mono)
// MinDuration: 500ms (shorter recordings are discarded)
func DefaultConfig() Config {
	return Config{
		DeviceID:    -1, // -1 means use default device
		SampleRate:  16000,
		Channels:    1,
		MinDuration: 500 * time.Millisecond,
	}
}

// Capture owns the single audio input stream. A stream opened by Start is
// closed by exactly one of Stop, Cancel or Close, and a new stream is never
// opened before the previous one is fully released. Callers must serialize
// access (the session coordinator does); implementations additionally guard
// their own state with a mutex.
type Capture interface {
	// Start tears down any stream left over from a previous session, then
	// opens and starts a fresh input stream.
	Start() error

	// Stop flushes and closes the stream and returns the captured 16-bit
	// PCM data along with the captured duration. Returns ErrTooShort when
	// the duration is below Config.MinDuration; the stream is closed on
	// that path too.
	Stop() ([]byte, time.Duration, error)

	// Cancel closes the stream without retrieving samples. It never fails
	// outwardly; close errors are logged and swallowed because the caller
	// has no use for them.
	Cancel()

	// Close releases the driver and any open stream
	Close() error
}
