package audio

import (
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/gordonklaus/portaudio"
)

// PortAudioCapture implements Capture using PortAudio. The stream is opened
// per recording session, not at initialization: the hardware handle exists
// only between Start and the matching Stop/Cancel.
type PortAudioCapture struct {
	config    Config
	mu        sync.Mutex
	stream    *portaudio.Stream
	buffer    []int16
	startedAt time.Time
	recording bool
}

// NewPortAudioCapture initializes PortAudio and returns a capture bound to
// the configured device.
func NewPortAudioCapture(config Config) (*PortAudioCapture, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("failed to initialize PortAudio: %w", err)
	}

	return &PortAudioCapture{
		config: config,
		buffer: make([]int16, 0, 1024*1024),
	}, nil
}

// ListDevices returns the available audio input devices
func (c *PortAudioCapture) ListDevices() ([]Device, error) {
	devices, err := portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("failed to list devices: %w", err)
	}

	defaultInput, err := portaudio.DefaultInputDevice()
	if err != nil {
		// No default device; continue without marking one
		defaultInput = nil
	}

	var result []Device
	for i, dev := range devices {
		if dev.MaxInputChannels > 0 {
			result = append(result, Device{
				ID:        i,
				Name:      dev.Name,
				IsDefault: defaultInput != nil && dev.Name == defaultInput.Name,
			})
		}
	}

	return result, nil
}

// SetDevice changes the input device for subsequent recordings. A stream
// already running keeps its original device.
func (c *PortAudioCapture) SetDevice(id int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.config.DeviceID = id
}

// inputDevice resolves the configured device ID to a PortAudio device
func (c *PortAudioCapture) inputDevice() (*portaudio.DeviceInfo, error) {
	if c.config.DeviceID == -1 {
		device, err := portaudio.DefaultInputDevice()
		if err != nil {
			return nil, fmt.Errorf("%w: no default input device", ErrDeviceUnavailable)
		}
		return device, nil
	}

	devices, err := portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("%w: failed to list devices", ErrDeviceUnavailable)
	}

	if c.config.DeviceID < 0 || c.config.DeviceID >= len(devices) {
		return nil, fmt.Errorf("%w: invalid device ID %d", ErrDeviceUnavailable, c.config.DeviceID)
	}

	device := devices[c.config.DeviceID]
	if device.MaxInputChannels <= 0 {
		return nil, fmt.Errorf("%w: device %q has no input channels", ErrDeviceUnavailable, device.Name)
	}

	return device, nil
}

// callback is called by PortAudio when audio data is available
func (c *PortAudioCapture) callback(in []int16) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.recording {
		c.buffer = append(c.buffer, in...)
	}
}

// Start opens a fresh input stream after clearing any leftover one.
// A leftover stream means a previous session ended abnormally; its close
// errors are logged and swallowed so a fresh session can still begin.
func (c *PortAudioCapture) Start() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.teardownLocked()

	device, err := c.inputDevice()
	if err != nil {
		return err
	}

	streamParams := portaudio.StreamParameters{
		Input: portaudio.StreamDeviceParameters{
			Device:   device,
			Channels: c.config.Channels,
			Latency:  device.DefaultHighInputLatency,
		},
		SampleRate:      float64(c.config.SampleRate),
		FramesPerBuffer: 1024,
	}

	stream, err := portaudio.OpenStream(streamParams, c.callback)
	if err != nil {
		return fmt.Errorf("failed to open stream: %w", err)
	}

	if err := stream.Start(); err != nil {
		if closeErr := stream.Close(); closeErr != nil {
			log.Printf("audio: failed to close unstarted stream: %v", closeErr)
		}
		return fmt.Errorf("failed to start stream: %w", err)
	}

	c.stream = stream
	c.buffer = c.buffer[:0]
	c.startedAt = time.Now()
	c.recording = true

	return nil
}

// Stop closes the stream and returns the captured samples. The stream is
// released on every path, including ErrTooShort.
func (c *PortAudioCapture) Stop() ([]byte, time.Duration, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.recording {
		return nil, 0, ErrNotRecording
	}

	duration := time.Since(c.startedAt)
	c.recording = false

	if err := c.stream.Stop(); err != nil {
		// The handle may already be in a bad state; still attempt the close
		log.Printf("audio: failed to stop stream: %v", err)
	}
	if err := c.stream.Close(); err != nil {
		c.stream = nil
		return nil, duration, fmt.Errorf("failed to close stream: %w", err)
	}
	c.stream = nil

	if duration < c.config.MinDuration {
		return nil, duration, ErrTooShort
	}

	// Convert int16 samples to little-endian bytes
	data := make([]byte, len(c.buffer)*2)
	for i, sample := range c.buffer {
		data[i*2] = byte(sample)
		data[i*2+1] = byte(sample >> 8)
	}

	return data, duration, nil
}

// Cancel discards the current stream without retrieving samples
func (c *PortAudioCapture) Cancel() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.teardownLocked()
	c.recording = false
}

// teardownLocked releases the stream if one is open. Errors are swallowed
// after logging: the handle may already be in an error state and the caller
// must not be blocked from returning to idle.
func (c *PortAudioCapture) teardownLocked() {
	if c.stream == nil {
		return
	}

	if err := c.stream.Stop(); err != nil {
		log.Printf("audio: failed to stop leftover stream: %v", err)
	}
	if err := c.stream.Close(); err != nil {
		log.Printf("audio: failed to close leftover stream: %v", err)
	}
	c.stream = nil
	c.recording = false
}

// Close releases the stream and terminates PortAudio
func (c *PortAudioCapture) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.teardownLocked()

	if err := portaudio.Terminate(); err != nil {
		return fmt.Errorf("failed to terminate PortAudio: %w", err)
	}

	return nil
}
