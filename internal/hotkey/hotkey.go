package hotkey

import (
	"fmt"
	"sync"
	"time"

	"golang.design/x/hotkey"
)

// RecordingMode defines how the hotkey drives recording
type RecordingMode int

const (
	// PressToHold mode: record while the key is held down
	PressToHold RecordingMode = iota
	// Toggle mode: first press starts, second press stops
	Toggle
)

// EventType represents the type of hotkey edge event
type EventType int

const (
	// Pressed indicates the hotkey went down
	Pressed EventType = iota
	// Released indicates the hotkey came up
	Released
)

// Event is one hotkey edge. At carries the monotonic arrival time so the
// coordinator can debounce without re-reading the clock.
type Event struct {
	Type EventType
	At   time.Time
}

// Config holds hotkey configuration
type Config struct {
	Modifiers []hotkey.Modifier
	Key       hotkey.Key
	Mode      RecordingMode
}

// Manager registers the global hotkey and turns OS callbacks into Events.
// Events are emitted from a goroutine the consumer does not control; the
// channel is buffered so a slow consumer does not block the OS callback.
type Manager struct {
	hk        *hotkey.Hotkey
	config    Config
	eventChan chan Event
	stopChan  chan struct{}
	wg        sync.WaitGroup
	mu        sync.Mutex
	running   bool
}

// New creates a hotkey manager with the default binding (Ctrl+Option+Space)
func New() *Manager {
	return &Manager{
		config: Config{
			Modifiers: []hotkey.Modifier{hotkey.ModCtrl, hotkey.ModOption},
			Key:       hotkey.KeySpace,
			Mode:      PressToHold,
		},
		eventChan: make(chan Event, 16),
		stopChan:  make(chan struct{}),
	}
}

// Register registers the hotkey with the system and starts listening
func (m *Manager) Register(config Config) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		return fmt.Errorf("hotkey is already running, call Close() first")
	}

	m.config = config

	// Recreate channels; a previous Close() closed them
	m.stopChan = make(chan struct{})
	m.eventChan = make(chan Event, 16)

	hk := hotkey.New(m.config.Modifiers, m.config.Key)
	if err := hk.Register(); err != nil {
		return fmt.Errorf("failed to register hotkey: %w", err)
	}

	m.hk = hk
	m.running = true

	m.wg.Add(1)
	go m.listen()

	return nil
}

// listen converts key-down/key-up callbacks into edge events
func (m *Manager) listen() {
	defer m.wg.Done()

	toggled := false

	for {
		select {
		case <-m.hk.Keydown():
			switch m.config.Mode {
			case PressToHold:
				m.emit(Pressed)
			case Toggle:
				if !toggled {
					m.emit(Pressed)
				} else {
					m.emit(Released)
				}
				toggled = !toggled
			}

		case <-m.hk.Keyup():
			if m.config.Mode == PressToHold {
				m.emit(Released)
			}

		case <-m.stopChan:
			return
		}
	}
}

// emit sends an event without blocking the listener. If the consumer is
// that far behind, dropping the edge is better than stalling the OS
// callback thread.
func (m *Manager) emit(t EventType) {
	select {
	case m.eventChan <- Event{Type: t, At: time.Now()}:
	default:
	}
}

// Events returns the channel of hotkey edge events
func (m *Manager) Events() <-chan Event {
	return m.eventChan
}

// Close unregisters the hotkey and stops listening
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.running {
		return nil
	}

	var unregisterErr error

	close(m.stopChan)
	m.wg.Wait()

	if m.hk != nil {
		if err := m.hk.Unregister(); err != nil {
			unregisterErr = fmt.Errorf("failed to unregister hotkey: %w", err)
		}
	}

	if m.eventChan != nil {
		close(m.eventChan)
		m.eventChan = nil
	}

	// running は必ず false に戻す。Unregister() が失敗しても
	// 次の Register() を可能にするため。
	m.running = false

	return unregisterErr
}

// IsRunning returns whether the hotkey is currently registered
func (m *Manager) IsRunning() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

// GetConfig returns a copy of the current configuration. The Modifiers
// slice is copied so callers cannot mutate the manager's state.
func (m *Manager) GetConfig() Config {
	m.mu.Lock()
	defer m.mu.Unlock()

	configCopy := m.config
	if m.config.Modifiers != nil {
		configCopy.Modifiers = make([]hotkey.Modifier, len(m.config.Modifiers))
		copy(configCopy.Modifiers, m.config.Modifiers)
	}

	return configCopy
}
