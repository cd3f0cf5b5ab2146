// Package tray manages the menu bar item and its menu.
package tray

import (
	"context"
	"log"
	"sync"

	"github.com/getlantern/systray"
)

// State represents the current application state shown in the menu bar
type State int

const (
	StateIdle State = iota
	StateRecording
	StateProcessing
)

// Manager manages the menu bar item and menu
type Manager struct {
	stateMutex      sync.RWMutex
	state           State
	cleanupOn       bool
	onReadyCallback func()
	onCleanupToggle func(enabled bool)
	onStatistics    func() string
	onPasteLast     func()
	onDeviceChange  func(deviceID int)
	onQuit          func()
	notify          func(title, message string)

	menuStatus        *systray.MenuItem
	menuCleanup       *systray.MenuItem
	menuStatistics    *systray.MenuItem
	menuPasteLast     *systray.MenuItem
	menuDevices       *systray.MenuItem
	menuQuit          *systray.MenuItem
	deviceMenuItems   []*systray.MenuItem
	deviceCancelFuncs []context.CancelFunc
}

// Config holds tray manager configuration
type Config struct {
	OnReady         func() // Called when systray is ready for initialization
	OnCleanupToggle func(enabled bool)
	OnStatistics    func() string // Returns the text shown for the statistics item
	OnPasteLast     func()        // Pastes the most recent transcription again
	OnDeviceChange  func(deviceID int)
	OnQuit          func()
	Notify          func(title, message string) // Delivers notifications to the user
	CleanupEnabled  bool
}

// NewManager creates a new tray manager
func NewManager(config Config) *Manager {
	return &Manager{
		state:           StateIdle,
		cleanupOn:       config.CleanupEnabled,
		onReadyCallback: config.OnReady,
		onCleanupToggle: config.OnCleanupToggle,
		onStatistics:    config.OnStatistics,
		onPasteLast:     config.OnPasteLast,
		onDeviceChange:  config.OnDeviceChange,
		onQuit:          config.OnQuit,
		notify:          config.Notify,
	}
}

// Run starts the system tray (blocking call)
func (m *Manager) Run() {
	systray.Run(m.onReady, m.onExit)
}

// onReady is called when systray is ready
func (m *Manager) onReady() {
	m.updateTitle()
	systray.SetTooltip("VoxKey")

	m.menuStatus = systray.AddMenuItem("Ready", "Current state")
	m.menuStatus.Disable()

	systray.AddSeparator()

	m.menuCleanup = systray.AddMenuItemCheckbox("Format with AI", "Clean up transcriptions before pasting", m.cleanupOn)
	m.menuStatistics = systray.AddMenuItem("Statistics...", "Show usage statistics")
	m.menuPasteLast = systray.AddMenuItem("Paste Last", "Paste the most recent transcription again")
	m.menuDevices = systray.AddMenuItem("Input Device", "Select input device")

	systray.AddSeparator()

	m.menuQuit = systray.AddMenuItem("Quit VoxKey", "Quit the application")

	go m.handleMenuEvents()

	if m.onReadyCallback != nil {
		m.onReadyCallback()
	}
}

// onExit is called when systray is exiting
func (m *Manager) onExit() {
	for _, cancel := range m.deviceCancelFuncs {
		if cancel != nil {
			cancel()
		}
	}
}

// handleMenuEvents handles menu item clicks
func (m *Manager) handleMenuEvents() {
	for {
		select {
		case <-m.menuCleanup.ClickedCh:
			m.toggleCleanup()
		case <-m.menuStatistics.ClickedCh:
			if m.onStatistics != nil {
				m.ShowNotification("VoxKey Statistics", m.onStatistics())
			}
		case <-m.menuPasteLast.ClickedCh:
			if m.onPasteLast != nil {
				m.onPasteLast()
			}
		case <-m.menuQuit.ClickedCh:
			if m.onQuit != nil {
				m.onQuit()
			}
			systray.Quit()
			return
		}
	}
}

func (m *Manager) toggleCleanup() {
	m.stateMutex.Lock()
	m.cleanupOn = !m.cleanupOn
	enabled := m.cleanupOn
	m.stateMutex.Unlock()

	if enabled {
		m.menuCleanup.Check()
	} else {
		m.menuCleanup.Uncheck()
	}
	if m.onCleanupToggle != nil {
		m.onCleanupToggle(enabled)
	}
}

// SetState updates the menu bar title based on the current state
func (m *Manager) SetState(state State) {
	m.stateMutex.Lock()
	defer m.stateMutex.Unlock()
	m.state = state
	m.updateTitle()
}

// updateTitle sets the menu bar title for the current state. Emoji titles
// work across macOS versions without shipping icon assets.
func (m *Manager) updateTitle() {
	switch m.state {
	case StateIdle:
		systray.SetTitle("🎤")
		systray.SetTooltip("VoxKey - Ready")
		m.setStatus("Ready")
	case StateRecording:
		systray.SetTitle("🔴")
		systray.SetTooltip("VoxKey - Recording")
		m.setStatus("Recording...")
	case StateProcessing:
		systray.SetTitle("⏳")
		systray.SetTooltip("VoxKey - Processing")
		m.setStatus("Processing...")
	}
}

func (m *Manager) setStatus(text string) {
	if m.menuStatus != nil {
		m.menuStatus.SetTitle(text)
	}
}

// Device represents an audio device for the menu
type Device struct {
	ID        int
	Name      string
	IsDefault bool
	IsCurrent bool
}

// UpdateDeviceMenu replaces the device submenu with the given devices
func (m *Manager) UpdateDeviceMenu(devices []Device) {
	for _, cancel := range m.deviceCancelFuncs {
		if cancel != nil {
			cancel()
		}
	}
	m.deviceCancelFuncs = nil

	// systray cannot remove submenu items, only hide them
	for _, item := range m.deviceMenuItems {
		item.Hide()
	}
	m.deviceMenuItems = nil

	for _, device := range devices {
		deviceID := device.ID
		deviceName := device.Name

		prefix := ""
		if device.IsCurrent {
			prefix = "✓ "
		}

		tooltip := ""
		if device.IsDefault {
			tooltip = "System default device"
		}

		menuItem := m.menuDevices.AddSubMenuItem(prefix+deviceName, tooltip)
		m.deviceMenuItems = append(m.deviceMenuItems, menuItem)

		ctx, cancel := context.WithCancel(context.Background())
		m.deviceCancelFuncs = append(m.deviceCancelFuncs, cancel)

		go func(id int, item *systray.MenuItem, ctx context.Context) {
			for {
				select {
				case <-ctx.Done():
					return
				case <-item.ClickedCh:
					if m.onDeviceChange != nil {
						m.onDeviceChange(id)
					}
				}
			}
		}(deviceID, menuItem, ctx)
	}
}

// Quit quits the system tray
func (m *Manager) Quit() {
	systray.Quit()
}

// ShowNotification delivers menu feedback through the configured notifier
// and mirrors it to the log.
func (m *Manager) ShowNotification(title, message string) {
	log.Printf("Notification: %s - %s", title, message)
	if m.notify != nil {
		m.notify(title, message)
	}
}
