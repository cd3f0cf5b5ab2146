// Package notification sends user-facing notifications through the macOS
// notification center.
package notification

import (
	"fmt"
	"os/exec"
	"strings"
)

// Manager handles sending notifications to the user
type Manager struct {
	appName string
}

// NewManager creates a new notification manager
func NewManager(appName string) *Manager {
	return &Manager{
		appName: appName,
	}
}

// Notify sends a notification with the given title and message. Errors
// from osascript are returned but callers typically ignore them.
func (m *Manager) Notify(title, message string) error {
	script := fmt.Sprintf(
		`display notification "%s" with title "%s"`,
		escape(message),
		escape(title),
	)

	cmd := exec.Command("osascript", "-e", script)
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("failed to send notification: %w", err)
	}

	return nil
}

// NotifyError sends an error notification under the application name
func (m *Manager) NotifyError(message string) error {
	return m.Notify(m.appName, message)
}

// TranscriptionFailed notifies that a transcription attempt failed
func (m *Manager) TranscriptionFailed() error {
	return m.NotifyError("Transcription failed. Please try again.")
}

// MicrophonePermissionDenied notifies that microphone access is denied
func (m *Manager) MicrophonePermissionDenied() error {
	return m.NotifyError("Microphone access is denied. Please allow access in System Settings > Privacy & Security > Microphone.")
}

// AccessibilityPermissionDenied notifies that accessibility access is denied
func (m *Manager) AccessibilityPermissionDenied() error {
	return m.NotifyError("Accessibility access is required for pasting. Please allow access in System Settings > Privacy & Security > Accessibility.")
}

// ModelMissing notifies that no speech model could be found
func (m *Manager) ModelMissing(dir string) error {
	return m.NotifyError(fmt.Sprintf("No speech model found in %s.", dir))
}

// escape quotes a string for embedding in an AppleScript literal
func escape(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `"`, `\"`)
	return s
}
