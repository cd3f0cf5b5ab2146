// Package permissions checks the macOS privacy permissions required for
// capturing audio and pasting text.
package permissions

/*
#cgo CFLAGS: -x objective-c -fmodules
#cgo LDFLAGS: -framework AVFoundation -framework ApplicationServices

#import <AVFoundation/AVFoundation.h>
#import <ApplicationServices/ApplicationServices.h>

int microphone_auth_status() {
    AVAuthorizationStatus status = [AVCaptureDevice authorizationStatusForMediaType:AVMediaTypeAudio];
    return (int)status;
}

void request_microphone_access() {
    [AVCaptureDevice requestAccessForMediaType:AVMediaTypeAudio completionHandler:^(BOOL granted) {}];
}

int accessibility_trusted() {
    return AXIsProcessTrusted() ? 1 : 0;
}
*/
import "C"

import (
	"os/exec"
	"strings"
)

// Status represents the state of a system permission
type Status int

const (
	// StatusNotDetermined means the user has not been asked yet
	StatusNotDetermined Status = 0
	// StatusRestricted means the permission is restricted by policy
	StatusRestricted Status = 1
	// StatusDenied means the user has explicitly denied the permission
	StatusDenied Status = 2
	// StatusAuthorized means the user has granted the permission
	StatusAuthorized Status = 3
)

func (s Status) String() string {
	switch s {
	case StatusNotDetermined:
		return "NotDetermined"
	case StatusRestricted:
		return "Restricted"
	case StatusDenied:
		return "Denied"
	case StatusAuthorized:
		return "Authorized"
	default:
		return "Unknown"
	}
}

// Checker provides access to macOS permission state
type Checker struct{}

// NewChecker creates a new permission checker
func NewChecker() *Checker {
	return &Checker{}
}

// Microphone returns the microphone permission status
func (c *Checker) Microphone() Status {
	return Status(C.microphone_auth_status())
}

// Accessibility returns the accessibility permission status. AXIsProcessTrusted
// only reports a boolean, so NotDetermined is never returned.
func (c *Checker) Accessibility() Status {
	if C.accessibility_trusted() == 1 {
		return StatusAuthorized
	}
	return StatusDenied
}

// MicrophoneAuthorized returns whether microphone access is granted
func (c *Checker) MicrophoneAuthorized() bool {
	return c.Microphone() == StatusAuthorized
}

// AccessibilityAuthorized returns whether accessibility access is granted
func (c *Checker) AccessibilityAuthorized() bool {
	return c.Accessibility() == StatusAuthorized
}

// RequestMicrophone triggers the system microphone prompt when the status
// is still undetermined. The prompt is asynchronous.
func (c *Checker) RequestMicrophone() {
	C.request_microphone_access()
}

// OpenMicrophoneSettings opens System Settings at the microphone privacy pane
func (c *Checker) OpenMicrophoneSettings() error {
	return openSettings("Privacy_Microphone")
}

// OpenAccessibilitySettings opens System Settings at the accessibility privacy pane
func (c *Checker) OpenAccessibilitySettings() error {
	return openSettings("Privacy_Accessibility")
}

func openSettings(pane string) error {
	url := "x-apple.systempreferences:com.apple.preference.security?" + pane
	return exec.Command("open", url).Run()
}

// Missing returns the names of permissions that are not granted
func (c *Checker) Missing() []string {
	var missing []string
	if !c.MicrophoneAuthorized() {
		missing = append(missing, "Microphone")
	}
	if !c.AccessibilityAuthorized() {
		missing = append(missing, "Accessibility")
	}
	return missing
}

// MissingMessage returns a user-facing summary of missing permissions,
// or an empty string when everything is granted.
func (c *Checker) MissingMessage() string {
	missing := c.Missing()
	if len(missing) == 0 {
		return ""
	}
	return "The following permissions are required: " + strings.Join(missing, ", ")
}
