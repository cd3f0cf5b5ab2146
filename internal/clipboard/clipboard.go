package clipboard

/*
#cgo CFLAGS: -x objective-c
#cgo LDFLAGS: -framework Cocoa
#import <Cocoa/Cocoa.h>

int get_pasteboard_change_count() {
    return (int)[[NSPasteboard generalPasteboard] changeCount];
}
*/
import "C"
import (
	"fmt"
	"time"

	"github.com/go-vgo/robotgo"
)

// Manager pastes text into the foreground application by simulating Cmd+V,
// restoring the user's clipboard afterwards when it can do so safely.
type Manager struct {
	savedChangeCount int
	savedContent     string
	restoreTimeout   time.Duration
	splitSize        int
	splitInterval    time.Duration
}

// Config holds clipboard manager configuration
type Config struct {
	RestoreTimeout time.Duration // wait before restoring the clipboard
	SplitSize      int           // maximum characters per paste operation
	SplitInterval  time.Duration // pause between split pastes
}

// DefaultConfig returns the default clipboard configuration
func DefaultConfig() Config {
	return Config{
		RestoreTimeout: 500 * time.Millisecond,
		SplitSize:      500,
		SplitInterval:  50 * time.Millisecond,
	}
}

// NewManager creates a new clipboard manager
func NewManager(config Config) *Manager {
	return &Manager{
		restoreTimeout: config.RestoreTimeout,
		splitSize:      config.SplitSize,
		splitInterval:  config.SplitInterval,
	}
}

// changeCount returns the pasteboard change counter
func changeCount() int {
	return int(C.get_pasteboard_change_count())
}

// Deliver hands the final transcript to the foreground application
func (m *Manager) Deliver(text string) error {
	return m.pasteSplit(text)
}

// save records the clipboard state before we overwrite it
func (m *Manager) save() error {
	m.savedChangeCount = changeCount()
	content, err := robotgo.ReadAll()
	if err != nil {
		return fmt.Errorf("failed to read clipboard: %w", err)
	}
	m.savedContent = content
	return nil
}

// restore puts the user's clipboard back unless something else has written
// to it in the meantime.
func (m *Manager) restore() {
	time.Sleep(m.restoreTimeout)

	// Exactly one change since save means our paste was the only writer
	if changeCount() == m.savedChangeCount+1 {
		robotgo.WriteAll(m.savedContent)
	}
}

// paste writes the text to the clipboard and simulates Cmd+V
func (m *Manager) paste(text string) error {
	if err := m.save(); err != nil {
		return err
	}

	robotgo.WriteAll(text)
	time.Sleep(10 * time.Millisecond)
	robotgo.KeyTap("v", "cmd")

	m.restore()
	return nil
}

// pasteSplit pastes long text in chunks so applications with small paste
// buffers do not drop characters.
func (m *Manager) pasteSplit(text string) error {
	chunks := splitText(text, m.splitSize)

	for i, chunk := range chunks {
		if err := m.paste(chunk); err != nil {
			return fmt.Errorf("failed to paste chunk %d: %w", i, err)
		}
		if i < len(chunks)-1 {
			time.Sleep(m.splitInterval)
		}
	}

	return nil
}

// splitText splits text into chunks of at most size runes, preferring a
// sentence or clause boundary inside the last 50 runes of each chunk.
func splitText(text string, size int) []string {
	runes := []rune(text)
	if len(runes) <= size {
		return []string{text}
	}

	var chunks []string
	start := 0

	for start < len(runes) {
		end := start + size
		if end >= len(runes) {
			chunks = append(chunks, string(runes[start:]))
			break
		}

		searchStart := end - 50
		if searchStart < start {
			searchStart = start
		}

		split := end
		for i := end - 1; i >= searchStart; i-- {
			switch runes[i] {
			case '.', ',', '!', '?', '\n':
				split = i + 1
			}
			if split != end {
				break
			}
		}

		chunks = append(chunks, string(runes[start:split]))
		start = split
	}

	return chunks
}
