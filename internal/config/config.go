package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// Config holds application configuration
type Config struct {
	Hotkey           HotkeyConfig `json:"hotkey"`
	RecordingMode    string       `json:"recording_mode"` // "press-to-hold" or "toggle"
	ModelPath        string       `json:"model_path"`
	Language         string       `json:"language"`
	AudioDeviceID    int          `json:"audio_device_id"`
	DebounceMS       int          `json:"debounce_ms"`
	MinRecordMS      int          `json:"min_record_ms"`
	MaxRecordSeconds int          `json:"max_record_seconds"`
	FailsafeSeconds  int          `json:"failsafe_seconds"`
	CleanupEnabled   bool         `json:"cleanup_enabled"`
	CleanupCommand   string       `json:"cleanup_command"`
	PasteSplitSize   int          `json:"paste_split_size"` // characters
	SoundsEnabled    bool         `json:"sounds_enabled"`
	HistoryPath      string       `json:"history_path"`
	mu               sync.RWMutex
}

// HotkeyConfig holds hotkey configuration
type HotkeyConfig struct {
	Ctrl  bool   `json:"ctrl"`
	Shift bool   `json:"shift"`
	Alt   bool   `json:"alt"`
	Cmd   bool   `json:"cmd"`
	Key   string `json:"key"` // e.g., "Space"
}

// IsValidModelExtension checks if the file has a valid Whisper model extension
func IsValidModelExtension(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".bin" || ext == ".gguf"
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		Hotkey: HotkeyConfig{
			Ctrl: true,
			Alt:  true,
			Key:  "Space",
		},
		RecordingMode:    "press-to-hold",
		ModelPath:        "", // Empty by default - resolved against the model directory
		Language:         "en",
		AudioDeviceID:    -1, // -1 means use system default device
		DebounceMS:       100,
		MinRecordMS:      500,
		MaxRecordSeconds: 60,
		FailsafeSeconds:  30,
		CleanupEnabled:   true,
		CleanupCommand:   "",
		PasteSplitSize:   500,
		SoundsEnabled:    true,
	}
}

// Load loads configuration from the specified path. Missing files yield
// the default configuration. Fields absent from the file keep their
// defaults so older config files keep working after upgrades.
func Load(path string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return DefaultConfig(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := DefaultConfig()
	if err := json.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	// ホットキー設定の検証と修正
	if config.Hotkey.Key == "" {
		config.Hotkey.Key = "Space"
	}

	return config, nil
}

// Save saves configuration to the specified path
func (c *Config) Save(path string) error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// GetConfigPath returns the default configuration file path
func GetConfigPath() string {
	homeDir, _ := os.UserHomeDir()
	return filepath.Join(homeDir, "Library", "Application Support", "VoxKey", "config.json")
}

// Debounce returns the hotkey debounce window as a duration
func (c *Config) Debounce() time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return time.Duration(c.DebounceMS) * time.Millisecond
}

// MinRecord returns the minimum recording duration
func (c *Config) MinRecord() time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return time.Duration(c.MinRecordMS) * time.Millisecond
}

// MaxRecord returns the maximum recording duration
func (c *Config) MaxRecord() time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return time.Duration(c.MaxRecordSeconds) * time.Second
}

// Failsafe returns the processing deadline
func (c *Config) Failsafe() time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return time.Duration(c.FailsafeSeconds) * time.Second
}

// SetCleanupEnabled updates the cleanup toggle
func (c *Config) SetCleanupEnabled(enabled bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.CleanupEnabled = enabled
}

// SetAudioDeviceID updates the audio input device
func (c *Config) SetAudioDeviceID(id int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.AudioDeviceID = id
}

// Clone creates a deep copy of the configuration
func (c *Config) Clone() *Config {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return &Config{
		Hotkey:           c.Hotkey,
		RecordingMode:    c.RecordingMode,
		ModelPath:        c.ModelPath,
		Language:         c.Language,
		AudioDeviceID:    c.AudioDeviceID,
		DebounceMS:       c.DebounceMS,
		MinRecordMS:      c.MinRecordMS,
		MaxRecordSeconds: c.MaxRecordSeconds,
		FailsafeSeconds:  c.FailsafeSeconds,
		CleanupEnabled:   c.CleanupEnabled,
		CleanupCommand:   c.CleanupCommand,
		PasteSplitSize:   c.PasteSplitSize,
		SoundsEnabled:    c.SoundsEnabled,
		HistoryPath:      c.HistoryPath,
	}
}

// ExpandPath expands ~ to home directory in file paths
func ExpandPath(path string) (string, error) {
	if path == "" {
		return "", nil
	}

	if strings.HasPrefix(path, "~/") {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to get home directory: %w", err)
		}
		return filepath.Join(homeDir, path[2:]), nil
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("failed to get absolute path: %w", err)
	}

	return absPath, nil
}

// GetModelPath returns the expanded model path
func (c *Config) GetModelPath() (string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return ExpandPath(c.ModelPath)
}

// ValidateModelPath validates the model file path
func (c *Config) ValidateModelPath() error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.ModelPath == "" {
		return fmt.Errorf("model path is not set")
	}

	expandedPath, err := ExpandPath(c.ModelPath)
	if err != nil {
		return fmt.Errorf("failed to expand model path: %w", err)
	}

	info, err := os.Stat(expandedPath)
	if os.IsNotExist(err) {
		return fmt.Errorf("model file not found: %s", expandedPath)
	}
	if err != nil {
		return fmt.Errorf("failed to check model file: %w", err)
	}

	if info.IsDir() {
		return fmt.Errorf("model path is a directory, not a file: %s", expandedPath)
	}

	if !IsValidModelExtension(expandedPath) {
		return fmt.Errorf("model file must have .bin or .gguf extension: %s", expandedPath)
	}

	return nil
}

// Validate validates all configuration fields
func (c *Config) Validate() error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.RecordingMode != "press-to-hold" && c.RecordingMode != "toggle" {
		return fmt.Errorf("invalid recording_mode: %s (must be 'press-to-hold' or 'toggle')", c.RecordingMode)
	}

	if c.Language == "" {
		return fmt.Errorf("language cannot be empty")
	}

	if c.DebounceMS < 0 || c.DebounceMS > 1000 {
		return fmt.Errorf("invalid debounce_ms: %d (must be between 0 and 1000 milliseconds)", c.DebounceMS)
	}

	if c.MinRecordMS < 0 || c.MinRecordMS > 5000 {
		return fmt.Errorf("invalid min_record_ms: %d (must be between 0 and 5000 milliseconds)", c.MinRecordMS)
	}

	if c.MaxRecordSeconds <= 0 || c.MaxRecordSeconds > 300 {
		return fmt.Errorf("invalid max_record_seconds: %d (must be between 1 and 300 seconds)", c.MaxRecordSeconds)
	}

	if c.FailsafeSeconds <= 0 || c.FailsafeSeconds > 300 {
		return fmt.Errorf("invalid failsafe_seconds: %d (must be between 1 and 300 seconds)", c.FailsafeSeconds)
	}

	if c.PasteSplitSize <= 0 || c.PasteSplitSize > 10000 {
		return fmt.Errorf("invalid paste_split_size: %d (must be between 1 and 10000 characters)", c.PasteSplitSize)
	}

	// Model path validation is separate: the path may be empty on first
	// run and resolved against the model directory at startup.

	return nil
}
