// Package sounds plays short audio cues on recording start and stop.
package sounds

import (
	"log"
	"os"
	"os/exec"
)

// Player plays feedback sounds via afplay. Playback is asynchronous and
// failures are logged and swallowed: audio feedback must never delay or
// break a session.
type Player struct {
	startSound string
	stopSound  string
	enabled    bool
}

// Config holds sound feedback configuration
type Config struct {
	StartSound string
	StopSound  string
	Enabled    bool
}

// DefaultConfig returns the default sound configuration using the macOS
// system sounds so no assets need shipping.
func DefaultConfig() Config {
	return Config{
		StartSound: "/System/Library/Sounds/Tink.aiff",
		StopSound:  "/System/Library/Sounds/Pop.aiff",
		Enabled:    true,
	}
}

// NewPlayer creates a sound player
func NewPlayer(config Config) *Player {
	return &Player{
		startSound: config.StartSound,
		stopSound:  config.StopSound,
		enabled:    config.Enabled,
	}
}

// PlayStart plays the recording-started cue
func (p *Player) PlayStart() {
	p.play(p.startSound)
}

// PlayStop plays the recording-stopped cue
func (p *Player) PlayStop() {
	p.play(p.stopSound)
}

// play runs afplay in the background
func (p *Player) play(path string) {
	if !p.enabled || path == "" {
		return
	}
	if _, err := os.Stat(path); err != nil {
		log.Printf("sounds: %s not found, skipping", path)
		return
	}

	go func() {
		if err := exec.Command("afplay", path).Run(); err != nil {
			log.Printf("sounds: failed to play %s: %v", path, err)
		}
	}()
}
