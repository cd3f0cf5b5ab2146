package cleanup

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// ErrEngineUnavailable means the cleanup command could not be run
var ErrEngineUnavailable = errors.New("cleanup engine unavailable")

// prompt instructs the engine to answer with the formatted transcript and
// nothing else. Sanitize catches the cases where it answers anyway.
const prompt = `Format this transcription. Output ONLY the formatted text.

Rules:
- Fix grammar and punctuation
- Add quotation marks around dialogue
- Remove filler words (um, uh, like, you know)
- Keep all meaning and content intact
- Output the formatted text only, no explanations

Input: %s
Output:`

// CommandConfig holds cleanup engine configuration
type CommandConfig struct {
	Command string        // path to a local LLM CLI, empty disables the engine
	Args    []string      // arguments placed before the prompt
	Timeout time.Duration // per-invocation deadline
}

// DefaultCommandConfig returns the default cleanup engine configuration
func DefaultCommandConfig() CommandConfig {
	return CommandConfig{
		Timeout: 20 * time.Second,
	}
}

// CommandCleaner runs a local LLM command per cleanup request. The command
// receives the prompt as its final argument and must print the formatted
// text to stdout.
type CommandCleaner struct {
	config CommandConfig
}

// NewCommandCleaner creates a cleaner backed by a local command
func NewCommandCleaner(config CommandConfig) *CommandCleaner {
	if config.Timeout <= 0 {
		config.Timeout = DefaultCommandConfig().Timeout
	}
	return &CommandCleaner{config: config}
}

// Clean invokes the engine and returns its raw output. Callers are expected
// to pass the result through Sanitize.
func (c *CommandCleaner) Clean(text string) (string, error) {
	if c.config.Command == "" {
		return "", fmt.Errorf("%w: no command configured", ErrEngineUnavailable)
	}

	ctx, cancel := context.WithTimeout(context.Background(), c.config.Timeout)
	defer cancel()

	args := append(append([]string{}, c.config.Args...), fmt.Sprintf(prompt, text))
	cmd := exec.CommandContext(ctx, c.config.Command, args...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return "", fmt.Errorf("%w: timed out after %v", ErrEngineUnavailable, c.config.Timeout)
		}
		return "", fmt.Errorf("%w: %v (%s)", ErrEngineUnavailable, err, strings.TrimSpace(stderr.String()))
	}

	return strings.TrimSpace(stdout.String()), nil
}
