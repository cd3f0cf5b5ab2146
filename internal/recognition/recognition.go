package recognition

/*
#cgo CFLAGS: -I${SRCDIR}/../../whisper.cpp/include -I${SRCDIR}/../../whisper.cpp/ggml/include
#cgo LDFLAGS: -L${SRCDIR}/../../whisper.cpp/build/src -L${SRCDIR}/../../whisper.cpp/build/ggml/src -lwhisper -lggml -lm -Wl,-rpath,${SRCDIR}/../../whisper.cpp/build/src -Wl,-rpath,${SRCDIR}/../../whisper.cpp/build/ggml/src
#include "whisper.h"
#include <stdlib.h>
*/
import "C"
import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"unsafe"

	"github.com/voxkey/voxkey/internal/pipeline"
)

// WhisperRecognizer implements pipeline.Transcriber with whisper.cpp. The
// model is loaded once at startup so the first hotkey press never pays the
// multi-second load cost.
type WhisperRecognizer struct {
	ctx      *C.struct_whisper_context
	mu       sync.Mutex
	language string
	threads  int
}

// Config holds recognition configuration
type Config struct {
	Language string // language code, "en" by default
	Threads  int    // inference threads, 0 = whisper default
}

// DefaultConfig returns the default recognition configuration
func DefaultConfig() Config {
	return Config{
		Language: "en",
	}
}

// NewWhisperRecognizer creates a recognizer; LoadModel must be called
// before the first Transcribe.
func NewWhisperRecognizer(config Config) *WhisperRecognizer {
	return &WhisperRecognizer{
		language: config.Language,
		threads:  config.Threads,
	}
}

// LoadModel loads a whisper model from the given path, replacing any
// previously loaded one.
func (r *WhisperRecognizer) LoadModel(modelPath string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, err := os.Stat(modelPath); os.IsNotExist(err) {
		return fmt.Errorf("model file not found: %s", modelPath)
	}

	cModelPath := C.CString(modelPath)
	defer C.free(unsafe.Pointer(cModelPath))

	ctx := C.whisper_init_from_file(cModelPath)
	if ctx == nil {
		return fmt.Errorf("failed to load model from: %s", modelPath)
	}

	if r.ctx != nil {
		C.whisper_free(r.ctx)
	}
	r.ctx = ctx

	return nil
}

// Transcribe runs inference over 16-bit PCM samples
func (r *WhisperRecognizer) Transcribe(pcm []byte, sampleRate int) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	// whisper.cpp operates on 16 kHz audio only
	if sampleRate != RequiredSampleRate {
		return "", fmt.Errorf("%w: unsupported sample rate %d, need %d",
			pipeline.ErrEngineUnavailable, sampleRate, RequiredSampleRate)
	}
	if r.ctx == nil {
		return "", fmt.Errorf("%w: model not loaded", pipeline.ErrEngineUnavailable)
	}
	if len(pcm) == 0 {
		return "", fmt.Errorf("audio data is empty")
	}

	// 16-bit little-endian PCM to float32 in [-1.0, 1.0]
	numSamples := len(pcm) / 2
	samples := make([]float32, numSamples)
	for i := 0; i < numSamples; i++ {
		sample := int16(pcm[i*2]) | (int16(pcm[i*2+1]) << 8)
		samples[i] = float32(sample) / 32768.0
	}

	params := C.whisper_full_default_params(C.WHISPER_SAMPLING_GREEDY)

	cLanguage := C.CString(r.language)
	defer C.free(unsafe.Pointer(cLanguage))
	params.language = cLanguage
	params.translate = C.bool(false)
	if r.threads > 0 {
		params.n_threads = C.int(r.threads)
	}

	result := C.whisper_full(
		r.ctx,
		params,
		(*C.float)(unsafe.Pointer(&samples[0])),
		C.int(numSamples),
	)
	if result != 0 {
		return "", fmt.Errorf("%w: whisper_full failed with code %d", pipeline.ErrEngineUnavailable, result)
	}

	nSegments := C.whisper_full_n_segments(r.ctx)

	var sb strings.Builder
	for i := 0; i < int(nSegments); i++ {
		sb.WriteString(C.GoString(C.whisper_full_get_segment_text(r.ctx, C.int(i))))
	}

	return strings.TrimSpace(sb.String()), nil
}

// Close releases the model
func (r *WhisperRecognizer) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.ctx != nil {
		C.whisper_free(r.ctx)
		r.ctx = nil
	}

	return nil
}

// DefaultModelName is the model tried when no model path is configured
const DefaultModelName = "ggml-base.en.bin"

// RequiredSampleRate is the only input rate whisper.cpp accepts
const RequiredSampleRate = 16000

// DefaultModelDir returns the directory where models are kept
func DefaultModelDir() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(homeDir, "Library", "Application Support", "VoxKey", "models")
}

// FindModel looks a model file up in the default model directory
func FindModel(name string) (string, error) {
	dir := DefaultModelDir()

	path := filepath.Join(dir, name)
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return "", fmt.Errorf("model file not found: %s", path)
	}

	return path, nil
}
