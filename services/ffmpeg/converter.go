package ffmpeg

import (
	"context"
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/zowobo/relay"
)

// max bytes of ffmpeg output we include in errors
const maxOutputInError = 512

// Converter converts audio to 16kHz mono PCM WAV files by running ffmpeg
type Converter struct {
	binPath string
}

// NewConverter creates a new converter which runs the ffmpeg binary at the given path
func NewConverter(binPath string) *Converter {
	return &Converter{binPath: binPath}
}

// Convert converts the given file, writing the result alongside it with a .wav extension
func (c *Converter) Convert(ctx context.Context, inputPath string) (string, error) {
	outputPath := strings.TrimSuffix(inputPath, filepath.Ext(inputPath)) + ".wav"
	if outputPath == inputPath {
		outputPath = strings.TrimSuffix(inputPath, filepath.Ext(inputPath)) + ".converted.wav"
	}

	cmd := exec.CommandContext(ctx, c.binPath, Args(inputPath, outputPath)...)

	output, err := cmd.CombinedOutput()
	if err != nil {
		out := string(output)
		if len(out) > maxOutputInError {
			out = out[len(out)-maxOutputInError:]
		}
		return "", fmt.Errorf("ffmpeg conversion failed: %w, output: %s", err, strings.TrimSpace(out))
	}

	return outputPath, nil
}

// Args returns the ffmpeg arguments to convert input to output
func Args(inputPath, outputPath string) []string {
	return []string{"-i", inputPath, "-ar", "16000", "-ac", "1", "-c:a", "pcm_s16le", "-y", outputPath}
}

var _ relay.Converter = (*Converter)(nil)
