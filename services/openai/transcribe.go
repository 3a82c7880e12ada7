package openai

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	openaigo "github.com/openai/openai-go"
	"github.com/zowobo/relay"
)

// Transcribe uploads the given audio file for transcription and returns the text
func (c *Client) Transcribe(ctx context.Context, wavPath string) (string, error) {
	f, err := os.Open(wavPath)
	if err != nil {
		return "", fmt.Errorf("unable to open audio file: %w", err)
	}
	defer f.Close()

	transcription, err := c.api.Audio.Transcriptions.New(ctx, openaigo.AudioTranscriptionNewParams{
		File:  openaigo.File(f, filepath.Base(wavPath), "audio/wav"),
		Model: openaigo.AudioModel(c.transcribeModel),
	})
	if err != nil {
		return "", wrapError("transcribing audio", err)
	}
	return transcription.Text, nil
}

var _ relay.Transcriber = (*Client)(nil)
