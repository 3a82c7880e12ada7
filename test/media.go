package test

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/zowobo/relay"
)

// MockMediaSource serves media from memory
type MockMediaSource struct {
	Refs map[string]*relay.MediaRef // media id -> ref
	Data map[string][]byte          // url -> data

	ResolveErr error
	FetchErr   error
}

// NewMockMediaSource creates a new mock media source with no media
func NewMockMediaSource() *MockMediaSource {
	return &MockMediaSource{Refs: make(map[string]*relay.MediaRef), Data: make(map[string][]byte)}
}

// AddMedia adds media which can be resolved by id and fetched by URL
func (m *MockMediaSource) AddMedia(id, url, mimeType string, data []byte) {
	m.Refs[id] = &relay.MediaRef{URL: url, MimeType: mimeType}
	m.Data[url] = data
}

func (m *MockMediaSource) ResolveMedia(ctx context.Context, mediaID string) (*relay.MediaRef, error) {
	if m.ResolveErr != nil {
		return nil, m.ResolveErr
	}
	ref, found := m.Refs[mediaID]
	if !found {
		return nil, fmt.Errorf("no such media: %s", mediaID)
	}
	return &relay.MediaRef{URL: ref.URL, MimeType: ref.MimeType}, nil
}

func (m *MockMediaSource) FetchMedia(ctx context.Context, ref *relay.MediaRef, maxBytes int) ([]byte, error) {
	if m.FetchErr != nil {
		return nil, m.FetchErr
	}
	data, found := m.Data[ref.URL]
	if !found {
		return nil, fmt.Errorf("no media at: %s", ref.URL)
	}
	if len(data) > maxBytes {
		return nil, fmt.Errorf("media exceeds %d bytes", maxBytes)
	}
	return data, nil
}

// MockConverter pretends to convert audio by writing a small WAV header next to the input
type MockConverter struct {
	Err error

	mutex  sync.Mutex
	inputs []string
}

func (c *MockConverter) Convert(ctx context.Context, inputPath string) (string, error) {
	c.mutex.Lock()
	c.inputs = append(c.inputs, inputPath)
	c.mutex.Unlock()

	if c.Err != nil {
		return "", c.Err
	}

	outputPath := strings.TrimSuffix(inputPath, filepath.Ext(inputPath)) + ".wav"
	if err := os.WriteFile(outputPath, []byte("RIFF\x24\x00\x00\x00WAVEfmt "), 0640); err != nil {
		return "", err
	}
	return outputPath, nil
}

// Inputs returns the paths of files we were asked to convert
func (c *MockConverter) Inputs() []string {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return append([]string(nil), c.inputs...)
}

// MockTranscriber returns a fixed transcription for any file that exists
type MockTranscriber struct {
	Text string
	Err  error
}

func (t *MockTranscriber) Transcribe(ctx context.Context, wavPath string) (string, error) {
	if t.Err != nil {
		return "", t.Err
	}
	if _, err := os.Stat(wavPath); err != nil {
		return "", fmt.Errorf("unable to read audio: %w", err)
	}
	return t.Text, nil
}

var _ relay.MediaSource = (*MockMediaSource)(nil)
var _ relay.Converter = (*MockConverter)(nil)
var _ relay.Transcriber = (*MockTranscriber)(nil)
