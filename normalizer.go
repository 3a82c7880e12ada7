package relay

import (
	"context"
	"fmt"
	"log/slog"
	"mime"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/google/uuid"
	"github.com/h2non/filetype"
)

// Normalizer turns inbound events into plain text utterances, transcribing voice and audio messages
type Normalizer struct {
	media       MediaSource
	converter   Converter
	transcriber Transcriber

	scratchDir string
	maxBytes   int
}

// NewNormalizer creates a new normalizer. Media is downloaded and converted in a unique directory
// under scratchDir for each message.
func NewNormalizer(media MediaSource, converter Converter, transcriber Transcriber, scratchDir string, maxBytes int) *Normalizer {
	return &Normalizer{
		media:       media,
		converter:   converter,
		transcriber: transcriber,
		scratchDir:  scratchDir,
		maxBytes:    maxBytes,
	}
}

// Normalize returns the utterance for the given event
func (n *Normalizer) Normalize(ctx context.Context, event *Event) (*Utterance, error) {
	if err := event.Validate(); err != nil {
		return nil, err
	}

	utterance := &Utterance{ContactID: event.ContactID, ContactName: event.ContactName}

	if event.Type == EventTypeText {
		utterance.Text = event.Text
		return utterance, nil
	}

	text, err := n.transcribe(ctx, event)
	if err != nil {
		return nil, err
	}

	utterance.Text = text
	return utterance, nil
}

func (n *Normalizer) transcribe(ctx context.Context, event *Event) (string, error) {
	log := slog.With("comp", "normalizer", "contact", event.ContactID, "msg_id", event.ID)

	ref := &MediaRef{URL: event.Media.URL, MimeType: event.Media.MimeType}
	if event.Media.ID != "" {
		var err error
		ref, err = n.media.ResolveMedia(ctx, event.Media.ID)
		if err != nil {
			return "", &MediaError{Step: MediaStepResolve, Err: err}
		}
	}

	data, err := n.media.FetchMedia(ctx, ref, n.maxBytes)
	if err != nil {
		return "", &MediaError{Step: MediaStepFetch, Err: err}
	}

	scratch, err := newScratchDir(n.scratchDir, event.ContactID)
	if err != nil {
		return "", &MediaError{Step: MediaStepFetch, Err: err}
	}
	defer scratch.remove()

	mediaPath, err := scratch.write("media."+mediaExtension(ref.MimeType, data), data)
	if err != nil {
		return "", &MediaError{Step: MediaStepFetch, Err: err}
	}

	wavPath, err := n.converter.Convert(ctx, mediaPath)
	if err != nil {
		return "", &MediaError{Step: MediaStepConvert, Err: err}
	}

	text, err := n.transcriber.Transcribe(ctx, wavPath)
	if err != nil {
		return "", &MediaError{Step: MediaStepTranscribe, Err: err}
	}

	text = strings.TrimSpace(text)
	if text == "" {
		return "", &MediaError{Step: MediaStepTranscribe, Err: fmt.Errorf("empty transcription")}
	}

	log.Debug("transcribed media", "bytes", len(data), "mime_type", ref.MimeType, "chars", len(text))
	return text, nil
}

var unsafeFilenameChars = regexp.MustCompile(`[^a-zA-Z0-9_\-]`)

// a directory for the media of a single inbound message, removed along with anything in it once we're done
type scratchDir struct {
	path string
}

func newScratchDir(base string, contact ContactID) (*scratchDir, error) {
	name := fmt.Sprintf("%s-%s", unsafeFilenameChars.ReplaceAllString(string(contact), "_"), uuid.NewString())
	path := filepath.Join(base, name)

	if err := os.MkdirAll(path, 0770); err != nil {
		return nil, fmt.Errorf("unable to create scratch directory: %w", err)
	}
	return &scratchDir{path: path}, nil
}

func (s *scratchDir) write(filename string, data []byte) (string, error) {
	path := filepath.Join(s.path, filename)
	if err := os.WriteFile(path, data, 0640); err != nil {
		return "", fmt.Errorf("unable to write scratch file: %w", err)
	}
	return path, nil
}

func (s *scratchDir) remove() {
	if err := os.RemoveAll(s.path); err != nil {
		slog.Error("error removing scratch directory", "comp", "normalizer", "path", s.path, "error", err)
	}
}

// picks a file extension for downloaded media, trusting the content over the declared type
func mediaExtension(mimeType string, data []byte) string {
	head := data
	if len(head) > 300 {
		head = head[:300]
	}

	kind, _ := filetype.Match(head)
	if kind != filetype.Unknown {
		return kind.Extension
	}

	mediaType, _, _ := mime.ParseMediaType(mimeType)
	switch {
	case strings.Contains(mediaType, "ogg"), strings.Contains(mediaType, "opus"):
		return "ogg"
	case mediaType == "audio/mpeg":
		return "mp3"
	case mediaType == "audio/mp4", mediaType == "audio/aac":
		return "m4a"
	case mediaType == "audio/amr":
		return "amr"
	}

	if exts, err := mime.ExtensionsByType(mediaType); err == nil && len(exts) > 0 {
		return exts[0][1:]
	}
	return "bin"
}
