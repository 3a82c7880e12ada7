package openai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	openaigo "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/zowobo/relay"
)

// Client calls the OpenAI Assistants and audio APIs
type Client struct {
	api             openaigo.Client
	assistantID     string
	transcribeModel string
}

// NewClient creates a new client which runs the given assistant
func NewClient(httpClient *http.Client, baseURL, apiKey, assistantID, transcribeModel string) (*Client, error) {
	if _, err := url.ParseRequestURI(baseURL); err != nil {
		return nil, fmt.Errorf("invalid OpenAI base URL: %w", err)
	}

	api := openaigo.NewClient(
		option.WithHTTPClient(httpClient),
		option.WithBaseURL(baseURL),
		option.WithAPIKey(apiKey),
		option.WithHeader("OpenAI-Beta", "assistants=v2"),
		option.WithMaxRetries(0),
	)

	return &Client{api: api, assistantID: assistantID, transcribeModel: transcribeModel}, nil
}

// CreateThread creates a new empty thread
func (c *Client) CreateThread(ctx context.Context) (relay.ThreadRef, error) {
	thread, err := c.api.Beta.Threads.New(ctx, openaigo.BetaThreadNewParams{})
	if err != nil {
		return relay.NilThreadRef, wrapError("creating thread", err)
	}
	if thread.ID == "" {
		return relay.NilThreadRef, errors.New("no id in thread response")
	}
	return relay.ThreadRef(thread.ID), nil
}

// AddMessage adds a user message to the given thread
func (c *Client) AddMessage(ctx context.Context, thread relay.ThreadRef, text string) error {
	_, err := c.api.Beta.Threads.Messages.New(ctx, string(thread), openaigo.BetaThreadMessageNewParams{
		Role:    openaigo.BetaThreadMessageNewParamsRoleUser,
		Content: openaigo.BetaThreadMessageNewParamsContentUnion{OfString: openaigo.String(text)},
	})
	return wrapError("adding message", err)
}

// CreateRun starts a run of our assistant on the given thread. Any instructions are appended to the
// assistant's own.
func (c *Client) CreateRun(ctx context.Context, thread relay.ThreadRef, instructions string) (*relay.Run, error) {
	params := openaigo.BetaThreadRunNewParams{AssistantID: c.assistantID}
	if instructions != "" {
		params.AdditionalInstructions = openaigo.String(instructions)
	}

	run, err := c.api.Beta.Threads.Runs.New(ctx, string(thread), params)
	if err != nil {
		return nil, wrapError("creating run", err)
	}
	return newRun(run, thread)
}

// GetRun fetches the current state of the given run
func (c *Client) GetRun(ctx context.Context, thread relay.ThreadRef, runID string) (*relay.Run, error) {
	run, err := c.api.Beta.Threads.Runs.Get(ctx, string(thread), runID)
	if err != nil {
		return nil, wrapError("fetching run", err)
	}
	return newRun(run, thread)
}

// CancelRun asks for the given run to be cancelled
func (c *Client) CancelRun(ctx context.Context, thread relay.ThreadRef, runID string) error {
	_, err := c.api.Beta.Threads.Runs.Cancel(ctx, string(thread), runID)
	return wrapError("cancelling run", err)
}

// LatestReply returns the text of the newest assistant message created by the given run
func (c *Client) LatestReply(ctx context.Context, thread relay.ThreadRef, runID string) (string, error) {
	page, err := c.api.Beta.Threads.Messages.List(ctx, string(thread), openaigo.BetaThreadMessageListParams{
		Order: openaigo.BetaThreadMessageListParamsOrderDesc,
		Limit: openaigo.Int(1),
		RunID: openaigo.String(runID),
	})
	if err != nil {
		return "", wrapError("listing messages", err)
	}
	if len(page.Data) == 0 {
		return "", fmt.Errorf("no messages for run %s", runID)
	}

	msg := page.Data[0]
	if msg.Role != openaigo.MessageRoleAssistant {
		return "", fmt.Errorf("newest message for run %s has role '%s'", runID, msg.Role)
	}

	for _, content := range msg.Content {
		if content.Type == "text" && content.Text.Value != "" {
			return content.Text.Value, nil
		}
	}
	return "", fmt.Errorf("newest message for run %s has no text", runID)
}

func newRun(run *openaigo.Run, thread relay.ThreadRef) (*relay.Run, error) {
	if run.ID == "" {
		return nil, errors.New("no id in run response")
	}
	if run.Status == "" {
		return nil, fmt.Errorf("no status in run response for %s", run.ID)
	}
	return &relay.Run{ID: run.ID, Thread: thread, Status: relay.RunStatus(run.Status)}, nil
}

// wraps an error from the API, keeping just the status and message of API errors
func wrapError(action string, err error) error {
	if err == nil {
		return nil
	}

	var apiErr *openaigo.Error
	if errors.As(err, &apiErr) {
		return fmt.Errorf("error %s: received status %d", action, apiErr.StatusCode)
	}
	return fmt.Errorf("error %s: %w", action, err)
}

var _ relay.Assistant = (*Client)(nil)
