package whatsapp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/buger/jsonparser"
	"github.com/nyaruka/gocommon/httpx"
	"github.com/nyaruka/gocommon/jsonx"
	"github.com/zowobo/relay"
)

const (
	// max characters in a text message body
	maxMsgLength = 4096

	// max bytes we read from Graph API JSON responses
	maxResponseBytes = 1024 * 1024
)

// Client calls the WhatsApp Cloud API to resolve and download media and to send replies
type Client struct {
	httpClient    *http.Client
	graphURL      *url.URL
	accessToken   string
	phoneNumberID string
	sendTimeout   time.Duration
}

// NewClient creates a new client for the given Graph API base URL and version
func NewClient(httpClient *http.Client, graphURL, version, accessToken, phoneNumberID string, sendTimeout time.Duration) (*Client, error) {
	base, err := url.Parse(graphURL)
	if err != nil {
		return nil, fmt.Errorf("invalid graph URL: %w", err)
	}
	path, _ := url.Parse(version + "/")

	return &Client{
		httpClient:    httpClient,
		graphURL:      base.ResolveReference(path),
		accessToken:   accessToken,
		phoneNumberID: phoneNumberID,
		sendTimeout:   sendTimeout,
	}, nil
}

func (c *Client) endpoint(p string) string {
	path, _ := url.Parse(p)
	return c.graphURL.ResolveReference(path).String()
}

func (c *Client) newRequest(ctx context.Context, method, url string, body []byte) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	if c.isTokenHost(req.URL) {
		req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", c.accessToken))
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Accept", "application/json")
	}
	return req, nil
}

// hosts outside of the Graph API which serve media and accept our access token
var tokenHostSuffixes = []string{".facebook.com", ".fbsbx.com", ".whatsapp.net"}

// whether our access token can be sent to the given URL
func (c *Client) isTokenHost(u *url.URL) bool {
	host := strings.ToLower(u.Hostname())
	if host == strings.ToLower(c.graphURL.Hostname()) {
		return true
	}
	if u.Scheme != "https" {
		return false
	}
	for _, suffix := range tokenHostSuffixes {
		if strings.HasSuffix(host, suffix) || host == suffix[1:] {
			return true
		}
	}
	return false
}

// ResolveMedia looks up the download URL and type of the media with the given id
func (c *Client) ResolveMedia(ctx context.Context, mediaID string) (*relay.MediaRef, error) {
	req, err := c.newRequest(ctx, http.MethodGet, c.endpoint(url.PathEscape(mediaID)), nil)
	if err != nil {
		return nil, err
	}

	trace, err := httpx.DoTrace(c.httpClient, req, nil, nil, maxResponseBytes)
	if err != nil {
		return nil, fmt.Errorf("error resolving media %s: %w", mediaID, err)
	}
	if trace.Response.StatusCode/100 != 2 {
		return nil, fmt.Errorf("error resolving media %s: received status %d", mediaID, trace.Response.StatusCode)
	}

	mediaURL, err := jsonparser.GetString(trace.ResponseBody, "url")
	if err != nil || mediaURL == "" {
		return nil, fmt.Errorf("no url in media response for %s", mediaID)
	}
	mimeType, _ := jsonparser.GetString(trace.ResponseBody, "mime_type")

	return &relay.MediaRef{URL: mediaURL, MimeType: mimeType}, nil
}

// FetchMedia downloads the given media, failing if it is larger than maxBytes
func (c *Client) FetchMedia(ctx context.Context, ref *relay.MediaRef, maxBytes int) ([]byte, error) {
	req, err := c.newRequest(ctx, http.MethodGet, ref.URL, nil)
	if err != nil {
		return nil, err
	}

	trace, err := httpx.DoTrace(c.httpClient, req, nil, nil, maxBytes)
	if err != nil {
		return nil, fmt.Errorf("error downloading media: %w", err)
	}
	if trace.Response.StatusCode/100 != 2 {
		return nil, fmt.Errorf("error downloading media: received status %d", trace.Response.StatusCode)
	}
	if len(trace.ResponseBody) == 0 {
		return nil, errors.New("error downloading media: empty body")
	}

	if ref.MimeType == "" {
		ref.MimeType = trace.Response.Header.Get("Content-Type")
	}
	return trace.ResponseBody, nil
}

// Deliver sends the given text to the given contact, split into several messages if it's too long
// for one. Each message must be accepted within the send timeout.
func (c *Client) Deliver(ctx context.Context, recipient relay.ContactID, text string) (relay.DeliveryOutcome, error) {
	sendURL := c.endpoint(fmt.Sprintf("%s/messages", c.phoneNumberID))

	for _, part := range SplitText(text, maxMsgLength) {
		payload := SendRequest{
			MessagingProduct: "whatsapp",
			RecipientType:    "individual",
			To:               string(recipient),
			Type:             "text",
			Text:             &Text{Body: part, PreviewURL: false},
		}

		externalID, err := c.send(ctx, sendURL, payload)
		if err != nil {
			return err.Outcome, err
		}

		slog.Debug("reply sent", "comp", "whatsapp", "contact", recipient, "external_id", externalID)
	}

	return relay.DeliveryDelivered, nil
}

func (c *Client) send(ctx context.Context, sendURL string, payload SendRequest) (string, *relay.DeliveryError) {
	ctx, cancel := context.WithTimeout(ctx, c.sendTimeout)
	defer cancel()

	req, err := c.newRequest(ctx, http.MethodPost, sendURL, jsonx.MustMarshal(payload))
	if err != nil {
		return "", failed("unable to create request", err)
	}

	trace, err := httpx.DoTrace(c.httpClient, req, nil, nil, maxResponseBytes)
	if err != nil {
		if isTimeout(ctx, err) {
			return "", &relay.DeliveryError{Outcome: relay.DeliveryTimedOut, Reason: fmt.Sprintf("not accepted within %s", c.sendTimeout), Err: err}
		}
		return "", failed("connection failed", err)
	}
	if trace.Response.StatusCode/100 == 5 {
		return "", failed(fmt.Sprintf("received status %d", trace.Response.StatusCode), nil)
	}

	resp := &SendResponse{}
	if err := json.Unmarshal(trace.ResponseBody, resp); err != nil {
		return "", failed("unable to parse response", err)
	}

	if slices.Contains(ThrottlingErrorCodes, resp.Error.Code) {
		return "", failed("throttled", errors.New(resp.Error.Message))
	}
	if resp.Error.Code != 0 {
		return "", failed(fmt.Sprintf("error code %s", strconv.Itoa(resp.Error.Code)), errors.New(resp.Error.Message))
	}
	if trace.Response.StatusCode/100 != 2 {
		return "", failed(fmt.Sprintf("received status %d", trace.Response.StatusCode), nil)
	}
	if len(resp.Messages) == 0 || resp.Messages[0].ID == "" {
		return "", failed("no message id in response", nil)
	}

	return resp.Messages[0].ID, nil
}

func failed(reason string, err error) *relay.DeliveryError {
	return &relay.DeliveryError{Outcome: relay.DeliveryTransportFailed, Reason: reason, Err: err}
}

func isTimeout(ctx context.Context, err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

var _ relay.MediaSource = (*Client)(nil)
var _ relay.Messenger = (*Client)(nil)
