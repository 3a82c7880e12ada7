package utils

import (
	"net/http"
	"sync"
	"time"
)

// HTTPUserAgent is the user agent sent on all our outgoing requests
var HTTPUserAgent = "Relay/Dev"

var (
	transport *http.Transport
	client    *http.Client
	once      sync.Once
)

// GetHTTPClient returns the shared HTTP client used by all relay collaborators. Individual requests
// are expected to carry their own deadlines, the client timeout is only a backstop.
func GetHTTPClient() *http.Client {
	once.Do(func() {
		transport = &http.Transport{
			MaxIdleConns:        32,
			MaxIdleConnsPerHost: 16,
			IdleConnTimeout:     90 * time.Second,
		}
		client = &http.Client{Transport: &userAgentTransport{base: transport}, Timeout: 5 * time.Minute}
	})

	return client
}

type userAgentTransport struct {
	base http.RoundTripper
}

func (t *userAgentTransport) RoundTrip(r *http.Request) (*http.Response, error) {
	if r.Header.Get("User-Agent") == "" {
		r = r.Clone(r.Context())
		r.Header.Set("User-Agent", HTTPUserAgent)
	}
	return t.base.RoundTrip(r)
}
