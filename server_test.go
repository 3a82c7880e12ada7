package relay_test

import (
	"bytes"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/nyaruka/gocommon/httpx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zowobo/relay"
	"github.com/zowobo/relay/handlers/whatsapp"
	"github.com/zowobo/relay/test"
	"github.com/zowobo/relay/utils"
)

const testAppSecret = "fb_app_secret"

func newTestServer(t *testing.T, tr *testRelay) (*httptest.Server, *relay.Server) {
	config := relay.NewConfig()
	config.Version = "1.2.3"
	config.ThreadStore = "mock"
	config.WhatsappAppSecret = testAppSecret
	config.WhatsappVerifyToken = "sesame"
	config.StatusUsername = "admin"
	config.StatusPassword = "password123"

	server := relay.NewServer(config, tr, whatsapp.NewParser(), relay.NewMemorySeen(time.Hour), tr.store)

	ts := httptest.NewServer(server.Router())
	t.Cleanup(ts.Close)
	return ts, server
}

func signBody(body []byte) string {
	return "sha256=" + utils.SignHMAC256(testAppSecret, body)
}

func TestServerVerify(t *testing.T) {
	tr := newTestRelay(t, time.Second)
	ts, _ := newTestServer(t, tr)

	request := func(query string) (int, string) {
		req, _ := http.NewRequest("GET", ts.URL+"/webhook?"+query, nil)
		trace, err := httpx.DoTrace(http.DefaultClient, req, nil, nil, 0)
		require.NoError(t, err)
		return trace.Response.StatusCode, string(trace.ResponseBody)
	}

	statusCode, respBody := request("hub.mode=subscribe&hub.verify_token=sesame&hub.challenge=1158201444")
	assert.Equal(t, 200, statusCode)
	assert.Equal(t, "1158201444", respBody)

	statusCode, respBody = request("hub.mode=subscribe&hub.verify_token=open&hub.challenge=1158201444")
	assert.Equal(t, 403, statusCode)
	assert.Contains(t, respBody, "token does not match secret")

	statusCode, respBody = request("hub.mode=unsubscribe&hub.verify_token=sesame&hub.challenge=1158201444")
	assert.Equal(t, 400, statusCode)
	assert.Contains(t, respBody, "unknown request")

	statusCode, _ = request("")
	assert.Equal(t, 400, statusCode)
}

func TestServerReceive(t *testing.T) {
	tr := newTestRelay(t, time.Second)
	ts, server := newTestServer(t, tr)

	post := func(body []byte, signature string) (int, string) {
		req, _ := http.NewRequest("POST", ts.URL+"/webhook", bytes.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		if signature != "" {
			req.Header.Set("X-Hub-Signature-256", signature)
		}
		trace, err := httpx.DoTrace(http.DefaultClient, req, nil, nil, 0)
		require.NoError(t, err)
		return trace.Response.StatusCode, string(trace.ResponseBody)
	}

	textBody := test.ReadFile("handlers/whatsapp/testdata/text.json")

	// missing and invalid signatures are rejected
	statusCode, respBody := post(textBody, "")
	assert.Equal(t, 400, statusCode)
	assert.Contains(t, respBody, "missing request signature")

	statusCode, respBody = post(textBody, "sha256=1234")
	assert.Equal(t, 400, statusCode)
	assert.Contains(t, respBody, "invalid request signature")

	statusCode, respBody = post(textBody, "sha256="+utils.SignHMAC256("wrong_secret", textBody))
	assert.Equal(t, 400, statusCode)
	assert.Contains(t, respBody, "invalid request signature")

	// nothing made it through to the relay
	tr.Stop()
	assert.Len(t, tr.messenger.Deliveries(), 0)

	// a properly signed message is accepted
	statusCode, respBody = post(textBody, signBody(textBody))
	assert.Equal(t, 200, statusCode)
	assert.JSONEq(t, `{"message":"Events Handled","data":[{"msg_id":"wamid.text1","contact_id":"123","status":"accepted"}]}`, respBody)

	// and when WhatsApp redelivers it, it's a duplicate
	statusCode, respBody = post(textBody, signBody(textBody))
	assert.Equal(t, 200, statusCode)
	assert.JSONEq(t, `{"message":"Events Handled","data":[{"msg_id":"wamid.text1","contact_id":"123","status":"duplicate"}]}`, respBody)

	tr.Stop()

	assert.Equal(t, map[relay.ContactID]relay.ThreadRef{"123": "thread_1"}, tr.store.Threads())
	assert.Equal(t, []test.Delivery{{Recipient: "123", Text: "You said: koman ou ye?"}}, tr.messenger.Deliveries())

	// status updates are acknowledged but ignored
	statusBody := test.ReadFile("handlers/whatsapp/testdata/status.json")
	statusCode, respBody = post(statusBody, signBody(statusBody))
	assert.Equal(t, 200, statusCode)
	assert.Contains(t, respBody, `"message":"Ignored"`)
	assert.Contains(t, respBody, "ignoring 1 status updates")

	// as are message types we can't handle
	imageBody := test.ReadFile("handlers/whatsapp/testdata/image.json")
	statusCode, respBody = post(imageBody, signBody(imageBody))
	assert.Equal(t, 200, statusCode)
	assert.Contains(t, respBody, `"status":"ignored"`)
	assert.Contains(t, respBody, "unsupported message type 'image'")

	// and bodies which aren't JSON at all
	junk := []byte(`this is not JSON`)
	statusCode, respBody = post(junk, signBody(junk))
	assert.Equal(t, 200, statusCode)
	assert.Contains(t, respBody, `"message":"Ignored"`)

	// bodies which are too large are rejected
	big := []byte(`{"object":"` + strings.Repeat("x", 2*1024*1024) + `"}`)
	req := httptest.NewRequest("POST", "/webhook", bytes.NewReader(big))
	req.Header.Set("X-Hub-Signature-256", signBody(big))
	rr := httptest.NewRecorder()
	server.Router().ServeHTTP(rr, req)
	assert.Equal(t, 413, rr.Code)

	tr.Stop()
	assert.Len(t, tr.messenger.Deliveries(), 1)
}

func TestServerStatus(t *testing.T) {
	tr := newTestRelay(t, time.Second)
	ts, _ := newTestServer(t, tr)

	request := func(method, path, user, pass string) (int, string) {
		req, _ := http.NewRequest(method, ts.URL+path, nil)
		if user != "" {
			req.SetBasicAuth(user, pass)
		}
		trace, err := httpx.DoTrace(http.DefaultClient, req, nil, nil, 0)
		require.NoError(t, err)
		return trace.Response.StatusCode, string(trace.ResponseBody)
	}

	statusCode, respBody := request("GET", "/", "", "")
	assert.Equal(t, 200, statusCode)
	assert.Contains(t, respBody, "1.2.3")
	assert.Contains(t, respBody, "POST /webhook")

	// can't access status page without auth
	statusCode, respBody = request("GET", "/status", "", "")
	assert.Equal(t, 401, statusCode)
	assert.Contains(t, respBody, "Unauthorised")

	statusCode, _ = request("GET", "/status", "admin", "wrong")
	assert.Equal(t, 401, statusCode)

	statusCode, respBody = request("GET", "/status", "admin", "password123")
	assert.Equal(t, 200, statusCode)
	assert.Contains(t, respBody, `"status":"ok"`)
	assert.Contains(t, respBody, `"thread_store":"mock"`)

	tr.store.PingErr = errors.New("connection refused")

	statusCode, respBody = request("GET", "/status", "admin", "password123")
	assert.Equal(t, 503, statusCode)
	assert.Contains(t, respBody, "thread store unreachable: connection refused")

	statusCode, respBody = request("GET", "/nothing", "", "")
	assert.Equal(t, 404, statusCode)
	assert.Contains(t, respBody, "not found: /nothing")

	statusCode, respBody = request("DELETE", "/webhook", "", "")
	assert.Equal(t, 405, statusCode)
	assert.Contains(t, respBody, "method not allowed: DELETE")
}
