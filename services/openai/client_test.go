package openai_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zowobo/relay"
	"github.com/zowobo/relay/services/openai"
)

func newTestClient(t *testing.T, baseURL string) *openai.Client {
	client, err := openai.NewClient(http.DefaultClient, baseURL, "sk-sesame", "asst_123", "whisper-1")
	require.NoError(t, err)
	return client
}

type mockResponse struct {
	status int
	body   string
}

// starts a server which replies to each "METHOD path" with its queued responses in order
func newMockAPI(t *testing.T, responses map[string][]mockResponse) (*httptest.Server, *[]*http.Request) {
	var mutex sync.Mutex
	var requests []*http.Request

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mutex.Lock()
		defer mutex.Unlock()

		requests = append(requests, r.Clone(context.Background()))

		key := r.Method + " " + r.URL.Path
		queued := responses[key]
		if !assert.NotEmpty(t, queued, "unexpected request %s", key) {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		responses[key] = queued[1:]

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(queued[0].status)
		w.Write([]byte(queued[0].body))
	}))
	t.Cleanup(server.Close)

	return server, &requests
}

func TestThreadsAndRuns(t *testing.T) {
	server, _ := newMockAPI(t, map[string][]mockResponse{
		"POST /v1/threads": {
			{200, `{"id": "thread_abc", "object": "thread", "created_at": 1699012949}`},
			{401, `{"error": {"message": "Incorrect API key provided", "type": "invalid_request_error"}}`},
		},
		"POST /v1/threads/thread_abc/messages": {
			{200, `{"id": "msg_1", "object": "thread.message", "role": "user"}`},
		},
		"POST /v1/threads/thread_abc/runs": {
			{200, `{"id": "run_1", "object": "thread.run", "status": "queued", "thread_id": "thread_abc"}`},
			{200, `{"object": "thread.run"}`},
		},
		"GET /v1/threads/thread_abc/runs/run_1": {
			{200, `{"id": "run_1", "object": "thread.run", "status": "in_progress"}`},
			{200, `{"id": "run_1", "object": "thread.run", "status": "completed"}`},
		},
		"POST /v1/threads/thread_abc/runs/run_1/cancel": {
			{200, `{"id": "run_1", "object": "thread.run", "status": "cancelling"}`},
		},
	})

	ctx := context.Background()
	client := newTestClient(t, server.URL+"/v1/")

	thread, err := client.CreateThread(ctx)
	assert.NoError(t, err)
	assert.Equal(t, relay.ThreadRef("thread_abc"), thread)

	// error statuses aren't retried
	_, err = client.CreateThread(ctx)
	assert.EqualError(t, err, "error creating thread: received status 401")

	assert.NoError(t, client.AddMessage(ctx, thread, "koman ou ye?"))

	run, err := client.CreateRun(ctx, thread, "")
	assert.NoError(t, err)
	assert.Equal(t, &relay.Run{ID: "run_1", Thread: "thread_abc", Status: relay.RunStatusQueued}, run)

	_, err = client.CreateRun(ctx, thread, "")
	assert.EqualError(t, err, "no id in run response")

	run, err = client.GetRun(ctx, thread, "run_1")
	assert.NoError(t, err)
	assert.Equal(t, relay.RunStatusInProgress, run.Status)

	run, err = client.GetRun(ctx, thread, "run_1")
	assert.NoError(t, err)
	assert.Equal(t, relay.RunStatusCompleted, run.Status)

	assert.NoError(t, client.CancelRun(ctx, thread, "run_1"))
}

func TestLatestReply(t *testing.T) {
	server, requests := newMockAPI(t, map[string][]mockResponse{
		"GET /v1/threads/thread_abc/messages": {
			{200, `{"object": "list", "data": [{"id": "msg_2", "role": "assistant", "run_id": "run_1", "content": [{"type": "text", "text": {"value": "Mwen byen 【4:0†source】", "annotations": []}}]}]}`},
			{200, `{"object": "list", "data": []}`},
			{200, `{"object": "list", "data": [{"id": "msg_1", "role": "user", "content": [{"type": "text", "text": {"value": "koman ou ye?"}}]}]}`},
			{200, `{"object": "list", "data": [{"id": "msg_2", "role": "assistant", "content": [{"type": "image_file", "image_file": {"file_id": "file_1"}}]}]}`},
			{200, `{"object": "list", "data": [{"id": "msg_2", "role": "assistant", "content": [{"type": "image_file", "image_file": {"file_id": "file_1"}}, {"type": "text", "text": {"value": "See image"}}]}]}`},
		},
	})

	ctx := context.Background()
	client := newTestClient(t, server.URL+"/v1/")

	reply, err := client.LatestReply(ctx, "thread_abc", "run_1")
	assert.NoError(t, err)
	assert.Equal(t, "Mwen byen 【4:0†source】", reply)

	query := (*requests)[0].URL.Query()
	assert.Equal(t, "desc", query.Get("order"))
	assert.Equal(t, "1", query.Get("limit"))
	assert.Equal(t, "run_1", query.Get("run_id"))

	_, err = client.LatestReply(ctx, "thread_abc", "run_1")
	assert.EqualError(t, err, "no messages for run run_1")

	_, err = client.LatestReply(ctx, "thread_abc", "run_1")
	assert.EqualError(t, err, "newest message for run run_1 has role 'user'")

	_, err = client.LatestReply(ctx, "thread_abc", "run_1")
	assert.EqualError(t, err, "newest message for run run_1 has no text")

	reply, err = client.LatestReply(ctx, "thread_abc", "run_1")
	assert.NoError(t, err)
	assert.Equal(t, "See image", reply)
}

func TestRequestHeaders(t *testing.T) {
	var headers http.Header
	var body string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		headers = r.Header.Clone()
		b, _ := io.ReadAll(r.Body)
		body = string(b)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id": "run_1", "status": "queued"}`))
	}))
	defer server.Close()

	client := newTestClient(t, server.URL+"/v1/")

	_, err := client.CreateRun(context.Background(), "thread_abc", "You are having a conversation with John")
	assert.NoError(t, err)
	assert.Equal(t, "Bearer sk-sesame", headers.Get("Authorization"))
	assert.Equal(t, "assistants=v2", headers.Get("OpenAI-Beta"))
	assert.Equal(t, "application/json", headers.Get("Content-Type"))

	fields := map[string]any{}
	require.NoError(t, json.Unmarshal([]byte(body), &fields))
	assert.Equal(t, "asst_123", fields["assistant_id"])
	assert.Equal(t, "You are having a conversation with John", fields["additional_instructions"])

	_, err = client.CreateRun(context.Background(), "thread_abc", "")
	assert.NoError(t, err)

	fields = map[string]any{}
	require.NoError(t, json.Unmarshal([]byte(body), &fields))
	assert.Equal(t, "asst_123", fields["assistant_id"])
	assert.NotContains(t, fields, "additional_instructions")
}

func TestTranscribe(t *testing.T) {
	var model, filename string
	var audio []byte

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/audio/transcriptions", r.URL.Path)
		assert.Equal(t, "Bearer sk-sesame", r.Header.Get("Authorization"))

		require.NoError(t, r.ParseMultipartForm(1024*1024))
		model = r.FormValue("model")

		f, fh, err := r.FormFile("file")
		require.NoError(t, err)
		filename = fh.Filename
		audio, _ = io.ReadAll(f)

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"text": "koman ou ye?"}`))
	}))
	defer server.Close()

	wavPath := filepath.Join(t.TempDir(), "123-abc.wav")
	require.NoError(t, os.WriteFile(wavPath, []byte("RIFF....WAVE"), 0640))

	client := newTestClient(t, server.URL+"/v1/")

	text, err := client.Transcribe(context.Background(), wavPath)
	assert.NoError(t, err)
	assert.Equal(t, "koman ou ye?", text)
	assert.Equal(t, "whisper-1", model)
	assert.Equal(t, "123-abc.wav", filename)
	assert.Equal(t, []byte("RIFF....WAVE"), audio)

	_, err = client.Transcribe(context.Background(), filepath.Join(t.TempDir(), "missing.wav"))
	assert.ErrorContains(t, err, "unable to open audio file")
}
