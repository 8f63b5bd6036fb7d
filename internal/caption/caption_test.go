package caption

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClaudeClient_Caption(t *testing.T) {
	var got anthropicRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/messages", r.URL.Path)
		assert.Equal(t, "secret", r.Header.Get("x-api-key"))
		assert.Equal(t, "2023-06-01", r.Header.Get("anthropic-version"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Write([]byte(`{"content":[{"type":"text","text":"  \"A red triangle.\"  "}]}`))
	}))
	defer srv.Close()

	stats := NewLLMStats(time.Hour)
	c, err := NewCaptioner(Settings{Provider: "claude", APIKey: "secret", BaseURL: srv.URL, Stats: stats})
	require.NoError(t, err)

	caption, err := c.Caption(context.Background(), []byte{1, 2, 3}, "image/png")
	require.NoError(t, err)
	assert.Equal(t, "A red triangle", caption)
	assert.Equal(t, defaultClaudeModel, c.Model())
	assert.Equal(t, 1, stats.Snapshot().Count)

	require.Len(t, got.Messages, 1)
	blocks := got.Messages[0].Content
	require.Len(t, blocks, 2)
	assert.Equal(t, "image", blocks[0].Type)
	assert.Equal(t, "image/png", blocks[0].Source.MediaType)
	assert.Equal(t, "AQID", blocks[0].Source.Data)
	assert.Equal(t, Prompt, blocks[1].Text)
}

func TestClaudeClient_StatusHandling(t *testing.T) {
	var status atomic.Int32
	status.Store(http.StatusServiceUnavailable)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(int(status.Load()))
		w.Write([]byte(`{"error":{"type":"overloaded_error","message":"busy"}}`))
	}))
	defer srv.Close()

	c := NewClaudeClient("k", "m", nil)
	c.baseURL = srv.URL

	_, err := c.Caption(context.Background(), []byte{0}, "image/jpeg")
	assert.True(t, IsRetryable(err), "5xx should be retryable: %v", err)

	status.Store(http.StatusBadRequest)
	_, err = c.Caption(context.Background(), []byte{0}, "image/jpeg")
	require.Error(t, err)
	assert.False(t, IsRetryable(err))
}

func TestOllamaClient_Caption(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		var req chatCompletionRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "llava", req.Model)
		require.Len(t, req.Messages[0].Content, 2)
		assert.Equal(t, "data:image/jpeg;base64,AQID", req.Messages[0].Content[1].ImageURL.URL)
		w.Write([]byte(`{"choices":[{"message":{"content":"a cat sitting"}}]}`))
	}))
	defer srv.Close()

	c, err := NewCaptioner(Settings{Provider: "ollama", BaseURL: srv.URL + "/"})
	require.NoError(t, err)
	caption, err := c.Caption(context.Background(), []byte{1, 2, 3}, "image/jpeg")
	require.NoError(t, err)
	assert.Equal(t, "a cat sitting", caption)
}

func TestNewCaptioner(t *testing.T) {
	c, err := NewCaptioner(Settings{})
	assert.NoError(t, err)
	assert.Nil(t, c)

	_, err = NewCaptioner(Settings{Provider: "claude"})
	assert.Error(t, err, "missing key")

	_, err = NewCaptioner(Settings{Provider: "bard"})
	assert.Error(t, err)
}

func TestCleanCaption(t *testing.T) {
	assert.Equal(t, "two apples", cleanCaption("```\n'two   apples.'\n```"))
	assert.Equal(t, "", cleanCaption("  \"\"  "))
}

// fakeCaptioner echoes the image bytes, failing permanently for images of a
// listed length and transiently for the first attempts.
type fakeCaptioner struct {
	mu        sync.Mutex
	calls     map[string]int
	transient int // retryable failures before success
	fail      map[int]bool
}

func (f *fakeCaptioner) Model() string { return "fake" }

func (f *fakeCaptioner) Caption(_ context.Context, image []byte, mediaType string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := string(image)
	f.calls[key]++
	if f.fail[len(image)] {
		return "", errors.New("model refused")
	}
	if f.calls[key] <= f.transient {
		return "", &RetryableError{StatusCode: 429, Message: "slow down"}
	}
	return "caption of " + key + " as " + mediaType, nil
}

func writeFiles(t *testing.T, dir string, files map[string]string) {
	t.Helper()
	for name, body := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644))
	}
}

func TestRunner_CaptionDir(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{
		"page1_image1.png":  "p1",
		"page2_image1.jpg":  "p2",
		"page3_image1.JPEG": "p3",
		"page4_image1.jpe":  "p4",
		"notes.txt":         "nope",
		"page5_image1.png":  "broken",
	})
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub.png"), 0o755))

	fake := &fakeCaptioner{calls: map[string]int{}, transient: 1, fail: map[int]bool{len("broken"): true}}
	r := NewRunner(fake, RunnerConfig{Concurrency: 3, RequestsPerSecond: 1000}, nil)
	r.backoff = func(int) time.Duration { return time.Millisecond }

	captions, err := r.CaptionDir(context.Background(), dir)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{
		"page1_image1.png":  "caption of p1 as image/png",
		"page2_image1.jpg":  "caption of p2 as image/jpeg",
		"page3_image1.JPEG": "caption of p3 as image/jpeg",
	}, captions)
	assert.Equal(t, 2, fake.calls["p1"], "one retry after the transient error")
	assert.Equal(t, 1, fake.calls["broken"], "permanent errors are not retried")
	assert.Zero(t, fake.calls["p4"])
}

func TestRunner_RetriesExhausted(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{"a.png": "a"})

	fake := &fakeCaptioner{calls: map[string]int{}, transient: 10}
	r := NewRunner(fake, RunnerConfig{}, nil)
	r.backoff = func(int) time.Duration { return 0 }

	captions, err := r.CaptionDir(context.Background(), dir)
	require.NoError(t, err)
	assert.Empty(t, captions)
	assert.Equal(t, MaxRetries, fake.calls["a"])
}

func TestRunner_MissingDir(t *testing.T) {
	r := NewRunner(&fakeCaptioner{calls: map[string]int{}}, RunnerConfig{}, nil)
	_, err := r.CaptionDir(context.Background(), filepath.Join(t.TempDir(), "absent"))
	assert.Error(t, err)
}

func TestWriteReadCaptions(t *testing.T) {
	path := filepath.Join(t.TempDir(), "image_captions.json")
	in := map[string]string{"page1_image1.png": "a <b> & c"}
	require.NoError(t, WriteCaptions(path, in))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(data), `"a <b> & c"`))

	out, err := ReadCaptions(path)
	require.NoError(t, err)
	assert.Equal(t, in, out)
}

func TestBackoff(t *testing.T) {
	for attempt, base := range []time.Duration{time.Second, 2 * time.Second, 4 * time.Second} {
		d := Backoff(attempt)
		assert.GreaterOrEqual(t, d, base)
		assert.Less(t, d, base+base/2)
	}
	assert.Less(t, Backoff(10), 45*time.Second)
}
