package share

import (
	"bytes"
	"context"
	"encoding/json"
	"image/png"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ivlev/swimprogress/internal/config"
	"github.com/ivlev/swimprogress/internal/engine"
)

func credentials() config.ShareConfig {
	return config.ShareConfig{
		ConsumerKey:       "ck",
		ConsumerSecret:    "cs",
		AccessToken:       "at",
		AccessTokenSecret: "ats",
		Hashtags:          []string{"swimming"},
	}
}

func artifact(size int) *engine.Artifact {
	return &engine.Artifact{
		Data:     bytes.Repeat([]byte{'x'}, size),
		Filename: "swim-progress-2200-of-8800units.gif",
		MIMEType: "image/gif",
	}
}

// fakeX records upload commands and answers like the X API.
type fakeX struct {
	mu       sync.Mutex
	commands []string
	received int
	tweet    map[string]any
	failPost bool
}

func (f *fakeX) handler(t *testing.T) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/upload", func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.Header.Get("Authorization"), "OAuth ")

		var command string
		if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/") {
			if !assert.NoError(t, r.ParseMultipartForm(4<<20)) {
				w.WriteHeader(http.StatusBadRequest)
				return
			}
			command = r.FormValue("command")
			file, _, err := r.FormFile("media")
			if !assert.NoError(t, err) {
				w.WriteHeader(http.StatusBadRequest)
				return
			}
			n, _ := io.Copy(io.Discard, file)
			f.mu.Lock()
			f.received += int(n)
			f.mu.Unlock()
		} else {
			_ = r.ParseForm()
			command = r.FormValue("command")
		}

		f.mu.Lock()
		f.commands = append(f.commands, command)
		f.mu.Unlock()

		switch command {
		case "INIT":
			_, _ = w.Write([]byte(`{"media_id_string":"710511363345354753"}`))
		case "APPEND":
			w.WriteHeader(http.StatusNoContent)
		case "FINALIZE":
			_, _ = w.Write([]byte(`{"media_id_string":"710511363345354753","processing_info":{"state":"in_progress","check_after_secs":0}}`))
		case "STATUS":
			_, _ = w.Write([]byte(`{"media_id_string":"710511363345354753","processing_info":{"state":"succeeded"}}`))
		default:
			w.WriteHeader(http.StatusBadRequest)
		}
	})
	mux.HandleFunc("/tweets", func(w http.ResponseWriter, r *http.Request) {
		if f.failPost {
			w.WriteHeader(http.StatusForbidden)
			_, _ = w.Write([]byte(`{"detail":"You are not permitted to perform this action."}`))
			return
		}
		var body map[string]any
		if !assert.NoError(t, json.NewDecoder(r.Body).Decode(&body)) {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		f.mu.Lock()
		f.tweet = body
		f.mu.Unlock()
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"data":{"id":"1445880548472328192","text":"ok"}}`))
	})
	return mux
}

func newTestService(t *testing.T, f *fakeX) *Service {
	srv := httptest.NewServer(f.handler(t))
	t.Cleanup(srv.Close)

	s := NewService(credentials())
	s.uploadURL = srv.URL + "/upload"
	s.tweetURL = srv.URL + "/tweets"
	return s
}

func TestShareNative(t *testing.T) {
	f := &fakeX{}
	s := newTestService(t, f)

	res, err := s.Share(context.Background(), artifact(chunkBytes+10), "2200 / 8800 units")
	require.NoError(t, err)

	assert.Equal(t, "native", res.Method)
	assert.Equal(t, "1445880548472328192", res.PostID)
	assert.Equal(t, "https://x.com/i/web/status/1445880548472328192", res.URL)
	assert.NoError(t, res.NativeErr)

	assert.Equal(t, []string{"INIT", "APPEND", "APPEND", "FINALIZE", "STATUS"}, f.commands)
	assert.Equal(t, chunkBytes+10, f.received)
	assert.Equal(t, "2200 / 8800 units #swimming", f.tweet["text"])
	assert.Equal(t, map[string]any{"media_ids": []any{"710511363345354753"}}, f.tweet["media"])
}

func TestShareFallsBackOnFailure(t *testing.T) {
	f := &fakeX{failPost: true}
	s := newTestService(t, f)

	res, err := s.Share(context.Background(), artifact(10), "hello")
	require.NoError(t, err)

	assert.Equal(t, "intent", res.Method)
	assert.ErrorIs(t, res.NativeErr, ErrSharingFailure)
	assert.Contains(t, res.NativeErr.Error(), "not permitted")
	assert.True(t, strings.HasPrefix(res.URL, "https://twitter.com/intent/tweet?"))
}

func TestShareWithoutCredentials(t *testing.T) {
	s := NewService(config.ShareConfig{Hashtags: []string{"swimming", "goals"}})
	assert.False(t, s.CanPost())

	res, err := s.Share(context.Background(), artifact(10), "50% done")
	require.NoError(t, err)
	assert.Equal(t, "intent", res.Method)
	assert.Nil(t, res.NativeErr)

	u, err := url.Parse(res.URL)
	require.NoError(t, err)
	assert.Equal(t, "50% done", u.Query().Get("text"))
	assert.Equal(t, "swimming,goals", u.Query().Get("hashtags"))
}

func TestShareRejectsEmptyArtifact(t *testing.T) {
	s := NewService(config.ShareConfig{})
	_, err := s.Share(context.Background(), &engine.Artifact{}, "x")
	assert.ErrorIs(t, err, ErrSharingFailure)
	_, err = s.Share(context.Background(), nil, "x")
	assert.ErrorIs(t, err, ErrSharingFailure)
}

func TestQRCode(t *testing.T) {
	data, err := QRCode(IntentURL("hi", nil), 128)
	require.NoError(t, err)

	img, err := png.Decode(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, 128, img.Bounds().Dx())
}

func TestDefaultText(t *testing.T) {
	assert.Equal(t, "2200 / 8800 units done (25%) on my swim challenge!", DefaultText(2200, 8800, "units"))
	assert.Equal(t, "5 / 0 units done (0%) on my swim challenge!", DefaultText(5, 0, "units"))
	// rounds like the medal overlay does
	assert.Equal(t, "2199 / 8800 units done (25%) on my swim challenge!", DefaultText(2199, 8800, "units"))
	assert.Equal(t, "8799 / 8800 units done (100%) on my swim challenge!", DefaultText(8799, 8800, "units"))
}

func TestMediaCategory(t *testing.T) {
	assert.Equal(t, "tweet_gif", mediaCategory("image/gif"))
	assert.Equal(t, "tweet_video", mediaCategory("video/webm"))
}
