package share

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/dghubble/oauth1"
	"github.com/sirupsen/logrus"
	"github.com/skip2/go-qrcode"

	"github.com/ivlev/swimprogress/internal/config"
	"github.com/ivlev/swimprogress/internal/engine"
	"github.com/ivlev/swimprogress/internal/renderer"
)

var ErrSharingFailure = errors.New("sharing failure")

const (
	uploadURL  = "https://upload.twitter.com/1.1/media/upload.json"
	tweetURL   = "https://api.twitter.com/2/tweets"
	intentURL  = "https://twitter.com/intent/tweet"
	statusURL  = "https://x.com/i/web/status/"
	chunkBytes = 1 << 20
)

// Result describes how an artifact was shared.
type Result struct {
	// Method is "native" when the post was published directly and "intent"
	// when the user has to finish in the web dialog at URL.
	Method string
	URL    string
	PostID string
	// NativeErr is set when a direct post was attempted and failed.
	NativeErr error
}

type Service struct {
	cfg       config.ShareConfig
	uploadURL string
	tweetURL  string
}

func NewService(cfg config.ShareConfig) *Service {
	return &Service{
		cfg:       cfg,
		uploadURL: uploadURL,
		tweetURL:  tweetURL,
	}
}

// CanPost reports whether direct posting is configured.
func (s *Service) CanPost() bool {
	return s.cfg.Complete()
}

// Share posts the artifact with text when credentials are configured and
// falls back to the web intent dialog otherwise. A failed direct post is
// not fatal: the artifact stays on disk and the intent URL is returned with
// NativeErr set.
func (s *Service) Share(ctx context.Context, a *engine.Artifact, text string) (*Result, error) {
	if a == nil || len(a.Data) == 0 {
		return nil, fmt.Errorf("%w: nothing to share", ErrSharingFailure)
	}

	var nativeErr error
	if s.CanPost() {
		id, err := s.post(ctx, a, text)
		if err == nil {
			logrus.WithField("post", id).Infof("[+] Shared %s", a.Filename)
			return &Result{Method: "native", URL: statusURL + id, PostID: id}, nil
		}
		nativeErr = fmt.Errorf("%w: %v", ErrSharingFailure, err)
		logrus.Warnf("[!] direct post failed, falling back to web intent: %v", err)
	}

	return &Result{
		Method:    "intent",
		URL:       IntentURL(text, s.cfg.Hashtags),
		NativeErr: nativeErr,
	}, nil
}

func (s *Service) post(ctx context.Context, a *engine.Artifact, text string) (string, error) {
	oauthConfig := oauth1.NewConfig(s.cfg.ConsumerKey, s.cfg.ConsumerSecret)
	token := oauth1.NewToken(s.cfg.AccessToken, s.cfg.AccessTokenSecret)
	client := &xClient{
		http:      oauthConfig.Client(ctx, token),
		uploadURL: s.uploadURL,
		tweetURL:  s.tweetURL,
	}

	mediaID, err := client.upload(ctx, a.Data, a.MIMEType)
	if err != nil {
		return "", fmt.Errorf("media upload: %w", err)
	}
	return client.tweet(ctx, withHashtags(text, s.cfg.Hashtags), mediaID)
}

// IntentURL is the web dialog fallback for sharing text.
func IntentURL(text string, hashtags []string) string {
	q := url.Values{}
	q.Set("text", text)
	if len(hashtags) > 0 {
		q.Set("hashtags", strings.Join(hashtags, ","))
	}
	return intentURL + "?" + q.Encode()
}

// QRCode renders a PNG QR code of a share URL.
func QRCode(link string, size int) ([]byte, error) {
	png, err := qrcode.Encode(link, qrcode.Medium, size)
	if err != nil {
		return nil, fmt.Errorf("%w: qr code: %v", ErrSharingFailure, err)
	}
	return png, nil
}

// DefaultText is the post text used when the caller gives none.
func DefaultText(value, goal int, unit string) string {
	pct, _, _ := renderer.OverlayText(value, goal, unit)
	return fmt.Sprintf("%d / %d %s done (%d%%) on my swim challenge!", value, goal, unit, pct)
}

func withHashtags(text string, hashtags []string) string {
	var b strings.Builder
	b.WriteString(text)
	for _, h := range hashtags {
		b.WriteString(" #")
		b.WriteString(strings.TrimPrefix(h, "#"))
	}
	return b.String()
}
