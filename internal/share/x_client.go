package share

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const maxStatusPolls = 30

// xClient talks to the X media upload (v1.1, chunked) and post (v2) APIs.
// http must already sign requests.
type xClient struct {
	http      *http.Client
	uploadURL string
	tweetURL  string
}

type mediaResponse struct {
	MediaID        string `json:"media_id_string"`
	ProcessingInfo *struct {
		State          string `json:"state"`
		CheckAfterSecs int    `json:"check_after_secs"`
		Error          *struct {
			Message string `json:"message"`
		} `json:"error"`
	} `json:"processing_info"`
}

func mediaCategory(mimeType string) string {
	if strings.HasPrefix(mimeType, "video/") {
		return "tweet_video"
	}
	return "tweet_gif"
}

func (c *xClient) upload(ctx context.Context, data []byte, mimeType string) (string, error) {
	started, err := c.command(ctx, url.Values{
		"command":        {"INIT"},
		"total_bytes":    {strconv.Itoa(len(data))},
		"media_type":     {mimeType},
		"media_category": {mediaCategory(mimeType)},
	})
	if err != nil {
		return "", fmt.Errorf("INIT: %w", err)
	}
	if started.MediaID == "" {
		return "", fmt.Errorf("INIT: no media id in response")
	}

	for i, off := 0, 0; off < len(data); i, off = i+1, off+chunkBytes {
		end := off + chunkBytes
		if end > len(data) {
			end = len(data)
		}
		if err := c.appendChunk(ctx, started.MediaID, i, data[off:end]); err != nil {
			return "", fmt.Errorf("APPEND %d: %w", i, err)
		}
	}

	final, err := c.command(ctx, url.Values{
		"command":  {"FINALIZE"},
		"media_id": {started.MediaID},
	})
	if err != nil {
		return "", fmt.Errorf("FINALIZE: %w", err)
	}

	for polls := 0; final.ProcessingInfo != nil; polls++ {
		info := final.ProcessingInfo
		switch info.State {
		case "succeeded":
			return started.MediaID, nil
		case "failed":
			msg := "processing failed"
			if info.Error != nil {
				msg = info.Error.Message
			}
			return "", fmt.Errorf("STATUS: %s", msg)
		}
		if polls >= maxStatusPolls {
			return "", fmt.Errorf("STATUS: still %s after %d polls", info.State, polls)
		}

		wait := time.Duration(info.CheckAfterSecs) * time.Second
		if wait <= 0 {
			wait = time.Second
		}
		t := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			t.Stop()
			return "", ctx.Err()
		case <-t.C:
		}

		final, err = c.status(ctx, started.MediaID)
		if err != nil {
			return "", fmt.Errorf("STATUS: %w", err)
		}
	}
	return started.MediaID, nil
}

func (c *xClient) command(ctx context.Context, form url.Values) (*mediaResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.uploadURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return c.doMedia(req)
}

func (c *xClient) status(ctx context.Context, mediaID string) (*mediaResponse, error) {
	q := url.Values{"command": {"STATUS"}, "media_id": {mediaID}}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.uploadURL+"?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}
	return c.doMedia(req)
}

func (c *xClient) appendChunk(ctx context.Context, mediaID string, index int, chunk []byte) error {
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	_ = w.WriteField("command", "APPEND")
	_ = w.WriteField("media_id", mediaID)
	_ = w.WriteField("segment_index", strconv.Itoa(index))
	part, err := w.CreateFormFile("media", "blob")
	if err != nil {
		return err
	}
	if _, err := part.Write(chunk); err != nil {
		return err
	}
	if err := w.Close(); err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.uploadURL, &body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", w.FormDataContentType())

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		return apiError(resp)
	}
	return nil
}

func (c *xClient) doMedia(req *http.Request) (*mediaResponse, error) {
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		return nil, apiError(resp)
	}

	var m mediaResponse
	if err := json.NewDecoder(resp.Body).Decode(&m); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &m, nil
}

func (c *xClient) tweet(ctx context.Context, text, mediaID string) (string, error) {
	payload := map[string]any{
		"text": text,
		"media": map[string][]string{
			"media_ids": {mediaID},
		},
	}
	jsonData, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("error marshaling post request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.tweetURL, bytes.NewReader(jsonData))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("error executing request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		return "", apiError(resp)
	}

	var created struct {
		Data struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		return "", fmt.Errorf("error decoding response: %w", err)
	}
	if created.Data.ID == "" {
		return "", fmt.Errorf("post created without id")
	}
	return created.Data.ID, nil
}

func apiError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))

	var errorResp struct {
		Errors []struct {
			Message string `json:"message"`
		} `json:"errors"`
		Detail string `json:"detail"`
	}
	if err := json.Unmarshal(body, &errorResp); err == nil {
		if len(errorResp.Errors) > 0 {
			return fmt.Errorf("X API error (status %d): %s", resp.StatusCode, errorResp.Errors[0].Message)
		}
		if errorResp.Detail != "" {
			return fmt.Errorf("X API error (status %d): %s", resp.StatusCode, errorResp.Detail)
		}
	}
	return fmt.Errorf("X API error (status %d)", resp.StatusCode)
}
