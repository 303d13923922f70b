package channel

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const requestTimeout = 30 * time.Second

// maxMediaDownload bounds how much of a media URL an adapter will pull
// into memory before a side-channel upload.
const maxMediaDownload = 16 << 20

func newHTTPClient() *http.Client {
	return &http.Client{
		Timeout: requestTimeout,
		Transport: &http.Transport{
			MaxIdleConns:        10,
			IdleConnTimeout:     30 * time.Second,
			MaxIdleConnsPerHost: 5,
		},
	}
}

// doJSON issues a JSON request and decodes a JSON response. Non-2xx
// statuses are mapped through the error taxonomy for the given channel.
func doJSON(ctx context.Context, client *http.Client, channelID, method, url string, headers map[string]string, payload any, out any) error {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for key, value := range headers {
		req.Header.Set(key, value)
	}

	resp, err := client.Do(req)
	if err != nil {
		return &TransientError{Channel: channelID, Err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return &TransientError{Channel: channelID, Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return classifyHTTPError(channelID, resp.StatusCode, resp.Header.Get("Retry-After"), string(respBody))
	}

	if out != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, out); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}

	return nil
}

// decodeJSONBody decodes a 2xx response body already checked by the caller.
func decodeJSONBody(resp *http.Response, out any) error {
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// fetchMedia downloads a publicly hosted media file for a side-channel
// upload, returning its bytes and content type.
func fetchMedia(ctx context.Context, client *http.Client, channelID, url string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, "", fmt.Errorf("failed to create media request: %w", err)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, "", &TransientError{Channel: channelID, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("media fetch returned HTTP %d for %s", resp.StatusCode, url)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxMediaDownload))
	if err != nil {
		return nil, "", &TransientError{Channel: channelID, Err: err}
	}

	return data, resp.Header.Get("Content-Type"), nil
}
