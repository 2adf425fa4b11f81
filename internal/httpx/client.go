// Package httpx provides a small typed JSON HTTP client shared by the
// external-service adapters (vector retrieval, risk prediction).
package httpx

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"
)

type Client struct {
	client  *http.Client
	retries int
	backoff time.Duration
}

func New(timeout time.Duration, retries int, backoff time.Duration) *Client {
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	if retries < 0 {
		retries = 0
	}
	if backoff == 0 {
		backoff = 300 * time.Millisecond
	}
	return &Client{client: &http.Client{Timeout: timeout}, retries: retries, backoff: backoff}
}

// DoJSON issues a request with a JSON body and decodes a JSON response into
// out. Non-2xx responses become errors carrying the status and a bounded
// slice of the body. Retries use exponential backoff.
func (c *Client) DoJSON(ctx context.Context, method, url string, body any, out any) error {
	var payload []byte
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		payload = b
	}

	var lastErr error
	tries := c.retries + 1
	for attempt := 0; attempt < tries; attempt++ {
		var bodyReader io.Reader
		if payload != nil {
			bodyReader = bytes.NewReader(payload)
		}
		req, err := http.NewRequestWithContext(ctx, method, url, bodyReader)
		if err != nil {
			return err
		}
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := c.client.Do(req)
		if err != nil {
			lastErr = err
		} else {
			func() {
				defer resp.Body.Close()
				if resp.StatusCode >= 200 && resp.StatusCode < 300 {
					if out == nil {
						lastErr = nil
						return
					}
					lastErr = json.NewDecoder(resp.Body).Decode(out)
					return
				}
				b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
				lastErr = errors.New(resp.Status + ": " + string(b))
			}()
			if lastErr == nil {
				return nil
			}
		}

		if attempt < tries-1 {
			select {
			case <-time.After(c.backoff * time.Duration(1<<attempt)):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
	return lastErr
}
