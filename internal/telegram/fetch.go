package telegram

import (
	"context"
	"fmt"
	"io"
	"net/http"
)

// FileStream opens a live byte stream for a previously resolved file path.
// The payload is never buffered; the caller owns the returned stream and
// must close it. There is no internal retry: rewinding a partially consumed
// remote stream is not possible, so retry policy belongs to the caller.
func (c *Client) FileStream(ctx context.Context, filePath string) (io.ReadCloser, int64, error) {
	url := fmt.Sprintf(c.fileEndpoint, c.token, filePath)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, 0, fmt.Errorf("build file request: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("fetch file: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
		return nil, 0, fmt.Errorf("fetch file status: %d", resp.StatusCode)
	}
	return resp.Body, resp.ContentLength, nil
}
