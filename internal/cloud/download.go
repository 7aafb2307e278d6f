package cloud

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/cenkalti/backoff/v4"
)

// ProgressFunc is called after every completed chunk.
type ProgressFunc func(downloaded, total int64)

// Download fetches a package with ranged requests of the configured
// chunk size. Each chunk is retried with a constant backoff before the
// whole download fails. totalSize may be zero, in which case the size
// is discovered from the server.
func (c *Client) Download(ctx context.Context, pathOrURL string, totalSize int64, onProgress ProgressFunc) ([]byte, error) {
	target := c.resolve(pathOrURL)

	if totalSize <= 0 {
		size, err := c.contentLength(ctx, target)
		if err != nil {
			return nil, err
		}
		totalSize = size
	}

	c.logger.Info("Starting package download", "url", target, "bytes", totalSize)

	out := make([]byte, 0, totalSize)
	for offset := int64(0); offset < totalSize; {
		end := offset + int64(c.cfg.ChunkSize) - 1
		if end >= totalSize {
			end = totalSize - 1
		}

		chunk, err := c.fetchChunkWithRetry(ctx, target, offset, end)
		if err != nil {
			return nil, fmt.Errorf("cloud: download %s at offset %d: %w", target, offset, err)
		}

		out = append(out, chunk...)
		offset += int64(len(chunk))
		if onProgress != nil {
			onProgress(offset, totalSize)
		}
	}

	if int64(len(out)) != totalSize {
		return nil, fmt.Errorf("cloud: download %s: got %d bytes, expected %d", target, len(out), totalSize)
	}
	return out, nil
}

// fetchChunkWithRetry retries one ranged request up to the configured
// attempt count with a constant delay between attempts.
func (c *Client) fetchChunkWithRetry(ctx context.Context, target string, start, end int64) ([]byte, error) {
	var chunk []byte

	operation := func() error {
		var err error
		chunk, err = c.fetchChunk(ctx, target, start, end)
		return err
	}

	bo := backoff.WithMaxRetries(backoff.NewConstantBackOff(c.cfg.RetryDelay), uint64(c.cfg.MaxRetries-1))
	if err := backoff.Retry(operation, backoff.WithContext(bo, ctx)); err != nil {
		return nil, err
	}
	return chunk, nil
}

func (c *Client) fetchChunk(ctx context.Context, target string, start, end int64) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, backoff.Permanent(err)
	}
	req.Header.Set("Range", fmt.Sprintf("bytes=%d-%d", start, end))

	resp, err := c.hc.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusPartialContent:
	case http.StatusOK:
		// A 200 on a later chunk means the server ignored the Range
		// header and is replaying the file from the start.
		if start > 0 {
			return nil, backoff.Permanent(fmt.Errorf("server ignored range request at offset %d", start))
		}
	case http.StatusNotFound:
		// Retrying a missing package is pointless.
		return nil, backoff.Permanent(fmt.Errorf("package not found: %s", resp.Status))
	default:
		return nil, fmt.Errorf("unexpected status %s", resp.Status)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, end-start+1))
	if err != nil {
		return nil, err
	}
	if len(body) == 0 {
		return nil, fmt.Errorf("empty chunk %d-%d", start, end)
	}
	return body, nil
}

// contentLength asks the server for the package size.
func (c *Client) contentLength(ctx context.Context, target string) (int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, target, nil)
	if err != nil {
		return 0, err
	}
	resp, err := c.hc.Do(req)
	if err != nil {
		return 0, fmt.Errorf("cloud: probe size of %s: %w", target, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("cloud: probe size of %s: %s", target, resp.Status)
	}

	size, err := strconv.ParseInt(resp.Header.Get("Content-Length"), 10, 64)
	if err != nil || size <= 0 {
		return 0, fmt.Errorf("cloud: server did not report a usable size for %s", target)
	}
	return size, nil
}
