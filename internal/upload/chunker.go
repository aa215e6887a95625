package upload

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log"
	"log/slog"
	"net/http"
	"time"
)

// ByteRange is a half-open-to-inclusive slice of the payload: bytes
// [Start, End] per the Content-Range convention.
type ByteRange struct {
	Start int64
	End   int64
}

func (r ByteRange) Size() int64 {
	return r.End - r.Start + 1
}

// Plan splits totalSize bytes into ceil(totalSize/chunkSize) contiguous
// ranges exactly covering [0, totalSize).
func Plan(totalSize, chunkSize int64) []ByteRange {
	if totalSize <= 0 || chunkSize <= 0 {
		return nil
	}

	count := (totalSize + chunkSize - 1) / chunkSize
	ranges := make([]ByteRange, 0, count)
	for start := int64(0); start < totalSize; start += chunkSize {
		end := start + chunkSize - 1
		if end > totalSize-1 {
			end = totalSize - 1
		}
		ranges = append(ranges, ByteRange{Start: start, End: end})
	}
	return ranges
}

const maxChunkRetries = 3

var retryBaseBackoff = 2 * time.Second

type Options struct {
	ChunkSize   int64
	ContentType string
	Headers     map[string]string
	OnProgress  func(bytesSent, total int64)
}

type Uploader struct {
	client *http.Client
}

func NewUploader(client *http.Client) *Uploader {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Minute}
	}
	return &Uploader{client: client}
}

// Send streams src to dst chunk by chunk with Content-Range headers. Each
// chunk PUT is classified: 308 means continue, 200/201 means the upload is
// complete (some hosts finish on the last chunk), anything else is an error.
// A failed chunk is retried up to three times with exponential backoff; the
// chunk bytes are buffered so a retry can resend them without re-reading src.
// Returns the final response body for the caller to parse, or nil when the
// host never sent a completion response.
func (u *Uploader) Send(ctx context.Context, dst string, src io.Reader, total int64, opts Options) ([]byte, error) {
	if opts.ChunkSize <= 0 {
		return nil, fmt.Errorf("chunk size must be positive, got %d", opts.ChunkSize)
	}

	ranges := Plan(total, opts.ChunkSize)
	var sent int64

	for i, br := range ranges {
		buf := make([]byte, br.Size())
		if _, err := io.ReadFull(src, buf); err != nil {
			slog.Info(err.Error())
			return nil, fmt.Errorf("reading chunk %d: %w", i, err)
		}

		body, done, err := u.sendChunk(ctx, dst, buf, br, total, opts)
		if err != nil {
			return nil, err
		}

		sent += br.Size()
		if opts.OnProgress != nil {
			opts.OnProgress(sent, total)
		}
		log.Printf("uploaded chunk %d/%d (%d/%d bytes)", i+1, len(ranges), sent, total)

		if done {
			if i != len(ranges)-1 {
				return body, fmt.Errorf("upload completed early at chunk %d of %d", i+1, len(ranges))
			}
			return body, nil
		}
	}

	return nil, nil
}

func (u *Uploader) sendChunk(ctx context.Context, dst string, chunk []byte, br ByteRange, total int64, opts Options) (body []byte, done bool, err error) {
	for attempt := 0; ; attempt++ {
		body, done, err = u.putChunk(ctx, dst, chunk, br, total, opts)
		if err == nil {
			return body, done, nil
		}
		if attempt >= maxChunkRetries {
			return nil, false, fmt.Errorf("chunk %d-%d failed after %d retries: %w", br.Start, br.End, maxChunkRetries, err)
		}

		backoff := retryBaseBackoff << attempt
		log.Printf("chunk %d-%d failed (attempt %d): %v; retrying in %s", br.Start, br.End, attempt+1, err, backoff)
		select {
		case <-ctx.Done():
			return nil, false, ctx.Err()
		case <-time.After(backoff):
		}
	}
}

func (u *Uploader) putChunk(ctx context.Context, dst string, chunk []byte, br ByteRange, total int64, opts Options) ([]byte, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, dst, bytes.NewReader(chunk))
	if err != nil {
		return nil, false, err
	}
	req.ContentLength = br.Size()
	req.Header.Set("Content-Range", fmt.Sprintf("bytes %d-%d/%d", br.Start, br.End, total))
	if opts.ContentType != "" {
		req.Header.Set("Content-Type", opts.ContentType)
	}
	for k, v := range opts.Headers {
		req.Header.Set(k, v)
	}

	resp, err := u.client.Do(req)
	if err != nil {
		return nil, false, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, false, err
	}

	switch {
	case resp.StatusCode == http.StatusPermanentRedirect || resp.StatusCode == http.StatusPartialContent:
		// 308 Resume Incomplete (or 206 from hosts that use it): chunk accepted.
		return respBody, false, nil
	case resp.StatusCode == http.StatusOK || resp.StatusCode == http.StatusCreated:
		return respBody, true, nil
	default:
		return nil, false, fmt.Errorf("chunk upload returned status %d: %s", resp.StatusCode, respBody)
	}
}

// Put sends a whole payload in a single request, for sub-threshold uploads.
func (u *Uploader) Put(ctx context.Context, dst string, payload []byte, opts Options) ([]byte, http.Header, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, dst, bytes.NewReader(payload))
	if err != nil {
		return nil, nil, err
	}
	req.ContentLength = int64(len(payload))
	if opts.ContentType != "" {
		req.Header.Set("Content-Type", opts.ContentType)
	}
	for k, v := range opts.Headers {
		req.Header.Set(k, v)
	}

	resp, err := u.client.Do(req)
	if err != nil {
		return nil, nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, nil, err
	}
	if resp.StatusCode >= 300 {
		return nil, nil, fmt.Errorf("upload returned status %d: %s", resp.StatusCode, respBody)
	}

	return respBody, resp.Header, nil
}

