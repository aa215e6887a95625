package upload

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPlanCoversPayloadExactly(t *testing.T) {
	cases := []struct {
		total, chunk int64
		want         int
	}{
		{100, 10, 10},
		{101, 10, 11},
		{9, 10, 1},
		{10, 10, 1},
		{200 * 1024 * 1024, 10 * 1024 * 1024, 20},
	}

	for _, tc := range cases {
		ranges := Plan(tc.total, tc.chunk)
		require.Len(t, ranges, tc.want, "total=%d chunk=%d", tc.total, tc.chunk)

		var covered int64
		prevEnd := int64(-1)
		for _, r := range ranges {
			assert.Equal(t, prevEnd+1, r.Start)
			covered += r.Size()
			prevEnd = r.End
		}
		assert.Equal(t, tc.total, covered)
		assert.Equal(t, tc.total-1, ranges[len(ranges)-1].End)
	}
}

func TestPlanRejectsBadInput(t *testing.T) {
	assert.Nil(t, Plan(0, 10))
	assert.Nil(t, Plan(100, 0))
	assert.Nil(t, Plan(-5, 10))
}

func TestSendStreamsChunksWithContentRange(t *testing.T) {
	payload := bytes.Repeat([]byte("x"), 25)
	var gotRanges []string
	var received bytes.Buffer

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotRanges = append(gotRanges, r.Header.Get("Content-Range"))
		_, err := received.ReadFrom(r.Body)
		require.NoError(t, err)

		if strings.HasSuffix(r.Header.Get("Content-Range"), "/25") && strings.Contains(r.Header.Get("Content-Range"), "20-24") {
			w.WriteHeader(http.StatusOK)
			fmt.Fprint(w, `{"id":"done"}`)
			return
		}
		w.WriteHeader(http.StatusPermanentRedirect)
	}))
	defer srv.Close()

	var progress []int64
	u := NewUploader(srv.Client())
	body, err := u.Send(context.Background(), srv.URL, bytes.NewReader(payload), 25, Options{
		ChunkSize:  10,
		OnProgress: func(sent, total int64) { progress = append(progress, sent) },
	})
	require.NoError(t, err)

	assert.Equal(t, []string{
		"bytes 0-9/25",
		"bytes 10-19/25",
		"bytes 20-24/25",
	}, gotRanges)
	assert.Equal(t, payload, received.Bytes())
	assert.Equal(t, []int64{10, 20, 25}, progress)
	assert.JSONEq(t, `{"id":"done"}`, string(body))
}

func TestSendRetriesFailedChunk(t *testing.T) {
	retryBaseBackoff = time.Millisecond
	defer func() { retryBaseBackoff = 2 * time.Second }()

	attempts := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	u := NewUploader(srv.Client())
	_, err := u.Send(context.Background(), srv.URL, strings.NewReader("abc"), 3, Options{ChunkSize: 10})
	require.NoError(t, err)
	assert.Equal(t, 2, attempts)
}

func TestSendGivesUpAfterRetries(t *testing.T) {
	retryBaseBackoff = time.Millisecond
	defer func() { retryBaseBackoff = 2 * time.Second }()

	attempts := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	u := NewUploader(srv.Client())
	_, err := u.Send(context.Background(), srv.URL, strings.NewReader("abc"), 3, Options{ChunkSize: 10})
	require.Error(t, err)
	assert.Equal(t, 1+maxChunkRetries, attempts)
}

func TestPutSingleShot(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "image/png", r.Header.Get("Content-Type"))
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		w.Header().Set("ETag", `"abc123"`)
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	u := NewUploader(srv.Client())
	_, headers, err := u.Put(context.Background(), srv.URL, []byte("png-bytes"), Options{
		ContentType: "image/png",
		Headers:     map[string]string{"Authorization": "Bearer tok"},
	})
	require.NoError(t, err)
	assert.Equal(t, `"abc123"`, headers.Get("ETag"))
}
