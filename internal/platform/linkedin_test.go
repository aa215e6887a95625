package platform

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clipperhq/clippost/internal/models"
	"github.com/clipperhq/clippost/internal/poll"
	"github.com/clipperhq/clippost/internal/transfer"
	"github.com/clipperhq/clippost/internal/upload"
)

func newLinkedinTestAdapter(srv *httptest.Server, store MediaStore) *LinkedinAdapter {
	a := NewLinkedinAdapter(srv.Client(), upload.NewUploader(srv.Client()), store)
	a.baseURL = srv.URL
	a.poll = poll.Config{Interval: time.Millisecond, MaxAttempts: 10}
	return a
}

func TestLinkedinImagePublish(t *testing.T) {
	var uploadedBody []byte
	var postReq transfer.LinkedinPostRequest

	mux := http.NewServeMux()
	mux.HandleFunc("/images", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "initializeUpload", r.URL.Query().Get("action"))
		assert.Equal(t, linkedinVersion, r.Header.Get("LinkedIn-Version"))
		assert.Equal(t, restliProtocolVersion, r.Header.Get("X-Restli-Protocol-Version"))

		var initReq transfer.LinkedinImageInitRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&initReq))
		assert.Equal(t, "urn:li:person:abc", initReq.InitializeUploadRequest.Owner)

		resp := transfer.LinkedinImageInitResponse{}
		resp.Value.UploadURL = "http://" + r.Host + "/dms-upload"
		resp.Value.Image = "urn:li:image:img1"
		json.NewEncoder(w).Encode(resp)
	})
	mux.HandleFunc("/dms-upload", func(w http.ResponseWriter, r *http.Request) {
		uploadedBody, _ = io.ReadAll(r.Body)
		assert.Equal(t, "image/jpeg", r.Header.Get("Content-Type"))
		w.WriteHeader(http.StatusCreated)
	})
	mux.HandleFunc("/posts", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&postReq))
		w.Header().Set("x-restli-id", "urn:li:share:999")
		w.WriteHeader(http.StatusCreated)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	a := newLinkedinTestAdapter(srv, &fakeStore{data: []byte("jpeg-bytes"), contentType: "image/jpeg"})
	req := testRequest(models.PlatformLinkedin, models.MediaKindImage)
	req.Media.ContentType = "image/jpeg"

	h, err := a.Initiate(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "urn:li:image:img1", h.AssetURN)

	require.NoError(t, a.Transfer(context.Background(), h, req))
	assert.Equal(t, []byte("jpeg-bytes"), uploadedBody)

	require.NoError(t, a.AwaitReady(context.Background(), h))

	result, err := a.Finalize(context.Background(), h, req)
	require.NoError(t, err)
	assert.Equal(t, "urn:li:share:999", result.PlatformPostID)
	assert.Equal(t, "https://www.linkedin.com/feed/update/urn:li:share:999/", result.PlatformURL)
	assert.Equal(t, "urn:li:image:img1", postReq.Content.Media.ID)
	assert.Equal(t, "PUBLISHED", postReq.LifecycleState)
}

func TestLinkedinVideoMultipartUpload(t *testing.T) {
	payload := bytes.Repeat([]byte("v"), 20)
	var finalizeReq transfer.LinkedinFinalizeRequest
	var partBodies [][]byte
	statusCalls := 0

	mux := http.NewServeMux()
	mux.HandleFunc("/videos", func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Query().Get("action") {
		case "initializeUpload":
			var initReq transfer.LinkedinVideoInitRequest
			require.NoError(t, json.NewDecoder(r.Body).Decode(&initReq))
			assert.Equal(t, int64(20), initReq.InitializeUploadRequest.FileSizeBytes)

			resp := transfer.LinkedinVideoInitResponse{}
			resp.Value.Video = "urn:li:video:vid1"
			resp.Value.UploadToken = "tok-1"
			resp.Value.UploadInstructions = []transfer.LinkedinUploadInstruction{
				{UploadURL: "http://" + r.Host + "/part/0", FirstByte: 0, LastByte: 11},
				{UploadURL: "http://" + r.Host + "/part/1", FirstByte: 12, LastByte: 19},
			}
			json.NewEncoder(w).Encode(resp)
		case "finalizeUpload":
			require.NoError(t, json.NewDecoder(r.Body).Decode(&finalizeReq))
			w.WriteHeader(http.StatusOK)
		}
	})
	mux.HandleFunc("/part/", func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		partBodies = append(partBodies, body)
		w.Header().Set("ETag", fmt.Sprintf(`"etag-%d"`, len(partBodies)))
		w.WriteHeader(http.StatusCreated)
	})
	mux.HandleFunc("/videos/", func(w http.ResponseWriter, r *http.Request) {
		statusCalls++
		video := transfer.LinkedinVideoResource{ID: "urn:li:video:vid1", Status: "PROCESSING"}
		if statusCalls >= 3 {
			video.Status = linkedinVideoAvailable
		}
		json.NewEncoder(w).Encode(video)
	})
	mux.HandleFunc("/posts", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("x-restli-id", "urn:li:share:1234")
		w.WriteHeader(http.StatusCreated)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	a := newLinkedinTestAdapter(srv, &fakeStore{data: payload})
	req := testRequest(models.PlatformLinkedin, models.MediaKindVideo)
	req.Media.SizeBytes = 20

	h, err := a.Initiate(context.Background(), req)
	require.NoError(t, err)
	require.Len(t, h.UploadParts, 2)

	require.NoError(t, a.Transfer(context.Background(), h, req))
	assert.Equal(t, payload[:12], partBodies[0])
	assert.Equal(t, payload[12:], partBodies[1])
	assert.Equal(t, []string{`"etag-1"`, `"etag-2"`}, h.ETags)
	assert.Equal(t, h.ETags, finalizeReq.FinalizeUploadRequest.UploadedPartIds)
	assert.Equal(t, "tok-1", finalizeReq.FinalizeUploadRequest.UploadToken)

	require.NoError(t, a.AwaitReady(context.Background(), h))
	assert.Equal(t, 3, statusCalls)

	result, err := a.Finalize(context.Background(), h, req)
	require.NoError(t, err)
	assert.Equal(t, "urn:li:share:1234", result.PlatformPostID)
}

func TestLinkedinVideoProcessingFailed(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/videos/", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(transfer.LinkedinVideoResource{Status: linkedinVideoFailed})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	a := newLinkedinTestAdapter(srv, &fakeStore{})
	h := &Handle{Platform: models.PlatformLinkedin, AssetURN: "urn:li:video:bad", AccessToken: "token-plain"}

	err := a.AwaitReady(context.Background(), h)
	var pe *ProcessingError
	require.ErrorAs(t, err, &pe)
}

func TestLinkedinLingeringWaitingUpload(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/videos/", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(transfer.LinkedinVideoResource{Status: linkedinVideoWaitingUpload})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	a := newLinkedinTestAdapter(srv, &fakeStore{})
	h := &Handle{Platform: models.PlatformLinkedin, AssetURN: "urn:li:video:stuck", AccessToken: "token-plain"}

	err := a.AwaitReady(context.Background(), h)
	var ae *ApiError
	require.ErrorAs(t, err, &ae)
}

func TestLinkedinRejectsCarousel(t *testing.T) {
	a := NewLinkedinAdapter(nil, upload.NewUploader(nil), &fakeStore{})
	req := testRequest(models.PlatformLinkedin, models.MediaKindCarousel)

	_, err := a.Initiate(context.Background(), req)
	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
}
