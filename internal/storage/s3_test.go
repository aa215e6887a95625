package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRewritePublicURL(t *testing.T) {
	signed := "https://acc123.r2.cloudflarestorage.com/bucket/media/clip.mp4?X-Amz-Signature=abc&X-Amz-Expires=900"

	rewritten, err := RewritePublicURL(signed, "https://media.clippost.app")
	assert.NoError(t, err)
	assert.Equal(t, "https://media.clippost.app/bucket/media/clip.mp4?X-Amz-Signature=abc&X-Amz-Expires=900", rewritten)
}

func TestRewritePublicURLWithBasePath(t *testing.T) {
	signed := "https://acc123.r2.cloudflarestorage.com/bucket/media/clip.mp4?sig=1"

	rewritten, err := RewritePublicURL(signed, "https://cdn.clippost.app/files/")
	assert.NoError(t, err)
	assert.Equal(t, "https://cdn.clippost.app/files/bucket/media/clip.mp4?sig=1", rewritten)
}

func TestSniffContentType(t *testing.T) {
	jpeg := []byte{0xFF, 0xD8, 0xFF, 0xE0, 0x00, 0x10, 0x4A, 0x46, 0x49, 0x46}
	assert.Equal(t, "image/jpeg", SniffContentType(jpeg))

	assert.Equal(t, "application/octet-stream", SniffContentType([]byte("not a real file")))
}
