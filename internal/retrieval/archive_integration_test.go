package retrieval

import (
	"context"
	"io"
	"net/http"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObjectArchivePublishIntegration(t *testing.T) {
	endpoint := os.Getenv("FAULTLINE_TEST_S3_ENDPOINT")
	if endpoint == "" {
		t.Skip("FAULTLINE_TEST_S3_ENDPOINT not set")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	archive, err := NewObjectArchive(ctx, ObjectArchiveConfig{
		Endpoint:   endpoint,
		AccessKey:  os.Getenv("FAULTLINE_TEST_S3_ACCESS_KEY"),
		SecretKey:  os.Getenv("FAULTLINE_TEST_S3_SECRET_KEY"),
		Bucket:     "faultline-test",
		LinkExpiry: time.Minute,
	})
	require.NoError(t, err)

	link, err := archive.Publish(ctx, "1/traceback.txt", []byte("panic: boom"))
	require.NoError(t, err)

	resp, err := http.Get(link)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "panic: boom", string(body))
}

func TestNewObjectArchiveRequiresBucket(t *testing.T) {
	_, err := NewObjectArchive(context.Background(), ObjectArchiveConfig{Endpoint: "localhost:9000"})
	assert.Error(t, err)
}
