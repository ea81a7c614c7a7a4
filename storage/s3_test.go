package storage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewUploader(t *testing.T) {
	t.Run("missing bucket rejected", func(t *testing.T) {
		_, err := NewUploader(Options{})
		assert.ErrorIs(t, err, ErrNoBucket)
	})

	t.Run("bucket with region and endpoint", func(t *testing.T) {
		u, err := NewUploader(Options{
			Bucket:   "clips",
			Region:   "us-east-1",
			Endpoint: "http://localhost:9000",
		})
		require.NoError(t, err)
		assert.NotNil(t, u)
	})
}

func TestUpload_MissingSource(t *testing.T) {
	u, err := NewUploader(Options{Bucket: "clips", Region: "us-east-1"})
	require.NoError(t, err)

	_, err = u.Upload(context.Background(), "/nonexistent/file.mp4", "k", Options{Bucket: "clips"})
	assert.Error(t, err)
}

func TestUpload_MissingBucket(t *testing.T) {
	u, err := NewUploader(Options{Bucket: "clips", Region: "us-east-1"})
	require.NoError(t, err)

	_, err = u.Upload(context.Background(), "file.mp4", "k", Options{})
	assert.ErrorIs(t, err, ErrNoBucket)
}
