package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cellarhub/server/internal/config"
)

func TestPreviewKey(t *testing.T) {
	assert.Equal(t, "previews/abc_DEF-123.png", PreviewKey("abc_DEF-123"))
}

func TestNewObjectStoreParsesSchemeFromEndpoint(t *testing.T) {
	store, err := NewObjectStore(config.StorageConfig{
		Endpoint:       "https://objects.example.com",
		AccessKey:      "access",
		SecretKey:      "secret",
		BucketPreviews: "previews",
		Region:         "us-east-1",
	})
	require.NoError(t, err)

	assert.Equal(t, "objects.example.com", store.Client().EndpointURL().Host)
	assert.Equal(t, "https", store.Client().EndpointURL().Scheme)
}
