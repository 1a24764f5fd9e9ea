package gcs

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewValidatesArguments(t *testing.T) {
	t.Parallel()

	_, err := New(nil, Config{Bucket: "snapshots"})
	require.ErrorContains(t, err, "client")
}

func TestCloseWithoutOwnedClient(t *testing.T) {
	t.Parallel()

	var store *BlobStore
	require.NoError(t, store.Close())
	require.NoError(t, (&BlobStore{}).Close())
}
