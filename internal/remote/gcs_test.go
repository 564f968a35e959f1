package remote

import (
	"context"
	"io"
	"os"
	"testing"

	"cloud.google.com/go/firestore"
	"cloud.google.com/go/storage"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func getTestGCSClient(t *testing.T) *storage.Client {
	t.Helper()

	if os.Getenv("STORAGE_EMULATOR_HOST") == "" {
		t.Skip("STORAGE_EMULATOR_HOST not set, skipping integration test")
	}

	client, err := storage.NewClient(context.Background())
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })
	return client
}

func getTestFirestoreClient(t *testing.T) *firestore.Client {
	t.Helper()

	if os.Getenv("FIRESTORE_EMULATOR_HOST") == "" {
		t.Skip("FIRESTORE_EMULATOR_HOST not set, skipping integration test")
	}

	client, err := firestore.NewClient(context.Background(), "test-project")
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })
	return client
}

func TestGCSIndex_StoreThenExists(t *testing.T) {
	gcsClient := getTestGCSClient(t)
	fsClient := getTestFirestoreClient(t)
	ctx := context.Background()

	bucket := "assetsync-test"
	if err := gcsClient.Bucket(bucket).Create(ctx, "test-project", nil); err != nil {
		t.Logf("note: bucket creation returned: %v", err)
	}

	collection := "test-assets-" + uuid.NewString()
	idx := NewGCSIndex(gcsClient, fsClient, bucket, WithCollection(collection))
	t.Cleanup(func() {
		_, _ = fsClient.Collection(collection).Doc(testHash).Delete(ctx)
	})

	exists, err := idx.Exists(ctx, testHash)
	require.NoError(t, err)
	assert.False(t, exists)

	require.NoError(t, idx.Store(ctx, testUpload()))
	// Re-storing the same hash is tolerated
	require.NoError(t, idx.Store(ctx, testUpload()))

	exists, err = idx.Exists(ctx, testHash)
	require.NoError(t, err)
	assert.True(t, exists)

	reader, err := gcsClient.Bucket(bucket).Object(objectKey(testHash)).NewReader(ctx)
	require.NoError(t, err)
	defer reader.Close()
	data, err := io.ReadAll(reader)
	require.NoError(t, err)
	assert.Equal(t, "jpeg bytes", string(data))
}
