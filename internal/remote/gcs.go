package remote

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	"cloud.google.com/go/storage"
	"google.golang.org/api/iterator"

	"github.com/rumor-ml/commons.systems/assetsync/internal/gcp"
	"github.com/rumor-ml/commons.systems/assetsync/internal/hasher"
)

const (
	assetsCollectionBase = "assetsync-assets"
	statusUploaded       = "uploaded"
)

// assetDoc is the Firestore document recorded for each stored hash
type assetDoc struct {
	Hash          string            `firestore:"hash"`
	ObjectPath    string            `firestore:"objectPath"`
	ThumbnailPath string            `firestore:"thumbnailPath"`
	Name          string            `firestore:"name"`
	ContentType   string            `firestore:"contentType"`
	Width         int               `firestore:"width"`
	Height        int               `firestore:"height"`
	Location      string            `firestore:"location"`
	Properties    map[string]string `firestore:"properties"`
	Status        string            `firestore:"status"`
	UpdatedAt     time.Time         `firestore:"updatedAt"`
}

// GCSIndex stores asset bytes in Cloud Storage and tracks stored hashes in
// Firestore. A hash counts as stored once its document has status uploaded.
type GCSIndex struct {
	gcsClient       *storage.Client
	firestoreClient *firestore.Client
	bucket          string
	collection      string
}

// GCSOption configures a GCSIndex
type GCSOption func(*GCSIndex)

// WithCollection configures the Firestore collection used to track uploads
func WithCollection(collection string) GCSOption {
	return func(i *GCSIndex) {
		i.collection = collection
	}
}

// NewGCSIndex creates an index backed by the given clients
func NewGCSIndex(gcsClient *storage.Client, firestoreClient *firestore.Client, bucket string, opts ...GCSOption) *GCSIndex {
	i := &GCSIndex{
		gcsClient:       gcsClient,
		firestoreClient: firestoreClient,
		bucket:          bucket,
		collection:      gcp.CollectionName(assetsCollectionBase),
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// Exists queries Firestore for an uploaded document with this hash
func (i *GCSIndex) Exists(ctx context.Context, hash string) (bool, error) {
	if !hasher.Valid(hash) {
		return false, fmt.Errorf("%w: bad content hash %q", ErrInvalidUpload, hash)
	}

	iter := i.firestoreClient.Collection(i.collection).
		Where("hash", "==", hash).
		Where("status", "==", statusUploaded).
		Limit(1).
		Documents(ctx)
	defer iter.Stop()

	_, err := iter.Next()
	if err == iterator.Done {
		return false, nil
	}
	if err != nil {
		return false, &OpError{Op: "query", Key: hash, Err: err}
	}
	return true, nil
}

// Store writes the thumbnail and asset objects, then records the hash.
// The document is written last so Exists never reports a partial upload.
func (i *GCSIndex) Store(ctx context.Context, upload Upload) error {
	if err := upload.validate(); err != nil {
		return err
	}
	meta := upload.Metadata

	doc := assetDoc{
		Hash:        meta.Hash,
		ObjectPath:  objectKey(meta.Hash),
		Name:        meta.Name,
		ContentType: upload.ContentType,
		Width:       meta.Width,
		Height:      meta.Height,
		Location:    meta.Location,
		Properties:  meta.Properties,
		Status:      statusUploaded,
	}

	if len(upload.Thumbnail) > 0 {
		doc.ThumbnailPath = thumbnailKey(meta.Hash)
		if err := i.writeObject(ctx, doc.ThumbnailPath, "image/jpeg", upload.Thumbnail, map[string]string{"hash": meta.Hash}); err != nil {
			return err
		}
	}

	if err := i.writeObject(ctx, doc.ObjectPath, upload.ContentType, upload.Data, meta.attributes()); err != nil {
		return err
	}

	// Use hash as document ID so re-stores overwrite the same document
	doc.UpdatedAt = time.Now()
	if _, err := i.firestoreClient.Collection(i.collection).Doc(meta.Hash).Set(ctx, doc); err != nil {
		return &OpError{Op: "record", Key: meta.Hash, Err: err}
	}
	return nil
}

func (i *GCSIndex) writeObject(ctx context.Context, path, contentType string, data []byte, attrs map[string]string) error {
	writer := i.gcsClient.Bucket(i.bucket).Object(path).NewWriter(ctx)
	writer.ContentType = contentType
	writer.Metadata = attrs

	if _, err := writer.Write(data); err != nil {
		writer.Close()
		return &OpError{Op: "write", Key: path, Err: err}
	}
	if err := writer.Close(); err != nil {
		return &OpError{Op: "finalize", Key: path, Err: err}
	}
	return nil
}
