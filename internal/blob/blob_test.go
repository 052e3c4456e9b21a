package blob

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skaldlabs/skald-sub002/internal/config"
)

type fakeS3 struct {
	objects map[string][]byte
	types   map[string]string
	getErr  error
}

func newFakeS3() *fakeS3 {
	return &fakeS3{objects: map[string][]byte{}, types: map[string]string{}}
}

func (f *fakeS3) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	data, ok := f.objects[aws.ToString(in.Bucket)+"/"+aws.ToString(in.Key)]
	if !ok {
		return nil, &s3types.NoSuchKey{}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(data))}, nil
}

func (f *fakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	key := aws.ToString(in.Bucket) + "/" + aws.ToString(in.Key)
	f.objects[key] = data
	f.types[key] = aws.ToString(in.ContentType)
	return &s3.PutObjectOutput{}, nil
}

func TestS3Store(t *testing.T) {
	ctx := context.Background()
	fake := newFakeS3()
	store := NewS3Store(fake, "docs")

	require.NoError(t, store.Put(ctx, "p1/report.pdf", []byte("%PDF"), "application/pdf"))
	assert.Equal(t, "application/pdf", fake.types["docs/p1/report.pdf"])

	data, err := store.Get(ctx, "p1/report.pdf")
	require.NoError(t, err)
	assert.Equal(t, []byte("%PDF"), data)

	_, err = store.Get(ctx, "missing.pdf")
	assert.ErrorIs(t, err, ErrNotFound)

	fake.getErr = errors.New("network down")
	_, err = store.Get(ctx, "p1/report.pdf")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNotFound)
}

func TestFilesystemStore(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	store, err := NewFilesystemStore(dir)
	require.NoError(t, err)

	require.NoError(t, store.Put(ctx, "p1/notes.md", []byte("# Notes"), "text/markdown"))
	data, err := store.Get(ctx, "p1/notes.md")
	require.NoError(t, err)
	assert.Equal(t, []byte("# Notes"), data)

	_, err = os.Stat(filepath.Join(dir, "p1", "notes.md"))
	assert.NoError(t, err)

	_, err = store.Get(ctx, "nope.md")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestFilesystemStore_KeysStayInsideDir(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	store, err := NewFilesystemStore(filepath.Join(dir, "blobs"))
	require.NoError(t, err)

	require.NoError(t, store.Put(ctx, "../../escape.txt", []byte("x"), ""))
	_, err = os.Stat(filepath.Join(dir, "escape.txt"))
	assert.True(t, os.IsNotExist(err), "traversal must be confined to the store directory")

	data, err := store.Get(ctx, "escape.txt")
	require.NoError(t, err)
	assert.Equal(t, []byte("x"), data)

	assert.Error(t, store.Put(ctx, "/", []byte("x"), ""))
}

func TestNewStore(t *testing.T) {
	store, err := NewStore(context.Background(), config.BlobConfig{Provider: "filesystem", Dir: t.TempDir()})
	require.NoError(t, err)
	assert.IsType(t, &FilesystemStore{}, store)

	_, err = NewStore(context.Background(), config.BlobConfig{Provider: "gcs"})
	assert.Error(t, err)

	_, err = NewStore(context.Background(), config.BlobConfig{Provider: "s3"})
	assert.Error(t, err, "bucket is required")
}
