package images

import (
	"context"
	"encoding/base64"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var pngBytes = append([]byte("\x89PNG\r\n\x1a\n"), make([]byte, 32)...)

func pngDataURI() string {
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(pngBytes)
}

func TestDecodeDataURI(t *testing.T) {
	img, err := DecodeDataURI(pngDataURI())
	require.NoError(t, err)
	assert.Equal(t, "image/png", img.ContentType)
	assert.Equal(t, "png", img.Extension())
	assert.Equal(t, pngBytes, img.Data)
}

func TestDecodeDataURI_Invalid(t *testing.T) {
	tests := map[string]struct {
		uri  string
		want error
	}{
		"no scheme":      {uri: base64.StdEncoding.EncodeToString(pngBytes), want: ErrInvalidDataURI},
		"not base64":     {uri: "data:image/png,rawdata", want: ErrInvalidDataURI},
		"broken payload": {uri: "data:image/png;base64,%%%", want: ErrInvalidDataURI},
		"empty payload":  {uri: "data:image/png;base64,", want: ErrInvalidDataURI},
		"text content": {
			uri:  "data:image/png;base64," + base64.StdEncoding.EncodeToString([]byte("hello world")),
			want: ErrUnsupportedImage,
		},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := DecodeDataURI(tt.uri)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestLocalStore(t *testing.T) {
	root := t.TempDir()
	store := NewLocalStore(root, "/media/")
	ctx := context.Background()

	url, err := Save(ctx, store, pngDataURI())
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(url, "/media/recipes/images/"))
	assert.True(t, strings.HasSuffix(url, ".png"))

	path := filepath.Join(root, strings.TrimPrefix(url, "/media/"))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, pngBytes, data)

	require.NoError(t, store.Delete(ctx, url))
	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))

	assert.NoError(t, store.Delete(ctx, url), "deleting twice is a no-op")
	assert.NoError(t, store.Delete(ctx, "https://elsewhere.example/x.png"))
}

type fakeObjects struct {
	puts    []*s3.PutObjectInput
	deletes []*s3.DeleteObjectInput
}

func (f *fakeObjects) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	f.puts = append(f.puts, in)
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeObjects) DeleteObject(_ context.Context, in *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	f.deletes = append(f.deletes, in)
	return &s3.DeleteObjectOutput{}, nil
}

func TestS3Store(t *testing.T) {
	objects := &fakeObjects{}
	store := newS3Store(objects, "foodgram", "https://cdn.example.com")
	ctx := context.Background()

	url, err := Save(ctx, store, pngDataURI())
	require.NoError(t, err)
	require.Len(t, objects.puts, 1)

	put := objects.puts[0]
	assert.Equal(t, "foodgram", aws.ToString(put.Bucket))
	assert.Equal(t, "image/png", aws.ToString(put.ContentType))
	assert.Equal(t, "https://cdn.example.com/"+aws.ToString(put.Key), url)

	require.NoError(t, store.Delete(ctx, url))
	require.Len(t, objects.deletes, 1)
	assert.Equal(t, aws.ToString(put.Key), aws.ToString(objects.deletes[0].Key))
}
