// Package images decodes uploaded recipe pictures and stores them either on
// local disk or in an S3 compatible bucket.
package images

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/uuid"
)

var (
	ErrInvalidDataURI   = errors.New("image must be a base64 data URI")
	ErrUnsupportedImage = errors.New("unsupported image type")
	ErrImageTooLarge    = errors.New("image is too large")
)

const (
	MaxImageSize = 10 << 20
	keyPrefix    = "recipes/images"
)

var extensions = map[string]string{
	"image/png":  "png",
	"image/jpeg": "jpg",
	"image/gif":  "gif",
	"image/webp": "webp",
}

// Store persists image bytes under a key and returns a public URL.
type Store interface {
	Put(ctx context.Context, key string, data []byte, contentType string) (string, error)
	// Delete removes the object behind a URL previously returned by Put.
	Delete(ctx context.Context, url string) error
}

type Image struct {
	Data        []byte
	ContentType string
}

func (img *Image) Extension() string {
	return extensions[img.ContentType]
}

// DecodeDataURI parses "data:image/png;base64,...." and sniffs the payload.
// The declared media type is ignored in favour of the detected one.
func DecodeDataURI(uri string) (*Image, error) {
	rest, ok := strings.CutPrefix(uri, "data:")
	if !ok {
		return nil, ErrInvalidDataURI
	}
	meta, payload, ok := strings.Cut(rest, ",")
	if !ok || !strings.HasSuffix(meta, ";base64") {
		return nil, ErrInvalidDataURI
	}
	if base64.StdEncoding.DecodedLen(len(payload)) > MaxImageSize {
		return nil, ErrImageTooLarge
	}

	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDataURI, err)
	}
	if len(data) == 0 {
		return nil, ErrInvalidDataURI
	}

	contentType := http.DetectContentType(data)
	if _, ok := extensions[contentType]; !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedImage, contentType)
	}

	return &Image{Data: data, ContentType: contentType}, nil
}

// Save decodes a data URI and writes it under a fresh random key.
func Save(ctx context.Context, store Store, uri string) (string, error) {
	img, err := DecodeDataURI(uri)
	if err != nil {
		return "", err
	}

	key := fmt.Sprintf("%s/%s.%s", keyPrefix, uuid.NewString(), img.Extension())
	return store.Put(ctx, key, img.Data, img.ContentType)
}

func joinURL(base, key string) string {
	return strings.TrimSuffix(base, "/") + "/" + key
}

func keyFromURL(base, url string) (string, bool) {
	return strings.CutPrefix(url, strings.TrimSuffix(base, "/")+"/")
}
