package s3_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	awss3 "github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bidvault/adapters/s3"
)

type fakePutter struct {
	inputs []*awss3.PutObjectInput
	bodies [][]byte
	err    error
}

func (f *fakePutter) PutObject(_ context.Context, in *awss3.PutObjectInput, _ ...func(*awss3.Options)) (*awss3.PutObjectOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	body, _ := io.ReadAll(in.Body)
	f.inputs = append(f.inputs, in)
	f.bodies = append(f.bodies, body)
	return &awss3.PutObjectOutput{}, nil
}

var pngHeader = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")

func TestFormatBytes(t *testing.T) {
	tests := []struct {
		name  string
		bytes int64
		want  string
	}{
		{name: "bytes", bytes: 500, want: "500 bytes"},
		{name: "KB", bytes: 1024 * 2, want: "2.00 KB"},
		{name: "MB", bytes: 1024 * 1024 * 5, want: "5.00 MB"},
		{name: "GB", bytes: 1024 * 1024 * 1024 * 4, want: "4.00 GB"},
		{name: "TB", bytes: 1024 * 1024 * 1024 * 1024 * 5, want: "5.00 TB"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, s3.FormatBytes(tt.bytes))
		})
	}
}

func TestReadLimited(t *testing.T) {
	data, err := s3.ReadLimited(strings.NewReader("hello"), 5)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))

	_, err = s3.ReadLimited(strings.NewReader("hello world"), 5)
	var tooLarge *s3.TooLargeError
	require.ErrorAs(t, err, &tooLarge)
	assert.Equal(t, "image exceeds limit of 5 bytes", err.Error())
}

func TestImageExtension(t *testing.T) {
	tests := []struct {
		mimeType string
		wantOk   bool
		wantExt  string
	}{
		{mimeType: "image/jpeg", wantOk: true, wantExt: "jpeg"},
		{mimeType: "image/png", wantOk: true, wantExt: "png"},
		{mimeType: "image/webp", wantOk: true, wantExt: "webp"},
		{mimeType: "image/svg+xml"},
		{mimeType: "application/pdf"},
	}

	for _, tt := range tests {
		t.Run(tt.mimeType, func(t *testing.T) {
			ext, ok := s3.ImageExtension(tt.mimeType)
			assert.Equal(t, tt.wantOk, ok)
			assert.Equal(t, tt.wantExt, ext)
		})
	}
}

func TestNewImageStore(t *testing.T) {
	_, err := s3.NewImageStore(nil, "bucket", "https://cdn", "")
	assert.Error(t, err)
	_, err = s3.NewImageStore(&fakePutter{}, "", "https://cdn", "")
	assert.Error(t, err)
	_, err = s3.NewImageStore(&fakePutter{}, "bucket", "://bad", "")
	assert.Error(t, err)
}

func TestImageStore_Upload(t *testing.T) {
	t.Run("png is stored under prefix", func(t *testing.T) {
		putter := &fakePutter{}
		store, err := s3.NewImageStore(putter, "bucket", "https://cdn.example.com/assets", "items")
		require.NoError(t, err)

		uri, err := store.Upload(context.Background(), bytes.NewReader(pngHeader))
		require.NoError(t, err)

		require.Len(t, putter.inputs, 1)
		in := putter.inputs[0]
		assert.Equal(t, "bucket", aws.ToString(in.Bucket))
		assert.Equal(t, "image/png", aws.ToString(in.ContentType))
		assert.True(t, strings.HasPrefix(aws.ToString(in.Key), "items/"))
		assert.True(t, strings.HasSuffix(aws.ToString(in.Key), ".png"))
		assert.Equal(t, pngHeader, putter.bodies[0])
		assert.Equal(t, "https://cdn.example.com/assets/"+aws.ToString(in.Key), uri)
	})

	t.Run("html is rejected", func(t *testing.T) {
		putter := &fakePutter{}
		store, err := s3.NewImageStore(putter, "bucket", "https://cdn", "")
		require.NoError(t, err)

		_, err = store.Upload(context.Background(), strings.NewReader("<html><script>alert(1)</script></html>"))
		assert.ErrorIs(t, err, s3.ErrUnsupportedImage)
		assert.Empty(t, putter.inputs)
	})

	t.Run("oversized image", func(t *testing.T) {
		store, err := s3.NewImageStore(&fakePutter{}, "bucket", "https://cdn", "")
		require.NoError(t, err)

		big := append(append([]byte{}, pngHeader...), make([]byte, s3.DefaultMaxImageSize)...)
		_, err = store.Upload(context.Background(), bytes.NewReader(big))
		var tooLarge *s3.TooLargeError
		assert.ErrorAs(t, err, &tooLarge)
	})

	t.Run("s3 failure", func(t *testing.T) {
		store, err := s3.NewImageStore(&fakePutter{err: errors.New("denied")}, "bucket", "https://cdn", "")
		require.NoError(t, err)

		_, err = store.Upload(context.Background(), bytes.NewReader(pngHeader))
		assert.ErrorContains(t, err, "denied")
	})
}
