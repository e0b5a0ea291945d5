package s3

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsConfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
)

// DefaultMaxImageSize 商品圖片上限 5 MiB
const DefaultMaxImageSize int64 = 5 << 20

var ErrUnsupportedImage = errors.New("unsupported image type")

// imageExtensions 允許上傳的圖片類型，不含可夾帶腳本的格式
var imageExtensions = map[string]string{
	"image/jpeg": "jpeg",
	"image/png":  "png",
	"image/webp": "webp",
}

// ImageExtension 回傳 MIME 類型對應的副檔名
func ImageExtension(mimeType string) (string, bool) {
	ext, ok := imageExtensions[mimeType]
	return ext, ok
}

// ObjectPutter 為 *s3.Client 的上傳子集
type ObjectPutter interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

var _ ObjectPutter = (*s3.Client)(nil)

type ClientConfig struct {
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	Region          string
}

// NewClient 以靜態金鑰建立 S3 相容的客戶端
func NewClient(ctx context.Context, cfg ClientConfig) (*s3.Client, error) {
	const op = "s3.NewClient"
	region := cfg.Region
	if region == "" {
		region = "auto"
	}
	awsCfg, err := awsConfig.LoadDefaultConfig(
		ctx,
		awsConfig.WithBaseEndpoint(cfg.Endpoint),
		awsConfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, "")),
		awsConfig.WithRegion(region),
	)
	if err != nil {
		return nil, fmt.Errorf("[%s] Fail to load AWS config, err=%w", op, err)
	}
	return s3.NewFromConfig(awsCfg), nil
}

// ImageStore 上傳商品圖片並回傳公開網址
type ImageStore struct {
	client         ObjectPutter
	bucket         string
	publicEndpoint *url.URL
	keyPrefix      string
	maxSize        int64
}

func NewImageStore(client ObjectPutter, bucket, publicBaseURL, keyPrefix string) (*ImageStore, error) {
	const op = "s3.NewImageStore"
	if client == nil {
		return nil, errors.New("s3 client cannot be nil")
	}
	if bucket == "" {
		return nil, errors.New("bucket cannot be empty")
	}
	publicEndpoint, err := url.Parse(publicBaseURL)
	if err != nil {
		return nil, fmt.Errorf("[%s] Fail to parse public base URL, err=%w", op, err)
	}
	return &ImageStore{
		client:         client,
		bucket:         bucket,
		publicEndpoint: publicEndpoint,
		keyPrefix:      keyPrefix,
		maxSize:        DefaultMaxImageSize,
	}, nil
}

// Upload 依內容判斷圖片類型，不信任客戶端提供的 Content-Type
func (s *ImageStore) Upload(ctx context.Context, r io.Reader) (string, error) {
	const op = "s3.ImageStore.Upload"
	data, err := ReadLimited(r, s.maxSize)
	if err != nil {
		return "", err
	}
	mimeType := http.DetectContentType(data)
	ext, ok := ImageExtension(mimeType)
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnsupportedImage, mimeType)
	}

	id, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("[%s] Fail to generate object key, err=%w", op, err)
	}
	key := path.Join(s.keyPrefix, id.String()+"."+ext)
	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(mimeType),
	})
	if err != nil {
		return "", fmt.Errorf("[%s] Fail to upload file to S3, err=%w", op, err)
	}

	uri := *s.publicEndpoint
	uri.Path = path.Join("/", uri.Path, key)
	return uri.String(), nil
}
