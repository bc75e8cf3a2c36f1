package services

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"path"

	"servicehub/internal/common"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// MaxImageSize bounds listing image uploads.
const MaxImageSize = 5 << 20

var imageExtensions = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/webp": ".webp",
}

type MinioService interface {
	UploadListingImage(ctx context.Context, listingID uuid.UUID, reader io.Reader, size int64) (string, error)
	DeleteObject(ctx context.Context, objectName string) error
	ObjectURL(objectName string) string
	EnsureBucketExists(ctx context.Context) error
	Ping(ctx context.Context) error
}

type minioClient struct {
	client *minio.Client
	bucket string
}

func NewMinioService(endpoint, accessKey, secretKey string, useSSL bool, bucket string) (MinioService, error) {
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: useSSL,
	})
	if err != nil {
		return nil, err
	}
	return &minioClient{client: client, bucket: bucket}, nil
}

// UploadListingImage sniffs the content type, stores the object under
// listings/<id>/<random><ext> and returns its URL.
func (m *minioClient) UploadListingImage(ctx context.Context, listingID uuid.UUID, reader io.Reader, size int64) (string, error) {
	if size <= 0 || size > MaxImageSize {
		return "", common.NewValidationError("image", fmt.Sprintf("must be between 1 byte and %d bytes", MaxImageSize))
	}

	head := make([]byte, 512)
	n, err := io.ReadFull(reader, head)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return "", fmt.Errorf("read image: %w", err)
	}
	head = head[:n]

	contentType, ext, err := detectImageType(head)
	if err != nil {
		return "", err
	}

	objectName := listingObjectName(listingID, ext)
	body := io.MultiReader(bytes.NewReader(head), reader)
	_, err = m.client.PutObject(ctx, m.bucket, objectName, body, size, minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return "", fmt.Errorf("put object: %w", err)
	}
	return m.ObjectURL(objectName), nil
}

func (m *minioClient) DeleteObject(ctx context.Context, objectName string) error {
	return m.client.RemoveObject(ctx, m.bucket, objectName, minio.RemoveObjectOptions{})
}

func (m *minioClient) ObjectURL(objectName string) string {
	u := *m.client.EndpointURL()
	u.Path = path.Join("/", m.bucket, objectName)
	return u.String()
}

func (m *minioClient) EnsureBucketExists(ctx context.Context) error {
	found, err := m.client.BucketExists(ctx, m.bucket)
	if err != nil {
		return err
	}
	if !found {
		return m.client.MakeBucket(ctx, m.bucket, minio.MakeBucketOptions{})
	}
	return nil
}

func (m *minioClient) Ping(ctx context.Context) error {
	_, err := m.client.BucketExists(ctx, m.bucket)
	return err
}

func detectImageType(head []byte) (string, string, error) {
	contentType := http.DetectContentType(head)
	ext, ok := imageExtensions[contentType]
	if !ok {
		return "", "", common.NewValidationError("image", "must be a JPEG, PNG or WebP image")
	}
	return contentType, ext, nil
}

func listingObjectName(listingID uuid.UUID, ext string) string {
	return path.Join("listings", listingID.String(), uuid.NewString()+ext)
}
