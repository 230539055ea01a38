package storage

import (
	"context"
	"fmt"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

type MinioUploader struct {
	client   *minio.Client
	bucket   string
	endpoint string
	useSSL   bool
}

func NewMinio(endpoint, accessKey, secretKey, bucket, region string, useSSL bool) (*MinioUploader, error) {
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: useSSL,
		Region: region,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create MinIO client: %w", err)
	}

	ctx := context.Background()
	exists, err := client.BucketExists(ctx, bucket)
	if err != nil {
		return nil, fmt.Errorf("failed to check bucket: %w", err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{Region: region}); err != nil {
			return nil, fmt.Errorf("failed to create bucket: %w", err)
		}
	}

	return &MinioUploader{client: client, bucket: bucket, endpoint: endpoint, useSSL: useSSL}, nil
}

func (u *MinioUploader) Upload(ctx context.Context, obj Object) (string, error) {
	key := ObjectKey(obj.Folder, obj.Name)
	size := obj.Size
	if size <= 0 {
		size = -1
	}
	_, err := u.client.PutObject(ctx, u.bucket, key, obj.Body, size, minio.PutObjectOptions{
		ContentType: obj.ContentType,
	})
	if err != nil {
		return "", fmt.Errorf("minio upload failed: %w", err)
	}

	scheme := "http"
	if u.useSSL {
		scheme = "https"
	}
	return fmt.Sprintf("%s://%s/%s/%s", scheme, u.endpoint, u.bucket, key), nil
}

func ObjectKey(folder, name string) string {
	if folder == "" {
		return name
	}
	return folder + "/" + name
}
