package s3

import (
	"bytes"
	"context"
	"io"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

/*
Conn wraps a MinIO client with the small object-store surface the task
store needs. It works against AWS S3 and any S3-compatible endpoint.
*/
type Conn struct {
	client *minio.Client
}

type ConnConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	UseSSL    bool
}

func NewConn(cfg ConnConfig) (*Conn, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, err
	}

	return &Conn{client: client}, nil
}

/*
EnsureBucket creates the bucket when it does not exist yet. Safe to call
on every startup.
*/
func (conn *Conn) EnsureBucket(ctx context.Context, bucket string) error {
	exists, err := conn.client.BucketExists(ctx, bucket)
	if err != nil {
		return err
	}

	if !exists {
		return conn.client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{})
	}

	return nil
}

func (conn *Conn) Get(ctx context.Context, bucket, key string) ([]byte, error) {
	obj, err := conn.client.GetObject(ctx, bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, err
	}
	defer obj.Close()

	return io.ReadAll(obj)
}

func (conn *Conn) Put(ctx context.Context, bucket, key string, data []byte) error {
	_, err := conn.client.PutObject(
		ctx, bucket, key, bytes.NewReader(data), int64(len(data)),
		minio.PutObjectOptions{ContentType: "application/json"},
	)

	return err
}

func (conn *Conn) Delete(ctx context.Context, bucket, key string) error {
	return conn.client.RemoveObject(ctx, bucket, key, minio.RemoveObjectOptions{})
}

/*
List streams the object keys under a prefix. The underlying channel is
drained fully so the client does not leak goroutines.
*/
func (conn *Conn) List(ctx context.Context, bucket, prefix string) ([]string, error) {
	var keys []string

	for info := range conn.client.ListObjects(ctx, bucket, minio.ListObjectsOptions{
		Prefix:    prefix,
		Recursive: true,
	}) {
		if info.Err != nil {
			return nil, info.Err
		}
		keys = append(keys, info.Key)
	}

	return keys, nil
}

// IsNotFound reports whether an object-store error means a missing key.
func IsNotFound(err error) bool {
	resp := minio.ToErrorResponse(err)
	return resp.Code == "NoSuchKey" || resp.Code == "NoSuchBucket"
}
