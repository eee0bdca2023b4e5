package filer

import (
	"context"
	"fmt"
	"io"

	"github.com/airenas/go-app/pkg/goapp"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// Options to init filer
type Options struct {
	URL    string
	User   string
	Key    string
	Bucket string
	Secure bool
}

// Filer saves and loads objects from minio
type Filer struct {
	client *minio.Client
	bucket string
}

// NewFiler creates a minio backed file storage
func NewFiler(ctx context.Context, opts Options) (*Filer, error) {
	if opts.URL == "" {
		return nil, fmt.Errorf("no url")
	}
	if opts.Bucket == "" {
		return nil, fmt.Errorf("no bucket")
	}
	mc, err := minio.New(opts.URL, &minio.Options{
		Creds:  credentials.NewStaticV4(opts.User, opts.Key, ""),
		Secure: opts.Secure,
	})
	if err != nil {
		return nil, fmt.Errorf("can't init minio client: %w", err)
	}
	res := &Filer{client: mc, bucket: opts.Bucket}
	exists, err := mc.BucketExists(ctx, opts.Bucket)
	if err != nil {
		return nil, fmt.Errorf("can't check bucket: %w", err)
	}
	if !exists {
		if err := mc.MakeBucket(ctx, opts.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("can't create bucket: %w", err)
		}
		goapp.Log.Info().Str("bucket", opts.Bucket).Msg("created bucket")
	}
	return res, nil
}

// SaveFile stores an object
func (f *Filer) SaveFile(ctx context.Context, name string, r io.Reader, fileSize int64) error {
	goapp.Log.Debug().Str("name", name).Int64("size", fileSize).Msg("save object")
	_, err := f.client.PutObject(ctx, f.bucket, name, r, fileSize, minio.PutObjectOptions{})
	if err != nil {
		return fmt.Errorf("can't save '%s': %w", name, err)
	}
	return nil
}

// LoadFile returns an object reader. The result implements Stat()
func (f *Filer) LoadFile(ctx context.Context, name string) (io.ReadSeekCloser, error) {
	obj, err := f.client.GetObject(ctx, f.bucket, name, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("can't load '%s': %w", name, err)
	}
	return obj, nil
}

// Stat returns object size
func (f *Filer) Stat(ctx context.Context, name string) (int64, error) {
	info, err := f.client.StatObject(ctx, f.bucket, name, minio.StatObjectOptions{})
	if err != nil {
		return 0, fmt.Errorf("can't stat '%s': %w", name, err)
	}
	return info.Size, nil
}

// Delete removes an object, no error if it does not exist
func (f *Filer) Delete(ctx context.Context, name string) error {
	if err := f.client.RemoveObject(ctx, f.bucket, name, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("can't delete '%s': %w", name, err)
	}
	return nil
}

// DeletePrefix removes all objects under prefix
func (f *Filer) DeletePrefix(ctx context.Context, prefix string) error {
	for obj := range f.client.ListObjects(ctx, f.bucket, minio.ListObjectsOptions{Prefix: prefix, Recursive: true}) {
		if obj.Err != nil {
			return fmt.Errorf("can't list '%s': %w", prefix, obj.Err)
		}
		if err := f.client.RemoveObject(ctx, f.bucket, obj.Key, minio.RemoveObjectOptions{}); err != nil {
			return fmt.Errorf("can't delete '%s': %w", obj.Key, err)
		}
		goapp.Log.Debug().Str("name", obj.Key).Msg("deleted object")
	}
	return nil
}

// Bucket returns the configured bucket name
func (f *Filer) Bucket() string {
	return f.bucket
}
