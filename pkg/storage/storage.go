// Package storage wraps the S3 calls behind the result and script bucket.
package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/praetorian-inc/cloudshovel/pkg/aws/api"
	awserrors "github.com/praetorian-inc/cloudshovel/pkg/aws/errors"
	"github.com/praetorian-inc/cloudshovel/pkg/utils"
)

var ErrBucketOwnedElsewhere = errors.New("bucket name is owned by another account")

type Bucket struct {
	client api.S3API
	Name   string
	// Region is where the bucket lives, which can differ from the compute
	// region. Set by Ensure.
	Region string
}

func NewBucket(client api.S3API, name string) *Bucket {
	return &Bucket{client: client, Name: name}
}

// Ensure creates the bucket in region unless the caller already owns a
// bucket with that name, then resolves the bucket's own region. It reports
// whether the bucket was created.
func (b *Bucket) Ensure(ctx context.Context, region string) (bool, error) {
	exists, err := b.exists(ctx)
	if err != nil {
		return false, err
	}

	created := false
	if !exists {
		slog.InfoContext(ctx, "Bucket not found, creating", "bucket", b.Name, "region", region)
		_, err := b.client.CreateBucket(ctx, &s3.CreateBucketInput{
			Bucket:                    aws.String(b.Name),
			CreateBucketConfiguration: utils.S3CreateBucketConfiguration(region),
		}, withRegion(region))
		switch {
		case err == nil:
			created = true
		case awserrors.IsBucketOwnedByYou(err):
		case awserrors.IsBucketOwnedElsewhere(err):
			return false, fmt.Errorf("%w: %s, pick another bucket name", ErrBucketOwnedElsewhere, b.Name)
		default:
			return false, fmt.Errorf("failed to create bucket %s: %w", b.Name, err)
		}
	}

	if err := b.resolveRegion(ctx); err != nil {
		return created, err
	}
	return created, nil
}

func (b *Bucket) exists(ctx context.Context) (bool, error) {
	out, err := b.client.ListBuckets(ctx, &s3.ListBucketsInput{})
	if err != nil {
		return false, fmt.Errorf("failed to list buckets: %w", err)
	}
	for _, bucket := range out.Buckets {
		if aws.ToString(bucket.Name) == b.Name {
			return true, nil
		}
	}
	return false, nil
}

func (b *Bucket) resolveRegion(ctx context.Context) error {
	out, err := b.client.GetBucketLocation(ctx, &s3.GetBucketLocationInput{Bucket: aws.String(b.Name)})
	if err != nil {
		return fmt.Errorf("failed to get location of bucket %s: %w", b.Name, err)
	}
	b.Region = utils.S3BucketRegion(out.LocationConstraint)
	slog.DebugContext(ctx, "Resolved bucket region", "bucket", b.Name, "region", b.Region)
	return nil
}

// HasObject reports whether key exists in the bucket.
func (b *Bucket) HasObject(ctx context.Context, key string) (bool, error) {
	out, err := b.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
		Bucket: aws.String(b.Name),
		Prefix: aws.String(key),
	}, b.regional())
	if err != nil {
		return false, fmt.Errorf("failed to list %s in bucket %s: %w", key, b.Name, err)
	}
	for _, obj := range out.Contents {
		if aws.ToString(obj.Key) == key {
			return true, nil
		}
	}
	return false, nil
}

// EnsureObject uploads body under key only when the key is absent. It
// reports whether an upload happened.
func (b *Bucket) EnsureObject(ctx context.Context, key string, body []byte) (bool, error) {
	present, err := b.HasObject(ctx, key)
	if err != nil {
		return false, err
	}
	if present {
		return false, nil
	}

	_, err = b.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(b.Name),
		Key:    aws.String(key),
		Body:   bytes.NewReader(body),
	}, b.regional())
	if err != nil {
		return false, fmt.Errorf("failed to upload %s to bucket %s: %w", key, b.Name, err)
	}
	return true, nil
}

// URI returns the s3:// location of key.
func (b *Bucket) URI(key string) string {
	return utils.S3URI(b.Name, key)
}

// ObjectURL returns the https location of key in the bucket's region.
func (b *Bucket) ObjectURL(key string) string {
	return utils.S3ObjectURL(b.Name, b.Region, key)
}

func (b *Bucket) regional() func(*s3.Options) {
	return withRegion(b.Region)
}

func withRegion(region string) func(*s3.Options) {
	return func(o *s3.Options) {
		if region != "" {
			o.Region = region
		}
	}
}
