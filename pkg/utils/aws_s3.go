package utils

import (
	"fmt"
	"strings"

	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// S3BucketRegion turns a GetBucketLocation constraint into a region name.
// us-east-1 buckets report an empty constraint and very old eu-west-1
// buckets report "EU".
func S3BucketRegion(constraint s3types.BucketLocationConstraint) string {
	switch c := string(constraint); c {
	case "":
		return "us-east-1"
	case string(s3types.BucketLocationConstraintEu):
		return "eu-west-1"
	default:
		return c
	}
}

// S3CreateBucketConfiguration returns the location configuration for a new
// bucket in region, or nil for us-east-1 which rejects an explicit constraint.
func S3CreateBucketConfiguration(region string) *s3types.CreateBucketConfiguration {
	if region == "" || region == "us-east-1" {
		return nil
	}
	return &s3types.CreateBucketConfiguration{
		LocationConstraint: s3types.BucketLocationConstraint(region),
	}
}

// S3URI formats an s3:// url. A trailing slash on key is kept.
func S3URI(bucket string, key string) string {
	return fmt.Sprintf("s3://%s/%s", bucket, strings.TrimPrefix(key, "/"))
}

// S3ObjectURL formats the virtual hosted style https url of an object.
func S3ObjectURL(bucket string, region string, key string) string {
	return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", bucket, region, strings.TrimPrefix(key, "/"))
}
