// Package errors classifies AWS provider errors the pipeline reacts to.
package errors

import (
	"errors"
	"strings"

	iamtypes "github.com/aws/aws-sdk-go-v2/service/iam/types"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	ssmtypes "github.com/aws/aws-sdk-go-v2/service/ssm/types"
	smithy "github.com/aws/smithy-go"
)

// Code returns the provider error code, or "" when err is not an API error.
func Code(err error) string {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		return apiErr.ErrorCode()
	}
	return ""
}

// IsNotFound reports whether err says the addressed resource does not exist.
func IsNotFound(err error) bool {
	if err == nil {
		return false
	}

	var noSuchEntity *iamtypes.NoSuchEntityException
	if errors.As(err, &noSuchEntity) {
		return true
	}
	var noSuchBucket *s3types.NoSuchBucket
	if errors.As(err, &noSuchBucket) {
		return true
	}
	var noInvocation *ssmtypes.InvocationDoesNotExist
	if errors.As(err, &noInvocation) {
		return true
	}

	code := Code(err)
	switch {
	case code == "NoSuchEntity", code == "NoSuchBucket", code == "InvocationDoesNotExist":
		return true
	case strings.HasSuffix(code, ".NotFound"), strings.HasSuffix(code, ".Malformed"):
		// InvalidAMIID.NotFound, InvalidInstanceID.NotFound, InvalidVolume.NotFound,
		// InvalidAMIID.Malformed
		return true
	}
	return false
}

// IsNoSuchEntity reports an IAM NoSuchEntity error only.
func IsNoSuchEntity(err error) bool {
	var noSuchEntity *iamtypes.NoSuchEntityException
	return errors.As(err, &noSuchEntity) || Code(err) == "NoSuchEntity"
}

// IsInstanceNotFound matches the eventual consistency error EC2 returns for
// an instance id it created moments ago.
func IsInstanceNotFound(err error) bool {
	return Code(err) == "InvalidInstanceID.NotFound"
}

// IsEnaRequired reports the launch failure raised when the image and the
// instance type disagree on Elastic Network Adapter support.
func IsEnaRequired(err error) bool {
	if err == nil {
		return false
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) && strings.Contains(apiErr.ErrorMessage(), "(ENA)") {
		return true
	}
	return strings.Contains(err.Error(), "(ENA)")
}

// IsBucketOwnedElsewhere reports a bucket name taken by another account.
func IsBucketOwnedElsewhere(err error) bool {
	var exists *s3types.BucketAlreadyExists
	return errors.As(err, &exists) || Code(err) == "BucketAlreadyExists"
}

// IsBucketOwnedByYou reports a create call for a bucket the caller already owns.
func IsBucketOwnedByYou(err error) bool {
	var owned *s3types.BucketAlreadyOwnedByYou
	return errors.As(err, &owned) || Code(err) == "BucketAlreadyOwnedByYou"
}
