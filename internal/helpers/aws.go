package helpers

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/aws/arn"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/sts"

	"github.com/praetorian-inc/cloudshovel/internal/logs"
)

var ErrPartialKeyPair = errors.New("access key id and secret access key must be set together")

// Credentials selects how the SDK authenticates. A key pair wins over the
// shared config profile when both are set.
type Credentials struct {
	Profile         string
	AccessKeyID     string
	SecretAccessKey string
	SessionToken    string
}

func (c Credentials) static() bool {
	return c.AccessKeyID != "" || c.SecretAccessKey != ""
}

func (c Credentials) validate() error {
	if c.static() && (c.AccessKeyID == "" || c.SecretAccessKey == "") {
		return ErrPartialKeyPair
	}
	return nil
}

func (c Credentials) loadOptions() []func(*config.LoadOptions) error {
	if c.static() {
		return []func(*config.LoadOptions) error{
			config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(c.AccessKeyID, c.SecretAccessKey, c.SessionToken)),
		}
	}
	if c.Profile != "" {
		return []func(*config.LoadOptions) error{config.WithSharedConfigProfile(c.Profile)}
	}
	return nil
}

func GetAWSCfg(ctx context.Context, region string, creds Credentials) (aws.Config, error) {
	if err := creds.validate(); err != nil {
		return aws.Config{}, err
	}

	opts := append([]func(*config.LoadOptions) error{
		config.WithClientLogMode(aws.LogRetries),
		config.WithLogger(logs.Logger()),
		config.WithRegion(region),
		config.WithRetryMode(aws.RetryModeAdaptive),
	}, creds.loadOptions()...)

	cfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return aws.Config{}, fmt.Errorf("load aws config: %w", err)
	}
	return cfg, nil
}

// STSAPI is the part of the STS client GetCallerIdentity needs.
type STSAPI interface {
	GetCallerIdentity(ctx context.Context, params *sts.GetCallerIdentityInput, optFns ...func(*sts.Options)) (*sts.GetCallerIdentityOutput, error)
}

type Identity struct {
	Account string
	ARN     string
	UserID  string
}

// Principal is the last path element of the identity ARN, e.g. the user
// or role session name.
func (i Identity) Principal() string {
	parsed, err := arn.Parse(i.ARN)
	if err != nil {
		return i.ARN
	}
	parts := strings.Split(parsed.Resource, "/")
	return parts[len(parts)-1]
}

func GetCallerIdentity(ctx context.Context, client STSAPI) (Identity, error) {
	out, err := client.GetCallerIdentity(ctx, &sts.GetCallerIdentityInput{})
	if err != nil {
		return Identity{}, fmt.Errorf("get caller identity: %w", err)
	}
	return Identity{
		Account: aws.ToString(out.Account),
		ARN:     aws.ToString(out.Arn),
		UserID:  aws.ToString(out.UserId),
	}, nil
}

func NewSTSClient(cfg aws.Config) STSAPI {
	return sts.NewFromConfig(cfg)
}
