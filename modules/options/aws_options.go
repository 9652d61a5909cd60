package options

import (
	"regexp"
)

var AwsProfileOpt = Option{
	Name:        "profile",
	Short:       "p",
	Description: "AWS shared config profile",
	Required:    false,
	Type:        String,
	Value:       "default",
}

var AwsAccessKeyIdOpt = Option{
	Name:        "access-key-id",
	Description: "AWS access key ID, used instead of the profile",
	Required:    false,
	Type:        String,
	Value:       "",
	ValueFormat: regexp.MustCompile("^(AKIA|ASIA|A3T|AGPA|AIDA|AROA|AIPA|ANPA|ANVA)[A-Z0-9]{12,}$"),
}

var AwsSecretAccessKeyOpt = Option{
	Name:        "secret-access-key",
	Description: "AWS secret access key",
	Required:    false,
	Type:        String,
	Value:       "",
	Sensitive:   true,
}

var AwsSessionTokenOpt = Option{
	Name:        "session-token",
	Description: "AWS session token for temporary credentials",
	Required:    false,
	Type:        String,
	Value:       "",
	Sensitive:   true,
}

var AwsRegionOpt = Option{
	Name:        "region",
	Short:       "r",
	Description: "AWS region the images live in",
	Required:    false,
	Type:        String,
	Value:       "us-east-1",
	ValueFormat: regexp.MustCompile(`^[a-z]{2}(-gov)?-[a-z]+-\d$`),
}

var AwsZoneOpt = Option{
	Name:        "zone",
	Description: "availability zone suffix both instances are placed in",
	Required:    false,
	Type:        String,
	Value:       "a",
	ValueFormat: regexp.MustCompile("^[a-z]$"),
}

var AwsBucketOpt = Option{
	Name:        "bucket",
	Short:       "b",
	Description: "S3 bucket for the scripts and the results, created if missing",
	Required:    true,
	Type:        String,
	Value:       "",
	ValueFormat: regexp.MustCompile(`^[a-z0-9][a-z0-9.-]{1,61}[a-z0-9]$`),
}

var AwsImageIdFormat = regexp.MustCompile("^ami-[0-9a-f]{8,17}$")

var AwsYesOpt = Option{
	Name:        "yes",
	Short:       "y",
	Description: "skip the identity confirmation prompt",
	Required:    false,
	Type:        Bool,
	Value:       "false",
}
