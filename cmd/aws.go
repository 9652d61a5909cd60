package cmd

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/spf13/cobra"

	"github.com/praetorian-inc/cloudshovel/internal/helpers"
	"github.com/praetorian-inc/cloudshovel/internal/message"
	"github.com/praetorian-inc/cloudshovel/modules/options"
)

var awsCmd = &cobra.Command{
	Use:   "aws",
	Short: "aws commands",
	Long:  `Execute aws commands.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
}

func init() {
	rootCmd.AddCommand(awsCmd)
}

var awsCommonOptions = []*options.Option{
	&options.AwsProfileOpt,
	&options.AwsAccessKeyIdOpt,
	&options.AwsSecretAccessKeyOpt,
	&options.AwsSessionTokenOpt,
	&options.AwsRegionOpt,
	&options.AwsYesOpt,
}

func awsCredentials(opts []*options.Option) helpers.Credentials {
	return helpers.Credentials{
		Profile:         optValue(options.AwsProfileOpt.Name, opts),
		AccessKeyID:     optValue(options.AwsAccessKeyIdOpt.Name, opts),
		SecretAccessKey: optValue(options.AwsSecretAccessKeyOpt.Name, opts),
		SessionToken:    optValue(options.AwsSessionTokenOpt.Name, opts),
	}
}

// awsSession resolves the AWS config, shows the operator who they are acting
// as and asks for confirmation unless --yes was given.
func awsSession(ctx context.Context, opts []*options.Option) (aws.Config, error) {
	region := optValue(options.AwsRegionOpt.Name, opts)
	cfg, err := helpers.GetAWSCfg(ctx, region, awsCredentials(opts))
	if err != nil {
		return aws.Config{}, err
	}

	identity, err := helpers.GetCallerIdentity(ctx, helpers.NewSTSClient(cfg))
	if err != nil {
		return aws.Config{}, err
	}
	message.Info("Acting as %s in account %s, region %s", message.Emphasize(identity.ARN), identity.Account, region)

	if optBool(options.AwsYesOpt.Name, opts) {
		return cfg, nil
	}
	if !message.Confirm("Type 'yes' to continue:", "yes") {
		return aws.Config{}, fmt.Errorf("aborted, %s did not confirm", identity.Principal())
	}
	return cfg, nil
}
