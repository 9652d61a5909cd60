package cmd

import (
	"github.com/spf13/cobra"

	"github.com/praetorian-inc/cloudshovel/internal/message"
	"github.com/praetorian-inc/cloudshovel/pkg/aws/api"
	"github.com/praetorian-inc/cloudshovel/pkg/stages"
)

var awsCleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Remove the analysis instance, role and instance profile",
	Long: `Terminate any analysis instance left in the region and delete the
minimal-ssm role and instance profile. The bucket is kept.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		opts, err := getOpts(globalOptions, awsCommonOptions)
		if err != nil {
			return err
		}

		cfg, err := awsSession(cmd.Context(), opts)
		if err != nil {
			return err
		}

		clients := api.NewClients(cfg)
		if err := stages.Teardown(cmd.Context(), clients.EC2, clients.IAM); err != nil {
			return err
		}
		message.Success("Cleanup finished in %s", cfg.Region)
		return nil
	},
}

func init() {
	options2Flag(nil, awsCommonOptions, awsCleanupCmd.Flags())
	awsCmd.AddCommand(awsCleanupCmd)
}
