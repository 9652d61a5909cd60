package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/praetorian-inc/cloudshovel/internal/logs"
	"github.com/praetorian-inc/cloudshovel/internal/message"
	outputproviders "github.com/praetorian-inc/cloudshovel/internal/output_providers"
	"github.com/praetorian-inc/cloudshovel/modules/options"
	"github.com/praetorian-inc/cloudshovel/pkg/aws/api"
	"github.com/praetorian-inc/cloudshovel/pkg/scripts"
	"github.com/praetorian-inc/cloudshovel/pkg/stages"
	"github.com/praetorian-inc/cloudshovel/pkg/types"
)

var awsDigOptions = []*options.Option{
	&options.AwsBucketOpt,
	&options.AwsZoneOpt,
	&options.ScriptsDirOpt,
}

var awsDigCmd = &cobra.Command{
	Use:   "dig <ami-id>...",
	Short: "Scan the volumes of one or more AMIs for secrets",
	Long: `Launch every AMI, move its volumes onto an analysis instance, run the
scanning script over them and sync the findings to the bucket under
<region>/<ami-id>/. Images are processed one after another and every run
ends with a cleanup of the analysis instance, role and instance profile.`,
	Args: func(cmd *cobra.Command, args []string) error {
		return options.ValidateImageIDs(args)
	},
	RunE: runDig,
}

func init() {
	options2Flag(awsDigOptions, awsCommonOptions, awsDigCmd.Flags())
	awsCmd.AddCommand(awsDigCmd)
}

func runDig(cmd *cobra.Command, images []string) error {
	opts, err := getOpts(globalOptions, awsCommonOptions, awsDigOptions)
	if err != nil {
		return err
	}

	set, err := scripts.Load(optValue(options.ScriptsDirOpt.Name, opts))
	if err != nil {
		return err
	}
	provider, err := outputproviders.New(optValue(options.OutputFormatOpt.Name, opts), optValue(options.OutputOpt.Name, opts))
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	cfg, err := awsSession(ctx, opts)
	if err != nil {
		return err
	}

	clients := api.NewClients(cfg)
	runCfg := stages.Config{
		Region:  cfg.Region,
		Zone:    optValue(options.AwsZoneOpt.Name, opts),
		Bucket:  optValue(options.AwsBucketOpt.Name, opts),
		Scripts: set,
	}

	failed := 0
	for i, image := range images {
		message.Section("%s (%d/%d)", image, i+1, len(images))

		report, err := stages.NewRun(clients, runCfg).Dig(ctx, image)
		if err != nil {
			failed++
		}
		result := types.NewResult(fmt.Sprintf("dig-%s-%s", cfg.Region, image), report)
		if werr := provider.Write(result); werr != nil {
			message.Error("Could not write the report of %s: %s", image, werr)
		}
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d images failed, see %s for the SDK log", failed, len(images), logs.LogFile)
	}
	message.Success("All %d images dug", len(images))
	return nil
}
