package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/praetorian-inc/cloudshovel/internal/logs"
	"github.com/praetorian-inc/cloudshovel/internal/message"
	o "github.com/praetorian-inc/cloudshovel/modules/options"
)

var cfgFile string

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:               "cloudshovel",
	Short:             "CloudShovel digs secrets out of public AWS machine images.",
	SilenceErrors:     true,
	SilenceUsage:      true,
	PersistentPreRunE: setup,
}

var globalOptions = []*o.Option{
	&o.OutputOpt,
	&o.OutputFormatOpt,
	&o.LogLevelOpt,
	&o.QuietOpt,
	&o.NoColorOpt,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		message.Error("%s", err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.cloudshovel.yaml)")
	for _, option := range globalOptions {
		option2Flag(option, rootCmd.PersistentFlags())
	}
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		cobra.CheckErr(err)

		viper.AddConfigPath(home)
		viper.SetConfigType("yaml")
		viper.SetConfigName(".cloudshovel")
	}

	viper.SetEnvPrefix("cloudshovel")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}

// setup binds the flags of the command being run into viper and configures
// logging and console output from the global options.
func setup(cmd *cobra.Command, args []string) error {
	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return err
	}

	opts, err := getOpts(globalOptions)
	if err != nil {
		return err
	}

	level, err := logs.ParseLevel(o.GetOptionByName(o.LogLevelOpt.Name, opts).Value)
	if err != nil {
		return err
	}
	quiet, _ := strconv.ParseBool(o.GetOptionByName(o.QuietOpt.Name, opts).Value)
	noColor, _ := strconv.ParseBool(o.GetOptionByName(o.NoColorOpt.Name, opts).Value)

	message.SetQuiet(quiet)
	message.SetNoColor(noColor)
	logs.ConsoleLogger(level, noColor)
	slog.Debug("Configured output", "log_level", level, "quiet", quiet)
	return nil
}

func options2Flag(options []*o.Option, common []*o.Option, flags *pflag.FlagSet) {
	for _, option := range options {
		option2Flag(option, flags)
	}

	for _, option := range common {
		option2Flag(option, flags)
	}
}

func option2Flag(option *o.Option, flags *pflag.FlagSet) {
	switch option.Type {
	case o.String:
		flags.StringP(option.Name, option.Short, option.Value, option.Description)
	case o.Bool:
		value, _ := strconv.ParseBool(option.Value)
		flags.BoolP(option.Name, option.Short, value, option.Description)
	case o.Int:
		intValue, _ := strconv.Atoi(option.Value)
		flags.IntP(option.Name, option.Short, intValue, option.Description)
	}
}

// getOpts returns copies of options holding the values resolved by viper
// (flag, then environment, then config file, then default) and validates
// them. Required options are checked here rather than by cobra so that
// they can come from the environment or the config file.
func getOpts(options ...[]*o.Option) ([]*o.Option, error) {
	var opts []*o.Option
	for _, set := range options {
		for _, opt := range o.CreateDeepCopyOfOptions(set) {
			if viper.IsSet(opt.Name) {
				opt.Value = viper.GetString(opt.Name)
			}
			opts = append(opts, opt)
		}
	}

	if err := o.ValidateOptions(opts); err != nil {
		return nil, err
	}
	return opts, nil
}

func optValue(name string, opts []*o.Option) string {
	if opt := o.GetOptionByName(name, opts); opt != nil {
		return opt.Value
	}
	return ""
}

func optBool(name string, opts []*o.Option) bool {
	value, _ := strconv.ParseBool(optValue(name, opts))
	return value
}
