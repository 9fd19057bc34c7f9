// Package cmd implements the video-relay command line.
package cmd

import (
	"os"

	"github.com/samber/lo"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"video-relay-go/config"
	"video-relay-go/logger"
)

func init() {
	rootCmd.PersistentFlags().String("log-level", "", "Log level (debug, info, warn, error)")
	lo.Must0(viper.BindPFlag(config.KeyLogLevel, rootCmd.PersistentFlags().Lookup("log-level")))

	rootCmd.PersistentFlags().Bool("log-json", false, "Emit logs as JSON")
	lo.Must0(viper.BindPFlag(config.KeyLogJSON, rootCmd.PersistentFlags().Lookup("log-json")))

	rootCmd.PersistentFlags().String("proxy", "", "SOCKS5 proxy address for outbound requests")
	lo.Must0(viper.BindPFlag(config.KeyProxyAddr, rootCmd.PersistentFlags().Lookup("proxy")))
}

var rootCmd = &cobra.Command{
	Use:           config.AppName,
	Short:         "Resolve video quality options and relay the selected stream",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		v := viper.GetViper()
		if err := config.Setup(v); err != nil {
			return err
		}
		logger.Setup(v.GetString(config.KeyLogLevel), v.GetBool(config.KeyLogJSON))
		return nil
	},
}

// Execute runs the root command and exits non-zero on failure
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		logrus.WithError(err).Error("Command failed")
		os.Exit(1)
	}
}
