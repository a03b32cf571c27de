package cmd

import (
	"os"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	logformat "github.com/x-cray/logrus-prefixed-formatter"
)

var (
	level string
)

var rootCmd = &cobra.Command{
	Use:               "xprmntr",
	Short:             "Submit and receive experiment data exports",
	PersistentPreRunE: rootPreRun,
	SilenceUsage:      true,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&level, "log-level", "info", "log level (debug, info, warn, error)")
}

func rootPreRun(_ *cobra.Command, _ []string) error {
	logger := log.StandardLogger()
	logger.Formatter = &logformat.TextFormatter{
		TimestampFormat: "2006-01-02 15:04:05",
		FullTimestamp:   true,
	}

	lvl, err := log.ParseLevel(level)
	if err != nil {
		lvl = log.DebugLevel
	}
	logger.SetLevel(lvl)

	return nil
}
