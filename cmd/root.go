/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"os"

	"github.com/jjudge-oj/judgeserver/config"
	"github.com/jjudge-oj/judgeserver/internal/logging"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "judgeserver",
	Short: "Submission judging and contest scoring for jjudge",
	Long: `judgeserver accepts code submissions, forwards them to the execution
judge, records verdicts and scores contest attempts.`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

// loadRuntime reads configuration from the environment and builds the
// process logger.
func loadRuntime() (config.Config, *logrus.Logger, error) {
	cfg := config.LoadConfig()
	log, err := logging.New(cfg.Log)
	if err != nil {
		return config.Config{}, nil, err
	}
	return cfg, log, nil
}
