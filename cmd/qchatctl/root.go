package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/qchat-dev/qchat-go/internal/buildinfo"
	"github.com/qchat-dev/qchat-go/internal/config"
	"github.com/qchat-dev/qchat-go/internal/logger"
)

// globalOptions are the persistent flags shared by every subcommand.
type globalOptions struct {
	logLevel string
	json     bool
}

func newRootCmd() *cobra.Command {
	opts := &globalOptions{}
	root := &cobra.Command{
		Use:          "qchatctl",
		Short:        "Operate the QChat index and answer pipeline",
		Version:      buildinfo.String(),
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "log level (default from QCHAT_LOG_LEVEL)")
	root.PersistentFlags().BoolVar(&opts.json, "json", false, "print results as JSON")

	root.AddCommand(
		newIndexCmd(opts),
		newFAQCmd(opts),
		newAskCmd(opts),
	)
	return root
}

// load reads configuration for mode and builds a logger writing to stderr
// so command output stays clean.
func (o *globalOptions) load(cmd *cobra.Command, mode config.ValidationMode) (*config.Config, *logger.Logger, error) {
	cfg, err := config.Load(mode)
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	level := cfg.LogLevel
	if o.logLevel != "" {
		level = o.logLevel
	}
	log, _ := logger.Setup(logger.Options{Level: level, Writer: cmd.ErrOrStderr()})
	return cfg, log.WithField("command", cmd.CommandPath()), nil
}

func printJSON(cmd *cobra.Command, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal output: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(data))
	return nil
}
