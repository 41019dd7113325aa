package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"firestige.xyz/mediatx/internal/config"
)

func newValidateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate the sender configuration",
		Long: `Load the configuration file, MEDIATX_* environment variables and flags the
same way send does, and report whether the result is usable without
connecting anywhere.

Examples:
  mediatx validate --config sender.yaml
  mediatx validate -t st30 -e 125us --print`,
		Args: cobra.NoArgs,
		RunE: runValidate,
	}
	addStreamFlags(cmd.Flags(), cmd.Name())
	cmd.Flags().Bool("print", false, "print the effective configuration as YAML")
	return cmd
}

func runValidate(cmd *cobra.Command, _ []string) error {
	configFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(configFile, cmd.Flags())
	if err != nil {
		fmt.Fprintf(cmd.ErrOrStderr(), "INVALID: %v\n", err)
		return &ExitError{Code: 1}
	}

	size, _ := cfg.Payload.FrameSize()
	fmt.Fprintf(cmd.OutOrStdout(), "VALID: payload %s, frame size %d bytes, interval %v, protocol %s\n",
		cfg.Payload.Type, size, cfg.Payload.Interval(), cfg.Transport.Protocol)

	if show, _ := cmd.Flags().GetBool("print"); show {
		enc := yaml.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent(2)
		if err := enc.Encode(config.Root(cfg)); err != nil {
			return fmt.Errorf("failed to encode config: %w", err)
		}
		return enc.Close()
	}
	return nil
}
