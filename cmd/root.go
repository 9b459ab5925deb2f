package cmd

import "github.com/spf13/cobra"

func Execute() error {
	return newRootCmd().Execute()
}

type rootOptions struct {
	configPath string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	rootCmd := &cobra.Command{
		Use:           "formflow",
		Short:         "formflow: stateful form sessions over websockets",
		Long:          "formflow runs multi-step form sessions: navigation stacks, per-screen timeouts, shared form caching and session state, served over websockets or tried out in the terminal.",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	rootCmd.PersistentFlags().StringVar(&opts.configPath, "config", "", "config file (default ~/.config/formflow/config.toml)")

	rootCmd.AddCommand(
		newVersionCmd(),
		newConfigCmd(opts),
		newServeCmd(opts),
		newDemoCmd(opts),
	)

	return rootCmd
}
