package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/bnema/formflow/internal/config"
)

const redacted = "********"

func newConfigCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration",
		Long:  "Print every configuration key after applying defaults, the config file and FORMFLOW_* environment overrides.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			v := config.New()
			if _, err := config.Load(v, root.configPath); err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if used := v.ConfigFileUsed(); used != "" {
				fmt.Fprintf(out, "# %s\n", used)
			}
			for _, key := range config.Keys() {
				value := fmt.Sprint(v.Get(key))
				if isSecretKey(key) && value != "" {
					value = redacted
				}
				if _, err := fmt.Fprintf(out, "%s = %s\n", key, value); err != nil {
					return err
				}
			}
			return nil
		},
	}
}

func isSecretKey(key string) bool {
	return strings.HasSuffix(key, ".password")
}
