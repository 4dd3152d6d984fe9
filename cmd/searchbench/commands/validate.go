package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/piwi3910/searchbench/pkg/config"
	"github.com/piwi3910/searchbench/pkg/policy"
	"github.com/piwi3910/searchbench/pkg/telemetry"
)

func newValidateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate the manifest without touching the host",
		Long: `Load the manifest, check its structure and evaluate the built-in
policies. Nothing is executed against the container host.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := config.Load(manifestPath)
			if err != nil {
				return err
			}

			logger, err := telemetry.NewLogger(m.Telemetry.Logging)
			if err != nil {
				return err
			}

			gate, err := policy.NewGate(cmd.Context(), logger)
			if err != nil {
				return err
			}
			result, err := gate.Evaluate(cmd.Context(), m)
			if err != nil {
				return err
			}

			for _, w := range result.Warnings {
				fmt.Printf("warning: %s\n", w)
			}
			if !result.Allowed() {
				for _, d := range result.Denials {
					fmt.Printf("denied: %s\n", d)
				}
				return fmt.Errorf("manifest denied by policy")
			}

			fmt.Printf("manifest %s is valid: environment %s, engines %v\n",
				manifestPath, m.Environment, m.Engines)
			return nil
		},
	}
}
