package commands

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/piwi3910/searchbench/pkg/config"
	"github.com/piwi3910/searchbench/pkg/engine"
	"github.com/piwi3910/searchbench/pkg/stores"
)

func newStatusCommand() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show recent run history",
		Long: `Show the most recent provisioning runs and their per-engine outcomes
from the local run-history store.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := config.Load(manifestPath)
			if err != nil {
				return err
			}

			store, err := stores.NewSQLiteStore(m.StorePath)
			if err != nil {
				return err
			}
			if err := store.Init(cmd.Context()); err != nil {
				return err
			}
			defer func() { _ = store.Close() }()
			if err := store.Migrate(cmd.Context()); err != nil {
				return err
			}

			runs, err := store.ListRuns(cmd.Context(), limit)
			if err != nil {
				return err
			}

			type runView struct {
				stores.RunRecord
				Engines []engine.EngineOutcome `json:"engines"`
			}
			views := make([]runView, 0, len(runs))
			for _, r := range runs {
				outcomes, err := store.Outcomes(cmd.Context(), r.RunID)
				if err != nil {
					return err
				}
				views = append(views, runView{RunRecord: r, Engines: outcomes})
			}

			if jsonOutput {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(views)
			}

			if len(views) == 0 {
				fmt.Println("no runs recorded")
				return nil
			}
			for _, v := range views {
				result := "ok"
				if v.Failed {
					result = "failed"
				}
				fmt.Printf("%s  %s  env=%s  %s\n",
					v.StartedAt.Format(time.RFC3339), v.RunID, v.Environment, result)
				for _, o := range v.Engines {
					fmt.Printf("    %-14s %-12s %s\n", o.Engine, o.Status, o.Endpoint)
				}
			}
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 10, "number of runs to show")

	return cmd
}
