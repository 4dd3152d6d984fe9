package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/piwi3910/searchbench/pkg/config"
	"github.com/piwi3910/searchbench/pkg/engine"
	"github.com/piwi3910/searchbench/pkg/lxd"
	"github.com/piwi3910/searchbench/pkg/policy"
	"github.com/piwi3910/searchbench/pkg/provision"
	"github.com/piwi3910/searchbench/pkg/stores"
	"github.com/piwi3910/searchbench/pkg/telemetry"
	sshtransport "github.com/piwi3910/searchbench/pkg/transports/ssh"
)

func newUpCommand() *cobra.Command {
	var skipPolicy bool

	cmd := &cobra.Command{
		Use:   "up",
		Short: "Provision the benchmark environment",
		Long: `Provision the environment described by the manifest.

This command:
  - Ensures the shared resource-limit profile exists on the host
  - Ensures one booted container per selected engine
  - Skips engines whose service is already active
  - Provisions the remaining engines (install, account, data tree,
    configuration, service unit)
  - Stores the run report and prints a per-engine summary

The run exits non-zero if any engine failed.`,
		Example: `  # Provision everything in the manifest
  searchbench up

  # Provision from a YAML manifest with JSON report output
  searchbench up -m bench.yaml --json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runUp(cmd.Context(), skipPolicy)
		},
	}

	cmd.Flags().BoolVar(&skipPolicy, "skip-policy", false, "skip the policy gate (not recommended)")

	return cmd
}

func runUp(ctx context.Context, skipPolicy bool) error {
	m, err := config.Load(manifestPath)
	if err != nil {
		return err
	}
	if verbose {
		m.Telemetry.Logging.Level = "debug"
	}

	logger, err := telemetry.NewLogger(m.Telemetry.Logging)
	if err != nil {
		return fmt.Errorf("cannot configure logging: %w", err)
	}
	metrics, err := telemetry.NewMetrics(m.Telemetry.Metrics)
	if err != nil {
		return fmt.Errorf("cannot configure metrics: %w", err)
	}
	tracer, err := telemetry.NewTracer(m.Telemetry.Tracing, "searchbench", "dev")
	if err != nil {
		return fmt.Errorf("cannot configure tracing: %w", err)
	}
	defer func() { _ = tracer.Shutdown(context.Background()) }()

	if m.Telemetry.Metrics.Listen != "" {
		go func() {
			if err := metrics.Serve(); err != nil {
				logger.WithError(err).Warn("metrics endpoint stopped")
			}
		}()
	}

	if !skipPolicy {
		gate, err := policy.NewGate(ctx, logger)
		if err != nil {
			return err
		}
		result, err := gate.Evaluate(ctx, m)
		if err != nil {
			return err
		}
		if !result.Allowed() {
			return fmt.Errorf("manifest denied by policy: %v", result.Denials)
		}
	}

	runner, cleanup, err := buildRunner(m)
	if err != nil {
		return err
	}
	defer cleanup()

	host := lxd.NewClient(runner, logger, lxd.Options{})

	provisioners, err := provision.ForKinds(m.Engines, provision.Settings{
		AdminPassword:        m.AdminPassword,
		SolrVersion:          m.Versions.Solr,
		ElasticsearchVersion: m.Versions.Elasticsearch,
	}, logger, metrics)
	if err != nil {
		return err
	}

	driver := engine.NewDriver(host, provisioners, engine.DriverConfig{
		Environment: m.Environment,
		Profile:     profileFromSpec(m.Profile),
		BaseImage:   m.BaseImage,
		Concurrency: m.Concurrency,
	}, logger, metrics, tracer)

	report, err := driver.Run(ctx)
	if err != nil {
		return err
	}

	if err := saveReport(ctx, m.StorePath, report, logger); err != nil {
		logger.WithError(err).Warn("could not persist run report")
	}

	if jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(report); err != nil {
			return err
		}
	} else {
		fmt.Print(report.Summary())
	}

	if report.Failed() {
		return fmt.Errorf("run %s completed with failures", report.RunID)
	}
	return nil
}

// buildRunner selects the local lxc client or the SSH transport to a
// remote LXD host, per the manifest.
func buildRunner(m *config.Manifest) (lxd.Runner, func(), error) {
	if m.Remote == nil {
		return lxd.LocalRunner{}, func() {}, nil
	}
	runner, err := sshtransport.NewRunner(&sshtransport.Config{
		Host:     m.Remote.Host,
		Port:     m.Remote.Port,
		User:     m.Remote.User,
		KeyPath:  m.Remote.KeyPath,
		Password: m.Remote.Password,
	})
	if err != nil {
		return nil, nil, err
	}
	return runner, func() { _ = runner.Close() }, nil
}

func profileFromSpec(s config.ProfileSpec) engine.Profile {
	return engine.Profile{
		Name:        s.Name,
		CPULimit:    s.CPU,
		MemoryLimit: s.Memory,
		Disk: engine.DiskSpec{
			Path: s.DiskPath,
			Pool: s.DiskPool,
			Type: "disk",
		},
		Description: s.Description,
	}
}

func saveReport(ctx context.Context, path string, report *engine.Report, logger *telemetry.Logger) error {
	store, err := stores.NewSQLiteStore(path)
	if err != nil {
		return err
	}
	if err := store.Init(ctx); err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	if err := store.Migrate(ctx); err != nil {
		return err
	}
	if err := store.SaveReport(ctx, report); err != nil {
		return err
	}
	logger.Debugf("report %s persisted to %s", report.RunID, path)
	return nil
}
