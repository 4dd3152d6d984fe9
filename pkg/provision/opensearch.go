package provision

import (
	"context"
	"fmt"

	"github.com/piwi3910/searchbench/pkg/engine"
	"github.com/piwi3910/searchbench/pkg/telemetry"
)

const (
	opensearchKeyURL  = "https://artifacts.opensearch.org/publickeys/opensearch.pgp"
	opensearchKeyring = "/usr/share/keyrings/opensearch-keyring"

	opensearchRepo = "deb [signed-by=" + opensearchKeyring + "] https://artifacts.opensearch.org/releases/bundle/opensearch/2.x/apt stable main\n"
	dashboardsRepo = "deb [signed-by=" + opensearchKeyring + "] https://artifacts.opensearch.org/releases/bundle/opensearch-dashboards/2.x/apt stable main\n"
)

// OpenSearch provisions the managed-search engine and its web dashboard.
// The install is two-phase (core engine, then the dashboards package) from
// a signed third-party APT repository, and the package installer requires
// the initial administrative credential in its environment.
type OpenSearch struct {
	recipe
	adminPassword string
}

// NewOpenSearch creates the OpenSearch provisioner. The admin password is
// the test-only initial credential, passed in explicitly.
func NewOpenSearch(logger *telemetry.Logger, metrics *telemetry.Metrics, adminPassword string) *OpenSearch {
	return &OpenSearch{
		recipe:        newRecipe(KindOpenSearch, 9200, "opensearch", logger, metrics),
		adminPassword: adminPassword,
	}
}

// Provision runs the OpenSearch recipe. Called only when IsActive is false.
func (p *OpenSearch) Provision(ctx context.Context, c engine.Container) ([]string, error) {
	steps := []step{
		{"update package index", p.aptUpdate},
		{"install prerequisites", func(ctx context.Context, c engine.Container) error {
			return p.aptInstall(ctx, c, "curl", "gnupg", "ca-certificates")
		}},
		{"import package signing key", p.importSigningKey},
		{"register opensearch repository", func(ctx context.Context, c engine.Container) error {
			return c.WriteFile(ctx, "/etc/apt/sources.list.d/opensearch-2.x.list", opensearchRepo, "0644")
		}},
		{"refresh package index", p.aptUpdate},
		{"install opensearch", p.installEngine},
		{"patch engine configuration", p.configureEngine},
		{"register dashboards repository", func(ctx context.Context, c engine.Container) error {
			return c.WriteFile(ctx, "/etc/apt/sources.list.d/opensearch-dashboards-2.x.list", dashboardsRepo, "0644")
		}},
		{"install dashboards", func(ctx context.Context, c engine.Container) error {
			if err := p.aptUpdate(ctx, c); err != nil {
				return err
			}
			return p.aptInstall(ctx, c, "opensearch-dashboards")
		}},
		{"patch dashboards configuration", p.configureDashboards},
		{"enable and start opensearch", func(ctx context.Context, c engine.Container) error {
			return p.enableAndStart(ctx, c, "opensearch")
		}},
		{"enable and start dashboards", func(ctx context.Context, c engine.Container) error {
			return p.enableAndStart(ctx, c, "opensearch-dashboards")
		}},
	}

	if err := p.execute(ctx, c, steps); err != nil {
		return p.takeWarnings(), err
	}
	return p.takeWarnings(), nil
}

// importSigningKey downloads and dearmors the repository signing key.
// --yes makes the dearmor idempotent across re-runs.
func (p *OpenSearch) importSigningKey(ctx context.Context, c engine.Container) error {
	cmd := fmt.Sprintf("curl -fsSL '%s' | gpg --dearmor --yes -o %s", opensearchKeyURL, opensearchKeyring)
	if _, _, err := c.Exec(ctx, cmd); err != nil {
		return engine.NewFetchError(opensearchKeyURL, err)
	}
	return nil
}

// installEngine installs the opensearch package with the initial admin
// credential in the installer's environment, as the package requires.
func (p *OpenSearch) installEngine(ctx context.Context, c engine.Container) error {
	cmd := fmt.Sprintf(
		"env OPENSEARCH_INITIAL_ADMIN_PASSWORD='%s' DEBIAN_FRONTEND=noninteractive apt-get install -y -q opensearch",
		p.adminPassword)
	_, _, err := c.Exec(ctx, cmd)
	return err
}

// configureEngine binds the engine to all interfaces and switches discovery
// to single-node mode, since default discovery assumes a multi-node cluster.
func (p *OpenSearch) configureEngine(ctx context.Context, c engine.Container) error {
	return p.patchFile(ctx, c, "/etc/opensearch/opensearch.yml", []Patch{
		{
			Old: `#network.host: 192.168.0.1`,
			New: `network.host: 0.0.0.0`,
		},
		{
			Old: `#discovery.seed_hosts: ["host1", "host2"]`,
			New: `discovery.type: single-node`,
		},
	})
}

// configureDashboards binds the dashboard to all interfaces.
func (p *OpenSearch) configureDashboards(ctx context.Context, c engine.Container) error {
	return p.patchFile(ctx, c, "/etc/opensearch-dashboards/opensearch_dashboards.yml", []Patch{
		{
			Old: `# server.host: "localhost"`,
			New: `server.host: "0.0.0.0"`,
		},
	})
}
