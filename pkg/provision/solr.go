package provision

import (
	"context"
	"fmt"

	"github.com/piwi3910/searchbench/pkg/engine"
	"github.com/piwi3910/searchbench/pkg/telemetry"
)

// Solr provisions the Java-based search platform: a headless JRE
// prerequisite, the vendor service installer from a versioned archive, a
// shell-sourced defaults file for the bind override, and one default core
// created for the benchmark harness after install.
type Solr struct {
	recipe
	version string
	core    string
}

// NewSolr creates the Solr provisioner for the given release version.
func NewSolr(logger *telemetry.Logger, metrics *telemetry.Metrics, version, core string) *Solr {
	return &Solr{
		recipe:  newRecipe(KindSolr, 8983, "solr", logger, metrics),
		version: version,
		core:    core,
	}
}

func (p *Solr) archiveURL() string {
	return fmt.Sprintf("https://archive.apache.org/dist/solr/solr/%s/solr-%s.tgz", p.version, p.version)
}

// Provision runs the Solr recipe. Called only when IsActive is false.
func (p *Solr) Provision(ctx context.Context, c engine.Container) ([]string, error) {
	archive := fmt.Sprintf("/tmp/solr-%s.tgz", p.version)

	steps := []step{
		{"update package index", p.aptUpdate},
		{"install java runtime", func(ctx context.Context, c engine.Container) error {
			return p.aptInstall(ctx, c, "default-jre-headless", "curl", "lsof")
		}},
		{"download solr archive", func(ctx context.Context, c engine.Container) error {
			return p.fetch(ctx, c, p.archiveURL(), archive)
		}},
		{"run vendor service installer", func(ctx context.Context, c engine.Container) error {
			return p.runInstaller(ctx, c, archive)
		}},
		{"patch solr defaults", p.configure},
		{"enable and start service", func(ctx context.Context, c engine.Container) error {
			return p.enableAndStart(ctx, c, "solr")
		}},
		{"create default core", p.createCore},
	}

	if err := p.execute(ctx, c, steps); err != nil {
		return p.takeWarnings(), err
	}
	return p.takeWarnings(), nil
}

// runInstaller extracts the vendor install_solr_service.sh from the archive
// and runs it. The installer creates the solr account, data tree and init
// integration itself. -n defers the service start until after the defaults
// file is patched. Skipped when a previous run already installed Solr.
func (p *Solr) runInstaller(ctx context.Context, c engine.Container, archive string) error {
	if _, _, err := c.Exec(ctx, "test -x /opt/solr/bin/solr"); err == nil {
		p.logger.Info("solr already installed")
		return nil
	}
	extract := fmt.Sprintf(
		"cd /tmp && tar xzf '%s' solr-%s/bin/install_solr_service.sh --strip-components=2",
		archive, p.version)
	if _, _, err := c.Exec(ctx, extract); err != nil {
		return fmt.Errorf("cannot extract installer: %w", err)
	}
	_, _, err := c.Exec(ctx, fmt.Sprintf("cd /tmp && bash ./install_solr_service.sh '%s' -n", archive))
	return err
}

// configure rewrites the shell-sourced defaults file so Jetty binds to all
// interfaces instead of loopback.
func (p *Solr) configure(ctx context.Context, c engine.Container) error {
	return p.patchFile(ctx, c, "/etc/default/solr.in.sh", []Patch{
		{
			Old: `#SOLR_JETTY_HOST="127.0.0.1"`,
			New: `SOLR_JETTY_HOST="0.0.0.0"`,
		},
	})
}

// createCore creates the default benchmark core once Solr answers. Creation
// is skipped if the core's data directory already exists, keeping the step
// idempotent. Solr may still be warming up right after start, so the create
// is retried for a bounded interval.
func (p *Solr) createCore(ctx context.Context, c engine.Container) error {
	cmd := fmt.Sprintf(
		`if [ -d /var/solr/data/%[1]s ]; then exit 0; fi; `+
			`for i in $(seq 1 30); do su - solr -c "/opt/solr/bin/solr create -c %[1]s" && exit 0; sleep 2; done; exit 1`,
		p.core)
	if _, _, err := c.Exec(ctx, cmd); err != nil {
		return fmt.Errorf("cannot create core %s: %w", p.core, err)
	}
	return nil
}
