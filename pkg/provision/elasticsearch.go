package provision

import (
	"context"
	"fmt"
	"strings"

	"github.com/piwi3910/searchbench/pkg/engine"
	"github.com/piwi3910/searchbench/pkg/telemetry"
)

const elasticsearchDataRoot = "/var/lib/elasticsearch"

// Elasticsearch provisions the log/search indexing engine from a versioned
// tar.gz archive. The archive expands under a version-specific directory
// name, so every later step locates that directory instead of assuming a
// fixed path, and the service unit resolves the binary at start time.
type Elasticsearch struct {
	recipe
	version string
}

// NewElasticsearch creates the Elasticsearch provisioner for the given
// release version.
func NewElasticsearch(logger *telemetry.Logger, metrics *telemetry.Metrics, version string) *Elasticsearch {
	return &Elasticsearch{
		recipe:  newRecipe(KindElasticsearch, 9200, "elasticsearch", logger, metrics),
		version: version,
	}
}

func (p *Elasticsearch) archiveURL() string {
	return fmt.Sprintf(
		"https://artifacts.elastic.co/downloads/elasticsearch/elasticsearch-%s-linux-x86_64.tar.gz",
		p.version)
}

// Provision runs the Elasticsearch recipe. Called only when IsActive is false.
func (p *Elasticsearch) Provision(ctx context.Context, c engine.Container) ([]string, error) {
	archive := fmt.Sprintf("/tmp/elasticsearch-%s-linux-x86_64.tar.gz", p.version)

	steps := []step{
		{"update package index", p.aptUpdate},
		{"install prerequisites", func(ctx context.Context, c engine.Container) error {
			return p.aptInstall(ctx, c, "curl")
		}},
		{"download elasticsearch archive", func(ctx context.Context, c engine.Container) error {
			if _, _, err := c.Exec(ctx, "ls -d /opt/elasticsearch-* >/dev/null 2>&1"); err == nil {
				p.logger.Info("elasticsearch already unpacked")
				return nil
			}
			return p.fetch(ctx, c, p.archiveURL(), archive)
		}},
		{"unpack archive", func(ctx context.Context, c engine.Container) error {
			cmd := fmt.Sprintf(
				"test -d /opt/elasticsearch-%s || (mkdir -p /opt && tar -xzf '%s' -C /opt)",
				p.version, archive)
			_, _, err := c.Exec(ctx, cmd)
			return err
		}},
		{"create service account", func(ctx context.Context, c engine.Container) error {
			return p.ensureSystemUser(ctx, c, "elasticsearch", elasticsearchDataRoot)
		}},
		{"lay out data directories", func(ctx context.Context, c engine.Container) error {
			return p.ensureDataDirs(ctx, c, "elasticsearch", elasticsearchDataRoot)
		}},
		{"patch configuration", p.configure},
		{"set install tree ownership", func(ctx context.Context, c engine.Container) error {
			_, _, err := c.Exec(ctx, "chown -R elasticsearch:elasticsearch /opt/elasticsearch-*")
			return err
		}},
		{"install service unit", func(ctx context.Context, c engine.Container) error {
			return p.installUnit(ctx, c, "elasticsearch.service", elasticsearchUnit)
		}},
		{"enable and start service", func(ctx context.Context, c engine.Container) error {
			return p.enableAndStart(ctx, c, "elasticsearch")
		}},
	}

	if err := p.execute(ctx, c, steps); err != nil {
		return p.takeWarnings(), err
	}
	return p.takeWarnings(), nil
}

// installDir locates the version-specific directory the archive expanded
// to. The directory name embeds the release version, so it is resolved at
// run time rather than assumed.
func (p *Elasticsearch) installDir(ctx context.Context, c engine.Container) (string, error) {
	stdout, _, err := c.Exec(ctx, "ls -d /opt/elasticsearch-* | head -n 1")
	if err != nil {
		return "", fmt.Errorf("cannot locate elasticsearch install: %w", err)
	}
	dir := strings.TrimSpace(stdout)
	if dir == "" {
		return "", fmt.Errorf("no elasticsearch install directory under /opt")
	}
	return dir, nil
}

// configure binds the engine to all interfaces, repoints its data path at
// the dedicated tree and switches discovery to single-node mode.
func (p *Elasticsearch) configure(ctx context.Context, c engine.Container) error {
	dir, err := p.installDir(ctx, c)
	if err != nil {
		return err
	}
	return p.patchFile(ctx, c, dir+"/config/elasticsearch.yml", []Patch{
		{
			Old: `#network.host: 192.168.0.1`,
			New: `network.host: 0.0.0.0`,
		},
		{
			Old: `#path.data: /path/to/data`,
			New: `path.data: ` + elasticsearchDataRoot,
		},
		{
			Old: `#discovery.seed_hosts: ["host-1", "host-2"]`,
			New: `discovery.type: single-node`,
		},
	})
}
