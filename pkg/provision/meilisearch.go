package provision

import (
	"context"

	"github.com/piwi3910/searchbench/pkg/engine"
	"github.com/piwi3910/searchbench/pkg/telemetry"
)

const (
	meilisearchInstallURL = "https://install.meilisearch.com"
	meilisearchConfigURL  = "https://raw.githubusercontent.com/meilisearch/meilisearch/latest/config.toml"
	meilisearchDataRoot   = "/var/lib/meilisearch"
)

// Meilisearch provisions the document-store style engine: a single static
// binary, a TOML configuration and three data subdirectories (primary
// data, export dumps, snapshots).
type Meilisearch struct {
	recipe
}

// NewMeilisearch creates the Meilisearch provisioner.
func NewMeilisearch(logger *telemetry.Logger, metrics *telemetry.Metrics) *Meilisearch {
	return &Meilisearch{
		recipe: newRecipe(KindMeilisearch, 7700, "meilisearch", logger, metrics),
	}
}

// Provision runs the Meilisearch recipe. Called only when IsActive is false.
func (p *Meilisearch) Provision(ctx context.Context, c engine.Container) ([]string, error) {
	steps := []step{
		{"update package index", p.aptUpdate},
		{"install prerequisites", func(ctx context.Context, c engine.Container) error {
			return p.aptInstall(ctx, c, "curl")
		}},
		{"install meilisearch binary", p.installBinary},
		{"create service account", func(ctx context.Context, c engine.Container) error {
			return p.ensureSystemUser(ctx, c, "meilisearch", meilisearchDataRoot)
		}},
		{"lay out data directories", func(ctx context.Context, c engine.Container) error {
			return p.ensureDataDirs(ctx, c, "meilisearch",
				meilisearchDataRoot+"/data",
				meilisearchDataRoot+"/dumps",
				meilisearchDataRoot+"/snapshots")
		}},
		{"write configuration", p.configure},
		{"install service unit", func(ctx context.Context, c engine.Container) error {
			return p.installUnit(ctx, c, "meilisearch.service", meilisearchUnit)
		}},
		{"enable and start service", func(ctx context.Context, c engine.Container) error {
			return p.enableAndStart(ctx, c, "meilisearch")
		}},
	}

	if err := p.execute(ctx, c, steps); err != nil {
		return p.takeWarnings(), err
	}
	return p.takeWarnings(), nil
}

// installBinary fetches the vendor install script and moves the produced
// binary to a well-known executable path. Skipped if already installed.
func (p *Meilisearch) installBinary(ctx context.Context, c engine.Container) error {
	if _, _, err := c.Exec(ctx, "test -x /usr/local/bin/meilisearch"); err == nil {
		p.logger.Info("meilisearch binary already installed")
		return nil
	}
	if err := p.fetch(ctx, c, meilisearchInstallURL, "/tmp/meilisearch-install.sh"); err != nil {
		return err
	}
	_, _, err := c.Exec(ctx,
		"cd /tmp && sh meilisearch-install.sh && mv -f ./meilisearch /usr/local/bin/meilisearch && chmod 755 /usr/local/bin/meilisearch")
	return err
}

// configure downloads the vendor configuration template and repoints the
// bind address and data paths at the dedicated tree.
func (p *Meilisearch) configure(ctx context.Context, c engine.Container) error {
	if err := p.fetch(ctx, c, meilisearchConfigURL, "/etc/meilisearch.toml"); err != nil {
		return err
	}
	return p.patchFile(ctx, c, "/etc/meilisearch.toml", []Patch{
		{
			Old: `http_addr = "localhost:7700"`,
			New: `http_addr = "0.0.0.0:7700"`,
		},
		{
			Old: `db_path = "./data.ms"`,
			New: `db_path = "` + meilisearchDataRoot + `/data"`,
		},
		{
			Old: `dump_dir = "dumps/"`,
			New: `dump_dir = "` + meilisearchDataRoot + `/dumps"`,
		},
		{
			Old: `snapshot_dir = "snapshots/"`,
			New: `snapshot_dir = "` + meilisearchDataRoot + `/snapshots"`,
		},
	})
}
