package provision

import (
	"context"
	"fmt"
	"strings"

	"github.com/piwi3910/searchbench/pkg/engine"
)

// aptUpdate refreshes the container's package index.
func (r *recipe) aptUpdate(ctx context.Context, c engine.Container) error {
	_, _, err := c.Exec(ctx, "apt-get update -q")
	return err
}

// aptInstall installs packages non-interactively. Already-installed
// packages are a no-op for apt, keeping the step restart-safe.
func (r *recipe) aptInstall(ctx context.Context, c engine.Container, pkgs ...string) error {
	cmd := "DEBIAN_FRONTEND=noninteractive apt-get install -y -q " + strings.Join(pkgs, " ")
	_, _, err := c.Exec(ctx, cmd)
	return err
}

// fetch downloads url to dest inside the container. A failed or non-2xx
// download is a fetch error, fatal for this engine only.
func (r *recipe) fetch(ctx context.Context, c engine.Container, url, dest string) error {
	cmd := fmt.Sprintf("curl -fsSL '%s' -o '%s'", url, dest)
	if _, _, err := c.Exec(ctx, cmd); err != nil {
		return engine.NewFetchError(url, err)
	}
	return nil
}

// ensureSystemUser creates a dedicated, unprivileged, non-login system
// account if it does not already exist.
func (r *recipe) ensureSystemUser(ctx context.Context, c engine.Container, user, home string) error {
	cmd := fmt.Sprintf(
		"id -u %s >/dev/null 2>&1 || useradd --system --no-create-home --home-dir '%s' --shell /usr/sbin/nologin %s",
		user, home, user)
	_, _, err := c.Exec(ctx, cmd)
	return err
}

// ensureDataDirs lays out the engine's data tree owned by its service
// account with owner/group permissions only.
func (r *recipe) ensureDataDirs(ctx context.Context, c engine.Container, owner string, dirs ...string) error {
	quoted := make([]string, len(dirs))
	for i, d := range dirs {
		quoted[i] = "'" + d + "'"
	}
	list := strings.Join(quoted, " ")
	cmd := fmt.Sprintf("mkdir -p %s && chown -R %s:%s %s && chmod -R 770 %s",
		list, owner, owner, list, list)
	_, _, err := c.Exec(ctx, cmd)
	return err
}

// patchFile reads path inside the container, applies exact-line patches and
// writes the result back. Patches matching nothing are recorded as warnings
// rather than raised as errors.
func (r *recipe) patchFile(ctx context.Context, c engine.Container, path string, patches []Patch) error {
	stdout, _, err := c.Exec(ctx, fmt.Sprintf("cat '%s'", path))
	if err != nil {
		return fmt.Errorf("cannot read %s: %w", path, err)
	}

	patched, results := ApplyPatches(stdout, patches)
	for _, res := range results {
		if res.NoOp() {
			r.metrics.RecordPatchNoOp(r.kind)
			r.warnf("config patch matched nothing in %s: default line %q is absent, the default setting may still be in effect",
				path, res.Patch.Old)
		}
	}

	return c.WriteFile(ctx, path, patched, "0644")
}

// installUnit writes a systemd unit file and reloads the service manager.
func (r *recipe) installUnit(ctx context.Context, c engine.Container, unitName, content string) error {
	path := "/etc/systemd/system/" + unitName
	if err := c.WriteFile(ctx, path, content, "0644"); err != nil {
		return fmt.Errorf("cannot install unit %s: %w", unitName, err)
	}
	_, _, err := c.Exec(ctx, "systemctl daemon-reload")
	return err
}

// enableAndStart enables the unit at boot and starts it now.
func (r *recipe) enableAndStart(ctx context.Context, c engine.Container, unit string) error {
	if _, _, err := c.Exec(ctx, "systemctl enable "+unit); err != nil {
		return err
	}
	_, _, err := c.Exec(ctx, "systemctl start "+unit)
	return err
}
