package lxd

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/piwi3910/searchbench/pkg/engine"
	"github.com/piwi3910/searchbench/pkg/telemetry"
)

// Options tunes client behavior.
type Options struct {
	// LxcPath is the lxc client binary. Defaults to "lxc".
	LxcPath string

	// BootTimeout bounds the wait for a launched container's init system
	// to become ready.
	BootTimeout time.Duration

	// BootPollInterval is the readiness polling interval.
	BootPollInterval time.Duration
}

func (o *Options) withDefaults() Options {
	out := *o
	if out.LxcPath == "" {
		out.LxcPath = "lxc"
	}
	if out.BootTimeout == 0 {
		out.BootTimeout = 90 * time.Second
	}
	if out.BootPollInterval == 0 {
		out.BootPollInterval = 2 * time.Second
	}
	return out
}

// Client implements engine.Host on top of the lxc CLI.
type Client struct {
	runner Runner
	opts   Options
	logger *telemetry.Logger

	// locks serializes check-then-create sequences per resource name so
	// concurrent runs cannot double-create a profile or container.
	locks keyedMutex
}

// NewClient creates a control-plane client using the given runner.
func NewClient(runner Runner, logger *telemetry.Logger, opts Options) *Client {
	return &Client{
		runner: runner,
		opts:   opts.withDefaults(),
		logger: logger.NewComponentLogger("lxd"),
	}
}

// Available verifies the lxc client and the host daemon are reachable.
func (c *Client) Available(ctx context.Context) error {
	if _, _, err := c.runner.Run(ctx, "", c.opts.LxcPath, "version"); err != nil {
		return engine.NewHostUnavailable("lxc client unavailable", err)
	}
	return nil
}

// profileDoc is the YAML document applied in the single profile edit.
type profileDoc struct {
	Config      map[string]string            `yaml:"config"`
	Description string                       `yaml:"description"`
	Devices     map[string]map[string]string `yaml:"devices"`
}

// EnsureProfile creates the resource profile if it does not exist. An
// existing profile is left untouched; the second call performs only the
// listing query.
func (c *Client) EnsureProfile(ctx context.Context, p engine.Profile) (bool, error) {
	unlock := c.locks.lock("profile/" + p.Name)
	defer unlock()

	stdout, _, err := c.runner.Run(ctx, "", c.opts.LxcPath, "profile", "list", "--format", "csv")
	if err != nil {
		return false, engine.NewHostUnavailable("cannot list profiles", err).WithResource(p.Name)
	}
	for _, line := range strings.Split(stdout, "\n") {
		name, _, _ := strings.Cut(strings.TrimSpace(line), ",")
		if name == p.Name {
			c.logger.Infof("profile %s already exists", p.Name)
			return false, nil
		}
	}

	if _, _, err := c.runner.Run(ctx, "", c.opts.LxcPath, "profile", "create", p.Name); err != nil {
		return false, engine.NewHostUnavailable("cannot create profile", err).WithResource(p.Name)
	}

	doc := profileDoc{
		Config: map[string]string{
			"limits.cpu":    fmt.Sprintf("%d", p.CPULimit),
			"limits.memory": p.MemoryLimit,
		},
		Description: p.Description,
		Devices: map[string]map[string]string{
			"root": {
				"path": p.Disk.Path,
				"pool": p.Disk.Pool,
				"type": p.Disk.Type,
			},
		},
	}
	raw, err := yaml.Marshal(doc)
	if err != nil {
		return false, engine.NewInternalError("cannot render profile", err).WithResource(p.Name)
	}

	// Single atomic edit applying limits, description and root disk together.
	if _, _, err := c.runner.Run(ctx, string(raw), c.opts.LxcPath, "profile", "edit", p.Name); err != nil {
		return false, engine.NewHostUnavailable("cannot apply profile config", err).WithResource(p.Name)
	}

	c.logger.Infof("created profile %s", p.Name)
	return true, nil
}

// EnsureContainer launches the named container from image if no existing
// container matches the name, then waits for its init system to become
// ready. Existing containers are reused as-is.
func (c *Client) EnsureContainer(ctx context.Context, name, image string, profiles []string) (bool, error) {
	unlock := c.locks.lock("container/" + name)
	defer unlock()

	stdout, _, err := c.runner.Run(ctx, "", c.opts.LxcPath, "list", "--format", "csv", "-c", "n")
	if err != nil {
		return false, engine.NewHostUnavailable("cannot list containers", err).WithResource(name)
	}
	for _, line := range strings.Split(stdout, "\n") {
		if existing := strings.TrimSpace(line); existing != "" && strings.Contains(existing, name) {
			c.logger.Infof("container %s already exists", name)
			return false, nil
		}
	}

	args := []string{"launch", image, name}
	for _, p := range profiles {
		args = append(args, "--profile", p)
	}
	if _, _, err := c.runner.Run(ctx, "", c.opts.LxcPath, args...); err != nil {
		return false, engine.NewContainerLaunchError(name, err)
	}

	if err := c.waitForBoot(ctx, name); err != nil {
		return true, err
	}

	c.logger.Infof("launched container %s from %s", name, image)
	return true, nil
}

// waitForBoot polls the container's init system until it reports ready,
// bounded by the configured timeout.
func (c *Client) waitForBoot(ctx context.Context, name string) error {
	deadline := time.Now().Add(c.opts.BootTimeout)
	handle := c.Container(name)

	var lastState string
	for {
		stdout, _, err := handle.Exec(ctx, "systemctl is-system-running")
		state := strings.TrimSpace(stdout)
		if err == nil && (state == "running" || state == "degraded") {
			return nil
		}
		if state != "" {
			lastState = state
		}

		if time.Now().After(deadline) {
			return engine.NewBootTimeout(name,
				fmt.Errorf("init state %q after %s", lastState, c.opts.BootTimeout))
		}

		select {
		case <-ctx.Done():
			return engine.NewBootTimeout(name, ctx.Err())
		case <-time.After(c.opts.BootPollInterval):
		}
	}
}

// Container returns an exec handle for the named container.
func (c *Client) Container(name string) engine.Container {
	return &containerHandle{client: c, name: name}
}

// Address returns the container's first IPv4 address.
func (c *Client) Address(ctx context.Context, name string) (string, error) {
	stdout, _, err := c.runner.Run(ctx, "", c.opts.LxcPath, "list", name, "--format", "csv", "-c", "4")
	if err != nil {
		return "", engine.NewHostUnavailable("cannot query container address", err).WithResource(name)
	}
	// Column format: "10.0.0.12 (eth0)"; the first line is the first address.
	for _, line := range strings.Split(stdout, "\n") {
		fields := strings.Fields(strings.TrimSpace(line))
		if len(fields) > 0 && fields[0] != "" {
			return fields[0], nil
		}
	}
	return "", fmt.Errorf("container %s has no address yet", name)
}

// containerHandle implements engine.Container via lxc exec.
type containerHandle struct {
	client *Client
	name   string
}

func (h *containerHandle) Name() string {
	return h.name
}

// Exec runs a shell command inside the container as root.
func (h *containerHandle) Exec(ctx context.Context, command string) (string, string, error) {
	return h.client.runner.Run(ctx, "",
		h.client.opts.LxcPath, "exec", h.name, "--", "sh", "-c", command)
}

// WriteFile writes content to a path inside the container and sets its mode.
// With a remote runner the payload is staged on the LXD host over sftp and
// pushed with `lxc file push`; locally it is streamed over exec stdin.
func (h *containerHandle) WriteFile(ctx context.Context, path, content, mode string) error {
	if up, ok := h.client.runner.(Uploader); ok {
		return h.writeViaPush(ctx, up, path, content, mode)
	}
	cmd := fmt.Sprintf("cat > '%s' && chmod %s '%s'", path, mode, path)
	_, _, err := h.client.runner.Run(ctx, content,
		h.client.opts.LxcPath, "exec", h.name, "--", "sh", "-c", cmd)
	return err
}

func (h *containerHandle) writeViaPush(ctx context.Context, up Uploader, path, content, mode string) error {
	staged := "/tmp/.searchbench-" + h.name + strings.ReplaceAll(path, "/", "-")
	if err := up.Upload(ctx, strings.NewReader(content), staged); err != nil {
		return err
	}
	defer func() {
		_, _, _ = h.client.runner.Run(ctx, "", "rm", "-f", staged)
	}()

	if _, _, err := h.client.runner.Run(ctx, "",
		h.client.opts.LxcPath, "file", "push", "--mode", mode, staged, h.name+path); err != nil {
		return err
	}
	return nil
}

// keyedMutex provides one mutex per resource name.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func (k *keyedMutex) lock(name string) func() {
	k.mu.Lock()
	if k.locks == nil {
		k.locks = make(map[string]*sync.Mutex)
	}
	l, ok := k.locks[name]
	if !ok {
		l = &sync.Mutex{}
		k.locks[name] = l
	}
	k.mu.Unlock()

	l.Lock()
	return l.Unlock
}
