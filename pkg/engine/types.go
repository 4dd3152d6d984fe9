package engine

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Profile describes the shared resource-limit profile applied to every
// benchmark container in addition to the host's default profile.
type Profile struct {
	// Name identifies the profile on the host. At most one profile per
	// name exists on a given host.
	Name string `json:"name"`

	// CPULimit is the number of CPU cores available to a container.
	CPULimit int `json:"cpu_limit"`

	// MemoryLimit is the memory cap, in LXD notation (e.g. "4GiB").
	MemoryLimit string `json:"memory_limit"`

	// Disk is the root disk device mounted into the container.
	Disk DiskSpec `json:"disk"`

	// Description is free text shown by the host's profile listing.
	Description string `json:"description"`
}

// DiskSpec is the disk device triple of a resource profile.
type DiskSpec struct {
	Path string `json:"path"`
	Pool string `json:"pool"`
	Type string `json:"type"`
}

// Host is the container host control plane the driver provisions against.
// *lxd.Client is the production implementation.
type Host interface {
	// Available verifies the control plane is reachable. A failure is
	// a host-unavailable error and aborts the run.
	Available(ctx context.Context) error

	// EnsureProfile creates the profile if absent. Returns whether a
	// profile was created; an existing profile is left untouched.
	EnsureProfile(ctx context.Context, p Profile) (created bool, err error)

	// EnsureContainer creates and boots the named container if absent,
	// waiting for init readiness. Returns whether a container was created.
	EnsureContainer(ctx context.Context, name, image string, profiles []string) (created bool, err error)

	// Container returns a handle for executing commands inside the
	// named container. The container must already exist.
	Container(name string) Container

	// Address returns the container's first IPv4 address, used to report
	// the engine's benchmark endpoint.
	Address(ctx context.Context, name string) (string, error)
}

// Container is a handle on a booted container.
type Container interface {
	// Name returns the container name.
	Name() string

	// Exec runs a shell command inside the container as root and returns
	// captured stdout and stderr.
	Exec(ctx context.Context, command string) (stdout, stderr string, err error)

	// WriteFile writes content to a path inside the container with the
	// given octal mode string (e.g. "0644").
	WriteFile(ctx context.Context, path, content, mode string) error
}

// Provisioner is the shared per-engine contract. Provision is called only
// when IsActive reports false.
type Provisioner interface {
	// Kind returns the engine kind (e.g. "meilisearch").
	Kind() string

	// ContainerName returns the logical container name for this engine.
	ContainerName() string

	// Port returns the engine's primary service port.
	Port() int

	// IsActive reports whether the engine's service is already active
	// inside the container. Query errors are treated as "not active".
	IsActive(ctx context.Context, c Container) bool

	// Provision executes the engine's ordered recipe. It returns any
	// non-fatal warnings (e.g. config patches that matched nothing).
	Provision(ctx context.Context, c Container) ([]string, error)
}

// EngineStatus is the per-engine outcome of a run.
type EngineStatus string

const (
	// StatusSkipped means the engine's service was already active and
	// provisioning was not attempted.
	StatusSkipped EngineStatus = "skipped"

	// StatusProvisioned means the full recipe ran to completion.
	StatusProvisioned EngineStatus = "provisioned"

	// StatusFailed means the container launch or the recipe failed.
	StatusFailed EngineStatus = "failed"
)

// EngineOutcome records one engine's result within a run.
type EngineOutcome struct {
	Engine    string        `json:"engine"`
	Container string        `json:"container"`
	Status    EngineStatus  `json:"status"`
	Endpoint  string        `json:"endpoint,omitempty"`
	Error     string        `json:"error,omitempty"`
	ErrorKind ErrorKind     `json:"error_kind,omitempty"`
	Warnings  []string      `json:"warnings,omitempty"`
	Duration  time.Duration `json:"duration"`
}

// Report aggregates the outcome of one orchestration run.
type Report struct {
	RunID             string          `json:"run_id"`
	Environment       string          `json:"environment"`
	StartedAt         time.Time       `json:"started_at"`
	FinishedAt        time.Time       `json:"finished_at"`
	ProfileCreated    bool            `json:"profile_created"`
	ContainersCreated []string        `json:"containers_created"`
	Engines           []EngineOutcome `json:"engines"`
}

// Failed reports whether any engine failed. The final success message and
// the process exit status are gated on this, never claimed unconditionally.
func (r *Report) Failed() bool {
	for _, e := range r.Engines {
		if e.Status == StatusFailed {
			return true
		}
	}
	return false
}

// Outcome returns the outcome for the named engine kind, if present.
func (r *Report) Outcome(kind string) (EngineOutcome, bool) {
	for _, e := range r.Engines {
		if e.Engine == kind {
			return e, true
		}
	}
	return EngineOutcome{}, false
}

// Summary renders a human-readable per-engine summary.
func (r *Report) Summary() string {
	var b strings.Builder
	fmt.Fprintf(&b, "run %s (%s)\n", r.RunID, r.FinishedAt.Sub(r.StartedAt).Round(time.Millisecond))
	for _, e := range r.Engines {
		fmt.Fprintf(&b, "  %-14s %-12s", e.Engine, e.Status)
		if e.Endpoint != "" {
			fmt.Fprintf(&b, " %s", e.Endpoint)
		}
		if e.Error != "" {
			fmt.Fprintf(&b, " (%s)", e.Error)
		}
		b.WriteString("\n")
		for _, w := range e.Warnings {
			fmt.Fprintf(&b, "    warning: %s\n", w)
		}
	}
	if r.Failed() {
		b.WriteString("completed with failures\n")
	} else {
		b.WriteString("all containers are configured\n")
	}
	return b.String()
}
