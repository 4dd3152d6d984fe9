package engine

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/piwi3910/searchbench/pkg/telemetry"
)

// fakeHost implements Host in memory and records mutating calls.
type fakeHost struct {
	mu sync.Mutex

	unavailable     error
	profileExists   bool
	containers      map[string]bool
	launchFailures  map[string]error
	bootFailures    map[string]error
	profileCreates  int
	containerLaunch []string
	addresses       map[string]string
}

func newFakeHost() *fakeHost {
	return &fakeHost{
		containers:     make(map[string]bool),
		launchFailures: make(map[string]error),
		bootFailures:   make(map[string]error),
		addresses:      make(map[string]string),
	}
}

func (h *fakeHost) Available(context.Context) error { return h.unavailable }

func (h *fakeHost) EnsureProfile(_ context.Context, p Profile) (bool, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.profileExists {
		return false, nil
	}
	h.profileExists = true
	h.profileCreates++
	return true, nil
}

func (h *fakeHost) EnsureContainer(_ context.Context, name, image string, profiles []string) (bool, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if err, ok := h.launchFailures[name]; ok {
		return false, NewContainerLaunchError(name, err)
	}
	if h.containers[name] {
		return false, nil
	}
	h.containers[name] = true
	h.containerLaunch = append(h.containerLaunch, name)
	// Boot failures occur after the launch, so the container exists.
	if err, ok := h.bootFailures[name]; ok {
		return true, NewBootTimeout(name, err)
	}
	return true, nil
}

func (h *fakeHost) Container(name string) Container {
	return &fakeHostContainer{name: name}
}

func (h *fakeHost) Address(_ context.Context, name string) (string, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if addr, ok := h.addresses[name]; ok {
		return addr, nil
	}
	return "", errors.New("no address")
}

type fakeHostContainer struct{ name string }

func (c *fakeHostContainer) Name() string { return c.name }
func (c *fakeHostContainer) Exec(context.Context, string) (string, string, error) {
	return "", "", nil
}
func (c *fakeHostContainer) WriteFile(context.Context, string, string, string) error {
	return nil
}

// fakeProvisioner is a scripted Provisioner.
type fakeProvisioner struct {
	kind      string
	port      int
	active    bool
	err       error
	warnings  []string
	provCalls int
	mu        sync.Mutex
}

func (p *fakeProvisioner) Kind() string          { return p.kind }
func (p *fakeProvisioner) ContainerName() string { return p.kind }
func (p *fakeProvisioner) Port() int             { return p.port }

func (p *fakeProvisioner) IsActive(context.Context, Container) bool { return p.active }

func (p *fakeProvisioner) Provision(context.Context, Container) ([]string, error) {
	p.mu.Lock()
	p.provCalls++
	p.mu.Unlock()
	return p.warnings, p.err
}

func testDriver(t *testing.T, host Host, provisioners []Provisioner, cfg DriverConfig) *Driver {
	t.Helper()
	logger, err := telemetry.NewLogger(telemetry.LoggingConfig{Level: "error", Format: "json", Output: "stderr"})
	if err != nil {
		t.Fatalf("cannot create logger: %v", err)
	}
	metrics, err := telemetry.NewMetrics(telemetry.MetricsConfig{Enabled: false})
	if err != nil {
		t.Fatalf("cannot create metrics: %v", err)
	}
	tracer, err := telemetry.NewTracer(telemetry.TracingConfig{Enabled: false}, "searchbench-test", "dev")
	if err != nil {
		t.Fatalf("cannot create tracer: %v", err)
	}
	return NewDriver(host, provisioners, cfg, logger, metrics, tracer)
}

func testConfig() DriverConfig {
	return DriverConfig{
		Environment: "test",
		Profile:     Profile{Name: "searchbench", CPULimit: 4, MemoryLimit: "8GiB"},
		BaseImage:   "ubuntu:22.04",
		Concurrency: 2,
	}
}

func TestDriver_HostUnavailableAbortsRun(t *testing.T) {
	host := newFakeHost()
	host.unavailable = NewHostUnavailable("lxc missing", errors.New("not found"))
	d := testDriver(t, host, []Provisioner{&fakeProvisioner{kind: "meilisearch"}}, testConfig())

	report, err := d.Run(context.Background())
	if err == nil {
		t.Fatal("expected run to abort")
	}
	if !IsHostUnavailable(err) {
		t.Errorf("expected host-unavailable error, got %v", err)
	}
	if report != nil {
		t.Error("aborted run should not produce a report")
	}
	if len(host.containerLaunch) != 0 {
		t.Error("containers launched despite unavailable host")
	}
}

func TestDriver_ProvisionsAllEngines(t *testing.T) {
	host := newFakeHost()
	host.addresses["meilisearch"] = "10.0.0.5"
	host.addresses["solr"] = "10.0.0.6"
	provisioners := []Provisioner{
		&fakeProvisioner{kind: "meilisearch", port: 7700},
		&fakeProvisioner{kind: "solr", port: 8983},
	}
	d := testDriver(t, host, provisioners, testConfig())

	report, err := d.Run(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !report.ProfileCreated {
		t.Error("expected profile to be created on first run")
	}
	if host.profileCreates != 1 {
		t.Errorf("expected exactly one profile create, got %d", host.profileCreates)
	}
	if len(report.ContainersCreated) != 2 {
		t.Errorf("expected two containers created, got %v", report.ContainersCreated)
	}
	if report.Failed() {
		t.Errorf("unexpected failure: %+v", report.Engines)
	}

	o, ok := report.Outcome("meilisearch")
	if !ok || o.Status != StatusProvisioned {
		t.Errorf("meilisearch outcome = %+v, %v", o, ok)
	}
	if o.Endpoint != "10.0.0.5:7700" {
		t.Errorf("endpoint = %q, want %q", o.Endpoint, "10.0.0.5:7700")
	}
}

func TestDriver_SecondRunSkipsActiveEngines(t *testing.T) {
	host := newFakeHost()
	host.profileExists = true
	host.containers["meilisearch"] = true
	host.containers["solr"] = true
	provisioners := []Provisioner{
		&fakeProvisioner{kind: "meilisearch", active: true},
		&fakeProvisioner{kind: "solr", active: true},
	}
	d := testDriver(t, host, provisioners, testConfig())

	report, err := d.Run(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if report.ProfileCreated {
		t.Error("existing profile reported as created")
	}
	if len(report.ContainersCreated) != 0 {
		t.Errorf("containers created on a converged host: %v", report.ContainersCreated)
	}
	for _, o := range report.Engines {
		if o.Status != StatusSkipped {
			t.Errorf("engine %s status = %s, want skipped", o.Engine, o.Status)
		}
	}
	for _, p := range provisioners {
		if fp := p.(*fakeProvisioner); fp.provCalls != 0 {
			t.Errorf("engine %s provisioned despite being active", fp.kind)
		}
	}
}

func TestDriver_PartialFailureIsolation(t *testing.T) {
	host := newFakeHost()
	provisioners := []Provisioner{
		&fakeProvisioner{kind: "meilisearch"},
		&fakeProvisioner{kind: "opensearch", err: NewFetchError("https://artifacts.example.com", errors.New("503"))},
		&fakeProvisioner{kind: "solr"},
		&fakeProvisioner{kind: "elasticsearch"},
	}
	d := testDriver(t, host, provisioners, testConfig())

	report, err := d.Run(context.Background())
	if err != nil {
		t.Fatalf("per-engine failures must not abort the run: %v", err)
	}
	if !report.Failed() {
		t.Error("report must reflect the failed engine")
	}

	failed, _ := report.Outcome("opensearch")
	if failed.Status != StatusFailed || failed.ErrorKind != KindFetch {
		t.Errorf("opensearch outcome = %+v", failed)
	}
	for _, kind := range []string{"meilisearch", "solr", "elasticsearch"} {
		o, ok := report.Outcome(kind)
		if !ok || o.Status != StatusProvisioned {
			t.Errorf("engine %s outcome = %+v, %v; siblings must be unaffected", kind, o, ok)
		}
	}
}

func TestDriver_LaunchFailureIsolatedToEngine(t *testing.T) {
	host := newFakeHost()
	host.launchFailures["opensearch"] = errors.New("image not found")
	provisioners := []Provisioner{
		&fakeProvisioner{kind: "meilisearch"},
		&fakeProvisioner{kind: "opensearch"},
	}
	d := testDriver(t, host, provisioners, testConfig())

	report, err := d.Run(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	o, _ := report.Outcome("opensearch")
	if o.Status != StatusFailed || o.ErrorKind != KindContainerLaunch {
		t.Errorf("opensearch outcome = %+v", o)
	}
	if fp := provisioners[1].(*fakeProvisioner); fp.provCalls != 0 {
		t.Error("recipe ran despite failed container launch")
	}
	if o, _ := report.Outcome("meilisearch"); o.Status != StatusProvisioned {
		t.Errorf("meilisearch outcome = %+v", o)
	}
}

func TestDriver_BootTimeoutStillRecordsCreatedContainer(t *testing.T) {
	host := newFakeHost()
	host.bootFailures["opensearch"] = errors.New("init state \"starting\"")
	provisioners := []Provisioner{
		&fakeProvisioner{kind: "meilisearch"},
		&fakeProvisioner{kind: "opensearch"},
	}
	d := testDriver(t, host, provisioners, testConfig())

	report, err := d.Run(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	o, _ := report.Outcome("opensearch")
	if o.Status != StatusFailed || o.ErrorKind != KindBootTimeout {
		t.Errorf("opensearch outcome = %+v", o)
	}

	// The container launched before the boot wait expired, so it exists
	// on the host and the report must account for it.
	found := false
	for _, name := range report.ContainersCreated {
		if name == "opensearch" {
			found = true
		}
	}
	if !found {
		t.Errorf("created container missing from report: %v", report.ContainersCreated)
	}
	if fp := provisioners[1].(*fakeProvisioner); fp.provCalls != 0 {
		t.Error("recipe ran despite boot timeout")
	}
}

func TestDriver_SubsetOfEngines(t *testing.T) {
	host := newFakeHost()
	provisioners := []Provisioner{
		&fakeProvisioner{kind: "meilisearch"},
		&fakeProvisioner{kind: "solr"},
	}
	d := testDriver(t, host, provisioners, testConfig())

	report, err := d.Run(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(report.Engines) != 2 {
		t.Errorf("expected outcomes for exactly the selected engines, got %d", len(report.Engines))
	}
	if len(host.containerLaunch) != 2 {
		t.Errorf("expected exactly two containers, got %v", host.containerLaunch)
	}
	if host.profileCreates != 1 {
		t.Errorf("expected one profile create, got %d", host.profileCreates)
	}
}

func TestDriver_WarningsSurfaceInOutcome(t *testing.T) {
	host := newFakeHost()
	provisioners := []Provisioner{
		&fakeProvisioner{kind: "meilisearch", warnings: []string{"patch \"http_addr\" matched nothing"}},
	}
	d := testDriver(t, host, provisioners, testConfig())

	report, err := d.Run(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	o, _ := report.Outcome("meilisearch")
	if o.Status != StatusProvisioned {
		t.Errorf("warnings must not fail the engine: %+v", o)
	}
	if len(o.Warnings) != 1 {
		t.Errorf("warnings lost: %+v", o)
	}
}

func TestDriver_RunIDAssigned(t *testing.T) {
	host := newFakeHost()
	d := testDriver(t, host, nil, testConfig())

	report, err := d.Run(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if report.RunID == "" {
		t.Error("run ID not assigned")
	}
	if report.Environment != "test" {
		t.Errorf("environment = %q", report.Environment)
	}
	if report.FinishedAt.Before(report.StartedAt) {
		t.Error("finish time precedes start time")
	}
}
