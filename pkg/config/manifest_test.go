package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeManifest(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("cannot write manifest: %v", err)
	}
	return path
}

func TestLoad_CUEManifest(t *testing.T) {
	path := writeManifest(t, "bench.cue", `
environment: "test"
engines: ["meilisearch", "opensearch", "solr", "elasticsearch"]
admin_password: "RandomShit1!"
profile: {
	cpu:    6
	memory: "12GiB"
}
versions: solr: "9.6.1"
`)

	m, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if m.Environment != "test" {
		t.Errorf("environment = %q", m.Environment)
	}
	if len(m.Engines) != 4 {
		t.Errorf("engines = %v", m.Engines)
	}
	if m.Profile.CPU != 6 || m.Profile.Memory != "12GiB" {
		t.Errorf("profile overrides lost: %+v", m.Profile)
	}
	// Unset fields pick up defaults.
	if m.BaseImage != "ubuntu:22.04" {
		t.Errorf("base_image default = %q", m.BaseImage)
	}
	if m.Profile.Name != "searchbench" || m.Profile.DiskPool != "default" {
		t.Errorf("profile defaults = %+v", m.Profile)
	}
	if m.StorePath != "searchbench.db" || m.Concurrency != 1 {
		t.Errorf("defaults = store %q concurrency %d", m.StorePath, m.Concurrency)
	}
	if m.Versions.Solr != "9.6.1" {
		t.Errorf("versions = %+v", m.Versions)
	}
}

func TestLoad_YAMLManifest(t *testing.T) {
	path := writeManifest(t, "bench.yaml", `
environment: staging
engines:
  - meilisearch
  - solr
base_image: ubuntu:24.04
profile:
  name: bench
  cpu: 2
  memory: 4GiB
concurrency: 4
`)

	m, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if m.BaseImage != "ubuntu:24.04" {
		t.Errorf("base_image = %q", m.BaseImage)
	}
	if m.Profile.Name != "bench" || m.Profile.CPU != 2 {
		t.Errorf("profile = %+v", m.Profile)
	}
	if m.Concurrency != 4 {
		t.Errorf("concurrency = %d", m.Concurrency)
	}
	if !m.HasEngine("solr") || m.HasEngine("opensearch") {
		t.Errorf("engine selection wrong: %v", m.Engines)
	}
}

func TestLoad_CUERejectsUnknownEngine(t *testing.T) {
	path := writeManifest(t, "bench.cue", `
environment: "test"
engines: ["sphinx"]
`)

	if _, err := Load(path); err == nil {
		t.Fatal("expected schema rejection for unknown engine kind")
	}
}

func TestLoad_YAMLRejectsUnknownEngine(t *testing.T) {
	path := writeManifest(t, "bench.yaml", `
environment: test
engines: [sphinx]
`)

	_, err := Load(path)
	if err == nil {
		t.Fatal("expected validation failure for unknown engine kind")
	}
	if !strings.Contains(err.Error(), "invalid manifest") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestLoad_OpenSearchRequiresAdminPassword(t *testing.T) {
	path := writeManifest(t, "bench.yaml", `
environment: test
engines: [opensearch]
`)

	_, err := Load(path)
	if err == nil {
		t.Fatal("expected admin_password requirement to fail validation")
	}
	if !strings.Contains(err.Error(), "admin_password") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestLoad_RemoteDefaultsPort(t *testing.T) {
	path := writeManifest(t, "bench.yaml", `
environment: test
engines: [meilisearch]
remote:
  host: lxd-host.internal
  user: ubuntu
  key_path: /home/ubuntu/.ssh/id_ed25519
`)

	m, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if m.Remote == nil || m.Remote.Port != 22 {
		t.Errorf("remote = %+v", m.Remote)
	}
}

func TestLoad_EmptyEnginesRejected(t *testing.T) {
	path := writeManifest(t, "bench.yaml", `
environment: test
engines: []
`)

	if _, err := Load(path); err == nil {
		t.Fatal("expected validation failure for empty engine selection")
	}
}

func TestLoad_UnsupportedExtension(t *testing.T) {
	path := writeManifest(t, "bench.toml", `environment = "test"`)

	_, err := Load(path)
	if err == nil {
		t.Fatal("expected unsupported-format error")
	}
	if !strings.Contains(err.Error(), "unsupported manifest format") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.cue")); err == nil {
		t.Fatal("expected error for missing manifest file")
	}
}

func TestLoad_PartialTelemetryKeepsProvidedSettings(t *testing.T) {
	path := writeManifest(t, "bench.yaml", `
environment: test
engines: [meilisearch]
telemetry:
  metrics:
    enabled: true
    listen: ":9400"
  tracing:
    enabled: true
    exporter: stdout
`)

	m, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if m.Telemetry.Metrics.Listen != ":9400" {
		t.Errorf("metrics listen clobbered: got %q, want %q", m.Telemetry.Metrics.Listen, ":9400")
	}
	if !m.Telemetry.Tracing.Enabled {
		t.Error("tracing enabled setting clobbered")
	}
	if m.Telemetry.Tracing.Exporter != "stdout" {
		t.Errorf("tracing exporter clobbered: got %q", m.Telemetry.Tracing.Exporter)
	}
	// Omitted fields still pick up defaults.
	if m.Telemetry.Logging.Level != "info" || m.Telemetry.Logging.Format != "console" {
		t.Errorf("logging defaults not applied: %+v", m.Telemetry.Logging)
	}
	if m.Telemetry.Metrics.Namespace != "searchbench" {
		t.Errorf("metrics namespace default not applied: %q", m.Telemetry.Metrics.Namespace)
	}
}

func TestLoad_OmittedTelemetryGetsFullDefaults(t *testing.T) {
	path := writeManifest(t, "bench.yaml", `
environment: test
engines: [meilisearch]
`)

	m, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !m.Telemetry.Metrics.Enabled {
		t.Error("metrics not enabled by default")
	}
	if m.Telemetry.Tracing.Enabled {
		t.Error("tracing enabled by default")
	}
	if m.Telemetry.Logging.Level != "info" {
		t.Errorf("logging level default = %q", m.Telemetry.Logging.Level)
	}
}

func TestManifest_ValidateConcurrencyBounds(t *testing.T) {
	m := &Manifest{
		Environment: "test",
		Engines:     []string{"solr"},
		BaseImage:   "ubuntu:22.04",
		Profile:     ProfileSpec{Name: "searchbench", CPU: 4, Memory: "8GiB"},
		Concurrency: 9,
	}
	if err := m.Validate(); err == nil {
		t.Error("expected concurrency above bound to fail validation")
	}
	m.Concurrency = 4
	if err := m.Validate(); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}
