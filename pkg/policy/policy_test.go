package policy

import (
	"context"
	"strings"
	"testing"

	"github.com/piwi3910/searchbench/pkg/config"
	"github.com/piwi3910/searchbench/pkg/telemetry"
)

func testGate(t *testing.T) *Gate {
	t.Helper()
	logger, err := telemetry.NewLogger(telemetry.LoggingConfig{Level: "error", Format: "json", Output: "stderr"})
	if err != nil {
		t.Fatalf("cannot create logger: %v", err)
	}
	gate, err := NewGate(context.Background(), logger)
	if err != nil {
		t.Fatalf("cannot compile policies: %v", err)
	}
	return gate
}

func testManifest() *config.Manifest {
	return &config.Manifest{
		Environment:   "test",
		Engines:       []string{"opensearch"},
		BaseImage:     "ubuntu:22.04",
		AdminPassword: "RandomShit1!",
		Profile: config.ProfileSpec{
			Name:   "searchbench",
			CPU:    4,
			Memory: "8GiB",
		},
	}
}

func TestGate_AllowsTestEnvironmentCredential(t *testing.T) {
	gate := testGate(t)

	result, err := gate.Evaluate(context.Background(), testManifest())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.Allowed() {
		t.Errorf("test environment denied: %v", result.Denials)
	}
	if len(result.Warnings) != 0 {
		t.Errorf("unexpected warnings: %v", result.Warnings)
	}
}

func TestGate_DeniesTestCredentialOutsideTest(t *testing.T) {
	gate := testGate(t)
	m := testManifest()
	m.Environment = "production"

	result, err := gate.Evaluate(context.Background(), m)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Allowed() {
		t.Fatal("well-known credential outside test must be denied")
	}
	if !strings.Contains(result.Denials[0], "test credential") {
		t.Errorf("unexpected denial: %v", result.Denials)
	}
}

func TestGate_AllowsDistinctCredentialOutsideTest(t *testing.T) {
	gate := testGate(t)
	m := testManifest()
	m.Environment = "production"
	m.AdminPassword = "s0me-other-secret!"

	result, err := gate.Evaluate(context.Background(), m)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.Allowed() {
		t.Errorf("distinct credential denied: %v", result.Denials)
	}
}

func TestGate_DeniesMissingResourceLimits(t *testing.T) {
	gate := testGate(t)
	m := testManifest()
	m.Profile.CPU = 0
	m.Profile.Memory = ""

	result, err := gate.Evaluate(context.Background(), m)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Allowed() {
		t.Fatal("missing resource limits must be denied")
	}
	if len(result.Denials) != 2 {
		t.Errorf("expected cpu and memory denials, got %v", result.Denials)
	}
}

func TestGate_WarnsOnNonUbuntuImage(t *testing.T) {
	gate := testGate(t)
	m := testManifest()
	m.BaseImage = "debian:12"

	result, err := gate.Evaluate(context.Background(), m)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.Allowed() {
		t.Errorf("non-ubuntu image must only warn: %v", result.Denials)
	}
	if len(result.Warnings) != 1 || !strings.Contains(result.Warnings[0], "debian:12") {
		t.Errorf("expected base-image warning, got %v", result.Warnings)
	}
}
