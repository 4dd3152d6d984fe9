// Package config loads and validates the searchbench environment manifest.
// Manifests are written in CUE (validated against the built-in schema) or
// plain YAML, and decoded into the same typed structure either way.
package config

import (
	"fmt"

	"github.com/go-playground/validator/v10"

	"github.com/piwi3910/searchbench/pkg/telemetry"
)

// Manifest is the declarative description of one benchmark environment.
type Manifest struct {
	// Environment names the environment; the policy gate treats "test"
	// specially for the default credential check.
	Environment string `json:"environment" yaml:"environment" validate:"required"`

	// Engines selects which search engines to provision.
	Engines []string `json:"engines" yaml:"engines" validate:"min=1,dive,oneof=meilisearch opensearch solr elasticsearch"`

	// BaseImage is the container base image reference.
	BaseImage string `json:"base_image" yaml:"base_image" validate:"required"`

	// Profile is the shared resource-limit profile.
	Profile ProfileSpec `json:"profile" yaml:"profile"`

	// AdminPassword is the test-only initial administrative credential
	// for the OpenSearch installer. Required when opensearch is selected.
	AdminPassword string `json:"admin_password" yaml:"admin_password"`

	// Versions pins engine release versions where the recipe downloads
	// a versioned archive.
	Versions Versions `json:"versions" yaml:"versions"`

	// Remote, when set, drives a remote LXD host over SSH instead of
	// the local lxc client.
	Remote *RemoteSpec `json:"remote,omitempty" yaml:"remote,omitempty"`

	// StorePath is the SQLite run-history database path.
	StorePath string `json:"store_path" yaml:"store_path"`

	// Concurrency bounds how many engines provision at once.
	Concurrency int `json:"concurrency" yaml:"concurrency" validate:"gte=0,lte=8"`

	// Telemetry configures logging, metrics and tracing.
	Telemetry telemetry.Config `json:"telemetry" yaml:"telemetry"`
}

// ProfileSpec is the manifest form of the resource profile.
type ProfileSpec struct {
	Name        string `json:"name" yaml:"name" validate:"required"`
	CPU         int    `json:"cpu" yaml:"cpu" validate:"gte=1"`
	Memory      string `json:"memory" yaml:"memory" validate:"required"`
	DiskPath    string `json:"disk_path" yaml:"disk_path"`
	DiskPool    string `json:"disk_pool" yaml:"disk_pool"`
	Description string `json:"description" yaml:"description"`
}

// Versions pins engine releases.
type Versions struct {
	Solr          string `json:"solr" yaml:"solr"`
	Elasticsearch string `json:"elasticsearch" yaml:"elasticsearch"`
}

// RemoteSpec describes the SSH endpoint of a remote LXD host.
type RemoteSpec struct {
	Host     string `json:"host" yaml:"host" validate:"required"`
	Port     int    `json:"port" yaml:"port"`
	User     string `json:"user" yaml:"user" validate:"required"`
	KeyPath  string `json:"key_path" yaml:"key_path"`
	Password string `json:"password" yaml:"password"`
}

// applyDefaults fills unset optional fields.
func (m *Manifest) applyDefaults() {
	if m.BaseImage == "" {
		m.BaseImage = "ubuntu:22.04"
	}
	if m.Profile.Name == "" {
		m.Profile.Name = "searchbench"
	}
	if m.Profile.CPU == 0 {
		m.Profile.CPU = 4
	}
	if m.Profile.Memory == "" {
		m.Profile.Memory = "8GiB"
	}
	if m.Profile.DiskPath == "" {
		m.Profile.DiskPath = "/"
	}
	if m.Profile.DiskPool == "" {
		m.Profile.DiskPool = "default"
	}
	if m.Profile.Description == "" {
		m.Profile.Description = "searchbench benchmark container limits"
	}
	if m.StorePath == "" {
		m.StorePath = "searchbench.db"
	}
	if m.Concurrency == 0 {
		m.Concurrency = 1
	}
	// Default each telemetry field on its own so a manifest that sets,
	// say, only tracing does not lose its settings to the defaults. An
	// entirely omitted block gets the full defaults (metrics enabled).
	defaults := telemetry.DefaultConfig()
	if m.Telemetry == (telemetry.Config{}) {
		m.Telemetry = defaults
	}
	if m.Telemetry.Logging.Level == "" {
		m.Telemetry.Logging.Level = defaults.Logging.Level
	}
	if m.Telemetry.Logging.Format == "" {
		m.Telemetry.Logging.Format = defaults.Logging.Format
	}
	if m.Telemetry.Logging.Output == "" {
		m.Telemetry.Logging.Output = defaults.Logging.Output
	}
	if m.Telemetry.Metrics.Namespace == "" {
		m.Telemetry.Metrics.Namespace = defaults.Metrics.Namespace
	}
	if m.Telemetry.Tracing.Exporter == "" {
		m.Telemetry.Tracing.Exporter = defaults.Tracing.Exporter
	}
	if m.Telemetry.Tracing.SamplingRate == 0 {
		m.Telemetry.Tracing.SamplingRate = defaults.Tracing.SamplingRate
	}
	if m.Remote != nil && m.Remote.Port == 0 {
		m.Remote.Port = 22
	}
}

// Validate checks the manifest structure and cross-field constraints.
func (m *Manifest) Validate() error {
	v := validator.New()
	if err := v.Struct(m); err != nil {
		return fmt.Errorf("invalid manifest: %w", err)
	}

	for _, e := range m.Engines {
		if e == "opensearch" && m.AdminPassword == "" {
			return fmt.Errorf("invalid manifest: admin_password is required when opensearch is selected")
		}
	}
	return nil
}

// HasEngine reports whether the manifest selects the given engine kind.
func (m *Manifest) HasEngine(kind string) bool {
	for _, e := range m.Engines {
		if e == kind {
			return true
		}
	}
	return false
}
