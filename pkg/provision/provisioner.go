// Package provision implements the per-engine provisioners. Each engine
// supplies an ordered recipe over a shared step runner; the recipes are
// restart-safe so an interrupted run can be re-invoked and every step
// tolerates "already done" state.
package provision

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/piwi3910/searchbench/pkg/engine"
	"github.com/piwi3910/searchbench/pkg/telemetry"
)

// Engine kind names, also used as container names.
const (
	KindMeilisearch   = "meilisearch"
	KindOpenSearch    = "opensearch"
	KindSolr          = "solr"
	KindElasticsearch = "elasticsearch"
)

// Kinds lists the supported engine kinds in provisioning order.
func Kinds() []string {
	return []string{KindMeilisearch, KindOpenSearch, KindSolr, KindElasticsearch}
}

// Settings carries the per-run inputs the recipes need. The administrative
// credential is an explicit value here, not an ambient variable.
type Settings struct {
	// AdminPassword is the test-only initial administrative credential
	// required by the OpenSearch package installer.
	AdminPassword string

	// SolrVersion selects the Solr archive to download.
	SolrVersion string

	// ElasticsearchVersion selects the Elasticsearch archive to download.
	ElasticsearchVersion string

	// DefaultCore is the Solr core created after install for the
	// benchmark harness.
	DefaultCore string
}

func (s Settings) withDefaults() Settings {
	out := s
	if out.SolrVersion == "" {
		out.SolrVersion = "9.6.1"
	}
	if out.ElasticsearchVersion == "" {
		out.ElasticsearchVersion = "8.14.3"
	}
	if out.DefaultCore == "" {
		out.DefaultCore = "misp-galaxies"
	}
	return out
}

// ForKinds builds the provisioners for the selected engine kinds.
func ForKinds(kinds []string, s Settings, logger *telemetry.Logger, metrics *telemetry.Metrics) ([]engine.Provisioner, error) {
	s = s.withDefaults()
	out := make([]engine.Provisioner, 0, len(kinds))
	for _, kind := range kinds {
		switch kind {
		case KindMeilisearch:
			out = append(out, NewMeilisearch(logger, metrics))
		case KindOpenSearch:
			out = append(out, NewOpenSearch(logger, metrics, s.AdminPassword))
		case KindSolr:
			out = append(out, NewSolr(logger, metrics, s.SolrVersion, s.DefaultCore))
		case KindElasticsearch:
			out = append(out, NewElasticsearch(logger, metrics, s.ElasticsearchVersion))
		default:
			return nil, fmt.Errorf("unknown engine kind: %s", kind)
		}
	}
	return out, nil
}

// step is one named unit of a provisioning recipe.
type step struct {
	name string
	run  func(ctx context.Context, c engine.Container) error
}

// recipe is the shared state and step runner every engine embeds.
type recipe struct {
	kind    string
	port    int
	unit    string
	logger  *telemetry.Logger
	metrics *telemetry.Metrics

	// warnings collected during the current Provision call, mostly
	// zero-match config patches.
	warnings []string
}

func newRecipe(kind string, port int, unit string, logger *telemetry.Logger, metrics *telemetry.Metrics) recipe {
	return recipe{
		kind:    kind,
		port:    port,
		unit:    unit,
		logger:  logger.NewComponentLogger("provision").WithEngine(kind),
		metrics: metrics,
	}
}

// Kind returns the engine kind.
func (r *recipe) Kind() string { return r.kind }

// ContainerName returns the logical container name, which is the kind.
func (r *recipe) ContainerName() string { return r.kind }

// Port returns the engine's primary service port.
func (r *recipe) Port() int { return r.port }

// IsActive queries the in-container service manager. Any query error is
// treated as "not active", which triggers a (re-)provisioning attempt.
func (r *recipe) IsActive(ctx context.Context, c engine.Container) bool {
	stdout, _, err := c.Exec(ctx, "systemctl is-active "+r.unit)
	if err != nil {
		return false
	}
	return strings.TrimSpace(stdout) == "active"
}

// execute runs the ordered steps, narrating and timing each one.
func (r *recipe) execute(ctx context.Context, c engine.Container, steps []step) error {
	r.warnings = nil
	for i, s := range steps {
		r.logger.Infof("step %d/%d: %s", i+1, len(steps), s.name)

		start := time.Now()
		err := s.run(ctx, c)
		elapsed := time.Since(start)

		if err != nil {
			r.metrics.RecordStep(r.kind, s.name, "error", elapsed)
			var e *engine.Error
			if errors.As(err, &e) {
				return e.WithResource(r.kind)
			}
			return engine.NewInternalError("recipe step failed", err).
				WithResource(r.kind).
				WithOperation(s.name)
		}
		r.metrics.RecordStep(r.kind, s.name, "ok", elapsed)
	}
	return nil
}

// takeWarnings returns and clears the warnings from the last execute call.
func (r *recipe) takeWarnings() []string {
	w := r.warnings
	r.warnings = nil
	return w
}

// warnf records a non-fatal warning for the run report.
func (r *recipe) warnf(format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	r.logger.Warn(msg)
	r.warnings = append(r.warnings, msg)
}
