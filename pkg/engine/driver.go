package engine

import (
	"context"
	"errors"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/piwi3910/searchbench/pkg/telemetry"
)

// DriverConfig carries the run-wide inputs of the orchestration driver.
type DriverConfig struct {
	// Environment names the benchmark environment (e.g. "test").
	Environment string

	// Profile is the shared resource-limit profile ensured before any
	// container is launched.
	Profile Profile

	// BaseImage is the container base image reference.
	BaseImage string

	// Concurrency bounds how many engine provisioners run at once.
	// Engines are independent once their container exists, so values
	// above 1 are a performance choice, not a correctness requirement.
	Concurrency int
}

// Driver sequences profile, containers and per-engine provisioning, and
// aggregates per-engine outcomes into a Report.
type Driver struct {
	host         Host
	provisioners []Provisioner
	cfg          DriverConfig
	logger       *telemetry.Logger
	metrics      *telemetry.Metrics
	tracer       *telemetry.Tracer
}

// NewDriver creates an orchestration driver.
func NewDriver(host Host, provisioners []Provisioner, cfg DriverConfig,
	logger *telemetry.Logger, metrics *telemetry.Metrics, tracer *telemetry.Tracer) *Driver {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	return &Driver{
		host:         host,
		provisioners: provisioners,
		cfg:          cfg,
		logger:       logger.NewComponentLogger("driver"),
		metrics:      metrics,
		tracer:       tracer,
	}
}

// Run executes one orchestration pass. A host-unavailable failure aborts
// the run; container launch and recipe failures are isolated per engine
// and recorded in the report.
func (d *Driver) Run(ctx context.Context) (*Report, error) {
	report := &Report{
		RunID:       uuid.New().String(),
		Environment: d.cfg.Environment,
		StartedAt:   time.Now(),
	}
	logger := d.logger.WithRunID(report.RunID)

	ctx, span := d.tracer.StartRunSpan(ctx, report.RunID)
	defer span.End()

	d.metrics.RecordRunStarted()

	if err := d.host.Available(ctx); err != nil {
		d.metrics.RecordError(string(KindOf(err)))
		telemetry.RecordError(span, err)
		return nil, err
	}

	logger.Info("ensuring resource profile")
	created, err := d.host.EnsureProfile(ctx, d.cfg.Profile)
	if err != nil {
		d.metrics.RecordError(string(KindOf(err)))
		telemetry.RecordError(span, err)
		return nil, err
	}
	report.ProfileCreated = created

	profiles := []string{"default", d.cfg.Profile.Name}

	// Engines are independent of each other; run them in a bounded pool.
	outcomes := make([]EngineOutcome, len(d.provisioners))
	var createdMu sync.Mutex
	sem := make(chan struct{}, d.cfg.Concurrency)
	var wg sync.WaitGroup

	for i, p := range d.provisioners {
		wg.Add(1)
		go func(i int, p Provisioner) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			outcome := d.runEngine(ctx, logger, p, profiles, func(name string) {
				createdMu.Lock()
				report.ContainersCreated = append(report.ContainersCreated, name)
				createdMu.Unlock()
			})
			outcomes[i] = outcome
		}(i, p)
	}
	wg.Wait()

	report.Engines = outcomes
	report.FinishedAt = time.Now()

	status := "success"
	if report.Failed() {
		status = "failed"
		telemetry.RecordError(span, errors.New("one or more engines failed"))
	} else {
		telemetry.RecordSuccess(span)
	}
	d.metrics.RecordRunCompleted(status, report.FinishedAt.Sub(report.StartedAt))

	return report, nil
}

// runEngine ensures one engine's container and provisions the engine if
// its service is not already active.
func (d *Driver) runEngine(ctx context.Context, logger *telemetry.Logger, p Provisioner,
	profiles []string, onCreated func(string)) EngineOutcome {

	name := p.ContainerName()
	elog := logger.WithEngine(p.Kind()).WithContainer(name)
	start := time.Now()

	outcome := EngineOutcome{
		Engine:    p.Kind(),
		Container: name,
	}

	ctx, span := d.tracer.StartEngineSpan(ctx, p.Kind(), name)
	defer span.End()

	fail := func(err error) EngineOutcome {
		outcome.Status = StatusFailed
		outcome.Error = err.Error()
		outcome.ErrorKind = KindOf(err)
		outcome.Duration = time.Since(start)
		d.metrics.RecordError(string(KindOf(err)))
		d.metrics.RecordEngineOutcome(p.Kind(), string(StatusFailed), outcome.Duration)
		telemetry.RecordError(span, err)
		elog.WithError(err).Error("engine provisioning failed")
		return outcome
	}

	elog.Info("ensuring container")
	created, err := d.host.EnsureContainer(ctx, name, d.cfg.BaseImage, profiles)
	// A container that launched but never reached boot readiness still
	// exists on the host, so record it before looking at the error.
	if created {
		onCreated(name)
	}
	if err != nil {
		return fail(err)
	}

	c := d.host.Container(name)

	if p.IsActive(ctx, c) {
		elog.Info("service already active, skipping provisioning")
		outcome.Status = StatusSkipped
	} else {
		elog.Info("provisioning engine")
		warnings, err := p.Provision(ctx, c)
		outcome.Warnings = warnings
		if err != nil {
			return fail(err)
		}
		outcome.Status = StatusProvisioned
	}

	if addr, err := d.host.Address(ctx, name); err == nil {
		outcome.Endpoint = formatEndpoint(addr, p.Port())
	} else {
		elog.WithError(err).Warn("could not resolve container address")
	}

	outcome.Duration = time.Since(start)
	d.metrics.RecordEngineOutcome(p.Kind(), string(outcome.Status), outcome.Duration)
	telemetry.RecordSuccess(span)
	elog.Infof("engine %s", outcome.Status)
	return outcome
}

func formatEndpoint(addr string, port int) string {
	if port <= 0 {
		return addr
	}
	return net.JoinHostPort(addr, strconv.Itoa(port))
}
