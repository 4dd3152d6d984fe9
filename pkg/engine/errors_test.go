package engine

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestError_MessageIncludesContext(t *testing.T) {
	err := NewFetchError("https://example.com/pkg.tar.gz", errors.New("connection refused")).
		WithResource("elasticsearch")

	msg := err.Error()
	for _, want := range []string{"fetch", "elasticsearch", "connection refused"} {
		if !strings.Contains(msg, want) {
			t.Errorf("error message missing %q: %s", want, msg)
		}
	}
}

func TestError_UnwrapAndAs(t *testing.T) {
	cause := errors.New("exit status 22")
	err := fmt.Errorf("step failed: %w", NewFetchError("https://example.com", cause))

	var e *Error
	if !errors.As(err, &e) {
		t.Fatal("errors.As failed to find classified error in chain")
	}
	if e.Kind != KindFetch {
		t.Errorf("expected fetch kind, got %s", e.Kind)
	}
	if !errors.Is(err, cause) {
		t.Error("underlying cause lost from chain")
	}
}

func TestError_IsMatchesOnKind(t *testing.T) {
	a := NewBootTimeout("solr", errors.New("init state \"starting\""))
	b := NewBootTimeout("opensearch", nil)

	if !errors.Is(a, b) {
		t.Error("errors with the same kind should match")
	}
	if errors.Is(a, NewInternalError("other", nil)) {
		t.Error("errors with different kinds should not match")
	}
}

func TestKindOf(t *testing.T) {
	cases := []struct {
		err  error
		want ErrorKind
	}{
		{NewHostUnavailable("lxc missing", nil), KindHostUnavailable},
		{NewContainerLaunchError("meilisearch", nil), KindContainerLaunch},
		{fmt.Errorf("wrapped: %w", NewFetchError("https://example.com", nil)), KindFetch},
		{NewBootTimeout("solr", nil), KindBootTimeout},
		{errors.New("plain"), KindInternal},
	}
	for _, tc := range cases {
		if got := KindOf(tc.err); got != tc.want {
			t.Errorf("KindOf(%v) = %s, want %s", tc.err, got, tc.want)
		}
	}
}

func TestKindPredicates(t *testing.T) {
	if !IsHostUnavailable(NewHostUnavailable("down", nil)) {
		t.Error("IsHostUnavailable false for host-unavailable error")
	}
	if IsHostUnavailable(NewFetchError("https://example.com", nil)) {
		t.Error("IsHostUnavailable true for fetch error")
	}
	if !IsFetch(NewFetchError("https://example.com", nil)) {
		t.Error("IsFetch false for fetch error")
	}
	if !IsBootTimeout(NewBootTimeout("solr", nil)) {
		t.Error("IsBootTimeout false for boot-timeout error")
	}
}

func TestReport_FailedAndOutcome(t *testing.T) {
	r := &Report{
		Engines: []EngineOutcome{
			{Engine: "meilisearch", Status: StatusProvisioned},
			{Engine: "solr", Status: StatusSkipped},
		},
	}
	if r.Failed() {
		t.Error("report without failed engines reported as failed")
	}

	r.Engines = append(r.Engines, EngineOutcome{Engine: "opensearch", Status: StatusFailed, Error: "boom"})
	if !r.Failed() {
		t.Error("report with a failed engine not reported as failed")
	}

	o, ok := r.Outcome("solr")
	if !ok || o.Status != StatusSkipped {
		t.Errorf("Outcome(solr) = %+v, %v", o, ok)
	}
	if _, ok := r.Outcome("elasticsearch"); ok {
		t.Error("Outcome found an engine that is not in the report")
	}
}

func TestReport_SummaryGatesSuccessMessage(t *testing.T) {
	r := &Report{
		Engines: []EngineOutcome{
			{Engine: "meilisearch", Status: StatusProvisioned, Endpoint: "10.0.0.5:7700"},
		},
	}
	if s := r.Summary(); !strings.Contains(s, "all containers are configured") {
		t.Errorf("success summary missing completion line:\n%s", s)
	}

	r.Engines = append(r.Engines, EngineOutcome{
		Engine: "solr", Status: StatusFailed, Error: "download failed",
		Warnings: []string{"patch matched nothing"},
	})
	s := r.Summary()
	if strings.Contains(s, "all containers are configured") {
		t.Errorf("failed run must not claim success:\n%s", s)
	}
	if !strings.Contains(s, "completed with failures") {
		t.Errorf("failed run summary missing failure line:\n%s", s)
	}
	if !strings.Contains(s, "patch matched nothing") {
		t.Errorf("warnings missing from summary:\n%s", s)
	}
}
