// Package engine provides the core types and the orchestration driver for
// searchbench. It sequences the provisioning workflow:
// Profile -> Containers -> Per-Engine Provisioners -> Report.
package engine

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a provisioning failure for propagation policy.
type ErrorKind string

const (
	// KindHostUnavailable indicates the container host control plane is
	// unreachable or the lxc tool is missing. Aborts the entire run.
	KindHostUnavailable ErrorKind = "host_unavailable"

	// KindContainerLaunch indicates a container failed to launch.
	// Fatal for that engine only; siblings continue.
	KindContainerLaunch ErrorKind = "container_launch"

	// KindFetch indicates a network download of an installer, archive or
	// configuration template failed. Fatal for that engine only.
	KindFetch ErrorKind = "fetch"

	// KindBootTimeout indicates a container did not reach init readiness
	// within the bounded boot wait. Fatal for that engine only.
	KindBootTimeout ErrorKind = "boot_timeout"

	// KindInternal indicates an unclassified failure.
	KindInternal ErrorKind = "internal"
)

// Error is a classified provisioning error with resource and operation context.
type Error struct {
	// Kind is the error classification driving the propagation policy.
	Kind ErrorKind `json:"kind"`

	// Message is the human-readable error message.
	Message string `json:"message"`

	// Resource is the profile, container or engine that caused the error.
	Resource string `json:"resource,omitempty"`

	// Operation is the operation being performed when the error occurred.
	Operation string `json:"operation,omitempty"`

	// Err is the underlying error.
	Err error `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Resource != "" && e.Operation != "" {
		return fmt.Sprintf("[%s] %s (resource=%s, operation=%s): %s",
			e.Kind, e.Message, e.Resource, e.Operation, e.unwrapMessage())
	}
	if e.Resource != "" {
		return fmt.Sprintf("[%s] %s (resource=%s): %s",
			e.Kind, e.Message, e.Resource, e.unwrapMessage())
	}
	return fmt.Sprintf("[%s] %s: %s", e.Kind, e.Message, e.unwrapMessage())
}

// Unwrap returns the underlying error for error chain inspection.
func (e *Error) Unwrap() error {
	return e.Err
}

func (e *Error) unwrapMessage() string {
	if e.Err != nil {
		return e.Err.Error()
	}
	return ""
}

// Is implements error equality checking for errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

// NewHostUnavailable creates a new host-unavailable error.
func NewHostUnavailable(message string, err error) *Error {
	return &Error{Kind: KindHostUnavailable, Message: message, Err: err}
}

// NewContainerLaunchError creates a new container-launch error.
func NewContainerLaunchError(container string, err error) *Error {
	return &Error{
		Kind:     KindContainerLaunch,
		Message:  "container launch failed",
		Resource: container,
		Err:      err,
	}
}

// NewFetchError creates a new fetch error for a failed download.
func NewFetchError(url string, err error) *Error {
	return &Error{
		Kind:      KindFetch,
		Message:   "download failed",
		Operation: "fetch " + url,
		Err:       err,
	}
}

// NewBootTimeout creates a new boot-timeout error.
func NewBootTimeout(container string, err error) *Error {
	return &Error{
		Kind:     KindBootTimeout,
		Message:  "container did not reach init readiness",
		Resource: container,
		Err:      err,
	}
}

// NewInternalError creates a new unclassified error.
func NewInternalError(message string, err error) *Error {
	return &Error{Kind: KindInternal, Message: message, Err: err}
}

// WithResource adds resource context to an error.
func (e *Error) WithResource(resource string) *Error {
	e.Resource = resource
	return e
}

// WithOperation adds operation context to an error.
func (e *Error) WithOperation(operation string) *Error {
	e.Operation = operation
	return e
}

// KindOf returns the classification of err, or KindInternal for
// unclassified errors.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// IsHostUnavailable returns true if the error aborts the whole run.
func IsHostUnavailable(err error) bool {
	return KindOf(err) == KindHostUnavailable
}

// IsFetch returns true if the error is a failed download.
func IsFetch(err error) bool {
	return KindOf(err) == KindFetch
}

// IsBootTimeout returns true if the error is a boot-readiness timeout.
func IsBootTimeout(err error) bool {
	return KindOf(err) == KindBootTimeout
}
