// Package providers defines the adapter contracts the reconciler drives
// external systems through, plus the shared failure taxonomy every adapter
// maps its errors onto.
package providers

import (
	"context"
	"errors"
	"fmt"
)

// ErrorKind classifies a provider failure for retry policy decisions.
type ErrorKind string

const (
	ErrTransient     ErrorKind = "transient-network"
	ErrRateLimited   ErrorKind = "provider-rate-limited"
	ErrAuthInvalid   ErrorKind = "provider-auth-invalid"
	ErrConflict      ErrorKind = "resource-conflict"
	ErrNotFound      ErrorKind = "resource-not-found"
	ErrConfigInvalid ErrorKind = "configuration-invalid"
)

// Error is a classified provider failure.
type Error struct {
	Kind ErrorKind
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
	return string(e.Kind)
}

func (e *Error) Unwrap() error { return e.Err }

// NewError wraps err with a taxonomy kind.
func NewError(kind ErrorKind, err error) *Error {
	return &Error{Kind: kind, Err: err}
}

// KindOf returns the taxonomy kind of err, or ErrTransient when the error
// carries no classification. Treating unknown failures as transient keeps a
// flaky network from wedging a resource into a terminal state prematurely.
func KindOf(err error) ErrorKind {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return ErrTransient
}

// IsKind reports whether err carries the given taxonomy kind.
func IsKind(err error, kind ErrorKind) bool {
	return err != nil && KindOf(err) == kind
}

// Retryable reports whether a failure of this kind should be retried with
// backoff. Everything else halts reconciliation until a user acts.
func Retryable(kind ErrorKind) bool {
	return kind == ErrTransient || kind == ErrRateLimited
}

// ServerSpec describes the virtual machine to create.
type ServerSpec struct {
	Name       string
	ServerType string
	Image      string
	Location   string
	// IdempotencyKey is attached to the create request as a label so a
	// retried create can recognize a server it already made.
	IdempotencyKey string
}

// ServerObservation is the provider-reported truth about one server.
type ServerObservation struct {
	ExternalID string
	Running    bool
	PublicIPv4 string
}

// ComputeProvider provisions virtual machines. Implementations must be safe
// to call twice for the same spec: callers re-check observed state before
// acting, and CreateServer is preceded by a DescribeServerByName probe.
type ComputeProvider interface {
	CreateServer(ctx context.Context, spec ServerSpec) (*ServerObservation, error)
	DescribeServer(ctx context.Context, externalID string) (*ServerObservation, error)
	DescribeServerByName(ctx context.Context, name string) (*ServerObservation, error)
	DestroyServer(ctx context.Context, externalID string) error
	// Validate performs a cheap read-only call to check the credential.
	Validate(ctx context.Context) error
}

// AppSpec describes the application to deploy onto a target host.
type AppSpec struct {
	Name       string
	ServerAddr string
	Domain     string
	AdminEmail string
	Env        map[string]string
}

// AppObservation is the deployment platform's view of one application.
type AppObservation struct {
	ExternalID string
	Running    bool
}

// DeployProvider manages applications on a deployment control plane.
type DeployProvider interface {
	CreateApplication(ctx context.Context, spec AppSpec) (*AppObservation, error)
	DescribeApplication(ctx context.Context, externalID string) (*AppObservation, error)
	DestroyApplication(ctx context.Context, externalID string) error
	Validate(ctx context.Context) error
}
