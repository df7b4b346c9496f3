package mw

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
)

// OperationOption is a function that modifies an operation.
type OperationOption func(*huma.Operation)

// Access is the caller class an operation accepts.
type Access int

const (
	// AccessPublic needs no token.
	AccessPublic Access = iota
	// AccessService needs a bot or admin token.
	AccessService
	// AccessAdmin needs an admin token; the operation is left out of the OpenAPI document.
	AccessAdmin
)

// WithAdmin marks the operation as requiring the admin role.
func WithAdmin() OperationOption {
	return func(op *huma.Operation) {
		if op.Metadata == nil {
			op.Metadata = make(map[string]any)
		}
		op.Metadata[string(MetaKeyRequireAdmin)] = true
	}
}

// WithTags adds tags to the operation.
func WithTags(tags ...string) OperationOption {
	return func(op *huma.Operation) {
		op.Tags = append(op.Tags, tags...)
	}
}

// WithDescription sets the operation description.
func WithDescription(desc string) OperationOption {
	return func(op *huma.Operation) {
		op.Description = desc
	}
}

// WithSummary sets the operation summary.
func WithSummary(summary string) OperationOption {
	return func(op *huma.Operation) {
		op.Summary = summary
	}
}

// WithOperationID sets a custom operation ID.
func WithOperationID(id string) OperationOption {
	return func(op *huma.Operation) {
		op.OperationID = id
	}
}

// WithHidden hides the operation from OpenAPI documentation.
func WithHidden() OperationOption {
	return func(op *huma.Operation) {
		op.Hidden = true
	}
}

// WithErrors documents additional error statuses the operation can return.
func WithErrors(statuses ...int) OperationOption {
	return func(op *huma.Operation) {
		for _, status := range statuses {
			if !containsStatus(op.Errors, status) {
				op.Errors = append(op.Errors, status)
			}
		}
	}
}

func containsStatus(statuses []int, status int) bool {
	for _, s := range statuses {
		if s == status {
			return true
		}
	}
	return false
}

// newOperation builds an operation for the access class; opts run last so
// callers can override the defaults.
func newOperation(method, path string, access Access, opts []OperationOption) huma.Operation {
	op := huma.Operation{
		Method: method,
		Path:   path,
	}

	switch access {
	case AccessService:
		op.Security = []map[string][]string{{SecurityScheme: {}}}
		WithErrors(http.StatusUnauthorized)(&op)
	case AccessAdmin:
		op.Security = []map[string][]string{{SecurityScheme: {}}}
		WithErrors(http.StatusUnauthorized, http.StatusForbidden)(&op)
		WithAdmin()(&op)
		WithHidden()(&op)
		WithTags("Admin")(&op)
	}

	for _, opt := range opts {
		opt(&op)
	}
	return op
}

// Register adds an operation with the given access class.
func Register[I, O any](api huma.API, method, path string, access Access, handler func(ctx context.Context, input *I) (*O, error), opts ...OperationOption) {
	huma.Register(api, newOperation(method, path, access, opts), handler)
}

// PublicGet registers a public GET endpoint (no auth required).
func PublicGet[I, O any](api huma.API, path string, handler func(ctx context.Context, input *I) (*O, error), opts ...OperationOption) {
	Register(api, http.MethodGet, path, AccessPublic, handler, opts...)
}

// ProtectedGet registers a GET endpoint for bot or admin callers.
func ProtectedGet[I, O any](api huma.API, path string, handler func(ctx context.Context, input *I) (*O, error), opts ...OperationOption) {
	Register(api, http.MethodGet, path, AccessService, handler, opts...)
}

// ProtectedPost registers a POST endpoint for bot or admin callers.
func ProtectedPost[I, O any](api huma.API, path string, handler func(ctx context.Context, input *I) (*O, error), opts ...OperationOption) {
	Register(api, http.MethodPost, path, AccessService, handler, opts...)
}

// AdminGet registers an undocumented GET endpoint for admin callers.
func AdminGet[I, O any](api huma.API, path string, handler func(ctx context.Context, input *I) (*O, error), opts ...OperationOption) {
	Register(api, http.MethodGet, path, AccessAdmin, handler, opts...)
}

// AdminPost registers an undocumented POST endpoint for admin callers.
func AdminPost[I, O any](api huma.API, path string, handler func(ctx context.Context, input *I) (*O, error), opts ...OperationOption) {
	Register(api, http.MethodPost, path, AccessAdmin, handler, opts...)
}

// HiddenGet registers a public GET endpoint left out of the OpenAPI document.
// Used for probes.
func HiddenGet[I, O any](api huma.API, path string, handler func(ctx context.Context, input *I) (*O, error)) {
	Register(api, http.MethodGet, path, AccessPublic, handler, WithHidden())
}
