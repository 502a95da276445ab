package datastore

import (
	"github.com/tphakala/gwpe/internal/errors"
)

// dbError creates a properly categorized database error with context
func dbError(err error, operation string, context ...any) error {
	builder := errors.New(err).
		Component("datastore").
		Category(errors.CategoryDatabase).
		Context("operation", operation)

	for i := 0; i < len(context)-1; i += 2 {
		if key, ok := context[i].(string); ok {
			builder = builder.Context(key, context[i+1])
		}
	}
	return builder.Build()
}

// ErrNotFound is wrapped by lookups that match no record.
var ErrNotFound = errors.NewStd("record not found")

// notFoundError creates a not-found error for a missing record
func notFoundError(resource, identifier string) error {
	return errors.Newf("%s %w: %s", resource, ErrNotFound, identifier).
		Component("datastore").
		Category(errors.CategoryNotFound).
		Context("resource", resource).
		Context("identifier", identifier).
		Build()
}
