// Package datastore provides error handling helpers for database operations
package datastore

import (
	"github.com/leadboard/leadboard-go/internal/errors"
	"gorm.io/gorm"
)

// dbError creates a properly categorized database error with context
func dbError(err error, operation, priority string, context ...any) error {
	builder := errors.New(err).
		Component("datastore").
		Category(errors.CategoryDatabase).
		Context("operation", operation)

	if priority != "" {
		builder = builder.Priority(priority)
	}

	for i := 0; i < len(context)-1; i += 2 {
		if key, ok := context[i].(string); ok {
			builder = builder.Context(key, context[i+1])
		}
	}

	return builder.Build()
}

// notFoundError creates a not found error (low priority, not shown to users)
func notFoundError(resource, identifier string) error {
	return errors.Newf("%s not found", resource).
		Component("datastore").
		Category(errors.CategoryNotFound).
		Context("resource", resource).
		Context("identifier", identifier).
		Build()
}

// validationError creates a validation error
func validationError(message, field string, value any) error {
	return errors.Newf("%s", message).
		Component("datastore").
		Category(errors.CategoryValidation).
		Context("field", field).
		Context("value", value).
		Build()
}

// translateGormError maps gorm's record-not-found onto the not-found category,
// everything else onto a database error.
func translateGormError(err error, resource, identifier, operation string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return notFoundError(resource, identifier)
	}
	return dbError(err, operation, "", "resource", resource, "identifier", identifier)
}
