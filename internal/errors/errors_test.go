package errors

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorBuilder(t *testing.T) {
	t.Parallel()

	base := NewStd("field not found")
	err := New(base).
		Component("datastore").
		Category(CategoryNotFound).
		Context("field_id", 42).
		Build()

	assert.Equal(t, "field not found", err.Error())
	assert.Equal(t, "datastore", err.GetComponent())
	assert.Equal(t, string(CategoryNotFound), err.GetCategory())
	require.NotNil(t, err.GetContext())
	assert.Equal(t, 42, err.GetContext()["field_id"])
	assert.False(t, err.GetTimestamp().IsZero())
}

func TestUnwrapPreservesOriginal(t *testing.T) {
	t.Parallel()

	sentinel := NewStd("sentinel")
	wrapped := New(fmt.Errorf("outer: %w", sentinel)).Category(CategoryDatabase).Build()

	assert.True(t, Is(wrapped, sentinel))
	assert.Equal(t, "outer: sentinel", wrapped.GetMessage())
}

func TestIsCategory(t *testing.T) {
	t.Parallel()

	err := Newf("record %d missing", 7).Category(CategoryNotFound).Build()

	assert.True(t, IsNotFound(err))
	assert.True(t, IsCategory(err, CategoryNotFound))
	assert.False(t, IsCategory(err, CategoryValidation))

	// Category survives further wrapping by callers.
	rewrapped := fmt.Errorf("handler: %w", err)
	assert.True(t, IsNotFound(rewrapped))
}

func TestDefaultCategoryIsGeneric(t *testing.T) {
	t.Parallel()

	err := Newf("boom").Build()
	assert.Equal(t, string(CategoryGeneric), err.GetCategory())
}

func TestPriorityValidation(t *testing.T) {
	t.Parallel()

	err := Newf("x").Priority("bogus").Build()
	assert.Equal(t, PriorityMedium, err.GetPriority())

	err = Newf("x").Priority(PriorityCritical).Build()
	assert.Equal(t, PriorityCritical, err.GetPriority())

	err = Newf("x").Build()
	assert.Empty(t, err.GetPriority())
}

func TestNotFoundErrorHelper(t *testing.T) {
	t.Parallel()

	err := NotFoundError("field", "123")
	assert.True(t, IsNotFound(err))
	assert.Equal(t, "field", err.GetContext()["resource"])
	assert.Equal(t, "123", err.GetContext()["identifier"])
}

func TestValidationErrorHelper(t *testing.T) {
	t.Parallel()

	err := ValidationError("malformed filter")
	assert.True(t, IsValidation(err))
	assert.Equal(t, "malformed filter", err.Error())
}
