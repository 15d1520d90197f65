package errors

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuilder(t *testing.T) {
	t.Parallel()

	base := NewStd("connection refused")
	err := New(base).
		Component("eventstream").
		Category(CategorySocket).
		Context("tenant", "42").
		Build()

	require.NotNil(t, err, "expected built error")
	assert.Equal(t, "connection refused", err.Error(), "message should come from wrapped error")
	assert.Equal(t, "eventstream", err.GetComponent(), "expected component")
	assert.Equal(t, string(CategorySocket), err.GetCategory(), "expected category")
	assert.Equal(t, "42", err.GetContext()["tenant"], "expected context value")
	assert.True(t, Is(err, base), "wrapped error should match with Is")
}

func TestNewf(t *testing.T) {
	t.Parallel()

	err := Newf("asset %q not found", "horn").
		Component("audio").
		Category(CategoryAsset).
		Build()

	assert.Equal(t, `asset "horn" not found`, err.Error(), "expected formatted message")
}

func TestIsCategory(t *testing.T) {
	t.Parallel()

	err := Newf("fetch failed").Category(CategoryConfiguration).Build()
	wrapped := fmt.Errorf("refresh: %w", err)

	assert.True(t, IsCategory(wrapped, CategoryConfiguration), "category should survive wrapping")
	assert.False(t, IsCategory(wrapped, CategoryAudio), "unrelated category should not match")
}

func TestGetComponentDefault(t *testing.T) {
	t.Parallel()

	err := Newf("no component").Build()
	assert.Equal(t, ComponentUnknown, err.GetComponent(), "unset component should report unknown")
}

func TestContextCopyIsolation(t *testing.T) {
	t.Parallel()

	err := Newf("x").Context("key", "value").Build()
	ctx := err.GetContext()
	ctx["key"] = "mutated"

	assert.Equal(t, "value", err.GetContext()["key"], "returned context must be a copy")
}
